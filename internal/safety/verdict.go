package safety

import "log/slog"

type Rule string

const (
	RuleEmpty             Rule = "empty_statement"
	RuleUnparsable        Rule = "unparsable"
	RuleMultiStatement    Rule = "multiple_statements"
	RuleStatementShape    Rule = "statement_shape"
	RuleForbiddenKeyword  Rule = "forbidden_keyword"
	RuleComment           Rule = "comment"
	RuleDangerousFunction Rule = "dangerous_function"
	RuleSystemCatalog     Rule = "system_catalog"
	RuleUnboundedResult   Rule = "unbounded_result"
	RuleTableNotAllowed   Rule = "table_not_allowed"
	RuleParameterMismatch Rule = "parameter_mismatch"
)

type Violation struct {
	Rule   Rule   `json:"rule"`
	Detail string `json:"detail"`
}

// Verdict is the outcome of validating one statement together with its bound
// parameters. Its fields are unexported: the only way to obtain a safe verdict
// is Validator.Validate, and the verdict carries the exact text and parameters
// that were checked so executors never run anything else.
type Verdict struct {
	sqlText    string
	params     []any
	safe       bool
	violations []Violation
}

func (v Verdict) Safe() bool {
	return v.safe
}

func (v Verdict) SQL() string {
	return v.sqlText
}

func (v Verdict) Params() []any {
	if len(v.params) == 0 {
		return nil
	}
	out := make([]any, len(v.params))
	copy(out, v.params)
	return out
}

func (v Verdict) Violations() []Violation {
	if len(v.violations) == 0 {
		return nil
	}
	out := make([]Violation, len(v.violations))
	copy(out, v.violations)
	return out
}

// Rules lists violated rule names in the order they were found, without duplicates.
func (v Verdict) Rules() []string {
	seen := map[Rule]struct{}{}
	rules := make([]string, 0, len(v.violations))
	for _, violation := range v.violations {
		if _, ok := seen[violation.Rule]; ok {
			continue
		}
		seen[violation.Rule] = struct{}{}
		rules = append(rules, string(violation.Rule))
	}
	return rules
}

func (v Verdict) LogValue() slog.Value {
	details := make([]string, 0, len(v.violations))
	for _, violation := range v.violations {
		details = append(details, string(violation.Rule)+": "+violation.Detail)
	}
	return slog.GroupValue(
		slog.Bool("safe", v.safe),
		slog.Any("violations", details),
	)
}
