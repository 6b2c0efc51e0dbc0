package safety

import (
	"fmt"
	"strconv"
	"strings"
)

// Keywords that never belong in a read-only query, wherever they appear.
var forbiddenKeywords = toSet(
	"INSERT", "UPDATE", "DELETE", "MERGE", "UPSERT", "INTO", "TABLE",
	"DROP", "ALTER", "TRUNCATE", "CREATE", "GRANT", "REVOKE", "REASSIGN",
	"EXEC", "EXECUTE", "CALL", "DO", "PREPARE", "DEALLOCATE",
	"COPY", "IMPORT", "EXPORT", "ATTACH", "DETACH", "INSTALL", "LOAD", "PRAGMA",
	"VACUUM", "ANALYZE", "REINDEX", "CLUSTER", "REFRESH", "CHECKPOINT", "LOCK",
	"SET", "RESET", "DISCARD", "LISTEN", "NOTIFY", "UNLISTEN",
	"BEGIN", "COMMIT", "ROLLBACK", "SAVEPOINT",
)

// File, network, process, and session-state functions exposed by Postgres,
// DuckDB, and common extensions.
var builtinForbiddenFunctions = toSet(
	"dblink", "dblink_exec", "dblink_connect", "dblink_send_query",
	"set_config", "current_setting", "nextval", "setval", "currval", "lastval", "txid_current",
	"query", "query_table", "getenv", "system", "glob",
	"read_csv", "read_csv_auto", "read_json", "read_json_auto", "read_ndjson", "read_text", "read_blob",
	"read_parquet", "parquet_scan", "parquet_metadata", "parquet_schema", "sniff_csv",
	"iceberg_scan", "delta_scan", "sqlite_scan", "postgres_scan", "postgres_query", "mysql_query",
	"ts_stat", "ts_rewrite",
)

// query_to_xml, table_to_xml, cursor_to_xml, schema_to_xml, database_to_xml
// and their _xmlschema variants take a query or relation name as text.
const xmlExportMarker = "_to_xml"

var systemPrefixes = []string{"pg_", "lo_", "duckdb_", "sqlite_"}

var systemNames = toSet("pg_catalog", "information_schema")

// Functions whose argument syntax uses the FROM keyword.
var syntaxFromFunctions = toSet("extract", "substring", "trim", "overlay")

var clauseKeywords = toSet(
	"WHERE", "JOIN", "INNER", "LEFT", "RIGHT", "FULL", "OUTER", "CROSS", "NATURAL",
	"ON", "USING", "GROUP", "ORDER", "LIMIT", "OFFSET", "HAVING", "WINDOW", "FETCH", "FOR",
	"UNION", "INTERSECT", "EXCEPT", "TABLESAMPLE", "SELECT", "FROM", "AS", "WITH", "AND", "OR", "NOT",
)

var lockingWords = toSet("UPDATE", "SHARE", "NO", "KEY")

const maxPlaceholderIndex = 1000

type Validator struct {
	tables    map[string]struct{}
	functions map[string]struct{}
	maxLimit  int
}

func NewValidator(policy Policy) *Validator {
	v := &Validator{
		tables:    map[string]struct{}{},
		functions: map[string]struct{}{},
		maxLimit:  policy.MaxLimit,
	}
	if v.maxLimit <= 0 {
		v.maxLimit = defaultMaxLimit
	}
	for _, table := range policy.Tables {
		v.tables[strings.ToLower(strings.TrimSpace(table.Name))] = struct{}{}
	}
	for name := range builtinForbiddenFunctions {
		v.functions[strings.ToLower(name)] = struct{}{}
	}
	for _, name := range policy.ForbiddenFunctions {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			v.functions[name] = struct{}{}
		}
	}
	return v
}

func (v *Validator) MaxLimit() int {
	return v.maxLimit
}

// Validate checks sqlText and its positional parameters. It is fail-closed:
// every rule runs, every violation is collected, and anything the checks
// cannot read with certainty counts as a violation.
func (v *Validator) Validate(sqlText string, params []any) Verdict {
	verdict := Verdict{sqlText: sqlText}
	if len(params) > 0 {
		verdict.params = make([]any, len(params))
		copy(verdict.params, params)
	}

	c := &checker{validator: v, seen: map[string]struct{}{}}
	c.run(sqlText, len(params))

	verdict.violations = c.violations
	verdict.safe = len(c.violations) == 0
	return verdict
}

type checker struct {
	validator  *Validator
	violations []Violation
	seen       map[string]struct{}
}

func (c *checker) add(rule Rule, format string, args ...any) {
	detail := fmt.Sprintf(format, args...)
	key := string(rule) + "\x00" + detail
	if _, ok := c.seen[key]; ok {
		return
	}
	c.seen[key] = struct{}{}
	c.violations = append(c.violations, Violation{Rule: rule, Detail: detail})
}

func (c *checker) run(sqlText string, paramCount int) {
	if strings.TrimSpace(sqlText) == "" {
		c.add(RuleEmpty, "statement is empty")
		return
	}

	tokens, lexViolations := lex(sqlText)
	for _, violation := range lexViolations {
		c.add(violation.Rule, "%s", violation.Detail)
	}

	c.checkKeywords(tokens)
	c.checkFunctionsAndCatalogs(tokens)

	statement := c.firstStatement(tokens)
	if len(statement) == 0 {
		c.add(RuleEmpty, "statement has no content")
		return
	}
	c.checkPlaceholders(statement, paramCount)
	if !c.checkParens(statement) {
		return
	}
	ctes, _ := c.checkShape(statement)
	c.checkLimit(statement)
	c.checkTables(statement, ctes)
}

// firstStatement returns the tokens before the first semicolon and records a
// violation when anything follows it.
func (c *checker) firstStatement(tokens []token) []token {
	for i, t := range tokens {
		if !t.isPunct(";") {
			continue
		}
		if i < len(tokens)-1 {
			c.add(RuleMultiStatement, "content after ';' at offset %d", t.pos)
		}
		return tokens[:i]
	}
	return tokens
}

func (c *checker) checkKeywords(tokens []token) {
	for i, t := range tokens {
		if t.kind != tokenWord {
			continue
		}
		upper := strings.ToUpper(t.text)
		if _, ok := forbiddenKeywords[upper]; ok {
			c.add(RuleForbiddenKeyword, "%s", upper)
			continue
		}
		if upper == "FOR" && i+1 < len(tokens) && tokens[i+1].kind == tokenWord {
			if _, ok := lockingWords[strings.ToUpper(tokens[i+1].text)]; ok {
				c.add(RuleForbiddenKeyword, "row locking clause FOR %s", strings.ToUpper(tokens[i+1].text))
			}
		}
	}
}

func (c *checker) checkFunctionsAndCatalogs(tokens []token) {
	for i, t := range tokens {
		if t.kind != tokenWord && t.kind != tokenQuotedIdent {
			continue
		}
		name := strings.ToLower(t.text)
		if i+1 < len(tokens) && tokens[i+1].isPunct("(") {
			if _, ok := c.validator.functions[name]; ok || hasSystemPrefix(name) || strings.Contains(name, xmlExportMarker) {
				c.add(RuleDangerousFunction, "%s()", name)
			}
			continue
		}
		if _, ok := systemNames[name]; ok || hasSystemPrefix(name) {
			c.add(RuleSystemCatalog, "%s", name)
		}
	}
}

func (c *checker) checkPlaceholders(tokens []token, paramCount int) {
	used := map[int]struct{}{}
	highest := 0
	for _, t := range tokens {
		if t.kind != tokenPlaceholder {
			continue
		}
		index, err := strconv.Atoi(t.text)
		if err != nil || index < 1 || index > maxPlaceholderIndex {
			c.add(RuleParameterMismatch, "invalid placeholder $%s", t.text)
			continue
		}
		used[index] = struct{}{}
		if index > highest {
			highest = index
		}
	}
	if highest != paramCount {
		c.add(RuleParameterMismatch, "statement references %d positional parameters but %d were supplied", highest, paramCount)
	}
	for index := 1; index <= highest; index++ {
		if _, ok := used[index]; !ok {
			c.add(RuleParameterMismatch, "placeholder $%d is never referenced", index)
		}
	}
}

func (c *checker) checkParens(tokens []token) bool {
	depth := 0
	for _, t := range tokens {
		switch {
		case t.isPunct("("):
			depth++
		case t.isPunct(")"):
			depth--
			if depth < 0 {
				c.add(RuleUnparsable, "unbalanced ')' at offset %d", t.pos)
				return false
			}
		}
	}
	if depth != 0 {
		c.add(RuleUnparsable, "%d unclosed '('", depth)
		return false
	}
	return true
}

// checkShape requires SELECT or WITH ... SELECT and returns the names of any
// common table expressions so they can be referenced in FROM clauses.
func (c *checker) checkShape(tokens []token) (map[string]struct{}, bool) {
	first := tokens[0]
	if first.isWord("SELECT") {
		return nil, true
	}
	if !first.isWord("WITH") {
		c.add(RuleStatementShape, "statement starts with %q; only SELECT or WITH ... SELECT is allowed", first.text)
		return nil, false
	}

	ctes := map[string]struct{}{}
	i := 1
	if i < len(tokens) && tokens[i].isWord("RECURSIVE") {
		i++
	}
	for {
		if i >= len(tokens) || (tokens[i].kind != tokenWord && tokens[i].kind != tokenQuotedIdent) {
			c.add(RuleStatementShape, "malformed common table expression")
			return ctes, false
		}
		ctes[identName(tokens[i])] = struct{}{}
		i++
		if i < len(tokens) && tokens[i].isPunct("(") {
			i = skipParens(tokens, i)
		}
		if i < 0 || i >= len(tokens) || !tokens[i].isWord("AS") {
			c.add(RuleStatementShape, "malformed common table expression")
			return ctes, false
		}
		i++
		if i < len(tokens) && tokens[i].isWord("NOT") {
			i++
		}
		if i < len(tokens) && tokens[i].isWord("MATERIALIZED") {
			i++
		}
		if i >= len(tokens) || !tokens[i].isPunct("(") {
			c.add(RuleStatementShape, "malformed common table expression")
			return ctes, false
		}
		if i+1 < len(tokens) && !tokens[i+1].isWord("SELECT") && !tokens[i+1].isWord("WITH") {
			c.add(RuleStatementShape, "common table expression body must be a SELECT")
		}
		i = skipParens(tokens, i)
		if i < 0 {
			c.add(RuleStatementShape, "malformed common table expression")
			return ctes, false
		}
		if i < len(tokens) && tokens[i].isPunct(",") {
			i++
			continue
		}
		break
	}
	if i >= len(tokens) || !tokens[i].isWord("SELECT") {
		c.add(RuleStatementShape, "common table expressions must be followed by SELECT")
		return ctes, false
	}
	return ctes, true
}

func (c *checker) checkLimit(tokens []token) {
	depth := 0
	limitAt := -1
	for i, t := range tokens {
		switch {
		case t.isPunct("("):
			depth++
		case t.isPunct(")"):
			depth--
		case depth == 0 && t.isWord("LIMIT"):
			limitAt = i
		}
	}
	if limitAt < 0 {
		c.add(RuleUnboundedResult, "no top-level LIMIT clause")
		return
	}
	if limitAt+1 >= len(tokens) {
		c.add(RuleUnboundedResult, "LIMIT without a row count")
		return
	}
	count := tokens[limitAt+1]
	value, err := strconv.Atoi(count.text)
	if count.kind != tokenNumber || err != nil {
		c.add(RuleUnboundedResult, "LIMIT must be an integer literal, got %q", count.text)
		return
	}
	if value > c.validator.maxLimit {
		c.add(RuleUnboundedResult, "LIMIT %d exceeds maximum %d", value, c.validator.maxLimit)
	}
}

// fromScope is the state of one parenthesis or bracket level.
type fromScope struct {
	// syntax marks the parens of EXTRACT(x FROM y) and similar calls.
	syntax bool
	// fromOpen is set from FROM until a clause keyword at the same level;
	// every comma in between starts another table reference, including one
	// that follows a JOIN condition.
	fromOpen bool
}

var fromClosingKeywords = toSet(
	"WHERE", "GROUP", "HAVING", "WINDOW", "QUALIFY", "ORDER", "LIMIT", "OFFSET", "FETCH",
	"UNION", "INTERSECT", "EXCEPT", "SELECT", "VALUES", "RETURNING",
)

func (c *checker) checkTables(tokens []token, ctes map[string]struct{}) {
	scopes := []fromScope{{}}
	for i, t := range tokens {
		top := &scopes[len(scopes)-1]
		switch {
		case t.isPunct("(") || t.isPunct("["):
			syntax := false
			if t.isPunct("(") && i > 0 && tokens[i-1].kind == tokenWord {
				_, syntax = syntaxFromFunctions[strings.ToLower(tokens[i-1].text)]
			}
			scopes = append(scopes, fromScope{syntax: syntax})
		case t.isPunct(")") || t.isPunct("]"):
			if len(scopes) > 1 {
				scopes = scopes[:len(scopes)-1]
			}
		case t.isWord("FROM"):
			if top.syntax || (i > 0 && tokens[i-1].isWord("DISTINCT")) {
				continue
			}
			top.fromOpen = true
			c.checkTableRef(tokens, i+1, ctes)
		case t.isWord("JOIN"):
			c.checkTableRef(tokens, i+1, ctes)
		case t.isPunct(",") && top.fromOpen:
			c.checkTableRef(tokens, i+1, ctes)
		case t.kind == tokenWord:
			if _, ok := fromClosingKeywords[strings.ToUpper(t.text)]; ok {
				top.fromOpen = false
			}
		}
	}
}

// checkTableRef checks the table reference starting at j. Subqueries are
// skipped here; their own FROM clauses are visited by checkTables.
func (c *checker) checkTableRef(tokens []token, j int, ctes map[string]struct{}) {
	for j < len(tokens) && (tokens[j].isWord("ONLY") || tokens[j].isWord("LATERAL")) {
		j++
	}
	if j >= len(tokens) {
		c.add(RuleStatementShape, "FROM or JOIN without a table")
		return
	}

	ref := tokens[j]
	switch {
	case ref.isPunct("("):
	case ref.kind == tokenQuotedIdent || (ref.kind == tokenWord && !isClauseKeyword(ref.text)):
		schema, name := "", identName(ref)
		if j+2 < len(tokens) && tokens[j+1].isPunct(".") && isIdent(tokens[j+2]) {
			schema, name = name, identName(tokens[j+2])
			j += 2
		}
		if j+1 < len(tokens) && tokens[j+1].isPunct("(") {
			c.add(RuleTableNotAllowed, "table function %s() in FROM clause", name)
			return
		}
		c.checkTable(schema, name, ctes)
	default:
		c.add(RuleStatementShape, "unexpected %q after FROM or JOIN", ref.text)
	}
}

func (c *checker) checkTable(schema, name string, ctes map[string]struct{}) {
	if schema != "" && schema != "public" {
		c.add(RuleTableNotAllowed, "table %s.%s outside the public schema", schema, name)
		return
	}
	if schema == "" {
		if _, ok := ctes[name]; ok {
			return
		}
	}
	if len(c.validator.tables) == 0 {
		return
	}
	if _, ok := c.validator.tables[name]; !ok {
		c.add(RuleTableNotAllowed, "table %q is not in the allow-list", name)
	}
}

// skipParens returns the index just past the ')' matching the '(' at i, or -1.
func skipParens(tokens []token, i int) int {
	depth := 0
	for j := i; j < len(tokens); j++ {
		switch {
		case tokens[j].isPunct("("):
			depth++
		case tokens[j].isPunct(")"):
			depth--
			if depth == 0 {
				return j + 1
			}
		}
	}
	return -1
}

func identName(t token) string {
	if t.kind == tokenQuotedIdent {
		return t.text
	}
	return strings.ToLower(t.text)
}

func isIdent(t token) bool {
	return t.kind == tokenQuotedIdent || t.kind == tokenWord
}

func isClauseKeyword(word string) bool {
	_, ok := clauseKeywords[strings.ToUpper(word)]
	return ok
}

func hasSystemPrefix(name string) bool {
	for _, prefix := range systemPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}
