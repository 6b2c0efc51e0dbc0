package command

import (
	"regexp"
	"strings"
	"unicode"
)

const HelpMessage = "I can open customers, repair orders, parts or settings, check maintenance due, " +
	"start a new repair order, decode a VIN, or search shop records. " +
	"Try \"find customer Bob Johnson\" or \"open repair orders\"."

// VINs are 17 characters and never use I, O or Q.
var vinPattern = regexp.MustCompile(`\b[A-HJ-NPR-Z0-9]{17}\b`)

var navigationVerbs = []string{"go to", "open", "navigate"}

type destination struct {
	words  []string
	tokens []string
	url    string
}

var destinations = []destination{
	{words: []string{"customer"}, url: "/customers"},
	{words: []string{"repair order"}, tokens: []string{"ro"}, url: "/repair-orders"},
	{words: []string{"part"}, url: "/parts-manager"},
	{words: []string{"setting"}, url: "/settings"},
}

// Longer prefixes first so "search for x" strips both words.
var searchPrefixes = []string{"search for ", "find ", "search ", "list ", "show ", "all "}

var searchPhrases = []string{"search for", "customers who", "repair orders"}

type rule struct {
	name  string
	match func(in input) (Intent, bool)
}

type input struct {
	cmd    Command
	text   string
	tokens map[string]struct{}
}

func (in input) contains(words ...string) bool {
	for _, word := range words {
		if strings.Contains(in.text, word) {
			return true
		}
	}
	return false
}

func (in input) hasToken(tokens ...string) bool {
	for _, token := range tokens {
		if _, ok := in.tokens[token]; ok {
			return true
		}
	}
	return false
}

// Classifier maps commands to intents with an ordered rule list; the first
// matching rule wins and Unknown is returned when none match.
type Classifier struct {
	rules []rule
}

func NewClassifier() *Classifier {
	return &Classifier{rules: []rule{
		{name: KindNavigation, match: matchNavigation},
		{name: KindMaintenanceCheck, match: matchMaintenance},
		{name: KindCreateEntity, match: matchCreate},
		{name: KindSearch, match: matchSearch},
		{name: KindVinLookup, match: matchVIN},
	}}
}

// RuleNames lists the rules in evaluation order.
func (c *Classifier) RuleNames() []string {
	names := make([]string, 0, len(c.rules))
	for _, r := range c.rules {
		names = append(names, r.name)
	}
	return names
}

func (c *Classifier) Classify(cmd Command) Intent {
	in := input{cmd: cmd, text: cmd.Normalized(), tokens: tokenize(cmd.Normalized())}
	for _, r := range c.rules {
		if intent, ok := r.match(in); ok {
			return intent
		}
	}
	return Unknown{Help: HelpMessage}
}

func matchNavigation(in input) (Intent, bool) {
	if !in.contains(navigationVerbs...) {
		return nil, false
	}
	for _, dest := range destinations {
		if in.contains(dest.words...) || in.hasToken(dest.tokens...) {
			return Navigation{URL: dest.url}, true
		}
	}
	return nil, false
}

func matchMaintenance(in input) (Intent, bool) {
	if in.contains("service", "maintenance", "due") {
		return MaintenanceCheck{}, true
	}
	return nil, false
}

func matchCreate(in input) (Intent, bool) {
	if !in.contains("create", "new") {
		return nil, false
	}
	if in.contains("repair", "ro", "order") {
		return CreateEntity{Entity: EntityRepairOrder}, true
	}
	return nil, false
}

func matchSearch(in input) (Intent, bool) {
	raw := strings.TrimSpace(in.cmd.Raw())
	for _, prefix := range searchPrefixes {
		if len(raw) > len(prefix) && strings.EqualFold(raw[:len(prefix)], prefix) {
			return Search{Query: strings.TrimSpace(raw[len(prefix):])}, true
		}
	}
	if in.contains(searchPhrases...) {
		return Search{Query: raw}, true
	}
	return nil, false
}

func matchVIN(in input) (Intent, bool) {
	if vin := vinPattern.FindString(strings.ToUpper(in.cmd.Raw())); vin != "" {
		return VinLookup{VIN: vin}, true
	}
	if in.contains("vin") {
		return VinLookup{}, true
	}
	return nil, false
}

func tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		tokens[field] = struct{}{}
	}
	return tokens
}
