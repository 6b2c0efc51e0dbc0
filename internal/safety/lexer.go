package safety

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenQuotedIdent
	tokenString
	tokenNumber
	tokenPlaceholder
	tokenPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) isWord(upper string) bool {
	return t.kind == tokenWord && strings.EqualFold(t.text, upper)
}

func (t token) isPunct(ch string) bool {
	return t.kind == tokenPunct && t.text == ch
}

// lex splits sqlText into tokens. Anything the lexer cannot classify with
// certainty is reported as a violation; when the rest of the input can no
// longer be trusted (unterminated literal, dollar quoting) lexing stops.
func lex(sqlText string) ([]token, []Violation) {
	var (
		tokens     []token
		violations []Violation
	)
	src := sqlText
	i := 0
	for i < len(src) {
		c := src[i]
		next := byte(0)
		if i+1 < len(src) {
			next = src[i+1]
		}

		switch {
		case isSpace(c):
			i++
		case c == '-' && next == '-':
			violations = append(violations, Violation{Rule: RuleComment, Detail: fmt.Sprintf("line comment at offset %d", i)})
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				i = len(src)
			} else {
				i += end + 1
			}
		case c == '/' && next == '*':
			violations = append(violations, Violation{Rule: RuleComment, Detail: fmt.Sprintf("block comment at offset %d", i)})
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				i = len(src)
			} else {
				i += end + 4
			}
		case c == '*' && next == '/':
			violations = append(violations, Violation{Rule: RuleComment, Detail: fmt.Sprintf("comment terminator at offset %d", i)})
			i += 2
		case c == '\'':
			text, n, ok := scanQuoted(src[i:], '\'')
			if !ok {
				violations = append(violations, Violation{Rule: RuleUnparsable, Detail: fmt.Sprintf("unterminated string literal at offset %d", i)})
				return tokens, violations
			}
			tokens = append(tokens, token{kind: tokenString, text: text, pos: i})
			i += n
		case c == '"':
			text, n, ok := scanQuoted(src[i:], '"')
			if !ok {
				violations = append(violations, Violation{Rule: RuleUnparsable, Detail: fmt.Sprintf("unterminated quoted identifier at offset %d", i)})
				return tokens, violations
			}
			if text == "" {
				violations = append(violations, Violation{Rule: RuleUnparsable, Detail: fmt.Sprintf("empty quoted identifier at offset %d", i)})
			}
			tokens = append(tokens, token{kind: tokenQuotedIdent, text: text, pos: i})
			i += n
		case c == '$':
			if !isDigit(next) {
				violations = append(violations, Violation{Rule: RuleUnparsable, Detail: fmt.Sprintf("dollar-quoted string at offset %d", i)})
				return tokens, violations
			}
			j := i + 1
			for j < len(src) && isDigit(src[j]) {
				j++
			}
			tokens = append(tokens, token{kind: tokenPlaceholder, text: src[i+1 : j], pos: i})
			i = j
		case c == '?':
			violations = append(violations, Violation{Rule: RuleParameterMismatch, Detail: fmt.Sprintf("unsupported '?' placeholder or operator at offset %d", i)})
			i++
		case c == '\\' || c == '`':
			violations = append(violations, Violation{Rule: RuleUnparsable, Detail: fmt.Sprintf("unexpected %q outside literal at offset %d", c, i)})
			i++
		case c >= 0x80:
			violations = append(violations, Violation{Rule: RuleUnparsable, Detail: fmt.Sprintf("non-ASCII character outside literal at offset %d", i)})
			return tokens, violations
		case c < 0x20 || c == 0x7f:
			violations = append(violations, Violation{Rule: RuleUnparsable, Detail: fmt.Sprintf("control character at offset %d", i)})
			i++
		case isIdentStart(c):
			j := i + 1
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			word := src[i:j]
			if j < len(src) {
				// E'..' allows backslash escapes and U&'..' unicode escapes; both
				// change how the rest of the text would be read.
				if strings.EqualFold(word, "e") && src[j] == '\'' {
					violations = append(violations, Violation{Rule: RuleUnparsable, Detail: fmt.Sprintf("escape string literal at offset %d", i)})
					return tokens, violations
				}
				if strings.EqualFold(word, "u") && src[j] == '&' {
					violations = append(violations, Violation{Rule: RuleUnparsable, Detail: fmt.Sprintf("unicode escape literal at offset %d", i)})
					return tokens, violations
				}
			}
			tokens = append(tokens, token{kind: tokenWord, text: word, pos: i})
			i = j
		case isDigit(c) || (c == '.' && isDigit(next)):
			j := scanNumber(src, i)
			tokens = append(tokens, token{kind: tokenNumber, text: src[i:j], pos: i})
			i = j
		default:
			tokens = append(tokens, token{kind: tokenPunct, text: string(c), pos: i})
			i++
		}
	}
	return tokens, violations
}

// scanQuoted reads a quote-delimited run starting at s[0], treating a doubled
// quote as an escaped quote. It returns the unescaped body and bytes consumed.
func scanQuoted(s string, quote byte) (string, int, bool) {
	var b strings.Builder
	i := 1
	for i < len(s) {
		if s[i] == quote {
			if i+1 < len(s) && s[i+1] == quote {
				b.WriteByte(quote)
				i += 2
				continue
			}
			return b.String(), i + 1, true
		}
		b.WriteByte(s[i])
		i++
	}
	return "", len(s), false
}

func scanNumber(s string, i int) int {
	j := i
	for j < len(s) && (isDigit(s[j]) || s[j] == '.') {
		j++
	}
	if j < len(s) && (s[j] == 'e' || s[j] == 'E') {
		k := j + 1
		if k < len(s) && (s[k] == '+' || s[k] == '-') {
			k++
		}
		if k < len(s) && isDigit(s[k]) {
			for k < len(s) && isDigit(s[k]) {
				k++
			}
			j = k
		}
	}
	return j
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '$'
}
