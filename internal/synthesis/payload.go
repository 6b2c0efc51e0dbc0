package synthesis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

type payload struct {
	SQL            *string           `json:"sql"`
	Parameters     []json.RawMessage `json:"parameters"`
	Interpretation *string           `json:"interpretation"`
	Entity         *string           `json:"entity"`
	EstimatedCount *json.Number      `json:"estimated_count"`
}

// parsePayload decodes model output into a GeneratedQuery. The SQL text is
// kept exactly as returned; anything that does not match the expected shape
// is an error rather than a best-effort repair.
func parsePayload(text string) (GeneratedQuery, error) {
	body := stripMarkdownFence(text)
	if body == "" {
		return GeneratedQuery{}, fmt.Errorf("model returned an empty response")
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var p payload
	if err := dec.Decode(&p); err != nil {
		return GeneratedQuery{}, fmt.Errorf("decode model payload: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return GeneratedQuery{}, fmt.Errorf("model payload has trailing data")
	}

	if p.SQL == nil || strings.TrimSpace(*p.SQL) == "" {
		return GeneratedQuery{}, fmt.Errorf("model payload has no sql")
	}
	if p.Interpretation == nil || strings.TrimSpace(*p.Interpretation) == "" {
		return GeneratedQuery{}, fmt.Errorf("model payload has no interpretation")
	}
	if p.Entity == nil || strings.TrimSpace(*p.Entity) == "" {
		return GeneratedQuery{}, fmt.Errorf("model payload has no entity")
	}

	params := make([]any, 0, len(p.Parameters))
	for i, raw := range p.Parameters {
		value, err := decodeScalar(raw)
		if err != nil {
			return GeneratedQuery{}, fmt.Errorf("parameter %d: %w", i+1, err)
		}
		params = append(params, value)
	}

	out := GeneratedQuery{
		SQL:            *p.SQL,
		Parameters:     params,
		Interpretation: strings.TrimSpace(*p.Interpretation),
		Entity:         strings.TrimSpace(*p.Entity),
	}
	if p.EstimatedCount != nil {
		count, err := p.EstimatedCount.Int64()
		if err != nil || count < 0 || count > math.MaxInt32 {
			return GeneratedQuery{}, fmt.Errorf("estimated_count %q is not a non-negative integer", p.EstimatedCount.String())
		}
		n := int(count)
		out.EstimatedCount = &n
	}
	return out, nil
}

// decodeScalar accepts strings, booleans, numbers and null. Integral numbers
// become int64 so they bind as integers.
func decodeScalar(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	switch v := value.(type) {
	case nil, string, bool:
		return v, nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", v.String())
		}
		return f, nil
	default:
		return nil, fmt.Errorf("only scalar values may be bound, got %T", v)
	}
}

func stripMarkdownFence(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
