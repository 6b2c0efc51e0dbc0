package synthesis

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParsePayload(t *testing.T) {
	got, err := parsePayload(`{"sql":"SELECT id FROM parts WHERE quantity_on_hand < $1 AND price > $2 AND active = $3 LIMIT 20","parameters":[5, 2.5, true],"interpretation":" Low stock parts ","entity":"parts","estimated_count":null}`)
	if err != nil {
		t.Fatalf("parsePayload() error = %v", err)
	}
	want := GeneratedQuery{
		SQL:            "SELECT id FROM parts WHERE quantity_on_hand < $1 AND price > $2 AND active = $3 LIMIT 20",
		Parameters:     []any{int64(5), 2.5, true},
		Interpretation: "Low stock parts",
		Entity:         "parts",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("parsePayload() mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePayloadKeepsSQLVerbatim(t *testing.T) {
	sql := "  SELECT id FROM customers LIMIT 5;  "
	got, err := parsePayload(`{"sql":"  SELECT id FROM customers LIMIT 5;  ","interpretation":"x","entity":"customers"}`)
	if err != nil {
		t.Fatalf("parsePayload() error = %v", err)
	}
	if got.SQL != sql {
		t.Fatalf("SQL = %q, want %q", got.SQL, sql)
	}
	if len(got.Parameters) != 0 {
		t.Fatalf("Parameters = %v", got.Parameters)
	}
}

func TestParsePayloadRejectsMalformedOutput(t *testing.T) {
	cases := map[string]string{
		"empty":             "   ",
		"plain sql":         "SELECT 1",
		"trailing data":     `{"sql":"SELECT 1 LIMIT 1","interpretation":"x","entity":"e"} DROP TABLE customers`,
		"two objects":       `{"sql":"SELECT 1 LIMIT 1","interpretation":"x","entity":"e"}{"sql":"x"}`,
		"missing sql":       `{"interpretation":"x","entity":"e"}`,
		"blank sql":         `{"sql":"  ","interpretation":"x","entity":"e"}`,
		"sql not a string":  `{"sql":["SELECT 1"],"interpretation":"x","entity":"e"}`,
		"no interpretation": `{"sql":"SELECT 1 LIMIT 1","entity":"e"}`,
		"no entity":         `{"sql":"SELECT 1 LIMIT 1","interpretation":"x"}`,
		"object parameter":  `{"sql":"SELECT $1 LIMIT 1","parameters":[{"a":1}],"interpretation":"x","entity":"e"}`,
		"array parameter":   `{"sql":"SELECT $1 LIMIT 1","parameters":[[1,2]],"interpretation":"x","entity":"e"}`,
		"negative estimate": `{"sql":"SELECT 1 LIMIT 1","interpretation":"x","entity":"e","estimated_count":-1}`,
		"fraction estimate": `{"sql":"SELECT 1 LIMIT 1","interpretation":"x","entity":"e","estimated_count":1.5}`,
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			if got, err := parsePayload(text); err == nil {
				t.Fatalf("parsePayload() = %+v, want error", got)
			}
		})
	}
}

func TestStripMarkdownFence(t *testing.T) {
	got := stripMarkdownFence("```json\n{\"sql\":\"SELECT 1;\"}\n```")
	if got != `{"sql":"SELECT 1;"}` {
		t.Fatalf("stripMarkdownFence() = %q", got)
	}
}
