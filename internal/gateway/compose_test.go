package gateway

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shopdesk/shopdesk/internal/command"
)

func TestCompose(t *testing.T) {
	cases := []struct {
		name   string
		intent command.Intent
		want   Response
	}{
		{
			name:   "navigation",
			intent: command.Navigation{URL: "/customers"},
			want:   Response{Intent: "navigation", Message: "Opening /customers", Action: ActionNavigate, ActionData: map[string]any{"url": "/customers"}},
		},
		{
			name:   "maintenance",
			intent: command.MaintenanceCheck{},
			want:   Response{Intent: "maintenance_check", Message: "Checking which vehicles are due for maintenance", Action: ActionShowMaintenanceDialog},
		},
		{
			name:   "create",
			intent: command.CreateEntity{Entity: command.EntityRepairOrder},
			want:   Response{Intent: "create_entity", Message: "Opening a new repair order", Action: ActionCreateRepairOrder, ActionData: map[string]any{"entity": "repair_order"}},
		},
		{
			name:   "vin",
			intent: command.VinLookup{VIN: "1HGBH41JXMN109186"},
			want:   Response{Intent: "vin_lookup", Message: "Decoding VIN 1HGBH41JXMN109186", Action: ActionDecodeVIN, ActionData: map[string]any{"vin": "1HGBH41JXMN109186"}},
		},
		{
			name:   "vin without number",
			intent: command.VinLookup{},
			want:   Response{Intent: "vin_lookup", Message: "Scan or type the 17-character VIN to decode", Action: ActionDecodeVIN, ActionData: map[string]any{"vin": ""}},
		},
		{
			name:   "unknown",
			intent: command.Unknown{Help: command.HelpMessage},
			want:   Response{Intent: "unknown", Message: command.HelpMessage},
		},
		{
			name:   "error",
			intent: command.Error{Stage: string(StageExecution)},
			want:   Response{Intent: "search_error", Message: SearchErrorMessage},
		},
		{
			name:   "search without outcome",
			intent: command.Search{Query: "customers"},
			want:   Response{Intent: "search_error", Message: SearchErrorMessage},
		},
		{
			name:   "nil intent",
			intent: nil,
			want:   Response{Intent: "search_error", Message: SearchErrorMessage},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, Compose(tc.intent, nil)); diff != "" {
				t.Fatalf("Compose() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestComposeSearchResults(t *testing.T) {
	outcome := &SearchOutcome{
		Interpretation: "Customers in Springfield",
		Entity:         "customers",
		Results:        []map[string]any{{"id": int64(1)}, {"id": int64(2)}},
		Count:          2,
		SQL:            "SELECT id FROM customers WHERE city = $1 LIMIT 50",
	}
	got := Compose(command.Search{Query: "customers in Springfield"}, outcome)
	want := Response{
		Intent:  "search",
		Message: "Found 2 results: Customers in Springfield",
		Action:  ActionShowSearchResults,
		ActionData: map[string]any{
			"results": outcome.Results,
			"entity":  "customers",
			"query":   "customers in Springfield",
			"count":   2,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Compose() mismatch (-want +got):\n%s", diff)
	}
	if _, ok := got.ActionData["sql"]; ok {
		t.Fatal("command response must not carry sql")
	}
}
