package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shopdesk/shopdesk/internal/command"
	"github.com/shopdesk/shopdesk/internal/gateway"
	"github.com/shopdesk/shopdesk/internal/query"
	"github.com/shopdesk/shopdesk/internal/safety"
	"github.com/shopdesk/shopdesk/internal/synthesis"
)

func TestCommandEndpointRejectsBadRequests(t *testing.T) {
	gw := &fakeGateway{}
	h := NewHandler(loadTestConfig(t, nil), Dependencies{Gateway: gw})

	cases := map[string]struct {
		body string
		code string
	}{
		"missing command":   {body: `{"context":{}}`, code: "INVALID_COMMAND"},
		"null command":      {body: `{"command":null}`, code: "INVALID_COMMAND"},
		"number command":    {body: `{"command":42}`, code: "INVALID_COMMAND"},
		"object command":    {body: `{"command":{"text":"open customers"}}`, code: "INVALID_COMMAND"},
		"blank command":     {body: `{"command":"   "}`, code: "INVALID_COMMAND"},
		"not json":          {body: `command=open`, code: "INVALID_JSON"},
		"trailing data":     {body: `{"command":"open customers"}{"command":"x"}`, code: "INVALID_JSON"},
		"context not obj":   {body: `{"command":"open customers","context":"page"}`, code: "INVALID_CONTEXT"},
		"context bad page":  {body: `{"command":"open customers","context":{"current_page":7}}`, code: "INVALID_CONTEXT"},
		"context bad stamp": {body: `{"command":"open customers","context":{"timestamp":"yesterday"}}`, code: "INVALID_CONTEXT"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rr := postJSON(t, h, "/v1/command", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
			}
			if got := decodeJSON(t, rr)["error_code"]; got != tc.code {
				t.Fatalf("error_code = %v, want %s", got, tc.code)
			}
		})
	}
	if len(gw.commands) != 0 {
		t.Fatalf("gateway saw %d commands", len(gw.commands))
	}
}

func TestCommandEndpointIgnoresUnknownFields(t *testing.T) {
	gw := &fakeGateway{}
	h := NewHandler(loadTestConfig(t, nil), Dependencies{Gateway: gw})

	rr := postJSON(t, h, "/v1/command", `{"command":"open customers","source":"voice","sql":"DROP TABLE customers"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if len(gw.commands) != 1 || gw.commands[0].Raw() != "open customers" {
		t.Fatalf("commands = %+v", gw.commands)
	}
	if got := decodeJSON(t, rr)["intent"]; got != command.KindNavigation {
		t.Fatalf("intent = %v", got)
	}
}

func TestCommandEndpointRejectsOversizedBody(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{"SHOPDESK_HTTP_MAX_BODY_BYTES": "64"})
	h := NewHandler(cfg, Dependencies{Gateway: &fakeGateway{}})

	body := `{"command":"find customers whose notes mention a very long phrase that keeps going"}`
	rr := postJSON(t, h, "/v1/command", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCommandEndpointPassesContext(t *testing.T) {
	gw := &fakeGateway{}
	now := time.Date(2026, time.October, 19, 10, 0, 0, 0, time.UTC)
	h := NewHandler(loadTestConfig(t, nil), Dependencies{Gateway: gw, Clock: func() time.Time { return now }})

	rr := postJSON(t, h, "/v1/command", `{"command":"open customers","context":{"currentPage":"/repair-orders/42","work_order_id":42,"entity_ids":{"customer_id":"c-9"},"theme":"dark"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if len(gw.commands) != 1 {
		t.Fatalf("commands = %d", len(gw.commands))
	}
	want := command.Context{
		CurrentPage: "/repair-orders/42",
		EntityIDs:   map[string]string{"work_order_id": "42", "customer_id": "c-9"},
		Timestamp:   now,
	}
	if diff := cmp.Diff(want, gw.commands[0].Context()); diff != "" {
		t.Fatalf("Context mismatch (-want +got):\n%s", diff)
	}
}

func TestCommandScenarios(t *testing.T) {
	cases := []struct {
		name          string
		command       string
		generated     synthesis.GeneratedQuery
		wantStatus    int
		wantBody      map[string]any
		wantExecCalls int
	}{
		{
			name:       "open repair orders",
			command:    "open repair orders",
			wantStatus: http.StatusOK,
			wantBody: map[string]any{
				"intent":      "navigation",
				"message":     "Opening /repair-orders",
				"action":      "navigate",
				"action_data": map[string]any{"url": "/repair-orders"},
			},
		},
		{
			name:    "find customer",
			command: "find customer Bob Johnson",
			generated: synthesis.GeneratedQuery{
				SQL:            "SELECT id, customer_name FROM customers WHERE customer_name ILIKE $1 LIMIT 50",
				Parameters:     []any{"%Bob Johnson%"},
				Interpretation: "Customers named Bob Johnson",
				Entity:         "customers",
			},
			wantStatus: http.StatusOK,
			wantBody: map[string]any{
				"intent":  "search",
				"message": "Found 1 result: Customers named Bob Johnson",
				"action":  "show_search_results",
				"action_data": map[string]any{
					"results": []any{map[string]any{"id": float64(1), "customer_name": "Bob Johnson"}},
					"entity":  "customers",
					"query":   "customer Bob Johnson",
					"count":   float64(1),
				},
			},
			wantExecCalls: 1,
		},
		{
			name:       "decode vin",
			command:    "decode VIN 1HGBH41JXMN109186",
			wantStatus: http.StatusOK,
			wantBody: map[string]any{
				"intent":      "vin_lookup",
				"message":     "Decoding VIN 1HGBH41JXMN109186",
				"action":      "decode_vin",
				"action_data": map[string]any{"vin": "1HGBH41JXMN109186"},
			},
		},
		{
			name:       "delete is rejected",
			command:    "find all customers",
			generated:  synthesis.GeneratedQuery{SQL: "DELETE FROM customers", Interpretation: "Remove customers", Entity: "customers"},
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"intent": "search_error", "message": gateway.SearchErrorMessage},
		},
		{
			name:       "stacked statements are rejected",
			command:    "find all customers",
			generated:  synthesis.GeneratedQuery{SQL: "SELECT * FROM customers; DROP TABLE customers;", Interpretation: "Customers", Entity: "customers"},
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"intent": "search_error", "message": gateway.SearchErrorMessage},
		},
		{
			name:       "unknown",
			command:    "what's the weather",
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"intent": "unknown", "message": command.HelpMessage},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			executor := &countingExecutor{result: query.Result{
				Rows:     []map[string]any{{"id": 1, "customer_name": "Bob Johnson"}},
				RowCount: 1,
			}}
			svc := newGatewayService(&cannedSynthesizer{query: tc.generated}, executor)
			h := NewHandler(loadTestConfig(t, nil), Dependencies{Gateway: svc})

			rr := postJSON(t, h, "/v1/command", `{"command":"`+tc.command+`","context":{}}`)
			if rr.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rr.Code, tc.wantStatus, rr.Body.String())
			}
			if diff := cmp.Diff(tc.wantBody, decodeJSON(t, rr)); diff != "" {
				t.Fatalf("body mismatch (-want +got):\n%s", diff)
			}
			if executor.count() != tc.wantExecCalls {
				t.Fatalf("executor calls = %d, want %d", executor.count(), tc.wantExecCalls)
			}
		})
	}
}

func TestCommandEndpointExecutionFailureIs500(t *testing.T) {
	executor := &countingExecutor{err: &query.ExecutionError{Op: "execute", Err: errors.New(`pq: relation "customers" does not exist`)}}
	svc := newGatewayService(&cannedSynthesizer{query: synthesis.GeneratedQuery{
		SQL: "SELECT id FROM customers LIMIT 5", Interpretation: "Customers", Entity: "customers",
	}}, executor)
	h := NewHandler(loadTestConfig(t, nil), Dependencies{Gateway: svc})

	rr := postJSON(t, h, "/v1/command", `{"command":"show customers"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeJSON(t, rr)
	if body["intent"] != "search_error" || body["message"] != gateway.SearchErrorMessage {
		t.Fatalf("unexpected body %v", body)
	}
}

func newGatewayService(synth synthesis.Synthesizer, executor query.Executor) *gateway.Service {
	policy := safety.DefaultPolicy()
	return &gateway.Service{
		Synthesizer: synth,
		Validator:   safety.NewValidator(policy),
		Executor:    executor,
		Tables:      gateway.TableHints(policy),
	}
}

type cannedSynthesizer struct {
	query synthesis.GeneratedQuery
	err   error
}

func (c *cannedSynthesizer) Synthesize(context.Context, synthesis.Request) (synthesis.GeneratedQuery, error) {
	if c.err != nil {
		return synthesis.GeneratedQuery{}, c.err
	}
	return c.query, nil
}

type countingExecutor struct {
	mu     sync.Mutex
	calls  int
	result query.Result
	err    error
}

func (c *countingExecutor) Execute(_ context.Context, verdict safety.Verdict) (query.Result, error) {
	if err := query.Approve(verdict); err != nil {
		return query.Result{}, err
	}
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return query.Result{}, c.err
	}
	return c.result, nil
}

func (c *countingExecutor) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
