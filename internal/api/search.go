package api

import (
	"encoding/json"
	"net/http"

	"github.com/shopdesk/shopdesk/internal/command"
	"github.com/shopdesk/shopdesk/internal/config"
	"github.com/shopdesk/shopdesk/internal/gateway"
)

type searchRequest struct {
	Query   json.RawMessage `json:"query"`
	Context json.RawMessage `json:"context"`
}

type searchResponse struct {
	Success        bool             `json:"success"`
	Interpretation string           `json:"interpretation"`
	Entity         string           `json:"entity"`
	Results        []map[string]any `json:"results"`
	SQL            string           `json:"sql"`
	Count          int              `json:"count"`
}

type searchFailure struct {
	Success        bool   `json:"success"`
	Error          string `json:"error"`
	Interpretation string `json:"interpretation"`
}

func handleSearch(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Gateway == nil {
		writeJSON(w, http.StatusNotImplemented, searchFailure{Error: "search is not configured"})
		return
	}

	var req searchRequest
	if err := decodeBody(w, r, cfg.HTTP.MaxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, searchFailure{Error: "invalid search request body"})
		return
	}
	text, err := requiredText(req.Query, "query")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, searchFailure{Error: err.Error()})
		return
	}
	cmdCtx, err := parseContext(req.Context, deps.Clock())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, searchFailure{Error: err.Error()})
		return
	}

	outcome, err := deps.Gateway.Search(r.Context(), command.New(text, cmdCtx))
	if err != nil {
		writeJSON(w, statusForStage(gateway.StageOf(err)), searchFailure{
			Error:          gateway.SearchErrorMessage,
			Interpretation: outcome.Interpretation,
		})
		return
	}

	results := outcome.Results
	if results == nil {
		results = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Success:        true,
		Interpretation: outcome.Interpretation,
		Entity:         outcome.Entity,
		Results:        results,
		SQL:            outcome.SQL,
		Count:          outcome.Count,
	})
}
