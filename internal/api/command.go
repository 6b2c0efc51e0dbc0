package api

import (
	"encoding/json"
	"net/http"

	"github.com/shopdesk/shopdesk/internal/command"
	"github.com/shopdesk/shopdesk/internal/config"
	"github.com/shopdesk/shopdesk/internal/gateway"
)

type commandRequest struct {
	Command json.RawMessage `json:"command"`
	Context json.RawMessage `json:"context"`
}

func handleCommand(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Gateway == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "GATEWAY_NOT_CONFIGURED", "command gateway is not configured", false, nil)
		return
	}

	var req commandRequest
	if err := decodeBody(w, r, cfg.HTTP.MaxBodyBytes, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid command request body", false, map[string]any{"details": err.Error()})
		return
	}
	text, err := requiredText(req.Command, "command")
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_COMMAND", err.Error(), false, nil)
		return
	}
	cmdCtx, err := parseContext(req.Context, deps.Clock())
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CONTEXT", err.Error(), false, nil)
		return
	}

	resp, err := deps.Gateway.Handle(r.Context(), command.New(text, cmdCtx))
	writeJSON(w, statusForStage(gateway.StageOf(err)), resp)
}

// statusForStage maps a failed pipeline stage to an HTTP status. Request-level
// failures are 400; anything past validation is 500.
func statusForStage(stage gateway.Stage) int {
	switch stage {
	case "":
		return http.StatusOK
	case gateway.StageSynthesis, gateway.StageSafety:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
