package gateway

import (
	"fmt"

	"github.com/shopdesk/shopdesk/internal/command"
)

const (
	ActionNavigate              = "navigate"
	ActionShowMaintenanceDialog = "show_maintenance_dialog"
	ActionCreateRepairOrder     = "create_repair_order"
	ActionDecodeVIN             = "decode_vin"
	ActionShowSearchResults     = "show_search_results"
)

// SearchErrorMessage is returned for every failed search regardless of the
// stage that failed.
const SearchErrorMessage = "Sorry, I couldn't complete that search. Try rephrasing it."

// Response is the only value returned across the gateway boundary.
type Response struct {
	Intent     string         `json:"intent"`
	Message    string         `json:"message"`
	Action     string         `json:"action,omitempty"`
	ActionData map[string]any `json:"action_data,omitempty"`
}

// Compose maps a terminal intent to a Response. A Search intent needs its
// outcome; a nil outcome is composed as a failed search.
func Compose(intent command.Intent, outcome *SearchOutcome) Response {
	switch in := intent.(type) {
	case command.Navigation:
		return Response{
			Intent:     in.Kind(),
			Message:    fmt.Sprintf("Opening %s", in.URL),
			Action:     ActionNavigate,
			ActionData: map[string]any{"url": in.URL},
		}
	case command.MaintenanceCheck:
		return Response{
			Intent:  in.Kind(),
			Message: "Checking which vehicles are due for maintenance",
			Action:  ActionShowMaintenanceDialog,
		}
	case command.CreateEntity:
		return Response{
			Intent:     in.Kind(),
			Message:    "Opening a new repair order",
			Action:     ActionCreateRepairOrder,
			ActionData: map[string]any{"entity": in.Entity},
		}
	case command.VinLookup:
		message := "Decoding VIN " + in.VIN
		if in.VIN == "" {
			message = "Scan or type the 17-character VIN to decode"
		}
		return Response{
			Intent:     in.Kind(),
			Message:    message,
			Action:     ActionDecodeVIN,
			ActionData: map[string]any{"vin": in.VIN},
		}
	case command.Search:
		if outcome == nil {
			return composeError()
		}
		return composeResults(in.Query, *outcome)
	case command.Unknown:
		return Response{Intent: in.Kind(), Message: in.Help}
	case command.Error:
		return composeError()
	default:
		return composeError()
	}
}

func composeResults(query string, outcome SearchOutcome) Response {
	noun := "results"
	if outcome.Count == 1 {
		noun = "result"
	}
	return Response{
		Intent:  command.KindSearch,
		Message: fmt.Sprintf("Found %d %s: %s", outcome.Count, noun, outcome.Interpretation),
		Action:  ActionShowSearchResults,
		ActionData: map[string]any{
			"results": outcome.Results,
			"entity":  outcome.Entity,
			"query":   query,
			"count":   outcome.Count,
		},
	}
}

func composeError() Response {
	return Response{Intent: command.KindError, Message: SearchErrorMessage}
}
