package synthesis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const systemPrompt = "You translate requests from an automotive repair shop into one read-only PostgreSQL query. " +
	"Reply with a single JSON object and nothing else: " +
	`{"sql": string, "parameters": array, "interpretation": string, "entity": string, "estimated_count": integer or null}. ` +
	"The sql must be exactly one SELECT statement (a WITH ... SELECT is fine), with no comments and no trailing text. " +
	"Put every user-supplied value in parameters and reference it as $1, $2, ... in order. " +
	"Always end the query with a LIMIT."

func buildPrompt(req Request) (Prompt, error) {
	tables, err := json.Marshal(req.Tables)
	if err != nil {
		return Prompt{}, fmt.Errorf("marshal table hints: %w", err)
	}
	maxLimit := req.MaxLimit
	if maxLimit <= 0 {
		maxLimit = 100
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Tables (JSON):\n%s\n\n", tables)
	if page := strings.TrimSpace(req.CurrentPage); page != "" {
		fmt.Fprintf(&b, "Current page: %s\n", page)
	}
	if len(req.EntityIDs) > 0 {
		keys := make([]string, 0, len(req.EntityIDs))
		for key := range req.EntityIDs {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		b.WriteString("Entities in focus:\n")
		for _, key := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", key, req.EntityIDs[key])
		}
	}
	fmt.Fprintf(&b, "\nRequest:\n%s\n\nRules:\n- Use only the listed tables.\n- LIMIT must be an integer no greater than %d.\n- entity names the main table searched.",
		strings.TrimSpace(req.Command), maxLimit)

	return Prompt{System: systemPrompt, User: b.String()}, nil
}
