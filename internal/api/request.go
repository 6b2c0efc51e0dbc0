package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopdesk/shopdesk/internal/command"
)

const maxEntityIDs = 16

func decodeBody(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	// Unknown top-level fields are ignored; UI and voice clients add their own.
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("unexpected data after request object")
	}
	return nil
}

// requiredText decodes a field that must be a non-blank JSON string.
func requiredText(raw json.RawMessage, field string) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", fmt.Errorf("%s is required", field)
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		return "", fmt.Errorf("%s must be a string", field)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s is required", field)
	}
	return text, nil
}

// parseContext reads the optional context object. current_page and
// timestamp are taken as given; entity_ids and any top-level scalar field
// named *_id become entity ids.
func parseContext(raw json.RawMessage, now time.Time) (command.Context, error) {
	ctx := command.Context{Timestamp: now.UTC()}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ctx, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return command.Context{}, fmt.Errorf("context must be an object")
	}

	ids := map[string]string{}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := fields[key]
		switch {
		case key == "current_page" || key == "currentPage":
			var page string
			if err := json.Unmarshal(value, &page); err != nil {
				return command.Context{}, fmt.Errorf("context.%s must be a string", key)
			}
			ctx.CurrentPage = strings.TrimSpace(page)
		case key == "timestamp":
			var ts time.Time
			if err := json.Unmarshal(value, &ts); err != nil {
				return command.Context{}, fmt.Errorf("context.timestamp must be an RFC 3339 time")
			}
			ctx.Timestamp = ts.UTC()
		case key == "entity_ids" || key == "entityIds":
			var nested map[string]json.RawMessage
			if err := json.Unmarshal(value, &nested); err != nil {
				return command.Context{}, fmt.Errorf("context.%s must be an object", key)
			}
			for name, idValue := range nested {
				id, ok := scalarString(idValue)
				if !ok {
					return command.Context{}, fmt.Errorf("context.%s.%s must be a string or number", key, name)
				}
				ids[name] = id
			}
		case strings.HasSuffix(key, "_id") || strings.HasSuffix(key, "Id"):
			if id, ok := scalarString(value); ok {
				ids[key] = id
			}
		}
	}
	if len(ids) > maxEntityIDs {
		return command.Context{}, fmt.Errorf("context carries %d entity ids, at most %d allowed", len(ids), maxEntityIDs)
	}
	if len(ids) > 0 {
		ctx.EntityIDs = ids
	}
	return ctx, nil
}

func scalarString(raw json.RawMessage) (string, bool) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return "", false
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed), true
	case json.Number:
		return typed.String(), true
	default:
		return "", false
	}
}
