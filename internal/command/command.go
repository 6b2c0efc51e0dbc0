package command

import (
	"strings"
	"time"
)

// Context is what the caller knows about where the command was issued.
type Context struct {
	CurrentPage string            `json:"current_page,omitempty"`
	EntityIDs   map[string]string `json:"entity_ids,omitempty"`
	Timestamp   time.Time         `json:"timestamp,omitzero"`
}

func (c Context) clone() Context {
	out := Context{CurrentPage: c.CurrentPage, Timestamp: c.Timestamp}
	if len(c.EntityIDs) > 0 {
		out.EntityIDs = make(map[string]string, len(c.EntityIDs))
		for key, value := range c.EntityIDs {
			out.EntityIDs[key] = value
		}
	}
	return out
}

// Command is a single free-text request. The zero value is an empty command;
// values are immutable once built with New.
type Command struct {
	raw        string
	normalized string
	ctx        Context
}

func New(raw string, ctx Context) Command {
	return Command{
		raw:        raw,
		normalized: strings.ToLower(strings.TrimSpace(raw)),
		ctx:        ctx.clone(),
	}
}

func (c Command) Raw() string {
	return c.raw
}

// Normalized is the lowercased, trimmed text the classifier matches against.
func (c Command) Normalized() string {
	return c.normalized
}

func (c Command) Context() Context {
	return c.ctx.clone()
}
