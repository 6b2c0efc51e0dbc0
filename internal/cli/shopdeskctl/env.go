package shopdeskctl

import (
	"fmt"
	"strings"
	"time"
)

// OptionsFromEnv reads SHOPDESK_API_URL, SHOPDESK_API_KEY and
// SHOPDESK_CLI_TIMEOUT. Flags given on the command line still win.
func OptionsFromEnv(lookup func(string) (string, bool)) (Options, error) {
	value := func(key string) string {
		raw, _ := lookup(key)
		return strings.TrimSpace(raw)
	}
	opts := Options{
		BaseURL: value("SHOPDESK_API_URL"),
		APIKey:  value("SHOPDESK_API_KEY"),
	}
	if raw := value("SHOPDESK_CLI_TIMEOUT"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil || timeout <= 0 {
			return Options{}, fmt.Errorf("invalid SHOPDESK_CLI_TIMEOUT %q", raw)
		}
		opts.Timeout = timeout
	}
	return opts, nil
}
