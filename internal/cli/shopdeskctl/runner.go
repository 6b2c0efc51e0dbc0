package shopdeskctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// usageError marks failures caused by how the tool was invoked.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

func (e usageError) Unwrap() error { return e.err }

var errUnsafe = errors.New("query rejected by safety policy")

// Run executes one shopdeskctl invocation and returns the process exit code:
// 0 on success, 1 on request or validation failure, 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	root := newRootCommand(defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var usage usageError
	if errors.As(err, &usage) {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		_, _ = fmt.Fprint(stderr, root.UsageString())
		return 2
	}
	if !errors.Is(err, errUnsafe) {
		_, _ = fmt.Fprintln(stderr, err)
	}
	return 1
}

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newRootCommand(defaults Options) *cobra.Command {
	api := &client{}
	var timeout time.Duration

	root := &cobra.Command{
		Use:           "shopdeskctl",
		Short:         "Operate a shopdesk gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageError{fmt.Errorf("unknown command %q", args[0])}
			}
			return nil
		},
		RunE: func(*cobra.Command, []string) error {
			return usageError{errors.New("a command is required")}
		},
		PersistentPreRun: func(*cobra.Command, []string) {
			api.baseURL = strings.TrimRight(strings.TrimSpace(api.baseURL), "/")
			api.apiKey = strings.TrimSpace(api.apiKey)
			api.http = defaults.HTTPClient
			if api.http == nil {
				api.http = &http.Client{Timeout: timeout}
			}
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
	root.PersistentFlags().StringVar(&api.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "gateway base URL")
	root.PersistentFlags().StringVar(&api.apiKey, "api-key", defaults.APIKey, "API key sent as X-API-Key")
	root.PersistentFlags().DurationVar(&timeout, "timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout")

	root.AddCommand(
		probeCommand(api, "health", "/v1/health", "Check gateway liveness"),
		probeCommand(api, "ready", "/v1/ready", "Check gateway readiness"),
		commandCommand(api),
		searchCommand(api),
		validateCommand(),
	)
	return root
}

func probeCommand(api *client, name, path, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return api.call(cmd.Context(), cmd.OutOrStdout(), http.MethodGet, path, nil)
		},
	}
}

func commandCommand(api *client) *cobra.Command {
	var page string
	var entities map[string]string
	cmd := &cobra.Command{
		Use:   "command <text>",
		Short: "Send a free-text command to POST /v1/command",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"command": args[0]}
			if requestContext := buildContext(page, entities); requestContext != nil {
				body["context"] = requestContext
			}
			return api.call(cmd.Context(), cmd.OutOrStdout(), http.MethodPost, "/v1/command", body)
		},
	}
	cmd.Flags().StringVar(&page, "page", "", "current page of the caller, e.g. /customers")
	cmd.Flags().StringToStringVar(&entities, "entity", nil, "entity id in scope, e.g. --entity customer_id=42")
	return cmd
}

func searchCommand(api *client) *cobra.Command {
	var page string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a natural-language search via POST /v1/search",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"query": args[0]}
			if requestContext := buildContext(page, nil); requestContext != nil {
				body["context"] = requestContext
			}
			return api.call(cmd.Context(), cmd.OutOrStdout(), http.MethodPost, "/v1/search", body)
		},
	}
	cmd.Flags().StringVar(&page, "page", "", "current page of the caller")
	return cmd
}

func buildContext(page string, entities map[string]string) map[string]any {
	out := map[string]any{}
	if strings.TrimSpace(page) != "" {
		out["current_page"] = strings.TrimSpace(page)
	}
	if len(entities) > 0 {
		out["entity_ids"] = entities
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (c *client) call(ctx context.Context, stdout io.Writer, method, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(responseBody)))
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return nil
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return nil
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
