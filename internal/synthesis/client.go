package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
)

type Config struct {
	Timeout       time.Duration
	MaxConcurrent int
	// Retries is how many times a timeout or transport failure is retried.
	// At most one retry is allowed.
	Retries      int
	RetryBackoff time.Duration
}

// Client bounds every call to a Capability with a timeout and a shared
// concurrency limit, and turns the model's reply into a GeneratedQuery.
type Client struct {
	capability Capability
	sem        *semaphore.Weighted
	timeout    time.Duration
	retries    int
	backoff    time.Duration
	logger     *slog.Logger
}

func NewClient(capability Capability, cfg Config, logger *slog.Logger) (*Client, error) {
	if capability == nil {
		return nil, fmt.Errorf("capability is required")
	}
	if cfg.Retries < 0 || cfg.Retries > 1 {
		return nil, fmt.Errorf("retries must be 0 or 1")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		capability: capability,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		timeout:    cfg.Timeout,
		retries:    cfg.Retries,
		backoff:    cfg.RetryBackoff,
		logger:     logger,
	}, nil
}

func (c *Client) Synthesize(ctx context.Context, req Request) (GeneratedQuery, error) {
	started := time.Now()
	defer func() { synthesisDurationSeconds.Observe(time.Since(started).Seconds()) }()

	prompt, err := buildPrompt(req)
	if err != nil {
		return GeneratedQuery{}, &Error{Kind: KindMalformed, Err: err}
	}

	// Waiting for a slot counts against the same budget as one attempt.
	waitCtx, cancelWait := context.WithTimeout(ctx, c.timeout)
	err = c.sem.Acquire(waitCtx, 1)
	cancelWait()
	if err != nil {
		if ctx.Err() != nil {
			return GeneratedQuery{}, &Error{Kind: KindCanceled, Err: ctx.Err()}
		}
		synthesisAttemptsTotal.WithLabelValues(string(KindBusy)).Inc()
		return GeneratedQuery{}, &Error{Kind: KindBusy, Err: fmt.Errorf("no synthesis slot within %s", c.timeout)}
	}
	synthesisInFlight.Inc()
	defer func() {
		synthesisInFlight.Dec()
		c.sem.Release(1)
	}()

	for attempt := 0; ; attempt++ {
		out, err := c.attempt(ctx, prompt)
		if err == nil {
			synthesisAttemptsTotal.WithLabelValues("ok").Inc()
			return out, nil
		}
		var synthErr *Error
		if !errors.As(err, &synthErr) {
			synthErr = &Error{Kind: KindTransport, Err: err}
		}
		synthesisAttemptsTotal.WithLabelValues(string(synthErr.Kind)).Inc()
		if !synthErr.Retryable() || attempt >= c.retries {
			return GeneratedQuery{}, synthErr
		}

		c.logger.WarnContext(ctx, "retrying query synthesis",
			slog.String("kind", string(synthErr.Kind)),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", c.backoff),
			slog.Any("error", synthErr.Err),
		)
		timer := time.NewTimer(c.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return GeneratedQuery{}, &Error{Kind: KindCanceled, Err: ctx.Err()}
		case <-timer.C:
		}
	}
}

func (c *Client) attempt(ctx context.Context, prompt Prompt) (GeneratedQuery, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	completion, err := c.capability.Complete(attemptCtx, prompt)
	if err != nil {
		var classified *Error
		switch {
		case ctx.Err() != nil:
			return GeneratedQuery{}, &Error{Kind: KindCanceled, Err: ctx.Err()}
		case errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
			return GeneratedQuery{}, &Error{Kind: KindTimeout, Err: err}
		case errors.As(err, &classified):
			return GeneratedQuery{}, classified
		default:
			return GeneratedQuery{}, &Error{Kind: KindTransport, Err: err}
		}
	}

	out, err := parsePayload(completion.Text)
	if err != nil {
		return GeneratedQuery{}, &Error{Kind: KindMalformed, Err: err}
	}
	out.Provider = completion.Provider
	out.Model = completion.Model
	return out, nil
}
