package sparql

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ritzau/sbom-resolver/pkg/logging"
	"github.com/ritzau/sbom-resolver/pkg/metrics"
)

// Options tunes retries
type Options struct {
	Attempts   int           // Including the first try; values below 1 mean 1
	Backoff    time.Duration // Initial retry interval
	MaxBackoff time.Duration // Upper bound for a single wait
	Metrics    *metrics.Metrics
}

// Client executes the parametrized queries with retry on transient failures.
// It holds no per-query state and is safe for concurrent use.
type Client struct {
	exec      Executor
	templates *Templates
	opts      Options
	log       *slog.Logger
}

// NewClient creates a query client
func NewClient(exec Executor, templates *Templates, opts Options) *Client {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.MaxBackoff < opts.Backoff {
		opts.MaxBackoff = opts.Backoff
	}
	return &Client{
		exec:      exec,
		templates: templates,
		opts:      opts,
		log:       logging.New("sparql"),
	}
}

// Execute renders and runs one template. Failures are returned as *QueryError.
func (c *Client) Execute(ctx context.Context, id TemplateID, params Params) ([]Binding, error) {
	query, err := c.templates.Render(id, params)
	if err != nil {
		return nil, &QueryError{Template: id, Err: err}
	}

	start := time.Now()
	attempts := 0

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.Backoff
	b.MaxInterval = c.opts.MaxBackoff

	bindings, err := backoff.Retry(ctx, func() ([]Binding, error) {
		attempts++
		c.log.Log(ctx, logging.LevelTrace, "sparql query", "template", id, "attempt", attempts, "query", query)

		data, err := c.exec.Query(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			if !IsTransient(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		bindings, err := DecodeResults(data)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return bindings, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.opts.Attempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.opts.Metrics.IncRetry(string(id))
			c.log.DebugContext(ctx, "retrying query", "template", id, "attempt", attempts, "wait", wait, "error", err)
		}),
	)
	elapsed := time.Since(start)

	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		outcome := metrics.OutcomeError
		if ctx.Err() != nil {
			outcome = metrics.OutcomeCancelled
		}
		c.opts.Metrics.ObserveQuery(string(id), outcome, elapsed)

		qe := &QueryError{Template: id, Attempts: attempts, Err: err}
		var status *StatusError
		if errors.As(err, &status) {
			qe.StatusCode = status.StatusCode
		}
		if outcome == metrics.OutcomeError {
			c.log.WarnContext(ctx, "query failed", "template", id, "attempts", attempts, "error", err)
		}
		return nil, qe
	}

	c.opts.Metrics.ObserveQuery(string(id), metrics.OutcomeSuccess, elapsed)
	c.log.DebugContext(ctx, "query completed", "template", id, "rows", len(bindings), "durationMs", elapsed.Milliseconds())
	return bindings, nil
}
