package sparql

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	resultsMediaType = "application/sparql-results+json"
	maxResponseBytes = 64 << 20
	maxErrorBody     = 512
)

// Executor sends one rendered query to the triplestore and returns the raw result document
type Executor interface {
	Query(ctx context.Context, query string) ([]byte, error)
}

// HTTPExecutor talks to a SPARQL 1.1 protocol endpoint
type HTTPExecutor struct {
	Endpoint string
	Timeout  time.Duration // Per request; zero means no extra limit
	Client   *http.Client
}

// NewHTTPExecutor creates an executor for the given endpoint URL
func NewHTTPExecutor(endpoint string, timeout time.Duration) *HTTPExecutor {
	return &HTTPExecutor{
		Endpoint: endpoint,
		Timeout:  timeout,
		Client:   &http.Client{},
	}
}

// Query POSTs the query as a form and reads the JSON result document.
// It respects the provided context for cancellation.
func (e *HTTPExecutor) Query(ctx context.Context, query string) ([]byte, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	form := url.Values{"query": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", resultsMediaType)

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}
