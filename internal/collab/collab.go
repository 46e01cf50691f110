// Package collab holds the HTTP clients for Sift's enrichment
// collaborators: log ingestion, semantic interpretation, and technique
// reasoning. Every call carries the request's correlation ID, runs
// under a single per-call timeout, and maps timeouts, network errors,
// and non-2xx responses to an error the pipeline records without
// aborting (ingestion excepted, which the pipeline treats as fatal).
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CorrelationHeader carries the per-request correlation ID to collaborators.
const CorrelationHeader = "X-Correlation-ID"

// maxResponseSize bounds collaborator response bodies.
const maxResponseSize = 4 * 1024 * 1024

// ErrUnavailable marks a collaborator timeout, network failure, or
// non-2xx response. Callers use errors.Is to distinguish it from
// decoding failures.
var ErrUnavailable = errors.New("collaborator unavailable")

// postJSON sends payload to url and decodes the JSON response into out.
// The context deadline (set by the caller from the configured per-call
// timeout) bounds the whole exchange.
func postJSON(ctx context.Context, client *http.Client, url, correlationID string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if correlationID != "" {
		req.Header.Set(CorrelationHeader, correlationID)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnavailable, url, resp.StatusCode, truncate(respBody, 256))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// newHTTPClient builds the client used by all collaborator calls. The
// transport-level timeout is a backstop; per-call deadlines come from
// the request context.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
