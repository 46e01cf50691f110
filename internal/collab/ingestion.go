package collab

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/linnemanlabs/sift/internal/enrich"
)

// IngestionClient normalizes raw logs via the log-ingestion collaborator.
type IngestionClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewIngestionClient creates a client for the ingestion service at endpoint.
func NewIngestionClient(endpoint string, timeout time.Duration) *IngestionClient {
	return &IngestionClient{
		endpoint:   endpoint,
		httpClient: newHTTPClient(timeout),
	}
}

// Ingest submits the raw log for normalization.
func (c *IngestionClient) Ingest(ctx context.Context, req *enrich.RawLogRequest, correlationID string) (*enrich.NormalizedEvent, error) {
	u, err := url.JoinPath(c.endpoint, "/ingest")
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	payload := map[string]any{
		"raw_log":     req.RawLog,
		"fields":      req.Metadata,
		"source_type": req.Source,
	}

	var out enrich.NormalizedEvent
	if err := postJSON(ctx, c.httpClient, u, correlationID, payload, &out); err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}
	return &out, nil
}
