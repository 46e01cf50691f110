package collab

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/linnemanlabs/sift/internal/enrich"
)

// SemanticClient extracts structured features from a normalized event
// via the semantic-interpretation collaborator.
type SemanticClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewSemanticClient creates a client for the semantic service at endpoint.
func NewSemanticClient(endpoint string, timeout time.Duration) *SemanticClient {
	return &SemanticClient{
		endpoint:   endpoint,
		httpClient: newHTTPClient(timeout),
	}
}

// Interpret submits the normalized event for semantic interpretation.
func (c *SemanticClient) Interpret(ctx context.Context, event *enrich.NormalizedEvent, correlationID string) (*enrich.SemanticInput, error) {
	u, err := url.JoinPath(c.endpoint, "/interpret")
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	payload := map[string]any{
		"raw_log": event.RawLog,
		"fields":  event.NormalizedFields,
	}

	var out enrich.SemanticInput
	if err := postJSON(ctx, c.httpClient, u, correlationID, payload, &out); err != nil {
		return nil, fmt.Errorf("semantic: %w", err)
	}
	return &out, nil
}
