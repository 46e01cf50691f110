package collab

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/linnemanlabs/sift/internal/enrich"
)

// defaultRetrievalK is the number of candidate techniques the reasoner
// retrieves before re-ranking.
const defaultRetrievalK = 5

// TechniqueClient maps semantic features to an ATT&CK style technique
// via the technique-reasoning collaborator.
type TechniqueClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewTechniqueClient creates a client for the technique reasoner at endpoint.
func NewTechniqueClient(endpoint string, timeout time.Duration) *TechniqueClient {
	return &TechniqueClient{
		endpoint:   endpoint,
		httpClient: newHTTPClient(timeout),
	}
}

// Analyze submits the semantic analysis for technique mapping. intent
// is a contextual hint only; callers pass "unknown" when no intent
// verdict is available.
func (c *TechniqueClient) Analyze(ctx context.Context, in *enrich.SemanticInput, intent, correlationID string) (*enrich.TechniqueVerdict, error) {
	u, err := url.JoinPath(c.endpoint, "/analyze")
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	payload := map[string]any{
		"semantic_summary":  in.Summary,
		"semantic_features": in.Features,
		"intent":            intent,
		"k":                 defaultRetrievalK,
	}

	var out enrich.TechniqueVerdict
	if err := postJSON(ctx, c.httpClient, u, correlationID, payload, &out); err != nil {
		return nil, fmt.Errorf("technique: %w", err)
	}
	return &out, nil
}
