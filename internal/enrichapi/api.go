// Package enrichapi exposes the enrichment pipeline over HTTP.
package enrichapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/sift/internal/enrich"
)

// Enricher defines the pipeline operation the API needs.
type Enricher interface {
	Run(ctx context.Context, req *enrich.RawLogRequest, debug bool) (*enrich.EnrichedAlert, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger   log.Logger
	pipeline Enricher
}

// New creates a new API handler.
func New(logger log.Logger, pipeline Enricher) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if pipeline == nil {
		panic(xerrors.New("enrichment pipeline is required"))
	}
	return &API{
		logger:   logger,
		pipeline: pipeline,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/enrich", a.handleEnrich)
	})
}

func (a *API) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var req enrich.RawLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.RawLog) == "" {
		http.Error(w, `{"error":"raw_log is required"}`, http.StatusBadRequest)
		return
	}

	debug := false
	switch r.URL.Query().Get("debug") {
	case "1", "true":
		debug = true
	}

	alert, err := a.pipeline.Run(r.Context(), &req, debug)
	if err != nil {
		if errors.Is(err, enrich.ErrUpstream) {
			a.logger.Error(r.Context(), err, "enrichment aborted by ingestion failure")
			http.Error(w, `{"error":"log ingestion service failed or returned invalid data"}`, http.StatusBadGateway)
			return
		}
		a.logger.Error(r.Context(), err, "enrichment failed")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("sift.correlation_id", alert.CorrelationID),
		attribute.String("sift.risk.level", string(alert.Risk.Level)),
		attribute.Float64("sift.risk.score", alert.Risk.Score),
	)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(alert)
}
