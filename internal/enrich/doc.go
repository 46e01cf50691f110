// Package enrich provides the core of Sift's log enrichment pipeline.
// It defines the domain models, the Pipeline (stage orchestration under
// partial-failure tolerance), the risk aggregator, and the narrative
// builder that renders analyst-facing summaries and recommendations.
package enrich
