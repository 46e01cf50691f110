package enrich

import (
	"strings"
	"time"
)

// RiskLevel is the discrete bucket derived from the fused risk score.
type RiskLevel string

const (
	LevelLow      RiskLevel = "low"
	LevelMedium   RiskLevel = "medium"
	LevelHigh     RiskLevel = "high"
	LevelCritical RiskLevel = "critical"
)

// VerdictSource says which component produced an intent verdict.
type VerdictSource string

const (
	// SourceRules means the deterministic rule engine produced the verdict.
	SourceRules VerdictSource = "rules"

	// SourceExternal means the external reasoner produced (or degraded to) the verdict.
	SourceExternal VerdictSource = "external"
)

// IntentUnknown is the neutral intent label used when no classification is available.
const IntentUnknown = "unknown"

// RawLogRequest is the enrichment request submitted by a client.
type RawLogRequest struct {
	RawLog    string         `json:"raw_log"`
	Source    string         `json:"source,omitempty"`
	EventType string         `json:"event_type,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NormalizedEvent is the fixed event schema returned by the ingestion collaborator.
type NormalizedEvent struct {
	Timestamp        time.Time      `json:"timestamp"`
	Source           string         `json:"source"`
	EventType        string         `json:"event_type"`
	Hostname         string         `json:"hostname,omitempty"`
	User             string         `json:"user,omitempty"`
	Message          string         `json:"message,omitempty"`
	RawLog           string         `json:"raw_log"`
	NormalizedFields map[string]any `json:"normalized_fields"`
}

// SemanticInput is the structured interpretation of a normalized event,
// produced by the semantic collaborator. Features is free-form but is
// expected to carry operation_type, resource_type, and a
// suspicious_indicators list; the accessors below tolerate absence.
type SemanticInput struct {
	Summary    string         `json:"semantic_summary"`
	Features   map[string]any `json:"semantic_features"`
	Confidence float64        `json:"confidence"`
}

// Indicators returns the suspicious_indicators feature as a string slice.
func (s *SemanticInput) Indicators() []string {
	raw, ok := s.Features["suspicious_indicators"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// OperationType returns the operation_type feature, or "" if absent.
func (s *SemanticInput) OperationType() string {
	return stringFeature(s.Features, "operation_type")
}

// ResourceType returns the resource_type feature, or "" if absent.
func (s *SemanticInput) ResourceType() string {
	return stringFeature(s.Features, "resource_type")
}

func stringFeature(features map[string]any, key string) string {
	if v, ok := features[key].(string); ok {
		return v
	}
	return ""
}

// IntentVerdict is the classified attacker intent for an event.
type IntentVerdict struct {
	Intent       string        `json:"intent"`
	Tactic       string        `json:"tactic"`
	Score        float64       `json:"score"`
	MatchedRules []string      `json:"matched_rules"`
	Source       VerdictSource `json:"source"`
	Explanation  string        `json:"explanation,omitempty"`

	// Candidates is the per-intent candidate table, populated only when
	// the caller asked for debug output.
	Candidates map[string]Candidate `json:"candidates,omitempty"`
}

// Candidate is an intent's best rule match plus its supporting rule IDs.
type Candidate struct {
	Score        float64  `json:"score"`
	Tactic       string   `json:"tactic"`
	MatchedRules []string `json:"matched_rules"`
}

// TechniqueVerdict is the MITRE ATT&CK style technique mapping returned
// by the technique-reasoning collaborator.
type TechniqueVerdict struct {
	TechniqueName     string   `json:"technique_name"`
	TechniqueID       string   `json:"technique_id"`
	Tactic            string   `json:"tactic"`
	KillChainPhase    string   `json:"kill_chain_phase"`
	Confidence        float64  `json:"confidence"`
	Explanation       string   `json:"explanation"`
	RelatedTechniques []string `json:"related_techniques"`
}

// RiskScore is the fused verdict over all available stage confidences.
type RiskScore struct {
	Score   float64           `json:"score"`
	Level   RiskLevel         `json:"level"`
	Factors map[string]string `json:"factors"`
}

// EnrichedAlert is the final per-request record handed to the analyst.
// Any stage past ingestion may be nil if it failed or was skipped; the
// Errors list describes every non-fatal failure in stage order.
type EnrichedAlert struct {
	CorrelationID string `json:"correlation_id"`
	RawLog        string `json:"raw_log"`
	Source        string `json:"source"`
	EventType     string `json:"event_type,omitempty"`

	Normalized *NormalizedEvent  `json:"normalized,omitempty"`
	Semantic   *SemanticInput    `json:"semantic,omitempty"`
	Intent     *IntentVerdict    `json:"intent,omitempty"`
	Technique  *TechniqueVerdict `json:"technique,omitempty"`

	Risk *RiskScore `json:"risk,omitempty"`

	Summary         string   `json:"summary,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`

	Errors []string `json:"errors"`
}

// IntentLabel returns the classified intent, or IntentUnknown when no
// verdict exists or the intent is empty.
func (a *EnrichedAlert) IntentLabel() string {
	if a.Intent == nil || strings.TrimSpace(a.Intent.Intent) == "" {
		return IntentUnknown
	}
	return a.Intent.Intent
}

// clamp bounds a score to [0,1]. Every score Sift emits passes through it.
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
