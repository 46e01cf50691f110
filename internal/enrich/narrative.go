package enrich

import (
	"fmt"
	"strings"
)

// BuildSummary renders the 1-2 line analyst-facing summary: risk
// prefix, intent- or technique-derived headline, user/host context,
// the semantic summary, and the technique ID, concatenated in fixed
// order. Pure: identical inputs always yield the identical string.
func BuildSummary(normalized *NormalizedEvent, semantic *SemanticInput, intent *IntentVerdict, technique *TechniqueVerdict, risk *RiskScore) string {
	var parts []string

	if risk != nil {
		parts = append(parts, fmt.Sprintf("[%s RISK]", strings.ToUpper(string(risk.Level))))
	}

	switch {
	case intent != nil && intent.Intent != IntentUnknown:
		parts = append(parts, "Potential "+strings.ReplaceAll(intent.Intent, "_", " "))
	case technique != nil:
		parts = append(parts, "Potential "+technique.TechniqueName)
	default:
		parts = append(parts, "Suspicious activity")
	}

	if normalized != nil {
		if normalized.User != "" {
			parts = append(parts, fmt.Sprintf("by user '%s'", normalized.User))
		}
		if normalized.Hostname != "" {
			parts = append(parts, fmt.Sprintf("on host '%s'", normalized.Hostname))
		}
	}

	if semantic != nil {
		parts = append(parts, "- "+semantic.Summary)
	}

	if technique != nil {
		parts = append(parts, fmt.Sprintf("(%s)", technique.TechniqueID))
	}

	return strings.Join(parts, " ")
}

// BuildRecommendations produces the ordered SOC action list from a
// fixed rule table keyed by risk level and intent label, with a
// technique investigation line when one was identified and a generic
// fallback when nothing matched. Pure.
func BuildRecommendations(intent *IntentVerdict, technique *TechniqueVerdict, risk *RiskScore) []string {
	var recs []string

	if risk != nil && (risk.Level == LevelHigh || risk.Level == LevelCritical) {
		recs = append(recs,
			"IMMEDIATE ACTION: Isolate affected host from network.",
			"Escalate to Tier 2 analyst.",
		)
	}

	if intent != nil {
		switch intent.Intent {
		case "credential_dumping":
			recs = append(recs,
				"Check for LSASS access or Mimikatz usage.",
				"Reset passwords for affected users.",
			)
		case "lateral_movement":
			recs = append(recs, "Review network logs for connections from source host.")
		case "command_and_control":
			recs = append(recs, "Block destination IP/Domain at firewall.")
		}
	}

	if technique != nil {
		recs = append(recs, fmt.Sprintf("Investigate usage of technique %s (%s).", technique.TechniqueID, technique.TechniqueName))
	}

	if len(recs) == 0 {
		recs = append(recs, "Review raw log and monitor for further suspicious activity.")
	}

	return recs
}
