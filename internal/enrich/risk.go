package enrich

import "fmt"

// Stage weights for the fused risk score. Each term contributes only
// when its stage produced a result; absent stages contribute 0 with no
// renormalization.
const (
	semanticWeight  = 0.3
	intentWeight    = 0.4
	techniqueWeight = 0.2

	// criticalIntentBonus is added flat when the classified intent is
	// in the critical set.
	criticalIntentBonus = 0.1
)

// criticalIntents are the intents severe enough to bump the fused
// score regardless of individual confidences.
var criticalIntents = map[string]struct{}{
	"credential_dumping":    {},
	"ransomware_deployment": {},
	"data_exfiltration":     {},
}

// Level boundaries, closed on the left: [0,0.3) low, [0.3,0.6) medium,
// [0.6,0.8) high, [0.8,1.0] critical.
func levelFor(score float64) RiskLevel {
	switch {
	case score < 0.3:
		return LevelLow
	case score < 0.6:
		return LevelMedium
	case score < 0.8:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// ComputeRisk fuses whatever stage results exist into a single score
// and level. Factors records a human-readable justification per
// contributing term for audit and debugging. The function is pure and
// monotonically non-decreasing in each confidence input.
func ComputeRisk(semantic *SemanticInput, intent *IntentVerdict, technique *TechniqueVerdict) *RiskScore {
	score := 0.0
	factors := make(map[string]string)

	if semantic != nil {
		c := clamp(semantic.Confidence)
		score += semanticWeight * c
		factors["semantic"] = fmt.Sprintf("Confidence %.2f (+%.2f)", c, semanticWeight*c)
	}

	if intent != nil {
		s := clamp(intent.Score)
		score += intentWeight * s
		factors["intent"] = fmt.Sprintf("Intent '%s' score %.2f (+%.2f)", intent.Intent, s, intentWeight*s)

		if _, critical := criticalIntents[intent.Intent]; critical {
			score += criticalIntentBonus
			factors["intent_severity_bonus"] = "+0.1 (Critical Intent)"
		}
	}

	if technique != nil {
		c := clamp(technique.Confidence)
		score += techniqueWeight * c
		factors["technique"] = fmt.Sprintf("Technique %s confidence %.2f (+%.2f)", technique.TechniqueID, c, techniqueWeight*c)
	}

	score = clamp(score)

	return &RiskScore{
		Score:   score,
		Level:   levelFor(score),
		Factors: factors,
	}
}
