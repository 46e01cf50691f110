package rules

import (
	"github.com/linnemanlabs/sift/internal/enrich"
)

// EngineResult is the outcome of scoring a semantic input against a
// rule snapshot: the best intent plus the full per-intent candidate
// table the classification policy hands to the external reasoner.
type EngineResult struct {
	BestIntent   string
	BestTactic   string
	BestScore    float64
	MatchedRules []string
	Candidates   map[string]enrich.Candidate
}

// Evaluate scores the semantic input against every rule in order and
// aggregates per-intent candidates. Rules are evaluated independently;
// for each intent the candidate score is the maximum over its matching
// rules, with ties resolved by rule order (lexical by ID, since Load
// sorts). If no rule scores above zero, BestIntent is empty and
// BestScore is 0.
//
// Evaluation is deterministic: identical input and snapshot always
// produce an identical result.
func Evaluate(in *enrich.SemanticInput, snapshot []Rule) EngineResult {
	result := EngineResult{
		BestTactic: "unknown",
		Candidates: make(map[string]enrich.Candidate),
	}

	for _, rule := range snapshot {
		score := evaluateRule(in, &rule)
		if score <= 0 {
			continue
		}

		cand, seen := result.Candidates[rule.Intent]
		if !seen || score > cand.Score {
			cand.Score = score
			cand.Tactic = rule.Tactic
		}
		cand.MatchedRules = append(cand.MatchedRules, rule.ID)
		result.Candidates[rule.Intent] = cand

		if score > result.BestScore {
			result.BestScore = score
			result.BestIntent = rule.Intent
			result.BestTactic = rule.Tactic
		}
	}

	if result.BestIntent != "" {
		result.MatchedRules = result.Candidates[result.BestIntent].MatchedRules
	}
	return result
}

// evaluateRule scores one rule against the input. Scoring is
// all-or-nothing: any present condition block that fails aborts the
// rule with 0, regardless of the other blocks. When every present
// block passes, the score is base weight plus the indicators bonus (if
// the input carries any suspicious indicators) plus the summary bonus
// (if a summary block was specified), clamped to [0,1].
func evaluateRule(in *enrich.SemanticInput, rule *Rule) float64 {
	cond := rule.Conditions

	if cond.Summary != nil && !cond.Summary.Match(in.Summary) {
		return 0
	}
	if cond.Indicators != nil && !cond.Indicators.Match(in.Indicators()) {
		return 0
	}
	if cond.OperationType != nil && !cond.OperationType.Match(in.OperationType()) {
		return 0
	}
	if cond.ResourceType != nil && !cond.ResourceType.Match(in.ResourceType()) {
		return 0
	}

	score := rule.Weights.Base
	if rule.Weights.IndicatorsBonus > 0 && len(in.Indicators()) > 0 {
		score += rule.Weights.IndicatorsBonus
	}
	if rule.Weights.SummaryBonus > 0 && cond.Summary != nil {
		score += rule.Weights.SummaryBonus
	}

	return clamp(score)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
