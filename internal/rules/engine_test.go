package rules

import (
	"reflect"
	"regexp"
	"testing"

	"github.com/linnemanlabs/sift/internal/enrich"
)

func mustRegex(t *testing.T, patterns ...string) []*regexp.Regexp {
	t.Helper()
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile("(?i)"+p))
	}
	return out
}

func semanticInput(summary string, indicators []string) *enrich.SemanticInput {
	features := map[string]any{}
	if indicators != nil {
		features["suspicious_indicators"] = indicators
	}
	return &enrich.SemanticInput{
		Summary:    summary,
		Features:   features,
		Confidence: 0.9,
	}
}

func TestEvaluate_BaseAndBonuses(t *testing.T) {
	t.Parallel()

	rule := Rule{
		ID:     "exec-ps",
		Intent: "malicious_script_execution",
		Tactic: "execution",
		Conditions: Conditions{
			Summary:    &SummaryCondition{Patterns: mustRegex(t, "powershell")},
			Indicators: &IndicatorsCondition{ContainsAny: []string{"encoded_command"}},
		},
		Weights: Weights{Base: 0.6, IndicatorsBonus: 0.1, SummaryBonus: 0.1},
	}

	in := semanticInput("powershell encoded command execution", []string{"encoded_command"})
	got := Evaluate(in, []Rule{rule})

	if got.BestIntent != "malicious_script_execution" {
		t.Fatalf("BestIntent = %q, want malicious_script_execution", got.BestIntent)
	}
	// base 0.6 + indicators 0.1 + summary 0.1
	if got.BestScore != 0.8 {
		t.Errorf("BestScore = %v, want 0.8", got.BestScore)
	}
	if got.BestTactic != "execution" {
		t.Errorf("BestTactic = %q, want execution", got.BestTactic)
	}
	if !reflect.DeepEqual(got.MatchedRules, []string{"exec-ps"}) {
		t.Errorf("MatchedRules = %v, want [exec-ps]", got.MatchedRules)
	}
}

func TestEvaluate_AllOrNothing(t *testing.T) {
	t.Parallel()

	// Summary matches but the indicators block does not: the rule must
	// score zero, not base-without-bonus.
	rule := Rule{
		ID:     "exec-ps",
		Intent: "malicious_script_execution",
		Conditions: Conditions{
			Summary:    &SummaryCondition{Patterns: mustRegex(t, "powershell")},
			Indicators: &IndicatorsCondition{ContainsAny: []string{"encoded_command"}},
		},
		Weights: Weights{Base: 0.6, IndicatorsBonus: 0.1, SummaryBonus: 0.1},
	}

	in := semanticInput("powershell profile loaded", []string{"benign_marker"})
	got := Evaluate(in, []Rule{rule})

	if got.BestIntent != "" || got.BestScore != 0 {
		t.Errorf("Evaluate = (%q, %v), want no match", got.BestIntent, got.BestScore)
	}
	if len(got.Candidates) != 0 {
		t.Errorf("Candidates = %v, want empty", got.Candidates)
	}
}

func TestEvaluate_SummaryCaseInsensitive(t *testing.T) {
	t.Parallel()

	rule := Rule{
		ID:     "c2-beacon",
		Intent: "command_and_control",
		Conditions: Conditions{
			Summary: &SummaryCondition{Patterns: mustRegex(t, "beacon")},
		},
		Weights: Weights{Base: 0.5, SummaryBonus: 0.1},
	}

	got := Evaluate(semanticInput("Periodic BEACON traffic to rare host", nil), []Rule{rule})
	if got.BestIntent != "command_and_control" {
		t.Fatalf("BestIntent = %q, want command_and_control", got.BestIntent)
	}
	// summary bonus applies, indicators bonus absent (no indicators)
	if got.BestScore != 0.6 {
		t.Errorf("BestScore = %v, want 0.6", got.BestScore)
	}
}

func TestEvaluate_IndicatorsBonusRequiresIndicators(t *testing.T) {
	t.Parallel()

	rule := Rule{
		ID:     "r1",
		Intent: "lateral_movement",
		Conditions: Conditions{
			Summary: &SummaryCondition{Patterns: mustRegex(t, "psexec")},
		},
		Weights: Weights{Base: 0.5, IndicatorsBonus: 0.2, SummaryBonus: 0.1},
	}

	// No indicators on the input: the indicators bonus must not apply
	// even though the rule defines one.
	got := Evaluate(semanticInput("psexec remote service", nil), []Rule{rule})
	if got.BestScore != 0.6 {
		t.Errorf("BestScore = %v, want 0.6 (base + summary bonus only)", got.BestScore)
	}
}

func TestEvaluate_ScoreClamped(t *testing.T) {
	t.Parallel()

	rule := Rule{
		ID:     "r1",
		Intent: "ransomware_deployment",
		Conditions: Conditions{
			Summary: &SummaryCondition{Patterns: mustRegex(t, "ransom")},
		},
		Weights: Weights{Base: 0.9, IndicatorsBonus: 0.3, SummaryBonus: 0.3},
	}

	got := Evaluate(semanticInput("ransom note dropped", []string{"ransom_note"}), []Rule{rule})
	if got.BestScore != 1.0 {
		t.Errorf("BestScore = %v, want clamped 1.0", got.BestScore)
	}
}

func TestEvaluate_TieBreakByRuleOrder(t *testing.T) {
	t.Parallel()

	mk := func(id, intent string) Rule {
		return Rule{
			ID:     id,
			Intent: intent,
			Tactic: "execution",
			Conditions: Conditions{
				Summary: &SummaryCondition{Patterns: mustRegex(t, "cmd")},
			},
			Weights: Weights{Base: 0.5},
		}
	}

	// Load sorts by ID, so the snapshot arrives in lexical order and the
	// first equal-scoring rule wins.
	snapshot := []Rule{mk("a-first", "intent_a"), mk("b-second", "intent_b")}

	got := Evaluate(semanticInput("cmd launched", nil), snapshot)
	if got.BestIntent != "intent_a" {
		t.Errorf("BestIntent = %q, want intent_a (first in rule order)", got.BestIntent)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	t.Parallel()

	snapshot := []Rule{
		{
			ID: "r1", Intent: "a",
			Conditions: Conditions{Summary: &SummaryCondition{Patterns: mustRegex(t, "x")}},
			Weights:    Weights{Base: 0.4},
		},
		{
			ID: "r2", Intent: "b",
			Conditions: Conditions{Summary: &SummaryCondition{Patterns: mustRegex(t, "x")}},
			Weights:    Weights{Base: 0.6},
		},
	}
	in := semanticInput("x marks the spot", []string{"i1"})

	first := Evaluate(in, snapshot)
	for i := 0; i < 50; i++ {
		if got := Evaluate(in, snapshot); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d diverged: %+v vs %+v", i, got, first)
		}
	}
}

func TestEvaluate_CandidatesPerIntent(t *testing.T) {
	t.Parallel()

	snapshot := []Rule{
		{
			ID: "a-weak", Intent: "lateral_movement", Tactic: "lateral_movement",
			Conditions: Conditions{Summary: &SummaryCondition{Patterns: mustRegex(t, "remote")}},
			Weights:    Weights{Base: 0.3},
		},
		{
			ID: "b-strong", Intent: "lateral_movement", Tactic: "lateral_movement",
			Conditions: Conditions{Summary: &SummaryCondition{Patterns: mustRegex(t, "psexec")}},
			Weights:    Weights{Base: 0.6},
		},
		{
			ID: "c-other", Intent: "command_and_control", Tactic: "command_and_control",
			Conditions: Conditions{Summary: &SummaryCondition{Patterns: mustRegex(t, "remote")}},
			Weights:    Weights{Base: 0.4},
		},
	}

	got := Evaluate(semanticInput("psexec remote service created", nil), snapshot)

	if len(got.Candidates) != 2 {
		t.Fatalf("len(Candidates) = %d, want 2", len(got.Candidates))
	}
	lm := got.Candidates["lateral_movement"]
	if lm.Score != 0.6 {
		t.Errorf("lateral_movement score = %v, want max 0.6", lm.Score)
	}
	if !reflect.DeepEqual(lm.MatchedRules, []string{"a-weak", "b-strong"}) {
		t.Errorf("lateral_movement rules = %v, want both", lm.MatchedRules)
	}
	if got.BestIntent != "lateral_movement" {
		t.Errorf("BestIntent = %q, want lateral_movement", got.BestIntent)
	}
	if !reflect.DeepEqual(got.MatchedRules, []string{"a-weak", "b-strong"}) {
		t.Errorf("MatchedRules = %v, want best intent's rule IDs", got.MatchedRules)
	}
}

func TestEvaluate_NoRules(t *testing.T) {
	t.Parallel()

	got := Evaluate(semanticInput("anything", nil), nil)
	if got.BestIntent != "" || got.BestScore != 0 {
		t.Errorf("Evaluate over empty snapshot = (%q, %v), want empty", got.BestIntent, got.BestScore)
	}
	if got.BestTactic != "unknown" {
		t.Errorf("BestTactic = %q, want unknown", got.BestTactic)
	}
}

func TestIndicatorsCondition_ContainsAll(t *testing.T) {
	t.Parallel()

	cond := &IndicatorsCondition{
		ContainsAny: []string{"beaconing", "rare_ja3"},
		ContainsAll: []string{"outbound"},
	}

	if !cond.Match([]string{"Beaconing", "outbound"}) {
		t.Error("expected match with any-hit and all present (case-insensitive)")
	}
	if cond.Match([]string{"beaconing"}) {
		t.Error("expected no match when contains_all member missing")
	}
	if cond.Match([]string{"outbound"}) {
		t.Error("expected no match when contains_any has no hit")
	}
}

func TestOperationAndResourceConditions(t *testing.T) {
	t.Parallel()

	rule := Rule{
		ID:     "exfil",
		Intent: "data_exfiltration",
		Conditions: Conditions{
			OperationType: &OperationTypeCondition{AnyOf: []string{"network_connect", "file_copy"}},
			ResourceType:  &ResourceTypeCondition{ContainsAny: []string{"bucket"}},
		},
		Weights: Weights{Base: 0.65},
	}

	in := &enrich.SemanticInput{
		Summary: "large upload",
		Features: map[string]any{
			"operation_type": "network_connect",
			"resource_type":  "s3_bucket",
		},
	}
	if got := Evaluate(in, []Rule{rule}); got.BestIntent != "data_exfiltration" {
		t.Errorf("BestIntent = %q, want data_exfiltration", got.BestIntent)
	}

	in.Features["operation_type"] = "process_create"
	if got := Evaluate(in, []Rule{rule}); got.BestIntent != "" {
		t.Errorf("BestIntent = %q, want no match when operation type excluded", got.BestIntent)
	}
}
