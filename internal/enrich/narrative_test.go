package enrich

import (
	"reflect"
	"strings"
	"testing"
)

func TestBuildSummary_FullContext(t *testing.T) {
	t.Parallel()

	got := BuildSummary(
		&NormalizedEvent{User: "svc-backup", Hostname: "fs01"},
		&SemanticInput{Summary: "process accessed lsass memory"},
		&IntentVerdict{Intent: "credential_dumping"},
		&TechniqueVerdict{TechniqueName: "OS Credential Dumping", TechniqueID: "T1003"},
		&RiskScore{Level: LevelCritical},
	)

	want := "[CRITICAL RISK] Potential credential dumping by user 'svc-backup' on host 'fs01' - process accessed lsass memory (T1003)"
	if got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
}

func TestBuildSummary_TechniqueHeadlineWhenIntentUnknown(t *testing.T) {
	t.Parallel()

	got := BuildSummary(
		nil,
		nil,
		&IntentVerdict{Intent: IntentUnknown},
		&TechniqueVerdict{TechniqueName: "Remote Services", TechniqueID: "T1021"},
		&RiskScore{Level: LevelMedium},
	)
	if !strings.Contains(got, "Potential Remote Services") {
		t.Errorf("summary = %q, want technique-derived headline", got)
	}
}

func TestBuildSummary_GenericFallback(t *testing.T) {
	t.Parallel()

	got := BuildSummary(nil, nil, nil, nil, &RiskScore{Level: LevelLow})
	if got != "[LOW RISK] Suspicious activity" {
		t.Errorf("summary = %q", got)
	}
}

func TestBuildSummary_Deterministic(t *testing.T) {
	t.Parallel()

	normalized := &NormalizedEvent{User: "u", Hostname: "h"}
	semantic := &SemanticInput{Summary: "s"}
	intent := &IntentVerdict{Intent: "lateral_movement"}
	risk := &RiskScore{Level: LevelHigh}

	first := BuildSummary(normalized, semantic, intent, nil, risk)
	for i := 0; i < 20; i++ {
		if got := BuildSummary(normalized, semantic, intent, nil, risk); got != first {
			t.Fatalf("summary diverged: %q vs %q", got, first)
		}
	}
}

func TestBuildRecommendations_HighRiskAndIntent(t *testing.T) {
	t.Parallel()

	got := BuildRecommendations(
		&IntentVerdict{Intent: "credential_dumping"},
		&TechniqueVerdict{TechniqueID: "T1003", TechniqueName: "OS Credential Dumping"},
		&RiskScore{Level: LevelCritical},
	)

	want := []string{
		"IMMEDIATE ACTION: Isolate affected host from network.",
		"Escalate to Tier 2 analyst.",
		"Check for LSASS access or Mimikatz usage.",
		"Reset passwords for affected users.",
		"Investigate usage of technique T1003 (OS Credential Dumping).",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("recommendations = %v, want %v", got, want)
	}
}

func TestBuildRecommendations_IntentSpecific(t *testing.T) {
	t.Parallel()

	cases := []struct {
		intent string
		want   string
	}{
		{"lateral_movement", "Review network logs for connections from source host."},
		{"command_and_control", "Block destination IP/Domain at firewall."},
	}
	for _, tc := range cases {
		got := BuildRecommendations(&IntentVerdict{Intent: tc.intent}, nil, &RiskScore{Level: LevelMedium})
		if len(got) != 1 || got[0] != tc.want {
			t.Errorf("%s recommendations = %v, want [%s]", tc.intent, got, tc.want)
		}
	}
}

func TestBuildRecommendations_GenericFallback(t *testing.T) {
	t.Parallel()

	got := BuildRecommendations(nil, nil, &RiskScore{Level: LevelLow})
	want := []string{"Review raw log and monitor for further suspicious activity."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("recommendations = %v, want %v", got, want)
	}
}
