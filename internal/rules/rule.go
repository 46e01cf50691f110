// Package rules implements Sift's deterministic intent-scoring engine:
// a declarative rule model, a YAML loader, an atomically swappable
// snapshot store, and the evaluator that scores semantic input against
// every loaded rule.
package rules

import (
	"regexp"
	"strings"
)

// Rule is one declarative condition-plus-weight definition. Rules are
// immutable after load; a reload publishes a fresh snapshot instead of
// mutating rules in place.
type Rule struct {
	ID          string
	Intent      string
	Tactic      string
	Description string
	Conditions  Conditions
	Weights     Weights
}

// Weights control how a matching rule scores. The final rule score is
// base plus any applicable bonuses, clamped to [0,1].
type Weights struct {
	Base            float64
	IndicatorsBonus float64
	SummaryBonus    float64
}

// Conditions is the closed set of condition blocks a rule may carry.
// A nil block is absent; every present block must pass for the rule to
// score at all.
type Conditions struct {
	Summary       *SummaryCondition
	Indicators    *IndicatorsCondition
	OperationType *OperationTypeCondition
	ResourceType  *ResourceTypeCondition
}

// SummaryCondition passes when at least one of its patterns matches the
// semantic summary, case-insensitively. Patterns are compiled at load;
// an invalid pattern is dropped there with a warning, so a condition
// can end up with zero patterns and then never matches.
type SummaryCondition struct {
	Patterns []*regexp.Regexp
}

// Match reports whether any pattern matches the summary.
func (c *SummaryCondition) Match(summary string) bool {
	for _, p := range c.Patterns {
		if p.MatchString(summary) {
			return true
		}
	}
	return false
}

// IndicatorsCondition tests the input's suspicious-indicator set.
// ContainsAny requires a non-empty intersection, ContainsAll full
// inclusion; both are case-insensitive and may be combined.
type IndicatorsCondition struct {
	ContainsAny []string
	ContainsAll []string
}

// Match reports whether the given indicators satisfy the condition.
func (c *IndicatorsCondition) Match(indicators []string) bool {
	have := make(map[string]struct{}, len(indicators))
	for _, in := range indicators {
		have[strings.ToLower(in)] = struct{}{}
	}

	if len(c.ContainsAny) > 0 {
		hit := false
		for _, want := range c.ContainsAny {
			if _, ok := have[strings.ToLower(want)]; ok {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}

	for _, want := range c.ContainsAll {
		if _, ok := have[strings.ToLower(want)]; !ok {
			return false
		}
	}
	return true
}

// OperationTypeCondition passes when the input's operation type is a
// member of the allowed set.
type OperationTypeCondition struct {
	AnyOf []string
}

// Match reports whether op is one of the allowed operation types.
func (c *OperationTypeCondition) Match(op string) bool {
	for _, allowed := range c.AnyOf {
		if op == allowed {
			return true
		}
	}
	return false
}

// ResourceTypeCondition passes when the input's resource-type string
// contains at least one of the allowed substrings.
type ResourceTypeCondition struct {
	ContainsAny []string
}

// Match reports whether res contains any allowed substring.
func (c *ResourceTypeCondition) Match(res string) bool {
	for _, sub := range c.ContainsAny {
		if sub != "" && strings.Contains(res, sub) {
			return true
		}
	}
	return false
}
