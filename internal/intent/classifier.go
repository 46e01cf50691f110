// Package intent implements Sift's classification policy: trust the
// rule engine when it is confident, otherwise consult the external
// reasoner under a bounded retry budget and degrade to a neutral
// verdict when that fails too.
package intent

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/sift/internal/enrich"
	"github.com/linnemanlabs/sift/internal/rules"
)

const (
	// DefaultThreshold separates a confident rule verdict from one
	// that needs a second opinion.
	DefaultThreshold = 0.7

	// reasoner retry budget.
	reasonerAttempts = 3
)

// reasonerBackoff is the fixed delay between reasoner attempts. A var
// so tests can shrink it.
var reasonerBackoff = time.Second

// Reasoner is the external collaborator consulted when rule confidence
// is low. It receives the full candidate table as context.
type Reasoner interface {
	PickIntent(ctx context.Context, in *enrich.SemanticInput, candidates map[string]enrich.Candidate) (*enrich.IntentVerdict, error)
}

// Hooks lets the caller observe fallback outcomes, typically for metrics.
type Hooks struct {
	// OnFallback is called once per reasoner delegation with outcome
	// "success" or "degraded".
	OnFallback func(outcome string)
}

// Classifier decides, per request, whether the rule verdict stands or
// the external reasoner's opinion replaces it.
type Classifier struct {
	store     *rules.Store
	reasoner  Reasoner
	threshold float64
	fallback  bool
	logger    log.Logger
	hooks     Hooks
}

// NewClassifier creates a classifier over the given rule store.
// reasoner may be nil when fallback is disabled.
func NewClassifier(store *rules.Store, reasoner Reasoner, threshold float64, fallback bool, logger log.Logger, hooks Hooks) *Classifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Classifier{
		store:     store,
		reasoner:  reasoner,
		threshold: threshold,
		fallback:  fallback && reasoner != nil,
		logger:    logger,
		hooks:     hooks,
	}
}

// Classify produces an intent verdict for the semantic input. It never
// returns an error from the fallback path: when the reasoner fails
// repeatedly the verdict degrades to intent "unknown" with score 0.
// When debug is set the verdict carries the full candidate table.
func (c *Classifier) Classify(ctx context.Context, in *enrich.SemanticInput, debug bool) (*enrich.IntentVerdict, error) {
	er := rules.Evaluate(in, c.store.Snapshot())

	if er.BestScore >= c.threshold {
		c.logger.Info(ctx, "rule verdict confident", "intent", er.BestIntent, "score", er.BestScore)
		return ruleVerdict(er, "high confidence rule match", debug), nil
	}

	if c.fallback {
		c.logger.Info(ctx, "rule confidence below threshold, delegating to reasoner",
			"best_intent", er.BestIntent, "score", er.BestScore, "threshold", c.threshold)
		v := c.delegate(ctx, in, er)
		if debug {
			v.Candidates = er.Candidates
		}
		return v, nil
	}

	c.logger.Info(ctx, "rule confidence below threshold, fallback disabled",
		"best_intent", er.BestIntent, "score", er.BestScore)
	return ruleVerdict(er, "low confidence rule match (fallback disabled)", debug), nil
}

// delegate calls the external reasoner with bounded retries and a
// fixed backoff. Exhausting the budget yields the degraded verdict;
// errors never cross this boundary.
func (c *Classifier) delegate(ctx context.Context, in *enrich.SemanticInput, er rules.EngineResult) *enrich.IntentVerdict {
	for attempt := 1; attempt <= reasonerAttempts; attempt++ {
		v, err := c.reasoner.PickIntent(ctx, in, er.Candidates)
		if err == nil {
			v.Source = enrich.SourceExternal
			if c.hooks.OnFallback != nil {
				c.hooks.OnFallback("success")
			}
			return v
		}

		c.logger.Warn(ctx, "reasoner call failed", "attempt", attempt, "error", err)

		if attempt < reasonerAttempts {
			select {
			case <-time.After(reasonerBackoff):
			case <-ctx.Done():
				attempt = reasonerAttempts
			}
		}
	}

	if c.hooks.OnFallback != nil {
		c.hooks.OnFallback("degraded")
	}
	return &enrich.IntentVerdict{
		Intent:       enrich.IntentUnknown,
		Tactic:       "unknown",
		Score:        0,
		MatchedRules: []string{},
		Source:       enrich.SourceExternal,
		Explanation:  "fallback failed",
	}
}

// ruleVerdict shapes an engine result into a rules-sourced verdict.
func ruleVerdict(er rules.EngineResult, explanation string, debug bool) *enrich.IntentVerdict {
	intent := er.BestIntent
	if intent == "" {
		intent = enrich.IntentUnknown
	}
	v := &enrich.IntentVerdict{
		Intent:       intent,
		Tactic:       er.BestTactic,
		Score:        er.BestScore,
		MatchedRules: er.MatchedRules,
		Source:       enrich.SourceRules,
		Explanation:  explanation,
	}
	if v.MatchedRules == nil {
		v.MatchedRules = []string{}
	}
	if debug {
		v.Candidates = er.Candidates
	}
	return v
}
