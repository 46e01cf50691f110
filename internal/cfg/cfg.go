package cfg

import (
	"errors"
	"flag"
	"fmt"
	"math"
)

// Config adds sift-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int

	IngestionEndpoint string
	SemanticEndpoint  string
	TechniqueEndpoint string
	CollabTimeoutSecs int

	RulesDir                  string
	IntentConfidenceThreshold float64
	IntentFallbackEnabled     bool

	ClaudeAPIKey string
	ClaudeModel  string

	SlackWebhookURL string
	APIToken        string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.IngestionEndpoint, "ingestion-endpoint", "", "log ingestion collaborator base URL (mandatory stage)")
	fs.StringVar(&c.SemanticEndpoint, "semantic-endpoint", "", "semantic interpreter collaborator base URL")
	fs.StringVar(&c.TechniqueEndpoint, "technique-endpoint", "", "technique reasoner collaborator base URL")
	fs.IntVar(&c.CollabTimeoutSecs, "collaborator-timeout-seconds", 5, "per-call timeout for collaborator requests (1..120)")
	fs.StringVar(&c.RulesDir, "rules-dir", "rules", "directory holding intent rule definitions (.yml/.yaml)")
	fs.Float64Var(&c.IntentConfidenceThreshold, "intent-confidence-threshold", 0.7, "rule confidence cutoff below which the external reasoner is consulted (0..1)")
	fs.BoolVar(&c.IntentFallbackEnabled, "intent-fallback-enabled", true, "consult the external reasoner when rule confidence is low")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude external reasoner (required when fallback is enabled)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model used by the external reasoner")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for high/critical alert notifications")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on API requests (empty = no auth)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// All three collaborators are part of the pipeline contract
	if c.IngestionEndpoint == "" {
		errs = append(errs, errors.New("INGESTION_ENDPOINT is required"))
	}
	if c.SemanticEndpoint == "" {
		errs = append(errs, errors.New("SEMANTIC_ENDPOINT is required"))
	}
	if c.TechniqueEndpoint == "" {
		errs = append(errs, errors.New("TECHNIQUE_ENDPOINT is required"))
	}

	if c.CollabTimeoutSecs <= 0 || c.CollabTimeoutSecs > 120 {
		errs = append(errs, fmt.Errorf("invalid COLLABORATOR_TIMEOUT_SECONDS %d (must be 1..120)", c.CollabTimeoutSecs))
	}

	if c.RulesDir == "" {
		errs = append(errs, errors.New("RULES_DIR is required"))
	}

	if math.IsNaN(c.IntentConfidenceThreshold) || c.IntentConfidenceThreshold < 0 || c.IntentConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("invalid INTENT_CONFIDENCE_THRESHOLD %v (must be 0..1)", c.IntentConfidenceThreshold))
	}

	// The external reasoner needs credentials only when it can be consulted
	if c.IntentFallbackEnabled {
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required when INTENT_FALLBACK_ENABLED is true"))
		}
		if c.ClaudeModel == "" {
			errs = append(errs, errors.New("CLAUDE_MODEL is required when INTENT_FALLBACK_ENABLED is true"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
