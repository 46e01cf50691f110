package rules

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/linnemanlabs/go-core/log"
	"gopkg.in/yaml.v3"
)

// ruleDoc is the on-disk YAML shape of a single rule definition.
type ruleDoc struct {
	ID          string        `yaml:"id"`
	Intent      string        `yaml:"intent"`
	Tactic      string        `yaml:"tactic"`
	Description string        `yaml:"description"`
	Conditions  conditionsDoc `yaml:"conditions"`
	Weights     weightsDoc    `yaml:"weights"`
}

type conditionsDoc struct {
	Summary *struct {
		RegexAny []string `yaml:"regex_any"`
	} `yaml:"summary"`
	SuspiciousIndicators *struct {
		ContainsAny []string `yaml:"contains_any"`
		ContainsAll []string `yaml:"contains_all"`
	} `yaml:"suspicious_indicators"`
	OperationType *struct {
		AnyOf []string `yaml:"any_of"`
	} `yaml:"operation_type"`
	ResourceType *struct {
		ContainsAny []string `yaml:"contains_any"`
	} `yaml:"resource_type"`
}

type weightsDoc struct {
	Base            float64 `yaml:"base"`
	IndicatorsBonus float64 `yaml:"indicators_bonus"`
	SummaryBonus    float64 `yaml:"summary_bonus"`
}

// Load walks dir for .yml/.yaml files and parses every rule definition
// it finds. A file may hold a single rule or a list of rules. Malformed
// files and entries are logged and skipped; loading continues with the
// rest. The returned rules are sorted by ID so evaluation order (and
// therefore tie-breaking) does not depend on file enumeration order.
func Load(ctx context.Context, dir string, logger log.Logger) ([]Rule, error) {
	if logger == nil {
		logger = log.Nop()
	}

	var loaded []Rule

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yml" && ext != ".yaml" {
			return nil
		}

		data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from walking the configured rules dir
		if err != nil {
			logger.Warn(ctx, "failed to read rule file", "path", path, "error", err)
			return nil
		}

		loaded = append(loaded, parseFile(ctx, path, data, logger)...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk rules dir %s: %w", dir, err)
	}

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].ID < loaded[j].ID })

	logger.Info(ctx, "loaded rules", "dir", dir, "count", len(loaded))
	return loaded, nil
}

// parseFile decodes one YAML document that is either a rule or a list of rules.
func parseFile(ctx context.Context, path string, data []byte, logger log.Logger) []Rule {
	var docs []ruleDoc
	if err := yaml.Unmarshal(data, &docs); err != nil {
		var single ruleDoc
		if err2 := yaml.Unmarshal(data, &single); err2 != nil {
			logger.Warn(ctx, "skipping malformed rule file", "path", path, "error", err)
			return nil
		}
		docs = []ruleDoc{single}
	}

	out := make([]Rule, 0, len(docs))
	for i, doc := range docs {
		rule, err := compileRule(ctx, doc, logger)
		if err != nil {
			logger.Warn(ctx, "skipping invalid rule", "path", path, "index", i, "error", err)
			continue
		}
		out = append(out, rule)
	}
	return out
}

// compileRule validates a parsed document and compiles its regex
// patterns. An invalid pattern is dropped with a warning rather than
// failing the rule, so the remaining patterns still apply.
func compileRule(ctx context.Context, doc ruleDoc, logger log.Logger) (Rule, error) {
	if doc.ID == "" {
		return Rule{}, fmt.Errorf("missing id")
	}
	if doc.Intent == "" {
		return Rule{}, fmt.Errorf("rule %s: missing intent", doc.ID)
	}

	rule := Rule{
		ID:          doc.ID,
		Intent:      doc.Intent,
		Tactic:      normalizeTactic(doc.Tactic),
		Description: doc.Description,
		Weights: Weights{
			Base:            doc.Weights.Base,
			IndicatorsBonus: doc.Weights.IndicatorsBonus,
			SummaryBonus:    doc.Weights.SummaryBonus,
		},
	}

	if c := doc.Conditions.Summary; c != nil {
		cond := &SummaryCondition{}
		for _, raw := range c.RegexAny {
			re, err := regexp.Compile("(?i)" + raw)
			if err != nil {
				logger.Warn(ctx, "dropping invalid regex pattern", "rule", doc.ID, "pattern", raw, "error", err)
				continue
			}
			cond.Patterns = append(cond.Patterns, re)
		}
		rule.Conditions.Summary = cond
	}

	if c := doc.Conditions.SuspiciousIndicators; c != nil {
		rule.Conditions.Indicators = &IndicatorsCondition{
			ContainsAny: c.ContainsAny,
			ContainsAll: c.ContainsAll,
		}
	}

	if c := doc.Conditions.OperationType; c != nil {
		rule.Conditions.OperationType = &OperationTypeCondition{AnyOf: c.AnyOf}
	}

	if c := doc.Conditions.ResourceType; c != nil {
		rule.Conditions.ResourceType = &ResourceTypeCondition{ContainsAny: c.ContainsAny}
	}

	return rule, nil
}

// normalizeTactic lowercases and snake-cases a tactic label so rule
// authors can write "Credential Access" and "credential_access"
// interchangeably.
func normalizeTactic(tactic string) string {
	if tactic == "" {
		return "unknown"
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(tactic)), " ", "_")
}
