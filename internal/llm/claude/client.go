// Package claude implements the external intent reasoner on top of the
// Anthropic API. It is consulted by the classification policy when rule
// confidence is low, receiving the candidate table as context and
// answering with a single JSON verdict.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/sift/internal/enrich"
)

const (
	responseTokens = 1024

	systemPrompt = `You are a cybersecurity SOC assistant that classifies high-level attack intent from semantic log analysis.
Answer ONLY with a JSON object of the form {"intent": "...", "tactic": "...", "score": 0.0, "explanation": "..."}.`
)

// Client calls the Anthropic API to pick an intent. It implements
// intent.Reasoner.
type Client struct {
	client anthropic.Client
	model  string
}

// New creates a new Claude-backed reasoner with the given API key and model.
func New(apiKey, model string) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// PickIntent asks the model to choose the most likely intent given the
// semantic input and the rule engine's candidate table.
func (c *Client) PickIntent(ctx context.Context, in *enrich.SemanticInput, candidates map[string]enrich.Candidate) (*enrich.IntentVerdict, error) {
	prompt, err := buildPrompt(in, candidates)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: responseTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic call: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return parseVerdict(text.String())
}

// candidateSummary is the slimmed candidate view sent to the model.
type candidateSummary struct {
	Intent    string  `json:"intent"`
	Tactic    string  `json:"tactic"`
	RuleScore float64 `json:"rule_score"`
}

// buildPrompt renders the user message: the semantic analysis plus the
// rule-based candidates, sorted by intent so the prompt is stable for
// identical inputs.
func buildPrompt(in *enrich.SemanticInput, candidates map[string]enrich.Candidate) (string, error) {
	summaries := make([]candidateSummary, 0, len(candidates))
	for intent, cand := range candidates {
		summaries = append(summaries, candidateSummary{
			Intent:    intent,
			Tactic:    cand.Tactic,
			RuleScore: cand.Score,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Intent < summaries[j].Intent })

	payload := map[string]any{
		"semantic_summary":      in.Summary,
		"semantic_features":     in.Features,
		"rule_based_candidates": summaries,
		"instruction": "Analyze the semantic summary and features. Choose the most likely MITRE ATT&CK intent and tactic. " +
			"If the rule-based candidates are good, select the best one. If they are wrong, propose a better one. " +
			"Provide a confidence score (0.0-1.0).",
	}

	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// parseVerdict extracts the JSON object from the model's reply. The
// model is instructed to answer with bare JSON but replies are
// occasionally fenced, so parsing tolerates surrounding text.
func parseVerdict(text string) (*enrich.IntentVerdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in reasoner reply")
	}

	var parsed struct {
		Intent      string  `json:"intent"`
		Tactic      string  `json:"tactic"`
		Score       float64 `json:"score"`
		Explanation string  `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("parse reasoner reply: %w", err)
	}

	if parsed.Intent == "" {
		parsed.Intent = enrich.IntentUnknown
	}
	if parsed.Tactic == "" {
		parsed.Tactic = "unknown"
	}
	if parsed.Score < 0 {
		parsed.Score = 0
	}
	if parsed.Score > 1 {
		parsed.Score = 1
	}

	return &enrich.IntentVerdict{
		Intent:       parsed.Intent,
		Tactic:       parsed.Tactic,
		Score:        parsed.Score,
		MatchedRules: []string{},
		Source:       enrich.SourceExternal,
		Explanation:  parsed.Explanation,
	}, nil
}
