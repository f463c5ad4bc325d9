package llm

import (
	"fmt"
	"strings"
)

// Provider is the capability every model backend implements. The pipeline
// consumes nothing beyond these three operations; errors are inspected by
// message, except for policy violations which carry their own type.
type Provider interface {
	ValidateConnection() (bool, string)
	ListModels() ([]ModelInfo, error)
	GenerateContent(modelName, prompt string) (string, error)
}

// ModelInfo describes one model offered by a provider.
type ModelInfo struct {
	Name             string
	DisplayName      string
	Provider         string
	Description      string
	InputTokenLimit  int
	OutputTokenLimit int
	PromptPrice      float64 // USD per 1M prompt tokens
	CompletionPrice  float64 // USD per 1M completion tokens
}

// ShortName strips provider path prefixes for display.
func (m ModelInfo) ShortName() string {
	return strings.TrimPrefix(m.Name, "models/")
}

// Cost estimates the USD cost of a request at this model's pricing.
func (m ModelInfo) Cost(promptTokens, completionTokens int) float64 {
	promptCost := float64(promptTokens) / 1_000_000 * m.PromptPrice
	completionCost := float64(completionTokens) / 1_000_000 * m.CompletionPrice
	return promptCost + completionCost
}

// PolicyViolationError signals that the provider refused a batch on content
// policy grounds. It is never retried; the fallback router handles it.
type PolicyViolationError struct {
	Model   string
	Message string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy violation from model %s: %s", e.Model, e.Message)
}

// Refusal phrases providers embed in moderation errors. Heuristic, like the
// transient-error keywords in the retry engine.
var policyViolationMarkers = []string{
	"content policy",
	"content_policy",
	"policy violation",
	"moderation",
	"flagged",
	"safety system",
	"refused to respond",
}

func looksLikePolicyViolation(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range policyViolationMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
