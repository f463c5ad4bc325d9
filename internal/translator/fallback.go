package translator

import (
	"strings"

	"github.com/subauto/subauto/internal/llm"
)

// FallbackConfig controls which model a batch is resubmitted to after a
// content policy refusal.
type FallbackConfig struct {
	// FallbackModel, when set, is always tried first.
	FallbackModel string
	// ExcludeNameContains disqualifies models whose name contains any of
	// these substrings.
	ExcludeNameContains []string
	// PreferNameContains orders the remaining candidates by vendor.
	PreferNameContains []string
}

func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		ExcludeNameContains: []string{"bedrock"},
		PreferNameContains:  []string{"openai", "google", "meta"},
	}
}

// FallbackRouter picks an alternative model after a policy violation. A
// model that has refused once is never picked again within the job.
type FallbackRouter struct {
	config   FallbackConfig
	violated map[string]struct{}
}

func NewFallbackRouter(config FallbackConfig) *FallbackRouter {
	return &FallbackRouter{
		config:   config,
		violated: make(map[string]struct{}),
	}
}

func (r *FallbackRouter) MarkViolated(model string) {
	r.violated[model] = struct{}{}
}

// Pick returns the next model to try: the configured fallback if usable,
// otherwise a listed model from a preferred vendor, otherwise any remaining
// candidate. Reports false when every option is exhausted.
func (r *FallbackRouter) Pick(available []llm.ModelInfo, current string) (string, bool) {
	if fb := r.config.FallbackModel; fb != "" && fb != current && !r.isViolated(fb) {
		return fb, true
	}

	candidates := make([]string, 0, len(available))
	for _, m := range available {
		if m.Name == current || r.isViolated(m.Name) || r.isExcluded(m.Name) {
			continue
		}
		candidates = append(candidates, m.Name)
	}

	for _, prefer := range r.config.PreferNameContains {
		for _, name := range candidates {
			if strings.Contains(strings.ToLower(name), prefer) {
				return name, true
			}
		}
	}

	if len(candidates) > 0 {
		return candidates[0], true
	}
	return "", false
}

func (r *FallbackRouter) isViolated(name string) bool {
	_, ok := r.violated[name]
	return ok
}

func (r *FallbackRouter) isExcluded(name string) bool {
	lower := strings.ToLower(name)
	for _, ex := range r.config.ExcludeNameContains {
		if strings.Contains(lower, ex) {
			return true
		}
	}
	return false
}
