package eval

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/adaptive-prompt/internal/catalog"
	"github.com/danielpatrickdp/adaptive-prompt/internal/composer"
)

// #region eval-harness

// EvalHarness checks a composition result against the engine's invariants.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run validates res, which must have been composed against cat.
// Each check yields one metric; the value is the number of violations unless noted.
func (h *EvalHarness) Run(res composer.Result, cat *catalog.Catalog) EvalResult {
	var metrics []EvalMetric
	var failReasons []string

	check := func(name string, value float64, pass bool, reason string) {
		metrics = append(metrics, EvalMetric{Name: name, Value: value, Pass: pass})
		if !pass {
			failReasons = append(failReasons, reason)
		}
	}

	// 1. One candidate per catalog module, in catalog order
	mods := cat.Modules()
	coverage := 0
	for i, m := range mods {
		if i >= len(res.Debug.Candidates) || res.Debug.Candidates[i].ModuleID != m.ID {
			coverage++
		}
	}
	coverage += max(0, len(res.Debug.Candidates)-len(mods))
	check("candidate_coverage", float64(coverage), coverage == 0,
		fmt.Sprintf("%d candidates out of catalog order", coverage))

	// 2. Selected modules are activated candidates with unique dedupe keys
	activated := make(map[string]bool, len(res.Debug.Candidates))
	for _, c := range res.Debug.Candidates {
		activated[c.ModuleID] = c.Activated
	}
	keys := make(map[string]bool)
	var inactive, dupes int
	for _, id := range res.Debug.SelectedModules {
		if !activated[id] {
			inactive++
		}
		m, ok := cat.Get(id)
		if !ok {
			inactive++
			continue
		}
		if keys[m.DedupeKey] {
			dupes++
		}
		keys[m.DedupeKey] = true
	}
	check("selected_activated", float64(inactive), inactive == 0,
		fmt.Sprintf("%d selected modules not activated", inactive))
	check("dedupe_unique", float64(dupes), dupes == 0,
		fmt.Sprintf("%d duplicate dedupe keys", dupes))

	// 3. Rendered modules ascend by order inside each placement
	disorder := 0
	last := make(map[catalog.Placement]int)
	seen := make(map[catalog.Placement]bool)
	bucket := 0
	for _, m := range res.Modules {
		if seen[m.Placement] && m.Order < last[m.Placement] {
			disorder++
		}
		seen[m.Placement] = true
		last[m.Placement] = m.Order
		idx := placementIndex(m.Placement)
		if idx < bucket {
			disorder++
		}
		bucket = idx
	}
	check("bucket_order", float64(disorder), disorder == 0,
		fmt.Sprintf("%d modules out of order", disorder))

	// 4. No placeholder survives rendering
	leftovers := strings.Count(res.Prompt, "{{DEC")
	check("leftover_tokens", float64(leftovers), leftovers == 0,
		fmt.Sprintf("%d unrendered placeholders", leftovers))

	// 5. Scores stay in [0,1] and decay never raises a score
	bad := 0
	for _, c := range res.Debug.Candidates {
		if c.Score != nil && (*c.Score < 0 || *c.Score > 1) {
			bad++
		}
	}
	for _, e := range res.Debug.SignalLog {
		if e.RawScore < 0 || e.RawScore > 1 || e.EffectiveScore < 0 || e.EffectiveScore > e.RawScore {
			bad++
		}
	}
	check("score_bounds", float64(bad), bad == 0,
		fmt.Sprintf("%d scores out of bounds", bad))

	// 6. Prompt size; value is the byte length
	size := len(res.Prompt)
	sizeOK := (h.config.MaxPromptBytes <= 0 || size <= h.config.MaxPromptBytes) &&
		(!h.config.RequirePrompt || size > 0)
	check("prompt_bytes", float64(size), sizeOK,
		fmt.Sprintf("prompt size %d outside limits", size))

	passed := len(failReasons) == 0
	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), strings.Join(failReasons, "; "))
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers

func placementIndex(p catalog.Placement) int {
	for i, q := range catalog.Placements {
		if q == p {
			return i
		}
	}
	return len(catalog.Placements)
}

// #endregion helpers
