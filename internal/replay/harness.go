package replay

import (
	"slices"
	"time"

	"github.com/danielpatrickdp/adaptive-prompt/internal/catalog"
	"github.com/danielpatrickdp/adaptive-prompt/internal/composer"
	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/eval"
	"github.com/danielpatrickdp/adaptive-prompt/internal/history"
	"github.com/danielpatrickdp/adaptive-prompt/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-prompt/internal/update"
)

// #region types

// Turn represents a single recorded user message for replay.
type Turn struct {
	TurnID   string
	Text     string
	At       time.Time
	Decision decision.Decision // upstream decision; Signals here are merged with the extracted ones
}

// ReplayConfig bundles update and eval configs for a replay run.
type ReplayConfig struct {
	UpdateConfig update.Config
	EvalConfig   eval.EvalConfig
}

// DefaultReplayConfig returns sensible defaults for both pipeline stages.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		UpdateConfig: update.DefaultConfig(),
		EvalConfig:   eval.DefaultEvalConfig(),
	}
}

// ReplayResult captures the outcome of replaying one turn through the full pipeline.
type ReplayResult struct {
	TurnID string
	Action string // "commit" | "eval_fail" | "no_op"
	Reason string

	// Compose stage
	Selected []string
	Prompt   string
	Debug    composer.Debug

	// Eval stage
	EvalResult eval.EvalResult

	// Update stage (zero if eval failed)
	UpdateDecision update.Decision
	UpdateMetrics  update.Metrics
	Fired          []update.Firing

	// Session version after this turn (equals the previous one unless committed)
	FinalVersionID string
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalTurns   int
	Commits      int
	EvalFailures int
	NoOps        int
	FinalState   history.SessionRecord
}

// #endregion types

// #region replay

// Replay runs each turn through orchestrator.Step, carrying signals and
// cooldowns between turns. Operates entirely in-memory and is deterministic
// apart from generated version ids.
func Replay(start history.SessionRecord, turns []Turn, cat *catalog.Catalog, config ReplayConfig) ([]ReplayResult, history.SessionRecord) {
	current := start
	results := make([]ReplayResult, 0, len(turns))
	evalInst := eval.NewEvalHarness(config.EvalConfig)

	for _, turn := range turns {
		r, next := orchestrator.Step(current, orchestrator.TurnInput{
			SessionID: start.SessionID,
			TurnID:    turn.TurnID,
			Text:      turn.Text,
			At:        turn.At,
			Decision:  turn.Decision,
		}, cat, evalInst, config.UpdateConfig)
		current = next

		results = append(results, ReplayResult{
			TurnID:         r.TurnID,
			Action:         string(r.Action),
			Reason:         r.Reason,
			Selected:       r.Result.Debug.SelectedModules,
			Prompt:         r.Result.Prompt,
			Debug:          r.Result.Debug,
			EvalResult:     r.Eval,
			UpdateDecision: r.UpdateDecision,
			UpdateMetrics:  r.Metrics,
			Fired:          r.Fired,
			FinalVersionID: r.VersionID,
		})
	}

	return results, current
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult, finalState history.SessionRecord) ReplaySummary {
	s := ReplaySummary{
		TotalTurns: len(results),
		FinalState: finalState,
	}
	for _, r := range results {
		switch r.Action {
		case "commit":
			s.Commits++
		case "eval_fail":
			s.EvalFailures++
		case "no_op":
			s.NoOps++
		}
	}
	return s
}

// SelectedEqual reports whether r selected exactly ids, in order.
func (r ReplayResult) SelectedEqual(ids []string) bool {
	return slices.Equal(r.Selected, ids)
}

// #endregion replay
