package orchestrator

import (
	"maps"

	"github.com/danielpatrickdp/adaptive-prompt/internal/catalog"
	"github.com/danielpatrickdp/adaptive-prompt/internal/composer"
	"github.com/danielpatrickdp/adaptive-prompt/internal/eval"
	"github.com/danielpatrickdp/adaptive-prompt/internal/history"
	"github.com/danielpatrickdp/adaptive-prompt/internal/signals"
	"github.com/danielpatrickdp/adaptive-prompt/internal/update"
)

// #region step

// Step runs one turn through analyze → merge → compose → eval → advance and
// returns the result with the session record to carry forward. in.At must be
// set. Step performs no I/O and does not modify current; apart from the
// generated version id it is deterministic.
func Step(current history.SessionRecord, in TurnInput, cat *catalog.Catalog, h *eval.EvalHarness, cfg update.Config, opts ...composer.Option) (TurnResult, history.SessionRecord) {
	// 1. Extract and merge signals; upstream signals win when stronger
	fresh := signals.Analyze(in.Text, in.At)
	for name, s := range in.Decision.Signals {
		if old, ok := fresh[name]; !ok || s.Score > old.Score {
			fresh[name] = s
		}
	}
	merged, _ := update.MergeSignals(current.Signals, fresh, in.At, cfg)

	// 2. Compose against the session's cooldowns at a pinned instant
	d := in.Decision
	d.Signals = merged
	d.Heuristics.EvaluatedAt = in.At
	d.Heuristics.Cooldowns = maps.Clone(current.Cooldowns)
	res := composer.Compose(d, cat, opts...)

	r := TurnResult{
		TurnID:   in.TurnID,
		Decision: d,
		Result:   res,
	}

	// 3. Eval
	r.Eval = h.Run(res, cat)
	if !r.Eval.Passed {
		r.Action = ActionEvalFail
		r.Reason = r.Eval.Reason
		r.VersionID = current.VersionID
		return r, current
	}

	// 4. Advance session state
	r.Fired = update.Fired(res, cat, d)
	adv := update.Advance(current, update.Turn{
		ID:      in.TurnID,
		At:      in.At,
		Signals: merged,
		Fired:   r.Fired,
	}, cfg)
	r.UpdateDecision = adv.Decision
	r.Metrics = adv.Metrics
	r.Reason = adv.Decision.Reason

	if adv.Decision.Action == string(ActionNoOp) {
		r.Action = ActionNoOp
		r.VersionID = current.VersionID
		return r, current
	}

	// 5. Commit
	if adv.NewRecord.SessionID == "" {
		adv.NewRecord.SessionID = in.SessionID
	}
	r.Action = ActionCommit
	r.VersionID = adv.NewRecord.VersionID
	return r, adv.NewRecord
}

// #endregion step
