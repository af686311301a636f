package update

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/adaptive-prompt/internal/catalog"
	"github.com/danielpatrickdp/adaptive-prompt/internal/composer"
	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/gate"
	"github.com/danielpatrickdp/adaptive-prompt/internal/history"
	"github.com/danielpatrickdp/adaptive-prompt/internal/signals"
)

// #region merge

// MergeSignals folds freshly extracted signals into the stored ones. A fresh
// entry replaces a stored one when the stored entry has expired or its decayed
// score at now is not higher. Entries that are expired or decayed under
// cfg.PruneBelow are dropped. Neither input map is modified.
func MergeSignals(stored, fresh map[string]signals.BiasSignalState, now time.Time, cfg Config) (map[string]signals.BiasSignalState, Metrics) {
	var m Metrics
	out := make(map[string]signals.BiasSignalState, len(stored)+len(fresh))

	for _, name := range slices.Sorted(maps.Keys(stored)) {
		s := stored[name]
		if s.Expired(now) || gate.EffectiveScore(s, now, cfg.halfLife(name)) < cfg.PruneBelow {
			m.SignalsPruned = append(m.SignalsPruned, name)
			continue
		}
		out[name] = s
	}

	for _, name := range slices.Sorted(maps.Keys(fresh)) {
		f := fresh[name]
		if old, ok := out[name]; ok && gate.EffectiveScore(old, now, cfg.halfLife(name)) > f.Score {
			m.SignalsKept = append(m.SignalsKept, name)
			continue
		}
		out[name] = f
		m.SignalsMerged = append(m.SignalsMerged, name)
	}
	return out, m
}

func (c Config) halfLife(signal string) float64 {
	if hl, ok := c.SignalHalfLives[signal]; ok && hl > 0 {
		return hl
	}
	if c.HalfLifeSeconds > 0 {
		return c.HalfLifeSeconds
	}
	return gate.DefaultHalfLifeSeconds
}

// #endregion merge

// #region fired

// Fired lists the selected modules of res that carry a gate, with the cooldown
// window each arms under d's heuristics defaults.
func Fired(res composer.Result, cat *catalog.Catalog, d decision.Decision) []Firing {
	ctx := gate.NewContext(decision.Derive(d), func() time.Time { return time.Time{} })
	var out []Firing
	for _, id := range res.Debug.SelectedModules {
		m, ok := cat.Get(id)
		if !ok || m.Gate == nil {
			continue
		}
		out = append(out, Firing{ModuleID: id, CooldownTurns: ctx.ResolveCooldownTurns(*m.Gate)})
	}
	return out
}

// #endregion fired

// #region advance

// Advance is a pure function that computes the next session version after a
// composed turn: existing cooldowns tick down by one (and are dropped at zero),
// modules that fired arm their cooldown, and the turn's signals replace the
// stored ones. The previous record is not modified.
func Advance(prev history.SessionRecord, turn Turn, cfg Config) Result {
	var m Metrics

	cooldowns := make(map[string]int, len(prev.Cooldowns)+len(turn.Fired))
	for _, id := range slices.Sorted(maps.Keys(prev.Cooldowns)) {
		if left := prev.Cooldowns[id] - 1; left > 0 {
			cooldowns[id] = left
		} else {
			m.CooldownsExpired = append(m.CooldownsExpired, id)
		}
	}
	for _, f := range turn.Fired {
		if f.CooldownTurns <= 0 {
			continue
		}
		if f.CooldownTurns > cooldowns[f.ModuleID] {
			cooldowns[f.ModuleID] = f.CooldownTurns
		}
		m.CooldownsArmed = append(m.CooldownsArmed, f.ModuleID)
	}

	sigs, pruned := MergeSignals(nil, turn.Signals, turn.At, cfg)
	m.SignalsPruned = pruned.SignalsPruned

	rec := history.SessionRecord{
		VersionID: uuid.New().String(),
		ParentID:  prev.VersionID,
		SessionID: prev.SessionID,
		Turn:      prev.Turn + 1,
		Signals:   sigs,
		Cooldowns: cooldowns,
		CreatedAt: turn.At.UTC(),
	}
	if b, err := json.Marshal(m); err == nil {
		rec.MetricsJSON = string(b)
	}

	dec := Decision{Action: "no_op", Reason: "no state change"}
	if !maps.Equal(prev.Cooldowns, cooldowns) || !sameSignals(prev.Signals, sigs) {
		dec = Decision{
			Action: "commit",
			Reason: fmt.Sprintf("signals: %d, cooldowns armed: %v, expired: %v",
				len(sigs), m.CooldownsArmed, m.CooldownsExpired),
		}
	}

	return Result{NewRecord: rec, Decision: dec, Metrics: m}
}

func sameSignals(a, b map[string]signals.BiasSignalState) bool {
	return maps.EqualFunc(a, b, func(x, y signals.BiasSignalState) bool {
		return x.Score == y.Score && x.Source == y.Source &&
			x.LastSeenAt.Equal(y.LastSeenAt) && x.TTLSeconds == y.TTLSeconds
	})
}

// #endregion advance
