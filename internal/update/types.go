package update

import (
	"time"

	"github.com/danielpatrickdp/adaptive-prompt/internal/history"
	"github.com/danielpatrickdp/adaptive-prompt/internal/signals"
)

// #region firing

// Firing is a gated module that was selected this turn and the cooldown it arms.
type Firing struct {
	ModuleID      string `json:"moduleId"`
	CooldownTurns int    `json:"cooldownTurns"`
}

// #endregion firing

// #region turn

// Turn carries one composed turn into Advance.
type Turn struct {
	ID      string
	At      time.Time
	Signals map[string]signals.BiasSignalState // merged signals the turn was composed with
	Fired   []Firing
}

// #endregion turn

// #region decision

// Decision records what Advance decided.
type Decision struct {
	Action string `json:"action"` // "commit" | "no_op"
	Reason string `json:"reason"`
}

// #endregion decision

// #region metrics

// Metrics captures telemetry from one merge or advance.
type Metrics struct {
	SignalsMerged    []string `json:"signalsMerged,omitempty"`
	SignalsKept      []string `json:"signalsKept,omitempty"` // older entry outscored the fresh one
	SignalsPruned    []string `json:"signalsPruned,omitempty"`
	CooldownsArmed   []string `json:"cooldownsArmed,omitempty"`
	CooldownsExpired []string `json:"cooldownsExpired,omitempty"`
}

// #endregion metrics

// #region update-config

// Config holds the decay parameters used to compare and prune stored signals.
type Config struct {
	HalfLifeSeconds float64            // default half-life when no override applies
	SignalHalfLives map[string]float64 // per-signal overrides
	PruneBelow      float64            // drop signals whose effective score falls under this
}

// DefaultConfig mirrors the gate defaults.
func DefaultConfig() Config {
	return Config{
		HalfLifeSeconds: 1200,
		PruneBelow:      0.01,
	}
}

// #endregion update-config

// #region update-result

// Result bundles everything returned by Advance.
type Result struct {
	NewRecord history.SessionRecord
	Decision  Decision
	Metrics   Metrics
}

// #endregion update-result
