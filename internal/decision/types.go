package decision

import (
	"time"

	"github.com/danielpatrickdp/adaptive-prompt/internal/signals"
)

// #region enums

// Openness is how receptive the user currently is to deeper exploration.
type Openness string

const (
	OpennessClosed   Openness = "closed"
	OpennessModerate Openness = "moderate"
	OpennessOpen     Openness = "open"
)

// RolloutMode switches heuristic gates between live, forced-on and logging-only.
type RolloutMode string

const (
	ModeEnabled  RolloutMode = "enabled"
	ModeDisabled RolloutMode = "disabled" // every gate passes
	ModeShadow   RolloutMode = "shadow"   // every gate fails, audit log still filled
)

// Normalized maps empty or unknown modes to ModeEnabled.
func (m RolloutMode) Normalized() RolloutMode {
	switch m {
	case ModeDisabled, ModeShadow:
		return m
	default:
		return ModeEnabled
	}
}

// #endregion enums

// #region heuristics-config

// HeuristicsConfig carries caller-owned gate state for one turn.
// Optional fields left nil or zero resolve to the gate package defaults.
type HeuristicsConfig struct {
	EvaluatedAt            time.Time          `json:"evaluatedAt,omitzero"`
	Cooldowns              map[string]int     `json:"cooldowns,omitempty"` // module id -> remaining turns
	Mode                   RolloutMode        `json:"mode,omitempty"`
	DefaultMinScore        *float64           `json:"defaultMinScore,omitempty"`
	DefaultHalfLifeSeconds float64            `json:"defaultHalfLifeSeconds,omitempty"`
	DefaultCooldownTurns   *float64           `json:"defaultCooldownTurns,omitempty"`
	SignalHalfLives        map[string]float64 `json:"signalHalfLives,omitempty"`
}

// #endregion heuristics-config

// #region decision

// Decision is the per-turn snapshot that drives module selection.
type Decision struct {
	Intensity    float64                            `json:"intensity"`
	Openness     Openness                           `json:"openness"`
	IsVulnerable bool                               `json:"isVulnerable"`
	OrderedSteps []string                           `json:"orderedSteps"`
	SaveMemory   bool                               `json:"saveMemory"`
	HasTechBlock bool                               `json:"hasTechBlock"`
	Tags         []string                           `json:"tags"`
	Domain       string                             `json:"domain,omitempty"`
	Signals      map[string]signals.BiasSignalState `json:"signals,omitempty"`
	Heuristics   HeuristicsConfig                   `json:"heuristicsConfig"`
}

// #endregion decision

// #region derived

// Implied flags added by Derive.
const (
	FlagTechBlock    = "tech_block"
	FlagSaveMemory   = "save_memory"
	FlagDomainPrefix = "domain:"
)

// Derived is a Decision plus the fields computed from it by Derive.
type Derived struct {
	Decision
	Flags          []string `json:"flags"` // tags plus implied flags, first occurrence order
	StepsText      string   `json:"stepsText"`
	OpennessAdvice string   `json:"opennessAdvice"`
}

// HasFlag reports whether flag is among the derived flags.
func (d Derived) HasFlag(flag string) bool {
	for _, f := range d.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// HasAnyFlag reports whether at least one of flags is set.
func (d Derived) HasAnyFlag(flags []string) bool {
	for _, f := range flags {
		if d.HasFlag(f) {
			return true
		}
	}
	return false
}

// #endregion derived
