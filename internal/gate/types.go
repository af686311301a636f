package gate

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/danielpatrickdp/adaptive-prompt/internal/signals"
)

// #region defaults

// Fallbacks used when neither the gate spec nor the decision supplies a value.
const (
	DefaultMinScore        = 0.35
	DefaultHalfLifeSeconds = 1200.0
	DefaultCooldownTurns   = 2.0
)

// #endregion defaults

// #region suppression

// Suppression names why a gate did not open.
type Suppression string

const (
	SuppressedCooldown Suppression = "cooldown"
	SuppressedLowScore Suppression = "low_score"
)

// #endregion suppression

// #region spec

// Spec is a module's heuristic predicate on one bias signal.
// Nil or non-positive optional fields defer to the context defaults.
type Spec struct {
	Signal          string   `json:"signal" yaml:"signal"`
	MinScore        *float64 `json:"minScore,omitempty" yaml:"minScore,omitempty"`
	HalfLifeSeconds float64  `json:"halfLifeSeconds,omitempty" yaml:"halfLifeSeconds,omitempty"`
	CooldownTurns   *float64 `json:"cooldownTurns,omitempty" yaml:"cooldownTurns,omitempty"`
}

// #endregion spec

// #region threshold

// Threshold is a gate's minimum effective score. Shadow mode uses +Inf, which
// JSON cannot carry as a number, so it is written as the string "+Inf".
type Threshold float64

// MarshalJSON implements json.Marshaler.
func (t Threshold) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(t), 1) {
		return []byte(`"+Inf"`), nil
	}
	return json.Marshal(float64(t))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Threshold) UnmarshalJSON(b []byte) error {
	if string(b) == `"+Inf"` {
		*t = Threshold(math.Inf(1))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("threshold: %w", err)
	}
	*t = Threshold(f)
	return nil
}

// #endregion threshold

// #region result

// Result is the outcome of one gate evaluation.
type Result struct {
	Allowed      bool          `json:"allowed"`
	SuppressedBy []Suppression `json:"suppressedBy,omitempty"`
	Score        float64       `json:"score"` // effective (decayed) score
	Threshold    Threshold     `json:"threshold"`
}

// #endregion result

// #region audit-entry

// AuditEntry aggregates every gate evaluation that referenced one signal.
type AuditEntry struct {
	Signal         string         `json:"signal"`
	RawScore       float64        `json:"rawScore"`
	EffectiveScore float64        `json:"effectiveScore"`
	Source         signals.Source `json:"source,omitempty"`
	Opened         []string       `json:"opened"`       // module ids whose gate passed
	SuppressedBy   []Suppression  `json:"suppressedBy"` // union over all gates on this signal
}

// #endregion audit-entry
