package gate

import (
	"math"
	"slices"
	"time"

	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/signals"
)

// #region context

// Context evaluates gates for one composition call. It captures the clock once
// and memoizes one effective score per signal, so every gate on the same signal
// sees the same value. A Context must not be reused across calls.
type Context struct {
	now           time.Time
	minScore      float64
	halfLife      float64
	cooldownTurns float64
	halfLives     map[string]float64
	cooldowns     map[string]int
	mode          decision.RolloutMode
	signals       map[string]signals.BiasSignalState

	effective map[string]float64
	audit     map[string]*AuditEntry
	order     []string
}

// NewContext resolves defaults from d. The clock is read only when
// d.Heuristics.EvaluatedAt is zero; a nil clock means time.Now.
func NewContext(d decision.Derived, clock func() time.Time) *Context {
	h := d.Heuristics
	now := h.EvaluatedAt
	if now.IsZero() {
		if clock == nil {
			clock = time.Now
		}
		now = clock()
	}

	c := &Context{
		now:           now,
		minScore:      DefaultMinScore,
		halfLife:      DefaultHalfLifeSeconds,
		cooldownTurns: DefaultCooldownTurns,
		halfLives:     h.SignalHalfLives,
		cooldowns:     h.Cooldowns,
		mode:          h.Mode.Normalized(),
		signals:       d.Signals,
		effective:     make(map[string]float64),
		audit:         make(map[string]*AuditEntry),
	}
	if h.DefaultMinScore != nil && nonNegative(*h.DefaultMinScore) {
		c.minScore = *h.DefaultMinScore
	}
	if positive(h.DefaultHalfLifeSeconds) {
		c.halfLife = h.DefaultHalfLifeSeconds
	}
	if h.DefaultCooldownTurns != nil && nonNegative(*h.DefaultCooldownTurns) {
		c.cooldownTurns = *h.DefaultCooldownTurns
	}
	return c
}

// Now returns the instant every evaluation in this context is measured against.
func (c *Context) Now() time.Time { return c.now }

// Mode returns the normalized rollout mode.
func (c *Context) Mode() decision.RolloutMode { return c.mode }

// #endregion context

// #region evaluate

// Evaluate checks spec for moduleID: cooldown first, then score against threshold.
// The call is recorded in the audit log under spec.Signal.
func (c *Context) Evaluate(moduleID string, spec Spec) Result {
	score := c.effectiveScore(spec)
	threshold := c.ResolveThreshold(spec)

	var suppressed []Suppression
	if turns := c.ResolveCooldownTurns(spec); turns > 0 && c.cooldowns[moduleID] > 0 {
		suppressed = append(suppressed, SuppressedCooldown)
	}
	if score < float64(threshold) {
		suppressed = append(suppressed, SuppressedLowScore)
	}

	res := Result{
		Allowed:      len(suppressed) == 0,
		SuppressedBy: suppressed,
		Score:        score,
		Threshold:    threshold,
	}
	c.record(spec.Signal, moduleID, res)
	return res
}

// ResolveThreshold applies spec, context default and rollout mode in that order.
func (c *Context) ResolveThreshold(spec Spec) Threshold {
	switch c.mode {
	case decision.ModeShadow:
		return Threshold(math.Inf(1))
	case decision.ModeDisabled:
		return 0
	}
	if spec.MinScore != nil && nonNegative(*spec.MinScore) {
		return Threshold(*spec.MinScore)
	}
	return Threshold(c.minScore)
}

// ResolveHalfLife returns the half-life in seconds for spec.
func (c *Context) ResolveHalfLife(spec Spec) float64 {
	if positive(spec.HalfLifeSeconds) {
		return spec.HalfLifeSeconds
	}
	if hl, ok := c.halfLives[spec.Signal]; ok && positive(hl) {
		return hl
	}
	return c.halfLife
}

// ResolveCooldownTurns returns the rounded cooldown window for spec.
func (c *Context) ResolveCooldownTurns(spec Spec) int {
	turns := c.cooldownTurns
	if spec.CooldownTurns != nil && nonNegative(*spec.CooldownTurns) {
		turns = *spec.CooldownTurns
	}
	return int(math.Round(turns))
}

// effectiveScore is memoized by signal name. The first gate to reference a
// signal fixes the half-life used for it in this context.
func (c *Context) effectiveScore(spec Spec) float64 {
	if v, ok := c.effective[spec.Signal]; ok {
		return v
	}
	state, ok := c.signals[spec.Signal]
	v := 0.0
	if ok {
		v = EffectiveScore(state, c.now, c.ResolveHalfLife(spec))
	}
	c.effective[spec.Signal] = v
	return v
}

// #endregion evaluate

// #region decay

// EffectiveScore decays s.Score by age at now with the given half-life:
// clamp01(raw * exp(-ln2 * age / halfLife)). Non-positive raw scores, a missing
// LastSeenAt, or an age past the TTL yield 0.
func EffectiveScore(s signals.BiasSignalState, now time.Time, halfLifeSeconds float64) float64 {
	raw := signals.Clamp01(s.Score)
	if raw <= 0 || s.LastSeenAt.IsZero() {
		return 0
	}
	age := math.Max(0, now.Sub(s.LastSeenAt).Seconds())
	if s.HasTTL() && age > s.TTLSeconds {
		return 0
	}
	if !positive(halfLifeSeconds) {
		halfLifeSeconds = DefaultHalfLifeSeconds
	}
	return signals.Clamp01(raw * math.Exp(-math.Ln2*age/halfLifeSeconds))
}

// #endregion decay

// #region audit

func (c *Context) record(signal, moduleID string, res Result) {
	entry, ok := c.audit[signal]
	if !ok {
		entry = &AuditEntry{
			Signal:         signal,
			EffectiveScore: res.Score,
			Opened:         []string{},
			SuppressedBy:   []Suppression{},
		}
		if s, found := c.signals[signal]; found {
			entry.RawScore = signals.Clamp01(s.Score)
			entry.Source = s.Source
		}
		c.audit[signal] = entry
		c.order = append(c.order, signal)
	}
	if res.Allowed && !slices.Contains(entry.Opened, moduleID) {
		entry.Opened = append(entry.Opened, moduleID)
	}
	for _, s := range res.SuppressedBy {
		if !slices.Contains(entry.SuppressedBy, s) {
			entry.SuppressedBy = append(entry.SuppressedBy, s)
		}
	}
}

// FinalizeLog returns the audit entries in first-referenced order. The returned
// entries are copies; later evaluations do not change them.
func (c *Context) FinalizeLog() []AuditEntry {
	out := make([]AuditEntry, 0, len(c.order))
	for _, name := range c.order {
		e := *c.audit[name]
		e.Opened = slices.Clone(e.Opened)
		e.SuppressedBy = slices.Clone(e.SuppressedBy)
		out = append(out, e)
	}
	return out
}

// #endregion audit

// #region helpers

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// #endregion helpers
