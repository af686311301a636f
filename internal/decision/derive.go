package decision

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

// #region openness-advice

const (
	adviceClosed   = "A pessoa parece pouco aberta neste momento: priorize o acolhimento, valide sem pressionar e evite perguntas invasivas."
	adviceModerate = "A pessoa está moderadamente aberta: combine validação com perguntas abertas e leves, sem aprofundar demais."
	adviceOpen     = "A pessoa está aberta ao diálogo: aprofunde com curiosidade, explore causas e proponha reflexões."
)

// OpennessAdvice returns the fixed guidance text for o. Unrecognized values get
// the open text; use Validate to reject them up front.
func OpennessAdvice(o Openness) string {
	switch o {
	case OpennessClosed:
		return adviceClosed
	case OpennessModerate:
		return adviceModerate
	default:
		return adviceOpen
	}
}

// #endregion openness-advice

// #region derive

// Derive computes flags, numbered steps and openness advice. The input is not
// modified and the result shares no slices or maps with it.
func Derive(d Decision) Derived {
	out := Derived{Decision: clone(d)}
	out.Flags = impliedFlags(d)
	out.StepsText = FormatSteps(d.OrderedSteps)
	out.OpennessAdvice = OpennessAdvice(d.Openness)
	return out
}

// FormatSteps renders steps as "1. a\n2. b". Blank steps are skipped.
func FormatSteps(steps []string) string {
	var b strings.Builder
	n := 0
	for _, s := range steps {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		n++
		if n > 1 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(n))
		b.WriteString(". ")
		b.WriteString(s)
	}
	return b.String()
}

func impliedFlags(d Decision) []string {
	flags := make([]string, 0, len(d.Tags)+3)
	seen := make(map[string]bool, len(d.Tags)+3)
	add := func(f string) {
		if f == "" || seen[f] {
			return
		}
		seen[f] = true
		flags = append(flags, f)
	}
	for _, t := range d.Tags {
		add(strings.TrimSpace(t))
	}
	if d.HasTechBlock {
		add(FlagTechBlock)
	}
	if d.SaveMemory {
		add(FlagSaveMemory)
	}
	if dom := strings.TrimSpace(d.Domain); dom != "" {
		add(FlagDomainPrefix + dom)
	}
	return flags
}

func clone(d Decision) Decision {
	d.OrderedSteps = slices.Clone(d.OrderedSteps)
	d.Tags = slices.Clone(d.Tags)
	d.Signals = maps.Clone(d.Signals)
	d.Heuristics.Cooldowns = maps.Clone(d.Heuristics.Cooldowns)
	d.Heuristics.SignalHalfLives = maps.Clone(d.Heuristics.SignalHalfLives)
	if d.Heuristics.DefaultMinScore != nil {
		v := *d.Heuristics.DefaultMinScore
		d.Heuristics.DefaultMinScore = &v
	}
	if d.Heuristics.DefaultCooldownTurns != nil {
		v := *d.Heuristics.DefaultCooldownTurns
		d.Heuristics.DefaultCooldownTurns = &v
	}
	return d
}

// #endregion derive

// #region validate

// ErrInvalidDecision wraps every error returned by Validate.
var ErrInvalidDecision = errors.New("invalid decision")

// Validate reports fields that Derive and the gate would otherwise coerce to
// defaults. Composition never calls it.
func (d Decision) Validate() error {
	var errs []error
	if math.IsNaN(d.Intensity) || d.Intensity < 0 || d.Intensity > 10 {
		errs = append(errs, fmt.Errorf("%w: intensity %v outside 0-10", ErrInvalidDecision, d.Intensity))
	}
	switch d.Openness {
	case OpennessClosed, OpennessModerate, OpennessOpen:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown openness %q", ErrInvalidDecision, d.Openness))
	}
	switch d.Heuristics.Mode {
	case "", ModeEnabled, ModeDisabled, ModeShadow:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown rollout mode %q", ErrInvalidDecision, d.Heuristics.Mode))
	}
	for _, name := range slices.Sorted(maps.Keys(d.Signals)) {
		s := d.Signals[name]
		if math.IsNaN(s.Score) || s.Score < 0 || s.Score > 1 {
			errs = append(errs, fmt.Errorf("%w: signal %s score %v outside 0-1", ErrInvalidDecision, name, s.Score))
		}
	}
	for _, id := range slices.Sorted(maps.Keys(d.Heuristics.Cooldowns)) {
		if turns := d.Heuristics.Cooldowns[id]; turns < 0 {
			errs = append(errs, fmt.Errorf("%w: negative cooldown %d for %s", ErrInvalidDecision, turns, id))
		}
	}
	return errors.Join(errs...)
}

// #endregion validate

// #region defaults

// WithDefaults fills the tunables h leaves unset from def. Per-signal
// half-lives from def apply only to signals h does not name. Cooldowns and
// EvaluatedAt always come from h.
func (h HeuristicsConfig) WithDefaults(def HeuristicsConfig) HeuristicsConfig {
	out := h
	if out.Mode == "" {
		out.Mode = def.Mode
	}
	if out.DefaultMinScore == nil && def.DefaultMinScore != nil {
		v := *def.DefaultMinScore
		out.DefaultMinScore = &v
	}
	if out.DefaultHalfLifeSeconds <= 0 {
		out.DefaultHalfLifeSeconds = def.DefaultHalfLifeSeconds
	}
	if out.DefaultCooldownTurns == nil && def.DefaultCooldownTurns != nil {
		v := *def.DefaultCooldownTurns
		out.DefaultCooldownTurns = &v
	}
	if len(def.SignalHalfLives) > 0 {
		merged := maps.Clone(def.SignalHalfLives)
		maps.Copy(merged, h.SignalHalfLives)
		out.SignalHalfLives = merged
	}
	return out
}

// #endregion defaults
