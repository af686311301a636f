package activation

import (
	"slices"
	"strings"

	"github.com/danielpatrickdp/adaptive-prompt/internal/catalog"
	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/gate"
)

// #region reason-codes

// Failure codes, listed in the order Evaluate checks them.
const (
	ReasonMinIntensity          = "min_intensity"
	ReasonMaxIntensity          = "max_intensity"
	ReasonOpennessMismatch      = "openness_mismatch"
	ReasonRequiresVulnerability = "requires_vulnerability"
	ReasonRequiresTechBlock     = "requires_tech_block"
	ReasonRequiresSaveMemory    = "requires_save_memory"
	ReasonFlagsMismatch         = "flags_mismatch"

	ReasonMatched      = "matched"
	GateReasonPrefix   = "gate:"
	DedupeReasonPrefix = "deduped:"
)

// #endregion reason-codes

// #region outcome

// Outcome records whether a module activated and why.
type Outcome struct {
	ModuleID  string          `json:"id"`
	Activated bool            `json:"activated"`
	Reasons   []string        `json:"reasons"` // failure codes, or ["matched"]
	Reason    string          `json:"reason"`  // Reasons joined by ","
	Score     *float64        `json:"score,omitempty"`
	Threshold *gate.Threshold `json:"threshold,omitempty"`
}

// Deduped returns a copy of o rejected in favour of an earlier module sharing key.
func (o Outcome) Deduped(key string) Outcome {
	o.Activated = false
	o.Reasons = []string{DedupeReasonPrefix + key}
	o.Reason = o.Reasons[0]
	return o
}

// #endregion outcome

// #region evaluate

// Evaluate checks m's static predicates in a fixed order, accumulating every
// failure code. The gate is consulted only if all static checks passed, so a
// statically rejected module leaves no trace in ctx's audit log. A nil ctx
// gets a private one built from d.
func Evaluate(m catalog.Module, d decision.Derived, ctx *gate.Context) Outcome {
	var failed []string

	if m.MinIntensity != nil && d.Intensity < *m.MinIntensity {
		failed = append(failed, ReasonMinIntensity)
	}
	if m.MaxIntensity != nil && d.Intensity > *m.MaxIntensity {
		failed = append(failed, ReasonMaxIntensity)
	}
	if len(m.OpennessIn) > 0 && !slices.Contains(m.OpennessIn, d.Openness) {
		failed = append(failed, ReasonOpennessMismatch)
	}
	if m.RequireVulnerability && !d.IsVulnerable {
		failed = append(failed, ReasonRequiresVulnerability)
	}
	if m.RequireTechBlock && !d.HasTechBlock {
		failed = append(failed, ReasonRequiresTechBlock)
	}
	if m.RequireSaveMemory && !d.SaveMemory {
		failed = append(failed, ReasonRequiresSaveMemory)
	}
	if len(m.FlagsAny) > 0 && !d.HasAnyFlag(m.FlagsAny) {
		failed = append(failed, ReasonFlagsMismatch)
	}

	out := Outcome{ModuleID: m.ID}

	if len(failed) == 0 && m.Gate != nil {
		if ctx == nil {
			ctx = gate.NewContext(d, nil)
		}
		res := ctx.Evaluate(m.ID, *m.Gate)
		score, threshold := res.Score, res.Threshold
		out.Score = &score
		out.Threshold = &threshold
		for _, s := range res.SuppressedBy {
			failed = append(failed, GateReasonPrefix+string(s))
		}
	}

	out.Activated = len(failed) == 0
	if out.Activated {
		out.Reasons = []string{ReasonMatched}
	} else {
		out.Reasons = failed
	}
	out.Reason = strings.Join(out.Reasons, ",")
	return out
}

// #endregion evaluate
