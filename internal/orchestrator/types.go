package orchestrator

// #region imports
import (
	"time"

	"github.com/danielpatrickdp/adaptive-prompt/internal/composer"
	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/eval"
	"github.com/danielpatrickdp/adaptive-prompt/internal/update"
)

// #endregion

// #region action

// Action is what a turn did to the session state.
type Action string

const (
	ActionCommit   Action = "commit"
	ActionNoOp     Action = "no_op"
	ActionEvalFail Action = "eval_fail"
)

// #endregion

// #region turn-input

// TurnInput is one user message and the upstream decision for it.
type TurnInput struct {
	SessionID string            `json:"sessionId"`
	TurnID    string            `json:"turnId"`
	Text      string            `json:"text"`
	At        time.Time         `json:"at,omitzero"` // zero means the orchestrator clock
	Decision  decision.Decision `json:"decision"`
}

// #endregion

// #region turn-result

// TurnResult captures the outcome of one turn through the full pipeline.
type TurnResult struct {
	TurnID string `json:"turnId"`
	Action Action `json:"action"`
	Reason string `json:"reason"`

	// Compose stage
	Decision decision.Decision `json:"decision"` // as composed, with merged signals and cooldowns
	Result   composer.Result   `json:"result"`

	// Eval stage
	Eval eval.EvalResult `json:"eval"`

	// Update stage (zero if eval failed)
	UpdateDecision update.Decision `json:"update"`
	Metrics        update.Metrics  `json:"metrics"`
	Fired          []update.Firing `json:"fired,omitempty"`

	// Session version after this turn (equals the previous one unless committed)
	VersionID string `json:"versionId"`
}

// #endregion
