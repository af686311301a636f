package rpc

import (
	"time"

	"github.com/danielpatrickdp/adaptive-prompt/internal/composer"
	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-prompt/internal/signals"
	"github.com/danielpatrickdp/adaptive-prompt/internal/update"
)

// Messages travel as google.protobuf.Struct; these are their JSON shapes.

// #region compose

// ComposeRequest asks for a stateless composition of Decision.
type ComposeRequest struct {
	Decision decision.Decision `json:"decision"`
	Debug    bool              `json:"debug,omitempty"`  // include the debug record
	Strict   bool              `json:"strict,omitempty"` // reject decisions that fail Validate
}

// ComposeResponse is the composed prompt and the ids that contributed to it.
type ComposeResponse struct {
	Prompt  string          `json:"prompt"`
	Modules []string        `json:"modules"`
	Debug   *composer.Debug `json:"debug,omitempty"`
}

// #endregion compose

// #region analyze

// AnalyzeRequest asks for the bias signals of Text as of At.
type AnalyzeRequest struct {
	Text string    `json:"text"`
	At   time.Time `json:"at,omitzero"` // zero means the server clock
}

// AnalyzeResponse carries the extracted signals.
type AnalyzeResponse struct {
	Signals map[string]signals.BiasSignalState `json:"signals"`
}

// #endregion analyze

// #region turn

// TurnRequest runs one stateful session turn.
type TurnRequest struct {
	orchestrator.TurnInput
	Debug bool `json:"debug,omitempty"`
}

// TurnResponse summarizes a session turn.
type TurnResponse struct {
	TurnID    string          `json:"turnId"`
	Action    string          `json:"action"`
	Reason    string          `json:"reason"`
	Prompt    string          `json:"prompt"`
	Modules   []string        `json:"modules"`
	Fired     []update.Firing `json:"fired,omitempty"`
	VersionID string          `json:"versionId"`
	Debug     *composer.Debug `json:"debug,omitempty"`
}

// #endregion turn
