package logging

import (
	"time"

	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
)

// #region trace-entry

// TraceEntry is a single row in the composition_log table.
type TraceEntry struct {
	TraceID     string
	SessionID   string
	VersionID   string
	PromptHash  string
	SelectedIDs string // comma-separated, prompt order
	DebugJSON   string
	Decision    string // "commit" | "no_op" | "eval_fail"
	Reason      string
	CreatedAt   time.Time
}

// #endregion trace-entry

// #region composition-record

// CompositionRecord captures what a composition saw and produced for one turn.
// Serialized as JSON into composition_log.debug_json for offline inspection.
type CompositionRecord struct {
	TurnID     string    `json:"turn_id"`
	At         time.Time `json:"at"`
	Text       string    `json:"text,omitempty"`
	PromptHash string    `json:"prompt_hash"`
	PromptSize int       `json:"prompt_size"`

	// Decision as composed, including merged signals and cooldowns
	Decision decision.Decision `json:"decision"`
	Flags    []string          `json:"flags"`
	Mode     string            `json:"mode"`

	// Composition output
	Candidates []CandidateRecord `json:"candidates"`
	Selected   []string          `json:"selected"`
	SignalLog  []SignalRecord    `json:"signal_log"`

	// Post-composition checks
	EvalPassed bool   `json:"eval_passed"`
	EvalReason string `json:"eval_reason"`
}

// CandidateRecord is one module's activation outcome.
type CandidateRecord struct {
	ModuleID  string   `json:"module_id"`
	Activated bool     `json:"activated"`
	Reasons   []string `json:"reasons"`
}

// SignalRecord is one signal's gate audit entry.
type SignalRecord struct {
	Signal         string   `json:"signal"`
	RawScore       float64  `json:"raw_score"`
	EffectiveScore float64  `json:"effective_score"`
	Opened         []string `json:"opened,omitempty"`
	SuppressedBy   []string `json:"suppressed_by,omitempty"`
}

// #endregion composition-record
