package eval

// #region eval-config

// EvalConfig holds limits for post-composition validation.
type EvalConfig struct {
	MaxPromptBytes int  // fail if the prompt is larger (0 = no limit)
	RequirePrompt  bool // fail on an empty prompt
}

// DefaultEvalConfig returns the limits used by replay and the CLI.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MaxPromptBytes: 32 * 1024,
		RequirePrompt:  true,
	}
}

// #endregion eval-config

// #region eval-metric

// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion eval-metric

// #region eval-result

// EvalResult is the output of post-composition validation.
type EvalResult struct {
	Passed  bool         `json:"passed"`
	Metrics []EvalMetric `json:"metrics"`
	Reason  string       `json:"reason"`
}

// #endregion eval-result
