package composer

import (
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-prompt/internal/activation"
	"github.com/danielpatrickdp/adaptive-prompt/internal/catalog"
	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/gate"
)

// #region result

// DerivedTrace is the derived decision as reported in Debug, with the gate
// audit log attached.
type DerivedTrace struct {
	decision.Derived
	HeuristicsLog []gate.AuditEntry `json:"heuristicsLog"`
}

// Debug explains one composition. Its JSON shape is what trace consumers read.
type Debug struct {
	Candidates      []activation.Outcome `json:"candidates"`      // one per catalog module, catalog order
	SelectedModules []string             `json:"selectedModules"` // post-dedupe ids, sorted by order
	Derived         DerivedTrace         `json:"derived"`
	SignalLog       []gate.AuditEntry    `json:"signalLog"`
}

// Result is the output of Compose.
type Result struct {
	Prompt string `json:"prompt"`
	// Modules are the modules that contributed text, in prompt order, with
	// Content replaced by the rendered text.
	Modules []catalog.Module `json:"modules"`
	Debug   Debug            `json:"debug"`
}

// #endregion result

// #region options

// Observer receives the debug record synchronously before Compose returns.
type Observer func(Debug)

type options struct {
	clock    func() time.Time
	observer Observer
	logger   *zap.Logger
}

// Option configures a composition.
type Option func(*options)

// WithClock sets the clock read when the decision has no EvaluatedAt.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithObserver registers fn to receive every debug record.
func WithObserver(fn Observer) Option {
	return func(o *options) { o.observer = fn }
}

// WithLogger sets the logger used for per-call debug output.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	return o
}

// #endregion options
