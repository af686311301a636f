package orchestrator

// #region imports
import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-prompt/internal/catalog"
	"github.com/danielpatrickdp/adaptive-prompt/internal/composer"
	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/eval"
	"github.com/danielpatrickdp/adaptive-prompt/internal/history"
	"github.com/danielpatrickdp/adaptive-prompt/internal/logging"
	"github.com/danielpatrickdp/adaptive-prompt/internal/update"
)

// #endregion

// ErrMissingSession is returned when a turn carries no session id.
var ErrMissingSession = errors.New("session id is required")

// #region orchestrator-struct

// Orchestrator is the top-level coordinator for session turns: it loads the
// session record, runs Step against the current catalog, persists committed
// versions and writes the composition trace.
type Orchestrator struct {
	source   catalog.Source
	store    history.Store
	harness  *eval.EvalHarness
	update   update.Config
	defaults decision.HeuristicsConfig
	traceDB  *sql.DB
	logger   *zap.Logger
	clock    func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTraceDB enables the composition trace log on db. The table is created by New.
func WithTraceDB(db *sql.DB) Option { return func(o *Orchestrator) { o.traceDB = db } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock sets the clock used for turns without a timestamp.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithUpdateConfig sets the signal decay and pruning parameters.
func WithUpdateConfig(cfg update.Config) Option { return func(o *Orchestrator) { o.update = cfg } }

// WithEvalConfig sets the post-composition limits.
func WithEvalConfig(cfg eval.EvalConfig) Option {
	return func(o *Orchestrator) { o.harness = eval.NewEvalHarness(cfg) }
}

// WithHeuristics sets server-wide heuristics defaults. Decisions override them
// field by field.
func WithHeuristics(def decision.HeuristicsConfig) Option {
	return func(o *Orchestrator) { o.defaults = def }
}

// #endregion

// #region constructor

// New creates a fully wired orchestrator. A nil src uses the embedded catalog.
func New(src catalog.Source, store history.Store, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("orchestrator: nil store")
	}
	if src == nil {
		cat, err := catalog.Default()
		if err != nil {
			return nil, fmt.Errorf("load default catalog: %w", err)
		}
		src = cat
	}
	o := &Orchestrator{
		source:  src,
		store:   store,
		harness: eval.NewEvalHarness(eval.DefaultEvalConfig()),
		update:  update.DefaultConfig(),
		logger:  zap.NewNop(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.traceDB != nil {
		if err := logging.Migrate(o.traceDB); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// #endregion

// #region turn

// Turn runs one message for in.SessionID. Turns for the same session are
// serialized; different sessions run concurrently. Trace write failures are
// logged and do not fail the turn.
func (o *Orchestrator) Turn(ctx context.Context, in TurnInput) (TurnResult, error) {
	if in.SessionID == "" {
		return TurnResult{}, ErrMissingSession
	}
	unlock := o.lock(in.SessionID)
	defer unlock()

	current, err := o.store.Load(ctx, in.SessionID)
	if errors.Is(err, history.ErrNotFound) {
		current = history.SessionRecord{SessionID: in.SessionID}
	} else if err != nil {
		return TurnResult{}, fmt.Errorf("load session %s: %w", in.SessionID, err)
	}

	if in.At.IsZero() {
		in.At = o.clock().UTC()
	}
	if in.TurnID == "" {
		in.TurnID = uuid.New().String()
	}
	in.Decision.Heuristics = in.Decision.Heuristics.WithDefaults(o.defaults)

	cat := o.source.Catalog()
	r, next := Step(current, in, cat, o.harness, o.update, composer.WithLogger(o.logger))

	if r.Action == ActionCommit {
		if err := o.store.Save(ctx, next); err != nil {
			return TurnResult{}, fmt.Errorf("save session %s: %w", in.SessionID, err)
		}
	}
	o.trace(in, r)

	o.logger.Info("turn",
		zap.String("session", in.SessionID),
		zap.String("turn", in.TurnID),
		zap.String("action", string(r.Action)),
		zap.Strings("selected", r.Result.Debug.SelectedModules),
		zap.Strings("armed", r.Metrics.CooldownsArmed),
		zap.String("version", r.VersionID))

	return r, nil
}

// Session returns the current record for sessionID.
func (o *Orchestrator) Session(ctx context.Context, sessionID string) (history.SessionRecord, error) {
	return o.store.Load(ctx, sessionID)
}

// #endregion

// #region helpers

// sessionLock is held while a turn runs. refs counts the turns holding or
// waiting on it; the entry is dropped when it reaches zero.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (o *Orchestrator) lock(sessionID string) func() {
	o.locksMu.Lock()
	if o.locks == nil {
		o.locks = make(map[string]*sessionLock)
	}
	l, ok := o.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		o.locks[sessionID] = l
	}
	l.refs++
	o.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		o.locksMu.Lock()
		if l.refs--; l.refs == 0 {
			delete(o.locks, sessionID)
		}
		o.locksMu.Unlock()
	}
}

// lockedSessions reports how many sessions have a turn running or waiting.
func (o *Orchestrator) lockedSessions() int {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	return len(o.locks)
}

func (o *Orchestrator) trace(in TurnInput, r TurnResult) {
	if o.traceDB == nil {
		return
	}
	rec := logging.NewCompositionRecord(in.TurnID, in.Text, in.At, r.Result, r.Eval)
	entry, err := rec.Entry(in.SessionID, r.VersionID, string(r.Action), r.Reason)
	if err == nil {
		entry.CreatedAt = in.At
		err = logging.LogComposition(o.traceDB, entry)
	}
	if err != nil {
		o.logger.Warn("composition trace failed", zap.String("session", in.SessionID), zap.Error(err))
	}
}

// #endregion
