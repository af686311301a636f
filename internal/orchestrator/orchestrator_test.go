package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/danielpatrickdp/adaptive-prompt/internal/catalog"
	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/eval"
	"github.com/danielpatrickdp/adaptive-prompt/internal/history"
	"github.com/danielpatrickdp/adaptive-prompt/internal/logging"
	"github.com/danielpatrickdp/adaptive-prompt/internal/signals"
	"github.com/danielpatrickdp/adaptive-prompt/internal/update"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func moderate() decision.Decision {
	return decision.Decision{Intensity: 5, Openness: decision.OpennessModerate, Tags: []string{"nv1"}}
}

func sqliteStore(t *testing.T) *history.SQLiteStore {
	t.Helper()
	s, err := history.NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// #region step-tests

func TestStepDoesNotModifyCurrent(t *testing.T) {
	current := history.SessionRecord{
		VersionID: "v0",
		Cooldowns: map[string]int{"HEUR_RUMINACAO": 1},
		Signals:   map[string]signals.BiasSignalState{"rumination": {Score: 0.9, LastSeenAt: t0}},
	}
	r, next := Step(current, TurnInput{Text: "oi", At: t0.Add(time.Minute), Decision: moderate()},
		catalog.MustDefault(), eval.NewEvalHarness(eval.DefaultEvalConfig()), update.DefaultConfig())

	assert.Equal(t, ActionCommit, r.Action)
	assert.Equal(t, 1, current.Cooldowns["HEUR_RUMINACAO"])
	assert.NotContains(t, next.Cooldowns, "HEUR_RUMINACAO")
	assert.Equal(t, "v0", next.ParentID)
	assert.NotContains(t, r.Result.Debug.SelectedModules, "HEUR_RUMINACAO", "cooldown active during the turn")
}

func TestStepUpstreamSignalWinsWhenStronger(t *testing.T) {
	d := moderate()
	d.Signals = map[string]signals.BiasSignalState{
		"rumination": {Score: 0.95, Source: signals.SourceExternal, LastSeenAt: t0},
	}
	r, _ := Step(history.SessionRecord{}, TurnInput{Text: "fico pensando", At: t0, Decision: d},
		catalog.MustDefault(), eval.NewEvalHarness(eval.DefaultEvalConfig()), update.DefaultConfig())

	got := r.Decision.Signals["rumination"]
	assert.Equal(t, 0.95, got.Score)
	assert.Equal(t, signals.SourceExternal, got.Source)
	assert.True(t, r.Decision.Heuristics.EvaluatedAt.Equal(t0))
}

// #endregion step-tests

// #region turn-tests

func TestTurnRequiresSession(t *testing.T) {
	o, err := New(nil, sqliteStore(t))
	require.NoError(t, err)
	_, err = o.Turn(context.Background(), TurnInput{Text: "oi"})
	assert.True(t, errors.Is(err, ErrMissingSession))
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestTurnPersistsAndTraces(t *testing.T) {
	store := sqliteStore(t)
	o, err := New(catalog.NewHolder(catalog.MustDefault()), store,
		WithTraceDB(store.DB()),
		WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	ctx := context.Background()

	r1, err := o.Turn(ctx, TurnInput{SessionID: "s1", TurnID: "t1", Text: "não consigo parar de pensar", At: t0, Decision: moderate()})
	require.NoError(t, err)
	assert.Equal(t, ActionCommit, r1.Action)
	assert.Contains(t, r1.Result.Debug.SelectedModules, "HEUR_RUMINACAO")

	cur, err := o.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, r1.VersionID, cur.VersionID)
	assert.Equal(t, 2, cur.Cooldowns["HEUR_RUMINACAO"])

	r2, err := o.Turn(ctx, TurnInput{SessionID: "s1", TurnID: "t2", Text: "não consigo parar de pensar", At: t0.Add(time.Minute), Decision: moderate()})
	require.NoError(t, err)
	assert.NotContains(t, r2.Result.Debug.SelectedModules, "HEUR_RUMINACAO")

	versions, err := store.ListVersions(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	traces, err := logging.ListTraces(store.DB(), "s1", 10)
	require.NoError(t, err)
	require.Len(t, traces, 2)
	assert.Equal(t, r2.VersionID, traces[0].VersionID)
	assert.Equal(t, "commit", traces[1].Decision)
	assert.Equal(t, logging.PromptHash(r1.Result.Prompt), traces[1].PromptHash)
}

func TestTurnFillsClockAndTurnID(t *testing.T) {
	o, err := New(nil, sqliteStore(t), WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)

	r, err := o.Turn(context.Background(), TurnInput{SessionID: "s1", Text: "urgente agora", Decision: moderate()})
	require.NoError(t, err)
	assert.NotEmpty(t, r.TurnID)
	assert.True(t, r.Decision.Heuristics.EvaluatedAt.Equal(t0))
	assert.True(t, r.Decision.Signals["urgency"].LastSeenAt.Equal(t0))
}

func TestTurnAppliesHeuristicsDefaults(t *testing.T) {
	o, err := New(nil, sqliteStore(t), WithHeuristics(decision.HeuristicsConfig{Mode: decision.ModeShadow}))
	require.NoError(t, err)

	r, err := o.Turn(context.Background(), TurnInput{SessionID: "s1", Text: "não consigo parar de pensar", At: t0, Decision: moderate()})
	require.NoError(t, err)
	assert.NotContains(t, r.Result.Debug.SelectedModules, "HEUR_RUMINACAO", "shadow mode never opens gates")
	assert.Empty(t, r.Fired)
}

func TestTurnEvalFailureKeepsState(t *testing.T) {
	store := sqliteStore(t)
	o, err := New(nil, store, WithEvalConfig(eval.EvalConfig{MaxPromptBytes: 10}))
	require.NoError(t, err)

	r, err := o.Turn(context.Background(), TurnInput{SessionID: "s1", Text: "oi", At: t0, Decision: moderate()})
	require.NoError(t, err)
	assert.Equal(t, ActionEvalFail, r.Action)

	_, err = store.Load(context.Background(), "s1")
	assert.True(t, errors.Is(err, history.ErrNotFound))
}

func TestTurnRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := history.DialRedis(context.Background(), mr.Addr(), history.RedisStoreConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	o, err := New(nil, store)
	require.NoError(t, err)

	r, err := o.Turn(context.Background(), TurnInput{SessionID: "s1", Text: "preciso resolver isso agora, é urgente", At: t0, Decision: moderate()})
	require.NoError(t, err)
	assert.Contains(t, r.Result.Debug.SelectedModules, "HEUR_URGENCIA")

	cur, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, cur.Cooldowns["HEUR_URGENCIA"])
}

// runConcurrentTurns drives turns on sessions s0..s<sessions-1> from one
// goroutine per turn and checks every session advanced.
func runConcurrentTurns(t *testing.T, o *Orchestrator, sessions, turns int) {
	t.Helper()
	var wg sync.WaitGroup
	errs := make(chan error, sessions*turns)
	for i := range sessions {
		for j := range turns {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := o.Turn(context.Background(), TurnInput{
					SessionID: fmt.Sprintf("s%d", i),
					Text:      "fico pensando",
					At:        t0.Add(time.Duration(j) * time.Minute),
					Decision:  moderate(),
				})
				errs <- err
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for i := range sessions {
		cur, err := o.Session(context.Background(), fmt.Sprintf("s%d", i))
		require.NoError(t, err)
		assert.True(t, cur.Turn >= 1 && cur.Turn <= turns, "turn count %d", cur.Turn)
	}
}

func TestTurnConcurrentSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := history.DialRedis(context.Background(), mr.Addr(), history.RedisStoreConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	o, err := New(nil, store)
	require.NoError(t, err)

	runConcurrentTurns(t, o, 4, 4)
	assert.Zero(t, o.lockedSessions(), "session locks released")
}

func TestLockSerializesAndReleases(t *testing.T) {
	o, err := New(nil, sqliteStore(t))
	require.NoError(t, err)

	unlock := o.lock("s1")
	acquired := make(chan struct{})
	go func() {
		release := o.lock("s1")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second turn on the same session did not wait")
	case <-time.After(50 * time.Millisecond):
	}
	other := o.lock("s2")
	assert.Equal(t, 2, o.lockedSessions())
	other()

	unlock()
	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("waiting turn never acquired the lock")
	}
	require.Eventually(t, func() bool { return o.lockedSessions() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTurnConcurrentSessionsSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := history.NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// A second handle on the same file, as serve uses when trace.path
	// names the store's database but is opened on its own.
	traceDB, err := logging.OpenTraceDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { traceDB.Close() })

	o, err := New(nil, store, WithTraceDB(traceDB))
	require.NoError(t, err)

	runConcurrentTurns(t, o, 16, 10)
	assert.Zero(t, o.lockedSessions())

	traces, err := logging.ListTraces(traceDB, "s0", 100)
	require.NoError(t, err)
	assert.Len(t, traces, 10)
}

// #endregion turn-tests
