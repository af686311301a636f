package update

import (
	"slices"
	"testing"
	"time"

	"github.com/danielpatrickdp/adaptive-prompt/internal/catalog"
	"github.com/danielpatrickdp/adaptive-prompt/internal/composer"
	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/history"
	"github.com/danielpatrickdp/adaptive-prompt/internal/signals"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func sig(score float64, at time.Time) signals.BiasSignalState {
	return signals.BiasSignalState{Score: score, Source: signals.SourcePattern, LastSeenAt: at, TTLSeconds: 1800}
}

// #region merge-tests

func TestMergeFreshReplacesDecayed(t *testing.T) {
	stored := map[string]signals.BiasSignalState{"urgency": sig(0.8, t0.Add(-20*time.Minute))}
	fresh := map[string]signals.BiasSignalState{"urgency": sig(0.5, t0)}

	out, m := MergeSignals(stored, fresh, t0, DefaultConfig())
	if out["urgency"].Score != 0.5 || !out["urgency"].LastSeenAt.Equal(t0) {
		t.Fatalf("expected fresh entry (0.8 decayed to 0.4 < 0.5), got %+v", out["urgency"])
	}
	if !slices.Equal(m.SignalsMerged, []string{"urgency"}) {
		t.Fatalf("expected merged [urgency], got %v", m.SignalsMerged)
	}
	if stored["urgency"].Score != 0.8 {
		t.Fatal("stored map modified")
	}
}

func TestMergeKeepsStrongerStored(t *testing.T) {
	stored := map[string]signals.BiasSignalState{"urgency": sig(0.9, t0.Add(-time.Minute))}
	fresh := map[string]signals.BiasSignalState{"urgency": sig(0.3, t0)}

	out, m := MergeSignals(stored, fresh, t0, DefaultConfig())
	if out["urgency"].Score != 0.9 {
		t.Fatalf("expected stored entry kept, got %+v", out["urgency"])
	}
	if !slices.Equal(m.SignalsKept, []string{"urgency"}) {
		t.Fatalf("expected kept [urgency], got %v", m.SignalsKept)
	}
}

func TestMergePrunesExpiredAndFaded(t *testing.T) {
	stored := map[string]signals.BiasSignalState{
		"expired": sig(0.9, t0.Add(-time.Hour)),
		"faded":   {Score: 0.5, LastSeenAt: t0.Add(-10 * time.Hour)},
		"fresh":   sig(0.5, t0.Add(-time.Minute)),
	}
	out, m := MergeSignals(stored, nil, t0, DefaultConfig())

	if _, ok := out["fresh"]; !ok || len(out) != 1 {
		t.Fatalf("expected only fresh to survive, got %v", out)
	}
	if !slices.Equal(m.SignalsPruned, []string{"expired", "faded"}) {
		t.Fatalf("expected pruned [expired faded], got %v", m.SignalsPruned)
	}
}

// #endregion merge-tests

// #region advance-tests

func TestAdvanceCooldownLifecycle(t *testing.T) {
	prev := history.SessionRecord{VersionID: "v1", SessionID: "s1", Turn: 4}

	r1 := Advance(prev, Turn{At: t0, Fired: []Firing{{ModuleID: "HEUR_RUMINACAO", CooldownTurns: 2}}}, DefaultConfig())
	if r1.NewRecord.Cooldowns["HEUR_RUMINACAO"] != 2 {
		t.Fatalf("expected armed cooldown 2, got %v", r1.NewRecord.Cooldowns)
	}
	if r1.Decision.Action != "commit" {
		t.Fatalf("expected commit, got %s", r1.Decision.Action)
	}
	if r1.NewRecord.ParentID != "v1" || r1.NewRecord.Turn != 5 || r1.NewRecord.SessionID != "s1" {
		t.Fatalf("unexpected lineage %+v", r1.NewRecord)
	}

	r2 := Advance(r1.NewRecord, Turn{At: t0.Add(time.Minute)}, DefaultConfig())
	if r2.NewRecord.Cooldowns["HEUR_RUMINACAO"] != 1 {
		t.Fatalf("expected cooldown 1, got %v", r2.NewRecord.Cooldowns)
	}

	r3 := Advance(r2.NewRecord, Turn{At: t0.Add(2 * time.Minute)}, DefaultConfig())
	if _, ok := r3.NewRecord.Cooldowns["HEUR_RUMINACAO"]; ok {
		t.Fatalf("expected cooldown dropped, got %v", r3.NewRecord.Cooldowns)
	}
	if !slices.Equal(r3.Metrics.CooldownsExpired, []string{"HEUR_RUMINACAO"}) {
		t.Fatalf("expected expiry metric, got %v", r3.Metrics.CooldownsExpired)
	}
}

func TestAdvanceNoOp(t *testing.T) {
	prev := history.SessionRecord{VersionID: "v1", SessionID: "s1"}
	r := Advance(prev, Turn{At: t0}, DefaultConfig())
	if r.Decision.Action != "no_op" {
		t.Fatalf("expected no_op, got %s: %s", r.Decision.Action, r.Decision.Reason)
	}
	if r.NewRecord.VersionID == prev.VersionID {
		t.Fatal("new version should have a new id")
	}
}

func TestAdvanceDoesNotModifyPrev(t *testing.T) {
	prev := history.SessionRecord{
		VersionID: "v1",
		Cooldowns: map[string]int{"A": 2},
		Signals:   map[string]signals.BiasSignalState{"urgency": sig(0.5, t0)},
	}
	Advance(prev, Turn{At: t0, Fired: []Firing{{ModuleID: "B", CooldownTurns: 1}}}, DefaultConfig())
	if prev.Cooldowns["A"] != 2 || len(prev.Cooldowns) != 1 {
		t.Fatalf("prev cooldowns modified: %v", prev.Cooldowns)
	}
}

func TestAdvanceDeterministicState(t *testing.T) {
	prev := history.SessionRecord{VersionID: "v1", Cooldowns: map[string]int{"A": 3}}
	turn := Turn{At: t0, Signals: map[string]signals.BiasSignalState{"urgency": sig(0.5, t0)}}
	a := Advance(prev, turn, DefaultConfig())
	b := Advance(prev, turn, DefaultConfig())
	if a.NewRecord.Cooldowns["A"] != b.NewRecord.Cooldowns["A"] || a.NewRecord.MetricsJSON != b.NewRecord.MetricsJSON {
		t.Fatal("advance not deterministic")
	}
}

// #endregion advance-tests

// #region fired-tests

func TestFiredUsesResolvedCooldown(t *testing.T) {
	cat := catalog.MustDefault()
	d := decision.Decision{
		Openness: decision.OpennessOpen,
		Signals: map[string]signals.BiasSignalState{
			"rumination": sig(0.9, t0),
			"urgency":    sig(0.9, t0),
		},
		Heuristics: decision.HeuristicsConfig{EvaluatedAt: t0},
	}
	res := composer.Compose(d, cat)
	fired := Fired(res, cat, d)

	got := map[string]int{}
	for _, f := range fired {
		got[f.ModuleID] = f.CooldownTurns
	}
	if got["HEUR_RUMINACAO"] != 2 {
		t.Errorf("expected rumination cooldown 2, got %v", got)
	}
	if got["HEUR_URGENCIA"] != 1 {
		t.Errorf("expected urgency cooldown 1, got %v", got)
	}
	if _, ok := got["BASE_IDENTIDADE"]; ok {
		t.Error("ungated modules must not fire")
	}
}

// #endregion fired-tests
