package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/danielpatrickdp/adaptive-prompt/internal/catalog"
	"github.com/danielpatrickdp/adaptive-prompt/internal/composer"
	"github.com/danielpatrickdp/adaptive-prompt/internal/config"
	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-prompt/internal/replay"
	"github.com/danielpatrickdp/adaptive-prompt/internal/rpc"
	"github.com/danielpatrickdp/adaptive-prompt/internal/signals"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// writeTestConfig writes a config that keeps every file under a temp dir.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	body := "log:\n  level: error\nstore:\n  sqlite_path: " + filepath.Join(dir, "composer.db") + "\n" + extra
	path := filepath.Join(dir, "composer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"compose", "analyze", "serve", "replay", "inspect", "export", "version"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestVersionSkipsConfig(t *testing.T) {
	out, err := runCmd(t, "", "version", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "composer dev (unknown)\n", out)
}

func TestInvalidConfigFails(t *testing.T) {
	cfgPath := writeTestConfig(t, "heuristics:\n  mode: canary\n")
	_, err := runCmd(t, "", "analyze", "--config", cfgPath, "oi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heuristics")
}

// #region compose

const composeInput = `{"intensity": 8, "openness": "closed", "tags": ["nv3"], "hasTechBlock": true,
	"heuristicsConfig": {"evaluatedAt": "2026-03-14T12:00:00Z"}}`

func TestComposeFromStdin(t *testing.T) {
	cfgPath := writeTestConfig(t, "")

	out, err := runCmd(t, composeInput, "compose", "--config", cfgPath)
	require.NoError(t, err)

	var d decision.Decision
	require.NoError(t, json.Unmarshal([]byte(composeInput), &d))
	want := composer.Compose(d, catalog.MustDefault())
	assert.Equal(t, want.Prompt, out)
}

func TestComposeFromFileWithCheck(t *testing.T) {
	cfgPath := writeTestConfig(t, "")
	in := filepath.Join(t.TempDir(), "decision.json")
	require.NoError(t, os.WriteFile(in, []byte(composeInput), 0o644))

	out, err := runCmd(t, "", "compose", "--config", cfgPath, "--check", "--debug", in)
	require.NoError(t, err)

	var got composeOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Contains(t, got.Modules, "NV3_CORE")
	assert.Contains(t, got.Modules, "BLOCO_TECNICO_MEMORIA")
	require.NotNil(t, got.Debug)
	assert.Len(t, got.Debug.Candidates, catalog.MustDefault().Len())
	require.NotNil(t, got.Eval)
	assert.True(t, got.Eval.Passed, got.Eval.Reason)
}

func TestComposeCheckFailure(t *testing.T) {
	cfgPath := writeTestConfig(t, "eval:\n  max_prompt_bytes: 10\n")

	_, err := runCmd(t, composeInput, "compose", "--config", cfgPath, "--check")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errCheckFailed))
}

func TestComposeStrictRejectsInvalid(t *testing.T) {
	cfgPath := writeTestConfig(t, "")
	bad := `{"intensity": 42, "openness": "wide"}`

	_, err := runCmd(t, bad, "compose", "--config", cfgPath, "--strict")
	require.Error(t, err)
	assert.True(t, errors.Is(err, decision.ErrInvalidDecision))

	_, err = runCmd(t, bad, "compose", "--config", cfgPath)
	require.NoError(t, err, "lenient by default")
}

func TestComposeCatalogFlag(t *testing.T) {
	cfgPath := writeTestConfig(t, "")
	dir := t.TempDir()
	module := "---\nid: ONLY\norder: 1\n---\nsó este módulo\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "only.md"), []byte(module), 0o644))

	out, err := runCmd(t, `{}`, "compose", "--config", cfgPath, "--catalog", dir)
	require.NoError(t, err)
	assert.Equal(t, "só este módulo", strings.TrimSpace(out))
}

// #endregion compose

// #region analyze

func TestAnalyzeArgs(t *testing.T) {
	cfgPath := writeTestConfig(t, "")

	out, err := runCmd(t, "", "analyze", "--config", cfgPath, "--at", "2026-03-14T12:00:00Z", "preciso", "resolver", "isso", "agora")
	require.NoError(t, err)

	var got map[string]signals.BiasSignalState
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Contains(t, got, "urgency")
	assert.InDelta(t, 0.7, got["urgency"].Score, 1e-9)
	assert.True(t, got["urgency"].LastSeenAt.Equal(t0))
}

func TestAnalyzeStdin(t *testing.T) {
	cfgPath := writeTestConfig(t, "")

	out, err := runCmd(t, "não consigo parar de pensar", "analyze", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "rumination")
}

// #endregion analyze

// #region replay

func TestReplayFixtureMatches(t *testing.T) {
	fixture, err := filepath.Abs(filepath.Join("..", "replay", "testdata", "session.json"))
	require.NoError(t, err)
	cfgPath := writeTestConfig(t, "")

	out, err := runCmd(t, "", "replay", "--config", cfgPath, fixture)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Summary: 7 total, 7 match, 0 diverge")
}

func TestReplayFixtureDiverges(t *testing.T) {
	cfgPath := writeTestConfig(t, "")
	f := replay.Fixture{
		SessionID: "s",
		StartAt:   t0,
		Turns: []replay.FixtureTurn{{
			TurnID:         "t1",
			Text:           "oi",
			ExpectAction:   "commit",
			ExpectSelected: []string{"NOT_A_MODULE"},
		}},
	}
	data, err := json.Marshal(f)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "fixture.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	out, err := runCmd(t, "", "replay", "--config", cfgPath, path)
	assert.True(t, errors.Is(err, errDiverged))
	assert.Contains(t, out, "DIFF")
}

// #endregion replay

// #region serve

// startServe runs serve on a loopback listener. The returned stop func
// shuts it down and is also registered as a cleanup.
func startServe(t *testing.T, cfg *config.Config) (*rpc.Client, func()) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, lis, zaptest.NewLogger(t), &bytes.Buffer{}) }()

	c, err := rpc.Dial(lis.Addr().String())
	require.NoError(t, err)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			c.Close()
			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Error("serve did not stop")
			}
		})
	}
	t.Cleanup(stop)
	return c, stop
}

func TestServeTurnsThenInspectAndExport(t *testing.T) {
	cfgPath := writeTestConfig(t, "")
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	c, stop := startServe(t, cfg)
	ctx := context.Background()

	resp, err := c.Compose(ctx, decision.Decision{Heuristics: decision.HeuristicsConfig{EvaluatedAt: t0}}, false)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Prompt)

	in := orchestrator.TurnInput{
		SessionID: "s1",
		TurnID:    "t1",
		Text:      "não consigo parar de pensar",
		At:        t0,
		Decision:  decision.Decision{Intensity: 5, Openness: decision.OpennessModerate},
	}
	r1, err := c.Turn(ctx, in, false)
	require.NoError(t, err)
	assert.Contains(t, r1.Modules, "HEUR_RUMINACAO")

	in.TurnID, in.Text, in.At = "t2", "oi", t0.Add(time.Minute)
	r2, err := c.Turn(ctx, in, false)
	require.NoError(t, err)
	assert.NotContains(t, r2.Modules, "HEUR_RUMINACAO")
	stop()

	out, err := runCmd(t, "", "inspect", "--config", cfgPath, "--session", "s1", "--json")
	require.NoError(t, err)
	var traces []traceRow
	require.NoError(t, json.Unmarshal([]byte(out), &traces))
	require.Len(t, traces, 2)
	assert.Equal(t, "commit", traces[0].Decision)
	assert.Contains(t, traces[0].Selected, "HEUR_RUMINACAO")

	out, err = runCmd(t, "", "inspect", "--config", cfgPath, "--session", "s1", "--versions", "--json")
	require.NoError(t, err)
	var versions []versionRow
	require.NoError(t, json.Unmarshal([]byte(out), &versions))
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Cooldowns["HEUR_RUMINACAO"])
	assert.Equal(t, 1, versions[1].Cooldowns["HEUR_RUMINACAO"])

	fixture := filepath.Join(t.TempDir(), "exported.json")
	_, err = runCmd(t, "", "export", "--config", cfgPath, "--session", "s1", "--out", fixture)
	require.NoError(t, err)

	f, err := replay.LoadFixture(fixture)
	require.NoError(t, err)
	require.Len(t, f.Turns, 2)
	assert.Equal(t, "t1", f.Turns[0].TurnID)
	assert.Equal(t, 60.0, f.Turns[1].OffsetSeconds)
	assert.Nil(t, f.Turns[0].Decision.Signals)

	out, err = runCmd(t, "", "replay", "--config", cfgPath, fixture)
	require.NoError(t, err, out)
	assert.Contains(t, out, "2 match, 0 diverge")
}

// #endregion serve
