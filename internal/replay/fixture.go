package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/history"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string        `json:"description"`
	SessionID   string        `json:"session_id"`
	StartAt     time.Time     `json:"start_at"`
	Config      FixtureConfig `json:"config"`
	Turns       []FixtureTurn `json:"turns"`
}

// FixtureTurn is one recorded message plus what replay is expected to produce.
type FixtureTurn struct {
	TurnID         string            `json:"turn_id"`
	Text           string            `json:"text"`
	OffsetSeconds  float64           `json:"offset_seconds"` // from StartAt
	Decision       decision.Decision `json:"decision"`
	ExpectAction   string            `json:"expect_action"`
	ExpectSelected []string          `json:"expect_selected"`
}

// FixtureConfig bundles the sub-configs for a replay run. Zero values fall
// back to the defaults.
type FixtureConfig struct {
	HalfLifeSeconds float64            `json:"half_life_seconds"`
	SignalHalfLives map[string]float64 `json:"signal_half_lives"`
	PruneBelow      float64            `json:"prune_below"`
	MaxPromptBytes  int                `json:"max_prompt_bytes"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// StartRecord returns the empty session record a fixture starts from.
func (f *Fixture) StartRecord() history.SessionRecord {
	return history.SessionRecord{
		SessionID: f.SessionID,
		CreatedAt: f.StartAt,
	}
}

// ToTurns converts fixture turns to domain turns with absolute timestamps.
func (f *Fixture) ToTurns() []Turn {
	out := make([]Turn, len(f.Turns))
	for i, ft := range f.Turns {
		out[i] = Turn{
			TurnID:   ft.TurnID,
			Text:     ft.Text,
			At:       f.StartAt.Add(time.Duration(ft.OffsetSeconds * float64(time.Second))),
			Decision: ft.Decision,
		}
	}
	return out
}

// ToReplayConfig converts a FixtureConfig to a domain ReplayConfig.
func (fc *FixtureConfig) ToReplayConfig() ReplayConfig {
	config := DefaultReplayConfig()
	if fc.HalfLifeSeconds > 0 {
		config.UpdateConfig.HalfLifeSeconds = fc.HalfLifeSeconds
	}
	if len(fc.SignalHalfLives) > 0 {
		config.UpdateConfig.SignalHalfLives = fc.SignalHalfLives
	}
	if fc.PruneBelow > 0 {
		config.UpdateConfig.PruneBelow = fc.PruneBelow
	}
	if fc.MaxPromptBytes > 0 {
		config.EvalConfig.MaxPromptBytes = fc.MaxPromptBytes
	}
	return config
}

// #endregion fixture-loader

// #region fixture-export

// Export records a replay run as a fixture whose expectations are the observed
// outcomes, for use as a regression baseline.
func Export(description string, start history.SessionRecord, turns []Turn, results []ReplayResult, config ReplayConfig) Fixture {
	f := Fixture{
		Description: description,
		SessionID:   start.SessionID,
		StartAt:     start.CreatedAt,
		Config: FixtureConfig{
			HalfLifeSeconds: config.UpdateConfig.HalfLifeSeconds,
			SignalHalfLives: config.UpdateConfig.SignalHalfLives,
			PruneBelow:      config.UpdateConfig.PruneBelow,
			MaxPromptBytes:  config.EvalConfig.MaxPromptBytes,
		},
	}
	if f.StartAt.IsZero() && len(turns) > 0 {
		f.StartAt = turns[0].At
	}
	for i, t := range turns {
		ft := FixtureTurn{
			TurnID:        t.TurnID,
			Text:          t.Text,
			OffsetSeconds: t.At.Sub(f.StartAt).Seconds(),
			Decision:      t.Decision,
		}
		if i < len(results) {
			ft.ExpectAction = results[i].Action
			ft.ExpectSelected = results[i].Selected
		}
		f.Turns = append(f.Turns, ft)
	}
	return f
}

// #endregion fixture-export
