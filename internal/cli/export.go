package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/history"
	"github.com/danielpatrickdp/adaptive-prompt/internal/logging"
	"github.com/danielpatrickdp/adaptive-prompt/internal/replay"
)

func newExportCmd(e *env) *cobra.Command {
	var (
		session     string
		last        int
		outPath     string
		description string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a session's composition traces as a replay fixture",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if session == "" {
				return errors.New("--session is required")
			}
			db, err := logging.OpenTraceDB(e.cfg.Trace.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := logging.ListTraces(db, session, last)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("no traces for session %q", session)
			}
			slices.Reverse(entries)

			if description == "" {
				description = fmt.Sprintf("exported from session %s (%d turns)", session, len(entries))
			}
			f, err := fixtureFromTraces(description, session, entries, replay.ReplayConfig{
				UpdateConfig: e.cfg.UpdateSettings(),
				EvalConfig:   e.cfg.EvalSettings(),
			})
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(f, "", "  ")
			if err != nil {
				return err
			}
			data = append(data, '\n')
			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return fmt.Errorf("write fixture: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d turns to %s\n", len(f.Turns), outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "", "Session id")
	cmd.Flags().IntVar(&last, "last", 50, "Export the N most recent turns")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output path (default stdout)")
	cmd.Flags().StringVar(&description, "description", "", "Fixture description")

	return cmd
}

// fixtureFromTraces rebuilds the turns of a session from its traces, oldest
// first. The recorded outcome of each turn becomes its expectation. Decisions
// are stored as composed, so merged signals, cooldowns and the evaluation
// time are dropped; replay derives them again from the text and the clock.
func fixtureFromTraces(description, session string, entries []logging.TraceEntry, cfg replay.ReplayConfig) (replay.Fixture, error) {
	turns := make([]replay.Turn, 0, len(entries))
	observed := make([]replay.ReplayResult, 0, len(entries))
	for _, t := range entries {
		var rec logging.CompositionRecord
		if err := json.Unmarshal([]byte(t.DebugJSON), &rec); err != nil {
			return replay.Fixture{}, fmt.Errorf("decode trace %s: %w", t.TraceID, err)
		}
		at := rec.At
		if at.IsZero() {
			at = t.CreatedAt
		}
		turns = append(turns, replay.Turn{
			TurnID:   rec.TurnID,
			Text:     rec.Text,
			At:       at,
			Decision: upstreamDecision(rec.Decision),
		})
		observed = append(observed, replay.ReplayResult{
			TurnID:   rec.TurnID,
			Action:   t.Decision,
			Selected: rec.Selected,
		})
	}

	start := history.SessionRecord{SessionID: session}
	if len(turns) > 0 {
		start.CreatedAt = turns[0].At
	}
	return replay.Export(description, start, turns, observed, cfg), nil
}

func upstreamDecision(d decision.Decision) decision.Decision {
	d.Signals = nil
	d.Heuristics.Cooldowns = nil
	d.Heuristics.EvaluatedAt = time.Time{}
	return d
}
