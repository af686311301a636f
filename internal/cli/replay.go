package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-prompt/internal/replay"
)

// errDiverged is returned when a replay does not reproduce its fixture.
var errDiverged = errors.New("replay diverged from fixture")

func newReplayCmd(e *env) *cobra.Command {
	var (
		catalogDir string
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "replay <fixture.json>",
		Short: "Replay a recorded session and compare against its expectations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := replay.LoadFixture(args[0])
			if err != nil {
				return err
			}
			dir := e.cfg.Catalog.Dir
			if cmd.Flags().Changed("catalog") {
				dir = catalogDir
			}
			cat, err := loadCatalog(dir)
			if err != nil {
				return err
			}

			results, final := replay.Replay(f.StartRecord(), f.ToTurns(), cat, f.Config.ToReplayConfig())
			rows := compareFixture(f, results)

			if jsonOut {
				if err := printJSON(cmd.OutOrStdout(), struct {
					Rows    []comparisonRow      `json:"rows"`
					Summary replay.ReplaySummary `json:"summary"`
				}{rows, replay.Summarize(results, final)}); err != nil {
					return err
				}
			} else {
				printComparison(cmd.OutOrStdout(), rows)
			}

			for _, r := range rows {
				if !r.Match {
					return errDiverged
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogDir, "catalog", "", "Catalog directory (overrides catalog.dir)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON instead of a table")

	return cmd
}

// #region compare

type comparisonRow struct {
	TurnID         string   `json:"turn_id"`
	ExpectAction   string   `json:"expect_action"`
	Action         string   `json:"action"`
	ExpectSelected []string `json:"expect_selected"`
	Selected       []string `json:"selected"`
	Match          bool     `json:"match"`
}

// compareFixture pairs each fixture turn with its replayed result. An empty
// expectation matches anything.
func compareFixture(f *replay.Fixture, results []replay.ReplayResult) []comparisonRow {
	rows := make([]comparisonRow, 0, len(f.Turns))
	for i, ft := range f.Turns {
		row := comparisonRow{
			TurnID:         ft.TurnID,
			ExpectAction:   ft.ExpectAction,
			ExpectSelected: ft.ExpectSelected,
		}
		if i < len(results) {
			r := results[i]
			row.Action = r.Action
			row.Selected = r.Selected
			row.Match = (ft.ExpectAction == "" || ft.ExpectAction == r.Action) &&
				(ft.ExpectSelected == nil || r.SelectedEqual(ft.ExpectSelected))
		}
		rows = append(rows, row)
	}
	return rows
}

func printComparison(w io.Writer, rows []comparisonRow) {
	fmt.Fprintf(w, "%-12s| %-10s| %-10s| %-5s| %s\n", "Turn", "Expected", "Replayed", "Match", "Selected")
	fmt.Fprintf(w, "%-12s+%-11s+%-11s+%-6s+%s\n",
		"------------", "-----------", "-----------", "------", "--------------------")

	matches := 0
	for _, r := range rows {
		match := "DIFF"
		if r.Match {
			match = "OK"
			matches++
		}
		fmt.Fprintf(w, "%-12s| %-10s| %-10s| %-5s| %s\n", r.TurnID, r.ExpectAction, r.Action, match, strings.Join(r.Selected, ","))
		if !r.Match && r.ExpectSelected != nil {
			fmt.Fprintf(w, "%-12s  expected: %s\n", "", strings.Join(r.ExpectSelected, ","))
		}
	}
	fmt.Fprintf(w, "\nSummary: %d total, %d match, %d diverge\n", len(rows), matches, len(rows)-matches)
}

// #endregion compare
