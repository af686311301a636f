package cli

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-prompt/internal/history"
	"github.com/danielpatrickdp/adaptive-prompt/internal/logging"
)

func newInspectCmd(e *env) *cobra.Command {
	var (
		session  string
		last     int
		versions bool
		jsonOut  bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show recent composition traces or stored versions for a session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if session == "" {
				return errors.New("--session is required")
			}
			if versions {
				return inspectVersions(cmd, e, session, last, jsonOut)
			}
			return inspectTraces(cmd, e, session, last, jsonOut)
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "", "Session id")
	cmd.Flags().IntVar(&last, "last", 20, "Show N most recent entries")
	cmd.Flags().BoolVar(&versions, "versions", false, "List stored session versions instead of traces")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON instead of a table")

	return cmd
}

// #region traces

type traceRow struct {
	TraceID   string   `json:"trace_id"`
	VersionID string   `json:"version_id"`
	Decision  string   `json:"decision"`
	Reason    string   `json:"reason,omitempty"`
	Selected  []string `json:"selected"`
	Prompt    string   `json:"prompt_hash"`
	CreatedAt string   `json:"created_at"`
}

func inspectTraces(cmd *cobra.Command, e *env, session string, last int, jsonOut bool) error {
	db, err := logging.OpenTraceDB(e.cfg.Trace.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := logging.ListTraces(db, session, last)
	if err != nil {
		return err
	}
	slices.Reverse(entries)

	rows := make([]traceRow, len(entries))
	for i, t := range entries {
		rows[i] = traceRow{
			TraceID:   t.TraceID,
			VersionID: t.VersionID,
			Decision:  t.Decision,
			Reason:    t.Reason,
			Prompt:    t.PromptHash,
			CreatedAt: t.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
		if t.SelectedIDs != "" {
			rows[i].Selected = strings.Split(t.SelectedIDs, ",")
		}
	}

	if jsonOut {
		return printJSON(cmd.OutOrStdout(), rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "no traces found")
		return nil
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-12s  %-12s  %-10s  %-12s  %-20s  %s\n", "Trace", "Version", "Decision", "Prompt", "Time", "Selected")
	for _, r := range rows {
		fmt.Fprintf(w, "%-12s  %-12s  %-10s  %-12s  %-20s  %s\n",
			shortID(r.TraceID), shortID(r.VersionID), r.Decision, shortID(r.Prompt), r.CreatedAt, strings.Join(r.Selected, ","))
	}
	return nil
}

// #endregion traces

// #region versions

type versionRow struct {
	VersionID string             `json:"version_id"`
	ParentID  string             `json:"parent_id,omitempty"`
	Turn      int                `json:"turn"`
	CreatedAt string             `json:"created_at"`
	Signals   map[string]float64 `json:"signals"`
	Cooldowns map[string]int     `json:"cooldowns"`
}

func inspectVersions(cmd *cobra.Command, e *env, session string, last int, jsonOut bool) error {
	store, err := openStore(cmd.Context(), e.cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.ListVersions(cmd.Context(), session, last)
	if err != nil {
		return err
	}
	slices.Reverse(recs)

	rows := make([]versionRow, len(recs))
	for i, r := range recs {
		rows[i] = toVersionRow(r)
	}

	if jsonOut {
		return printJSON(cmd.OutOrStdout(), rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "no versions found")
		return nil
	}
	printVersions(cmd.OutOrStdout(), rows)
	return nil
}

func toVersionRow(r history.SessionRecord) versionRow {
	row := versionRow{
		VersionID: r.VersionID,
		ParentID:  r.ParentID,
		Turn:      r.Turn,
		CreatedAt: r.CreatedAt.Format("2006-01-02T15:04:05Z"),
		Signals:   make(map[string]float64, len(r.Signals)),
		Cooldowns: r.Cooldowns,
	}
	for name, s := range r.Signals {
		row.Signals[name] = s.Score
	}
	return row
}

func printVersions(w io.Writer, rows []versionRow) {
	fmt.Fprintf(w, "%-12s  %-12s  %4s  %-20s  %-30s  %s\n", "Version", "Parent", "Turn", "Time", "Signals", "Cooldowns")
	for _, r := range rows {
		fmt.Fprintf(w, "%-12s  %-12s  %4d  %-20s  %-30s  %s\n",
			shortID(r.VersionID), shortID(r.ParentID), r.Turn, r.CreatedAt, formatScores(r.Signals), formatCooldowns(r.Cooldowns))
	}
}

// #endregion versions

// #region helpers

func shortID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func formatScores(m map[string]float64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.2f", k, m[k])
	}
	return strings.Join(parts, " ")
}

func formatCooldowns(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, m[k])
	}
	return strings.Join(parts, " ")
}

// #endregion helpers
