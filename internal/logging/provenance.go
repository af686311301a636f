package logging

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/adaptive-prompt/internal/composer"
	"github.com/danielpatrickdp/adaptive-prompt/internal/eval"
)

// #region schema

// Schema creates the composition_log table. It is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS composition_log (
	trace_id     TEXT PRIMARY KEY,
	session_id   TEXT,
	version_id   TEXT,
	prompt_hash  TEXT NOT NULL,
	selected_ids TEXT NOT NULL,
	debug_json   TEXT,
	decision     TEXT NOT NULL,
	reason       TEXT,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_composition_log_session ON composition_log(session_id, created_at);
`

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Migrate runs Schema against db.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("migrate composition_log: %w", err)
	}
	return nil
}

// OpenTraceDB opens the SQLite database at path and migrates composition_log.
// The file may be shared with a session store, so writers wait on
// busy_timeout instead of failing with SQLITE_BUSY.
func OpenTraceDB(path string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", path+sep+"_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// #endregion schema

// #region log-composition

// LogComposition writes a trace entry to the composition_log table.
// A missing TraceID is filled with a random uuid.
func LogComposition(db *sql.DB, entry TraceEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.TraceID == "" {
		entry.TraceID = uuid.New().String()
	}

	_, err := db.Exec(
		`INSERT INTO composition_log (trace_id, session_id, version_id, prompt_hash, selected_ids, debug_json, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.TraceID,
		nullIfEmpty(entry.SessionID),
		nullIfEmpty(entry.VersionID),
		entry.PromptHash,
		entry.SelectedIDs,
		nullIfEmpty(entry.DebugJSON),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("log composition: %w", err)
	}
	return nil
}

// ListTraces returns up to limit entries for sessionID, newest first.
// Use slices.Reverse for chronological order.
func ListTraces(db *sql.DB, sessionID string, limit int) ([]TraceEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT trace_id, session_id, version_id, prompt_hash, selected_ids, debug_json, decision, reason, created_at
		 FROM composition_log WHERE session_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	defer rows.Close()

	var out []TraceEntry
	for rows.Next() {
		var e TraceEntry
		var session, version, debug, reason sql.NullString
		var created string
		if err := rows.Scan(&e.TraceID, &session, &version, &e.PromptHash, &e.SelectedIDs, &debug, &e.Decision, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		e.SessionID = session.String
		e.VersionID = version.String
		e.DebugJSON = debug.String
		e.Reason = reason.String
		e.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion log-composition

// #region record

// NewCompositionRecord flattens a composition result and its eval outcome.
func NewCompositionRecord(turnID, text string, at time.Time, res composer.Result, ev eval.EvalResult) CompositionRecord {
	d := res.Debug.Derived
	rec := CompositionRecord{
		TurnID:     turnID,
		At:         at.UTC(),
		Text:       text,
		PromptHash: PromptHash(res.Prompt),
		PromptSize: len(res.Prompt),
		Decision:   d.Decision,
		Flags:      d.Flags,
		Mode:       string(d.Heuristics.Mode.Normalized()),
		Selected:   res.Debug.SelectedModules,
		EvalPassed: ev.Passed,
		EvalReason: ev.Reason,
	}
	for _, c := range res.Debug.Candidates {
		rec.Candidates = append(rec.Candidates, CandidateRecord{
			ModuleID:  c.ModuleID,
			Activated: c.Activated,
			Reasons:   c.Reasons,
		})
	}
	for _, e := range res.Debug.SignalLog {
		sr := SignalRecord{
			Signal:         e.Signal,
			RawScore:       e.RawScore,
			EffectiveScore: e.EffectiveScore,
			Opened:         e.Opened,
		}
		for _, s := range e.SuppressedBy {
			sr.SuppressedBy = append(sr.SuppressedBy, string(s))
		}
		rec.SignalLog = append(rec.SignalLog, sr)
	}
	return rec
}

// Entry builds the composition_log row for rec.
func (r CompositionRecord) Entry(sessionID, versionID, decision, reason string) (TraceEntry, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return TraceEntry{}, fmt.Errorf("marshal composition record: %w", err)
	}
	return TraceEntry{
		SessionID:   sessionID,
		VersionID:   versionID,
		PromptHash:  r.PromptHash,
		SelectedIDs: strings.Join(r.Selected, ","),
		DebugJSON:   string(b),
		Decision:    decision,
		Reason:      reason,
	}, nil
}

// PromptHash returns the hex sha256 of prompt.
func PromptHash(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// #endregion record

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
