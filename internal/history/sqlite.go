package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/adaptive-prompt/internal/signals"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS session_versions (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	session_id    TEXT NOT NULL,
	turn          INTEGER NOT NULL,
	signals_json  TEXT NOT NULL,
	cooldowns     TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	metrics_json  TEXT,
	FOREIGN KEY (parent_id) REFERENCES session_versions(version_id)
);

CREATE INDEX IF NOT EXISTS idx_session_versions_session ON session_versions(session_id, turn);

CREATE TABLE IF NOT EXISTS active_session (
	session_id    TEXT PRIMARY KEY,
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES session_versions(version_id)
);
`

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #endregion schema

// #region store-struct

// SQLiteStore keeps every version of every session and an active pointer per
// session, so a session can be rolled back to any earlier turn.
type SQLiteStore struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor

// NewSQLiteStore opens a SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time; other handles on the same file wait on busy_timeout.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// dsn applies the pragmas to every pooled connection, not just the first.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region create-session

// CreateSession writes an empty turn-0 version and makes it active.
func (s *SQLiteStore) CreateSession(ctx context.Context, sessionID string, now time.Time) (SessionRecord, error) {
	rec := SessionRecord{
		VersionID: uuid.New().String(),
		SessionID: sessionID,
		Signals:   map[string]signals.BiasSignalState{},
		Cooldowns: map[string]int{},
		CreatedAt: now.UTC(),
	}
	if err := s.Commit(ctx, rec); err != nil {
		return SessionRecord{}, fmt.Errorf("create session %s: %w", sessionID, err)
	}
	return rec, nil
}

// #endregion create-session

// #region get

// GetCurrent reads the active version of a session.
func (s *SQLiteStore) GetCurrent(ctx context.Context, sessionID string) (SessionRecord, error) {
	var versionID string
	err := s.db.QueryRowContext(ctx,
		`SELECT version_id FROM active_session WHERE session_id = ?`, sessionID,
	).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(ctx, versionID)
}

// GetVersion retrieves a specific version by ID.
func (s *SQLiteStore) GetVersion(ctx context.Context, id string) (SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT version_id, parent_id, session_id, turn, signals_json, cooldowns, created_at, metrics_json
		 FROM session_versions WHERE version_id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, fmt.Errorf("version %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return rec, nil
}

// #endregion get

// #region commit

// Commit inserts rec and points its session at it, atomically.
func (s *SQLiteStore) Commit(ctx context.Context, rec SessionRecord) error {
	sigJSON, err := json.Marshal(nonNilSignals(rec.Signals))
	if err != nil {
		return fmt.Errorf("marshal signals: %w", err)
	}
	cdJSON, err := json.Marshal(nonNilCooldowns(rec.Cooldowns))
	if err != nil {
		return fmt.Errorf("marshal cooldowns: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parentPtr any
	if rec.ParentID != "" {
		parentPtr = rec.ParentID
	}
	var metricsPtr any
	if rec.MetricsJSON != "" {
		metricsPtr = rec.MetricsJSON
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_versions (version_id, parent_id, session_id, turn, signals_json, cooldowns, created_at, metrics_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.VersionID, parentPtr, rec.SessionID, rec.Turn, string(sigJSON), string(cdJSON),
		rec.CreatedAt.UTC().Format(timeLayout), metricsPtr,
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO active_session (session_id, version_id) VALUES (?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET version_id = excluded.version_id`,
		rec.SessionID, rec.VersionID,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	return tx.Commit()
}

// #endregion commit

// #region rollback

// Rollback points sessionID back at an earlier version of the same session.
func (s *SQLiteStore) Rollback(ctx context.Context, sessionID, targetVersionID string) error {
	var owner string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id FROM session_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("version %s: %w", targetVersionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if owner != sessionID {
		return fmt.Errorf("version %s belongs to session %s, not %s", targetVersionID, owner, sessionID)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE active_session SET version_id = ? WHERE session_id = ?`, targetVersionID, sessionID)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region list-versions

// ListVersions returns the most recent versions of a session, newest first.
func (s *SQLiteStore) ListVersions(ctx context.Context, sessionID string, limit int) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version_id, parent_id, session_id, turn, signals_json, cooldowns, created_at, metrics_json
		 FROM session_versions WHERE session_id = ?
		 ORDER BY turn DESC, created_at DESC LIMIT ?`, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-versions

// #region store-interface

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (SessionRecord, error) {
	return s.GetCurrent(ctx, sessionID)
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, rec SessionRecord) error {
	return s.Commit(ctx, rec)
}

// #endregion store-interface

// #region scan

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (SessionRecord, error) {
	var rec SessionRecord
	var parentID, metricsJSON sql.NullString
	var sigJSON, cdJSON, createdStr string

	if err := sc.Scan(&rec.VersionID, &parentID, &rec.SessionID, &rec.Turn,
		&sigJSON, &cdJSON, &createdStr, &metricsJSON); err != nil {
		return SessionRecord{}, err
	}
	if parentID.Valid {
		rec.ParentID = parentID.String
	}
	if metricsJSON.Valid {
		rec.MetricsJSON = metricsJSON.String
	}
	if err := json.Unmarshal([]byte(sigJSON), &rec.Signals); err != nil {
		return SessionRecord{}, fmt.Errorf("unmarshal signals: %w", err)
	}
	if err := json.Unmarshal([]byte(cdJSON), &rec.Cooldowns); err != nil {
		return SessionRecord{}, fmt.Errorf("unmarshal cooldowns: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

func nonNilSignals(m map[string]signals.BiasSignalState) map[string]signals.BiasSignalState {
	if m == nil {
		return map[string]signals.BiasSignalState{}
	}
	return m
}

func nonNilCooldowns(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

// #endregion scan
