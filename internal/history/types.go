package history

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/adaptive-prompt/internal/signals"
)

// #region session-record

// SessionRecord is one versioned snapshot of the caller-owned state a session
// carries between turns: bias signals and module cooldown counters.
type SessionRecord struct {
	VersionID   string                             `json:"versionId"`
	ParentID    string                             `json:"parentId,omitempty"`
	SessionID   string                             `json:"sessionId"`
	Turn        int                                `json:"turn"`
	Signals     map[string]signals.BiasSignalState `json:"signals"`
	Cooldowns   map[string]int                     `json:"cooldowns"`
	CreatedAt   time.Time                          `json:"createdAt"`
	MetricsJSON string                             `json:"metrics,omitempty"`
}

// #endregion session-record

// #region store

// ErrNotFound is returned when a session or version does not exist.
var ErrNotFound = errors.New("not found")

// Store persists the latest SessionRecord per session.
type Store interface {
	Load(ctx context.Context, sessionID string) (SessionRecord, error)
	Save(ctx context.Context, rec SessionRecord) error
	Close() error
}

// #endregion store
