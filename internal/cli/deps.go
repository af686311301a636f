package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/danielpatrickdp/adaptive-prompt/internal/catalog"
	"github.com/danielpatrickdp/adaptive-prompt/internal/config"
	"github.com/danielpatrickdp/adaptive-prompt/internal/history"
	"github.com/danielpatrickdp/adaptive-prompt/internal/logging"
)

// versionStore is a session store that can list past versions. Both
// history stores satisfy it.
type versionStore interface {
	history.Store
	ListVersions(ctx context.Context, sessionID string, limit int) ([]history.SessionRecord, error)
}

// loadCatalog loads dir, or the embedded catalog when dir is empty.
func loadCatalog(dir string) (*catalog.Catalog, error) {
	if dir == "" {
		return catalog.Default()
	}
	return catalog.LoadDir(dir)
}

// openStore opens the session store selected by cfg.Store.
func openStore(ctx context.Context, cfg *config.Config) (versionStore, error) {
	switch cfg.Store.Driver {
	case config.DriverRedis:
		return history.DialRedis(ctx, cfg.Store.RedisAddr, history.RedisStoreConfig{
			Prefix:     cfg.Store.RedisPrefix,
			TTL:        cfg.Store.RedisTTL,
			MaxHistory: cfg.Store.MaxHistory,
		})
	default:
		return history.NewSQLiteStore(cfg.Store.SQLitePath)
	}
}

// openTraceDB opens the trace database, sharing the store's connection when
// both live in the same SQLite file. The returned close func is never nil.
func openTraceDB(cfg *config.Config, store versionStore) (*sql.DB, func() error, error) {
	if s, ok := store.(*history.SQLiteStore); ok && cfg.Trace.Path == cfg.Store.SQLitePath {
		if err := logging.Migrate(s.DB()); err != nil {
			return nil, nil, err
		}
		return s.DB(), func() error { return nil }, nil
	}
	db, err := logging.OpenTraceDB(cfg.Trace.Path)
	if err != nil {
		return nil, nil, err
	}
	return db, db.Close, nil
}

// readInput reads the file named by args[0], or in when args is empty or "-".
func readInput(args []string, in io.Reader) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(in)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args[0], err)
	}
	return data, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
