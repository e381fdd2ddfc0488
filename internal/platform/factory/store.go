// Package factory selects and initializes the storage backend.
package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arguslabs/argus/server/internal/config"
	"github.com/arguslabs/argus/server/internal/store"
	"github.com/arguslabs/argus/server/internal/store/postgres"
	"github.com/arguslabs/argus/server/internal/store/sqlite"
)

// NewStore selects the storage adapter based on cfg.DBDriver and ensures
// the schema exists before returning.
func NewStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." && cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := sqlite.EnsureSchema(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return sqlite.NewWithDB(db), nil
	case "postgres":
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return postgres.NewWithDB(db), nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
	}
}
