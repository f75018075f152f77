package app

import (
	"context"
	"fmt"

	"github.com/MrWong99/sausalign/internal/config"
	"github.com/MrWong99/sausalign/internal/store"
	"github.com/MrWong99/sausalign/internal/store/postgres"
	"github.com/MrWong99/sausalign/internal/store/sqlite"
)

// OpenStore opens the run store selected by cfg. It returns nil, nil when
// persistence is disabled.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.StoreNone:
		return nil, nil
	case config.StoreSQLite:
		s, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("app: open sqlite store: %w", err)
		}
		return s, nil
	case config.StorePostgres:
		s, err := postgres.NewStore(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("app: open postgres store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("app: unknown store driver %q", cfg.Driver)
	}
}
