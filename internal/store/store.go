package store

import (
	"context"
	"fmt"

	"governance-sync/internal/config"
	"governance-sync/internal/record"
)

// Store defines the behaviour expected from any back-end holding the sync
// checkpoint (a JSON file, SQLite, MySQL).
//
// Load returns the genesis state when nothing has been saved yet; that case is
// not an error. Save must be all-or-nothing: after a failed Save the
// previously saved state is still what Load returns.
//
// Failures are wrapped with record.ErrStoreFailure.
type Store interface {
	Load(ctx context.Context) (record.State, error)
	Save(ctx context.Context, st record.State) error
	Close() error
}

// Open builds the back-end selected by the storage configuration and wraps
// it with the configured retry policy.
func Open(cfg config.StorageConfig, retry config.RetryConfig, genesis uint64) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Type {
	case config.StorageJSON:
		st = NewJSONStore(cfg.JSON.Path, genesis)
	case config.StorageSQLite:
		st, err = NewSQLStore(DialectSQLite, cfg.SQLite.Path, genesis)
	case config.StorageMySQL:
		st, err = NewSQLStore(DialectMySQL, cfg.MySQL.DSN, genesis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return NewRetryStore(st, retry.Attempts, retry.DelayMS), nil
}

func failure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", record.ErrStoreFailure, op, err)
}
