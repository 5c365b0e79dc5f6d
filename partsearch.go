package partsearch

import (
	"context"
)

// Engine is the entry point: one open store plus the import and search
// pipeline over it. An Engine is safe for concurrent searches; imports
// assume a single writer per store file.
type Engine struct {
	store  *store
	config Config
	logger *Logger
}

// Open opens (creating if needed) the store at storePath.
func Open(storePath string, config Config) (*Engine, error) {
	return OpenContext(context.Background(), storePath, config)
}

// OpenContext opens the store, upgrading a legacy single-table layout
// first when one is found. An upgrade failure wraps ErrMigration and
// aborts the open: opening anyway would lay down the current layout on
// top of the legacy table and strand its rows.
func OpenContext(ctx context.Context, storePath string, config Config) (*Engine, error) {
	cfg := config.normalized()

	if err := Upgrade(ctx, storePath, cfg.Logger); err != nil {
		return nil, err
	}

	st, err := openStore(ctx, storePath, cfg.Logger)
	if err != nil {
		return nil, err
	}
	return &Engine{
		store:  st,
		config: cfg,
		logger: cfg.Logger,
	}, nil
}

// Close releases the store handle. Searches and imports in flight must
// finish first.
func (e *Engine) Close() error {
	return e.store.close()
}

// ListSources returns every committed source, newest first, with its
// declared columns.
func (e *Engine) ListSources(ctx context.Context) ([]Source, error) {
	return e.store.listSources(ctx)
}

// Stats reports store-wide totals.
func (e *Engine) Stats(ctx context.Context) (*StoreStats, error) {
	return e.store.stats(ctx)
}

// DropSource removes a source and its rows wholesale. Fails with
// ErrSourceNotFound for unknown ids.
func (e *Engine) DropSource(ctx context.Context, sourceID int64) error {
	if err := e.store.dropSource(ctx, sourceID); err != nil {
		return err
	}
	e.logger.Info("source dropped", "source_id", sourceID)
	return nil
}
