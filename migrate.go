package partsearch

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"
)

// legacyTableName is the single data table of the pre-multi-source
// store layout.
const legacyTableName = "products"

// legacySourceName identifies the registered legacy source after an
// upgrade, matching how the first catalog deployments labeled it.
const legacySourceName = "Legacy Import"

// legacySourceID is reserved for the wrapped legacy source; imported
// sources number upward from 1.
const legacySourceID = 0

// Upgrade migrates a store file from the legacy single-table layout to
// the current multi-source layout. The legacy rows are never copied or
// rewritten: the existing table is kept in place, gains an ordinal
// column, and is registered as an ordinary source so searches and
// re-imports treat it like any other file.
//
// Upgrade is idempotent. A store already on the current layout and a
// missing store file are both no-ops.
func Upgrade(ctx context.Context, storePath string, logger *Logger) error {
	if logger == nil {
		logger = NoopLogger()
	}

	if _, err := os.Stat(storePath); os.IsNotExist(err) {
		logger.Debug("no store file, nothing to upgrade", "path", storePath)
		return nil
	} else if err != nil {
		return fmt.Errorf("%w: failed to stat store: %w", ErrMigration, err)
	}

	db, err := sql.Open("sqlite", storePath+storeDSNOptions)
	if err != nil {
		return fmt.Errorf("%w: failed to open store: %w", ErrMigration, err)
	}
	defer db.Close()

	hasSources, err := tableExists(ctx, db, "sources")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}
	if hasSources {
		return nil
	}

	hasLegacy, err := tableExists(ctx, db, legacyTableName)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}
	if !hasLegacy {
		// Fresh or empty store; normal bootstrap handles it.
		return nil
	}

	logger.Info("upgrading legacy store layout", "path", storePath)
	if err := upgradeLegacyTable(ctx, db); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}
	logger.Info("legacy store upgraded", "path", storePath)
	return nil
}

// tableExists reports whether a table of that name is present.
func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}
	return count > 0, nil
}

// upgradeLegacyTable wraps the legacy table in source metadata inside
// one transaction, so a failure leaves the store untouched and a later
// retry starts clean.
func upgradeLegacyTable(ctx context.Context, db *sql.DB) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upgrade: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	columns, err := legacyColumns(ctx, tx)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return fmt.Errorf("legacy table %q has no columns", legacyTableName)
	}

	hasOrdinal := false
	for _, col := range columns {
		if col == "ordinal" {
			hasOrdinal = true
			break
		}
	}
	if !hasOrdinal {
		if _, err = tx.ExecContext(ctx,
			fmt.Sprintf(`ALTER TABLE %s ADD COLUMN ordinal INTEGER`, quoteIdent(legacyTableName))); err != nil {
			return fmt.Errorf("failed to add ordinal column: %w", err)
		}
	}
	if _, err = tx.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %[1]s SET ordinal = (SELECT COUNT(*) FROM %[1]s AS prior WHERE prior.rowid < %[1]s.rowid) WHERE ordinal IS NULL`,
		quoteIdent(legacyTableName))); err != nil {
		return fmt.Errorf("failed to number legacy rows: %w", err)
	}

	for _, stmt := range metadataDDL {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create metadata tables: %w", err)
		}
	}

	var rowCount int64
	if err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(legacyTableName))).Scan(&rowCount); err != nil {
		return fmt.Errorf("failed to count legacy rows: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO sources (source_id, name, original_filename, table_name, imported_at, row_count, schema_version, status)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
		legacySourceID, legacySourceName, legacySourceName, legacyTableName,
		time.Now().UTC().Format(time.RFC3339), rowCount, sourceStatusActive); err != nil {
		return fmt.Errorf("failed to register legacy source: %w", err)
	}

	// Registered names must stay the physical column names: the data
	// table is kept as-is, and searches reference columns through the
	// registry.
	ordinal := 0
	for _, col := range columns {
		if col == "ordinal" {
			continue
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO source_columns (source_id, ordinal, name, original_label, is_indexed) VALUES (?, ?, ?, ?, 0)`,
			legacySourceID, ordinal, col, col); err != nil {
			return fmt.Errorf("failed to register legacy column %q: %w", col, err)
		}
		ordinal++
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upgrade: %w", err)
	}
	return nil
}

// legacyColumns lists the legacy table's column names in declaration
// order.
func legacyColumns(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(legacyTableName)))
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy schema: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan legacy schema: %w", err)
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}
