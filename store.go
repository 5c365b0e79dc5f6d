package partsearch

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Source lifecycle states. A source is invisible to search and listing
// until its import flips it to active.
const (
	sourceStatusImporting = "importing"
	sourceStatusActive    = "active"
)

// storeDSNOptions enables WAL and a lock-wait grace period so readers
// keep working while an import writes.
const storeDSNOptions = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

// store is the SQLite-backed columnar store: one metadata table pair
// plus one data table per source. All cell values are TEXT; NULL is
// the absent-value marker.
type store struct {
	db     *sql.DB
	path   string
	logger *Logger
}

// openStore opens (creating if needed) the store file and bootstraps
// the current schema.
func openStore(ctx context.Context, path string, logger *Logger) (*store, error) {
	db, err := sql.Open("sqlite", path+storeDSNOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}

	s := &store{db: db, path: path, logger: logger}
	if err := s.bootstrap(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// metadataDDL declares the source registry tables. Shared with the
// legacy-layout upgrade, which creates them around an existing data
// table.
var metadataDDL = []string{
	`CREATE TABLE IF NOT EXISTS sources (
		source_id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		table_name TEXT NOT NULL DEFAULT '',
		imported_at TEXT,
		row_count INTEGER NOT NULL DEFAULT 0,
		schema_version INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL DEFAULT 'importing'
	)`,
	`CREATE TABLE IF NOT EXISTS source_columns (
		source_id INTEGER NOT NULL,
		ordinal INTEGER NOT NULL,
		name TEXT NOT NULL,
		original_label TEXT NOT NULL,
		is_indexed INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (source_id, name)
	)`,
}

// bootstrap creates the metadata tables and sweeps sources left in the
// importing state by a crashed writer.
func (s *store) bootstrap(ctx context.Context) error {
	for _, stmt := range metadataDDL {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create metadata tables: %w", err)
		}
	}
	return s.sweepOrphans(ctx)
}

// sweepOrphans removes sources abandoned mid-import. Their data tables
// were never exposed to search, so dropping them is safe. It runs at
// every open, so an import still in flight in another process loses its
// pending state and fails at finalize.
func (s *store) sweepOrphans(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, table_name FROM sources WHERE status = ?`, sourceStatusImporting)
	if err != nil {
		return fmt.Errorf("failed to list orphaned sources: %w", err)
	}
	defer rows.Close()

	type orphan struct {
		id    int64
		table string
	}
	var orphans []orphan
	for rows.Next() {
		var o orphan
		if err := rows.Scan(&o.id, &o.table); err != nil {
			return fmt.Errorf("failed to scan orphaned source: %w", err)
		}
		orphans = append(orphans, o)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, o := range orphans {
		s.logger.Warn("removing source abandoned mid-import", "source_id", o.id)
		if err := s.removeSource(ctx, o.id, o.table); err != nil {
			return err
		}
	}
	return nil
}

// close releases the database handle.
func (s *store) close() error {
	return s.db.Close()
}

// dataTableName is the physical table for a source's rows.
func dataTableName(sourceID int64) string {
	return fmt.Sprintf("src_%d", sourceID)
}

// quoteIdent double-quotes an identifier for SQL interpolation.
// Normalized column names cannot contain quotes, but legacy-migrated
// names may carry arbitrary characters.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// createSource registers a new source in the importing state and
// creates its empty data table. When replace is requested and an
// active source already holds the name, its id is returned so
// finalizeSource can swap it out after the new source commits;
// replaceID is -1 when nothing is being replaced. Without replace the
// name collision fails with ErrDuplicateSource.
func (s *store) createSource(ctx context.Context, name, originalFilename string, columns []Column, replace bool) (sourceID, replaceID int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var oldVersion int
	row := tx.QueryRowContext(ctx,
		`SELECT source_id, schema_version FROM sources WHERE name = ? AND status = ?`,
		name, sourceStatusActive)
	switch scanErr := row.Scan(&replaceID, &oldVersion); {
	case scanErr == sql.ErrNoRows:
		replaceID = -1
	case scanErr != nil:
		return 0, 0, fmt.Errorf("failed to check for existing source: %w", scanErr)
	case !replace:
		return 0, 0, fmt.Errorf("%w: %s", ErrDuplicateSource, name)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sources (name, original_filename, status, schema_version) VALUES (?, ?, ?, ?)`,
		name, originalFilename, sourceStatusImporting, oldVersion+1)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to register source: %w", err)
	}
	sourceID, err = res.LastInsertId()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get source id: %w", err)
	}

	tableName := dataTableName(sourceID)
	if _, err = tx.ExecContext(ctx,
		`UPDATE sources SET table_name = ? WHERE source_id = ?`, tableName, sourceID); err != nil {
		return 0, 0, fmt.Errorf("failed to record data table name: %w", err)
	}

	for _, col := range columns {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO source_columns (source_id, ordinal, name, original_label, is_indexed) VALUES (?, ?, ?, ?, 0)`,
			sourceID, col.Ordinal, col.Name, col.OriginalLabel); err != nil {
			return 0, 0, fmt.Errorf("failed to register column %s: %w", col.Name, err)
		}
	}

	defs := make([]string, 0, len(columns)+1)
	defs = append(defs, "ordinal INTEGER PRIMARY KEY")
	for _, col := range columns {
		defs = append(defs, quoteIdent(col.Name)+" TEXT")
	}
	if _, err = tx.ExecContext(ctx,
		fmt.Sprintf(`CREATE TABLE %s (%s)`, quoteIdent(tableName), strings.Join(defs, ", "))); err != nil {
		return 0, 0, fmt.Errorf("failed to create data table: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit source registration: %w", err)
	}
	return sourceID, replaceID, nil
}

// appendChunk writes one batch of rows as a single transaction.
// columns names the cells each row provides, in row order; it must be
// a subset of the source's declared columns. Rows longer than columns
// are truncated, shorter rows are padded with the null marker.
// Ordinals continue monotonically from the current maximum.
func (s *store) appendChunk(ctx context.Context, sourceID int64, columns []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	declared, err := s.sourceColumns(ctx, sourceID)
	if err != nil {
		return err
	}
	declaredSet := make(map[string]struct{}, len(declared))
	for _, col := range declared {
		declaredSet[col.Name] = struct{}{}
	}
	for _, name := range columns {
		if _, ok := declaredSet[name]; !ok {
			return fmt.Errorf("%w: %s", ErrSchemaMismatch, name)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin chunk transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	tableName := dataTableName(sourceID)
	var next int64
	if err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COALESCE(MAX(ordinal) + 1, 0) FROM %s`, quoteIdent(tableName))).Scan(&next); err != nil {
		return fmt.Errorf("failed to read next ordinal: %w", err)
	}

	quoted := make([]string, 0, len(columns)+1)
	quoted = append(quoted, "ordinal")
	placeholders := make([]string, 0, len(columns)+1)
	placeholders = append(placeholders, "?")
	for _, name := range columns {
		quoted = append(quoted, quoteIdent(name))
		placeholders = append(placeholders, "?")
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s)`,
		quoteIdent(tableName), strings.Join(quoted, ", "), strings.Join(placeholders, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		values := make([]any, len(columns)+1)
		values[0] = next
		for i := range columns {
			if i < len(row) {
				values[i+1] = row[i]
			} else {
				values[i+1] = nil
			}
		}
		if _, err = stmt.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", next, err)
		}
		next++
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk: %w", err)
	}
	return nil
}

// buildIndexes (re)creates substring-lookup indexes for the named
// columns. Requested names the source does not declare are skipped, so
// the default indexed set can be applied to any schema. Idempotent.
func (s *store) buildIndexes(ctx context.Context, sourceID int64, columnNames []string) ([]string, error) {
	declared, err := s.sourceColumns(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	declaredSet := make(map[string]struct{}, len(declared))
	for _, col := range declared {
		declaredSet[col.Name] = struct{}{}
	}

	tableName := dataTableName(sourceID)
	var indexed []string
	for _, name := range columnNames {
		if _, ok := declaredSet[name]; !ok {
			s.logger.Debug("skipping index on undeclared column", "source_id", sourceID, "column", name)
			continue
		}
		indexName := fmt.Sprintf("idx_src%d_%s", sourceID, strings.ToLower(name))
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s ON %s (%s COLLATE NOCASE)`,
			quoteIdent(indexName), quoteIdent(tableName), quoteIdent(name))); err != nil {
			return nil, fmt.Errorf("failed to create index on %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE source_columns SET is_indexed = 1 WHERE source_id = ? AND name = ?`,
			sourceID, name); err != nil {
			return nil, fmt.Errorf("failed to record index on %s: %w", name, err)
		}
		indexed = append(indexed, name)
	}
	return indexed, nil
}

// finalizeSource flips the source to active in a single compare-and-set
// commit; this is the moment the source becomes visible to search. A
// lost compare-and-set means another writer touched the row and fails
// with ErrConcurrentWrite. When replaceID is set, the superseded source
// is removed in the same transaction, so the swap is atomic.
func (s *store) finalizeSource(ctx context.Context, sourceID, rowCount, replaceID int64) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin commit transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE sources SET status = ?, row_count = ?, imported_at = ? WHERE source_id = ? AND status = ?`,
		sourceStatusActive, rowCount, time.Now().UTC().Format(time.RFC3339), sourceID, sourceStatusImporting)
	if err != nil {
		return fmt.Errorf("failed to commit source: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check commit result: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("%w: source %d was mutated during import", ErrConcurrentWrite, sourceID)
	}

	if replaceID >= 0 {
		var replacedTable string
		if err = tx.QueryRowContext(ctx,
			`SELECT table_name FROM sources WHERE source_id = ?`, replaceID).Scan(&replacedTable); err != nil {
			return fmt.Errorf("failed to look up replaced source %d: %w", replaceID, err)
		}
		if err = removeSourceTx(ctx, tx, replaceID, replacedTable); err != nil {
			return fmt.Errorf("failed to remove replaced source %d: %w", replaceID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit source: %w", err)
	}
	return nil
}

// abortSource removes a pending source and its data table. Called on
// every failed import exit path; cleanup failures are only logged
// since the orphan sweep at the next open catches leftovers.
func (s *store) abortSource(ctx context.Context, sourceID int64) {
	if err := s.removeSource(ctx, sourceID, dataTableName(sourceID)); err != nil {
		s.logger.Warn("failed to clean up aborted import", "source_id", sourceID, "error", err)
	}
}

// removeSource deletes a source's metadata and data table.
func (s *store) removeSource(ctx context.Context, sourceID int64, tableName string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin removal transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = removeSourceTx(ctx, tx, sourceID, tableName); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit removal: %w", err)
	}
	return nil
}

func removeSourceTx(ctx context.Context, tx *sql.Tx, sourceID int64, tableName string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE source_id = ?`, sourceID); err != nil {
		return fmt.Errorf("failed to delete source row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM source_columns WHERE source_id = ?`, sourceID); err != nil {
		return fmt.Errorf("failed to delete column rows: %w", err)
	}
	if tableName != "" {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoteIdent(tableName))); err != nil {
			return fmt.Errorf("failed to drop data table: %w", err)
		}
	}
	return nil
}

// dropSource removes an active source wholesale.
func (s *store) dropSource(ctx context.Context, sourceID int64) error {
	var tableName string
	err := s.db.QueryRowContext(ctx,
		`SELECT table_name FROM sources WHERE source_id = ? AND status = ?`,
		sourceID, sourceStatusActive).Scan(&tableName)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: id %d", ErrSourceNotFound, sourceID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up source %d: %w", sourceID, err)
	}
	return s.removeSource(ctx, sourceID, tableName)
}

// sourceColumns loads the declared column list in file order.
func (s *store) sourceColumns(ctx context.Context, sourceID int64) ([]Column, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ordinal, name, original_label, is_indexed FROM source_columns WHERE source_id = ? ORDER BY ordinal`,
		sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load columns for source %d: %w", sourceID, err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var col Column
		var indexed int
		if err := rows.Scan(&col.Ordinal, &col.Name, &col.OriginalLabel, &indexed); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		col.Indexed = indexed != 0
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: id %d", ErrSourceNotFound, sourceID)
	}
	return columns, nil
}

// listSources returns all active sources, most recently imported
// first, with their column lists attached.
func (s *store) listSources(ctx context.Context) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, name, original_filename, table_name, COALESCE(imported_at, ''), row_count, schema_version
		 FROM sources WHERE status = ? ORDER BY imported_at DESC, source_id DESC`,
		sourceStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var src Source
		var importedAt string
		if err := rows.Scan(&src.ID, &src.Name, &src.OriginalFilename, &src.tableName, &importedAt, &src.RowCount, &src.SchemaVersion); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		if importedAt != "" {
			if t, parseErr := time.Parse(time.RFC3339, importedAt); parseErr == nil {
				src.ImportedAt = t
			}
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sources {
		columns, err := s.sourceColumns(ctx, sources[i].ID)
		if err != nil {
			return nil, err
		}
		sources[i].Columns = columns
	}
	return sources, nil
}

// activeSources resolves the requested source ids, or every active
// source when ids is empty. Unknown or pending ids fail with
// ErrSourceNotFound.
func (s *store) activeSources(ctx context.Context, ids []int64) ([]Source, error) {
	all, err := s.listSources(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return all, nil
	}

	byID := make(map[int64]Source, len(all))
	for _, src := range all {
		byID[src.ID] = src
	}
	selected := make([]Source, 0, len(ids))
	for _, id := range ids {
		src, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", ErrSourceNotFound, id)
		}
		selected = append(selected, src)
	}
	return selected, nil
}

// stats reports store-wide totals plus the store file size on disk.
func (s *store) stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(row_count), 0) FROM sources WHERE status = ?`,
		sourceStatusActive).Scan(&stats.SourceCount, &stats.TotalRows)
	if err != nil {
		return nil, fmt.Errorf("failed to read store stats: %w", err)
	}
	if info, statErr := os.Stat(s.path); statErr == nil {
		stats.StoreSizeBytes = info.Size()
	}
	return stats, nil
}
