package partsearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// importOptions holds per-call import settings layered over the engine
// configuration.
type importOptions struct {
	replace        bool
	chunkSize      int
	indexedColumns []string
}

// ImportOption adjusts a single ImportFile call.
type ImportOption func(*importOptions)

// WithReplace allows re-importing a source name that already exists.
// The old source stays visible to searches until the new import
// commits, then is swapped out atomically.
func WithReplace() ImportOption {
	return func(o *importOptions) {
		o.replace = true
	}
}

// WithChunkSize overrides the engine's rows-per-chunk bound for this
// import.
func WithChunkSize(rows int) ImportOption {
	return func(o *importOptions) {
		o.chunkSize = rows
	}
}

// WithIndexedColumns overrides which normalized columns get
// substring-lookup indexes for this import. Names the file does not
// declare are skipped.
func WithIndexedColumns(names ...string) ImportOption {
	return func(o *importOptions) {
		o.indexedColumns = names
	}
}

// ImportFile imports one spreadsheet into the store as a new source.
// Rows stream through in chunks of at most the configured size, so
// memory stays bounded regardless of file size. The source becomes
// visible to searches only after the final commit; on any failure the
// store is left exactly as it was before the call.
func (e *Engine) ImportFile(ctx context.Context, path string, opts ...ImportOption) (*ImportReport, error) {
	options := importOptions{
		chunkSize:      e.config.ChunkSize,
		indexedColumns: e.config.IndexedColumns,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.chunkSize < MinChunkSize {
		options.chunkSize = DefaultChunkSize
	}

	input := newInputFile(path)
	if input.fileType == FileTypeUnsupported {
		return nil, newImportError(path, 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path)))
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, newImportError(path, 0, fmt.Errorf("failed to open file: %w", err))
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, newImportError(path, 0, fmt.Errorf("failed to stat file: %w", err))
	}
	if info.Size() == 0 {
		return nil, newImportError(path, 0, ErrEmptyFile)
	}

	reader, closeReader, err := input.decompressedReader(file)
	if err != nil {
		return nil, newImportError(path, 0, err)
	}
	defer closeReader()

	scanner, err := newRowScanner(input.fileType, reader, options.chunkSize)
	if err != nil {
		return nil, newImportError(path, 0, err)
	}
	defer scanner.Close()

	names, err := NormalizeColumns(scanner.Header())
	if err != nil {
		return nil, newImportError(path, 0, err)
	}
	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = Column{
			Name:          name,
			OriginalLabel: strings.TrimSpace(scanner.Header()[i]),
			Ordinal:       i,
		}
	}

	sourceName := sourceNameFromPath(path)
	start := time.Now()
	e.logger.Info("importing file",
		"path", path,
		"source", sourceName,
		"columns", len(columns),
		"chunk_size", options.chunkSize,
	)

	sourceID, replaceID, err := e.store.createSource(ctx, sourceName, filepath.Base(path), columns, options.replace)
	if err != nil {
		return nil, newImportError(path, 0, err)
	}

	report, rowsRead, err := e.importRows(ctx, scanner, sourceID, names, &options)
	if err != nil {
		e.store.abortSource(context.WithoutCancel(ctx), sourceID)
		return nil, newImportError(path, rowsRead, err)
	}

	indexed, err := e.store.buildIndexes(ctx, sourceID, options.indexedColumns)
	if err != nil {
		e.store.abortSource(context.WithoutCancel(ctx), sourceID)
		return nil, newImportError(path, report.RowsImported, err)
	}

	if err := e.store.finalizeSource(ctx, sourceID, report.RowsImported, replaceID); err != nil {
		e.store.abortSource(context.WithoutCancel(ctx), sourceID)
		return nil, newImportError(path, report.RowsImported, err)
	}

	report.SourceID = sourceID
	report.SourceName = sourceName
	report.Columns = names
	report.IndexedColumns = indexed
	report.Duration = time.Since(start)
	e.logger.Info("import committed",
		"source", sourceName,
		"rows", report.RowsImported,
		"skipped", report.RowsSkipped,
		"chunks", report.ChunksCommitted,
		"duration", report.Duration.String(),
		"rows_per_sec", int64(report.RowsPerSecond()),
	)
	return report, nil
}

// importRows streams the scanner's data rows into the source in
// chunk-sized batches. All-empty rows are dropped. Cancellation is
// honored between chunks, never mid-chunk.
func (e *Engine) importRows(ctx context.Context, scanner rowScanner, sourceID int64, columns []string, options *importOptions) (*ImportReport, int64, error) {
	report := &ImportReport{}
	var rowsRead int64
	chunk := make([][]string, 0, options.chunkSize)

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.store.appendChunk(ctx, sourceID, columns, chunk); err != nil {
			return err
		}
		report.RowsImported += int64(len(chunk))
		report.ChunksCommitted++
		e.logger.Debug("chunk committed",
			"source_id", sourceID,
			"chunk", report.ChunksCommitted,
			"rows_total", report.RowsImported,
		)
		chunk = chunk[:0]
		return nil
	}

	for {
		row, err := scanner.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report, rowsRead, err
		}
		rowsRead++
		if isEmptyRow(row) {
			report.RowsSkipped++
			continue
		}
		chunk = append(chunk, row)
		if len(chunk) >= options.chunkSize {
			if err := flush(); err != nil {
				return report, rowsRead, err
			}
		}
	}
	if err := flush(); err != nil {
		return report, rowsRead, err
	}
	return report, rowsRead, nil
}

// isEmptyRow reports whether every cell is blank after trimming.
func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// FilePreview describes a file before import: its normalized schema, a
// few sample rows and the columns worth indexing.
type FilePreview struct {
	// Path is the previewed file.
	Path string
	// SourceName is the logical name an import would register.
	SourceName string
	// Columns is the schema an import would declare.
	Columns []Column
	// SampleRows holds up to the requested number of data rows, in
	// file order, padded or truncated to the column count.
	SampleRows [][]string
	// SuggestedIndexColumns are the columns whose names look like
	// part-lookup keys.
	SuggestedIndexColumns []string
}

// indexKeywords marks column names that usually carry lookup keys in
// parts catalogs.
var indexKeywords = []string{
	"assembly", "part", "number", "description", "name",
	"model", "sku", "id", "code", "serial",
}

// suggestIndexColumns picks the columns whose normalized names contain
// a lookup keyword.
func suggestIndexColumns(columns []Column) []string {
	var suggested []string
	for _, col := range columns {
		lower := strings.ToLower(col.Name)
		for _, keyword := range indexKeywords {
			if strings.Contains(lower, keyword) {
				suggested = append(suggested, col.Name)
				break
			}
		}
	}
	return suggested
}

// PreviewFile reads the header and up to sampleRows data rows of a file
// without touching the store. Useful for inspecting a file's schema
// before committing to an import.
func (e *Engine) PreviewFile(ctx context.Context, path string, sampleRows int) (*FilePreview, error) {
	if sampleRows <= 0 {
		sampleRows = 5
	}

	input := newInputFile(path)
	if input.fileType == FileTypeUnsupported {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader, closeReader, err := input.decompressedReader(file)
	if err != nil {
		return nil, err
	}
	defer closeReader()

	scanner, err := newRowScanner(input.fileType, reader, sampleRows)
	if err != nil {
		return nil, err
	}
	defer scanner.Close()

	names, err := NormalizeColumns(scanner.Header())
	if err != nil {
		return nil, err
	}
	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = Column{
			Name:          name,
			OriginalLabel: strings.TrimSpace(scanner.Header()[i]),
			Ordinal:       i,
		}
	}

	preview := &FilePreview{
		Path:                  path,
		SourceName:            sourceNameFromPath(path),
		Columns:               columns,
		SuggestedIndexColumns: suggestIndexColumns(columns),
	}
	for len(preview.SampleRows) < sampleRows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := scanner.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if isEmptyRow(row) {
			continue
		}
		sample := make([]string, len(names))
		copy(sample, row)
		preview.SampleRows = append(preview.SampleRows, sample)
	}
	return preview, nil
}
