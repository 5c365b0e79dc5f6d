package partsearch

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newTestEngine(t *testing.T, config Config) *Engine {
	t.Helper()

	engine, err := Open(filepath.Join(t.TempDir(), "store.db"), config)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestEngine_ImportCSV(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, Config{})
	path := writeFile(t, "parts.csv",
		"Assembly,Part Number,Description\n"+
			"KEYBOARD,01YP094,Keyboard US English\n"+
			",,\n"+
			"MOUSE,4Y50R20863,Wireless mouse\n")

	report, err := engine.ImportFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "parts", report.SourceName)
	assert.Equal(t, int64(2), report.RowsImported)
	assert.Equal(t, int64(1), report.RowsSkipped, "all-empty rows are dropped")
	assert.Equal(t, 1, report.ChunksCommitted)
	assert.Equal(t, []string{"ASSEMBLY", "PART_NUMBER", "DESCRIPTION"}, report.Columns)
	assert.Equal(t, []string{"ASSEMBLY", "DESCRIPTION"}, report.IndexedColumns)
	assert.Positive(t, report.Duration)

	sources, err := engine.ListSources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, int64(2), sources[0].RowCount)
}

func TestEngine_ImportTSV(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, Config{})
	path := writeFile(t, "parts.tsv", "Assembly\tDescription\nFAN\tCPU cooling fan\n")

	report, err := engine.ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.RowsImported)
}

func TestEngine_ImportGzipCSV(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, Config{})

	path := filepath.Join(t.TempDir(), "parts.csv.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := gzip.NewWriter(f)
	_, err = w.Write([]byte("Assembly,Description\nCABLE,USB-C cable\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	report, err := engine.ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "parts", report.SourceName)
	assert.Equal(t, int64(1), report.RowsImported)
}

func TestEngine_ImportXLSX(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, Config{})

	book := excelize.NewFile()
	require.NoError(t, book.SetSheetRow("Sheet1", "A1", &[]any{"Assembly", "Description"}))
	require.NoError(t, book.SetSheetRow("Sheet1", "A2", &[]any{"SCREEN", "14in FHD panel"}))
	require.NoError(t, book.SetSheetRow("Sheet1", "A3", &[]any{"HINGE", "Left hinge"}))
	path := filepath.Join(t.TempDir(), "parts.xlsx")
	require.NoError(t, book.SaveAs(path))
	require.NoError(t, book.Close())

	report, err := engine.ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.RowsImported)
	assert.Equal(t, []string{"ASSEMBLY", "DESCRIPTION"}, report.Columns)
}

func TestEngine_ImportRaggedRows(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, Config{})
	path := writeFile(t, "ragged.csv",
		"A,B,C\n"+
			"1,2,3\n"+
			"only-a\n"+
			"1,2,3,extra\n")

	report, err := engine.ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.RowsImported)

	result, err := engine.Search(context.Background(), SearchQuery{})
	require.NoError(t, err)
	require.Len(t, result.Rows, 3)
	assert.False(t, result.Rows[1].Values["B"].Valid, "short row pads with null")
	assert.Equal(t, "3", result.Rows[2].Values["C"].String, "long row truncates")
}

func TestEngine_ImportChunking(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, Config{})
	path := writeFile(t, "parts.csv",
		"A\nr1\nr2\nr3\nr4\nr5\n")

	report, err := engine.ImportFile(context.Background(), path, WithChunkSize(2))
	require.NoError(t, err)
	assert.Equal(t, int64(5), report.RowsImported)
	assert.Equal(t, 3, report.ChunksCommitted)
}

func TestEngine_ImportEmptyFile(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, Config{})
	path := writeFile(t, "empty.csv", "")

	_, err := engine.ImportFile(context.Background(), path)
	assert.ErrorIs(t, err, ErrEmptyFile)
	assert.ErrorIs(t, err, ErrImport)

	var importErr *ImportError
	require.ErrorAs(t, err, &importErr)
	assert.Equal(t, path, importErr.Path)
}

func TestEngine_ImportHeaderOnly(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, Config{})
	path := writeFile(t, "parts.csv", "Assembly,Description\n")

	report, err := engine.ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Zero(t, report.RowsImported)

	sources, err := engine.ListSources(context.Background())
	require.NoError(t, err)
	assert.Len(t, sources, 1, "a columns-only source still commits")
}

func TestEngine_ImportUnsupportedFormat(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, Config{})
	path := writeFile(t, "parts.txt", "not a spreadsheet")

	_, err := engine.ImportFile(context.Background(), path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestEngine_ImportDuplicateAndReplace(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, Config{})
	dir := t.TempDir()
	path := filepath.Join(dir, "parts.csv")
	require.NoError(t, os.WriteFile(path, []byte("A\nold\n"), 0o600))

	_, err := engine.ImportFile(context.Background(), path)
	require.NoError(t, err)

	_, err = engine.ImportFile(context.Background(), path)
	assert.ErrorIs(t, err, ErrDuplicateSource)

	require.NoError(t, os.WriteFile(path, []byte("A\nnew1\nnew2\n"), 0o600))
	report, err := engine.ImportFile(context.Background(), path, WithReplace())
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.RowsImported)

	sources, err := engine.ListSources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, int64(2), sources[0].RowCount)
	assert.Equal(t, 2, sources[0].SchemaVersion)
}

func TestEngine_ImportCancelled(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, Config{})
	path := writeFile(t, "parts.csv", "A\nr1\nr2\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.ImportFile(ctx, path)
	require.Error(t, err)

	sources, err := engine.ListSources(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sources, "a failed import leaves no trace")
}

func TestEngine_ImportCustomIndexColumns(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, Config{})
	path := writeFile(t, "parts.csv", "FRU,Model\n01YP094,T14\n")

	report, err := engine.ImportFile(context.Background(), path, WithIndexedColumns("FRU"))
	require.NoError(t, err)
	assert.Equal(t, []string{"FRU"}, report.IndexedColumns)
}

func TestEngine_PreviewFile(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, Config{})
	path := writeFile(t, "parts.csv",
		"Assembly,2024 Price,Notes\n"+
			"KEYBOARD,42.50,backlit\n"+
			"MOUSE,12.99,\n"+
			"FAN,8.00,spare\n")

	preview, err := engine.PreviewFile(context.Background(), path, 2)
	require.NoError(t, err)

	assert.Equal(t, "parts", preview.SourceName)
	require.Len(t, preview.Columns, 3)
	assert.Equal(t, "ASSEMBLY", preview.Columns[0].Name)
	assert.Equal(t, "COL_2024_PRICE", preview.Columns[1].Name)
	assert.Equal(t, "2024 Price", preview.Columns[1].OriginalLabel)
	assert.Len(t, preview.SampleRows, 2)
	assert.Contains(t, preview.SuggestedIndexColumns, "ASSEMBLY")

	// Previewing never writes.
	sources, err := engine.ListSources(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sources)
}
