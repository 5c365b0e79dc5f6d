package partsearch

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	s, err := openStore(context.Background(), path, NoopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.close() })
	return s
}

func testColumns(names ...string) []Column {
	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = Column{Name: name, OriginalLabel: name, Ordinal: i}
	}
	return columns
}

func TestStore_CreateAndFinalizeSource(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	sourceID, replaceID, err := s.createSource(ctx, "parts", "parts.csv", testColumns("ASSEMBLY", "DESCRIPTION"), false)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), replaceID, "no source is being replaced")

	// Pending sources stay invisible.
	sources, err := s.listSources(ctx)
	require.NoError(t, err)
	assert.Empty(t, sources)

	require.NoError(t, s.appendChunk(ctx, sourceID, []string{"ASSEMBLY", "DESCRIPTION"}, [][]string{
		{"KEYBOARD", "US layout"},
		{"MOUSE", "wireless"},
	}))
	require.NoError(t, s.finalizeSource(ctx, sourceID, 2, -1))

	sources, err = s.listSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "parts", sources[0].Name)
	assert.Equal(t, "parts.csv", sources[0].OriginalFilename)
	assert.Equal(t, int64(2), sources[0].RowCount)
	assert.Equal(t, 1, sources[0].SchemaVersion)
	assert.Equal(t, []string{"ASSEMBLY", "DESCRIPTION"}, sources[0].ColumnNames())
	assert.False(t, sources[0].ImportedAt.IsZero())
}

func TestStore_DuplicateSourceName(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.createSource(ctx, "parts", "parts.csv", testColumns("A"), false)
	require.NoError(t, err)
	require.NoError(t, s.finalizeSource(ctx, id, 0, -1))

	_, _, err = s.createSource(ctx, "parts", "parts.csv", testColumns("A"), false)
	assert.ErrorIs(t, err, ErrDuplicateSource)
}

func TestStore_ReplaceSource(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	oldID, _, err := s.createSource(ctx, "parts", "parts.csv", testColumns("A"), false)
	require.NoError(t, err)
	require.NoError(t, s.appendChunk(ctx, oldID, []string{"A"}, [][]string{{"old"}}))
	require.NoError(t, s.finalizeSource(ctx, oldID, 1, -1))

	newID, replaceID, err := s.createSource(ctx, "parts", "parts_v2.csv", testColumns("A", "B"), true)
	require.NoError(t, err)
	assert.Equal(t, oldID, replaceID)

	// The old source stays searchable until the swap commits.
	sources, err := s.listSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, oldID, sources[0].ID)

	require.NoError(t, s.appendChunk(ctx, newID, []string{"A", "B"}, [][]string{{"new", "x"}}))
	require.NoError(t, s.finalizeSource(ctx, newID, 1, replaceID))

	sources, err = s.listSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, newID, sources[0].ID)
	assert.Equal(t, 2, sources[0].SchemaVersion)
	assert.Equal(t, []string{"A", "B"}, sources[0].ColumnNames())
}

func TestStore_FinalizeTwiceFails(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.createSource(ctx, "parts", "parts.csv", testColumns("A"), false)
	require.NoError(t, err)
	require.NoError(t, s.finalizeSource(ctx, id, 0, -1))

	assert.ErrorIs(t, s.finalizeSource(ctx, id, 0, -1), ErrConcurrentWrite)
}

func TestStore_AppendChunkSchemaMismatch(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.createSource(ctx, "parts", "parts.csv", testColumns("A", "B"), false)
	require.NoError(t, err)

	err = s.appendChunk(ctx, id, []string{"A", "C"}, [][]string{{"1", "2"}})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestStore_AppendChunkPadsAndTruncates(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.createSource(ctx, "parts", "parts.csv", testColumns("A", "B"), false)
	require.NoError(t, err)
	require.NoError(t, s.appendChunk(ctx, id, []string{"A", "B"}, [][]string{
		{"only-a"},
		{"a", "b", "extra"},
	}))
	require.NoError(t, s.finalizeSource(ctx, id, 2, -1))

	var a, b Value
	row := s.db.QueryRowContext(ctx, `SELECT "A", "B" FROM `+quoteIdent(dataTableName(id))+` WHERE ordinal = 0`)
	require.NoError(t, row.Scan(&a, &b))
	assert.Equal(t, "only-a", a.String)
	assert.False(t, b.Valid, "short row must pad with NULL")

	row = s.db.QueryRowContext(ctx, `SELECT "A", "B" FROM `+quoteIdent(dataTableName(id))+` WHERE ordinal = 1`)
	require.NoError(t, row.Scan(&a, &b))
	assert.Equal(t, "a", a.String)
	assert.Equal(t, "b", b.String)
}

func TestStore_OrdinalsContinueAcrossChunks(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.createSource(ctx, "parts", "parts.csv", testColumns("A"), false)
	require.NoError(t, err)
	require.NoError(t, s.appendChunk(ctx, id, []string{"A"}, [][]string{{"r0"}, {"r1"}}))
	require.NoError(t, s.appendChunk(ctx, id, []string{"A"}, [][]string{{"r2"}}))
	require.NoError(t, s.finalizeSource(ctx, id, 3, -1))

	var maxOrdinal int64
	row := s.db.QueryRowContext(ctx, `SELECT MAX(ordinal) FROM `+quoteIdent(dataTableName(id)))
	require.NoError(t, row.Scan(&maxOrdinal))
	assert.Equal(t, int64(2), maxOrdinal)
}

func TestStore_BuildIndexes(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.createSource(ctx, "parts", "parts.csv", testColumns("ASSEMBLY", "PRICE"), false)
	require.NoError(t, err)

	indexed, err := s.buildIndexes(ctx, id, []string{"ASSEMBLY", "DESCRIPTION"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ASSEMBLY"}, indexed, "undeclared columns are skipped")

	require.NoError(t, s.finalizeSource(ctx, id, 0, -1))
	sources, err := s.listSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, []string{"ASSEMBLY"}, sources[0].IndexedColumnNames())
}

func TestStore_AbortAfterCommittedChunk(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	sourceID, _, err := s.createSource(ctx, "parts", "parts.csv", testColumns("ASSEMBLY", "DESCRIPTION"), false)
	require.NoError(t, err)
	require.NoError(t, s.appendChunk(ctx, sourceID, []string{"ASSEMBLY", "DESCRIPTION"},
		[][]string{{"KEYBOARD", "Keyboard US English"}, {"MOUSE", "Wireless mouse"}}))

	err = s.appendChunk(ctx, sourceID, []string{"ASSEMBLY", "PRICE"}, [][]string{{"FAN", "9.99"}})
	require.ErrorIs(t, err, ErrSchemaMismatch)

	// Aborting after a committed chunk removes the source wholesale:
	// no partial rows survive.
	s.abortSource(ctx, sourceID)

	sources, err := s.listSources(ctx)
	require.NoError(t, err)
	assert.Empty(t, sources)

	exists, err := tableExists(ctx, s.db, dataTableName(sourceID))
	require.NoError(t, err)
	assert.False(t, exists, "aborted source's data table must be dropped")

	stats, err := s.stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalRows)
}

func TestStore_SweepOrphans(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := openStore(ctx, path, NoopLogger())
	require.NoError(t, err)

	// A source abandoned mid-import, as after a crash.
	orphanID, _, err := s.createSource(ctx, "orphan", "orphan.csv", testColumns("A"), false)
	require.NoError(t, err)
	require.NoError(t, s.appendChunk(ctx, orphanID, []string{"A"}, [][]string{{"x"}}))

	doneID, _, err := s.createSource(ctx, "done", "done.csv", testColumns("A"), false)
	require.NoError(t, err)
	require.NoError(t, s.finalizeSource(ctx, doneID, 0, -1))
	require.NoError(t, s.close())

	s, err = openStore(ctx, path, NoopLogger())
	require.NoError(t, err)
	defer s.close()

	sources, err := s.listSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "done", sources[0].Name)

	var count int
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, dataTableName(orphanID))
	require.NoError(t, row.Scan(&count))
	assert.Zero(t, count, "orphaned data table must be dropped")
}

func TestStore_DropSource(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.createSource(ctx, "parts", "parts.csv", testColumns("A"), false)
	require.NoError(t, err)
	require.NoError(t, s.finalizeSource(ctx, id, 0, -1))

	require.NoError(t, s.dropSource(ctx, id))

	sources, err := s.listSources(ctx)
	require.NoError(t, err)
	assert.Empty(t, sources)

	assert.ErrorIs(t, s.dropSource(ctx, id), ErrSourceNotFound)
}

func TestStore_ActiveSources(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.createSource(ctx, "parts", "parts.csv", testColumns("A"), false)
	require.NoError(t, err)
	require.NoError(t, s.finalizeSource(ctx, id, 0, -1))

	selected, err := s.activeSources(ctx, []int64{id})
	require.NoError(t, err)
	assert.Len(t, selected, 1)

	_, err = s.activeSources(ctx, []int64{id, 999})
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestStore_Stats(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.createSource(ctx, "parts", "parts.csv", testColumns("A"), false)
	require.NoError(t, err)
	require.NoError(t, s.appendChunk(ctx, id, []string{"A"}, [][]string{{"x"}, {"y"}}))
	require.NoError(t, s.finalizeSource(ctx, id, 2, -1))

	stats, err := s.stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.SourceCount)
	assert.Equal(t, int64(2), stats.TotalRows)
	assert.Positive(t, stats.StoreSizeBytes)
}

func TestQuoteIdent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"ASSEMBLY"`, quoteIdent("ASSEMBLY"))
	assert.Equal(t, `"we""ird"`, quoteIdent(`we"ird`))
}
