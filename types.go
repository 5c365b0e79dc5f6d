package partsearch

import (
	"database/sql"
	"time"
)

// Value is one cell of a result row. Valid is false for the null
// marker: the row's source does not declare the column, or the cell
// was absent in the imported file.
type Value = sql.NullString

// Column describes one declared column of a source.
type Column struct {
	// Name is the normalized, collision-free identifier.
	Name string
	// OriginalLabel is the raw header label the name was derived from.
	OriginalLabel string
	// Ordinal is the column position in the imported file.
	Ordinal int
	// Indexed reports whether a substring-lookup index exists for the
	// column.
	Indexed bool
}

// Source describes one imported spreadsheet. A source is immutable
// once committed; re-importing under the same name replaces it
// wholesale.
type Source struct {
	// ID identifies the source within the store.
	ID int64
	// Name is the logical name, derived from the file name.
	Name string
	// OriginalFilename is the base name of the imported file.
	OriginalFilename string
	// ImportedAt is when the import committed.
	ImportedAt time.Time
	// RowCount is the number of imported rows.
	RowCount int64
	// SchemaVersion counts full re-imports of the source.
	SchemaVersion int
	// Columns is the declared column list in file order.
	Columns []Column

	// tableName is the physical data table. Usually derived from the
	// id, but an upgraded legacy source keeps its original table.
	tableName string
}

// ColumnNames returns the normalized column names in file order.
func (s *Source) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		names[i] = col.Name
	}
	return names
}

// IndexedColumnNames returns the names of the indexed columns.
func (s *Source) IndexedColumnNames() []string {
	var names []string
	for _, col := range s.Columns {
		if col.Indexed {
			names = append(names, col.Name)
		}
	}
	return names
}

// dataTable returns the physical data table holding the source's rows.
func (s *Source) dataTable() string {
	if s.tableName != "" {
		return s.tableName
	}
	return dataTableName(s.ID)
}

// hasColumn reports whether name is declared for the source.
func (s *Source) hasColumn(name string) bool {
	for _, col := range s.Columns {
		if col.Name == name {
			return true
		}
	}
	return false
}

// Row is one search result row. Values holds every requested output
// column; columns the owning source does not declare carry the null
// marker.
type Row struct {
	// SourceID is the owning source.
	SourceID int64
	// SourceName echoes the source's original filename for display.
	SourceName string
	// Ordinal is the row's position within its source.
	Ordinal int64
	// Values maps normalized column name to cell value.
	Values map[string]Value
}

// StoreStats summarizes the store contents.
type StoreStats struct {
	// SourceCount is the number of active sources.
	SourceCount int64
	// TotalRows is the sum of all active sources' row counts.
	TotalRows int64
	// StoreSizeBytes is the size of the store file on disk.
	StoreSizeBytes int64
}

// ImportReport summarizes a completed import.
type ImportReport struct {
	// SourceID is the id of the committed source.
	SourceID int64
	// SourceName is the logical source name.
	SourceName string
	// RowsImported is the number of rows committed.
	RowsImported int64
	// RowsSkipped counts all-empty rows dropped as data-quality noise.
	RowsSkipped int64
	// Columns is the normalized column list.
	Columns []string
	// IndexedColumns is the subset of Columns that received indexes.
	IndexedColumns []string
	// ChunksCommitted is the number of chunk batches written.
	ChunksCommitted int
	// Duration is the wall-clock import time.
	Duration time.Duration
}

// RowsPerSecond reports the import throughput.
func (r *ImportReport) RowsPerSecond() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.RowsImported) / r.Duration.Seconds()
}
