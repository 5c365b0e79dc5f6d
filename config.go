package partsearch

// Defaults for the import and search pipeline. The original catalog
// workload keys searches on the ASSEMBLY and DESCRIPTION columns, so
// those are indexed out of the box when present.
const (
	// DefaultChunkSize is the number of rows committed per import chunk.
	DefaultChunkSize = 10000
	// MinChunkSize is the smallest accepted rows-per-chunk value.
	MinChunkSize = 1
	// DefaultSearchLimit is the page size used when a query does not set one.
	DefaultSearchLimit = 100
	// MaxSearchLimit caps the page size a query may request.
	MaxSearchLimit = 1000
	// MaxColumnNameLength is the identifier length cap applied by the
	// schema normalizer.
	MaxColumnNameLength = 64
)

// DefaultIndexedColumns returns the normalized column names indexed by
// default on every imported source that declares them.
func DefaultIndexedColumns() []string {
	return []string{"ASSEMBLY", "DESCRIPTION"}
}

// Config carries the constructor parameters for an Engine. The zero
// value is usable; unset fields fall back to the package defaults.
// The core never reads process-wide state: whatever configuration
// collaborator the caller has (flags, TOML, environment) must funnel
// through this struct.
type Config struct {
	// ChunkSize bounds the number of rows held in memory per import
	// chunk. Values below MinChunkSize fall back to DefaultChunkSize.
	ChunkSize int

	// IndexedColumns are the normalized column names to index on import.
	// Empty means DefaultIndexedColumns.
	IndexedColumns []string

	// Logger receives structured progress and diagnostics. Nil means
	// silent.
	Logger *Logger
}

// normalized returns a copy of c with defaults applied.
func (c Config) normalized() Config {
	if c.ChunkSize < MinChunkSize {
		c.ChunkSize = DefaultChunkSize
	}
	if len(c.IndexedColumns) == 0 {
		c.IndexedColumns = DefaultIndexedColumns()
	}
	if c.Logger == nil {
		c.Logger = NoopLogger()
	}
	return c
}
