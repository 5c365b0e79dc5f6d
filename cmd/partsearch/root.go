package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/partsearch/partsearch"
)

var (
	flagStore   string
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "partsearch",
	Short: "Import spreadsheets and search them like a parts catalog",
	Long: `partsearch imports CSV, TSV, XLSX and Parquet files into a local
store and searches them by case-insensitive substring match across
many files at once.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "store file path (default from config, else ~/.partsearch/catalog.db)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path (default ~/.partsearch/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log import and search progress")
}

// cliConfig is the optional TOML configuration file.
type cliConfig struct {
	Store          string   `toml:"store"`
	ChunkSize      int      `toml:"chunk_size"`
	IndexedColumns []string `toml:"indexed_columns"`
}

// loadConfig reads the TOML config if present. A missing file is fine;
// flags override whatever the file sets.
func loadConfig() (cliConfig, error) {
	path := flagConfig
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cliConfig{}, nil
		}
		path = filepath.Join(home, ".partsearch", "config.toml")
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cliConfig{}, nil
	}
	if err != nil {
		return cliConfig{}, err
	}

	var cfg cliConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

// openEngine resolves configuration and opens the store.
func openEngine() (*partsearch.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	storePath := flagStore
	if storePath == "" {
		storePath = cfg.Store
	}
	if storePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		storePath = filepath.Join(home, ".partsearch", "catalog.db")
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0o755); err != nil {
		return nil, err
	}

	logger := partsearch.NoopLogger()
	if flagVerbose {
		logger = partsearch.NewTextLogger(slog.LevelDebug)
	}

	return partsearch.Open(storePath, partsearch.Config{
		ChunkSize:      cfg.ChunkSize,
		IndexedColumns: cfg.IndexedColumns,
		Logger:         logger,
	})
}
