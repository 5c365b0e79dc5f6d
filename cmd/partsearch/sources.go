package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List imported sources",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store totals",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var dropCmd = &cobra.Command{
	Use:   "drop <source-id>",
	Short: "Remove a source and all its rows",
	Args:  cobra.ExactArgs(1),
	RunE:  runDrop,
}

var (
	previewRows int
)

var previewCmd = &cobra.Command{
	Use:   "preview <file>",
	Short: "Show a file's schema and sample rows without importing",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreview,
}

func init() {
	previewCmd.Flags().IntVar(&previewRows, "rows", 5, "number of sample rows")
	rootCmd.AddCommand(listCmd, statsCmd, dropCmd, previewCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	sources, err := engine.ListSources(context.Background())
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		cmd.Println("No sources imported yet.")
		return nil
	}

	for _, src := range sources {
		cmd.Printf("[%d] %s\n", src.ID, src.Name)
		cmd.Printf("    file: %s  rows: %d  imported: %s\n",
			src.OriginalFilename, src.RowCount, src.ImportedAt.Format(time.RFC3339))
		cmd.Printf("    columns: %s\n", strings.Join(src.ColumnNames(), ", "))
		if indexed := src.IndexedColumnNames(); len(indexed) > 0 {
			cmd.Printf("    indexed: %s\n", strings.Join(indexed, ", "))
		}
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	stats, err := engine.Stats(context.Background())
	if err != nil {
		return err
	}
	cmd.Printf("Sources: %d\n", stats.SourceCount)
	cmd.Printf("Rows:    %d\n", stats.TotalRows)
	cmd.Printf("Size:    %.1f MB\n", float64(stats.StoreSizeBytes)/(1024*1024))
	return nil
}

func runDrop(cmd *cobra.Command, args []string) error {
	sourceID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid source id %q", args[0])
	}

	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.DropSource(context.Background(), sourceID); err != nil {
		return err
	}
	cmd.Printf("Dropped source %d\n", sourceID)
	return nil
}

func runPreview(cmd *cobra.Command, args []string) error {
	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	preview, err := engine.PreviewFile(context.Background(), args[0], previewRows)
	if err != nil {
		return err
	}

	cmd.Printf("%s (source name: %s)\n", preview.Path, preview.SourceName)
	cmd.Println("Columns:")
	for _, col := range preview.Columns {
		marker := ""
		if col.OriginalLabel != col.Name {
			marker = fmt.Sprintf("  (from %q)", col.OriginalLabel)
		}
		cmd.Printf("  %2d  %s%s\n", col.Ordinal, col.Name, marker)
	}
	if len(preview.SuggestedIndexColumns) > 0 {
		cmd.Printf("Suggested index columns: %s\n", strings.Join(preview.SuggestedIndexColumns, ", "))
	}
	if len(preview.SampleRows) > 0 {
		cmd.Println("Sample rows:")
		for _, row := range preview.SampleRows {
			cmd.Printf("  %s\n", strings.Join(row, " | "))
		}
	}
	return nil
}
