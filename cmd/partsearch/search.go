package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/partsearch/partsearch"
)

var (
	searchLimit   int
	searchOffset  int
	searchFilters []string
	searchColumns []string
	searchOutput  []string
	searchSort    string
	searchDesc    bool
	searchSources []int64
	searchGrouped bool
	searchJSON    bool
)

var searchCmd = &cobra.Command{
	Use:   "search [term]",
	Short: "Search imported sources by substring",
	Long: `Matches the term case-insensitively as a substring against the
indexed columns of every source, or the columns given with --in.
With no term and no filters, browses all rows.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "page size (default 100)")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "rows to skip")
	searchCmd.Flags().StringArrayVarP(&searchFilters, "filter", "f", nil, "per-column filter, COLUMN=substring (repeatable)")
	searchCmd.Flags().StringSliceVar(&searchColumns, "in", nil, "columns to match the term against")
	searchCmd.Flags().StringSliceVar(&searchOutput, "columns", nil, "columns to display (default all)")
	searchCmd.Flags().StringVar(&searchSort, "sort", "", "column to sort by")
	searchCmd.Flags().BoolVar(&searchDesc, "desc", false, "sort descending")
	searchCmd.Flags().Int64SliceVar(&searchSources, "source", nil, "restrict to source ids (repeatable)")
	searchCmd.Flags().BoolVar(&searchGrouped, "grouped", false, "group results by source")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	term := ""
	if len(args) > 0 {
		term = args[0]
	}

	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := context.Background()

	if searchGrouped {
		groups, err := engine.SearchGrouped(ctx, term, searchLimit)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		return outputGroups(cmd, groups)
	}

	filters := make(map[string]string, len(searchFilters))
	for _, raw := range searchFilters {
		column, value, ok := strings.Cut(raw, "=")
		if !ok {
			return fmt.Errorf("invalid filter %q, expected COLUMN=substring", raw)
		}
		filters[strings.TrimSpace(column)] = value
	}

	// Column names are passed through as given: the engine resolves
	// them case-insensitively against the declared schema.
	result, err := engine.Search(ctx, partsearch.SearchQuery{
		Term:          term,
		Filters:       filters,
		SourceIDs:     searchSources,
		SearchColumns: trimAll(searchColumns),
		OutputColumns: trimAll(searchOutput),
		SortColumn:    strings.TrimSpace(searchSort),
		Descending:    searchDesc,
		Limit:         searchLimit,
		Offset:        searchOffset,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	return outputRows(cmd, result)
}

func trimAll(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = strings.TrimSpace(name)
	}
	return out
}

func outputRows(cmd *cobra.Command, result *partsearch.SearchResult) error {
	if result.TotalCount == 0 {
		cmd.Println("No results found.")
		return nil
	}

	first := result.Query.Offset + 1
	last := result.Query.Offset + len(result.Rows)
	cmd.Printf("Showing %d-%d of %d matches\n\n", first, last, result.TotalCount)

	columns := result.Query.OutputColumns
	for _, row := range result.Rows {
		cmd.Printf("[%s #%d]\n", row.SourceName, row.Ordinal)
		for _, name := range columns {
			value := row.Values[name]
			if !value.Valid {
				continue
			}
			cmd.Printf("  %s: %s\n", name, value.String)
		}
		cmd.Println()
	}
	return nil
}

func outputGroups(cmd *cobra.Command, groups []partsearch.SourceGroup) error {
	if len(groups) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	for _, group := range groups {
		cmd.Printf("%s (source %d): %d matches\n", group.Source.OriginalFilename, group.Source.ID, group.MatchCount)
		for _, row := range group.Rows {
			var cells []string
			for _, col := range group.Source.Columns {
				value := row.Values[col.Name]
				if value.Valid && value.String != "" {
					cells = append(cells, value.String)
				}
			}
			cmd.Printf("  #%d  %s\n", row.Ordinal, strings.Join(cells, " | "))
		}
		cmd.Println()
	}
	return nil
}
