package partsearch

import (
	"context"
	"fmt"
	"strings"
)

// SearchQuery describes one search request. The zero value browses all
// rows of all active sources in insertion order.
type SearchQuery struct {
	// Term is matched as a case-insensitive substring against every
	// column in the search scope, OR-combined. Empty means match all.
	Term string

	// Filters are per-column case-insensitive substring constraints,
	// AND-combined with the term and with each other. Keys resolve
	// case-insensitively against the declared column names.
	Filters map[string]string

	// SourceIDs restricts the search to the named sources. Empty means
	// all active sources.
	SourceIDs []int64

	// SearchColumns is the column scope the term matches against.
	// Empty means the indexed columns of the selected sources.
	SearchColumns []string

	// OutputColumns restricts which columns are populated in result
	// rows. Empty means every declared column across the selected
	// sources. Filtering and term matching are unaffected by this.
	OutputColumns []string

	// SortColumn orders results by that column's text value, ties
	// broken by row ordinal. Empty preserves insertion order.
	SortColumn string

	// Descending flips the sort direction.
	Descending bool

	// Limit is the page size; zero means DefaultSearchLimit, capped at
	// MaxSearchLimit.
	Limit int

	// Offset is the number of matching rows to skip after sorting.
	Offset int
}

// SearchResult is one page of matches plus the total match count
// independent of pagination.
type SearchResult struct {
	// Rows is the ordered result page.
	Rows []Row
	// TotalCount is the size of the filtered set before limit/offset.
	TotalCount int64
	// Query echoes the request with defaults applied, for display.
	Query SearchQuery
}

// SourceGroup is one source's slice of a grouped search.
type SourceGroup struct {
	// Source identifies the group.
	Source Source
	// Rows is the group's result page.
	Rows []Row
	// MatchCount is the source's total match count.
	MatchCount int64
}

// escapeLike escapes LIKE wildcards in a user term so it matches
// literally inside '%...%'.
func escapeLike(term string) string {
	term = strings.ReplaceAll(term, `\`, `\\`)
	term = strings.ReplaceAll(term, `%`, `\%`)
	term = strings.ReplaceAll(term, `_`, `\_`)
	return term
}

// unionColumns merges the sources' declared columns, first seen wins,
// preserving per-source file order.
func unionColumns(sources []Source) []string {
	var union []string
	seen := make(map[string]struct{})
	for _, src := range sources {
		for _, col := range src.Columns {
			if _, ok := seen[col.Name]; ok {
				continue
			}
			seen[col.Name] = struct{}{}
			union = append(union, col.Name)
		}
	}
	return union
}

// searchPlan is a compiled query: SQL fragments plus bind args for the
// row and count statements.
type searchPlan struct {
	selectSQL string
	countSQL  string
	args      []any
	countArgs []any
	columns   []string
	limit     int
	offset    int
}

// compileSearch turns a SearchQuery into SQL over the per-source data
// tables. Each selected source contributes one UNION ALL arm that
// projects the union schema, with NULL for columns the source does not
// declare; the arm's WHERE holds the term OR-scope and the AND-combined
// filters. Column references resolve case-insensitively against the
// declared columns; a name no selected source declares fails with
// ErrInvalidQuery.
func compileSearch(q *SearchQuery, sources []Source) (*searchPlan, error) {
	union := unionColumns(sources)
	inUnion := make(map[string]struct{}, len(union))
	for _, name := range union {
		inUnion[name] = struct{}{}
	}

	// Upgraded legacy sources keep their physical column names, which
	// may be mixed case, so references resolve case-insensitively with
	// an exact match taking precedence.
	canonical := make(map[string]string, len(union))
	for _, name := range union {
		upper := strings.ToUpper(name)
		if _, ok := canonical[upper]; !ok {
			canonical[upper] = name
		}
	}
	resolveColumn := func(kind, name string) (string, error) {
		if _, ok := inUnion[name]; ok {
			return name, nil
		}
		if match, ok := canonical[strings.ToUpper(name)]; ok {
			return match, nil
		}
		return "", fmt.Errorf("%w: %s column %q", ErrInvalidQuery, kind, name)
	}
	if q.SortColumn != "" {
		resolved, err := resolveColumn("sort", q.SortColumn)
		if err != nil {
			return nil, err
		}
		q.SortColumn = resolved
	}
	if len(q.Filters) > 0 {
		filters := make(map[string]string, len(q.Filters))
		for name, term := range q.Filters {
			resolved, err := resolveColumn("filter", name)
			if err != nil {
				return nil, err
			}
			filters[resolved] = term
		}
		q.Filters = filters
	}
	for i, name := range q.OutputColumns {
		resolved, err := resolveColumn("output", name)
		if err != nil {
			return nil, err
		}
		q.OutputColumns[i] = resolved
	}
	for i, name := range q.SearchColumns {
		resolved, err := resolveColumn("search", name)
		if err != nil {
			return nil, err
		}
		q.SearchColumns[i] = resolved
	}

	// Default term scope: the indexed columns of the selected sources,
	// falling back to the conventional catalog columns and finally to
	// every column, so search still works on stores imported without
	// indexes.
	searchCols := q.SearchColumns
	if len(searchCols) == 0 {
		seen := make(map[string]struct{})
		for _, src := range sources {
			for _, name := range src.IndexedColumnNames() {
				if _, ok := seen[name]; !ok {
					seen[name] = struct{}{}
					searchCols = append(searchCols, name)
				}
			}
		}
	}
	if len(searchCols) == 0 {
		for _, name := range DefaultIndexedColumns() {
			if _, ok := inUnion[name]; ok {
				searchCols = append(searchCols, name)
			}
		}
	}
	if len(searchCols) == 0 {
		searchCols = union
	}
	q.SearchColumns = searchCols

	outputCols := q.OutputColumns
	if len(outputCols) == 0 {
		outputCols = union
	}
	q.OutputColumns = outputCols

	// Every arm projects the output columns plus the sort column, so
	// ORDER BY can reference a column that is not displayed.
	projected := make([]string, 0, len(outputCols)+1)
	projected = append(projected, outputCols...)
	if q.SortColumn != "" {
		found := false
		for _, name := range projected {
			if name == q.SortColumn {
				found = true
				break
			}
		}
		if !found {
			projected = append(projected, q.SortColumn)
		}
	}

	// Deterministic filter order for arg binding.
	filterCols := make([]string, 0, len(q.Filters))
	for _, name := range union {
		if _, ok := q.Filters[name]; ok {
			filterCols = append(filterCols, name)
		}
	}

	var arms, countArms []string
	var args, countArgs []any
	for _, src := range sources {
		projection := make([]string, 0, len(projected)+2)
		projection = append(projection, fmt.Sprintf("%d AS source_id", src.ID), "ordinal")
		for _, name := range projected {
			if src.hasColumn(name) {
				projection = append(projection, quoteIdent(name))
			} else {
				projection = append(projection, "NULL AS "+quoteIdent(name))
			}
		}

		var conds []string
		var armArgs []any
		if q.Term != "" {
			var termConds []string
			for _, name := range searchCols {
				if !src.hasColumn(name) {
					continue
				}
				termConds = append(termConds, quoteIdent(name)+` LIKE '%' || ? || '%' ESCAPE '\'`)
				armArgs = append(armArgs, escapeLike(q.Term))
			}
			if len(termConds) == 0 {
				// No searchable column in this source; it contributes
				// nothing while the term is set.
				conds = append(conds, "0")
			} else {
				conds = append(conds, "("+strings.Join(termConds, " OR ")+")")
			}
		}
		for _, name := range filterCols {
			if !src.hasColumn(name) {
				conds = append(conds, "0")
				continue
			}
			conds = append(conds, quoteIdent(name)+` LIKE '%' || ? || '%' ESCAPE '\'`)
			armArgs = append(armArgs, escapeLike(q.Filters[name]))
		}

		where := ""
		if len(conds) > 0 {
			where = " WHERE " + strings.Join(conds, " AND ")
		}

		table := quoteIdent(src.dataTable())
		arms = append(arms, fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(projection, ", "), table, where))
		countArms = append(countArms, fmt.Sprintf("SELECT 1 FROM %s%s", table, where))
		args = append(args, armArgs...)
		countArgs = append(countArgs, armArgs...)
	}

	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}
	var order string
	if q.SortColumn != "" {
		order = fmt.Sprintf("%s %s, source_id ASC, ordinal ASC", quoteIdent(q.SortColumn), direction)
	} else {
		order = fmt.Sprintf("source_id %s, ordinal %s", direction, direction)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	q.Limit = limit
	q.Offset = offset

	return &searchPlan{
		selectSQL: fmt.Sprintf("SELECT * FROM (%s) ORDER BY %s LIMIT ? OFFSET ?",
			strings.Join(arms, " UNION ALL "), order),
		countSQL:  fmt.Sprintf("SELECT COUNT(*) FROM (%s)", strings.Join(countArms, " UNION ALL ")),
		args:      append(args, limit, offset),
		countArgs: countArgs,
		columns:   projected,
		limit:     limit,
		offset:    offset,
	}, nil
}

// Search executes a query across the selected sources and returns one
// page of rows plus the total match count. Searching never mutates the
// store.
func (e *Engine) Search(ctx context.Context, query SearchQuery) (*SearchResult, error) {
	sources, err := e.store.activeSources(ctx, query.SourceIDs)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return &SearchResult{Rows: []Row{}, TotalCount: 0, Query: query}, nil
	}

	plan, err := compileSearch(&query, sources)
	if err != nil {
		return nil, err
	}

	var total int64
	if err := e.store.db.QueryRowContext(ctx, plan.countSQL, plan.countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count matches: %w", err)
	}

	rows, err := e.store.db.QueryContext(ctx, plan.selectSQL, plan.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer rows.Close()

	nameByID := make(map[int64]string, len(sources))
	for _, src := range sources {
		nameByID[src.ID] = src.OriginalFilename
	}
	outputSet := make(map[string]struct{}, len(query.OutputColumns))
	for _, name := range query.OutputColumns {
		outputSet[name] = struct{}{}
	}

	result := &SearchResult{Rows: []Row{}, TotalCount: total, Query: query}
	for rows.Next() {
		values := make([]Value, len(plan.columns))
		scan := make([]any, 0, len(plan.columns)+2)
		var sourceID, ordinal int64
		scan = append(scan, &sourceID, &ordinal)
		for i := range values {
			scan = append(scan, &values[i])
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}

		row := Row{
			SourceID:   sourceID,
			SourceName: nameByID[sourceID],
			Ordinal:    ordinal,
			Values:     make(map[string]Value, len(query.OutputColumns)),
		}
		for i, name := range plan.columns {
			if _, ok := outputSet[name]; ok {
				row.Values[name] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}
	return result, nil
}

// SearchGrouped runs the term against each active source separately and
// returns per-source groups, skipping sources with no matches. Useful
// for "which file is this part in" views.
func (e *Engine) SearchGrouped(ctx context.Context, term string, perSourceLimit int) ([]SourceGroup, error) {
	if perSourceLimit <= 0 {
		perSourceLimit = 10
	}
	sources, err := e.store.activeSources(ctx, nil)
	if err != nil {
		return nil, err
	}

	var groups []SourceGroup
	for _, src := range sources {
		result, err := e.Search(ctx, SearchQuery{
			Term:      term,
			SourceIDs: []int64{src.ID},
			Limit:     perSourceLimit,
		})
		if err != nil {
			return nil, err
		}
		if result.TotalCount == 0 {
			continue
		}
		groups = append(groups, SourceGroup{
			Source:     src,
			Rows:       result.Rows,
			MatchCount: result.TotalCount,
		})
	}
	return groups, nil
}
