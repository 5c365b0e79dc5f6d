// Package partsearch ingests large flat spreadsheets into a
// SQLite-backed columnar store and serves fast case-insensitive
// substring search over them.
//
// Spreadsheet files (CSV, TSV, XLSX, Parquet, optionally compressed
// with gzip, bzip2, xz or zstd) are streamed in bounded chunks, their
// header labels normalized into stable column identifiers, and their
// rows stored as text in one data table per imported source. A source
// only becomes visible to search once every chunk and index build has
// committed, so readers never observe a half-imported file.
//
// Basic usage:
//
//	eng, err := partsearch.Open("parts.db", partsearch.Config{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer eng.Close()
//
//	report, err := eng.ImportFile(ctx, "catalog.xlsx")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("imported %d rows\n", report.RowsImported)
//
//	result, err := eng.Search(ctx, partsearch.SearchQuery{Term: "keyboard"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, row := range result.Rows {
//		fmt.Println(row.Values["ASSEMBLY"].String, row.Values["DESCRIPTION"].String)
//	}
//
// Imports are single-writer: concurrent imports into the same store
// file are not supported and must be serialized by the caller. Searches
// are read-only and may run concurrently with each other and with an
// import, but only through the same Engine: opening a second Engine on
// the store file sweeps pending import state and fails any import in
// flight elsewhere.
package partsearch
