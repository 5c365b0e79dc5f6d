package partsearch

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	pqfile "github.com/apache/arrow/go/v18/parquet/file"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/xuri/excelize/v2"
)

// rowScanner iterates over the raw rows of one spreadsheet. The header
// row is consumed at construction; Next returns io.EOF after the last
// data row. Close must be called on every exit path.
type rowScanner interface {
	// Header returns the raw header labels.
	Header() []string
	// Next returns the next data row. Row shape may be ragged; callers
	// pad or truncate against the declared schema.
	Next() ([]string, error)
	// Close releases underlying iterator state.
	Close() error
}

// newRowScanner builds a scanner for the given base file type reading
// from an already-decompressed stream.
func newRowScanner(fileType FileType, reader io.Reader, chunkSize int) (rowScanner, error) {
	switch fileType {
	case FileTypeCSV:
		return newDelimitedScanner(reader, ',')
	case FileTypeTSV:
		return newDelimitedScanner(reader, '\t')
	case FileTypeXLSX:
		return newXLSXScanner(reader)
	case FileTypeParquet:
		return newParquetScanner(reader, chunkSize)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// delimitedScanner reads CSV or TSV row by row.
type delimitedScanner struct {
	reader *csv.Reader
	header []string
}

func newDelimitedScanner(reader io.Reader, delimiter rune) (*delimitedScanner, error) {
	csvReader := csv.NewReader(reader)
	csvReader.Comma = delimiter
	// Ragged rows are a data-quality issue, not a parse failure; the
	// importer pads or truncates them against the declared schema.
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true

	header, err := csvReader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}
	return &delimitedScanner{reader: csvReader, header: header}, nil
}

func (s *delimitedScanner) Header() []string { return s.header }

func (s *delimitedScanner) Next() ([]string, error) {
	return s.reader.Read()
}

func (s *delimitedScanner) Close() error { return nil }

// xlsxScanner streams the first sheet of an Excel workbook using the
// excelize row iterator, so only one row is materialized at a time.
type xlsxScanner struct {
	file   *excelize.File
	rows   *excelize.Rows
	header []string
}

func newXLSXScanner(reader io.Reader) (*xlsxScanner, error) {
	xlsxFile, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX file: %w", err)
	}

	sheetNames := xlsxFile.GetSheetList()
	if len(sheetNames) == 0 {
		_ = xlsxFile.Close()
		return nil, errors.New("no sheets found in XLSX file")
	}

	iter, err := xlsxFile.Rows(sheetNames[0])
	if err != nil {
		_ = xlsxFile.Close()
		return nil, fmt.Errorf("failed to open rows iterator for sheet %s: %w", sheetNames[0], err)
	}

	// Skip leading empty rows, then take the first non-empty row as the
	// header.
	var header []string
	for iter.Next() {
		row, err := iter.Columns()
		if err != nil {
			_ = iter.Close()
			_ = xlsxFile.Close()
			return nil, fmt.Errorf("failed to read header row in sheet %s: %w", sheetNames[0], err)
		}
		if len(row) == 0 {
			continue
		}
		header = row
		break
	}
	if header == nil {
		_ = iter.Close()
		_ = xlsxFile.Close()
		return nil, ErrEmptyFile
	}

	return &xlsxScanner{file: xlsxFile, rows: iter, header: header}, nil
}

func (s *xlsxScanner) Header() []string { return s.header }

func (s *xlsxScanner) Next() ([]string, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return s.rows.Columns()
}

func (s *xlsxScanner) Close() error {
	closeErr := s.rows.Close()
	if err := s.file.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	return closeErr
}

// bytesReaderAt adapts an in-memory buffer to io.ReaderAt for the
// parquet reader, which needs random access.
type bytesReaderAt struct {
	data []byte
}

func (r *bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// parquetScanner iterates a Parquet file batch by batch. Parquet
// requires random access, so the compressed payload is buffered in
// memory; batches are still bounded by the chunk size.
type parquetScanner struct {
	pqReader    *pqfile.Reader
	arrowTable  arrow.Table
	tableReader *array.TableReader
	header      []string
	batch       arrow.Record
	batchRow    int64
}

func newParquetScanner(reader io.Reader, chunkSize int) (*parquetScanner, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet data: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	pqReader, err := pqfile.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet reader: %w", err)
	}

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{}, nil)
	if err != nil {
		_ = pqReader.Close()
		return nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}

	table, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		_ = pqReader.Close()
		return nil, fmt.Errorf("failed to read parquet table: %w", err)
	}

	schema := table.Schema()
	header := make([]string, schema.NumFields())
	for i, field := range schema.Fields() {
		header[i] = field.Name
	}

	if chunkSize < MinChunkSize {
		chunkSize = DefaultChunkSize
	}
	tableReader := array.NewTableReader(table, int64(chunkSize))

	return &parquetScanner{
		pqReader:    pqReader,
		arrowTable:  table,
		tableReader: tableReader,
		header:      header,
	}, nil
}

func (s *parquetScanner) Header() []string { return s.header }

func (s *parquetScanner) Next() ([]string, error) {
	for s.batch == nil || s.batchRow >= s.batch.NumRows() {
		if !s.tableReader.Next() {
			if err := s.tableReader.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		s.batch = s.tableReader.Record()
		s.batchRow = 0
	}

	row := make([]string, s.batch.NumCols())
	for j, col := range s.batch.Columns() {
		row[j] = arrowValueString(col, int(s.batchRow))
	}
	s.batchRow++
	return row, nil
}

func (s *parquetScanner) Close() error {
	s.tableReader.Release()
	s.arrowTable.Release()
	return s.pqReader.Close()
}

// arrowValueString renders one arrow cell as text. Nulls become the
// empty string; everything is stored as text downstream anyway.
func arrowValueString(col arrow.Array, i int) string {
	if col.IsNull(i) {
		return ""
	}
	if str, ok := col.(*array.String); ok {
		return str.Value(i)
	}
	return col.ValueStr(i)
}
