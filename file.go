package partsearch

import (
	"compress/bzip2"
	"compress/gzip"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// FileType represents a supported input format, before compression.
type FileType int

const (
	// FileTypeCSV represents comma-separated files.
	FileTypeCSV FileType = iota
	// FileTypeTSV represents tab-separated files.
	FileTypeTSV
	// FileTypeXLSX represents Excel workbooks.
	FileTypeXLSX
	// FileTypeParquet represents Apache Parquet files.
	FileTypeParquet
	// FileTypeUnsupported represents everything else.
	FileTypeUnsupported
)

// CompressionType represents the outer compression of an input file.
type CompressionType int

const (
	// CompressionNone means the file is not compressed.
	CompressionNone CompressionType = iota
	// CompressionGZ means gzip.
	CompressionGZ
	// CompressionBZ2 means bzip2.
	CompressionBZ2
	// CompressionXZ means xz.
	CompressionXZ
	// CompressionZSTD means zstandard.
	CompressionZSTD
)

// File extensions
const (
	extCSV     = ".csv"
	extTSV     = ".tsv"
	extXLSX    = ".xlsx"
	extParquet = ".parquet"
	extGZ      = ".gz"
	extBZ2     = ".bz2"
	extXZ      = ".xz"
	extZSTD    = ".zst"
)

// inputFile describes one spreadsheet on disk.
type inputFile struct {
	path        string
	fileType    FileType
	compression CompressionType
}

// newInputFile classifies a path by its extension(s).
func newInputFile(path string) inputFile {
	f := inputFile{path: path, fileType: FileTypeUnsupported, compression: CompressionNone}

	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, extGZ):
		f.compression = CompressionGZ
		name = strings.TrimSuffix(name, extGZ)
	case strings.HasSuffix(name, extBZ2):
		f.compression = CompressionBZ2
		name = strings.TrimSuffix(name, extBZ2)
	case strings.HasSuffix(name, extXZ):
		f.compression = CompressionXZ
		name = strings.TrimSuffix(name, extXZ)
	case strings.HasSuffix(name, extZSTD):
		f.compression = CompressionZSTD
		name = strings.TrimSuffix(name, extZSTD)
	}

	switch filepath.Ext(name) {
	case extCSV:
		f.fileType = FileTypeCSV
	case extTSV:
		f.fileType = FileTypeTSV
	case extXLSX:
		f.fileType = FileTypeXLSX
	case extParquet:
		f.fileType = FileTypeParquet
	}
	return f
}

// isSupportedFile reports whether a path looks importable.
func isSupportedFile(path string) bool {
	return newInputFile(path).fileType != FileTypeUnsupported
}

// sourceNameFromPath derives the logical source name: the base file
// name without compression or format extensions.
func sourceNameFromPath(path string) string {
	name := filepath.Base(path)
	for _, ext := range []string{extGZ, extBZ2, extXZ, extZSTD} {
		if strings.HasSuffix(strings.ToLower(name), ext) {
			name = name[:len(name)-len(ext)]
			break
		}
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// decompressedReader wraps reader according to the file's compression.
// The returned closer releases decoder state and must be called on
// every exit path; it never closes the underlying reader.
func (f inputFile) decompressedReader(reader io.Reader) (io.Reader, func() error, error) {
	switch f.compression {
	case CompressionGZ:
		gzReader, err := gzip.NewReader(reader)
		if err != nil {
			return nil, nil, err
		}
		return gzReader, gzReader.Close, nil
	case CompressionBZ2:
		return bzip2.NewReader(reader), func() error { return nil }, nil
	case CompressionXZ:
		xzReader, err := xz.NewReader(reader)
		if err != nil {
			return nil, nil, err
		}
		return xzReader, func() error { return nil }, nil
	case CompressionZSTD:
		decoder, err := zstd.NewReader(reader)
		if err != nil {
			return nil, nil, err
		}
		return decoder, func() error { decoder.Close(); return nil }, nil
	default:
		return reader, func() error { return nil }, nil
	}
}
