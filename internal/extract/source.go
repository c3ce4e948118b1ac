// Package extract reads and writes the flat extracts exchanged with the
// upstream extraction jobs: semicolon CSV, XLSX workbooks and parquet
// snapshots.
package extract

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/RoqueChristian/backup-inteligencia/internal/frame"
)

// ErrSourceNotFound is returned when an extract file does not exist.
var ErrSourceNotFound = errors.New("extract: source not found")

// ErrUnsupportedFormat is returned for extensions no reader understands.
var ErrUnsupportedFormat = errors.New("extract: unsupported format")

// Format is the on-disk layout of an extract.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatParquet Format = "parquet"
)

// Source identifies one extract file at a point in time. Two sources with
// the same fingerprint hold the same bytes for caching purposes.
type Source struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	Format  Format    `json:"format"`
}

// Fingerprint renders the cache identity of the source.
func (s Source) Fingerprint() string {
	return strings.Join([]string{s.Path, strconv.FormatInt(s.Size, 10), strconv.FormatInt(s.ModTime.UnixNano(), 10)}, "|")
}

// Stat resolves path into a Source. A missing file yields ErrSourceNotFound.
func Stat(path string) (Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Source{}, fmt.Errorf("extract: resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Source{}, fmt.Errorf("%w: %s", ErrSourceNotFound, abs)
		}
		return Source{}, fmt.Errorf("extract: stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return Source{}, fmt.Errorf("%w: %s is a directory", ErrSourceNotFound, abs)
	}
	format, err := DetectFormat(abs)
	if err != nil {
		return Source{}, err
	}
	return Source{Path: abs, Size: info.Size(), ModTime: info.ModTime(), Format: format}, nil
}

// DetectFormat maps a file extension to a Format.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".parquet":
		return FormatParquet, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
}

// Options tune the text readers.
type Options struct {
	Encoding Encoding
	Comma    rune
	Sheet    string
}

// ReadFrame loads a CSV or XLSX source into a frame. Parquet snapshots are
// typed and go through ReadParquet instead.
func ReadFrame(src Source, opts Options) (*frame.Frame, error) {
	switch src.Format {
	case FormatCSV:
		file, err := os.Open(src.Path)
		if err != nil {
			return nil, openError(src.Path, err)
		}
		defer file.Close()
		return ReadCSV(file, opts)
	case FormatXLSX:
		file, err := os.Open(src.Path)
		if err != nil {
			return nil, openError(src.Path, err)
		}
		defer file.Close()
		return ReadXLSX(file, opts.Sheet)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, src.Format)
}

func openError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, path)
	}
	return fmt.Errorf("extract: open %s: %w", path, err)
}
