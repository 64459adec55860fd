// Package tableio persists feature series and raw kline rows to disk.
package tableio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"klineforge/internal/domain"
)

// Saver writes a series to a file.
type Saver interface {
	Save(s *domain.Series, path string) error
	Extension() string
}

// Loader reads a series back from a file written by the matching Saver.
type Loader interface {
	Load(path string) (*domain.Series, error)
}

// Codec both saves and loads one file format.
type Codec interface {
	Saver
	Loader
}

// Formats lists the supported table formats.
var Formats = []string{"csv", "parquet"}

// ForFormat returns the codec for a format name (csv, parquet).
func ForFormat(format string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVCodec{}, nil
	case "parquet":
		return ParquetCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported table format %q (use: %s): %w", format, strings.Join(Formats, ", "), domain.ErrConfiguration)
	}
}

// FileStem builds the output name {pair}_{period}_{lookback}_{date}.
func FileStem(symbol, interval, lookback string, day time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%s", symbol, interval, lookback, day.UTC().Format("2006-01-02"))
}

// PathFor joins dir and stem and sets the codec's extension, replacing any
// extension stem already carries.
func PathFor(dir, stem string, s Saver) string {
	ext := "." + s.Extension()
	stem = strings.TrimSuffix(stem, ext)
	return filepath.Join(dir, stem+ext)
}

// SaveAll writes s once per saver under dir and returns the written paths.
func SaveAll(s *domain.Series, dir, stem string, savers ...Saver) ([]string, error) {
	paths := make([]string, 0, len(savers))
	for _, sv := range savers {
		path := PathFor(dir, stem, sv)
		if err := sv.Save(s, path); err != nil {
			return paths, fmt.Errorf("save %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// writeFile creates path, runs write on it and closes it. A failed close is
// returned when write itself succeeded, since buffered data may be lost.
func writeFile(path string, write func(w io.Writer) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	return write(file)
}
