// Package csvlog keeps the conversation log, the profile table and click logs
// in flat CSV files next to the fitness dataset.
package csvlog

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// TimestampLayout is the layout of the timestamp column of every log file.
const TimestampLayout = "2006-01-02T15:04:05.999999"

// File is an append-only CSV file with a fixed header.
// Appends and reads on the same File are serialized so rows never interleave.
type File struct {
	path   string
	header []string

	mu sync.Mutex
}

func NewFile(path string, header []string) *File {
	return &File{path: path, header: header}
}

func (f *File) Path() string {
	return f.path
}

// Append writes one record, creating the file with its header first if needed.
func (f *File) Append(record []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", f.path)
	}
	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", f.path)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", f.path)
	}

	w := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := w.Write(f.header); err != nil {
			return errors.Wrap(err, "failed to write header")
		}
	}
	if err := w.Write(record); err != nil {
		return errors.Wrap(err, "failed to write record")
	}
	w.Flush()
	return errors.Wrapf(w.Error(), "failed to flush %s", f.path)
}

// ReadAll returns every row keyed by the column names of the file's first row.
// A missing file yields no rows.
func (f *File) ReadAll() ([]map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to open %s", f.path)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read header of %s", f.path)
	}

	var rows []map[string]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", f.path)
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func formatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// parseTimestamp accepts timestamps with or without fractional seconds.
// Unparseable values yield the zero time.
func parseTimestamp(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}
