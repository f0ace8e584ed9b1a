package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink appends rows to the reporting sheet. Sheets are addressed by exact
// title; appending to a sheet that does not exist is an error, never a silent
// skip, because a missing mirror for a configured ad source means the run's
// output would be lost.
type Sink interface {
	AppendRow(ctx context.Context, sheetTitle string, row map[string]string) error
}

// CSVSink mirrors the reporting sheet as one pre-created CSV file per sheet
// title under a base directory. The file's header row defines the column set;
// row values are matched to headers, and a row key with no matching header is
// an error (the operator adds the column first, same as with a real sheet).
type CSVSink struct {
	dir string
	mu  sync.Mutex
}

// NewCSVSink creates a sink over an existing directory.
func NewCSVSink(dir string) (*CSVSink, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("sheet directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sheet path %q is not a directory", dir)
	}
	return &CSVSink{dir: dir}, nil
}

// AppendRow appends one row to <dir>/<sheetTitle>.csv.
func (s *CSVSink) AppendRow(_ context.Context, sheetTitle string, row map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, sheetTitle+".csv")

	header, err := readHeader(path)
	if err != nil {
		return err
	}

	record := make([]string, len(header))
	matched := 0
	for i, col := range header {
		if v, ok := row[col]; ok {
			record[i] = v
			matched++
		}
	}
	if matched != len(row) {
		return fmt.Errorf("sheet %q: row has %d keys but only %d match header columns", sheetTitle, len(row), matched)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open sheet %q: %w", sheetTitle, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("failed to append to sheet %q: %w", sheetTitle, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush sheet %q: %w", sheetTitle, err)
	}
	return nil
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("sheet file %q does not exist", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open sheet file %q: %w", path, err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %q: %w", path, err)
	}
	return header, nil
}
