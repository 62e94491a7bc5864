package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agentworkforce/fleetdesk/internal/google"
	"github.com/agentworkforce/fleetdesk/internal/intake"
)

func BuildReportSinkFromDSN(dsn string, opts Options) (intake.ReportSink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := normalizeScheme(parsed.Scheme)
	if factory, ok := lookupReportSinkFactory(scheme); ok {
		return factory(dsn, opts)
	}
	switch scheme {
	case "sheets", "gsheets":
		return google.NewSheetsClient(google.SheetsOptions{BaseURL: opts.SheetsBaseURL, HTTPClient: opts.HTTPClient}), nil
	case "postgres", "postgresql":
		return NewPostgresReportSink(dsn)
	case "", "file":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewJSONLinesReportSink(path), nil
	case "memory", "mem", "inmem":
		return NewMemoryReportSink(), nil
	case "mysql", "sqlite", "bigquery":
		return nil, fmt.Errorf("%w: report sink %s", ErrNotImplemented, scheme)
	default:
		return nil, fmt.Errorf("unsupported report sink scheme: %s", scheme)
	}
}

// SinkEntry is one appended row together with its destination.
type SinkEntry struct {
	Spreadsheet string              `json:"spreadsheet,omitempty"`
	Sheet       string              `json:"sheet,omitempty"`
	Record      intake.ReportRecord `json:"record"`
	AppendedAt  time.Time           `json:"appendedAt"`
}

func newSinkEntry(target intake.SheetTarget, row []string) (SinkEntry, error) {
	record, ok := intake.RecordFromRow(row)
	if !ok {
		return SinkEntry{}, fmt.Errorf("%w: row has %d cells, want %d", ErrInvalidInput, len(row), len(intake.ReportColumns))
	}
	return SinkEntry{
		Spreadsheet: target.Spreadsheet,
		Sheet:       target.Sheet,
		Record:      record,
		AppendedAt:  time.Now().UTC(),
	}, nil
}

type MemoryReportSink struct {
	mu      sync.Mutex
	entries []SinkEntry
}

func NewMemoryReportSink() *MemoryReportSink {
	return &MemoryReportSink{}
}

func (s *MemoryReportSink) AppendRow(_ context.Context, _ string, target intake.SheetTarget, row []string) error {
	entry, err := newSinkEntry(target, row)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryReportSink) Entries() []SinkEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SinkEntry(nil), s.entries...)
}

// JSONLinesReportSink appends one JSON document per row to a local file.
type JSONLinesReportSink struct {
	Path string
	mu   sync.Mutex
}

func NewJSONLinesReportSink(path string) *JSONLinesReportSink {
	return &JSONLinesReportSink{Path: path}
}

func (s *JSONLinesReportSink) AppendRow(_ context.Context, _ string, target intake.SheetTarget, row []string) error {
	if s == nil || strings.TrimSpace(s.Path) == "" {
		return ErrInvalidInput
	}
	entry, err := newSinkEntry(target, row)
	if err != nil {
		return err
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Entries reads back every appended row.
func (s *JSONLinesReportSink) Entries() ([]SinkEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []SinkEntry
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var entry SinkEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
