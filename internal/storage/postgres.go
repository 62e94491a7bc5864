package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/agentworkforce/fleetdesk/internal/intake"
	_ "github.com/lib/pq"
)

const (
	postgresReportTableName  = "fleet_reports"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresReportSink records report rows in a table. The table name comes
// from the DSN's "table" parameter, which is stripped before connecting.
type PostgresReportSink struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	mu sync.Mutex
	db *sql.DB
}

func NewPostgresReportSink(dsn string) (*PostgresReportSink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	connDSN, tableName, err := splitPostgresDSN(dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresReportSink{
		dsn:       connDSN,
		tableName: tableName,
		openDB:    sql.Open,
	}, nil
}

func (s *PostgresReportSink) AppendRow(ctx context.Context, _ string, target intake.SheetTarget, row []string) error {
	record, ok := intake.RecordFromRow(row)
	if !ok {
		return fmt.Errorf("%w: row has %d cells, want %d", ErrInvalidInput, len(row), len(intake.ReportColumns))
	}
	db, err := s.ensureReady()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (spreadsheet, sheet, report_date, asset, issue, amount, payer, reporter, artifact_link, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, postgresQuoteIdentifier(s.tableName))
	_, err = db.ExecContext(ctx, query,
		target.Spreadsheet,
		target.Sheet,
		record.Date,
		record.Asset,
		record.Issue,
		record.Amount,
		record.Payer,
		record.Reporter,
		record.ArtifactLink,
		record.Notes,
	)
	return err
}

func (s *PostgresReportSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// ensureReady connects and creates the table on first use. A failed attempt
// is not remembered, so the next append tries again.
func (s *PostgresReportSink) ensureReady() (*sql.DB, error) {
	if s == nil {
		return nil, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}
	db, err := s.openDB("postgres", s.dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			spreadsheet TEXT NOT NULL DEFAULT '',
			sheet TEXT NOT NULL DEFAULT '',
			report_date TEXT NOT NULL,
			asset TEXT NOT NULL,
			issue TEXT NOT NULL,
			amount TEXT NOT NULL,
			payer TEXT NOT NULL,
			reporter TEXT NOT NULL,
			artifact_link TEXT NOT NULL,
			notes TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, postgresQuoteIdentifier(s.tableName))
	if _, err := db.ExecContext(ctx, query); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.db = db
	return db, nil
}

func splitPostgresDSN(dsn string) (string, string, error) {
	if !strings.Contains(dsn, "://") {
		return dsn, postgresReportTableName, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", "", err
	}
	query := parsed.Query()
	tableName := strings.TrimSpace(query.Get("table"))
	if tableName == "" {
		tableName = postgresReportTableName
	}
	query.Del("table")
	parsed.RawQuery = query.Encode()
	return parsed.String(), tableName, nil
}

func postgresQuoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "\"\""
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
