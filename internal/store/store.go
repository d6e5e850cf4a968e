// Package store persists reconciliation reports in SQLite so the latest
// report for a region and indicator can be served without replaying the
// sink topic.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/exzackley/fondogis/internal/domain"
	"github.com/exzackley/fondogis/internal/observability"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// ErrNotFound is returned when no report matches a lookup.
var ErrNotFound = errors.New("report not found")

// timeLayout is fixed-width so generated_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a report repository backed by database/sql.
type Store struct {
	db      *sql.DB
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New wraps an open database. Call Migrate before use.
func New(db *sql.DB, metrics *observability.Metrics, logger *slog.Logger) *Store {
	return &Store{db: db, metrics: metrics, logger: logger}
}

// Open opens (creating if needed) the SQLite database at path, applies
// pragmas for concurrent readers and runs migrations.
func Open(ctx context.Context, path string, metrics *observability.Metrics, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	s := New(db, metrics, logger)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LoadBatch saves reports; it implements pipeline.BatchLoader.
func (s *Store) LoadBatch(ctx context.Context, reports []domain.Report) error {
	return s.SaveReports(ctx, reports)
}

// SaveReports upserts reports in one transaction. A report with an existing
// id replaces the stored one.
func (s *Store) SaveReports(ctx context.Context, reports []domain.Report) error {
	if len(reports) == 0 {
		return nil
	}
	err := s.saveReports(ctx, reports)
	if err != nil {
		s.metrics.ReportsStored.WithLabelValues("error").Add(float64(len(reports)))
		return err
	}
	s.metrics.ReportsStored.WithLabelValues("success").Add(float64(len(reports)))
	return nil
}

func (s *Store) saveReports(ctx context.Context, reports []domain.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reports (id, region, indicator, source_a, source_b, model_version, verdict, compared, incomparable, max_abs_diff, generated_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			verdict = excluded.verdict,
			compared = excluded.compared,
			incomparable = excluded.incomparable,
			max_abs_diff = excluded.max_abs_diff,
			generated_at = excluded.generated_at,
			body = excluded.body
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range reports {
		r := &reports[i]
		body, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode report %s: %w", r.ID, err)
		}
		var maxAbs sql.NullFloat64
		if v := r.Comparison.Summary.MaxAbsDiff; v.Valid {
			maxAbs = sql.NullFloat64{Float64: v.Float, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Region, r.Indicator, r.A.Name, r.B.Name, r.ModelVersion,
			r.Comparison.Summary.Verdict, r.Comparison.Summary.Compared, r.Comparison.Summary.Incomparable,
			maxAbs, r.GeneratedAt.UTC().Format(timeLayout), string(body),
		); err != nil {
			return fmt.Errorf("upsert report %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// Report returns the report with the given id.
func (s *Store) Report(ctx context.Context, id string) (domain.Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body FROM reports WHERE id = ?`, id)
	return scanReport(row)
}

// LatestReport returns the most recently generated report for a region and
// indicator across all source pairs and model versions.
func (s *Store) LatestReport(ctx context.Context, region, indicator string) (domain.Report, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT body FROM reports
		WHERE region = ? AND indicator = ?
		ORDER BY generated_at DESC, id
		LIMIT 1
	`, region, indicator)
	return scanReport(row)
}

// Filter narrows ListReports. Empty fields match everything.
type Filter struct {
	Region  string
	Verdict string
	Limit   int
}

// ReportSummary is one row of a report listing.
type ReportSummary struct {
	ID           string       `json:"id"`
	Region       string       `json:"region"`
	Indicator    string       `json:"indicator"`
	SourceA      string       `json:"source_a"`
	SourceB      string       `json:"source_b"`
	ModelVersion string       `json:"model_version"`
	Verdict      string       `json:"verdict"`
	Compared     int          `json:"compared"`
	Incomparable int          `json:"incomparable"`
	MaxAbsDiff   domain.Value `json:"max_abs_diff"`
	GeneratedAt  time.Time    `json:"generated_at"`
}

// ListReports returns report summaries, newest first.
func (s *Store) ListReports(ctx context.Context, f Filter) ([]ReportSummary, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, region, indicator, source_a, source_b, model_version, verdict, compared, incomparable, max_abs_diff, generated_at
		FROM reports
		WHERE (? = '' OR region = ?) AND (? = '' OR verdict = ?)
		ORDER BY generated_at DESC, id
		LIMIT ?
	`, f.Region, f.Region, f.Verdict, f.Verdict, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReportSummary
	for rows.Next() {
		var (
			rs          ReportSummary
			maxAbs      sql.NullFloat64
			generatedAt string
		)
		if err := rows.Scan(&rs.ID, &rs.Region, &rs.Indicator, &rs.SourceA, &rs.SourceB, &rs.ModelVersion,
			&rs.Verdict, &rs.Compared, &rs.Incomparable, &maxAbs, &generatedAt); err != nil {
			return nil, err
		}
		if maxAbs.Valid {
			rs.MaxAbsDiff = domain.Present(maxAbs.Float64)
		}
		rs.GeneratedAt, err = time.Parse(timeLayout, generatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse generated_at of %s: %w", rs.ID, err)
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

func scanReport(row *sql.Row) (domain.Report, error) {
	var body string
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Report{}, ErrNotFound
		}
		return domain.Report{}, err
	}
	var r domain.Report
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return domain.Report{}, fmt.Errorf("decode stored report: %w", err)
	}
	return r, nil
}
