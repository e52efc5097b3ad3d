package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Run is one ledger entry. Score is only valid for successful runs.
type Run struct {
	ID               string
	Sample           string
	Build            string
	VariantFile      string
	Status           string
	Stage            string // failing stage, empty on success
	Error            string
	Score            sql.NullFloat64
	NumberOfSNPs     int
	NumberOfSNPsUsed int
	StartedAt        time.Time
	Duration         time.Duration
	Panel            FileFingerprint
}

// RecordRun inserts a run, assigning a new ID when r.ID is empty. It
// returns the stored ID.
func (s *Store) RecordRun(ctx context.Context, r Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	var panelModTime sql.NullTime
	if !r.Panel.ModTime.IsZero() {
		panelModTime = sql.NullTime{Time: r.Panel.ModTime.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO runs (
		run_id, sample, build, variant_file, status, stage, error,
		score, number_of_snps, number_of_snps_used,
		started_at, duration_ms, panel_path, panel_size, panel_modtime
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Sample, r.Build, r.VariantFile, r.Status, r.Stage, r.Error,
		r.Score, int64(r.NumberOfSNPs), int64(r.NumberOfSNPsUsed),
		r.StartedAt.UTC(), r.Duration.Milliseconds(), r.Panel.Path, r.Panel.Size, panelModTime,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return r.ID, nil
}

const runColumns = `run_id, sample, build, variant_file, status, stage, error,
	score, number_of_snps, number_of_snps_used,
	started_at, duration_ms, panel_path, panel_size, panel_modtime`

// ListRuns returns runs newest first. An empty sample lists every sample;
// limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, sample string, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs"
	var args []any
	if sample != "" {
		query += " WHERE sample=?"
		args = append(args, sample)
	}
	query += " ORDER BY started_at DESC, run_id"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// GetRun returns a run by ID, or nil when no such run exists.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+runColumns+" FROM runs WHERE run_id=?", id)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// scanRuns scans rows into Run slices.
func scanRuns(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		var (
			r            Run
			snps, used   int64
			durationMS   int64
			panelModTime sql.NullTime
		)
		if err := rows.Scan(
			&r.ID, &r.Sample, &r.Build, &r.VariantFile, &r.Status, &r.Stage, &r.Error,
			&r.Score, &snps, &used,
			&r.StartedAt, &durationMS, &r.Panel.Path, &r.Panel.Size, &panelModTime,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.NumberOfSNPs = int(snps)
		r.NumberOfSNPsUsed = int(used)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		if panelModTime.Valid {
			r.Panel.ModTime = panelModTime.Time
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
