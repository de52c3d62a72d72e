package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run id is unknown to the ledger.
var ErrRunNotFound = errors.New("run not found")

const runColumns = "id, stage, status, reference_camera, threshold, start_timecode, summary, error_message, started_at, finished_at"

// BeginRun inserts a running row. A blank ID is replaced with a new UUID and
// a zero StartedAt with the current time; the stored run is returned.
func (s *Store) BeginRun(ctx context.Context, run Run) (Run, error) {
	if strings.TrimSpace(run.Stage) == "" {
		return Run{}, errors.New("begin run: stage is required")
	}
	if strings.TrimSpace(run.ID) == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = RunRunning
	run.FinishedAt = time.Time{}

	_, err := s.execWithRetry(ctx,
		`INSERT INTO runs (id, stage, status, reference_camera, threshold, start_timecode, summary, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Stage,
		run.Status,
		nullString(run.ReferenceCamera),
		run.Threshold,
		run.StartTimecode,
		nullString(run.Summary),
		formatTime(run.StartedAt),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun records the terminal status, summary and error message of a run.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, summary, errMsg string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, summary = COALESCE(?, summary), error_message = ?, finished_at = ? WHERE id = ?`,
		status,
		nullString(summary),
		nullString(errMsg),
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// RecordIndexBuild appends a camera's build outcome to the run.
func (s *Store) RecordIndexBuild(ctx context.Context, build IndexBuild) error {
	if build.RecordedAt.IsZero() {
		build.RecordedAt = time.Now()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO index_builds (run_id, camera, outcome, record_count, index_path, detail, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		build.RunID,
		build.Camera,
		build.Outcome,
		build.RecordCount,
		nullString(build.IndexPath),
		nullString(build.Detail),
		formatTime(build.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("record index build for %s: %w", build.Camera, err)
	}
	return nil
}

// RecordExtractFailure appends a failed frame to the run.
func (s *Store) RecordExtractFailure(ctx context.Context, failure ExtractFailure) error {
	if failure.RecordedAt.IsZero() {
		failure.RecordedAt = time.Now()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO extract_failures (run_id, reference_timecode, camera, frame_index, error_message, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		failure.RunID,
		failure.ReferenceTimecode,
		failure.Camera,
		failure.Frame,
		failure.Error,
		formatTime(failure.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("record extract failure for %s: %w", failure.Camera, err)
	}
	return nil
}

// GetRun loads one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestIndexBuilds returns the most recent outcome per camera, ordered by
// camera id.
func (s *Store) LatestIndexBuilds(ctx context.Context) ([]IndexBuild, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `
		SELECT b.run_id, b.camera, b.outcome, b.record_count, b.index_path, b.detail, b.recorded_at
		FROM index_builds b
		JOIN (SELECT camera, MAX(id) AS id FROM index_builds GROUP BY camera) latest ON latest.id = b.id
		ORDER BY b.camera`)
	if err != nil {
		return nil, fmt.Errorf("query index builds: %w", err)
	}
	defer rows.Close()
	return scanIndexBuilds(rows)
}

// IndexBuilds returns every outcome recorded for a run, ordered by camera id.
func (s *Store) IndexBuilds(ctx context.Context, runID string) ([]IndexBuild, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `
		SELECT run_id, camera, outcome, record_count, index_path, detail, recorded_at
		FROM index_builds WHERE run_id = ? ORDER BY camera, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query index builds: %w", err)
	}
	defer rows.Close()
	return scanIndexBuilds(rows)
}

// ExtractFailures returns the failed frames of a run in reference order.
func (s *Store) ExtractFailures(ctx context.Context, runID string) ([]ExtractFailure, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `
		SELECT run_id, reference_timecode, camera, frame_index, error_message, recorded_at
		FROM extract_failures WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query extract failures: %w", err)
	}
	defer rows.Close()

	var failures []ExtractFailure
	for rows.Next() {
		var (
			f        ExtractFailure
			recorded sql.NullString
		)
		if err := rows.Scan(&f.RunID, &f.ReferenceTimecode, &f.Camera, &f.Frame, &f.Error, &recorded); err != nil {
			return nil, fmt.Errorf("scan extract failure: %w", err)
		}
		f.RecordedAt = parseTime(recorded)
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run         Run
		status      string
		reference   sql.NullString
		summary     sql.NullString
		errorMsg    sql.NullString
		startedRaw  sql.NullString
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Stage,
		&status,
		&reference,
		&run.Threshold,
		&run.StartTimecode,
		&summary,
		&errorMsg,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return Run{}, err
	}
	run.Status = RunStatus(status)
	run.ReferenceCamera = reference.String
	run.Summary = summary.String
	run.ErrorMessage = errorMsg.String
	run.StartedAt = parseTime(startedRaw)
	run.FinishedAt = parseTime(finishedRaw)
	return run, nil
}

func scanIndexBuilds(rows *sql.Rows) ([]IndexBuild, error) {
	var builds []IndexBuild
	for rows.Next() {
		var (
			b        IndexBuild
			outcome  string
			path     sql.NullString
			detail   sql.NullString
			recorded sql.NullString
		)
		if err := rows.Scan(&b.RunID, &b.Camera, &outcome, &b.RecordCount, &path, &detail, &recorded); err != nil {
			return nil, fmt.Errorf("scan index build: %w", err)
		}
		b.Outcome = BuildOutcome(outcome)
		b.IndexPath = path.String
		b.Detail = detail.String
		b.RecordedAt = parseTime(recorded)
		builds = append(builds, b)
	}
	return builds, rows.Err()
}
