package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

type RunStatus string

const (
	RunRunning RunStatus = "RUNNING"
	RunOK      RunStatus = "OK"
	RunError   RunStatus = "ERROR"
	RunPartial RunStatus = "PARTIAL"
)

type FileStatus string

const (
	FileOK    FileStatus = "OK"
	FileError FileStatus = "ERROR"
)

var ErrRunClosed = errors.New("run already closed")

// Run — один прогон пайплайна (или его стадии).
// Статус меняется ровно один раз: RUNNING -> OK|ERROR|PARTIAL.
type Run struct {
	ID     string
	status RunStatus
}

func (r *Run) Status() RunStatus { return r.status }

// Tracker пишет аудит прогонов и файлов в etl_runs / etl_files.
type Tracker struct {
	db *sql.DB
}

func NewTracker(db *sql.DB) *Tracker { return &Tracker{db: db} }

func (t *Tracker) Begin(ctx context.Context, notes string) (*Run, error) {
	run := &Run{ID: ulid.Make().String(), status: RunRunning}
	_, err := t.db.ExecContext(ctx,
		`insert into etl_runs (run_id, started_at, status, notes) values ($1, now(), $2, $3)`,
		run.ID, RunRunning, notes)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	return run, nil
}

// Close завершает прогон. Повторный вызов — ErrRunClosed.
func (t *Tracker) Close(ctx context.Context, run *Run, status RunStatus, files, rows, errs int64) error {
	if run.status != RunRunning {
		return ErrRunClosed
	}
	switch status {
	case RunOK, RunError, RunPartial:
	default:
		return fmt.Errorf("invalid terminal status %q", status)
	}
	_, err := t.db.ExecContext(ctx,
		`update etl_runs set ended_at = now(), status = $1, total_files = $2, total_rows = $3, total_errors = $4 where run_id = $5`,
		status, files, rows, errs, run.ID)
	if err != nil {
		return fmt.Errorf("close run %s: %w", run.ID, err)
	}
	run.status = status
	return nil
}

// RecordFile пишет ровно одну строку etl_files на обработанный файл,
// независимо от исхода прогона.
func (t *Tracker) RecordFile(ctx context.Context, runID, dataset, path, md5 string, rows int64, status FileStatus, errMsg string) error {
	var msg sql.NullString
	if errMsg != "" {
		msg = sql.NullString{String: errMsg, Valid: true}
	}
	_, err := t.db.ExecContext(ctx,
		`insert into etl_files (run_id, dataset, path, md5, rows_loaded, status, error_msg, started_at, ended_at)
		 values ($1, $2, $3, $4, $5, $6, $7, now(), now())`,
		runID, dataset, path, md5, rows, status, msg)
	if err != nil {
		return fmt.Errorf("record file %s: %w", path, err)
	}
	return nil
}

// RunSummary — последняя запись etl_runs для read-only отчётов
type RunSummary struct {
	RunID       string     `json:"runId"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	Status      RunStatus  `json:"status"`
	TotalFiles  int64      `json:"totalFiles"`
	TotalRows   int64      `json:"totalRows"`
	TotalErrors int64      `json:"totalErrors"`
	Notes       string     `json:"notes,omitempty"`
}

// LastRun возвращает сводку последнего прогона; nil = прогонов ещё не было
func (t *Tracker) LastRun(ctx context.Context) (*RunSummary, error) {
	row := t.db.QueryRowContext(ctx,
		`select run_id, started_at, ended_at, status, total_files, total_rows, total_errors, coalesce(notes, '')
		 from etl_runs order by started_at desc, run_id desc limit 1`)

	var s RunSummary
	var ended sql.NullTime
	err := row.Scan(&s.RunID, &s.StartedAt, &ended, &s.Status, &s.TotalFiles, &s.TotalRows, &s.TotalErrors, &s.Notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last run: %w", err)
	}
	if ended.Valid {
		s.EndedAt = &ended.Time
	}
	return &s, nil
}

// FileSummary — строка etl_files
type FileSummary struct {
	Dataset    string     `json:"dataset"`
	Path       string     `json:"path"`
	MD5        string     `json:"md5"`
	RowsLoaded int64      `json:"rowsLoaded"`
	Status     FileStatus `json:"status"`
	ErrorMsg   string     `json:"errorMsg,omitempty"`
}

// RunFiles возвращает записи файлов одного прогона
func (t *Tracker) RunFiles(ctx context.Context, runID string) ([]FileSummary, error) {
	rows, err := t.db.QueryContext(ctx,
		`select dataset, path, md5, rows_loaded, status, coalesce(error_msg, '')
		 from etl_files where run_id = $1 order by id`, runID)
	if err != nil {
		return nil, fmt.Errorf("run files: %w", err)
	}
	defer rows.Close()

	var out []FileSummary
	for rows.Next() {
		var f FileSummary
		if err := rows.Scan(&f.Dataset, &f.Path, &f.MD5, &f.RowsLoaded, &f.Status, &f.ErrorMsg); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
