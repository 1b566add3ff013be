package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/inkstone-dev/inkstone/internal/model"
	appErr "github.com/inkstone-dev/inkstone/internal/pkg/errors"
)

// maxRecentLogs bounds the log ring kept on the job row for status polling.
const maxRecentLogs = 20

type ImportJobRepo struct {
	db *sql.DB
}

func NewImportJobRepo(db *sql.DB) *ImportJobRepo {
	return &ImportJobRepo{db: db}
}

func (r *ImportJobRepo) Create(ctx context.Context, job *model.ImportJob) error {
	logsJSON, err := json.Marshal(job.RecentLogs)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO import_jobs (id, state, progress, message, result_status, report_url, report_path, total, succeeded, failed, workspace, logs_json, ctime, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.db.ExecContext(ctx, query,
		job.ID,
		job.State,
		job.Progress,
		job.Message,
		job.ResultStatus,
		job.ReportURL,
		job.ReportPath,
		job.Total,
		job.Succeeded,
		job.Failed,
		job.Workspace,
		string(logsJSON),
		job.Ctime,
		job.Mtime,
	)
	return err
}

func (r *ImportJobRepo) Get(ctx context.Context, jobID string) (*model.ImportJob, error) {
	const query = `
		SELECT id, state, progress, message, result_status, report_url, report_path, total, succeeded, failed, workspace, logs_json, ctime, mtime
		FROM import_jobs
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, jobID)
	var job model.ImportJob
	var logsJSON string
	if err := row.Scan(
		&job.ID,
		&job.State,
		&job.Progress,
		&job.Message,
		&job.ResultStatus,
		&job.ReportURL,
		&job.ReportPath,
		&job.Total,
		&job.Succeeded,
		&job.Failed,
		&job.Workspace,
		&logsJSON,
		&job.Ctime,
		&job.Mtime,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	if logsJSON != "" {
		_ = json.Unmarshal([]byte(logsJSON), &job.RecentLogs)
	}
	return &job, nil
}

// UpdateProgress persists a progress step. Progress never moves backwards:
// a stale writer racing a newer one cannot regress the published value.
func (r *ImportJobRepo) UpdateProgress(ctx context.Context, jobID, state string, progress int, message string, logs []string, mtime int64) error {
	if len(logs) > maxRecentLogs {
		logs = logs[len(logs)-maxRecentLogs:]
	}
	logsJSON, err := json.Marshal(logs)
	if err != nil {
		return err
	}
	const query = `
		UPDATE import_jobs
		SET state = $1,
			progress = GREATEST(progress, $2),
			message = $3,
			logs_json = $4,
			mtime = $5
		WHERE id = $6
	`
	result, err := r.db.ExecContext(ctx, query, state, progress, message, string(logsJSON), mtime, jobID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// Finish writes the terminal state and result summary in one statement.
func (r *ImportJobRepo) Finish(ctx context.Context, job *model.ImportJob) error {
	logsJSON, err := json.Marshal(job.RecentLogs)
	if err != nil {
		return err
	}
	const query = `
		UPDATE import_jobs
		SET state = $1,
			progress = $2,
			message = $3,
			result_status = $4,
			report_url = $5,
			report_path = $6,
			total = $7,
			succeeded = $8,
			failed = $9,
			workspace = $10,
			logs_json = $11,
			mtime = $12
		WHERE id = $13
	`
	result, err := r.db.ExecContext(ctx, query,
		job.State,
		job.Progress,
		job.Message,
		job.ResultStatus,
		job.ReportURL,
		job.ReportPath,
		job.Total,
		job.Succeeded,
		job.Failed,
		job.Workspace,
		string(logsJSON),
		job.Mtime,
		job.ID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// RecordWorkspace notes where a failed job's workspace was preserved so the
// cleanup job and operators can find it later.
func (r *ImportJobRepo) RecordWorkspace(ctx context.Context, jobID, workspace string, mtime int64) error {
	const query = `UPDATE import_jobs SET workspace = $1, mtime = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, workspace, mtime, jobID)
	return err
}

func (r *ImportJobRepo) ListBefore(ctx context.Context, cutoff int64) ([]*model.ImportJob, error) {
	const query = `
		SELECT id, state, progress, message, result_status, report_url, report_path, total, succeeded, failed, workspace, logs_json, ctime, mtime
		FROM import_jobs
		WHERE ctime < $1
	`
	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []*model.ImportJob
	for rows.Next() {
		var job model.ImportJob
		var logsJSON string
		if err := rows.Scan(
			&job.ID, &job.State, &job.Progress, &job.Message, &job.ResultStatus,
			&job.ReportURL, &job.ReportPath, &job.Total, &job.Succeeded, &job.Failed,
			&job.Workspace, &logsJSON, &job.Ctime, &job.Mtime,
		); err != nil {
			return nil, err
		}
		if logsJSON != "" {
			_ = json.Unmarshal([]byte(logsJSON), &job.RecentLogs)
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

func (r *ImportJobRepo) Delete(ctx context.Context, jobID string) error {
	const query = `DELETE FROM import_jobs WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, jobID)
	return err
}
