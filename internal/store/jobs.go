package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/firefly-engineering/hearth/internal/errors"
)

const jobColumns = `id, server_id, type, status, progress, payload, logs, error,
	created_at, started_at, finished_at`

// CreateJob inserts a PENDING job for serverID. The server is not required
// to exist; that is checked when the job runs.
func (s *Store) CreateJob(ctx context.Context, serverID string, typ JobType) (*Job, error) {
	job := &Job{
		ID:        uuid.NewString(),
		ServerID:  serverID,
		Type:      typ,
		Status:    JobPending,
		Progress:  0,
		Payload:   map[string]any{},
		Logs:      "",
		CreatedAt: s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, server_id, type, status, progress, payload, logs, created_at)
		VALUES (?, ?, ?, ?, 0, '{}', '', ?)`,
		job.ID, job.ServerID, job.Type, job.Status, formatTime(job.CreatedAt),
	)
	if err != nil {
		return nil, errors.LedgerError("insert job", err)
	}
	job.CreatedAt = parseTime(formatTime(job.CreatedAt))
	return job, nil
}

// GetJob returns the job with the given id.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.JobNotFound(id)
	}
	if err != nil {
		return nil, errors.LedgerError("query job", err)
	}
	return job, nil
}

// ListJobs returns a server's jobs, oldest first.
func (s *Store) ListJobs(ctx context.Context, serverID string) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE server_id = ? ORDER BY created_at, id`, serverID)
	if err != nil {
		return nil, errors.LedgerError("list jobs", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.LedgerError("scan job", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ActiveJobs returns the oldest unfinished (PENDING or RUNNING) job of
// every server that has one, keyed by server id.
func (s *Store) ActiveJobs(ctx context.Context) (map[string]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status IN (?, ?) ORDER BY created_at, id`,
		JobPending, JobRunning)
	if err != nil {
		return nil, errors.LedgerError("list active jobs", err)
	}
	defer rows.Close()

	active := make(map[string]*Job)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.LedgerError("scan job", err)
		}
		if _, ok := active[job.ServerID]; !ok {
			active[job.ServerID] = job
		}
	}
	return active, rows.Err()
}

// MarkJobRunning moves a job to RUNNING and stamps startedAt.
func (s *Store) MarkJobRunning(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, started_at = ?, finished_at = NULL, error = NULL
		WHERE id = ?`,
		JobRunning, s.timestamp(), id)
	if err != nil {
		return errors.LedgerError("mark job running", err)
	}
	return requireRow(res, errors.JobNotFound(id))
}

// MarkJobSucceeded moves a job to SUCCESS with progress 100.
func (s *Store) MarkJobSucceeded(ctx context.Context, id string) error {
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, progress = 100, error = NULL,
		       started_at = COALESCE(started_at, ?), finished_at = ?
		WHERE id = ?`,
		JobSuccess, now, now, id)
	if err != nil {
		return errors.LedgerError("mark job succeeded", err)
	}
	return requireRow(res, errors.JobNotFound(id))
}

// MarkJobFailed moves a job to FAILED and records errText verbatim.
// A job that failed before it was marked RUNNING still gets startedAt.
func (s *Store) MarkJobFailed(ctx context.Context, id, errText string) error {
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?,
		       started_at = COALESCE(started_at, ?), finished_at = ?
		WHERE id = ?`,
		JobFailed, errText, now, now, id)
	if err != nil {
		return errors.LedgerError("mark job failed", err)
	}
	return requireRow(res, errors.JobNotFound(id))
}

// SetJobProgress records a progress checkpoint, clamped to 0–100.
func (s *Store) SetJobProgress(ctx context.Context, id string, progress int) error {
	progress = max(0, min(progress, 100))
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET progress = ? WHERE id = ?`, progress, id)
	if err != nil {
		return errors.LedgerError("set job progress", err)
	}
	return requireRow(res, errors.JobNotFound(id))
}

// AppendJobLog appends a line to the job's log text.
func (s *Store) AppendJobLog(ctx context.Context, id, line string) error {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET logs = logs || ? WHERE id = ?`, line, id)
	if err != nil {
		return errors.LedgerError("append job log", err)
	}
	return requireRow(res, errors.JobNotFound(id))
}

// SetJobPayload replaces the job's free-form payload.
func (s *Store) SetJobPayload(ctx context.Context, id string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(errors.ExitGeneralError, "failed to encode payload", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET payload = ? WHERE id = ?`, string(data), id)
	if err != nil {
		return errors.LedgerError("set job payload", err)
	}
	return requireRow(res, errors.JobNotFound(id))
}

func scanJob(row scanner) (*Job, error) {
	var job Job
	var payload, created string
	var errText, started, finished sql.NullString
	err := row.Scan(
		&job.ID, &job.ServerID, &job.Type, &job.Status, &job.Progress, &payload, &job.Logs,
		&errText, &created, &started, &finished,
	)
	if err != nil {
		return nil, err
	}

	job.Payload = map[string]any{}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &job.Payload); err != nil {
			return nil, err
		}
	}
	if errText.Valid {
		job.Error = &errText.String
	}
	job.CreatedAt = parseTime(created)
	job.StartedAt = parseNullTime(started)
	job.FinishedAt = parseNullTime(finished)
	return &job, nil
}
