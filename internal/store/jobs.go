package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job state values.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// Job is one durable workflow run. Payload carries the serialized event that
// started it so a resumed job replays against the original input.
type Job struct {
	ID             string    `json:"id"`
	MessageID      string    `json:"messageId"`
	ProjectID      string    `json:"projectId"`
	ConversationID string    `json:"conversationId"`
	Payload        string    `json:"payload"`
	State          string    `json:"state"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// CreateJob records a queued workflow run.
func (s *Store) CreateJob(ctx context.Context, messageID, projectID, conversationID, payload string) (Job, error) {
	now := time.Now().UTC()
	j := Job{
		ID:             uuid.NewString(),
		MessageID:      messageID,
		ProjectID:      projectID,
		ConversationID: conversationID,
		Payload:        payload,
		State:          JobQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, message_id, project_id, conversation_id, payload, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.MessageID, j.ProjectID, j.ConversationID, j.Payload, j.State, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return Job{}, fmt.Errorf("insert job: %w", err)
	}
	return j, nil
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (Job, error) {
	var j Job
	err := s.db.QueryRowContext(ctx,
		`SELECT id, message_id, project_id, conversation_id, payload, state, error, created_at, updated_at
		 FROM jobs WHERE id = ?`, id).
		Scan(&j.ID, &j.MessageID, &j.ProjectID, &j.ConversationID, &j.Payload, &j.State, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// ListResumableJobs returns jobs left in queued or running state, newest
// first.
func (s *Store) ListResumableJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_id, project_id, conversation_id, payload, state, error, created_at, updated_at
		 FROM jobs WHERE state IN (?, ?) ORDER BY created_at DESC`, JobQueued, JobRunning)
	if err != nil {
		return nil, fmt.Errorf("list resumable jobs: %w", err)
	}
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.MessageID, &j.ProjectID, &j.ConversationID, &j.Payload, &j.State, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateJobState moves the job to a new state, recording the error message
// for failed runs.
func (s *Store) UpdateJobState(ctx context.Context, id, state, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, error = ?, updated_at = ? WHERE id = ?`,
		state, errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update job state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetJobStep returns the recorded result of a completed step, or ok=false
// when the step has not run yet.
func (s *Store) GetJobStep(ctx context.Context, jobID, name string) (string, bool, error) {
	var result string
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM job_steps WHERE job_id = ? AND name = ?`, jobID, name).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get job step: %w", err)
	}
	return result, true, nil
}

// RecordJobStep persists a step result so a resumed run replays it instead of
// re-executing.
func (s *Store) RecordJobStep(ctx context.Context, jobID, name, result string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_steps (job_id, name, result, completed_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(job_id, name) DO UPDATE SET result = excluded.result, completed_at = excluded.completed_at`,
		jobID, name, result, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record job step: %w", err)
	}
	return nil
}
