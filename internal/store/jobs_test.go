package store

import (
	"context"
	"testing"
	"time"
)

func TestJobStepReplay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "msg-1", "proj-1", "conv-1", `{"messageId":"msg-1"}`)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.State != JobQueued {
		t.Fatalf("got state %s, want queued", job.State)
	}

	if _, done, err := s.GetJobStep(ctx, job.ID, "run-agent"); err != nil || done {
		t.Fatalf("unrecorded step: done=%v err=%v", done, err)
	}
	if err := s.RecordJobStep(ctx, job.ID, "run-agent", "final answer"); err != nil {
		t.Fatalf("record step: %v", err)
	}
	result, done, err := s.GetJobStep(ctx, job.ID, "run-agent")
	if err != nil || !done {
		t.Fatalf("recorded step: done=%v err=%v", done, err)
	}
	if result != "final answer" {
		t.Fatalf("got %q, want final answer", result)
	}

	// Re-recording overwrites rather than failing.
	if err := s.RecordJobStep(ctx, job.ID, "run-agent", "revised"); err != nil {
		t.Fatalf("re-record step: %v", err)
	}
	result, _, _ = s.GetJobStep(ctx, job.ID, "run-agent")
	if result != "revised" {
		t.Fatalf("got %q, want revised", result)
	}

	if err := s.UpdateJobState(ctx, job.ID, JobFailed, "boom"); err != nil {
		t.Fatalf("update state: %v", err)
	}
	got, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.State != JobFailed || got.Error != "boom" {
		t.Fatalf("got %s/%q, want failed/boom", got.State, got.Error)
	}
}

func TestListResumableJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	queued, err := s.CreateJob(ctx, "msg-1", "proj-1", "conv-1", "{}")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	running, err := s.CreateJob(ctx, "msg-2", "proj-1", "conv-1", "{}")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := s.UpdateJobState(ctx, running.ID, JobRunning, ""); err != nil {
		t.Fatalf("update state: %v", err)
	}
	done, err := s.CreateJob(ctx, "msg-3", "proj-1", "conv-1", "{}")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := s.UpdateJobState(ctx, done.ID, JobCompleted, ""); err != nil {
		t.Fatalf("update state: %v", err)
	}

	jobs, err := s.ListResumableJobs(ctx)
	if err != nil {
		t.Fatalf("list resumable: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want queued and running only", len(jobs))
	}
	// Newest first.
	if jobs[0].ID != running.ID || jobs[1].ID != queued.ID {
		t.Fatalf("got order %s, %s; want newest first", jobs[0].ID, jobs[1].ID)
	}
}
