package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"codeloft/internal/logging"
	"codeloft/internal/store"
)

const maxStepAttempts = 3

// stepRunner executes named steps for one job. A completed step's result is
// persisted, so a resumed job replays the recorded result instead of running
// the step again. Cancellation is observed at step boundaries.
type stepRunner struct {
	store *store.Store
	jobID string
	log   *logging.StructuredLogger
}

// run executes fn under the given step name, retrying transient failures.
func (r *stepRunner) run(ctx context.Context, name string, fn func(ctx context.Context) (string, error)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if result, done, err := r.store.GetJobStep(ctx, r.jobID, name); err != nil {
		return "", err
	} else if done {
		r.log.Debug("replaying step", map[string]any{"step": name})
		return result, nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxStepAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		result, err := fn(ctx)
		if err == nil {
			if err := r.store.RecordJobStep(ctx, r.jobID, name, result); err != nil {
				return "", err
			}
			// A cancel that landed while the step ran still has to win:
			// the result is recorded for a future resume, but this run
			// stops here.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return result, nil
		}
		lastErr = err
		var nonRetriable *NonRetriableError
		if errors.As(err, &nonRetriable) || errors.Is(err, context.Canceled) {
			break
		}
		if attempt == maxStepAttempts {
			break
		}
		r.log.Warn("step failed, retrying", map[string]any{
			"step": name, "attempt": attempt, "error": err.Error(),
		})
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return "", fmt.Errorf("step %s: %w", name, lastErr)
}

// sleep pauses for d, replay-aware: a resumed job that already slept does
// not sleep again.
func (r *stepRunner) sleep(ctx context.Context, name string, d time.Duration) error {
	_, err := r.run(ctx, name, func(ctx context.Context) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(d):
			return strconv.FormatInt(d.Milliseconds(), 10), nil
		}
	})
	return err
}
