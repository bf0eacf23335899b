package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"codeloft/internal/agent"
	"codeloft/internal/llm"
	"codeloft/internal/logging"
	"codeloft/internal/metrics"
	"codeloft/internal/scrape"
	"codeloft/internal/store"
	"codeloft/internal/tooling"
)

// FailureResponse replaces the assistant message when a job exhausts its
// retries. Wire-visible, keep stable.
const FailureResponse = "My Apologies, Cannot Respond to your message. Please check server logs."

// Options configures the engine.
type Options struct {
	Store       *store.Store
	System      *store.System
	InternalKey string
	Router      *agent.Router
	Scraper     scrape.Scraper
	SettleDelay time.Duration
	RecentLimit int
	QueueSize   int
}

// Engine runs process-message jobs on a worker pool. Each job is durable:
// completed steps are persisted and replayed on resume, and a job can be
// cancelled by message id at any step boundary.
type Engine struct {
	store       *store.Store
	sys         *store.System
	key         string
	router      *agent.Router
	scraper     scrape.Scraper
	lease       *ProjectLease
	settleDelay time.Duration
	recentLimit int

	queue      chan task
	wg         sync.WaitGroup
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu        sync.Mutex
	cancels   map[string]context.CancelFunc
	pending   map[string]bool
	cancelled map[string]bool
}

type task struct {
	job        store.Job
	ev         Event
	leaseToken string
}

// New builds an engine. Call Start before enqueueing.
func New(opts Options) *Engine {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 5 * time.Second
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 20
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:       opts.Store,
		sys:         opts.System,
		key:         opts.InternalKey,
		router:      opts.Router,
		scraper:     opts.Scraper,
		lease:       NewProjectLease(),
		settleDelay: opts.SettleDelay,
		recentLimit: opts.RecentLimit,
		queue:       make(chan task, opts.QueueSize),
		baseCtx:     ctx,
		baseCancel:  cancel,
		cancels:     make(map[string]context.CancelFunc),
		pending:     make(map[string]bool),
		cancelled:   make(map[string]bool),
	}
}

// Lease exposes the per-project lease table so the HTTP layer can acquire
// before enqueueing.
func (e *Engine) Lease() *ProjectLease {
	return e.lease
}

// Start launches n workers and re-enqueues jobs that were interrupted before
// reaching a terminal state.
func (e *Engine) Start(n int) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for t := range e.queue {
				e.runJob(t)
			}
		}()
	}
	if err := e.recover(context.Background()); err != nil {
		logging.ErrorLog("job recovery: %v", err)
	}
}

// recover resumes jobs left in queued or running state by a previous run.
// Completed steps replay from the step log. One run per project still holds:
// only the newest such job per project resumes, older ones finalize as
// cancelled together with their placeholder messages.
func (e *Engine) recover(ctx context.Context) error {
	jobs, err := e.store.ListResumableJobs(ctx)
	if err != nil {
		return err
	}
	log := logging.NewStructuredLogger(nil, "engine", false)
	resumed := make(map[string]bool)
	for _, job := range jobs {
		var ev Event
		if err := json.Unmarshal([]byte(job.Payload), &ev); err != nil {
			log.Error("recovery: unreadable payload", map[string]any{"job": job.ID, "error": err.Error()})
			if err := e.store.UpdateJobState(ctx, job.ID, store.JobFailed, "unreadable payload"); err != nil {
				log.Error("recovery: mark job failed", map[string]any{"job": job.ID, "error": err.Error()})
			}
			continue
		}
		if resumed[job.ProjectID] {
			if err := e.store.UpdateJobState(ctx, job.ID, store.JobCancelled, ""); err != nil {
				log.Error("recovery: mark job cancelled", map[string]any{"job": job.ID, "error": err.Error()})
			}
			e.markMessageCancelled(ctx, ev.MessageID, log.WithJob(job.ID))
			continue
		}
		token := uuid.NewString()
		e.lease.Steal(job.ProjectID, token)
		e.mu.Lock()
		e.pending[ev.MessageID] = true
		e.mu.Unlock()
		select {
		case e.queue <- task{job: job, ev: ev, leaseToken: token}:
			resumed[job.ProjectID] = true
			log.WithJob(job.ID).Info("job recovered", map[string]any{"message": ev.MessageID})
		default:
			e.mu.Lock()
			delete(e.pending, ev.MessageID)
			e.mu.Unlock()
			e.lease.Release(job.ProjectID, token)
			return fmt.Errorf("recovery: queue full, job %s stays %s", job.ID, job.State)
		}
	}
	return nil
}

// Stop drains the queue and waits for running jobs to observe cancellation.
func (e *Engine) Stop() {
	e.baseCancel()
	close(e.queue)
	e.wg.Wait()
}

// Enqueue records a durable job for the event and hands it to the worker
// pool. leaseToken must already hold the project lease.
func (e *Engine) Enqueue(ctx context.Context, ev Event, leaseToken string) (store.Job, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return store.Job{}, fmt.Errorf("marshal event: %w", err)
	}
	job, err := e.store.CreateJob(ctx, ev.MessageID, ev.ProjectID, ev.ConversationID, string(payload))
	if err != nil {
		return store.Job{}, err
	}
	e.mu.Lock()
	e.pending[ev.MessageID] = true
	e.mu.Unlock()
	select {
	case e.queue <- task{job: job, ev: ev, leaseToken: leaseToken}:
		return job, nil
	case <-ctx.Done():
		e.mu.Lock()
		delete(e.pending, ev.MessageID)
		e.mu.Unlock()
		return store.Job{}, ctx.Err()
	}
}

// Cancel stops the job processing the given message. A running job is
// interrupted at its next step boundary; a queued job is dropped when a
// worker picks it up. A message with no live or queued job is a no-op.
func (e *Engine) Cancel(messageID string) {
	e.mu.Lock()
	cancel, running := e.cancels[messageID]
	if !running && e.pending[messageID] {
		e.cancelled[messageID] = true
	}
	e.mu.Unlock()
	if running {
		cancel()
	}
}

func (e *Engine) runJob(t task) {
	log := logging.NewStructuredLogger(nil, "engine", false).WithJob(t.job.ID)
	defer e.lease.Release(t.ev.ProjectID, t.leaseToken)

	jobCtx, cancel := context.WithCancel(e.baseCtx)
	defer cancel()

	e.mu.Lock()
	delete(e.pending, t.ev.MessageID)
	if e.cancelled[t.ev.MessageID] {
		delete(e.cancelled, t.ev.MessageID)
		e.mu.Unlock()
		e.finalize(t, log, context.Canceled)
		return
	}
	e.cancels[t.ev.MessageID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, t.ev.MessageID)
		e.mu.Unlock()
	}()

	metrics.JobsStarted.Inc()
	log.Info("job started", map[string]any{"message": t.ev.MessageID})
	if err := e.store.UpdateJobState(context.Background(), t.job.ID, store.JobRunning, ""); err != nil {
		log.Error("mark job running", map[string]any{"error": err.Error()})
	}

	e.finalize(t, log, e.process(jobCtx, t, log))
}

func (e *Engine) process(ctx context.Context, t task, log *logging.StructuredLogger) error {
	r := &stepRunner{store: e.store, jobID: t.job.ID, log: log}
	ev := t.ev

	// Give a rapid follow-up cancel a chance to land before any model call.
	if err := r.sleep(ctx, "settle", e.settleDelay); err != nil {
		return err
	}

	convJSON, err := r.run(ctx, "fetch-conversation", func(ctx context.Context) (string, error) {
		conv, err := e.sys.GetConversation(ctx, e.key, ev.ConversationID)
		if errors.Is(err, store.ErrNotFound) {
			return "", NonRetriable(err)
		}
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(conv)
		return string(data), err
	})
	if err != nil {
		return err
	}
	var conv store.Conversation
	if err := json.Unmarshal([]byte(convJSON), &conv); err != nil {
		return NonRetriable(fmt.Errorf("decode conversation: %w", err))
	}

	// The assistant placeholder must still be processing. Anything else
	// means a cancel won the race before this worker got here.
	msg, err := e.sys.GetMessage(ctx, e.key, ev.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		return NonRetriable(err)
	}
	if err != nil {
		return err
	}
	if msg.Status != store.StatusProcessing {
		log.Info("message no longer processing, aborting", map[string]any{"status": msg.Status})
		return context.Canceled
	}

	historyJSON, err := r.run(ctx, "fetch-messages", func(ctx context.Context) (string, error) {
		msgs, err := e.sys.RecentMessages(ctx, e.key, ev.ConversationID, e.recentLimit)
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(msgs)
		return string(data), err
	})
	if err != nil {
		return err
	}
	var stored []store.Message
	if err := json.Unmarshal([]byte(historyJSON), &stored); err != nil {
		return NonRetriable(fmt.Errorf("decode history: %w", err))
	}
	history := buildHistory(stored, ev)

	final, err := r.run(ctx, "run-agent", func(ctx context.Context) (string, error) {
		registry := tooling.NewRegistry(tooling.ProjectTools(e.sys, e.key, ev.ProjectID, e.scraper)...)
		return e.router.Run(ctx, history, registry)
	})
	if err != nil {
		return err
	}

	if !conv.HasGeneratedTitle() {
		// Title generation is best effort; a failure never fails the job.
		_, err := r.run(ctx, "generate-title", func(ctx context.Context) (string, error) {
			title, err := e.router.GenerateTitle(ctx, ev.Message, final)
			if err != nil {
				return "", NonRetriable(err)
			}
			if err := e.sys.UpdateConversationTitle(ctx, e.key, ev.ConversationID, title); err != nil {
				return "", NonRetriable(err)
			}
			return title, nil
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Warn("title generation failed", map[string]any{"error": err.Error()})
		}
	}

	_, err = r.run(ctx, "persist-final", func(ctx context.Context) (string, error) {
		if err := e.sys.UpdateMessageContent(ctx, e.key, ev.MessageID, final, store.StatusCompleted); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return "", NonRetriable(err)
			}
			return "", err
		}
		return "ok", nil
	})
	return err
}

func (e *Engine) finalize(t task, log *logging.StructuredLogger, runErr error) {
	ctx := context.Background()
	switch {
	case runErr == nil:
		metrics.JobsCompleted.Inc()
		log.Info("job completed", nil)
		if err := e.store.UpdateJobState(ctx, t.job.ID, store.JobCompleted, ""); err != nil {
			log.Error("mark job completed", map[string]any{"error": err.Error()})
		}
	case errors.Is(runErr, context.Canceled):
		metrics.JobsCancelled.Inc()
		log.Info("job cancelled", nil)
		if err := e.store.UpdateJobState(ctx, t.job.ID, store.JobCancelled, ""); err != nil {
			log.Error("mark job cancelled", map[string]any{"error": err.Error()})
		}
		e.markMessageCancelled(ctx, t.ev.MessageID, log)
	default:
		metrics.JobsFailed.Inc()
		log.Error("job failed", map[string]any{"error": runErr.Error()})
		if err := e.store.UpdateJobState(ctx, t.job.ID, store.JobFailed, runErr.Error()); err != nil {
			log.Error("mark job failed", map[string]any{"error": err.Error()})
		}
		// Failure handler: patch the assistant placeholder with an apology.
		// A missing message is logged and tolerated.
		err := e.sys.UpdateMessageContent(ctx, e.key, t.ev.MessageID, FailureResponse, store.StatusFailed)
		if err != nil {
			log.Error("failure handler could not update message", map[string]any{"error": err.Error()})
		}
	}
}

func (e *Engine) markMessageCancelled(ctx context.Context, messageID string, log *logging.StructuredLogger) {
	msg, err := e.sys.GetMessage(ctx, e.key, messageID)
	if err != nil {
		log.Error("cancel: fetch message", map[string]any{"error": err.Error()})
		return
	}
	// A cancel request may arrive after the sender already flipped the
	// status; only a still-processing placeholder is touched.
	if msg.Status != store.StatusProcessing {
		return
	}
	if err := e.sys.UpdateMessageStatus(ctx, e.key, messageID, store.StatusCancelled); err != nil {
		log.Error("cancel: update message status", map[string]any{"error": err.Error()})
	}
}

// buildHistory converts stored messages to the chat transcript the agent
// sees. Unfinished assistant placeholders are dropped, and the triggering
// user message is guaranteed to close the transcript.
func buildHistory(stored []store.Message, ev Event) []llm.Message {
	history := make([]llm.Message, 0, len(stored)+1)
	for _, m := range stored {
		if m.Role == store.RoleAssistant && m.Status != store.StatusCompleted {
			continue
		}
		if m.ID == ev.MessageID {
			continue
		}
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	if n := len(history); n == 0 || history[n-1].Role != store.RoleUser || history[n-1].Content != ev.Message {
		history = append(history, llm.Message{Role: store.RoleUser, Content: ev.Message})
	}
	return history
}
