// Package jobs runs the background work behind uploads, generations and
// chat: a Runner with one handler per job kind, a Dispatcher that queues
// tasks with an inline fallback, and a worker Pool that drains the queue.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/cache"
	"github.com/kiranshivaraju/ayupilot/internal/metrics"
	"github.com/kiranshivaraju/ayupilot/internal/queue"
	"github.com/kiranshivaraju/ayupilot/internal/remote"
	"github.com/kiranshivaraju/ayupilot/internal/store"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

// ErrUnknownKind is returned for tasks no handler is registered for.
var ErrUnknownKind = errors.New("unknown job kind")

// dispatcher is the part of Dispatcher handlers use to chain follow-up work.
type dispatcher interface {
	Dispatch(ctx context.Context, kind models.JobKind, entityID uuid.UUID, related *uuid.UUID) error
}

// Runner executes one task to completion. It is safe for concurrent use.
type Runner struct {
	store     store.Store
	cache     cache.Cache
	ai        models.AIProvider
	metrics   *metrics.Metrics
	statusTTL time.Duration
	next      dispatcher
	fetcher   remote.Fetcher
	handlers  map[models.JobKind]func(context.Context, queue.Task) error
}

// NewRunner builds a runner. The cache and metrics may be nil.
func NewRunner(st store.Store, c cache.Cache, provider models.AIProvider, m *metrics.Metrics, statusTTL time.Duration) *Runner {
	r := &Runner{store: st, cache: c, ai: provider, metrics: m, statusTTL: statusTTL}
	r.handlers = map[models.JobKind]func(context.Context, queue.Task) error{
		models.JobImageAnalysis:      r.analyzeImage,
		models.JobDocumentAnalysis:   r.analyzeDocument,
		models.JobClinicalReport:     r.generateReport,
		models.JobSNLPrescription:    r.generateSNL,
		models.JobKnowledgeReference: r.generateKnowledge,
		models.JobChat:               r.answerChat,
	}
	return r
}

// UseFetcher lets handlers download uploads given by URL. Without one,
// image URLs go to the provider as-is and document URLs add no text.
func (r *Runner) UseFetcher(f remote.Fetcher) {
	r.fetcher = f
}

// Run executes task. On failure the entity is left FAILED and the error is
// returned so the caller can decide on a retry. Panics are converted to errors.
// A run that finds its entity already COMPLETED by a concurrent or earlier
// run is a duplicate: it returns nil and leaves the completed result alone.
func (r *Runner) Run(ctx context.Context, task queue.Task) (err error) {
	start := time.Now()
	handler, ok := r.handlers[task.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, task.Kind)
	}

	defer func() {
		if p := recover(); p != nil {
			slog.Error("job handler panicked",
				"kind", task.Kind, "entity_id", task.EntityID, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("%s handler panicked: %v", task.Kind, p)
		}

		outcome := "completed"
		switch {
		case err == nil:
		case errors.Is(err, store.ErrNotFound):
			outcome = "dropped"
		case errors.Is(err, store.ErrAlreadyCompleted):
			outcome = "duplicate"
		default:
			outcome = "failed"
			if ferr := r.markFailed(context.WithoutCancel(ctx), task); errors.Is(ferr, store.ErrAlreadyCompleted) {
				outcome = "duplicate"
			}
		}
		if outcome == "duplicate" {
			slog.Info("job already completed by another run",
				"kind", task.Kind, "entity_id", task.EntityID, "task_id", task.ID, "error", err)
			err = nil
		}
		r.metrics.ObserveJob(string(task.Kind), outcome, time.Since(start))
	}()

	return handler(ctx, task)
}

// markFailed best-effort records FAILED for the task's entity. It returns
// the store error so Run can tell a lost race from a real failure.
func (r *Runner) markFailed(ctx context.Context, task queue.Task) error {
	var err error
	switch task.Kind {
	case models.JobImageAnalysis, models.JobDocumentAnalysis:
		err = r.setAnalysis(ctx, task.Kind, task.EntityID, models.AnalysisFailed)
	case models.JobClinicalReport, models.JobSNLPrescription, models.JobKnowledgeReference:
		err = r.setGeneration(ctx, task.Kind, task.EntityID, models.GenerationFailed)
	default:
		return nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrAlreadyCompleted) {
		slog.Error("failed to record job failure", "kind", task.Kind, "entity_id", task.EntityID, "error", err)
	}
	return err
}

func (r *Runner) setAnalysis(ctx context.Context, kind models.JobKind, id uuid.UUID, status models.AnalysisStatus, opts ...store.AnalysisUpdateOption) error {
	if err := r.store.UpdateAnalysisStatus(ctx, kind, id, status, opts...); err != nil {
		return err
	}
	r.mirror(ctx, kind, id, string(status))
	return nil
}

func (r *Runner) setGeneration(ctx context.Context, kind models.JobKind, id uuid.UUID, status models.GenerationStatus, opts ...store.GenerationUpdateOption) error {
	if err := r.store.UpdateGenerationStatus(ctx, kind, id, status, opts...); err != nil {
		return err
	}
	r.mirror(ctx, kind, id, string(status))
	return nil
}

// mirror copies a status into the cache for the job-status endpoint.
func (r *Runner) mirror(ctx context.Context, kind models.JobKind, id uuid.UUID, status string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.SetJobStatus(ctx, kind, id, status, r.statusTTL); err != nil {
		slog.Warn("failed to mirror job status", "kind", kind, "entity_id", id, "error", err)
	}
}
