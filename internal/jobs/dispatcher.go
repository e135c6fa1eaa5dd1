package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/metrics"
	"github.com/kiranshivaraju/ayupilot/internal/queue"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

// Dispatcher hands tasks to the work queue and runs them inline when the
// queue is unreachable.
type Dispatcher struct {
	queue   queue.Queue
	runner  *Runner
	metrics *metrics.Metrics
}

// NewDispatcher wires d into runner so handlers can chain follow-up tasks.
// A nil queue makes every dispatch run inline.
func NewDispatcher(q queue.Queue, runner *Runner, m *metrics.Metrics) *Dispatcher {
	d := &Dispatcher{queue: q, runner: runner, metrics: m}
	runner.next = d
	return d
}

// Dispatch schedules the kind handler for entityID. The inline fallback is a
// single attempt in the caller's context; its error is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, kind models.JobKind, entityID uuid.UUID, related *uuid.UUID) error {
	task := queue.NewTask(kind, entityID, related)

	if d.queue != nil {
		err := d.queue.Enqueue(ctx, task)
		if err == nil {
			d.metrics.JobDispatched(string(kind), "queued")
			return nil
		}
		slog.Warn("enqueue failed, running job inline", "kind", kind, "entity_id", entityID, "error", err)
	}

	d.metrics.JobDispatched(string(kind), "inline")
	if err := d.runner.Run(ctx, task); err != nil {
		slog.Error("inline job failed", "kind", kind, "entity_id", entityID, "error", err)
		return fmt.Errorf("run %s inline: %w", kind, err)
	}
	return nil
}
