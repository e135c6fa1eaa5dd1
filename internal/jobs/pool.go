package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/ayupilot/internal/metrics"
	"github.com/kiranshivaraju/ayupilot/internal/queue"
	"github.com/kiranshivaraju/ayupilot/internal/store"
)

// PoolConfig sizes the worker pool and its retry policy.
type PoolConfig struct {
	Concurrency     int
	MaxAttempts     int
	RetryBackoff    time.Duration
	DequeueTimeout  time.Duration
	PromoteInterval time.Duration
}

// Pool drains the work queue with a fixed number of workers, acknowledges
// each task after it is handled, and promotes delayed retries and expired
// leases back onto it.
type Pool struct {
	queue   queue.Queue
	runner  *Runner
	cfg     PoolConfig
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewPool(q queue.Queue, runner *Runner, cfg PoolConfig, m *metrics.Metrics) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = 2 * time.Second
	}
	if cfg.PromoteInterval <= 0 {
		cfg.PromoteInterval = time.Second
	}
	return &Pool{queue: q, runner: runner, cfg: cfg, metrics: m, now: time.Now}
}

// Run blocks until ctx is cancelled and every worker has returned.
func (p *Pool) Run(ctx context.Context) {
	slog.Info("worker pool started", "concurrency", p.cfg.Concurrency, "max_attempts", p.cfg.MaxAttempts)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(ctx, id)
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.promote(ctx)
	}()

	wg.Wait()
	slog.Info("worker pool stopped")
}

func (p *Pool) work(ctx context.Context, id int) {
	for ctx.Err() == nil {
		task, err := p.queue.Dequeue(ctx, p.cfg.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("dequeue failed", "worker", id, "error", err)
			sleep(ctx, time.Second)
			continue
		}
		if task == nil {
			continue
		}
		p.Handle(ctx, *task)
		if err := p.queue.Ack(context.WithoutCancel(ctx), *task); err != nil {
			slog.Error("ack failed, task will be reclaimed", "worker", id, "kind", task.Kind, "entity_id", task.EntityID, "error", err)
		}
	}
}

// Handle runs one task and applies the retry policy to its outcome.
func (p *Pool) Handle(ctx context.Context, task queue.Task) {
	err := p.runner.Run(ctx, task)
	switch {
	case err == nil:
		return
	case errors.Is(err, store.ErrNotFound), errors.Is(err, ErrUnknownKind):
		slog.Warn("dropping job", "kind", task.Kind, "entity_id", task.EntityID, "error", err)
		return
	}

	if task.Attempt+1 >= p.cfg.MaxAttempts {
		slog.Error("job abandoned after final attempt",
			"kind", task.Kind, "entity_id", task.EntityID, "attempts", task.Attempt+1, "error", err)
		return
	}

	task.Attempt++
	due := p.now().Add(p.cfg.RetryBackoff)
	if serr := p.queue.Schedule(context.WithoutCancel(ctx), task, due); serr != nil {
		slog.Error("failed to schedule retry", "kind", task.Kind, "entity_id", task.EntityID, "error", serr)
		return
	}
	p.metrics.JobRetried(string(task.Kind))
	slog.Warn("job failed, retry scheduled",
		"kind", task.Kind, "entity_id", task.EntityID, "attempt", task.Attempt+1, "due", due, "error", err)
}

func (p *Pool) promote(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PromoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.queue.PromoteDue(ctx, p.now()); err != nil && ctx.Err() == nil {
				slog.Error("promote delayed jobs failed", "error", err)
				continue
			}
			if n, err := p.queue.ReclaimExpired(ctx, p.now()); err != nil && ctx.Err() == nil {
				slog.Error("reclaim expired jobs failed", "error", err)
			} else if n > 0 {
				slog.Warn("reclaimed jobs whose worker stopped responding", "count", n)
			}
			if ready, delayed, err := p.queue.Depth(ctx); err == nil {
				p.metrics.SetQueueDepth(ready, delayed)
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
