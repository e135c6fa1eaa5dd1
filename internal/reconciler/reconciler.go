// Package reconciler closes out appointments whose slot has passed: past
// days become NO_SHOW, today's due slots become COMPLETED when the patient
// was seen, or NO_SHOW once the grace period runs out.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/ayupilot/internal/metrics"
	"github.com/kiranshivaraju/ayupilot/internal/store"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

// DefaultGrace is how long after its slot an unseen appointment stays SCHEDULED.
const DefaultGrace = 2 * time.Hour

// Result counts what one pass changed.
type Result struct {
	PastMarkedNoShow int `json:"past_marked_no_show"`
	TodayChecked     int `json:"todays_checked"`
	Completed        int `json:"completed"`
	NoShow           int `json:"no_show"`
}

type Reconciler struct {
	store   store.Store
	loc     *time.Location
	grace   time.Duration
	metrics *metrics.Metrics
}

// New builds a reconciler for the practice time zone loc.
func New(st store.Store, loc *time.Location, grace time.Duration, m *metrics.Metrics) *Reconciler {
	if loc == nil {
		loc = time.UTC
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Reconciler{store: st, loc: loc, grace: grace, metrics: m}
}

// Run performs one pass as of now. Every update is conditional on the
// appointment still being SCHEDULED, so repeated passes change nothing.
func (r *Reconciler) Run(ctx context.Context, now time.Time) (Result, error) {
	var res Result
	local := now.In(r.loc)
	today := models.DateOf(local)

	past, err := r.store.MarkPastAppointmentsNoShow(ctx, today)
	if err != nil {
		return res, fmt.Errorf("mark past appointments: %w", err)
	}
	res.PastMarkedNoShow = past

	due, err := r.store.ListDueAppointments(ctx, today, models.ClockOf(local))
	if err != nil {
		return res, fmt.Errorf("list due appointments: %w", err)
	}

	dayStart := today.Midnight(r.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var errs []error
	for _, a := range due {
		res.TodayChecked++

		seen, err := r.store.PatientHasActivity(ctx, a.PatientID, dayStart, dayEnd)
		if err != nil {
			errs = append(errs, fmt.Errorf("appointment %s: %w", a.ID, err))
			continue
		}

		var to models.AppointmentStatus
		switch {
		case seen:
			to = models.AppointmentCompleted
		case !local.Before(a.ScheduledAt(r.loc).Add(r.grace)):
			to = models.AppointmentNoShow
		default:
			continue
		}

		err = r.store.TransitionAppointment(ctx, a.ID, to)
		switch {
		case err == nil:
			if to == models.AppointmentCompleted {
				res.Completed++
			} else {
				res.NoShow++
			}
		case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, store.ErrNotFound):
			// Changed or removed since it was listed.
		default:
			errs = append(errs, fmt.Errorf("appointment %s: %w", a.ID, err))
		}
	}

	r.metrics.ReconcilerMarked(string(models.AppointmentNoShow), res.PastMarkedNoShow+res.NoShow)
	r.metrics.ReconcilerMarked(string(models.AppointmentCompleted), res.Completed)
	return res, errors.Join(errs...)
}

// Start runs a pass immediately and then every interval until ctx is done.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	r.runLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runLogged(ctx)
		}
	}
}

func (r *Reconciler) runLogged(ctx context.Context) {
	res, err := r.Run(ctx, time.Now())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("appointment reconciliation failed", "error", err)
	}
	slog.Info("appointments reconciled",
		"past_marked_no_show", res.PastMarkedNoShow,
		"todays_checked", res.TodayChecked,
		"completed", res.Completed,
		"no_show", res.NoShow,
	)
}
