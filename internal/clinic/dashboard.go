package clinic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/cache"
	"github.com/kiranshivaraju/ayupilot/internal/store"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

const dashboardTTL = 15 * time.Second

// DashboardService computes the practice counters shown on the home screen.
type DashboardService struct {
	store  store.Store
	cache  cache.Cache
	policy Policy
	loc    *time.Location
	now    func() time.Time
}

// NewDashboardService builds the service. A nil cache disables caching.
func NewDashboardService(s store.Store, c cache.Cache, policy Policy, loc *time.Location) *DashboardService {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardService{store: s, cache: c, policy: policy, loc: loc, now: time.Now}
}

// Stats returns the counters for actor's practice day, served from Redis when fresh.
func (s *DashboardService) Stats(ctx context.Context, actor uuid.UUID) (*models.DashboardStats, error) {
	local := s.now().In(s.loc)
	today := models.DateOf(local)
	scope := s.policy.Scope(actor)
	key := cache.DashboardKey(scope, today)

	if s.cache != nil {
		if raw, ok, err := s.cache.Get(ctx, key); err != nil {
			slog.Warn("dashboard cache read failed", "error", err)
		} else if ok {
			var stats models.DashboardStats
			if err := json.Unmarshal(raw, &stats); err == nil {
				return &stats, nil
			}
		}
	}

	stats, err := s.store.DashboardStats(ctx, scope, today, models.ClockOf(local))
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}

	if s.cache != nil {
		if raw, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, key, raw, dashboardTTL); err != nil {
				slog.Warn("dashboard cache write failed", "error", err)
			}
		}
	}
	return stats, nil
}
