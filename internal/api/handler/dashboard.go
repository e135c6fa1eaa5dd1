package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/api/response"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

type DashboardService interface {
	Stats(ctx context.Context, actor uuid.UUID) (*models.DashboardStats, error)
}

// NewDashboardHandler returns an http.HandlerFunc for GET /api/v1/dashboard/stats.
func NewDashboardHandler(svc DashboardService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := actor(w, r)
		if !ok {
			return
		}
		stats, err := svc.Stats(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, stats)
	}
}
