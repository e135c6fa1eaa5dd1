package cache

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

func JobStatusKey(kind models.JobKind, entityID uuid.UUID) string {
	return fmt.Sprintf("job:%s:%s", kind, entityID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// DashboardKey scopes cached dashboard stats to a doctor and a practice day.
// A nil doctor means the practice-wide view.
func DashboardKey(doctorID *uuid.UUID, day models.Date) string {
	scope := "all"
	if doctorID != nil {
		scope = doctorID.String()
	}
	return fmt.Sprintf("dashboard:%s:%s", scope, day)
}
