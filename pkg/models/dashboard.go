package models

// DashboardStats are the headline counters for a practitioner's day.
type DashboardStats struct {
	ActivePatients        int `json:"active_patients"`
	TodayAppointments     int `json:"today_appointments"`
	PendingReviewPatients int `json:"pending_review_patients"`
	RemainingAppointments int `json:"remaining_appointments"`
}
