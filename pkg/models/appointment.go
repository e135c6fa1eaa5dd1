package models

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentType string

const (
	AppointmentNewCase      AppointmentType = "NEW_CASE"
	AppointmentFollowUp     AppointmentType = "FOLLOW_UP"
	AppointmentConsultation AppointmentType = "CONSULTATION"
)

func (t AppointmentType) Valid() bool {
	return t == AppointmentNewCase || t == AppointmentFollowUp || t == AppointmentConsultation
}

// Appointment is a scheduled visit of a patient to a doctor. Date and Time
// are wall-clock values in the practice's time zone.
type Appointment struct {
	ID        uuid.UUID         `json:"id"`
	PatientID uuid.UUID         `json:"patient_id"`
	DoctorID  uuid.UUID         `json:"doctor_id"`
	Date      Date              `json:"appointment_date"`
	Time      ClockTime         `json:"appointment_time"`
	Type      AppointmentType   `json:"appointment_type"`
	Reason    string            `json:"reason,omitempty"`
	Notes     string            `json:"notes,omitempty"`
	Status    AppointmentStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ScheduledAt returns the instant the appointment starts in loc.
func (a *Appointment) ScheduledAt(loc *time.Location) time.Time {
	return a.Date.Midnight(loc).Add(a.Time.SinceMidnight())
}
