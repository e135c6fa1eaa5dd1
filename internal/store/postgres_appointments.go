package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

const appointmentColumns = `id, patient_id, doctor_id, appointment_date, appointment_time, appointment_type,
	reason, notes, status, created_at, updated_at`

func pgDate(d models.Date) time.Time {
	return d.Midnight(time.UTC)
}

func pgClock(c models.ClockTime) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c.SinceMidnight() / time.Microsecond), Valid: true}
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var (
		a    models.Appointment
		date time.Time
		clk  pgtype.Time
	)
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &date, &clk, &a.Type,
		&a.Reason, &a.Notes, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Date = models.DateOf(date)
	a.Time = models.ClockFromOffset(time.Duration(clk.Microseconds) * time.Microsecond)
	return &a, nil
}

func (s *PostgresStore) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	if !a.Status.Valid() {
		return fmt.Errorf("%w: appointment %q", ErrInvalidStatus, a.Status)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO appointments (`+appointmentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.PatientID, a.DoctorID, pgDate(a.Date), pgClock(a.Time), a.Type,
		a.Reason, a.Notes, a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAppointment(ctx context.Context, id uuid.UUID) (*models.Appointment, error) {
	a, err := scanAppointment(s.pool.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// UpdateAppointment rewrites the editable fields. Status changes go through
// TransitionAppointment.
func (s *PostgresStore) UpdateAppointment(ctx context.Context, a *models.Appointment) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE appointments SET appointment_date = $2, appointment_time = $3, appointment_type = $4,
		   reason = $5, notes = $6, updated_at = $7
		 WHERE id = $1`,
		a.ID, pgDate(a.Date), pgClock(a.Time), a.Type, a.Reason, a.Notes, a.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "appointments", id)
}

func (s *PostgresStore) ListAppointments(ctx context.Context, filter AppointmentFilter) ([]*models.Appointment, int, error) {
	var w whereBuilder
	if filter.DoctorID != nil {
		w.add("doctor_id = ?", *filter.DoctorID)
	}
	if filter.PatientID != nil {
		w.add("patient_id = ?", *filter.PatientID)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.Date != nil {
		w.add("appointment_date = ?", pgDate(*filter.Date))
	}
	where := w.sql()

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM appointments WHERE "+where, w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	limit, offset := filter.Page.normalize()
	query := fmt.Sprintf(`SELECT `+appointmentColumns+` FROM appointments WHERE %s
		ORDER BY appointment_date DESC, appointment_time DESC LIMIT %s OFFSET %s`,
		where, w.next(limit), w.next(offset))

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var appts []*models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan appointment: %w", err)
		}
		appts = append(appts, a)
	}
	return appts, total, rows.Err()
}

// TransitionAppointment moves a SCHEDULED appointment to a terminal status.
// The update is conditional on the row still being SCHEDULED, so concurrent
// callers cannot both win.
func (s *PostgresStore) TransitionAppointment(ctx context.Context, id uuid.UUID, to models.AppointmentStatus) error {
	if err := checkAppointmentTransition(models.AppointmentScheduled, to); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE appointments SET status = $2, updated_at = NOW() WHERE id = $1 AND status = 'SCHEDULED'`, id, to)
	if err != nil {
		return fmt.Errorf("transition appointment: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current models.AppointmentStatus
	err = s.pool.QueryRow(ctx, `SELECT status FROM appointments WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get appointment status: %w", err)
	}
	return checkAppointmentTransition(current, to)
}

func (s *PostgresStore) MarkPastAppointmentsNoShow(ctx context.Context, before models.Date) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE appointments SET status = 'NO_SHOW', updated_at = NOW()
		 WHERE status = 'SCHEDULED' AND appointment_date < $1`, pgDate(before))
	if err != nil {
		return 0, fmt.Errorf("mark past appointments no-show: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ListDueAppointments(ctx context.Context, day models.Date, upTo models.ClockTime) ([]*models.Appointment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+appointmentColumns+` FROM appointments
		 WHERE status = 'SCHEDULED' AND appointment_date = $1 AND appointment_time <= $2
		 ORDER BY appointment_time`, pgDate(day), pgClock(upTo))
	if err != nil {
		return nil, fmt.Errorf("list due appointments: %w", err)
	}
	defer rows.Close()

	var appts []*models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

// PatientHasActivity reports whether any job-backed entity was created for
// the patient in [from, to).
func (s *PostgresStore) PatientHasActivity(ctx context.Context, patientID uuid.UUID, from, to time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM image_analyses WHERE patient_id = $1 AND created_at >= $2 AND created_at < $3)
		     OR EXISTS (SELECT 1 FROM document_analyses WHERE patient_id = $1 AND created_at >= $2 AND created_at < $3)
		     OR EXISTS (SELECT 1 FROM clinical_reports WHERE patient_id = $1 AND created_at >= $2 AND created_at < $3)
		     OR EXISTS (SELECT 1 FROM snl_prescriptions WHERE patient_id = $1 AND created_at >= $2 AND created_at < $3)
		     OR EXISTS (SELECT 1 FROM knowledge_references WHERE patient_id = $1 AND created_at >= $2 AND created_at < $3)`,
		patientID, from, to).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check patient activity: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) DashboardStats(ctx context.Context, doctorID *uuid.UUID, today models.Date, now models.ClockTime) (*models.DashboardStats, error) {
	var st models.DashboardStats
	err := s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM patients WHERE ($1::uuid IS NULL OR doctor_id = $1) AND status = 'ACTIVE'),
		   (SELECT COUNT(*) FROM appointments WHERE ($1::uuid IS NULL OR doctor_id = $1) AND appointment_date = $2),
		   (SELECT COUNT(*) FROM patients WHERE ($1::uuid IS NULL OR doctor_id = $1) AND status = 'REVIEW'),
		   (SELECT COUNT(*) FROM appointments WHERE ($1::uuid IS NULL OR doctor_id = $1)
		      AND appointment_date = $2 AND appointment_time > $3 AND status = 'SCHEDULED')`,
		doctorID, pgDate(today), pgClock(now),
	).Scan(&st.ActivePatients, &st.TodayAppointments, &st.PendingReviewPatients, &st.RemainingAppointments)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	return &st, nil
}
