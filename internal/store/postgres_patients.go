package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

const patientColumns = `id, doctor_id, name, age, gender, phone, abha_number, chief_complaints,
	medical_history, family_history, surgical_history,
	prakriti_vata, prakriti_pitta, prakriti_kapha, vikriti_vata, vikriti_pitta, vikriti_kapha,
	agni_status, ama_level, ojas_level, dhatu_status, status, last_visit, created_at, updated_at`

func scanPatient(row rowScanner) (*models.Patient, error) {
	var p models.Patient
	err := row.Scan(&p.ID, &p.DoctorID, &p.Name, &p.Age, &p.Gender, &p.Phone, &p.ABHANumber, &p.ChiefComplaints,
		&p.MedicalHistory, &p.FamilyHistory, &p.SurgicalHistory,
		&p.Prakriti.Vata, &p.Prakriti.Pitta, &p.Prakriti.Kapha,
		&p.Vikriti.Vata, &p.Vikriti.Pitta, &p.Vikriti.Kapha,
		&p.AgniStatus, &p.AmaLevel, &p.OjasLevel, &p.DhatuStatus, &p.Status, &p.LastVisit,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) CreatePatient(ctx context.Context, p *models.Patient) error {
	if !p.Status.Valid() {
		return fmt.Errorf("%w: patient %q", ErrInvalidStatus, p.Status)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO patients (`+patientColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		         $18, $19, $20, $21, $22, $23, $24, $25)`,
		p.ID, p.DoctorID, p.Name, p.Age, p.Gender, p.Phone, p.ABHANumber, p.ChiefComplaints,
		p.MedicalHistory, p.FamilyHistory, p.SurgicalHistory,
		p.Prakriti.Vata, p.Prakriti.Pitta, p.Prakriti.Kapha,
		p.Vikriti.Vata, p.Vikriti.Pitta, p.Vikriti.Kapha,
		p.AgniStatus, p.AmaLevel, p.OjasLevel, p.DhatuStatus, p.Status, p.LastVisit,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPatient(ctx context.Context, id uuid.UUID) (*models.Patient, error) {
	p, err := scanPatient(s.pool.QueryRow(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) UpdatePatient(ctx context.Context, p *models.Patient) error {
	if !p.Status.Valid() {
		return fmt.Errorf("%w: patient %q", ErrInvalidStatus, p.Status)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE patients SET name = $2, age = $3, gender = $4, phone = $5, abha_number = $6,
		   chief_complaints = $7, medical_history = $8, family_history = $9, surgical_history = $10,
		   prakriti_vata = $11, prakriti_pitta = $12, prakriti_kapha = $13,
		   vikriti_vata = $14, vikriti_pitta = $15, vikriti_kapha = $16,
		   agni_status = $17, ama_level = $18, ojas_level = $19, dhatu_status = $20,
		   status = $21, last_visit = $22, updated_at = $23
		 WHERE id = $1`,
		p.ID, p.Name, p.Age, p.Gender, p.Phone, p.ABHANumber,
		p.ChiefComplaints, p.MedicalHistory, p.FamilyHistory, p.SurgicalHistory,
		p.Prakriti.Vata, p.Prakriti.Pitta, p.Prakriti.Kapha,
		p.Vikriti.Vata, p.Vikriti.Pitta, p.Vikriti.Kapha,
		p.AgniStatus, p.AmaLevel, p.OjasLevel, p.DhatuStatus,
		p.Status, p.LastVisit, p.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "patients", id)
}

func (s *PostgresStore) ListPatients(ctx context.Context, filter PatientFilter) ([]*models.Patient, int, error) {
	var w whereBuilder
	if filter.DoctorID != nil {
		w.add("doctor_id = ?", *filter.DoctorID)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.Gender != "" {
		w.add("gender = ?", filter.Gender)
	}
	if filter.Search != "" {
		p := w.next("%" + filter.Search + "%")
		w.conds = append(w.conds, fmt.Sprintf(
			"(name ILIKE %[1]s OR phone ILIKE %[1]s OR abha_number ILIKE %[1]s OR chief_complaints ILIKE %[1]s)", p))
	}
	where := w.sql()

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM patients WHERE "+where, w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	limit, offset := filter.Page.normalize()
	query := fmt.Sprintf(`SELECT `+patientColumns+` FROM patients WHERE %s ORDER BY created_at DESC LIMIT %s OFFSET %s`,
		where, w.next(limit), w.next(offset))

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var patients []*models.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}
