package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

const generationColumns = `id, patient_id, %s, status, created_at, updated_at`

func generationSelect(kind models.JobKind) string {
	t := generationTables[kind]
	return fmt.Sprintf(`SELECT `+generationColumns+` FROM %s`, t.column, t.table)
}

func generationSelectScoped(kind models.JobKind) string {
	t := generationTables[kind]
	return fmt.Sprintf(`SELECT e.id, e.patient_id, e.%s, e.status, e.created_at, e.updated_at
		FROM %s e JOIN patients p ON p.id = e.patient_id`, t.column, t.table)
}

// --- Clinical reports ---

func scanClinicalReport(row rowScanner) (*models.ClinicalReport, error) {
	var (
		r   models.ClinicalReport
		raw []byte
	)
	if err := row.Scan(&r.ID, &r.PatientID, &raw, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if raw != nil {
		var c models.ClinicalReportContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode report content: %w", err)
		}
		r.Content = &c
	}
	return &r, nil
}

func (s *PostgresStore) CreateClinicalReport(ctx context.Context, r *models.ClinicalReport) error {
	if !r.Status.Valid() {
		return fmt.Errorf("%w: clinical report %q", ErrInvalidStatus, r.Status)
	}
	var content []byte
	if r.Content != nil {
		var err error
		if content, err = json.Marshal(r.Content); err != nil {
			return fmt.Errorf("encode report content: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO clinical_reports (id, patient_id, content, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.PatientID, content, r.Status, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create clinical report: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetClinicalReport(ctx context.Context, id uuid.UUID) (*models.ClinicalReport, error) {
	r, err := scanClinicalReport(s.pool.QueryRow(ctx, generationSelect(models.JobClinicalReport)+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get clinical report: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListClinicalReports(ctx context.Context, filter ListFilter) ([]*models.ClinicalReport, int, error) {
	var out []*models.ClinicalReport
	total, err := s.listGenerations(ctx, models.JobClinicalReport, filter, func(row rowScanner) error {
		r, err := scanClinicalReport(row)
		if err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, total, err
}

func (s *PostgresStore) DeleteClinicalReport(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "clinical_reports", id)
}

// --- SNL prescriptions ---

func scanSNLPrescription(row rowScanner) (*models.SNLPrescription, error) {
	var p models.SNLPrescription
	if err := row.Scan(&p.ID, &p.PatientID, &p.PrescriptionContent, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) CreateSNLPrescription(ctx context.Context, p *models.SNLPrescription) error {
	if !p.Status.Valid() {
		return fmt.Errorf("%w: snl prescription %q", ErrInvalidStatus, p.Status)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO snl_prescriptions (id, patient_id, prescription_content, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.PatientID, p.PrescriptionContent, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create snl prescription: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSNLPrescription(ctx context.Context, id uuid.UUID) (*models.SNLPrescription, error) {
	p, err := scanSNLPrescription(s.pool.QueryRow(ctx, generationSelect(models.JobSNLPrescription)+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snl prescription: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListSNLPrescriptions(ctx context.Context, filter ListFilter) ([]*models.SNLPrescription, int, error) {
	var out []*models.SNLPrescription
	total, err := s.listGenerations(ctx, models.JobSNLPrescription, filter, func(row rowScanner) error {
		p, err := scanSNLPrescription(row)
		if err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, total, err
}

func (s *PostgresStore) DeleteSNLPrescription(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "snl_prescriptions", id)
}

// --- Knowledge references ---

func scanKnowledgeReference(row rowScanner) (*models.KnowledgeReference, error) {
	var k models.KnowledgeReference
	if err := row.Scan(&k.ID, &k.PatientID, &k.ReferencesContent, &k.Status, &k.CreatedAt, &k.UpdatedAt); err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *PostgresStore) CreateKnowledgeReference(ctx context.Context, k *models.KnowledgeReference) error {
	if !k.Status.Valid() {
		return fmt.Errorf("%w: knowledge reference %q", ErrInvalidStatus, k.Status)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO knowledge_references (id, patient_id, references_content, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		k.ID, k.PatientID, k.ReferencesContent, k.Status, k.CreatedAt, k.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create knowledge reference: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetKnowledgeReference(ctx context.Context, id uuid.UUID) (*models.KnowledgeReference, error) {
	k, err := scanKnowledgeReference(s.pool.QueryRow(ctx, generationSelect(models.JobKnowledgeReference)+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get knowledge reference: %w", err)
	}
	return k, nil
}

func (s *PostgresStore) ListKnowledgeReferences(ctx context.Context, filter ListFilter) ([]*models.KnowledgeReference, int, error) {
	var out []*models.KnowledgeReference
	total, err := s.listGenerations(ctx, models.JobKnowledgeReference, filter, func(row rowScanner) error {
		k, err := scanKnowledgeReference(row)
		if err != nil {
			return err
		}
		out = append(out, k)
		return nil
	})
	return out, total, err
}

func (s *PostgresStore) DeleteKnowledgeReference(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "knowledge_references", id)
}

// listGenerations runs the count and page queries for a generation table and
// hands each row to scan.
func (s *PostgresStore) listGenerations(ctx context.Context, kind models.JobKind, filter ListFilter, scan func(rowScanner) error) (int, error) {
	t := generationTables[kind]
	w := patientScopedWhere(filter)
	where := w.sql()

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM `+t.table+` e JOIN patients p ON p.id = e.patient_id WHERE `+where,
		w.args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count %s: %w", t.table, err)
	}

	limit, offset := filter.Page.normalize()
	query := fmt.Sprintf(`%s WHERE %s ORDER BY e.created_at DESC LIMIT %s OFFSET %s`,
		generationSelectScoped(kind), where, w.next(limit), w.next(offset))

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", t.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return 0, fmt.Errorf("scan %s: %w", t.table, err)
		}
	}
	return total, rows.Err()
}

// UpdateGenerationStatus locks the row, validates the transition and writes
// status and content together.
func (s *PostgresStore) UpdateGenerationStatus(ctx context.Context, kind models.JobKind, id uuid.UUID, status models.GenerationStatus, opts ...GenerationUpdateOption) error {
	t, ok := generationTables[kind]
	if !ok {
		return fmt.Errorf("update generation status: unknown kind %q", kind)
	}
	var p generationUpdateParams
	for _, opt := range opts {
		opt(&p)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current models.GenerationStatus
	err = tx.QueryRow(ctx, `SELECT status FROM `+t.table+` WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s status: %w", kind, err)
	}
	if err := checkGenerationUpdate(kind, current, status, &p); err != nil {
		return err
	}

	var content any
	switch {
	case p.Report != nil:
		raw, err := json.Marshal(p.Report)
		if err != nil {
			return fmt.Errorf("encode report content: %w", err)
		}
		content = raw
	case p.Text != nil:
		content = *p.Text
	}

	if _, err := tx.Exec(ctx,
		`UPDATE `+t.table+` SET status = $2, `+t.column+` = $3, updated_at = NOW() WHERE id = $1`,
		id, status, content); err != nil {
		return fmt.Errorf("update %s status: %w", kind, err)
	}
	return tx.Commit(ctx)
}
