package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

const imageAnalysisColumns = `id, patient_id, image_type, image_url, image_data, file_name,
	analysis_result, status, created_at, updated_at`

const documentAnalysisColumns = `id, patient_id, document_type, document_url, document_data, file_name, file_type,
	analysis_result, status, created_at, updated_at`

// qualify prefixes every column in a column list with alias.
func qualify(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// patientScopedWhere builds the WHERE clause shared by listings of entities
// that hang off a patient. The entity table is aliased "e", patients "p".
func patientScopedWhere(filter ListFilter) whereBuilder {
	var w whereBuilder
	if filter.DoctorID != nil {
		w.add("p.doctor_id = ?", *filter.DoctorID)
	}
	if filter.PatientID != nil {
		w.add("e.patient_id = ?", *filter.PatientID)
	}
	if filter.Status != "" {
		w.add("e.status = ?", filter.Status)
	}
	return w
}

// --- Image analyses ---

func scanImageAnalysis(row rowScanner) (*models.ImageAnalysis, error) {
	var a models.ImageAnalysis
	err := row.Scan(&a.ID, &a.PatientID, &a.ImageType, &a.ImageURL, &a.ImageData, &a.FileName,
		&a.AnalysisResult, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) CreateImageAnalysis(ctx context.Context, a *models.ImageAnalysis) error {
	if !a.Status.Valid() {
		return fmt.Errorf("%w: image analysis %q", ErrInvalidStatus, a.Status)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO image_analyses (`+imageAnalysisColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.PatientID, a.ImageType, a.ImageURL, a.ImageData, a.FileName,
		a.AnalysisResult, a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create image analysis: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetImageAnalysis(ctx context.Context, id uuid.UUID) (*models.ImageAnalysis, error) {
	a, err := scanImageAnalysis(s.pool.QueryRow(ctx,
		`SELECT `+imageAnalysisColumns+` FROM image_analyses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image analysis: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListImageAnalyses(ctx context.Context, filter ListFilter) ([]*models.ImageAnalysis, int, error) {
	w := patientScopedWhere(filter)
	where := w.sql()

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM image_analyses e JOIN patients p ON p.id = e.patient_id WHERE `+where,
		w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count image analyses: %w", err)
	}

	limit, offset := filter.Page.normalize()
	query := fmt.Sprintf(`SELECT %s FROM image_analyses e JOIN patients p ON p.id = e.patient_id
		WHERE %s ORDER BY e.created_at DESC LIMIT %s OFFSET %s`,
		qualify("e", imageAnalysisColumns), where, w.next(limit), w.next(offset))

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list image analyses: %w", err)
	}
	defer rows.Close()

	var out []*models.ImageAnalysis
	for rows.Next() {
		a, err := scanImageAnalysis(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan image analysis: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) DeleteImageAnalysis(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "image_analyses", id)
}

// --- Document analyses ---

func scanDocumentAnalysis(row rowScanner) (*models.DocumentAnalysis, error) {
	var d models.DocumentAnalysis
	err := row.Scan(&d.ID, &d.PatientID, &d.DocumentType, &d.DocumentURL, &d.DocumentData, &d.FileName, &d.FileType,
		&d.AnalysisResult, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PostgresStore) CreateDocumentAnalysis(ctx context.Context, d *models.DocumentAnalysis) error {
	if !d.Status.Valid() {
		return fmt.Errorf("%w: document analysis %q", ErrInvalidStatus, d.Status)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO document_analyses (`+documentAnalysisColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.PatientID, d.DocumentType, d.DocumentURL, d.DocumentData, d.FileName, d.FileType,
		d.AnalysisResult, d.Status, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create document analysis: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocumentAnalysis(ctx context.Context, id uuid.UUID) (*models.DocumentAnalysis, error) {
	d, err := scanDocumentAnalysis(s.pool.QueryRow(ctx,
		`SELECT `+documentAnalysisColumns+` FROM document_analyses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document analysis: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListDocumentAnalyses(ctx context.Context, filter ListFilter) ([]*models.DocumentAnalysis, int, error) {
	w := patientScopedWhere(filter)
	where := w.sql()

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_analyses e JOIN patients p ON p.id = e.patient_id WHERE `+where,
		w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count document analyses: %w", err)
	}

	limit, offset := filter.Page.normalize()
	query := fmt.Sprintf(`SELECT %s FROM document_analyses e JOIN patients p ON p.id = e.patient_id
		WHERE %s ORDER BY e.created_at DESC LIMIT %s OFFSET %s`,
		qualify("e", documentAnalysisColumns), where, w.next(limit), w.next(offset))

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list document analyses: %w", err)
	}
	defer rows.Close()

	var out []*models.DocumentAnalysis
	for rows.Next() {
		d, err := scanDocumentAnalysis(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan document analysis: %w", err)
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) DeleteDocumentAnalysis(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "document_analyses", id)
}

// LatestCompletedDocumentAnalysis returns the newest COMPLETED document
// analysis for a patient, or ErrNotFound when there is none.
func (s *PostgresStore) LatestCompletedDocumentAnalysis(ctx context.Context, patientID uuid.UUID) (*models.DocumentAnalysis, error) {
	d, err := scanDocumentAnalysis(s.pool.QueryRow(ctx,
		`SELECT `+documentAnalysisColumns+` FROM document_analyses
		 WHERE patient_id = $1 AND status = 'COMPLETED'
		 ORDER BY created_at DESC LIMIT 1`, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest completed document analysis: %w", err)
	}
	return d, nil
}

// UpdateAnalysisStatus locks the row, validates the transition and writes the
// new status and result in one transaction.
func (s *PostgresStore) UpdateAnalysisStatus(ctx context.Context, kind models.JobKind, id uuid.UUID, status models.AnalysisStatus, opts ...AnalysisUpdateOption) error {
	table, ok := analysisTables[kind]
	if !ok {
		return fmt.Errorf("update analysis status: unknown kind %q", kind)
	}
	var p analysisUpdateParams
	for _, opt := range opts {
		opt(&p)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current models.AnalysisStatus
	err = tx.QueryRow(ctx, `SELECT status FROM `+table+` WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s status: %w", kind, err)
	}
	if err := checkAnalysisUpdate(kind, current, status, &p); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE `+table+` SET status = $2, analysis_result = $3, updated_at = NOW() WHERE id = $1`,
		id, status, p.Result); err != nil {
		return fmt.Errorf("update %s status: %w", kind, err)
	}
	return tx.Commit(ctx)
}
