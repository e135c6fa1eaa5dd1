// Package clinic holds the practice-facing services: patients, appointments
// and the dashboard. Every call takes the acting user explicitly.
package clinic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/store"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
	"github.com/nyaruka/phonenumbers"
)

const recentPatientsLimit = 5

// PatientInput is the body of a patient create request.
type PatientInput struct {
	Name            string               `json:"name"`
	Age             int                  `json:"age"`
	Gender          models.Gender        `json:"gender"`
	Phone           string               `json:"phone"`
	ABHANumber      string               `json:"abha_number"`
	ChiefComplaints string               `json:"chief_complaints"`
	MedicalHistory  string               `json:"medical_history"`
	FamilyHistory   string               `json:"family_history"`
	SurgicalHistory string               `json:"surgical_history"`
	Prakriti        *models.DoshaBalance `json:"prakriti"`
	Vikriti         *models.DoshaBalance `json:"vikriti"`
	AgniStatus      string               `json:"agni_status"`
	AmaLevel        string               `json:"ama_level"`
	OjasLevel       string               `json:"ojas_level"`
	DhatuStatus     string               `json:"dhatu_status"`
	Status          models.PatientStatus `json:"status"`
}

// PatientPatch is a partial update; nil fields are left unchanged.
type PatientPatch struct {
	Name            *string               `json:"name"`
	Age             *int                  `json:"age"`
	Gender          *models.Gender        `json:"gender"`
	Phone           *string               `json:"phone"`
	ABHANumber      *string               `json:"abha_number"`
	ChiefComplaints *string               `json:"chief_complaints"`
	MedicalHistory  *string               `json:"medical_history"`
	FamilyHistory   *string               `json:"family_history"`
	SurgicalHistory *string               `json:"surgical_history"`
	Prakriti        *models.DoshaBalance  `json:"prakriti"`
	Vikriti         *models.DoshaBalance  `json:"vikriti"`
	AgniStatus      *string               `json:"agni_status"`
	AmaLevel        *string               `json:"ama_level"`
	OjasLevel       *string               `json:"ojas_level"`
	DhatuStatus     *string               `json:"dhatu_status"`
	Status          *models.PatientStatus `json:"status"`
	LastVisit       *time.Time            `json:"last_visit"`
}

// PatientService manages patient records.
type PatientService struct {
	store       store.Store
	policy      Policy
	phoneRegion string
	now         func() time.Time
}

func NewPatientService(s store.Store, policy Policy, phoneRegion string) *PatientService {
	return &PatientService{store: s, policy: policy, phoneRegion: phoneRegion, now: time.Now}
}

// Create registers a patient under the acting doctor.
func (s *PatientService) Create(ctx context.Context, actor uuid.UUID, in PatientInput) (*models.Patient, error) {
	now := s.now().UTC()
	p := &models.Patient{
		ID:              uuid.New(),
		DoctorID:        actor,
		Name:            strings.TrimSpace(in.Name),
		Age:             in.Age,
		Gender:          in.Gender,
		Phone:           in.Phone,
		ABHANumber:      in.ABHANumber,
		ChiefComplaints: in.ChiefComplaints,
		MedicalHistory:  in.MedicalHistory,
		FamilyHistory:   in.FamilyHistory,
		SurgicalHistory: in.SurgicalHistory,
		Prakriti:        models.DefaultDoshaBalance,
		Vikriti:         models.DefaultDoshaBalance,
		AgniStatus:      in.AgniStatus,
		AmaLevel:        in.AmaLevel,
		OjasLevel:       in.OjasLevel,
		DhatuStatus:     in.DhatuStatus,
		Status:          in.Status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.Prakriti != nil {
		p.Prakriti = *in.Prakriti
	}
	if in.Vikriti != nil {
		p.Vikriti = *in.Vikriti
	}
	if p.Status == "" {
		p.Status = models.PatientActive
	}
	if err := s.validate(p); err != nil {
		return nil, err
	}

	if err := s.store.CreatePatient(ctx, p); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, duplicatePhone()
		}
		return nil, fmt.Errorf("create patient: %w", err)
	}
	return p, nil
}

func (s *PatientService) Get(ctx context.Context, actor, id uuid.UUID) (*models.Patient, error) {
	return s.policy.Patient(ctx, s.store, actor, id)
}

// List returns the patients visible to actor. The doctor filter is always
// taken from the policy, never from the caller.
func (s *PatientService) List(ctx context.Context, actor uuid.UUID, filter store.PatientFilter) ([]*models.Patient, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, Invalid("status", fmt.Sprintf("unknown patient status %q", filter.Status))
	}
	if filter.Gender != "" && !filter.Gender.Valid() {
		return nil, 0, Invalid("gender", fmt.Sprintf("unknown gender %q", filter.Gender))
	}
	filter.DoctorID = s.policy.Scope(actor)
	patients, total, err := s.store.ListPatients(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	return patients, total, nil
}

// Recent returns the newest patients for the dashboard.
func (s *PatientService) Recent(ctx context.Context, actor uuid.UUID) ([]*models.Patient, error) {
	patients, _, err := s.List(ctx, actor, store.PatientFilter{Page: store.Page{Page: 1, Limit: recentPatientsLimit}})
	return patients, err
}

func (s *PatientService) Update(ctx context.Context, actor, id uuid.UUID, patch PatientPatch) (*models.Patient, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	applyPatientPatch(p, patch)
	p.UpdatedAt = s.now().UTC()
	if err := s.validate(p); err != nil {
		return nil, err
	}

	if err := s.store.UpdatePatient(ctx, p); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, duplicatePhone()
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update patient: %w", err)
	}
	return p, nil
}

// Delete removes a patient together with everything recorded against them.
func (s *PatientService) Delete(ctx context.Context, actor, id uuid.UUID) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	if err := s.store.DeletePatient(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete patient: %w", err)
	}
	return nil
}

func applyPatientPatch(p *models.Patient, in PatientPatch) {
	setIf(&p.Name, in.Name)
	setIf(&p.Age, in.Age)
	setIf(&p.Gender, in.Gender)
	setIf(&p.Phone, in.Phone)
	setIf(&p.ABHANumber, in.ABHANumber)
	setIf(&p.ChiefComplaints, in.ChiefComplaints)
	setIf(&p.MedicalHistory, in.MedicalHistory)
	setIf(&p.FamilyHistory, in.FamilyHistory)
	setIf(&p.SurgicalHistory, in.SurgicalHistory)
	setIf(&p.Prakriti, in.Prakriti)
	setIf(&p.Vikriti, in.Vikriti)
	setIf(&p.AgniStatus, in.AgniStatus)
	setIf(&p.AmaLevel, in.AmaLevel)
	setIf(&p.OjasLevel, in.OjasLevel)
	setIf(&p.DhatuStatus, in.DhatuStatus)
	setIf(&p.Status, in.Status)
	if in.LastVisit != nil {
		lv := in.LastVisit.UTC()
		p.LastVisit = &lv
	}
	p.Name = strings.TrimSpace(p.Name)
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// validate checks every field and normalises the phone number to E.164.
func (s *PatientService) validate(p *models.Patient) error {
	verr := &ValidationError{}

	switch {
	case p.Name == "":
		verr.add("name", "name is required.")
	case utf8.RuneCountInString(p.Name) > 255:
		verr.add("name", "name must be at most 255 characters.")
	}
	if p.Age < 1 || p.Age > 119 {
		verr.add("age", "Enter a realistic age (1-119).")
	}
	if !p.Gender.Valid() {
		verr.add("gender", "gender must be one of MALE, FEMALE, OTHER.")
	}
	switch phone, ok := s.normalizePhone(p.Phone); {
	case strings.TrimSpace(p.Phone) == "":
		verr.add("phone", "phone is required.")
	case !ok:
		verr.add("phone", fmt.Sprintf("Enter a valid phone number for region %s.", s.phoneRegion))
	default:
		p.Phone = phone
	}
	if !p.Status.Valid() {
		verr.add("status", "status must be one of ACTIVE, INACTIVE, REVIEW.")
	}
	checkDosha(verr, "prakriti", "Prakriti", p.Prakriti)
	checkDosha(verr, "vikriti", "Vikriti", p.Vikriti)

	for _, f := range []struct {
		field, value string
		max          int
	}{
		{"abha_number", p.ABHANumber, 20},
		{"agni_status", p.AgniStatus, 100},
		{"ama_level", p.AmaLevel, 50},
		{"ojas_level", p.OjasLevel, 50},
		{"dhatu_status", p.DhatuStatus, 200},
	} {
		if utf8.RuneCountInString(f.value) > f.max {
			verr.add(f.field, fmt.Sprintf("%s must be at most %d characters.", f.field, f.max))
		}
	}
	return verr.err()
}

func checkDosha(verr *ValidationError, field, label string, b models.DoshaBalance) {
	for _, v := range []int{b.Vata, b.Pitta, b.Kapha} {
		if v < 0 || v > 100 {
			verr.add(field, label+" percentages must be between 0 and 100.")
			return
		}
	}
	if b.Sum() != 100 {
		verr.add(field, label+" percentages must add up to 100.")
	}
}

func (s *PatientService) normalizePhone(raw string) (string, bool) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), s.phoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", false
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}

func duplicatePhone() error {
	return Invalid("phone", "A patient with this phone number already exists for this doctor.")
}
