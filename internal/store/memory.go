package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

// MemoryStore is an in-process Store used by tests and by the
// STORE_DRIVER=memory development mode. It enforces the same uniqueness and
// status rules as the Postgres schema. Values are copied in and out so callers
// never share state with the store.
type MemoryStore struct {
	mu sync.RWMutex

	users     map[uuid.UUID]models.User
	apiKeys   map[uuid.UUID]models.APIKey
	patients  map[uuid.UUID]models.Patient
	appts     map[uuid.UUID]models.Appointment
	images    map[uuid.UUID]models.ImageAnalysis
	documents map[uuid.UUID]models.DocumentAnalysis
	reports   map[uuid.UUID]models.ClinicalReport
	snl       map[uuid.UUID]models.SNLPrescription
	knowledge map[uuid.UUID]models.KnowledgeReference
	chat      map[uuid.UUID]models.ChatMessage
	chatSeq   map[uuid.UUID]int
	seq       int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[uuid.UUID]models.User),
		apiKeys:   make(map[uuid.UUID]models.APIKey),
		patients:  make(map[uuid.UUID]models.Patient),
		appts:     make(map[uuid.UUID]models.Appointment),
		images:    make(map[uuid.UUID]models.ImageAnalysis),
		documents: make(map[uuid.UUID]models.DocumentAnalysis),
		reports:   make(map[uuid.UUID]models.ClinicalReport),
		snl:       make(map[uuid.UUID]models.SNLPrescription),
		knowledge: make(map[uuid.UUID]models.KnowledgeReference),
		chat:      make(map[uuid.UUID]models.ChatMessage),
		chatSeq:   make(map[uuid.UUID]int),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// --- Users and API keys ---

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.ID == u.ID || strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicateKey
		}
	}
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []*models.APIKey
	for _, k := range s.apiKeys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			keys = append(keys, &k)
		}
	}
	return keys, nil
}

func (s *MemoryStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.apiKeys[id]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	k.LastUsedAt = &now
	k.UpdatedAt = now
	s.apiKeys[id] = k
	return nil
}

func (s *MemoryStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apiKeys[key.ID]; ok {
		return ErrDuplicateKey
	}
	if _, ok := s.users[key.UserID]; !ok {
		return ErrNotFound
	}
	s.apiKeys[key.ID] = *key
	return nil
}

func (s *MemoryStore) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []*models.APIKey
	for _, k := range s.apiKeys {
		if k.UserID == userID && k.DeletedAt == nil {
			keys = append(keys, &k)
		}
	}
	slices.SortFunc(keys, func(a, b *models.APIKey) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return keys, nil
}

func (s *MemoryStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.apiKeys[id]
	if !ok || k.UserID != userID || k.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	k.UpdatedAt = now
	s.apiKeys[id] = k
	return nil
}

// --- Patients ---

func (s *MemoryStore) CreatePatient(ctx context.Context, p *models.Patient) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.Status.Valid() {
		return ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[p.ID]; ok {
		return ErrDuplicateKey
	}
	if s.phoneTaken(p.DoctorID, p.Phone, p.ID) {
		return ErrDuplicateKey
	}
	s.patients[p.ID] = *p
	return nil
}

func (s *MemoryStore) phoneTaken(doctorID uuid.UUID, phone string, except uuid.UUID) bool {
	for _, existing := range s.patients {
		if existing.ID != except && existing.DoctorID == doctorID && existing.Phone == phone {
			return true
		}
	}
	return false
}

func (s *MemoryStore) GetPatient(ctx context.Context, id uuid.UUID) (*models.Patient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) UpdatePatient(ctx context.Context, p *models.Patient) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.Status.Valid() {
		return ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.patients[p.ID]
	if !ok {
		return ErrNotFound
	}
	if s.phoneTaken(existing.DoctorID, p.Phone, p.ID) {
		return ErrDuplicateKey
	}
	updated := *p
	updated.DoctorID = existing.DoctorID
	updated.CreatedAt = existing.CreatedAt
	s.patients[p.ID] = updated
	return nil
}

// DeletePatient removes the patient and everything that hangs off it, like
// the ON DELETE CASCADE foreign keys do.
func (s *MemoryStore) DeletePatient(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[id]; !ok {
		return ErrNotFound
	}
	delete(s.patients, id)
	deleteWhere(s.appts, func(a models.Appointment) bool { return a.PatientID == id })
	deleteWhere(s.images, func(a models.ImageAnalysis) bool { return a.PatientID == id })
	deleteWhere(s.documents, func(d models.DocumentAnalysis) bool { return d.PatientID == id })
	deleteWhere(s.reports, func(r models.ClinicalReport) bool { return r.PatientID == id })
	deleteWhere(s.snl, func(p models.SNLPrescription) bool { return p.PatientID == id })
	deleteWhere(s.knowledge, func(k models.KnowledgeReference) bool { return k.PatientID == id })
	deleteWhere(s.chat, func(m models.ChatMessage) bool { return m.PatientID != nil && *m.PatientID == id })
	return nil
}

func (s *MemoryStore) ListPatients(ctx context.Context, filter PatientFilter) ([]*models.Patient, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	search := strings.ToLower(filter.Search)
	var out []*models.Patient
	for _, p := range s.patients {
		if filter.DoctorID != nil && p.DoctorID != *filter.DoctorID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Gender != "" && p.Gender != filter.Gender {
			continue
		}
		if search != "" && !containsFold(search, p.Name, p.Phone, p.ABHANumber, p.ChiefComplaints) {
			continue
		}
		out = append(out, &p)
	}
	slices.SortFunc(out, func(a, b *models.Patient) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return paginate(out, filter.Page), len(out), nil
}

// --- Appointments ---

func (s *MemoryStore) slotTaken(a *models.Appointment) bool {
	for _, existing := range s.appts {
		if existing.ID != a.ID && existing.PatientID == a.PatientID && existing.DoctorID == a.DoctorID &&
			existing.Date == a.Date && existing.Time == a.Time {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !a.Status.Valid() {
		return ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[a.PatientID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.appts[a.ID]; ok || s.slotTaken(a) {
		return ErrDuplicateKey
	}
	s.appts[a.ID] = *a
	return nil
}

func (s *MemoryStore) GetAppointment(ctx context.Context, id uuid.UUID) (*models.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) UpdateAppointment(ctx context.Context, a *models.Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.appts[a.ID]
	if !ok {
		return ErrNotFound
	}
	if s.slotTaken(a) {
		return ErrDuplicateKey
	}
	existing.Date = a.Date
	existing.Time = a.Time
	existing.Type = a.Type
	existing.Reason = a.Reason
	existing.Notes = a.Notes
	existing.UpdatedAt = a.UpdatedAt
	s.appts[a.ID] = existing
	return nil
}

func (s *MemoryStore) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appts[id]; !ok {
		return ErrNotFound
	}
	delete(s.appts, id)
	return nil
}

func (s *MemoryStore) ListAppointments(ctx context.Context, filter AppointmentFilter) ([]*models.Appointment, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Appointment
	for _, a := range s.appts {
		if filter.DoctorID != nil && a.DoctorID != *filter.DoctorID {
			continue
		}
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Date != nil && a.Date != *filter.Date {
			continue
		}
		out = append(out, &a)
	}
	slices.SortFunc(out, func(a, b *models.Appointment) int {
		return b.ScheduledAt(time.UTC).Compare(a.ScheduledAt(time.UTC))
	})
	return paginate(out, filter.Page), len(out), nil
}

func (s *MemoryStore) TransitionAppointment(ctx context.Context, id uuid.UUID, to models.AppointmentStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return ErrNotFound
	}
	if err := checkAppointmentTransition(a.Status, to); err != nil {
		return err
	}
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	s.appts[id] = a
	return nil
}

func (s *MemoryStore) MarkPastAppointmentsNoShow(ctx context.Context, before models.Date) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for id, a := range s.appts {
		if a.Status == models.AppointmentScheduled && a.Date.Before(before) {
			a.Status = models.AppointmentNoShow
			a.UpdatedAt = now
			s.appts[id] = a
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListDueAppointments(ctx context.Context, day models.Date, upTo models.ClockTime) ([]*models.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Appointment
	for _, a := range s.appts {
		if a.Status == models.AppointmentScheduled && a.Date == day && !a.Time.After(upTo) {
			out = append(out, &a)
		}
	}
	slices.SortFunc(out, func(a, b *models.Appointment) int {
		return int(a.Time.SinceMidnight() - b.Time.SinceMidnight())
	})
	return out, nil
}

func (s *MemoryStore) PatientHasActivity(ctx context.Context, patientID uuid.UUID, from, to time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	in := func(pid uuid.UUID, t time.Time) bool {
		return pid == patientID && !t.Before(from) && t.Before(to)
	}
	for _, a := range s.images {
		if in(a.PatientID, a.CreatedAt) {
			return true, nil
		}
	}
	for _, d := range s.documents {
		if in(d.PatientID, d.CreatedAt) {
			return true, nil
		}
	}
	for _, r := range s.reports {
		if in(r.PatientID, r.CreatedAt) {
			return true, nil
		}
	}
	for _, p := range s.snl {
		if in(p.PatientID, p.CreatedAt) {
			return true, nil
		}
	}
	for _, k := range s.knowledge {
		if in(k.PatientID, k.CreatedAt) {
			return true, nil
		}
	}
	return false, nil
}

// --- Analyses ---

func (s *MemoryStore) CreateImageAnalysis(ctx context.Context, a *models.ImageAnalysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !a.Status.Valid() {
		return ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[a.PatientID]; !ok {
		return ErrNotFound
	}
	s.images[a.ID] = *a
	return nil
}

func (s *MemoryStore) GetImageAnalysis(ctx context.Context, id uuid.UUID) (*models.ImageAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.images[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) ListImageAnalyses(ctx context.Context, filter ListFilter) ([]*models.ImageAnalysis, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ImageAnalysis
	for _, a := range s.images {
		if s.matches(filter, a.PatientID, string(a.Status)) {
			out = append(out, &a)
		}
	}
	slices.SortFunc(out, func(a, b *models.ImageAnalysis) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return paginate(out, filter.Page), len(out), nil
}

func (s *MemoryStore) DeleteImageAnalysis(ctx context.Context, id uuid.UUID) error {
	return deleteFrom(ctx, &s.mu, s.images, id)
}

func (s *MemoryStore) CreateDocumentAnalysis(ctx context.Context, d *models.DocumentAnalysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !d.Status.Valid() {
		return ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[d.PatientID]; !ok {
		return ErrNotFound
	}
	s.documents[d.ID] = *d
	return nil
}

func (s *MemoryStore) GetDocumentAnalysis(ctx context.Context, id uuid.UUID) (*models.DocumentAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (s *MemoryStore) ListDocumentAnalyses(ctx context.Context, filter ListFilter) ([]*models.DocumentAnalysis, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DocumentAnalysis
	for _, d := range s.documents {
		if s.matches(filter, d.PatientID, string(d.Status)) {
			out = append(out, &d)
		}
	}
	slices.SortFunc(out, func(a, b *models.DocumentAnalysis) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return paginate(out, filter.Page), len(out), nil
}

func (s *MemoryStore) DeleteDocumentAnalysis(ctx context.Context, id uuid.UUID) error {
	return deleteFrom(ctx, &s.mu, s.documents, id)
}

func (s *MemoryStore) LatestCompletedDocumentAnalysis(ctx context.Context, patientID uuid.UUID) (*models.DocumentAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.DocumentAnalysis
	for _, d := range s.documents {
		if d.PatientID != patientID || d.Status != models.AnalysisCompleted {
			continue
		}
		if latest == nil || d.CreatedAt.After(latest.CreatedAt) {
			latest = &d
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (s *MemoryStore) UpdateAnalysisStatus(ctx context.Context, kind models.JobKind, id uuid.UUID, status models.AnalysisStatus, opts ...AnalysisUpdateOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var p analysisUpdateParams
	for _, opt := range opts {
		opt(&p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()

	switch kind {
	case models.JobImageAnalysis:
		a, ok := s.images[id]
		if !ok {
			return ErrNotFound
		}
		if err := checkAnalysisUpdate(kind, a.Status, status, &p); err != nil {
			return err
		}
		a.Status, a.AnalysisResult, a.UpdatedAt = status, p.Result, now
		s.images[id] = a
	case models.JobDocumentAnalysis:
		d, ok := s.documents[id]
		if !ok {
			return ErrNotFound
		}
		if err := checkAnalysisUpdate(kind, d.Status, status, &p); err != nil {
			return err
		}
		d.Status, d.AnalysisResult, d.UpdatedAt = status, p.Result, now
		s.documents[id] = d
	default:
		return ErrInvalidStatus
	}
	return nil
}

// --- Generations ---

func (s *MemoryStore) CreateClinicalReport(ctx context.Context, r *models.ClinicalReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.Status.Valid() {
		return ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[r.PatientID]; !ok {
		return ErrNotFound
	}
	s.reports[r.ID] = *r
	return nil
}

func (s *MemoryStore) GetClinicalReport(ctx context.Context, id uuid.UUID) (*models.ClinicalReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *MemoryStore) ListClinicalReports(ctx context.Context, filter ListFilter) ([]*models.ClinicalReport, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ClinicalReport
	for _, r := range s.reports {
		if s.matches(filter, r.PatientID, string(r.Status)) {
			out = append(out, &r)
		}
	}
	slices.SortFunc(out, func(a, b *models.ClinicalReport) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return paginate(out, filter.Page), len(out), nil
}

func (s *MemoryStore) DeleteClinicalReport(ctx context.Context, id uuid.UUID) error {
	return deleteFrom(ctx, &s.mu, s.reports, id)
}

func (s *MemoryStore) CreateSNLPrescription(ctx context.Context, p *models.SNLPrescription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.Status.Valid() {
		return ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[p.PatientID]; !ok {
		return ErrNotFound
	}
	s.snl[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetSNLPrescription(ctx context.Context, id uuid.UUID) (*models.SNLPrescription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.snl[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ListSNLPrescriptions(ctx context.Context, filter ListFilter) ([]*models.SNLPrescription, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.SNLPrescription
	for _, p := range s.snl {
		if s.matches(filter, p.PatientID, string(p.Status)) {
			out = append(out, &p)
		}
	}
	slices.SortFunc(out, func(a, b *models.SNLPrescription) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return paginate(out, filter.Page), len(out), nil
}

func (s *MemoryStore) DeleteSNLPrescription(ctx context.Context, id uuid.UUID) error {
	return deleteFrom(ctx, &s.mu, s.snl, id)
}

func (s *MemoryStore) CreateKnowledgeReference(ctx context.Context, k *models.KnowledgeReference) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !k.Status.Valid() {
		return ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[k.PatientID]; !ok {
		return ErrNotFound
	}
	s.knowledge[k.ID] = *k
	return nil
}

func (s *MemoryStore) GetKnowledgeReference(ctx context.Context, id uuid.UUID) (*models.KnowledgeReference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.knowledge[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &k, nil
}

func (s *MemoryStore) ListKnowledgeReferences(ctx context.Context, filter ListFilter) ([]*models.KnowledgeReference, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.KnowledgeReference
	for _, k := range s.knowledge {
		if s.matches(filter, k.PatientID, string(k.Status)) {
			out = append(out, &k)
		}
	}
	slices.SortFunc(out, func(a, b *models.KnowledgeReference) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return paginate(out, filter.Page), len(out), nil
}

func (s *MemoryStore) DeleteKnowledgeReference(ctx context.Context, id uuid.UUID) error {
	return deleteFrom(ctx, &s.mu, s.knowledge, id)
}

func (s *MemoryStore) UpdateGenerationStatus(ctx context.Context, kind models.JobKind, id uuid.UUID, status models.GenerationStatus, opts ...GenerationUpdateOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var p generationUpdateParams
	for _, opt := range opts {
		opt(&p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()

	switch kind {
	case models.JobClinicalReport:
		r, ok := s.reports[id]
		if !ok {
			return ErrNotFound
		}
		if err := checkGenerationUpdate(kind, r.Status, status, &p); err != nil {
			return err
		}
		r.Status, r.Content, r.UpdatedAt = status, p.Report, now
		s.reports[id] = r
	case models.JobSNLPrescription:
		sp, ok := s.snl[id]
		if !ok {
			return ErrNotFound
		}
		if err := checkGenerationUpdate(kind, sp.Status, status, &p); err != nil {
			return err
		}
		sp.Status, sp.PrescriptionContent, sp.UpdatedAt = status, p.Text, now
		s.snl[id] = sp
	case models.JobKnowledgeReference:
		k, ok := s.knowledge[id]
		if !ok {
			return ErrNotFound
		}
		if err := checkGenerationUpdate(kind, k.Status, status, &p); err != nil {
			return err
		}
		k.Status, k.ReferencesContent, k.UpdatedAt = status, p.Text, now
		s.knowledge[id] = k
	default:
		return ErrInvalidStatus
	}
	return nil
}

// --- Chat ---

func (s *MemoryStore) CreateChatExchange(ctx context.Context, user, assistant *models.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chat[user.ID]; ok {
		return ErrDuplicateKey
	}
	if _, ok := s.chat[assistant.ID]; ok {
		return ErrDuplicateKey
	}
	for _, m := range []*models.ChatMessage{user, assistant} {
		s.seq++
		s.chat[m.ID] = *m
		s.chatSeq[m.ID] = s.seq
	}
	return nil
}

func (s *MemoryStore) GetChatMessage(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.chat[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) UpdateAssistantMessage(ctx context.Context, id uuid.UUID, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.chat[id]
	if !ok || m.Role != models.ChatRoleAssistant {
		return ErrNotFound
	}
	if m.Answered() {
		return ErrAlreadyCompleted
	}
	m.Content = content
	m.UpdatedAt = time.Now().UTC()
	s.chat[id] = m
	return nil
}

func (s *MemoryStore) ListChatMessages(ctx context.Context, filter ChatFilter) ([]*models.ChatMessage, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ChatMessage
	for _, m := range s.chat {
		if m.UserID != filter.UserID {
			continue
		}
		if filter.PatientID != nil && (m.PatientID == nil || *m.PatientID != *filter.PatientID) {
			continue
		}
		out = append(out, &m)
	}
	slices.SortFunc(out, func(a, b *models.ChatMessage) int { return s.chatSeq[a.ID] - s.chatSeq[b.ID] })
	return paginate(out, filter.Page), len(out), nil
}

// --- Dashboard ---

func (s *MemoryStore) DashboardStats(ctx context.Context, doctorID *uuid.UUID, today models.Date, now models.ClockTime) (*models.DashboardStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st models.DashboardStats
	for _, p := range s.patients {
		if doctorID != nil && p.DoctorID != *doctorID {
			continue
		}
		switch p.Status {
		case models.PatientActive:
			st.ActivePatients++
		case models.PatientReview:
			st.PendingReviewPatients++
		}
	}
	for _, a := range s.appts {
		if (doctorID != nil && a.DoctorID != *doctorID) || a.Date != today {
			continue
		}
		st.TodayAppointments++
		if a.Status == models.AppointmentScheduled && a.Time.After(now) {
			st.RemainingAppointments++
		}
	}
	return &st, nil
}

// --- helpers ---

// matches applies a ListFilter to an entity owned by patientID. Callers hold s.mu.
func (s *MemoryStore) matches(filter ListFilter, patientID uuid.UUID, status string) bool {
	if filter.PatientID != nil && patientID != *filter.PatientID {
		return false
	}
	if filter.Status != "" && status != filter.Status {
		return false
	}
	if filter.DoctorID != nil {
		p, ok := s.patients[patientID]
		if !ok || p.DoctorID != *filter.DoctorID {
			return false
		}
	}
	return true
}

func paginate[T any](items []T, p Page) []T {
	limit, offset := p.normalize()
	if offset >= len(items) {
		return nil
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

func deleteWhere[T any](m map[uuid.UUID]T, match func(T) bool) {
	for id, v := range m {
		if match(v) {
			delete(m, id)
		}
	}
}

func deleteFrom[T any](ctx context.Context, mu *sync.RWMutex, m map[uuid.UUID]T, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := m[id]; !ok {
		return ErrNotFound
	}
	delete(m, id)
	return nil
}

func containsFold(needle string, haystacks ...string) bool {
	for _, h := range haystacks {
		if strings.Contains(strings.ToLower(h), needle) {
			return true
		}
	}
	return false
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
