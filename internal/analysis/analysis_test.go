package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/ai/mock"
	"github.com/kiranshivaraju/ayupilot/internal/clinic"
	"github.com/kiranshivaraju/ayupilot/internal/jobs"
	"github.com/kiranshivaraju/ayupilot/internal/store"
	"github.com/kiranshivaraju/ayupilot/internal/upload"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type dispatchCall struct {
	kind models.JobKind
	id   uuid.UUID
}

type mockDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	err   error
}

func (d *mockDispatcher) Dispatch(_ context.Context, kind models.JobKind, id uuid.UUID, _ *uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{kind, id})
	return d.err
}

type statusCache struct {
	mu      sync.Mutex
	status  map[uuid.UUID]string
	failGet bool
}

func newStatusCache() *statusCache {
	return &statusCache{status: make(map[uuid.UUID]string)}
}

func (c *statusCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (c *statusCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (c *statusCache) Delete(context.Context, string) error                     { return nil }
func (c *statusCache) Ping(context.Context) error                               { return nil }

func (c *statusCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}

func (c *statusCache) SetJobStatus(_ context.Context, _ models.JobKind, id uuid.UUID, status string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status[id] = status
	return nil
}

func (c *statusCache) GetJobStatus(_ context.Context, _ models.JobKind, id uuid.UUID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return "", false, errors.New("redis down")
	}
	v, ok := c.status[id]
	return v, ok, nil
}

// --- Fixture ---

const pngURI = "data:image/png;base64,iVBORw0KGgo="

type fixture struct {
	store      *store.MemoryStore
	cache      *statusCache
	dispatcher *mockDispatcher
	svc        *Service
	doctor     uuid.UUID
	patient    *models.Patient
}

func newFixture(t *testing.T, enforce bool) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	f := &fixture{store: st, cache: newStatusCache(), dispatcher: &mockDispatcher{}, doctor: uuid.New()}
	f.svc = New(st, f.cache, f.dispatcher, clinic.Policy{EnforceOwnership: enforce}, Config{MaxUploadBytes: 1 << 20, StatusTTL: time.Hour})
	f.patient = f.addPatient(t, f.doctor, "+919812345678")
	return f
}

func (f *fixture) addPatient(t *testing.T, doctor uuid.UUID, phone string) *models.Patient {
	t.Helper()
	now := time.Now().UTC()
	p := &models.Patient{
		ID: uuid.New(), DoctorID: doctor, Name: "Arjun Rao", Age: 42, Gender: models.GenderMale, Phone: phone,
		ChiefComplaints: "Acidity", Prakriti: models.DefaultDoshaBalance, Vikriti: models.DefaultDoshaBalance,
		Status: models.PatientActive, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.store.CreatePatient(context.Background(), p))
	return p
}

// --- Uploads ---

func TestUploadImage_CreatesPendingAndDispatches(t *testing.T) {
	f := newFixture(t, true)

	a, err := f.svc.UploadImage(context.Background(), f.doctor, ImageUpload{
		PatientID: f.patient.ID, ImageType: models.ImageTongue, ImageData: pngURI, FileName: "tongue.png",
	})
	require.NoError(t, err)

	assert.Equal(t, models.AnalysisPending, a.Status)
	assert.Nil(t, a.AnalysisResult)
	require.Len(t, f.dispatcher.calls, 1)
	assert.Equal(t, dispatchCall{models.JobImageAnalysis, a.ID}, f.dispatcher.calls[0])
	assert.Equal(t, "PENDING", f.cache.status[a.ID])
}

func TestUploadImage_Validation(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    ImageUpload
		field string
	}{
		{"bad type", ImageUpload{PatientID: f.patient.ID, ImageType: "FACE", ImageData: pngURI}, "image_type"},
		{"no payload", ImageUpload{PatientID: f.patient.ID, ImageType: models.ImageSkin}, "image_data"},
		{"both payloads", ImageUpload{PatientID: f.patient.ID, ImageType: models.ImageSkin, ImageData: pngURI, ImageURL: "https://x.test/a.png"}, "image_data"},
		{"not a data uri", ImageUpload{PatientID: f.patient.ID, ImageType: models.ImageSkin, ImageData: "iVBORw0KGgo="}, "image_data"},
		{"pdf as image", ImageUpload{PatientID: f.patient.ID, ImageType: models.ImageSkin, ImageData: upload.Encode("application/pdf", []byte("%PDF"))}, "image_data"},
		{"bad url", ImageUpload{PatientID: f.patient.ID, ImageType: models.ImageSkin, ImageURL: "ftp://x.test/a.png"}, "image_url"},
		{"missing patient", ImageUpload{ImageType: models.ImageSkin, ImageData: pngURI}, "patient_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UploadImage(ctx, f.doctor, tt.in)
			var verr *clinic.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
	assert.Empty(t, f.dispatcher.calls)
}

func TestUploadImage_TooLarge(t *testing.T) {
	f := newFixture(t, true)
	f.svc.maxBytes = 8

	_, err := f.svc.UploadImage(context.Background(), f.doctor, ImageUpload{
		PatientID: f.patient.ID, ImageType: models.ImageNails,
		ImageData: upload.Encode("image/png", make([]byte, 64)),
	})
	var verr *clinic.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "File is too large.", verr.Fields["image_data"])
}

func TestUploadImage_ByURL(t *testing.T) {
	f := newFixture(t, true)

	a, err := f.svc.UploadImage(context.Background(), f.doctor, ImageUpload{
		PatientID: f.patient.ID, ImageType: models.ImageIris, ImageURL: "https://cdn.example.com/iris.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/iris.jpg", a.ImageURL)
}

func TestUploadImage_Ownership(t *testing.T) {
	f := newFixture(t, true)
	other := uuid.New()
	in := ImageUpload{PatientID: f.patient.ID, ImageType: models.ImageSkin, ImageData: pngURI}

	_, err := f.svc.UploadImage(context.Background(), other, in)
	assert.ErrorIs(t, err, clinic.ErrAccessDenied)

	_, err = f.svc.UploadImage(context.Background(), f.doctor, ImageUpload{PatientID: uuid.New(), ImageType: models.ImageSkin, ImageData: pngURI})
	assert.ErrorIs(t, err, store.ErrNotFound)

	open := New(f.store, f.cache, f.dispatcher, clinic.Policy{}, Config{MaxUploadBytes: 1 << 20})
	_, err = open.UploadImage(context.Background(), other, in)
	assert.NoError(t, err)
}

func TestUploadDocument_DerivesFileType(t *testing.T) {
	f := newFixture(t, true)

	d, err := f.svc.UploadDocument(context.Background(), f.doctor, DocumentUpload{
		PatientID: f.patient.ID, DocumentType: models.DocumentLabReports,
		DocumentData: upload.Encode("application/pdf", []byte("%PDF-1.4")), FileName: "cbc.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", d.FileType)
	assert.Equal(t, models.AnalysisPending, d.Status)
	require.Len(t, f.dispatcher.calls, 1)
	assert.Equal(t, models.JobDocumentAnalysis, f.dispatcher.calls[0].kind)
}

func TestUploadDocument_FieldLengths(t *testing.T) {
	f := newFixture(t, true)
	long := string(make([]rune, 101))

	_, err := f.svc.UploadDocument(context.Background(), f.doctor, DocumentUpload{
		PatientID: f.patient.ID, DocumentType: models.DocumentOtherDocuments,
		DocumentURL: "https://x.test/a.pdf", FileType: long,
	})
	var verr *clinic.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "file_type")
}

func TestUpload_DispatchFailureIsReturned(t *testing.T) {
	f := newFixture(t, true)
	f.dispatcher.err = errors.New("inline run failed")

	_, err := f.svc.UploadImage(context.Background(), f.doctor, ImageUpload{
		PatientID: f.patient.ID, ImageType: models.ImageSkin, ImageData: pngURI,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatch image_analysis")
}

// --- Generation ---

func TestGenerate_Kinds(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	rec, err := f.svc.Generate(ctx, f.doctor, models.JobClinicalReport, f.patient.ID)
	require.NoError(t, err)
	report := rec.(*models.ClinicalReport)
	assert.Equal(t, models.GenerationGenerating, report.Status)
	assert.Nil(t, report.Content)

	rec, err = f.svc.Generate(ctx, f.doctor, models.JobSNLPrescription, f.patient.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationGenerating, rec.(*models.SNLPrescription).Status)

	rec, err = f.svc.Generate(ctx, f.doctor, models.JobKnowledgeReference, f.patient.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationGenerating, rec.(*models.KnowledgeReference).Status)

	_, err = f.svc.Generate(ctx, f.doctor, models.JobChat, f.patient.ID)
	var verr *clinic.ValidationError
	require.ErrorAs(t, err, &verr)

	assert.Len(t, f.dispatcher.calls, 3)
}

func TestGenerate_InlineRunReturnsFinishedRecord(t *testing.T) {
	st := store.NewMemoryStore()
	runner := jobs.NewRunner(st, nil, mock.NewMockProvider(), nil, time.Hour)
	d := jobs.NewDispatcher(nil, runner, nil)
	svc := New(st, nil, d, clinic.Policy{EnforceOwnership: true}, Config{MaxUploadBytes: 1 << 20})

	doctor := uuid.New()
	f := &fixture{store: st}
	p := f.addPatient(t, doctor, "+919812345670")

	rec, err := svc.Generate(context.Background(), doctor, models.JobKnowledgeReference, p.ID)
	require.NoError(t, err)
	k := rec.(*models.KnowledgeReference)
	assert.Equal(t, models.GenerationCompleted, k.Status)
	require.NotNil(t, k.ReferencesContent)
	assert.NotEmpty(t, *k.ReferencesContent)
}

// --- Records ---

func TestRecords_ScopedByOwner(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	otherDoctor := uuid.New()
	otherPatient := f.addPatient(t, otherDoctor, "+919812345679")

	mine, err := f.svc.UploadImage(ctx, f.doctor, ImageUpload{PatientID: f.patient.ID, ImageType: models.ImageSkin, ImageData: pngURI})
	require.NoError(t, err)
	theirs, err := f.svc.UploadImage(ctx, otherDoctor, ImageUpload{PatientID: otherPatient.ID, ImageType: models.ImageSkin, ImageData: pngURI})
	require.NoError(t, err)

	list, total, err := f.svc.Images.List(ctx, f.doctor, store.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	_, err = f.svc.Images.Get(ctx, f.doctor, theirs.ID)
	assert.ErrorIs(t, err, clinic.ErrAccessDenied)
	assert.ErrorIs(t, f.svc.Images.Delete(ctx, f.doctor, theirs.ID), clinic.ErrAccessDenied)

	require.NoError(t, f.svc.Images.Delete(ctx, f.doctor, mine.ID))
	_, err = f.svc.Images.Get(ctx, f.doctor, mine.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecords_StatusFilterValidated(t *testing.T) {
	f := newFixture(t, true)

	_, _, err := f.svc.Reports.List(context.Background(), f.doctor, store.ListFilter{Status: "PENDING"})
	var verr *clinic.ValidationError
	require.ErrorAs(t, err, &verr)

	_, _, err = f.svc.Documents.List(context.Background(), f.doctor, store.ListFilter{Status: "PENDING"})
	assert.NoError(t, err)
}

// --- Job status ---

func TestJobStatus_CacheThenStore(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	rec, err := f.svc.Generate(ctx, f.doctor, models.JobClinicalReport, f.patient.ID)
	require.NoError(t, err)
	id := rec.(*models.ClinicalReport).ID

	st, err := f.svc.JobStatus(ctx, f.doctor, models.JobClinicalReport, id)
	require.NoError(t, err)
	assert.True(t, st.Cached)
	assert.Equal(t, "GENERATING", st.Status)

	f.cache.failGet = true
	st, err = f.svc.JobStatus(ctx, f.doctor, models.JobClinicalReport, id)
	require.NoError(t, err)
	assert.False(t, st.Cached)
	assert.Equal(t, "GENERATING", st.Status)
	assert.False(t, st.UpdatedAt.IsZero())

	_, err = f.svc.JobStatus(ctx, uuid.New(), models.JobClinicalReport, id)
	assert.ErrorIs(t, err, clinic.ErrAccessDenied)
}

func TestJobStatus_ChatAndUnknownKind(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	now := time.Now().UTC()

	user := &models.ChatMessage{ID: uuid.New(), UserID: f.doctor, Role: models.ChatRoleUser, Content: "hi", CreatedAt: now, UpdatedAt: now}
	assistant := &models.ChatMessage{ID: uuid.New(), UserID: f.doctor, Role: models.ChatRoleAssistant, Content: models.AssistantPlaceholder, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, f.store.CreateChatExchange(ctx, user, assistant))

	st, err := f.svc.JobStatus(ctx, f.doctor, models.JobChat, assistant.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", st.Status)

	require.NoError(t, f.store.UpdateAssistantMessage(ctx, assistant.ID, "Namaste"))
	st, err = f.svc.JobStatus(ctx, f.doctor, models.JobChat, assistant.ID)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", st.Status)

	_, err = f.svc.JobStatus(ctx, f.doctor, models.JobChat, user.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.svc.JobStatus(ctx, f.doctor, "medicine", uuid.New())
	var verr *clinic.ValidationError
	assert.ErrorAs(t, err, &verr)
}
