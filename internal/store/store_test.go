package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/ayupilot/internal/store"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("ayupilot_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool, connStr
}

// storeFactory returns a clean store for each subtest.
type storeFactory func(t *testing.T) store.Store

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) store.Store { return store.NewMemoryStore() })
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, _ := setupTestDB(t)
	runStoreSuite(t, func(t *testing.T) store.Store {
		_, err := pool.Exec(context.Background(),
			`TRUNCATE users, api_keys, patients, appointments, image_analyses, document_analyses,
			 clinical_reports, snl_prescriptions, knowledge_references, chat_messages CASCADE`)
		require.NoError(t, err)
		return store.NewPostgresStore(pool)
	})
}

func TestMigrationVersion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	_, connStr := setupTestDB(t)

	version, dirty, err := store.MigrationVersion(connStr, migrationsDir())
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Running again is a no-op.
	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))
}

func runStoreSuite(t *testing.T, newStore storeFactory) {
	t.Run("APIKeys", func(t *testing.T) { testAPIKeys(t, newStore(t)) })
	t.Run("Patients", func(t *testing.T) { testPatients(t, newStore(t)) })
	t.Run("PatientDuplicatePhone", func(t *testing.T) { testPatientDuplicatePhone(t, newStore(t)) })
	t.Run("Appointments", func(t *testing.T) { testAppointments(t, newStore(t)) })
	t.Run("AppointmentReconcilerQueries", func(t *testing.T) { testAppointmentReconcilerQueries(t, newStore(t)) })
	t.Run("AnalysisStatus", func(t *testing.T) { testAnalysisStatus(t, newStore(t)) })
	t.Run("LatestCompletedDocument", func(t *testing.T) { testLatestCompletedDocument(t, newStore(t)) })
	t.Run("GenerationStatus", func(t *testing.T) { testGenerationStatus(t, newStore(t)) })
	t.Run("ListScopedByDoctor", func(t *testing.T) { testListScopedByDoctor(t, newStore(t)) })
	t.Run("ChatExchange", func(t *testing.T) { testChatExchange(t, newStore(t)) })
	t.Run("PatientActivity", func(t *testing.T) { testPatientActivity(t, newStore(t)) })
	t.Run("DashboardStats", func(t *testing.T) { testDashboardStats(t, newStore(t)) })
	t.Run("DeletePatientCascades", func(t *testing.T) { testDeletePatientCascades(t, newStore(t)) })
}

// --- fixtures ---

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func createUser(t *testing.T, s store.Store, email string) *models.User {
	t.Helper()
	ts := now()
	u := &models.User{ID: uuid.New(), Email: email, Name: "Dr. " + email, CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func createPatient(t *testing.T, s store.Store, doctorID uuid.UUID, phone string) *models.Patient {
	t.Helper()
	ts := now()
	p := &models.Patient{
		ID:              uuid.New(),
		DoctorID:        doctorID,
		Name:            "Asha Rao",
		Age:             42,
		Gender:          models.GenderFemale,
		Phone:           phone,
		ChiefComplaints: "joint pain",
		Prakriti:        models.DefaultDoshaBalance,
		Vikriti:         models.DoshaBalance{Vata: 50, Pitta: 30, Kapha: 20},
		Status:          models.PatientActive,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
	require.NoError(t, s.CreatePatient(context.Background(), p))
	return p
}

func createAppointment(t *testing.T, s store.Store, p *models.Patient, date models.Date, clock string) *models.Appointment {
	t.Helper()
	c, err := models.ParseClockTime(clock)
	require.NoError(t, err)
	ts := now()
	a := &models.Appointment{
		ID:        uuid.New(),
		PatientID: p.ID,
		DoctorID:  p.DoctorID,
		Date:      date,
		Time:      c,
		Type:      models.AppointmentConsultation,
		Status:    models.AppointmentScheduled,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	require.NoError(t, s.CreateAppointment(context.Background(), a))
	return a
}

func createDocument(t *testing.T, s store.Store, patientID uuid.UUID, createdAt time.Time) *models.DocumentAnalysis {
	t.Helper()
	d := &models.DocumentAnalysis{
		ID:           uuid.New(),
		PatientID:    patientID,
		DocumentType: models.DocumentBloodReports,
		DocumentData: "data:application/pdf;base64,JVBERi0=",
		FileName:     "cbc.pdf",
		FileType:     "application/pdf",
		Status:       models.AnalysisPending,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	require.NoError(t, s.CreateDocumentAnalysis(context.Background(), d))
	return d
}

// --- cases ---

func testAPIKeys(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "vaidya@example.com")

	ts := now()
	key := &models.APIKey{
		ID:        uuid.New(),
		UserID:    u.ID,
		Name:      "test-key",
		KeyHash:   "bcrypt-hash-here",
		KeyPrefix: "ayu_abcd",
		Scopes:    []string{"read", "write"},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "ayu_abcd")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, u.ID, keys[0].UserID)

	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))
	listed, err := s.ListAPIKeys(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.NotNil(t, listed[0].LastUsedAt)

	require.NoError(t, s.RevokeAPIKey(ctx, key.ID, u.ID))
	keys, err = s.GetAPIKeyByPrefix(ctx, "ayu_abcd")
	require.NoError(t, err)
	assert.Empty(t, keys)

	assert.ErrorIs(t, s.RevokeAPIKey(ctx, key.ID, u.ID), store.ErrNotFound)

	byEmail, err := s.GetUserByEmail(ctx, "VAIDYA@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
}

func testPatients(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")
	p := createPatient(t, s, u.ID, "+919876543210")

	got, err := s.GetPatient(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", got.Name)
	assert.Equal(t, models.DoshaBalance{Vata: 50, Pitta: 30, Kapha: 20}, got.Vikriti)

	got.Status = models.PatientReview
	got.ChiefComplaints = "insomnia"
	got.UpdatedAt = now()
	require.NoError(t, s.UpdatePatient(ctx, got))

	list, total, err := s.ListPatients(ctx, store.PatientFilter{DoctorID: &u.ID, Search: "insom"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, models.PatientReview, list[0].Status)

	_, total, err = s.ListPatients(ctx, store.PatientFilter{DoctorID: &u.ID, Status: models.PatientActive})
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	require.NoError(t, s.DeletePatient(ctx, p.ID))
	_, err = s.GetPatient(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeletePatient(ctx, p.ID), store.ErrNotFound)
}

func testPatientDuplicatePhone(t *testing.T, s store.Store) {
	u := createUser(t, s, "a@example.com")
	other := createUser(t, s, "b@example.com")
	createPatient(t, s, u.ID, "+919876543210")

	ts := now()
	dup := &models.Patient{
		ID: uuid.New(), DoctorID: u.ID, Name: "Dup", Age: 30, Gender: models.GenderMale,
		Phone: "+919876543210", Prakriti: models.DefaultDoshaBalance, Vikriti: models.DefaultDoshaBalance,
		Status: models.PatientActive, CreatedAt: ts, UpdatedAt: ts,
	}
	assert.ErrorIs(t, s.CreatePatient(context.Background(), dup), store.ErrDuplicateKey)

	// The same number under another doctor is fine.
	createPatient(t, s, other.ID, "+919876543210")
}

func testAppointments(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")
	p := createPatient(t, s, u.ID, "+919876543210")
	day := models.DateOf(time.Now()).AddDays(3)
	a := createAppointment(t, s, p, day, "10:30")

	got, err := s.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, day, got.Date)
	assert.Equal(t, "10:30", got.Time.String())

	// Same slot for the same patient and doctor is rejected.
	dup := *a
	dup.ID = uuid.New()
	assert.ErrorIs(t, s.CreateAppointment(ctx, &dup), store.ErrDuplicateKey)

	got.Time, _ = models.ParseClockTime("11:00")
	got.Notes = "moved"
	require.NoError(t, s.UpdateAppointment(ctx, got))

	list, total, err := s.ListAppointments(ctx, store.AppointmentFilter{DoctorID: &u.ID, Date: &day})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "11:00", list[0].Time.String())

	require.NoError(t, s.TransitionAppointment(ctx, a.ID, models.AppointmentCompleted))
	err = s.TransitionAppointment(ctx, a.ID, models.AppointmentCancelled)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
	assert.ErrorIs(t, s.TransitionAppointment(ctx, uuid.New(), models.AppointmentCancelled), store.ErrNotFound)
}

func testAppointmentReconcilerQueries(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")
	p := createPatient(t, s, u.ID, "+919876543210")
	today := models.Date{Year: 2030, Month: time.March, Day: 10}

	past := createAppointment(t, s, p, today.AddDays(-1), "09:00")
	early := createAppointment(t, s, p, today, "09:00")
	late := createAppointment(t, s, p, today, "17:00")

	n, err := s.MarkPastAppointmentsNoShow(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := s.GetAppointment(ctx, past.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentNoShow, got.Status)

	noon, _ := models.ParseClockTime("12:00")
	due, err := s.ListDueAppointments(ctx, today, noon)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, early.ID, due[0].ID)

	for _, a := range []*models.Appointment{early, late} {
		got, err := s.GetAppointment(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AppointmentScheduled, got.Status)
	}
}

func testAnalysisStatus(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")
	p := createPatient(t, s, u.ID, "+919876543210")

	ts := now()
	img := &models.ImageAnalysis{
		ID: uuid.New(), PatientID: p.ID, ImageType: models.ImageTongue,
		ImageData: "data:image/png;base64,iVBORw0KGgo=", Status: models.AnalysisPending,
		CreatedAt: ts, UpdatedAt: ts,
	}
	require.NoError(t, s.CreateImageAnalysis(ctx, img))

	// COMPLETED straight from PENDING is not allowed.
	err := s.UpdateAnalysisStatus(ctx, models.JobImageAnalysis, img.ID, models.AnalysisCompleted, store.WithAnalysisResult("x"))
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	require.NoError(t, s.UpdateAnalysisStatus(ctx, models.JobImageAnalysis, img.ID, models.AnalysisAnalyzing))
	require.NoError(t, s.UpdateAnalysisStatus(ctx, models.JobImageAnalysis, img.ID, models.AnalysisCompleted,
		store.WithAnalysisResult("AI Analysis for TONGUE: Mock analysis result")))

	got, err := s.GetImageAnalysis(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisCompleted, got.Status)
	require.NotNil(t, got.AnalysisResult)
	assert.Equal(t, "AI Analysis for TONGUE: Mock analysis result", *got.AnalysisResult)

	// A completed analysis keeps its result against late duplicate runs.
	for _, next := range []models.AnalysisStatus{models.AnalysisAnalyzing, models.AnalysisCompleted, models.AnalysisFailed} {
		err = s.UpdateAnalysisStatus(ctx, models.JobImageAnalysis, img.ID, next, store.WithAnalysisResult("second run"))
		assert.ErrorIs(t, err, store.ErrAlreadyCompleted, "COMPLETED -> %s", next)
	}
	got, err = s.GetImageAnalysis(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisCompleted, got.Status)
	require.NotNil(t, got.AnalysisResult)
	assert.Equal(t, "AI Analysis for TONGUE: Mock analysis result", *got.AnalysisResult)

	// FAILED clears the result and a retry may start again.
	retry := &models.ImageAnalysis{
		ID: uuid.New(), PatientID: p.ID, ImageType: models.ImageIris,
		ImageURL: "https://example.com/iris.png", Status: models.AnalysisPending,
		CreatedAt: ts, UpdatedAt: ts,
	}
	require.NoError(t, s.CreateImageAnalysis(ctx, retry))
	require.NoError(t, s.UpdateAnalysisStatus(ctx, models.JobImageAnalysis, retry.ID, models.AnalysisAnalyzing))
	require.NoError(t, s.UpdateAnalysisStatus(ctx, models.JobImageAnalysis, retry.ID, models.AnalysisFailed,
		store.WithAnalysisResult("ignored")))
	got, err = s.GetImageAnalysis(ctx, retry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisFailed, got.Status)
	assert.Nil(t, got.AnalysisResult)
	require.NoError(t, s.UpdateAnalysisStatus(ctx, models.JobImageAnalysis, retry.ID, models.AnalysisAnalyzing))

	err = s.UpdateAnalysisStatus(ctx, models.JobImageAnalysis, uuid.New(), models.AnalysisAnalyzing)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testLatestCompletedDocument(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")
	p := createPatient(t, s, u.ID, "+919876543210")

	_, err := s.LatestCompletedDocumentAnalysis(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	base := now().Add(-time.Hour)
	older := createDocument(t, s, p.ID, base)
	newer := createDocument(t, s, p.ID, base.Add(time.Minute))
	pending := createDocument(t, s, p.ID, base.Add(2*time.Minute))
	_ = pending

	for _, d := range []*models.DocumentAnalysis{older, newer} {
		require.NoError(t, s.UpdateAnalysisStatus(ctx, models.JobDocumentAnalysis, d.ID, models.AnalysisAnalyzing))
		require.NoError(t, s.UpdateAnalysisStatus(ctx, models.JobDocumentAnalysis, d.ID, models.AnalysisCompleted,
			store.WithAnalysisResult("result "+d.ID.String())))
	}

	latest, err := s.LatestCompletedDocumentAnalysis(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)
}

func testGenerationStatus(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")
	p := createPatient(t, s, u.ID, "+919876543210")
	ts := now()

	report := &models.ClinicalReport{ID: uuid.New(), PatientID: p.ID, Status: models.GenerationGenerating, CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, s.CreateClinicalReport(ctx, report))

	err := s.UpdateGenerationStatus(ctx, models.JobClinicalReport, report.ID, models.GenerationCompleted)
	assert.Error(t, err, "COMPLETED without content must fail")

	content := models.ClinicalReportContent{
		PatientOverview:     "Asha Rao, 42",
		KeyClinicalFindings: []string{"Mock finding 1", "Mock finding 2"},
		DiagnosticSummary:   []byte(`{"dosha":"V:30% P:50% K:20%"}`),
	}
	require.NoError(t, s.UpdateGenerationStatus(ctx, models.JobClinicalReport, report.ID, models.GenerationCompleted,
		store.WithReportContent(content)))

	got, err := s.GetClinicalReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationCompleted, got.Status)
	require.NotNil(t, got.Content)
	assert.Equal(t, []string{"Mock finding 1", "Mock finding 2"}, got.Content.KeyClinicalFindings)
	assert.JSONEq(t, `{"dosha":"V:30% P:50% K:20%"}`, string(got.Content.DiagnosticSummary))

	// COMPLETED is final.
	err = s.UpdateGenerationStatus(ctx, models.JobClinicalReport, report.ID, models.GenerationFailed)
	assert.ErrorIs(t, err, store.ErrAlreadyCompleted)
	err = s.UpdateGenerationStatus(ctx, models.JobClinicalReport, report.ID, models.GenerationGenerating)
	assert.ErrorIs(t, err, store.ErrAlreadyCompleted)

	snl := &models.SNLPrescription{ID: uuid.New(), PatientID: p.ID, Status: models.GenerationGenerating, CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, s.CreateSNLPrescription(ctx, snl))
	require.NoError(t, s.UpdateGenerationStatus(ctx, models.JobSNLPrescription, snl.ID, models.GenerationCompleted,
		store.WithGeneratedText("**SUPPLEMENTS & FORMULATIONS:**")))
	gotSNL, err := s.GetSNLPrescription(ctx, snl.ID)
	require.NoError(t, err)
	require.NotNil(t, gotSNL.PrescriptionContent)
	assert.Equal(t, "**SUPPLEMENTS & FORMULATIONS:**", *gotSNL.PrescriptionContent)

	kr := &models.KnowledgeReference{ID: uuid.New(), PatientID: p.ID, Status: models.GenerationGenerating, CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, s.CreateKnowledgeReference(ctx, kr))
	require.NoError(t, s.UpdateGenerationStatus(ctx, models.JobKnowledgeReference, kr.ID, models.GenerationFailed))
	gotKR, err := s.GetKnowledgeReference(ctx, kr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationFailed, gotKR.Status)
	assert.Nil(t, gotKR.ReferencesContent)
}

func testListScopedByDoctor(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := createUser(t, s, "a@example.com")
	b := createUser(t, s, "b@example.com")
	pa := createPatient(t, s, a.ID, "+919876543210")
	pb := createPatient(t, s, b.ID, "+919876543211")
	ts := now()

	for _, pid := range []uuid.UUID{pa.ID, pa.ID, pb.ID} {
		require.NoError(t, s.CreateKnowledgeReference(ctx, &models.KnowledgeReference{
			ID: uuid.New(), PatientID: pid, Status: models.GenerationGenerating, CreatedAt: ts, UpdatedAt: ts,
		}))
	}

	list, total, err := s.ListKnowledgeReferences(ctx, store.ListFilter{DoctorID: &a.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, list, 2)

	list, total, err = s.ListKnowledgeReferences(ctx, store.ListFilter{DoctorID: &a.ID, Page: store.Page{Page: 2, Limit: 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, list, 1)

	_, total, err = s.ListKnowledgeReferences(ctx, store.ListFilter{Status: string(models.GenerationCompleted)})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func testChatExchange(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")
	p := createPatient(t, s, u.ID, "+919876543210")
	ts := now()

	user := &models.ChatMessage{ID: uuid.New(), UserID: u.ID, PatientID: &p.ID, Role: models.ChatRoleUser,
		Content: "What diet suits vata?", CreatedAt: ts, UpdatedAt: ts}
	assistant := &models.ChatMessage{ID: uuid.New(), UserID: u.ID, PatientID: &p.ID, Role: models.ChatRoleAssistant,
		Content: models.AssistantPlaceholder, CreatedAt: ts, UpdatedAt: ts}
	require.NoError(t, s.CreateChatExchange(ctx, user, assistant))

	got, err := s.GetChatMessage(ctx, assistant.ID)
	require.NoError(t, err)
	assert.False(t, got.Answered())

	require.NoError(t, s.UpdateAssistantMessage(ctx, assistant.ID, "Warm, grounding foods."))
	got, err = s.GetChatMessage(ctx, assistant.ID)
	require.NoError(t, err)
	assert.True(t, got.Answered())

	// The placeholder is replaced once; user messages are never rewritten.
	assert.ErrorIs(t, s.UpdateAssistantMessage(ctx, assistant.ID, "second reply"), store.ErrAlreadyCompleted)
	got, err = s.GetChatMessage(ctx, assistant.ID)
	require.NoError(t, err)
	assert.Equal(t, "Warm, grounding foods.", got.Content)
	assert.ErrorIs(t, s.UpdateAssistantMessage(ctx, user.ID, "tampered"), store.ErrNotFound)

	msgs, total, err := s.ListChatMessages(ctx, store.ChatFilter{UserID: u.ID, PatientID: &p.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.ChatRoleUser, msgs[0].Role)
	assert.Equal(t, models.ChatRoleAssistant, msgs[1].Role)

	other := uuid.New()
	_, total, err = s.ListChatMessages(ctx, store.ChatFilter{UserID: u.ID, PatientID: &other})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func testPatientActivity(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")
	p := createPatient(t, s, u.ID, "+919876543210")
	start := now().Add(-time.Hour)
	end := start.Add(2 * time.Hour)

	active, err := s.PatientHasActivity(ctx, p.ID, start, end)
	require.NoError(t, err)
	assert.False(t, active)

	createDocument(t, s, p.ID, start.Add(30*time.Minute))

	active, err = s.PatientHasActivity(ctx, p.ID, start, end)
	require.NoError(t, err)
	assert.True(t, active)

	active, err = s.PatientHasActivity(ctx, p.ID, end, end.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, active)
}

func testDashboardStats(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := createUser(t, s, "a@example.com")
	b := createUser(t, s, "b@example.com")
	p1 := createPatient(t, s, a.ID, "+919876543210")
	p2 := createPatient(t, s, a.ID, "+919876543211")
	pb := createPatient(t, s, b.ID, "+919876543212")

	p2.Status = models.PatientReview
	require.NoError(t, s.UpdatePatient(ctx, p2))

	today := models.Date{Year: 2030, Month: time.June, Day: 1}
	createAppointment(t, s, p1, today, "09:00")
	createAppointment(t, s, p1, today, "15:00")
	done := createAppointment(t, s, p2, today, "16:00")
	require.NoError(t, s.TransitionAppointment(ctx, done.ID, models.AppointmentCompleted))
	createAppointment(t, s, pb, today, "15:00")

	noon, _ := models.ParseClockTime("12:00")
	st, err := s.DashboardStats(ctx, &a.ID, today, noon)
	require.NoError(t, err)
	assert.Equal(t, models.DashboardStats{
		ActivePatients:        1,
		TodayAppointments:     3,
		PendingReviewPatients: 1,
		RemainingAppointments: 1,
	}, *st)

	all, err := s.DashboardStats(ctx, nil, today, noon)
	require.NoError(t, err)
	assert.Equal(t, 2, all.ActivePatients)
	assert.Equal(t, 4, all.TodayAppointments)
}

func testDeletePatientCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")
	p := createPatient(t, s, u.ID, "+919876543210")
	d := createDocument(t, s, p.ID, now())
	a := createAppointment(t, s, p, models.DateOf(time.Now()).AddDays(1), "10:00")

	require.NoError(t, s.DeletePatient(ctx, p.ID))

	_, err := s.GetDocumentAnalysis(ctx, d.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetAppointment(ctx, a.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPageClamp(t *testing.T) {
	assert.Equal(t, store.Page{Page: 1, Limit: 20}, store.Page{}.Clamp())
	assert.Equal(t, store.Page{Page: 3, Limit: 100}, store.Page{Page: 3, Limit: 500}.Clamp())
	assert.Equal(t, store.Page{Page: 1, Limit: 5}, store.Page{Page: -2, Limit: 5}.Clamp())
}
