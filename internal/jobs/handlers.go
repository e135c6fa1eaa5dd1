package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/ai"
	"github.com/kiranshivaraju/ayupilot/internal/queue"
	"github.com/kiranshivaraju/ayupilot/internal/store"
	"github.com/kiranshivaraju/ayupilot/internal/upload"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

func userMessage(content string) []models.Message {
	return []models.Message{{Role: models.RoleUser, Content: content}}
}

func (r *Runner) analyzeImage(ctx context.Context, task queue.Task) error {
	kind := models.JobImageAnalysis
	a, err := r.store.GetImageAnalysis(ctx, task.EntityID)
	if err != nil {
		return err
	}
	if err := r.setAnalysis(ctx, kind, a.ID, models.AnalysisAnalyzing); err != nil {
		return err
	}
	patient, err := r.store.GetPatient(ctx, a.PatientID)
	if err != nil {
		return fmt.Errorf("load patient: %w", err)
	}

	req := models.GenerateRequest{
		Kind:     kind,
		System:   imageSystemPrompt,
		Messages: userMessage(imagePrompt(a, patient)),
		Attributes: map[string]string{
			"image_type":   string(a.ImageType),
			"patient_name": patient.Name,
		},
	}
	switch {
	case a.ImageData != "":
		req.Images = []string{a.ImageData}
	case a.ImageURL != "":
		req.Images = []string{r.inlineImage(ctx, a)}
	}

	result, err := r.ai.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("generate image analysis: %w", err)
	}
	return r.setAnalysis(ctx, kind, a.ID, models.AnalysisCompleted, store.WithAnalysisResult(result))
}

func (r *Runner) analyzeDocument(ctx context.Context, task queue.Task) error {
	kind := models.JobDocumentAnalysis
	d, err := r.store.GetDocumentAnalysis(ctx, task.EntityID)
	if err != nil {
		return err
	}
	if err := r.setAnalysis(ctx, kind, d.ID, models.AnalysisAnalyzing); err != nil {
		return err
	}
	patient, err := r.store.GetPatient(ctx, d.PatientID)
	if err != nil {
		return fmt.Errorf("load patient: %w", err)
	}

	result, err := r.ai.Generate(ctx, models.GenerateRequest{
		Kind:     kind,
		System:   documentSystemPrompt,
		Messages: userMessage(documentPrompt(d, patient, r.documentText(ctx, d))),
		Attributes: map[string]string{
			"file_name":     d.FileName,
			"document_type": string(d.DocumentType),
			"patient_name":  patient.Name,
		},
	})
	if err != nil {
		return fmt.Errorf("generate document analysis: %w", err)
	}
	if err := r.setAnalysis(ctx, kind, d.ID, models.AnalysisCompleted, store.WithAnalysisResult(result)); err != nil {
		return err
	}

	if d.DocumentType.TriggersPrescription() {
		// A failed follow-up never fails the document itself.
		if err := r.chainPrescription(ctx, d); err != nil {
			slog.Error("failed to create follow-up SNL prescription",
				"document_id", d.ID, "patient_id", d.PatientID, "error", err)
		}
	}
	return nil
}

// inlineImage downloads an image given by URL so providers that cannot
// fetch URLs still see it. On failure the URL is passed through.
func (r *Runner) inlineImage(ctx context.Context, a *models.ImageAnalysis) string {
	if r.fetcher == nil {
		return a.ImageURL
	}
	uri, err := r.fetcher.Fetch(ctx, a.ImageURL)
	if err != nil {
		slog.Warn("image fetch failed, passing URL through", "analysis_id", a.ID, "error", err)
		return a.ImageURL
	}
	return uri.String()
}

// documentText extracts text from an inline or fetched payload; failures
// only drop the context.
func (r *Runner) documentText(ctx context.Context, d *models.DocumentAnalysis) string {
	var (
		uri *upload.DataURI
		err error
	)
	switch {
	case d.DocumentData != "":
		uri, err = upload.Parse(d.DocumentData, 0)
	case d.DocumentURL != "" && r.fetcher != nil:
		uri, err = r.fetcher.Fetch(ctx, d.DocumentURL)
	default:
		return ""
	}
	if err != nil {
		slog.Debug("document payload unavailable", "document_id", d.ID, "error", err)
		return ""
	}
	text, err := upload.ExtractText(uri)
	if err != nil {
		slog.Debug("no text extracted from document", "document_id", d.ID, "mime", uri.MIME, "error", err)
		return ""
	}
	return text
}

// chainPrescription creates an SNL prescription for the document's patient
// and hands it to the dispatcher.
func (r *Runner) chainPrescription(ctx context.Context, d *models.DocumentAnalysis) error {
	now := time.Now().UTC()
	snl := &models.SNLPrescription{
		ID:        uuid.New(),
		PatientID: d.PatientID,
		Status:    models.GenerationGenerating,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.CreateSNLPrescription(ctx, snl); err != nil {
		return fmt.Errorf("create snl prescription: %w", err)
	}
	r.mirror(ctx, models.JobSNLPrescription, snl.ID, string(snl.Status))
	if r.next == nil {
		return errors.New("no dispatcher configured")
	}
	docID := d.ID
	return r.next.Dispatch(ctx, models.JobSNLPrescription, snl.ID, &docID)
}

func (r *Runner) generateReport(ctx context.Context, task queue.Task) error {
	kind := models.JobClinicalReport
	report, err := r.store.GetClinicalReport(ctx, task.EntityID)
	if err != nil {
		return err
	}
	if err := r.setGeneration(ctx, kind, report.ID, models.GenerationGenerating); err != nil {
		return err
	}
	patient, err := r.store.GetPatient(ctx, report.PatientID)
	if err != nil {
		return fmt.Errorf("load patient: %w", err)
	}
	latest, err := r.latestDocument(ctx, patient.ID)
	if err != nil {
		return err
	}

	out, err := r.ai.Generate(ctx, models.GenerateRequest{
		Kind:       kind,
		System:     reportSystemPrompt,
		Messages:   userMessage(reportPrompt(patient, latest)),
		Attributes: map[string]string{"patient_name": patient.Name},
	})
	if err != nil {
		return fmt.Errorf("generate clinical report: %w", err)
	}
	content, err := parseReport(out)
	if err != nil {
		return err
	}
	return r.setGeneration(ctx, kind, report.ID, models.GenerationCompleted, store.WithReportContent(content))
}

// parseReport decodes the model's JSON reply, tolerating a markdown code fence
// or prose around the object.
func parseReport(out string) (models.ClinicalReportContent, error) {
	var content models.ClinicalReportContent
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start < 0 || end < start {
		return content, fmt.Errorf("%w: clinical report is not a JSON object", ai.ErrInvalidResponse)
	}
	if err := json.Unmarshal([]byte(out[start:end+1]), &content); err != nil {
		return content, fmt.Errorf("%w: clinical report: %v", ai.ErrInvalidResponse, err)
	}
	if content.PatientOverview == "" {
		return content, fmt.Errorf("%w: clinical report has no patient_overview", ai.ErrInvalidResponse)
	}
	return content, nil
}

func (r *Runner) generateSNL(ctx context.Context, task queue.Task) error {
	kind := models.JobSNLPrescription
	snl, err := r.store.GetSNLPrescription(ctx, task.EntityID)
	if err != nil {
		return err
	}
	if err := r.setGeneration(ctx, kind, snl.ID, models.GenerationGenerating); err != nil {
		return err
	}
	patient, err := r.store.GetPatient(ctx, snl.PatientID)
	if err != nil {
		return fmt.Errorf("load patient: %w", err)
	}

	text, err := r.ai.Generate(ctx, models.GenerateRequest{
		Kind:       kind,
		System:     snlSystemPrompt,
		Messages:   userMessage(snlPrompt(patient)),
		Attributes: map[string]string{"patient_name": patient.Name},
	})
	if err != nil {
		return fmt.Errorf("generate snl prescription: %w", err)
	}

	latest, err := r.latestDocument(ctx, patient.ID)
	if err != nil {
		return err
	}
	if latest != nil && latest.AnalysisResult != nil && *latest.AnalysisResult != "" {
		text += "\n" + reportSummaryHeading + *latest.AnalysisResult + "\n"
	}
	return r.setGeneration(ctx, kind, snl.ID, models.GenerationCompleted, store.WithGeneratedText(text))
}

func (r *Runner) generateKnowledge(ctx context.Context, task queue.Task) error {
	kind := models.JobKnowledgeReference
	k, err := r.store.GetKnowledgeReference(ctx, task.EntityID)
	if err != nil {
		return err
	}
	if err := r.setGeneration(ctx, kind, k.ID, models.GenerationGenerating); err != nil {
		return err
	}
	patient, err := r.store.GetPatient(ctx, k.PatientID)
	if err != nil {
		return fmt.Errorf("load patient: %w", err)
	}

	text, err := r.ai.Generate(ctx, models.GenerateRequest{
		Kind:       kind,
		System:     knowledgeSystemPrompt,
		Messages:   userMessage(knowledgePrompt(patient)),
		Attributes: map[string]string{"patient_name": patient.Name},
	})
	if err != nil {
		return fmt.Errorf("generate knowledge references: %w", err)
	}
	return r.setGeneration(ctx, kind, k.ID, models.GenerationCompleted, store.WithGeneratedText(text))
}

// latestDocument returns the newest completed document analysis, or nil.
func (r *Runner) latestDocument(ctx context.Context, patientID uuid.UUID) (*models.DocumentAnalysis, error) {
	d, err := r.store.LatestCompletedDocumentAnalysis(ctx, patientID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest document analysis: %w", err)
	}
	return d, nil
}

// answerChat fills the assistant placeholder named by task.EntityID. The
// user message is task.RelatedID. Generator failures become the apology
// text; only store failures are returned.
func (r *Runner) answerChat(ctx context.Context, task queue.Task) error {
	assistant, err := r.store.GetChatMessage(ctx, task.EntityID)
	if err != nil {
		return err
	}
	if task.RelatedID == nil {
		return fmt.Errorf("chat task %s has no user message", task.ID)
	}
	user, err := r.store.GetChatMessage(ctx, *task.RelatedID)
	if err != nil {
		return err
	}

	var patient *models.Patient
	if user.PatientID != nil {
		patient, err = r.store.GetPatient(ctx, *user.PatientID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load patient: %w", err)
		}
	}

	reply, err := r.ai.Generate(ctx, models.GenerateRequest{
		Kind:     models.JobChat,
		System:   chatSystem(patient),
		Messages: userMessage(user.Content),
	})
	if err != nil {
		slog.Error("chat generation failed", "message_id", assistant.ID, "provider", r.ai.Name(), "error", err)
		reply = chatApology
	}
	if err := r.store.UpdateAssistantMessage(ctx, assistant.ID, reply); err != nil {
		return fmt.Errorf("save chat reply: %w", err)
	}
	return nil
}
