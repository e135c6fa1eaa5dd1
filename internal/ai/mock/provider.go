// Package mock provides deterministic AI providers. The default provider
// answers every job kind with fixed placeholder content so the whole pipeline
// runs without an external model.
package mock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

// MockProvider satisfies models.AIProvider for testing and offline use.
type MockProvider struct {
	Name_        string
	GenerateFunc func(ctx context.Context, req models.GenerateRequest) (string, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return "", nil
}

// NewMockProvider returns a MockProvider with placeholder content per job kind.
func NewMockProvider() *MockProvider {
	return &MockProvider{Name_: "mock", GenerateFunc: placeholder}
}

func placeholder(_ context.Context, req models.GenerateRequest) (string, error) {
	switch req.Kind {
	case models.JobImageAnalysis:
		return fmt.Sprintf("AI Analysis for %s: Mock analysis result", req.Attributes["image_type"]), nil
	case models.JobDocumentAnalysis:
		return fmt.Sprintf("AI Analysis for %s: Mock document analysis", req.Attributes["file_name"]), nil
	case models.JobClinicalReport:
		return clinicalReport(req.Attributes["patient_name"])
	case models.JobSNLPrescription:
		return SNLPrescription, nil
	case models.JobKnowledgeReference:
		return KnowledgeReferences, nil
	case models.JobChat:
		return ChatReply(req.LastUserMessage()), nil
	default:
		return "", fmt.Errorf("mock provider: no placeholder for kind %q", req.Kind)
	}
}

func clinicalReport(patientName string) (string, error) {
	overview := "Mock patient overview"
	if patientName != "" {
		overview += " for " + patientName
	}
	content := models.ClinicalReportContent{
		PatientOverview:        overview,
		KeyClinicalFindings:    []string{"Mock finding 1", "Mock finding 2"},
		CurrentHealthStatus:    "Mock health status",
		FollowUpRecommendation: "2 weeks for reassessment",
		PrimaryDoshaImbalance:  json.RawMessage(`{"title":"Mock Dosha Imbalance"}`),
		DiagnosticSummary:      json.RawMessage(`{"dosha":"V:30% P:50% K:20%"}`),
	}
	out, err := json.Marshal(content)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until the context is done.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		GenerateFunc: func(ctx context.Context, _ models.GenerateRequest) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
}

var _ models.AIProvider = (*MockProvider)(nil)
