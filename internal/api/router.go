package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kiranshivaraju/ayupilot/internal/api/handler"
	mw "github.com/kiranshivaraju/ayupilot/internal/api/middleware"
	"github.com/kiranshivaraju/ayupilot/internal/api/response"
	"github.com/kiranshivaraju/ayupilot/internal/metrics"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
// Handler groups are required; a nil HandlerFunc answers 501.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit
	Metrics   *metrics.Metrics

	HealthHandler http.HandlerFunc

	Patients     *handler.Patients
	Appointments *handler.Appointments
	Uploads      *handler.Uploads
	Chat         *handler.Chat
	Keys         *handler.Keys

	ImageAnalyses       *handler.Records[*models.ImageAnalysis]
	DocumentAnalyses    *handler.Records[*models.DocumentAnalysis]
	ClinicalReports     *handler.Records[*models.ClinicalReport]
	SNLPrescriptions    *handler.Records[*models.SNLPrescription]
	KnowledgeReferences *handler.Records[*models.KnowledgeReference]

	GenerateReport    http.HandlerFunc
	GenerateSNL       http.HandlerFunc
	GenerateKnowledge http.HandlerFunc
	JobStatusHandler  http.HandlerFunc
	DashboardHandler  http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics(deps.Metrics))

	// Public routes
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	// Protected routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Route("/patients", func(r chi.Router) {
			p := deps.Patients
			r.Get("/", p.List)
			r.Post("/", p.Create)
			r.Get("/recent", p.Recent)
			r.Get("/{patientID}", p.Get)
			r.Patch("/{patientID}", p.Update)
			r.Delete("/{patientID}", p.Delete)
		})

		r.Route("/appointments", func(r chi.Router) {
			a := deps.Appointments
			r.Get("/", a.List)
			r.Post("/", a.Create)
			r.Get("/today", a.Today)
			r.Get("/{appointmentID}", a.Get)
			r.Patch("/{appointmentID}", a.Update)
			r.Delete("/{appointmentID}", a.Delete)
			r.Post("/{appointmentID}/complete", a.Complete)
			r.Post("/{appointmentID}/cancel", a.Cancel)
			r.Post("/{appointmentID}/reschedule", a.Reschedule)
		})

		u := deps.Uploads
		r.Post("/upload/image", u.Image)
		r.Post("/upload/document", u.Document)

		mountRecords(r, "/image-analyses", deps.ImageAnalyses)
		mountRecords(r, "/document-analyses", deps.DocumentAnalyses)
		mountRecords(r, "/clinical-reports", deps.ClinicalReports)
		mountRecords(r, "/snl-prescriptions", deps.SNLPrescriptions)
		mountRecords(r, "/knowledge-references", deps.KnowledgeReferences)

		r.Post("/generate/clinical-report", orNotImplemented(deps.GenerateReport))
		r.Post("/generate/snl-prescription", orNotImplemented(deps.GenerateSNL))
		r.Post("/generate/knowledge-references", orNotImplemented(deps.GenerateKnowledge))

		r.Get("/jobs/{kind}/{id}", orNotImplemented(deps.JobStatusHandler))

		c := deps.Chat
		r.Post("/chat", c.Ask)
		r.Get("/chat-messages", c.History)

		r.Get("/dashboard/stats", orNotImplemented(deps.DashboardHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			k := deps.Keys
			r.Post("/admin/keys", k.Create)
			r.Get("/admin/keys", k.List)
			r.Delete("/admin/keys/{keyID}", k.Revoke)
		})
	})

	return r
}

func mountRecords[T any](r chi.Router, path string, h *handler.Records[T]) {
	r.Route(path, func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Delete)
	})
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
