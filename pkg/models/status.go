package models

// AnalysisStatus is the lifecycle state of an image or document analysis.
type AnalysisStatus string

const (
	AnalysisPending   AnalysisStatus = "PENDING"
	AnalysisAnalyzing AnalysisStatus = "ANALYZING"
	AnalysisCompleted AnalysisStatus = "COMPLETED"
	AnalysisFailed    AnalysisStatus = "FAILED"
)

func (s AnalysisStatus) Valid() bool {
	switch s {
	case AnalysisPending, AnalysisAnalyzing, AnalysisCompleted, AnalysisFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether an analysis may move from s to next.
//
//	PENDING | ANALYZING | FAILED -> ANALYZING (first run, retry, duplicate dispatch)
//	ANALYZING -> COMPLETED
//	PENDING | ANALYZING -> FAILED
//
// COMPLETED is final.
func (s AnalysisStatus) CanTransitionTo(next AnalysisStatus) bool {
	switch next {
	case AnalysisAnalyzing:
		return s == AnalysisPending || s == AnalysisAnalyzing || s == AnalysisFailed
	case AnalysisCompleted:
		return s == AnalysisAnalyzing
	case AnalysisFailed:
		return s == AnalysisPending || s == AnalysisAnalyzing
	default:
		return false
	}
}

func (s AnalysisStatus) Terminal() bool {
	return s == AnalysisCompleted || s == AnalysisFailed
}

// GenerationStatus is the lifecycle state of a generated clinical artefact.
type GenerationStatus string

const (
	GenerationGenerating GenerationStatus = "GENERATING"
	GenerationCompleted  GenerationStatus = "COMPLETED"
	GenerationFailed     GenerationStatus = "FAILED"
)

func (s GenerationStatus) Valid() bool {
	switch s {
	case GenerationGenerating, GenerationCompleted, GenerationFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a generation may move from s to next.
//
//	GENERATING | FAILED -> GENERATING
//	GENERATING -> COMPLETED | FAILED
func (s GenerationStatus) CanTransitionTo(next GenerationStatus) bool {
	switch next {
	case GenerationGenerating:
		return s == GenerationGenerating || s == GenerationFailed
	case GenerationCompleted, GenerationFailed:
		return s == GenerationGenerating
	default:
		return false
	}
}

func (s GenerationStatus) Terminal() bool {
	return s == GenerationCompleted || s == GenerationFailed
}

// AppointmentStatus is the lifecycle state of an appointment. Every
// transition leaves SCHEDULED and none returns to it.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "SCHEDULED"
	AppointmentCompleted AppointmentStatus = "COMPLETED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
	AppointmentNoShow    AppointmentStatus = "NO_SHOW"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentScheduled, AppointmentCompleted, AppointmentCancelled, AppointmentNoShow:
		return true
	default:
		return false
	}
}

func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	if s != AppointmentScheduled {
		return false
	}
	switch next {
	case AppointmentCompleted, AppointmentCancelled, AppointmentNoShow:
		return true
	default:
		return false
	}
}

// PatientStatus marks a patient record as active, inactive or awaiting review.
type PatientStatus string

const (
	PatientActive   PatientStatus = "ACTIVE"
	PatientInactive PatientStatus = "INACTIVE"
	PatientReview   PatientStatus = "REVIEW"
)

func (s PatientStatus) Valid() bool {
	switch s {
	case PatientActive, PatientInactive, PatientReview:
		return true
	default:
		return false
	}
}

type ChatRole string

const (
	ChatRoleUser      ChatRole = "USER"
	ChatRoleAssistant ChatRole = "ASSISTANT"
)

func (r ChatRole) Valid() bool {
	return r == ChatRoleUser || r == ChatRoleAssistant
}
