package jobs

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

const (
	chatSystemPrompt = "You are an expert Ayurvedic healthcare assistant named AyuPilot. " +
		"You provide helpful, accurate information about Ayurvedic medicine, treatments, " +
		"and wellness practices. Always be professional, compassionate, and evidence-based in your responses."

	// chatApology replaces the placeholder when the generator fails.
	chatApology = "I apologize, but I'm currently unable to process your request due to a technical issue. " +
		"Please try again in a moment."

	imageSystemPrompt = "You are an Ayurvedic diagnostician assisting a physician. " +
		"Describe the visible signs in the patient image and what they suggest about dosha balance, " +
		"agni and ama. Be concise and flag anything that needs in-person examination."

	documentSystemPrompt = "You are an Ayurvedic physician's assistant reviewing an uploaded medical document. " +
		"Summarise the key values and findings, highlight abnormal results, and relate them to dosha imbalance."

	reportSystemPrompt = "You are an Ayurvedic clinical intelligence engine. Reply with a single JSON object " +
		"and nothing else, using the keys patient_overview (string), key_clinical_findings (array of strings), " +
		"current_health_status (string), follow_up_recommendation (string), and optionally " +
		"primary_dosha_imbalance, impacted_srotas, suggested_condition, prakriti_assessment, " +
		"vikriti_assessment, diagnostic_summary and recommended_actions as JSON objects."

	snlSystemPrompt = "You are an Ayurvedic physician writing a Supplements, Nutrition and Lifestyle (SNL) prescription. " +
		"Use the headings **SUPPLEMENTS & FORMULATIONS:**, **NUTRITION PLAN:** and **LIFESTYLE RECOMMENDATIONS:**."

	knowledgeSystemPrompt = "You are an Ayurvedic research librarian. List classical text references " +
		"under **CLASSICAL REFERENCES:** and modern studies under **CLINICAL STUDIES:** relevant to the patient."

	reportSummaryHeading = "\n**REPORT SUMMARY (from uploaded document):**\n"

	// maxDocumentContext bounds the extracted document text sent to the model.
	maxDocumentContext = 8000
)

// patientContext renders the patient block used in generation prompts.
func patientContext(p *models.Patient) string {
	var b strings.Builder
	b.WriteString(p.ContextSummary())
	fmt.Fprintf(&b, "\nDosha (prakriti): %s (V:%d%% P:%d%% K:%d%%)",
		p.Dosha(), p.Prakriti.Vata, p.Prakriti.Pitta, p.Prakriti.Kapha)
	fmt.Fprintf(&b, "\nVikriti: V:%d%% P:%d%% K:%d%%", p.Vikriti.Vata, p.Vikriti.Pitta, p.Vikriti.Kapha)
	for _, f := range []struct{ label, value string }{
		{"Medical History", p.MedicalHistory},
		{"Family History", p.FamilyHistory},
		{"Surgical History", p.SurgicalHistory},
		{"Agni", p.AgniStatus},
		{"Ama", p.AmaLevel},
		{"Ojas", p.OjasLevel},
		{"Dhatu", p.DhatuStatus},
	} {
		if f.value != "" {
			fmt.Fprintf(&b, "\n%s: %s", f.label, f.value)
		}
	}
	return b.String()
}

func imagePrompt(a *models.ImageAnalysis, p *models.Patient) string {
	return fmt.Sprintf("%s\n\nAnalyse the attached %s image.", patientContext(p), strings.ToLower(string(a.ImageType)))
}

func documentPrompt(d *models.DocumentAnalysis, p *models.Patient, text string) string {
	var b strings.Builder
	b.WriteString(patientContext(p))
	fmt.Fprintf(&b, "\n\nDocument: %s (%s)", d.FileName, d.DocumentType)
	if text != "" {
		b.WriteString("\n\nExtracted text:\n")
		b.WriteString(truncateRunes(text, maxDocumentContext))
	}
	return b.String()
}

func reportPrompt(p *models.Patient, latestDoc *models.DocumentAnalysis) string {
	var b strings.Builder
	b.WriteString(patientContext(p))
	if latestDoc != nil && latestDoc.AnalysisResult != nil {
		b.WriteString("\n\nLatest document analysis:\n")
		b.WriteString(*latestDoc.AnalysisResult)
	}
	b.WriteString("\n\nProduce the clinical report JSON.")
	return b.String()
}

func snlPrompt(p *models.Patient) string {
	return patientContext(p) + "\n\nWrite the SNL prescription."
}

func knowledgePrompt(p *models.Patient) string {
	return patientContext(p) + "\n\nList supporting references."
}

// chatSystem appends the patient block to the assistant preamble.
func chatSystem(p *models.Patient) string {
	if p == nil {
		return chatSystemPrompt
	}
	return chatSystemPrompt + "\n\nPatient Context:\n" + p.ContextSummary()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
