package models

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale || g == GenderOther
}

// DoshaBalance holds Vata/Pitta/Kapha percentages. A valid balance sums to 100.
type DoshaBalance struct {
	Vata  int `json:"vata"`
	Pitta int `json:"pitta"`
	Kapha int `json:"kapha"`
}

// DefaultDoshaBalance is applied when a patient is created without an assessment.
var DefaultDoshaBalance = DoshaBalance{Vata: 33, Pitta: 33, Kapha: 34}

func (b DoshaBalance) Sum() int {
	return b.Vata + b.Pitta + b.Kapha
}

// Label names the dominant dosha, or "First-Second" when the top two are
// within 10 points of each other.
func (b DoshaBalance) Label() string {
	type entry struct {
		name  string
		value int
	}
	entries := []entry{{"Vata", b.Vata}, {"Pitta", b.Pitta}, {"Kapha", b.Kapha}}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].value > entries[j].value })
	if entries[0].value-entries[1].value < 10 {
		return entries[0].name + "-" + entries[1].name
	}
	return entries[0].name
}

// Patient is a person under the care of exactly one doctor.
type Patient struct {
	ID              uuid.UUID     `json:"id"`
	DoctorID        uuid.UUID     `json:"doctor_id"`
	Name            string        `json:"name"`
	Age             int           `json:"age"`
	Gender          Gender        `json:"gender"`
	Phone           string        `json:"phone"`
	ABHANumber      string        `json:"abha_number,omitempty"`
	ChiefComplaints string        `json:"chief_complaints,omitempty"`
	MedicalHistory  string        `json:"medical_history,omitempty"`
	FamilyHistory   string        `json:"family_history,omitempty"`
	SurgicalHistory string        `json:"surgical_history,omitempty"`
	Prakriti        DoshaBalance  `json:"prakriti"`
	Vikriti         DoshaBalance  `json:"vikriti"`
	AgniStatus      string        `json:"agni_status,omitempty"`
	AmaLevel        string        `json:"ama_level,omitempty"`
	OjasLevel       string        `json:"ojas_level,omitempty"`
	DhatuStatus     string        `json:"dhatu_status,omitempty"`
	Status          PatientStatus `json:"status"`
	LastVisit       *time.Time    `json:"last_visit,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Dosha is the derived constitution label shown alongside the record.
func (p *Patient) Dosha() string {
	return p.Prakriti.Label()
}

// ContextSummary renders the patient details handed to the assistant.
func (p *Patient) ContextSummary() string {
	var b strings.Builder
	b.WriteString("Patient: " + p.Name)
	if p.Age > 0 {
		b.WriteString(", Age: ")
		b.WriteString(strconv.Itoa(p.Age))
	}
	if p.Gender != "" {
		b.WriteString(", Gender: " + string(p.Gender))
	}
	if p.ChiefComplaints != "" {
		b.WriteString("\nChief Complaints: " + p.ChiefComplaints)
	}
	return b.String()
}
