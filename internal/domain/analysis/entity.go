package analysis

import "github.com/bryanwahyu/cowhealth/internal/domain/ai"

// NoDiseaseSentinel is the exact health value meaning no disease is suspected.
const NoDiseaseSentinel = "No visible disease signs"

// TreatmentFallback replaces the treatment suggestions when enrichment fails.
const TreatmentFallback = "Failed to retrieve treatment suggestions."

// Request is one image analysis submitted by a caller.
type Request struct {
	Image       ai.Image
	Instruction string
}

// Assessment is the base answer of the initial analysis.
type Assessment struct {
	CowPresent bool   `json:"cowPresent"`
	Breed      string `json:"breed"`
	Color      string `json:"color"`
	Health     string `json:"health"`
}

// DiseaseSuspected reports whether the assessment calls for enrichment.
func (a Assessment) DiseaseSuspected() bool {
	return a.CowPresent && a.Health != NoDiseaseSentinel
}

// TreatmentAdvice is free-text treatment guidance.
type TreatmentAdvice struct {
	Suggestions string `json:"treatmentSuggestions"`
}

// ConditionTreatment pairs a suspected condition with a medicine.
type ConditionTreatment struct {
	ConditionName string `json:"diseaseName"`
	MedicineName  string `json:"medicineName"`
	ReferenceLink string `json:"medicineLink"`
}

// Result is the assessment plus optional enrichment.
type Result struct {
	Assessment
	TreatmentSuggestions *string              `json:"treatmentSuggestions,omitempty"`
	DiseaseDetails       []ConditionTreatment `json:"diseaseDetails"`
}

// NewResult builds a result with no enrichment.
func NewResult(a Assessment) *Result {
	return &Result{Assessment: a, DiseaseDetails: []ConditionTreatment{}}
}

// Enriched reports whether treatment suggestions were attached.
func (r *Result) Enriched() bool { return r.TreatmentSuggestions != nil }

// FellBack reports whether enrichment was attempted and failed.
func (r *Result) FellBack() bool {
	return r.TreatmentSuggestions != nil && *r.TreatmentSuggestions == TreatmentFallback
}
