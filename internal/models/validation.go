package models

// FieldResult is the verdict for a single field within one validation pass.
type FieldResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// ValidationOutcome is the result of one local or remote validation pass.
// It is consumed and discarded per pass, never persisted.
type ValidationOutcome struct {
	Fields       map[string]FieldResult `json:"fields"`
	OverallValid bool                   `json:"overall_valid"`
}

// NewValidationOutcome returns an outcome that starts out valid.
func NewValidationOutcome() ValidationOutcome {
	return ValidationOutcome{
		Fields:       make(map[string]FieldResult),
		OverallValid: true,
	}
}

// Fail records a failing field and flips the overall verdict.
func (o *ValidationOutcome) Fail(field, reason string) {
	o.Fields[field] = FieldResult{Valid: false, Reason: reason}
	o.OverallValid = false
}

// Pass records a passing field without touching the overall verdict.
func (o *ValidationOutcome) Pass(field string) {
	if _, exists := o.Fields[field]; !exists {
		o.Fields[field] = FieldResult{Valid: true}
	}
}

// FirstInvalidField returns the failing field on the lowest-numbered step, so
// the user can be routed to the earliest problem. Empty when all valid.
func (o ValidationOutcome) FirstInvalidField() string {
	best := ""
	bestStep := 0
	for name, res := range o.Fields {
		if res.Valid {
			continue
		}
		step := StepForField(name)
		if best == "" || step < bestStep || (step == bestStep && name < best) {
			best = name
			bestStep = step
		}
	}
	return best
}

// Merge folds another outcome into this one. Failures win over passes.
func (o *ValidationOutcome) Merge(other ValidationOutcome) {
	for name, res := range other.Fields {
		if existing, ok := o.Fields[name]; ok && !existing.Valid {
			continue
		}
		o.Fields[name] = res
	}
	if !other.OverallValid {
		o.OverallValid = false
	}
}
