package models

// The submission form is presented as three sequential steps. Error targeting
// (SubmissionError.TargetStep) relies on this registry, so it must cover every
// field the form can carry.
const (
	StepVehicle = 1
	StepDetails = 2
	StepExtras  = 3
)

var fieldSteps = map[string]int{
	FieldMake:         StepVehicle,
	FieldModel:        StepVehicle,
	FieldYear:         StepVehicle,
	FieldBodyStyle:    StepVehicle,
	FieldMileage:      StepVehicle,
	FieldTransmission: StepVehicle,
	FieldFuelType:     StepVehicle,

	FieldTitle:         StepDetails,
	FieldDescription:   StepDetails,
	FieldPrice:         StepDetails,
	FieldCurrencyCode:  StepDetails,
	FieldCondition:     StepDetails,
	FieldListingType:   StepDetails,
	FieldMinRentalDays: StepDetails,
	FieldCity:          StepDetails,
	FieldCountryCode:   StepDetails,
	FieldPhone:         StepDetails,

	FieldImages:         StepExtras,
	FieldAddonHighlight: StepExtras,
	FieldAddonFeatured:  StepExtras,
	FieldAddonTopSearch: StepExtras,
	FieldAutoRenew:      StepExtras,
}

// StepForField returns the form step owning a field, or 0 for unknown fields.
func StepForField(name string) int {
	return fieldSteps[name]
}

// FieldsForStep returns the fields belonging to a step.
func FieldsForStep(step int) []string {
	var out []string
	for f, s := range fieldSteps {
		if s == step {
			out = append(out, f)
		}
	}
	return out
}
