package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/atef1995/sayarat-sub000/internal/models"
)

// The catalogue starts at model year 1992; anything newer than next year's
// models is rejected locally before the catalogue lookup would.
const minModelYear = 1992

var (
	phoneRe    = regexp.MustCompile(`^\+?[0-9][0-9 \-]{6,17}$`)
	currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)
)

var requiredFields = []string{
	models.FieldMake,
	models.FieldModel,
	models.FieldYear,
	models.FieldMileage,
	models.FieldTitle,
	models.FieldPrice,
	models.FieldListingType,
	models.FieldCity,
	models.FieldCountryCode,
}

var listingTypes = map[string]bool{"sale": true, models.ListingTypeRental: true}
var conditions = map[string]bool{"new": true, "used": true, "certified": true}

// ValidateLocal runs the synchronous shape/range/format rules plus cross-field
// consistency over a draft snapshot. It is pure: no I/O, no ambient state
// beyond the current clock year.
func ValidateLocal(snap models.DraftSnapshot) models.ValidationOutcome {
	outcome := models.NewValidationOutcome()

	for _, name := range requiredFields {
		if _, ok := snap.Fields[name]; !ok {
			outcome.Fail(name, "required")
		}
	}

	if year, ok := snap.NumberField(models.FieldYear); ok {
		maxYear := time.Now().Year() + 1
		if year != float64(int(year)) || int(year) < minModelYear || int(year) > maxYear {
			outcome.Fail(models.FieldYear, fmt.Sprintf("must be a model year between %d and %d", minModelYear, maxYear))
		}
	} else if _, present := snap.Fields[models.FieldYear]; present {
		outcome.Fail(models.FieldYear, "must be a number")
	}

	if price, ok := snap.NumberField(models.FieldPrice); ok {
		if price <= 0 {
			outcome.Fail(models.FieldPrice, "must be greater than zero")
		}
	} else if _, present := snap.Fields[models.FieldPrice]; present {
		outcome.Fail(models.FieldPrice, "must be a number")
	}

	if mileage, ok := snap.NumberField(models.FieldMileage); ok {
		if mileage < 0 {
			outcome.Fail(models.FieldMileage, "cannot be negative")
		}
	} else if _, present := snap.Fields[models.FieldMileage]; present {
		outcome.Fail(models.FieldMileage, "must be a number")
	}

	if title := snap.StringField(models.FieldTitle); title != "" {
		if l := len(strings.TrimSpace(title)); l < 5 || l > 120 {
			outcome.Fail(models.FieldTitle, "must be between 5 and 120 characters")
		}
	}

	if phone := snap.StringField(models.FieldPhone); phone != "" && !phoneRe.MatchString(phone) {
		outcome.Fail(models.FieldPhone, "not a valid phone number")
	}

	if cc := snap.StringField(models.FieldCurrencyCode); cc != "" && !currencyRe.MatchString(cc) {
		outcome.Fail(models.FieldCurrencyCode, "must be a 3-letter ISO code")
	}

	if cond := snap.StringField(models.FieldCondition); cond != "" && !conditions[cond] {
		outcome.Fail(models.FieldCondition, "must be one of: new, used, certified")
	}

	listingType := snap.StringField(models.FieldListingType)
	if listingType != "" && !listingTypes[listingType] {
		outcome.Fail(models.FieldListingType, "must be one of: sale, rental")
	}

	// Cross-field: a rental listing must state its minimum rental period.
	if listingType == models.ListingTypeRental {
		days, ok := snap.NumberField(models.FieldMinRentalDays)
		if !ok {
			outcome.Fail(models.FieldMinRentalDays, "required for rental listings")
		} else if days < 1 || days > 90 {
			outcome.Fail(models.FieldMinRentalDays, "must be between 1 and 90 days")
		}
	}

	// Mark everything the draft carries and no rule rejected as passing, so
	// callers get a complete per-field picture.
	for name := range snap.Fields {
		outcome.Pass(name)
	}
	for _, name := range requiredFields {
		outcome.Pass(name)
	}

	return outcome
}
