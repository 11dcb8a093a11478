package models

// Field names used by the submission form. The wire format keys match these
// 1:1 so a snapshot can be posted to the marketplace API without renaming.
const (
	// Step 1 — vehicle
	FieldMake         = "make"
	FieldModel        = "model"
	FieldYear         = "year"
	FieldBodyStyle    = "body_style"
	FieldMileage      = "mileage"
	FieldTransmission = "transmission"
	FieldFuelType     = "fuel_type"

	// Step 2 — details & price
	FieldTitle         = "title"
	FieldDescription   = "description"
	FieldPrice         = "price"
	FieldCurrencyCode  = "currency_code"
	FieldCondition     = "condition"
	FieldListingType   = "listing_type"
	FieldMinRentalDays = "min_rental_days"
	FieldCity          = "city"
	FieldCountryCode   = "country_code"
	FieldPhone         = "phone"

	// Step 3 — extras & add-ons
	FieldImages         = "images"
	FieldAddonHighlight = "addon_highlight"
	FieldAddonFeatured  = "addon_featured"
	FieldAddonTopSearch = "addon_top_search"
	FieldAutoRenew      = "auto_renew"
)

// ListingTypeRental is the listing_type value that makes min_rental_days mandatory.
const ListingTypeRental = "rental"

// PaidAddonFields lists the boolean draft fields that carry a charge when set.
var PaidAddonFields = []string{
	FieldAddonHighlight,
	FieldAddonFeatured,
	FieldAddonTopSearch,
}

// DraftSnapshot is an immutable copy of the draft taken by the store for
// validation and submission. Fields is a fresh map on every snapshot; callers
// may read it freely but must not hand it back to the store.
type DraftSnapshot struct {
	Fields     map[string]interface{} `json:"fields"`
	IsEditing  bool                   `json:"is_editing"`
	ListingID  string                 `json:"listing_id,omitempty"`
	Generation uint64                 `json:"generation"`
}

// Field returns the raw value of a field, or nil when unset.
func (s DraftSnapshot) Field(name string) interface{} {
	return s.Fields[name]
}

// StringField returns a field coerced to string. Unset or non-string values
// yield the empty string.
func (s DraftSnapshot) StringField(name string) string {
	v, _ := s.Fields[name].(string)
	return v
}

// BoolField returns a field coerced to bool.
func (s DraftSnapshot) BoolField(name string) bool {
	v, _ := s.Fields[name].(bool)
	return v
}

// NumberField returns a numeric field as float64 with an ok flag. JSON decoding
// produces float64, but int values set directly in Go are accepted too.
func (s DraftSnapshot) NumberField(name string) (float64, bool) {
	switch v := s.Fields[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
