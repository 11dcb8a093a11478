package validation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atef1995/sayarat-sub000/internal/models"
)

func validDraftFields() map[string]interface{} {
	return map[string]interface{}{
		models.FieldMake:        "Toyota",
		models.FieldModel:       "Camry",
		models.FieldYear:        2021,
		models.FieldMileage:     42000,
		models.FieldTitle:       "2021 Toyota Camry SE",
		models.FieldPrice:       18500.0,
		models.FieldListingType: "sale",
		models.FieldCity:        "Austin",
		models.FieldCountryCode: "US",
	}
}

func snapshotOf(fields map[string]interface{}, gen uint64) models.DraftSnapshot {
	return models.DraftSnapshot{Fields: fields, Generation: gen}
}

func TestValidateLocal_ValidDraft(t *testing.T) {
	outcome := ValidateLocal(snapshotOf(validDraftFields(), 1))
	assert.True(t, outcome.OverallValid)
	for name, res := range outcome.Fields {
		assert.True(t, res.Valid, "field %s unexpectedly invalid: %s", name, res.Reason)
	}
}

func TestValidateLocal_MissingRequiredFields(t *testing.T) {
	outcome := ValidateLocal(snapshotOf(map[string]interface{}{}, 1))
	assert.False(t, outcome.OverallValid)
	assert.False(t, outcome.Fields[models.FieldMake].Valid)
	assert.Equal(t, "required", outcome.Fields[models.FieldMake].Reason)
}

func TestValidateLocal_YearRange(t *testing.T) {
	fields := validDraftFields()
	fields[models.FieldYear] = 1985
	outcome := ValidateLocal(snapshotOf(fields, 1))
	assert.False(t, outcome.Fields[models.FieldYear].Valid)

	fields[models.FieldYear] = time.Now().Year() + 5
	outcome = ValidateLocal(snapshotOf(fields, 2))
	assert.False(t, outcome.Fields[models.FieldYear].Valid)
}

func TestValidateLocal_RentalRequiresMinPeriod(t *testing.T) {
	fields := validDraftFields()
	fields[models.FieldListingType] = models.ListingTypeRental
	outcome := ValidateLocal(snapshotOf(fields, 1))
	assert.False(t, outcome.OverallValid)
	assert.Equal(t, "required for rental listings", outcome.Fields[models.FieldMinRentalDays].Reason)

	fields[models.FieldMinRentalDays] = 7
	outcome = ValidateLocal(snapshotOf(fields, 2))
	assert.True(t, outcome.OverallValid)

	// The same field is not required for sale listings.
	fields[models.FieldListingType] = "sale"
	delete(fields, models.FieldMinRentalDays)
	outcome = ValidateLocal(snapshotOf(fields, 3))
	assert.True(t, outcome.OverallValid)
}

func TestValidateLocal_FormatRules(t *testing.T) {
	fields := validDraftFields()
	fields[models.FieldPhone] = "not-a-phone"
	fields[models.FieldCurrencyCode] = "usd"
	fields[models.FieldPrice] = -5.0
	outcome := ValidateLocal(snapshotOf(fields, 1))
	assert.False(t, outcome.Fields[models.FieldPhone].Valid)
	assert.False(t, outcome.Fields[models.FieldCurrencyCode].Valid)
	assert.False(t, outcome.Fields[models.FieldPrice].Valid)
}

// fakeRemote records ValidateStep calls and serves canned outcomes.
type fakeRemote struct {
	mu    sync.Mutex
	calls []map[string]interface{}
	err   error
	fail  map[string]string // field -> reason
}

func (f *fakeRemote) ValidateStep(ctx context.Context, step int, fields map[string]interface{}) (models.ValidationOutcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fields)
	f.mu.Unlock()
	if f.err != nil {
		return models.ValidationOutcome{}, f.err
	}
	outcome := models.NewValidationOutcome()
	for name := range fields {
		if reason, ok := f.fail[name]; ok {
			outcome.Fail(name, reason)
		} else {
			outcome.Pass(name)
		}
	}
	return outcome, nil
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestScheduleRemote_CoalescesWithinWindow(t *testing.T) {
	remote := &fakeRemote{}
	svc := NewService(remote, 50*time.Millisecond)

	results := make(chan RemoteResult, 4)
	deliver := func(r RemoteResult) { results <- r }

	fields := validDraftFields()
	svc.ScheduleRemote([]string{models.FieldMake}, snapshotOf(fields, 1), deliver)
	svc.ScheduleRemote([]string{models.FieldModel}, snapshotOf(fields, 2), deliver)
	svc.ScheduleRemote([]string{models.FieldYear}, snapshotOf(fields, 3), deliver)

	select {
	case res := <-results:
		// One settled window covering all three edits, tagged with the last generation.
		assert.Equal(t, uint64(3), res.Generation)
		require.NoError(t, res.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("remote validation never settled")
	}

	assert.Equal(t, 1, remote.callCount())
	select {
	case <-results:
		t.Fatal("expected a single delivery for one settled window")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestScheduleRemote_StaleGenerationDetectable(t *testing.T) {
	remote := &fakeRemote{}
	svc := NewService(remote, 20*time.Millisecond)

	results := make(chan RemoteResult, 1)
	svc.ScheduleRemote([]string{models.FieldMake}, snapshotOf(validDraftFields(), 5), func(r RemoteResult) {
		results <- r
	})

	res := <-results
	// The user has edited twice since this window was scheduled; its result
	// must be identifiable as stale by the consumer.
	currentGeneration := uint64(7)
	assert.True(t, res.Generation < currentGeneration)
}

func TestScheduleRemote_TransportErrorIsAdvisory(t *testing.T) {
	remote := &fakeRemote{err: errors.New("connection refused")}
	svc := NewService(remote, 20*time.Millisecond)

	results := make(chan RemoteResult, 1)
	svc.ScheduleRemote([]string{models.FieldMake}, snapshotOf(validDraftFields(), 1), func(r RemoteResult) {
		results <- r
	})

	res := <-results
	assert.Error(t, res.Err)
	// Local editing continues: scheduling again still works.
	svc.ScheduleRemote([]string{models.FieldModel}, snapshotOf(validDraftFields(), 2), func(r RemoteResult) {
		results <- r
	})
	res = <-results
	assert.Equal(t, uint64(2), res.Generation)
}

func TestValidateRemote_GroupsFieldsByStep(t *testing.T) {
	remote := &fakeRemote{}
	svc := NewService(remote, 0)

	snap := snapshotOf(validDraftFields(), 1)
	_, err := svc.ValidateRemote(context.Background(), snap, []string{models.FieldMake, models.FieldPrice})
	require.NoError(t, err)

	// make is on step 1, price on step 2: two step calls.
	assert.Equal(t, 2, remote.callCount())
}

func TestValidateRemote_FieldFailureCarriesReason(t *testing.T) {
	remote := &fakeRemote{fail: map[string]string{models.FieldModel: "unknown model for make"}}
	svc := NewService(remote, 0)

	snap := snapshotOf(validDraftFields(), 1)
	outcome, err := svc.ValidateRemote(context.Background(), snap, []string{models.FieldModel})
	require.NoError(t, err)
	assert.False(t, outcome.OverallValid)
	assert.Equal(t, "unknown model for make", outcome.Fields[models.FieldModel].Reason)
}

func TestCancelPending_DropsQueuedWindow(t *testing.T) {
	remote := &fakeRemote{}
	svc := NewService(remote, 30*time.Millisecond)

	delivered := make(chan RemoteResult, 1)
	svc.ScheduleRemote([]string{models.FieldMake}, snapshotOf(validDraftFields(), 1), func(r RemoteResult) {
		delivered <- r
	})
	svc.CancelPending()

	select {
	case <-delivered:
		t.Fatal("cancelled window must not deliver")
	case <-time.After(120 * time.Millisecond):
	}
	assert.Equal(t, 0, remote.callCount())
}
