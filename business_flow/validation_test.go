package businessflow

import (
	"fmt"
	"testing"
	"time"

	"github.com/amirphl/kartu-tanda-boga/models"
	testingutil "github.com/amirphl/kartu-tanda-boga/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func validDetails() models.FormValues {
	return models.FormValues{
		Name:     "Budi Santoso",
		Phone:    "081234567890",
		Email:    "budi@example.com",
		Birthday: "1990-03-15",
	}
}

func TestValidateDetailsCollectsEveryViolation(t *testing.T) {
	v := NewDetailsValidator(fixedClock)

	err := v.ValidateDetails(models.FormValues{
		Name:     "",
		Birthday: "2015-01-01",
		Phone:    "812345",
		Email:    "bad",
	})

	violations, ok := AsValidationErrors(err)
	require.True(t, ok, "expected ValidationErrors, got %v", err)
	assert.GreaterOrEqual(t, len(violations), 4)
	assert.True(t, violations.Has("name", ReasonRequired))
	assert.True(t, violations.Has("birthday", ReasonUnderage))
	assert.True(t, violations.Has("phone", ReasonInvalidFormat))
	assert.True(t, violations.Has("email", ReasonInvalidFormat))
	assert.Equal(t, []string{
		"Nama harus diisi",
		"Umur minimal 13 tahun",
		"Nomor telepon harus dimulai dengan 0",
		"Format email tidak valid",
	}, violations.Messages())
}

func TestValidateDetailsRequired(t *testing.T) {
	v := NewDetailsValidator(fixedClock)

	err := v.ValidateDetails(models.FormValues{Name: "   ", Phone: "", Email: " ", Birthday: ""})

	violations, ok := AsValidationErrors(err)
	require.True(t, ok)
	require.Len(t, violations, 4)
	for _, field := range []string{"name", "birthday", "phone", "email"} {
		assert.True(t, violations.Has(field, ReasonRequired), field)
	}
	assert.Equal(t, []string{
		"Nama harus diisi",
		"Tanggal lahir harus diisi",
		"Nomor telepon harus diisi",
		"Email harus diisi",
	}, violations.Messages())
}

func TestValidateDetailsAccepts(t *testing.T) {
	v := NewDetailsValidator(fixedClock)
	assert.NoError(t, v.ValidateDetails(validDetails()))
}

func TestValidateDetailsAge(t *testing.T) {
	v := NewDetailsValidator(fixedClock)

	for age := 0; age <= 40; age++ {
		t.Run(fmt.Sprintf("age %d", age), func(t *testing.T) {
			values := validDetails()
			values.Birthday = testingutil.BirthdayForAge(fixedNow, age)

			err := v.ValidateDetails(values)
			if age < MinimumAge {
				violations, ok := AsValidationErrors(err)
				require.True(t, ok)
				assert.True(t, violations.Has("birthday", ReasonUnderage))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateDetailsBirthdayBoundary(t *testing.T) {
	v := NewDetailsValidator(fixedClock)

	tests := []struct {
		name     string
		birthday string
		underage bool
	}{
		{name: "thirteenth birthday today", birthday: "2012-06-01", underage: false},
		{name: "thirteenth birthday tomorrow", birthday: "2012-06-02", underage: true},
		{name: "thirteenth birthday next month", birthday: "2012-07-01", underage: true},
		{name: "thirteenth birthday last month", birthday: "2012-05-31", underage: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := validDetails()
			values.Birthday = tt.birthday
			err := v.ValidateDetails(values)
			if tt.underage {
				violations, ok := AsValidationErrors(err)
				require.True(t, ok)
				assert.True(t, violations.Has("birthday", ReasonUnderage))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateDetailsBirthdayFormat(t *testing.T) {
	v := NewDetailsValidator(fixedClock)

	for _, birthday := range []string{"15-03-1990", "1990/03/15", "not a date", "1990-02-30"} {
		values := validDetails()
		values.Birthday = birthday

		violations, ok := AsValidationErrors(v.ValidateDetails(values))
		require.True(t, ok, birthday)
		assert.True(t, violations.Has("birthday", ReasonInvalidFormat), birthday)
		assert.False(t, violations.Has("birthday", ReasonUnderage), birthday)
	}
}

func TestValidateDetailsPhone(t *testing.T) {
	v := NewDetailsValidator(fixedClock)

	tests := []struct {
		phone  string
		reason ValidationReason
	}{
		{phone: "0", reason: ""},
		{phone: "08", reason: ""},
		{phone: "081234567890", reason: ""},
		{phone: "0abc", reason: ""},
		{phone: "812345", reason: ReasonInvalidFormat},
		{phone: "+6281234567890", reason: ReasonInvalidFormat},
		{phone: "62812", reason: ReasonInvalidFormat},
		{phone: "", reason: ReasonRequired},
	}

	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			values := validDetails()
			values.Phone = tt.phone
			err := v.ValidateDetails(values)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			violations, ok := AsValidationErrors(err)
			require.True(t, ok)
			assert.True(t, violations.Has("phone", tt.reason))
		})
	}
}

func TestValidateDetailsEmail(t *testing.T) {
	v := NewDetailsValidator(fixedClock)

	tests := []struct {
		email string
		valid bool
	}{
		{email: "a@b.co", valid: true},
		{email: "first.last@sub.example.id", valid: true},
		{email: "bad", valid: false},
		{email: "a@b", valid: false},
		{email: "@b.co", valid: false},
		{email: "a b@c.d", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			values := validDetails()
			values.Email = tt.email
			err := v.ValidateDetails(values)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			violations, ok := AsValidationErrors(err)
			require.True(t, ok)
			assert.True(t, violations.Has("email", ReasonInvalidFormat))
		})
	}
}

func TestValidatePhoto(t *testing.T) {
	violations, ok := AsValidationErrors(ValidatePhoto(models.FormValues{}))
	require.True(t, ok)
	assert.Equal(t, []string{"Foto harus diambil"}, violations.Messages())
	assert.True(t, violations.Has("photoFile", ReasonRequired))

	assert.NoError(t, ValidatePhoto(models.FormValues{PhotoFile: testingutil.SamplePhoto()}))
}
