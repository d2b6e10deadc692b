package businessflow

import (
	"errors"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/kartu-tanda-boga/models"
	"github.com/amirphl/kartu-tanda-boga/utils"
	"github.com/go-playground/validator/v10"
)

// BirthdayLayout is the wire format of FormValues.Birthday
const BirthdayLayout = "2006-01-02"

// MinimumAge is the youngest age allowed to sign up
const MinimumAge = 13

var basicEmailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// detailsInput is the Details step as the validator sees it. Field order is the order
// violations are reported in.
type detailsInput struct {
	Name     string `json:"name" validate:"notblank"`
	Birthday string `json:"birthday" validate:"notblank,birthdate,minage=13"`
	Phone    string `json:"phone" validate:"notblank,leadingzero"`
	Email    string `json:"email" validate:"notblank,basicemail"`
}

type violation struct {
	reason  ValidationReason
	message string
}

var violations = map[string]map[string]violation{
	"name": {
		"notblank": {ReasonRequired, "Nama harus diisi"},
	},
	"birthday": {
		"notblank":    {ReasonRequired, "Tanggal lahir harus diisi"},
		"birthdate": {ReasonInvalidFormat, "Format tanggal lahir tidak valid"},
		"minage":    {ReasonUnderage, "Umur minimal 13 tahun"},
	},
	"phone": {
		"notblank":      {ReasonRequired, "Nomor telepon harus diisi"},
		"leadingzero": {ReasonInvalidFormat, "Nomor telepon harus dimulai dengan 0"},
	},
	"email": {
		"notblank":     {ReasonRequired, "Email harus diisi"},
		"basicemail": {ReasonInvalidFormat, "Format email tidak valid"},
	},
}

// photoViolation is reported when leaving the photo step without a photo
var photoViolation = ValidationError{Field: "photoFile", Reason: ReasonRequired, Message: "Foto harus diambil"}

// DetailsValidator checks the Details step, collecting every violation.
type DetailsValidator struct {
	validate *validator.Validate
	now      func() time.Time
}

// NewDetailsValidator creates a validator whose "today" comes from now; nil uses the
// current time in Western Indonesia.
func NewDetailsValidator(now func() time.Time) *DetailsValidator {
	if now == nil {
		now = jakartaNow
	}
	v := &DetailsValidator{validate: validator.New(), now: now}
	v.setupCustomValidations()
	return v
}

func jakartaNow() time.Time {
	t, err := utils.JakartaNow()
	if err != nil {
		return utils.UTCNow()
	}
	return t
}

func (v *DetailsValidator) setupCustomValidations() {
	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	v.validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	v.validate.RegisterValidation("leadingzero", func(fl validator.FieldLevel) bool {
		return strings.HasPrefix(strings.TrimSpace(fl.Field().String()), "0")
	})

	v.validate.RegisterValidation("basicemail", func(fl validator.FieldLevel) bool {
		return basicEmailPattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})

	v.validate.RegisterValidation("birthdate", func(fl validator.FieldLevel) bool {
		_, err := parseBirthday(fl.Field().String())
		return err == nil
	})

	v.validate.RegisterValidation("minage", func(fl validator.FieldLevel) bool {
		minAge, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		birth, err := parseBirthday(fl.Field().String())
		if err != nil {
			// reported by the birthdate tag
			return true
		}
		return utils.AgeOn(birth, v.now()) >= minAge
	})
}

func parseBirthday(s string) (time.Time, error) {
	return time.Parse(BirthdayLayout, strings.TrimSpace(s))
}

// ValidateDetails returns nil or a ValidationErrors listing every violation.
func (v *DetailsValidator) ValidateDetails(values models.FormValues) error {
	in := detailsInput{
		Name:     values.Name,
		Birthday: values.Birthday,
		Phone:    values.Phone,
		Email:    values.Email,
	}

	err := v.validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, toValidationError(fe))
	}
	return out
}

// ValidatePhoto requires a photo on the form.
func ValidatePhoto(values models.FormValues) error {
	if values.PhotoFile == nil || values.PhotoFile.Len() == 0 {
		return ValidationErrors{photoViolation}
	}
	return nil
}

func toValidationError(fe validator.FieldError) ValidationError {
	if byTag, ok := violations[fe.Field()]; ok {
		if vi, ok := byTag[fe.Tag()]; ok {
			return ValidationError{Field: fe.Field(), Reason: vi.reason, Message: vi.message}
		}
	}
	return ValidationError{Field: fe.Field(), Reason: ReasonInvalidFormat, Message: fe.Field() + " tidak valid"}
}
