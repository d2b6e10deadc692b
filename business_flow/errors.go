// Package businessflow contains the signup wizard: its state machine, validation,
// session persistence and the flows the HTTP layer drives.
package businessflow

import (
	"errors"
	"fmt"
	"strings"
)

// Business flow error constants
var (
	// Wizard navigation errors
	ErrWrongStep             = errors.New("action not allowed at the current step")
	ErrNoPreviousStep        = errors.New("already at the first step")
	ErrWizardCompleted       = errors.New("form is locked after a successful submission")
	ErrSubmissionInProgress  = errors.New("a submission is already in flight")
	ErrPhotoRequired         = errors.New("a profile photo is required")
	ErrCardNotSelected       = errors.New("no card design selected")
	ErrCardIndexOutOfRange   = errors.New("card index out of range")
	ErrCatalogEmpty          = errors.New("card catalog is empty")
	ErrNoSubmissionResult    = errors.New("no membership has been created yet")
	ErrSessionNotFound       = errors.New("wizard session not found")
	ErrCameraNotOpen         = errors.New("camera is not open")
	ErrMembershipRepoMissing = errors.New("membership records are not enabled")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationReason classifies a rejected field.
type ValidationReason string

const (
	ReasonRequired      ValidationReason = "Required"
	ReasonUnderage      ValidationReason = "Underage"
	ReasonInvalidFormat ValidationReason = "InvalidFormat"
)

// ValidationError is one user-correctable problem with one field.
type ValidationError struct {
	Field   string           `json:"field"`
	Reason  ValidationReason `json:"reason"`
	Message string           `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationErrors carries every violation found in one pass.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Messages lists the user-facing messages in field order.
func (v ValidationErrors) Messages() []string {
	out := make([]string, 0, len(v))
	for _, e := range v {
		out = append(out, e.Message)
	}
	return out
}

// Has reports whether field failed for reason.
func (v ValidationErrors) Has(field string, reason ValidationReason) bool {
	for _, e := range v {
		if e.Field == field && e.Reason == reason {
			return true
		}
	}
	return false
}

// AsValidationErrors extracts the violation list from err.
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var v ValidationErrors
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

func IsValidationError(err error) bool {
	_, ok := AsValidationErrors(err)
	return ok
}

func IsWrongStep(err error) bool {
	return errors.Is(err, ErrWrongStep)
}

func IsNoPreviousStep(err error) bool {
	return errors.Is(err, ErrNoPreviousStep)
}

func IsWizardCompleted(err error) bool {
	return errors.Is(err, ErrWizardCompleted)
}

func IsSubmissionInProgress(err error) bool {
	return errors.Is(err, ErrSubmissionInProgress)
}

func IsSessionNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

func IsNoSubmissionResult(err error) bool {
	return errors.Is(err, ErrNoSubmissionResult)
}
