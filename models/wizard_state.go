// Package models contains the domain entities of the membership card signup wizard
package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/amirphl/kartu-tanda-boga/media"
)

// Step is a position in the wizard.
type Step int

const (
	StepDetails Step = iota + 1
	StepPhotoCapture
	StepCardSelection
	StepResult
)

// InitialStep is where every fresh wizard starts.
const InitialStep = StepDetails

func (s Step) Valid() bool {
	return s >= StepDetails && s <= StepResult
}

func (s Step) String() string {
	switch s {
	case StepDetails:
		return "details"
	case StepPhotoCapture:
		return "photo_capture"
	case StepCardSelection:
		return "card_selection"
	case StepResult:
		return "result"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// FormValues is the wizard's working record.
type FormValues struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Birthday string `json:"birthday"`
	// PhotoFile is replaced wholesale on every capture or upload.
	PhotoFile *media.EncodedImage `json:"photoFile"`
}

// Trimmed returns a copy with surrounding whitespace removed from the text fields.
func (v FormValues) Trimmed() FormValues {
	v.Name = strings.TrimSpace(v.Name)
	v.Phone = strings.TrimSpace(v.Phone)
	v.Email = strings.TrimSpace(v.Email)
	v.Birthday = strings.TrimSpace(v.Birthday)
	return v
}

// CardDesign is one entry of the remote card catalog.
type CardDesign struct {
	ID       int    `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	ImageURL string `json:"imageUrl" yaml:"imageUrl"`
	Tier     string `json:"tier" yaml:"tier"`
}

// Coupon is a reward attached to a new membership.
type Coupon struct {
	Image string `json:"image"`
	Name  string `json:"name"`
}

// UnmarshalJSON accepts either an object or a bare coupon name.
func (c *Coupon) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*c = Coupon{Name: name}
		return nil
	}
	type plain Coupon
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*c = Coupon(p)
	return nil
}

// SubmissionResult is the membership record confirmed by the membership API.
type SubmissionResult struct {
	Name                string   `json:"name"`
	ProfileImage        string   `json:"profileImage"`
	CardImage           string   `json:"cardImage"`
	Serial              string   `json:"serial"`
	Point               int      `json:"point"`
	TierID              int      `json:"tierId"`
	TierTitle           string   `json:"tierTitle"`
	TotalCoupons        int      `json:"totalCoupons"`
	IsEligibleForCoupon bool     `json:"isEligibleForCoupon"`
	Coupons             []Coupon `json:"coupons"`
	Email               string   `json:"email,omitempty"`
	Phone               string   `json:"phone,omitempty"`
	Birthday            string   `json:"birthday,omitempty"`
}

// WizardState is everything the wizard needs to resume.
type WizardState struct {
	CurrentStep     Step              `json:"currentStep"`
	Values          FormValues        `json:"values"`
	SelectedCardURL string            `json:"selectedCardUrl"`
	CardIndex       int               `json:"cardIndex"`
	Created         *SubmissionResult `json:"created"`
}

// NewWizardState returns the state of a wizard that has just started.
func NewWizardState() WizardState {
	return WizardState{CurrentStep: InitialStep, CardIndex: 1}
}

// Clone returns a deep enough copy for handing out snapshots: the photo is immutable
// once built and is shared, the submission result is copied.
func (s WizardState) Clone() WizardState {
	if s.Created != nil {
		created := *s.Created
		created.Coupons = append([]Coupon(nil), s.Created.Coupons...)
		s.Created = &created
	}
	return s
}
