package dto

import "github.com/amirphl/kartu-tanda-boga/models"

// StartSessionResponse is returned when a wizard session is started or resumed
type StartSessionResponse struct {
	SessionToken string              `json:"session_token" example:"eyJhbGciOi..."`
	TokenType    string              `json:"token_type" example:"Bearer"`
	ExpiresAt    string              `json:"expires_at" example:"2026-01-15T10:30:00Z"`
	Resumed      bool                `json:"resumed" example:"false"`
	State        WizardStateResponse `json:"state"`
}

// FormValuesDTO is the Details form plus the photo, which is only inlined on request
type FormValuesDTO struct {
	Name          string  `json:"name" example:"Siti Rahmawati"`
	Phone         string  `json:"phone" example:"081234567890"`
	Email         string  `json:"email" example:"siti@example.com"`
	Birthday      string  `json:"birthday" example:"1999-05-17"`
	HasPhoto      bool    `json:"has_photo"`
	PhotoMimeType string  `json:"photo_mime_type,omitempty" example:"image/jpeg"`
	PhotoBytes    int     `json:"photo_bytes,omitempty"`
	PhotoDataURI  *string `json:"photo_data_uri,omitempty"`
}

// WizardStateResponse mirrors the wizard state for the client
type WizardStateResponse struct {
	SessionID       string                   `json:"session_id"`
	CurrentStep     int                      `json:"current_step" example:"1"`
	StepName        string                   `json:"step_name" example:"details"`
	Values          FormValuesDTO            `json:"values"`
	SelectedCardURL string                   `json:"selected_card_url"`
	CardIndex       int                      `json:"card_index" example:"1"`
	Created         *models.SubmissionResult `json:"created"`
	Submitting      bool                     `json:"submitting"`
	CameraOpen      bool                     `json:"camera_open"`
}

// UpdateDetailsRequest patches the Details form; omitted fields are left unchanged
type UpdateDetailsRequest struct {
	Name     *string `json:"name,omitempty" example:"Siti Rahmawati"`
	Phone    *string `json:"phone,omitempty" example:"081234567890"`
	Email    *string `json:"email,omitempty" example:"siti@example.com"`
	Birthday *string `json:"birthday,omitempty" example:"1999-05-17"`
}

// CapturePhotoRequest is a raw camera frame posted by the client
// Frame is populated by the handler from the multipart body
type CapturePhotoRequest struct {
	Facing string `json:"facing" example:"user"`
	Torch  bool   `json:"torch"`
	Frame  []byte `json:"-"`
}

// CapturePhotoResponse reports the camera actually used and the new state
type CapturePhotoResponse struct {
	Facing     string              `json:"facing" example:"user"`
	Mirrored   bool                `json:"mirrored"`
	Constraint string              `json:"constraint" example:"exact(user)"`
	State      WizardStateResponse `json:"state"`
}

// CardDesignDTO is one card of the catalog
type CardDesignDTO struct {
	ID       int    `json:"id" example:"1"`
	Name     string `json:"name" example:"JAPANESE"`
	ImageURL string `json:"image_url"`
	Tier     string `json:"tier" example:"basic"`
}

// CardsResponse is the catalog with the carousel position
type CardsResponse struct {
	Cards           []CardDesignDTO `json:"cards"`
	CurrentIndex    int             `json:"current_index" example:"1"`
	Visible         []CardDesignDTO `json:"visible"`
	SelectedCardURL string          `json:"selected_card_url"`
}

// MoveCardRequest moves the carousel: "next", "prev" or "select" with an index
type MoveCardRequest struct {
	Direction string `json:"direction" validate:"required,oneof=next prev select" example:"next"`
	Index     *int   `json:"index,omitempty" validate:"omitempty,min=0" example:"2"`
}

// CardDownload is a rendered card image ready to be sent as an attachment
type CardDownload struct {
	Filename    string
	ContentType string
	Data        []byte
}
