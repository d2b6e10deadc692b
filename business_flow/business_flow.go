package businessflow

import (
	"github.com/amirphl/kartu-tanda-boga/app/dto"
	"github.com/amirphl/kartu-tanda-boga/models"
	"github.com/amirphl/kartu-tanda-boga/utils"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds client information attached to requests for logging and records
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// SetSessionID sets the session ID
func (cm *ClientMetadata) SetSessionID(sessionID string) {
	cm.SessionID = sessionID
}

// ToWizardStateResponse converts a state snapshot for the API. The photo is only inlined
// when includePhoto is set.
func ToWizardStateResponse(sessionID string, state models.WizardState, includePhoto bool) dto.WizardStateResponse {
	values := dto.FormValuesDTO{
		Name:     state.Values.Name,
		Phone:    state.Values.Phone,
		Email:    state.Values.Email,
		Birthday: state.Values.Birthday,
	}
	if photo := state.Values.PhotoFile; photo != nil && photo.Len() > 0 {
		values.HasPhoto = true
		values.PhotoMimeType = photo.MimeType()
		values.PhotoBytes = photo.Len()
		if includePhoto {
			values.PhotoDataURI = utils.ToPtr(photo.DataURI())
		}
	}

	return dto.WizardStateResponse{
		SessionID:       sessionID,
		CurrentStep:     int(state.CurrentStep),
		StepName:        state.CurrentStep.String(),
		Values:          values,
		SelectedCardURL: state.SelectedCardURL,
		CardIndex:       state.CardIndex,
		Created:         state.Created,
	}
}

// ToCardDesignDTOs converts catalog entries for the API
func ToCardDesignDTOs(cards []models.CardDesign) []dto.CardDesignDTO {
	out := make([]dto.CardDesignDTO, 0, len(cards))
	for _, c := range cards {
		out = append(out, dto.CardDesignDTO{ID: c.ID, Name: c.Name, ImageURL: c.ImageURL, Tier: c.Tier})
	}
	return out
}
