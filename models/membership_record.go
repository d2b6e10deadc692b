package models

import (
	"time"

	"github.com/amirphl/kartu-tanda-boga/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// MembershipRecord is the local copy of a membership the membership API confirmed.
type MembershipRecord struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID         uuid.UUID      `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	SessionID    string         `gorm:"type:varchar(64);not null;index" json:"session_id"`
	Serial       string         `gorm:"type:varchar(64);not null;index" json:"serial"`
	Name         string         `gorm:"type:varchar(255);not null" json:"name"`
	Phone        string         `gorm:"type:varchar(32);not null;index" json:"phone"`
	Email        string         `gorm:"type:varchar(255);not null;index" json:"email"`
	Birthday     string         `gorm:"type:varchar(10);not null" json:"birthday"`
	CardImage    string         `gorm:"type:text;not null" json:"card_image"`
	ProfileImage string         `gorm:"type:text" json:"profile_image"`
	TierTitle    string         `gorm:"type:varchar(100)" json:"tier_title"`
	Point        int            `gorm:"not null;default:0" json:"point"`
	Coupons      pq.StringArray `gorm:"type:text[]" json:"coupons"`
	IPAddress    *string        `gorm:"type:varchar(64)" json:"ip_address,omitempty"`
	UserAgent    *string        `gorm:"type:text" json:"user_agent,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

func (MembershipRecord) TableName() string { return "membership_records" }

// BeforeCreate ensures UUID and timestamps are set.
func (m *MembershipRecord) BeforeCreate(tx *gorm.DB) error {
	if m.UUID == uuid.Nil {
		m.UUID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = utils.UTCNow()
	}
	return nil
}

// MembershipRecordFilter represents filter criteria for membership record queries.
type MembershipRecordFilter struct {
	ID            *uint      `json:"id,omitempty"`
	Serial        *string    `json:"serial,omitempty"`
	Phone         *string    `json:"phone,omitempty"`
	Email         *string    `json:"email,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}

// NewMembershipRecord builds the record for a confirmed submission.
func NewMembershipRecord(sessionID string, values FormValues, result *SubmissionResult) *MembershipRecord {
	coupons := make(pq.StringArray, 0, len(result.Coupons))
	for _, c := range result.Coupons {
		coupons = append(coupons, c.Name)
	}
	name := result.Name
	if name == "" {
		name = values.Name
	}
	return &MembershipRecord{
		SessionID:    sessionID,
		Serial:       result.Serial,
		Name:         name,
		Phone:        values.Phone,
		Email:        values.Email,
		Birthday:     values.Birthday,
		CardImage:    result.CardImage,
		ProfileImage: result.ProfileImage,
		TierTitle:    result.TierTitle,
		Point:        result.Point,
		Coupons:      coupons,
	}
}
