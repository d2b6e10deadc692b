package dto

import "time"

// ListMembershipsRequest filters the admin membership listing
// StartDate/EndDate are inclusive bounds on creation time
type ListMembershipsRequest struct {
	Serial    *string    `json:"serial,omitempty"`
	Phone     *string    `json:"phone,omitempty"`
	Email     *string    `json:"email,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Page      int        `json:"page,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

// MembershipItem is a membership row in admin listings
type MembershipItem struct {
	ID        uint     `json:"id"`
	UUID      string   `json:"uuid"`
	SessionID string   `json:"session_id"`
	Serial    string   `json:"serial"`
	Name      string   `json:"name"`
	Phone     string   `json:"phone"`
	Email     string   `json:"email"`
	Birthday  string   `json:"birthday"`
	TierTitle string   `json:"tier_title"`
	Point     int      `json:"point"`
	Coupons   []string `json:"coupons"`
	CardImage string   `json:"card_image"`
	CreatedAt string   `json:"created_at"`
}

// ListMembershipsResponse is a page of memberships
type ListMembershipsResponse struct {
	Items      []MembershipItem `json:"items"`
	Pagination PaginationInfo   `json:"pagination"`
}

// MembershipExport is the XLSX workbook of memberships
type MembershipExport struct {
	Filename string
	Data     []byte
}
