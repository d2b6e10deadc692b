package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/amirphl/kartu-tanda-boga/models"
)

// SuccessStatus is the status the membership API reports for a created membership
const SuccessStatus = "Success"

// SubmissionFailurePrefix starts every user-facing submission failure message
const SubmissionFailurePrefix = "Gagal membuat membership: "

// NetworkError means the membership API could not be reached or its answer read
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "membership api unreachable: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError carries a non-2xx status returned by the membership API
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string { return fmt.Sprintf("HTTP error! status: %d", e.Status) }

// APIError is a 2xx answer whose status is not the success marker
type APIError struct {
	Status  string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "Failed to create membership"
	}
	return e.Message
}

func IsNetworkError(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

func IsHTTPError(err error) bool {
	var target *HTTPError
	return errors.As(err, &target)
}

func IsAPIError(err error) bool {
	var target *APIError
	return errors.As(err, &target)
}

// SubmissionFailureMessage is the text shown to the user when err ended a submission
func SubmissionFailureMessage(err error) string {
	var (
		httpErr *HTTPError
		apiErr  *APIError
		netErr  *NetworkError
	)
	switch {
	case errors.As(err, &httpErr):
		return SubmissionFailurePrefix + httpErr.Error()
	case errors.As(err, &apiErr):
		return SubmissionFailurePrefix + apiErr.Error()
	case errors.As(err, &netErr):
		return SubmissionFailurePrefix + netErr.Err.Error()
	case err != nil:
		return SubmissionFailurePrefix + err.Error()
	default:
		return ""
	}
}

// MembershipClient talks to the remote membership API
type MembershipClient interface {
	FetchCatalog(ctx context.Context) ([]models.CardDesign, error)
	Submit(ctx context.Context, values models.FormValues, card models.CardDesign) (*models.SubmissionResult, error)
}

// MembershipClientImpl implements MembershipClient over HTTP
type MembershipClientImpl struct {
	CatalogURL   string
	CreateURL    string
	APIKeyHeader string
	APIKey       string
	HTTPClient   *http.Client
}

func NewMembershipClient(catalogURL, createURL, apiKeyHeader, apiKey string, timeout time.Duration) *MembershipClientImpl {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if apiKeyHeader == "" {
		apiKeyHeader = "X-BOGAMBC-Key"
	}
	return &MembershipClientImpl{
		CatalogURL:   catalogURL,
		CreateURL:    createURL,
		APIKeyHeader: apiKeyHeader,
		APIKey:       apiKey,
		HTTPClient:   &http.Client{Timeout: timeout},
	}
}

type catalogEntry struct {
	Image string `json:"image"`
	Title string `json:"title"`
}

// FetchCatalog loads the card designs offered by the membership API
func (c *MembershipClientImpl) FetchCatalog(ctx context.Context) ([]models.CardDesign, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.CatalogURL, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}

	var entries []catalogEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("decode catalog: %w", err)}
	}

	cards := make([]models.CardDesign, 0, len(entries))
	for i, e := range entries {
		name := strings.TrimSpace(e.Title)
		if name == "" {
			name = CardNameFromURL(e.Image)
		}
		cards = append(cards, models.CardDesign{
			ID:       i + 1,
			Name:     name,
			ImageURL: e.Image,
			Tier:     "basic",
		})
	}
	return cards, nil
}

// CardNameFromURL names a card after the theme found in its art URL
func CardNameFromURL(url string) string {
	switch {
	case strings.Contains(url, "japanese"), strings.Contains(url, "japan"):
		return "JAPANESE"
	case strings.Contains(url, "colorful"), strings.Contains(url, "color"):
		return "COLORFULL"
	case strings.Contains(url, "natural"), strings.Contains(url, "nature"):
		return "NATURAL"
	default:
		return "CARD"
	}
}

type createMembershipRequest struct {
	Name         string `json:"name"`
	Birthday     string `json:"birthday"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	ProfileImage string `json:"profileImage"`
	CardImage    string `json:"cardImage"`
}

type createMembershipResponse struct {
	Status  string                   `json:"status"`
	Message string                   `json:"message"`
	Data    *models.SubmissionResult `json:"data"`
}

// Submit creates the membership. It makes exactly one attempt.
func (c *MembershipClientImpl) Submit(ctx context.Context, values models.FormValues, card models.CardDesign) (*models.SubmissionResult, error) {
	body := createMembershipRequest{
		Name:      values.Name,
		Birthday:  values.Birthday,
		Phone:     values.Phone,
		Email:     values.Email,
		CardImage: card.ImageURL,
	}
	if values.PhotoFile != nil {
		body.ProfileImage = values.PhotoFile.Base64()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.CreateURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(raw)}
	}

	var out createMembershipResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.Status != SuccessStatus {
		return nil, &APIError{Status: out.Status, Message: out.Message}
	}
	if out.Data == nil {
		return nil, &APIError{Status: out.Status, Message: "membership api returned no data"}
	}
	return out.Data, nil
}

func (c *MembershipClientImpl) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set(c.APIKeyHeader, c.APIKey)
	}
}
