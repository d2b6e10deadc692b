package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/kartu-tanda-boga/app/dto"
	"github.com/amirphl/kartu-tanda-boga/app/services"
	businessflow "github.com/amirphl/kartu-tanda-boga/business_flow"
	"github.com/amirphl/kartu-tanda-boga/media"
	"github.com/amirphl/kartu-tanda-boga/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubWizardFlow returns err from every operation when set, and records its inputs.
type stubWizardFlow struct {
	err error

	sessionID      string
	existing       string
	metadata       *businessflow.ClientMetadata
	upload         []byte
	capture        *dto.CapturePhotoRequest
	move           *dto.MoveCardRequest
	details        *dto.UpdateDetailsRequest
	includePhoto   bool
	submitDeadline time.Time
}

func (s *stubWizardFlow) state(sessionID string) *dto.WizardStateResponse {
	s.sessionID = sessionID
	return &dto.WizardStateResponse{SessionID: sessionID, CurrentStep: 1, StepName: "details"}
}

func (s *stubWizardFlow) StartSession(ctx context.Context, existing string, metadata *businessflow.ClientMetadata) (*dto.StartSessionResponse, error) {
	s.existing = existing
	s.metadata = metadata
	if s.err != nil {
		return nil, s.err
	}
	id := existing
	if id == "" {
		id = "new-session"
	}
	return &dto.StartSessionResponse{SessionToken: "tok", TokenType: "Bearer", Resumed: existing != "", State: *s.state(id)}, nil
}

func (s *stubWizardFlow) GetState(ctx context.Context, sessionID string, includePhoto bool) (*dto.WizardStateResponse, error) {
	s.includePhoto = includePhoto
	if s.err != nil {
		return nil, s.err
	}
	return s.state(sessionID), nil
}

func (s *stubWizardFlow) UpdateDetails(ctx context.Context, sessionID string, req *dto.UpdateDetailsRequest) (*dto.WizardStateResponse, error) {
	s.details = req
	if s.err != nil {
		return nil, s.err
	}
	return s.state(sessionID), nil
}

func (s *stubWizardFlow) NextFromDetails(ctx context.Context, sessionID string) (*dto.WizardStateResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.state(sessionID), nil
}

func (s *stubWizardFlow) UploadPhoto(ctx context.Context, sessionID string, data []byte) (*dto.WizardStateResponse, error) {
	s.upload = data
	if s.err != nil {
		return nil, s.err
	}
	return s.state(sessionID), nil
}

func (s *stubWizardFlow) CapturePhoto(ctx context.Context, sessionID string, req *dto.CapturePhotoRequest) (*dto.CapturePhotoResponse, error) {
	s.capture = req
	if s.err != nil {
		return nil, s.err
	}
	return &dto.CapturePhotoResponse{Facing: req.Facing, State: *s.state(sessionID)}, nil
}

func (s *stubWizardFlow) NextFromPhoto(ctx context.Context, sessionID string) (*dto.WizardStateResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.state(sessionID), nil
}

func (s *stubWizardFlow) ListCards(ctx context.Context, sessionID string) (*dto.CardsResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.CardsResponse{CurrentIndex: 1}, nil
}

func (s *stubWizardFlow) MoveCard(ctx context.Context, sessionID string, req *dto.MoveCardRequest) (*dto.CardsResponse, error) {
	s.move = req
	if s.err != nil {
		return nil, s.err
	}
	return &dto.CardsResponse{CurrentIndex: 2}, nil
}

func (s *stubWizardFlow) Submit(ctx context.Context, sessionID string, metadata *businessflow.ClientMetadata) (*dto.WizardStateResponse, error) {
	s.metadata = metadata
	s.submitDeadline, _ = ctx.Deadline()
	if s.err != nil {
		return nil, s.err
	}
	return s.state(sessionID), nil
}

func (s *stubWizardFlow) Back(ctx context.Context, sessionID string) (*dto.WizardStateResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.state(sessionID), nil
}

func (s *stubWizardFlow) BackToForm(ctx context.Context, sessionID string) (*dto.WizardStateResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.state(sessionID), nil
}

func (s *stubWizardFlow) StartOver(ctx context.Context, sessionID string) (*dto.WizardStateResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.state(sessionID), nil
}

func (s *stubWizardFlow) DownloadCard(ctx context.Context, sessionID string) (*dto.CardDownload, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.CardDownload{Filename: "kartu-tanda-boga-budi.png", ContentType: "image/png", Data: []byte("\x89PNG")}, nil
}

// newWizardApp mounts the handler with sessionID bound, as the session middleware would.
func newWizardApp(flow *stubWizardFlow, sessionID string, maxUpload int64) *fiber.App {
	h := NewWizardHandler(flow, maxUpload, 45*time.Second)
	app := fiber.New()
	app.Use(func(c fiber.Ctx) error {
		if sessionID != "" {
			c.Locals(utils.LocalSessionID, sessionID)
		}
		return c.Next()
	})
	app.Post("/sessions", h.StartSession)
	app.Get("/state", h.GetState)
	app.Put("/details", h.UpdateDetails)
	app.Post("/details/next", h.NextFromDetails)
	app.Post("/photo/upload", h.UploadPhoto)
	app.Post("/photo/capture", h.CapturePhoto)
	app.Post("/cards/move", h.MoveCard)
	app.Post("/submit", h.Submit)
	app.Get("/card/download", h.DownloadCard)
	return app
}

// apiResponse is dto.APIResponse with the error envelope typed for assertions.
type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   dto.ErrorDetail `json:"error"`
}

func decodeAPIResponse(t *testing.T, resp *http.Response) apiResponse {
	t.Helper()
	defer resp.Body.Close()
	var out apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func errorCode(t *testing.T, body apiResponse) string {
	t.Helper()
	return body.Error.Code
}

func multipartRequest(t *testing.T, target, field string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, "photo.jpg")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestWizardHandler_RequiresSession(t *testing.T) {
	app := newWizardApp(&stubWizardFlow{}, "", 0)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/state"},
		{http.MethodPost, "/details/next"},
		{http.MethodPost, "/submit"},
		{http.MethodGet, "/card/download"},
	} {
		t.Run(route.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(route.method, route.path, nil))
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "MISSING_SESSION", errorCode(t, decodeAPIResponse(t, resp)))
		})
	}
}

func TestWizardHandler_StartSession(t *testing.T) {
	t.Run("new", func(t *testing.T) {
		flow := &stubWizardFlow{}
		app := newWizardApp(flow, "", 0)

		req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
		req.Header.Set("User-Agent", "test-agent")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		body := decodeAPIResponse(t, resp)
		assert.True(t, body.Success)
		assert.Equal(t, "Session started", body.Message)
		assert.Empty(t, flow.existing)
		require.NotNil(t, flow.metadata)
		assert.Equal(t, "test-agent", flow.metadata.UserAgent)
	})

	t.Run("resume", func(t *testing.T) {
		flow := &stubWizardFlow{}
		app := newWizardApp(flow, "s1", 0)

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/sessions", nil))
		require.NoError(t, err)
		body := decodeAPIResponse(t, resp)
		assert.Equal(t, "Session resumed", body.Message)
		assert.Equal(t, "s1", flow.existing)
	})
}

func TestWizardHandler_GetStateIncludePhoto(t *testing.T) {
	flow := &stubWizardFlow{}
	app := newWizardApp(flow, "s1", 0)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/state?include_photo=true", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, flow.includePhoto)
	assert.Equal(t, "s1", flow.sessionID)
}

func TestWizardHandler_UpdateDetails(t *testing.T) {
	flow := &stubWizardFlow{}
	app := newWizardApp(flow, "s1", 0)

	req := httptest.NewRequest(http.MethodPut, "/details", strings.NewReader(`{"name":"Budi","phone":"0812"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NotNil(t, flow.details)
	require.NotNil(t, flow.details.Name)
	assert.Equal(t, "Budi", *flow.details.Name)
	assert.Nil(t, flow.details.Email, "omitted fields stay untouched")

	req = httptest.NewRequest(http.MethodPut, "/details", strings.NewReader(`{"name":`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, decodeAPIResponse(t, resp)))
}

func TestWizardHandler_UploadPhoto(t *testing.T) {
	t.Run("passes the file through", func(t *testing.T) {
		flow := &stubWizardFlow{}
		app := newWizardApp(flow, "s1", 0)

		resp, err := app.Test(multipartRequest(t, "/photo/upload", "file", []byte("jpeg-bytes"), nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, []byte("jpeg-bytes"), flow.upload)
	})

	t.Run("missing file", func(t *testing.T) {
		app := newWizardApp(&stubWizardFlow{}, "s1", 0)

		resp, err := app.Test(multipartRequest(t, "/photo/upload", "", nil, map[string]string{"other": "x"}))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_FILE", errorCode(t, decodeAPIResponse(t, resp)))
	})

	t.Run("too large", func(t *testing.T) {
		flow := &stubWizardFlow{}
		app := newWizardApp(flow, "s1", 8)

		resp, err := app.Test(multipartRequest(t, "/photo/upload", "file", bytes.Repeat([]byte("x"), 64), nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)
		assert.Equal(t, "FILE_TOO_LARGE", errorCode(t, decodeAPIResponse(t, resp)))
		assert.Nil(t, flow.upload)
	})
}

func TestWizardHandler_CapturePhoto(t *testing.T) {
	flow := &stubWizardFlow{}
	app := newWizardApp(flow, "s1", 0)

	resp, err := app.Test(multipartRequest(t, "/photo/capture", "frame", []byte("frame"), map[string]string{
		"facing": " environment ",
		"torch":  "true",
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NotNil(t, flow.capture)
	assert.Equal(t, "environment", flow.capture.Facing)
	assert.True(t, flow.capture.Torch)
	assert.Equal(t, []byte("frame"), flow.capture.Frame)

	resp, err = app.Test(multipartRequest(t, "/photo/capture", "frame", []byte("frame"), map[string]string{"torch": "maybe"}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestWizardHandler_MoveCardValidation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"next", `{"direction":"next"}`, fiber.StatusOK},
		{"select", `{"direction":"select","index":3}`, fiber.StatusOK},
		{"missing direction", `{}`, fiber.StatusBadRequest},
		{"unknown direction", `{"direction":"up"}`, fiber.StatusBadRequest},
		{"negative index", `{"direction":"select","index":-1}`, fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newWizardApp(&stubWizardFlow{}, "s1", 0)
			req := httptest.NewRequest(http.MethodPost, "/cards/move", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestWizardHandler_SubmitUsesSubmitTimeout(t *testing.T) {
	flow := &stubWizardFlow{}
	app := newWizardApp(flow, "s1", 0)

	start := time.Now()
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/submit", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.WithinDuration(t, start.Add(45*time.Second), flow.submitDeadline, 5*time.Second)
}

func TestWizardHandler_DownloadCard(t *testing.T) {
	app := newWizardApp(&stubWizardFlow{}, "s1", 0)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/card/download", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "attachment; filename=kartu-tanda-boga-budi.png", resp.Header.Get("Content-Disposition"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data)
}

func TestWizardErrorResponse(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{
			name:   "validation",
			err:    businessflow.ValidationErrors{{Field: "name", Reason: businessflow.ReasonRequired, Message: "Nama harus diisi"}},
			status: fiber.StatusUnprocessableEntity,
			code:   "VALIDATION_ERROR",
		},
		{
			name:    "camera busy",
			err:     &media.CaptureError{Kind: media.DeviceBusy},
			status:  fiber.StatusConflict,
			code:    "CAMERA_DeviceBusy",
			message: (&media.CaptureError{Kind: media.DeviceBusy}).Message(),
		},
		{
			name:   "camera denied",
			err:    &media.CaptureError{Kind: media.PermissionDenied},
			status: fiber.StatusUnprocessableEntity,
			code:   "CAMERA_PermissionDenied",
		},
		{
			name:   "bad image",
			err:    &media.DecodeError{Err: errors.New("unknown format")},
			status: fiber.StatusBadRequest,
			code:   "INVALID_IMAGE",
		},
		{
			name:    "membership http error",
			err:     &services.HTTPError{Status: 500},
			status:  fiber.StatusBadGateway,
			code:    "SUBMISSION_FAILED",
			message: "Gagal membuat membership: HTTP error! status: 500",
		},
		{
			name:    "membership api error",
			err:     fmt.Errorf("submit: %w", &services.APIError{Status: "failed", Message: "Phone already registered"}),
			status:  fiber.StatusBadGateway,
			code:    "SUBMISSION_FAILED",
			message: "Gagal membuat membership: Phone already registered",
		},
		{name: "in flight", err: businessflow.ErrSubmissionInProgress, status: fiber.StatusConflict, code: "SUBMISSION_IN_PROGRESS"},
		{name: "wrong step", err: businessflow.ErrWrongStep, status: fiber.StatusConflict, code: "WRONG_STEP"},
		{name: "no result", err: businessflow.ErrNoSubmissionResult, status: fiber.StatusNotFound, code: "NO_SUBMISSION_RESULT"},
		{name: "photo", err: businessflow.ErrPhotoRequired, status: fiber.StatusUnprocessableEntity, code: "PHOTO_REQUIRED", message: "Foto harus diambil"},
		{name: "card", err: businessflow.ErrCardNotSelected, status: fiber.StatusUnprocessableEntity, code: "CARD_NOT_SELECTED"},
		{name: "catalog", err: businessflow.ErrCatalogEmpty, status: fiber.StatusServiceUnavailable, code: "CATALOG_EMPTY"},
		{name: "facing", err: businessflow.NewBusinessError("INVALID_FACING", "facing must be user or environment", nil), status: fiber.StatusBadRequest, code: "INVALID_FACING"},
		{name: "index", err: fmt.Errorf("select: %w", businessflow.ErrCardIndexOutOfRange), status: fiber.StatusBadRequest, code: "CARD_INDEX_OUT_OF_RANGE"},
		{name: "timeout", err: context.DeadlineExceeded, status: fiber.StatusGatewayTimeout, code: "TIMEOUT"},
		{name: "unknown", err: errors.New("boom"), status: fiber.StatusInternalServerError, code: "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newWizardApp(&stubWizardFlow{err: tt.err}, "s1", 0)
			resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/details/next", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			body := decodeAPIResponse(t, resp)
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Error.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, body.Message)
			}
		})
	}
}

func TestWizardErrorResponse_ValidationDetails(t *testing.T) {
	violations := businessflow.ValidationErrors{
		{Field: "name", Reason: businessflow.ReasonRequired, Message: "Nama harus diisi"},
		{Field: "phone", Reason: businessflow.ReasonInvalidFormat, Message: "Nomor telepon harus dimulai dengan 0"},
	}
	app := newWizardApp(&stubWizardFlow{err: violations}, "s1", 0)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/details/next", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Error struct {
			Details []dto.FieldViolation `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Error.Details, 2)
	assert.Equal(t, "phone", body.Error.Details[1].Field)
	assert.Equal(t, "InvalidFormat", body.Error.Details[1].Reason)
}
