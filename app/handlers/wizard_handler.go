package handlers

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/kartu-tanda-boga/app/dto"
	businessflow "github.com/amirphl/kartu-tanda-boga/business_flow"
	"github.com/amirphl/kartu-tanda-boga/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const defaultMaxUploadBytes = 15 * 1024 * 1024

// WizardHandlerInterface defines the contract for the signup wizard handlers
type WizardHandlerInterface interface {
	StartSession(c fiber.Ctx) error
	GetState(c fiber.Ctx) error
	UpdateDetails(c fiber.Ctx) error
	NextFromDetails(c fiber.Ctx) error
	UploadPhoto(c fiber.Ctx) error
	CapturePhoto(c fiber.Ctx) error
	NextFromPhoto(c fiber.Ctx) error
	ListCards(c fiber.Ctx) error
	MoveCard(c fiber.Ctx) error
	Submit(c fiber.Ctx) error
	Back(c fiber.Ctx) error
	BackToForm(c fiber.Ctx) error
	StartOver(c fiber.Ctx) error
	DownloadCard(c fiber.Ctx) error
}

// WizardHandler handles the membership card signup wizard
type WizardHandler struct {
	flow           businessflow.WizardFlow
	validator      *validator.Validate
	maxUploadBytes int64
	submitTimeout  time.Duration
}

// NewWizardHandler creates a new wizard handler. submitTimeout bounds the request that
// waits on the membership API.
func NewWizardHandler(flow businessflow.WizardFlow, maxUploadBytes int64, submitTimeout time.Duration) *WizardHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &WizardHandler{
		flow:           flow,
		validator:      newRequestValidator(),
		maxUploadBytes: maxUploadBytes,
		submitTimeout:  submitTimeout,
	}
}

func (h *WizardHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return errorResponse(c, statusCode, message, errorCode, details)
}

func (h *WizardHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return successResponse(c, statusCode, message, data)
}

func sessionIDFrom(c fiber.Ctx) (string, bool) {
	sessionID, ok := c.Locals(utils.LocalSessionID).(string)
	return sessionID, ok && sessionID != ""
}

// StartSession starts a new wizard session or resumes the one named by the token
// @Summary Start or resume a wizard session
// @Description Issues a session token. A valid token in the request resumes its session, including state persisted before a reload.
// @Tags Wizard
// @Produce json
// @Param Authorization header string false "Bearer <session token> of a session to resume"
// @Success 200 {object} dto.APIResponse{data=dto.StartSessionResponse} "Session started"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/wizard/sessions [post]
func (h *WizardHandler) StartSession(c fiber.Ctx) error {
	existing, _ := sessionIDFrom(c)

	ctx, cancel := createRequestContext(c, "/api/v1/wizard/sessions", 0)
	defer cancel()

	result, err := h.flow.StartSession(ctx, existing, clientMetadata(c))
	if err != nil {
		return wizardErrorResponse(c, err, "Start session")
	}

	message := "Session started"
	if result.Resumed {
		message = "Session resumed"
	}
	return h.SuccessResponse(c, fiber.StatusOK, message, result)
}

// GetState returns the current wizard state
// @Summary Get wizard state
// @Tags Wizard
// @Produce json
// @Security SessionToken
// @Param include_photo query bool false "Inline the photo as a data URI"
// @Success 200 {object} dto.APIResponse{data=dto.WizardStateResponse}
// @Failure 401 {object} dto.APIResponse
// @Router /api/v1/wizard/state [get]
func (h *WizardHandler) GetState(c fiber.Ctx) error {
	sessionID, ok := sessionIDFrom(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Session token is required", "MISSING_SESSION", nil)
	}
	includePhoto, _ := strconv.ParseBool(c.Query("include_photo"))

	ctx, cancel := createRequestContext(c, "/api/v1/wizard/state", 0)
	defer cancel()

	state, err := h.flow.GetState(ctx, sessionID, includePhoto)
	if err != nil {
		return wizardErrorResponse(c, err, "Get state")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "State retrieved", state)
}

// UpdateDetails patches the Details form
// @Summary Update details
// @Description Patches name, phone, email and birthday. Omitted fields keep their value; nothing is validated until the step is left.
// @Tags Wizard
// @Accept json
// @Produce json
// @Security SessionToken
// @Param request body dto.UpdateDetailsRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.WizardStateResponse}
// @Failure 400 {object} dto.APIResponse "Invalid request body"
// @Failure 409 {object} dto.APIResponse "Wrong step or membership already created"
// @Router /api/v1/wizard/details [put]
func (h *WizardHandler) UpdateDetails(c fiber.Ctx) error {
	sessionID, ok := sessionIDFrom(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Session token is required", "MISSING_SESSION", nil)
	}

	var req dto.UpdateDetailsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	ctx, cancel := createRequestContext(c, "/api/v1/wizard/details", 0)
	defer cancel()

	state, err := h.flow.UpdateDetails(ctx, sessionID, &req)
	if err != nil {
		return wizardErrorResponse(c, err, "Update details")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Details updated", state)
}

// NextFromDetails validates the Details step and moves to the photo step
// @Summary Leave the Details step
// @Tags Wizard
// @Produce json
// @Security SessionToken
// @Success 200 {object} dto.APIResponse{data=dto.WizardStateResponse}
// @Failure 422 {object} dto.APIResponse{error=dto.ErrorDetail{details=[]dto.FieldViolation}} "Every rejected field"
// @Router /api/v1/wizard/details/next [post]
func (h *WizardHandler) NextFromDetails(c fiber.Ctx) error {
	sessionID, ok := sessionIDFrom(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Session token is required", "MISSING_SESSION", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/wizard/details/next", 0)
	defer cancel()

	state, err := h.flow.NextFromDetails(ctx, sessionID)
	if err != nil {
		return wizardErrorResponse(c, err, "Next from details")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Details accepted", state)
}

func (h *WizardHandler) readFormFile(c fiber.Ctx, field string) ([]byte, error) {
	fileHeader, err := c.FormFile(field)
	if err != nil || fileHeader == nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, field+" is required")
	}
	if fileHeader.Size > h.maxUploadBytes {
		return nil, fiber.NewError(fiber.StatusRequestEntityTooLarge, field+" is too large")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+field)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+field)
	}
	if int64(len(data)) > h.maxUploadBytes {
		return nil, fiber.NewError(fiber.StatusRequestEntityTooLarge, field+" is too large")
	}
	return data, nil
}

func (h *WizardHandler) fileErrorResponse(c fiber.Ctx, err error) error {
	if fe, ok := err.(*fiber.Error); ok {
		code := "INVALID_FILE"
		if fe.Code == fiber.StatusRequestEntityTooLarge {
			code = "FILE_TOO_LARGE"
		}
		return h.ErrorResponse(c, fe.Code, fe.Message, code, nil)
	}
	return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid file", "INVALID_FILE", err.Error())
}

// UploadPhoto sets the profile photo from a gallery file
// @Summary Upload a profile photo
// @Description The image is scaled to fit the configured bounds and re-encoded as JPEG.
// @Tags Wizard
// @Accept mpfd
// @Produce json
// @Security SessionToken
// @Param file formData file true "Image file"
// @Success 200 {object} dto.APIResponse{data=dto.WizardStateResponse}
// @Failure 400 {object} dto.APIResponse "Missing or unreadable image"
// @Failure 413 {object} dto.APIResponse "File too large"
// @Router /api/v1/wizard/photo/upload [post]
func (h *WizardHandler) UploadPhoto(c fiber.Ctx) error {
	sessionID, ok := sessionIDFrom(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Session token is required", "MISSING_SESSION", nil)
	}

	data, err := h.readFormFile(c, "file")
	if err != nil {
		return h.fileErrorResponse(c, err)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/wizard/photo/upload", 0)
	defer cancel()

	state, err := h.flow.UploadPhoto(ctx, sessionID, data)
	if err != nil {
		return wizardErrorResponse(c, err, "Upload photo")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Photo saved", state)
}

// CapturePhoto takes the profile photo from a posted camera frame
// @Summary Capture a profile photo
// @Description Opens the camera described by facing through the constraint fallbacks, captures the frame (mirrored for the front camera), normalizes it and releases the camera.
// @Tags Wizard
// @Accept mpfd
// @Produce json
// @Security SessionToken
// @Param frame formData file true "Raw camera frame"
// @Param facing formData string false "user or environment" default(user)
// @Param torch formData bool false "Turn the torch on while capturing"
// @Success 200 {object} dto.APIResponse{data=dto.CapturePhotoResponse}
// @Failure 409 {object} dto.APIResponse "Camera busy"
// @Failure 422 {object} dto.APIResponse "Camera unavailable"
// @Router /api/v1/wizard/photo/capture [post]
func (h *WizardHandler) CapturePhoto(c fiber.Ctx) error {
	sessionID, ok := sessionIDFrom(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Session token is required", "MISSING_SESSION", nil)
	}

	frame, err := h.readFormFile(c, "frame")
	if err != nil {
		return h.fileErrorResponse(c, err)
	}

	req := dto.CapturePhotoRequest{
		Facing: strings.TrimSpace(c.FormValue("facing")),
		Frame:  frame,
	}
	if v := c.FormValue("torch"); v != "" {
		torch, err := strconv.ParseBool(v)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "torch must be a boolean", "VALIDATION_ERROR", nil)
		}
		req.Torch = torch
	}

	ctx, cancel := createRequestContext(c, "/api/v1/wizard/photo/capture", 0)
	defer cancel()

	result, err := h.flow.CapturePhoto(ctx, sessionID, &req)
	if err != nil {
		return wizardErrorResponse(c, err, "Capture photo")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Photo captured", result)
}

// NextFromPhoto moves to card selection once a photo exists
// @Summary Leave the photo step
// @Tags Wizard
// @Produce json
// @Security SessionToken
// @Success 200 {object} dto.APIResponse{data=dto.WizardStateResponse}
// @Failure 422 {object} dto.APIResponse "Foto harus diambil"
// @Router /api/v1/wizard/photo/next [post]
func (h *WizardHandler) NextFromPhoto(c fiber.Ctx) error {
	sessionID, ok := sessionIDFrom(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Session token is required", "MISSING_SESSION", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/wizard/photo/next", 0)
	defer cancel()

	state, err := h.flow.NextFromPhoto(ctx, sessionID)
	if err != nil {
		return wizardErrorResponse(c, err, "Next from photo")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Photo accepted", state)
}

// ListCards returns the card catalog and the carousel window
// @Summary List card designs
// @Tags Wizard
// @Produce json
// @Security SessionToken
// @Success 200 {object} dto.APIResponse{data=dto.CardsResponse}
// @Router /api/v1/wizard/cards [get]
func (h *WizardHandler) ListCards(c fiber.Ctx) error {
	sessionID, ok := sessionIDFrom(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Session token is required", "MISSING_SESSION", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/wizard/cards", 0)
	defer cancel()

	cards, err := h.flow.ListCards(ctx, sessionID)
	if err != nil {
		return wizardErrorResponse(c, err, "List cards")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Cards retrieved", cards)
}

// MoveCard moves the carousel
// @Summary Move the card carousel
// @Tags Wizard
// @Accept json
// @Produce json
// @Security SessionToken
// @Param request body dto.MoveCardRequest true "next, prev or select with index"
// @Success 200 {object} dto.APIResponse{data=dto.CardsResponse}
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/wizard/cards/move [post]
func (h *WizardHandler) MoveCard(c fiber.Ctx) error {
	sessionID, ok := sessionIDFrom(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Session token is required", "MISSING_SESSION", nil)
	}

	var req dto.MoveCardRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := createRequestContext(c, "/api/v1/wizard/cards/move", 0)
	defer cancel()

	cards, err := h.flow.MoveCard(ctx, sessionID, &req)
	if err != nil {
		return wizardErrorResponse(c, err, "Move card")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Card selected", cards)
}

// Submit sends the completed form to the membership API
// @Summary Submit the membership
// @Description Only one submission per session runs at a time. On failure the state is unchanged and the request can be retried.
// @Tags Wizard
// @Produce json
// @Security SessionToken
// @Success 200 {object} dto.APIResponse{data=dto.WizardStateResponse} "Membership created"
// @Failure 409 {object} dto.APIResponse "Submission already in progress"
// @Failure 422 {object} dto.APIResponse "Form is incomplete"
// @Failure 502 {object} dto.APIResponse "Gagal membuat membership: ..."
// @Router /api/v1/wizard/submit [post]
func (h *WizardHandler) Submit(c fiber.Ctx) error {
	sessionID, ok := sessionIDFrom(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Session token is required", "MISSING_SESSION", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/wizard/submit", h.submitTimeout)
	defer cancel()

	state, err := h.flow.Submit(ctx, sessionID, clientMetadata(c))
	if err != nil {
		return wizardErrorResponse(c, err, "Submit membership")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Membership created", state)
}

// Back moves one step backwards
// @Summary Go back one step
// @Tags Wizard
// @Produce json
// @Security SessionToken
// @Success 200 {object} dto.APIResponse{data=dto.WizardStateResponse}
// @Failure 409 {object} dto.APIResponse
// @Router /api/v1/wizard/back [post]
func (h *WizardHandler) Back(c fiber.Ctx) error {
	sessionID, ok := sessionIDFrom(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Session token is required", "MISSING_SESSION", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/wizard/back", 0)
	defer cancel()

	state, err := h.flow.Back(ctx, sessionID)
	if err != nil {
		return wizardErrorResponse(c, err, "Back")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Moved back", state)
}

// BackToForm drops the result and card choice and returns to the Details step
// @Summary Back to the form
// @Tags Wizard
// @Produce json
// @Security SessionToken
// @Success 200 {object} dto.APIResponse{data=dto.WizardStateResponse}
// @Router /api/v1/wizard/back-to-form [post]
func (h *WizardHandler) BackToForm(c fiber.Ctx) error {
	sessionID, ok := sessionIDFrom(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Session token is required", "MISSING_SESSION", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/wizard/back-to-form", 0)
	defer cancel()

	state, err := h.flow.BackToForm(ctx, sessionID)
	if err != nil {
		return wizardErrorResponse(c, err, "Back to form")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Back to form", state)
}

// StartOver discards the session's state
// @Summary Start over
// @Tags Wizard
// @Produce json
// @Security SessionToken
// @Success 200 {object} dto.APIResponse{data=dto.WizardStateResponse}
// @Router /api/v1/wizard/start-over [post]
func (h *WizardHandler) StartOver(c fiber.Ctx) error {
	sessionID, ok := sessionIDFrom(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Session token is required", "MISSING_SESSION", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/wizard/start-over", 0)
	defer cancel()

	state, err := h.flow.StartOver(ctx, sessionID)
	if err != nil {
		return wizardErrorResponse(c, err, "Start over")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Started over", state)
}

// DownloadCard renders the member's card
// @Summary Download the membership card
// @Tags Wizard
// @Produce image/png
// @Security SessionToken
// @Success 200 {string} string "PNG card"
// @Failure 404 {object} dto.APIResponse "No membership yet"
// @Router /api/v1/wizard/card/download [get]
func (h *WizardHandler) DownloadCard(c fiber.Ctx) error {
	sessionID, ok := sessionIDFrom(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Session token is required", "MISSING_SESSION", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/wizard/card/download", 0)
	defer cancel()

	card, err := h.flow.DownloadCard(ctx, sessionID)
	if err != nil {
		return wizardErrorResponse(c, err, "Download card")
	}

	c.Set("Content-Type", card.ContentType)
	c.Set("Content-Disposition", "attachment; filename="+card.Filename)
	return c.Send(card.Data)
}
