package handlers

import (
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/kartu-tanda-boga/app/dto"
	businessflow "github.com/amirphl/kartu-tanda-boga/business_flow"
	"github.com/gofiber/fiber/v3"
)

type AdminMembershipHandlerInterface interface {
	ListMemberships(c fiber.Ctx) error
	ExportMemberships(c fiber.Ctx) error
}

type AdminMembershipHandler struct {
	flow businessflow.MembershipReportFlow
}

func NewAdminMembershipHandler(flow businessflow.MembershipReportFlow) AdminMembershipHandlerInterface {
	return &AdminMembershipHandler{flow: flow}
}

func (h *AdminMembershipHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return errorResponse(c, statusCode, message, errorCode, details)
}

func (h *AdminMembershipHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return successResponse(c, statusCode, message, data)
}

// parseReportDate accepts RFC3339 or a plain date. A plain end date covers the whole day.
func parseReportDate(v string, endOfDay bool) (*time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func (h *AdminMembershipHandler) parseListRequest(c fiber.Ctx) (*dto.ListMembershipsRequest, error) {
	var req dto.ListMembershipsRequest
	if v := strings.TrimSpace(c.Query("serial")); v != "" {
		req.Serial = &v
	}
	if v := strings.TrimSpace(c.Query("phone")); v != "" {
		req.Phone = &v
	}
	if v := strings.TrimSpace(c.Query("email")); v != "" {
		req.Email = &v
	}
	if v := c.Query("start_date"); v != "" {
		t, err := parseReportDate(v, false)
		if err != nil {
			return nil, errors.New("invalid start_date format")
		}
		req.StartDate = t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := parseReportDate(v, true)
		if err != nil {
			return nil, errors.New("invalid end_date format")
		}
		req.EndDate = t
	}
	if v := c.Query("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return nil, errors.New("page must be a positive integer")
		}
		req.Page = page
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return nil, errors.New("limit must be a positive integer")
		}
		req.Limit = limit
	}
	return &req, nil
}

func (h *AdminMembershipHandler) reportErrorResponse(c fiber.Ctx, err error, operation string) error {
	if errors.Is(err, businessflow.ErrMembershipRepoMissing) {
		return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Membership records are not enabled", "MEMBERSHIP_RECORDS_DISABLED", nil)
	}
	var be *businessflow.BusinessError
	if errors.As(err, &be) && be.Code == "INVALID_DATE_RANGE" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, be.Message, be.Code, nil)
	}
	log.Println(operation+" failed", err)
	code := "INTERNAL_ERROR"
	if be != nil {
		code = be.Code
	}
	return h.ErrorResponse(c, fiber.StatusInternalServerError, operation+" failed", code, nil)
}

// ListMemberships lists confirmed memberships
// @Summary Admin List Memberships
// @Tags Admin Memberships
// @Produce json
// @Security AdminKey
// @Param serial query string false "Exact serial"
// @Param phone query string false "Exact phone"
// @Param email query string false "Exact email"
// @Param start_date query string false "Filter created_at >= start_date (RFC3339 or YYYY-MM-DD)"
// @Param end_date query string false "Filter created_at <= end_date (RFC3339 or YYYY-MM-DD)"
// @Param page query int false "Page" default(1)
// @Param limit query int false "Page size, at most 100" default(20)
// @Success 200 {object} dto.APIResponse{data=dto.ListMembershipsResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 401 {object} dto.APIResponse
// @Failure 500 {object} dto.APIResponse
// @Router /api/v1/admin/memberships [get]
func (h *AdminMembershipHandler) ListMemberships(c fiber.Ctx) error {
	req, err := h.parseListRequest(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/memberships", 0)
	defer cancel()

	res, err := h.flow.ListMemberships(ctx, req)
	if err != nil {
		return h.reportErrorResponse(c, err, "List memberships")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Memberships retrieved successfully", res)
}

// ExportMemberships downloads memberships as an Excel workbook
// @Summary Admin Export Memberships
// @Tags Admin Memberships
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security AdminKey
// @Param start_date query string false "Filter created_at >= start_date (RFC3339 or YYYY-MM-DD)"
// @Param end_date query string false "Filter created_at <= end_date (RFC3339 or YYYY-MM-DD)"
// @Success 200 {file} file
// @Failure 400 {object} dto.APIResponse
// @Failure 401 {object} dto.APIResponse
// @Router /api/v1/admin/memberships/export [get]
func (h *AdminMembershipHandler) ExportMemberships(c fiber.Ctx) error {
	req, err := h.parseListRequest(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/memberships/export", 2*time.Minute)
	defer cancel()

	export, err := h.flow.ExportMemberships(ctx, req)
	if err != nil {
		return h.reportErrorResponse(c, err, "Export memberships")
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+export.Filename)
	return c.Send(export.Data)
}
