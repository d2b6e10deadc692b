package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/kartu-tanda-boga/app/dto"
	"github.com/amirphl/kartu-tanda-boga/models"
	"github.com/amirphl/kartu-tanda-boga/repository"
	"github.com/amirphl/kartu-tanda-boga/utils"
	"github.com/xuri/excelize/v2"
)

const (
	defaultReportPageSize = 20
	maxReportPageSize     = 100
	maxExportRows         = 50000
	membershipSheetName   = "memberships"
)

// MembershipReportFlow lists and exports confirmed memberships for admins
type MembershipReportFlow interface {
	ListMemberships(ctx context.Context, req *dto.ListMembershipsRequest) (*dto.ListMembershipsResponse, error)
	ExportMemberships(ctx context.Context, req *dto.ListMembershipsRequest) (*dto.MembershipExport, error)
}

// MembershipReportFlowImpl implements MembershipReportFlow
type MembershipReportFlowImpl struct {
	recordRepo repository.MembershipRecordRepository
}

func NewMembershipReportFlow(recordRepo repository.MembershipRecordRepository) MembershipReportFlow {
	return &MembershipReportFlowImpl{recordRepo: recordRepo}
}

func toRecordFilter(req *dto.ListMembershipsRequest) models.MembershipRecordFilter {
	filter := models.MembershipRecordFilter{
		CreatedAfter:  req.StartDate,
		CreatedBefore: req.EndDate,
	}
	if req.Serial != nil && strings.TrimSpace(*req.Serial) != "" {
		filter.Serial = utils.ToPtr(strings.TrimSpace(*req.Serial))
	}
	if req.Phone != nil && strings.TrimSpace(*req.Phone) != "" {
		filter.Phone = utils.ToPtr(strings.TrimSpace(*req.Phone))
	}
	if req.Email != nil && strings.TrimSpace(*req.Email) != "" {
		filter.Email = utils.ToPtr(strings.TrimSpace(*req.Email))
	}
	return filter
}

func (f *MembershipReportFlowImpl) ListMemberships(ctx context.Context, req *dto.ListMembershipsRequest) (*dto.ListMembershipsResponse, error) {
	if f.recordRepo == nil {
		return nil, ErrMembershipRepoMissing
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return nil, NewBusinessError("INVALID_DATE_RANGE", "end_date must not be before start_date", nil)
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 {
		limit = defaultReportPageSize
	}
	if limit > maxReportPageSize {
		limit = maxReportPageSize
	}

	filter := toRecordFilter(req)
	total, err := f.recordRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("COUNT_MEMBERSHIPS_FAILED", "Failed to count memberships", err)
	}

	rows, err := f.recordRepo.ByFilter(ctx, filter, "created_at DESC, id DESC", limit, (page-1)*limit)
	if err != nil {
		return nil, NewBusinessError("FETCH_MEMBERSHIPS_FAILED", "Failed to fetch memberships", err)
	}

	items := make([]dto.MembershipItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, toMembershipItem(r))
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &dto.ListMembershipsResponse{
		Items: items,
		Pagination: dto.PaginationInfo{
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: totalPages,
		},
	}, nil
}

func toMembershipItem(r *models.MembershipRecord) dto.MembershipItem {
	coupons := []string(r.Coupons)
	if coupons == nil {
		coupons = []string{}
	}
	return dto.MembershipItem{
		ID:        r.ID,
		UUID:      r.UUID.String(),
		SessionID: r.SessionID,
		Serial:    r.Serial,
		Name:      r.Name,
		Phone:     r.Phone,
		Email:     r.Email,
		Birthday:  r.Birthday,
		TierTitle: r.TierTitle,
		Point:     r.Point,
		Coupons:   coupons,
		CardImage: r.CardImage,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (f *MembershipReportFlowImpl) ExportMemberships(ctx context.Context, req *dto.ListMembershipsRequest) (*dto.MembershipExport, error) {
	if f.recordRepo == nil {
		return nil, ErrMembershipRepoMissing
	}

	rows, err := f.recordRepo.ByFilter(ctx, toRecordFilter(req), "created_at ASC, id ASC", maxExportRows, 0)
	if err != nil {
		return nil, NewBusinessError("FETCH_MEMBERSHIPS_FAILED", "Failed to fetch memberships", err)
	}

	data, err := buildMembershipWorkbook(rows)
	if err != nil {
		return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}

	return &dto.MembershipExport{
		Filename: fmt.Sprintf("memberships_%s.xlsx", utils.UTCNow().Format("20060102_150405")),
		Data:     data,
	}, nil
}

func buildMembershipWorkbook(rows []*models.MembershipRecord) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	// Rename default sheet
	if err := xl.SetSheetName(xl.GetSheetName(0), membershipSheetName); err != nil {
		return nil, err
	}

	header := []string{"id", "uuid", "serial", "name", "phone", "email", "birthday", "tier_title", "point", "coupons", "card_image", "session_id", "ip", "user_agent", "created_at"}
	if err := xl.SetSheetRow(membershipSheetName, "A1", &header); err != nil {
		return nil, err
	}

	for ri, r := range rows {
		ip := ""
		if r.IPAddress != nil {
			ip = *r.IPAddress
		}
		ua := ""
		if r.UserAgent != nil {
			ua = *r.UserAgent
		}
		record := []string{
			strconv.FormatUint(uint64(r.ID), 10),
			r.UUID.String(),
			r.Serial,
			r.Name,
			r.Phone,
			r.Email,
			r.Birthday,
			r.TierTitle,
			strconv.Itoa(r.Point),
			strings.Join(r.Coupons, ", "),
			r.CardImage,
			r.SessionID,
			ip,
			ua,
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
		if err := xl.SetSheetRow(membershipSheetName, cellRef, &record); err != nil {
			return nil, err
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
