package repository

import (
	"context"
	"errors"

	"github.com/amirphl/kartu-tanda-boga/models"
	"gorm.io/gorm"
)

// MembershipRecordRepositoryImpl implements MembershipRecordRepository
type MembershipRecordRepositoryImpl struct {
	*BaseRepository[models.MembershipRecord, models.MembershipRecordFilter]
}

// NewMembershipRecordRepository creates a new membership record repository
func NewMembershipRecordRepository(db *gorm.DB) MembershipRecordRepository {
	return &MembershipRecordRepositoryImpl{
		BaseRepository: NewBaseRepository[models.MembershipRecord, models.MembershipRecordFilter](db),
	}
}

// BySerial returns the newest record with the given card serial, or nil
func (r *MembershipRecordRepositoryImpl) BySerial(ctx context.Context, serial string) (*models.MembershipRecord, error) {
	var row models.MembershipRecord
	err := r.getDB(ctx).Where("serial = ?", serial).Last(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *MembershipRecordRepositoryImpl) applyFilter(query *gorm.DB, filter models.MembershipRecordFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.Serial != nil {
		query = query.Where("serial = ?", *filter.Serial)
	}
	if filter.Phone != nil {
		query = query.Where("phone = ?", *filter.Phone)
	}
	if filter.Email != nil {
		query = query.Where("email = ?", *filter.Email)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return query
}

// ByFilter retrieves membership records based on filter criteria.
func (r *MembershipRecordRepositoryImpl) ByFilter(ctx context.Context, filter models.MembershipRecordFilter, orderBy string, limit, offset int) ([]*models.MembershipRecord, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.MembershipRecord{}), filter)

	if orderBy == "" {
		orderBy = "id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.MembershipRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns number of membership records matching filter.
func (r *MembershipRecordRepositoryImpl) Count(ctx context.Context, filter models.MembershipRecordFilter) (int64, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.MembershipRecord{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any membership record matches the filter.
func (r *MembershipRecordRepositoryImpl) Exists(ctx context.Context, filter models.MembershipRecordFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
