package repository

import (
	"context"
	"time"

	"github.com/amirphl/kartu-tanda-boga/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// MembershipRecordRepository stores memberships confirmed by the membership API
type MembershipRecordRepository interface {
	Repository[models.MembershipRecord, models.MembershipRecordFilter]
	BySerial(ctx context.Context, serial string) (*models.MembershipRecord, error)
}

// SessionStore is the durable per-session key-value store behind the wizard's
// persistence bridge. A record is a set of independently written fields.
type SessionStore interface {
	// SetField writes one field of the record at key and refreshes its ttl.
	SetField(ctx context.Context, key, field string, value []byte, ttl time.Duration) error
	// Fields returns every field of the record, or an empty map when it does not exist.
	Fields(ctx context.Context, key string) (map[string][]byte, error)
	Delete(ctx context.Context, key string) error
}
