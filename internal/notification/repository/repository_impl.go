package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/researchhub/internal/notification/domain"
	"github.com/smallbiznis/researchhub/pkg/db/option"
	"github.com/smallbiznis/researchhub/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	db    *gorm.DB
	store repository.Repository[domain.Notification]
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repo{
		db:    db,
		store: repository.ProvideStore[domain.Notification](db),
	}
}

func (r *repo) WithTx(tx *gorm.DB) domain.Repository {
	return &repo{
		db:    tx,
		store: r.store.WithTrx(tx),
	}
}

func (r *repo) Insert(ctx context.Context, n *domain.Notification) error {
	return r.store.Create(ctx, n)
}

func (r *repo) ListByUser(ctx context.Context, userID snowflake.ID, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	opts := []option.QueryOption{
		option.WithSortBy("created_at", "DESC"),
		option.WithSortBy("id", "DESC"),
		option.WithLimit(limit),
	}
	if unreadOnly {
		opts = append(opts, option.WithWhere("read_status = ?", false))
	}
	return r.store.Find(ctx, &domain.Notification{UserID: userID}, opts...)
}

func (r *repo) MarkRead(ctx context.Context, userID, id snowflake.ID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read_status", true)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	// Already read rows may report zero affected rows on some drivers.
	count, err := r.store.Count(ctx, &domain.Notification{ID: id, UserID: userID})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
