package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/researchhub/internal/chat/domain"
	"github.com/smallbiznis/researchhub/pkg/db/option"
	"github.com/smallbiznis/researchhub/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	store repository.Repository[domain.Message]
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repo{store: repository.ProvideStore[domain.Message](db)}
}

func (r *repo) WithTx(tx *gorm.DB) domain.Repository {
	return &repo{store: r.store.WithTrx(tx)}
}

func (r *repo) Insert(ctx context.Context, msg *domain.Message) error {
	return r.store.Create(ctx, msg)
}

// ListRecent returns the newest messages in chronological order.
func (r *repo) ListRecent(ctx context.Context, projectID snowflake.ID, limit int) ([]*domain.Message, error) {
	items, err := r.store.Find(ctx, &domain.Message{ProjectID: projectID},
		option.WithSortBy("created_at", "DESC"),
		option.WithSortBy("id", "DESC"),
		option.WithLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}
