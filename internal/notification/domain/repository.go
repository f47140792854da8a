package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID snowflake.ID, unreadOnly bool, limit int) ([]*Notification, error)
	// MarkRead reports false when no notification with that id belongs to the user.
	MarkRead(ctx context.Context, userID, id snowflake.ID) (bool, error)
}
