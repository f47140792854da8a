package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, project Project) error
	// GetByID returns nil when the project does not exist.
	GetByID(ctx context.Context, id snowflake.ID) (*Project, error)
	// ActivateIfPlanning flips Planning to Active and reports whether this call
	// performed the transition.
	ActivateIfPlanning(ctx context.Context, id snowflake.ID, at time.Time) (bool, error)
	// UpdateRequiredCollaborators only succeeds while the project is Planning.
	UpdateRequiredCollaborators(ctx context.Context, id snowflake.ID, required int, at time.Time) (bool, error)
	CreateChatRoom(ctx context.Context, room ChatRoom) error
	// GetChatRoom returns nil when the project has no room yet.
	GetChatRoom(ctx context.Context, projectID snowflake.ID) (*ChatRoom, error)
}
