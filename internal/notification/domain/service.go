package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Dispatcher persists a notification and then pushes it to the user's live sessions.
type Dispatcher interface {
	Notify(ctx context.Context, userID snowflake.ID, notificationType Type, message string, data map[string]any) (*Notification, error)
	ListForUser(ctx context.Context, userID snowflake.ID, unreadOnly bool, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, userID, id snowflake.ID) error
}

// Publisher delivers an event to every live session of a user.
type Publisher interface {
	PublishToUser(userID snowflake.ID, eventType string, payload any) int
}

var (
	ErrNotFound    = errors.New("notification_not_found")
	ErrInvalidUser = errors.New("invalid_user")
	ErrInvalidType = errors.New("invalid_notification_type")
)
