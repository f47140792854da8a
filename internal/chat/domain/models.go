package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Message is a chat line posted in a project's room.
type Message struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	ProjectID snowflake.ID `gorm:"not null;index:ix_chat_messages_project_created,priority:1" json:"projectId"`
	RoomID    snowflake.ID `gorm:"not null" json:"roomId"`
	SenderID  snowflake.ID `gorm:"not null" json:"senderId"`
	Content   string       `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time    `gorm:"not null;index:ix_chat_messages_project_created,priority:2" json:"createdAt"`
}

func (Message) TableName() string { return "chat_messages" }

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, msg *Message) error
	ListRecent(ctx context.Context, projectID snowflake.ID, limit int) ([]*Message, error)
}

type Service interface {
	SendMessage(ctx context.Context, projectID, senderID snowflake.ID, content string) (*Message, error)
	ListMessages(ctx context.Context, projectID, userID snowflake.ID, limit int) ([]*Message, error)
	// Authorize reports whether userID may take part in the project's chat.
	Authorize(ctx context.Context, projectID, userID snowflake.ID) error
}

const MaxContentLength = 4000

var (
	ErrProjectNotFound = errors.New("project_not_found")
	ErrChatNotActive   = errors.New("chat_not_active")
	ErrForbidden       = errors.New("forbidden")
	ErrEmptyMessage    = errors.New("empty_message")
	ErrMessageTooLong  = errors.New("message_too_long")
)
