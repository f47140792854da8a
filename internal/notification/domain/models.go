package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Type string

const (
	TypeJoinRequest     Type = "JOIN_REQUEST"
	TypeRequestApproved Type = "REQUEST_APPROVED"
	TypeRequestRejected Type = "REQUEST_REJECTED"
	TypeChatCreated     Type = "CHAT_CREATED"
)

// Notification is the durable record behind every realtime notification push.
type Notification struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID     snowflake.ID      `gorm:"not null;index:ix_notifications_user_created,priority:1" json:"user_id"`
	Type       Type              `gorm:"type:text;not null" json:"type"`
	Message    string            `gorm:"type:text;not null" json:"message"`
	Data       datatypes.JSONMap `json:"data"`
	ReadStatus bool              `gorm:"not null;default:false" json:"read_status"`
	CreatedAt  time.Time         `gorm:"not null;index:ix_notifications_user_created,priority:2" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }
