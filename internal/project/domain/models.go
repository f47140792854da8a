// Package domain contains persistence models for projects and their chat rooms.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPlanning  Status = "Planning"
	StatusActive    Status = "Active"
	StatusCompleted Status = "Completed"
	StatusOnHold    Status = "On Hold"
)

// Project is a research project that collaborators can request to join.
type Project struct {
	ID                    snowflake.ID `gorm:"primaryKey" json:"id"`
	OwnerID               snowflake.ID `gorm:"not null;index" json:"owner_id"`
	Title                 string       `gorm:"type:text;not null" json:"title"`
	Description           string       `gorm:"type:text" json:"description"`
	RequiredCollaborators int          `gorm:"not null;default:0" json:"required_collaborators"`
	Status                Status       `gorm:"type:text;not null;index" json:"status"`
	CreatedAt             time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time    `gorm:"not null" json:"updated_at"`
}

func (Project) TableName() string { return "projects" }

// ChatRoom is created once, when the project's collaborator quorum is first reached.
type ChatRoom struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	ProjectID snowflake.ID `gorm:"not null;uniqueIndex:ux_chat_rooms_project" json:"project_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (ChatRoom) TableName() string { return "chat_rooms" }
