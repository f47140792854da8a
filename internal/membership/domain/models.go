package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

const RoleCollaborator = "collaborator"

// JoinRequest is a user's request to join a project. Rows are never deleted.
type JoinRequest struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	ProjectID       snowflake.ID  `gorm:"not null;index:ix_join_requests_project_requester,priority:1" json:"project_id"`
	RequesterID     snowflake.ID  `gorm:"not null;index:ix_join_requests_project_requester,priority:2" json:"requester_id"`
	Status          Status        `gorm:"type:text;not null;index" json:"status"`
	RequestMessage  string        `gorm:"type:text" json:"request_message"`
	ResponseMessage string        `gorm:"type:text" json:"response_message"`
	RespondedAt     *time.Time    `json:"responded_at,omitempty"`
	RespondedBy     *snowflake.ID `json:"responded_by,omitempty"`
	// PendingKey is set while the request is pending and cleared on
	// resolution; the unique index allows one pending request per pair.
	PendingKey *string   `gorm:"type:text;uniqueIndex:ux_join_requests_pending_key" json:"-"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (JoinRequest) TableName() string { return "join_requests" }

// PendingKeyFor builds the value held by PendingKey while a request is open.
func PendingKeyFor(projectID, requesterID snowflake.ID) string {
	return fmt.Sprintf("%s:%s", projectID.String(), requesterID.String())
}

type Membership struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	ProjectID snowflake.ID `gorm:"not null;uniqueIndex:ux_project_members_project_user,priority:1" json:"project_id"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex:ux_project_members_project_user,priority:2;index" json:"user_id"`
	Role      string       `gorm:"type:text;not null" json:"role"`
	Status    Status       `gorm:"type:text;not null;index" json:"status"`
	JoinedAt  time.Time    `gorm:"not null" json:"joined_at"`
}

func (Membership) TableName() string { return "project_members" }
