package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the durable record of join requests and project memberships.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CountApproved(ctx context.Context, projectID snowflake.ID) (int64, error)
	CreateMembership(ctx context.Context, projectID, userID snowflake.ID, role string) (*Membership, error)
	HasApprovedMembership(ctx context.Context, projectID, userID snowflake.ID) (bool, error)
	ListApprovedMembers(ctx context.Context, projectID snowflake.ID) ([]Membership, error)

	// FindPendingRequest returns nil when the pair has no open request.
	FindPendingRequest(ctx context.Context, projectID, requesterID snowflake.ID) (*JoinRequest, error)
	CreateJoinRequest(ctx context.Context, projectID, requesterID snowflake.ID, message string) (*JoinRequest, error)
	// GetJoinRequest returns nil when the request does not exist.
	GetJoinRequest(ctx context.Context, id snowflake.ID) (*JoinRequest, error)
	// TransitionJoinRequest resolves a pending request. It reports false when
	// the request was no longer pending.
	TransitionJoinRequest(ctx context.Context, id snowflake.ID, to Status, responseMessage string, responderID snowflake.ID, at time.Time) (bool, error)
}
