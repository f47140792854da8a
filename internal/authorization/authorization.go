// Package authorization decides what a user may do inside a project. Roles
// are derived from the projects and project_members tables and enforced with
// casbin, one domain per project.
package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

const (
	ObjectProject     = "project"
	ObjectJoinRequest = "join_request"
	ObjectChat        = "chat"
)

const (
	ActionProjectUpdateQuorum = "project.update_quorum"
	ActionJoinRequestRespond  = "join_request.respond"
	ActionChatJoin            = "chat.join"
	ActionChatSend            = "chat.send"
	ActionChatRead            = "chat.read"
)

const (
	RoleOwner        = "owner"
	RoleCollaborator = "collaborator"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidDomain = errors.New("invalid_domain")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

type Service interface {
	// Authorize returns nil when userID may perform action on object within
	// the project, ErrForbidden when it may not.
	Authorize(ctx context.Context, userID, projectID snowflake.ID, object, action string) error
}
