package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, ownerID snowflake.ID, req CreateProjectRequest) (*Project, error)
	Get(ctx context.Context, id snowflake.ID) (*Project, error)
	UpdateRequiredCollaborators(ctx context.Context, ownerID, projectID snowflake.ID, required int) (*Project, error)
	ChatRoom(ctx context.Context, projectID snowflake.ID) (*ChatRoom, error)
}

type CreateProjectRequest struct {
	Title                 string
	Description           string
	RequiredCollaborators int
}

var (
	ErrNotFound                     = errors.New("project_not_found")
	ErrInvalidOwner                 = errors.New("invalid_owner")
	ErrInvalidTitle                 = errors.New("invalid_title")
	ErrInvalidRequiredCollaborators = errors.New("invalid_required_collaborators")
	ErrForbidden                    = errors.New("forbidden")
	ErrQuorumLocked                 = errors.New("quorum_locked")
)
