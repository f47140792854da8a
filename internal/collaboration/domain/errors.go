package domain

import "errors"

// Error kinds. Specific errors below unwrap to exactly one of them.
var (
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not_found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid_state")
	ErrValidation   = errors.New("validation_failed")
	ErrRateLimited  = errors.New("rate_limited")
)

// Error carries a stable code and the kind it belongs to.
type Error struct {
	Kind error
	Code string
}

func (e *Error) Error() string { return e.Code }

func (e *Error) Unwrap() error { return e.Kind }

var (
	ErrPendingRequestExists = &Error{Kind: ErrConflict, Code: "pending_request_exists"}
	ErrAlreadyMember        = &Error{Kind: ErrConflict, Code: "already_member"}
	ErrSelfRequest          = &Error{Kind: ErrConflict, Code: "self_request"}
	ErrRequestNotFound      = &Error{Kind: ErrNotFound, Code: "request_not_found"}
	ErrProjectNotFound      = &Error{Kind: ErrNotFound, Code: "project_not_found"}
	ErrNotProjectOwner      = &Error{Kind: ErrForbidden, Code: "not_project_owner"}
	ErrRequestResolved      = &Error{Kind: ErrInvalidState, Code: "request_already_resolved"}
	ErrProjectClosed        = &Error{Kind: ErrInvalidState, Code: "project_closed"}
	ErrInvalidDecision      = &Error{Kind: ErrValidation, Code: "invalid_decision"}
	ErrInvalidRequester     = &Error{Kind: ErrValidation, Code: "invalid_requester"}
)
