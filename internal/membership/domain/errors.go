package domain

import "errors"

var (
	ErrDuplicatePendingRequest = errors.New("duplicate_pending_request")
	ErrDuplicateMembership     = errors.New("duplicate_membership")
)
