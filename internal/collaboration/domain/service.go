package domain

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	membershipdomain "github.com/smallbiznis/researchhub/internal/membership/domain"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision accepts the verb or its past participle.
func ParseDecision(raw string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approve", "approved":
		return DecisionApprove, nil
	case "reject", "rejected":
		return DecisionReject, nil
	default:
		return "", ErrInvalidDecision
	}
}

func (d Decision) Status() membershipdomain.Status {
	if d == DecisionApprove {
		return membershipdomain.StatusApproved
	}
	return membershipdomain.StatusRejected
}

type RespondRequest struct {
	RequestID       snowflake.ID
	Decision        Decision
	ResponseMessage string
	ResponderID     snowflake.ID
}

type RespondResult struct {
	Request       *membershipdomain.JoinRequest
	Membership    *membershipdomain.Membership
	ChatActivated bool
}

// Service drives a join request from submission to its terminal state.
type Service interface {
	SubmitRequest(ctx context.Context, projectID, requesterID snowflake.ID, message string) (*membershipdomain.JoinRequest, error)
	RespondToRequest(ctx context.Context, req RespondRequest) (*RespondResult, error)
}
