// Package quorum decides when a project has gathered enough approved
// collaborators to open its chat room.
package quorum

import (
	projectdomain "github.com/smallbiznis/researchhub/internal/project/domain"
)

// ShouldActivate reports whether a Planning project with the given number of
// approved collaborators has reached its quorum. A project that requires no
// collaborators never activates through approvals.
func ShouldActivate(project projectdomain.Project, approvedCount int64) bool {
	if project.Status != projectdomain.StatusPlanning {
		return false
	}
	if project.RequiredCollaborators <= 0 {
		return false
	}
	return approvedCount >= int64(project.RequiredCollaborators)
}
