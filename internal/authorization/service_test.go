package authorization

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	membershipdomain "github.com/smallbiznis/researchhub/internal/membership/domain"
	projectdomain "github.com/smallbiznis/researchhub/internal/project/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const (
	ownerID    = snowflake.ID(1)
	memberID   = snowflake.ID(2)
	strangerID = snowflake.ID(3)
	pendingID  = snowflake.ID(4)
	projectID  = snowflake.ID(100)
)

func setup(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(&projectdomain.Project{}, &membershipdomain.Membership{}))

	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	require.NoError(t, conn.Create(&projectdomain.Project{
		ID:                    projectID,
		OwnerID:               ownerID,
		Title:                 "Glacier Melt",
		Status:                projectdomain.StatusPlanning,
		RequiredCollaborators: 2,
		CreatedAt:             now,
		UpdatedAt:             now,
	}).Error)
	require.NoError(t, conn.Create(&membershipdomain.Membership{
		ID: 201, ProjectID: projectID, UserID: memberID,
		Role: membershipdomain.RoleCollaborator, Status: membershipdomain.StatusApproved, JoinedAt: now,
	}).Error)
	require.NoError(t, conn.Create(&membershipdomain.Membership{
		ID: 202, ProjectID: projectID, UserID: pendingID,
		Role: membershipdomain.RoleCollaborator, Status: membershipdomain.StatusPending, JoinedAt: now,
	}).Error)

	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)
	return NewService(Params{DB: conn, Log: zaptest.NewLogger(t), Enforcer: enforcer}), conn
}

func TestOwnerMayDoEverything(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, ownerID, projectID, ObjectProject, ActionProjectUpdateQuorum))
	require.NoError(t, svc.Authorize(ctx, ownerID, projectID, ObjectJoinRequest, ActionJoinRequestRespond))
	require.NoError(t, svc.Authorize(ctx, ownerID, projectID, ObjectChat, ActionChatJoin))
	require.NoError(t, svc.Authorize(ctx, ownerID, projectID, ObjectChat, ActionChatSend))
	require.NoError(t, svc.Authorize(ctx, ownerID, projectID, ObjectChat, ActionChatRead))
}

func TestCollaboratorLimitedToChat(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, memberID, projectID, ObjectChat, ActionChatJoin))
	require.NoError(t, svc.Authorize(ctx, memberID, projectID, ObjectChat, ActionChatSend))
	require.NoError(t, svc.Authorize(ctx, memberID, projectID, ObjectChat, ActionChatRead))

	require.ErrorIs(t, svc.Authorize(ctx, memberID, projectID, ObjectJoinRequest, ActionJoinRequestRespond), ErrForbidden)
	require.ErrorIs(t, svc.Authorize(ctx, memberID, projectID, ObjectProject, ActionProjectUpdateQuorum), ErrForbidden)
}

func TestNonMembersForbidden(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	require.ErrorIs(t, svc.Authorize(ctx, strangerID, projectID, ObjectChat, ActionChatRead), ErrForbidden)
	require.ErrorIs(t, svc.Authorize(ctx, pendingID, projectID, ObjectChat, ActionChatSend), ErrForbidden)
	require.ErrorIs(t, svc.Authorize(ctx, ownerID, 999, ObjectChat, ActionChatRead), ErrForbidden)
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	require.ErrorIs(t, svc.Authorize(ctx, 0, projectID, ObjectChat, ActionChatRead), ErrInvalidActor)
	require.ErrorIs(t, svc.Authorize(ctx, ownerID, 0, ObjectChat, ActionChatRead), ErrInvalidDomain)
	require.ErrorIs(t, svc.Authorize(ctx, ownerID, projectID, " ", ActionChatRead), ErrInvalidObject)
	require.ErrorIs(t, svc.Authorize(ctx, ownerID, projectID, ObjectChat, ""), ErrInvalidAction)
}

func TestRoleGroupingIsReusedAndReplaced(t *testing.T) {
	svc, conn := setup(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, memberID, projectID, ObjectChat, ActionChatRead))
	require.NoError(t, svc.Authorize(ctx, memberID, projectID, ObjectChat, ActionChatRead))

	var groupings int64
	require.NoError(t, conn.Table("casbin_rule").
		Where("ptype = ? AND v0 = ?", "g", "user:"+memberID.String()).
		Count(&groupings).Error)
	require.EqualValues(t, 1, groupings)

	// Ownership transfer: the stale collaborator link must not linger.
	require.NoError(t, conn.Model(&projectdomain.Project{}).Where("id = ?", projectID).Update("owner_id", memberID).Error)
	require.NoError(t, svc.Authorize(ctx, memberID, projectID, ObjectJoinRequest, ActionJoinRequestRespond))

	require.NoError(t, conn.Table("casbin_rule").
		Where("ptype = ? AND v0 = ?", "g", "user:"+memberID.String()).
		Count(&groupings).Error)
	require.EqualValues(t, 1, groupings)
}
