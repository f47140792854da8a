package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	membershipdomain "github.com/smallbiznis/researchhub/internal/membership/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, userID, projectID snowflake.ID, object, action string) error {
	if userID <= 0 {
		return ErrInvalidActor
	}
	if projectID <= 0 {
		return ErrInvalidDomain
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	role, err := s.roleForUser(ctx, projectID, userID)
	if err != nil {
		return err
	}

	subject := "user:" + userID.String()
	domain := "project:" + projectID.String()
	if err := s.ensureGrouping(subject, "role:"+role, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("domain", domain),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// roleForUser resolves the project owner first, then approved memberships.
func (s *ServiceImpl) roleForUser(ctx context.Context, projectID, userID snowflake.ID) (string, error) {
	var project struct {
		OwnerID int64 `gorm:"column:owner_id"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT owner_id
		 FROM projects
		 WHERE id = ?
		 LIMIT 1`,
		projectID,
	).Scan(&project).Error; err != nil {
		return "", err
	}
	if project.OwnerID == 0 {
		return "", ErrForbidden
	}
	if snowflake.ID(project.OwnerID) == userID {
		return RoleOwner, nil
	}

	var member struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM project_members
		 WHERE project_id = ? AND user_id = ? AND status = ?
		 LIMIT 1`,
		projectID,
		userID,
		string(membershipdomain.StatusApproved),
	).Scan(&member).Error; err != nil {
		return "", err
	}

	role := strings.ToLower(strings.TrimSpace(member.Role))
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			s.log.Warn("remove stale role grouping", zap.String("subject", subject), zap.String("domain", domain), zap.Error(err))
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	owner := fmt.Sprintf("role:%s", RoleOwner)
	collaborator := fmt.Sprintf("role:%s", RoleCollaborator)

	policies := [][]string{
		{owner, ObjectProject, ActionProjectUpdateQuorum},
		{owner, ObjectJoinRequest, ActionJoinRequestRespond},
		{owner, ObjectChat, ActionChatJoin},
		{owner, ObjectChat, ActionChatSend},
		{owner, ObjectChat, ActionChatRead},

		{collaborator, ObjectChat, ActionChatJoin},
		{collaborator, ObjectChat, ActionChatSend},
		{collaborator, ObjectChat, ActionChatRead},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
