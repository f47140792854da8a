package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/researchhub/internal/clock"
	"github.com/smallbiznis/researchhub/internal/membership/domain"
	"github.com/smallbiznis/researchhub/pkg/db"
	"gorm.io/gorm"
)

type repository struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

func NewRepository(db *gorm.DB, genID *snowflake.Node, clk clock.Clock) domain.Repository {
	return &repository{db: db, genID: genID, clock: clk}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx, genID: r.genID, clock: r.clock}
}

func (r *repository) CountApproved(ctx context.Context, projectID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("project_id = ? AND status = ?", projectID, domain.StatusApproved).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) CreateMembership(ctx context.Context, projectID, userID snowflake.ID, role string) (*domain.Membership, error) {
	if role == "" {
		role = domain.RoleCollaborator
	}
	member := domain.Membership{
		ID:        r.genID.Generate(),
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		Status:    domain.StatusApproved,
		JoinedAt:  r.clock.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&member).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateMembership
		}
		return nil, err
	}
	return &member, nil
}

func (r *repository) HasApprovedMembership(ctx context.Context, projectID, userID snowflake.ID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("project_id = ? AND user_id = ? AND status = ?", projectID, userID, domain.StatusApproved).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ListApprovedMembers(ctx context.Context, projectID snowflake.ID) ([]domain.Membership, error) {
	var items []domain.Membership
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND status = ?", projectID, domain.StatusApproved).
		Order("joined_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindPendingRequest(ctx context.Context, projectID, requesterID snowflake.ID) (*domain.JoinRequest, error) {
	var req domain.JoinRequest
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND requester_id = ? AND status = ?", projectID, requesterID, domain.StatusPending).
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) CreateJoinRequest(ctx context.Context, projectID, requesterID snowflake.ID, message string) (*domain.JoinRequest, error) {
	now := r.clock.Now()
	key := domain.PendingKeyFor(projectID, requesterID)
	req := domain.JoinRequest{
		ID:             r.genID.Generate(),
		ProjectID:      projectID,
		RequesterID:    requesterID,
		Status:         domain.StatusPending,
		RequestMessage: message,
		PendingKey:     &key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.db.WithContext(ctx).Create(&req).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicatePendingRequest
		}
		return nil, err
	}
	return &req, nil
}

func (r *repository) GetJoinRequest(ctx context.Context, id snowflake.ID) (*domain.JoinRequest, error) {
	var req domain.JoinRequest
	err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) TransitionJoinRequest(ctx context.Context, id snowflake.ID, to domain.Status, responseMessage string, responderID snowflake.ID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE join_requests
		SET status = ?, response_message = ?, responded_at = ?, responded_by = ?, pending_key = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		to,
		responseMessage,
		at,
		responderID,
		at,
		id,
		domain.StatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
