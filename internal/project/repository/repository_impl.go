package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/researchhub/internal/project/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, project domain.Project) error {
	return r.db.WithContext(ctx).Create(&project).Error
}

func (r *repository) GetByID(ctx context.Context, id snowflake.ID) (*domain.Project, error) {
	var project domain.Project
	err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *repository) ActivateIfPlanning(ctx context.Context, id snowflake.ID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE projects SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.StatusActive,
		at,
		id,
		domain.StatusPlanning,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) UpdateRequiredCollaborators(ctx context.Context, id snowflake.ID, required int, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE projects SET required_collaborators = ?, updated_at = ? WHERE id = ? AND status = ?`,
		required,
		at,
		id,
		domain.StatusPlanning,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) CreateChatRoom(ctx context.Context, room domain.ChatRoom) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO chat_rooms (id, project_id, name, created_at) VALUES (?, ?, ?, ?)`,
		room.ID,
		room.ProjectID,
		room.Name,
		room.CreatedAt,
	).Error
}

func (r *repository) GetChatRoom(ctx context.Context, projectID snowflake.ID) (*domain.ChatRoom, error) {
	var room domain.ChatRoom
	err := r.db.WithContext(ctx).First(&room, "project_id = ?", projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}
