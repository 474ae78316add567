package repository

import (
	"context"
	"errors"
	"time"

	"ad-assistant/backend/internal/models"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a row does not exist or is not owned by the user
var ErrNotFound = errors.New("record not found")

// MessageRepository persists chat messages
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, userID, id string) (*models.Message, error)
	// ListPage returns up to limit messages newest first. When before is
	// non-nil only messages created strictly earlier are returned.
	ListPage(ctx context.Context, userID string, before *time.Time, limit int) ([]models.Message, error)
	CountByRole(ctx context.Context, userID string, role models.Role) (int64, error)
	UpdateFeedback(ctx context.Context, userID, id string, feedback *models.Feedback) error
	MarkImplemented(ctx context.Context, userID, id string) error
}

type GormMessageRepository struct {
	db *gorm.DB
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) Create(ctx context.Context, message *models.Message) error {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *GormMessageRepository) GetByID(ctx context.Context, userID, id string) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *GormMessageRepository) ListPage(ctx context.Context, userID string, before *time.Time, limit int) ([]models.Message, error) {
	var messages []models.Message
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if before != nil {
		q = q.Where("created_at < ?", *before)
	}
	err := q.Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *GormMessageRepository) CountByRole(ctx context.Context, userID string, role models.Role) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("user_id = ? AND role = ?", userID, role).
		Count(&count).Error
	return count, err
}

func (r *GormMessageRepository) UpdateFeedback(ctx context.Context, userID, id string, feedback *models.Feedback) error {
	res := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("feedback", feedback)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormMessageRepository) MarkImplemented(ctx context.Context, userID, id string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("implemented", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
