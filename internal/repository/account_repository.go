package repository

import (
	"context"
	"encoding/json"
	"errors"

	"ad-assistant/backend/internal/models"

	"gorm.io/gorm"
)

// ExecutionLogRepository stores the audit trail of applied operations
type ExecutionLogRepository interface {
	Create(ctx context.Context, entry *models.ExecutionLog) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.ExecutionLog, error)
}

type GormExecutionLogRepository struct {
	db *gorm.DB
}

func NewGormExecutionLogRepository(db *gorm.DB) *GormExecutionLogRepository {
	return &GormExecutionLogRepository{db: db}
}

func (r *GormExecutionLogRepository) Create(ctx context.Context, entry *models.ExecutionLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *GormExecutionLogRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.ExecutionLog, error) {
	var entries []models.ExecutionLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("executed_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// SubscriberRepository reads plan tiers
type SubscriberRepository interface {
	Get(ctx context.Context, userID string) (*models.Subscriber, error)
}

type GormSubscriberRepository struct {
	db *gorm.DB
}

func NewGormSubscriberRepository(db *gorm.DB) *GormSubscriberRepository {
	return &GormSubscriberRepository{db: db}
}

func (r *GormSubscriberRepository) Get(ctx context.Context, userID string) (*models.Subscriber, error) {
	var sub models.Subscriber
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ProfileRepository reads the per-user business context fed to the assistant
type ProfileRepository interface {
	ProductInfo(ctx context.Context, userID string) (*models.ProductInfo, error)
	LatestMemory(ctx context.Context, userID string) (*models.ConversationMemory, error)
	LatestMentionedCampaign(ctx context.Context, userID string) (string, error)
}

type GormProfileRepository struct {
	db *gorm.DB
}

func NewGormProfileRepository(db *gorm.DB) *GormProfileRepository {
	return &GormProfileRepository{db: db}
}

func (r *GormProfileRepository) ProductInfo(ctx context.Context, userID string) (*models.ProductInfo, error) {
	var info models.ProductInfo
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&info).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (r *GormProfileRepository) LatestMemory(ctx context.Context, userID string) (*models.ConversationMemory, error) {
	var memory models.ConversationMemory
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&memory).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &memory, nil
}

func (r *GormProfileRepository) LatestMentionedCampaign(ctx context.Context, userID string) (string, error) {
	var memory models.ConversationMemory
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND campaign_id IS NOT NULL AND campaign_id <> ''", userID).
		Order("created_at DESC").
		First(&memory).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return *memory.CampaignID, nil
}

// LatestChange returns the last element of the memory's implemented changes
// or nil when the list is empty or malformed.
func LatestChange(memory *models.ConversationMemory) map[string]any {
	if memory == nil || len(memory.ImplementedChanges) == 0 {
		return nil
	}
	var changes []map[string]any
	if err := json.Unmarshal(memory.ImplementedChanges, &changes); err != nil || len(changes) == 0 {
		return nil
	}
	return changes[len(changes)-1]
}
