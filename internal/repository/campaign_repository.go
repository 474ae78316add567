package repository

import (
	"context"
	"errors"
	"time"

	"ad-assistant/backend/internal/models"

	"gorm.io/gorm"
)

// CampaignRepository reads synced campaign structure and delivery insights.
// Campaign lookups are scoped to the owning user; ad sets, ads and insights
// are only ever read for ids that came from an owned campaign.
type CampaignRepository interface {
	Campaign(ctx context.Context, userID, campaignID string) (*models.Campaign, error)
	AdSets(ctx context.Context, userID, campaignID string) ([]models.AdSet, error)
	Ads(ctx context.Context, adSetIDs []string) ([]models.Ad, error)
	AdSetInsights(ctx context.Context, adSetIDs []string, from, to time.Time) ([]models.AdSetInsight, error)
	AdInsights(ctx context.Context, adIDs []string, from, to time.Time) ([]models.AdInsight, error)
	AttributedOrders(ctx context.Context, userID string, since time.Time) ([]models.ShopifyOrder, error)
}

type GormCampaignRepository struct {
	db *gorm.DB
}

func NewGormCampaignRepository(db *gorm.DB) *GormCampaignRepository {
	return &GormCampaignRepository{db: db}
}

// Campaign returns ErrNotFound when the campaign does not exist or belongs
// to another user
func (r *GormCampaignRepository) Campaign(ctx context.Context, userID, campaignID string) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.WithContext(ctx).
		Where("facebook_campaign_id = ? AND user_id = ?", campaignID, userID).
		First(&campaign).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (r *GormCampaignRepository) AdSets(ctx context.Context, userID, campaignID string) ([]models.AdSet, error) {
	var adSets []models.AdSet
	err := r.db.WithContext(ctx).
		Where("facebook_campaign_id IN (?)", r.db.Model(&models.Campaign{}).
			Select("facebook_campaign_id").
			Where("facebook_campaign_id = ? AND user_id = ?", campaignID, userID)).
		Order("id ASC").
		Find(&adSets).Error
	return adSets, err
}

func (r *GormCampaignRepository) Ads(ctx context.Context, adSetIDs []string) ([]models.Ad, error) {
	if len(adSetIDs) == 0 {
		return nil, nil
	}
	var ads []models.Ad
	err := r.db.WithContext(ctx).
		Where("facebook_ad_set_id IN ?", adSetIDs).
		Order("id ASC").
		Find(&ads).Error
	return ads, err
}

func (r *GormCampaignRepository) AdSetInsights(ctx context.Context, adSetIDs []string, from, to time.Time) ([]models.AdSetInsight, error) {
	if len(adSetIDs) == 0 {
		return nil, nil
	}
	var insights []models.AdSetInsight
	err := r.db.WithContext(ctx).
		Where("facebook_ad_set_id IN ?", adSetIDs).
		Where("date_start >= ? AND date_start <= ?", from, to).
		Find(&insights).Error
	return insights, err
}

func (r *GormCampaignRepository) AdInsights(ctx context.Context, adIDs []string, from, to time.Time) ([]models.AdInsight, error) {
	if len(adIDs) == 0 {
		return nil, nil
	}
	var insights []models.AdInsight
	err := r.db.WithContext(ctx).
		Where("facebook_ad_id IN ?", adIDs).
		Where("date_start >= ? AND date_start <= ?", from, to).
		Find(&insights).Error
	return insights, err
}

// AttributedOrders returns the user's store orders placed since the given
// time that carry this product's utm source
func (r *GormCampaignRepository) AttributedOrders(ctx context.Context, userID string, since time.Time) ([]models.ShopifyOrder, error) {
	var orders []models.ShopifyOrder
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND utm_source = ?", userID, models.AttributionSource).
		Where("created_at >= ?", since).
		Find(&orders).Error
	return orders, err
}
