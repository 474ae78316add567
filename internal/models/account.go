package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// FreeTier is the subscription tier subject to the message quota
const FreeTier = "free"

// Subscriber holds the plan a user is on
type Subscriber struct {
	UserID           string    `json:"user_id" gorm:"primaryKey;type:varchar(64)"`
	SubscriptionTier string    `json:"subscription_tier" gorm:"type:varchar(32)"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsFree reports whether the subscriber is on the free tier
func (s *Subscriber) IsFree() bool {
	tier := strings.ToLower(strings.TrimSpace(s.SubscriptionTier))
	return tier == "" || tier == FreeTier
}

// ProductInfo is the business profile a user filled in during onboarding
type ProductInfo struct {
	ID                  uint    `json:"-" gorm:"primaryKey"`
	UserID              string  `json:"-" gorm:"type:varchar(64);uniqueIndex"`
	ProductName         string  `json:"product_name,omitempty"`
	ProductDescription  string  `json:"product_description,omitempty"`
	BusinessType        string  `json:"business_type,omitempty"`
	TargetAudience      string  `json:"target_audience,omitempty"`
	MainGoals           string  `json:"main_goals,omitempty"`
	MonthlyAdSpend      float64 `json:"monthly_ad_spend,omitempty"`
	ProductPrice        float64 `json:"product_price,omitempty"`
	CostOfGoods         float64 `json:"cost_of_goods,omitempty"`
	MediaBuyingStrategy string  `json:"media_buying_strategy,omitempty"`
}

// TableName overrides the default table name
func (ProductInfo) TableName() string {
	return "product_info"
}

// ConversationMemory records what the assistant changed and why
type ConversationMemory struct {
	ID                 uint           `json:"id" gorm:"primaryKey"`
	UserID             string         `json:"user_id" gorm:"type:varchar(64);index"`
	CampaignID         *string        `json:"campaign_id"`
	ImplementedChanges datatypes.JSON `json:"implemented_changes"`
	Summary            *string        `json:"summary"`
	CreatedAt          time.Time      `json:"created_at" gorm:"index"`
}

// TableName overrides the default table name
func (ConversationMemory) TableName() string {
	return "conversation_memory"
}
