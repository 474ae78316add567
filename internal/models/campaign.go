package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Campaign mirrors a synced advertising campaign. Budgets are stored in cents.
type Campaign struct {
	ID                 uint   `gorm:"primaryKey"`
	FacebookCampaignID string `gorm:"type:varchar(64);uniqueIndex"`
	UserID             string `gorm:"type:varchar(64);index"`
	Name               string
	Status             string
	Objective          string
	BuyingType         string
	DailyBudget        int64
	LifetimeBudget     int64
}

// TableName overrides the default table name
func (Campaign) TableName() string {
	return "facebook_campaigns"
}

// AdSet is a budgeted grouping of ads inside a campaign
type AdSet struct {
	ID                 uint   `gorm:"primaryKey"`
	FacebookAdSetID    string `gorm:"type:varchar(64);uniqueIndex"`
	FacebookCampaignID string `gorm:"type:varchar(64);index"`
	Name               string
	Status             string
	OptimizationGoal   string
	DailyBudget        int64
	LifetimeBudget     int64
}

// TableName overrides the default table name
func (AdSet) TableName() string {
	return "facebook_ad_sets"
}

// Ad is a single creative unit inside an ad set
type Ad struct {
	ID              uint   `gorm:"primaryKey"`
	FacebookAdID    string `gorm:"type:varchar(64);uniqueIndex"`
	FacebookAdSetID string `gorm:"type:varchar(64);index"`
	Name            string
	Status          string
	EffectiveStatus string
}

// TableName overrides the default table name
func (Ad) TableName() string {
	return "facebook_ads"
}

// ActionStat is one entry of the platform's actions or action_values arrays.
// Values arrive either as numbers or numeric strings.
type ActionStat struct {
	ActionType string      `json:"action_type"`
	Value      json.Number `json:"value"`
}

// Float returns the numeric value, or zero when it does not parse
func (a ActionStat) Float() float64 {
	f, err := a.Value.Float64()
	if err != nil {
		return 0
	}
	return f
}

// InsightFields are the daily delivery numbers shared by ad set and ad insights
type InsightFields struct {
	Spend        float64
	Impressions  int64
	Clicks       int64
	Reach        int64
	Actions      datatypes.JSONType[[]ActionStat]
	ActionValues datatypes.JSONType[[]ActionStat]
	DateStart    time.Time `gorm:"index"`
}

// AdSetInsight is one day of delivery for an ad set
type AdSetInsight struct {
	ID              uint          `gorm:"primaryKey"`
	FacebookAdSetID string        `gorm:"type:varchar(64);index"`
	Fields          InsightFields `gorm:"embedded"`
}

// TableName overrides the default table name
func (AdSetInsight) TableName() string {
	return "facebook_ad_set_insights"
}

// AdInsight is one day of delivery for an ad
type AdInsight struct {
	ID           uint          `gorm:"primaryKey"`
	FacebookAdID string        `gorm:"type:varchar(64);index"`
	Fields       InsightFields `gorm:"embedded"`
}

// TableName overrides the default table name
func (AdInsight) TableName() string {
	return "facebook_ad_insights"
}

// AttributionSource is the utm_source our ad links carry into the store
const AttributionSource = "bront"

// ShopifyOrder is a store order with the utm tags of the ad that drove it.
// utm_campaign, utm_content and utm_term hold the campaign, ad set and ad ids.
type ShopifyOrder struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      string `gorm:"type:varchar(64);index"`
	TotalPrice  float64
	UTMSource   string    `gorm:"column:utm_source;type:varchar(64)"`
	UTMCampaign string    `gorm:"column:utm_campaign;type:varchar(64)"`
	UTMContent  string    `gorm:"column:utm_content;type:varchar(64)"`
	UTMTerm     string    `gorm:"column:utm_term;type:varchar(64)"`
	CreatedAt   time.Time `gorm:"index"`
}

// TableName overrides the default table name
func (ShopifyOrder) TableName() string {
	return "shopify_orders"
}

// All returns every model the service migrates
func All() []any {
	return []any{
		&Message{},
		&ExecutionLog{},
		&Subscriber{},
		&ProductInfo{},
		&ConversationMemory{},
		&Campaign{},
		&AdSet{},
		&Ad{},
		&AdSetInsight{},
		&AdInsight{},
		&ShopifyOrder{},
	}
}
