package assembler

import (
	"time"

	"ad-assistant/backend/internal/models"
)

// Payload actions
const (
	ActionAnalyzeCampaign = "analyze_selected_campaign"
	ActionGeneralQuery    = "general_query"
)

// Data sources for purchase and revenue figures
const (
	DataSourceMeta    = "meta"
	DataSourceShopify = "shopify"
)

// CampaignRef is a campaign the user explicitly referenced, carrying the
// aggregates shown to them when they picked it
type CampaignRef struct {
	ID        string  `json:"id" binding:"required"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Spend     float64 `json:"spend"`
	Revenue   float64 `json:"revenue"`
	ROAS      float64 `json:"roas"`
	Purchases float64 `json:"purchases"`
}

// Timeframe describes the trailing window metrics were computed over
type Timeframe struct {
	SelectedRange string `json:"selected_range"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	DaysCount     int    `json:"days_count"`
}

// HistoryTurn is one message in the recent conversation window
type HistoryTurn struct {
	Role        string           `json:"role"`
	Content     string           `json:"content"`
	Timestamp   time.Time        `json:"timestamp"`
	Implemented bool             `json:"implemented"`
	Feedback    *models.Feedback `json:"feedback"`
}

// Metrics are per-unit delivery aggregates. ROAS is null when revenue was
// attributed without any spend.
type Metrics struct {
	Impressions       int64    `json:"impressions"`
	Clicks            int64    `json:"clicks"`
	Reach             int64    `json:"reach"`
	Spend             float64  `json:"spend"`
	CTR               float64  `json:"ctr"`
	CPC               float64  `json:"cpc"`
	CPM               float64  `json:"cpm"`
	Purchases         float64  `json:"purchases"`
	AddToCarts        float64  `json:"add_to_carts"`
	Checkouts         float64  `json:"checkouts"`
	Revenue           float64  `json:"revenue"`
	ROAS              *float64 `json:"roas"`
	CostPerPurchase   float64  `json:"cost_per_purchase"`
	AverageOrderValue float64  `json:"average_order_value"`
}

// Budget is expressed in currency units, not cents
type Budget struct {
	Daily    float64 `json:"daily"`
	Lifetime float64 `json:"lifetime"`
}

type AdSnapshot struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Status          string   `json:"status"`
	EffectiveStatus string   `json:"effective_status"`
	Metrics         Metrics  `json:"metrics"`
	Actions         []string `json:"actions"`
	ActionValues    []string `json:"action_values"`
}

type AdSetSnapshot struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Status           string       `json:"status"`
	OptimizationGoal string       `json:"optimization_goal"`
	Budget           Budget       `json:"budget"`
	Metrics          Metrics      `json:"metrics"`
	Ads              []AdSnapshot `json:"ads"`
}

// CampaignDetails is the deep snapshot of a referenced campaign
type CampaignDetails struct {
	Budget       float64         `json:"budget"`
	Objective    string          `json:"objective"`
	CampaignType string          `json:"campaign_type"`
	AdSets       []AdSetSnapshot `json:"ad_sets"`

	orders *attribution
}

// CampaignInsights summarises the referenced campaign's headline numbers
type CampaignInsights struct {
	Impressions        int64    `json:"impressions"`
	Clicks             int64    `json:"clicks"`
	CTR                float64  `json:"ctr"`
	CPC                float64  `json:"cpc"`
	CPM                float64  `json:"cpm"`
	Spend              float64  `json:"spend"`
	Conversions        float64  `json:"conversions"`
	Revenue            float64  `json:"revenue"`
	ROAS               *float64 `json:"roas"`
	Purchases          float64  `json:"purchases"`
	CostPerPurchase    float64  `json:"cost_per_purchase"`
	AverageOrderValue  float64  `json:"average_order_value"`
	MetaConversions    float64  `json:"meta_conversions"`
	MetaRevenue        float64  `json:"meta_revenue"`
	MetaROAS           float64  `json:"meta_roas"`
	ShopifyConversions *float64 `json:"shopify_conversions,omitempty"`
	ShopifyRevenue     *float64 `json:"shopify_revenue,omitempty"`
	ShopifyROAS        *float64 `json:"shopify_roas,omitempty"`
	UsesShopifyData    bool     `json:"uses_shopify_data"`
	Actions            []string `json:"actions"`
	ActionValues       []string `json:"action_values"`
	DataSource         string   `json:"data_source"`
}

// Payload is the body posted to the conversation webhook for one turn
type Payload struct {
	Action                         string              `json:"action"`
	InputMessage                   string              `json:"input_message"`
	Timestamp                      string              `json:"timestamp"`
	WebhookURL                     string              `json:"webhookUrl"`
	ExecutionMode                  string              `json:"executionMode"`
	UserID                         string              `json:"user_id"`
	TargetCampaignID               string              `json:"target_campaign_id,omitempty"`
	LatestImplementedChange        map[string]any      `json:"latest_implemented_change,omitempty"`
	LatestImplementedChangeSummary *string             `json:"latest_implemented_change_summary"`
	ConversationMemoryRowID        *string             `json:"conversation_memory_row_id"`
	ProductInfo                    *models.ProductInfo `json:"product_info,omitempty"`
	Images                         []string            `json:"images"`
	CurrentCampaignID              string              `json:"current_campaign_id,omitempty"`
	CurrentCampaignName            string              `json:"current_campaign_name,omitempty"`
	LastMentionedCampaignID        string              `json:"last_mentioned_campaign_id,omitempty"`
	CampaignName                   string              `json:"campaign_name,omitempty"`
	CampaignID                     string              `json:"campaign_id,omitempty"`
	CampaignType                   string              `json:"campaign_type,omitempty"`
	DataSource                     string              `json:"data_source"`
	ShopifyAttributionActive       bool                `json:"shopify_attribution_active"`
	Currency                       string              `json:"currency"`
	Timeframe                      Timeframe           `json:"timeframe"`
	Status                         string              `json:"status,omitempty"`
	Objective                      string              `json:"objective,omitempty"`
	Budget                         *float64            `json:"budget,omitempty"`
	AdSets                         []AdSetSnapshot     `json:"ad_sets,omitempty"`
	ConversationHistory            []HistoryTurn       `json:"conversation_history"`
	RequestID                      string              `json:"request_id"`
	SentAt                         string              `json:"sent_at"`
	CampaignInsights               *CampaignInsights   `json:"campaignInsights,omitempty"`
	DailySpend                     *float64            `json:"daily_spend,omitempty"`
}
