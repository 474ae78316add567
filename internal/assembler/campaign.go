package assembler

import (
	"context"
	"errors"
	"time"

	"ad-assistant/backend/internal/models"
	"ad-assistant/backend/internal/repository"
	"ad-assistant/backend/pkg/logger"
)

const (
	defaultObjective        = "OUTCOME_SALES"
	defaultCampaignType     = "CBO"
	defaultOptimizationGoal = "OFFSITE_CONVERSIONS"
	unknownStatus           = "UNKNOWN"
)

// metricsAccumulator sums raw insight rows before ratios are derived
type metricsAccumulator struct {
	m Metrics
}

func (a *metricsAccumulator) add(f models.InsightFields) {
	a.m.Impressions += f.Impressions
	a.m.Clicks += f.Clicks
	a.m.Reach += f.Reach
	a.m.Spend += f.Spend

	actions := f.Actions.Data()
	values := f.ActionValues.Data()
	a.m.Purchases += actionValue(actions, "purchase")
	a.m.Revenue += actionValue(values, "purchase")
	a.m.AddToCarts += actionValue(actions, "add_to_cart")
	a.m.Checkouts += actionValue(actions, "initiate_checkout")
}

func (a *metricsAccumulator) result() Metrics {
	m := a.m
	if m.Impressions > 0 {
		m.CTR = float64(m.Clicks) / float64(m.Impressions) * 100
		m.CPM = m.Spend / float64(m.Impressions) * 1000
	}
	if m.Clicks > 0 {
		m.CPC = m.Spend / float64(m.Clicks)
	}
	m.ROAS = roas(m.Revenue, m.Spend)
	if m.Purchases > 0 {
		m.CostPerPurchase = m.Spend / m.Purchases
		m.AverageOrderValue = m.Revenue / m.Purchases
	}
	return m
}

// roas is revenue over spend, zero when both are zero and null when revenue
// arrived without spend
func roas(revenue, spend float64) *float64 {
	switch {
	case spend > 0:
		v := revenue / spend
		return &v
	case revenue > 0:
		return nil
	default:
		v := 0.0
		return &v
	}
}

func actionValue(stats []models.ActionStat, actionType string) float64 {
	for _, s := range stats {
		if s.ActionType == actionType {
			return s.Float()
		}
	}
	return 0
}

func cents(v int64) float64 {
	return float64(v) / 100
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// orderTotals is store revenue attributed to one campaign, ad set or ad
type orderTotals struct {
	Revenue float64
	Orders  float64
}

// attribution groups attributed store orders by the utm tags that identify
// the campaign, ad set and ad
type attribution struct {
	campaign orderTotals
	adSets   map[string]orderTotals
	ads      map[string]orderTotals
}

func attributeOrders(orders []models.ShopifyOrder, campaignID string) *attribution {
	out := &attribution{adSets: map[string]orderTotals{}, ads: map[string]orderTotals{}}
	for _, o := range orders {
		if o.UTMCampaign == campaignID {
			out.campaign.Revenue += o.TotalPrice
			out.campaign.Orders++
		}
		if o.UTMContent != "" {
			t := out.adSets[o.UTMContent]
			t.Revenue += o.TotalPrice
			t.Orders++
			out.adSets[o.UTMContent] = t
		}
		if o.UTMTerm != "" {
			t := out.ads[o.UTMTerm]
			t.Revenue += o.TotalPrice
			t.Orders++
			out.ads[o.UTMTerm] = t
		}
	}
	return out
}

// withOrders replaces platform-reported purchases and revenue with store
// orders and derives the dependent ratios again
func (m Metrics) withOrders(t orderTotals) Metrics {
	m.Purchases = t.Orders
	m.Revenue = t.Revenue
	m.ROAS = roas(m.Revenue, m.Spend)
	m.CostPerPurchase, m.AverageOrderValue = 0, 0
	if m.Purchases > 0 {
		m.CostPerPurchase = m.Spend / m.Purchases
		m.AverageOrderValue = m.Revenue / m.Purchases
	}
	return m
}

// campaignDetails builds the deep snapshot of one of userID's campaigns over
// [from, to]. It returns nil details when the campaign row cannot be read
// for that user. Once the campaign is found, failed lookups are logged and
// degrade to defaults so a partial snapshot still reaches the assistant.
// With useOrders, store orders replace platform purchase and revenue figures
// wherever they are attributed.
func campaignDetails(ctx context.Context, repo repository.CampaignRepository, userID, campaignID string, from, to time.Time, useOrders bool, log *logger.Logger) (*CampaignDetails, error) {
	campaign, err := repo.Campaign(ctx, userID, campaignID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("Referenced campaign is not owned by user", "campaign_id", campaignID)
		} else {
			log.LogError(err, "Failed to load referenced campaign", "campaign_id", campaignID)
		}
		return nil, ctx.Err()
	}

	details := &CampaignDetails{
		Objective:    orDefault(campaign.Objective, defaultObjective),
		CampaignType: defaultCampaignType,
		AdSets:       []AdSetSnapshot{},
	}
	budget := campaign.DailyBudget
	if budget == 0 {
		budget = campaign.LifetimeBudget
	}
	details.Budget = cents(budget)
	switch campaign.BuyingType {
	case "AUCTION", "":
	default:
		details.CampaignType = campaign.BuyingType
	}

	if useOrders {
		orders, err := repo.AttributedOrders(ctx, userID, from)
		if err != nil {
			log.LogError(err, "Failed to load attributed orders")
		} else {
			details.orders = attributeOrders(orders, campaignID)
		}
	}

	adSets, err := repo.AdSets(ctx, userID, campaignID)
	if err != nil {
		log.LogError(err, "Failed to load ad sets")
	}
	if len(adSets) == 0 {
		return details, ctx.Err()
	}

	adSetIDs := make([]string, 0, len(adSets))
	for _, as := range adSets {
		adSetIDs = append(adSetIDs, as.FacebookAdSetID)
	}

	ads, err := repo.Ads(ctx, adSetIDs)
	if err != nil {
		log.LogError(err, "Failed to load ads")
	}
	adIDs := make([]string, 0, len(ads))
	for _, ad := range ads {
		adIDs = append(adIDs, ad.FacebookAdID)
	}

	adSetInsights, err := repo.AdSetInsights(ctx, adSetIDs, from, to)
	if err != nil {
		log.LogError(err, "Failed to load ad set insights")
	}
	adInsights, err := repo.AdInsights(ctx, adIDs, from, to)
	if err != nil {
		log.LogError(err, "Failed to load ad insights")
	}

	adSetMetrics := make(map[string]*metricsAccumulator)
	for _, in := range adSetInsights {
		acc := adSetMetrics[in.FacebookAdSetID]
		if acc == nil {
			acc = &metricsAccumulator{}
			adSetMetrics[in.FacebookAdSetID] = acc
		}
		acc.add(in.Fields)
	}
	adMetrics := make(map[string]*metricsAccumulator)
	for _, in := range adInsights {
		acc := adMetrics[in.FacebookAdID]
		if acc == nil {
			acc = &metricsAccumulator{}
			adMetrics[in.FacebookAdID] = acc
		}
		acc.add(in.Fields)
	}

	metricsFor := func(accs map[string]*metricsAccumulator, attributed map[string]orderTotals, id string) Metrics {
		m := (&metricsAccumulator{}).result()
		if acc, ok := accs[id]; ok {
			m = acc.result()
		}
		if t, ok := attributed[id]; ok {
			m = m.withOrders(t)
		}
		return m
	}
	var adSetOrders, adOrders map[string]orderTotals
	if details.orders != nil {
		adSetOrders, adOrders = details.orders.adSets, details.orders.ads
	}

	for _, as := range adSets {
		snapshot := AdSetSnapshot{
			ID:               as.FacebookAdSetID,
			Name:             orDefault(as.Name, "Unknown Ad Set"),
			Status:           orDefault(as.Status, unknownStatus),
			OptimizationGoal: orDefault(as.OptimizationGoal, defaultOptimizationGoal),
			Budget:           Budget{Daily: cents(as.DailyBudget), Lifetime: cents(as.LifetimeBudget)},
			Metrics:          metricsFor(adSetMetrics, adSetOrders, as.FacebookAdSetID),
			Ads:              []AdSnapshot{},
		}
		for _, ad := range ads {
			if ad.FacebookAdSetID != as.FacebookAdSetID {
				continue
			}
			status := orDefault(ad.Status, unknownStatus)
			snapshot.Ads = append(snapshot.Ads, AdSnapshot{
				ID:              ad.FacebookAdID,
				Name:            orDefault(ad.Name, "Unknown Ad"),
				Status:          status,
				EffectiveStatus: orDefault(ad.EffectiveStatus, status),
				Metrics:         metricsFor(adMetrics, adOrders, ad.FacebookAdID),
				Actions:         []string{},
				ActionValues:    []string{},
			})
		}
		details.AdSets = append(details.AdSets, snapshot)
	}

	return details, ctx.Err()
}

// campaignInsights summarises the headline numbers the user saw when
// referencing the campaign. Attributed store orders, when present, replace
// the platform's conversions and revenue.
func campaignInsights(c *CampaignRef, orders *orderTotals) *CampaignInsights {
	metaROAS := c.ROAS
	out := &CampaignInsights{
		Spend:           c.Spend,
		Conversions:     c.Purchases,
		Revenue:         c.Revenue,
		ROAS:            &metaROAS,
		Purchases:       c.Purchases,
		MetaConversions: c.Purchases,
		MetaRevenue:     c.Revenue,
		MetaROAS:        c.ROAS,
		Actions:         []string{},
		ActionValues:    []string{},
		DataSource:      DataSourceMeta,
	}
	if orders != nil {
		shopifyROAS := roas(orders.Revenue, c.Spend)
		out.Conversions = orders.Orders
		out.Revenue = orders.Revenue
		out.ROAS = shopifyROAS
		out.Purchases = orders.Orders
		out.ShopifyConversions = &orders.Orders
		out.ShopifyRevenue = &orders.Revenue
		out.ShopifyROAS = shopifyROAS
		out.UsesShopifyData = true
		out.DataSource = DataSourceShopify
	}
	if out.Purchases > 0 {
		out.CostPerPurchase = out.Spend / out.Purchases
		out.AverageOrderValue = out.Revenue / out.Purchases
	}
	return out
}
