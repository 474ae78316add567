// Package assembler gathers the business, campaign and conversation context
// sent alongside each user message.
package assembler

import (
	"context"
	"errors"
	"strings"
	"time"

	"ad-assistant/backend/internal/ids"
	"ad-assistant/backend/internal/models"
	"ad-assistant/backend/internal/repository"
	"ad-assistant/backend/pkg/logger"
	"ad-assistant/backend/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// HistorySource returns a user's newest messages, newest first
type HistorySource interface {
	ListPage(ctx context.Context, userID string, before *time.Time, limit int) ([]models.Message, error)
}

// Options carries the fixed payload settings
type Options struct {
	WebhookURL    string
	ExecutionMode string
	Currency      string
	DataSource    string
	HistoryWindow int
	TimeframeDays int
}

// Request is one user turn to assemble context for
type Request struct {
	UserID  string
	Content string
	// Campaign is set only when the user explicitly referenced one
	Campaign *CampaignRef
	// DataSource overrides Options.DataSource for this turn when set
	DataSource string
}

// Assembler builds webhook payloads
type Assembler struct {
	profiles  repository.ProfileRepository
	history   HistorySource
	campaigns repository.CampaignRepository
	mentions  *MentionStore
	opts      Options
	log       *logger.Logger

	now func() time.Time
}

func New(profiles repository.ProfileRepository, history HistorySource, campaigns repository.CampaignRepository, mentions *MentionStore, opts Options, log *logger.Logger) *Assembler {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 6
	}
	if opts.TimeframeDays <= 0 {
		opts.TimeframeDays = 7
	}
	return &Assembler{
		profiles:  profiles,
		history:   history,
		campaigns: campaigns,
		mentions:  mentions,
		opts:      opts,
		log:       log,
		now:       time.Now,
	}
}

// Assemble gathers context for req. Individual lookups that fail are logged
// and left out; only cancellation of ctx fails the whole assembly.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Payload, error) {
	ctx, span := observability.Tracer().Start(ctx, "assembler.Assemble")
	defer span.End()

	log := logger.FromContext(ctx).WithUserID(req.UserID)
	now := a.now().UTC()
	days := a.opts.TimeframeDays
	start := now.AddDate(0, 0, -days)

	dataSource := a.opts.DataSource
	if req.DataSource != "" {
		dataSource = req.DataSource
	}
	useOrders := dataSource == DataSourceShopify

	target := req.Campaign
	if target != nil {
		span.SetAttributes(attribute.String("campaign.id", target.ID))
		log = log.WithCampaignID(target.ID)
	}

	var (
		product *models.ProductInfo
		change  map[string]any
		summary *string
		history []HistoryTurn
		details *CampaignDetails
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		info, err := a.profiles.ProductInfo(gctx, req.UserID)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				log.LogError(err, "Failed to load product info")
			}
			return gctx.Err()
		}
		product = info
		return nil
	})
	g.Go(func() error {
		memory, err := a.profiles.LatestMemory(gctx, req.UserID)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				log.LogError(err, "Failed to load latest implemented change")
			}
			return gctx.Err()
		}
		change = repository.LatestChange(memory)
		summary = memory.Summary
		return nil
	})
	g.Go(func() error {
		rows, err := a.history.ListPage(gctx, req.UserID, nil, a.opts.HistoryWindow)
		if err != nil {
			log.LogError(err, "Failed to load conversation history")
			history = []HistoryTurn{}
			return gctx.Err()
		}
		history = historyWindow(rows)
		return nil
	})
	if target != nil {
		g.Go(func() error {
			var err error
			details, err = campaignDetails(gctx, a.campaigns, req.UserID, target.ID, truncateDay(start), truncateDay(now), useOrders, log)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// a campaign the user does not own is treated as no reference at all
	if target != nil && details == nil {
		span.SetAttributes(attribute.Bool("campaign.rejected", true))
		target = nil
	}
	if target != nil && a.mentions != nil {
		a.mentions.Remember(req.UserID, target.ID)
	}

	sentAt := now.Format(time.RFC3339Nano)
	payload := &Payload{
		Action:                         ActionGeneralQuery,
		InputMessage:                   strings.TrimSpace(req.Content),
		Timestamp:                      sentAt,
		WebhookURL:                     a.opts.WebhookURL,
		ExecutionMode:                  a.opts.ExecutionMode,
		UserID:                         req.UserID,
		LatestImplementedChange:        change,
		LatestImplementedChangeSummary: summary,
		ProductInfo:                    product,
		Images:                         []string{},
		DataSource:                     dataSource,
		ShopifyAttributionActive:       useOrders,
		Currency:                       a.opts.Currency,
		Timeframe: Timeframe{
			SelectedRange: "last_7_days",
			StartDate:     start.Format(time.DateOnly),
			EndDate:       now.Format(time.DateOnly),
			DaysCount:     days,
		},
		ConversationHistory: history,
		RequestID:           ids.Request(now),
		SentAt:              sentAt,
	}
	if days != 7 {
		payload.Timeframe.SelectedRange = "custom"
	}

	if target != nil {
		payload.Action = ActionAnalyzeCampaign
		payload.TargetCampaignID = target.ID
		payload.CurrentCampaignID = target.ID
		payload.CurrentCampaignName = target.Name
		payload.LastMentionedCampaignID = target.ID
		payload.CampaignName = target.Name
		payload.CampaignID = target.ID
		payload.Status = target.Status
		var orders *orderTotals
		if details.orders != nil && details.orders.campaign.Orders > 0 {
			orders = &details.orders.campaign
		}
		payload.CampaignInsights = campaignInsights(target, orders)
		if target.Spend > 0 {
			daily := target.Spend / float64(days)
			payload.DailySpend = &daily
		}
		payload.CampaignType = details.CampaignType
		payload.Objective = details.Objective
		budget := details.Budget
		payload.Budget = &budget
		payload.AdSets = details.AdSets
	}

	log.Debug("Assembled webhook payload",
		"action", payload.Action,
		"request_id", payload.RequestID,
		"history_turns", len(history),
	)
	return payload, nil
}

// historyWindow turns newest-first rows into chronological turns
func historyWindow(rows []models.Message) []HistoryTurn {
	out := make([]HistoryTurn, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		role := "assistant"
		if r.Role == models.RoleUser {
			role = "user"
		}
		out = append(out, HistoryTurn{
			Role:        role,
			Content:     r.Content,
			Timestamp:   r.CreatedAt,
			Implemented: r.Implemented,
			Feedback:    r.Feedback,
		})
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
