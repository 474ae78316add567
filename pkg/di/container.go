package di

import (
	"context"
	"fmt"

	"ad-assistant/backend/internal/assembler"
	"ad-assistant/backend/internal/execution"
	"ad-assistant/backend/internal/gateway"
	"ad-assistant/backend/internal/quota"
	"ad-assistant/backend/internal/realtime"
	"ad-assistant/backend/internal/repository"
	"ad-assistant/backend/internal/service"
	"ad-assistant/backend/internal/ws"
	"ad-assistant/backend/pkg/cache"
	"ad-assistant/backend/pkg/config"
	"ad-assistant/backend/pkg/health"
	"ad-assistant/backend/pkg/jwt"
	"ad-assistant/backend/pkg/logger"
	"ad-assistant/backend/pkg/secrets"
	"ad-assistant/backend/shared/redis"

	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	Config     *config.Config
	DB         *gorm.DB
	Redis      *redis.RedisClient
	Logger     *logger.Logger
	JWTService *jwt.Service
	Secrets    *secrets.VaultManager

	Messages      *repository.GormMessageRepository
	ExecutionLogs *repository.GormExecutionLogRepository
	Broker        *realtime.Broker
	Mentions      *assembler.MentionStore
	Gate          *quota.Gate
	Sessions      *service.SessionManager

	ChatService *service.ChatService
	Executor    *execution.Coordinator
	Hub         *ws.Hub
	Health      *health.Checker

	mentionCache *cache.Cache[string]
}

// New wires the chat pipeline on top of an open database and redis client
func New(cfg *config.Config, db *gorm.DB, rdb *redis.RedisClient, log *logger.Logger) (*Container, error) {
	sm, err := secrets.NewVaultManager(secrets.VaultConfig{
		Address:     cfg.Vault.Address,
		Token:       cfg.Vault.Token,
		MountPath:   cfg.Vault.MountPath,
		SecretsPath: cfg.Vault.Path,
		Enabled:     cfg.Vault.Enabled,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create secrets manager: %w", err)
	}

	// Repositories
	messages := repository.NewGormMessageRepository(db)
	subscribers := repository.NewGormSubscriberRepository(db)
	profiles := repository.NewGormProfileRepository(db)
	campaigns := repository.NewGormCampaignRepository(db)
	executionLogs := repository.NewGormExecutionLogRepository(db)

	// Live views
	broker := realtime.NewBroker(rdb, cfg.Redis.ChannelPrefix, log)
	gate := quota.NewGate(subscribers, messages, cfg.Chat.FreeMessageLimit, log)
	sessions := service.NewSessionManager(messages, broker, gate, cfg.Chat.PageSize, cfg.Chat.SessionIdleTTL, log)

	// Context assembly and upstream clients
	mentionCache := cache.New[string](cache.Options{
		TTL:           cfg.Cache.TTL,
		PurgeInterval: cfg.Cache.PurgeWindow,
		MaxSize:       cfg.Cache.MaxSize,
	})
	mentions := assembler.NewMentionStore(mentionCache, rdb, profiles, cfg.Redis.MentionTTL, log)
	asm := assembler.New(profiles, messages, campaigns, mentions, assembler.Options{
		WebhookURL:    cfg.Services.WebhookURL,
		ExecutionMode: cfg.Chat.ExecutionMode,
		Currency:      cfg.Chat.Currency,
		DataSource:    cfg.Chat.DataSource,
		HistoryWindow: cfg.Chat.HistoryWindow,
		TimeframeDays: cfg.Chat.TimeframeDays,
	}, log)
	gw := gateway.NewClient(gateway.Config{
		URL:     cfg.Services.WebhookURL,
		Timeout: cfg.Services.WebhookTimeout,
	}, sm, log)
	dispatcher := execution.NewServiceClient(execution.ServiceConfig{
		URL:     cfg.Services.ExecutionServiceURL,
		Timeout: cfg.Services.ExecutionTimeout,
	}, sm, log)

	chat := service.NewChatService(sessions, gate, messages, asm, gw, broker, service.ChatConfig{
		RevealDuration: cfg.Chat.RevealDuration,
		RevealSteps:    cfg.Chat.RevealSteps,
	}, log)
	executor := execution.NewCoordinator(messages, executionLogs, dispatcher, sessions, log)
	hub := ws.NewHub(sessions, chat, executor, cfg.Security.AllowedOrigins, log)

	checker := health.NewChecker(log, cfg.Observability.HealthInterval)
	checker.RegisterDatabaseCheck(func(ctx context.Context) error {
		return config.Ping(ctx, db)
	})
	checker.RegisterRedisCheck(rdb.Ping)
	if cfg.Services.WebhookURL != "" {
		checker.RegisterAPICheck("webhook", cfg.Services.WebhookURL, nil)
	}

	return &Container{
		Config:        cfg,
		DB:            db,
		Redis:         rdb,
		Logger:        log,
		JWTService:    jwt.NewService(cfg.JWT.Secret, cfg.JWT.Expiry),
		Secrets:       sm,
		Messages:      messages,
		ExecutionLogs: executionLogs,
		Broker:        broker,
		Mentions:      mentions,
		Gate:          gate,
		Sessions:      sessions,
		ChatService:   chat,
		Executor:      executor,
		Hub:           hub,
		Health:        checker,
		mentionCache:  mentionCache,
	}, nil
}

// Close releases background resources in reverse order of creation. The
// database and redis client belong to the caller.
func (c *Container) Close() {
	c.Sessions.Close()
	c.Broker.Close()
	c.Mentions.Wait()
	c.mentionCache.Stop()
	c.Secrets.Close()
}
