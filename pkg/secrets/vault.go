package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"ad-assistant/backend/pkg/cache"
	"ad-assistant/backend/pkg/logger"

	vault "github.com/hashicorp/vault/api"
)

var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// VaultConfig holds configuration for the Vault client
type VaultConfig struct {
	Address     string
	Token       string
	Namespace   string
	Timeout     time.Duration
	MaxRetries  int
	SecretsPath string
	MountPath   string
	CacheTTL    time.Duration
	Enabled     bool
}

// VaultManager reads secrets from one KV v2 document in Vault. A single read
// fills the cache for every key in the document. Keys missing from Vault, or
// every key when Vault is disabled, come from the environment.
type VaultManager struct {
	client *vault.Client
	config VaultConfig
	cache  *cache.Cache[string]
	log    *logger.Logger
}

// NewVaultManager creates a manager. With Enabled false no client is built.
func NewVaultManager(config VaultConfig, log *logger.Logger) (*VaultManager, error) {
	if config.Namespace == "" {
		config.Namespace = os.Getenv("VAULT_NAMESPACE")
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.MountPath == "" {
		config.MountPath = "secret"
	}
	if config.SecretsPath == "" {
		config.SecretsPath = "ad-assistant"
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = 5 * time.Minute
	}

	m := &VaultManager{
		config: config,
		cache:  cache.New[string](cache.Options{TTL: config.CacheTTL, PurgeInterval: config.CacheTTL}),
		log:    log,
	}
	if !config.Enabled {
		return m, nil
	}

	if config.Address == "" {
		m.Close()
		return nil, ErrNoVaultAddress
	}
	if config.Token == "" {
		m.Close()
		return nil, ErrNoVaultToken
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = config.Address
	vaultConfig.Timeout = config.Timeout
	vaultConfig.MaxRetries = config.MaxRetries

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(config.Token)
	if config.Namespace != "" {
		client.SetNamespace(config.Namespace)
	}
	m.client = client
	return m, nil
}

// GetSecret returns key from the cache, Vault or the environment, in that order
func (m *VaultManager) GetSecret(ctx context.Context, key string) (string, error) {
	if value, ok := m.cache.Get(key); ok {
		return value, nil
	}

	if m.client != nil {
		value, err := m.loadFromVault(ctx, key)
		switch {
		case err == nil:
			return value, nil
		case !errors.Is(err, ErrSecretNotFound):
			return "", err
		}
		m.log.Debug("Secret not in Vault, falling back to environment", "key", key)
	}

	value := os.Getenv(envKey(key))
	if value == "" {
		return "", ErrSecretNotFound
	}
	m.cache.Set(key, value)
	return value, nil
}

// GetSecretWithDefault returns defaultValue when the secret cannot be read
func (m *VaultManager) GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrSecretNotFound) {
			m.log.Warn("Failed to get secret, using default value", "key", key, "error", err.Error())
		}
		return defaultValue
	}
	return value
}

// loadFromVault reads the whole document, caches every string value in it
// and returns key
func (m *VaultManager) loadFromVault(ctx context.Context, key string) (string, error) {
	secret, err := m.client.KVv2(m.config.MountPath).Get(ctx, m.config.SecretsPath)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return "", ErrSecretNotFound
		}
		m.log.LogError(err, "Failed to read secrets from Vault", "path", m.config.SecretsPath)
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", ErrSecretNotFound
	}

	for k, v := range secret.Data {
		if s, ok := v.(string); ok {
			m.cache.Set(k, s)
		}
	}
	value, ok := secret.Data[key].(string)
	if !ok {
		return "", ErrSecretNotFound
	}
	return value, nil
}

// envKey maps "webhook-token" or "webhook.token" to WEBHOOK_TOKEN
func envKey(key string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

// Close stops the cache purge goroutine
func (m *VaultManager) Close() {
	m.cache.Stop()
}
