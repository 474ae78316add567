package jwt

import (
	"time"
)

// DevSecret is used when no secret is configured
const DevSecret = "devJwtSecretDoNotUseInProduction"

// Service signs and validates tokens with one secret
type Service struct {
	secretKey []byte
	expiry    time.Duration
}

// NewService creates a new JWT service
func NewService(secretKey string, expiry time.Duration) *Service {
	if secretKey == "" {
		secretKey = DevSecret
	}
	if expiry == 0 {
		expiry = 24 * time.Hour
	}
	return &Service{
		secretKey: []byte(secretKey),
		expiry:    expiry,
	}
}

// GenerateToken generates a JWT token for a user
func (s *Service) GenerateToken(userID, email string) (string, error) {
	return sign(s.secretKey, userID, email, time.Now(), s.expiry)
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return parse(s.secretKey, tokenString)
}
