package testutils

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"identity-api/config"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:    "identity-api-test",
			Version: "test",
			URL:     "http://localhost:8080",
		},
		Auth: config.AuthConfig{
			MinPasswordLength: 8,
			BcryptCost:        bcrypt.MinCost,
		},
		JWT: config.JWTConfig{
			SecretKey:    "test-secret-key-at-least-32-chars-long",
			Algorithm:    "HS512",
			Issuer:       "identity-api",
			Audience:     "identity-api-clients",
			AccessExpiry: time.Hour,
		},
		RefreshToken: config.RefreshTokenConfig{
			Expiry:         7 * 24 * time.Hour,
			TokenLength:    64,
			SweepInterval:  time.Hour,
			CookieName:     "refreshToken",
			CookiePath:     "/api/account",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		RateLimit: config.RateLimitConfig{
			GlobalLimit:      1000,
			GlobalWindow:     time.Hour,
			GlobalQueueLimit: 2,
			AuthBucketSize:   10,
			AuthRefillTokens: 2,
			AuthRefillPeriod: time.Minute,
			APILimit:         100,
			APIWindow:        time.Minute,
			APISegments:      4,
		},
		Redis: config.RedisConfig{
			Addr:     "localhost:6379",
			CacheTTL: 5 * time.Minute,
		},
	}
}
