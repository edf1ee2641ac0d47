package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App          AppConfig          `envPrefix:"APP_"`
	Server       ServerConfig       `envPrefix:"SERVER_"`
	Log          LogConfig          `envPrefix:"LOG_"`
	Database     DatabaseConfig     `envPrefix:"DATABASE_"`
	Auth         AuthConfig         `envPrefix:"AUTH_"`
	JWT          JWTConfig          `envPrefix:"JWT_"`
	RefreshToken RefreshTokenConfig `envPrefix:"REFRESH_TOKEN_"`
	RateLimit    RateLimitConfig    `envPrefix:"RATE_LIMIT_"`
	Redis        RedisConfig        `envPrefix:"REDIS_"`
}

type AppConfig struct {
	Name    string `env:"NAME" envDefault:"identity-api"`
	Version string `env:"VERSION" envDefault:"dev"`
	URL     string `env:"URL" envDefault:"http://localhost:8080"`
}

type ServerConfig struct {
	Host string `env:"HOST" envDefault:"localhost"`
	Port string `env:"PORT" envDefault:"8080"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"app.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type AuthConfig struct {
	MinPasswordLength int `env:"MIN_PASSWORD_LENGTH" envDefault:"8"`
	BcryptCost        int `env:"BCRYPT_COST" envDefault:"10"`
}

type JWTConfig struct {
	SecretKey    string        `env:"SECRET_KEY"`
	Algorithm    string        `env:"ALGORITHM" envDefault:"HS512"`
	Issuer       string        `env:"ISSUER" envDefault:"identity-api"`
	Audience     string        `env:"AUDIENCE" envDefault:"identity-api-clients"`
	AccessExpiry time.Duration `env:"ACCESS_EXPIRY" envDefault:"24h"`
}

type RefreshTokenConfig struct {
	Expiry         time.Duration `env:"EXPIRY" envDefault:"168h"`
	TokenLength    int           `env:"TOKEN_LENGTH" envDefault:"64"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"24h"`
	CookieName     string        `env:"COOKIE_NAME" envDefault:"refreshToken"`
	// CookiePath must cover every account route that reads the cookie
	// (refresh and logout), so it is scoped to the account group rather
	// than the refresh endpoint alone.
	CookiePath     string        `env:"COOKIE_PATH" envDefault:"/api/account"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000"`
}

type RateLimitConfig struct {
	GlobalLimit      int           `env:"GLOBAL_LIMIT" envDefault:"1000"`
	GlobalWindow     time.Duration `env:"GLOBAL_WINDOW" envDefault:"1h"`
	GlobalQueueLimit int           `env:"GLOBAL_QUEUE_LIMIT" envDefault:"2"`
	AuthBucketSize   int           `env:"AUTH_BUCKET_SIZE" envDefault:"10"`
	AuthRefillTokens int           `env:"AUTH_REFILL_TOKENS" envDefault:"2"`
	AuthRefillPeriod time.Duration `env:"AUTH_REFILL_PERIOD" envDefault:"1m"`
	APILimit         int           `env:"API_LIMIT" envDefault:"100"`
	APIWindow        time.Duration `env:"API_WINDOW" envDefault:"1m"`
	APISegments      int           `env:"API_SEGMENTS" envDefault:"4"`
}

type RedisConfig struct {
	Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
	Password string        `env:"PASSWORD" envDefault:""`
	DB       int           `env:"DB" envDefault:"0"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"5m"`
}

func LoadConfig(cfg *Config) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return err
	}

	return Validate(cfg)
}

func Validate(cfg *Config) error {
	if err := ValidateJWTConfig(cfg.JWT); err != nil {
		return err
	}

	if cfg.RefreshToken.Expiry <= 0 {
		return fmt.Errorf("refresh token expiry must be positive")
	}
	if cfg.RefreshToken.TokenLength < 64 {
		return fmt.Errorf("refresh token length must be at least 64 bytes")
	}
	if cfg.RateLimit.APISegments <= 0 {
		return fmt.Errorf("rate limit window segments must be positive")
	}

	return nil
}

func ValidateJWTConfig(cfg JWTConfig) error {
	if len(cfg.SecretKey) < 32 {
		return fmt.Errorf("JWT secret key must be at least 32 characters long")
	}

	switch cfg.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("unsupported JWT algorithm: %s (supported: HS256, HS384, HS512)", cfg.Algorithm)
	}

	if cfg.Issuer == "" {
		return fmt.Errorf("JWT issuer must not be empty")
	}
	if cfg.Audience == "" {
		return fmt.Errorf("JWT audience must not be empty")
	}

	return nil
}
