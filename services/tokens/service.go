package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"identity-api/config"
	"identity-api/services/logging"
)

var (
	ErrInvalidToken     = errors.New("invalid access token")
	ErrExpiredToken     = errors.New("access token has expired")
	ErrMalformedToken   = errors.New("malformed access token")
	ErrInvalidSignature = errors.New("invalid access token signature")
)

// Claims carried by every access token. Validity is signature + expiry
// only; there is no server-side revocation state for access tokens.
type Claims struct {
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type Service struct {
	config *config.Config
	logger *logging.Service
	method jwt.SigningMethod
	key    []byte
}

// NewService resolves the signing key and method once; nothing is looked up
// per call after startup.
func NewService(cfg *config.Config, logger *logging.Service) (*Service, error) {
	if err := config.ValidateJWTConfig(cfg.JWT); err != nil {
		return nil, err
	}

	var method jwt.SigningMethod
	switch cfg.JWT.Algorithm {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported JWT algorithm: %s", cfg.JWT.Algorithm)
	}

	return &Service{
		config: cfg,
		logger: logger,
		method: method,
		key:    []byte(cfg.JWT.SecretKey),
	}, nil
}

// Issue mints a signed access token bound to the given identity and roles.
func (s *Service) Issue(userID uint, email, name string, roles []string) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		Name:  name,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   fmt.Sprintf("%d", userID),
			Issuer:    s.config.JWT.Issuer,
			Audience:  []string{s.config.JWT.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.JWT.AccessExpiry)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(s.method, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		s.logger.Error("failed to sign access token", zap.Error(err))
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return signed, nil
}

// Validate checks signature, algorithm, issuer, audience and expiry.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != s.method.Alg() {
			return nil, fmt.Errorf("unexpected algorithm: expected %s, got %s", s.method.Alg(), token.Method.Alg())
		}
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid algorithm family: %v", token.Header["alg"])
		}
		return s.key, nil
	},
		jwt.WithIssuer(s.config.JWT.Issuer),
		jwt.WithAudience(s.config.JWT.Audience),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		s.logger.Warn("access token validation failed", zap.Error(err))

		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// SubjectID parses the numeric user id out of the subject claim.
func (c *Claims) SubjectID() (uint, error) {
	var id uint
	if _, err := fmt.Sscanf(c.Subject, "%d", &id); err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}
