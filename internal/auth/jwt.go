// Package auth validates operator bearer tokens for the inventory API.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Operator scopes.
const (
	// ScopeRunsRead allows listing and inspecting inventory runs.
	ScopeRunsRead = "runs:read"
	// ScopeRunsWrite allows starting inventory runs.
	ScopeRunsWrite = "runs:write"
)

// DefaultTokenTTL is the lifetime of issued operator tokens.
const DefaultTokenTTL = 12 * time.Hour

// Token errors.
var (
	ErrInvalidToken  = errors.New("invalid operator token")
	ErrTokenExpired  = errors.New("operator token has expired")
	ErrMissingKey    = errors.New("missing token signing key")
	ErrMissingScope  = errors.New("operator token lacks required scope")
	ErrEmptyOperator = errors.New("operator name is required")
)

// Claims are the claims carried by operator tokens. The subject is the
// operator name.
type Claims struct {
	jwt.RegisteredClaims

	Scopes []string `json:"scp,omitempty"`
}

// HasScope reports whether the token grants scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// TokenConfig holds configuration for the TokenService.
type TokenConfig struct {
	// SigningKey is the HMAC secret shared with the token issuer.
	SigningKey string

	// Issuer and Audience are enforced on validation when set.
	Issuer   string
	Audience string

	// TTL is the lifetime of issued tokens (default 12h).
	TTL time.Duration
}

// ConfigFromEnv reads the token configuration from OPERATOR_JWT_* variables.
func ConfigFromEnv() TokenConfig {
	cfg := TokenConfig{
		SigningKey: os.Getenv("OPERATOR_JWT_SIGNING_KEY"),
		Issuer:     os.Getenv("OPERATOR_JWT_ISSUER"),
		Audience:   os.Getenv("OPERATOR_JWT_AUDIENCE"),
	}
	if cfg.Audience == "" {
		cfg.Audience = "emissions-inventory"
	}
	if ttl, err := time.ParseDuration(os.Getenv("OPERATOR_JWT_TTL")); err == nil && ttl > 0 {
		cfg.TTL = ttl
	}
	return cfg
}

// TokenService issues and validates HS256 operator tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   string
	ttl        time.Duration
}

// NewTokenService creates a token service. An empty signing key is rejected.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.SigningKey == "" {
		return nil, ErrMissingKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	return &TokenService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		ttl:        cfg.TTL,
	}, nil
}

// Issue signs a token for operator with the given scopes.
func (s *TokenService) Issue(operator string, scopes ...string) (string, time.Time, error) {
	if operator == "" {
		return "", time.Time{}, ErrEmptyOperator
	}

	now := time.Now()
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        tokenID(),
		},
		Scopes: scopes,
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing operator token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses and verifies a token and returns its claims.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func tokenID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
