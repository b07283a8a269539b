package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/emissions/internal/auth"
)

func newService(t *testing.T, cfg auth.TokenConfig) *auth.TokenService {
	t.Helper()
	svc, err := auth.NewTokenService(cfg)
	require.NoError(t, err)
	return svc
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	svc := newService(t, auth.TokenConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://ops.emissions.internal",
		Audience:   "emissions-inventory",
	})

	token, expiresAt, err := svc.Issue("alice", auth.ScopeRunsRead, auth.ScopeRunsWrite)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(auth.DefaultTokenTTL), expiresAt, time.Minute)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "https://ops.emissions.internal", claims.Issuer)
	assert.True(t, claims.HasScope(auth.ScopeRunsWrite))
	assert.True(t, claims.HasScope(auth.ScopeRunsRead))
	assert.False(t, claims.HasScope("admin"))
}

func TestNewTokenService_RequiresKey(t *testing.T) {
	_, err := auth.NewTokenService(auth.TokenConfig{})
	assert.ErrorIs(t, err, auth.ErrMissingKey)
}

func TestTokenService_IssueRequiresOperator(t *testing.T) {
	svc := newService(t, auth.TokenConfig{SigningKey: "k"})
	_, _, err := svc.Issue("")
	assert.ErrorIs(t, err, auth.ErrEmptyOperator)
}

func TestTokenService_InvalidToken(t *testing.T) {
	svc := newService(t, auth.TokenConfig{SigningKey: "test-secret-key-for-testing-only"})

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestTokenService_WrongSigningKey(t *testing.T) {
	token, _, err := newService(t, auth.TokenConfig{SigningKey: "key-one"}).Issue("alice")
	require.NoError(t, err)

	_, err = newService(t, auth.TokenConfig{SigningKey: "key-two"}).Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenService_WrongIssuerOrAudience(t *testing.T) {
	issuer := newService(t, auth.TokenConfig{SigningKey: "k", Issuer: "issuer-one", Audience: "aud-one"})
	token, _, err := issuer.Issue("alice")
	require.NoError(t, err)

	tests := []struct {
		name string
		cfg  auth.TokenConfig
	}{
		{"wrong issuer", auth.TokenConfig{SigningKey: "k", Issuer: "issuer-two", Audience: "aud-one"}},
		{"wrong audience", auth.TokenConfig{SigningKey: "k", Issuer: "issuer-one", Audience: "aud-two"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newService(t, tt.cfg).Validate(token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestTokenService_Expired(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = newService(t, auth.TokenConfig{SigningKey: "k"}).Validate(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestTokenService_RejectsOtherAlgorithms(t *testing.T) {
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = newService(t, auth.TokenConfig{SigningKey: "k"}).Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenService_RequiresSubject(t *testing.T) {
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = newService(t, auth.TokenConfig{SigningKey: "k"}).Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OPERATOR_JWT_SIGNING_KEY", "secret")
	t.Setenv("OPERATOR_JWT_ISSUER", "ops")
	t.Setenv("OPERATOR_JWT_AUDIENCE", "")
	t.Setenv("OPERATOR_JWT_TTL", "30m")

	cfg := auth.ConfigFromEnv()
	assert.Equal(t, "secret", cfg.SigningKey)
	assert.Equal(t, "ops", cfg.Issuer)
	assert.Equal(t, "emissions-inventory", cfg.Audience)
	assert.Equal(t, 30*time.Minute, cfg.TTL)
}
