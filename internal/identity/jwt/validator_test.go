package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/tourdesk/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestValidator() *Validator {
	return NewValidator(Config{SecretKey: testSecret, Issuer: "tourdesk"})
}

func TestValidator_RoundTrip(t *testing.T) {
	v := newTestValidator()

	token, err := v.IssueToken("operator-1", domain.RoleOperator, time.Hour)
	require.NoError(t, err)

	userID, role, err := v.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "operator-1", userID)
	assert.Equal(t, domain.RoleOperator, role)
}

func TestValidator_Rejects(t *testing.T) {
	v := newTestValidator()
	ctx := context.Background()

	sign := func(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	validClaims := func() Claims {
		return Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "u1",
				Issuer:    "tourdesk",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Role: domain.RoleAdmin,
		}
	}

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name:  "garbage",
			token: func(*testing.T) string { return "not-a-token" },
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				expired, err := v.IssueToken("u1", domain.RoleAdmin, -time.Minute)
				require.NoError(t, err)
				return expired
			},
		},
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS256, []byte("another-secret-another-secret-12"), validClaims())
			},
		},
		{
			name: "wrong algorithm",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims())
			},
		},
		{
			name: "wrong issuer",
			token: func(t *testing.T) string {
				c := validClaims()
				c.Issuer = "someone-else"
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)
			},
		},
		{
			name: "no expiry",
			token: func(t *testing.T) string {
				c := validClaims()
				c.ExpiresAt = nil
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)
			},
		},
		{
			name: "missing subject",
			token: func(t *testing.T) string {
				c := validClaims()
				c.Subject = ""
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)
			},
		},
		{
			name: "unknown role",
			token: func(t *testing.T) string {
				c := validClaims()
				c.Role = "superuser"
				return sign(t, jwt.SigningMethodHS256, []byte(testSecret), c)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := v.ValidateToken(ctx, tt.token(t))
			assert.Error(t, err)
		})
	}
}
