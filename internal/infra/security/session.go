package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
)

// SessionTokenManager signs HS256 session tokens carrying only sub and exp.
// Authorization data is never embedded; callers re-resolve the user on every request.
type SessionTokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionTokenManager validates the secret and ttl.
func NewSessionTokenManager(secret string, ttl time.Duration) (*SessionTokenManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("session: secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("session: ttl must be positive")
	}
	return &SessionTokenManager{secret: []byte(secret), ttl: ttl}, nil
}

// TTL returns the configured token lifetime.
func (m *SessionTokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for userID that expires ttl after now.
func (m *SessionTokenManager) Issue(userID string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(m.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies the signature and expiry and returns the subject.
func (m *SessionTokenManager) Parse(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", domain.ErrExpiredSessionToken
	case err != nil:
		return "", domain.ErrInvalidSessionToken.Wrap(err)
	case claims.Subject == "":
		return "", domain.ErrInvalidSessionToken
	}
	return claims.Subject, nil
}

var _ port.SessionTokens = (*SessionTokenManager)(nil)
