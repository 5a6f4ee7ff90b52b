// Package session carries the identity context stamped on log entries and
// store writes: an explicit object with a defined lifecycle instead of
// ambient globals. A process-level anonymous session exists before login;
// authenticated sessions are minted from a verified token.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tutordesk/corekit/internal/common"
)

// Session identifies one client session. Created at process or login time,
// torn down on shutdown.
type Session struct {
	ID          string
	UserID      string
	Environment string
}

// NewAnonymous returns a session with a fresh id and no user identity.
func NewAnonymous(environment string) *Session {
	return &Session{ID: uuid.NewString(), Environment: environment}
}

// Authenticated reports whether the session carries a user identity.
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != ""
}

// Claims includes the registered claims plus the user id the token was
// minted for.
type Claims struct {
	jwt.RegisteredClaims
	UserID string
}

// GenerateToken mints a signed HS256 session token for userID, valid for
// validityDuration from now.
func GenerateToken(userID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserID: userID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretKey)
}

// FromToken verifies the token and returns an authenticated session.
func FromToken(tokenString string, secretKey []byte, environment string) (*Session, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrorInvalidToken
		}
		return nil, err
	}

	if !token.Valid {
		return nil, common.ErrorInvalidToken
	}

	return &Session{
		ID:          uuid.NewString(),
		UserID:      claims.UserID,
		Environment: environment,
	}, nil
}
