// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sapcc/go-bits/must"
	"github.com/sapcc/go-bits/osext"

	"github.com/sapcc/parkhaus/internal/db"
)

const (
	sessionTokenIssuer   = "parkhaus/identity"
	accessTokenAudience  = "parkhaus/api"
	refreshTokenAudience = "parkhaus/refresh"
)

// SessionClaims is the payload of both session token types. Access tokens
// carry the full identity; refresh tokens only carry the subject and their
// binding ID.
type SessionClaims struct {
	jwt.RegisteredClaims
	OperatorID string      `json:"operatorId,omitempty"`
	Role       db.UserRole `json:"role,omitempty"`
}

// TokenPair is one issued session.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time //of the access token
}

// TokenCodec signs and verifies session tokens.
//
// Access tokens admit API requests and carry {subject = user UUID,
// operatorId, role}. Refresh tokens are longer-lived, signed with a separate
// secret, and bound to the refresh_token_id column of the users table through
// their JTI, so issuing a new session invalidates all older refresh tokens of
// the same user.
type TokenCodec struct {
	AccessSecret    []byte
	RefreshSecret   []byte
	AccessValidity  time.Duration
	RefreshValidity time.Duration
}

// NewTokenCodecFromEnv builds a TokenCodec from the PARKHAUS_JWT_* environment
// variables. Both secrets are required.
func NewTokenCodecFromEnv() *TokenCodec {
	return &TokenCodec{
		AccessSecret:    []byte(osext.MustGetenv("PARKHAUS_JWT_SECRET")),
		RefreshSecret:   []byte(osext.MustGetenv("PARKHAUS_JWT_REFRESH_SECRET")),
		AccessValidity:  must.Return(time.ParseDuration(osext.GetenvOrDefault("PARKHAUS_JWT_EXPIRE", "168h"))),
		RefreshValidity: must.Return(time.ParseDuration(osext.GetenvOrDefault("PARKHAUS_JWT_REFRESH_EXPIRE", "720h"))),
	}
}

// IssueSession signs a fresh token pair for the given user. The caller must
// have stored `refreshTokenID` in the user record beforehand, otherwise the
// refresh token comes out dead on arrival.
func (c *TokenCodec) IssueSession(user db.User, refreshTokenID string, now time.Time) (TokenPair, error) {
	accessClaims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UUID,
			Issuer:    sessionTokenIssuer,
			Audience:  jwt.ClaimStrings{accessTokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.AccessValidity)),
		},
		OperatorID: user.OperatorID,
		Role:       user.Role,
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString(c.AccessSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("while signing access token: %w", err)
	}

	refreshClaims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        refreshTokenID,
			Subject:   user.UUID,
			Issuer:    sessionTokenIssuer,
			Audience:  jwt.ClaimStrings{refreshTokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.RefreshValidity)),
		},
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(c.RefreshSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("while signing refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessClaims.ExpiresAt.Time,
	}, nil
}

// ParseAccessToken verifies an access token and returns its claims.
func (c *TokenCodec) ParseAccessToken(raw string, now time.Time) (SessionClaims, error) {
	return parseToken(raw, c.AccessSecret, accessTokenAudience, now)
}

// ParseRefreshToken verifies a refresh token and returns its claims. The
// caller must additionally check the JTI against the user's stored
// refresh_token_id.
func (c *TokenCodec) ParseRefreshToken(raw string, now time.Time) (SessionClaims, error) {
	return parseToken(raw, c.RefreshSecret, refreshTokenAudience, now)
}

func parseToken(raw string, secret []byte, audience string, now time.Time) (SessionClaims, error) {
	var claims SessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(t *jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionTokenIssuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return SessionClaims{}, err
	}
	return claims, nil
}
