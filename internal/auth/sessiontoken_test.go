// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sapcc/parkhaus/internal/db"
)

func testTokenCodec() *TokenCodec {
	return &TokenCodec{
		AccessSecret:    []byte("unit-test-access-secret"),
		RefreshSecret:   []byte("unit-test-refresh-secret"),
		AccessValidity:  168 * time.Hour,
		RefreshValidity: 720 * time.Hour,
	}
}

func TestSessionTokenRoundtrip(t *testing.T) {
	codec := testTokenCodec()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	user := db.User{
		UUID:       "uuid-for-alice",
		OperatorID: "OP001",
		Role:       db.UserRoleSupervisor,
	}

	pair, err := codec.IssueSession(user, "refresh-binding-1", now)
	if err != nil {
		t.Fatal(err)
	}
	if !pair.ExpiresAt.Equal(now.Add(codec.AccessValidity)) {
		t.Errorf("expected access token to expire at %s, but got %s", now.Add(codec.AccessValidity), pair.ExpiresAt)
	}

	claims, err := codec.ParseAccessToken(pair.AccessToken, now)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != user.UUID {
		t.Errorf("expected subject %q, but got %q", user.UUID, claims.Subject)
	}
	if claims.OperatorID != user.OperatorID {
		t.Errorf("expected operator ID %q, but got %q", user.OperatorID, claims.OperatorID)
	}
	if claims.Role != user.Role {
		t.Errorf("expected role %q, but got %q", user.Role, claims.Role)
	}

	refreshClaims, err := codec.ParseRefreshToken(pair.RefreshToken, now)
	if err != nil {
		t.Fatal(err)
	}
	if refreshClaims.ID != "refresh-binding-1" {
		t.Errorf("expected refresh binding %q, but got %q", "refresh-binding-1", refreshClaims.ID)
	}
	if refreshClaims.Subject != user.UUID {
		t.Errorf("expected subject %q, but got %q", user.UUID, refreshClaims.Subject)
	}
	// the refresh token must not carry the identity payload
	if refreshClaims.OperatorID != "" || refreshClaims.Role != db.UserRole("") {
		t.Errorf("expected refresh token without identity payload, but got %+v", refreshClaims)
	}
}

func TestSessionTokenRejections(t *testing.T) {
	codec := testTokenCodec()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	user := db.User{UUID: "uuid-for-alice", OperatorID: "OP001", Role: db.UserRoleOperator}

	pair, err := codec.IssueSession(user, "refresh-binding-1", now)
	if err != nil {
		t.Fatal(err)
	}

	expectParseError := func(desc, raw string, parseTime time.Time) {
		_, err := codec.ParseAccessToken(raw, parseTime)
		if err == nil {
			t.Errorf("expected ParseAccessToken to fail for %s, but it did not", desc)
		}
	}

	// validity window
	_, err = codec.ParseAccessToken(pair.AccessToken, now.Add(codec.AccessValidity-time.Second))
	if err != nil {
		t.Errorf("expected access token to still verify just before expiry, but got: %s", err.Error())
	}
	expectParseError("an expired token", pair.AccessToken, now.Add(codec.AccessValidity+time.Second))

	// audience confusion between the two token types
	expectParseError("a refresh token", pair.RefreshToken, now)
	_, err = codec.ParseRefreshToken(pair.AccessToken, now)
	if err == nil {
		t.Error("expected ParseRefreshToken to fail for an access token, but it did not")
	}

	// tokens signed under different secrets
	otherPair, err := (&TokenCodec{
		AccessSecret:    []byte("other-access-secret"),
		RefreshSecret:   []byte("other-refresh-secret"),
		AccessValidity:  codec.AccessValidity,
		RefreshValidity: codec.RefreshValidity,
	}).IssueSession(user, "refresh-binding-1", now)
	if err != nil {
		t.Fatal(err)
	}
	expectParseError("a token signed under a different secret", otherPair.AccessToken, now)

	// unsigned tokens, even with otherwise perfect claims
	unsignedClaims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UUID,
			Issuer:    sessionTokenIssuer,
			Audience:  jwt.ClaimStrings{accessTokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, unsignedClaims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	expectParseError("an unsigned token", unsigned, now)
}
