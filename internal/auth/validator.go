// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-gorp/gorp/v3"
	"github.com/gofrs/uuid/v5"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/must"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/parkhaus/internal/core"
	"github.com/sapcc/parkhaus/internal/db"
)

// TokenValidator is the interface between the API and the session-token
// subsystem. It is implemented by Checker in production; tests substitute a
// validator that admits a preconfigured identity.
type TokenValidator interface {
	CheckToken(r *http.Request) *Token
}

// Checker is the production TokenValidator. It verifies the Bearer token on
// the request, then loads the current user record and site assignments behind
// it. Tokens of users that were blocked, deactivated or locked after issuance
// are rejected even though the signature still verifies.
type Checker struct {
	DB      *gorp.DbMap
	Codec   *TokenCodec
	TimeNow func() time.Time
}

// NewChecker builds a Checker.
func NewChecker(dbm *gorp.DbMap, codec *TokenCodec) *Checker {
	return &Checker{DB: dbm, Codec: codec, TimeNow: time.Now}
}

// CheckToken implements the TokenValidator interface.
func (c *Checker) CheckToken(r *http.Request) *Token {
	t := &Token{TimeNow: c.TimeNow}
	t.Err = c.fillToken(t, r)
	return t
}

var userSiteRolesQuery = sqlext.SimplifyWhitespace(`
	SELECT site_id, site_role FROM user_site_assignments WHERE user_id = $1
`)

func (c *Checker) fillToken(t *Token, r *http.Request) error {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return errors.New("request does not have an \"Authorization: Bearer\" header")
	}

	now := c.TimeNow()
	claims, err := c.Codec.ParseAccessToken(raw, now)
	if err != nil {
		return fmt.Errorf("invalid access token: %w", err)
	}

	err = c.DB.SelectOne(&t.User, `SELECT * FROM users WHERE uuid = $1`, claims.Subject)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("no user record for subject %q", claims.Subject)
	} else if err != nil {
		return fmt.Errorf("while loading user record: %w", err)
	}
	if t.User.Status != db.UserStatusActive {
		return fmt.Errorf("user account is %s", string(t.User.Status))
	}
	if t.User.LockedUntil != nil && t.User.LockedUntil.After(now) {
		return errors.New("user account is locked")
	}

	t.SiteRoles = make(map[db.SiteID]db.SiteRole)
	err = sqlext.ForeachRow(c.DB, userSiteRolesQuery, []any{t.User.ID}, func(rows *sql.Rows) error {
		var (
			siteID   db.SiteID
			siteRole db.SiteRole
		)
		err := rows.Scan(&siteID, &siteRole)
		if err == nil {
			t.SiteRoles[siteID] = siteRole
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("while loading site assignments: %w", err)
	}
	return nil
}

const (
	maxFailedLoginAttempts = 5
	credentialLockDuration = 2 * time.Hour
)

// VerifyCredentials checks an operator ID and password pair against the user
// store, while maintaining the failed-attempt counter and the lock resulting
// from too many failures. The error message never reveals which of the two
// factors was wrong.
func (c *Checker) VerifyCredentials(operatorID, password string) (db.User, error) {
	now := c.TimeNow()

	var user db.User
	err := c.DB.SelectOne(&user, `SELECT * FROM users WHERE operator_id = $1 AND status = $2`,
		operatorID, db.UserStatusActive)
	if errors.Is(err, sql.ErrNoRows) {
		return db.User{}, core.Errorf(core.ErrUnauthorized, "invalid credentials")
	} else if err != nil {
		return db.User{}, fmt.Errorf("while loading user record: %w", err)
	}

	if user.LockedUntil != nil {
		if user.LockedUntil.After(now) {
			return db.User{}, core.Errorf(core.ErrAccountLocked, "account is locked after too many failed login attempts")
		}
		// lock has run out, so the failure count starts over
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
	}

	if !VerifyPassword(user.PasswordHash, password) {
		user.FailedLoginAttempts++
		if user.FailedLoginAttempts >= maxFailedLoginAttempts {
			lockedUntil := now.Add(credentialLockDuration)
			user.LockedUntil = &lockedUntil
		}
		_, err := c.DB.Exec(`UPDATE users SET failed_login_attempts = $1, locked_until = $2 WHERE id = $3`,
			user.FailedLoginAttempts, user.LockedUntil, user.ID)
		if err != nil {
			logg.Error("could not persist failed login attempt for user %d: %s", user.ID, err.Error())
		}
		return db.User{}, core.Errorf(core.ErrUnauthorized, "invalid credentials")
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
		_, err := c.DB.Exec(`UPDATE users SET failed_login_attempts = 0, locked_until = NULL WHERE id = $1`, user.ID)
		if err != nil {
			logg.Error("could not reset failed login attempts for user %d: %s", user.ID, err.Error())
		}
	}
	return user, nil
}

// StartSession issues a token pair for the given user. The refresh-token
// binding in the user record is rotated in the process, which invalidates all
// previously issued refresh tokens of this user.
func (c *Checker) StartSession(user db.User) (TokenPair, error) {
	refreshTokenID := must.Return(uuid.NewV4()).String()
	_, err := c.DB.Exec(`UPDATE users SET refresh_token_id = $1 WHERE id = $2`, refreshTokenID, user.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("while storing refresh token binding: %w", err)
	}
	return c.Codec.IssueSession(user, refreshTokenID, c.TimeNow())
}

// RenewSession validates a refresh token and starts a fresh session for its
// user. The presented refresh token (and every other outstanding one) becomes
// invalid in the process.
func (c *Checker) RenewSession(rawRefreshToken string) (TokenPair, error) {
	now := c.TimeNow()
	claims, err := c.Codec.ParseRefreshToken(rawRefreshToken, now)
	if err != nil {
		return TokenPair{}, core.Errorf(core.ErrUnauthorized, "invalid refresh token")
	}

	var user db.User
	err = c.DB.SelectOne(&user, `SELECT * FROM users WHERE uuid = $1`, claims.Subject)
	if errors.Is(err, sql.ErrNoRows) {
		return TokenPair{}, core.Errorf(core.ErrUnauthorized, "invalid refresh token")
	} else if err != nil {
		return TokenPair{}, fmt.Errorf("while loading user record: %w", err)
	}
	if user.Status != db.UserStatusActive {
		return TokenPair{}, core.Errorf(core.ErrUnauthorized, "invalid refresh token")
	}
	if user.RefreshTokenID == "" || user.RefreshTokenID != claims.ID {
		return TokenPair{}, core.Errorf(core.ErrUnauthorized, "invalid refresh token")
	}

	return c.StartSession(user)
}
