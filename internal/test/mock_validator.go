// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package test

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-gorp/gorp/v3"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/parkhaus/internal/auth"
	"github.com/sapcc/parkhaus/internal/db"
)

// TokenValidator is an auth.TokenValidator for tests. Instead of verifying a
// signed session token, it reads the operator ID directly out of the bearer
// token value ("Authorization: Bearer OP001") and loads that user from the
// test DB. This way, tests choose their identity per request and exercise the
// same role checks as production requests.
type TokenValidator struct {
	DB      *gorp.DbMap
	TimeNow func() time.Time
}

var mockSiteRolesQuery = sqlext.SimplifyWhitespace(`
	SELECT site_id, site_role FROM user_site_assignments WHERE user_id = $1
`)

// CheckToken implements the auth.TokenValidator interface.
func (v *TokenValidator) CheckToken(r *http.Request) *auth.Token {
	t := &auth.Token{TimeNow: v.TimeNow}

	operatorID, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || operatorID == "" {
		t.Err = errors.New("request does not have an \"Authorization: Bearer\" header")
		return t
	}

	err := v.DB.SelectOne(&t.User, `SELECT * FROM users WHERE operator_id = $1`, operatorID)
	if errors.Is(err, sql.ErrNoRows) {
		t.Err = fmt.Errorf("no user record for operator ID %q", operatorID)
		return t
	} else if err != nil {
		t.Err = err
		return t
	}
	if t.User.Status != db.UserStatusActive {
		t.Err = fmt.Errorf("user account is %s", string(t.User.Status))
		return t
	}

	t.SiteRoles = make(map[db.SiteID]db.SiteRole)
	t.Err = sqlext.ForeachRow(v.DB, mockSiteRolesQuery, []any{t.User.ID}, func(rows *sql.Rows) error {
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
	return t
}
