// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"net/http"
	"slices"
	"time"

	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/respondwith"

	"github.com/sapcc/parkhaus/internal/core"
	"github.com/sapcc/parkhaus/internal/db"
)

// Token represents one authenticated request. Authorization is role-based
// with two layers: the global role on the user record (admin > supervisor >
// operator), and an optional site-level role per assigned site. The rules are
// fixed in code; there is no operator-editable policy file.
type Token struct {
	// Err is non-nil if authentication failed. The error is deferred until
	// Require() is called, so that handlers follow the same code path for good
	// and bad credentials.
	Err error

	User      db.User
	SiteRoles map[db.SiteID]db.SiteRole

	// TimeNow is the clock for the timestamp on rejection responses.
	TimeNow func() time.Time
}

// Check evaluates a global-role rule. Site-scoped decisions go through
// CanAccessSite and CanManageSite instead.
func (t *Token) Check(rule string) bool {
	if t.Err != nil {
		return false
	}
	switch rule {
	case "api:access":
		// every user with a valid token may read and may perform booking and
		// machine operations, per their site assignments
		return true
	case "booking:extend":
		return t.User.Role == db.UserRoleSupervisor || t.User.Role == db.UserRoleAdmin
	case "site:create", "site:delete", "site:assign-user", "network:view-inconsistencies":
		return t.User.Role == db.UserRoleAdmin
	default:
		logg.Error("authorization check for unknown rule %q (this is a bug, rejecting the request)", rule)
		return false
	}
}

// Require checks authentication and the given rule, and writes an error
// response if either fails. Handlers are expected to exit early when this
// returns false.
func (t *Token) Require(w http.ResponseWriter, rule string) bool {
	if t.Err != nil {
		logg.Debug("authentication failed: %s", t.Err.Error())
		t.writeRejection(w, core.ErrUnauthorized, "invalid or missing credentials")
		return false
	}
	if !t.Check(rule) {
		t.writeRejection(w, core.ErrForbidden, "insufficient permissions for this operation")
		return false
	}
	return true
}

// CanAccessSite checks whether the user may see data of the given site:
// admins see everything, everyone else needs the site among their assignments
// or as their primary site.
func (t *Token) CanAccessSite(siteID db.SiteID) bool {
	if t.Err != nil {
		return false
	}
	if t.User.Role == db.UserRoleAdmin {
		return true
	}
	if t.User.PrimarySiteID != nil && *t.User.PrimarySiteID == siteID {
		return true
	}
	_, exists := t.SiteRoles[siteID]
	return exists
}

// CanManageSite checks whether the user may change the given site itself.
// This requires the site-admin or supervisor site-level role on the site, or
// the global admin role.
func (t *Token) CanManageSite(siteID db.SiteID) bool {
	if t.Err != nil {
		return false
	}
	if t.User.Role == db.UserRoleAdmin {
		return true
	}
	switch t.SiteRoles[siteID] {
	case db.SiteRoleSiteAdmin, db.SiteRoleSupervisor:
		return true
	default:
		return false
	}
}

// RequireSiteAccess is like Require, but checks CanAccessSite.
func (t *Token) RequireSiteAccess(w http.ResponseWriter, siteID db.SiteID) bool {
	if t.Err != nil {
		return t.Require(w, "api:access")
	}
	if !t.CanAccessSite(siteID) {
		t.writeRejection(w, core.ErrForbidden, "no access to this site")
		return false
	}
	return true
}

// AccessibleSites enumerates the sites whose data this user may see, for
// filtering list queries. For admins, `all` is true and the ID list is empty.
func (t *Token) AccessibleSites() (all bool, ids []db.SiteID) {
	if t.Err != nil {
		return false, nil
	}
	if t.User.Role == db.UserRoleAdmin {
		return true, nil
	}
	if t.User.PrimarySiteID != nil {
		ids = append(ids, *t.User.PrimarySiteID)
	}
	for siteID := range t.SiteRoles {
		if !slices.Contains(ids, siteID) {
			ids = append(ids, siteID)
		}
	}
	slices.Sort(ids)
	return false, ids
}

// AsInitiator implements the audittools.UserInfo interface.
func (t *Token) AsInitiator(host cadf.Host) cadf.Resource {
	return cadf.Resource{
		TypeURI: "service/security/account/user",
		Name:    t.User.OperatorID,
		Domain:  "parkhaus",
		ID:      t.User.UUID,
		Host:    &host,
	}
}

// RequireSiteManager is like Require, but checks CanManageSite.
func (t *Token) RequireSiteManager(w http.ResponseWriter, siteID db.SiteID) bool {
	if t.Err != nil {
		return t.Require(w, "api:access")
	}
	if !t.CanManageSite(siteID) {
		t.writeRejection(w, core.ErrForbidden, "site administrator or supervisor role required")
		return false
	}
	return true
}

func (t *Token) writeRejection(w http.ResponseWriter, kind core.ErrorKind, msg string) {
	status, body := core.BuildErrorResponse(core.Errorf(kind, "%s", msg), t.TimeNow())
	respondwith.JSON(w, status, body)
}
