// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/parkhaus/internal/core"
	"github.com/sapcc/parkhaus/internal/db"
	"github.com/sapcc/parkhaus/internal/reports"
)

// ListSites handles GET /v1/sites.
func (p *v1Provider) ListSites(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/sites")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}

	var status *db.SiteStatus
	if value := r.URL.Query().Get("status"); value != "" {
		var v core.Validator
		v.CheckOneOf("status", value, string(db.SiteStatusActive), string(db.SiteStatusInactive),
			string(db.SiteStatusMaintenance), string(db.SiteStatusUnderConstruction))
		if p.respondError(w, v.AsError()) {
			return
		}
		siteStatus := db.SiteStatus(value)
		status = &siteStatus
	}

	sites, err := reports.ListSites(p.DB, siteScopeOf(token), status)
	if p.respondError(w, err) {
		return
	}
	payloads := make([]sitePayload, len(sites))
	for idx, site := range sites {
		payloads[idx], err = renderSite(site)
		if p.respondError(w, err) {
			return
		}
	}
	p.respondData(w, http.StatusOK, "sites retrieved", payloads)
}

var siteCodeTakenQuery = sqlext.SimplifyWhitespace(`
	SELECT EXISTS (SELECT 1 FROM sites WHERE code = $1)
`)

// CreateSite handles POST /v1/sites.
func (p *v1Provider) CreateSite(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/sites")
	token := p.CheckToken(r)
	if !token.Require(w, "site:create") {
		return
	}

	var parseTarget struct {
		Code           string            `json:"code"`
		Name           string            `json:"name"`
		Address        *addressPayload   `json:"address"`
		Location       *locationPayload  `json:"location"`
		OperatingHours *core.WeeklyHours `json:"operatingHours"`
		Pricing        *core.Pricing     `json:"pricing"`
		TotalMachines  uint64            `json:"totalMachines"`
		TotalCapacity  uint64            `json:"totalCapacity"`
		Status         db.SiteStatus     `json:"status"`
	}
	if !p.RequireJSON(w, r, &parseTarget) {
		return
	}

	var v core.Validator
	v.CheckRequired("code", parseTarget.Code)
	v.CheckMatch("code", parseTarget.Code, core.SiteCodeRx, `of the form "SITE001"`)
	v.CheckRequired("name", parseTarget.Name)
	if parseTarget.Address != nil {
		v.CheckMatch("address.pincode", parseTarget.Address.Pincode, core.PincodeRx, "a 6-digit pincode")
	}
	v.CheckOneOf("status", string(parseTarget.Status), string(db.SiteStatusActive), string(db.SiteStatusInactive),
		string(db.SiteStatusMaintenance), string(db.SiteStatusUnderConstruction))
	if p.respondError(w, v.AsError()) {
		return
	}

	now := p.timeNow()
	site := db.Site{
		Code:            parseTarget.Code,
		Name:            core.SanitizeString(parseTarget.Name),
		TotalMachines:   parseTarget.TotalMachines,
		TotalCapacity:   parseTarget.TotalCapacity,
		Status:          db.SiteStatusActive,
		CreatedByUserID: token.User.OperatorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if parseTarget.Status != "" {
		site.Status = parseTarget.Status
	}
	if addr := parseTarget.Address; addr != nil {
		site.AddressStreet = core.SanitizeString(addr.Street)
		site.AddressCity = core.SanitizeString(addr.City)
		site.AddressState = core.SanitizeString(addr.State)
		site.AddressPincode = addr.Pincode
	}
	if loc := parseTarget.Location; loc != nil {
		site.Latitude = &loc.Latitude
		site.Longitude = &loc.Longitude
	}
	if parseTarget.OperatingHours != nil {
		site.OperatingHours = core.RenderJSONColumn(parseTarget.OperatingHours)
	}
	if parseTarget.Pricing != nil {
		site.Pricing = core.RenderJSONColumn(parseTarget.Pricing)
	}

	var taken bool
	err := p.DB.QueryRow(siteCodeTakenQuery, site.Code).Scan(&taken)
	if p.respondError(w, err) {
		return
	}
	if taken {
		p.respondError(w, core.Errorf(core.ErrConflict, "site %s already exists", site.Code))
		return
	}

	err = p.DB.Insert(&site)
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.CreateAction, http.StatusCreated, siteEventTarget{Site: site})

	payload, err := renderSite(site)
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusCreated, "site created", payload)
}

// GetSite handles GET /v1/sites/:id.
func (p *v1Provider) GetSite(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/sites/:id")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	site := p.FindSiteFromRequest(w, r, token)
	if site == nil {
		return
	}

	payload, err := renderSite(*site)
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusOK, "site retrieved", payload)
}

var (
	activeBookingsAtSiteQuery = sqlext.SimplifyWhitespace(`
		SELECT COUNT(*) FROM bookings WHERE site_id = $1 AND status = 'active'
	`)

	forceMachinesOfflineQuery = sqlext.SimplifyWhitespace(`
		UPDATE machines SET status = 'offline', updated_at = $2 WHERE site_id = $1 AND status != 'offline'
	`)
)

// UpdateSite handles PUT /v1/sites/:id.
//
// The site code is the stable external identifier and cannot be changed.
// Moving a site to "inactive" is refused while it still has active bookings,
// and forces all of its machines offline.
func (p *v1Provider) UpdateSite(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/sites/:id")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	site := p.FindSiteFromRequest(w, r, token)
	if site == nil {
		return
	}
	if !token.RequireSiteManager(w, site.ID) {
		return
	}

	var parseTarget struct {
		Name           *string           `json:"name"`
		Address        *addressPayload   `json:"address"`
		Location       *locationPayload  `json:"location"`
		OperatingHours *core.WeeklyHours `json:"operatingHours"`
		Pricing        *core.Pricing     `json:"pricing"`
		TotalMachines  *uint64           `json:"totalMachines"`
		TotalCapacity  *uint64           `json:"totalCapacity"`
		Status         *db.SiteStatus    `json:"status"`
	}
	if !p.RequireJSON(w, r, &parseTarget) {
		return
	}

	var v core.Validator
	if parseTarget.Name != nil {
		v.CheckRequired("name", *parseTarget.Name)
	}
	if parseTarget.Address != nil {
		v.CheckMatch("address.pincode", parseTarget.Address.Pincode, core.PincodeRx, "a 6-digit pincode")
	}
	if parseTarget.Status != nil {
		v.CheckOneOf("status", string(*parseTarget.Status), string(db.SiteStatusActive), string(db.SiteStatusInactive),
			string(db.SiteStatusMaintenance), string(db.SiteStatusUnderConstruction))
	}
	if p.respondError(w, v.AsError()) {
		return
	}

	deactivating := parseTarget.Status != nil &&
		*parseTarget.Status == db.SiteStatusInactive && site.Status != db.SiteStatusInactive

	if parseTarget.Name != nil {
		site.Name = core.SanitizeString(*parseTarget.Name)
	}
	if addr := parseTarget.Address; addr != nil {
		site.AddressStreet = core.SanitizeString(addr.Street)
		site.AddressCity = core.SanitizeString(addr.City)
		site.AddressState = core.SanitizeString(addr.State)
		site.AddressPincode = addr.Pincode
	}
	if loc := parseTarget.Location; loc != nil {
		site.Latitude = &loc.Latitude
		site.Longitude = &loc.Longitude
	}
	if parseTarget.OperatingHours != nil {
		site.OperatingHours = core.RenderJSONColumn(parseTarget.OperatingHours)
	}
	if parseTarget.Pricing != nil {
		site.Pricing = core.RenderJSONColumn(parseTarget.Pricing)
	}
	if parseTarget.TotalMachines != nil {
		site.TotalMachines = *parseTarget.TotalMachines
	}
	if parseTarget.TotalCapacity != nil {
		site.TotalCapacity = *parseTarget.TotalCapacity
	}
	if parseTarget.Status != nil {
		site.Status = *parseTarget.Status
	}
	now := p.timeNow()
	site.UpdatedAt = now

	tx, err := p.DB.Begin()
	if p.respondError(w, err) {
		return
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	if deactivating {
		var activeBookings uint64
		err := tx.QueryRow(activeBookingsAtSiteQuery, site.ID).Scan(&activeBookings)
		if p.respondError(w, err) {
			return
		}
		if activeBookings > 0 {
			p.respondError(w, core.Errorf(core.ErrConflict,
				"site %s still has %d active bookings", site.Code, activeBookings))
			return
		}
		_, err = tx.Exec(forceMachinesOfflineQuery, site.ID, now)
		if p.respondError(w, err) {
			return
		}
	}
	_, err = tx.Update(site)
	if p.respondError(w, err) {
		return
	}
	err = tx.Commit()
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.UpdateAction, http.StatusOK, siteEventTarget{Site: *site})

	payload, err := renderSite(*site)
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusOK, "site updated", payload)
}

var siteContentsQuery = sqlext.SimplifyWhitespace(`
	SELECT (SELECT COUNT(*) FROM machines WHERE site_id = $1),
	       (SELECT COUNT(*) FROM bookings WHERE site_id = $1)
`)

// DeleteSite handles DELETE /v1/sites/:id.
//
// Without ?force=true, the site must be empty: no machines and no booking
// history. With force, machines (and their pallets) go away through the
// schema, while bookings only reference the site by ID and are deleted
// explicitly here. The membership payment ledger is never touched.
func (p *v1Provider) DeleteSite(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/sites/:id")
	token := p.CheckToken(r)
	if !token.Require(w, "site:delete") {
		return
	}
	site := p.FindSiteFromRequest(w, r, token)
	if site == nil {
		return
	}
	force := r.URL.Query().Get("force") == "true"

	tx, err := p.DB.Begin()
	if p.respondError(w, err) {
		return
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	var bookingsDeleted int64
	if force {
		result, err := tx.Exec(`DELETE FROM bookings WHERE site_id = $1`, site.ID)
		if p.respondError(w, err) {
			return
		}
		bookingsDeleted, err = result.RowsAffected()
		if p.respondError(w, err) {
			return
		}
	} else {
		var machineCount, bookingCount uint64
		err := tx.QueryRow(siteContentsQuery, site.ID).Scan(&machineCount, &bookingCount)
		if p.respondError(w, err) {
			return
		}
		if machineCount > 0 || bookingCount > 0 {
			p.respondError(w, core.Errorf(core.ErrConflict,
				"site %s has %d machines and %d bookings; use force=true to delete anyway",
				site.Code, machineCount, bookingCount))
			return
		}
	}

	_, err = tx.Delete(site)
	if p.respondError(w, err) {
		return
	}
	err = tx.Commit()
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.DeleteAction, http.StatusOK, siteEventTarget{
		Site:   *site,
		Detail: map[string]any{"force": force, "bookingsDeleted": bookingsDeleted},
	})
	p.respondData(w, http.StatusOK, "site deleted", nil)
}

// GetSiteStatistics handles GET /v1/sites/:id/statistics.
func (p *v1Provider) GetSiteStatistics(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/sites/:id/statistics")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	site := p.FindSiteFromRequest(w, r, token)
	if site == nil {
		return
	}

	stats, err := reports.GetSiteStatistics(p.DB, site.ID, p.timeNow())
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusOK, "site statistics", stats)
}

// ListSiteUsers handles GET /v1/sites/:id/users.
func (p *v1Provider) ListSiteUsers(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/sites/:id/users")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	site := p.FindSiteFromRequest(w, r, token)
	if site == nil {
		return
	}
	if !token.RequireSiteManager(w, site.ID) {
		return
	}

	var assignments []db.UserSiteAssignment
	_, err := p.DB.Select(&assignments,
		`SELECT * FROM user_site_assignments WHERE site_id = $1 ORDER BY assigned_at, id`, site.ID)
	if p.respondError(w, err) {
		return
	}

	payloads := make([]siteUserPayload, len(assignments))
	if len(assignments) > 0 {
		userIDs := make([]any, len(assignments))
		for idx, assignment := range assignments {
			userIDs[idx] = assignment.UserID
		}
		whereStr, whereArgs := db.BuildSimpleWhereClause(map[string]any{"id": userIDs}, 0)
		usersByID, err := db.BuildIndexOfDBResult(p.DB,
			func(u db.User) db.UserID { return u.ID },
			`SELECT * FROM users WHERE `+whereStr, whereArgs...)
		if p.respondError(w, err) {
			return
		}

		for idx, assignment := range assignments {
			payloads[idx], err = renderSiteUser(usersByID[assignment.UserID], assignment)
			if p.respondError(w, err) {
				return
			}
		}
	}
	p.respondData(w, http.StatusOK, "site users retrieved", payloads)
}

// AssignUserToSite handles POST /v1/sites/:id/assign-user.
//
// Assigning the same user again updates their site role and permissions in
// place. A user's first assignment also becomes their primary site.
func (p *v1Provider) AssignUserToSite(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/sites/:id/assign-user")
	token := p.CheckToken(r)
	if !token.Require(w, "site:assign-user") {
		return
	}
	site := p.FindSiteFromRequest(w, r, token)
	if site == nil {
		return
	}

	var parseTarget struct {
		OperatorID  string      `json:"operatorId"`
		SiteRole    db.SiteRole `json:"siteRole"`
		Permissions []string    `json:"permissions"`
	}
	if !p.RequireJSON(w, r, &parseTarget) {
		return
	}

	var v core.Validator
	v.CheckRequired("operatorId", parseTarget.OperatorID)
	v.CheckMatch("operatorId", parseTarget.OperatorID, core.OperatorIDRx, `of the form "OP123"`)
	if parseTarget.SiteRole == "" {
		parseTarget.SiteRole = db.SiteRoleOperator
	}
	v.CheckOneOf("siteRole", string(parseTarget.SiteRole), string(db.SiteRoleSiteAdmin),
		string(db.SiteRoleSupervisor), string(db.SiteRoleOperator))
	if p.respondError(w, v.AsError()) {
		return
	}

	var user db.User
	err := p.DB.SelectOne(&user, `SELECT * FROM users WHERE operator_id = $1`, parseTarget.OperatorID)
	if errors.Is(err, sql.ErrNoRows) {
		p.respondError(w, core.Errorf(core.ErrNotFound, "no such user: %s", parseTarget.OperatorID))
		return
	}
	if p.respondError(w, err) {
		return
	}

	permissions := ""
	if parseTarget.Permissions != nil {
		sanitized := make([]string, len(parseTarget.Permissions))
		for idx, permission := range parseTarget.Permissions {
			sanitized[idx] = core.SanitizeString(permission)
		}
		permissions = core.RenderJSONColumn(sanitized)
	}

	now := p.timeNow()
	tx, err := p.DB.Begin()
	if p.respondError(w, err) {
		return
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	status := http.StatusCreated
	var assignment db.UserSiteAssignment
	err = tx.SelectOne(&assignment,
		`SELECT * FROM user_site_assignments WHERE user_id = $1 AND site_id = $2`, user.ID, site.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		assignment = db.UserSiteAssignment{
			UserID:           user.ID,
			SiteID:           site.ID,
			Role:             parseTarget.SiteRole,
			Permissions:      permissions,
			AssignedByUserID: token.User.OperatorID,
			AssignedAt:       now,
		}
		err = tx.Insert(&assignment)
	case err == nil:
		status = http.StatusOK
		assignment.Role = parseTarget.SiteRole
		assignment.Permissions = permissions
		assignment.AssignedByUserID = token.User.OperatorID
		assignment.AssignedAt = now
		_, err = tx.Update(&assignment)
	}
	if p.respondError(w, err) {
		return
	}

	if user.PrimarySiteID == nil {
		user.PrimarySiteID = &site.ID
		user.UpdatedAt = now
		_, err = tx.Update(&user)
		if p.respondError(w, err) {
			return
		}
	}
	err = tx.Commit()
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.UpdateAction, status, siteAssignmentEventTarget{
		User:       user,
		Assignment: assignment,
	})

	payload, err := renderSiteUser(user, assignment)
	if p.respondError(w, err) {
		return
	}
	message := "user assigned to site"
	if status == http.StatusOK {
		message = "site assignment updated"
	}
	p.respondData(w, status, message, payload)
}
