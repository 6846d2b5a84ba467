// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/parkhaus/internal/auth"
	"github.com/sapcc/parkhaus/internal/core"
	"github.com/sapcc/parkhaus/internal/db"
	"github.com/sapcc/parkhaus/internal/reports"
)

// The Find helpers in this file check site access along with existence, and
// report both failures as "not found". A caller without access to a site must
// not be able to distinguish that site's resources from nonexistent ones.

// FindSiteFromRequest loads the db.Site referenced by the {site_id} path
// parameter. Any errors will be written into the response immediately and
// cause a nil return value.
func (p *v1Provider) FindSiteFromRequest(w http.ResponseWriter, r *http.Request, token *auth.Token) *db.Site {
	notFound := core.Errorf(core.ErrNotFound, "no such site")
	siteID, err := strconv.ParseUint(mux.Vars(r)["site_id"], 10, 64)
	if err != nil {
		p.respondError(w, notFound)
		return nil
	}

	var site db.Site
	err = p.DB.SelectOne(&site, `SELECT * FROM sites WHERE id = $1`, siteID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		p.respondError(w, notFound)
		return nil
	case p.respondError(w, err):
		return nil
	case !token.CanAccessSite(site.ID):
		p.respondError(w, notFound)
		return nil
	default:
		return &site
	}
}

// FindMachineFromRequest loads the db.Machine referenced by the {machine_id}
// path parameter. Any errors will be written into the response immediately
// and cause a nil return value.
func (p *v1Provider) FindMachineFromRequest(w http.ResponseWriter, r *http.Request, token *auth.Token) *db.Machine {
	notFound := core.Errorf(core.ErrNotFound, "no such machine")
	machineID, err := strconv.ParseUint(mux.Vars(r)["machine_id"], 10, 64)
	if err != nil {
		p.respondError(w, notFound)
		return nil
	}

	var machine db.Machine
	err = p.DB.SelectOne(&machine, `SELECT * FROM machines WHERE id = $1`, machineID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		p.respondError(w, notFound)
		return nil
	case p.respondError(w, err):
		return nil
	case !token.CanAccessSite(machine.SiteID):
		p.respondError(w, notFound)
		return nil
	default:
		return &machine
	}
}

// FindBookingFromRequest loads the db.Booking referenced by the {booking_id}
// path parameter, which holds either a numeric ID or a booking number. Any
// errors will be written into the response immediately and cause a nil return
// value.
func (p *v1Provider) FindBookingFromRequest(w http.ResponseWriter, r *http.Request, token *auth.Token) *db.Booking {
	notFound := core.Errorf(core.ErrNotFound, "no such booking")
	ref := mux.Vars(r)["booking_id"]

	var (
		booking db.Booking
		err     error
	)
	if bookingID, parseErr := strconv.ParseUint(ref, 10, 64); parseErr == nil {
		err = p.DB.SelectOne(&booking, `SELECT * FROM bookings WHERE id = $1`, bookingID)
	} else {
		err = p.DB.SelectOne(&booking, `SELECT * FROM bookings WHERE number = $1`, ref)
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		p.respondError(w, notFound)
		return nil
	case p.respondError(w, err):
		return nil
	case !token.CanAccessSite(booking.SiteID):
		p.respondError(w, notFound)
		return nil
	default:
		return &booking
	}
}

// FindCustomerFromRequest loads the db.Customer referenced by the
// {customer_id} path parameter. Customers are not site-scoped (the phone
// number is one identity across the whole network), so any authenticated
// operator may see them.
func (p *v1Provider) FindCustomerFromRequest(w http.ResponseWriter, r *http.Request) *db.Customer {
	notFound := core.Errorf(core.ErrNotFound, "no such customer")
	customerID, err := strconv.ParseUint(mux.Vars(r)["customer_id"], 10, 64)
	if err != nil {
		p.respondError(w, notFound)
		return nil
	}

	var customer db.Customer
	err = p.DB.SelectOne(&customer, `SELECT * FROM customers WHERE id = $1`, customerID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		p.respondError(w, notFound)
		return nil
	case p.respondError(w, err):
		return nil
	default:
		return &customer
	}
}

// resolveSiteContext returns the site that a new booking is recorded under:
// an explicit siteId from the request body wins, then the actor's primary
// site, then the first assigned site in ID order. Any errors will be written
// into the response immediately and reported by the second return value.
func (p *v1Provider) resolveSiteContext(w http.ResponseWriter, token *auth.Token, explicit *db.SiteID) (db.SiteID, bool) {
	if explicit != nil {
		if !token.RequireSiteAccess(w, *explicit) {
			return 0, false
		}
		return *explicit, true
	}
	if token.User.PrimarySiteID != nil {
		return *token.User.PrimarySiteID, true
	}
	_, siteIDs := token.AccessibleSites()
	if len(siteIDs) > 0 {
		return siteIDs[0], true
	}
	p.respondError(w, core.Errorf(core.ErrBadRequest, "no site context: provide siteId or configure a primary site for this user"))
	return 0, false
}

// siteScopeOf converts a token into the site restriction for list queries.
func siteScopeOf(token *auth.Token) reports.SiteScope {
	all, siteIDs := token.AccessibleSites()
	return reports.SiteScope{All: all, SiteIDs: siteIDs}
}

var (
	palletsByMachineQuery = sqlext.SimplifyWhitespace(`
		SELECT * FROM pallets WHERE machine_id = $1 ORDER BY number
	`)

	occupantsByMachineQuery = sqlext.SimplifyWhitespace(`
		SELECT o.* FROM pallet_occupants o
		  JOIN pallets p ON p.id = o.pallet_id
		 WHERE p.machine_id = $1
		 ORDER BY o.pallet_id, o.position
	`)
)

// collectPalletPayloads loads the full pallet state of a machine for the
// detailed machine representation.
func (p *v1Provider) collectPalletPayloads(machine db.Machine) ([]palletPayload, error) {
	var pallets []db.Pallet
	_, err := p.DB.Select(&pallets, palletsByMachineQuery, machine.ID)
	if err != nil {
		return nil, err
	}
	occupantsByPalletID, err := db.BuildArrayIndexOfDBResult(p.DB,
		func(o db.PalletOccupant) db.PalletID { return o.PalletID },
		occupantsByMachineQuery, machine.ID)
	if err != nil {
		return nil, err
	}

	payloads := make([]palletPayload, len(pallets))
	for idx, pallet := range pallets {
		payloads[idx] = renderPallet(pallet, occupantsByPalletID[pallet.ID])
	}
	return payloads, nil
}
