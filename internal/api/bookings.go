// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/httpapi"

	"github.com/sapcc/parkhaus/internal/auth"
	"github.com/sapcc/parkhaus/internal/core"
	"github.com/sapcc/parkhaus/internal/datamodel"
	"github.com/sapcc/parkhaus/internal/db"
	"github.com/sapcc/parkhaus/internal/reports"
)

// ListBookings handles GET /v1/bookings.
func (p *v1Provider) ListBookings(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/bookings")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}

	filter, ok := p.parseBookingFilter(w, r, token)
	if !ok {
		return
	}
	page := core.ParsePagination(r.URL.Query(), 20)
	bookings, totalCount, err := reports.ListBookings(p.DB, filter, page)
	if p.respondError(w, err) {
		return
	}
	p.respondPaginated(w, "bookings retrieved", renderBookings(bookings), page, totalCount)
}

// CreateBooking handles POST /v1/bookings.
func (p *v1Provider) CreateBooking(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/bookings")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}

	var parseTarget struct {
		CustomerName        string         `json:"customerName"`
		PhoneNumber         string         `json:"phoneNumber"`
		Email               string         `json:"email"`
		VehicleNumber       string         `json:"vehicleNumber"`
		VehicleType         db.VehicleType `json:"vehicleType"`
		MachineNumber       string         `json:"machineNumber"`
		PalletNumber        uint64         `json:"palletNumber"`
		Notes               string         `json:"notes"`
		SpecialInstructions string         `json:"specialInstructions"`
		SiteID              *db.SiteID     `json:"siteId"`
	}
	if !p.RequireJSON(w, r, &parseTarget) {
		return
	}
	siteID, ok := p.resolveSiteContext(w, token, parseTarget.SiteID)
	if !ok {
		return
	}

	result, err := datamodel.CreateBooking(p.DB, datamodel.BookingIntake{
		CustomerName:        parseTarget.CustomerName,
		Phone:               parseTarget.PhoneNumber,
		Email:               parseTarget.Email,
		VehiclePlate:        parseTarget.VehicleNumber,
		VehicleType:         parseTarget.VehicleType,
		MachineNumber:       parseTarget.MachineNumber,
		PalletNumber:        parseTarget.PalletNumber,
		Notes:               parseTarget.Notes,
		SpecialInstructions: parseTarget.SpecialInstructions,
	}, datamodel.CreateBookingParams{
		SiteID:      siteID,
		Actor:       token.User.OperatorID,
		OTPCode:     p.generateOTP(),
		VehicleUUID: p.generateVehicleUUID(),
	}, p.timeNow())
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.CreateAction, http.StatusCreated, bookingEventTarget{Booking: result.Booking})

	message := "booking created"
	switch {
	case result.IsNewCustomer:
		message = "booking created for new customer"
	case result.CustomerNameUpdated:
		message = "booking created (customer name updated)"
	}
	p.respondData(w, http.StatusCreated, message, renderBooking(result.Booking, true))
}

// GetBooking handles GET /v1/bookings/:id.
func (p *v1Provider) GetBooking(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/bookings/:id")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	booking := p.FindBookingFromRequest(w, r, token)
	if booking == nil {
		return
	}
	p.respondData(w, http.StatusOK, "booking retrieved",
		renderBooking(*booking, booking.Status == db.BookingStatusActive))
}

// UpdateBooking handles PUT /v1/bookings/:id.
//
// Only the annotation fields and the vehicle class can change after creation;
// everything else is either immutable identity or owned by a lifecycle
// transition.
func (p *v1Provider) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/bookings/:id")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	booking := p.FindBookingFromRequest(w, r, token)
	if booking == nil {
		return
	}

	var parseTarget struct {
		Notes               *string         `json:"notes"`
		SpecialInstructions *string         `json:"specialInstructions"`
		VehicleType         *db.VehicleType `json:"vehicleType"`
	}
	if !p.RequireJSON(w, r, &parseTarget) {
		return
	}

	if booking.Status != db.BookingStatusActive {
		p.respondError(w, core.Errorf(core.ErrIllegalTransition,
			"booking %s is %s; only active bookings can be updated", booking.Number, booking.Status))
		return
	}
	if parseTarget.VehicleType != nil {
		var v core.Validator
		v.CheckOneOf("vehicleType", string(*parseTarget.VehicleType),
			string(db.VehicleTypeTwoWheeler), string(db.VehicleTypeFourWheeler))
		if p.respondError(w, v.AsError()) {
			return
		}
		booking.VehicleType = *parseTarget.VehicleType
	}
	if parseTarget.Notes != nil {
		booking.Notes = core.SanitizeString(*parseTarget.Notes)
	}
	if parseTarget.SpecialInstructions != nil {
		booking.SpecialInstructions = core.SanitizeString(*parseTarget.SpecialInstructions)
	}
	booking.UpdatedByUserID = token.User.OperatorID
	booking.UpdatedAt = p.timeNow()
	_, err := p.DB.Update(booking)
	if p.respondError(w, err) {
		return
	}

	p.auditChange(r, token, cadf.UpdateAction, http.StatusOK, bookingEventTarget{Booking: *booking})
	p.respondData(w, http.StatusOK, "booking updated", renderBooking(*booking, false))
}

// CancelBooking handles DELETE /v1/bookings/:id.
func (p *v1Provider) CancelBooking(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/bookings/:id")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	booking := p.FindBookingFromRequest(w, r, token)
	if booking == nil {
		return
	}

	var parseTarget struct {
		Reason string `json:"reason"`
	}
	if !p.RequireJSONOrEmpty(w, r, &parseTarget) {
		return
	}

	cancelled, err := datamodel.CancelBooking(p.DB, booking.ID,
		core.SanitizeString(parseTarget.Reason), token.User.OperatorID, p.timeNow())
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.DeleteAction, http.StatusOK, bookingEventTarget{
		Booking: cancelled,
		Detail:  map[string]string{"reason": parseTarget.Reason},
	})
	p.respondData(w, http.StatusOK, "booking cancelled", renderBooking(cancelled, false))
}

// CompleteBooking handles POST /v1/bookings/:id/complete.
func (p *v1Provider) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/bookings/:id/complete")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	booking := p.FindBookingFromRequest(w, r, token)
	if booking == nil {
		return
	}

	var parseTarget struct {
		Payment *struct {
			Amount         float64 `json:"amount"`
			Method         string  `json:"method"`
			TransactionRef string  `json:"transactionRef"`
		} `json:"payment"`
	}
	if !p.RequireJSONOrEmpty(w, r, &parseTarget) {
		return
	}

	var payment *datamodel.PaymentIntake
	if parseTarget.Payment != nil {
		var v core.Validator
		if parseTarget.Payment.Amount < 0 {
			v.Reject("payment.amount", strconv.FormatFloat(parseTarget.Payment.Amount, 'f', -1, 64),
				"payment.amount must not be negative")
		}
		v.CheckRequired("payment.method", parseTarget.Payment.Method)
		v.CheckOneOf("payment.method", parseTarget.Payment.Method, "cash", "card", "upi", "membership")
		if p.respondError(w, v.AsError()) {
			return
		}
		payment = &datamodel.PaymentIntake{
			Amount:         parseTarget.Payment.Amount,
			Method:         parseTarget.Payment.Method,
			TransactionRef: core.SanitizeString(parseTarget.Payment.TransactionRef),
		}
	}

	completed, err := datamodel.CompleteBooking(p.DB, booking.ID, payment, token.User.OperatorID, p.timeNow())
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.UpdateAction, http.StatusOK, bookingEventTarget{
		Booking: completed,
		Detail:  parseTarget.Payment,
	})
	p.respondData(w, http.StatusOK, "booking completed", renderBooking(completed, false))
}

// RegenerateBookingOTP handles POST /v1/bookings/:id/regenerate-otp.
func (p *v1Provider) RegenerateBookingOTP(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/bookings/:id/regenerate-otp")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	booking := p.FindBookingFromRequest(w, r, token)
	if booking == nil {
		return
	}

	updated, err := datamodel.RegenerateBookingOTP(p.DB, booking.ID, p.generateOTP(), token.User.OperatorID, p.timeNow())
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.UpdateAction, http.StatusOK, bookingEventTarget{Booking: updated})
	p.respondData(w, http.StatusOK, "new OTP issued", renderBooking(updated, true))
}

// ExtendBooking handles POST /v1/bookings/:id/extend.
func (p *v1Provider) ExtendBooking(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/bookings/:id/extend")
	token := p.CheckToken(r)
	if !token.Require(w, "booking:extend") {
		return
	}
	booking := p.FindBookingFromRequest(w, r, token)
	if booking == nil {
		return
	}

	var parseTarget struct {
		Hours   uint64 `json:"hours"`
		Minutes uint64 `json:"minutes"`
		Reason  string `json:"reason"`
	}
	if !p.RequireJSON(w, r, &parseTarget) {
		return
	}

	extended, err := datamodel.ExtendBooking(p.DB, booking.ID, parseTarget.Hours, parseTarget.Minutes,
		core.SanitizeString(parseTarget.Reason), token.User.OperatorID, p.timeNow())
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.UpdateAction, http.StatusOK, bookingEventTarget{
		Booking: extended,
		Detail:  parseTarget,
	})
	p.respondData(w, http.StatusOK, "booking extended", renderBooking(extended, false))
}

// VerifyBookingOTP handles POST /v1/bookings/verify-otp.
//
// This endpoint is deliberately not site-scoped: possession of a valid OTP is
// the retrieval credential, and the attendant at the machine may belong to a
// different site than the operator who recorded the booking.
func (p *v1Provider) VerifyBookingOTP(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/bookings/verify-otp")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}

	var parseTarget struct {
		OTPCode string `json:"otpCode"`
	}
	if !p.RequireJSON(w, r, &parseTarget) {
		return
	}
	var v core.Validator
	v.CheckRequired("otpCode", parseTarget.OTPCode)
	v.CheckMatch("otpCode", parseTarget.OTPCode, core.OTPRx, "a 6-digit code")
	if p.respondError(w, v.AsError()) {
		return
	}

	booking, err := datamodel.VerifyBookingOTP(p.DB, parseTarget.OTPCode, p.timeNow())
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.UpdateAction, http.StatusOK, bookingEventTarget{Booking: booking})
	p.respondData(w, http.StatusOK, "OTP verified", renderBooking(booking, true))
}

// ListActiveBookings handles GET /v1/bookings/active.
func (p *v1Provider) ListActiveBookings(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/bookings/active")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}

	status := db.BookingStatusActive
	filter := reports.BookingFilter{
		Scope:  siteScopeOf(token),
		Status: &status,
	}
	page := core.ParsePagination(r.URL.Query(), 100)
	bookings, totalCount, err := reports.ListBookings(p.DB, filter, page)
	if p.respondError(w, err) {
		return
	}
	p.respondPaginated(w, "active bookings retrieved", renderBookings(bookings), page, totalCount)
}

// SearchBookings handles GET /v1/bookings/search.
func (p *v1Provider) SearchBookings(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/bookings/search")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}

	query := r.URL.Query()
	q := strings.TrimSpace(query.Get("q"))
	if q == "" {
		p.respondError(w, core.Errorf(core.ErrBadRequest, "missing query parameter: q"))
		return
	}
	searchType := query.Get("type")
	if searchType == "" {
		searchType = "all"
	}
	var v core.Validator
	v.CheckOneOf("type", searchType, "vehicle", "pallet", "otp", "customer", "phone", "all")
	if p.respondError(w, v.AsError()) {
		return
	}

	bookings, err := reports.SearchBookings(p.DB, siteScopeOf(token), q, searchType)
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusOK, "search results", renderBookings(bookings))
}

// ListBookingsByMachine handles GET /v1/bookings/machine/:code.
func (p *v1Provider) ListBookingsByMachine(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/bookings/machine/:code")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}

	machineCode := mux.Vars(r)["machine_code"]
	var v core.Validator
	v.CheckMatch("machineNumber", machineCode, core.MachineCodeRx, `of the form "M001"`)
	filter := reports.BookingFilter{
		Scope:         siteScopeOf(token),
		MachineNumber: machineCode,
	}
	if status := r.URL.Query().Get("status"); status != "" {
		v.CheckOneOf("status", status, string(db.BookingStatusActive), string(db.BookingStatusCompleted),
			string(db.BookingStatusCancelled), string(db.BookingStatusExpired))
		bookingStatus := db.BookingStatus(status)
		filter.Status = &bookingStatus
	}
	if p.respondError(w, v.AsError()) {
		return
	}

	page := core.ParsePagination(r.URL.Query(), 20)
	bookings, totalCount, err := reports.ListBookings(p.DB, filter, page)
	if p.respondError(w, err) {
		return
	}
	p.respondPaginated(w, "bookings retrieved", renderBookings(bookings), page, totalCount)
}

// ListBookingsByVehicle handles GET /v1/bookings/vehicle/:plate.
func (p *v1Provider) ListBookingsByVehicle(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/bookings/vehicle/:plate")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}

	filter := reports.BookingFilter{
		Scope:         siteScopeOf(token),
		VehicleNumber: core.NormalizePlate(mux.Vars(r)["vehicle_number"]),
	}
	page := core.ParsePagination(r.URL.Query(), 20)
	bookings, totalCount, err := reports.ListBookings(p.DB, filter, page)
	if p.respondError(w, err) {
		return
	}
	p.respondPaginated(w, "bookings retrieved", renderBookings(bookings), page, totalCount)
}

// GetBookingStats handles GET /v1/bookings/stats.
func (p *v1Provider) GetBookingStats(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/bookings/stats")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}

	filter, ok := p.parseBookingFilter(w, r, token)
	if !ok {
		return
	}
	stats, err := reports.GetBookingStats(p.DB, filter)
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusOK, "booking statistics", stats)
}

// parseBookingFilter reads the shared booking filter parameters from the
// query string. An explicit siteId parameter narrows the scope and must be a
// site that the caller may access.
func (p *v1Provider) parseBookingFilter(w http.ResponseWriter, r *http.Request, token *auth.Token) (reports.BookingFilter, bool) {
	query := r.URL.Query()
	filter := reports.BookingFilter{Scope: siteScopeOf(token)}

	if siteIDStr := query.Get("siteId"); siteIDStr != "" {
		siteID, err := strconv.ParseUint(siteIDStr, 10, 63)
		if err != nil {
			p.respondError(w, core.Errorf(core.ErrBadRequest, "invalid siteId: %q", siteIDStr))
			return reports.BookingFilter{}, false
		}
		if !token.RequireSiteAccess(w, db.SiteID(siteID)) {
			return reports.BookingFilter{}, false
		}
		filter.Scope = reports.SiteScope{SiteIDs: []db.SiteID{db.SiteID(siteID)}}
	}

	var v core.Validator
	if status := query.Get("status"); status != "" {
		v.CheckOneOf("status", status, string(db.BookingStatusActive), string(db.BookingStatusCompleted),
			string(db.BookingStatusCancelled), string(db.BookingStatusExpired))
		bookingStatus := db.BookingStatus(status)
		filter.Status = &bookingStatus
	}
	if machineNumber := query.Get("machineNumber"); machineNumber != "" {
		v.CheckMatch("machineNumber", machineNumber, core.MachineCodeRx, `of the form "M001"`)
		filter.MachineNumber = machineNumber
	}
	if vehicleNumber := query.Get("vehicleNumber"); vehicleNumber != "" {
		filter.VehicleNumber = core.NormalizePlate(vehicleNumber)
	}
	filter.Search = strings.TrimSpace(query.Get("search"))
	if p.respondError(w, v.AsError()) {
		return reports.BookingFilter{}, false
	}

	var ok bool
	filter.StartedAfter, ok = p.parseTimeParam(w, query.Get("dateFrom"), "dateFrom", false)
	if !ok {
		return reports.BookingFilter{}, false
	}
	filter.StartedBefore, ok = p.parseTimeParam(w, query.Get("dateTo"), "dateTo", true)
	if !ok {
		return reports.BookingFilter{}, false
	}
	return filter, true
}

// parseTimeParam parses a query parameter that holds an RFC 3339 timestamp or
// a plain date. Plain dates at the end of a range are moved to the end of that
// day, so that ?dateTo=2026-03-31 includes bookings from March 31.
func (p *v1Provider) parseTimeParam(w http.ResponseWriter, value, key string, endOfDay bool) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, true
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		if endOfDay {
			t = t.Add(24 * time.Hour)
		}
		return &t, true
	}
	p.respondError(w, core.Errorf(core.ErrBadRequest, "invalid %s: %q is not a timestamp or date", key, value))
	return nil, false
}
