// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-gorp/gorp/v3"
	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"
	"github.com/sapcc/go-bits/audittools"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/respondwith"

	"github.com/sapcc/parkhaus/internal/auth"
	"github.com/sapcc/parkhaus/internal/core"
)

// VersionData is used by version advertisement handlers.
type VersionData struct {
	Status string            `json:"status"`
	ID     string            `json:"id"`
	Links  []VersionLinkData `json:"links"`
}

// VersionLinkData is used by version advertisement handlers, as part of the
// VersionData struct.
type VersionLinkData struct {
	URL      string `json:"href"`
	Relation string `json:"rel"`
	Type     string `json:"type,omitempty"`
}

type v1Provider struct {
	DB             *gorp.DbMap
	Network        *core.Network
	VersionData    VersionData
	tokenValidator auth.TokenValidator
	auditor        audittools.Auditor
	startedAt      time.Time
	// slots for test doubles
	timeNow func() time.Time
	// credential generators for bookings and memberships
	generateOTP              func() string
	generateMembershipNumber func() string
	generateMembershipPIN    func() string
	generateVehicleUUID      func() string
}

// NewV1API creates an httpapi.API that serves the Parkhaus v1 API.
func NewV1API(dbm *gorp.DbMap, network *core.Network, tokenValidator auth.TokenValidator, auditor audittools.Auditor, timeNow func() time.Time) *v1Provider {
	p := &v1Provider{
		DB:             dbm,
		Network:        network,
		tokenValidator: tokenValidator,
		auditor:        auditor,
		startedAt:      timeNow(),
		timeNow:        timeNow,

		generateOTP:              core.RandomOTP,
		generateMembershipNumber: core.RandomMembershipNumber,
		generateMembershipPIN:    core.RandomMembershipPIN,
		generateVehicleUUID: func() string {
			return uuid.Must(uuid.NewV4()).String()
		},
	}
	p.VersionData = VersionData{
		Status: "CURRENT",
		ID:     "v1",
		Links: []VersionLinkData{
			{
				Relation: "self",
				URL:      "/v1/",
			},
			{
				Relation: "describedby",
				URL:      "https://github.com/sapcc/parkhaus/blob/master/docs/api-v1-specification.md",
				Type:     "text/html",
			},
		},
	}
	return p
}

// OverrideGenerators replaces the random credential generators with
// deterministic ones. Only used by tests.
func (p *v1Provider) OverrideGenerators(otp, membershipNumber, membershipPIN, vehicleUUID func() string) *v1Provider {
	p.generateOTP = otp
	p.generateMembershipNumber = membershipNumber
	p.generateMembershipPIN = membershipPIN
	p.generateVehicleUUID = vehicleUUID
	return p
}

// AddTo implements the httpapi.API interface.
func (p *v1Provider) AddTo(r *mux.Router) {
	r.Methods("HEAD", "GET").Path("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpapi.IdentifyEndpoint(r, "/")
		httpapi.SkipRequestLog(r)
		respondwith.JSON(w, http.StatusMultipleChoices, map[string]any{"versions": []VersionData{p.VersionData}})
	})

	r.Methods("GET").Path("/v1/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpapi.IdentifyEndpoint(r, "/v1/")
		httpapi.SkipRequestLog(r)
		respondwith.JSON(w, http.StatusOK, map[string]any{"version": p.VersionData})
	})

	r.Methods("GET").Path("/health").HandlerFunc(p.GetHealth)

	r.Methods("GET").Path("/v1/bookings").HandlerFunc(p.ListBookings)
	r.Methods("POST").Path("/v1/bookings").HandlerFunc(p.CreateBooking)
	// static subpaths must be registered before the {booking_id} capture
	r.Methods("GET").Path("/v1/bookings/search").HandlerFunc(p.SearchBookings)
	r.Methods("GET").Path("/v1/bookings/active").HandlerFunc(p.ListActiveBookings)
	r.Methods("GET").Path("/v1/bookings/stats").HandlerFunc(p.GetBookingStats)
	r.Methods("POST").Path("/v1/bookings/verify-otp").HandlerFunc(p.VerifyBookingOTP)
	r.Methods("GET").Path("/v1/bookings/machine/{machine_code}").HandlerFunc(p.ListBookingsByMachine)
	r.Methods("GET").Path("/v1/bookings/vehicle/{vehicle_number}").HandlerFunc(p.ListBookingsByVehicle)
	r.Methods("GET").Path("/v1/bookings/{booking_id}").HandlerFunc(p.GetBooking)
	r.Methods("PUT").Path("/v1/bookings/{booking_id}").HandlerFunc(p.UpdateBooking)
	r.Methods("DELETE").Path("/v1/bookings/{booking_id}").HandlerFunc(p.CancelBooking)
	r.Methods("POST").Path("/v1/bookings/{booking_id}/complete").HandlerFunc(p.CompleteBooking)
	r.Methods("POST").Path("/v1/bookings/{booking_id}/regenerate-otp").HandlerFunc(p.RegenerateBookingOTP)
	r.Methods("POST").Path("/v1/bookings/{booking_id}/extend").HandlerFunc(p.ExtendBooking)

	r.Methods("GET").Path("/v1/customers").HandlerFunc(p.ListCustomers)
	r.Methods("POST").Path("/v1/customers").HandlerFunc(p.CreateCustomer)
	r.Methods("GET").Path("/v1/customers/search").HandlerFunc(p.SearchCustomers)
	r.Methods("POST").Path("/v1/customers/validate-membership").HandlerFunc(p.ValidateMembership)
	r.Methods("GET").Path("/v1/customers/{customer_id}").HandlerFunc(p.GetCustomer)
	r.Methods("DELETE").Path("/v1/customers/{customer_id}").HandlerFunc(p.DeleteCustomer)
	r.Methods("POST").Path("/v1/customers/{customer_id}/vehicles").HandlerFunc(p.AddVehicle)
	r.Methods("DELETE").Path("/v1/customers/{customer_id}/vehicles/{vehicle_uuid}").HandlerFunc(p.RemoveVehicle)
	r.Methods("POST").Path("/v1/customers/{customer_id}/membership").HandlerFunc(p.CreateMembership)
	r.Methods("DELETE").Path("/v1/customers/{customer_id}/membership").HandlerFunc(p.DeactivateMembership)
	r.Methods("GET").Path("/v1/customers/{customer_id}/memberships").HandlerFunc(p.ListMembershipPayments)

	r.Methods("POST").Path("/v1/public/membership/purchase").HandlerFunc(p.PurchaseMembership)
	r.Methods("POST").Path("/v1/public/membership/validate").HandlerFunc(p.ValidateMembershipPublic)

	r.Methods("GET").Path("/v1/machines").HandlerFunc(p.ListMachines)
	r.Methods("POST").Path("/v1/machines").HandlerFunc(p.CreateMachine)
	r.Methods("GET").Path("/v1/machines/available").HandlerFunc(p.ListAvailableMachines)
	r.Methods("GET").Path("/v1/machines/maintenance-due").HandlerFunc(p.ListMaintenanceDueMachines)
	r.Methods("GET").Path("/v1/machines/{machine_id}").HandlerFunc(p.GetMachine)
	r.Methods("PUT").Path("/v1/machines/{machine_id}").HandlerFunc(p.UpdateMachine)
	r.Methods("DELETE").Path("/v1/machines/{machine_id}").HandlerFunc(p.DeactivateMachine)
	r.Methods("POST").Path("/v1/machines/{machine_id}/heartbeat").HandlerFunc(p.UpdateMachineHeartbeat)
	r.Methods("POST").Path("/v1/machines/{machine_id}/pallets/{pallet_ref}/occupy").HandlerFunc(p.OccupyPallet)
	r.Methods("POST").Path("/v1/machines/{machine_id}/pallets/{pallet_ref}/release").HandlerFunc(p.ReleasePallet)
	r.Methods("POST").Path("/v1/machines/{machine_id}/pallets/{pallet_ref}/release-vehicle").HandlerFunc(p.ReleaseVehicle)
	r.Methods("POST").Path("/v1/machines/{machine_id}/pallets/{pallet_ref}/maintenance").HandlerFunc(p.SetPalletMaintenance)

	r.Methods("GET").Path("/v1/sites").HandlerFunc(p.ListSites)
	r.Methods("POST").Path("/v1/sites").HandlerFunc(p.CreateSite)
	r.Methods("GET").Path("/v1/sites/{site_id}").HandlerFunc(p.GetSite)
	r.Methods("PUT").Path("/v1/sites/{site_id}").HandlerFunc(p.UpdateSite)
	r.Methods("DELETE").Path("/v1/sites/{site_id}").HandlerFunc(p.DeleteSite)
	r.Methods("GET").Path("/v1/sites/{site_id}/statistics").HandlerFunc(p.GetSiteStatistics)
	r.Methods("GET").Path("/v1/sites/{site_id}/users").HandlerFunc(p.ListSiteUsers)
	r.Methods("POST").Path("/v1/sites/{site_id}/assign-user").HandlerFunc(p.AssignUserToSite)

	r.Methods("GET").Path("/v1/inconsistencies").HandlerFunc(p.ListInconsistencies)
}

// GetHealth handles GET /health.
//
// This lives next to the go-bits /healthcheck endpoint: /healthcheck is the
// plain-text liveness probe for Kubernetes, this one is the JSON status view
// that operator dashboards poll.
func (p *v1Provider) GetHealth(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/health")
	httpapi.SkipRequestLog(r)

	env := "production"
	if logg.ShowDebug {
		env = "development"
	}
	respondwith.JSON(w, http.StatusOK, map[string]any{
		"status":        "OK",
		"uptimeSeconds": uint64(p.timeNow().Sub(p.startedAt).Seconds()),
		"env":           env,
	})
}

// CheckToken checks the validity of the request's bearer token, and returns a
// Token instance for checking authorization. Any errors that occur during this
// function are deferred until Require() is called.
func (p *v1Provider) CheckToken(r *http.Request) *auth.Token {
	return p.tokenValidator.CheckToken(r)
}

// RequireJSON will parse the request body into the given data structure, or
// write an error response if that fails.
func (p *v1Provider) RequireJSON(w http.ResponseWriter, r *http.Request, data any) bool {
	err := json.NewDecoder(r.Body).Decode(data)
	if err != nil {
		p.respondError(w, core.Errorf(core.ErrBadRequest, "request body is not valid JSON: %s", err.Error()))
		return false
	}
	return true
}

// RequireJSONOrEmpty is like RequireJSON, but also accepts an empty request
// body, for operations where the entire body is optional.
func (p *v1Provider) RequireJSONOrEmpty(w http.ResponseWriter, r *http.Request, data any) bool {
	err := json.NewDecoder(r.Body).Decode(data)
	if err != nil && !errors.Is(err, io.EOF) {
		p.respondError(w, core.Errorf(core.ErrBadRequest, "request body is not valid JSON: %s", err.Error()))
		return false
	}
	return true
}
