// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/httpapi"

	"github.com/sapcc/parkhaus/internal/core"
	"github.com/sapcc/parkhaus/internal/datamodel"
	"github.com/sapcc/parkhaus/internal/db"
	"github.com/sapcc/parkhaus/internal/reports"
)

// ListCustomers handles GET /v1/customers.
func (p *v1Provider) ListCustomers(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/customers")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}

	var status *db.CustomerStatus
	switch value := r.URL.Query().Get("status"); value {
	case "", string(db.CustomerStatusActive):
		// only active customers unless asked otherwise
		active := db.CustomerStatusActive
		status = &active
	case "all":
		status = nil
	case string(db.CustomerStatusInactive), string(db.CustomerStatusBlocked):
		customerStatus := db.CustomerStatus(value)
		status = &customerStatus
	default:
		var v core.Validator
		v.CheckOneOf("status", value, string(db.CustomerStatusActive), string(db.CustomerStatusInactive),
			string(db.CustomerStatusBlocked), "all")
		p.respondError(w, v.AsError())
		return
	}

	page := core.ParsePagination(r.URL.Query(), 20)
	customers, totalCount, err := reports.ListCustomers(p.DB, status, page)
	if p.respondError(w, err) {
		return
	}
	payloads, err := p.collectCustomerPayloads(customers)
	if p.respondError(w, err) {
		return
	}
	p.respondPaginated(w, "customers retrieved", payloads, page, totalCount)
}

// CreateCustomer handles POST /v1/customers.
func (p *v1Provider) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/customers")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}

	var parseTarget struct {
		Name     string `json:"name"`
		Phone    string `json:"phone"`
		Email    string `json:"email"`
		Vehicles []struct {
			VehicleNumber string         `json:"vehicleNumber"`
			VehicleType   db.VehicleType `json:"vehicleType"`
			Make          string         `json:"make"`
			Model         string         `json:"model"`
			Color         string         `json:"color"`
		} `json:"vehicles"`
	}
	if !p.RequireJSON(w, r, &parseTarget) {
		return
	}

	intake := datamodel.CustomerIntake{
		Name:  parseTarget.Name,
		Phone: parseTarget.Phone,
		Email: parseTarget.Email,
	}
	for _, vehicle := range parseTarget.Vehicles {
		intake.Vehicles = append(intake.Vehicles, datamodel.VehicleIntake{
			UUID:  p.generateVehicleUUID(),
			Plate: vehicle.VehicleNumber,
			Type:  vehicle.VehicleType,
			Make:  core.SanitizeString(vehicle.Make),
			Model: core.SanitizeString(vehicle.Model),
			Color: core.SanitizeString(vehicle.Color),
		})
	}

	customer, err := datamodel.CreateCustomer(p.DB, intake, token.User.OperatorID, p.timeNow())
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.CreateAction, http.StatusCreated, customerEventTarget{Customer: customer})

	payloads, err := p.collectCustomerPayloads([]db.Customer{customer})
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusCreated, "customer created", payloads[0])
}

// SearchCustomers handles GET /v1/customers/search.
func (p *v1Provider) SearchCustomers(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/customers/search")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}

	query := r.URL.Query()
	q := strings.TrimSpace(query.Get("q"))
	if len(q) < 2 {
		p.respondError(w, core.Errorf(core.ErrBadRequest, "query parameter q must have at least 2 characters"))
		return
	}
	searchType := query.Get("type")
	if searchType == "" {
		searchType = "all"
	}
	var v core.Validator
	v.CheckOneOf("type", searchType, "phone", "name", "vehicle", "all")
	if p.respondError(w, v.AsError()) {
		return
	}

	customers, err := reports.SearchCustomers(p.DB, q, searchType)
	if p.respondError(w, err) {
		return
	}
	payloads, err := p.collectCustomerPayloads(customers)
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusOK, "search results", payloads)
}

// GetCustomer handles GET /v1/customers/:id.
func (p *v1Provider) GetCustomer(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/customers/:id")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	customer := p.FindCustomerFromRequest(w, r)
	if customer == nil {
		return
	}

	payloads, err := p.collectCustomerPayloads([]db.Customer{*customer})
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusOK, "customer retrieved", payloads[0])
}

// DeleteCustomer handles DELETE /v1/customers/:id.
func (p *v1Provider) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/customers/:id")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	customer := p.FindCustomerFromRequest(w, r)
	if customer == nil {
		return
	}

	var parseTarget struct {
		Reason string `json:"reason"`
	}
	if !p.RequireJSONOrEmpty(w, r, &parseTarget) {
		return
	}

	deleted, err := datamodel.SoftDeleteCustomer(p.DB, customer.ID,
		core.SanitizeString(parseTarget.Reason), p.timeNow())
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.DeleteAction, http.StatusOK, customerEventTarget{
		Customer: deleted,
		Detail:   map[string]string{"reason": parseTarget.Reason},
	})
	p.respondData(w, http.StatusOK, "customer deactivated", nil)
}

// AddVehicle handles POST /v1/customers/:id/vehicles.
func (p *v1Provider) AddVehicle(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/customers/:id/vehicles")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	customer := p.FindCustomerFromRequest(w, r)
	if customer == nil {
		return
	}

	var parseTarget struct {
		VehicleNumber string         `json:"vehicleNumber"`
		VehicleType   db.VehicleType `json:"vehicleType"`
		Make          string         `json:"make"`
		Model         string         `json:"model"`
		Color         string         `json:"color"`
	}
	if !p.RequireJSON(w, r, &parseTarget) {
		return
	}

	vehicle, err := datamodel.AddVehicle(p.DB, customer.ID, datamodel.VehicleIntake{
		UUID:  p.generateVehicleUUID(),
		Plate: parseTarget.VehicleNumber,
		Type:  parseTarget.VehicleType,
		Make:  core.SanitizeString(parseTarget.Make),
		Model: core.SanitizeString(parseTarget.Model),
		Color: core.SanitizeString(parseTarget.Color),
	}, token.User.OperatorID, p.timeNow())
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.UpdateAction, http.StatusCreated, customerEventTarget{
		Customer: *customer,
		Detail:   map[string]string{"vehicleAdded": vehicle.Plate},
	})
	p.respondData(w, http.StatusCreated, "vehicle added", vehiclePayload{
		ID:      vehicle.UUID,
		Plate:   vehicle.Plate,
		Type:    vehicle.Type,
		Make:    vehicle.Make,
		Model:   vehicle.Model,
		Color:   vehicle.Color,
		AddedAt: vehicle.AddedAt,
	})
}

// RemoveVehicle handles DELETE /v1/customers/:id/vehicles/:uuid.
func (p *v1Provider) RemoveVehicle(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/customers/:id/vehicles/:uuid")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	customer := p.FindCustomerFromRequest(w, r)
	if customer == nil {
		return
	}

	vehicleUUID := mux.Vars(r)["vehicle_uuid"]
	err := datamodel.RemoveVehicle(p.DB, customer.ID, vehicleUUID, p.timeNow())
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.UpdateAction, http.StatusOK, customerEventTarget{
		Customer: *customer,
		Detail:   map[string]string{"vehicleRemoved": vehicleUUID},
	})
	p.respondData(w, http.StatusOK, "vehicle removed", nil)
}

// collectCustomerPayloads renders customers with their vehicles and
// memberships, which are batch-loaded to avoid per-row queries on list pages.
func (p *v1Provider) collectCustomerPayloads(customers []db.Customer) ([]customerPayload, error) {
	payloads := make([]customerPayload, len(customers))
	if len(customers) == 0 {
		return payloads, nil
	}

	customerIDs := make([]any, len(customers))
	for idx, customer := range customers {
		customerIDs[idx] = customer.ID
	}

	whereStr, whereArgs := db.BuildSimpleWhereClause(map[string]any{"customer_id": customerIDs}, 0)
	vehiclesByCustomerID, err := db.BuildArrayIndexOfDBResult(p.DB,
		func(v db.Vehicle) db.CustomerID { return v.CustomerID },
		`SELECT * FROM vehicles WHERE is_active AND `+whereStr+` ORDER BY added_at`, whereArgs...)
	if err != nil {
		return nil, err
	}
	// at most one membership block per customer, so a plain index suffices
	membershipsByCustomerID, err := db.BuildIndexOfDBResult(p.DB,
		func(m db.Membership) db.CustomerID { return m.CustomerID },
		`SELECT * FROM memberships WHERE `+whereStr, whereArgs...)
	if err != nil {
		return nil, err
	}

	now := p.timeNow()
	for idx, customer := range customers {
		var membership *db.Membership
		if m, exists := membershipsByCustomerID[customer.ID]; exists {
			membership = &m
		}
		payloads[idx], err = renderCustomer(customer, vehiclesByCustomerID[customer.ID], membership, now)
		if err != nil {
			return nil, err
		}
	}
	return payloads, nil
}
