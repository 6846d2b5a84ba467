// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/parkhaus/internal/auth"
	"github.com/sapcc/parkhaus/internal/core"
	"github.com/sapcc/parkhaus/internal/datamodel"
	"github.com/sapcc/parkhaus/internal/db"
	"github.com/sapcc/parkhaus/internal/reports"
)

// parseSiteScope builds the site restriction for machine list endpoints. An
// explicit siteId parameter narrows the scope and must be a site that the
// caller may access.
func (p *v1Provider) parseSiteScope(w http.ResponseWriter, r *http.Request, token *auth.Token) (reports.SiteScope, bool) {
	if siteIDStr := r.URL.Query().Get("siteId"); siteIDStr != "" {
		siteID, err := strconv.ParseUint(siteIDStr, 10, 63)
		if err != nil {
			p.respondError(w, core.Errorf(core.ErrBadRequest, "invalid siteId: %q", siteIDStr))
			return reports.SiteScope{}, false
		}
		if !token.RequireSiteAccess(w, db.SiteID(siteID)) {
			return reports.SiteScope{}, false
		}
		return reports.SiteScope{SiteIDs: []db.SiteID{db.SiteID(siteID)}}, true
	}
	return siteScopeOf(token), true
}

// collectMachinePayloads renders machines for list views: the capacity
// aggregates are included, the full pallet state is not.
func (p *v1Provider) collectMachinePayloads(machines []db.Machine) ([]machinePayload, error) {
	now := p.timeNow()
	payloads := make([]machinePayload, len(machines))
	for idx, machine := range machines {
		capacity, err := datamodel.GetMachineCapacity(p.DB, machine)
		if err != nil {
			return nil, err
		}
		payloads[idx], err = renderMachine(machine, capacity, now)
		if err != nil {
			return nil, err
		}
	}
	return payloads, nil
}

// ListMachines handles GET /v1/machines.
func (p *v1Provider) ListMachines(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/machines")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	scope, ok := p.parseSiteScope(w, r, token)
	if !ok {
		return
	}

	filter := reports.MachineFilter{Scope: scope}
	var v core.Validator
	if status := r.URL.Query().Get("status"); status != "" {
		v.CheckOneOf("status", status, string(db.MachineStatusOnline), string(db.MachineStatusOffline),
			string(db.MachineStatusMaintenance), string(db.MachineStatusError))
		machineStatus := db.MachineStatus(status)
		filter.Status = &machineStatus
	}
	if vehicleType := r.URL.Query().Get("vehicleType"); vehicleType != "" {
		v.CheckOneOf("vehicleType", vehicleType, string(db.VehicleTypeTwoWheeler), string(db.VehicleTypeFourWheeler))
		vt := db.VehicleType(vehicleType)
		filter.VehicleType = &vt
	}
	if p.respondError(w, v.AsError()) {
		return
	}

	machines, err := reports.ListMachines(p.DB, filter)
	if p.respondError(w, err) {
		return
	}
	payloads, err := p.collectMachinePayloads(machines)
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusOK, "machines retrieved", payloads)
}

var machineCodeTakenQuery = sqlext.SimplifyWhitespace(`
	SELECT EXISTS (SELECT 1 FROM machines WHERE site_id = $1 AND code = $2 AND id != $3)
`)

func machineCodeTaken(dbi db.Interface, siteID db.SiteID, code string, excludeID db.MachineID) (bool, error) {
	var taken bool
	err := dbi.QueryRow(machineCodeTakenQuery, siteID, code, excludeID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("while checking for duplicate machine code %s: %w", code, err)
	}
	return taken, nil
}

// CreateMachine handles POST /v1/machines.
//
// The machine's pallet set is derived from capacityTotal and created in the
// same transaction. New machines start out offline until their controller is
// commissioned and an operator puts them online.
func (p *v1Provider) CreateMachine(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/machines")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}

	var parseTarget struct {
		SiteID         *db.SiteID             `json:"siteId"`
		Code           string                 `json:"code"`
		MachineType    db.MachineType         `json:"machineType"`
		VehicleType    db.VehicleType         `json:"vehicleType"`
		CapacityTotal  uint64                 `json:"capacityTotal"`
		Specifications *specificationsPayload `json:"specifications"`
		OperatingHours *core.WeeklyHours      `json:"operatingHours"`
		Pricing        *core.Pricing          `json:"pricing"`
	}
	if !p.RequireJSON(w, r, &parseTarget) {
		return
	}

	var v core.Validator
	v.CheckRequired("code", parseTarget.Code)
	v.CheckMatch("code", parseTarget.Code, core.MachineCodeRx, `of the form "M001"`)
	v.CheckRequired("machineType", string(parseTarget.MachineType))
	v.CheckOneOf("machineType", string(parseTarget.MachineType),
		string(db.MachineTypeRotary), string(db.MachineTypePuzzle))
	v.CheckRequired("vehicleType", string(parseTarget.VehicleType))
	v.CheckOneOf("vehicleType", string(parseTarget.VehicleType),
		string(db.VehicleTypeTwoWheeler), string(db.VehicleTypeFourWheeler))
	if parseTarget.CapacityTotal == 0 {
		v.Reject("capacityTotal", "0", "capacityTotal must be at least 1")
	}
	if specs := parseTarget.Specifications; specs != nil {
		for _, vt := range specs.SupportedVehicleTypes {
			v.CheckOneOf("specifications.supportedVehicleTypes", string(vt),
				string(db.VehicleTypeTwoWheeler), string(db.VehicleTypeFourWheeler))
		}
	}
	if p.respondError(w, v.AsError()) {
		return
	}

	siteID, ok := p.resolveSiteContext(w, token, parseTarget.SiteID)
	if !ok {
		return
	}

	now := p.timeNow()
	machine := db.Machine{
		SiteID:          siteID,
		Code:            parseTarget.Code,
		Type:            parseTarget.MachineType,
		VehicleType:     parseTarget.VehicleType,
		Status:          db.MachineStatusOffline,
		CapacityTotal:   parseTarget.CapacityTotal,
		Connection:      db.MachineDisconnected,
		CreatedByUserID: token.User.OperatorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if specs := parseTarget.Specifications; specs != nil {
		if specs.SupportedVehicleTypes != nil {
			machine.SupportedVehicleTypes = core.RenderJSONColumn(specs.SupportedVehicleTypes)
		}
		machine.MaxLengthMM = specs.MaxLengthMM
		machine.MaxWidthMM = specs.MaxWidthMM
		machine.MaxHeightMM = specs.MaxHeightMM
		machine.MaxWeightKG = specs.MaxWeightKG
	}
	if parseTarget.OperatingHours != nil {
		machine.OperatingHours = core.RenderJSONColumn(parseTarget.OperatingHours)
	}
	if parseTarget.Pricing != nil {
		machine.Pricing = core.RenderJSONColumn(parseTarget.Pricing)
	}

	tx, err := p.DB.Begin()
	if p.respondError(w, err) {
		return
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	taken, err := machineCodeTaken(tx, siteID, machine.Code, 0)
	if p.respondError(w, err) {
		return
	}
	if taken {
		p.respondError(w, core.Errorf(core.ErrConflict, "machine %s already exists at this site", machine.Code))
		return
	}

	err = tx.Insert(&machine)
	if p.respondError(w, err) {
		return
	}
	err = datamodel.InitializePallets(tx, machine)
	if p.respondError(w, err) {
		return
	}
	err = tx.Commit()
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.CreateAction, http.StatusCreated, machineEventTarget{Machine: machine})

	payload, err := p.renderMachineDetail(machine, now)
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusCreated, "machine created", payload)
}

// GetMachine handles GET /v1/machines/:id.
func (p *v1Provider) GetMachine(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/machines/:id")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	machine := p.FindMachineFromRequest(w, r, token)
	if machine == nil {
		return
	}

	payload, err := p.renderMachineDetail(*machine, p.timeNow())
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusOK, "machine retrieved", payload)
}

// UpdateMachine handles PUT /v1/machines/:id.
//
// The pallet set is fixed at machine creation, so capacityTotal cannot be
// changed here. Changing machineType or vehicleType rewrites the per-pallet
// vehicle capacities; status changes go into the machine's service history.
func (p *v1Provider) UpdateMachine(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/machines/:id")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	machine := p.FindMachineFromRequest(w, r, token)
	if machine == nil {
		return
	}

	var parseTarget struct {
		Code           *string                `json:"code"`
		MachineType    *db.MachineType        `json:"machineType"`
		VehicleType    *db.VehicleType        `json:"vehicleType"`
		Status         *db.MachineStatus      `json:"status"`
		Specifications *specificationsPayload `json:"specifications"`
		OperatingHours *core.WeeklyHours      `json:"operatingHours"`
		Pricing        *core.Pricing          `json:"pricing"`
	}
	if !p.RequireJSON(w, r, &parseTarget) {
		return
	}

	var v core.Validator
	if parseTarget.Code != nil {
		v.CheckRequired("code", *parseTarget.Code)
		v.CheckMatch("code", *parseTarget.Code, core.MachineCodeRx, `of the form "M001"`)
	}
	if parseTarget.MachineType != nil {
		v.CheckOneOf("machineType", string(*parseTarget.MachineType),
			string(db.MachineTypeRotary), string(db.MachineTypePuzzle))
	}
	if parseTarget.VehicleType != nil {
		v.CheckOneOf("vehicleType", string(*parseTarget.VehicleType),
			string(db.VehicleTypeTwoWheeler), string(db.VehicleTypeFourWheeler))
	}
	if parseTarget.Status != nil {
		v.CheckOneOf("status", string(*parseTarget.Status),
			string(db.MachineStatusOnline), string(db.MachineStatusOffline),
			string(db.MachineStatusMaintenance), string(db.MachineStatusError))
	}
	if specs := parseTarget.Specifications; specs != nil {
		for _, vt := range specs.SupportedVehicleTypes {
			v.CheckOneOf("specifications.supportedVehicleTypes", string(vt),
				string(db.VehicleTypeTwoWheeler), string(db.VehicleTypeFourWheeler))
		}
	}
	if p.respondError(w, v.AsError()) {
		return
	}

	previousStatus := machine.Status
	if parseTarget.Code != nil {
		machine.Code = *parseTarget.Code
	}
	kinematicsChanged := false
	if parseTarget.MachineType != nil && *parseTarget.MachineType != machine.Type {
		machine.Type = *parseTarget.MachineType
		kinematicsChanged = true
	}
	if parseTarget.VehicleType != nil && *parseTarget.VehicleType != machine.VehicleType {
		machine.VehicleType = *parseTarget.VehicleType
		kinematicsChanged = true
	}
	if parseTarget.Status != nil {
		machine.Status = *parseTarget.Status
	}
	if specs := parseTarget.Specifications; specs != nil {
		if specs.SupportedVehicleTypes != nil {
			machine.SupportedVehicleTypes = core.RenderJSONColumn(specs.SupportedVehicleTypes)
		}
		machine.MaxLengthMM = specs.MaxLengthMM
		machine.MaxWidthMM = specs.MaxWidthMM
		machine.MaxHeightMM = specs.MaxHeightMM
		machine.MaxWeightKG = specs.MaxWeightKG
	}
	if parseTarget.OperatingHours != nil {
		machine.OperatingHours = core.RenderJSONColumn(parseTarget.OperatingHours)
	}
	if parseTarget.Pricing != nil {
		machine.Pricing = core.RenderJSONColumn(parseTarget.Pricing)
	}
	now := p.timeNow()
	machine.UpdatedAt = now

	tx, err := p.DB.Begin()
	if p.respondError(w, err) {
		return
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	if parseTarget.Code != nil {
		taken, err := machineCodeTaken(tx, machine.SiteID, machine.Code, machine.ID)
		if p.respondError(w, err) {
			return
		}
		if taken {
			p.respondError(w, core.Errorf(core.ErrConflict, "machine %s already exists at this site", machine.Code))
			return
		}
	}
	_, err = tx.Update(machine)
	if p.respondError(w, err) {
		return
	}
	if kinematicsChanged {
		err = datamodel.RewritePalletCapacities(tx, *machine)
		if p.respondError(w, err) {
			return
		}
	}
	if machine.Status != previousStatus {
		serviceEvent := db.MachineServiceEvent{
			MachineID:  machine.ID,
			Event:      fmt.Sprintf("status-changed (%s -> %s)", previousStatus, machine.Status),
			RecordedBy: token.User.OperatorID,
			RecordedAt: now,
		}
		err = tx.Insert(&serviceEvent)
		if p.respondError(w, err) {
			return
		}
	}
	err = tx.Commit()
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.UpdateAction, http.StatusOK, machineEventTarget{Machine: *machine})

	payload, err := p.renderMachineDetail(*machine, now)
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusOK, "machine updated", payload)
}

// The NOT EXISTS guard makes check and delete atomic; a vehicle that arrives
// between loading the machine and deleting it blocks the delete.
var deleteIdleMachineQuery = sqlext.SimplifyWhitespace(`
	DELETE FROM machines WHERE id = $1 AND NOT EXISTS (
		SELECT 1 FROM pallets WHERE machine_id = $1 AND current_occupancy > 0
	)
`)

// DeactivateMachine handles DELETE /v1/machines/:id.
//
// The machine must not hold any vehicles. Its pallets and service history are
// removed along with it; bookings reference machines by code only and stay
// untouched.
func (p *v1Provider) DeactivateMachine(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/machines/:id")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	machine := p.FindMachineFromRequest(w, r, token)
	if machine == nil {
		return
	}

	result, err := p.DB.Exec(deleteIdleMachineQuery, machine.ID)
	if p.respondError(w, err) {
		return
	}
	rowsAffected, err := result.RowsAffected()
	if p.respondError(w, err) {
		return
	}
	if rowsAffected == 0 {
		capacity, err := datamodel.GetMachineCapacity(p.DB, *machine)
		if p.respondError(w, err) {
			return
		}
		p.respondError(w, core.Errorf(core.ErrConflict,
			"machine %s still holds %d vehicles", machine.Code, capacity.VehiclesParked))
		return
	}
	p.auditChange(r, token, cadf.DeleteAction, http.StatusOK, machineEventTarget{Machine: *machine})
	p.respondData(w, http.StatusOK, "machine removed", nil)
}

type heartbeatPayload struct {
	Code             string                     `json:"code"`
	ConnectionStatus db.MachineConnectionStatus `json:"connectionStatus"`
	LastHeartbeat    time.Time                  `json:"lastHeartbeat"`
}

// UpdateMachineHeartbeat handles POST /v1/machines/:id/heartbeat.
//
// Machine controllers report in on a short interval, so this endpoint stays
// out of the request log and the audit trail. Only the connection state and
// firmware version are touched; the operational status is operator-controlled
// and updatedAt tracks configuration changes, not heartbeats.
func (p *v1Provider) UpdateMachineHeartbeat(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/machines/:id/heartbeat")
	httpapi.SkipRequestLog(r)
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	machine := p.FindMachineFromRequest(w, r, token)
	if machine == nil {
		return
	}

	var parseTarget struct {
		FirmwareVersion string `json:"firmwareVersion"`
	}
	if !p.RequireJSONOrEmpty(w, r, &parseTarget) {
		return
	}

	now := p.timeNow()
	machine.LastHeartbeatAt = &now
	machine.Connection = db.MachineConnected
	if parseTarget.FirmwareVersion != "" {
		machine.FirmwareVersion = core.SanitizeString(parseTarget.FirmwareVersion)
	}
	_, err := p.DB.Update(machine)
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusOK, "heartbeat recorded", heartbeatPayload{
		Code:             machine.Code,
		ConnectionStatus: machine.Connection,
		LastHeartbeat:    now,
	})
}

type availableMachinePayload struct {
	machinePayload
	NextFreePallet uint64 `json:"nextFreePallet"`
}

// ListAvailableMachines handles GET /v1/machines/available.
func (p *v1Provider) ListAvailableMachines(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/machines/available")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}

	vehicleType := r.URL.Query().Get("vehicleType")
	var v core.Validator
	v.CheckRequired("vehicleType", vehicleType)
	v.CheckOneOf("vehicleType", vehicleType,
		string(db.VehicleTypeTwoWheeler), string(db.VehicleTypeFourWheeler))
	if p.respondError(w, v.AsError()) {
		return
	}
	scope, ok := p.parseSiteScope(w, r, token)
	if !ok {
		return
	}

	entries, err := reports.FindAvailableMachines(p.DB, scope, db.VehicleType(vehicleType))
	if p.respondError(w, err) {
		return
	}

	now := p.timeNow()
	payloads := make([]availableMachinePayload, len(entries))
	for idx, entry := range entries {
		payload, err := renderMachine(entry.Machine, entry.Capacity, now)
		if p.respondError(w, err) {
			return
		}
		payloads[idx] = availableMachinePayload{
			machinePayload: payload,
			NextFreePallet: entry.NextFreePallet,
		}
	}
	p.respondData(w, http.StatusOK, "available machines retrieved", payloads)
}

// ListMaintenanceDueMachines handles GET /v1/machines/maintenance-due.
func (p *v1Provider) ListMaintenanceDueMachines(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/machines/maintenance-due")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	scope, ok := p.parseSiteScope(w, r, token)
	if !ok {
		return
	}

	machines, err := reports.ListMaintenanceDueMachines(p.DB, scope)
	if p.respondError(w, err) {
		return
	}
	payloads, err := p.collectMachinePayloads(machines)
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusOK, "maintenance-due machines retrieved", payloads)
}

// OccupyPallet handles POST /v1/machines/:id/pallets/:ref/occupy.
func (p *v1Provider) OccupyPallet(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/machines/:id/pallets/:ref/occupy")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	machine := p.FindMachineFromRequest(w, r, token)
	if machine == nil {
		return
	}

	var parseTarget struct {
		BookingNumber string `json:"bookingNumber"`
		VehicleNumber string `json:"vehicleNumber"`
		Position      uint64 `json:"position"`
	}
	if !p.RequireJSON(w, r, &parseTarget) {
		return
	}
	var v core.Validator
	v.CheckRequired("bookingNumber", parseTarget.BookingNumber)
	v.CheckRequired("vehicleNumber", parseTarget.VehicleNumber)
	if p.respondError(w, v.AsError()) {
		return
	}

	pallet, occupant, err := datamodel.OccupyPallet(p.DB, *machine, mux.Vars(r)["pallet_ref"],
		datamodel.OccupancyRequest{
			BookingNumber: parseTarget.BookingNumber,
			VehiclePlate:  parseTarget.VehicleNumber,
			Position:      parseTarget.Position,
		}, p.timeNow())
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.UpdateAction, http.StatusOK, palletEventTarget{
		Machine: *machine,
		Pallet:  pallet,
		Detail: map[string]any{
			"action":        "occupy",
			"bookingNumber": occupant.BookingNumber,
			"vehicleNumber": occupant.VehicleNumber,
			"position":      occupant.Position,
		},
	})

	payload, err := p.renderPalletDetail(pallet)
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusOK, "pallet occupied", payload)
}

// ReleasePallet handles POST /v1/machines/:id/pallets/:ref/release.
func (p *v1Provider) ReleasePallet(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/machines/:id/pallets/:ref/release")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	machine := p.FindMachineFromRequest(w, r, token)
	if machine == nil {
		return
	}

	var parseTarget struct {
		BookingNumber string `json:"bookingNumber"`
	}
	if !p.RequireJSON(w, r, &parseTarget) {
		return
	}
	var v core.Validator
	v.CheckRequired("bookingNumber", parseTarget.BookingNumber)
	if p.respondError(w, v.AsError()) {
		return
	}

	pallet, err := datamodel.ReleasePalletByBooking(p.DB, *machine, mux.Vars(r)["pallet_ref"], parseTarget.BookingNumber)
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.UpdateAction, http.StatusOK, palletEventTarget{
		Machine: *machine,
		Pallet:  pallet,
		Detail: map[string]any{
			"action":        "release",
			"bookingNumber": parseTarget.BookingNumber,
		},
	})

	payload, err := p.renderPalletDetail(pallet)
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusOK, "pallet released", payload)
}

// ReleaseVehicle handles POST /v1/machines/:id/pallets/:ref/release-vehicle.
//
// This is the recovery path for occupants whose booking number is unknown or
// was recorded wrongly; the vehicle is identified by its plate instead.
func (p *v1Provider) ReleaseVehicle(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/machines/:id/pallets/:ref/release-vehicle")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	machine := p.FindMachineFromRequest(w, r, token)
	if machine == nil {
		return
	}

	var parseTarget struct {
		VehicleNumber string `json:"vehicleNumber"`
	}
	if !p.RequireJSON(w, r, &parseTarget) {
		return
	}
	var v core.Validator
	v.CheckRequired("vehicleNumber", parseTarget.VehicleNumber)
	if p.respondError(w, v.AsError()) {
		return
	}

	pallet, err := datamodel.ReleaseVehicle(p.DB, *machine, mux.Vars(r)["pallet_ref"], parseTarget.VehicleNumber)
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.UpdateAction, http.StatusOK, palletEventTarget{
		Machine: *machine,
		Pallet:  pallet,
		Detail: map[string]any{
			"action":        "release-vehicle",
			"vehicleNumber": core.NormalizePlate(parseTarget.VehicleNumber),
		},
	})

	payload, err := p.renderPalletDetail(pallet)
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusOK, "vehicle released", payload)
}

// SetPalletMaintenance handles POST /v1/machines/:id/pallets/:ref/maintenance.
func (p *v1Provider) SetPalletMaintenance(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/machines/:id/pallets/:ref/maintenance")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	machine := p.FindMachineFromRequest(w, r, token)
	if machine == nil {
		return
	}

	var parseTarget struct {
		Enable bool   `json:"enable"`
		Notes  string `json:"notes"`
	}
	if !p.RequireJSON(w, r, &parseTarget) {
		return
	}

	pallet, err := datamodel.SetPalletMaintenance(p.DB, *machine, mux.Vars(r)["pallet_ref"],
		parseTarget.Enable, core.SanitizeString(parseTarget.Notes), token.User.OperatorID, p.timeNow())
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.UpdateAction, http.StatusOK, palletEventTarget{
		Machine: *machine,
		Pallet:  pallet,
		Detail: map[string]any{
			"action": "maintenance",
			"enable": parseTarget.Enable,
			"notes":  parseTarget.Notes,
		},
	})

	payload, err := p.renderPalletDetail(pallet)
	if p.respondError(w, err) {
		return
	}
	msg := "pallet maintenance cleared"
	if parseTarget.Enable {
		msg = "pallet maintenance started"
	}
	p.respondData(w, http.StatusOK, msg, payload)
}

var occupantsByPalletQuery = sqlext.SimplifyWhitespace(`
	SELECT * FROM pallet_occupants WHERE pallet_id = $1 ORDER BY position
`)

// renderMachineDetail builds the full machine representation including the
// pallet state, for single-machine responses.
func (p *v1Provider) renderMachineDetail(machine db.Machine, now time.Time) (machinePayload, error) {
	capacity, err := datamodel.GetMachineCapacity(p.DB, machine)
	if err != nil {
		return machinePayload{}, err
	}
	payload, err := renderMachine(machine, capacity, now)
	if err != nil {
		return machinePayload{}, err
	}

	// the detail view shows the rate card that applies at this machine: a
	// machine-level block wins, then the site's, then the network default
	if payload.Pricing == nil {
		var sitePricingBuf string
		err := p.DB.QueryRow(`SELECT pricing FROM sites WHERE id = $1`, machine.SiteID).Scan(&sitePricingBuf)
		if err != nil {
			return machinePayload{}, err
		}
		sitePricing, err := parseOptionalJSON[core.Pricing](sitePricingBuf)
		if err != nil {
			return machinePayload{}, err
		}
		var siteBlock core.Pricing
		if sitePricing != nil {
			siteBlock = *sitePricing
		}
		if effective := p.Network.PricingForSite(siteBlock); len(effective.Rates) > 0 {
			payload.Pricing = &effective
		}
	}

	payload.Pallets, err = p.collectPalletPayloads(machine)
	return payload, err
}

// renderPalletDetail builds the response payload for pallet mutations.
func (p *v1Provider) renderPalletDetail(pallet db.Pallet) (palletPayload, error) {
	var occupants []db.PalletOccupant
	_, err := p.DB.Select(&occupants, occupantsByPalletQuery, pallet.ID)
	if err != nil {
		return palletPayload{}, err
	}
	return renderPallet(pallet, occupants), nil
}
