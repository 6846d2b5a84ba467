// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package reports

import (
	"cmp"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/parkhaus/internal/core"
	"github.com/sapcc/parkhaus/internal/datamodel"
	"github.com/sapcc/parkhaus/internal/db"
)

// MachineFilter contains optional filters for ListMachines.
type MachineFilter struct {
	Scope       SiteScope
	Status      *db.MachineStatus
	VehicleType *db.VehicleType
}

// ListMachines returns all machines matching the given filter, ordered by site
// and machine code.
func ListMachines(dbi db.Interface, filter MachineFilter) ([]db.Machine, error) {
	conditions := []string{"TRUE"}
	var args []any
	filter.Scope.addTo(&conditions, &args, "site_id")
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.VehicleType != nil {
		args = append(args, *filter.VehicleType)
		conditions = append(conditions, fmt.Sprintf("vehicle_type = $%d", len(args)))
	}

	var machines []db.Machine
	query := fmt.Sprintf(`SELECT * FROM machines WHERE %s ORDER BY site_id, code`, strings.Join(conditions, " AND "))
	_, err := dbi.Select(&machines, query, args...)
	if err != nil {
		return nil, fmt.Errorf("while listing machines: %w", err)
	}
	return machines, nil
}

// AvailableMachine is one entry in the availability report: an online machine
// that can take at least one more vehicle of the requested class.
type AvailableMachine struct {
	Machine  db.Machine
	Capacity datamodel.MachineCapacity
	// NextFreePallet is the lowest-numbered pallet that is in service and not
	// yet at its vehicle capacity.
	NextFreePallet uint64
}

var firstFreePalletQuery = sqlext.SimplifyWhitespace(`
	SELECT number FROM pallets
	 WHERE machine_id = $1 AND status NOT IN ('maintenance', 'blocked') AND current_occupancy < vehicle_capacity
	 ORDER BY number LIMIT 1
`)

// FindAvailableMachines lists machines within the given scope that can take a
// vehicle of the given class right now, sorted by free space descending.
//
// Only the operator-set machine status gates candidacy. Heartbeat liveness is
// reported through the rendered isOnline attribute, but a silent controller
// does not hide a machine from this report.
func FindAvailableMachines(dbi db.Interface, scope SiteScope, vehicleType db.VehicleType) ([]AvailableMachine, error) {
	conditions := []string{"status = $1"}
	args := []any{db.MachineStatusOnline}
	scope.addTo(&conditions, &args, "site_id")

	var machines []db.Machine
	query := fmt.Sprintf(`SELECT * FROM machines WHERE %s ORDER BY site_id, code`, strings.Join(conditions, " AND "))
	_, err := dbi.Select(&machines, query, args...)
	if err != nil {
		return nil, fmt.Errorf("while listing online machines: %w", err)
	}

	result := []AvailableMachine{}
	for _, machine := range machines {
		covered, err := machineCoversVehicleType(machine, vehicleType)
		if err != nil {
			return nil, err
		}
		if !covered {
			continue
		}

		capacity, err := datamodel.GetMachineCapacity(dbi, machine)
		if err != nil {
			return nil, err
		}
		if capacity.Available == 0 {
			continue
		}

		var nextFreePallet uint64
		err = dbi.QueryRow(firstFreePalletQuery, machine.ID).Scan(&nextFreePallet)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("while finding a free pallet on machine %s: %w", machine.Code, err)
		}

		result = append(result, AvailableMachine{
			Machine:        machine,
			Capacity:       capacity,
			NextFreePallet: nextFreePallet,
		})
	}

	slices.SortStableFunc(result, func(lhs, rhs AvailableMachine) int {
		return cmp.Compare(rhs.Capacity.Available, lhs.Capacity.Available)
	})
	return result, nil
}

// machineCoversVehicleType reports whether a machine accepts the given vehicle
// class, either as its target class or through its supported class list.
func machineCoversVehicleType(machine db.Machine, vehicleType db.VehicleType) (bool, error) {
	if machine.VehicleType == vehicleType {
		return true, nil
	}
	supportedTypes, err := core.VehicleTypesFromJSON(machine.SupportedVehicleTypes)
	if err != nil {
		return false, fmt.Errorf("while parsing supported vehicle types of machine %s: %w", machine.Code, err)
	}
	return core.CoversVehicleType(supportedTypes, vehicleType), nil
}

// ListMaintenanceDueMachines lists machines within the given scope that need
// service attention: either the machine itself or at least one of its pallets
// is in maintenance.
func ListMaintenanceDueMachines(dbi db.Interface, scope SiteScope) ([]db.Machine, error) {
	conditions := []string{`(status = 'maintenance' OR EXISTS (
		SELECT 1 FROM pallets p WHERE p.machine_id = machines.id AND p.status = 'maintenance'
	))`}
	var args []any
	scope.addTo(&conditions, &args, "site_id")

	var machines []db.Machine
	query := fmt.Sprintf(`SELECT * FROM machines WHERE %s ORDER BY site_id, code`, strings.Join(conditions, " AND "))
	_, err := dbi.Select(&machines, query, args...)
	if err != nil {
		return nil, fmt.Errorf("while listing maintenance-due machines: %w", err)
	}
	return machines, nil
}
