// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package datamodel

import (
	"fmt"

	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/parkhaus/internal/core"
	"github.com/sapcc/parkhaus/internal/db"
)

// MachineCapacity contains the occupancy aggregates over one machine's
// pallets. These are always computed from the pallet records and never
// stored, so they cannot drift from the ground truth.
type MachineCapacity struct {
	// Total is the operator-declared nominal capacity.
	Total       uint64 `json:"total"`
	Available   uint64 `json:"available"`
	Occupied    uint64 `json:"occupied"`
	Maintenance uint64 `json:"maintenance"`
	// VehiclesParked counts occupants across all pallets regardless of pallet
	// status. Occupied only sums over full pallets, so emptiness checks must
	// use this field instead.
	VehiclesParked uint64 `json:"-"`
}

var (
	machineCapacityQuery = sqlext.SimplifyWhitespace(`
		SELECT COALESCE(SUM(CASE WHEN status = 'maintenance' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'occupied' THEN current_occupancy ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'available' THEN vehicle_capacity - current_occupancy ELSE 0 END), 0),
		       COALESCE(SUM(current_occupancy), 0)
		  FROM pallets WHERE machine_id = $1
	`)

	machinePalletsQuery = sqlext.SimplifyWhitespace(`
		SELECT * FROM pallets WHERE machine_id = $1 ORDER BY number
	`)

	truncateOccupantsQuery = sqlext.SimplifyWhitespace(`
		DELETE FROM pallet_occupants WHERE pallet_id = $1 AND id NOT IN (
			SELECT id FROM pallet_occupants WHERE pallet_id = $1 ORDER BY id LIMIT $2
		)
	`)
)

// GetMachineCapacity computes the capacity aggregates for one machine.
func GetMachineCapacity(dbi db.Interface, machine db.Machine) (MachineCapacity, error) {
	capacity := MachineCapacity{Total: machine.CapacityTotal}
	err := dbi.QueryRow(machineCapacityQuery, machine.ID).
		Scan(&capacity.Maintenance, &capacity.Occupied, &capacity.Available, &capacity.VehiclesParked)
	if err != nil {
		return MachineCapacity{}, fmt.Errorf("while aggregating pallets of machine %s: %w", machine.Code, err)
	}
	return capacity, nil
}

// InitializePallets creates the pallet records for a newly created machine.
// Rotary machines number their pallets 1..N; puzzle machines number them four
// per floor (101..104, 201..204, and so on), leaving the last floor
// underfilled when the capacity is not a multiple of four.
func InitializePallets(dbi db.Interface, machine db.Machine) error {
	capacityPerPallet := core.PalletCapacityFor(machine.Type, machine.VehicleType)
	for _, number := range core.PalletNumbering(machine.Type, machine.CapacityTotal) {
		pallet := db.Pallet{
			MachineID:       machine.ID,
			Number:          number,
			Status:          db.PalletStatusAvailable,
			VehicleCapacity: capacityPerPallet,
		}
		err := dbi.Insert(&pallet)
		if err != nil {
			return fmt.Errorf("while creating pallet %d for machine %s: %w", number, machine.Code, err)
		}
	}
	return nil
}

// RewritePalletCapacities applies a change of the machine's kinematic type or
// target vehicle class to its existing pallets. The pallet set itself is
// fixed at machine creation; only the per-pallet vehicle capacity is
// rewritten. When the new capacity is below a pallet's current occupancy, the
// oldest occupant records up to the new capacity are kept and the rest are
// dropped. That is destructive, so it is loudly logged.
func RewritePalletCapacities(dbi db.Interface, machine db.Machine) error {
	newCapacity := core.PalletCapacityFor(machine.Type, machine.VehicleType)

	var pallets []db.Pallet
	_, err := dbi.Select(&pallets, machinePalletsQuery, machine.ID)
	if err != nil {
		return fmt.Errorf("while listing pallets of machine %s: %w", machine.Code, err)
	}

	for _, pallet := range pallets {
		if pallet.VehicleCapacity == newCapacity {
			continue
		}
		if newCapacity < pallet.CurrentOccupancy {
			logg.Error("pallet %d on machine %s shrinks below its occupancy (capacity %d -> %d); dropping %d occupant records",
				pallet.Number, machine.Code, pallet.VehicleCapacity, newCapacity, pallet.CurrentOccupancy-newCapacity)
			_, err := dbi.Exec(truncateOccupantsQuery, pallet.ID, newCapacity)
			if err != nil {
				return fmt.Errorf("while truncating occupants of pallet %d: %w", pallet.Number, err)
			}
			pallet.CurrentOccupancy = newCapacity
		}
		pallet.VehicleCapacity = newCapacity

		// maintenance (and blocked) pallets keep their status; for the others,
		// the full/not-full distinction is re-derived against the new capacity
		switch pallet.Status {
		case db.PalletStatusAvailable, db.PalletStatusOccupied:
			if pallet.CurrentOccupancy == newCapacity {
				pallet.Status = db.PalletStatusOccupied
			} else {
				pallet.Status = db.PalletStatusAvailable
			}
		}

		_, err = dbi.Update(&pallet)
		if err != nil {
			return fmt.Errorf("while updating pallet %d: %w", pallet.Number, err)
		}
	}
	return nil
}
