// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package datamodel

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/parkhaus/internal/core"
	"github.com/sapcc/parkhaus/internal/db"
)

// OccupancyRequest describes a vehicle that shall be placed on a pallet.
type OccupancyRequest struct {
	BookingNumber string
	VehiclePlate  string
	// Position is the requested slot in [1, core.MaxPalletPositions].
	// Zero means that the lowest free position is chosen.
	Position uint64
}

var (
	palletLookupQuery = sqlext.SimplifyWhitespace(`
		SELECT * FROM pallets
		 WHERE machine_id = $1 AND (number = $2 OR custom_name = $3)
		 ORDER BY number LIMIT 1
		   FOR UPDATE
	`)

	palletPositionsQuery = sqlext.SimplifyWhitespace(`
		SELECT position FROM pallet_occupants WHERE pallet_id = $1
	`)

	occupantByBookingQuery = sqlext.SimplifyWhitespace(`
		SELECT * FROM pallet_occupants
		 WHERE pallet_id = $1 AND booking_number = $2
		 ORDER BY id LIMIT 1
	`)

	occupantByVehicleQuery = sqlext.SimplifyWhitespace(`
		SELECT * FROM pallet_occupants
		 WHERE pallet_id = $1 AND vehicle_number = $2
		 ORDER BY id LIMIT 1
	`)
)

// findPalletForUpdate locates a pallet by number or custom name and locks its
// row until the surrounding transaction ends. All pallet mutations go through
// this lookup, so occupy and release calls for the same pallet serialize.
func findPalletForUpdate(dbi db.Interface, machine db.Machine, palletKey string) (db.Pallet, error) {
	// a numeric key can match the pallet number; any key can match a custom
	// name verbatim (pallet numbers start at 1, so 0 matches nothing)
	numericKey, err := strconv.ParseUint(palletKey, 10, 64)
	if err != nil {
		numericKey = 0
	}

	var pallet db.Pallet
	err = dbi.SelectOne(&pallet, palletLookupQuery, machine.ID, numericKey, palletKey)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Pallet{}, core.Errorf(core.ErrPalletNotFound, "no pallet %q on machine %s", palletKey, machine.Code)
	}
	if err != nil {
		return db.Pallet{}, fmt.Errorf("while looking up pallet %q on machine %s: %w", palletKey, machine.Code, err)
	}
	return pallet, nil
}

// OccupyPallet places a vehicle on a pallet of the given machine. The pallet
// key may be the pallet number or its custom name. On success, the updated
// pallet record is returned; the chosen position is in the occupant entry.
//
// The check-and-update runs in one transaction that locks the pallet row, so
// concurrent occupy and release calls for the same pallet serialize.
func OccupyPallet(dbm *gorp.DbMap, machine db.Machine, palletKey string, req OccupancyRequest, now time.Time) (db.Pallet, db.PalletOccupant, error) {
	if machine.Status != db.MachineStatusOnline {
		return db.Pallet{}, db.PalletOccupant{}, core.Errorf(core.ErrMachineOffline,
			"machine %s is not online (status is %q)", machine.Code, machine.Status)
	}
	if req.Position > core.MaxPalletPositions {
		return db.Pallet{}, db.PalletOccupant{}, core.Errorf(core.ErrValidation,
			"position must be between 1 and %d", core.MaxPalletPositions)
	}

	tx, err := dbm.Begin()
	if err != nil {
		return db.Pallet{}, db.PalletOccupant{}, err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	pallet, err := findPalletForUpdate(tx, machine, palletKey)
	if err != nil {
		return db.Pallet{}, db.PalletOccupant{}, err
	}
	if pallet.Status == db.PalletStatusMaintenance {
		return db.Pallet{}, db.PalletOccupant{}, core.Errorf(core.ErrPalletMaintenance,
			"pallet %d on machine %s is under maintenance", pallet.Number, machine.Code)
	}
	if pallet.CurrentOccupancy >= pallet.VehicleCapacity {
		return db.Pallet{}, db.PalletOccupant{}, core.Errorf(core.ErrPalletFull,
			"pallet %d on machine %s is full", pallet.Number, machine.Code)
	}

	position, err := choosePosition(tx, machine, pallet, req.Position)
	if err != nil {
		return db.Pallet{}, db.PalletOccupant{}, err
	}

	occupant := db.PalletOccupant{
		PalletID:      pallet.ID,
		BookingNumber: req.BookingNumber,
		VehicleNumber: core.NormalizePlate(req.VehiclePlate),
		Position:      position,
		OccupiedSince: now,
	}
	err = tx.Insert(&occupant)
	if err != nil {
		return db.Pallet{}, db.PalletOccupant{}, fmt.Errorf("while recording occupant on pallet %d: %w", pallet.Number, err)
	}

	pallet.CurrentOccupancy++
	if pallet.CurrentOccupancy == 1 {
		occupiedSince := now
		pallet.OccupiedSince = &occupiedSince
	}
	if pallet.CurrentOccupancy == pallet.VehicleCapacity {
		pallet.Status = db.PalletStatusOccupied
	}
	_, err = tx.Update(&pallet)
	if err != nil {
		return db.Pallet{}, db.PalletOccupant{}, fmt.Errorf("while updating pallet %d: %w", pallet.Number, err)
	}
	return pallet, occupant, tx.Commit()
}

// choosePosition picks the position for a new occupant. Four-wheeler machines
// carry one car directly on the pallet, so position 1 is forced there and any
// caller preference only applies to two-wheeler machines.
func choosePosition(dbi db.Interface, machine db.Machine, pallet db.Pallet, requested uint64) (uint64, error) {
	if machine.VehicleType == db.VehicleTypeFourWheeler {
		return 1, nil
	}

	isTaken := make(map[uint64]bool)
	err := sqlext.ForeachRow(dbi, palletPositionsQuery, []any{pallet.ID}, func(rows *sql.Rows) error {
		var position uint64
		err := rows.Scan(&position)
		if err != nil {
			return err
		}
		isTaken[position] = true
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("while listing taken positions on pallet %d: %w", pallet.Number, err)
	}

	if requested != 0 {
		if isTaken[requested] {
			return 0, core.Errorf(core.ErrPositionTaken,
				"position %d on pallet %d is already taken", requested, pallet.Number)
		}
		return requested, nil
	}
	for position := uint64(1); position <= core.MaxPalletPositions; position++ {
		if !isTaken[position] {
			return position, nil
		}
	}
	// unreachable while the occupant list agrees with CurrentOccupancy; if the
	// two have drifted apart, refusing the occupy is safer than overlapping
	return 0, core.Errorf(core.ErrPalletFull, "all positions on pallet %d are taken", pallet.Number)
}

// ReleasePalletByBooking removes the occupant entry that was recorded under
// the given booking number.
func ReleasePalletByBooking(dbm *gorp.DbMap, machine db.Machine, palletKey, bookingNumber string) (db.Pallet, error) {
	return releaseOccupant(dbm, machine, palletKey, occupantByBookingQuery, bookingNumber)
}

// ReleaseVehicle removes the occupant entry with the given vehicle plate.
func ReleaseVehicle(dbm *gorp.DbMap, machine db.Machine, palletKey, vehiclePlate string) (db.Pallet, error) {
	return releaseOccupant(dbm, machine, palletKey, occupantByVehicleQuery, core.NormalizePlate(vehiclePlate))
}

func releaseOccupant(dbm *gorp.DbMap, machine db.Machine, palletKey, occupantQuery, occupantKey string) (db.Pallet, error) {
	tx, err := dbm.Begin()
	if err != nil {
		return db.Pallet{}, err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	pallet, err := findPalletForUpdate(tx, machine, palletKey)
	if err != nil {
		return db.Pallet{}, err
	}

	var occupant db.PalletOccupant
	err = tx.SelectOne(&occupant, occupantQuery, pallet.ID, occupantKey)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Pallet{}, core.Errorf(core.ErrOccupantNotFound,
			"no occupant %q on pallet %d of machine %s", occupantKey, pallet.Number, machine.Code)
	}
	if err != nil {
		return db.Pallet{}, fmt.Errorf("while looking up occupant on pallet %d: %w", pallet.Number, err)
	}
	_, err = tx.Delete(&occupant)
	if err != nil {
		return db.Pallet{}, fmt.Errorf("while removing occupant from pallet %d: %w", pallet.Number, err)
	}

	if pallet.CurrentOccupancy > 0 {
		pallet.CurrentOccupancy--
	}
	if pallet.CurrentOccupancy == 0 {
		pallet.OccupiedSince = nil
	}
	// a maintenance pallet keeps its status until the operator clears it
	if pallet.Status == db.PalletStatusOccupied {
		pallet.Status = db.PalletStatusAvailable
	}
	_, err = tx.Update(&pallet)
	if err != nil {
		return db.Pallet{}, fmt.Errorf("while updating pallet %d: %w", pallet.Number, err)
	}
	return pallet, tx.Commit()
}
