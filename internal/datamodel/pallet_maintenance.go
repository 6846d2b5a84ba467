// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package datamodel

import (
	"fmt"
	"time"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/parkhaus/internal/db"
)

// SetPalletMaintenance moves a pallet into or out of maintenance, and records
// a service event on the machine. Occupants are never released by this: an
// operator may declare a pallet unsafe while vehicles are still on it, and
// those vehicles leave through the normal release operations.
func SetPalletMaintenance(dbm *gorp.DbMap, machine db.Machine, palletKey string, enable bool, notes, actor string, now time.Time) (db.Pallet, error) {
	tx, err := dbm.Begin()
	if err != nil {
		return db.Pallet{}, err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	pallet, err := findPalletForUpdate(tx, machine, palletKey)
	if err != nil {
		return db.Pallet{}, err
	}

	var event string
	if enable {
		if pallet.CurrentOccupancy > 0 {
			logg.Info("pallet %d on machine %s enters maintenance while %d vehicles are still on it",
				pallet.Number, machine.Code, pallet.CurrentOccupancy)
		}
		pallet.Status = db.PalletStatusMaintenance
		lastMaintenance := now
		pallet.LastMaintenance = &lastMaintenance
		pallet.MaintenanceNotes = notes
		event = "pallet-maintenance-started"
	} else {
		if pallet.Status != db.PalletStatusMaintenance {
			// clearing maintenance is idempotent
			return pallet, tx.Commit()
		}
		pallet.Status = db.PalletStatusAvailable
		event = "pallet-maintenance-cleared"
	}

	_, err = tx.Update(&pallet)
	if err != nil {
		return db.Pallet{}, fmt.Errorf("while updating pallet %d: %w", pallet.Number, err)
	}

	serviceEvent := db.MachineServiceEvent{
		MachineID:  machine.ID,
		Event:      fmt.Sprintf("%s (pallet %d)", event, pallet.Number),
		Notes:      notes,
		RecordedBy: actor,
		RecordedAt: now,
	}
	err = tx.Insert(&serviceEvent)
	if err != nil {
		return db.Pallet{}, fmt.Errorf("while recording service event for machine %s: %w", machine.Code, err)
	}
	return pallet, tx.Commit()
}
