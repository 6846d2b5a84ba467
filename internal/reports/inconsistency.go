// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package reports

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/parkhaus/internal/db"
)

// Inconsistencies contains aggregated data about mismatches between the
// booking ledger and the pallet occupancy records. Pallet side-effects of
// booking transitions are best-effort, so the two can drift apart; this
// report is the reconciliation view for operators.
type Inconsistencies struct {
	MissingOccupancies []MissingOccupancy `json:"bookingWithoutOccupancy"`
	StrandedOccupants  []StrandedOccupant `json:"occupancyWithoutBooking"`
}

// MissingOccupancy is a substructure of Inconsistencies. It reports an active
// booking whose vehicle is not recorded on the pallet that the booking names.
type MissingOccupancy struct {
	SiteID        db.SiteID `json:"siteId"`
	BookingNumber string    `json:"bookingNumber"`
	MachineNumber string    `json:"machineNumber"`
	PalletNumber  uint64    `json:"palletNumber"`
	VehicleNumber string    `json:"vehicleNumber"`
	StartTime     time.Time `json:"startTime"`
}

// StrandedOccupant is a substructure of Inconsistencies. It reports an
// occupant record whose booking is terminal or unknown.
type StrandedOccupant struct {
	SiteID        db.SiteID `json:"siteId"`
	MachineCode   string    `json:"machineCode"`
	PalletNumber  uint64    `json:"palletNumber"`
	Position      uint64    `json:"position"`
	BookingNumber string    `json:"bookingNumber"`
	VehicleNumber string    `json:"vehicleNumber"`
	BookingStatus string    `json:"bookingStatus"` // "missing" if there is no such booking
	OccupiedSince time.Time `json:"occupiedSince"`
}

var (
	missingOccupancyQuery = sqlext.SimplifyWhitespace(`
		SELECT b.site_id, b.number, b.machine_number, b.pallet_number, b.vehicle_number, b.start_time
		  FROM bookings b
		 WHERE b.status = 'active' AND NOT EXISTS (
		         SELECT 1 FROM pallet_occupants po
		           JOIN pallets p ON po.pallet_id = p.id
		           JOIN machines m ON p.machine_id = m.id
		          WHERE po.booking_number = b.number AND m.site_id = b.site_id
		            AND m.code = b.machine_number AND p.number = b.pallet_number
		       )
		 ORDER BY b.site_id, b.number
	`)

	strandedOccupantQuery = sqlext.SimplifyWhitespace(`
		SELECT m.site_id, m.code, p.number, po.position, po.booking_number, po.vehicle_number,
		       po.occupied_since, COALESCE(b.status, 'missing')
		  FROM pallet_occupants po
		  JOIN pallets p ON po.pallet_id = p.id
		  JOIN machines m ON p.machine_id = m.id
		  LEFT JOIN bookings b ON b.number = po.booking_number AND b.site_id = m.site_id
		 WHERE b.id IS NULL OR b.status IN ('completed', 'cancelled', 'expired')
		 ORDER BY m.site_id, m.code, p.number, po.position
	`)
)

// GetInconsistencies returns the booking/pallet reconciliation report over the
// whole network.
func GetInconsistencies(dbi db.Interface) (Inconsistencies, error) {
	// ensure that empty lists get serialized as `[]` rather than as `null`
	inconsistencies := Inconsistencies{
		MissingOccupancies: []MissingOccupancy{},
		StrandedOccupants:  []StrandedOccupant{},
	}

	err := sqlext.ForeachRow(dbi, missingOccupancyQuery, nil, func(rows *sql.Rows) error {
		var mo MissingOccupancy
		err := rows.Scan(&mo.SiteID, &mo.BookingNumber, &mo.MachineNumber,
			&mo.PalletNumber, &mo.VehicleNumber, &mo.StartTime)
		if err != nil {
			return err
		}
		inconsistencies.MissingOccupancies = append(inconsistencies.MissingOccupancies, mo)
		return nil
	})
	if err != nil {
		return Inconsistencies{}, fmt.Errorf("while finding bookings without occupancy: %w", err)
	}

	err = sqlext.ForeachRow(dbi, strandedOccupantQuery, nil, func(rows *sql.Rows) error {
		var so StrandedOccupant
		err := rows.Scan(&so.SiteID, &so.MachineCode, &so.PalletNumber, &so.Position,
			&so.BookingNumber, &so.VehicleNumber, &so.OccupiedSince, &so.BookingStatus)
		if err != nil {
			return err
		}
		inconsistencies.StrandedOccupants = append(inconsistencies.StrandedOccupants, so)
		return nil
	})
	if err != nil {
		return Inconsistencies{}, fmt.Errorf("while finding occupants without booking: %w", err)
	}

	return inconsistencies, nil
}
