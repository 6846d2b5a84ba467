// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"time"

	"github.com/sapcc/parkhaus/internal/db"
)

// MaxPalletPositions is the number of distinct vehicle positions on a pallet.
// Positions are always drawn from [1..MaxPalletPositions] regardless of how
// many a pallet's capacity admits.
const MaxPalletPositions = 6

// MachineHeartbeatTimeout is how long after the last heartbeat a machine
// still counts as live for availability queries.
const MachineHeartbeatTimeout = 5 * time.Minute

// PalletCapacityFor returns how many vehicles fit on one pallet, given the
// machine's kinematic type and target vehicle class:
//
//	rotary / four-wheeler -> 1
//	rotary / two-wheeler  -> 6
//	puzzle / four-wheeler -> 1
//	puzzle / two-wheeler  -> 3
func PalletCapacityFor(machineType db.MachineType, vehicleType db.VehicleType) uint64 {
	if vehicleType == db.VehicleTypeFourWheeler {
		return 1
	}
	if machineType == db.MachineTypePuzzle {
		return 3
	}
	return 6
}

// PalletNumbering returns the pallet numbers that a machine of the given type
// receives at creation, in creation order.
//
// Rotary machines number their pallets sequentially starting at 1. Puzzle
// machines number floor-major with four pallets per floor: 101..104, 201..204
// and so on. When the capacity is not a multiple of four, the last floor stays
// under-filled (e.g. capacity 10 yields 101..104, 201..204, 301, 302).
func PalletNumbering(machineType db.MachineType, capacityTotal uint64) []uint64 {
	numbers := make([]uint64, capacityTotal)
	for idx := range numbers {
		if machineType == db.MachineTypePuzzle {
			floor := uint64(idx)/4 + 1
			slot := uint64(idx)%4 + 1
			numbers[idx] = floor*100 + slot
		} else {
			numbers[idx] = uint64(idx) + 1
		}
	}
	return numbers
}

// IsMachineLive reports whether the machine's controller has recently sent a
// heartbeat. Machines that never reported in are not live.
func IsMachineLive(lastHeartbeatAt *time.Time, now time.Time) bool {
	return lastHeartbeatAt != nil && now.Sub(*lastHeartbeatAt) < MachineHeartbeatTimeout
}
