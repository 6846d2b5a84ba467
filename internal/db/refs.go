// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package db

// SiteID is an ID into the sites table. This typedef is used to distinguish
// these IDs from IDs of other tables or raw int64 values.
type SiteID int64

// MachineID is an ID into the machines table. This typedef is used to
// distinguish these IDs from IDs of other tables or raw int64 values.
type MachineID int64

// PalletID is an ID into the pallets table. This typedef is used to
// distinguish these IDs from IDs of other tables or raw int64 values.
type PalletID int64

// CustomerID is an ID into the customers table. This typedef is used to
// distinguish these IDs from IDs of other tables or raw int64 values.
type CustomerID int64

// BookingID is an ID into the bookings table. This typedef is used to
// distinguish these IDs from IDs of other tables or raw int64 values.
type BookingID int64

// UserID is an ID into the users table. This typedef is used to distinguish
// these IDs from IDs of other tables or raw int64 values.
type UserID int64

// MachineRef identifies a machine by the pair of identifiers that bookings
// carry. It appears in APIs when not the entire Machine record is needed.
type MachineRef struct {
	ID   MachineID
	Code string
}
