// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package db

// MachineType is the kinematic type of a parking machine.
type MachineType string

const (
	MachineTypeRotary MachineType = "rotary"
	MachineTypePuzzle MachineType = "puzzle"
)

// VehicleType is a vehicle class that machines and memberships discriminate on.
type VehicleType string

const (
	VehicleTypeTwoWheeler  VehicleType = "two-wheeler"
	VehicleTypeFourWheeler VehicleType = "four-wheeler"
)

// MachineStatus is the operational status of a parking machine.
type MachineStatus string

const (
	MachineStatusOnline      MachineStatus = "online"
	MachineStatusOffline     MachineStatus = "offline"
	MachineStatusMaintenance MachineStatus = "maintenance"
	MachineStatusError       MachineStatus = "error"
)

// MachineConnectionStatus reflects heartbeat liveness as reported to operators.
type MachineConnectionStatus string

const (
	MachineConnected    MachineConnectionStatus = "connected"
	MachineDisconnected MachineConnectionStatus = "disconnected"
)

// PalletStatus is the occupancy status of a pallet.
//
// "occupied" holds iff current occupancy equals the pallet's vehicle capacity;
// "available" holds iff occupancy is below capacity and the pallet is not held
// in maintenance. The allocation engine maintains this equivalence on every write.
type PalletStatus string

const (
	PalletStatusAvailable   PalletStatus = "available"
	PalletStatusOccupied    PalletStatus = "occupied"
	PalletStatusMaintenance PalletStatus = "maintenance"
	PalletStatusBlocked     PalletStatus = "blocked"
)

// BookingStatus is the lifecycle status of a booking.
// "expired" is part of the enum for forward compatibility, but no code path
// currently produces it; OTP expiry is checked at redemption time instead.
type BookingStatus string

const (
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusExpired   BookingStatus = "expired"
)

// IsTerminal returns whether no further lifecycle transitions are allowed.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled || s == BookingStatusExpired
}

// CustomerStatus is the lifecycle status of a customer record.
type CustomerStatus string

const (
	CustomerStatusActive   CustomerStatus = "active"
	CustomerStatusInactive CustomerStatus = "inactive"
	CustomerStatusBlocked  CustomerStatus = "blocked"
)

// MembershipType identifies a membership plan.
type MembershipType string

const (
	MembershipTypeMonthly   MembershipType = "monthly"
	MembershipTypeQuarterly MembershipType = "quarterly"
	MembershipTypeYearly    MembershipType = "yearly"
	MembershipTypePremium   MembershipType = "premium"
)

// PaymentStatus is the settlement status of a payment block or ledger entry.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// SiteStatus is the lifecycle status of a site.
type SiteStatus string

const (
	SiteStatusActive            SiteStatus = "active"
	SiteStatusInactive          SiteStatus = "inactive"
	SiteStatusMaintenance       SiteStatus = "maintenance"
	SiteStatusUnderConstruction SiteStatus = "under-construction"
)

// UserRole is the global role tier of a user.
type UserRole string

const (
	UserRoleAdmin      UserRole = "admin"
	UserRoleSupervisor UserRole = "supervisor"
	UserRoleOperator   UserRole = "operator"
)

// UserStatus is the lifecycle status of a user account.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
	UserStatusBlocked  UserStatus = "blocked"
)

// SiteRole is the role a user holds within one site assignment.
// It overrides the user's global role for operations scoped to that site.
type SiteRole string

const (
	SiteRoleSiteAdmin  SiteRole = "site-admin"
	SiteRoleSupervisor SiteRole = "supervisor"
	SiteRoleOperator   SiteRole = "operator"
)
