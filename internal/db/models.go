// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"time"

	"github.com/go-gorp/gorp/v3"
)

// Site contains a record from the `sites` table.
type Site struct {
	ID              SiteID     `db:"id"`
	Code            string     `db:"code"`
	Name            string     `db:"name"`
	AddressStreet   string     `db:"address_street"`
	AddressCity     string     `db:"address_city"`
	AddressState    string     `db:"address_state"`
	AddressPincode  string     `db:"address_pincode"`
	Latitude        *float64   `db:"latitude"` //pointer type to allow for NULL value
	Longitude       *float64   `db:"longitude"`
	OperatingHours  string     `db:"operating_hours"` //JSON, see core.WeeklyHours
	Pricing         string     `db:"pricing"`         //JSON, see core.Pricing
	TotalMachines   uint64     `db:"total_machines"`
	TotalCapacity   uint64     `db:"total_capacity"`
	Status          SiteStatus `db:"status"`
	CreatedByUserID string     `db:"created_by"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

// Machine contains a record from the `machines` table.
//
// The `{available, occupied, maintenance}` capacity aggregates are not stored;
// they are computed on read by aggregating over the machine's pallets, so that
// they can never drift from the pallet ground truth.
type Machine struct {
	ID                    MachineID               `db:"id"`
	SiteID                SiteID                  `db:"site_id"`
	Code                  string                  `db:"code"`
	Type                  MachineType             `db:"machine_type"`
	VehicleType           VehicleType             `db:"vehicle_type"`
	Status                MachineStatus           `db:"status"`
	CapacityTotal         uint64                  `db:"capacity_total"`
	SupportedVehicleTypes string                  `db:"supported_vehicle_types"` //JSON array, empty = only the target class
	MaxLengthMM           *uint64                 `db:"max_length_mm"`
	MaxWidthMM            *uint64                 `db:"max_width_mm"`
	MaxHeightMM           *uint64                 `db:"max_height_mm"`
	MaxWeightKG           *uint64                 `db:"max_weight_kg"`
	OperatingHours        string                  `db:"operating_hours"` //JSON, empty = inherit site hours
	Pricing               string                  `db:"pricing"`         //JSON, empty = inherit site pricing
	LastHeartbeatAt       *time.Time              `db:"last_heartbeat_at"`
	FirmwareVersion       string                  `db:"firmware_version"`
	Connection            MachineConnectionStatus `db:"connection_status"`
	CreatedByUserID       string                  `db:"created_by"`
	CreatedAt             time.Time               `db:"created_at"`
	UpdatedAt             time.Time               `db:"updated_at"`
}

// MachineServiceEvent contains a record from the `machine_service_events` table.
// This table is an append-only service history.
type MachineServiceEvent struct {
	ID         int64     `db:"id"`
	MachineID  MachineID `db:"machine_id"`
	Event      string    `db:"event"`
	Notes      string    `db:"notes"`
	RecordedBy string    `db:"recorded_by"`
	RecordedAt time.Time `db:"recorded_at"`
}

// Pallet contains a record from the `pallets` table.
type Pallet struct {
	ID               PalletID     `db:"id"`
	MachineID        MachineID    `db:"machine_id"`
	Number           uint64       `db:"number"`
	CustomName       string       `db:"custom_name"`
	Status           PalletStatus `db:"status"`
	VehicleCapacity  uint64       `db:"vehicle_capacity"`
	CurrentOccupancy uint64       `db:"current_occupancy"`
	OccupiedSince    *time.Time   `db:"occupied_since"` //set while at least one occupant is present
	LastMaintenance  *time.Time   `db:"last_maintenance"`
	MaintenanceNotes string       `db:"maintenance_notes"`
}

// PalletOccupant contains a record from the `pallet_occupants` table.
//
// Occupants reference bookings by booking number (a value, not a foreign key),
// mirroring how bookings reference machines and pallets by code and number.
type PalletOccupant struct {
	ID            int64     `db:"id"`
	PalletID      PalletID  `db:"pallet_id"`
	BookingNumber string    `db:"booking_number"`
	VehicleNumber string    `db:"vehicle_number"`
	Position      uint64    `db:"position"`
	OccupiedSince time.Time `db:"occupied_since"`
}

// Customer contains a record from the `customers` table.
type Customer struct {
	ID              CustomerID     `db:"id"`
	Code            string         `db:"code"`
	FirstName       string         `db:"first_name"`
	LastName        string         `db:"last_name"`
	Phone           string         `db:"phone"`
	Email           string         `db:"email"`
	Status          CustomerStatus `db:"status"`
	TotalBookings   uint64         `db:"total_bookings"`
	TotalAmount     float64        `db:"total_amount"`
	LastBookingAt   *time.Time     `db:"last_booking_at"`
	DeletedAt       *time.Time     `db:"deleted_at"`
	DeleteReason    string         `db:"delete_reason"`
	CreatedByUserID string         `db:"created_by"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

// FullName returns the customer name in the form that bookings denormalize.
func (c Customer) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Vehicle contains a record from the `vehicles` table.
// The UUID primary key is the stable sub-identity used by the API.
type Vehicle struct {
	UUID          string      `db:"uuid"`
	CustomerID    CustomerID  `db:"customer_id"`
	Plate         string      `db:"plate"` //normalized uppercase
	Type          VehicleType `db:"vehicle_type"`
	Make          string      `db:"make"`
	Model         string      `db:"model"`
	Color         string      `db:"color"`
	IsActive      bool        `db:"is_active"`
	AddedByUserID string      `db:"added_by"`
	AddedAt       time.Time   `db:"added_at"`
	DeactivatedAt *time.Time  `db:"deactivated_at"`
}

// Membership contains a record from the `memberships` table.
// A customer has at most one membership row (enforced by a unique constraint);
// renewals and coverage extensions update it in place, deactivation flips
// IsActive. The payment ledger is the only append-only history.
type Membership struct {
	ID                  int64          `db:"id"`
	CustomerID          CustomerID     `db:"customer_id"`
	Number              string         `db:"membership_number"`
	PIN                 string         `db:"pin"`
	Type                MembershipType `db:"membership_type"`
	CoveredVehicleTypes string         `db:"covered_vehicle_types"` //JSON array of VehicleType
	IssuedAt            time.Time      `db:"issued_at"`
	ExpiresAt           time.Time      `db:"expires_at"`
	ValidityMonths      uint64         `db:"validity_months"`
	IsActive            bool           `db:"is_active"`
}

// IsLive returns whether the membership is active and not yet expired.
// The "expired" state is always derived like this, never stored.
func (m Membership) IsLive(now time.Time) bool {
	return m.IsActive && m.ExpiresAt.After(now)
}

// MembershipPayment contains a record from the `membership_payments` table.
// Rows are never updated or deleted once written with status "completed".
type MembershipPayment struct {
	ID                  int64          `db:"id"`
	CustomerID          CustomerID     `db:"customer_id"` //weak reference, the ledger outlives customers
	CustomerName        string         `db:"customer_name"`
	CustomerPhone       string         `db:"customer_phone"`
	MembershipNumber    string         `db:"membership_number"`
	MembershipType      MembershipType `db:"membership_type"`
	Amount              float64        `db:"amount"`
	Method              string         `db:"method"`
	TransactionRef      string         `db:"transaction_ref"`
	StartDate           time.Time      `db:"start_date"`
	ExpiryDate          time.Time      `db:"expiry_date"`
	ValidityMonths      uint64         `db:"validity_months"`
	CoveredVehicleTypes string         `db:"covered_vehicle_types"` //JSON array of VehicleType
	Status              PaymentStatus  `db:"status"`
	CreatedByUserID     string         `db:"created_by"`
	CreatedAt           time.Time      `db:"created_at"`
}

// Booking contains a record from the `bookings` table.
//
// Customer name, phone, machine code and pallet number are denormalized copies
// taken at creation time. Booking history must survive machine renames and
// customer soft-deletes, so these are values rather than references.
type Booking struct {
	ID            BookingID     `db:"id"`
	Number        string        `db:"number"`
	SiteID        SiteID        `db:"site_id"`
	CustomerID    *CustomerID   `db:"customer_id"` //weak reference, NULL if the customer was purged
	CustomerName  string        `db:"customer_name"`
	PhoneNumber   string        `db:"phone_number"`
	VehicleNumber string        `db:"vehicle_number"`
	VehicleType   VehicleType   `db:"vehicle_type"`
	MachineNumber string        `db:"machine_number"`
	PalletNumber  uint64        `db:"pallet_number"`
	Status        BookingStatus `db:"status"`
	StartTime     time.Time     `db:"start_time"`
	EndTime       *time.Time    `db:"end_time"`

	OTPCode      string     `db:"otp_code"`
	OTPIssuedAt  time.Time  `db:"otp_issued_at"`
	OTPExpiresAt time.Time  `db:"otp_expires_at"`
	OTPUsed      bool       `db:"otp_used"`
	OTPUsedAt    *time.Time `db:"otp_used_at"`

	PaymentAmount     *float64      `db:"payment_amount"` //NULL until payment capture
	PaymentMethod     string        `db:"payment_method"`
	PaymentStatus     PaymentStatus `db:"payment_status"`
	TransactionRef    string        `db:"transaction_ref"`
	PaidAt            *time.Time    `db:"paid_at"`
	MembershipNumber  string        `db:"membership_number"` //set when a membership discount applied
	BaseRate          float64       `db:"base_rate"`
	AdditionalCharges float64       `db:"additional_charges"`
	Discount          float64       `db:"discount"`
	Tax               float64       `db:"tax"`

	Notes               string `db:"notes"`
	SpecialInstructions string `db:"special_instructions"`

	CreatedByUserID   string    `db:"created_by"`
	UpdatedByUserID   string    `db:"updated_by"`
	CompletedByUserID string    `db:"completed_by"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// User contains a record from the `users` table.
//
// Password hashes and refresh token bindings are written by the identity
// subsystem; this service only ever reads them during token validation.
type User struct {
	ID                  UserID     `db:"id"`
	UUID                string     `db:"uuid"` //subject claim in issued tokens
	OperatorID          string     `db:"operator_id"`
	Name                string     `db:"name"`
	Email               string     `db:"email"`
	Role                UserRole   `db:"role"`
	Status              UserStatus `db:"status"`
	PasswordHash        string     `db:"password_hash"`
	RefreshTokenID      string     `db:"refresh_token_id"` //empty = no refresh token outstanding
	FailedLoginAttempts uint64     `db:"failed_login_attempts"`
	LockedUntil         *time.Time `db:"locked_until"`
	PrimarySiteID       *SiteID    `db:"primary_site_id"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// UserSiteAssignment contains a record from the `user_site_assignments` table.
type UserSiteAssignment struct {
	ID               int64     `db:"id"`
	UserID           UserID    `db:"user_id"`
	SiteID           SiteID    `db:"site_id"`
	Role             SiteRole  `db:"site_role"`
	Permissions      string    `db:"permissions"` //JSON array of permission names
	AssignedByUserID string    `db:"assigned_by"`
	AssignedAt       time.Time `db:"assigned_at"`
}

// initGorp is used by InitORM() to setup the ORM part of the database connection.
func initGorp(db *gorp.DbMap) {
	db.AddTableWithName(Site{}, "sites").SetKeys(true, "id")
	db.AddTableWithName(Machine{}, "machines").SetKeys(true, "id")
	db.AddTableWithName(MachineServiceEvent{}, "machine_service_events").SetKeys(true, "id")
	db.AddTableWithName(Pallet{}, "pallets").SetKeys(true, "id")
	db.AddTableWithName(PalletOccupant{}, "pallet_occupants").SetKeys(true, "id")
	db.AddTableWithName(Customer{}, "customers").SetKeys(true, "id")
	db.AddTableWithName(Vehicle{}, "vehicles").SetKeys(false, "uuid")
	db.AddTableWithName(Membership{}, "memberships").SetKeys(true, "id")
	db.AddTableWithName(MembershipPayment{}, "membership_payments").SetKeys(true, "id")
	db.AddTableWithName(Booking{}, "bookings").SetKeys(true, "id")
	db.AddTableWithName(User{}, "users").SetKeys(true, "id")
	db.AddTableWithName(UserSiteAssignment{}, "user_site_assignments").SetKeys(true, "id")
}
