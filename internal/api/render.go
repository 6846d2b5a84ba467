// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"time"

	"github.com/sapcc/parkhaus/internal/core"
	"github.com/sapcc/parkhaus/internal/datamodel"
	"github.com/sapcc/parkhaus/internal/db"
)

// This file contains the API representations of all resources. They are
// explicit structs instead of direct db.* serializations so that internals
// (password hashes, refresh token bindings, membership PINs, other bookings'
// OTP codes) can never leak into a response by accident.

////////////////////////////////////////////////////////////////////////////////
// bookings

type bookingPayload struct {
	ID                  db.BookingID     `json:"id"`
	BookingNumber       string           `json:"bookingNumber"`
	SiteID              db.SiteID        `json:"siteId"`
	CustomerID          *db.CustomerID   `json:"customerId,omitempty"`
	CustomerName        string           `json:"customerName"`
	PhoneNumber         string           `json:"phoneNumber"`
	VehicleNumber       string           `json:"vehicleNumber"`
	VehicleType         db.VehicleType   `json:"vehicleType"`
	MachineNumber       string           `json:"machineNumber"`
	PalletNumber        uint64           `json:"palletNumber"`
	Status              db.BookingStatus `json:"status"`
	StartTime           time.Time        `json:"startTime"`
	EndTime             *time.Time       `json:"endTime,omitempty"`
	Duration            *durationPayload `json:"duration,omitempty"`
	OTP                 *otpPayload      `json:"otp,omitempty"`
	Payment             *paymentPayload  `json:"payment,omitempty"`
	MembershipNumber    string           `json:"membershipNumber,omitempty"`
	Notes               string           `json:"notes,omitempty"`
	SpecialInstructions string           `json:"specialInstructions,omitempty"`
	CreatedBy           string           `json:"createdBy,omitempty"`
	UpdatedBy           string           `json:"updatedBy,omitempty"`
	CompletedBy         string           `json:"completedBy,omitempty"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

type durationPayload struct {
	Hours   uint64 `json:"hours"`
	Minutes uint64 `json:"minutes"`
}

type otpPayload struct {
	Code      string     `json:"code"`
	ExpiresAt time.Time  `json:"expiresAt"`
	IsUsed    bool       `json:"isUsed"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
}

type paymentPayload struct {
	Amount         float64          `json:"amount"`
	Method         string           `json:"method"`
	Status         db.PaymentStatus `json:"status"`
	TransactionRef string           `json:"transactionRef,omitempty"`
	PaidAt         *time.Time       `json:"paidAt,omitempty"`
}

// renderBooking builds the API representation of a booking. The OTP block is
// only rendered with includeOTP, i.e. for the booking that the caller just
// created, reissued or redeemed; list and search responses never carry it.
func renderBooking(b db.Booking, includeOTP bool) bookingPayload {
	payload := bookingPayload{
		ID:                  b.ID,
		BookingNumber:       b.Number,
		SiteID:              b.SiteID,
		CustomerID:          b.CustomerID,
		CustomerName:        b.CustomerName,
		PhoneNumber:         b.PhoneNumber,
		VehicleNumber:       b.VehicleNumber,
		VehicleType:         b.VehicleType,
		MachineNumber:       b.MachineNumber,
		PalletNumber:        b.PalletNumber,
		Status:              b.Status,
		StartTime:           b.StartTime,
		EndTime:             b.EndTime,
		MembershipNumber:    b.MembershipNumber,
		Notes:               b.Notes,
		SpecialInstructions: b.SpecialInstructions,
		CreatedBy:           b.CreatedByUserID,
		UpdatedBy:           b.UpdatedByUserID,
		CompletedBy:         b.CompletedByUserID,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
	if b.EndTime != nil {
		total := b.EndTime.Sub(b.StartTime)
		if total > 0 {
			payload.Duration = &durationPayload{
				Hours:   uint64(total / time.Hour),
				Minutes: uint64((total % time.Hour) / time.Minute),
			}
		}
	}
	if includeOTP {
		payload.OTP = &otpPayload{
			Code:      b.OTPCode,
			ExpiresAt: b.OTPExpiresAt,
			IsUsed:    b.OTPUsed,
			UsedAt:    b.OTPUsedAt,
		}
	}
	if b.PaymentAmount != nil {
		payload.Payment = &paymentPayload{
			Amount:         *b.PaymentAmount,
			Method:         b.PaymentMethod,
			Status:         b.PaymentStatus,
			TransactionRef: b.TransactionRef,
			PaidAt:         b.PaidAt,
		}
	}
	return payload
}

// renderBookings is renderBooking over a list, without OTP blocks.
// The result is never nil, so that empty lists serialize as `[]`.
func renderBookings(bookings []db.Booking) []bookingPayload {
	payloads := make([]bookingPayload, len(bookings))
	for idx, b := range bookings {
		payloads[idx] = renderBooking(b, false)
	}
	return payloads
}

////////////////////////////////////////////////////////////////////////////////
// customers and memberships

type customerPayload struct {
	ID           db.CustomerID         `json:"id"`
	CustomerCode string                `json:"customerCode"`
	FirstName    string                `json:"firstName"`
	LastName     string                `json:"lastName,omitempty"`
	Phone        string                `json:"phone"`
	Email        string                `json:"email,omitempty"`
	Status       db.CustomerStatus     `json:"status"`
	Vehicles     []vehiclePayload      `json:"vehicles"`
	Membership   *membershipPayload    `json:"membership,omitempty"`
	Statistics   customerStatsPayload  `json:"statistics"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

type customerStatsPayload struct {
	TotalBookings uint64     `json:"totalBookings"`
	TotalAmount   float64    `json:"totalAmount"`
	LastBookingAt *time.Time `json:"lastBookingAt,omitempty"`
}

type vehiclePayload struct {
	ID      string         `json:"id"`
	Plate   string         `json:"vehicleNumber"`
	Type    db.VehicleType `json:"vehicleType"`
	Make    string         `json:"make,omitempty"`
	Model   string         `json:"model,omitempty"`
	Color   string         `json:"color,omitempty"`
	AddedAt time.Time      `json:"addedAt"`
}

type membershipPayload struct {
	Number              string            `json:"membershipNumber"`
	PIN                 string            `json:"pin,omitempty"`
	Type                db.MembershipType `json:"type"`
	CoveredVehicleTypes []db.VehicleType  `json:"coveredVehicleTypes"`
	IssuedAt            time.Time         `json:"issuedAt"`
	ExpiresAt           time.Time         `json:"expiresAt"`
	ValidityMonths      uint64            `json:"validityMonths"`
	IsActive            bool              `json:"isActive"`
	IsExpired           bool              `json:"isExpired"`
}

// renderCustomer builds the API representation of a customer with the given
// attached records. `membership` may be nil.
func renderCustomer(c db.Customer, vehicles []db.Vehicle, membership *db.Membership, now time.Time) (customerPayload, error) {
	payload := customerPayload{
		ID:           c.ID,
		CustomerCode: c.Code,
		FirstName:    c.FirstName,
		LastName:     c.LastName,
		Phone:        c.Phone,
		Email:        c.Email,
		Status:       c.Status,
		Vehicles:     make([]vehiclePayload, len(vehicles)),
		Statistics: customerStatsPayload{
			TotalBookings: c.TotalBookings,
			TotalAmount:   c.TotalAmount,
			LastBookingAt: c.LastBookingAt,
		},
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	for idx, v := range vehicles {
		payload.Vehicles[idx] = vehiclePayload{
			ID:      v.UUID,
			Plate:   v.Plate,
			Type:    v.Type,
			Make:    v.Make,
			Model:   v.Model,
			Color:   v.Color,
			AddedAt: v.AddedAt,
		}
	}
	if membership != nil {
		rendered, err := renderMembership(*membership, false, now)
		if err != nil {
			return customerPayload{}, err
		}
		payload.Membership = &rendered
	}
	return payload, nil
}

// renderMembership builds the API representation of a membership. The PIN is
// only rendered with includePIN, i.e. in the direct response to an issuance;
// it is otherwise a write-only credential.
func renderMembership(m db.Membership, includePIN bool, now time.Time) (membershipPayload, error) {
	coveredTypes, err := core.VehicleTypesFromJSON(m.CoveredVehicleTypes)
	if err != nil {
		return membershipPayload{}, err
	}
	payload := membershipPayload{
		Number:              m.Number,
		Type:                m.Type,
		CoveredVehicleTypes: coveredTypes,
		IssuedAt:            m.IssuedAt,
		ExpiresAt:           m.ExpiresAt,
		ValidityMonths:      m.ValidityMonths,
		IsActive:            m.IsActive,
		IsExpired:           !m.ExpiresAt.After(now),
	}
	if includePIN {
		payload.PIN = m.PIN
	}
	return payload, nil
}

type membershipPaymentPayload struct {
	MembershipNumber    string            `json:"membershipNumber"`
	MembershipType      db.MembershipType `json:"membershipType"`
	Amount              float64           `json:"amount"`
	Method              string            `json:"method"`
	TransactionRef      string            `json:"transactionRef,omitempty"`
	StartDate           time.Time         `json:"startDate"`
	ExpiryDate          time.Time         `json:"expiryDate"`
	ValidityMonths      uint64            `json:"validityMonths"`
	CoveredVehicleTypes []db.VehicleType  `json:"coveredVehicleTypes"`
	Status              db.PaymentStatus  `json:"status"`
	CreatedAt           time.Time         `json:"createdAt"`
}

func renderMembershipPayment(payment db.MembershipPayment) (membershipPaymentPayload, error) {
	coveredTypes, err := core.VehicleTypesFromJSON(payment.CoveredVehicleTypes)
	if err != nil {
		return membershipPaymentPayload{}, err
	}
	return membershipPaymentPayload{
		MembershipNumber:    payment.MembershipNumber,
		MembershipType:      payment.MembershipType,
		Amount:              payment.Amount,
		Method:              payment.Method,
		TransactionRef:      payment.TransactionRef,
		StartDate:           payment.StartDate,
		ExpiryDate:          payment.ExpiryDate,
		ValidityMonths:      payment.ValidityMonths,
		CoveredVehicleTypes: coveredTypes,
		Status:              payment.Status,
		CreatedAt:           payment.CreatedAt,
	}, nil
}

////////////////////////////////////////////////////////////////////////////////
// machines and pallets

type machinePayload struct {
	ID             db.MachineID              `json:"id"`
	SiteID         db.SiteID                 `json:"siteId"`
	Code           string                    `json:"code"`
	MachineType    db.MachineType            `json:"machineType"`
	VehicleType    db.VehicleType            `json:"vehicleType"`
	Status         db.MachineStatus          `json:"status"`
	IsOnline       bool                      `json:"isOnline"`
	Capacity       datamodel.MachineCapacity `json:"capacity"`
	Specifications specificationsPayload     `json:"specifications"`
	OperatingHours *core.WeeklyHours         `json:"operatingHours,omitempty"`
	Pricing        *core.Pricing             `json:"pricing,omitempty"`
	Integration    integrationPayload        `json:"integration"`
	Pallets        []palletPayload           `json:"pallets,omitempty"`
	CreatedAt      time.Time                 `json:"createdAt"`
	UpdatedAt      time.Time                 `json:"updatedAt"`
}

type specificationsPayload struct {
	SupportedVehicleTypes []db.VehicleType `json:"supportedVehicleTypes"`
	MaxLengthMM           *uint64          `json:"maxLengthMm,omitempty"`
	MaxWidthMM            *uint64          `json:"maxWidthMm,omitempty"`
	MaxHeightMM           *uint64          `json:"maxHeightMm,omitempty"`
	MaxWeightKG           *uint64          `json:"maxWeightKg,omitempty"`
}

type integrationPayload struct {
	LastHeartbeat    *time.Time                 `json:"lastHeartbeat,omitempty"`
	ConnectionStatus db.MachineConnectionStatus `json:"connectionStatus"`
	FirmwareVersion  string                     `json:"firmwareVersion,omitempty"`
}

type palletPayload struct {
	Number           uint64            `json:"number"`
	CustomName       string            `json:"customName,omitempty"`
	Status           db.PalletStatus   `json:"status"`
	VehicleCapacity  uint64            `json:"vehicleCapacity"`
	CurrentOccupancy uint64            `json:"currentOccupancy"`
	OccupiedSince    *time.Time        `json:"occupiedSince,omitempty"`
	LastMaintenance  *time.Time        `json:"lastMaintenance,omitempty"`
	MaintenanceNotes string            `json:"maintenanceNotes,omitempty"`
	Occupants        []occupantPayload `json:"occupants"`
}

type occupantPayload struct {
	BookingNumber string    `json:"bookingNumber"`
	VehicleNumber string    `json:"vehicleNumber"`
	Position      uint64    `json:"position"`
	OccupiedSince time.Time `json:"occupiedSince"`
}

// renderMachine builds the API representation of a machine. The capacity
// aggregates are passed in because they come from a separate query; the
// supported vehicle class list always contains at least the target class.
func renderMachine(m db.Machine, capacity datamodel.MachineCapacity, now time.Time) (machinePayload, error) {
	supportedTypes, err := core.VehicleTypesFromJSON(m.SupportedVehicleTypes)
	if err != nil {
		return machinePayload{}, err
	}
	if !core.CoversVehicleType(supportedTypes, m.VehicleType) {
		supportedTypes = append(supportedTypes, m.VehicleType)
	}
	hours, err := parseOptionalJSON[core.WeeklyHours](m.OperatingHours)
	if err != nil {
		return machinePayload{}, err
	}
	pricing, err := parseOptionalJSON[core.Pricing](m.Pricing)
	if err != nil {
		return machinePayload{}, err
	}

	return machinePayload{
		ID:          m.ID,
		SiteID:      m.SiteID,
		Code:        m.Code,
		MachineType: m.Type,
		VehicleType: m.VehicleType,
		Status:      m.Status,
		IsOnline:    m.Status == db.MachineStatusOnline && core.IsMachineLive(m.LastHeartbeatAt, now),
		Capacity:    capacity,
		Specifications: specificationsPayload{
			SupportedVehicleTypes: supportedTypes,
			MaxLengthMM:           m.MaxLengthMM,
			MaxWidthMM:            m.MaxWidthMM,
			MaxHeightMM:           m.MaxHeightMM,
			MaxWeightKG:           m.MaxWeightKG,
		},
		OperatingHours: hours,
		Pricing:        pricing,
		Integration: integrationPayload{
			LastHeartbeat:    m.LastHeartbeatAt,
			ConnectionStatus: m.Connection,
			FirmwareVersion:  m.FirmwareVersion,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func renderPallet(pallet db.Pallet, occupants []db.PalletOccupant) palletPayload {
	payload := palletPayload{
		Number:           pallet.Number,
		CustomName:       pallet.CustomName,
		Status:           pallet.Status,
		VehicleCapacity:  pallet.VehicleCapacity,
		CurrentOccupancy: pallet.CurrentOccupancy,
		OccupiedSince:    pallet.OccupiedSince,
		LastMaintenance:  pallet.LastMaintenance,
		MaintenanceNotes: pallet.MaintenanceNotes,
		Occupants:        make([]occupantPayload, len(occupants)),
	}
	for idx, occupant := range occupants {
		payload.Occupants[idx] = occupantPayload{
			BookingNumber: occupant.BookingNumber,
			VehicleNumber: occupant.VehicleNumber,
			Position:      occupant.Position,
			OccupiedSince: occupant.OccupiedSince,
		}
	}
	return payload
}

////////////////////////////////////////////////////////////////////////////////
// sites

type sitePayload struct {
	ID             db.SiteID         `json:"id"`
	Code           string            `json:"code"`
	Name           string            `json:"name"`
	Address        addressPayload    `json:"address"`
	Location       *locationPayload  `json:"location,omitempty"`
	OperatingHours *core.WeeklyHours `json:"operatingHours,omitempty"`
	Pricing        *core.Pricing     `json:"pricing,omitempty"`
	TotalMachines  uint64            `json:"totalMachines"`
	TotalCapacity  uint64            `json:"totalCapacity"`
	Status         db.SiteStatus     `json:"status"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

type addressPayload struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Pincode string `json:"pincode,omitempty"`
}

type locationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func renderSite(site db.Site) (sitePayload, error) {
	hours, err := parseOptionalJSON[core.WeeklyHours](site.OperatingHours)
	if err != nil {
		return sitePayload{}, err
	}
	pricing, err := parseOptionalJSON[core.Pricing](site.Pricing)
	if err != nil {
		return sitePayload{}, err
	}

	payload := sitePayload{
		ID:   site.ID,
		Code: site.Code,
		Name: site.Name,
		Address: addressPayload{
			Street:  site.AddressStreet,
			City:    site.AddressCity,
			State:   site.AddressState,
			Pincode: site.AddressPincode,
		},
		OperatingHours: hours,
		Pricing:        pricing,
		TotalMachines:  site.TotalMachines,
		TotalCapacity:  site.TotalCapacity,
		Status:         site.Status,
		CreatedAt:      site.CreatedAt,
		UpdatedAt:      site.UpdatedAt,
	}
	if site.Latitude != nil && site.Longitude != nil {
		payload.Location = &locationPayload{
			Latitude:  *site.Latitude,
			Longitude: *site.Longitude,
		}
	}
	return payload, nil
}

////////////////////////////////////////////////////////////////////////////////
// site user assignments

type siteUserPayload struct {
	UserID      db.UserID   `json:"userId"`
	OperatorID  string      `json:"operatorId"`
	Name        string      `json:"name"`
	Role        db.UserRole `json:"role"`
	SiteRole    db.SiteRole `json:"siteRole"`
	Permissions []string    `json:"permissions"`
	AssignedBy  string      `json:"assignedBy,omitempty"`
	AssignedAt  time.Time   `json:"assignedAt"`
}

func renderSiteUser(user db.User, assignment db.UserSiteAssignment) (siteUserPayload, error) {
	permissions, err := core.ParseJSONColumn[[]string](assignment.Permissions)
	if err != nil {
		return siteUserPayload{}, err
	}
	if permissions == nil {
		permissions = []string{}
	}
	return siteUserPayload{
		UserID:      user.ID,
		OperatorID:  user.OperatorID,
		Name:        user.Name,
		Role:        user.Role,
		SiteRole:    assignment.Role,
		Permissions: permissions,
		AssignedBy:  assignment.AssignedByUserID,
		AssignedAt:  assignment.AssignedAt,
	}, nil
}

// parseOptionalJSON reads a JSON-typed TEXT column into a pointer, with empty
// columns coming out as nil (and thus omitted from responses).
func parseOptionalJSON[T any](buf string) (*T, error) {
	if buf == "" {
		return nil, nil
	}
	value, err := core.ParseJSONColumn[T](buf)
	if err != nil {
		return nil, err
	}
	return &value, nil
}
