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

// BookingIntake is the operator-supplied input for a new booking.
type BookingIntake struct {
	CustomerName        string
	Phone               string
	Email               string
	VehiclePlate        string
	VehicleType         db.VehicleType
	MachineNumber       string
	PalletNumber        uint64
	Notes               string
	SpecialInstructions string
}

// validate checks all input shapes at once, so that the operator gets the
// full list of problems in a single response.
func (intake BookingIntake) validate() error {
	var v core.Validator
	v.CheckRequired("customerName", intake.CustomerName)
	v.CheckMatch("customerName", intake.CustomerName, core.NameRx, "made of letters and spaces")
	v.CheckRequired("phoneNumber", intake.Phone)
	v.CheckMatch("phoneNumber", intake.Phone, core.PhoneRx, "a 10-digit Indian mobile number")
	v.CheckMatch("email", intake.Email, core.EmailRx, "a valid email address")
	plate := core.NormalizePlate(intake.VehiclePlate)
	v.CheckRequired("vehicleNumber", plate)
	v.CheckMatch("vehicleNumber", plate, core.VehiclePlateRx, "a valid vehicle registration number")
	v.CheckRequired("vehicleType", string(intake.VehicleType))
	v.CheckOneOf("vehicleType", string(intake.VehicleType),
		string(db.VehicleTypeTwoWheeler), string(db.VehicleTypeFourWheeler))
	v.CheckRequired("machineNumber", intake.MachineNumber)
	v.CheckMatch("machineNumber", intake.MachineNumber, core.MachineCodeRx, `of the form "M001"`)
	if intake.PalletNumber < 1 {
		v.Reject("palletNumber", strconv.FormatUint(intake.PalletNumber, 10), "palletNumber must be at least 1")
	}
	return v.AsError()
}

// CreateBookingParams bundles everything beyond the operator input that goes
// into a new booking. The generated identifiers are passed in by the caller
// so that tests can pin them.
type CreateBookingParams struct {
	SiteID db.SiteID
	// Actor is the operator ID that audit fields are stamped with.
	Actor   string
	OTPCode string
	// VehicleUUID is used if a vehicle record needs to be attached to the customer.
	VehicleUUID string
}

// CreateBookingResult carries the created booking plus the metadata that the
// response layer uses to choose its message.
type CreateBookingResult struct {
	Booking  db.Booking
	Customer db.Customer
	// IsNewCustomer reports that no active customer had this phone number, so
	// a new customer record was created.
	IsNewCustomer bool
	// CustomerNameUpdated reports that an existing customer's name was
	// overwritten because the operator spelled it differently.
	CustomerNameUpdated bool
}

// CreateBooking records a parking session. The customer is resolved (or
// created) by phone number, an OTP is attached, and the booking is committed
// before any pallet state is touched.
//
// The machine code and pallet number are recorded as given: whether that
// pallet can physically take the vehicle is decided by the best-effort
// OccupyPallet side-effect afterwards. Overbooking a machine is allowed so
// that operators can record sessions even when the mechanism misbehaves.
func CreateBooking(dbm *gorp.DbMap, intake BookingIntake, params CreateBookingParams, now time.Time) (CreateBookingResult, error) {
	err := intake.validate()
	if err != nil {
		return CreateBookingResult{}, err
	}

	tx, err := dbm.Begin()
	if err != nil {
		return CreateBookingResult{}, err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	result, err := resolveBookingCustomer(tx, intake, params, now)
	if err != nil {
		return CreateBookingResult{}, err
	}
	customer := result.Customer

	booking := db.Booking{
		Number:              core.BookingNumber(intake.VehicleType, now),
		SiteID:              params.SiteID,
		CustomerID:          &customer.ID,
		CustomerName:        customer.FullName(),
		PhoneNumber:         customer.Phone,
		VehicleNumber:       core.NormalizePlate(intake.VehiclePlate),
		VehicleType:         intake.VehicleType,
		MachineNumber:       intake.MachineNumber,
		PalletNumber:        intake.PalletNumber,
		Status:              db.BookingStatusActive,
		StartTime:           now,
		OTPCode:             params.OTPCode,
		OTPIssuedAt:         now,
		OTPExpiresAt:        now.Add(core.BookingOTPLifetime),
		PaymentStatus:       db.PaymentStatusPending,
		Notes:               core.SanitizeString(intake.Notes),
		SpecialInstructions: core.SanitizeString(intake.SpecialInstructions),
		CreatedByUserID:     params.Actor,
		UpdatedByUserID:     params.Actor,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	err = tx.Insert(&booking)
	if err != nil {
		return CreateBookingResult{}, fmt.Errorf("while creating booking %s: %w", booking.Number, err)
	}

	_, err = tx.Exec(updateCustomerBookingStatsQuery, now, customer.ID)
	if err != nil {
		return CreateBookingResult{}, fmt.Errorf("while updating statistics of customer %s: %w", customer.Code, err)
	}

	err = tx.Commit()
	if err != nil {
		return CreateBookingResult{}, err
	}

	// the booking is the source of operational truth; a failure to place the
	// vehicle on the pallet must not undo it
	reportPalletSideeffect("occupy", booking.Number, occupyForBooking(dbm, booking, now))

	result.Booking = booking
	return result, nil
}

var (
	activeCustomerByPhoneQuery = sqlext.SimplifyWhitespace(`
		SELECT * FROM customers WHERE phone = $1 AND status = 'active'
	`)

	updateCustomerBookingStatsQuery = sqlext.SimplifyWhitespace(`
		UPDATE customers SET total_bookings = total_bookings + 1, last_booking_at = $1, updated_at = $1 WHERE id = $2
	`)

	bookingMachineQuery = sqlext.SimplifyWhitespace(`
		SELECT * FROM machines WHERE site_id = $1 AND code = $2
	`)
)

// resolveBookingCustomer finds the active customer with the booking's phone
// number, or creates one. The operator-supplied name wins over the stored
// name, and the vehicle is attached to the customer if it is not yet known.
func resolveBookingCustomer(tx *gorp.Transaction, intake BookingIntake, params CreateBookingParams, now time.Time) (CreateBookingResult, error) {
	var result CreateBookingResult

	var customer db.Customer
	err := tx.SelectOne(&customer, activeCustomerByPhoneQuery, intake.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		customer, err = createCustomerRecord(tx, CustomerIntake{
			Name:  intake.CustomerName,
			Phone: intake.Phone,
			Email: intake.Email,
		}, params.Actor, now)
		if err != nil {
			return CreateBookingResult{}, err
		}
		result.IsNewCustomer = true
	} else if err != nil {
		return CreateBookingResult{}, fmt.Errorf("while resolving customer by phone: %w", err)
	} else {
		providedName := core.SanitizeString(intake.CustomerName)
		if providedName != customer.FullName() {
			customer.FirstName, customer.LastName = splitCustomerName(providedName)
			customer.UpdatedAt = now
			_, err = tx.Update(&customer)
			if err != nil {
				return CreateBookingResult{}, fmt.Errorf("while renaming customer %s: %w", customer.Code, err)
			}
			result.CustomerNameUpdated = true
		}
	}

	err = attachVehicleIfMissing(tx, customer, db.Vehicle{
		UUID:          params.VehicleUUID,
		Plate:         core.NormalizePlate(intake.VehiclePlate),
		Type:          intake.VehicleType,
		AddedByUserID: params.Actor,
	}, now)
	if err != nil {
		return CreateBookingResult{}, err
	}

	result.Customer = customer
	return result, nil
}

// occupyForBooking performs the pallet side of a new booking.
func occupyForBooking(dbm *gorp.DbMap, booking db.Booking, now time.Time) error {
	machine, err := findBookingMachine(dbm, booking)
	if err != nil {
		return err
	}
	_, _, err = OccupyPallet(dbm, machine, strconv.FormatUint(booking.PalletNumber, 10), OccupancyRequest{
		BookingNumber: booking.Number,
		VehiclePlate:  booking.VehicleNumber,
	}, now)
	return err
}

// findBookingMachine resolves the machine that a booking refers to by its
// denormalized machine code.
func findBookingMachine(dbi db.Interface, booking db.Booking) (db.Machine, error) {
	var machine db.Machine
	err := dbi.SelectOne(&machine, bookingMachineQuery, booking.SiteID, booking.MachineNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Machine{}, core.Errorf(core.ErrNotFound, "no machine %s in site %d", booking.MachineNumber, booking.SiteID)
	}
	if err != nil {
		return db.Machine{}, fmt.Errorf("while looking up machine %s: %w", booking.MachineNumber, err)
	}
	return machine, nil
}
