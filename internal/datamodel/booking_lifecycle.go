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

var (
	bookingByIDQuery = sqlext.SimplifyWhitespace(`
		SELECT * FROM bookings WHERE id = $1 FOR UPDATE
	`)

	// On OTP collision between bookings, the most recently issued one wins.
	redeemableBookingByOTPQuery = sqlext.SimplifyWhitespace(`
		SELECT * FROM bookings
		 WHERE status = 'active' AND otp_code = $1 AND NOT otp_used AND otp_expires_at > $2
		 ORDER BY otp_issued_at DESC LIMIT 1
		   FOR UPDATE
	`)

	addCustomerRevenueQuery = sqlext.SimplifyWhitespace(`
		UPDATE customers SET total_amount = total_amount + $1, updated_at = $2 WHERE id = $3
	`)
)

// findBookingForUpdate locks a booking row for a lifecycle transition.
func findBookingForUpdate(dbi db.Interface, bookingID db.BookingID) (db.Booking, error) {
	var booking db.Booking
	err := dbi.SelectOne(&booking, bookingByIDQuery, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Booking{}, core.Errorf(core.ErrNotFound, "no such booking")
	}
	if err != nil {
		return db.Booking{}, fmt.Errorf("while loading booking %d: %w", bookingID, err)
	}
	return booking, nil
}

// VerifyBookingOTP redeems an OTP for vehicle retrieval. The OTP must belong
// to an active booking, be unused, and not be past its expiry. Redemption is
// a one-shot operation: the OTP is consumed even though the booking itself
// stays active until an operator completes it.
func VerifyBookingOTP(dbm *gorp.DbMap, otpCode string, now time.Time) (db.Booking, error) {
	tx, err := dbm.Begin()
	if err != nil {
		return db.Booking{}, err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	var booking db.Booking
	err = tx.SelectOne(&booking, redeemableBookingByOTPQuery, otpCode, now)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Booking{}, core.Errorf(core.ErrBadRequest, "invalid or expired OTP")
	}
	if err != nil {
		return db.Booking{}, fmt.Errorf("while looking up OTP: %w", err)
	}

	booking.OTPUsed = true
	usedAt := now
	booking.OTPUsedAt = &usedAt
	booking.UpdatedAt = now
	_, err = tx.Update(&booking)
	if err != nil {
		return db.Booking{}, fmt.Errorf("while consuming OTP of booking %s: %w", booking.Number, err)
	}
	return booking, tx.Commit()
}

// RegenerateBookingOTP replaces a booking's OTP with a fresh one. Only active
// bookings can get a new OTP.
func RegenerateBookingOTP(dbm *gorp.DbMap, bookingID db.BookingID, otpCode, actor string, now time.Time) (db.Booking, error) {
	tx, err := dbm.Begin()
	if err != nil {
		return db.Booking{}, err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	booking, err := findBookingForUpdate(tx, bookingID)
	if err != nil {
		return db.Booking{}, err
	}
	if booking.Status != db.BookingStatusActive {
		return db.Booking{}, core.Errorf(core.ErrIllegalTransition,
			"booking %s is %s; only active bookings can get a new OTP", booking.Number, booking.Status)
	}

	booking.OTPCode = otpCode
	booking.OTPIssuedAt = now
	booking.OTPExpiresAt = now.Add(core.BookingOTPLifetime)
	booking.OTPUsed = false
	booking.OTPUsedAt = nil
	booking.UpdatedByUserID = actor
	booking.UpdatedAt = now
	_, err = tx.Update(&booking)
	if err != nil {
		return db.Booking{}, fmt.Errorf("while replacing OTP of booking %s: %w", booking.Number, err)
	}
	return booking, tx.Commit()
}

// PaymentIntake describes the payment captured when a booking completes.
type PaymentIntake struct {
	Amount         float64
	Method         string
	TransactionRef string
}

// CompleteBooking ends a parking session. If a payment is given, it is
// captured on the booking and added to the customer's revenue total. The
// pallet release afterwards is best-effort: the completed booking stands even
// if the mechanism refuses to hand out the vehicle record.
func CompleteBooking(dbm *gorp.DbMap, bookingID db.BookingID, payment *PaymentIntake, actor string, now time.Time) (db.Booking, error) {
	tx, err := dbm.Begin()
	if err != nil {
		return db.Booking{}, err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	booking, err := findBookingForUpdate(tx, bookingID)
	if err != nil {
		return db.Booking{}, err
	}
	if booking.Status != db.BookingStatusActive {
		return db.Booking{}, core.Errorf(core.ErrIllegalTransition,
			"booking %s is %s and cannot be completed", booking.Number, booking.Status)
	}

	endTime := now
	booking.EndTime = &endTime
	if payment != nil {
		amount := payment.Amount
		booking.PaymentAmount = &amount
		booking.PaymentMethod = payment.Method
		booking.PaymentStatus = db.PaymentStatusCompleted
		booking.TransactionRef = payment.TransactionRef
		paidAt := now
		booking.PaidAt = &paidAt
	}
	booking.Status = db.BookingStatusCompleted
	booking.CompletedByUserID = actor
	booking.UpdatedByUserID = actor
	booking.UpdatedAt = now
	_, err = tx.Update(&booking)
	if err != nil {
		return db.Booking{}, fmt.Errorf("while completing booking %s: %w", booking.Number, err)
	}

	if payment != nil && booking.CustomerID != nil {
		_, err = tx.Exec(addCustomerRevenueQuery, payment.Amount, now, *booking.CustomerID)
		if err != nil {
			return db.Booking{}, fmt.Errorf("while updating statistics of customer %d: %w", *booking.CustomerID, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return db.Booking{}, err
	}

	reportPalletSideeffect("release", booking.Number, releaseForBooking(dbm, booking, releaseByPlate))
	return booking, nil
}

// CancelBooking voids a parking session. The reason goes into the notes, and
// the pallet occupant (if the occupy side-effect had succeeded back then) is
// released best-effort.
func CancelBooking(dbm *gorp.DbMap, bookingID db.BookingID, reason, actor string, now time.Time) (db.Booking, error) {
	tx, err := dbm.Begin()
	if err != nil {
		return db.Booking{}, err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	booking, err := findBookingForUpdate(tx, bookingID)
	if err != nil {
		return db.Booking{}, err
	}
	if booking.Status.IsTerminal() {
		return db.Booking{}, core.Errorf(core.ErrIllegalTransition,
			"booking %s is already %s", booking.Number, booking.Status)
	}

	booking.Status = db.BookingStatusCancelled
	if reason != "" {
		appendBookingNote(&booking, "cancellation reason: "+core.SanitizeString(reason))
	}
	booking.UpdatedByUserID = actor
	booking.UpdatedAt = now
	_, err = tx.Update(&booking)
	if err != nil {
		return db.Booking{}, fmt.Errorf("while cancelling booking %s: %w", booking.Number, err)
	}

	err = tx.Commit()
	if err != nil {
		return db.Booking{}, err
	}

	reportPalletSideeffect("release", booking.Number, releaseForBooking(dbm, booking, releaseByBookingNumber))
	return booking, nil
}

// ExtendBooking grants extra time to an active booking. The extension is a
// note on the record; it does not touch the OTP expiry, since retrieval codes
// are reissued explicitly.
func ExtendBooking(dbm *gorp.DbMap, bookingID db.BookingID, hours, minutes uint64, reason, actor string, now time.Time) (db.Booking, error) {
	if hours == 0 && minutes == 0 {
		return db.Booking{}, core.Errorf(core.ErrValidation, "at least one of hours and minutes must be positive")
	}

	tx, err := dbm.Begin()
	if err != nil {
		return db.Booking{}, err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	booking, err := findBookingForUpdate(tx, bookingID)
	if err != nil {
		return db.Booking{}, err
	}
	if booking.Status != db.BookingStatusActive {
		return db.Booking{}, core.Errorf(core.ErrIllegalTransition,
			"booking %s is %s and cannot be extended", booking.Number, booking.Status)
	}

	note := fmt.Sprintf("extended by %dh %dm", hours, minutes)
	if reason != "" {
		note += ": " + core.SanitizeString(reason)
	}
	appendBookingNote(&booking, note)
	booking.UpdatedByUserID = actor
	booking.UpdatedAt = now
	_, err = tx.Update(&booking)
	if err != nil {
		return db.Booking{}, fmt.Errorf("while extending booking %s: %w", booking.Number, err)
	}
	return booking, tx.Commit()
}

func appendBookingNote(booking *db.Booking, note string) {
	if booking.Notes == "" {
		booking.Notes = note
	} else {
		booking.Notes += "\n" + note
	}
}

const (
	releaseByBookingNumber = false
	releaseByPlate         = true
)

// releaseForBooking performs the pallet side of ending a booking.
// Completion releases by plate; cancellation releases by booking number.
func releaseForBooking(dbm *gorp.DbMap, booking db.Booking, byPlate bool) error {
	machine, err := findBookingMachine(dbm, booking)
	if err != nil {
		return err
	}
	palletKey := strconv.FormatUint(booking.PalletNumber, 10)
	if byPlate {
		_, err = ReleaseVehicle(dbm, machine, palletKey, booking.VehicleNumber)
	} else {
		_, err = ReleasePalletByBooking(dbm, machine, palletKey, booking.Number)
	}
	return err
}
