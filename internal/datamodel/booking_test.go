// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package datamodel

import (
	"strings"
	"testing"
	"time"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/sapcc/go-bits/mock"

	"github.com/sapcc/parkhaus/internal/core"
	"github.com/sapcc/parkhaus/internal/db"
)

func defaultBookingIntake() BookingIntake {
	return BookingIntake{
		CustomerName:  "Asha Rao",
		Phone:         "9876543210",
		Email:         "asha@example.com",
		VehiclePlate:  "KA01AB1001",
		VehicleType:   db.VehicleTypeTwoWheeler,
		MachineNumber: "M001",
		PalletNumber:  1,
	}
}

func createTestBooking(t *testing.T, dbm *gorp.DbMap, clock *mock.Clock, site db.Site, intake BookingIntake, otpCode string) CreateBookingResult {
	t.Helper()
	// booking numbers derive from the clock, so consecutive creates need distinct timestamps
	clock.StepBy(time.Minute)
	result, err := CreateBooking(dbm, intake, CreateBookingParams{
		SiteID:      site.ID,
		Actor:       "OP001",
		OTPCode:     otpCode,
		VehicleUUID: "vehicle-" + core.NormalizePlate(intake.VehiclePlate),
	}, clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func getCustomer(t *testing.T, dbm *gorp.DbMap, customerID db.CustomerID) db.Customer {
	t.Helper()
	var customer db.Customer
	err := dbm.SelectOne(&customer, `SELECT * FROM customers WHERE id = $1`, customerID)
	if err != nil {
		t.Fatal(err)
	}
	return customer
}

func TestCreateBookingForNewCustomer(t *testing.T) {
	dbm, clock := setupDB(t)
	site := seedSite(t, dbm, clock.Now())
	machine := seedOnlineMachine(t, dbm, site, "M001", db.MachineTypeRotary, db.VehicleTypeTwoWheeler, 8, clock.Now())

	intake := defaultBookingIntake()
	intake.VehiclePlate = " ka01ab1001 " //normalized on intake
	result := createTestBooking(t, dbm, clock, site, intake, "482913")
	booking := result.Booking

	if !result.IsNewCustomer {
		t.Error("expected a new customer record for an unknown phone number")
	}
	if result.CustomerNameUpdated {
		t.Error("expected no name update for a new customer")
	}
	if !strings.HasPrefix(booking.Number, "BKTW") {
		t.Errorf("expected a BKTW booking number, but got %q", booking.Number)
	}
	if booking.Status != db.BookingStatusActive {
		t.Errorf("expected booking status %q, but got %q", db.BookingStatusActive, booking.Status)
	}
	if booking.VehicleNumber != "KA01AB1001" {
		t.Errorf("expected a normalized plate on the booking, but got %q", booking.VehicleNumber)
	}
	if booking.CustomerName != "Asha Rao" || booking.PhoneNumber != "9876543210" {
		t.Errorf("expected the customer identity on the booking, but got %q / %q", booking.CustomerName, booking.PhoneNumber)
	}
	if booking.OTPCode != "482913" {
		t.Errorf("expected the issued OTP on the booking, but got %q", booking.OTPCode)
	}
	if !booking.OTPExpiresAt.Equal(booking.OTPIssuedAt.Add(core.BookingOTPLifetime)) {
		t.Errorf("expected the OTP to expire %s after issue, but got %s", core.BookingOTPLifetime, booking.OTPExpiresAt.Sub(booking.OTPIssuedAt))
	}
	if booking.PaymentStatus != db.PaymentStatusPending {
		t.Errorf("expected payment status %q, but got %q", db.PaymentStatusPending, booking.PaymentStatus)
	}

	customer := getCustomer(t, dbm, result.Customer.ID)
	if customer.FirstName != "Asha" || customer.LastName != "Rao" {
		t.Errorf("expected the name split into Asha / Rao, but got %q / %q", customer.FirstName, customer.LastName)
	}
	if !strings.HasPrefix(customer.Code, "CUST") {
		t.Errorf("expected a CUST customer code, but got %q", customer.Code)
	}
	if customer.TotalBookings != 1 {
		t.Errorf("expected totalBookings = 1, but got %d", customer.TotalBookings)
	}
	if customer.LastBookingAt == nil || !customer.LastBookingAt.Equal(booking.StartTime) {
		t.Errorf("expected lastBookingAt %s, but got %v", booking.StartTime, customer.LastBookingAt)
	}

	var vehicle db.Vehicle
	err := dbm.SelectOne(&vehicle, `SELECT * FROM vehicles WHERE customer_id = $1`, customer.ID)
	if err != nil {
		t.Fatal(err)
	}
	if vehicle.UUID != "vehicle-KA01AB1001" || vehicle.Plate != "KA01AB1001" || !vehicle.IsActive {
		t.Errorf("expected the vehicle attached to the customer, but got %+v", vehicle)
	}

	// the pallet side-effect ran after the commit
	pallet := getPallet(t, dbm, machine, 1)
	if pallet.CurrentOccupancy != 1 {
		t.Errorf("expected one occupant on pallet 1, but got %d", pallet.CurrentOccupancy)
	}
	var occupant db.PalletOccupant
	err = dbm.SelectOne(&occupant, `SELECT * FROM pallet_occupants WHERE pallet_id = $1`, pallet.ID)
	if err != nil {
		t.Fatal(err)
	}
	if occupant.BookingNumber != booking.Number || occupant.Position != 1 {
		t.Errorf("expected the booking's occupant on position 1, but got %+v", occupant)
	}
}

func TestCreateBookingResolvesExistingCustomer(t *testing.T) {
	dbm, clock := setupDB(t)
	site := seedSite(t, dbm, clock.Now())
	seedOnlineMachine(t, dbm, site, "M001", db.MachineTypeRotary, db.VehicleTypeTwoWheeler, 8, clock.Now())

	existing, err := CreateCustomer(dbm, CustomerIntake{Name: "Asha Rao", Phone: "9876543210"}, "OP001", clock.Now())
	if err != nil {
		t.Fatal(err)
	}

	// the operator-supplied spelling of the name wins
	intake := defaultBookingIntake()
	intake.CustomerName = "Asha R"
	result := createTestBooking(t, dbm, clock, site, intake, "482913")
	if result.IsNewCustomer {
		t.Error("expected the existing customer to be resolved by phone number")
	}
	if !result.CustomerNameUpdated {
		t.Error("expected the customer name to be updated")
	}
	customer := getCustomer(t, dbm, existing.ID)
	if customer.FirstName != "Asha" || customer.LastName != "R" {
		t.Errorf("expected the customer renamed to Asha / R, but got %q / %q", customer.FirstName, customer.LastName)
	}

	// a second booking with the same spelling changes nothing
	result = createTestBooking(t, dbm, clock, site, intake, "583920")
	if result.IsNewCustomer || result.CustomerNameUpdated {
		t.Errorf("expected a plain re-resolution, but got %+v", result)
	}
	customer = getCustomer(t, dbm, existing.ID)
	if customer.TotalBookings != 2 {
		t.Errorf("expected totalBookings = 2, but got %d", customer.TotalBookings)
	}

	customerCount, err := dbm.SelectInt(`SELECT COUNT(*) FROM customers`)
	if err != nil {
		t.Fatal(err)
	}
	if customerCount != 1 {
		t.Errorf("expected no duplicate customer records, but got %d", customerCount)
	}
	vehicleCount, err := dbm.SelectInt(`SELECT COUNT(*) FROM vehicles WHERE customer_id = $1`, existing.ID)
	if err != nil {
		t.Fatal(err)
	}
	if vehicleCount != 1 {
		t.Errorf("expected the vehicle to be attached only once, but got %d records", vehicleCount)
	}
}

func TestCreateBookingValidation(t *testing.T) {
	dbm, clock := setupDB(t)
	site := seedSite(t, dbm, clock.Now())

	intake := defaultBookingIntake()
	intake.CustomerName = ""
	intake.Phone = "12345"
	intake.MachineNumber = "XYZ"
	intake.PalletNumber = 0
	_, err := CreateBooking(dbm, intake, CreateBookingParams{SiteID: site.ID, Actor: "OP001", OTPCode: "482913"}, clock.Now())
	if !core.IsErrorKind(err, core.ErrValidation) {
		t.Fatalf("expected ErrValidation, but got: %v", err)
	}
	serr := core.AsServiceError(err)
	if len(serr.Fields) != 4 {
		t.Errorf("expected 4 field errors, but got %+v", serr.Fields)
	}

	// nothing is persisted on validation failure
	for _, table := range []string{"bookings", "customers"} {
		count, err := dbm.SelectInt(`SELECT COUNT(*) FROM ` + table)
		if err != nil {
			t.Fatal(err)
		}
		if count != 0 {
			t.Errorf("expected no %s rows, but got %d", table, count)
		}
	}
}

func TestCreateBookingAllowsOverbooking(t *testing.T) {
	dbm, clock := setupDB(t)
	site := seedSite(t, dbm, clock.Now())
	seedOnlineMachine(t, dbm, site, "M003", db.MachineTypeRotary, db.VehicleTypeTwoWheeler, 8, clock.Now())

	// pallet 99 does not exist; the booking goes through anyway
	intake := defaultBookingIntake()
	intake.MachineNumber = "M003"
	intake.PalletNumber = 99
	result := createTestBooking(t, dbm, clock, site, intake, "482913")
	if result.Booking.Status != db.BookingStatusActive {
		t.Errorf("expected an active booking despite the failed occupy, but got %q", result.Booking.Status)
	}

	// same story when the machine itself is unknown
	intake = defaultBookingIntake()
	intake.MachineNumber = "M007"
	result = createTestBooking(t, dbm, clock, site, intake, "583920")
	if result.Booking.Status != db.BookingStatusActive {
		t.Errorf("expected an active booking despite the unknown machine, but got %q", result.Booking.Status)
	}

	occupantCount, err := dbm.SelectInt(`SELECT COUNT(*) FROM pallet_occupants`)
	if err != nil {
		t.Fatal(err)
	}
	if occupantCount != 0 {
		t.Errorf("expected no occupant records, but got %d", occupantCount)
	}
}

func TestVerifyBookingOTP(t *testing.T) {
	dbm, clock := setupDB(t)
	site := seedSite(t, dbm, clock.Now())
	seedOnlineMachine(t, dbm, site, "M001", db.MachineTypeRotary, db.VehicleTypeTwoWheeler, 8, clock.Now())

	result := createTestBooking(t, dbm, clock, site, defaultBookingIntake(), "482913")

	_, err := VerifyBookingOTP(dbm, "000000", clock.Now())
	if !core.IsErrorKind(err, core.ErrBadRequest) {
		t.Errorf("expected ErrBadRequest for an unknown OTP, but got: %v", err)
	}

	// just before expiry, the OTP still redeems
	clock.StepBy(core.BookingOTPLifetime - time.Second)
	booking, err := VerifyBookingOTP(dbm, "482913", clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if booking.ID != result.Booking.ID {
		t.Errorf("expected booking %d, but got %d", result.Booking.ID, booking.ID)
	}
	if !booking.OTPUsed || booking.OTPUsedAt == nil || !booking.OTPUsedAt.Equal(clock.Now()) {
		t.Errorf("expected the OTP to be consumed at %s, but got %+v", clock.Now(), booking)
	}

	// a consumed OTP does not redeem again
	_, err = VerifyBookingOTP(dbm, "482913", clock.Now())
	if !core.IsErrorKind(err, core.ErrBadRequest) {
		t.Errorf("expected ErrBadRequest for a consumed OTP, but got: %v", err)
	}

	// at expiry (exactly 30 minutes after issue), redemption fails
	intake := defaultBookingIntake()
	intake.PalletNumber = 2
	createTestBooking(t, dbm, clock, site, intake, "583920")
	clock.StepBy(core.BookingOTPLifetime)
	_, err = VerifyBookingOTP(dbm, "583920", clock.Now())
	if !core.IsErrorKind(err, core.ErrBadRequest) {
		t.Errorf("expected ErrBadRequest at the expiry boundary, but got: %v", err)
	}
}

func TestVerifyBookingOTPPrefersLatestOnCollision(t *testing.T) {
	dbm, clock := setupDB(t)
	site := seedSite(t, dbm, clock.Now())
	seedOnlineMachine(t, dbm, site, "M001", db.MachineTypeRotary, db.VehicleTypeTwoWheeler, 8, clock.Now())

	createTestBooking(t, dbm, clock, site, defaultBookingIntake(), "777777")
	intake := defaultBookingIntake()
	intake.VehiclePlate = "KA01AB2002"
	intake.PalletNumber = 2
	second := createTestBooking(t, dbm, clock, site, intake, "777777")

	booking, err := VerifyBookingOTP(dbm, "777777", clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if booking.ID != second.Booking.ID {
		t.Errorf("expected the most recently issued booking %d, but got %d", second.Booking.ID, booking.ID)
	}
}

func TestRegenerateBookingOTP(t *testing.T) {
	dbm, clock := setupDB(t)
	site := seedSite(t, dbm, clock.Now())
	seedOnlineMachine(t, dbm, site, "M001", db.MachineTypeRotary, db.VehicleTypeTwoWheeler, 8, clock.Now())

	result := createTestBooking(t, dbm, clock, site, defaultBookingIntake(), "482913")

	// even an expired OTP can be replaced while the booking is active
	clock.StepBy(40 * time.Minute)
	booking, err := RegenerateBookingOTP(dbm, result.Booking.ID, "119201", "OP002", clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if booking.OTPCode != "119201" || booking.OTPUsed {
		t.Errorf("expected a fresh unused OTP, but got %+v", booking)
	}
	if !booking.OTPExpiresAt.Equal(clock.Now().Add(core.BookingOTPLifetime)) {
		t.Errorf("expected the new OTP to expire at %s, but got %s", clock.Now().Add(core.BookingOTPLifetime), booking.OTPExpiresAt)
	}
	if booking.UpdatedByUserID != "OP002" {
		t.Errorf("expected the acting operator on the booking, but got %q", booking.UpdatedByUserID)
	}
	_, err = VerifyBookingOTP(dbm, "119201", clock.Now())
	if err != nil {
		t.Errorf("expected the fresh OTP to redeem, but got: %s", err.Error())
	}

	_, err = RegenerateBookingOTP(dbm, 4242, "999999", "OP002", clock.Now())
	if !core.IsErrorKind(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for an unknown booking, but got: %v", err)
	}

	_, err = CompleteBooking(dbm, result.Booking.ID, nil, "OP001", clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	_, err = RegenerateBookingOTP(dbm, result.Booking.ID, "999999", "OP002", clock.Now())
	if !core.IsErrorKind(err, core.ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition for a completed booking, but got: %v", err)
	}
}

func TestCompleteBookingWithPayment(t *testing.T) {
	dbm, clock := setupDB(t)
	site := seedSite(t, dbm, clock.Now())
	machine := seedOnlineMachine(t, dbm, site, "M001", db.MachineTypeRotary, db.VehicleTypeTwoWheeler, 8, clock.Now())

	result := createTestBooking(t, dbm, clock, site, defaultBookingIntake(), "482913")

	clock.StepBy(2 * time.Hour)
	booking, err := CompleteBooking(dbm, result.Booking.ID, &PaymentIntake{
		Amount: 120, Method: "upi", TransactionRef: "TXN123",
	}, "OP001", clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if booking.Status != db.BookingStatusCompleted {
		t.Errorf("expected booking status %q, but got %q", db.BookingStatusCompleted, booking.Status)
	}
	if booking.EndTime == nil || !booking.EndTime.Equal(clock.Now()) {
		t.Errorf("expected endTime %s, but got %v", clock.Now(), booking.EndTime)
	}
	if booking.PaymentAmount == nil || *booking.PaymentAmount != 120 {
		t.Errorf("expected a captured payment of 120, but got %v", booking.PaymentAmount)
	}
	if booking.PaymentStatus != db.PaymentStatusCompleted || booking.PaidAt == nil {
		t.Errorf("expected a completed payment, but got %+v", booking)
	}
	if booking.CompletedByUserID != "OP001" {
		t.Errorf("expected the completing operator on the booking, but got %q", booking.CompletedByUserID)
	}

	customer := getCustomer(t, dbm, result.Customer.ID)
	if customer.TotalAmount != 120 {
		t.Errorf("expected the payment on the customer's revenue total, but got %g", customer.TotalAmount)
	}

	// completion released the vehicle from the pallet
	pallet := getPallet(t, dbm, machine, 1)
	if pallet.CurrentOccupancy != 0 || pallet.OccupiedSince != nil {
		t.Errorf("expected an empty pallet after completion, but got %+v", pallet)
	}

	_, err = CompleteBooking(dbm, result.Booking.ID, nil, "OP001", clock.Now())
	if !core.IsErrorKind(err, core.ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition on double completion, but got: %v", err)
	}
}

func TestCompleteBookingWithoutPayment(t *testing.T) {
	dbm, clock := setupDB(t)
	site := seedSite(t, dbm, clock.Now())
	machine := seedOnlineMachine(t, dbm, site, "M001", db.MachineTypeRotary, db.VehicleTypeTwoWheeler, 8, clock.Now())

	result := createTestBooking(t, dbm, clock, site, defaultBookingIntake(), "482913")

	booking, err := CompleteBooking(dbm, result.Booking.ID, nil, "OP001", clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if booking.Status != db.BookingStatusCompleted {
		t.Errorf("expected booking status %q, but got %q", db.BookingStatusCompleted, booking.Status)
	}
	if booking.PaymentAmount != nil || booking.PaymentStatus != db.PaymentStatusPending {
		t.Errorf("expected the payment to stay uncaptured, but got %+v", booking)
	}

	customer := getCustomer(t, dbm, result.Customer.ID)
	if customer.TotalAmount != 0 {
		t.Errorf("expected no revenue without a payment, but got %g", customer.TotalAmount)
	}

	pallet := getPallet(t, dbm, machine, 1)
	if pallet.CurrentOccupancy != 0 {
		t.Errorf("expected the vehicle released regardless of payment, but got occupancy %d", pallet.CurrentOccupancy)
	}
}

func TestCancelBookingReleasesPallet(t *testing.T) {
	dbm, clock := setupDB(t)
	site := seedSite(t, dbm, clock.Now())
	machine := seedOnlineMachine(t, dbm, site, "M002", db.MachineTypeRotary, db.VehicleTypeFourWheeler, 8, clock.Now())

	intake := defaultBookingIntake()
	intake.VehiclePlate = "KA05MH1234"
	intake.VehicleType = db.VehicleTypeFourWheeler
	intake.MachineNumber = "M002"
	intake.PalletNumber = 2
	result := createTestBooking(t, dbm, clock, site, intake, "482913")

	pallet := getPallet(t, dbm, machine, 2)
	if pallet.Status != db.PalletStatusOccupied {
		t.Fatalf("expected pallet 2 occupied after the booking, but got %q", pallet.Status)
	}

	booking, err := CancelBooking(dbm, result.Booking.ID, "customer left", "OP001", clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if booking.Status != db.BookingStatusCancelled {
		t.Errorf("expected booking status %q, but got %q", db.BookingStatusCancelled, booking.Status)
	}
	if !strings.Contains(booking.Notes, "customer left") {
		t.Errorf("expected the cancellation reason in the notes, but got %q", booking.Notes)
	}

	pallet = getPallet(t, dbm, machine, 2)
	if pallet.Status != db.PalletStatusAvailable || pallet.CurrentOccupancy != 0 || pallet.OccupiedSince != nil {
		t.Errorf("expected pallet 2 empty and available after cancellation, but got %+v", pallet)
	}

	_, err = CancelBooking(dbm, result.Booking.ID, "", "OP001", clock.Now())
	if !core.IsErrorKind(err, core.ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition on double cancellation, but got: %v", err)
	}
}

func TestExtendBooking(t *testing.T) {
	dbm, clock := setupDB(t)
	site := seedSite(t, dbm, clock.Now())
	seedOnlineMachine(t, dbm, site, "M001", db.MachineTypeRotary, db.VehicleTypeTwoWheeler, 8, clock.Now())

	result := createTestBooking(t, dbm, clock, site, defaultBookingIntake(), "482913")

	_, err := ExtendBooking(dbm, result.Booking.ID, 0, 0, "", "OP001", clock.Now())
	if !core.IsErrorKind(err, core.ErrValidation) {
		t.Errorf("expected ErrValidation for a zero extension, but got: %v", err)
	}

	booking, err := ExtendBooking(dbm, result.Booking.ID, 1, 30, "customer requested", "OP001", clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(booking.Notes, "extended by 1h 30m: customer requested") {
		t.Errorf("expected the extension in the notes, but got %q", booking.Notes)
	}
	// extensions never touch the OTP
	if !booking.OTPExpiresAt.Equal(result.Booking.OTPExpiresAt) {
		t.Errorf("expected the OTP expiry unchanged at %s, but got %s", result.Booking.OTPExpiresAt, booking.OTPExpiresAt)
	}

	_, err = CancelBooking(dbm, result.Booking.ID, "", "OP001", clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	_, err = ExtendBooking(dbm, result.Booking.ID, 1, 0, "", "OP001", clock.Now())
	if !core.IsErrorKind(err, core.ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition for a cancelled booking, but got: %v", err)
	}
}
