// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package datamodel

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/gofrs/uuid/v5"
	"github.com/sapcc/go-bits/must"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/parkhaus/internal/core"
	"github.com/sapcc/parkhaus/internal/db"
)

// CustomerIntake is the operator-supplied input for a new customer.
type CustomerIntake struct {
	Name     string
	Phone    string
	Email    string
	Vehicles []VehicleIntake
}

// VehicleIntake is the operator-supplied input for a vehicle record.
type VehicleIntake struct {
	// UUID is generated by the caller so that tests can pin it; if empty, a
	// random one is chosen.
	UUID  string
	Plate string
	Type  db.VehicleType
	Make  string
	Model string
	Color string
}

func (intake CustomerIntake) validate() error {
	var v core.Validator
	v.CheckRequired("name", intake.Name)
	v.CheckMatch("name", intake.Name, core.NameRx, "made of letters and spaces")
	v.CheckRequired("phoneNumber", intake.Phone)
	v.CheckMatch("phoneNumber", intake.Phone, core.PhoneRx, "a 10-digit Indian mobile number")
	v.CheckMatch("email", intake.Email, core.EmailRx, "a valid email address")
	for idx, vehicle := range intake.Vehicles {
		field := fmt.Sprintf("vehicles[%d]", idx)
		plate := core.NormalizePlate(vehicle.Plate)
		v.CheckRequired(field+".vehicleNumber", plate)
		v.CheckMatch(field+".vehicleNumber", plate, core.VehiclePlateRx, "a valid vehicle registration number")
		v.CheckRequired(field+".vehicleType", string(vehicle.Type))
		v.CheckOneOf(field+".vehicleType", string(vehicle.Type),
			string(db.VehicleTypeTwoWheeler), string(db.VehicleTypeFourWheeler))
	}
	return v.AsError()
}

var (
	activeCustomerByIDQuery = sqlext.SimplifyWhitespace(`
		SELECT * FROM customers WHERE id = $1 AND status = 'active' FOR UPDATE
	`)

	activeVehicleCountQuery = sqlext.SimplifyWhitespace(`
		SELECT COUNT(*) FROM vehicles WHERE customer_id = $1 AND plate = $2 AND is_active
	`)

	activeBookingsForCustomerQuery = sqlext.SimplifyWhitespace(`
		SELECT COUNT(*) FROM bookings WHERE customer_id = $1 AND status = 'active'
	`)

	activeBookingsForVehicleQuery = sqlext.SimplifyWhitespace(`
		SELECT COUNT(*) FROM bookings WHERE vehicle_number = $1 AND status = 'active'
	`)
)

// CreateCustomer creates a customer with the given vehicles attached.
// The phone number must not be in use by another active customer.
func CreateCustomer(dbm *gorp.DbMap, intake CustomerIntake, actor string, now time.Time) (db.Customer, error) {
	err := intake.validate()
	if err != nil {
		return db.Customer{}, err
	}

	tx, err := dbm.Begin()
	if err != nil {
		return db.Customer{}, err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	var existing db.Customer
	err = tx.SelectOne(&existing, activeCustomerByPhoneQuery, intake.Phone)
	if err == nil {
		return db.Customer{}, core.Errorf(core.ErrConflict, "a customer with phone number %s already exists", intake.Phone)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return db.Customer{}, fmt.Errorf("while checking for duplicate phone number: %w", err)
	}

	customer, err := createCustomerRecord(tx, intake, actor, now)
	if err != nil {
		return db.Customer{}, err
	}
	for _, vehicle := range intake.Vehicles {
		err = attachVehicleIfMissing(tx, customer, db.Vehicle{
			UUID:          vehicle.UUID,
			Plate:         core.NormalizePlate(vehicle.Plate),
			Type:          vehicle.Type,
			Make:          core.SanitizeString(vehicle.Make),
			Model:         core.SanitizeString(vehicle.Model),
			Color:         core.SanitizeString(vehicle.Color),
			AddedByUserID: actor,
		}, now)
		if err != nil {
			return db.Customer{}, err
		}
	}
	return customer, tx.Commit()
}

// createCustomerRecord inserts the bare customer row. Vehicle records and
// duplicate-phone checking are up to the caller.
func createCustomerRecord(dbi db.Interface, intake CustomerIntake, actor string, now time.Time) (db.Customer, error) {
	firstName, lastName := splitCustomerName(core.SanitizeString(intake.Name))
	customer := db.Customer{
		Code:            core.CustomerCode(now),
		FirstName:       firstName,
		LastName:        lastName,
		Phone:           intake.Phone,
		Email:           intake.Email,
		Status:          db.CustomerStatusActive,
		CreatedByUserID: actor,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := dbi.Insert(&customer)
	if err != nil {
		return db.Customer{}, fmt.Errorf("while creating customer record: %w", err)
	}
	return customer, nil
}

// splitCustomerName splits a full name into the stored first/last parts.
// Everything after the first space goes into the last name.
func splitCustomerName(name string) (firstName, lastName string) {
	firstName, lastName, _ = strings.Cut(strings.TrimSpace(name), " ")
	return firstName, strings.TrimSpace(lastName)
}

// attachVehicleIfMissing adds a vehicle to the customer unless an active
// record with the same plate already exists.
func attachVehicleIfMissing(dbi db.Interface, customer db.Customer, vehicle db.Vehicle, now time.Time) error {
	var count int
	err := dbi.QueryRow(activeVehicleCountQuery, customer.ID, vehicle.Plate).Scan(&count)
	if err != nil {
		return fmt.Errorf("while checking vehicles of customer %s: %w", customer.Code, err)
	}
	if count > 0 {
		return nil
	}

	if vehicle.UUID == "" {
		vehicle.UUID = must.Return(uuid.NewV4()).String()
	}
	vehicle.CustomerID = customer.ID
	vehicle.IsActive = true
	vehicle.AddedAt = now
	err = dbi.Insert(&vehicle)
	if err != nil {
		return fmt.Errorf("while attaching vehicle %s to customer %s: %w", vehicle.Plate, customer.Code, err)
	}
	return nil
}

// findActiveCustomerForUpdate locks the customer row for a mutation.
func findActiveCustomerForUpdate(dbi db.Interface, customerID db.CustomerID) (db.Customer, error) {
	var customer db.Customer
	err := dbi.SelectOne(&customer, activeCustomerByIDQuery, customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Customer{}, core.Errorf(core.ErrNotFound, "no such customer")
	}
	if err != nil {
		return db.Customer{}, fmt.Errorf("while loading customer %d: %w", customerID, err)
	}
	return customer, nil
}

// AddVehicle registers an additional vehicle for an existing customer.
// Unlike the resolve path during booking creation, a duplicate plate is
// reported as an error here, since the operator explicitly asked for it.
func AddVehicle(dbm *gorp.DbMap, customerID db.CustomerID, intake VehicleIntake, actor string, now time.Time) (db.Vehicle, error) {
	var v core.Validator
	plate := core.NormalizePlate(intake.Plate)
	v.CheckRequired("vehicleNumber", plate)
	v.CheckMatch("vehicleNumber", plate, core.VehiclePlateRx, "a valid vehicle registration number")
	v.CheckRequired("vehicleType", string(intake.Type))
	v.CheckOneOf("vehicleType", string(intake.Type),
		string(db.VehicleTypeTwoWheeler), string(db.VehicleTypeFourWheeler))
	err := v.AsError()
	if err != nil {
		return db.Vehicle{}, err
	}

	tx, err := dbm.Begin()
	if err != nil {
		return db.Vehicle{}, err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	customer, err := findActiveCustomerForUpdate(tx, customerID)
	if err != nil {
		return db.Vehicle{}, err
	}
	var count int
	err = tx.QueryRow(activeVehicleCountQuery, customer.ID, plate).Scan(&count)
	if err != nil {
		return db.Vehicle{}, fmt.Errorf("while checking vehicles of customer %s: %w", customer.Code, err)
	}
	if count > 0 {
		return db.Vehicle{}, core.Errorf(core.ErrConflict, "vehicle %s is already registered for this customer", plate)
	}

	vehicle := db.Vehicle{
		UUID:          intake.UUID,
		CustomerID:    customer.ID,
		Plate:         plate,
		Type:          intake.Type,
		Make:          core.SanitizeString(intake.Make),
		Model:         core.SanitizeString(intake.Model),
		Color:         core.SanitizeString(intake.Color),
		IsActive:      true,
		AddedByUserID: actor,
		AddedAt:       now,
	}
	if vehicle.UUID == "" {
		vehicle.UUID = must.Return(uuid.NewV4()).String()
	}
	err = tx.Insert(&vehicle)
	if err != nil {
		return db.Vehicle{}, fmt.Errorf("while attaching vehicle %s to customer %s: %w", plate, customer.Code, err)
	}
	return vehicle, tx.Commit()
}

// RemoveVehicle soft-deletes a vehicle record. A vehicle with an active
// booking cannot be removed.
func RemoveVehicle(dbm *gorp.DbMap, customerID db.CustomerID, vehicleUUID string, now time.Time) error {
	tx, err := dbm.Begin()
	if err != nil {
		return err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	var vehicle db.Vehicle
	err = tx.SelectOne(&vehicle,
		`SELECT * FROM vehicles WHERE uuid = $1 AND customer_id = $2 AND is_active`, vehicleUUID, customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Errorf(core.ErrNotFound, "no such vehicle")
	}
	if err != nil {
		return fmt.Errorf("while loading vehicle %s: %w", vehicleUUID, err)
	}

	var count int
	err = tx.QueryRow(activeBookingsForVehicleQuery, vehicle.Plate).Scan(&count)
	if err != nil {
		return fmt.Errorf("while checking bookings for vehicle %s: %w", vehicle.Plate, err)
	}
	if count > 0 {
		return core.Errorf(core.ErrConflict, "vehicle %s has an active booking", vehicle.Plate)
	}

	vehicle.IsActive = false
	vehicle.DeactivatedAt = &now
	_, err = tx.Update(&vehicle)
	if err != nil {
		return fmt.Errorf("while removing vehicle %s: %w", vehicle.Plate, err)
	}
	return tx.Commit()
}

// SoftDeleteCustomer retires a customer record. The record is kept for the
// booking history, but the phone number becomes available again for new
// customers. A customer with active bookings cannot be deleted.
func SoftDeleteCustomer(dbm *gorp.DbMap, customerID db.CustomerID, reason string, now time.Time) (db.Customer, error) {
	tx, err := dbm.Begin()
	if err != nil {
		return db.Customer{}, err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	customer, err := findActiveCustomerForUpdate(tx, customerID)
	if err != nil {
		return db.Customer{}, err
	}

	var count int
	err = tx.QueryRow(activeBookingsForCustomerQuery, customer.ID).Scan(&count)
	if err != nil {
		return db.Customer{}, fmt.Errorf("while checking bookings of customer %s: %w", customer.Code, err)
	}
	if count > 0 {
		return db.Customer{}, core.Errorf(core.ErrConflict, "customer %s has active bookings", customer.Code)
	}

	customer.Status = db.CustomerStatusInactive
	customer.DeletedAt = &now
	customer.DeleteReason = core.SanitizeString(reason)
	customer.UpdatedAt = now
	_, err = tx.Update(&customer)
	if err != nil {
		return db.Customer{}, fmt.Errorf("while retiring customer %s: %w", customer.Code, err)
	}
	return customer, tx.Commit()
}
