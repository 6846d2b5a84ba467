// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package datamodel

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/parkhaus/internal/core"
	"github.com/sapcc/parkhaus/internal/db"
)

// maxMembershipNumberAttempts bounds the collision retry loop during number
// generation. The keyspace has 900000 values, so five misses in a row mean
// something is very wrong.
const maxMembershipNumberAttempts = 5

// MembershipIntake is the input for a membership purchase.
type MembershipIntake struct {
	Type                db.MembershipType
	TermMonths          uint64 // 0 = use the plan's term
	CoveredVehicleTypes []db.VehicleType
	Amount              *float64 // nil = use the plan's price
	PaymentMethod       string
	TransactionRef      string
}

// MembershipIssuer bundles the credential generators for membership issuance.
// Tests substitute deterministic ones.
type MembershipIssuer struct {
	GenerateNumber func() string
	GeneratePIN    func() string
}

var (
	membershipByCustomerQuery = sqlext.SimplifyWhitespace(`
		SELECT * FROM memberships WHERE customer_id = $1
	`)

	activeMembershipNumberCountQuery = sqlext.SimplifyWhitespace(`
		SELECT COUNT(*) FROM memberships WHERE membership_number = $1 AND is_active
	`)

	membershipByCredentialsQuery = sqlext.SimplifyWhitespace(`
		SELECT * FROM memberships WHERE membership_number = $1 AND pin = $2 AND is_active
	`)
)

func (intake MembershipIntake) validate(network *core.Network) error {
	var v core.Validator
	v.CheckRequired("membershipType", string(intake.Type))
	if _, exists := network.PlanFor(intake.Type); intake.Type != "" && !exists {
		v.Reject("membershipType", string(intake.Type), "membershipType must be one of: monthly, quarterly, yearly, premium")
	}
	if len(intake.CoveredVehicleTypes) == 0 {
		v.Reject("coveredVehicleTypes", "", "at least one vehicle class must be covered")
	}
	for _, vt := range intake.CoveredVehicleTypes {
		v.CheckOneOf("coveredVehicleTypes", string(vt),
			string(db.VehicleTypeTwoWheeler), string(db.VehicleTypeFourWheeler))
	}
	if intake.Amount != nil && *intake.Amount <= 0 {
		v.Reject("amount", fmt.Sprintf("%g", *intake.Amount), "amount must be positive")
	}
	v.CheckOneOf("paymentMethod", intake.PaymentMethod, "cash", "card", "upi")
	return v.AsError()
}

// CreateMembership sells a membership to a customer. Depending on what the
// customer already holds, this either extends the existing membership's
// coverage or issues fresh credentials:
//
//   - The requested coverage adds nothing to a live membership's coverage:
//     there is nothing to sell, so the purchase is rejected.
//   - The requested coverage adds vehicle classes to a live membership: the
//     coverage is widened to the union in place. Number, PIN and expiry stay.
//   - No live membership (none yet, expired, or deactivated): fresh
//     credentials with a fresh term.
//
// Every successful purchase appends a row to the payment ledger.
func CreateMembership(dbm *gorp.DbMap, network *core.Network, customerID db.CustomerID, intake MembershipIntake, issuer MembershipIssuer, actor string, now time.Time) (db.Membership, error) {
	err := intake.validate(network)
	if err != nil {
		return db.Membership{}, err
	}
	if intake.PaymentMethod == "" {
		intake.PaymentMethod = "cash"
	}
	plan, _ := network.PlanFor(intake.Type)
	termMonths := intake.TermMonths
	if termMonths == 0 {
		termMonths = plan.TermMonths
	}
	amount := plan.Price
	if intake.Amount != nil {
		amount = *intake.Amount
	}
	requestedCoverage := normalizeCoverage(intake.CoveredVehicleTypes)

	tx, err := dbm.Begin()
	if err != nil {
		return db.Membership{}, err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	// the customer lock serializes concurrent purchases for the same customer
	customer, err := findActiveCustomerForUpdate(tx, customerID)
	if err != nil {
		return db.Membership{}, err
	}

	var (
		membership    db.Membership
		hasMembership = true
	)
	err = tx.SelectOne(&membership, membershipByCustomerQuery, customer.ID)
	if errors.Is(err, sql.ErrNoRows) {
		hasMembership = false
	} else if err != nil {
		return db.Membership{}, fmt.Errorf("while loading membership of customer %s: %w", customer.Code, err)
	}

	if hasMembership && membership.IsLive(now) {
		existingCoverage, err := core.VehicleTypesFromJSON(membership.CoveredVehicleTypes)
		if err != nil {
			return db.Membership{}, fmt.Errorf("while reading coverage of membership %s: %w", membership.Number, err)
		}
		if coverageIsSubsetOf(requestedCoverage, existingCoverage) {
			return db.Membership{}, core.Errorf(core.ErrConflict,
				"membership %s already covers the requested vehicle classes", membership.Number)
		}
		// widen to the union in place; the customer keeps their credentials and expiry
		mergedCoverage := normalizeCoverage(append(existingCoverage, requestedCoverage...))
		membership.CoveredVehicleTypes = core.RenderJSONColumn(mergedCoverage)
		_, err = tx.Update(&membership)
		if err != nil {
			return db.Membership{}, fmt.Errorf("while widening membership %s: %w", membership.Number, err)
		}
		err = appendMembershipPayment(tx, customer, membership, intake.Type, amount, intake, actor, now)
		if err != nil {
			return db.Membership{}, err
		}
		return membership, tx.Commit()
	}

	number, err := findFreeMembershipNumber(tx, issuer)
	if err != nil {
		return db.Membership{}, err
	}
	membership = db.Membership{
		ID:                  membership.ID, // zero for a first-time membership
		CustomerID:          customer.ID,
		Number:              number,
		PIN:                 issuer.GeneratePIN(),
		Type:                intake.Type,
		CoveredVehicleTypes: core.RenderJSONColumn(requestedCoverage),
		IssuedAt:            now,
		ExpiresAt:           now.AddDate(0, int(termMonths), 0),
		ValidityMonths:      termMonths,
		IsActive:            true,
	}
	if hasMembership {
		_, err = tx.Update(&membership)
	} else {
		err = tx.Insert(&membership)
	}
	if err != nil {
		return db.Membership{}, fmt.Errorf("while storing membership %s: %w", number, err)
	}

	err = appendMembershipPayment(tx, customer, membership, intake.Type, amount, intake, actor, now)
	if err != nil {
		return db.Membership{}, err
	}
	return membership, tx.Commit()
}

// findFreeMembershipNumber draws candidate numbers until one is not taken by
// an active membership. Numbers of expired or deactivated memberships are
// fair game for reuse.
func findFreeMembershipNumber(dbi db.Interface, issuer MembershipIssuer) (string, error) {
	for range maxMembershipNumberAttempts {
		number := issuer.GenerateNumber()
		var count int
		err := dbi.QueryRow(activeMembershipNumberCountQuery, number).Scan(&count)
		if err != nil {
			return "", fmt.Errorf("while checking membership number for uniqueness: %w", err)
		}
		if count == 0 {
			return number, nil
		}
	}
	return "", core.Errorf(core.ErrInternal,
		"could not find a free membership number in %d attempts", maxMembershipNumberAttempts)
}

// appendMembershipPayment writes the ledger row for a membership purchase.
// The ledger deliberately denormalizes the customer identity: it must stay
// readable after the customer record is retired.
func appendMembershipPayment(dbi db.Interface, customer db.Customer, membership db.Membership, purchasedType db.MembershipType, amount float64, intake MembershipIntake, actor string, now time.Time) error {
	payment := db.MembershipPayment{
		CustomerID:          customer.ID,
		CustomerName:        customer.FullName(),
		CustomerPhone:       customer.Phone,
		MembershipNumber:    membership.Number,
		MembershipType:      purchasedType,
		Amount:              amount,
		Method:              intake.PaymentMethod,
		TransactionRef:      intake.TransactionRef,
		StartDate:           now,
		ExpiryDate:          membership.ExpiresAt,
		ValidityMonths:      membership.ValidityMonths,
		CoveredVehicleTypes: membership.CoveredVehicleTypes,
		Status:              db.PaymentStatusCompleted,
		CreatedByUserID:     actor,
		CreatedAt:           now,
	}
	err := dbi.Insert(&payment)
	if err != nil {
		return fmt.Errorf("while recording membership payment for %s: %w", membership.Number, err)
	}
	return nil
}

// normalizeCoverage sorts and deduplicates a vehicle class list, so that
// coverage comparisons and the stored JSON are order-independent.
func normalizeCoverage(types []db.VehicleType) []db.VehicleType {
	result := slices.Clone(types)
	slices.Sort(result)
	return slices.Compact(result)
}

func coverageIsSubsetOf(subset, superset []db.VehicleType) bool {
	for _, vt := range subset {
		if !core.CoversVehicleType(superset, vt) {
			return false
		}
	}
	return true
}

// ValidateMembership checks a number/PIN pair against the live memberships.
// When the credentials match nothing (or the membership is expired, or the
// given vehicle class is not covered), it reports false with no error; errors
// are reserved for the database failing.
func ValidateMembership(dbi db.Interface, number, pin string, forVehicleType *db.VehicleType, now time.Time) (db.Customer, db.Membership, bool, error) {
	var membership db.Membership
	err := dbi.SelectOne(&membership, membershipByCredentialsQuery, number, pin)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Customer{}, db.Membership{}, false, nil
	}
	if err != nil {
		return db.Customer{}, db.Membership{}, false, fmt.Errorf("while looking up membership %s: %w", number, err)
	}
	if !membership.IsLive(now) {
		return db.Customer{}, db.Membership{}, false, nil
	}

	if forVehicleType != nil {
		coverage, err := core.VehicleTypesFromJSON(membership.CoveredVehicleTypes)
		if err != nil {
			return db.Customer{}, db.Membership{}, false, fmt.Errorf("while reading coverage of membership %s: %w", number, err)
		}
		if !core.CoversVehicleType(coverage, *forVehicleType) {
			return db.Customer{}, db.Membership{}, false, nil
		}
	}

	var customer db.Customer
	err = dbi.SelectOne(&customer, `SELECT * FROM customers WHERE id = $1`, membership.CustomerID)
	if err != nil {
		return db.Customer{}, db.Membership{}, false, fmt.Errorf("while loading customer of membership %s: %w", number, err)
	}
	return customer, membership, true, nil
}

// DeactivateMembership takes a customer's membership out of service. The
// payment ledger is untouched.
func DeactivateMembership(dbm *gorp.DbMap, customerID db.CustomerID) (db.Membership, error) {
	tx, err := dbm.Begin()
	if err != nil {
		return db.Membership{}, err
	}
	defer sqlext.RollbackUnlessCommitted(tx)

	var membership db.Membership
	err = tx.SelectOne(&membership, membershipByCustomerQuery, customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Membership{}, core.Errorf(core.ErrNotFound, "this customer does not have a membership")
	}
	if err != nil {
		return db.Membership{}, fmt.Errorf("while loading membership of customer %d: %w", customerID, err)
	}

	membership.IsActive = false
	_, err = tx.Update(&membership)
	if err != nil {
		return db.Membership{}, fmt.Errorf("while deactivating membership %s: %w", membership.Number, err)
	}
	return membership, tx.Commit()
}
