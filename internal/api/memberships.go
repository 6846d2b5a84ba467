// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/httpapi"

	"github.com/sapcc/parkhaus/internal/core"
	"github.com/sapcc/parkhaus/internal/datamodel"
	"github.com/sapcc/parkhaus/internal/db"
)

// membershipIntakePayload is the request body shared by the operator-facing
// and the public membership purchase endpoints.
type membershipIntakePayload struct {
	MembershipType      db.MembershipType `json:"membershipType"`
	TermMonths          uint64            `json:"termMonths"`
	CoveredVehicleTypes []db.VehicleType  `json:"coveredVehicleTypes"`
	Payment             *struct {
		Amount         *float64 `json:"amount"`
		Method         string   `json:"method"`
		TransactionRef string   `json:"transactionRef"`
	} `json:"payment"`
}

func (m membershipIntakePayload) intake() datamodel.MembershipIntake {
	intake := datamodel.MembershipIntake{
		Type:                m.MembershipType,
		TermMonths:          m.TermMonths,
		CoveredVehicleTypes: m.CoveredVehicleTypes,
	}
	if m.Payment != nil {
		intake.Amount = m.Payment.Amount
		intake.PaymentMethod = m.Payment.Method
		intake.TransactionRef = core.SanitizeString(m.Payment.TransactionRef)
	}
	return intake
}

func (p *v1Provider) membershipIssuer() datamodel.MembershipIssuer {
	return datamodel.MembershipIssuer{
		GenerateNumber: p.generateMembershipNumber,
		GeneratePIN:    p.generateMembershipPIN,
	}
}

// CreateMembership handles POST /v1/customers/:id/membership.
func (p *v1Provider) CreateMembership(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/customers/:id/membership")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	customer := p.FindCustomerFromRequest(w, r)
	if customer == nil {
		return
	}

	var parseTarget membershipIntakePayload
	if !p.RequireJSON(w, r, &parseTarget) {
		return
	}

	now := p.timeNow()
	membership, err := datamodel.CreateMembership(p.DB, p.Network, customer.ID,
		parseTarget.intake(), p.membershipIssuer(), token.User.OperatorID, now)
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.CreateAction, http.StatusCreated, membershipEventTarget{
		CustomerCode: customer.Code,
		Membership:   membership,
	})

	// fresh credentials only appear in the direct response to their issuance;
	// a coverage extension keeps the old ones and does not repeat them
	issuedNow := membership.IssuedAt.Equal(now)
	payload, err := renderMembership(membership, issuedNow, now)
	if p.respondError(w, err) {
		return
	}
	message := "membership created"
	if !issuedNow {
		message = "membership coverage extended"
	}
	p.respondData(w, http.StatusCreated, message, payload)
}

// DeactivateMembership handles DELETE /v1/customers/:id/membership.
func (p *v1Provider) DeactivateMembership(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/customers/:id/membership")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	customer := p.FindCustomerFromRequest(w, r)
	if customer == nil {
		return
	}

	membership, err := datamodel.DeactivateMembership(p.DB, customer.ID)
	if p.respondError(w, err) {
		return
	}
	p.auditChange(r, token, cadf.DeleteAction, http.StatusOK, membershipEventTarget{
		CustomerCode: customer.Code,
		Membership:   membership,
	})
	p.respondData(w, http.StatusOK, "membership deactivated", nil)
}

// ListMembershipPayments handles GET /v1/customers/:id/memberships.
//
// This returns the append-only payment ledger, i.e. the purchase history,
// not the current membership state (which is part of the customer resource).
func (p *v1Provider) ListMembershipPayments(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/customers/:id/memberships")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}
	customer := p.FindCustomerFromRequest(w, r)
	if customer == nil {
		return
	}

	var payments []db.MembershipPayment
	_, err := p.DB.Select(&payments,
		`SELECT * FROM membership_payments WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`, customer.ID)
	if p.respondError(w, err) {
		return
	}

	payloads := make([]membershipPaymentPayload, len(payments))
	for idx, payment := range payments {
		payloads[idx], err = renderMembershipPayment(payment)
		if p.respondError(w, err) {
			return
		}
	}
	p.respondData(w, http.StatusOK, "membership payments retrieved", payloads)
}

// membershipValidationPayload is the response of the credential check
// endpoints. The customer block is only filled for operator-facing checks.
type membershipValidationPayload struct {
	Valid      bool                     `json:"valid"`
	Customer   *membershipHolderPayload `json:"customer,omitempty"`
	Membership *membershipPayload       `json:"membership,omitempty"`
}

type membershipHolderPayload struct {
	CustomerCode string `json:"customerCode"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
}

type membershipCredentialsPayload struct {
	MembershipNumber string          `json:"membershipNumber"`
	PIN              string          `json:"pin"`
	VehicleType      *db.VehicleType `json:"vehicleType"`
}

func (p *v1Provider) checkMembershipCredentials(w http.ResponseWriter, r *http.Request) (db.Customer, db.Membership, bool, bool) {
	var parseTarget membershipCredentialsPayload
	if !p.RequireJSON(w, r, &parseTarget) {
		return db.Customer{}, db.Membership{}, false, false
	}

	var v core.Validator
	v.CheckRequired("membershipNumber", parseTarget.MembershipNumber)
	v.CheckMatch("membershipNumber", parseTarget.MembershipNumber, core.MembershipNumberRx, "a 6-digit number")
	v.CheckRequired("pin", parseTarget.PIN)
	v.CheckMatch("pin", parseTarget.PIN, core.PINRx, "a 4-digit PIN")
	if parseTarget.VehicleType != nil {
		v.CheckOneOf("vehicleType", string(*parseTarget.VehicleType),
			string(db.VehicleTypeTwoWheeler), string(db.VehicleTypeFourWheeler))
	}
	if p.respondError(w, v.AsError()) {
		return db.Customer{}, db.Membership{}, false, false
	}

	customer, membership, valid, err := datamodel.ValidateMembership(p.DB,
		parseTarget.MembershipNumber, parseTarget.PIN, parseTarget.VehicleType, p.timeNow())
	if p.respondError(w, err) {
		return db.Customer{}, db.Membership{}, false, false
	}
	return customer, membership, valid, true
}

// ValidateMembership handles POST /v1/customers/validate-membership.
//
// A failed check is a regular response with valid=false, not an error; the
// operator asking is the expected way to find out.
func (p *v1Provider) ValidateMembership(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/customers/validate-membership")
	token := p.CheckToken(r)
	if !token.Require(w, "api:access") {
		return
	}

	customer, membership, valid, ok := p.checkMembershipCredentials(w, r)
	if !ok {
		return
	}
	if !valid {
		p.respondData(w, http.StatusOK, "membership invalid", membershipValidationPayload{Valid: false})
		return
	}

	rendered, err := renderMembership(membership, false, p.timeNow())
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusOK, "membership valid", membershipValidationPayload{
		Valid: true,
		Customer: &membershipHolderPayload{
			CustomerCode: customer.Code,
			Name:         customer.FullName(),
			Phone:        customer.Phone,
		},
		Membership: &rendered,
	})
}

// ValidateMembershipPublic handles POST /v1/public/membership/validate.
//
// Unauthenticated: kiosks and the customer app check credentials here, so the
// response carries the coverage and expiry but no customer identity.
func (p *v1Provider) ValidateMembershipPublic(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/public/membership/validate")

	_, membership, valid, ok := p.checkMembershipCredentials(w, r)
	if !ok {
		return
	}
	if !valid {
		p.respondData(w, http.StatusOK, "membership invalid", membershipValidationPayload{Valid: false})
		return
	}

	rendered, err := renderMembership(membership, false, p.timeNow())
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusOK, "membership valid", membershipValidationPayload{
		Valid:      true,
		Membership: &rendered,
	})
}

// publicActor is the audit stamp recorded on rows created through the
// unauthenticated endpoints.
const publicActor = "public"

// PurchaseMembership handles POST /v1/public/membership/purchase.
//
// Unauthenticated self-service purchase. The customer is resolved by phone
// and created on first contact; unlike booking creation, an existing
// customer's name is not overwritten from public input.
func (p *v1Provider) PurchaseMembership(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/public/membership/purchase")

	var parseTarget struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
		Email string `json:"email"`
		membershipIntakePayload
	}
	if !p.RequireJSON(w, r, &parseTarget) {
		return
	}

	var v core.Validator
	v.CheckRequired("name", parseTarget.Name)
	v.CheckMatch("name", parseTarget.Name, core.NameRx, "letters and spaces only")
	v.CheckMaxLength("name", parseTarget.Name, 100)
	v.CheckRequired("phone", parseTarget.Phone)
	v.CheckMatch("phone", parseTarget.Phone, core.PhoneRx, "a 10-digit Indian mobile number")
	v.CheckMatch("email", parseTarget.Email, core.EmailRx, "a valid email address")
	if p.respondError(w, v.AsError()) {
		return
	}

	now := p.timeNow()
	customer, err := p.findOrCreateCustomerByPhone(parseTarget.Name, parseTarget.Phone, parseTarget.Email, now)
	if p.respondError(w, err) {
		return
	}

	membership, err := datamodel.CreateMembership(p.DB, p.Network, customer.ID,
		parseTarget.intake(), p.membershipIssuer(), publicActor, now)
	if p.respondError(w, err) {
		return
	}

	// the purchaser is the credential holder, so a fresh PIN goes into the
	// response; a coverage extension keeps the credentials they already have
	issuedNow := membership.IssuedAt.Equal(now)
	payload, err := renderMembership(membership, issuedNow, now)
	if p.respondError(w, err) {
		return
	}
	message := "membership created"
	if !issuedNow {
		message = "membership coverage extended"
	}
	p.respondData(w, http.StatusCreated, message, struct {
		CustomerCode string            `json:"customerCode"`
		Membership   membershipPayload `json:"membership"`
	}{
		CustomerCode: customer.Code,
		Membership:   payload,
	})
}

func (p *v1Provider) findOrCreateCustomerByPhone(name, phone, email string, now time.Time) (db.Customer, error) {
	var customer db.Customer
	err := p.DB.SelectOne(&customer,
		`SELECT * FROM customers WHERE phone = $1 AND status = 'active'`, phone)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return db.Customer{}, err
	}
	return datamodel.CreateCustomer(p.DB, datamodel.CustomerIntake{
		Name:  name,
		Phone: phone,
		Email: email,
	}, publicActor, now)
}
