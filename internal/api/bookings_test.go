// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/sapcc/go-bits/assert"
)

func TestCreateBooking(t *testing.T) {
	s := setupTest(t, "fixtures/start-data.sql")

	// the fixture customer is matched by phone number
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/v1/bookings",
		Header: bearer("OP002"),
		Body: assert.JSONObject{
			"customerName":  "Asha Rao",
			"phoneNumber":   "9876543210",
			"vehicleNumber": "KA01AB1001",
			"vehicleType":   "two-wheeler",
			"machineNumber": "M001",
			"palletNumber":  1,
		},
		ExpectStatus: http.StatusCreated,
		ExpectBody: assert.JSONObject{
			"success": true,
			"message": "booking created",
			"data": assert.JSONObject{
				"id":            1,
				"bookingNumber": "BKTW00000000",
				"siteId":        1,
				"customerId":    1,
				"customerName":  "Asha Rao",
				"phoneNumber":   "9876543210",
				"vehicleNumber": "KA01AB1001",
				"vehicleType":   "two-wheeler",
				"machineNumber": "M001",
				"palletNumber":  1,
				"status":        "active",
				"startTime":     "1970-01-01T00:00:00Z",
				"otp": assert.JSONObject{
					"code":      "111111",
					"expiresAt": "1970-01-01T00:30:00Z",
					"isUsed":    false,
				},
				"createdBy": "OP002",
				"updatedBy": "OP002",
				"createdAt": "1970-01-01T00:00:00Z",
				"updatedAt": "1970-01-01T00:00:00Z",
			},
			"timestamp": "1970-01-01T00:00:00Z",
		},
	}.Check(t, s.Handler)

	// the vehicle was placed on the pallet as a side effect
	occupantBooking, err := s.DB.SelectStr(`SELECT booking_number FROM pallet_occupants WHERE pallet_id = 1`)
	if err != nil {
		t.Fatal(err)
	}
	if occupantBooking != "BKTW00000000" {
		t.Errorf("expected the booking's vehicle on pallet 1, but found occupant %q", occupantBooking)
	}

	// an unknown phone number creates a customer record on the fly
	s.Clock.StepBy(1 * time.Minute)
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/v1/bookings",
		Header: bearer("OP002"),
		Body: assert.JSONObject{
			"customerName":  "Ravi Kumar",
			"phoneNumber":   "9123456780",
			"email":         "ravi.kumar@example.com",
			"vehicleNumber": "KA05CD2002",
			"vehicleType":   "four-wheeler",
			"machineNumber": "M002",
			"palletNumber":  101,
		},
		ExpectStatus: http.StatusCreated,
		ExpectBody: assert.JSONObject{
			"success": true,
			"message": "booking created for new customer",
			"data": assert.JSONObject{
				"id":            2,
				"bookingNumber": "BKFW00060000",
				"siteId":        1,
				"customerId":    2,
				"customerName":  "Ravi Kumar",
				"phoneNumber":   "9123456780",
				"vehicleNumber": "KA05CD2002",
				"vehicleType":   "four-wheeler",
				"machineNumber": "M002",
				"palletNumber":  101,
				"status":        "active",
				"startTime":     "1970-01-01T00:01:00Z",
				"otp": assert.JSONObject{
					"code":      "111112",
					"expiresAt": "1970-01-01T00:31:00Z",
					"isUsed":    false,
				},
				"createdBy": "OP002",
				"updatedBy": "OP002",
				"createdAt": "1970-01-01T00:01:00Z",
				"updatedAt": "1970-01-01T00:01:00Z",
			},
			"timestamp": "1970-01-01T00:01:00Z",
		},
	}.Check(t, s.Handler)

	customerCode, err := s.DB.SelectStr(`SELECT code FROM customers WHERE id = 2`)
	if err != nil {
		t.Fatal(err)
	}
	if customerCode != "CUST060000" {
		t.Errorf("expected a generated customer code, but got %q", customerCode)
	}
	vehicleUUID, err := s.DB.SelectStr(`SELECT uuid FROM vehicles WHERE customer_id = 2`)
	if err != nil {
		t.Fatal(err)
	}
	if vehicleUUID != "vehicle-2" {
		t.Errorf("expected the vehicle attached to the new customer, but got uuid %q", vehicleUUID)
	}

	// a different spelling of the name updates the customer record
	s.Clock.StepBy(1 * time.Minute)
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/v1/bookings",
		Header: bearer("OP002"),
		Body: assert.JSONObject{
			"customerName":  "Asha R",
			"phoneNumber":   "9876543210",
			"vehicleNumber": "KA01AB1001",
			"vehicleType":   "two-wheeler",
			"machineNumber": "M001",
			"palletNumber":  2,
		},
		ExpectStatus: http.StatusCreated,
		ExpectBody: assert.JSONObject{
			"success": true,
			"message": "booking created (customer name updated)",
			"data": assert.JSONObject{
				"id":            3,
				"bookingNumber": "BKTW00120000",
				"siteId":        1,
				"customerId":    1,
				"customerName":  "Asha R",
				"phoneNumber":   "9876543210",
				"vehicleNumber": "KA01AB1001",
				"vehicleType":   "two-wheeler",
				"machineNumber": "M001",
				"palletNumber":  2,
				"status":        "active",
				"startTime":     "1970-01-01T00:02:00Z",
				"otp": assert.JSONObject{
					"code":      "111113",
					"expiresAt": "1970-01-01T00:32:00Z",
					"isUsed":    false,
				},
				"createdBy": "OP002",
				"updatedBy": "OP002",
				"createdAt": "1970-01-01T00:02:00Z",
				"updatedAt": "1970-01-01T00:02:00Z",
			},
			"timestamp": "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)

	// all input problems are reported in one go
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/bookings",
		Header:       bearer("OP002"),
		Body:         assert.JSONObject{},
		ExpectStatus: http.StatusUnprocessableEntity,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "validation failed",
			"errorCode": "VALIDATION",
			"errors": []assert.JSONObject{
				{"field": "customerName", "message": "customerName is required"},
				{"field": "phoneNumber", "message": "phoneNumber is required"},
				{"field": "vehicleNumber", "message": "vehicleNumber is required"},
				{"field": "vehicleType", "message": "vehicleType is required"},
				{"field": "machineNumber", "message": "machineNumber is required"},
				{"field": "palletNumber", "message": "palletNumber must be at least 1", "value": "0"},
			},
			"timestamp": "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/v1/bookings",
		Header: bearer("OP002"),
		Body: assert.JSONObject{
			"customerName":  "Asha Rao",
			"phoneNumber":   "12345",
			"vehicleNumber": "KA01AB1001",
			"vehicleType":   "two-wheeler",
			"machineNumber": "M001",
			"palletNumber":  1,
		},
		ExpectStatus: http.StatusUnprocessableEntity,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "phoneNumber must be a 10-digit Indian mobile number",
			"errorCode": "VALIDATION",
			"errors": []assert.JSONObject{
				{"field": "phoneNumber", "message": "phoneNumber must be a 10-digit Indian mobile number", "value": "12345"},
			},
			"timestamp": "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)

	// site context rules: an explicit siteId must be accessible, and admins
	// without a primary site must provide one
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/v1/bookings",
		Header: bearer("OP004"),
		Body: assert.JSONObject{
			"siteId":        1,
			"customerName":  "Asha Rao",
			"phoneNumber":   "9876543210",
			"vehicleNumber": "KA01AB1001",
			"vehicleType":   "two-wheeler",
			"machineNumber": "M001",
			"palletNumber":  1,
		},
		ExpectStatus: http.StatusForbidden,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "no access to this site",
			"errorCode": "FORBIDDEN",
			"timestamp": "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/v1/bookings",
		Header: bearer("OP001"),
		Body: assert.JSONObject{
			"customerName":  "Asha Rao",
			"phoneNumber":   "9876543210",
			"vehicleNumber": "KA01AB1001",
			"vehicleType":   "two-wheeler",
			"machineNumber": "M001",
			"palletNumber":  1,
		},
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "no site context: provide siteId or configure a primary site for this user",
			"errorCode": "BAD_REQUEST",
			"timestamp": "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)
}

func TestVerifyAndRegenerateBookingOTP(t *testing.T) {
	s := setupTest(t, "fixtures/start-data.sql")

	assert.HTTPRequest{
		Method: "POST",
		Path:   "/v1/bookings",
		Header: bearer("OP002"),
		Body: assert.JSONObject{
			"customerName":  "Asha Rao",
			"phoneNumber":   "9876543210",
			"vehicleNumber": "KA01AB1001",
			"vehicleType":   "two-wheeler",
			"machineNumber": "M001",
			"palletNumber":  1,
		},
		ExpectStatus: http.StatusCreated,
	}.Check(t, s.Handler)

	// shape and existence failures are reported differently
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/bookings/verify-otp",
		Header:       bearer("OP002"),
		Body:         assert.JSONObject{"otpCode": "12"},
		ExpectStatus: http.StatusUnprocessableEntity,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "otpCode must be a 6-digit code",
			"errorCode": "VALIDATION",
			"errors": []assert.JSONObject{
				{"field": "otpCode", "message": "otpCode must be a 6-digit code", "value": "12"},
			},
			"timestamp": "1970-01-01T00:00:00Z",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/bookings/verify-otp",
		Header:       bearer("OP002"),
		Body:         assert.JSONObject{"otpCode": "999999"},
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "invalid or expired OTP",
			"errorCode": "BAD_REQUEST",
			"timestamp": "1970-01-01T00:00:00Z",
		},
	}.Check(t, s.Handler)

	// redemption is not site-scoped: the attendant at another site verifies
	// the code that the customer presents
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/bookings/verify-otp",
		Header:       bearer("OP004"),
		Body:         assert.JSONObject{"otpCode": "111111"},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success": true,
			"message": "OTP verified",
			"data": assert.JSONObject{
				"id":            1,
				"bookingNumber": "BKTW00000000",
				"siteId":        1,
				"customerId":    1,
				"customerName":  "Asha Rao",
				"phoneNumber":   "9876543210",
				"vehicleNumber": "KA01AB1001",
				"vehicleType":   "two-wheeler",
				"machineNumber": "M001",
				"palletNumber":  1,
				"status":        "active",
				"startTime":     "1970-01-01T00:00:00Z",
				"otp": assert.JSONObject{
					"code":      "111111",
					"expiresAt": "1970-01-01T00:30:00Z",
					"isUsed":    true,
					"usedAt":    "1970-01-01T00:00:00Z",
				},
				"createdBy": "OP002",
				"updatedBy": "OP002",
				"createdAt": "1970-01-01T00:00:00Z",
				"updatedAt": "1970-01-01T00:00:00Z",
			},
			"timestamp": "1970-01-01T00:00:00Z",
		},
	}.Check(t, s.Handler)

	// an OTP is single-use
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/bookings/verify-otp",
		Header:       bearer("OP002"),
		Body:         assert.JSONObject{"otpCode": "111111"},
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "invalid or expired OTP",
			"errorCode": "BAD_REQUEST",
			"timestamp": "1970-01-01T00:00:00Z",
		},
	}.Check(t, s.Handler)

	// reissuing replaces the code and resets the expiry window
	s.Clock.StepBy(10 * time.Minute)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/bookings/1/regenerate-otp",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success": true,
			"message": "new OTP issued",
			"data": assert.JSONObject{
				"id":            1,
				"bookingNumber": "BKTW00000000",
				"siteId":        1,
				"customerId":    1,
				"customerName":  "Asha Rao",
				"phoneNumber":   "9876543210",
				"vehicleNumber": "KA01AB1001",
				"vehicleType":   "two-wheeler",
				"machineNumber": "M001",
				"palletNumber":  1,
				"status":        "active",
				"startTime":     "1970-01-01T00:00:00Z",
				"otp": assert.JSONObject{
					"code":      "111112",
					"expiresAt": "1970-01-01T00:40:00Z",
					"isUsed":    false,
				},
				"createdBy": "OP002",
				"updatedBy": "OP002",
				"createdAt": "1970-01-01T00:00:00Z",
				"updatedAt": "1970-01-01T00:10:00Z",
			},
			"timestamp": "1970-01-01T00:10:00Z",
		},
	}.Check(t, s.Handler)

	// past its expiry, the code is as good as wrong
	s.Clock.StepBy(31 * time.Minute)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/bookings/verify-otp",
		Header:       bearer("OP002"),
		Body:         assert.JSONObject{"otpCode": "111112"},
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "invalid or expired OTP",
			"errorCode": "BAD_REQUEST",
			"timestamp": "1970-01-01T00:41:00Z",
		},
	}.Check(t, s.Handler)

	// only active bookings can get a new OTP
	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/v1/bookings/1",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusOK,
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/bookings/1/regenerate-otp",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "booking BKTW00000000 is cancelled; only active bookings can get a new OTP",
			"errorCode": "ILLEGAL_TRANSITION",
			"timestamp": "1970-01-01T00:41:00Z",
		},
	}.Check(t, s.Handler)
}

func TestCompleteBooking(t *testing.T) {
	s := setupTest(t, "fixtures/start-data.sql")

	assert.HTTPRequest{
		Method: "POST",
		Path:   "/v1/bookings",
		Header: bearer("OP002"),
		Body: assert.JSONObject{
			"customerName":  "Asha Rao",
			"phoneNumber":   "9876543210",
			"vehicleNumber": "KA01AB1001",
			"vehicleType":   "two-wheeler",
			"machineNumber": "M001",
			"palletNumber":  1,
		},
		ExpectStatus: http.StatusCreated,
	}.Check(t, s.Handler)

	// payment input is checked before anything is touched
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/bookings/1/complete",
		Header:       bearer("OP003"),
		Body:         assert.JSONObject{"payment": assert.JSONObject{"amount": -5, "method": "bitcoin"}},
		ExpectStatus: http.StatusUnprocessableEntity,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "validation failed",
			"errorCode": "VALIDATION",
			"errors": []assert.JSONObject{
				{"field": "payment.amount", "message": "payment.amount must not be negative", "value": "-5"},
				{"field": "payment.method", "message": "payment.method must be one of: cash, card, upi, membership", "value": "bitcoin"},
			},
			"timestamp": "1970-01-01T00:00:00Z",
		},
	}.Check(t, s.Handler)

	// completing with a captured payment
	s.Clock.StepBy(90 * time.Minute)
	completedBooking := assert.JSONObject{
		"id":            1,
		"bookingNumber": "BKTW00000000",
		"siteId":        1,
		"customerId":    1,
		"customerName":  "Asha Rao",
		"phoneNumber":   "9876543210",
		"vehicleNumber": "KA01AB1001",
		"vehicleType":   "two-wheeler",
		"machineNumber": "M001",
		"palletNumber":  1,
		"status":        "completed",
		"startTime":     "1970-01-01T00:00:00Z",
		"endTime":       "1970-01-01T01:30:00Z",
		"duration":      assert.JSONObject{"hours": 1, "minutes": 30},
		"payment": assert.JSONObject{
			"amount":         60,
			"method":         "upi",
			"status":         "completed",
			"transactionRef": "UPI-0042",
			"paidAt":         "1970-01-01T01:30:00Z",
		},
		"createdBy":   "OP002",
		"updatedBy":   "OP003",
		"completedBy": "OP003",
		"createdAt":   "1970-01-01T00:00:00Z",
		"updatedAt":   "1970-01-01T01:30:00Z",
	}
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/v1/bookings/1/complete",
		Header: bearer("OP003"),
		Body: assert.JSONObject{
			"payment": assert.JSONObject{"amount": 60, "method": "upi", "transactionRef": "UPI-0042"},
		},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success":   true,
			"message":   "booking completed",
			"data":      completedBooking,
			"timestamp": "1970-01-01T01:30:00Z",
		},
	}.Check(t, s.Handler)

	// the revenue lands on the customer, the vehicle leaves the pallet, and
	// the OTP is no longer rendered
	totalAmount, err := s.DB.SelectFloat(`SELECT total_amount FROM customers WHERE id = 1`)
	if err != nil {
		t.Fatal(err)
	}
	if totalAmount != 60 {
		t.Errorf("expected the payment on the customer's revenue total, but got %g", totalAmount)
	}
	occupancy, err := s.DB.SelectInt(`SELECT current_occupancy FROM pallets WHERE id = 1`)
	if err != nil {
		t.Fatal(err)
	}
	if occupancy != 0 {
		t.Errorf("expected the pallet to be released on completion, but occupancy is %d", occupancy)
	}
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings/BKTW00000000",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success":   true,
			"message":   "booking retrieved",
			"data":      completedBooking,
			"timestamp": "1970-01-01T01:30:00Z",
		},
	}.Check(t, s.Handler)

	// a completed booking stays completed
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/bookings/1/complete",
		Header:       bearer("OP003"),
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "booking BKTW00000000 is completed and cannot be completed",
			"errorCode": "ILLEGAL_TRANSITION",
			"timestamp": "1970-01-01T01:30:00Z",
		},
	}.Check(t, s.Handler)

	// completion without payment leaves the payment block out entirely
	s.Clock.StepBy(1 * time.Minute)
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/v1/bookings",
		Header: bearer("OP002"),
		Body: assert.JSONObject{
			"customerName":  "Asha Rao",
			"phoneNumber":   "9876543210",
			"vehicleNumber": "KA01AB1001",
			"vehicleType":   "two-wheeler",
			"machineNumber": "M001",
			"palletNumber":  1,
		},
		ExpectStatus: http.StatusCreated,
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/bookings/2/complete",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success": true,
			"message": "booking completed",
			"data": assert.JSONObject{
				"id":            2,
				"bookingNumber": "BKTW05460000",
				"siteId":        1,
				"customerId":    1,
				"customerName":  "Asha Rao",
				"phoneNumber":   "9876543210",
				"vehicleNumber": "KA01AB1001",
				"vehicleType":   "two-wheeler",
				"machineNumber": "M001",
				"palletNumber":  1,
				"status":        "completed",
				"startTime":     "1970-01-01T01:31:00Z",
				"endTime":       "1970-01-01T01:31:00Z",
				"createdBy":     "OP002",
				"updatedBy":     "OP002",
				"completedBy":   "OP002",
				"createdAt":     "1970-01-01T01:31:00Z",
				"updatedAt":     "1970-01-01T01:31:00Z",
			},
			"timestamp": "1970-01-01T01:31:00Z",
		},
	}.Check(t, s.Handler)
}

func TestCancelBooking(t *testing.T) {
	s := setupTest(t, "fixtures/start-data.sql")

	assert.HTTPRequest{
		Method: "POST",
		Path:   "/v1/bookings",
		Header: bearer("OP002"),
		Body: assert.JSONObject{
			"customerName":  "Asha Rao",
			"phoneNumber":   "9876543210",
			"vehicleNumber": "KA01AB1001",
			"vehicleType":   "two-wheeler",
			"machineNumber": "M001",
			"palletNumber":  1,
		},
		ExpectStatus: http.StatusCreated,
	}.Check(t, s.Handler)

	s.Clock.StepBy(5 * time.Minute)
	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/v1/bookings/1",
		Header:       bearer("OP002"),
		Body:         assert.JSONObject{"reason": "customer left"},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success": true,
			"message": "booking cancelled",
			"data": assert.JSONObject{
				"id":            1,
				"bookingNumber": "BKTW00000000",
				"siteId":        1,
				"customerId":    1,
				"customerName":  "Asha Rao",
				"phoneNumber":   "9876543210",
				"vehicleNumber": "KA01AB1001",
				"vehicleType":   "two-wheeler",
				"machineNumber": "M001",
				"palletNumber":  1,
				"status":        "cancelled",
				"startTime":     "1970-01-01T00:00:00Z",
				"notes":         "cancellation reason: customer left",
				"createdBy":     "OP002",
				"updatedBy":     "OP002",
				"createdAt":     "1970-01-01T00:00:00Z",
				"updatedAt":     "1970-01-01T00:05:00Z",
			},
			"timestamp": "1970-01-01T00:05:00Z",
		},
	}.Check(t, s.Handler)

	// the pallet was released along the way
	occupancy, err := s.DB.SelectInt(`SELECT current_occupancy FROM pallets WHERE id = 1`)
	if err != nil {
		t.Fatal(err)
	}
	if occupancy != 0 {
		t.Errorf("expected the pallet to be released on cancellation, but occupancy is %d", occupancy)
	}

	// cancelling twice does not work, and neither does completing afterwards
	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/v1/bookings/1",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "booking BKTW00000000 is already cancelled",
			"errorCode": "ILLEGAL_TRANSITION",
			"timestamp": "1970-01-01T00:05:00Z",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/bookings/1/complete",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "booking BKTW00000000 is cancelled and cannot be completed",
			"errorCode": "ILLEGAL_TRANSITION",
			"timestamp": "1970-01-01T00:05:00Z",
		},
	}.Check(t, s.Handler)
}

func TestExtendBooking(t *testing.T) {
	s := setupTest(t, "fixtures/start-data.sql")

	assert.HTTPRequest{
		Method: "POST",
		Path:   "/v1/bookings",
		Header: bearer("OP002"),
		Body: assert.JSONObject{
			"customerName":  "Asha Rao",
			"phoneNumber":   "9876543210",
			"vehicleNumber": "KA01AB1001",
			"vehicleType":   "two-wheeler",
			"machineNumber": "M001",
			"palletNumber":  1,
		},
		ExpectStatus: http.StatusCreated,
	}.Check(t, s.Handler)

	// extensions are a supervisor call
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/bookings/1/extend",
		Header:       bearer("OP002"),
		Body:         assert.JSONObject{"hours": 2},
		ExpectStatus: http.StatusForbidden,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "insufficient permissions for this operation",
			"errorCode": "FORBIDDEN",
			"timestamp": "1970-01-01T00:00:00Z",
		},
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/bookings/1/extend",
		Header:       bearer("OP003"),
		Body:         assert.JSONObject{"hours": 0, "minutes": 0},
		ExpectStatus: http.StatusUnprocessableEntity,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "at least one of hours and minutes must be positive",
			"errorCode": "VALIDATION",
			"timestamp": "1970-01-01T00:00:00Z",
		},
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/bookings/1/extend",
		Header:       bearer("OP003"),
		Body:         assert.JSONObject{"hours": 2, "minutes": 30, "reason": "flight delay"},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success": true,
			"message": "booking extended",
			"data": assert.JSONObject{
				"id":            1,
				"bookingNumber": "BKTW00000000",
				"siteId":        1,
				"customerId":    1,
				"customerName":  "Asha Rao",
				"phoneNumber":   "9876543210",
				"vehicleNumber": "KA01AB1001",
				"vehicleType":   "two-wheeler",
				"machineNumber": "M001",
				"palletNumber":  1,
				"status":        "active",
				"startTime":     "1970-01-01T00:00:00Z",
				"notes":         "extended by 2h 30m: flight delay",
				"createdBy":     "OP002",
				"updatedBy":     "OP003",
				"createdAt":     "1970-01-01T00:00:00Z",
				"updatedAt":     "1970-01-01T00:00:00Z",
			},
			"timestamp": "1970-01-01T00:00:00Z",
		},
	}.Check(t, s.Handler)

	// repeated extensions accumulate in the notes
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/bookings/1/extend",
		Header:       bearer("OP001"),
		Body:         assert.JSONObject{"minutes": 15},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success": true,
			"message": "booking extended",
			"data": assert.JSONObject{
				"id":            1,
				"bookingNumber": "BKTW00000000",
				"siteId":        1,
				"customerId":    1,
				"customerName":  "Asha Rao",
				"phoneNumber":   "9876543210",
				"vehicleNumber": "KA01AB1001",
				"vehicleType":   "two-wheeler",
				"machineNumber": "M001",
				"palletNumber":  1,
				"status":        "active",
				"startTime":     "1970-01-01T00:00:00Z",
				"notes":         "extended by 2h 30m: flight delay\nextended by 0h 15m",
				"createdBy":     "OP002",
				"updatedBy":     "OP001",
				"createdAt":     "1970-01-01T00:00:00Z",
				"updatedAt":     "1970-01-01T00:00:00Z",
			},
			"timestamp": "1970-01-01T00:00:00Z",
		},
	}.Check(t, s.Handler)
}

func TestUpdateBooking(t *testing.T) {
	s := setupTest(t, "fixtures/start-data.sql")

	assert.HTTPRequest{
		Method: "POST",
		Path:   "/v1/bookings",
		Header: bearer("OP002"),
		Body: assert.JSONObject{
			"customerName":  "Asha Rao",
			"phoneNumber":   "9876543210",
			"vehicleNumber": "KA01AB1001",
			"vehicleType":   "two-wheeler",
			"machineNumber": "M001",
			"palletNumber":  1,
		},
		ExpectStatus: http.StatusCreated,
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v1/bookings/1",
		Header:       bearer("OP002"),
		Body:         assert.JSONObject{"notes": "left helmet with attendant", "specialInstructions": "call on arrival"},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success": true,
			"message": "booking updated",
			"data": assert.JSONObject{
				"id":                  1,
				"bookingNumber":       "BKTW00000000",
				"siteId":              1,
				"customerId":          1,
				"customerName":        "Asha Rao",
				"phoneNumber":         "9876543210",
				"vehicleNumber":       "KA01AB1001",
				"vehicleType":         "two-wheeler",
				"machineNumber":       "M001",
				"palletNumber":        1,
				"status":              "active",
				"startTime":           "1970-01-01T00:00:00Z",
				"notes":               "left helmet with attendant",
				"specialInstructions": "call on arrival",
				"createdBy":           "OP002",
				"updatedBy":           "OP002",
				"createdAt":           "1970-01-01T00:00:00Z",
				"updatedAt":           "1970-01-01T00:00:00Z",
			},
			"timestamp": "1970-01-01T00:00:00Z",
		},
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v1/bookings/1",
		Header:       bearer("OP002"),
		Body:         assert.JSONObject{"vehicleType": "plane"},
		ExpectStatus: http.StatusUnprocessableEntity,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "vehicleType must be one of: two-wheeler, four-wheeler",
			"errorCode": "VALIDATION",
			"errors": []assert.JSONObject{
				{"field": "vehicleType", "message": "vehicleType must be one of: two-wheeler, four-wheeler", "value": "plane"},
			},
			"timestamp": "1970-01-01T00:00:00Z",
		},
	}.Check(t, s.Handler)

	// terminal bookings are read-only
	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/v1/bookings/1",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusOK,
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v1/bookings/1",
		Header:       bearer("OP002"),
		Body:         assert.JSONObject{"notes": "too late"},
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "booking BKTW00000000 is cancelled; only active bookings can be updated",
			"errorCode": "ILLEGAL_TRANSITION",
			"timestamp": "1970-01-01T00:00:00Z",
		},
	}.Check(t, s.Handler)
}

func TestListAndSearchBookings(t *testing.T) {
	s := setupTest(t, "fixtures/start-data.sql")

	assert.HTTPRequest{
		Method: "POST",
		Path:   "/v1/bookings",
		Header: bearer("OP002"),
		Body: assert.JSONObject{
			"customerName":  "Asha Rao",
			"phoneNumber":   "9876543210",
			"vehicleNumber": "KA01AB1001",
			"vehicleType":   "two-wheeler",
			"machineNumber": "M001",
			"palletNumber":  1,
		},
		ExpectStatus: http.StatusCreated,
	}.Check(t, s.Handler)
	s.Clock.StepBy(1 * time.Minute)
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/v1/bookings",
		Header: bearer("OP002"),
		Body: assert.JSONObject{
			"customerName":  "Ravi Kumar",
			"phoneNumber":   "9123456780",
			"vehicleNumber": "KA05CD2002",
			"vehicleType":   "two-wheeler",
			"machineNumber": "M001",
			"palletNumber":  2,
		},
		ExpectStatus: http.StatusCreated,
	}.Check(t, s.Handler)
	s.Clock.StepBy(1 * time.Minute)
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/v1/bookings",
		Header: bearer("OP002"),
		Body: assert.JSONObject{
			"customerName":  "Meena Iyer",
			"phoneNumber":   "9988776655",
			"vehicleNumber": "KA09EF3003",
			"vehicleType":   "four-wheeler",
			"machineNumber": "M002",
			"palletNumber":  101,
		},
		ExpectStatus: http.StatusCreated,
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/v1/bookings/1/complete",
		Header:       bearer("OP002"),
		Body:         assert.JSONObject{"payment": assert.JSONObject{"amount": 60, "method": "cash"}},
		ExpectStatus: http.StatusOK,
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/v1/bookings/2",
		Header:       bearer("OP002"),
		Body:         assert.JSONObject{"reason": "wrong machine"},
		ExpectStatus: http.StatusOK,
	}.Check(t, s.Handler)

	listedBooking1 := assert.JSONObject{
		"id":            1,
		"bookingNumber": "BKTW00000000",
		"siteId":        1,
		"customerId":    1,
		"customerName":  "Asha Rao",
		"phoneNumber":   "9876543210",
		"vehicleNumber": "KA01AB1001",
		"vehicleType":   "two-wheeler",
		"machineNumber": "M001",
		"palletNumber":  1,
		"status":        "completed",
		"startTime":     "1970-01-01T00:00:00Z",
		"endTime":       "1970-01-01T00:02:00Z",
		"duration":      assert.JSONObject{"hours": 0, "minutes": 2},
		"payment": assert.JSONObject{
			"amount": 60,
			"method": "cash",
			"status": "completed",
			"paidAt": "1970-01-01T00:02:00Z",
		},
		"createdBy":   "OP002",
		"updatedBy":   "OP002",
		"completedBy": "OP002",
		"createdAt":   "1970-01-01T00:00:00Z",
		"updatedAt":   "1970-01-01T00:02:00Z",
	}
	listedBooking2 := assert.JSONObject{
		"id":            2,
		"bookingNumber": "BKTW00060000",
		"siteId":        1,
		"customerId":    2,
		"customerName":  "Ravi Kumar",
		"phoneNumber":   "9123456780",
		"vehicleNumber": "KA05CD2002",
		"vehicleType":   "two-wheeler",
		"machineNumber": "M001",
		"palletNumber":  2,
		"status":        "cancelled",
		"startTime":     "1970-01-01T00:01:00Z",
		"notes":         "cancellation reason: wrong machine",
		"createdBy":     "OP002",
		"updatedBy":     "OP002",
		"createdAt":     "1970-01-01T00:01:00Z",
		"updatedAt":     "1970-01-01T00:02:00Z",
	}
	listedBooking3 := assert.JSONObject{
		"id":            3,
		"bookingNumber": "BKFW00120000",
		"siteId":        1,
		"customerId":    3,
		"customerName":  "Meena Iyer",
		"phoneNumber":   "9988776655",
		"vehicleNumber": "KA09EF3003",
		"vehicleType":   "four-wheeler",
		"machineNumber": "M002",
		"palletNumber":  101,
		"status":        "active",
		"startTime":     "1970-01-01T00:02:00Z",
		"createdBy":     "OP002",
		"updatedBy":     "OP002",
		"createdAt":     "1970-01-01T00:02:00Z",
		"updatedAt":     "1970-01-01T00:02:00Z",
	}

	// newest first, and no OTPs in list output
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success":    true,
			"message":    "bookings retrieved",
			"data":       []assert.JSONObject{listedBooking3, listedBooking2, listedBooking1},
			"pagination": assert.JSONObject{"page": 1, "limit": 20, "totalCount": 3, "totalPages": 1},
			"timestamp":  "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings?limit=1&page=2",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success":    true,
			"message":    "bookings retrieved",
			"data":       []assert.JSONObject{listedBooking2},
			"pagination": assert.JSONObject{"page": 2, "limit": 1, "totalCount": 3, "totalPages": 3},
			"timestamp":  "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)

	// filters
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings?status=active",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success":    true,
			"message":    "bookings retrieved",
			"data":       []assert.JSONObject{listedBooking3},
			"pagination": assert.JSONObject{"page": 1, "limit": 20, "totalCount": 1, "totalPages": 1},
			"timestamp":  "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings?status=parked",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusUnprocessableEntity,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "status must be one of: active, completed, cancelled, expired",
			"errorCode": "VALIDATION",
			"errors": []assert.JSONObject{
				{"field": "status", "message": "status must be one of: active, completed, cancelled, expired", "value": "parked"},
			},
			"timestamp": "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings?dateFrom=1970-01-01T00:02:00Z",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success":    true,
			"message":    "bookings retrieved",
			"data":       []assert.JSONObject{listedBooking3},
			"pagination": assert.JSONObject{"page": 1, "limit": 20, "totalCount": 1, "totalPages": 1},
			"timestamp":  "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings?dateFrom=1970-01-02",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success":    true,
			"message":    "bookings retrieved",
			"data":       []assert.JSONObject{},
			"pagination": assert.JSONObject{"page": 1, "limit": 20, "totalCount": 0, "totalPages": 0},
			"timestamp":  "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings?dateTo=notadate",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   `invalid dateTo: "notadate" is not a timestamp or date`,
			"errorCode": "BAD_REQUEST",
			"timestamp": "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)

	// other sites see none of this
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings",
		Header:       bearer("OP004"),
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success":    true,
			"message":    "bookings retrieved",
			"data":       []assert.JSONObject{},
			"pagination": assert.JSONObject{"page": 1, "limit": 20, "totalCount": 0, "totalPages": 0},
			"timestamp":  "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)

	// per-machine and per-vehicle listings
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings/machine/M001",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success":    true,
			"message":    "bookings retrieved",
			"data":       []assert.JSONObject{listedBooking2, listedBooking1},
			"pagination": assert.JSONObject{"page": 1, "limit": 20, "totalCount": 2, "totalPages": 1},
			"timestamp":  "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings/machine/XYZ",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusUnprocessableEntity,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   `machineNumber must be of the form "M001"`,
			"errorCode": "VALIDATION",
			"errors": []assert.JSONObject{
				{"field": "machineNumber", "message": `machineNumber must be of the form "M001"`, "value": "XYZ"},
			},
			"timestamp": "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings/vehicle/ka09ef3003",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success":    true,
			"message":    "bookings retrieved",
			"data":       []assert.JSONObject{listedBooking3},
			"pagination": assert.JSONObject{"page": 1, "limit": 20, "totalCount": 1, "totalPages": 1},
			"timestamp":  "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings/active",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success":    true,
			"message":    "active bookings retrieved",
			"data":       []assert.JSONObject{listedBooking3},
			"pagination": assert.JSONObject{"page": 1, "limit": 100, "totalCount": 1, "totalPages": 1},
			"timestamp":  "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)

	// quick search across the various columns
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings/search?q=9123",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success":   true,
			"message":   "search results",
			"data":      []assert.JSONObject{listedBooking2},
			"timestamp": "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings/search?type=customer&q=meena",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success":   true,
			"message":   "search results",
			"data":      []assert.JSONObject{listedBooking3},
			"timestamp": "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings/search?type=otp&q=111111",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success":   true,
			"message":   "search results",
			"data":      []assert.JSONObject{listedBooking1},
			"timestamp": "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings/search?type=pallet&q=101",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success":   true,
			"message":   "search results",
			"data":      []assert.JSONObject{listedBooking3},
			"timestamp": "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings/search",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusBadRequest,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "missing query parameter: q",
			"errorCode": "BAD_REQUEST",
			"timestamp": "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings/search?q=asha&type=bogus",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusUnprocessableEntity,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "type must be one of: vehicle, pallet, otp, customer, phone, all",
			"errorCode": "VALIDATION",
			"errors": []assert.JSONObject{
				{"field": "type", "message": "type must be one of: vehicle, pallet, otp, customer, phone, all", "value": "bogus"},
			},
			"timestamp": "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings/stats",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"success": true,
			"message": "booking statistics",
			"data": assert.JSONObject{
				"totalBookings":     3,
				"activeBookings":    1,
				"completedBookings": 1,
				"cancelledBookings": 1,
				"expiredBookings":   0,
				"totalRevenue":      60,
			},
			"timestamp": "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings/stats?siteId=2",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusForbidden,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "no access to this site",
			"errorCode": "FORBIDDEN",
			"timestamp": "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)

	// lookups of things that are out of scope or do not exist
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings/1",
		Header:       bearer("OP004"),
		ExpectStatus: http.StatusNotFound,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "no such booking",
			"errorCode": "NOT_FOUND",
			"timestamp": "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v1/bookings/BKTW99999999",
		Header:       bearer("OP002"),
		ExpectStatus: http.StatusNotFound,
		ExpectBody: assert.JSONObject{
			"success":   false,
			"message":   "no such booking",
			"errorCode": "NOT_FOUND",
			"timestamp": "1970-01-01T00:02:00Z",
		},
	}.Check(t, s.Handler)
}
