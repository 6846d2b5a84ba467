// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package core

import (
	cryptorand "crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/sapcc/go-bits/must"

	"github.com/sapcc/parkhaus/internal/db"
)

// BookingOTPLifetime is how long a booking OTP stays redeemable after issue.
// This is a fixed property of the booking workflow, not a configuration value.
const BookingOTPLifetime = 30 * time.Minute

// BookingNumber derives the booking number for a new booking, e.g.
// "BKTW23456789" for a two-wheeler booking. The tail is taken from the
// creation timestamp, so numbers are unique except within one millisecond.
func BookingNumber(vehicleType db.VehicleType, now time.Time) string {
	prefix := "FW"
	if vehicleType == db.VehicleTypeTwoWheeler {
		prefix = "TW"
	}
	return "BK" + prefix + lastDigits(now.UnixMilli(), 8)
}

// CustomerCode derives the customer code for a new customer, e.g. "CUST456789".
func CustomerCode(now time.Time) string {
	return "CUST" + lastDigits(now.UnixMilli(), 6)
}

// lastDigits renders the last `count` decimal digits of `value`, padding with
// leading zeroes if the value is too small (only relevant for artificial
// clocks near the epoch).
func lastDigits(value int64, count int) string {
	str := strconv.FormatInt(value, 10)
	for len(str) < count {
		str = "0" + str
	}
	return str[len(str)-count:]
}

// RandomOTP returns a 6-digit one-time passcode with a non-zero first digit.
func RandomOTP() string {
	return randomDigits(6)
}

// RandomMembershipNumber returns a candidate 6-digit membership number with a
// non-zero first digit. Callers must check-and-insert against the set of
// active membership numbers and retry on collision.
func RandomMembershipNumber() string {
	return randomDigits(6)
}

// RandomMembershipPIN returns a 4-digit membership PIN with a non-zero first digit.
func RandomMembershipPIN() string {
	return randomDigits(4)
}

var pow10 = []int64{1, 10, 100, 1000, 10000, 100000, 1000000}

// randomDigits draws uniformly from [10^(count-1), 10^count - 1] using a CSPRNG.
func randomDigits(count int) string {
	lo := pow10[count-1]
	span := big.NewInt(9 * lo) //number of values in the inclusive range
	offset := must.Return(cryptorand.Int(cryptorand.Reader, span))
	return strconv.FormatInt(lo+offset.Int64(), 10)
}
