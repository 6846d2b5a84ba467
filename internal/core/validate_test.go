// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/sapcc/go-bits/assert"
)

func TestInputFormats(t *testing.T) {
	check := func(rx *regexp.Regexp, good, bad []string) {
		for _, value := range good {
			if !rx.MatchString(value) {
				t.Errorf("expected %q to match %s", value, rx.String())
			}
		}
		for _, value := range bad {
			if rx.MatchString(value) {
				t.Errorf("expected %q to not match %s", value, rx.String())
			}
		}
	}

	check(PhoneRx,
		[]string{"9876543210", "6000000000"},
		[]string{"5876543210", "987654321", "98765432100", "+919876543210"})
	check(VehiclePlateRx,
		[]string{"KA01AB1234", "DL1C1234", "MH12DE1433"},
		[]string{"ka01ab1234", "KA001AB1234", "KA01ABC1234", "KA01AB123", "1234KA01"})
	check(OperatorIDRx,
		[]string{"OP123", "OP123456"},
		[]string{"OP12", "OP1234567", "op123", "XX123"})
	check(SiteCodeRx,
		[]string{"SITE001", "SITE123456"},
		[]string{"SITE01", "SITE1234567", "site001"})
	check(MachineCodeRx,
		[]string{"M001", "M999"},
		[]string{"M1", "M0001", "m001", "N001"})
	check(EmailRx,
		[]string{"alice@example.com", "a@b.co"},
		[]string{"alice example.com", "alice@example", "@example.com", "alice@"})
	check(NameRx,
		[]string{"Alice", "Alice Operator"},
		[]string{"Alice2", "Alice-Operator", ""})
	check(OTPRx,
		[]string{"123456", "012345"}, //the regex admits leading zeroes; the generator never emits them
		[]string{"12345", "1234567", "12345a"})
	check(PINRx,
		[]string{"1234"},
		[]string{"123", "12345", "12a4"})
	check(PincodeRx,
		[]string{"560034", "110001"},
		[]string{"060034", "56003", "5600345"})
	check(ClockTimeRx,
		[]string{"00:00", "09:30", "23:59"},
		[]string{"24:00", "9:30", "12:60", "1230"})
}

func TestSanitizeString(t *testing.T) {
	check := func(input, expected string) {
		actual := SanitizeString(input)
		if actual != expected {
			t.Errorf("expected SanitizeString(%q) = %q, but got %q", input, expected, actual)
		}
	}

	check("  plain text  ", "plain text")
	check("<script>alert('x')</script>", "scriptalert(x)/script")
	check(`say "hello"`, "say hello")
	check("", "")

	longInput := strings.Repeat("x", 1100)
	if len(SanitizeString(longInput)) != 1000 {
		t.Errorf("expected long input to be capped at 1000 characters, but got %d", len(SanitizeString(longInput)))
	}
}

func TestNormalizePlate(t *testing.T) {
	actual := NormalizePlate("  ka01ab1234 ")
	if actual != "KA01AB1234" {
		t.Errorf("expected normalized plate %q, but got %q", "KA01AB1234", actual)
	}
}

func TestValidator(t *testing.T) {
	var v Validator
	v.CheckRequired("customerName", "Alice")
	v.CheckMatch("phoneNumber", "9876543210", PhoneRx, "a 10-digit Indian mobile number")
	v.CheckMatch("email", "", EmailRx, "a valid email address") //empty passes without CheckRequired
	v.CheckOneOf("vehicleType", "two-wheeler", "two-wheeler", "four-wheeler")
	if !v.OK() || v.AsError() != nil {
		t.Fatalf("expected all checks to pass, but got: %v", v.AsError())
	}

	v = Validator{}
	v.CheckRequired("customerName", "   ")
	v.CheckMatch("phoneNumber", "12345", PhoneRx, "a 10-digit Indian mobile number")
	v.CheckMaxLength("notes", strings.Repeat("x", 1001), 1000)
	v.CheckOneOf("vehicleType", "three-wheeler", "two-wheeler", "four-wheeler")
	err := v.AsError()
	if err == nil {
		t.Fatal("expected a validation error")
	}
	serr := AsServiceError(err)
	if serr.Kind != ErrValidation {
		t.Errorf("expected kind %q, but got %q", ErrValidation, serr.Kind)
	}
	if len(serr.Fields) != 4 {
		t.Errorf("expected 4 field errors, but got %d: %+v", len(serr.Fields), serr.Fields)
	}

	// with exactly one failure, its message becomes the response message
	v = Validator{}
	v.CheckMatch("otp", "12", OTPRx, "a 6-digit code")
	serr = AsServiceError(v.AsError())
	if serr.Message != "otp must be a 6-digit code" {
		t.Errorf("expected the field message to be promoted, but got %q", serr.Message)
	}
}

func TestParsePagination(t *testing.T) {
	parse := func(query string) Pagination {
		values, err := url.ParseQuery(query)
		if err != nil {
			t.Fatal(err)
		}
		return ParsePagination(values, 20)
	}

	assert.DeepEqual(t, "defaults", parse(""), Pagination{Page: 1, Limit: 20})
	assert.DeepEqual(t, "explicit window", parse("page=3&limit=50"), Pagination{Page: 3, Limit: 50})
	assert.DeepEqual(t, "page underflow", parse("page=0"), Pagination{Page: 1, Limit: 20})
	assert.DeepEqual(t, "limit cap", parse("limit=500"), Pagination{Page: 1, Limit: 100})
	assert.DeepEqual(t, "garbage values", parse("page=x&limit=-2"), Pagination{Page: 1, Limit: 20})

	p := Pagination{Page: 3, Limit: 20}
	if p.Offset() != 40 {
		t.Errorf("expected offset 40, but got %d", p.Offset())
	}
	if p.TotalPages(41) != 3 {
		t.Errorf("expected 3 total pages for 41 results, but got %d", p.TotalPages(41))
	}
	if p.TotalPages(0) != 0 {
		t.Errorf("expected 0 total pages for an empty result, but got %d", p.TotalPages(0))
	}
}
