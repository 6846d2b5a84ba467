// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Input formats accepted by the API. Plates are matched after uppercasing.
var (
	SiteCodeRx         = regexp.MustCompile(`^SITE\d{3,6}$`)
	MachineCodeRx      = regexp.MustCompile(`^M\d{3}$`)
	PhoneRx            = regexp.MustCompile(`^[6-9]\d{9}$`)
	VehiclePlateRx     = regexp.MustCompile(`^[A-Z]{2}\d{1,2}[A-Z]{1,2}\d{4}$`)
	OperatorIDRx       = regexp.MustCompile(`^OP\d{3,6}$`)
	EmailRx            = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	NameRx             = regexp.MustCompile(`^[a-zA-Z ]+$`)
	OTPRx              = regexp.MustCompile(`^\d{6}$`)
	MembershipNumberRx = regexp.MustCompile(`^\d{6}$`)
	PINRx              = regexp.MustCompile(`^\d{4}$`)
	PincodeRx          = regexp.MustCompile(`^[1-9]\d{5}$`)
	ClockTimeRx        = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// SanitizeString normalizes free-text input: surrounding whitespace is
// trimmed, markup-relevant characters are stripped, and the length is capped
// at 1000 characters.
func SanitizeString(input string) string {
	result := strings.TrimSpace(input)
	result = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '\'', '"':
			return -1
		default:
			return r
		}
	}, result)
	if len(result) > 1000 {
		result = result[:1000]
	}
	return result
}

// NormalizePlate brings a vehicle plate into the canonical uppercase form that
// is stored and compared everywhere.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

// Validator accumulates per-field validation failures. Handlers run all their
// field checks first and then report the full list in one error response.
type Validator struct {
	fields []FieldError
}

// Reject records a validation failure for the given field.
func (v *Validator) Reject(field, value, msg string) {
	v.fields = append(v.fields, FieldError{Field: field, Message: msg, Value: value})
}

// CheckRequired records a failure if the value is empty after trimming.
func (v *Validator) CheckRequired(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.Reject(field, "", fmt.Sprintf("%s is required", field))
	}
}

// CheckMatch records a failure if a non-empty value does not match the given
// format. Empty values pass; combine with CheckRequired for mandatory fields.
func (v *Validator) CheckMatch(field, value string, rx *regexp.Regexp, hint string) {
	if value != "" && !rx.MatchString(value) {
		v.Reject(field, value, fmt.Sprintf("%s must be %s", field, hint))
	}
}

// CheckMaxLength records a failure if the value exceeds the given length.
func (v *Validator) CheckMaxLength(field, value string, maxLen int) {
	if len(value) > maxLen {
		v.Reject(field, value, fmt.Sprintf("%s must be at most %d characters", field, maxLen))
	}
}

// CheckOneOf records a failure if a non-empty value is not in the given set.
func (v *Validator) CheckOneOf(field, value string, allowed ...string) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.Reject(field, value, fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
}

// OK returns whether all checks so far have passed.
func (v *Validator) OK() bool {
	return len(v.fields) == 0
}

// AsError returns nil if all checks passed, or a ServiceError of kind
// ErrValidation carrying all accumulated field errors.
func (v *Validator) AsError() error {
	if len(v.fields) == 0 {
		return nil
	}
	return ValidationError(v.fields...)
}

// Pagination is a validated page window for list queries.
type Pagination struct {
	Page  uint64
	Limit uint64
}

// ParsePagination reads "page" and "limit" from a query string. Out-of-range
// or malformed values fall back to the defaults; the limit is capped at 100.
func ParsePagination(query url.Values, defaultLimit uint64) Pagination {
	p := Pagination{Page: 1, Limit: defaultLimit}
	if value, err := strconv.ParseUint(query.Get("page"), 10, 64); err == nil && value >= 1 {
		p.Page = value
	}
	if value, err := strconv.ParseUint(query.Get("limit"), 10, 64); err == nil && value >= 1 {
		p.Limit = min(value, 100)
	}
	return p
}

// Offset returns the number of rows to skip for this page.
func (p Pagination) Offset() uint64 {
	return (p.Page - 1) * p.Limit
}

// TotalPages returns the page count for the given result set size.
func (p Pagination) TotalPages(totalCount uint64) uint64 {
	if totalCount == 0 {
		return 0
	}
	return (totalCount + p.Limit - 1) / p.Limit
}
