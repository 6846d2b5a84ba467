// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package reports

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/parkhaus/internal/core"
	"github.com/sapcc/parkhaus/internal/db"
)

// SiteScope restricts a report query to the sites that the requesting user
// may see. The zero value matches nothing; admins get All = true.
type SiteScope struct {
	All     bool
	SiteIDs []db.SiteID
}

// addTo appends a site filter condition to a WHERE clause under construction,
// unless the scope covers all sites.
func (s SiteScope) addTo(conditions *[]string, args *[]any, column string) {
	if s.All {
		return
	}
	*args = append(*args, pq.Array(s.SiteIDs))
	*conditions = append(*conditions, fmt.Sprintf("%s = ANY($%d)", column, len(*args)))
}

// matchPattern converts a raw search string into a case-insensitive substring
// pattern, escaping the LIKE metacharacters.
func matchPattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

// BookingFilter contains the filter parameters accepted by ListBookings and
// GetBookingStats. The zero value of each field means "do not filter on this".
type BookingFilter struct {
	Scope         SiteScope
	Status        *db.BookingStatus
	MachineNumber string
	VehicleNumber string
	Search        string
	StartedAfter  *time.Time
	StartedBefore *time.Time
}

func (f BookingFilter) whereClause() (string, []any) {
	var (
		conditions []string
		args       []any
	)
	addCondition := func(format string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(format, len(args)))
	}

	f.Scope.addTo(&conditions, &args, "site_id")
	if f.Status != nil {
		addCondition("status = $%d", *f.Status)
	}
	if f.MachineNumber != "" {
		addCondition("machine_number = $%d", f.MachineNumber)
	}
	if f.VehicleNumber != "" {
		addCondition("vehicle_number = $%d", f.VehicleNumber)
	}
	if f.Search != "" {
		addCondition("(customer_name ILIKE $%[1]d OR phone_number ILIKE $%[1]d OR vehicle_number ILIKE $%[1]d OR number ILIKE $%[1]d OR otp_code ILIKE $%[1]d)", matchPattern(f.Search))
	}
	if f.StartedAfter != nil {
		addCondition("start_time >= $%d", *f.StartedAfter)
	}
	if f.StartedBefore != nil {
		addCondition("start_time <= $%d", *f.StartedBefore)
	}

	if len(conditions) == 0 {
		return "TRUE", nil
	}
	return strings.Join(conditions, " AND "), args
}

// ListBookings returns one page of bookings matching the given filter, newest
// first, plus the unpaginated total count.
func ListBookings(dbi db.Interface, filter BookingFilter, page core.Pagination) ([]db.Booking, uint64, error) {
	whereStr, args := filter.whereClause()

	totalCount, err := countRows(dbi, "bookings", whereStr, args)
	if err != nil {
		return nil, 0, err
	}

	var bookings []db.Booking
	query := fmt.Sprintf(
		`SELECT * FROM bookings WHERE %s ORDER BY start_time DESC, id DESC LIMIT %d OFFSET %d`,
		whereStr, page.Limit, page.Offset())
	_, err = dbi.Select(&bookings, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("while listing bookings: %w", err)
	}
	return bookings, totalCount, nil
}

// searchBookingConditions maps each search type to the condition that the
// substring pattern (always the last query argument) is matched against.
var searchBookingConditions = map[string]string{
	"vehicle":  "vehicle_number ILIKE $%[1]d",
	"pallet":   "CAST(pallet_number AS TEXT) LIKE $%[1]d",
	"otp":      "otp_code LIKE $%[1]d",
	"customer": "customer_name ILIKE $%[1]d",
	"phone":    "phone_number LIKE $%[1]d",
}

// searchBookingTypes fixes the order in which "all" combines the conditions.
var searchBookingTypes = []string{"customer", "phone", "vehicle", "pallet", "otp"}

// SearchBookings performs a substring search over bookings within the given
// scope. Results are capped at 50, newest first.
func SearchBookings(dbi db.Interface, scope SiteScope, q, searchType string) ([]db.Booking, error) {
	var (
		conditions []string
		args       []any
	)
	scope.addTo(&conditions, &args, "site_id")
	args = append(args, matchPattern(q))

	var matchConditions []string
	for _, key := range searchBookingTypes {
		if searchType == key || searchType == "all" {
			matchConditions = append(matchConditions, fmt.Sprintf(searchBookingConditions[key], len(args)))
		}
	}
	if len(matchConditions) == 0 {
		return nil, fmt.Errorf("unknown search type: %q", searchType)
	}
	conditions = append(conditions, "("+strings.Join(matchConditions, " OR ")+")")

	var bookings []db.Booking
	query := fmt.Sprintf(
		`SELECT * FROM bookings WHERE %s ORDER BY start_time DESC, id DESC LIMIT 50`,
		strings.Join(conditions, " AND "))
	_, err := dbi.Select(&bookings, query, args...)
	if err != nil {
		return nil, fmt.Errorf("while searching bookings: %w", err)
	}
	return bookings, nil
}

// BookingStats contains aggregated booking counts for a filter window.
// Revenue only counts captured payments on completed bookings.
type BookingStats struct {
	TotalBookings     uint64  `json:"totalBookings"`
	ActiveBookings    uint64  `json:"activeBookings"`
	CompletedBookings uint64  `json:"completedBookings"`
	CancelledBookings uint64  `json:"cancelledBookings"`
	ExpiredBookings   uint64  `json:"expiredBookings"`
	TotalRevenue      float64 `json:"totalRevenue"`
}

// GetBookingStats aggregates booking counts by status and completed revenue
// over all bookings matching the given filter.
func GetBookingStats(dbi db.Interface, filter BookingFilter) (BookingStats, error) {
	whereStr, args := filter.whereClause()
	query := fmt.Sprintf(
		`SELECT status, COUNT(*), COALESCE(SUM(payment_amount), 0) FROM bookings WHERE %s GROUP BY status`,
		whereStr)

	var stats BookingStats
	err := sqlext.ForeachRow(dbi, query, args, func(rows *sql.Rows) error {
		var (
			status  db.BookingStatus
			count   uint64
			revenue float64
		)
		err := rows.Scan(&status, &count, &revenue)
		if err != nil {
			return err
		}
		stats.TotalBookings += count
		switch status {
		case db.BookingStatusActive:
			stats.ActiveBookings = count
		case db.BookingStatusCompleted:
			stats.CompletedBookings = count
			stats.TotalRevenue = revenue
		case db.BookingStatusCancelled:
			stats.CancelledBookings = count
		case db.BookingStatusExpired:
			stats.ExpiredBookings = count
		}
		return nil
	})
	if err != nil {
		return BookingStats{}, fmt.Errorf("while computing booking stats: %w", err)
	}
	return stats, nil
}

func countRows(dbi db.Interface, table, whereStr string, args []any) (uint64, error) {
	var totalCount uint64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, table, whereStr)
	err := dbi.QueryRow(query, args...).Scan(&totalCount)
	if err != nil {
		return 0, fmt.Errorf("while counting rows in %s: %w", table, err)
	}
	return totalCount, nil
}
