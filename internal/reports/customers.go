// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package reports

import (
	"fmt"
	"strings"

	"github.com/sapcc/parkhaus/internal/core"
	"github.com/sapcc/parkhaus/internal/db"
)

// ListCustomers returns one page of customers, newest first, plus the
// unpaginated total count. A nil status filter includes soft-deleted records.
func ListCustomers(dbi db.Interface, status *db.CustomerStatus, page core.Pagination) ([]db.Customer, uint64, error) {
	whereStr := "TRUE"
	var args []any
	if status != nil {
		whereStr = "status = $1"
		args = append(args, *status)
	}

	totalCount, err := countRows(dbi, "customers", whereStr, args)
	if err != nil {
		return nil, 0, err
	}

	var customers []db.Customer
	query := fmt.Sprintf(
		`SELECT * FROM customers WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		whereStr, page.Limit, page.Offset())
	_, err = dbi.Select(&customers, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("while listing customers: %w", err)
	}
	return customers, totalCount, nil
}

// searchCustomerConditions maps each search type to the condition that the
// substring pattern (always the last query argument) is matched against.
// Vehicle search goes through the plates of currently attached vehicles.
var searchCustomerConditions = map[string]string{
	"phone": "phone LIKE $%[1]d",
	"name":  "(first_name || ' ' || last_name) ILIKE $%[1]d",
	"vehicle": `EXISTS (
		SELECT 1 FROM vehicles v WHERE v.customer_id = customers.id AND v.is_active AND v.plate ILIKE $%[1]d
	)`,
}

var searchCustomerTypes = []string{"phone", "name", "vehicle"}

// SearchCustomers performs a substring search over active customers.
// Results are capped at 50.
func SearchCustomers(dbi db.Interface, q, searchType string) ([]db.Customer, error) {
	args := []any{db.CustomerStatusActive, matchPattern(q)}
	conditions := []string{"status = $1"}

	var matchConditions []string
	for _, key := range searchCustomerTypes {
		if searchType == key || searchType == "all" {
			matchConditions = append(matchConditions, fmt.Sprintf(searchCustomerConditions[key], len(args)))
		}
	}
	if len(matchConditions) == 0 {
		return nil, fmt.Errorf("unknown search type: %q", searchType)
	}
	conditions = append(conditions, "("+strings.Join(matchConditions, " OR ")+")")

	var customers []db.Customer
	query := fmt.Sprintf(
		`SELECT * FROM customers WHERE %s ORDER BY created_at DESC, id DESC LIMIT 50`,
		strings.Join(conditions, " AND "))
	_, err := dbi.Select(&customers, query, args...)
	if err != nil {
		return nil, fmt.Errorf("while searching customers: %w", err)
	}
	return customers, nil
}
