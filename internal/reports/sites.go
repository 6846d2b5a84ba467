// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package reports

import (
	"fmt"
	"strings"
	"time"

	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/parkhaus/internal/db"
)

// ListSites returns the sites that the given scope may see, ordered by code.
func ListSites(dbi db.Interface, scope SiteScope, status *db.SiteStatus) ([]db.Site, error) {
	conditions := []string{"TRUE"}
	var args []any
	scope.addTo(&conditions, &args, "id")
	if status != nil {
		args = append(args, *status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	var sites []db.Site
	query := fmt.Sprintf(`SELECT * FROM sites WHERE %s ORDER BY code`, strings.Join(conditions, " AND "))
	_, err := dbi.Select(&sites, query, args...)
	if err != nil {
		return nil, fmt.Errorf("while listing sites: %w", err)
	}
	return sites, nil
}

// SiteStatistics contains the on-demand aggregates for one site.
type SiteStatistics struct {
	Machines SiteMachineStats `json:"machines"`
	Bookings SiteBookingStats `json:"bookings"`
	Revenue  SiteRevenueStats `json:"revenue"`
}

// SiteMachineStats appears in type SiteStatistics.
type SiteMachineStats struct {
	Total  uint64 `json:"total"`
	Online uint64 `json:"online"`
}

// SiteBookingStats appears in type SiteStatistics.
type SiteBookingStats struct {
	Total  uint64 `json:"total"`
	Today  uint64 `json:"today"`
	Active uint64 `json:"active"`
}

// SiteRevenueStats appears in type SiteStatistics.
// Only captured payments on completed bookings count as revenue.
type SiteRevenueStats struct {
	Total float64 `json:"total"`
	Today float64 `json:"today"`
}

var (
	siteMachineStatsQuery = sqlext.SimplifyWhitespace(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'online' THEN 1 ELSE 0 END), 0)
		  FROM machines WHERE site_id = $1
	`)

	siteBookingStatsQuery = sqlext.SimplifyWhitespace(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN start_time >= $2 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN payment_amount ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'completed' AND end_time >= $2 THEN payment_amount ELSE 0 END), 0)
		  FROM bookings WHERE site_id = $1
	`)
)

// GetSiteStatistics computes the statistics aggregate for one site. "Today"
// starts at midnight in the local timezone of the given reference time.
func GetSiteStatistics(dbi db.Interface, siteID db.SiteID, now time.Time) (SiteStatistics, error) {
	var stats SiteStatistics
	err := dbi.QueryRow(siteMachineStatsQuery, siteID).
		Scan(&stats.Machines.Total, &stats.Machines.Online)
	if err != nil {
		return SiteStatistics{}, fmt.Errorf("while counting machines of site %d: %w", siteID, err)
	}

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	err = dbi.QueryRow(siteBookingStatsQuery, siteID, startOfDay).
		Scan(&stats.Bookings.Total, &stats.Bookings.Today, &stats.Bookings.Active,
			&stats.Revenue.Total, &stats.Revenue.Today)
	if err != nil {
		return SiteStatistics{}, fmt.Errorf("while aggregating bookings of site %d: %w", siteID, err)
	}
	return stats, nil
}
