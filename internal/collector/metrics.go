// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"database/sql"
	"time"

	"github.com/go-gorp/gorp/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sapcc/go-bits/sqlext"
)

var machineCountGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "parkhaus_machines",
		Help: "Number of parking machines by site, operational status and controller connection status.",
	},
	[]string{"site", "status", "connection_status"},
)

var availableCapacityGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "parkhaus_available_capacity",
		Help: "Number of vehicles that in-service pallets of online machines can still take, by site and vehicle class.",
	},
	[]string{"site", "vehicle_type"},
)

var parkedVehiclesGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "parkhaus_parked_vehicles",
		Help: "Number of vehicles currently recorded on pallets, by site.",
	},
	[]string{"site"},
)

var activeBookingsGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "parkhaus_active_bookings",
		Help: "Number of bookings in status \"active\", by site.",
	},
	[]string{"site"},
)

var activeMembershipsGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "parkhaus_active_memberships",
		Help: "Number of memberships that are active and not yet expired.",
	},
)

var missingOccupancyCountGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "parkhaus_bookings_without_occupancy",
		Help: "Number of active bookings whose vehicle is not recorded on the booked pallet.",
	},
)

var strandedOccupantCountGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "parkhaus_occupancies_without_booking",
		Help: "Number of pallet occupancy records whose booking is terminal or unknown.",
	},
)

// AggregateMetricsCollector is a prometheus.Collector that submits
// dynamically-calculated aggregate metrics about the parking network.
type AggregateMetricsCollector struct {
	DB *gorp.DbMap
	// Usually time.Now, but can be changed inside unit tests.
	MeasureTime func() time.Time
	// Usually logg.Error, but can be changed inside unit tests.
	LogError func(msg string, args ...any)
}

// Describe implements the prometheus.Collector interface.
func (c *AggregateMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	machineCountGauge.Describe(ch)
	availableCapacityGauge.Describe(ch)
	parkedVehiclesGauge.Describe(ch)
	activeBookingsGauge.Describe(ch)
	activeMembershipsGauge.Describe(ch)
	missingOccupancyCountGauge.Describe(ch)
	strandedOccupantCountGauge.Describe(ch)
}

var (
	machineCountQuery = sqlext.SimplifyWhitespace(`
		SELECT s.code, m.status, m.connection_status, COUNT(*)
		  FROM machines m JOIN sites s ON s.id = m.site_id
		 GROUP BY s.code, m.status, m.connection_status
	`)
	availableCapacityQuery = sqlext.SimplifyWhitespace(`
		SELECT s.code, m.vehicle_type, SUM(p.vehicle_capacity - p.current_occupancy)
		  FROM pallets p
		  JOIN machines m ON m.id = p.machine_id
		  JOIN sites s ON s.id = m.site_id
		 WHERE m.status = 'online' AND p.status NOT IN ('maintenance', 'blocked')
		 GROUP BY s.code, m.vehicle_type
	`)
	parkedVehiclesQuery = sqlext.SimplifyWhitespace(`
		SELECT s.code, COUNT(*)
		  FROM pallet_occupants po
		  JOIN pallets p ON p.id = po.pallet_id
		  JOIN machines m ON m.id = p.machine_id
		  JOIN sites s ON s.id = m.site_id
		 GROUP BY s.code
	`)
	activeBookingsQuery = sqlext.SimplifyWhitespace(`
		SELECT s.code, COUNT(*)
		  FROM bookings b JOIN sites s ON s.id = b.site_id
		 WHERE b.status = 'active'
		 GROUP BY s.code
	`)
	activeMembershipsQuery = sqlext.SimplifyWhitespace(`
		SELECT COUNT(*) FROM memberships WHERE is_active AND expires_at > $1
	`)
	missingOccupancyCountQuery = sqlext.SimplifyWhitespace(`
		SELECT COUNT(*) FROM bookings b
		 WHERE b.status = 'active' AND NOT EXISTS (
		         SELECT 1 FROM pallet_occupants po
		           JOIN pallets p ON po.pallet_id = p.id
		           JOIN machines m ON p.machine_id = m.id
		          WHERE po.booking_number = b.number AND m.site_id = b.site_id
		            AND m.code = b.machine_number AND p.number = b.pallet_number
		       )
	`)
	strandedOccupantCountQuery = sqlext.SimplifyWhitespace(`
		SELECT COUNT(*)
		  FROM pallet_occupants po
		  JOIN pallets p ON po.pallet_id = p.id
		  JOIN machines m ON p.machine_id = m.id
		  LEFT JOIN bookings b ON b.number = po.booking_number AND b.site_id = m.site_id
		 WHERE b.id IS NULL OR b.status IN ('completed', 'cancelled', 'expired')
	`)
)

// Collect implements the prometheus.Collector interface.
func (c *AggregateMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	//NOTE: I use NewConstMetric() instead of storing the values in the GaugeVec
	//instances because it is faster.

	descCh := make(chan *prometheus.Desc, 1)
	machineCountGauge.Describe(descCh)
	machineCountDesc := <-descCh
	availableCapacityGauge.Describe(descCh)
	availableCapacityDesc := <-descCh
	parkedVehiclesGauge.Describe(descCh)
	parkedVehiclesDesc := <-descCh
	activeBookingsGauge.Describe(descCh)
	activeBookingsDesc := <-descCh
	activeMembershipsGauge.Describe(descCh)
	activeMembershipsDesc := <-descCh
	missingOccupancyCountGauge.Describe(descCh)
	missingOccupancyCountDesc := <-descCh
	strandedOccupantCountGauge.Describe(descCh)
	strandedOccupantCountDesc := <-descCh

	err := sqlext.ForeachRow(c.DB, machineCountQuery, nil, func(rows *sql.Rows) error {
		var (
			siteCode         string
			status           string
			connectionStatus string
			count            uint64
		)
		err := rows.Scan(&siteCode, &status, &connectionStatus, &count)
		if err != nil {
			return err
		}
		ch <- prometheus.MustNewConstMetric(machineCountDesc,
			prometheus.GaugeValue, float64(count),
			siteCode, status, connectionStatus)
		return nil
	})
	if err != nil {
		c.LogError("collect machine count metrics failed: %s", err.Error())
	}

	err = sqlext.ForeachRow(c.DB, availableCapacityQuery, nil, func(rows *sql.Rows) error {
		var (
			siteCode    string
			vehicleType string
			capacity    uint64
		)
		err := rows.Scan(&siteCode, &vehicleType, &capacity)
		if err != nil {
			return err
		}
		ch <- prometheus.MustNewConstMetric(availableCapacityDesc,
			prometheus.GaugeValue, float64(capacity),
			siteCode, vehicleType)
		return nil
	})
	if err != nil {
		c.LogError("collect available capacity metrics failed: %s", err.Error())
	}

	err = sqlext.ForeachRow(c.DB, parkedVehiclesQuery, nil, func(rows *sql.Rows) error {
		var (
			siteCode string
			count    uint64
		)
		err := rows.Scan(&siteCode, &count)
		if err != nil {
			return err
		}
		ch <- prometheus.MustNewConstMetric(parkedVehiclesDesc,
			prometheus.GaugeValue, float64(count), siteCode)
		return nil
	})
	if err != nil {
		c.LogError("collect parked vehicle metrics failed: %s", err.Error())
	}

	err = sqlext.ForeachRow(c.DB, activeBookingsQuery, nil, func(rows *sql.Rows) error {
		var (
			siteCode string
			count    uint64
		)
		err := rows.Scan(&siteCode, &count)
		if err != nil {
			return err
		}
		ch <- prometheus.MustNewConstMetric(activeBookingsDesc,
			prometheus.GaugeValue, float64(count), siteCode)
		return nil
	})
	if err != nil {
		c.LogError("collect active booking metrics failed: %s", err.Error())
	}

	activeMemberships, err := c.DB.SelectInt(activeMembershipsQuery, c.MeasureTime())
	if err != nil {
		c.LogError("collect membership metrics failed: %s", err.Error())
	} else {
		ch <- prometheus.MustNewConstMetric(activeMembershipsDesc,
			prometheus.GaugeValue, float64(activeMemberships))
	}

	missingOccupancies, err := c.DB.SelectInt(missingOccupancyCountQuery)
	if err != nil {
		c.LogError("collect consistency metrics failed: %s", err.Error())
	} else {
		ch <- prometheus.MustNewConstMetric(missingOccupancyCountDesc,
			prometheus.GaugeValue, float64(missingOccupancies))
	}

	strandedOccupants, err := c.DB.SelectInt(strandedOccupantCountQuery)
	if err != nil {
		c.LogError("collect consistency metrics failed: %s", err.Error())
	} else {
		ch <- prometheus.MustNewConstMetric(strandedOccupantCountDesc,
			prometheus.GaugeValue, float64(strandedOccupants))
	}
}
