// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sapcc/go-bits/jobloop"
	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/parkhaus/internal/reports"
)

// CheckConsistencyJob is a jobloop.CronJob.
//
// Booking transitions update the pallet occupancy records on a best-effort
// basis, so the two can drift apart after partial failures. This job does not
// repair anything (reconciliation needs an operator looking at the physical
// machine); it surfaces the drift in the log. The matching gauge metrics are
// computed on scrape by AggregateMetricsCollector, and the full detail view is
// served by the inconsistency report in the API.
func (c *Collector) CheckConsistencyJob(registerer prometheus.Registerer) jobloop.Job {
	return (&jobloop.CronJob{
		Metadata: jobloop.JobMetadata{
			ReadableName: "check booking/pallet consistency",
			CounterOpts: prometheus.CounterOpts{
				Name: "parkhaus_consistency_checks",
				Help: "Counts runs of the booking/pallet consistency check.",
			},
		},
		Interval:     1 * time.Hour,
		InitialDelay: 10 * time.Second,
		Task:         c.checkConsistency,
	}).Setup(registerer)
}

func (c *Collector) checkConsistency(_ context.Context, _ prometheus.Labels) error {
	inconsistencies, err := reports.GetInconsistencies(c.DB)
	if err != nil {
		return err
	}

	for _, mo := range inconsistencies.MissingOccupancies {
		logg.Info("active booking %s (site %d) names pallet %d on machine %s, but the pallet does not hold vehicle %s",
			mo.BookingNumber, mo.SiteID, mo.PalletNumber, mo.MachineNumber, mo.VehicleNumber)
	}
	for _, so := range inconsistencies.StrandedOccupants {
		logg.Info("pallet %d position %d on machine %s (site %d) holds vehicle %s for booking %s, but that booking is %s",
			so.PalletNumber, so.Position, so.MachineCode, so.SiteID, so.VehicleNumber, so.BookingNumber, so.BookingStatus)
	}
	return nil
}
