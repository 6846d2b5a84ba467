// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sapcc/go-bits/jobloop"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/sqlext"
)

const (
	membershipExpirySweepInterval = 6 * time.Hour
	membershipExpiryLookahead     = 7 * 24 * time.Hour
)

// ExpiringMembershipsJob is a jobloop.CronJob.
//
// It reports memberships that will run out within the next week, so that site
// staff can reach out to the customer before the credentials stop validating.
// Expiry itself is never written back: a membership counts as expired purely
// by comparing its expiry timestamp against the clock at read time, so there
// is no row to flip and nothing for this job to mutate.
func (c *Collector) ExpiringMembershipsJob(registerer prometheus.Registerer) jobloop.Job {
	return (&jobloop.CronJob{
		Metadata: jobloop.JobMetadata{
			ReadableName: "report expiring memberships",
			CounterOpts: prometheus.CounterOpts{
				Name: "parkhaus_membership_expiry_sweeps",
				Help: "Counts runs of the membership expiry sweep.",
			},
		},
		Interval:     membershipExpirySweepInterval,
		InitialDelay: 1 * time.Minute,
		Task:         c.reportExpiringMemberships,
	}).Setup(registerer)
}

var expiringMembershipsQuery = sqlext.SimplifyWhitespace(`
	SELECT c.code, m.membership_type, m.expires_at
	  FROM memberships m
	  JOIN customers c ON c.id = m.customer_id
	 WHERE m.is_active AND m.expires_at > $1 AND m.expires_at <= $2
	 ORDER BY m.expires_at, c.code
`)

func (c *Collector) reportExpiringMemberships(_ context.Context, _ prometheus.Labels) error {
	now := c.MeasureTime()

	args := []any{now, now.Add(membershipExpiryLookahead)}
	err := sqlext.ForeachRow(c.DB, expiringMembershipsQuery, args, func(rows *sql.Rows) error {
		var (
			customerCode   string
			membershipType string
			expiresAt      time.Time
		)
		err := rows.Scan(&customerCode, &membershipType, &expiresAt)
		if err == nil {
			logg.Info("the %s membership of customer %s expires at %s",
				membershipType, customerCode, expiresAt.UTC().Format(time.RFC3339))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("while listing expiring memberships: %w", err)
	}
	return nil
}
