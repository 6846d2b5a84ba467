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

	"github.com/sapcc/parkhaus/internal/core"
	"github.com/sapcc/parkhaus/internal/db"
)

const machineLivenessCheckInterval = 1 * time.Minute

// MarkSilentMachinesJob is a jobloop.CronJob.
//
// It flips the connection status of machines whose controller has not sent a
// heartbeat for longer than the heartbeat timeout. Only the connection status
// is touched: the operational status stays under operator control, and a
// disconnected machine keeps serving bookings if its operator left it online.
func (c *Collector) MarkSilentMachinesJob(registerer prometheus.Registerer) jobloop.Job {
	return (&jobloop.CronJob{
		Metadata: jobloop.JobMetadata{
			ReadableName: "mark silent machines as disconnected",
			CounterOpts: prometheus.CounterOpts{
				Name: "parkhaus_machine_liveness_checks",
				Help: "Counts runs of the machine liveness check.",
			},
		},
		Interval: machineLivenessCheckInterval,
		Task:     c.markSilentMachines,
	}).Setup(registerer)
}

var markSilentMachinesQuery = sqlext.SimplifyWhitespace(`
	UPDATE machines SET connection_status = $1
	 WHERE connection_status = $2 AND (last_heartbeat_at IS NULL OR last_heartbeat_at <= $3)
	RETURNING site_id, code, last_heartbeat_at
`)

func (c *Collector) markSilentMachines(_ context.Context, _ prometheus.Labels) error {
	// the jitter staggers the flips when many machines went silent at once,
	// e.g. after a controller gateway restart
	cutoff := c.MeasureTime().Add(-c.AddJitter(core.MachineHeartbeatTimeout))

	args := []any{db.MachineDisconnected, db.MachineConnected, cutoff}
	err := sqlext.ForeachRow(c.DB, markSilentMachinesQuery, args, func(rows *sql.Rows) error {
		var (
			siteID          db.SiteID
			code            string
			lastHeartbeatAt *time.Time
		)
		err := rows.Scan(&siteID, &code, &lastHeartbeatAt)
		if err != nil {
			return err
		}
		if lastHeartbeatAt == nil {
			logg.Info("marking machine %s in site %d as disconnected: no heartbeat was ever received", code, siteID)
		} else {
			logg.Info("marking machine %s in site %d as disconnected: last heartbeat was at %s",
				code, siteID, lastHeartbeatAt.UTC().Format(time.RFC3339))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("while marking silent machines as disconnected: %w", err)
	}
	return nil
}
