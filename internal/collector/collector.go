// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package collector contains the background jobs performed by the
// parkhaus-collect task: the machine liveness watchdog, the booking/pallet
// consistency scan and the membership expiry sweep, plus the aggregate metrics
// that are derived from DB state on scrape.
package collector

import (
	"math/rand/v2"
	"time"

	"github.com/go-gorp/gorp/v3"
)

// Collector provides methods that implement the collection jobs performed by
// parkhaus-collect. The struct contains references to the database and a few
// dependency injection slots; basically everything that needs to be replaced
// by a test double for the collector's unit tests.
type Collector struct {
	DB *gorp.DbMap
	// Usually time.Now, but can be changed inside unit tests.
	MeasureTime func() time.Time
	// Usually addJitter, but can be changed inside unit tests.
	AddJitter func(time.Duration) time.Duration
}

// NewCollector creates a Collector instance.
func NewCollector(dbm *gorp.DbMap) *Collector {
	return &Collector{
		DB:          dbm,
		MeasureTime: time.Now,
		AddJitter:   addJitter,
	}
}

// addJitter returns a random duration within +/- 10% of the requested value.
// This can be used to even out the load on a scheduled job over time, by
// spreading jobs that would normally be scheduled right next to each other out
// over time without corrupting the individual schedules too much.
func addJitter(duration time.Duration) time.Duration {
	r := rand.Float64() //NOTE: 0 <= r < 1
	return time.Duration(float64(duration) * (0.9 + 0.2*r))
}
