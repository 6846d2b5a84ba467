// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package datamodel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sapcc/go-bits/logg"
)

// Pallet side-effects run after their booking has committed, so a failure
// cannot be turned into an error response anymore. It surfaces here instead,
// for operators to reconcile manually.
var failedPalletSideeffectsCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "parkhaus_failed_pallet_sideeffects",
		Help: "Counts pallet side-effects that failed after their booking write had already been committed.",
	},
	[]string{"operation"},
)

func init() {
	prometheus.MustRegister(failedPalletSideeffectsCounter)
}

// reportPalletSideeffect logs and counts the outcome of a best-effort pallet
// operation. A nil error is ignored.
func reportPalletSideeffect(operation, bookingNumber string, err error) {
	if err == nil {
		return
	}
	failedPalletSideeffectsCounter.WithLabelValues(operation).Inc()
	logg.Error("while performing pallet %s for booking %s: %s", operation, bookingNumber, err.Error())
}
