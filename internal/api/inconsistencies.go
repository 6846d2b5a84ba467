// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"

	"github.com/sapcc/go-bits/httpapi"

	"github.com/sapcc/parkhaus/internal/reports"
)

// ListInconsistencies handles GET /v1/inconsistencies.
//
// Booking writes are authoritative and pallet side-effects are best-effort,
// so the two can drift apart. This report surfaces the drift for manual
// reconciliation; it spans all sites and is therefore admin-only.
func (p *v1Provider) ListInconsistencies(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v1/inconsistencies")
	token := p.CheckToken(r)
	if !token.Require(w, "network:view-inconsistencies") {
		return
	}

	inconsistencies, err := reports.GetInconsistencies(p.DB)
	if p.respondError(w, err) {
		return
	}
	p.respondData(w, http.StatusOK, "inconsistencies retrieved", inconsistencies)
}
