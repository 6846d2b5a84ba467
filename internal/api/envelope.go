// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"time"

	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/respondwith"

	"github.com/sapcc/parkhaus/internal/core"
)

// successEnvelope is the wire format shared by all success responses.
type successEnvelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       any             `json:"data,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Pagination *paginationInfo `json:"pagination,omitempty"`
}

// paginationInfo appears in paginated list responses.
type paginationInfo struct {
	Page       uint64 `json:"page"`
	Limit      uint64 `json:"limit"`
	TotalCount uint64 `json:"totalCount"`
	TotalPages uint64 `json:"totalPages"`
}

// respondData writes a success response envelope.
func (p *v1Provider) respondData(w http.ResponseWriter, status int, message string, data any) {
	respondwith.JSON(w, status, successEnvelope{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: p.timeNow(),
	})
}

// respondPaginated writes a success response envelope with pagination info.
func (p *v1Provider) respondPaginated(w http.ResponseWriter, message string, data any, page core.Pagination, totalCount uint64) {
	respondwith.JSON(w, http.StatusOK, successEnvelope{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: p.timeNow(),
		Pagination: &paginationInfo{
			Page:       page.Page,
			Limit:      page.Limit,
			TotalCount: totalCount,
			TotalPages: page.TotalPages(totalCount),
		},
	})
}

// respondError writes `err` as an error response envelope and returns true.
// A nil error writes nothing and returns false, so that this can guard
// fallible calls in the same way as respondwith.ErrorText.
func (p *v1Provider) respondError(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}
	serr := core.AsServiceError(err)
	if serr.Kind == core.ErrInternal {
		logg.Error("internal error during API request: %s", err.Error())
	}
	status, body := core.BuildErrorResponse(err, p.timeNow())
	respondwith.JSON(w, status, body)
	return true
}
