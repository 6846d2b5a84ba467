// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/audittools"
	"github.com/sapcc/go-bits/must"

	"github.com/sapcc/parkhaus/internal/auth"
	"github.com/sapcc/parkhaus/internal/db"
)

// auditChange records an audit event for a state-changing operation. The
// auditor is a null implementation unless event publishing was configured, so
// handlers call this unconditionally.
func (p *v1Provider) auditChange(r *http.Request, token *auth.Token, action cadf.Action, reasonCode int, target audittools.Target) {
	p.auditor.Record(audittools.Event{
		Time:       p.timeNow(),
		Request:    r,
		User:       token,
		ReasonCode: reasonCode,
		Action:     action,
		Target:     target,
	})
}

// bookingEventTarget renders a cadf.Event.Target for booking lifecycle events.
// The payload is the public representation, so OTP codes never enter the
// audit trail.
type bookingEventTarget struct {
	Booking db.Booking
	// Detail optionally carries what changed (payment, extension, reason).
	Detail any
}

// Render implements the audittools.Target interface.
func (t bookingEventTarget) Render() cadf.Resource {
	res := cadf.Resource{
		TypeURI: "service/parking/booking",
		ID:      t.Booking.Number,
		Attachments: []cadf.Attachment{
			must.Return(cadf.NewJSONAttachment("payload", renderBooking(t.Booking, false))),
		},
	}
	if t.Detail != nil {
		res.Attachments = append(res.Attachments,
			must.Return(cadf.NewJSONAttachment("context-payload", t.Detail)))
	}
	return res
}

// palletEventTarget renders a cadf.Event.Target for pallet state changes.
type palletEventTarget struct {
	Machine db.Machine
	Pallet  db.Pallet
	Detail  any
}

// Render implements the audittools.Target interface.
func (t palletEventTarget) Render() cadf.Resource {
	res := cadf.Resource{
		TypeURI: "service/parking/pallet",
		ID:      strconv.FormatInt(int64(t.Pallet.ID), 10),
		Name:    fmt.Sprintf("%s/%d", t.Machine.Code, t.Pallet.Number),
		Attachments: []cadf.Attachment{
			must.Return(cadf.NewJSONAttachment("payload", renderPallet(t.Pallet, nil))),
		},
	}
	if t.Detail != nil {
		res.Attachments = append(res.Attachments,
			must.Return(cadf.NewJSONAttachment("context-payload", t.Detail)))
	}
	return res
}

// machineEventTarget renders a cadf.Event.Target for machine lifecycle events.
type machineEventTarget struct {
	Machine db.Machine
	Detail  any
}

// Render implements the audittools.Target interface.
func (t machineEventTarget) Render() cadf.Resource {
	res := cadf.Resource{
		TypeURI: "service/parking/machine",
		ID:      strconv.FormatInt(int64(t.Machine.ID), 10),
		Name:    t.Machine.Code,
		Attachments: []cadf.Attachment{
			must.Return(cadf.NewJSONAttachment("payload", map[string]any{
				"siteId":      t.Machine.SiteID,
				"machineType": t.Machine.Type,
				"vehicleType": t.Machine.VehicleType,
				"status":      t.Machine.Status,
			})),
		},
	}
	if t.Detail != nil {
		res.Attachments = append(res.Attachments,
			must.Return(cadf.NewJSONAttachment("context-payload", t.Detail)))
	}
	return res
}

// siteEventTarget renders a cadf.Event.Target for site lifecycle events.
type siteEventTarget struct {
	Site   db.Site
	Detail any
}

// Render implements the audittools.Target interface.
func (t siteEventTarget) Render() cadf.Resource {
	res := cadf.Resource{
		TypeURI: "service/parking/site",
		ID:      t.Site.Code,
		Name:    t.Site.Name,
	}
	if t.Detail != nil {
		res.Attachments = []cadf.Attachment{
			must.Return(cadf.NewJSONAttachment("context-payload", t.Detail)),
		}
	}
	return res
}

// customerEventTarget renders a cadf.Event.Target for customer record events.
type customerEventTarget struct {
	Customer db.Customer
	Detail   any
}

// Render implements the audittools.Target interface.
func (t customerEventTarget) Render() cadf.Resource {
	res := cadf.Resource{
		TypeURI: "service/parking/customer",
		ID:      t.Customer.Code,
		Name:    t.Customer.FullName(),
	}
	if t.Detail != nil {
		res.Attachments = []cadf.Attachment{
			must.Return(cadf.NewJSONAttachment("context-payload", t.Detail)),
		}
	}
	return res
}

// membershipEventTarget renders a cadf.Event.Target for membership lifecycle
// events. Only the membership number and coverage metadata are recorded; the
// PIN is a write-only credential and stays out of the audit trail.
type membershipEventTarget struct {
	CustomerCode string
	Membership   db.Membership
}

// Render implements the audittools.Target interface.
func (t membershipEventTarget) Render() cadf.Resource {
	return cadf.Resource{
		TypeURI: "service/parking/membership",
		ID:      t.Membership.Number,
		Name:    t.CustomerCode,
		Attachments: []cadf.Attachment{
			must.Return(cadf.NewJSONAttachment("payload", map[string]any{
				"type":                t.Membership.Type,
				"coveredVehicleTypes": t.Membership.CoveredVehicleTypes,
				"expiresAt":           t.Membership.ExpiresAt,
				"isActive":            t.Membership.IsActive,
			})),
		},
	}
}

// siteAssignmentEventTarget renders a cadf.Event.Target for user-site
// assignment changes.
type siteAssignmentEventTarget struct {
	User       db.User
	Assignment db.UserSiteAssignment
}

// Render implements the audittools.Target interface.
func (t siteAssignmentEventTarget) Render() cadf.Resource {
	return cadf.Resource{
		TypeURI: "service/parking/site-assignment",
		ID:      strconv.FormatInt(t.Assignment.ID, 10),
		Name:    t.User.OperatorID,
		Attachments: []cadf.Attachment{
			must.Return(cadf.NewJSONAttachment("payload", map[string]any{
				"siteId":      t.Assignment.SiteID,
				"siteRole":    t.Assignment.Role,
				"permissions": t.Assignment.Permissions,
			})),
		},
	}
}
