// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package pprofapi provides a httpapi.API wrapper for the net/http/pprof
// package. The wrapper exists because importing net/http/pprof registers its
// handlers on http.DefaultServeMux; going through this package keeps the
// profiling endpoints off the public router unless PARKHAUS_ENABLE_PPROF is
// set, and guards them with an authorization callback even then.
package pprofapi

import (
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/httpext"
)

// API is a httpapi.API wrapping net/http/pprof.
type API struct {
	IsAuthorized func(r *http.Request) bool
}

var pprofHandlers = map[string]http.HandlerFunc{
	"/debug/pprof/":        pprof.Index,
	"/debug/pprof/cmdline": pprof.Cmdline,
	"/debug/pprof/profile": pprof.Profile,
	"/debug/pprof/symbol":  pprof.Symbol,
	"/debug/pprof/trace":   pprof.Trace,
}

// AddTo implements the httpapi.API interface.
func (a API) AddTo(r *mux.Router) {
	if a.IsAuthorized == nil {
		panic("pprofapi.API.AddTo() called with IsAuthorized == nil!")
	}
	for path, handler := range pprofHandlers {
		r.Methods("GET").Path(path).HandlerFunc(a.guard(path, handler))
	}
}

func (a API) guard(path string, inner http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpapi.IdentifyEndpoint(r, path)
		httpapi.SkipRequestLog(r)
		if a.IsAuthorized(r) {
			inner(w, r)
		} else {
			http.Error(w, "forbidden", http.StatusForbidden)
		}
	}
}

// IsRequestFromLocalhost checks whether the given request originates from
// `127.0.0.1` or `::1`. It satisfies the interface of API.IsAuthorized.
func IsRequestFromLocalhost(r *http.Request) bool {
	ip := httpext.GetRequesterIPFor(r)
	return ip == "127.0.0.1" || ip == "::1"
}
