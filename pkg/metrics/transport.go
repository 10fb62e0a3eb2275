// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-walletcore.
//
// go-walletcore is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package metrics

import (
	"net/http"
	"strconv"
	"time"
)

// StatusTransportError labels requests that failed before a response.
const StatusTransportError = "transport_error"

// RoundTripper wraps an http.RoundTripper and records exchange request
// metrics.
//
// Usage:
//
//	client := &http.Client{Transport: metrics.NewRoundTripper(nil)}
type RoundTripper struct {
	next http.RoundTripper
}

// NewRoundTripper instruments next. A nil next uses http.DefaultTransport.
func NewRoundTripper(next http.RoundTripper) *RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &RoundTripper{next: next}
}

// RoundTrip implements http.RoundTripper.
func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if !IsEnabled() {
		return rt.next.RoundTrip(req)
	}

	start := time.Now()
	resp, err := rt.next.RoundTrip(req)
	duration := time.Since(start).Seconds()

	statusCode := StatusTransportError
	if err == nil {
		statusCode = strconv.Itoa(resp.StatusCode)
	}
	RecordExchangeRequest(req.Method, statusCode, duration)
	return resp, err
}
