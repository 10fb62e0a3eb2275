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

package device

// State is the lifecycle position of a Session.
type State int

const (
	// StateDiscovering is the initial state while a channel is being probed.
	StateDiscovering State = iota
	// StateHandshaking is entered once a responsive channel is open.
	StateHandshaking
	// StateAuthenticated follows a valid challenge response.
	StateAuthenticated
	// StateReady follows capability negotiation. Signing is allowed.
	StateReady
	// StateSigningInFlight is the sub-state of Ready while one signature
	// request is outstanding.
	StateSigningInFlight
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDiscovering:
		return "Discovering"
	case StateHandshaking:
		return "Handshaking"
	case StateAuthenticated:
		return "Authenticated"
	case StateReady:
		return "Ready"
	case StateSigningInFlight:
		return "SigningInFlight"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// transitions lists the legal forward moves. Any state may move to Closed.
var transitions = map[State][]State{
	StateDiscovering:     {StateHandshaking},
	StateHandshaking:     {StateAuthenticated},
	StateAuthenticated:   {StateReady},
	StateReady:           {StateSigningInFlight},
	StateSigningInFlight: {StateReady},
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	if next == StateClosed {
		return s != StateClosed
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
