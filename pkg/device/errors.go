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

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no device of the requested kind answers
	// within the discovery window.
	ErrNotFound = errors.New("device: not found")

	// ErrUnknownKind is returned for an unrecognized device model name.
	ErrUnknownKind = errors.New("device: unknown kind")

	// ErrInvalidState is returned when an operation is not legal in the
	// session's current state.
	ErrInvalidState = errors.New("device: invalid session state")

	// ErrSessionBusy is returned when a signature request is already
	// outstanding. The second request is rejected, never queued.
	ErrSessionBusy = errors.New("device: session busy")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("device: session closed")

	// ErrInvalidDigest is returned when the digest is not 32 bytes.
	ErrInvalidDigest = errors.New("device: digest must be 32 bytes")

	// ErrChannelTimeout is returned by Channel.Recv when the timeout elapses.
	ErrChannelTimeout = errors.New("device: channel receive timeout")

	// ErrChannelClosed is returned by Channel operations after Close.
	ErrChannelClosed = errors.New("device: channel closed")

	// ErrMalformedFrame is returned when a frame cannot be decoded.
	ErrMalformedFrame = errors.New("device: malformed frame")

	// ErrUserDenied, ErrCancelled and ErrSigningTimeout match the
	// corresponding SigningError reasons with errors.Is.
	ErrUserDenied     = errors.New("device: user denied")
	ErrCancelled      = errors.New("device: signing cancelled")
	ErrSigningTimeout = errors.New("device: signing timeout")
)

// HandshakeError reports a protocol mismatch or a failed challenge. The
// session is Closed when it is returned.
type HandshakeError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device: %s handshake failed: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("device: %s handshake failed: %s", e.Kind, e.Reason)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// SigningReason classifies a SigningError.
type SigningReason int

const (
	// UserDenied means the user rejected the request on the device. The
	// session returns to Ready.
	UserDenied SigningReason = iota + 1
	// Cancelled means the session was closed or the caller gave up while
	// waiting.
	Cancelled
	// Timeout means the device did not answer in time. The session is
	// Closed and must be rediscovered.
	Timeout
	// BadResponse means the reply did not echo the request or carried an
	// invalid signature. The session is Closed.
	BadResponse
)

func (r SigningReason) String() string {
	switch r {
	case UserDenied:
		return "UserDenied"
	case Cancelled:
		return "Cancelled"
	case Timeout:
		return "Timeout"
	case BadResponse:
		return "BadResponse"
	default:
		return "Unknown"
	}
}

// SigningError is returned by Session.RequestSignature.
type SigningError struct {
	Reason   SigningReason
	Sequence uint64
	Err      error
}

func (e *SigningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device: signing request %d failed: %s: %v", e.Sequence, e.Reason, e.Err)
	}
	return fmt.Sprintf("device: signing request %d failed: %s", e.Sequence, e.Reason)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

// Is matches the reason sentinels.
func (e *SigningError) Is(target error) bool {
	switch target {
	case ErrUserDenied:
		return e.Reason == UserDenied
	case ErrCancelled:
		return e.Reason == Cancelled
	case ErrSigningTimeout:
		return e.Reason == Timeout
	}
	return false
}
