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
	"context"
	"time"
)

// Channel is an opaque, exclusively owned byte-stream to one device. The
// transport behind it (USB HID, WebUSB, a bridge daemon, an emulator) frames
// whole messages: one Send is one message and one Recv returns one message.
type Channel interface {
	// Send writes one message.
	Send(ctx context.Context, msg []byte) error

	// Recv blocks until one message arrives, timeout elapses or ctx is done.
	// A timeout returns an error wrapping ErrChannelTimeout.
	Recv(ctx context.Context, timeout time.Duration) ([]byte, error)

	// Close releases the channel. Pending Recv calls return ErrChannelClosed.
	Close() error
}

// Enumerator lists channels to connected devices of one kind.
type Enumerator interface {
	Enumerate(ctx context.Context, kind Kind) ([]Channel, error)
}

// EnumeratorFunc adapts a function to Enumerator.
type EnumeratorFunc func(ctx context.Context, kind Kind) ([]Channel, error)

// Enumerate calls f(ctx, kind).
func (f EnumeratorFunc) Enumerate(ctx context.Context, kind Kind) ([]Channel, error) {
	return f(ctx, kind)
}
