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

package emulator

import (
	"context"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/jeremyhahn/go-walletcore/pkg/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, c *Conn, req *device.Frame) *device.Frame {
	t.Helper()
	require.NoError(t, c.Send(context.Background(), device.MarshalFrame(req)))
	raw, err := c.Recv(context.Background(), time.Second)
	require.NoError(t, err)
	f, err := device.UnmarshalFrame(raw)
	require.NoError(t, err)
	return f
}

func TestDevice_PingPong(t *testing.T) {
	d, err := New(Config{Kind: device.TrezorOne})
	require.NoError(t, err)
	c, err := d.Open()
	require.NoError(t, err)
	defer c.Close()

	pong := roundTrip(t, c, &device.Frame{Type: device.MsgPing, Nonce: []byte{9, 9}})
	assert.Equal(t, device.MsgPong, pong.Type)
	assert.Equal(t, []byte{9, 9}, pong.Nonce)
}

func TestDevice_HelloAnswersChallenge(t *testing.T) {
	d, err := New(Config{Kind: device.LedgerS})
	require.NoError(t, err)
	c, err := d.Open()
	require.NoError(t, err)
	defer c.Close()

	nonce := make([]byte, device.NonceSize)
	ack := roundTrip(t, c, &device.Frame{Type: device.MsgHello, Version: device.ProtocolVersion, Nonce: nonce})
	assert.Equal(t, device.MsgHelloAck, ack.Type)
	assert.Equal(t, d.PublicKey(), ack.PublicKey)
	proof, err := ecdsa.ParseDERSignature(ack.Challenge)
	require.NoError(t, err)
	pub, err := secp256k1.ParsePubKey(ack.PublicKey)
	require.NoError(t, err)
	assert.True(t, proof.Verify(device.HandshakeDigest(nonce, device.LedgerS, ack.PublicKey), pub))
	assert.False(t, proof.Verify(device.HandshakeDigest(nonce, device.LedgerX, ack.PublicKey), pub), "the digest binds the device kind")
	assert.Equal(t, "emulator-LedgerS", ack.Label)
}

func TestDevice_UnsupportedMessage(t *testing.T) {
	d, err := New(Config{Kind: device.LedgerX})
	require.NoError(t, err)
	c, err := d.Open()
	require.NoError(t, err)
	defer c.Close()

	f := roundTrip(t, c, &device.Frame{Type: device.MsgPong})
	assert.Equal(t, device.MsgFailure, f.Type)
}

func TestConn_RecvTimeoutAndClose(t *testing.T) {
	d, err := New(Config{Kind: device.LedgerX, Unresponsive: true})
	require.NoError(t, err)
	c, err := d.Open()
	require.NoError(t, err)

	_, err = c.Recv(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, device.ErrChannelTimeout)

	require.NoError(t, c.Close())
	_, err = c.Recv(context.Background(), time.Second)
	assert.ErrorIs(t, err, device.ErrChannelClosed)
	assert.ErrorIs(t, c.Send(context.Background(), nil), device.ErrChannelClosed)
}

func TestDevice_ExclusiveOpen(t *testing.T) {
	d, err := New(Config{Kind: device.LedgerX})
	require.NoError(t, err)

	c, err := d.Open()
	require.NoError(t, err)
	_, err = d.Open()
	assert.Error(t, err)

	d.Unplug()
	assert.True(t, c.isClosed())
	_, err = d.Open()
	assert.NoError(t, err)
}

func TestBus_EnumerateFiltersKindAndBusy(t *testing.T) {
	ledger, _ := New(Config{Kind: device.LedgerX})
	trezor, _ := New(Config{Kind: device.TrezorT})
	bus := NewBus(ledger, trezor)

	chans, err := bus.Enumerate(context.Background(), device.LedgerX)
	require.NoError(t, err)
	require.Len(t, chans, 1)

	again, err := bus.Enumerate(context.Background(), device.LedgerX)
	require.NoError(t, err)
	assert.Empty(t, again, "a device with an open connection is not listed")

	bus.Detach(ledger)
	none, err := bus.Enumerate(context.Background(), device.LedgerX)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestNew_RejectsUnknownKind(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, device.ErrUnknownKind)
}
