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

// Package emulator provides software hardware wallets that speak the device
// session protocol. They back the CLI's --emulator mode and the session
// tests, and can be configured to misbehave: stay silent, fail the
// challenge, stall, deny, or return bad signatures.
package emulator

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/jeremyhahn/go-walletcore/pkg/device"
)

// Config describes an emulated device.
type Config struct {
	Kind device.Kind

	// PrivateKey is the device signing key. A key is generated when nil.
	PrivateKey *secp256k1.PrivateKey

	// ProtocolVersion reported in HelloAck. Defaults to device.ProtocolVersion.
	ProtocolVersion uint32

	// Firmware is reported as the device label.
	Firmware string

	// Unresponsive devices never answer anything.
	Unresponsive bool

	// WrongChallenge makes the device sign the wrong handshake digest.
	WrongChallenge bool

	// ClaimedKey, when set, is reported in HelloAck in place of the key the
	// device actually signs with.
	ClaimedKey *secp256k1.PublicKey

	// Approve decides each signature request. Nil approves everything.
	Approve func(digest []byte) bool

	// SignDelay is how long the "user" takes to decide.
	SignDelay time.Duration

	// StallSigning makes the device never answer signature requests.
	StallSigning bool

	// CorruptSignature makes the device sign a different digest.
	CorruptSignature bool

	// ReplayStale makes the device echo the previous sequence number.
	ReplayStale bool
}

// Device is one emulated hardware wallet. Only one connection to it may be
// open at a time.
type Device struct {
	config Config
	priv   *secp256k1.PrivateKey

	mu           sync.Mutex
	conn         *Conn
	signRequests int
}

// New creates a device.
func New(config Config) (*Device, error) {
	if config.Kind == device.KindUnknown {
		return nil, device.ErrUnknownKind
	}
	if config.ProtocolVersion == 0 {
		config.ProtocolVersion = device.ProtocolVersion
	}
	if config.Firmware == "" {
		config.Firmware = "emulator-" + config.Kind.String()
	}
	priv := config.PrivateKey
	if priv == nil {
		var err error
		priv, err = secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, fmt.Errorf("emulator: generate key: %w", err)
		}
	}
	return &Device{config: config, priv: priv}, nil
}

// Kind returns the device model.
func (d *Device) Kind() device.Kind {
	return d.config.Kind
}

// PublicKey returns the compressed device public key.
func (d *Device) PublicKey() []byte {
	return d.priv.PubKey().SerializeCompressed()
}

// SignRequests returns how many signature requests reached the device.
func (d *Device) SignRequests() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.signRequests
}

// Open connects to the device. It fails while another connection is open.
func (d *Device) Open() (*Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil && !d.conn.isClosed() {
		return nil, errors.New("emulator: device in use")
	}
	d.conn = &Conn{
		dev:     d,
		replies: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
	return d.conn, nil
}

// Unplug drops the open connection as if the cable were pulled.
func (d *Device) Unplug() {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (d *Device) handle(c *Conn, req *device.Frame) {
	if d.config.Unresponsive {
		return
	}
	switch req.Type {
	case device.MsgPing:
		c.reply(&device.Frame{Type: device.MsgPong, Nonce: req.Nonce})

	case device.MsgHello:
		pub := d.PublicKey()
		if d.config.ClaimedKey != nil {
			pub = d.config.ClaimedKey.SerializeCompressed()
		}
		h := device.HandshakeDigest(req.Nonce, d.config.Kind, pub)
		if d.config.WrongChallenge {
			h[0] ^= 0xff
		}
		c.reply(&device.Frame{
			Type:      device.MsgHelloAck,
			Version:   d.config.ProtocolVersion,
			PublicKey: pub,
			Challenge: ecdsa.Sign(d.priv, h).Serialize(),
			Label:     d.config.Firmware,
		})

	case device.MsgCapabilities:
		c.reply(&device.Frame{Type: device.MsgCapabilitiesAck, Nonce: req.Nonce, Status: device.StatusApproved})

	case device.MsgSignRequest:
		d.mu.Lock()
		d.signRequests++
		d.mu.Unlock()
		if d.config.StallSigning {
			return
		}
		resp := d.sign(req)
		if d.config.SignDelay > 0 {
			go c.replyAfter(d.config.SignDelay, resp)
			return
		}
		c.reply(resp)

	default:
		c.reply(&device.Frame{Type: device.MsgFailure, Status: device.StatusFailed, Label: "unsupported message"})
	}
}

func (d *Device) sign(req *device.Frame) *device.Frame {
	seq := req.Sequence
	if d.config.ReplayStale {
		seq--
	}
	if d.config.Approve != nil && !d.config.Approve(req.Digest) {
		return &device.Frame{Type: device.MsgSignResponse, Nonce: req.Nonce, Sequence: seq, Status: device.StatusDenied}
	}
	digest := req.Digest
	if d.config.CorruptSignature {
		sum := sha256.Sum256(digest)
		digest = sum[:]
	}
	sig := ecdsa.Sign(d.priv, digest)
	return &device.Frame{
		Type:      device.MsgSignResponse,
		Nonce:     req.Nonce,
		Sequence:  seq,
		Signature: sig.Serialize(),
		Status:    device.StatusApproved,
	}
}

// Conn is a device.Channel to an emulated device.
type Conn struct {
	dev       *Device
	replies   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

var _ device.Channel = (*Conn)(nil)

// Send delivers one frame to the device.
func (c *Conn) Send(ctx context.Context, msg []byte) error {
	if c.isClosed() {
		return device.ErrChannelClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	req, err := device.UnmarshalFrame(msg)
	if err != nil {
		return err
	}
	c.dev.handle(c, req)
	return nil
}

// Recv waits for the next reply.
func (c *Conn) Recv(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-c.replies:
		return msg, nil
	case <-c.closed:
		return nil, device.ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s", device.ErrChannelTimeout, timeout)
	}
}

// Close releases the connection.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Conn) reply(f *device.Frame) {
	select {
	case c.replies <- device.MarshalFrame(f):
	case <-c.closed:
	}
}

func (c *Conn) replyAfter(delay time.Duration, f *device.Frame) {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		c.reply(f)
	case <-c.closed:
	}
}

// Bus is a set of attached emulated devices. It implements
// device.Enumerator.
type Bus struct {
	mu      sync.Mutex
	devices []*Device
}

var _ device.Enumerator = (*Bus)(nil)

// NewBus returns a bus with devices attached in order.
func NewBus(devices ...*Device) *Bus {
	return &Bus{devices: devices}
}

// Attach plugs in a device.
func (b *Bus) Attach(d *Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = append(b.devices, d)
}

// Detach unplugs a device and drops any open connection to it.
func (b *Bus) Detach(d *Device) {
	b.mu.Lock()
	for i, dev := range b.devices {
		if dev == d {
			b.devices = append(b.devices[:i], b.devices[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	d.Unplug()
}

// Enumerate opens a connection to every idle attached device of kind, in
// attach order.
func (b *Bus) Enumerate(_ context.Context, kind device.Kind) ([]device.Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var channels []device.Channel
	for _, d := range b.devices {
		if d.Kind() != kind {
			continue
		}
		conn, err := d.Open()
		if err != nil {
			continue
		}
		channels = append(channels, conn)
	}
	return channels, nil
}
