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
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/jeremyhahn/go-walletcore/pkg/adapters/logger"
	"github.com/jeremyhahn/go-walletcore/pkg/metrics"
)

// Default timeouts.
const (
	DefaultDiscoveryTimeout = 10 * time.Second
	DefaultPollInterval     = 250 * time.Millisecond
	DefaultProbeTimeout     = 500 * time.Millisecond
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultSigningTimeout   = 2 * time.Minute
)

// Config controls discovery and session timeouts. Zero values select the
// defaults.
type Config struct {
	// DiscoveryTimeout bounds the whole discovery window.
	DiscoveryTimeout time.Duration

	// PollInterval is the pause between enumeration rounds.
	PollInterval time.Duration

	// ProbeTimeout bounds the liveness ping sent to each candidate.
	ProbeTimeout time.Duration

	// HandshakeTimeout bounds each handshake round trip.
	HandshakeTimeout time.Duration

	// SigningTimeout bounds the wait for the user to confirm on the device.
	SigningTimeout time.Duration

	Logger logger.Logger
}

func (c *Config) withDefaults() Config {
	var cfg Config
	if c != nil {
		cfg = *c
	}
	if cfg.DiscoveryTimeout <= 0 {
		cfg.DiscoveryTimeout = DefaultDiscoveryTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.SigningTimeout <= 0 {
		cfg.SigningTimeout = DefaultSigningTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NopLogger{}
	}
	return cfg
}

// Manager discovers devices and opens sessions to them.
type Manager struct {
	enumerator Enumerator
	config     Config
}

// NewManager returns a Manager that finds devices through enumerator.
func NewManager(enumerator Enumerator, config *Config) *Manager {
	return &Manager{
		enumerator: enumerator,
		config:     config.withDefaults(),
	}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.config
}

// Discover polls for a responsive device of kind until one answers a
// liveness probe or the discovery window elapses. When several devices
// respond, the first one enumerated wins and the others are released.
//
// Returns a session in Handshaking that owns the device channel, or
// ErrNotFound when nothing answered in time.
func (m *Manager) Discover(ctx context.Context, kind Kind) (*Session, error) {
	if kind == KindUnknown {
		return nil, ErrUnknownKind
	}
	log := m.config.Logger.With(logger.String("kind", kind.String()))

	window, cancel := context.WithTimeout(ctx, m.config.DiscoveryTimeout)
	defer cancel()

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for round := 1; ; round++ {
		channels, err := m.enumerator.Enumerate(window, kind)
		if err != nil {
			log.Debug("device enumeration failed", logger.Int("round", round), logger.Error(err))
		}
		if ch := m.probeAll(window, channels); ch != nil {
			log.Info("device discovered", logger.Int("round", round))
			return NewSession(kind, ch, &m.config), nil
		}

		select {
		case <-window.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			metrics.RecordDeviceSession(kind.String(), metrics.StatusNotFound)
			log.Warn("no device found", logger.Duration("window", m.config.DiscoveryTimeout))
			return nil, ErrNotFound
		case <-ticker.C:
		}
	}
}

// probeAll returns the first channel that answers a ping and closes every
// other channel.
func (m *Manager) probeAll(ctx context.Context, channels []Channel) Channel {
	var found Channel
	for _, ch := range channels {
		if found == nil && m.probe(ctx, ch) {
			found = ch
			continue
		}
		_ = ch.Close()
	}
	return found
}

func (m *Manager) probe(ctx context.Context, ch Channel) bool {
	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return false
	}
	if err := ch.Send(ctx, MarshalFrame(&Frame{Type: MsgPing, Nonce: nonce})); err != nil {
		return false
	}
	raw, err := ch.Recv(ctx, m.config.ProbeTimeout)
	if err != nil {
		if !errors.Is(err, ErrChannelTimeout) && ctx.Err() == nil {
			m.config.Logger.Debug("device probe failed", logger.Error(err))
		}
		return false
	}
	pong, err := UnmarshalFrame(raw)
	if err != nil {
		return false
	}
	return pong.Type == MsgPong && bytes.Equal(pong.Nonce, nonce)
}

// Open discovers a device of kind and completes the handshake. The
// returned session is Ready.
func (m *Manager) Open(ctx context.Context, kind Kind) (*Session, error) {
	s, err := m.Discover(ctx, kind)
	if err != nil {
		return nil, err
	}
	if err := s.Handshake(ctx); err != nil {
		return nil, err
	}
	return s, nil
}
