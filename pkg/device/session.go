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
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/google/uuid"
	"github.com/jeremyhahn/go-walletcore/pkg/adapters/logger"
	"github.com/jeremyhahn/go-walletcore/pkg/metrics"
)

// NonceSize is the length of the per-session nonce.
const NonceSize = 32

const challengeLabel = "walletcore-handshake"

// HandshakeDigest is what a device signs with its secp256k1 key to answer
// the hello for nonce. It binds the session nonce to the device model and
// the public key it reports, so only the holder of that key can answer.
func HandshakeDigest(nonce []byte, kind Kind, pubKey []byte) []byte {
	h := sha256.New()
	h.Write([]byte(challengeLabel))
	h.Write([]byte(kind.String()))
	h.Write(pubKey)
	h.Write(nonce)
	return h.Sum(nil)
}

// Capabilities is what the device reported during the handshake.
type Capabilities struct {
	ProtocolVersion uint32
	PublicKey       []byte
	Firmware        string
}

// Session owns one device channel for its lifetime. State changes are made
// under the session mutex but no lock is held while waiting on the channel,
// so Close can always interrupt a pending handshake or signature.
type Session struct {
	// ID identifies the session in logs. It is not sent to the device.
	ID string

	kind   Kind
	ch     Channel
	config Config
	logger logger.Logger

	// ctx is cancelled by Close and aborts every pending channel wait.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	state  State
	nonce  [NonceSize]byte
	seq    uint64
	pubKey *secp256k1.PublicKey
	caps   Capabilities

	closeOnce sync.Once
	closeErr  error
}

// NewSession takes ownership of an open channel. The session starts in
// Handshaking.
func NewSession(kind Kind, ch Channel, config *Config) *Session {
	cfg := config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:     uuid.New().String(),
		kind:   kind,
		ch:     ch,
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
		state:  StateDiscovering,
	}
	s.logger = cfg.Logger.With(
		logger.String("session_id", s.ID),
		logger.String("kind", kind.String()),
	)
	s.state = StateHandshaking
	metrics.RecordDeviceSession(kind.String(), metrics.StatusOpened)
	s.logger.Debug("device session opened")
	return s
}

// Kind returns the device model.
func (s *Session) Kind() Kind {
	return s.kind
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Capabilities returns what the device reported during the handshake.
func (s *Session) Capabilities() Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	caps := s.caps
	caps.PublicKey = append([]byte(nil), s.caps.PublicKey...)
	return caps
}

// Sequence returns the sequence number of the last signature request.
func (s *Session) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// transition moves to next if legal. The caller must hold s.mu.
func (s *Session) transition(next State) error {
	if !s.state.CanTransition(next) {
		if s.state == StateClosed {
			return ErrSessionClosed
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, s.state, next)
	}
	s.logger.Debug("device session state change",
		logger.String("from", s.state.String()),
		logger.String("to", next.String()))
	s.state = next
	return nil
}

// opContext derives a context that ends when ctx ends or the session closes.
func (s *Session) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

// exchange sends req and waits up to timeout for the reply.
func (s *Session) exchange(ctx context.Context, req *Frame, timeout time.Duration) (*Frame, error) {
	if err := s.ch.Send(ctx, MarshalFrame(req)); err != nil {
		return nil, err
	}
	raw, err := s.ch.Recv(ctx, timeout)
	if err != nil {
		return nil, err
	}
	return UnmarshalFrame(raw)
}

// Handshake negotiates the protocol version, authenticates the device
// against a fresh session nonce and negotiates capabilities. On success the
// session is Ready. On any failure it is Closed and a *HandshakeError is
// returned.
func (s *Session) Handshake(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateHandshaking {
		state := s.state
		s.mu.Unlock()
		if state == StateClosed {
			return ErrSessionClosed
		}
		return fmt.Errorf("%w: handshake in %s", ErrInvalidState, state)
	}
	if _, err := rand.Read(s.nonce[:]); err != nil {
		s.mu.Unlock()
		return s.failHandshake("nonce generation", err)
	}
	nonce := append([]byte(nil), s.nonce[:]...)
	s.mu.Unlock()

	start := time.Now()
	opCtx, stop := s.opContext(ctx)
	defer stop()

	ack, err := s.exchange(opCtx, &Frame{Type: MsgHello, Version: ProtocolVersion, Nonce: nonce}, s.config.HandshakeTimeout)
	if err != nil {
		return s.failHandshake("hello", s.waitError(ctx, err))
	}
	if ack.Type == MsgFailure {
		return s.failHandshake("device refused hello: "+ack.Label, nil)
	}
	if ack.Type != MsgHelloAck {
		return s.failHandshake("unexpected "+ack.Type.String(), nil)
	}
	if ack.Version != ProtocolVersion {
		return s.failHandshake(fmt.Sprintf("protocol mismatch: host %d, device %d", ProtocolVersion, ack.Version), nil)
	}
	pubKey, err := secp256k1.ParsePubKey(ack.PublicKey)
	if err != nil {
		return s.failHandshake("invalid device public key", err)
	}
	proof, err := ecdsa.ParseDERSignature(ack.Challenge)
	if err != nil || !proof.Verify(HandshakeDigest(nonce, s.kind, ack.PublicKey), pubKey) {
		return s.failHandshake("challenge mismatch", nil)
	}

	s.mu.Lock()
	err = s.transition(StateAuthenticated)
	if err == nil {
		s.pubKey = pubKey
		s.caps = Capabilities{
			ProtocolVersion: ack.Version,
			PublicKey:       append([]byte(nil), ack.PublicKey...),
			Firmware:        ack.Label,
		}
	}
	s.mu.Unlock()
	if err != nil {
		return s.failHandshake("authenticate", err)
	}

	capsAck, err := s.exchange(opCtx, &Frame{Type: MsgCapabilities, Version: ProtocolVersion, Nonce: nonce}, s.config.HandshakeTimeout)
	if err != nil {
		return s.failHandshake("capabilities", s.waitError(ctx, err))
	}
	if capsAck.Type != MsgCapabilitiesAck || capsAck.Status != StatusApproved {
		return s.failHandshake("capability negotiation rejected", nil)
	}
	if !bytes.Equal(capsAck.Nonce, nonce) {
		return s.failHandshake("capabilities nonce mismatch", nil)
	}

	s.mu.Lock()
	err = s.transition(StateReady)
	s.mu.Unlock()
	if err != nil {
		return s.failHandshake("ready", err)
	}

	elapsed := time.Since(start)
	metrics.RecordHandshake(s.kind.String(), elapsed.Seconds())
	s.logger.Info("device session ready",
		logger.String("firmware", ack.Label),
		logger.Duration("elapsed", elapsed))
	return nil
}

func (s *Session) failHandshake(reason string, err error) error {
	herr := &HandshakeError{Kind: s.kind, Reason: reason, Err: err}
	s.logger.Warn("device handshake failed", logger.Error(herr))
	metrics.RecordDeviceSession(s.kind.String(), metrics.StatusHandshakeFail)
	_ = s.Close()
	return herr
}

// waitError prefers the reason a wait ended over the raw channel error.
func (s *Session) waitError(ctx context.Context, err error) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Signature is a verified device signature and the request it answered.
type Signature struct {
	// DER is the DER-encoded secp256k1 signature.
	DER []byte

	// Sequence is the sequence number the request carried.
	Sequence uint64
}

// RequestSignature asks the device to sign a 32-byte digest. It is legal
// only in Ready; a call while another request is outstanding fails at once
// with ErrSessionBusy. Each request carries the session nonce and the next
// sequence number, and the reply must echo both.
//
// Returns the DER-encoded secp256k1 signature, verified against the device
// key negotiated during the handshake.
func (s *Session) RequestSignature(ctx context.Context, digest []byte) ([]byte, error) {
	sig, err := s.Sign(ctx, digest)
	if err != nil {
		return nil, err
	}
	return sig.DER, nil
}

// Sign is RequestSignature with the request's sequence number kept. Failures
// after a sequence number was assigned are *SigningError values carrying it.
func (s *Session) Sign(ctx context.Context, digest []byte) (*Signature, error) {
	if len(digest) != sha256.Size {
		return nil, ErrInvalidDigest
	}

	s.mu.Lock()
	switch s.state {
	case StateReady:
	case StateSigningInFlight:
		s.mu.Unlock()
		metrics.RecordSignature(s.kind.String(), metrics.StatusBusy)
		return nil, ErrSessionBusy
	case StateClosed:
		s.mu.Unlock()
		return nil, ErrSessionClosed
	default:
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: sign in %s", ErrInvalidState, state)
	}
	_ = s.transition(StateSigningInFlight)
	s.seq++
	seq := s.seq
	nonce := append([]byte(nil), s.nonce[:]...)
	pubKey := s.pubKey
	s.mu.Unlock()

	log := s.logger.With(logger.Uint64("sequence", seq))
	log.Debug("signature requested")

	opCtx, stop := s.opContext(ctx)
	defer stop()

	req := &Frame{Type: MsgSignRequest, Nonce: nonce, Sequence: seq, Digest: digest}
	resp, err := s.exchange(opCtx, req, s.config.SigningTimeout)
	if err != nil {
		if errors.Is(err, ErrMalformedFrame) {
			return nil, s.failSigning(BadResponse, seq, err)
		}
		return nil, s.failSigning(s.classifyWait(ctx, err), seq, err)
	}

	if resp.Type == MsgFailure || resp.Status == StatusDenied {
		if !bytes.Equal(resp.Nonce, nonce) || resp.Sequence != seq {
			return nil, s.failSigning(BadResponse, seq, errors.New("denial does not echo request"))
		}
		s.mu.Lock()
		if s.state == StateSigningInFlight {
			_ = s.transition(StateReady)
		}
		s.mu.Unlock()
		metrics.RecordSignature(s.kind.String(), metrics.StatusDenied)
		log.Info("signature denied on device")
		return nil, &SigningError{Reason: UserDenied, Sequence: seq}
	}

	if resp.Type != MsgSignResponse || resp.Status != StatusApproved {
		return nil, s.failSigning(BadResponse, seq, fmt.Errorf("unexpected %s", resp.Type))
	}
	if !bytes.Equal(resp.Nonce, nonce) {
		return nil, s.failSigning(BadResponse, seq, errors.New("nonce not echoed"))
	}
	if resp.Sequence != seq {
		return nil, s.failSigning(BadResponse, seq, fmt.Errorf("sequence %d echoed for %d", resp.Sequence, seq))
	}
	sig, err := ecdsa.ParseDERSignature(resp.Signature)
	if err != nil {
		return nil, s.failSigning(BadResponse, seq, err)
	}
	if !sig.Verify(digest, pubKey) {
		return nil, s.failSigning(BadResponse, seq, errors.New("signature does not verify"))
	}

	s.mu.Lock()
	if s.state == StateSigningInFlight {
		_ = s.transition(StateReady)
	}
	s.mu.Unlock()

	metrics.RecordSignature(s.kind.String(), metrics.StatusSigned)
	log.Info("signature produced")
	return &Signature{DER: resp.Signature, Sequence: seq}, nil
}

// classifyWait maps an interrupted wait to a signing reason.
func (s *Session) classifyWait(ctx context.Context, err error) SigningReason {
	switch {
	case s.ctx.Err() != nil:
		return Cancelled
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, ErrChannelTimeout):
		return Timeout
	default:
		return Cancelled
	}
}

// failSigning closes the session and returns the error for reason. Every
// failure except UserDenied is terminal for the session: no partial trust is
// kept after a lost, late or malformed reply.
func (s *Session) failSigning(reason SigningReason, seq uint64, err error) error {
	serr := &SigningError{Reason: reason, Sequence: seq, Err: err}
	status := metrics.StatusCancelled
	switch reason {
	case Timeout:
		status = metrics.StatusTimeout
	case BadResponse:
		status = metrics.StatusBadReply
	}
	metrics.RecordSignature(s.kind.String(), status)
	s.logger.Warn("signature request failed",
		logger.Uint64("sequence", seq),
		logger.String("reason", reason.String()),
		logger.Error(err))
	_ = s.Close()
	return serr
}

// Close releases the channel and moves the session to Closed. Pending
// waits are released. It is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		prev := s.state
		s.state = StateClosed
		s.mu.Unlock()

		s.cancel()
		s.closeErr = s.ch.Close()
		metrics.RecordDeviceSession(s.kind.String(), metrics.StatusClosed)
		s.logger.Info("device session closed", logger.String("from", prev.String()))
	})
	return s.closeErr
}
