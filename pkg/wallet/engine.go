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

// Package wallet is the engine's public surface.
//
// Each operation comes in two forms. The boolean form (LinkExchangeAccount,
// InitializeHardwareDevice, ImportFromExtension) is what a UI binds to; it
// logs the underlying error with a correlation ID and collapses it. The
// Result form returns the full error so callers can tell "nothing to do"
// from a fatal failure with IsFatal.
//
// Example:
//
//	engine, _ := wallet.New(&wallet.Config{
//	    Devices:   device.NewManager(enumerator, nil),
//	    Migration: pipeline,
//	    Exchange:  restClient,
//	})
//	defer engine.Close()
//
//	if engine.InitializeHardwareDevice(ctx, "LedgerX") {
//	    sig, err := engine.RequestSignature(ctx, digest)
//	}
package wallet

import (
	"context"
	"errors"
	"sync"

	"github.com/jeremyhahn/go-walletcore/pkg/adapters/audit"
	"github.com/jeremyhahn/go-walletcore/pkg/adapters/logger"
	"github.com/jeremyhahn/go-walletcore/pkg/correlation"
	"github.com/jeremyhahn/go-walletcore/pkg/device"
	"github.com/jeremyhahn/go-walletcore/pkg/exchange"
	"github.com/jeremyhahn/go-walletcore/pkg/metrics"
	"github.com/jeremyhahn/go-walletcore/pkg/migration"
	"github.com/jeremyhahn/go-walletcore/pkg/ratelimit"
	"github.com/jeremyhahn/go-walletcore/pkg/validation"
)

// linkLimitPrefix prefixes the rate limiter bucket for exchange linking.
const linkLimitPrefix = "exchange_link"

// linkLimitKey names the bucket for l. Linkers that report an endpoint get
// one bucket per endpoint, so a limiter shared by several engines throttles
// each exchange separately.
func linkLimitKey(l exchange.Linker) string {
	if ep, ok := l.(exchange.Endpointer); ok && ep.Endpoint() != "" {
		return linkLimitPrefix + ":" + ep.Endpoint()
	}
	return linkLimitPrefix
}

// Config wires the engine's collaborators. Any of them may be nil, in which
// case the matching operation fails with ErrNoDevices, ErrNoMigration or
// ErrNoExchange.
type Config struct {
	Devices   *device.Manager
	Migration *migration.Pipeline
	Exchange  exchange.Linker

	// LinkLimiter throttles LinkExchangeAccount per exchange endpoint. It
	// may be shared by engines linking to different exchanges. Nil disables
	// throttling.
	LinkLimiter *ratelimit.Limiter

	// Audit receives one event per pairing, signature, import and link.
	// Nil discards them.
	Audit audit.Adapter

	Logger logger.Logger
}

// Engine owns at most one active device session.
type Engine struct {
	devices   *device.Manager
	migration *migration.Pipeline
	exchange  exchange.Linker
	limiter   *ratelimit.Limiter
	linkKey   string
	audit     audit.Adapter
	logger    logger.Logger

	mu      sync.Mutex
	session *device.Session
}

// New creates an engine.
func New(config *Config) *Engine {
	if config == nil {
		config = &Config{}
	}
	limiter := config.LinkLimiter
	if limiter == nil {
		limiter = ratelimit.New(nil)
	}
	auditor := config.Audit
	if auditor == nil {
		auditor = audit.NopAdapter{}
	}
	log := config.Logger
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Engine{
		devices:   config.Devices,
		migration: config.Migration,
		exchange:  config.Exchange,
		limiter:   limiter,
		linkKey:   linkLimitKey(config.Exchange),
		audit:     auditor,
		logger:    log,
	}
}

// LinkExchangeAccount links the exchange account behind apiKey. An empty
// key returns false without contacting the exchange.
func (e *Engine) LinkExchangeAccount(ctx context.Context, apiKey string) bool {
	ctx, _ = correlation.Ensure(ctx)
	err := e.LinkExchangeAccountResult(ctx, apiKey)
	if err != nil {
		e.logFailure(ctx, "link exchange account", err)
		return false
	}
	return true
}

// LinkExchangeAccountResult is LinkExchangeAccount with the error kept.
func (e *Engine) LinkExchangeAccountResult(ctx context.Context, apiKey string) error {
	err := e.linkExchangeAccount(ctx, apiKey)
	event := &audit.Event{Type: audit.EventExchangeLink, Outcome: audit.OutcomeSuccess}
	switch {
	case errors.Is(err, ErrLinkRejected), errors.Is(err, ErrRateLimited), errors.Is(err, ErrEmptyAPIKey):
		event.Outcome = audit.OutcomeDenied
		event.Result = err.Error()
	case err != nil:
		event.Outcome = audit.OutcomeFailure
		event.Result = err.Error()
	}
	e.record(ctx, event)
	return err
}

func (e *Engine) linkExchangeAccount(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		metrics.RecordExchangeLink(metrics.StatusRejected)
		return ErrEmptyAPIKey
	}
	if e.exchange == nil {
		return ErrNoExchange
	}
	if !e.limiter.Allow(e.linkKey) {
		metrics.RecordExchangeLink(metrics.StatusThrottle)
		return ErrRateLimited
	}

	linked, err := e.exchange.Link(ctx, apiKey)
	switch {
	case err != nil:
		metrics.RecordExchangeLink(metrics.StatusError)
		return err
	case !linked:
		metrics.RecordExchangeLink(metrics.StatusRejected)
		return ErrLinkRejected
	}
	metrics.RecordExchangeLink(metrics.StatusSuccess)
	e.logger.InfoContext(ctx, "exchange account linked")
	return nil
}

// InitializeHardwareDevice discovers a device of the named kind, completes
// the handshake and makes it the active session. It returns true only once
// the session is Ready, and false when no device answers within the
// discovery window.
func (e *Engine) InitializeHardwareDevice(ctx context.Context, kind string) bool {
	ctx, _ = correlation.Ensure(ctx)
	if _, err := e.InitializeHardwareDeviceResult(ctx, kind); err != nil {
		e.logFailure(ctx, "initialize hardware device", err, logger.String("kind", validation.SanitizeForLog(kind)))
		return false
	}
	return true
}

// InitializeHardwareDeviceResult is InitializeHardwareDevice with the
// session and error kept. A previously active session is closed once the
// new one is Ready; on failure the previous session stays active.
func (e *Engine) InitializeHardwareDeviceResult(ctx context.Context, kind string) (*device.Session, error) {
	if e.devices == nil {
		return nil, ErrNoDevices
	}
	k, err := device.ParseKind(kind)
	if err != nil {
		return nil, err
	}

	s, err := e.devices.Open(ctx, k)
	if err != nil {
		e.record(ctx, &audit.Event{
			Type:     audit.EventDevicePair,
			Outcome:  audit.OutcomeFailure,
			Resource: k.String(),
			Result:   err.Error(),
		})
		return nil, err
	}
	e.record(ctx, &audit.Event{
		Type:      audit.EventDevicePair,
		Outcome:   audit.OutcomeSuccess,
		Resource:  k.String(),
		SessionID: s.ID,
		Metadata:  map[string]interface{}{"firmware": s.Capabilities().Firmware},
	})

	e.mu.Lock()
	previous := e.session
	e.session = s
	e.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}
	e.logger.InfoContext(ctx, "hardware device ready",
		logger.String("kind", k.String()),
		logger.String("session_id", s.ID))
	return s, nil
}

// ImportFromExtension imports the extension export at path. It returns true
// only when a new vault was committed; a missing export returns false and
// is logged as a no-op rather than a failure.
func (e *Engine) ImportFromExtension(ctx context.Context, path string) bool {
	ctx, _ = correlation.Ensure(ctx)
	result, err := e.ImportFromExtensionResult(ctx, path)
	if err != nil {
		if result != nil && result.Outcome == migration.NothingToImport {
			e.logger.InfoContext(ctx, "nothing to import", logger.String("path", validation.SanitizeForLog(path)))
			return false
		}
		e.logFailure(ctx, "import from extension", err, logger.String("path", validation.SanitizeForLog(path)))
		return false
	}
	return result.Outcome == migration.Imported
}

// ImportFromExtensionResult is ImportFromExtension with the result kept.
func (e *Engine) ImportFromExtensionResult(ctx context.Context, path string) (*migration.ImportResult, error) {
	if e.migration == nil {
		return &migration.ImportResult{Outcome: migration.Failed, Reason: ErrNoMigration}, ErrNoMigration
	}
	result, err := e.migration.Run(ctx, path)

	event := &audit.Event{
		Type:     audit.EventVaultImport,
		Outcome:  audit.OutcomeFailure,
		Resource: validation.SanitizeForLog(path),
		Metadata: map[string]interface{}{"attempts": result.Attempts},
	}
	switch result.Outcome {
	case migration.Imported:
		event.Outcome = audit.OutcomeSuccess
		event.Metadata["vault_id"] = result.Vault.ID
	case migration.NothingToImport:
		event.Outcome = audit.OutcomeSkipped
	}
	if err != nil {
		event.Result = err.Error()
	}
	e.record(ctx, event)
	return result, err
}

// RequestSignature asks the active device to sign a 32-byte digest.
func (e *Engine) RequestSignature(ctx context.Context, digest []byte) ([]byte, error) {
	s := e.ActiveSession()
	if s == nil {
		return nil, ErrNoSession
	}
	sig, err := s.Sign(ctx, digest)

	event := &audit.Event{
		Type:      audit.EventDeviceSign,
		Outcome:   audit.OutcomeSuccess,
		Resource:  s.Kind().String(),
		SessionID: s.ID,
	}
	// Only requests that were assigned a sequence number carry one.
	var serr *device.SigningError
	switch {
	case sig != nil:
		event.Metadata = map[string]interface{}{"sequence": sig.Sequence}
	case errors.As(err, &serr):
		event.Metadata = map[string]interface{}{"sequence": serr.Sequence}
	}
	switch {
	case errors.Is(err, device.ErrUserDenied):
		event.Outcome = audit.OutcomeDenied
		event.Result = err.Error()
	case err != nil:
		event.Outcome = audit.OutcomeFailure
		event.Result = err.Error()
	}
	e.record(ctx, event)

	if errors.Is(err, device.ErrSessionClosed) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	return sig.DER, nil
}

// ActiveSession returns the active session, or nil when there is none or
// it has closed.
func (e *Engine) ActiveSession() *device.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	if e.session.State() == device.StateClosed {
		e.session = nil
		return nil
	}
	return e.session
}

// Close closes the active session.
func (e *Engine) Close() error {
	e.mu.Lock()
	s := e.session
	e.session = nil
	e.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}

// record stamps event with the call's correlation ID and hands it to the
// audit adapter. Audit failures are logged, never returned.
func (e *Engine) record(ctx context.Context, event *audit.Event) {
	event.RequestID = correlation.GetCorrelationID(ctx)
	if err := e.audit.LogEvent(ctx, event); err != nil {
		e.logger.WarnContext(ctx, "failed to record audit event",
			logger.String("event", string(event.Type)),
			logger.Error(err))
	}
}

func (e *Engine) logFailure(ctx context.Context, op string, err error, fields ...logger.Field) {
	fields = append(fields,
		logger.String("operation", op),
		logger.Bool("fatal", IsFatal(err)),
		logger.Error(err))
	if IsFatal(err) {
		e.logger.ErrorContext(ctx, "operation failed", fields...)
		return
	}
	e.logger.WarnContext(ctx, "operation did not complete", fields...)
}
