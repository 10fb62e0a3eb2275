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

package wallet_test

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jeremyhahn/go-walletcore/pkg/adapters/kdf"
	"github.com/jeremyhahn/go-walletcore/pkg/device"
	"github.com/jeremyhahn/go-walletcore/pkg/device/emulator"
	"github.com/jeremyhahn/go-walletcore/pkg/exchange"
	"github.com/jeremyhahn/go-walletcore/pkg/migration"
	"github.com/jeremyhahn/go-walletcore/pkg/migration/migrationtest"
	"github.com/jeremyhahn/go-walletcore/pkg/ratelimit"
	"github.com/jeremyhahn/go-walletcore/pkg/vault"
	"github.com/jeremyhahn/go-walletcore/pkg/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deviceConfig() *device.Config {
	return &device.Config{
		DiscoveryTimeout: 200 * time.Millisecond,
		PollInterval:     20 * time.Millisecond,
		ProbeTimeout:     50 * time.Millisecond,
		HandshakeTimeout: 200 * time.Millisecond,
		SigningTimeout:   200 * time.Millisecond,
	}
}

// fakeLinker records calls and answers with linked and err.
type fakeLinker struct {
	calls  int
	linked bool
	err    error
}

func (f *fakeLinker) Link(_ context.Context, _ string) (bool, error) {
	f.calls++
	return f.linked, f.err
}

func digest() []byte {
	sum := sha256.Sum256([]byte("tx"))
	return sum[:]
}

func TestLinkExchangeAccount_EmptyKeyMakesNoCall(t *testing.T) {
	linker := &fakeLinker{linked: true}
	engine := wallet.New(&wallet.Config{Exchange: linker})

	assert.False(t, engine.LinkExchangeAccount(context.Background(), ""))
	assert.Zero(t, linker.calls)
	assert.ErrorIs(t, engine.LinkExchangeAccountResult(context.Background(), ""), wallet.ErrEmptyAPIKey)
}

func TestLinkExchangeAccount(t *testing.T) {
	tests := []struct {
		name    string
		linker  *fakeLinker
		want    bool
		wantErr error
	}{
		{"linked", &fakeLinker{linked: true}, true, nil},
		{"declined", &fakeLinker{linked: false}, false, wallet.ErrLinkRejected},
		{"transport error", &fakeLinker{err: errors.New("dial tcp: refused")}, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := wallet.New(&wallet.Config{Exchange: tt.linker})
			assert.Equal(t, tt.want, engine.LinkExchangeAccount(context.Background(), "key"))
			assert.Equal(t, 1, tt.linker.calls)

			err := engine.LinkExchangeAccountResult(context.Background(), "key")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLinkExchangeAccount_NotConfigured(t *testing.T) {
	engine := wallet.New(nil)
	assert.ErrorIs(t, engine.LinkExchangeAccountResult(context.Background(), "key"), wallet.ErrNoExchange)
}

func TestLinkExchangeAccount_RateLimited(t *testing.T) {
	limiter := ratelimit.New(&ratelimit.Config{Enabled: true, RequestsPerMinute: 1, Burst: 1})
	defer limiter.Stop()
	linker := &fakeLinker{linked: true}
	engine := wallet.New(&wallet.Config{Exchange: linker, LinkLimiter: limiter})

	require.NoError(t, engine.LinkExchangeAccountResult(context.Background(), "key"))
	err := engine.LinkExchangeAccountResult(context.Background(), "key")
	assert.ErrorIs(t, err, wallet.ErrRateLimited)
	assert.False(t, wallet.IsFatal(err))
	assert.Equal(t, 1, linker.calls)
}

// endpointLinker is a fakeLinker bound to an exchange endpoint.
type endpointLinker struct {
	fakeLinker
	endpoint string
}

func (e *endpointLinker) Endpoint() string { return e.endpoint }

func TestLinkExchangeAccount_RateLimitedPerEndpoint(t *testing.T) {
	limiter := ratelimit.New(&ratelimit.Config{Enabled: true, RequestsPerMinute: 1, Burst: 1})
	defer limiter.Stop()

	a1 := &endpointLinker{fakeLinker: fakeLinker{linked: true}, endpoint: "https://a.example"}
	a2 := &endpointLinker{fakeLinker: fakeLinker{linked: true}, endpoint: "https://a.example"}
	b := &endpointLinker{fakeLinker: fakeLinker{linked: true}, endpoint: "https://b.example"}
	engineA1 := wallet.New(&wallet.Config{Exchange: a1, LinkLimiter: limiter})
	engineA2 := wallet.New(&wallet.Config{Exchange: a2, LinkLimiter: limiter})
	engineB := wallet.New(&wallet.Config{Exchange: b, LinkLimiter: limiter})

	require.NoError(t, engineA1.LinkExchangeAccountResult(context.Background(), "key"))
	assert.ErrorIs(t, engineA2.LinkExchangeAccountResult(context.Background(), "key"), wallet.ErrRateLimited,
		"engines linking to the same exchange share a budget")
	assert.NoError(t, engineB.LinkExchangeAccountResult(context.Background(), "key"),
		"another exchange has its own budget")
	assert.Equal(t, 0, a2.calls)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, 2, limiter.Stats()["active_keys"])
}

func TestLinkExchangeAccount_ThroughRESTClient(t *testing.T) {
	client, err := exchange.NewRESTClient(&exchange.Config{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	engine := wallet.New(&wallet.Config{Exchange: client})

	assert.False(t, engine.LinkExchangeAccount(context.Background(), ""))
}

func TestInitializeHardwareDevice_NoDeviceReturnsFalseAfterWindow(t *testing.T) {
	cfg := deviceConfig()
	engine := wallet.New(&wallet.Config{Devices: device.NewManager(emulator.NewBus(), cfg)})

	start := time.Now()
	ok := engine.InitializeHardwareDevice(context.Background(), "LedgerX")
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, cfg.DiscoveryTimeout)
	assert.Less(t, elapsed, cfg.DiscoveryTimeout+time.Second)
	assert.Nil(t, engine.ActiveSession())

	_, err := engine.InitializeHardwareDeviceResult(context.Background(), "LedgerX")
	assert.ErrorIs(t, err, device.ErrNotFound)
	assert.False(t, wallet.IsFatal(err))
}

func TestInitializeHardwareDevice_ReadyAndSign(t *testing.T) {
	d, err := emulator.New(emulator.Config{Kind: device.LedgerX})
	require.NoError(t, err)
	engine := wallet.New(&wallet.Config{Devices: device.NewManager(emulator.NewBus(d), deviceConfig())})
	defer engine.Close()

	_, err = engine.RequestSignature(context.Background(), digest())
	assert.ErrorIs(t, err, wallet.ErrNoSession, "never signs without a Ready session")

	require.True(t, engine.InitializeHardwareDevice(context.Background(), "ledger-x"))
	s := engine.ActiveSession()
	require.NotNil(t, s)
	assert.Equal(t, device.StateReady, s.State())

	sig, err := engine.RequestSignature(context.Background(), digest())
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
}

func TestInitializeHardwareDevice_ReplacesActiveSession(t *testing.T) {
	ledger, _ := emulator.New(emulator.Config{Kind: device.LedgerS})
	trezor, _ := emulator.New(emulator.Config{Kind: device.TrezorT})
	engine := wallet.New(&wallet.Config{Devices: device.NewManager(emulator.NewBus(ledger, trezor), deviceConfig())})
	defer engine.Close()

	first, err := engine.InitializeHardwareDeviceResult(context.Background(), "LedgerS")
	require.NoError(t, err)
	second, err := engine.InitializeHardwareDeviceResult(context.Background(), "TrezorT")
	require.NoError(t, err)

	assert.Equal(t, device.StateClosed, first.State())
	assert.Equal(t, device.StateReady, second.State())
	assert.Same(t, second, engine.ActiveSession())
}

func TestInitializeHardwareDevice_FailureKeepsPreviousSession(t *testing.T) {
	ledger, _ := emulator.New(emulator.Config{Kind: device.LedgerS})
	engine := wallet.New(&wallet.Config{Devices: device.NewManager(emulator.NewBus(ledger), deviceConfig())})
	defer engine.Close()

	first, err := engine.InitializeHardwareDeviceResult(context.Background(), "LedgerS")
	require.NoError(t, err)

	assert.False(t, engine.InitializeHardwareDevice(context.Background(), "TrezorOne"))
	assert.Same(t, first, engine.ActiveSession())
}

func TestInitializeHardwareDevice_UnknownKind(t *testing.T) {
	engine := wallet.New(&wallet.Config{Devices: device.NewManager(emulator.NewBus(), deviceConfig())})
	_, err := engine.InitializeHardwareDeviceResult(context.Background(), "KeepKey")
	assert.ErrorIs(t, err, device.ErrUnknownKind)
	assert.True(t, wallet.IsFatal(err))

	_, err = wallet.New(nil).InitializeHardwareDeviceResult(context.Background(), "LedgerX")
	assert.ErrorIs(t, err, wallet.ErrNoDevices)
}

func TestRequestSignature_TimedOutSessionIsDropped(t *testing.T) {
	d, _ := emulator.New(emulator.Config{Kind: device.LedgerX, StallSigning: true})
	engine := wallet.New(&wallet.Config{Devices: device.NewManager(emulator.NewBus(d), deviceConfig())})
	defer engine.Close()
	require.True(t, engine.InitializeHardwareDevice(context.Background(), "LedgerX"))

	_, err := engine.RequestSignature(context.Background(), digest())
	assert.ErrorIs(t, err, device.ErrSigningTimeout)
	assert.Nil(t, engine.ActiveSession())

	_, err = engine.RequestSignature(context.Background(), digest())
	assert.ErrorIs(t, err, wallet.ErrNoSession)
}

func newImportEngine(t *testing.T) (*wallet.Engine, *vault.FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := vault.NewFileStore(filepath.Join(dir, "vault.json"))
	require.NoError(t, err)
	codec, err := vault.NewCodec(&vault.CodecConfig{KDF: &kdf.Params{
		Algorithm:  kdf.AlgorithmArgon2id,
		Iterations: 1,
		Memory:     8 * 1024,
		Threads:    1,
		KeyLength:  32,
	}})
	require.NoError(t, err)
	pipeline, err := migration.NewPipeline(&migration.Config{
		Store:           store,
		Codec:           codec,
		Prompt:          migrationtest.Passphrases("pw"),
		AttemptInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return wallet.New(&wallet.Config{Migration: pipeline}), store, dir
}

func TestImportFromExtension_MissingPathIsNotFatal(t *testing.T) {
	engine, store, _ := newImportEngine(t)

	assert.False(t, engine.ImportFromExtension(context.Background(), "/no/such/path"))

	result, err := engine.ImportFromExtensionResult(context.Background(), "/no/such/path")
	assert.ErrorIs(t, err, migration.ErrNotFound)
	assert.Equal(t, migration.NothingToImport, result.Outcome)
	assert.False(t, wallet.IsFatal(err))

	exists, err := store.Exists()
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestImportFromExtension_Commits(t *testing.T) {
	engine, store, dir := newImportEngine(t)
	path := migrationtest.WriteExport(t, dir, migration.FormatScrypt, []byte(migrationtest.Mnemonic), []byte("pw"))

	assert.True(t, engine.ImportFromExtension(context.Background(), path))
	exists, err := store.Exists()
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestImportFromExtension_FatalSurfacesDistinctly(t *testing.T) {
	engine, _, dir := newImportEngine(t)
	data, err := migrationtest.Export(7, nil, nil)
	require.NoError(t, err)
	path := filepath.Join(dir, "future.json")
	require.NoError(t, os.WriteFile(path, data, 0600))

	assert.False(t, engine.ImportFromExtension(context.Background(), path))
	result, err := engine.ImportFromExtensionResult(context.Background(), path)
	assert.Equal(t, migration.Failed, result.Outcome)
	assert.True(t, wallet.IsFatal(err))
}

func TestImportFromExtension_NotConfigured(t *testing.T) {
	result, err := wallet.New(nil).ImportFromExtensionResult(context.Background(), "x")
	assert.ErrorIs(t, err, wallet.ErrNoMigration)
	assert.Equal(t, migration.Failed, result.Outcome)
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		err   error
		fatal bool
	}{
		{nil, false},
		{device.ErrNotFound, false},
		{fmt.Errorf("wrapped: %w", migration.ErrNotFound), false},
		{vault.ErrAuthentication, false},
		{device.ErrSessionBusy, false},
		{migration.ErrMigrationInProgress, false},
		{&device.SigningError{Reason: device.UserDenied}, false},
		{&device.SigningError{Reason: device.Cancelled}, false},
		{&device.SigningError{Reason: device.Timeout}, false},
		{wallet.ErrRateLimited, false},
		{&device.SigningError{Reason: device.BadResponse}, true},
		{&device.HandshakeError{Kind: device.LedgerX, Reason: "challenge mismatch"}, true},
		{&migration.UnsupportedFormatError{Version: 7}, true},
		{&vault.EncodingError{Op: "nonce", Err: errors.New("entropy")}, true},
		{wallet.ErrEmptyAPIKey, true},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, wallet.IsFatal(tt.err))
		})
	}
}
