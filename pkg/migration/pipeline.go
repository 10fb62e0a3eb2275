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

// Package migration imports a browser extension's exported wallet into the
// engine's own vault.
//
// The import is all-or-nothing. The export is authenticated and decrypted,
// the recovered seed is re-encrypted under the engine's current KDF defaults
// with a fresh salt, and the new vault is committed with an atomic rename.
// Every failure leaves the canonical vault exactly as it was, and the
// decrypted seed and passphrases are zeroed on every path.
package migration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/awnumar/memguard"
	"github.com/jeremyhahn/go-walletcore/pkg/adapters/logger"
	"github.com/jeremyhahn/go-walletcore/pkg/correlation"
	"github.com/jeremyhahn/go-walletcore/pkg/metrics"
	"github.com/jeremyhahn/go-walletcore/pkg/validation"
	"github.com/jeremyhahn/go-walletcore/pkg/vault"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/time/rate"
)

// Defaults.
const (
	DefaultMaxAttempts     = 3
	DefaultAttemptInterval = time.Second
)

// PassphraseFunc obtains a passphrase from the user. attempt starts at 1.
// The pipeline zeroes the returned slice when it is done with it.
type PassphraseFunc func(ctx context.Context, attempt int) ([]byte, error)

// Config configures a Pipeline.
type Config struct {
	// Store is the canonical vault location. Required.
	Store *vault.FileStore

	// Codec encodes the new vault and opens the export. Required.
	Codec *vault.Codec

	// Prompt asks for the export's passphrase. Required.
	Prompt PassphraseFunc

	// NewPassphrase, when set, asks for the passphrase of the new vault.
	// Otherwise the export's passphrase is reused.
	NewPassphrase PassphraseFunc

	// MaxAttempts bounds how many times Prompt is called.
	MaxAttempts int

	// AttemptInterval is the minimum spacing between prompts after a wrong
	// passphrase.
	AttemptInterval time.Duration

	// ReplaceExisting allows an import to replace an existing vault.
	ReplaceExisting bool

	Logger logger.Logger
}

// Outcome classifies an ImportResult.
type Outcome int

const (
	// Failed means the import was aborted. The canonical vault is unchanged.
	Failed Outcome = iota
	// Imported means a new vault was committed.
	Imported
	// NothingToImport means there was no export at the path.
	NothingToImport
)

func (o Outcome) String() string {
	switch o {
	case Imported:
		return "Imported"
	case NothingToImport:
		return "NothingToImport"
	default:
		return "Failed"
	}
}

// ImportResult is the outcome of one Run.
type ImportResult struct {
	Outcome Outcome

	// Vault is the committed vault when Outcome is Imported.
	Vault *vault.SecretVault

	// Attempts is how many passphrases were tried.
	Attempts int

	// Reason is the error that caused Failed or NothingToImport.
	Reason error
}

// Pipeline runs imports. It allows one Run at a time.
type Pipeline struct {
	config  Config
	limiter *rate.Limiter
	logger  logger.Logger
	running atomic.Bool
}

// NewPipeline validates config and returns a pipeline.
func NewPipeline(config *Config) (*Pipeline, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	cfg := *config
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if cfg.Codec == nil {
		return nil, fmt.Errorf("%w: codec is required", ErrInvalidConfig)
	}
	if cfg.Prompt == nil {
		return nil, fmt.Errorf("%w: passphrase prompt is required", ErrInvalidConfig)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.AttemptInterval <= 0 {
		cfg.AttemptInterval = DefaultAttemptInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NopLogger{}
	}
	return &Pipeline{
		config:  cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.AttemptInterval), 1),
		logger:  cfg.Logger,
	}, nil
}

// Run imports the export at path.
//
// The returned result is never nil. The error is nil only when the outcome
// is Imported; a missing export returns an error wrapping ErrNotFound with
// outcome NothingToImport.
func (p *Pipeline) Run(ctx context.Context, path string) (*ImportResult, error) {
	if !p.running.CompareAndSwap(false, true) {
		return &ImportResult{Outcome: Failed, Reason: ErrMigrationInProgress}, ErrMigrationInProgress
	}
	defer p.running.Store(false)

	ctx, _ = correlation.Ensure(ctx)
	logPath := validation.SanitizeForLog(path)
	start := time.Now()
	result := &ImportResult{Outcome: Failed}

	err := p.run(ctx, path, result)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		result.Outcome = Imported
		metrics.RecordMigration(metrics.StatusImported, elapsed.Seconds())
		p.logger.InfoContext(ctx, "legacy wallet imported",
			logger.String("path", logPath),
			logger.String("vault", p.config.Store.Path()),
			logger.String("vault_id", result.Vault.ID),
			logger.Int("attempts", result.Attempts),
			logger.Duration("elapsed", elapsed))
		return result, nil

	case errors.Is(err, ErrNotFound):
		result.Outcome = NothingToImport
		result.Reason = err
		metrics.RecordMigration(metrics.StatusNothingToImport, elapsed.Seconds())
		p.logger.InfoContext(ctx, "no legacy wallet to import", logger.String("path", logPath))
		return result, err

	default:
		result.Outcome = Failed
		result.Reason = err
		status := metrics.StatusError
		if errors.Is(err, vault.ErrAuthentication) {
			status = metrics.StatusAuthFailed
		}
		metrics.RecordMigration(status, elapsed.Seconds())
		p.logger.ErrorContext(ctx, "legacy wallet import failed",
			logger.String("path", logPath),
			logger.Int("attempts", result.Attempts),
			logger.Error(err))
		return result, err
	}
}

func (p *Pipeline) run(ctx context.Context, path string, result *ImportResult) error {
	record, err := ParseLegacy(path)
	if err != nil {
		return err
	}
	defer record.Wipe()

	if !p.config.ReplaceExisting {
		exists, err := p.config.Store.Exists()
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrVaultExists, p.config.Store.Path())
		}
	}

	plaintext, passphrase, err := p.unlock(ctx, record, result)
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(plaintext)
	defer memguard.WipeBytes(passphrase)

	if err := ValidateSeed(plaintext); err != nil {
		return err
	}

	newPassphrase := passphrase
	if p.config.NewPassphrase != nil {
		newPassphrase, err = p.config.NewPassphrase(ctx, 1)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPromptAborted, err)
		}
		defer memguard.WipeBytes(newPassphrase)
	}

	v, err := p.config.Codec.Encode(plaintext, newPassphrase)
	if err != nil {
		return err
	}
	if bytes.Equal(v.KDF.Salt, record.KDF.Salt) {
		return &vault.EncodingError{Op: "salt", Err: errors.New("re-encryption reused the export salt")}
	}

	if err := p.config.Store.Commit(v); err != nil {
		return err
	}
	result.Vault = v
	return nil
}

// unlock prompts until the export opens, the prompt gives up or the
// attempts run out.
func (p *Pipeline) unlock(ctx context.Context, record *LegacyRecord, result *ImportResult) ([]byte, []byte, error) {
	envelope := record.Vault()
	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
		passphrase, err := p.config.Prompt(ctx, attempt)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrPromptAborted, err)
		}
		result.Attempts = attempt

		plaintext, err := p.config.Codec.Decode(envelope, passphrase)
		if err == nil {
			return plaintext, passphrase, nil
		}
		memguard.WipeBytes(passphrase)
		if !errors.Is(err, vault.ErrAuthentication) {
			return nil, nil, err
		}
		p.logger.WarnContext(ctx, "wrong passphrase for legacy export",
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", p.config.MaxAttempts))
	}
	return nil, nil, fmt.Errorf("%w after %d attempts", vault.ErrAuthentication, p.config.MaxAttempts)
}

// ValidateSeed accepts a BIP-39 mnemonic or a raw 16, 32 or 64 byte seed.
func ValidateSeed(seed []byte) error {
	switch len(seed) {
	case 16, 32, 64:
		return nil
	}
	mnemonic := string(bytes.TrimSpace(seed))
	if bip39.IsMnemonicValid(mnemonic) {
		return nil
	}
	return &UnsupportedFormatError{Version: -1, Reason: "decrypted payload is not a wallet seed"}
}
