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

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/jeremyhahn/go-walletcore/internal/config"
	"github.com/jeremyhahn/go-walletcore/internal/password"
	"github.com/jeremyhahn/go-walletcore/pkg/adapters/audit"
	"github.com/jeremyhahn/go-walletcore/pkg/adapters/logger"
	"github.com/jeremyhahn/go-walletcore/pkg/device"
	"github.com/jeremyhahn/go-walletcore/pkg/device/emulator"
	"github.com/jeremyhahn/go-walletcore/pkg/exchange"
	"github.com/jeremyhahn/go-walletcore/pkg/health"
	"github.com/jeremyhahn/go-walletcore/pkg/metrics"
	"github.com/jeremyhahn/go-walletcore/pkg/migration"
	"github.com/jeremyhahn/go-walletcore/pkg/ratelimit"
	"github.com/jeremyhahn/go-walletcore/pkg/vault"
	"github.com/jeremyhahn/go-walletcore/pkg/wallet"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// resourceInterval is how often process gauges refresh while serving metrics.
const resourceInterval = 15 * time.Second

// app is the engine plus everything a single command invocation needs.
type app struct {
	cfg      *config.Config
	logger   logger.Logger
	engine   *wallet.Engine
	devices  *device.Manager
	linker   exchange.Linker
	prompter *password.Prompter
	limiter  *ratelimit.Limiter

	metricsServer *http.Server
	collector     *metrics.ResourceCollector
}

// importOptions are the import command's per-run overrides.
type importOptions struct {
	askNewPassphrase bool
	replace          bool
}

// newApp builds the engine. imp is nil for commands that never import, so
// no vault directory is created for them.
func newApp(cliCfg *Config, stderr io.Writer, imp *importOptions) (*app, error) {
	cfg, err := cliCfg.load()
	if err != nil {
		return nil, err
	}

	level, _ := logger.ParseLevel(cfg.Logging.Level)
	log := logger.NewSlogAdapter(&logger.SlogConfig{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: stderr,
	})

	a := &app{cfg: cfg, logger: log}
	if cliCfg.In != nil {
		a.prompter = password.NewLinePrompter(cliCfg.In, stderr)
	} else {
		a.prompter = password.NewPrompter(os.Stdin, stderr)
	}

	enumerator, err := a.enumerator(cliCfg.Emulator)
	if err != nil {
		return nil, err
	}
	a.devices = device.NewManager(enumerator, cfg.Device.ManagerConfig(log))

	var pipeline *migration.Pipeline
	if imp != nil {
		if pipeline, err = a.pipeline(*imp); err != nil {
			return nil, err
		}
	}

	var linker exchange.Linker
	if cfg.Exchange.BaseURL != "" {
		client, err := exchange.NewRESTClient(&exchange.Config{
			BaseURL:   cfg.Exchange.BaseURL,
			Timeout:   cfg.Exchange.Timeout,
			UserAgent: cfg.Exchange.UserAgent,
			Logger:    log,
		})
		if err != nil {
			return nil, err
		}
		linker = client
	}
	a.linker = linker
	rl := cfg.Exchange.RateLimit
	a.limiter = ratelimit.New(&rl)

	a.engine = wallet.New(&wallet.Config{
		Devices:     a.devices,
		Migration:   pipeline,
		Exchange:    linker,
		LinkLimiter: a.limiter,
		Audit:       audit.NewLoggerAdapter(log),
		Logger:      log,
	})

	if cfg.Metrics.Enabled {
		a.serveMetrics()
	}
	return a, nil
}

func (a *app) enumerator(emulated bool) (device.Enumerator, error) {
	if !emulated {
		// No USB HID transport is linked into walletctl; discovery reports
		// not-found once the window closes.
		return device.EnumeratorFunc(func(context.Context, device.Kind) ([]device.Channel, error) {
			return nil, nil
		}), nil
	}
	bus := emulator.NewBus()
	for _, kind := range device.Kinds() {
		d, err := emulator.New(emulator.Config{Kind: kind})
		if err != nil {
			return nil, err
		}
		bus.Attach(d)
	}
	return bus, nil
}

func (a *app) pipeline(imp importOptions) (*migration.Pipeline, error) {
	store, err := vault.NewFileStore(a.cfg.Vault.Path)
	if err != nil {
		return nil, err
	}
	codec, err := vault.NewCodec(&vault.CodecConfig{KDF: a.cfg.KDF.Params()})
	if err != nil {
		return nil, err
	}
	pc := &migration.Config{
		Store:           store,
		Codec:           codec,
		Prompt:          a.prompter.Func("Extension passphrase"),
		MaxAttempts:     a.cfg.Migration.MaxAttempts,
		AttemptInterval: a.cfg.Migration.AttemptInterval,
		ReplaceExisting: a.cfg.Migration.ReplaceExisting || imp.replace,
		Logger:          a.logger,
	}
	if imp.askNewPassphrase {
		pc.NewPassphrase = a.prompter.Func("New vault passphrase")
	}
	return migration.NewPipeline(pc)
}

// checker registers a status check for every component.
func (a *app) checker(deviceWindow time.Duration) (*health.Checker, error) {
	store, err := vault.NewFileStore(a.cfg.Vault.Path)
	if err != nil {
		return nil, err
	}
	c := health.NewChecker()
	c.RegisterCheck("vault", health.VaultCheck(store))
	c.RegisterCheck("exchange", health.ConfiguredCheck("exchange", a.linker != nil, a.cfg.Exchange.BaseURL))
	for _, kind := range device.Kinds() {
		c.RegisterCheck("device."+kind.String(), health.DeviceCheck(a.devices, kind, deviceWindow))
	}
	return c, nil
}

func (a *app) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"` + string(health.StatusHealthy) + `"}`))
	})
	a.metricsServer = &http.Server{
		Addr:              a.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.collector = metrics.StartResourceCollector(context.Background(), resourceInterval)

	go func() {
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", logger.Error(err))
		}
	}()
	a.logger.Debug("serving metrics",
		logger.String("address", a.cfg.Metrics.Address),
		logger.String("path", a.cfg.Metrics.Path))
}

func (a *app) Close() error {
	var errs []error
	if err := a.engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close session: %w", err))
	}
	a.limiter.Stop()
	if a.collector != nil {
		a.collector.Stop()
	}
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics server: %w", err))
		}
	}
	return errors.Join(errs...)
}
