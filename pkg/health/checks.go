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

package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-walletcore/pkg/device"
	"github.com/jeremyhahn/go-walletcore/pkg/vault"
)

// VaultCheck reports whether the canonical vault is present and well formed.
// A missing vault is degraded: the wallet has simply not been set up.
func VaultCheck(store *vault.FileStore) CheckFunc {
	return func(context.Context) CheckResult {
		v, err := store.Load()
		switch {
		case errors.Is(err, vault.ErrNotFound):
			return CheckResult{
				Name:    "vault",
				Status:  StatusDegraded,
				Message: "no vault at " + store.Path(),
			}
		case err != nil:
			return CheckResult{
				Name:    "vault",
				Status:  StatusUnhealthy,
				Message: "vault unreadable",
				Error:   err.Error(),
			}
		}
		return CheckResult{
			Name:    "vault",
			Status:  StatusHealthy,
			Message: fmt.Sprintf("vault %s (%s, %s)", v.ID, v.Cipher, v.KDF.Algorithm),
		}
	}
}

// DeviceCheck looks for a device of kind within window without pairing
// with it. An absent device is degraded.
func DeviceCheck(manager *device.Manager, kind device.Kind, window time.Duration) CheckFunc {
	name := "device." + kind.String()
	return func(ctx context.Context) CheckResult {
		ctx, cancel := context.WithTimeout(ctx, window)
		defer cancel()

		s, err := manager.Discover(ctx, kind)
		switch {
		case err == nil:
			_ = s.Close()
			return CheckResult{Name: name, Status: StatusHealthy, Message: "connected"}
		case errors.Is(err, device.ErrNotFound), errors.Is(err, context.DeadlineExceeded):
			return CheckResult{Name: name, Status: StatusDegraded, Message: "not connected"}
		default:
			return CheckResult{Name: name, Status: StatusUnhealthy, Message: "discovery failed", Error: err.Error()}
		}
	}
}

// ConfiguredCheck reports a static component that is either set up or not.
func ConfiguredCheck(name string, configured bool, detail string) CheckFunc {
	return func(context.Context) CheckResult {
		if !configured {
			return CheckResult{Name: name, Status: StatusDegraded, Message: "not configured"}
		}
		return CheckResult{Name: name, Status: StatusHealthy, Message: detail}
	}
}
