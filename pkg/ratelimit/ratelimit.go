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

// Package ratelimit throttles engine operations with one token bucket per
// key. The wallet engine keys exchange links by endpoint, so a limiter shared
// across engines throttles each exchange on its own.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter implements a token bucket rate limiter with per-key tracking.
// It uses the golang.org/x/time/rate package for efficient, thread-safe rate limiting.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	enabled  bool

	// Cleanup settings
	cleanupInterval time.Duration
	maxIdle         time.Duration
	lastSeen        map[string]time.Time
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// Config holds rate limiter configuration.
type Config struct {
	// Enabled controls whether rate limiting is active.
	Enabled bool `yaml:"enabled" split_words:"true"`

	// RequestsPerMinute sets the sustained rate limit.
	RequestsPerMinute int `yaml:"requests_per_minute" split_words:"true"`

	// Burst allows short bursts above the sustained rate.
	// If not set, defaults to RequestsPerMinute.
	Burst int `yaml:"burst" split_words:"true"`

	// CleanupInterval controls how often to remove idle keys.
	// Defaults to 10 minutes.
	CleanupInterval time.Duration `yaml:"cleanup_interval" split_words:"true"`

	// MaxIdle is how long a key can be idle before cleanup.
	// Defaults to 30 minutes.
	MaxIdle time.Duration `yaml:"max_idle" split_words:"true"`
}

// New creates a new rate limiter with the given configuration.
func New(config *Config) *Limiter {
	if config == nil {
		config = &Config{Enabled: false}
	}

	burst := config.Burst
	if burst == 0 {
		burst = config.RequestsPerMinute
	}

	cleanupInterval := config.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 10 * time.Minute
	}

	maxIdle := config.MaxIdle
	if maxIdle == 0 {
		maxIdle = 30 * time.Minute
	}

	// Convert requests per minute to requests per second
	ratePerSecond := rate.Limit(float64(config.RequestsPerMinute) / 60.0)

	l := &Limiter{
		limiters:        make(map[string]*rate.Limiter),
		lastSeen:        make(map[string]time.Time),
		rate:            ratePerSecond,
		burst:           burst,
		enabled:         config.Enabled,
		cleanupInterval: cleanupInterval,
		maxIdle:         maxIdle,
		stopCleanup:     make(chan struct{}),
	}

	if config.Enabled {
		go l.cleanupWorker()
	}

	return l
}

// getLimiter returns the rate limiter for key, creating it on first use.
func (l *Limiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}

	l.lastSeen[key] = time.Now()
	return limiter
}

// Allow reports whether an operation for key may proceed now.
func (l *Limiter) Allow(key string) bool {
	if !l.enabled {
		return true
	}
	return l.getLimiter(key).Allow()
}

// Wait blocks until the operation for key may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if !l.enabled {
		return nil
	}
	return l.getLimiter(key).Wait(ctx)
}

// cleanupWorker periodically removes idle keys from memory.
func (l *Limiter) cleanupWorker() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

// cleanup removes keys that haven't been used recently.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, lastSeen := range l.lastSeen {
		if now.Sub(lastSeen) > l.maxIdle {
			delete(l.limiters, key)
			delete(l.lastSeen, key)
		}
	}
}

// Stop stops the cleanup worker. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
}

// Stats returns current rate limiter statistics.
func (l *Limiter) Stats() map[string]interface{} {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return map[string]interface{}{
		"enabled":      l.enabled,
		"active_keys":  len(l.limiters),
		"rate_per_min": float64(l.rate) * 60,
		"burst":        l.burst,
	}
}

// IsEnabled returns whether rate limiting is enabled.
func (l *Limiter) IsEnabled() bool {
	return l.enabled
}
