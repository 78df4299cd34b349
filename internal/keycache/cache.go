// Package keycache is a time-bounded cache of unwrapped data keys, amortizing
// calls to the key provider across decrypt operations that share a wrapped key.
package keycache

import (
	"context"
	"crypto/sha256"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/medisafe/vaultcore/internal/kms"
)

// Reference policy: entries live for one hour, swept every ten minutes.
const (
	DefaultTTL           = time.Hour
	DefaultSweepInterval = 10 * time.Minute
)

type entry struct {
	key       []byte
	expiresAt time.Time
}

// Cache maps a wrapped-key fingerprint to its unwrapped plaintext key.
// Entries are never refreshed in place; expiry removes them and the next miss
// re-fetches. Concurrent misses for the same wrapped key may both call the
// provider; last write wins.
type Cache struct {
	provider kms.Provider
	ttl      time.Duration
	sweepAt  time.Duration
	now      func() time.Time
	log      *zap.Logger

	mu      sync.RWMutex
	entries map[[sha256.Size]byte]entry

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the default entry TTL.
func WithTTL(ttl time.Duration) Option { return func(c *Cache) { c.ttl = ttl } }

// WithSweepInterval overrides the default background sweep interval.
func WithSweepInterval(d time.Duration) Option { return func(c *Cache) { c.sweepAt = d } }

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// New constructs a cache over the given provider. Call Start to run the
// background sweep and Stop to halt it.
func New(provider kms.Provider, log *zap.Logger, opts ...Option) *Cache {
	c := &Cache{
		provider: provider,
		ttl:      DefaultTTL,
		sweepAt:  DefaultSweepInterval,
		now:      time.Now,
		log:      log,
		entries:  make(map[[sha256.Size]byte]entry),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrUnwrap returns the plaintext key for the wrapped key, unwrapping through
// the provider on a miss and caching the result for the TTL.
func (c *Cache) GetOrUnwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	fp := sha256.Sum256(wrapped)

	c.mu.RLock()
	e, ok := c.entries[fp]
	c.mu.RUnlock()
	if ok && e.expiresAt.After(c.now()) {
		return append([]byte(nil), e.key...), nil
	}

	key, err := c.provider.UnwrapDataKey(ctx, wrapped)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[fp] = entry{key: append([]byte(nil), key...), expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return key, nil
}

// SweepExpired removes all entries past expiry and returns how many were removed.
func (c *Cache) SweepExpired() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for fp, e := range c.entries {
		if !e.expiresAt.After(now) {
			delete(c.entries, fp)
			removed++
		}
	}
	return removed
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[[sha256.Size]byte]entry)
	c.mu.Unlock()
}

// Size reports the number of cached entries, expired or not.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Start launches the periodic sweep. Safe to call once per cache.
func (c *Cache) Start() {
	c.startOnce.Do(func() {
		go func() {
			t := time.NewTicker(c.sweepAt)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					if n := c.SweepExpired(); n > 0 {
						c.log.Debug("data key cache sweep", zap.Int("removed", n))
					}
				case <-c.done:
					return
				}
			}
		}()
	})
}

// Stop halts the periodic sweep. Idempotent.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}
