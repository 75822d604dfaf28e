// Package uploads caches decoded-but-not-yet-committed key containers
// between the upload phase and the alias-selection phase. Entries live under
// random opaque tokens and are bounded by TTL and count; losing an entry
// only forces a re-upload, never a correctness problem.
package uploads

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sensiblebit/storekit"
)

// ErrStateNotFound is returned when a token does not resolve to a cached
// upload, either because it never existed or because it expired. Callers
// must report this as a user-facing, non-field error.
var ErrStateNotFound = errors.New("the stateId could not be resolved to a previously uploaded keystore")

const (
	// DefaultTTL bounds how long an abandoned upload is retained.
	DefaultTTL = 30 * time.Minute
	// DefaultMaxEntries bounds cache growth from abandoned uploads.
	DefaultMaxEntries = 128
)

type cached struct {
	container *storekit.KeyContainer
	addedAt   time.Time
}

// Cache holds uploaded containers keyed by server-generated opaque tokens.
// Entries are independent per token; a single mutex guards the map itself.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[string]cached
	now     func() time.Time
}

// NewCache creates a cache with the given TTL and entry bound. Zero values
// select the defaults.
func NewCache(ttl time.Duration, max int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Cache{
		ttl:     ttl,
		max:     max,
		entries: make(map[string]cached),
		now:     time.Now,
	}
}

// Put stores the container under a fresh random token and returns the token.
func (c *Cache) Put(container *storekit.KeyContainer) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweep()
	token := uuid.NewString()
	c.entries[token] = cached{container: container, addedAt: c.now()}
	slog.Debug("upload cached", "stateId", token, "aliases", len(container.Aliases()))
	return token
}

// Get resolves a token to its cached container. Unknown and expired tokens
// yield ErrStateNotFound, never a silent empty result.
func (c *Cache) Get(token string) (*storekit.KeyContainer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[token]
	if !ok {
		return nil, ErrStateNotFound
	}
	if c.now().Sub(e.addedAt) > c.ttl {
		delete(c.entries, token)
		return nil, ErrStateNotFound
	}
	return e.container, nil
}

// sweep drops expired entries and, if the cache is still over its bound,
// evicts the oldest entries first. Caller must hold c.mu.
func (c *Cache) sweep() {
	now := c.now()
	for token, e := range c.entries {
		if now.Sub(e.addedAt) > c.ttl {
			delete(c.entries, token)
		}
	}
	for len(c.entries) >= c.max {
		var oldestToken string
		var oldest time.Time
		for token, e := range c.entries {
			if oldestToken == "" || e.addedAt.Before(oldest) {
				oldestToken = token
				oldest = e.addedAt
			}
		}
		delete(c.entries, oldestToken)
		slog.Debug("upload evicted", "stateId", oldestToken)
	}
}
