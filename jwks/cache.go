package jwks

import (
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	jwksfetcher "github.com/opstrace/go-jwks-fetcher"
)

// Entry is one stored key set and the time it was retrieved.
type Entry struct {
	KeySet      KeySet
	RetrievedAt time.Time
}

// KeySetCache is a single-slot store of the last successfully retrieved
// key set, used as the fallback when a refresh fails. It is written in
// full on every successful fetch and never cleared.
//
// Readers never observe a key set paired with another key set's
// timestamp: both live in one immutable Entry that is swapped atomically.
type KeySetCache struct {
	clock  clockwork.Clock
	logger jwksfetcher.Logger

	current atomic.Pointer[Entry]
}

// NewKeySetCache returns an empty cache. A nil clock means the real
// clock and a nil logger discards log events.
func NewKeySetCache(clock clockwork.Clock, logger jwksfetcher.Logger) *KeySetCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = jwksfetcher.NopLogger{}
	}
	return &KeySetCache{clock: clock, logger: logger}
}

// Remember replaces the stored key set and stamps it with the current
// time. The key set is copied.
func (c *KeySetCache) Remember(keySet KeySet) Entry {
	entry := &Entry{
		KeySet:      keySet.clone(),
		RetrievedAt: c.clock.Now(),
	}
	c.current.Store(entry)

	c.logger.Info("JWKS fetcher: got fresh key set, stored as last known good", "bytes", len(keySet))
	return *entry
}

// ReadStale returns the stored key set regardless of its age, together
// with that age. It fails with ErrNotInitialized if nothing was stored yet.
func (c *KeySetCache) ReadStale() (Entry, time.Duration, error) {
	entry := c.current.Load()
	if entry == nil {
		return Entry{}, 0, ErrNotInitialized
	}

	age := c.clock.Since(entry.RetrievedAt)
	c.logger.Info("JWKS fetcher: use potentially stale key set", "age_seconds", age.Seconds())
	return *entry, age, nil
}

// Populated reports whether a key set was ever stored.
func (c *KeySetCache) Populated() bool {
	return c.current.Load() != nil
}
