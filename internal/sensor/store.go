package sensor

import (
	"sync"
	"time"

	"github.com/banshee-data/visionassist/internal/timeutil"
)

// DefaultStaleAfter is how long a reading stays current without updates.
const DefaultStaleAfter = 3 * time.Second

// Store is a single-slot mailbox for the latest reading. A newer update
// overwrites the previous one; no history is kept.
type Store struct {
	clock      timeutil.Clock
	staleAfter time.Duration

	mu     sync.RWMutex
	latest Reading
	ok     bool
	subs   map[*Subscription]struct{}
}

// NewStore returns an empty store. A non-positive staleAfter disables expiry.
func NewStore(clock timeutil.Clock, staleAfter time.Duration) *Store {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Store{
		clock:      clock,
		staleAfter: staleAfter,
		subs:       make(map[*Subscription]struct{}),
	}
}

// Update replaces the stored reading. A zero At is stamped with the clock.
func (s *Store) Update(r Reading) {
	if r.At.IsZero() {
		r.At = s.clock.Now()
	}
	s.mu.Lock()
	s.latest = r
	s.ok = true
	s.mu.Unlock()
	tracef("reading %s", r)
}

// Latest returns the current reading. It reports false when nothing has been
// received since the last Clear or when the reading is older than the
// staleness limit.
func (s *Store) Latest() (Reading, bool) {
	s.mu.RLock()
	r, ok := s.latest, s.ok
	s.mu.RUnlock()
	if !ok {
		return Reading{}, false
	}
	if s.staleAfter > 0 && s.clock.Since(r.At) > s.staleAfter {
		return Reading{}, false
	}
	return r, true
}

// Clear drops the stored reading.
func (s *Store) Clear() {
	s.mu.Lock()
	s.latest = Reading{}
	s.ok = false
	s.mu.Unlock()
}

// Subscription is a reader handle on a Store owned by one consumer.
type Subscription struct {
	store *Store
	once  sync.Once
}

// Subscribe registers a new reader.
func (s *Store) Subscribe() *Subscription {
	sub := &Subscription{store: s}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

// Subscribers returns the number of open subscriptions.
func (s *Store) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Latest reads through to the store. Closed subscriptions see nothing.
func (sub *Subscription) Latest() (Reading, bool) {
	sub.store.mu.RLock()
	_, open := sub.store.subs[sub]
	sub.store.mu.RUnlock()
	if !open {
		return Reading{}, false
	}
	return sub.store.Latest()
}

// Close releases the subscription. It is safe to call more than once.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.store.mu.Lock()
		delete(sub.store.subs, sub)
		sub.store.mu.Unlock()
	})
}
