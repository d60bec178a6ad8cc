// Package recent suppresses duplicate matchups: a time-windowed set of
// recently shown pair (and single-draw) keys with cooldown expiry and a
// bounded footprint.
package recent

import (
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Key identifies a shown selection. Pair keys are order-independent.
type Key string

// PairKey builds the canonical unordered key for a head-to-head pair.
func PairKey(a, b string) Key {
	if b < a {
		a, b = b, a
	}
	return Key(a + "|" + b)
}

// SingleKey builds the key for a single-NFT slider draw.
func SingleKey(id string) Key {
	return Key("~" + id)
}

// Tracker answers "was this shown within the cooldown window" and records
// new selections. Implementations must be safe for concurrent use by many
// simultaneous selection requests.
type Tracker interface {
	WasShownRecently(key Key) bool
	RecordShown(key Key)
	Len() int
}

// tracker keeps last-shown timestamps in a concurrent map. Entries older
// than the cooldown are treated as not-recent even before eviction removes
// them; eviction is amortized onto writes once the capacity is exceeded.
type tracker struct {
	shown    *xsync.Map[Key, time.Time]
	cooldown time.Duration
	capacity int
	now      func() time.Time
}

// Default tracker configuration constants.
const (
	defaultCooldown = 2 * time.Hour
	defaultCapacity = 100_000
)

// Option applies a configuration option to the tracker.
type Option func(*tracker)

// WithCooldown sets the duplicate-suppression window.
func WithCooldown(d time.Duration) Option {
	return func(t *tracker) {
		if d > 0 {
			t.cooldown = d
		}
	}
}

// WithCapacity bounds the number of tracked keys.
func WithCapacity(n int) Option {
	return func(t *tracker) {
		if n > 0 {
			t.capacity = n
		}
	}
}

// WithClock injects a time source, letting tests advance the window.
func WithClock(now func() time.Time) Option {
	return func(t *tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker creates a tracker with configuration options.
func NewTracker(opts ...Option) Tracker {
	t := &tracker{
		shown:    xsync.NewMap[Key, time.Time](),
		cooldown: defaultCooldown,
		capacity: defaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *tracker) WasShownRecently(key Key) bool {
	ts, ok := t.shown.Load(key)
	if !ok {
		return false
	}
	return t.now().Sub(ts) < t.cooldown
}

func (t *tracker) RecordShown(key Key) {
	t.shown.Store(key, t.now())
	if t.shown.Size() > t.capacity {
		t.evict()
	}
}

func (t *tracker) Len() int {
	return t.shown.Size()
}

// evict drops expired entries, then the oldest live ones until the tracker
// is back under capacity. Concurrent RecordShown calls may both trigger an
// eviction pass; double scanning is harmless since deletes are idempotent.
func (t *tracker) evict() {
	type entry struct {
		key Key
		ts  time.Time
	}

	now := t.now()
	var live []entry
	t.shown.Range(func(key Key, ts time.Time) bool {
		if now.Sub(ts) >= t.cooldown {
			t.shown.Delete(key)
			return true
		}
		live = append(live, entry{key: key, ts: ts})
		return true
	})

	excess := len(live) - t.capacity
	if excess <= 0 {
		return
	}
	sort.Slice(live, func(i, j int) bool { return live[i].ts.Before(live[j].ts) })
	for i := 0; i < excess; i++ {
		t.shown.Delete(live[i].key)
	}
}
