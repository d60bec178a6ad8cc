// Package dedupe tracks seen event ids so duplicate submissions are
// acknowledged instead of double-applied.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen event IDs to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an ID from the seen list, allowing it to be retried.
	// Used when an event was marked as seen but downstream recording
	// failed, so the client can resubmit with the same id.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// ringSlot is one recorded claim in insertion order. seq ties the slot to
// a specific claim of the id: Unrecord followed by a re-record issues a new
// seq, so eviction can tell the stale slot from the live one.
type ringSlot struct {
	id  string
	seq uint64
}

// inMemoryDeduper implements Deduper with a map plus a FIFO ring of claims.
// When the bound is reached the oldest live claim is forgotten first, so
// idempotency holds for at least the most recent maxSize events.
// maxSize <= 0 disables eviction entirely.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]uint64 // id -> seq of its live claim
	ring    []ringSlot        // insertion order, oldest at head
	head    int
	nextSeq uint64
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50000,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]uint64)
	if d.maxSize > 0 {
		d.ring = make([]ringSlot, 0, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(ctx context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}

	d.nextSeq++
	if d.maxSize > 0 {
		if len(d.seen) >= d.maxSize {
			d.evictOldest()
		}
		d.ring = append(d.ring, ringSlot{id: id, seq: d.nextSeq})
	}
	d.seen[id] = d.nextSeq
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(ctx context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; !ok {
		return
	}
	delete(d.seen, id)
	d.size.Add(-1)
	// The stale ring slot is skipped lazily during eviction: its seq no
	// longer matches any live claim.
}

// evictOldest drops slots from the head of the ring until one live claim is
// removed. Slots orphaned by Unrecord, or superseded by a later re-record
// of the same id, are skipped. Caller holds d.mu.
func (d *inMemoryDeduper) evictOldest() {
	for d.head < len(d.ring) {
		slot := d.ring[d.head]
		d.head++
		if seq, ok := d.seen[slot.id]; ok && seq == slot.seq {
			delete(d.seen, slot.id)
			d.size.Add(-1)
			break
		}
	}

	// Compact once the dead prefix dominates the ring.
	if d.head > 0 && d.head*2 >= len(d.ring) {
		d.ring = append(d.ring[:0], d.ring[d.head:]...)
		d.head = 0
	}
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
