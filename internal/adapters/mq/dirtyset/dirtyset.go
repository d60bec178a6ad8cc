// Package dirtyset is the work queue of NFT ids awaiting score
// recomputation. It decouples write-time event ingestion from batch-time
// recompute.
package dirtyset

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/tastemachine/poa-engine/internal/domain/model"
	"github.com/tastemachine/poa-engine/pkg/metrics"
)

// Set collects dirty markers with per-NFT collapsing: marking an already
// dirty id bumps its priority instead of inserting a duplicate.
type Set interface {
	// Mark inserts or bumps a marker for the NFT. The collapse keeps the
	// earliest enqueue time and the highest priority seen.
	Mark(ctx context.Context, nftID string, priority int, reason model.DirtyReason)

	// Pop removes and returns up to max markers ordered by priority
	// descending, then enqueue time ascending (FIFO within priority).
	Pop(ctx context.Context, max int) []model.DirtyMarker

	// Requeue puts a marker back after a failed recompute, preserving its
	// original enqueue time so it keeps its place in line.
	Requeue(ctx context.Context, m model.DirtyMarker)

	// Len returns the number of distinct dirty NFTs.
	Len() int
}

// item is a heap entry; index tracks the heap slot for Fix on bump.
type item struct {
	marker model.DirtyMarker
	index  int
}

type markerHeap []*item

func (h markerHeap) Len() int { return len(h) }

func (h markerHeap) Less(i, j int) bool {
	if h[i].marker.Priority != h[j].marker.Priority {
		return h[i].marker.Priority > h[j].marker.Priority
	}
	return h[i].marker.EnqueuedAt.Before(h[j].marker.EnqueuedAt)
}

func (h markerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *markerHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *markerHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

type inMemorySet struct {
	mu    sync.Mutex
	byID  map[string]*item
	queue markerHeap
	now   func() time.Time
}

// Option applies a configuration option to the in-memory set.
type Option func(*inMemorySet)

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *inMemorySet) {
		if now != nil {
			s.now = now
		}
	}
}

// NewInMemorySet creates an empty dirty set.
func NewInMemorySet(opts ...Option) Set {
	s := &inMemorySet{
		byID: make(map[string]*item),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *inMemorySet) Mark(ctx context.Context, nftID string, priority int, reason model.DirtyReason) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byID[nftID]; ok {
		if priority > existing.marker.Priority {
			existing.marker.Priority = priority
			existing.marker.Reason = reason
			heap.Fix(&s.queue, existing.index)
		}
		return
	}

	it := &item{marker: model.DirtyMarker{
		NFTID:      nftID,
		Priority:   priority,
		Reason:     reason,
		EnqueuedAt: s.now(),
	}}
	s.byID[nftID] = it
	heap.Push(&s.queue, it)
	metrics.UpdateDirtySetDepth(len(s.byID))
}

func (s *inMemorySet) Pop(ctx context.Context, max int) []model.DirtyMarker {
	if max < 1 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.DirtyMarker, 0, max)
	for len(out) < max && s.queue.Len() > 0 {
		it := heap.Pop(&s.queue).(*item)
		delete(s.byID, it.marker.NFTID)
		out = append(out, it.marker)
	}
	metrics.UpdateDirtySetDepth(len(s.byID))
	return out
}

func (s *inMemorySet) Requeue(ctx context.Context, m model.DirtyMarker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byID[m.NFTID]; ok {
		// Re-marked while being processed; keep the earlier enqueue time.
		if m.EnqueuedAt.Before(existing.marker.EnqueuedAt) {
			existing.marker.EnqueuedAt = m.EnqueuedAt
		}
		if m.Priority > existing.marker.Priority {
			existing.marker.Priority = m.Priority
		}
		heap.Fix(&s.queue, existing.index)
		return
	}

	it := &item{marker: m}
	s.byID[m.NFTID] = it
	heap.Push(&s.queue, it)
	metrics.UpdateDirtySetDepth(len(s.byID))
}

func (s *inMemorySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
