package repository

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/tastemachine/poa-engine/internal/domain/model"
	"github.com/tastemachine/poa-engine/internal/domain/rating"
	"github.com/tastemachine/poa-engine/pkg/metrics"
)

// defaultCandidateLimit bounds candidate pools when the filter leaves
// Limit unset.
const defaultCandidateLimit = 64

// MemStore is the in-memory Store implementation.
//
// Layout: a records map guarded by a single RWMutex for structural access,
// a treap ranked index over the same ids, and a concurrent map of per-NFT
// mutexes that serializes Update/UpdatePair per id without forcing
// unrelated NFTs through one writer lock.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]*model.RatingRecord
	indexed map[string]scoreFP // ranking score currently in the treap
	root    *treapNode

	locks *xsync.Map[string, *sync.Mutex]

	candidateLimit int
}

// Option applies a configuration option to the MemStore.
type Option func(*MemStore)

// WithCandidateLimit sets the default candidate-pool bound.
func WithCandidateLimit(n int) Option {
	return func(s *MemStore) {
		if n > 0 {
			s.candidateLimit = n
		}
	}
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore(opts ...Option) *MemStore {
	s := &MemStore{
		records:        make(map[string]*model.RatingRecord),
		indexed:        make(map[string]scoreFP),
		locks:          xsync.NewMap[string, *sync.Mutex](),
		candidateLimit: defaultCandidateLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// rankingScore is what the leaderboard orders by: the published composite
// score when one exists, otherwise the Elo-derived estimate.
func rankingScore(rec *model.RatingRecord) (score float64, estimated bool) {
	if rec.AestheticScore != nil {
		return *rec.AestheticScore, false
	}
	return rating.EloComponent(rec.EloMean), true
}

// treapPriority derives a stable heap priority from the NFT id.
func treapPriority(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

func (s *MemStore) lockFor(id string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu
}

// Register implements Store.Register.
func (s *MemStore) Register(ctx context.Context, id, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; ok {
		return nil
	}
	rec := model.NewRatingRecord(id, collection)
	s.records[id] = &rec
	s.reindexLocked(&rec)
	metrics.UpdateTrackedNFTs(len(s.records))
	return nil
}

// Get implements Store.Get.
func (s *MemStore) Get(ctx context.Context, id string) (model.RatingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return model.RatingRecord{}, ErrNotFound
	}
	return *rec, nil
}

// Update implements Store.Update.
func (s *MemStore) Update(ctx context.Context, id string, fn func(rec *model.RatingRecord) error) (model.RatingRecord, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	s.mu.RLock()
	stored, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return model.RatingRecord{}, ErrNotFound
	}

	// Work on a copy; the stored record changes only when fn succeeds.
	next := *stored
	if err := fn(&next); err != nil {
		return model.RatingRecord{}, err
	}
	clampRecord(&next)

	s.mu.Lock()
	*stored = next
	s.reindexLocked(stored)
	s.mu.Unlock()
	return next, nil
}

// UpdatePair implements Store.UpdatePair. Per-id locks are taken in id
// order so two overlapping pair updates cannot deadlock.
func (s *MemStore) UpdatePair(ctx context.Context, aID, bID string, fn func(a, b *model.RatingRecord) error) (model.RatingRecord, model.RatingRecord, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	firstID, secondID := aID, bID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}
	first := s.lockFor(firstID)
	second := s.lockFor(secondID)
	first.Lock()
	defer first.Unlock()
	second.Lock()
	defer second.Unlock()

	s.mu.RLock()
	storedA, okA := s.records[aID]
	storedB, okB := s.records[bID]
	s.mu.RUnlock()
	if !okA || !okB {
		return model.RatingRecord{}, model.RatingRecord{}, ErrNotFound
	}

	nextA, nextB := *storedA, *storedB
	if err := fn(&nextA, &nextB); err != nil {
		return model.RatingRecord{}, model.RatingRecord{}, err
	}
	clampRecord(&nextA)
	clampRecord(&nextB)

	s.mu.Lock()
	*storedA = nextA
	*storedB = nextB
	s.reindexLocked(storedA)
	s.reindexLocked(storedB)
	s.mu.Unlock()
	return nextA, nextB, nil
}

// PublishAestheticScore implements Store.PublishAestheticScore.
func (s *MemStore) PublishAestheticScore(ctx context.Context, id string, score, confidence float64, at time.Time) error {
	_, err := s.Update(ctx, id, func(rec *model.RatingRecord) error {
		sc := rating.Clamp(score, 0, 100)
		cf := rating.Clamp(confidence, 0, 1)
		ts := at
		rec.AestheticScore = &sc
		rec.AestheticConfidence = &cf
		rec.LastScoredAt = &ts
		return nil
	})
	return err
}

// Candidates implements Store.Candidates. The treap is walked from best to
// worst so the pool is the top-N matching records by ranking score.
func (s *MemStore) Candidates(ctx context.Context, f Filter) ([]model.RatingRecord, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	limit := f.Limit
	if limit <= 0 {
		limit = s.candidateLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RatingRecord, 0, limit)
	walkInOrder(s.root, func(id string) bool {
		rec, ok := s.records[id]
		if !ok {
			return true
		}
		if !matchesFilter(rec, f) {
			return true
		}
		out = append(out, *rec)
		return len(out) < limit
	})
	return out, nil
}

func matchesFilter(rec *model.RatingRecord, f Filter) bool {
	if f.Collection != "" && rec.Collection != f.Collection {
		return false
	}
	if f.NotCollection != "" && rec.Collection == f.NotCollection {
		return false
	}
	if rec.TotalVotes < f.MinVotes {
		return false
	}
	if f.MaxVotes >= 0 && rec.TotalVotes > f.MaxVotes {
		return false
	}
	if f.Exclude != nil {
		if _, excluded := f.Exclude[rec.ID]; excluded {
			return false
		}
	}
	return true
}

// Leaderboard implements Store.Leaderboard.
func (s *MemStore) Leaderboard(ctx context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if n < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, n)
	walkInOrder(s.root, func(id string) bool {
		rec, ok := s.records[id]
		if !ok {
			return true
		}
		out = append(out, s.entryLocked(rec, len(out)+1))
		return len(out) < n
	})
	return out, nil
}

// Rank implements Store.Rank in O(log n) via treap order statistics.
func (s *MemStore) Rank(ctx context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	rank := treapRank(s.root, id, s.indexed[id])
	if rank == 0 {
		return Entry{}, ErrNotFound
	}
	return s.entryLocked(rec, rank), nil
}

// Count implements Store.Count.
func (s *MemStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemStore) entryLocked(rec *model.RatingRecord, rank int) Entry {
	score, estimated := rankingScore(rec)
	confidence := 0.0
	if rec.AestheticConfidence != nil {
		confidence = *rec.AestheticConfidence
	}
	return Entry{
		Rank:       rank,
		NFTID:      rec.ID,
		Collection: rec.Collection,
		Score:      score,
		Confidence: confidence,
		Estimated:  estimated,
	}
}

// reindexLocked re-slots one record in the treap after its ranking score
// changed. Caller holds s.mu for writing.
func (s *MemStore) reindexLocked(rec *model.RatingRecord) {
	score, _ := rankingScore(rec)
	fp := toFixedPoint(score)

	if old, ok := s.indexed[rec.ID]; ok {
		if old == fp {
			return
		}
		s.root = treapDelete(s.root, rec.ID, old)
	}
	s.root = treapInsert(s.root, rec.ID, fp, treapPriority(rec.ID))
	s.indexed[rec.ID] = fp
}

// clampRecord enforces the numeric bounds after any mutation.
func clampRecord(rec *model.RatingRecord) {
	rec.EloMean = rating.Clamp(rec.EloMean, model.EloMin, model.EloMax)
	rec.EloSigma = rating.Clamp(rec.EloSigma, model.SigmaMin, model.SigmaMax)
	if rec.SliderM2 < 0 {
		rec.SliderM2 = 0
	}
}
