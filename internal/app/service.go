// Package service wires the rating engine together and implements the
// ingestion gateway the HTTP API depends on.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tastemachine/poa-engine/internal/adapters/mq/dirtyset"
	"github.com/tastemachine/poa-engine/internal/adapters/mq/recompute"
	"github.com/tastemachine/poa-engine/internal/adapters/repository"
	"github.com/tastemachine/poa-engine/internal/domain/dedupe"
	"github.com/tastemachine/poa-engine/internal/domain/model"
	"github.com/tastemachine/poa-engine/internal/domain/rating"
	"github.com/tastemachine/poa-engine/internal/domain/recent"
	"github.com/tastemachine/poa-engine/internal/domain/selector"
	"github.com/tastemachine/poa-engine/internal/domain/types"
	"github.com/tastemachine/poa-engine/pkg/logger"
	"github.com/tastemachine/poa-engine/pkg/metrics"
	"github.com/tastemachine/poa-engine/pkg/retry"
)

// VoteRequest is one head-to-head vote submission.
type VoteRequest struct {
	EventID  string
	VoterID  string
	NFTAID   string
	NFTBID   string
	WinnerID string
	Weight   model.VoteWeight
	TS       time.Time
}

// SliderRequest is one 0-100 slider rating submission.
type SliderRequest struct {
	EventID  string
	VoterID  string
	NFTID    string
	RawScore float64
	TS       time.Time
}

// FireRequest is one favorite-tap submission.
type FireRequest struct {
	EventID string
	VoterID string
	NFTID   string
	TS      time.Time
}

// VoteResult reports the Elo exchange a vote produced. The deltas are
// zero-sum before clamping.
type VoteResult struct {
	EventID   string  `json:"event_id"`
	EloDeltaA float64 `json:"elo_delta_a"`
	EloDeltaB float64 `json:"elo_delta_b"`
}

// Service owns the engine's components and serializes event ingestion
// against the rating store.
type Service struct {
	mu sync.RWMutex

	store   repository.Store
	events  repository.EventLog
	deduper dedupe.Deduper
	dirty   dirtyset.Set
	recent  recent.Tracker
	sel     *selector.Selector
	engine  *recompute.Engine

	params rating.Params
	policy retry.Policy

	dedupeSize          int
	recentCooldown      time.Duration
	recentCapacity      int
	maxLeaderboardLimit int
	selectorOpts        []selector.Option
	recomputeOpts       []recompute.Option

	started bool
	log     logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithRatingParams sets the Elo/composite parameters.
func WithRatingParams(p rating.Params) Option {
	return func(s *Service) {
		s.params = p
	}
}

// WithRetryPolicy sets the retry policy for store mutations.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithDedupeSize bounds the idempotency cache.
func WithDedupeSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.dedupeSize = n
		}
	}
}

// WithRecentWindow configures the duplicate-matchup cooldown and how many
// shown keys are remembered.
func WithRecentWindow(cooldown time.Duration, capacity int) Option {
	return func(s *Service) {
		if cooldown > 0 {
			s.recentCooldown = cooldown
		}
		if capacity > 0 {
			s.recentCapacity = capacity
		}
	}
}

// WithMaxLeaderboardLimit caps leaderboard query sizes.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLeaderboardLimit = n
		}
	}
}

// WithSelectorOptions forwards options to the matchup selector.
func WithSelectorOptions(opts ...selector.Option) Option {
	return func(s *Service) {
		s.selectorOpts = append(s.selectorOpts, opts...)
	}
}

// WithRecomputeOptions forwards options to the recompute engine.
func WithRecomputeOptions(opts ...recompute.Option) Option {
	return func(s *Service) {
		s.recomputeOpts = append(s.recomputeOpts, opts...)
	}
}

// WithStore injects a rating store (a durable backend, or a test double).
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithEventLog injects an event log.
func WithEventLog(log repository.EventLog) Option {
	return func(s *Service) {
		if log != nil {
			s.events = log
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		params:              rating.NewParams(),
		policy:              retry.NewPolicy(),
		dedupeSize:          500_000,
		recentCooldown:      2 * time.Hour,
		recentCapacity:      100_000,
		maxLeaderboardLimit: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds any component that was not injected and launches the
// recompute loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.log == nil {
		s.log = logger.Get().Named("service")
	}

	if s.store == nil {
		s.store = repository.NewMemStore()
	}
	if s.events == nil {
		s.events = repository.NewMemEventLog()
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.dirty = dirtyset.NewInMemorySet()
	s.recent = recent.NewTracker(
		recent.WithCooldown(s.recentCooldown),
		recent.WithCapacity(s.recentCapacity),
	)
	s.sel = selector.New(s.store, s.recent, s.selectorOpts...)

	engineOpts := append([]recompute.Option{
		recompute.WithParams(s.params),
		recompute.WithRetryPolicy(s.policy),
		recompute.WithReplaySource(s.events),
	}, s.recomputeOpts...)
	s.engine = recompute.New(s.dirty, s.store, engineOpts...)
	s.engine.Start(ctx)

	s.started = true
	s.log.Info(ctx, "rating engine started",
		logger.Int("dedupe_size", s.dedupeSize),
		logger.Duration("recent_cooldown", s.recentCooldown),
	)
	return nil
}

// Stop shuts the engine down and waits for in-flight recomputes.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.engine.Stop(ctx)
	s.started = false
	s.log.Info(ctx, "rating engine stopped")
}

// Register makes an NFT known to the store at the standard priors.
func (s *Service) Register(ctx context.Context, id, collection string) error {
	if id == "" {
		return fmt.Errorf("%w: empty nft id", ErrInvalidRequest)
	}
	return s.store.Register(ctx, id, collection)
}

// RecordVote validates and applies one head-to-head vote.
//
// The event is appended to the log and applied to both ratings inside the
// store's pair critical section, so the logged pre-vote Elo snapshots are
// exactly the means the delta was computed from. The Elo exchange is
// zero-sum before clamping.
func (s *Service) RecordVote(ctx context.Context, req VoteRequest) (VoteResult, error) {
	if req.NFTAID == "" || req.NFTBID == "" || req.NFTAID == req.NFTBID {
		return VoteResult{}, fmt.Errorf("%w: vote needs two distinct nft ids", ErrInvalidRequest)
	}
	if req.WinnerID != req.NFTAID && req.WinnerID != req.NFTBID {
		return VoteResult{}, fmt.Errorf("%w: winner %q is not part of the pair", ErrInvalidRequest, req.WinnerID)
	}
	if req.Weight == "" {
		req.Weight = model.WeightNormal
	}
	if !req.Weight.Valid() {
		return VoteResult{}, fmt.Errorf("%w: unknown vote weight %q", ErrInvalidRequest, req.Weight)
	}
	if req.TS.IsZero() {
		req.TS = time.Now()
	}
	if req.EventID == "" {
		// Events submitted without an id cannot be deduplicated; assign one
		// so the log stays uniquely keyed.
		req.EventID = uuid.NewString()
	}

	result := VoteResult{EventID: req.EventID}

	if s.deduper.SeenAndRecord(ctx, req.EventID) {
		metrics.RecordEventDuplicate()
		return result, ErrDuplicateEvent
	}

	err := s.policy.Do(ctx, func(ctx context.Context) error {
		_, _, err := s.store.UpdatePair(ctx, req.NFTAID, req.NFTBID, func(a, b *model.RatingRecord) error {
			event := model.VoteEvent{
				EventID:  req.EventID,
				VoterID:  req.VoterID,
				NFTAID:   req.NFTAID,
				NFTBID:   req.NFTBID,
				WinnerID: req.WinnerID,
				EloPreA:  a.EloMean,
				EloPreB:  b.EloMean,
				Weight:   req.Weight,
				TS:       req.TS,
			}
			if err := s.events.AppendVote(ctx, event); err != nil {
				return retry.Permanent(err)
			}

			winner, loser := a, b
			if req.WinnerID == b.ID {
				winner, loser = b, a
			}
			delta := s.params.EloDelta(winner.EloMean, loser.EloMean, req.Weight)
			winner.EloMean += delta
			loser.EloMean -= delta
			result.EloDeltaA, result.EloDeltaB = delta, -delta
			if winner.ID == req.NFTBID {
				result.EloDeltaA, result.EloDeltaB = -delta, delta
			}
			winner.EloSigma = s.params.ShrinkSigma(winner.EloSigma)
			loser.EloSigma = s.params.ShrinkSigma(loser.EloSigma)
			winner.Wins++
			loser.Losses++
			winner.TotalVotes++
			loser.TotalVotes++
			return nil
		})
		if errors.Is(err, repository.ErrNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		// Release the idempotency claim so the client can retry.
		s.deduper.Unrecord(ctx, req.EventID)
		return VoteResult{}, s.mapStoreErr(err)
	}

	priority := 0
	if req.Weight == model.WeightSuper {
		priority = 1
	}
	s.dirty.Mark(ctx, req.NFTAID, priority, model.ReasonNewVote)
	s.dirty.Mark(ctx, req.NFTBID, priority, model.ReasonNewVote)
	metrics.RecordVoteProcessed(string(req.Weight))
	return result, nil
}

// RecordSlider validates and applies one slider rating. It returns the
// event id recorded for the submission.
func (s *Service) RecordSlider(ctx context.Context, req SliderRequest) (string, error) {
	if req.NFTID == "" {
		return "", fmt.Errorf("%w: empty nft id", ErrInvalidRequest)
	}
	if req.RawScore < 0 || req.RawScore > 100 {
		return "", fmt.Errorf("%w: slider score %v outside [0, 100]", ErrInvalidRequest, req.RawScore)
	}
	if req.TS.IsZero() {
		req.TS = time.Now()
	}
	if req.EventID == "" {
		req.EventID = uuid.NewString()
	}

	if s.deduper.SeenAndRecord(ctx, req.EventID) {
		metrics.RecordEventDuplicate()
		return req.EventID, ErrDuplicateEvent
	}

	err := s.policy.Do(ctx, func(ctx context.Context) error {
		_, err := s.store.Update(ctx, req.NFTID, func(rec *model.RatingRecord) error {
			event := model.SliderEvent{
				EventID:  req.EventID,
				VoterID:  req.VoterID,
				NFTID:    req.NFTID,
				RawScore: req.RawScore,
				TS:       req.TS,
			}
			if err := s.events.AppendSlider(ctx, event); err != nil {
				return retry.Permanent(err)
			}
			rec.SliderMean, rec.SliderM2, rec.SliderCount = rating.WelfordStep(
				rec.SliderMean, rec.SliderM2, rec.SliderCount, req.RawScore)
			return nil
		})
		if errors.Is(err, repository.ErrNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		s.deduper.Unrecord(ctx, req.EventID)
		return "", s.mapStoreErr(err)
	}

	s.dirty.Mark(ctx, req.NFTID, 0, model.ReasonNewSlider)
	metrics.RecordSliderProcessed()
	return req.EventID, nil
}

// RecordFire applies one favorite tap. Fires never touch Elo or slider
// state; they only feed the composite score's boost term. It returns the
// event id recorded for the submission.
func (s *Service) RecordFire(ctx context.Context, req FireRequest) (string, error) {
	if req.NFTID == "" {
		return "", fmt.Errorf("%w: empty nft id", ErrInvalidRequest)
	}
	if req.TS.IsZero() {
		req.TS = time.Now()
	}
	if req.EventID == "" {
		req.EventID = uuid.NewString()
	}

	if s.deduper.SeenAndRecord(ctx, req.EventID) {
		metrics.RecordEventDuplicate()
		return req.EventID, ErrDuplicateEvent
	}

	err := s.policy.Do(ctx, func(ctx context.Context) error {
		_, err := s.store.Update(ctx, req.NFTID, func(rec *model.RatingRecord) error {
			event := model.FireEvent{
				EventID: req.EventID,
				VoterID: req.VoterID,
				NFTID:   req.NFTID,
				TS:      req.TS,
			}
			if err := s.events.AppendFire(ctx, event); err != nil {
				return retry.Permanent(err)
			}
			rec.FireCount++
			return nil
		})
		if errors.Is(err, repository.ErrNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		s.deduper.Unrecord(ctx, req.EventID)
		return "", s.mapStoreErr(err)
	}

	s.dirty.Mark(ctx, req.NFTID, 0, model.ReasonNewVote)
	metrics.RecordFireProcessed()
	return req.EventID, nil
}

// SelectMatchup delegates to the matchup selector.
func (s *Service) SelectMatchup(ctx context.Context, req selector.Request) (types.Matchup, error) {
	start := time.Now()
	out, err := s.sel.Select(ctx, req)
	metrics.RecordSelectionLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		if errors.Is(err, selector.ErrPoolExhausted) {
			metrics.RecordPoolExhausted()
		}
		return types.Matchup{}, err
	}
	return types.Matchup{
		Type:    string(out.Type),
		NFTIDs:  out.NFTIDs,
		Relaxed: out.Relaxed,
	}, nil
}

// GetScore returns the full rating view of one NFT. When no composite
// score has been published yet the score and confidence are computed on
// the fly and flagged as estimated.
func (s *Service) GetScore(ctx context.Context, id string) (types.Score, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return types.Score{}, s.mapStoreErr(err)
	}

	view := types.Score{
		NFTID:        rec.ID,
		Collection:   rec.Collection,
		EloMean:      rec.EloMean,
		EloSigma:     rec.EloSigma,
		TotalVotes:   rec.TotalVotes,
		Wins:         rec.Wins,
		Losses:       rec.Losses,
		SliderMean:   rec.SliderMean,
		SliderCount:  rec.SliderCount,
		FireCount:    rec.FireCount,
		LastScoredAt: rec.LastScoredAt,
	}
	if rec.Scored() {
		view.Score = *rec.AestheticScore
		view.Confidence = *rec.AestheticConfidence
	} else {
		view.Score, view.Confidence = s.params.Composite(&rec)
		view.Estimated = true
	}
	return view, nil
}

// Leaderboard returns the top-N entries by aesthetic score.
func (s *Service) Leaderboard(ctx context.Context, n int) ([]types.Entry, error) {
	if n <= 0 || n > s.maxLeaderboardLimit {
		return nil, fmt.Errorf("%w: limit must be in [1, %d]", ErrInvalidRequest, s.maxLeaderboardLimit)
	}
	entries, err := s.store.Leaderboard(ctx, n)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	out := make([]types.Entry, len(entries))
	for i, e := range entries {
		out[i] = types.Entry{
			Rank:       e.Rank,
			NFTID:      e.NFTID,
			Collection: e.Collection,
			Score:      e.Score,
			Confidence: e.Confidence,
			Estimated:  e.Estimated,
		}
	}
	return out, nil
}

// Rank returns the leaderboard position of one NFT.
func (s *Service) Rank(ctx context.Context, id string) (types.Entry, error) {
	e, err := s.store.Rank(ctx, id)
	if err != nil {
		return types.Entry{}, s.mapStoreErr(err)
	}
	return types.Entry{
		Rank:       e.Rank,
		NFTID:      e.NFTID,
		Collection: e.Collection,
		Score:      e.Score,
		Confidence: e.Confidence,
		Estimated:  e.Estimated,
	}, nil
}

// MarkDirty manually queues an NFT for recomputation.
func (s *Service) MarkDirty(ctx context.Context, id string, reason model.DirtyReason) error {
	if reason == "" {
		reason = model.ReasonManual
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		return s.mapStoreErr(err)
	}
	s.dirty.Mark(ctx, id, 0, reason)
	return nil
}

// RecomputeBatch drains up to maxItems dirty markers synchronously.
func (s *Service) RecomputeBatch(ctx context.Context, maxItems int) recompute.Stats {
	return s.engine.Drain(ctx, maxItems)
}

// GetStats returns engine statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started": s.started,
	}
	if !s.started {
		return stats
	}

	tracked := s.store.Count(ctx)
	stats["tracked_nfts"] = tracked
	stats["dirty_set_depth"] = s.dirty.Len()
	stats["dedupe_entries"] = s.deduper.Size()
	stats["events_logged"] = s.events.Len(ctx)
	stats["recent_keys"] = s.recent.Len()

	metrics.UpdateTrackedNFTs(tracked)
	return stats
}

// mapStoreErr normalizes storage errors into the service's taxonomy.
func (s *Service) mapStoreErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrUnknownNFT, err)
	}
	if errors.Is(err, repository.ErrDuplicateEvent) {
		return ErrDuplicateEvent
	}
	return err
}
