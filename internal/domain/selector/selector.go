// Package selector picks which NFTs to show next. It balances exploration
// (cold-start and high-uncertainty items get exposure) against exploitation
// (close-Elo, informative matchups) and suppresses recently shown pairs.
package selector

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"github.com/tastemachine/poa-engine/internal/adapters/repository"
	"github.com/tastemachine/poa-engine/internal/domain/model"
	"github.com/tastemachine/poa-engine/internal/domain/recent"
	"github.com/tastemachine/poa-engine/pkg/logger"
	"github.com/tastemachine/poa-engine/pkg/metrics"
)

// CandidateSource is the read-only slice of the rating store the selector
// needs. The selector never mutates rating state.
type CandidateSource interface {
	Candidates(ctx context.Context, f repository.Filter) ([]model.RatingRecord, error)
}

// Request asks for one selection.
type Request struct {
	Type           model.MatchupType
	CollectionHint string   // scopes same-collection pools when set
	ExcludeIDs     []string // ids the user already saw this session
}

// Selection is a successful pick.
type Selection struct {
	Type    model.MatchupType
	NFTIDs  []string // two ids for pairs, one for slider draws
	Relaxed bool     // true when the duplicate cooldown was relaxed
}

// Weights tune the exploration/exploitation objective.
type Weights struct {
	Uncertainty  float64 // favor high-sigma NFTs
	EloProximity float64 // favor NFTs near the pool median Elo
	ColdStart    float64 // favor zero/low-vote NFTs
	Diversity    float64 // favor underrepresented collections
}

// DefaultWeights is the shipped tuning; all four are configurable.
var DefaultWeights = Weights{
	Uncertainty:  0.35,
	EloProximity: 0.25,
	ColdStart:    0.30,
	Diversity:    0.10,
}

// Default selection tuning constants.
const (
	defaultPoolSize          = 64
	defaultColdVoteThreshold = 3
	defaultEloBand           = 100.0
	defaultBandWidenFactor   = 2.0
	defaultMaxBandWidenings  = 4
	defaultDuplicateRetries  = 3

	// scoreEpsilon keeps every candidate pickable in the weighted draw.
	scoreEpsilon = 0.01
)

// Selector implements matchup selection over a candidate source and a
// recent-pair tracker.
type Selector struct {
	source CandidateSource
	recent recent.Tracker

	weights           Weights
	poolSize          int
	coldVoteThreshold int
	eloBand           float64
	bandWidenFactor   float64
	maxBandWidenings  int
	duplicateRetries  int

	rngMu sync.Mutex
	rng   *rand.Rand

	log logger.Logger
}

// Option applies a configuration option to the Selector.
type Option func(*Selector)

// WithWeights sets the exploration/exploitation weights.
func WithWeights(w Weights) Option {
	return func(s *Selector) {
		s.weights = w
	}
}

// WithPoolSize bounds the candidate pool per selection.
func WithPoolSize(n int) Option {
	return func(s *Selector) {
		if n > 1 {
			s.poolSize = n
		}
	}
}

// WithColdVoteThreshold sets the vote count below which an NFT is treated
// as cold.
func WithColdVoteThreshold(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.coldVoteThreshold = n
		}
	}
}

// WithEloBand sets the initial Elo proximity band for the second pick and
// how it widens when the band is empty.
func WithEloBand(band, widenFactor float64, maxWidenings int) Option {
	return func(s *Selector) {
		if band > 0 {
			s.eloBand = band
		}
		if widenFactor > 1 {
			s.bandWidenFactor = widenFactor
		}
		if maxWidenings > 0 {
			s.maxBandWidenings = maxWidenings
		}
	}
}

// WithDuplicateRetries bounds re-selection attempts before the cooldown is
// relaxed.
func WithDuplicateRetries(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.duplicateRetries = n
		}
	}
}

// WithRandSource injects a deterministic source for tests.
func WithRandSource(src rand.Source) Option {
	return func(s *Selector) {
		if src != nil {
			s.rng = rand.New(src) //nolint:gosec // selection jitter, not crypto
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Selector) {
		if log != nil {
			s.log = log
		}
	}
}

// New constructs a Selector.
func New(source CandidateSource, tracker recent.Tracker, opts ...Option) *Selector {
	s := &Selector{
		source:            source,
		recent:            tracker,
		weights:           DefaultWeights,
		poolSize:          defaultPoolSize,
		coldVoteThreshold: defaultColdVoteThreshold,
		eloBand:           defaultEloBand,
		bandWidenFactor:   defaultBandWidenFactor,
		maxBandWidenings:  defaultMaxBandWidenings,
		duplicateRetries:  defaultDuplicateRetries,
		rng:               rand.New(rand.NewSource(rand.Int63())), //nolint:gosec // selection jitter, not crypto
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("selector")
	}
	return s
}

// Select produces a pair or single draw per the request. It returns
// ErrPoolExhausted when the candidate pool is too small, and never fails
// solely because of duplicate suppression.
func (s *Selector) Select(ctx context.Context, req Request) (Selection, error) {
	if !req.Type.Valid() {
		return Selection{}, ErrUnknownType
	}

	pool, err := s.fetchPool(ctx, req)
	if err != nil {
		return Selection{}, err
	}

	if req.Type == model.MatchupSliderSingle {
		return s.selectSingle(ctx, pool)
	}
	return s.selectPair(ctx, req.Type, pool)
}

// fetchPool assembles the candidate pool: the top-ranked matches for the
// scope plus a cold slice of low-vote NFTs, so popularity feedback loops
// can never starve unseen items out of the pool entirely.
func (s *Selector) fetchPool(ctx context.Context, req Request) ([]model.RatingRecord, error) {
	exclude := make(map[string]struct{}, len(req.ExcludeIDs))
	for _, id := range req.ExcludeIDs {
		exclude[id] = struct{}{}
	}

	base := repository.Filter{
		MaxVotes: -1,
		Exclude:  exclude,
		Limit:    s.poolSize,
	}
	if req.Type == model.MatchupSameCollection {
		base.Collection = req.CollectionHint
	}

	pool, err := s.source.Candidates(ctx, base)
	if err != nil {
		return nil, err
	}

	coldFilter := base
	coldFilter.MaxVotes = s.coldVoteThreshold - 1
	coldFilter.Limit = s.poolSize / 4
	cold, err := s.source.Candidates(ctx, coldFilter)
	if err != nil {
		// The main pool is enough to serve the request; cold enrichment is
		// best-effort.
		s.log.Warn(ctx, "cold candidate fetch failed", logger.Error(err))
		cold = nil
	}

	seen := make(map[string]struct{}, len(pool))
	for _, rec := range pool {
		seen[rec.ID] = struct{}{}
	}
	for _, rec := range cold {
		if _, dup := seen[rec.ID]; !dup {
			pool = append(pool, rec)
		}
	}
	return pool, nil
}

// selectPair runs the scored two-pick draw with duplicate suppression.
func (s *Selector) selectPair(ctx context.Context, typ model.MatchupType, pool []model.RatingRecord) (Selection, error) {
	if len(pool) < 2 {
		return Selection{}, ErrPoolExhausted
	}
	if typ == model.MatchupCrossCollection && collectionCount(pool) < 2 {
		return Selection{}, ErrPoolExhausted
	}

	scores := s.scorePool(pool)

	var lastA, lastB *model.RatingRecord
	for attempt := 0; attempt <= s.duplicateRetries; attempt++ {
		if ctx.Err() != nil && lastA != nil {
			// Deadline hit mid-selection: serve the best pair found so far
			// from the relaxed pool instead of failing the user.
			return s.finishPair(ctx, typ, lastA, lastB, true), nil
		}

		first := s.weightedPick(pool, scores, nil)
		second := s.pickSecond(typ, pool, scores, first)
		if second == nil {
			return Selection{}, ErrPoolExhausted
		}
		lastA, lastB = first, second

		if !s.recent.WasShownRecently(recent.PairKey(first.ID, second.ID)) {
			return s.finishPair(ctx, typ, first, second, false), nil
		}
		metrics.RecordDuplicateSuppressed()
	}

	// Every attempt was in cooldown: relax for this call only.
	s.log.Info(ctx, "duplicate cooldown relaxed after retry exhaustion",
		logger.String("type", string(typ)),
		logger.String("nftA", lastA.ID),
		logger.String("nftB", lastB.ID),
	)
	metrics.RecordDuplicateRelaxed()
	return s.finishPair(ctx, typ, lastA, lastB, true), nil
}

func (s *Selector) finishPair(ctx context.Context, typ model.MatchupType, a, b *model.RatingRecord, relaxed bool) Selection {
	s.recent.RecordShown(recent.PairKey(a.ID, b.ID))
	metrics.RecordMatchupServed(string(typ))
	return Selection{Type: typ, NFTIDs: []string{a.ID, b.ID}, Relaxed: relaxed}
}

// pickSecond chooses a competitive partner: same scored draw restricted to
// an Elo band around the first pick, widening progressively instead of
// failing when the band is empty. Cross-collection picks must come from a
// different collection than the first.
func (s *Selector) pickSecond(typ model.MatchupType, pool []model.RatingRecord, scores []float64, first *model.RatingRecord) *model.RatingRecord {
	band := s.eloBand
	for widen := 0; widen <= s.maxBandWidenings; widen++ {
		eligible := func(rec *model.RatingRecord) bool {
			if rec.ID == first.ID {
				return false
			}
			if typ == model.MatchupCrossCollection && rec.Collection == first.Collection {
				return false
			}
			if typ == model.MatchupSameCollection && rec.Collection != first.Collection {
				return false
			}
			diff := rec.EloMean - first.EloMean
			return diff >= -band && diff <= band
		}
		if pick := s.weightedPick(pool, scores, eligible); pick != nil {
			return pick
		}
		band *= s.bandWidenFactor
	}

	// Band widening exhausted: drop the proximity constraint entirely.
	eligible := func(rec *model.RatingRecord) bool {
		if rec.ID == first.ID {
			return false
		}
		if typ == model.MatchupCrossCollection && rec.Collection == first.Collection {
			return false
		}
		if typ == model.MatchupSameCollection && rec.Collection != first.Collection {
			return false
		}
		return true
	}
	return s.weightedPick(pool, scores, eligible)
}

// selectSingle draws one NFT for slider rating, preferring low slider
// counts.
func (s *Selector) selectSingle(ctx context.Context, pool []model.RatingRecord) (Selection, error) {
	if len(pool) == 0 {
		return Selection{}, ErrPoolExhausted
	}

	scores := make([]float64, len(pool))
	for i := range pool {
		rec := &pool[i]
		cold := 1.0 / (1.0 + float64(rec.SliderCount))
		uncertainty := normalizeSigma(rec.EloSigma)
		scores[i] = scoreEpsilon + s.weights.ColdStart*cold + s.weights.Uncertainty*uncertainty
	}

	// Prefer a pick outside the cooldown; fall back to the weighted draw.
	var pick *model.RatingRecord
	relaxed := false
	for attempt := 0; attempt <= s.duplicateRetries; attempt++ {
		pick = s.weightedPick(pool, scores, nil)
		if !s.recent.WasShownRecently(recent.SingleKey(pick.ID)) {
			break
		}
		metrics.RecordDuplicateSuppressed()
		if attempt == s.duplicateRetries {
			relaxed = true
			s.log.Info(ctx, "duplicate cooldown relaxed after retry exhaustion",
				logger.String("type", string(model.MatchupSliderSingle)),
				logger.String("nft", pick.ID),
			)
			metrics.RecordDuplicateRelaxed()
		}
	}

	s.recent.RecordShown(recent.SingleKey(pick.ID))
	metrics.RecordMatchupServed(string(model.MatchupSliderSingle))
	return Selection{Type: model.MatchupSliderSingle, NFTIDs: []string{pick.ID}, Relaxed: relaxed}, nil
}

// scorePool computes the blended exploration/exploitation score for every
// candidate.
func (s *Selector) scorePool(pool []model.RatingRecord) []float64 {
	median := medianElo(pool)
	spread := eloSpread(pool, median)
	shares := collectionShares(pool)

	scores := make([]float64, len(pool))
	for i := range pool {
		rec := &pool[i]

		uncertainty := normalizeSigma(rec.EloSigma)

		proximity := 1.0
		if spread > 0 {
			proximity = 1.0 - absFloat(rec.EloMean-median)/spread
			if proximity < 0 {
				proximity = 0
			}
		}

		cold := 0.0
		switch {
		case rec.TotalVotes == 0:
			cold = 1.0
		case rec.TotalVotes < s.coldVoteThreshold:
			cold = 1.0 - float64(rec.TotalVotes)/float64(s.coldVoteThreshold)
		default:
			cold = 1.0 / (1.0 + float64(rec.TotalVotes))
		}

		diversity := 1.0 - shares[rec.Collection]

		scores[i] = scoreEpsilon +
			s.weights.Uncertainty*uncertainty +
			s.weights.EloProximity*proximity +
			s.weights.ColdStart*cold +
			s.weights.Diversity*diversity
	}
	return scores
}

// weightedPick draws one candidate with probability proportional to its
// score, restricted to those passing eligible (nil means all). Returns nil
// when nothing is eligible.
func (s *Selector) weightedPick(pool []model.RatingRecord, scores []float64, eligible func(*model.RatingRecord) bool) *model.RatingRecord {
	total := 0.0
	for i := range pool {
		if eligible != nil && !eligible(&pool[i]) {
			continue
		}
		total += scores[i]
	}
	if total <= 0 {
		return nil
	}

	s.rngMu.Lock()
	r := s.rng.Float64() * total
	s.rngMu.Unlock()

	for i := range pool {
		if eligible != nil && !eligible(&pool[i]) {
			continue
		}
		r -= scores[i]
		if r <= 0 {
			return &pool[i]
		}
	}
	// Floating point slack: fall back to the last eligible candidate.
	for i := len(pool) - 1; i >= 0; i-- {
		if eligible == nil || eligible(&pool[i]) {
			return &pool[i]
		}
	}
	return nil
}

func normalizeSigma(sigma float64) float64 {
	n := (sigma - model.SigmaMin) / (model.SigmaMax - model.SigmaMin)
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

func medianElo(pool []model.RatingRecord) float64 {
	elos := make([]float64, len(pool))
	for i := range pool {
		elos[i] = pool[i].EloMean
	}
	sort.Float64s(elos)
	mid := len(elos) / 2
	if len(elos)%2 == 1 {
		return elos[mid]
	}
	return (elos[mid-1] + elos[mid]) / 2
}

func eloSpread(pool []model.RatingRecord, median float64) float64 {
	spread := 0.0
	for i := range pool {
		if d := absFloat(pool[i].EloMean - median); d > spread {
			spread = d
		}
	}
	return spread
}

func collectionShares(pool []model.RatingRecord) map[string]float64 {
	counts := make(map[string]int)
	for i := range pool {
		counts[pool[i].Collection]++
	}
	shares := make(map[string]float64, len(counts))
	for c, n := range counts {
		shares[c] = float64(n) / float64(len(pool))
	}
	return shares
}

func collectionCount(pool []model.RatingRecord) int {
	seen := make(map[string]struct{})
	for i := range pool {
		seen[pool[i].Collection] = struct{}{}
	}
	return len(seen)
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
