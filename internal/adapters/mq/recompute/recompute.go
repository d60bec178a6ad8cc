// Package recompute turns dirty markers into published aesthetic scores.
//
// A background loop drains the dirty set on a fixed interval; Drain can
// also be called directly (admin endpoint, tests). Each marker is scored
// on a bounded worker pool. Markers are removed from the dirty set only
// after the new score is published; a failed publish requeues the marker
// so the NFT cannot silently stay stale.
package recompute

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/tastemachine/poa-engine/internal/adapters/mq/dirtyset"
	"github.com/tastemachine/poa-engine/internal/adapters/repository"
	"github.com/tastemachine/poa-engine/internal/domain/model"
	"github.com/tastemachine/poa-engine/internal/domain/rating"
	"github.com/tastemachine/poa-engine/pkg/logger"
	"github.com/tastemachine/poa-engine/pkg/metrics"
	"github.com/tastemachine/poa-engine/pkg/retry"
)

// ScoreStore is the slice of the rating store the engine needs.
type ScoreStore interface {
	Get(ctx context.Context, id string) (model.RatingRecord, error)
	PublishAestheticScore(ctx context.Context, id string, score, confidence float64, at time.Time) error
}

// ReplaySource provides the per-NFT event history used for full-replay
// recomputation of migration-marked NFTs.
type ReplaySource interface {
	VotesFor(ctx context.Context, nftID string) ([]model.VoteEvent, error)
	SlidersFor(ctx context.Context, nftID string) ([]model.SliderEvent, error)
	FiresFor(ctx context.Context, nftID string) ([]model.FireEvent, error)
}

// Stats summarizes one drain pass.
type Stats struct {
	Processed int `json:"processed"`
	Published int `json:"published"`
	Errors    int `json:"errors"`
}

// Default engine tuning.
const (
	defaultInterval    = 5 * time.Second
	defaultBatchSize   = 256
	defaultConcurrency = 8
)

// Engine drives score recomputation.
type Engine struct {
	set    dirtyset.Set
	store  ScoreStore
	replay ReplaySource
	params rating.Params

	interval    time.Duration
	batchSize   int
	concurrency int

	pool    pond.Pool
	policy  retry.Policy
	now     func() time.Time
	log     logger.Logger
	stop    chan struct{}
	stopped chan struct{}
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithInterval sets the background drain interval.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithBatchSize bounds how many markers one drain pass takes.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithConcurrency bounds how many NFTs are scored in parallel.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithReplaySource enables full-replay recomputation: markers with the
// migration reason rebuild the rating inputs from the event history
// instead of trusting the incrementally maintained fields.
func WithReplaySource(src ReplaySource) Option {
	return func(e *Engine) {
		e.replay = src
	}
}

// WithParams sets the scoring parameters.
func WithParams(p rating.Params) Option {
	return func(e *Engine) {
		e.params = p
	}
}

// WithRetryPolicy sets the publish retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// New constructs an Engine.
func New(set dirtyset.Set, store ScoreStore, opts ...Option) *Engine {
	e := &Engine{
		set:         set,
		store:       store,
		params:      rating.NewParams(),
		interval:    defaultInterval,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
		policy:      retry.NewPolicy(),
		now:         time.Now,
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Get().Named("recompute")
	}
	e.pool = pond.NewPool(e.concurrency, pond.WithQueueSize(e.batchSize))
	return e
}

// Start launches the background drain loop.
func (e *Engine) Start(ctx context.Context) {
	go e.loop(ctx)
	e.log.Info(ctx, "recompute engine started",
		logger.Duration("interval", e.interval),
		logger.Int("batch_size", e.batchSize),
		logger.Int("concurrency", e.concurrency),
	)
}

// Stop halts the loop and waits for in-flight work to finish.
func (e *Engine) Stop(ctx context.Context) {
	close(e.stop)
	select {
	case <-e.stopped:
	case <-ctx.Done():
	}
	e.pool.StopAndWait()
	e.log.Info(ctx, "recompute engine stopped")
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.stopped)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := e.Drain(ctx, e.batchSize)
			if stats.Errors > 0 {
				e.log.Warn(ctx, "drain pass finished with errors",
					logger.Int("processed", stats.Processed),
					logger.Int("errors", stats.Errors),
				)
			}
		}
	}
}

// Drain pops up to maxItems markers and recomputes their scores. It is
// safe to call concurrently with the background loop; the dirty set hands
// each marker to exactly one caller.
func (e *Engine) Drain(ctx context.Context, maxItems int) Stats {
	if maxItems <= 0 {
		maxItems = e.batchSize
	}
	start := e.now()
	markers := e.set.Pop(ctx, maxItems)
	if len(markers) == 0 {
		return Stats{}
	}

	var published, failed atomic.Int64
	group := e.pool.NewGroupContext(ctx)
	for _, m := range markers {
		marker := m
		err := group.Submit(func() {
			if e.processOne(ctx, marker) {
				published.Add(1)
			} else {
				failed.Add(1)
			}
		})
		if err != nil {
			// Pool rejected the task; put the marker back for the next pass.
			e.set.Requeue(ctx, marker)
			failed.Add(1)
		}
	}
	if err := group.Wait(); err != nil && !errors.Is(err, pond.ErrGroupStopped) {
		e.log.Warn(ctx, "drain group wait failed", logger.Error(err))
	}

	elapsed := e.now().Sub(start)
	metrics.RecordRecomputeBatchDuration(float64(elapsed.Milliseconds()))

	stats := Stats{
		Processed: len(markers),
		Published: int(published.Load()),
		Errors:    int(failed.Load()),
	}
	e.log.Debug(ctx, "drain pass complete",
		logger.Int("processed", stats.Processed),
		logger.Int("published", stats.Published),
		logger.Int("errors", stats.Errors),
		logger.Duration("elapsed", elapsed),
	)
	return stats
}

// processOne recomputes and publishes one NFT's score. Returns true when
// the score was published.
func (e *Engine) processOne(ctx context.Context, m model.DirtyMarker) bool {
	rec, err := e.recordFor(ctx, m)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// The NFT left the catalog; dropping the marker is correct.
			e.log.Warn(ctx, "dropping marker for unknown nft",
				logger.String("nft_id", m.NFTID),
				logger.String("reason", string(m.Reason)),
			)
			return false
		}
		e.requeue(ctx, m, err)
		return false
	}

	score, confidence := e.params.Composite(&rec)

	err = e.policy.Do(ctx, func(ctx context.Context) error {
		return e.store.PublishAestheticScore(ctx, m.NFTID, score, confidence, e.now())
	})
	if err != nil {
		e.requeue(ctx, m, err)
		return false
	}

	metrics.RecordRecomputePublished()
	return true
}

// recordFor resolves the rating inputs for a marker. Migration markers
// take the full-replay path when an event source is wired.
func (e *Engine) recordFor(ctx context.Context, m model.DirtyMarker) (model.RatingRecord, error) {
	if m.Reason == model.ReasonMigration && e.replay != nil {
		return e.replayRecord(ctx, m.NFTID)
	}
	return e.store.Get(ctx, m.NFTID)
}

// replayRecord rebuilds an NFT's derived rating state from its event
// history. Vote deltas are recomputed from the logged pre-vote Elo
// snapshots, so the result matches what the incremental path produced.
func (e *Engine) replayRecord(ctx context.Context, id string) (model.RatingRecord, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return rec, err
	}

	votes, err := e.replay.VotesFor(ctx, id)
	if err != nil {
		return rec, err
	}
	sliders, err := e.replay.SlidersFor(ctx, id)
	if err != nil {
		return rec, err
	}
	fires, err := e.replay.FiresFor(ctx, id)
	if err != nil {
		return rec, err
	}

	rec.EloMean = model.EloStart
	rec.EloSigma = model.SigmaStart
	rec.Wins, rec.Losses, rec.TotalVotes = 0, 0, 0
	for _, v := range votes {
		selfPre, otherPre := v.EloPreA, v.EloPreB
		if v.NFTBID == id {
			selfPre, otherPre = v.EloPreB, v.EloPreA
		}
		if v.WinnerID == id {
			rec.EloMean += e.params.EloDelta(selfPre, otherPre, v.Weight)
			rec.Wins++
		} else {
			rec.EloMean -= e.params.EloDelta(otherPre, selfPre, v.Weight)
			rec.Losses++
		}
		rec.TotalVotes++
		rec.EloSigma = e.params.ShrinkSigma(rec.EloSigma)
	}

	rec.SliderMean, rec.SliderM2, rec.SliderCount = 0, 0, 0
	for _, sv := range sliders {
		rec.SliderMean, rec.SliderM2, rec.SliderCount = rating.WelfordStep(
			rec.SliderMean, rec.SliderM2, rec.SliderCount, sv.RawScore)
	}

	rec.FireCount = len(fires)
	return rec, nil
}

func (e *Engine) requeue(ctx context.Context, m model.DirtyMarker, cause error) {
	metrics.RecordRecomputeError()
	metrics.RecordRecomputeRequeue()
	e.set.Requeue(ctx, m)
	e.log.Warn(ctx, "recompute failed, marker requeued",
		logger.String("nft_id", m.NFTID),
		logger.Error(cause),
	)
}
