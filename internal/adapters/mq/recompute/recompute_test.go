package recompute_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/tastemachine/poa-engine/internal/adapters/mq/dirtyset"
	"github.com/tastemachine/poa-engine/internal/adapters/mq/recompute"
	"github.com/tastemachine/poa-engine/internal/adapters/repository"
	"github.com/tastemachine/poa-engine/internal/domain/model"
	"github.com/tastemachine/poa-engine/internal/domain/rating"
	"github.com/tastemachine/poa-engine/pkg/retry"
)

type published struct {
	score      float64
	confidence float64
	at         time.Time
}

// fakeStore serves records from a map and can be told to fail publishes.
type fakeStore struct {
	mu        sync.Mutex
	records   map[string]model.RatingRecord
	published map[string]published
	failPub   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:   make(map[string]model.RatingRecord),
		published: make(map[string]published),
	}
}

func (s *fakeStore) Get(_ context.Context, id string) (model.RatingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return model.RatingRecord{}, repository.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) PublishAestheticScore(_ context.Context, id string, score, confidence float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPub != nil {
		return s.failPub
	}
	s.published[id] = published{score: score, confidence: confidence, at: at}
	return nil
}

func (s *fakeStore) publishedFor(id string) (published, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.published[id]
	return p, ok
}

func TestEngineDrain(t *testing.T) {
	Convey("Given a dirty NFT with vote history", t, func() {
		ctx := context.Background()
		store := newFakeStore()

		rec := model.NewRatingRecord("nft-1", "apes")
		rec.EloMean = 1400
		rec.TotalVotes = 10
		rec.Wins = 7
		rec.Losses = 3
		store.records["nft-1"] = rec

		set := dirtyset.NewInMemorySet()
		set.Mark(ctx, "nft-1", 0, model.ReasonNewVote)

		engine := recompute.New(set, store, recompute.WithConcurrency(2))

		Convey("When draining", func() {
			stats := engine.Drain(ctx, 10)

			Convey("Then the composite score is published and the marker cleared", func() {
				So(stats.Processed, ShouldEqual, 1)
				So(stats.Published, ShouldEqual, 1)
				So(stats.Errors, ShouldEqual, 0)
				So(set.Len(), ShouldEqual, 0)

				wantScore, wantConf := rating.NewParams().Composite(&rec)
				got, ok := store.publishedFor("nft-1")
				So(ok, ShouldBeTrue)
				So(got.score, ShouldAlmostEqual, wantScore, 1e-9)
				So(got.confidence, ShouldAlmostEqual, wantConf, 1e-9)
			})
		})
	})
}

// fakeReplay serves a fixed event history per NFT.
type fakeReplay struct {
	votes   map[string][]model.VoteEvent
	sliders map[string][]model.SliderEvent
	fires   map[string][]model.FireEvent
}

func (r *fakeReplay) VotesFor(_ context.Context, id string) ([]model.VoteEvent, error) {
	return r.votes[id], nil
}

func (r *fakeReplay) SlidersFor(_ context.Context, id string) ([]model.SliderEvent, error) {
	return r.sliders[id], nil
}

func (r *fakeReplay) FiresFor(_ context.Context, id string) ([]model.FireEvent, error) {
	return r.fires[id], nil
}

func TestEngineFullReplay(t *testing.T) {
	Convey("Given a store record that drifted from its event history", t, func() {
		ctx := context.Background()
		store := newFakeStore()

		drifted := model.NewRatingRecord("nft-1", "apes")
		drifted.EloMean = 999 // does not match the log
		store.records["nft-1"] = drifted

		replay := &fakeReplay{
			votes: map[string][]model.VoteEvent{
				"nft-1": {{
					EventID: "evt-1", NFTAID: "nft-1", NFTBID: "nft-2",
					WinnerID: "nft-1", EloPreA: 1200, EloPreB: 1200,
					Weight: model.WeightNormal,
				}},
			},
			sliders: map[string][]model.SliderEvent{
				"nft-1": {{EventID: "s1", NFTID: "nft-1", RawScore: 80}},
			},
			fires: map[string][]model.FireEvent{
				"nft-1": {{EventID: "f1", NFTID: "nft-1"}, {EventID: "f2", NFTID: "nft-1"}},
			},
		}

		set := dirtyset.NewInMemorySet()
		engine := recompute.New(set, store, recompute.WithReplaySource(replay))
		p := rating.NewParams()

		Convey("When draining a migration marker", func() {
			set.Mark(ctx, "nft-1", 0, model.ReasonMigration)
			stats := engine.Drain(ctx, 10)

			Convey("Then the published score comes from the replayed history", func() {
				So(stats.Published, ShouldEqual, 1)

				want := model.NewRatingRecord("nft-1", "apes")
				want.EloMean = model.EloStart + p.EloDelta(1200, 1200, model.WeightNormal)
				want.EloSigma = p.ShrinkSigma(model.SigmaStart)
				want.Wins, want.TotalVotes = 1, 1
				want.SliderMean, want.SliderM2, want.SliderCount = rating.WelfordStep(0, 0, 0, 80)
				want.FireCount = 2
				wantScore, wantConf := p.Composite(&want)

				got, ok := store.publishedFor("nft-1")
				So(ok, ShouldBeTrue)
				So(got.score, ShouldAlmostEqual, wantScore, 1e-9)
				So(got.confidence, ShouldAlmostEqual, wantConf, 1e-9)
			})
		})

		Convey("When draining an ordinary marker", func() {
			set.Mark(ctx, "nft-1", 0, model.ReasonNewVote)
			stats := engine.Drain(ctx, 10)

			Convey("Then the incrementally maintained record is trusted", func() {
				So(stats.Published, ShouldEqual, 1)

				wantScore, wantConf := p.Composite(&drifted)
				got, _ := store.publishedFor("nft-1")
				So(got.score, ShouldAlmostEqual, wantScore, 1e-9)
				So(got.confidence, ShouldAlmostEqual, wantConf, 1e-9)
			})
		})
	})
}

func TestEngineDrainUnknownNFT(t *testing.T) {
	Convey("Given a marker for an NFT the store no longer knows", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		set := dirtyset.NewInMemorySet()
		set.Mark(ctx, "ghost", 0, model.ReasonManual)

		engine := recompute.New(set, store)

		Convey("When draining", func() {
			stats := engine.Drain(ctx, 10)

			Convey("Then the marker is dropped, not requeued", func() {
				So(stats.Processed, ShouldEqual, 1)
				So(stats.Published, ShouldEqual, 0)
				So(set.Len(), ShouldEqual, 0)
			})
		})
	})
}

func TestEngineDrainPublishFailure(t *testing.T) {
	Convey("Given a store whose publishes fail", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		store.records["nft-1"] = model.NewRatingRecord("nft-1", "apes")
		store.failPub = errors.New("backend down")

		set := dirtyset.NewInMemorySet()
		set.Mark(ctx, "nft-1", 0, model.ReasonNewVote)

		engine := recompute.New(set, store,
			recompute.WithRetryPolicy(retry.NewPolicy(
				retry.WithMaxAttempts(2),
				retry.WithInterval(time.Millisecond, 2*time.Millisecond),
			)),
		)

		Convey("When draining", func() {
			stats := engine.Drain(ctx, 10)

			Convey("Then the marker is requeued so the NFT cannot stay stale", func() {
				So(stats.Processed, ShouldEqual, 1)
				So(stats.Published, ShouldEqual, 0)
				So(stats.Errors, ShouldEqual, 1)
				So(set.Len(), ShouldEqual, 1)
			})

			Convey("And a later drain succeeds once the store recovers", func() {
				store.mu.Lock()
				store.failPub = nil
				store.mu.Unlock()

				again := engine.Drain(ctx, 10)
				So(again.Published, ShouldEqual, 1)
				So(set.Len(), ShouldEqual, 0)
			})
		})
	})
}

func TestEngineDrainBatchBound(t *testing.T) {
	Convey("Given more dirty NFTs than one batch allows", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		set := dirtyset.NewInMemorySet()
		for _, id := range []string{"a", "b", "c", "d", "e"} {
			store.records[id] = model.NewRatingRecord(id, "apes")
			set.Mark(ctx, id, 0, model.ReasonNewSlider)
		}

		engine := recompute.New(set, store)

		Convey("When draining with a smaller cap", func() {
			stats := engine.Drain(ctx, 3)

			Convey("Then only the cap is taken and the rest stay queued", func() {
				So(stats.Processed, ShouldEqual, 3)
				So(stats.Published, ShouldEqual, 3)
				So(set.Len(), ShouldEqual, 2)
			})
		})
	})
}

func TestEngineStartStop(t *testing.T) {
	Convey("Given a running engine with a short interval", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		store.records["nft-1"] = model.NewRatingRecord("nft-1", "apes")

		set := dirtyset.NewInMemorySet()
		set.Mark(ctx, "nft-1", 0, model.ReasonNewVote)

		engine := recompute.New(set, store, recompute.WithInterval(5*time.Millisecond))
		engine.Start(ctx)

		Convey("When waiting past a few ticks and stopping", func() {
			deadline := time.Now().Add(time.Second)
			for set.Len() > 0 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			engine.Stop(ctx)

			Convey("Then the background loop published the score", func() {
				_, ok := store.publishedFor("nft-1")
				So(ok, ShouldBeTrue)
				So(set.Len(), ShouldEqual, 0)
			})
		})
	})
}
