// Package repository defines the rating store and event log contracts plus
// their in-memory reference implementations. Durable backends plug in
// behind the same interfaces.
package repository

import (
	"context"
	"time"

	"github.com/tastemachine/poa-engine/internal/domain/model"
)

// Entry is one leaderboard row. Score is the published aesthetic score, or
// an Elo-derived estimate when no score has been published yet.
type Entry struct {
	Rank       int
	NFTID      string
	Collection string
	Score      float64
	Confidence float64
	Estimated  bool // true when Score is the Elo-derived fallback
}

// Filter scopes a candidate-pool query.
type Filter struct {
	// Collection restricts candidates to one collection when non-empty.
	Collection string
	// NotCollection excludes one collection (cross-collection second pick).
	NotCollection string
	// MinVotes/MaxVotes bound total head-to-head votes. MaxVotes < 0 means
	// unbounded.
	MinVotes int
	MaxVotes int
	// Exclude drops specific ids (e.g. already seen this session).
	Exclude map[string]struct{}
	// Limit caps the pool size; <= 0 falls back to the store default.
	Limit int
}

// Store provides read/write access to per-NFT rating state.
//
// Mutations are serialized per NFT id: two concurrent votes touching the
// same NFT never race on its mean/sigma update. Readers always observe a
// fully applied record, never a partial update.
type Store interface {
	// Register makes an NFT known to the store at the standard priors.
	// Registering an existing id is a no-op.
	Register(ctx context.Context, id, collection string) error

	// Get returns the rating record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (model.RatingRecord, error)

	// Candidates returns rating records matching the filter, ordered by
	// ranking score descending.
	Candidates(ctx context.Context, f Filter) ([]model.RatingRecord, error)

	// Update atomically mutates a single record under its per-id lock.
	// The closure receives a copy; returning an error discards the change.
	Update(ctx context.Context, id string, fn func(rec *model.RatingRecord) error) (model.RatingRecord, error)

	// UpdatePair atomically mutates two records under both per-id locks,
	// acquired in a deadlock-safe order. Returning an error discards both
	// changes.
	UpdatePair(ctx context.Context, aID, bID string, fn func(a, b *model.RatingRecord) error) (model.RatingRecord, model.RatingRecord, error)

	// PublishAestheticScore stores a freshly computed composite score.
	PublishAestheticScore(ctx context.Context, id string, score, confidence float64, at time.Time) error

	// Leaderboard returns the top-N entries by ranking score desc.
	Leaderboard(ctx context.Context, n int) ([]Entry, error)

	// Rank returns the leaderboard entry for one NFT, or ErrNotFound.
	Rank(ctx context.Context, id string) (Entry, error)

	// Count returns the number of NFTs tracked.
	Count(ctx context.Context) int
}

// EventLog is the append-only record of user actions. Events are immutable
// once written; rating state is derivable by replaying them.
type EventLog interface {
	AppendVote(ctx context.Context, e model.VoteEvent) error
	AppendSlider(ctx context.Context, e model.SliderEvent) error
	AppendFire(ctx context.Context, e model.FireEvent) error

	// Replay accessors, used by full-replay recomputation and audits.
	VotesFor(ctx context.Context, nftID string) ([]model.VoteEvent, error)
	SlidersFor(ctx context.Context, nftID string) ([]model.SliderEvent, error)
	FiresFor(ctx context.Context, nftID string) ([]model.FireEvent, error)

	// Len returns the total number of events appended.
	Len(ctx context.Context) int
}
