// Package model contains domain models passed between layers.
package model

import "time"

// VoteWeight categorizes how heavily a head-to-head vote counts.
type VoteWeight string

// Recognized vote weights. Super votes scale the effective K-factor by a
// configurable multiplier.
const (
	WeightNormal VoteWeight = "normal"
	WeightSuper  VoteWeight = "super"
)

// Valid reports whether the weight is one of the recognized categories.
func (w VoteWeight) Valid() bool {
	return w == WeightNormal || w == WeightSuper
}

// VoteEvent is one recorded head-to-head comparison. Events are append-only
// and immutable once written; EloPreA/EloPreB snapshot the means at vote
// time so the outcome can be audited and replayed.
type VoteEvent struct {
	EventID  string // unique id for idempotency
	VoterID  string
	NFTAID   string
	NFTBID   string
	WinnerID string // must equal NFTAID or NFTBID
	EloPreA  float64
	EloPreB  float64
	Weight   VoteWeight
	TS       time.Time
}

// SliderEvent is one recorded 0-100 slider rating for a single NFT.
type SliderEvent struct {
	EventID  string
	VoterID  string
	NFTID    string
	RawScore float64 // 0..100
	TS       time.Time
}

// FireEvent is a "favorite" tap. It never touches Elo or slider state but
// feeds a ranking boost into score recomputation.
type FireEvent struct {
	EventID string
	VoterID string
	NFTID   string
	TS      time.Time
}

// DirtyReason says why an NFT was marked for recomputation.
type DirtyReason string

// Dirty marker reasons.
const (
	ReasonNewVote   DirtyReason = "new_vote"
	ReasonNewSlider DirtyReason = "new_slider"
	ReasonManual    DirtyReason = "manual"
	ReasonMigration DirtyReason = "migration"
)

// DirtyMarker queues one NFT for score recomputation. Markers for the same
// NFT collapse to a single entry; the collapse keeps the earliest
// EnqueuedAt and the highest Priority.
type DirtyMarker struct {
	NFTID      string
	Priority   int
	Reason     DirtyReason
	EnqueuedAt time.Time
}

// MatchupType selects what kind of draw the selector should produce.
type MatchupType string

// Recognized matchup types.
const (
	MatchupSameCollection  MatchupType = "same_collection"
	MatchupCrossCollection MatchupType = "cross_collection"
	MatchupSliderSingle    MatchupType = "slider"
)

// Valid reports whether the matchup type is recognized.
func (t MatchupType) Valid() bool {
	switch t {
	case MatchupSameCollection, MatchupCrossCollection, MatchupSliderSingle:
		return true
	}
	return false
}
