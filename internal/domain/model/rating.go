package model

import "time"

// Rating bounds enforced by the store on every write.
const (
	EloMin   = 0.0
	EloMax   = 3000.0
	SigmaMin = 10.0
	SigmaMax = 1000.0

	EloStart   = 1200.0
	SigmaStart = 400.0

	SliderStart = 50.0
)

// RatingRecord is the durable per-NFT rating state. The id and collection
// tag are owned by the external catalog and referenced read-only here.
type RatingRecord struct {
	ID         string
	Collection string

	EloMean  float64 // clamped to [EloMin, EloMax]
	EloSigma float64 // clamped to [SigmaMin, SigmaMax], non-increasing with votes

	TotalVotes int // head-to-head votes; Wins + Losses == TotalVotes
	Wins       int
	Losses     int

	SliderMean  float64
	SliderM2    float64 // Welford accumulator, never negative
	SliderCount int

	FireCount int

	// Composite score; nil until the recompute engine publishes one.
	AestheticScore      *float64 // 0..100
	AestheticConfidence *float64 // 0..1
	LastScoredAt        *time.Time
}

// NewRatingRecord returns a fresh record at the standard priors.
func NewRatingRecord(id, collection string) RatingRecord {
	return RatingRecord{
		ID:         id,
		Collection: collection,
		EloMean:    EloStart,
		EloSigma:   SigmaStart,
		SliderMean: SliderStart,
	}
}

// SliderVariance derives the running sample variance from the Welford
// accumulator. Zero until at least two samples exist.
func (r *RatingRecord) SliderVariance() float64 {
	if r.SliderCount < 2 || r.SliderM2 <= 0 {
		return 0
	}
	return r.SliderM2 / float64(r.SliderCount-1)
}

// Scored reports whether a composite score has ever been published.
func (r *RatingRecord) Scored() bool {
	return r.AestheticScore != nil && r.AestheticConfidence != nil
}
