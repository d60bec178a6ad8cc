// Package rating holds the pure math behind the engine: logistic Elo
// updates, streaming slider statistics, and the composite aesthetic score.
//
// Everything here is deterministic and side-effect free; the store applies
// the results under its own locking.
package rating

import (
	"math"

	"github.com/tastemachine/poa-engine/internal/domain/model"
)

// Default tuning values. All of them are exposed through configuration;
// these are only the fallbacks.
const (
	defaultKFactor         = 32.0
	defaultSuperMultiplier = 2.0
	defaultSigmaShrink     = 0.97 // multiplicative shrink applied per vote
	defaultSigmaFloor      = 150.0
	defaultConfidenceCap   = 0.95
	defaultMinEvidence     = 5
	defaultFireBoostUnit   = 0.5 // score bonus per fire tap
	defaultFireBoostCap    = 5.0

	// eloComponent maps the Elo band [800,1400] onto [0,100].
	eloBandLow  = 800.0
	eloBandSpan = 600.0

	neutralSlider = 50.0
	scoreMax      = 100.0
)

// Params bundles the tunable constants for rating updates.
type Params struct {
	KFactor         float64
	SuperMultiplier float64
	SigmaShrink     float64
	SigmaFloor      float64
	ConfidenceCap   float64
	MinEvidence     int
	FireBoostUnit   float64
	FireBoostCap    float64
}

// Option applies a configuration option to Params.
type Option func(*Params)

// WithKFactor sets the base Elo K-factor.
func WithKFactor(k float64) Option {
	return func(p *Params) {
		if k > 0 {
			p.KFactor = k
		}
	}
}

// WithSuperMultiplier sets the K-factor multiplier applied to super votes.
func WithSuperMultiplier(m float64) Option {
	return func(p *Params) {
		if m >= 1 {
			p.SuperMultiplier = m
		}
	}
}

// WithSigmaShrink sets the per-vote multiplicative sigma shrink.
func WithSigmaShrink(s float64) Option {
	return func(p *Params) {
		if s > 0 && s < 1 {
			p.SigmaShrink = s
		}
	}
}

// WithSigmaFloor sets the floor sigma converges toward.
func WithSigmaFloor(f float64) Option {
	return func(p *Params) {
		if f >= model.SigmaMin {
			p.SigmaFloor = f
		}
	}
}

// WithConfidenceCap caps published confidence below 1.0.
func WithConfidenceCap(c float64) Option {
	return func(p *Params) {
		if c > 0 && c < 1 {
			p.ConfidenceCap = c
		}
	}
}

// WithMinEvidence sets the sample count required before confidence may
// reach the cap.
func WithMinEvidence(n int) Option {
	return func(p *Params) {
		if n > 0 {
			p.MinEvidence = n
		}
	}
}

// WithFireBoost sets the per-tap score bonus and its cap.
func WithFireBoost(unit, cap float64) Option {
	return func(p *Params) {
		if unit >= 0 {
			p.FireBoostUnit = unit
		}
		if cap >= 0 {
			p.FireBoostCap = cap
		}
	}
}

// NewParams builds Params from defaults plus options.
func NewParams(opts ...Option) Params {
	p := Params{
		KFactor:         defaultKFactor,
		SuperMultiplier: defaultSuperMultiplier,
		SigmaShrink:     defaultSigmaShrink,
		SigmaFloor:      defaultSigmaFloor,
		ConfidenceCap:   defaultConfidenceCap,
		MinEvidence:     defaultMinEvidence,
		FireBoostUnit:   defaultFireBoostUnit,
		FireBoostCap:    defaultFireBoostCap,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Expected returns the logistic expected score of a against b.
func Expected(eloA, eloB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (eloB-eloA)/400.0))
}

// EloDelta computes the zero-sum rating transfer for a single vote where a
// beat b. The winner gains delta and the loser loses the same amount; the
// magnitude is inversely related to how expected the outcome was.
func (p Params) EloDelta(winnerElo, loserElo float64, weight model.VoteWeight) float64 {
	k := p.KFactor
	if weight == model.WeightSuper {
		k *= p.SuperMultiplier
	}
	return k * (1.0 - Expected(winnerElo, loserElo))
}

// ShrinkSigma narrows an uncertainty estimate after one more vote. Sigma
// converges toward the floor and never increases.
func (p Params) ShrinkSigma(sigma float64) float64 {
	next := p.SigmaFloor + (sigma-p.SigmaFloor)*p.SigmaShrink
	if next > sigma {
		next = sigma
	}
	return Clamp(next, model.SigmaMin, model.SigmaMax)
}

// WelfordStep advances a running mean/M2 pair with one new sample.
// The M2 accumulator is monotonically non-decreasing.
func WelfordStep(mean, m2 float64, count int, sample float64) (newMean, newM2 float64, newCount int) {
	newCount = count + 1
	delta := sample - mean
	newMean = mean + delta/float64(newCount)
	newM2 = m2 + delta*(sample-newMean)
	if newM2 < 0 {
		newM2 = 0
	}
	return newMean, newM2, newCount
}

// EloComponent rescales an Elo mean onto the 0-100 score axis, clamped
// outside the [800,1400] band.
func EloComponent(eloMean float64) float64 {
	return Clamp((eloMean-eloBandLow)/eloBandSpan*scoreMax, 0, scoreMax)
}

// Composite blends the Elo-derived and slider-derived signals into the
// aesthetic score. The side with more samples carries more weight; an even
// split applies when both are sparse. Fire taps add a small capped bonus.
func (p Params) Composite(rec *model.RatingRecord) (score, confidence float64) {
	eloPart := EloComponent(rec.EloMean)

	sliderPart := neutralSlider
	if rec.SliderCount >= 1 {
		sliderPart = rec.SliderMean
	}

	votes := float64(rec.TotalVotes)
	sliders := float64(rec.SliderCount)
	eloWeight, sliderWeight := 0.5, 0.5
	if votes+sliders > 0 {
		eloWeight = votes / (votes + sliders)
		sliderWeight = 1.0 - eloWeight
	}

	score = eloWeight*eloPart + sliderWeight*sliderPart

	boost := p.FireBoostUnit * float64(rec.FireCount)
	if boost > p.FireBoostCap {
		boost = p.FireBoostCap
	}
	score = Clamp(score+boost, 0, scoreMax)

	confidence = p.Confidence(rec.TotalVotes, rec.SliderCount)
	return score, confidence
}

// Confidence is an increasing, saturating function of the evidence counts.
// It stays strictly below the cap until MinEvidence samples exist.
func (p Params) Confidence(votes, sliders int) float64 {
	evidence := float64(votes + sliders)
	c := 1.0 - 1.0/(1.0+evidence)
	if votes+sliders < p.MinEvidence {
		// Sparse evidence: discount further so consumers can tell.
		c *= evidence / float64(p.MinEvidence)
	}
	if c > p.ConfidenceCap {
		c = p.ConfidenceCap
	}
	if c < 0 {
		c = 0
	}
	return c
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
