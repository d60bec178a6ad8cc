package selector

import "errors"

var (
	// ErrPoolExhausted means the candidate pool cannot satisfy the request
	// (fewer than two candidates for a pair, none for a single draw, or a
	// cross-collection pair with only one collection available).
	ErrPoolExhausted = errors.New("candidate pool exhausted")

	// ErrUnknownType means the request named an unrecognized matchup type.
	ErrUnknownType = errors.New("unknown matchup type")
)
