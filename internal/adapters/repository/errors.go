package repository

import "errors"

// Sentinel kinds for store and event log errors.
var (
	ErrNotFound       = errors.New("nft not found")
	ErrInvalidLimit   = errors.New("invalid leaderboard limit")
	ErrDuplicateEvent = errors.New("event id already appended")
)
