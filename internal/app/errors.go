package service

import "errors"

// Sentinel error kinds for this package; callers match with errors.Is.
var (
	// ErrInvalidRequest covers malformed submissions: self-votes, winners
	// outside the pair, out-of-range slider scores, unknown weights.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrDuplicateEvent means the event id was already processed. The
	// original outcome stands; no state changed.
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrUnknownNFT means the referenced NFT is not in the catalog.
	ErrUnknownNFT = errors.New("unknown nft")
)
