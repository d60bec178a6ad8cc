// Package types holds the read models shared between the service and the
// HTTP API, keeping wire shapes decoupled from storage records.
package types

import "time"

// Entry is one leaderboard row.
type Entry struct {
	Rank       int     `json:"rank"`
	NFTID      string  `json:"nft_id"`
	Collection string  `json:"collection,omitempty"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Estimated  bool    `json:"estimated,omitempty"`
}

// Score is the full rating view of one NFT.
type Score struct {
	NFTID      string  `json:"nft_id"`
	Collection string  `json:"collection,omitempty"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	// Estimated is true when no composite score has been published yet
	// and Score is derived from the Elo mean alone.
	Estimated bool `json:"estimated"`

	EloMean  float64 `json:"elo_mean"`
	EloSigma float64 `json:"elo_sigma"`

	TotalVotes int `json:"total_votes"`
	Wins       int `json:"wins"`
	Losses     int `json:"losses"`

	SliderMean  float64 `json:"slider_mean"`
	SliderCount int     `json:"slider_count"`
	FireCount   int     `json:"fire_count"`

	LastScoredAt *time.Time `json:"last_scored_at,omitempty"`
}

// Matchup is one selection served to a client.
type Matchup struct {
	Type    string   `json:"type"`
	NFTIDs  []string `json:"nft_ids"`
	Relaxed bool     `json:"relaxed,omitempty"`
}
