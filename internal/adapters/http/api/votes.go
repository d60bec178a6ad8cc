package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	service "github.com/tastemachine/poa-engine/internal/app"
	"github.com/tastemachine/poa-engine/internal/domain/model"
)

// voteRequest mirrors the wire schema for POST /votes.
type voteRequest struct {
	EventID  string `json:"event_id"`
	VoterID  string `json:"voter_id"`
	NFTAID   string `json:"nft_a_id"`
	NFTBID   string `json:"nft_b_id"`
	WinnerID string `json:"winner_id"`
	Weight   string `json:"weight,omitempty"`
	TS       string `json:"ts,omitempty"`
}

func (v voteRequest) validate() error {
	// event_id is optional; the service assigns one when absent, at the
	// cost of losing duplicate detection for that submission.
	switch {
	case strings.TrimSpace(v.NFTAID) == "":
		return errors.New("missing nft_a_id")
	case strings.TrimSpace(v.NFTBID) == "":
		return errors.New("missing nft_b_id")
	case strings.TrimSpace(v.WinnerID) == "":
		return errors.New("missing winner_id")
	}
	if v.TS != "" {
		if _, err := time.Parse(time.RFC3339, v.TS); err != nil {
			return errors.New("invalid ts; must be RFC3339")
		}
	}
	return nil
}

// voteResponse reports the Elo exchange the vote produced.
type voteResponse struct {
	Status    string  `json:"status"`
	EventID   string  `json:"event_id"`
	EloDeltaA float64 `json:"elo_delta_a"`
	EloDeltaB float64 `json:"elo_delta_b"`
}

func (s *Server) handlePostVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	var ts time.Time
	if req.TS != "" {
		ts, _ = time.Parse(time.RFC3339, req.TS)
	}

	res, err := s.gw.RecordVote(r.Context(), service.VoteRequest{
		EventID:  req.EventID,
		VoterID:  req.VoterID,
		NFTAID:   req.NFTAID,
		NFTBID:   req.NFTBID,
		WinnerID: req.WinnerID,
		Weight:   model.VoteWeight(req.Weight),
		TS:       ts,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, voteResponse{
			Status:    "accepted",
			EventID:   res.EventID,
			EloDeltaA: res.EloDeltaA,
			EloDeltaB: res.EloDeltaB,
		})
	case errors.Is(err, service.ErrDuplicateEvent):
		// The first submission's outcome stands; acknowledge idempotently.
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", EventID: res.EventID, Duplicate: true})
	default:
		writeServiceError(w, err)
	}
}
