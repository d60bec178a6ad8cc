package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	service "github.com/tastemachine/poa-engine/internal/app"
)

// fireRequest mirrors the wire schema for POST /fires.
type fireRequest struct {
	EventID string `json:"event_id"`
	VoterID string `json:"voter_id"`
	NFTID   string `json:"nft_id"`
}

func (v fireRequest) validate() error {
	if strings.TrimSpace(v.NFTID) == "" {
		return errors.New("missing nft_id")
	}
	return nil
}

func (s *Server) handlePostFire(w http.ResponseWriter, r *http.Request) {
	var req fireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	eventID, err := s.gw.RecordFire(r.Context(), service.FireRequest{
		EventID: req.EventID,
		VoterID: req.VoterID,
		NFTID:   req.NFTID,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EventID: eventID})
	case errors.Is(err, service.ErrDuplicateEvent):
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", EventID: eventID, Duplicate: true})
	default:
		writeServiceError(w, err)
	}
}
