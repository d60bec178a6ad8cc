package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	service "github.com/tastemachine/poa-engine/internal/app"
)

// sliderRequest mirrors the wire schema for POST /sliders.
type sliderRequest struct {
	EventID  string  `json:"event_id"`
	VoterID  string  `json:"voter_id"`
	NFTID    string  `json:"nft_id"`
	RawScore float64 `json:"raw_score"`
	TS       string  `json:"ts,omitempty"`
}

func (v sliderRequest) validate() error {
	if strings.TrimSpace(v.NFTID) == "" {
		return errors.New("missing nft_id")
	}
	if v.TS != "" {
		if _, err := time.Parse(time.RFC3339, v.TS); err != nil {
			return errors.New("invalid ts; must be RFC3339")
		}
	}
	return nil
}

func (s *Server) handlePostSlider(w http.ResponseWriter, r *http.Request) {
	var req sliderRequest
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

	eventID, err := s.gw.RecordSlider(r.Context(), service.SliderRequest{
		EventID:  req.EventID,
		VoterID:  req.VoterID,
		NFTID:    req.NFTID,
		RawScore: req.RawScore,
		TS:       ts,
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
