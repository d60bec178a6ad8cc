package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tastemachine/poa-engine/internal/domain/model"
)

type recomputeRequest struct {
	MaxItems int `json:"max_items,omitempty"`
}

// handlePostRecompute serves POST /recompute: a synchronous drain of the
// dirty set, for admin use and migrations. An empty body drains one
// default-sized batch.
func (s *Server) handlePostRecompute(w http.ResponseWriter, r *http.Request) {
	var req recomputeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
	}
	stats := s.gw.RecomputeBatch(r.Context(), req.MaxItems)
	writeJSON(w, http.StatusOK, stats)
}

type markRequest struct {
	NFTID  string `json:"nft_id"`
	Reason string `json:"reason,omitempty"`
}

// handlePostMark serves POST /recompute/mark: manually queue one NFT.
func (s *Server) handlePostMark(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.NFTID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing nft_id"))
		return
	}
	if err := s.gw.MarkDirty(r.Context(), req.NFTID, model.DirtyReason(req.Reason)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
