package api

import (
	"encoding/json"
	"net/http"

	"github.com/tastemachine/poa-engine/internal/domain/model"
	"github.com/tastemachine/poa-engine/internal/domain/selector"
)

// matchupRequest mirrors the wire schema for POST /matchup. type defaults
// to same_collection.
type matchupRequest struct {
	Type           string   `json:"type"`
	CollectionHint string   `json:"collection_hint,omitempty"`
	ExcludeIDs     []string `json:"exclude_ids,omitempty"`
}

func (s *Server) handleSelectMatchup(w http.ResponseWriter, r *http.Request) {
	var req matchupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	matchupType := model.MatchupType(req.Type)
	if matchupType == "" {
		matchupType = model.MatchupSameCollection
	}

	out, err := s.gw.SelectMatchup(r.Context(), selector.Request{
		Type:           matchupType,
		CollectionHint: req.CollectionHint,
		ExcludeIDs:     req.ExcludeIDs,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
