package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type registerRequest struct {
	NFTID      string `json:"nft_id"`
	Collection string `json:"collection"`
}

// handlePostNFT serves POST /nfts: register an NFT at the standard priors.
// Re-registering an id is a no-op.
func (s *Server) handlePostNFT(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.NFTID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing nft_id"))
		return
	}
	if err := s.gw.Register(r.Context(), req.NFTID, req.Collection); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ackResponse{Status: "registered"})
}
