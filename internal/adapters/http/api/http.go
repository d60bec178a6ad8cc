// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tastemachine/poa-engine/internal/adapters/mq/recompute"
	service "github.com/tastemachine/poa-engine/internal/app"
	"github.com/tastemachine/poa-engine/internal/domain/model"
	"github.com/tastemachine/poa-engine/internal/domain/selector"
	"github.com/tastemachine/poa-engine/internal/domain/types"
)

// Gateway is the service surface the handlers depend on. Keeping it an
// interface bundle keeps the handler layer loosely coupled to the engine.
type Gateway interface {
	RecordVote(ctx context.Context, req service.VoteRequest) (service.VoteResult, error)
	RecordSlider(ctx context.Context, req service.SliderRequest) (string, error)
	RecordFire(ctx context.Context, req service.FireRequest) (string, error)

	SelectMatchup(ctx context.Context, req selector.Request) (types.Matchup, error)

	GetScore(ctx context.Context, id string) (types.Score, error)
	Leaderboard(ctx context.Context, n int) ([]types.Entry, error)
	Rank(ctx context.Context, id string) (types.Entry, error)

	Register(ctx context.Context, id, collection string) error
	MarkDirty(ctx context.Context, id string, reason model.DirtyReason) error
	RecomputeBatch(ctx context.Context, maxItems int) recompute.Stats
	GetStats(ctx context.Context) map[string]any
}

// Server wires the HTTP routes for the engine API.
type Server struct {
	gw       Gateway
	maxLimit int
}

// NewServer creates an API server over the gateway. maxLimit caps
// leaderboard query sizes.
func NewServer(gw Gateway, maxLimit int) *Server {
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &Server{gw: gw, maxLimit: maxLimit}
}

// Register attaches all routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.handleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.handleStats, "stats"))

	mux.HandleFunc("POST /matchup", MetricsMiddleware(s.handleSelectMatchup, "matchup"))
	mux.HandleFunc("POST /votes", MetricsMiddleware(s.handlePostVote, "votes"))
	mux.HandleFunc("POST /sliders", MetricsMiddleware(s.handlePostSlider, "sliders"))
	mux.HandleFunc("POST /fires", MetricsMiddleware(s.handlePostFire, "fires"))

	mux.HandleFunc("GET /scores/{id}", MetricsMiddleware(s.handleGetScore, "scores"))
	mux.HandleFunc("GET /leaderboard", MetricsMiddleware(s.handleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /rank/{id}", MetricsMiddleware(s.handleGetRank, "rank"))

	mux.HandleFunc("POST /nfts", MetricsMiddleware(s.handlePostNFT, "nfts"))
	mux.HandleFunc("POST /recompute", MetricsMiddleware(s.handlePostRecompute, "recompute"))
	mux.HandleFunc("POST /recompute/mark", MetricsMiddleware(s.handlePostMark, "recompute_mark"))
}

type ackResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates a service error into its HTTP shape.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}
