package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/tastemachine/poa-engine/internal/adapters/http/api"
	service "github.com/tastemachine/poa-engine/internal/app"
)

// newTestServer starts a full engine behind the API routes.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	svc := service.New()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() { svc.Stop(ctx) })

	mux := http.NewServeMux()
	api.NewServer(svc, 100).Register(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func register(t *testing.T, ts *httptest.Server, id, collection string) {
	t.Helper()
	status, _ := doJSON(t, ts, http.MethodPost, "/nfts",
		`{"nft_id":"`+id+`","collection":"`+collection+`"}`)
	if status != http.StatusCreated {
		t.Fatalf("register %s: unexpected status %d", id, status)
	}
}

func TestVoteEndpoint(t *testing.T) {
	Convey("Given a running API with two registered NFTs", t, func() {
		ts := newTestServer(t)
		register(t, ts, "ape-1", "apes")
		register(t, ts, "ape-2", "apes")

		vote := `{"event_id":"evt-1","nft_a_id":"ape-1","nft_b_id":"ape-2","winner_id":"ape-1"}`

		Convey("When posting a valid vote", func() {
			status, body := doJSON(t, ts, http.MethodPost, "/votes", vote)

			Convey("Then it is accepted with the Elo exchange", func() {
				So(status, ShouldEqual, http.StatusAccepted)
				So(body["status"], ShouldEqual, "accepted")
				So(body["event_id"], ShouldEqual, "evt-1")
				So(body["elo_delta_a"], ShouldEqual, 16)
				So(body["elo_delta_b"], ShouldEqual, -16)
			})

			Convey("And re-posting the same event id acknowledges the duplicate", func() {
				again, dup := doJSON(t, ts, http.MethodPost, "/votes", vote)
				So(again, ShouldEqual, http.StatusOK)
				So(dup["duplicate"], ShouldEqual, true)
			})
		})

		Convey("When the winner is outside the pair", func() {
			status, body := doJSON(t, ts, http.MethodPost, "/votes",
				`{"event_id":"evt-2","nft_a_id":"ape-1","nft_b_id":"ape-2","winner_id":"ape-9"}`)
			So(status, ShouldEqual, http.StatusBadRequest)
			So(body["code"], ShouldEqual, "bad_request")
		})

		Convey("When an NFT is unknown", func() {
			status, body := doJSON(t, ts, http.MethodPost, "/votes",
				`{"event_id":"evt-3","nft_a_id":"ape-1","nft_b_id":"ghost","winner_id":"ape-1"}`)
			So(status, ShouldEqual, http.StatusNotFound)
			So(body["code"], ShouldEqual, "not_found")
		})

		Convey("When the body is not JSON", func() {
			status, _ := doJSON(t, ts, http.MethodPost, "/votes", "not json")
			So(status, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestSliderAndFireEndpoints(t *testing.T) {
	Convey("Given a running API with a registered NFT", t, func() {
		ts := newTestServer(t)
		register(t, ts, "ape-1", "apes")

		Convey("When posting a slider rating", func() {
			status, _ := doJSON(t, ts, http.MethodPost, "/sliders",
				`{"event_id":"s1","nft_id":"ape-1","raw_score":80}`)
			So(status, ShouldEqual, http.StatusAccepted)

			Convey("Then the score view reflects it", func() {
				code, body := doJSON(t, ts, http.MethodGet, "/scores/ape-1", "")
				So(code, ShouldEqual, http.StatusOK)
				So(body["slider_count"], ShouldEqual, 1)
				So(body["slider_mean"], ShouldEqual, 80)
			})
		})

		Convey("When the slider score is out of range", func() {
			status, _ := doJSON(t, ts, http.MethodPost, "/sliders",
				`{"event_id":"s2","nft_id":"ape-1","raw_score":120}`)
			So(status, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When posting a fire tap", func() {
			status, _ := doJSON(t, ts, http.MethodPost, "/fires",
				`{"event_id":"f1","nft_id":"ape-1"}`)
			So(status, ShouldEqual, http.StatusAccepted)

			code, body := doJSON(t, ts, http.MethodGet, "/scores/ape-1", "")
			So(code, ShouldEqual, http.StatusOK)
			So(body["fire_count"], ShouldEqual, 1)
		})
	})
}

func TestMatchupEndpoint(t *testing.T) {
	Convey("Given a running API with NFTs in two collections", t, func() {
		ts := newTestServer(t)
		for _, id := range []string{"a1", "a2", "a3"} {
			register(t, ts, id, "apes")
		}
		for _, id := range []string{"p1", "p2", "p3"} {
			register(t, ts, id, "punks")
		}

		Convey("When requesting a cross-collection matchup", func() {
			status, body := doJSON(t, ts, http.MethodPost, "/matchup", `{"type":"cross_collection"}`)

			Convey("Then a two-NFT pair comes back", func() {
				So(status, ShouldEqual, http.StatusOK)
				So(body["type"], ShouldEqual, "cross_collection")
				ids, ok := body["nft_ids"].([]any)
				So(ok, ShouldBeTrue)
				So(ids, ShouldHaveLength, 2)
			})
		})

		Convey("When requesting an unknown type", func() {
			status, _ := doJSON(t, ts, http.MethodPost, "/matchup", `{"type":"bogus"}`)
			So(status, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the scoped pool is empty", func() {
			status, body := doJSON(t, ts, http.MethodPost, "/matchup", `{"collection_hint":"nothing"}`)
			So(status, ShouldEqual, http.StatusConflict)
			So(body["code"], ShouldEqual, "pool_exhausted")
		})
	})
}

func TestScoreAndLeaderboardEndpoints(t *testing.T) {
	Convey("Given a running API with voted NFTs", t, func() {
		ts := newTestServer(t)
		register(t, ts, "ape-1", "apes")
		register(t, ts, "ape-2", "apes")
		doJSON(t, ts, http.MethodPost, "/votes",
			`{"event_id":"evt-1","nft_a_id":"ape-1","nft_b_id":"ape-2","winner_id":"ape-1"}`)

		Convey("When reading a score before recompute", func() {
			status, body := doJSON(t, ts, http.MethodGet, "/scores/ape-1", "")

			Convey("Then the score is flagged as estimated", func() {
				So(status, ShouldEqual, http.StatusOK)
				So(body["estimated"], ShouldEqual, true)
				So(body["total_votes"], ShouldEqual, 1)
			})
		})

		Convey("When recomputing and reading again", func() {
			status, stats := doJSON(t, ts, http.MethodPost, "/recompute", `{"max_items":10}`)
			So(status, ShouldEqual, http.StatusOK)
			So(stats["published"], ShouldEqual, 2)

			code, body := doJSON(t, ts, http.MethodGet, "/scores/ape-1", "")
			So(code, ShouldEqual, http.StatusOK)
			So(body["estimated"], ShouldEqual, false)

			Convey("And the leaderboard ranks the winner first", func() {
				lbCode, _ := doJSON(t, ts, http.MethodGet, "/leaderboard?limit=2", "")
				So(lbCode, ShouldEqual, http.StatusOK)

				rankCode, entry := doJSON(t, ts, http.MethodGet, "/rank/ape-1", "")
				So(rankCode, ShouldEqual, http.StatusOK)
				So(entry["rank"], ShouldEqual, 1)
			})
		})

		Convey("When the leaderboard limit is invalid", func() {
			status, _ := doJSON(t, ts, http.MethodGet, "/leaderboard?limit=0", "")
			So(status, ShouldEqual, http.StatusBadRequest)

			status, body := doJSON(t, ts, http.MethodGet, "/leaderboard?limit=5000", "")
			So(status, ShouldEqual, http.StatusBadRequest)
			So(body["code"], ShouldEqual, "limit_exceeded")
		})

		Convey("When asking for an unknown NFT", func() {
			status, _ := doJSON(t, ts, http.MethodGet, "/scores/ghost", "")
			So(status, ShouldEqual, http.StatusNotFound)

			status, _ = doJSON(t, ts, http.MethodGet, "/rank/ghost", "")
			So(status, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestOpsEndpoints(t *testing.T) {
	Convey("Given a running API", t, func() {
		ts := newTestServer(t)
		register(t, ts, "ape-1", "apes")

		Convey("When marking an NFT dirty manually", func() {
			status, _ := doJSON(t, ts, http.MethodPost, "/recompute/mark",
				`{"nft_id":"ape-1","reason":"manual"}`)
			So(status, ShouldEqual, http.StatusAccepted)

			Convey("Then stats show the pending marker", func() {
				code, stats := doJSON(t, ts, http.MethodGet, "/stats", "")
				So(code, ShouldEqual, http.StatusOK)
				So(stats["dirty_set_depth"], ShouldEqual, 1)
				So(stats["tracked_nfts"], ShouldEqual, 1)
			})
		})

		Convey("When marking an unknown NFT", func() {
			status, _ := doJSON(t, ts, http.MethodPost, "/recompute/mark",
				`{"nft_id":"ghost"}`)
			So(status, ShouldEqual, http.StatusNotFound)
		})

		Convey("When probing health", func() {
			resp, err := ts.Client().Get(ts.URL + "/healthz")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})
	})
}
