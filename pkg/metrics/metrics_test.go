package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestManagerRegistersOnCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewManager(WithNamespace("test"), WithSubsystem("unit"), WithPrometheusRegistry(reg))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("no metric families registered")
	}
	for _, fam := range families {
		if !strings.HasPrefix(fam.GetName(), "test_unit_") {
			t.Fatalf("metric %q missing namespace/subsystem prefix", fam.GetName())
		}
	}
}

func TestGlobalHelpers(t *testing.T) {
	RecordVoteProcessed("normal")
	RecordVoteProcessed("normal")
	RecordVoteProcessed("super")
	RecordMatchupServed("same_collection")
	RecordDuplicateSuppressed()
	UpdateDirtySetDepth(7)
	UpdateTrackedNFTs(42)
	RecordStoreUpdateLatency(1.5)
	RecordHTTPRequest("/matchup", "GET", "200")

	if got := testutil.ToFloat64(globalManager.votesProcessed.WithLabelValues("normal")); got < 2 {
		t.Fatalf("expected at least 2 normal votes, got %v", got)
	}
	if got := testutil.ToFloat64(globalManager.dirtySetDepth); got != 7 {
		t.Fatalf("expected dirty set depth 7, got %v", got)
	}
	if got := testutil.ToFloat64(globalManager.trackedNFTs); got != 42 {
		t.Fatalf("expected 42 tracked nfts, got %v", got)
	}
}
