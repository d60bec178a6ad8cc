package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tastemachine/poa-engine/internal/adapters/http/api"
	"github.com/tastemachine/poa-engine/internal/adapters/mq/recompute"
	service "github.com/tastemachine/poa-engine/internal/app"
	"github.com/tastemachine/poa-engine/internal/config"
	"github.com/tastemachine/poa-engine/internal/domain/rating"
	"github.com/tastemachine/poa-engine/internal/domain/selector"
	"github.com/tastemachine/poa-engine/pkg/logger"
	"github.com/tastemachine/poa-engine/pkg/retry"
)

// HTTP server timeouts.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()

	svc := service.New(
		service.WithLogger(log),
		service.WithRatingParams(rating.NewParams(
			rating.WithKFactor(cfg.KFactor),
			rating.WithSuperMultiplier(cfg.SuperMultiplier),
			rating.WithSigmaShrink(cfg.SigmaShrink),
			rating.WithSigmaFloor(cfg.SigmaFloor),
			rating.WithConfidenceCap(cfg.ConfidenceCap),
			rating.WithMinEvidence(cfg.MinEvidence),
			rating.WithFireBoost(cfg.FireBoostPer, cfg.FireBoostCap),
		)),
		service.WithRetryPolicy(retry.NewPolicy(
			retry.WithMaxAttempts(cfg.RetryAttempts),
			retry.WithInterval(cfg.RetryInitialInterval, cfg.RetryMaxInterval),
		)),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithRecentWindow(cfg.RecentCooldown, cfg.RecentCapacity),
		service.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		service.WithSelectorOptions(
			selector.WithWeights(selector.Weights{
				Uncertainty:  cfg.WeightUncertainty,
				EloProximity: cfg.WeightEloProximity,
				ColdStart:    cfg.WeightColdStart,
				Diversity:    cfg.WeightDiversity,
			}),
			selector.WithPoolSize(cfg.PoolSize),
			selector.WithColdVoteThreshold(cfg.ColdVoteThreshold),
			selector.WithEloBand(cfg.EloBand, cfg.EloBandWidenFactor, cfg.EloBandMaxWiden),
			selector.WithDuplicateRetries(cfg.DuplicateRetries),
		),
		service.WithRecomputeOptions(
			recompute.WithInterval(cfg.RecomputeInterval),
			recompute.WithBatchSize(cfg.RecomputeBatchSize),
			recompute.WithConcurrency(cfg.RecomputeConcurrency),
		),
	)
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		os.Exit(1)
	}
	defer svc.Stop(context.Background())

	if cfg.CatalogFile != "" {
		if err := seedCatalog(ctx, svc, cfg.CatalogFile); err != nil {
			log.Error(ctx, "catalog seed failed", logger.Error(err))
			os.Exit(1)
		}
	}

	mux := http.NewServeMux()
	api.NewServer(svc, cfg.MaxLeaderboardLimit).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "http server listening", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "http server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
}

// catalogEntry is one row of the optional seed file: a JSON array of
// {"nft_id": ..., "collection": ...} objects.
type catalogEntry struct {
	NFTID      string `json:"nft_id"`
	Collection string `json:"collection"`
}

// seedCatalog registers every NFT from the catalog file at the standard
// priors. Already-registered ids are left untouched.
func seedCatalog(ctx context.Context, svc *service.Service, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var entries []catalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	for _, e := range entries {
		if err := svc.Register(ctx, e.NFTID, e.Collection); err != nil {
			return err
		}
	}
	logger.Get().Info(ctx, "catalog seeded", logger.Int("nfts", len(entries)))
	return nil
}
