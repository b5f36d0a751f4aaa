// Command sce-server runs the StateChain Entity: the custodial-free
// coordinator of SPEC_FULL.md, wiring config, storage, the two-party
// ECDSA engine, the deposit/transfer/withdraw engines, the anchoring
// scheduler, and the HTTP façade into one process.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/statechain-entity/pkg/anchoring"
	"github.com/certen/statechain-entity/pkg/config"
	"github.com/certen/statechain-entity/pkg/deposit"
	"github.com/certen/statechain-entity/pkg/ecdsa2p"
	"github.com/certen/statechain-entity/pkg/server"
	"github.com/certen/statechain-entity/pkg/statelock"
	"github.com/certen/statechain-entity/pkg/store"
	"github.com/certen/statechain-entity/pkg/store/memstore"
	"github.com/certen/statechain-entity/pkg/store/pgstore"
	"github.com/certen/statechain-entity/pkg/transfer"
	"github.com/certen/statechain-entity/pkg/transferbatch"
	"github.com/certen/statechain-entity/pkg/withdraw"
)

func main() {
	logger := log.New(log.Writer(), "[sce] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if cfg.TestingMode {
		if err := cfg.ValidateForDevelopment(); err != nil {
			logger.Fatalf("invalid development config: %v", err)
		}
	} else if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	stateStore, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer closeStore()

	ecdsaEngine := ecdsa2p.NewEngine(stateStore)
	depositEngine := deposit.NewEngine(stateStore, ecdsaEngine, cfg.Network)

	// transfer/withdraw share one shard table keyed by state_chain_id;
	// transferbatch keeps its own, keyed by batch_id, so a batch lock
	// held during Receive never shares a shard with the state-chain
	// lock Receive takes through transfer.Engine.
	transferLock := statelock.New()
	transferEngine := transfer.NewEngine(stateStore, transferLock)
	batchEngine := transferbatch.NewEngine(stateStore, transferEngine)
	withdrawEngine := withdraw.NewEngine(stateStore, ecdsaEngine, transferLock, cfg.Network, cfg.FeeAddress, cfg.FeeWithdrawSats)

	anchorCfg := anchoring.DefaultConfig()
	if cfg.AnchorPollInterval > 0 {
		anchorCfg.ConfirmInterval = cfg.AnchorPollInterval
	}
	anchorScheduler := anchoring.New(stateStore, anchoring.NewMockSubmitter(), anchorCfg, log.New(log.Writer(), "[anchoring] ", log.LstdFlags))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	anchorScheduler.Start(ctx)
	defer anchorScheduler.Stop()

	srv := server.New(stateStore, cfg, ecdsaEngine, depositEngine, transferEngine, batchEngine, withdrawEngine, anchorScheduler, logger)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Router(),
	}

	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Printf("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http server shutdown: %v", err)
	}

	logger.Printf("stopped")
}

// openStore selects the StateStore implementation by TestingMode:
// memstore for local/dev runs, pgstore (Postgres + a cometbft-db
// GoLevelDB for the Smt logical table) otherwise. The returned close
// func releases whatever the chosen backend opened.
func openStore(cfg *config.Config, logger *log.Logger) (store.StateStore, func(), error) {
	if cfg.TestingMode {
		logger.Printf("testing_mode enabled: using in-memory store")
		return memstore.New(), func() {}, nil
	}

	client, err := pgstore.NewClient(cfg, pgstore.WithLogger(log.New(log.Writer(), "[pgstore] ", log.LstdFlags)))
	if err != nil {
		return nil, nil, err
	}
	if err := client.MigrateUp(context.Background()); err != nil {
		client.Close()
		return nil, nil, err
	}

	smtDB, err := dbm.NewGoLevelDB("sce-smt", "./data")
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	s := pgstore.New(client, smtDB)
	return s, func() { client.Close() }, nil
}
