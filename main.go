package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	auction "collateral-auction/internal/auctionService"
	"collateral-auction/internal/clock"
	"collateral-auction/internal/config"
	"collateral-auction/internal/coordinator"
	dispute "collateral-auction/internal/disputeService"
	"collateral-auction/internal/events"
	"collateral-auction/internal/events/redisbus"
	"collateral-auction/internal/keylock"
	"collateral-auction/internal/ledger"
	payment "collateral-auction/internal/paymentService"
	"collateral-auction/internal/repository"
	"collateral-auction/internal/repository/postgres"
	"collateral-auction/internal/server"
	"collateral-auction/utils"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	utils.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		utils.Fatal("failed to initialize storage", map[string]any{"error": err.Error()})
	}
	defer cleanup()

	sink, sinkCleanup, err := buildSink(ctx, cfg)
	if err != nil {
		utils.Fatal("failed to initialize event sink", map[string]any{"error": err.Error()})
	}
	defer sinkCleanup()

	coord := wire(store, sink)
	router := server.SetupRouter(coord)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		utils.Info("auction server listening", map[string]any{
			"addr":    srv.Addr,
			"backend": cfg.Storage.Backend,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		utils.Fatal("server terminated", map[string]any{"error": err.Error()})
	}
}

// wire assembles the core: one lock set per entity kind, shared where the
// components must serialize against each other.
func wire(store repository.AuctionStore, sink events.Sink) *coordinator.Coordinator {
	clk := clock.System{}
	auctionLocks := keylock.New() // shared by ledger and auction state machine
	bidLocks := keylock.New()     // shared by dispute gate and payment machine

	l := ledger.New(store, auctionLocks)
	a := auction.NewStateMachine(store, auctionLocks)
	d := dispute.NewGate(store, bidLocks, clk)
	p := payment.NewStatusMachine(store, bidLocks, d, clk)

	return coordinator.New(l, a, d, p, sink, clk)
}

func buildStore(ctx context.Context, cfg config.Config) (repository.AuctionStore, func(), error) {
	if cfg.Storage.Backend != "postgres" {
		return repository.NewMemoryRepo(), func() {}, nil
	}

	client, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	if cfg.Postgres.RunMigrations {
		if err := client.RunMigrations(ctx); err != nil {
			client.Close()
			return nil, nil, err
		}
	}
	return postgres.NewStore(client), client.Close, nil
}

func buildSink(ctx context.Context, cfg config.Config) (events.Sink, func(), error) {
	if !cfg.Redis.Enabled {
		return events.NewMemorySink(), func() {}, nil
	}

	bus, err := redisbus.New(ctx, redisbus.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Channel:  cfg.Redis.Channel,
	})
	if err != nil {
		return nil, nil, err
	}
	return bus, func() { _ = bus.Close() }, nil
}
