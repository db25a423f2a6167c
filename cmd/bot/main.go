// Kalshi sports arbitrage engine — exploits the price lag between live
// sportsbook odds (or live game scores) and the order book of a binary
// prediction market.
//
// Architecture:
//
//	main.go                — entry point: env, config, logger, engine, signals
//	engine/engine.go       — scheduler loop: pipelines → simulator → state bus
//	pipeline/pipeline.go   — per-sport tick: poll, match, fair value, evaluate
//	prob/                  — win-probability model, devig, fractional Kelly
//	fees/                  — integer-exact fee schedule + break-even solver
//	match/                 — team/title/ticker matching and game keys
//	index/                 — startup catalog → immutable game index
//	book/                  — depth book mirrored from the venue WebSocket
//	track/                 — velocity, book pressure, momentum gate
//	strategy/              — edge calculation and TakerBuy/MakerBuy selection
//	sim/                   — latency/slippage fill simulator with forced exits
//	risk/                  — per-market, portfolio, and per-cycle exposure caps
//	venue/                 — signed Kalshi REST + orderbook_delta WebSocket
//	feed/                  — sportsbook odds source + score providers w/ failover
//	state/                 — snapshot bus to the TUI and command channel back
//
// How it makes money:
//
//	Sportsbook odds and live scores move faster than prediction-market books.
//	When the devigged (or score-modelled) fair value exceeds the venue ask by
//	more than fees, the engine takes or makes the YES side, targets a maker
//	exit at fair, and realises the gap — provided momentum confirms the move
//	and risk limits allow the position.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/brabsmit/kalshi-arb/internal/config"
	"github.com/brabsmit/kalshi-arb/internal/engine"
	"github.com/brabsmit/kalshi-arb/internal/telemetry"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfgPath := "configs/config.toml"
	if p := os.Getenv("ARB_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.New()
	}

	eng, err := engine.New(cfg, cfgPath, metrics, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel() // engine exit (quit / kill switch) stops the other tasks
		return eng.Run(ctx)
	})
	if metrics != nil {
		g.Go(func() error { return metrics.Serve(ctx, cfg.Telemetry.Addr, logger) })
	}

	if !cfg.Live {
		logger.Warn("SIMULATION MODE — no real orders will be placed")
	}
	logger.Info("arbitrage engine started",
		"sports", len(cfg.Sports),
		"live", cfg.Live,
		"kelly_fraction", cfg.Risk.KellyFraction,
		"max_exposure_cents", cfg.Risk.MaxTotalExposureCents,
	)

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("engine stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
