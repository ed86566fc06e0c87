package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockmind/internal/api"
	"stockmind/internal/clock"
	"stockmind/internal/config"
	"stockmind/internal/domain"
	"stockmind/internal/engine"
	"stockmind/internal/httpapi"
	"stockmind/internal/live"
	"stockmind/internal/market"
	"stockmind/internal/quote"
	"stockmind/internal/settings"
	"stockmind/internal/store"
	"stockmind/internal/util"
	"stockmind/internal/webhook"
)

const heatmapTTL = 30 * time.Second

func main() {
	// Load config.
	cfgPath := "config/stockmind.yaml"
	if p := os.Getenv("STOCKMIND_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Setup logging.
	logFileName := fmt.Sprintf("/tmp/stockmind-server-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("opening log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLoggerTo(io.MultiWriter(os.Stdout, logFile), cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Settings, with config values as fallbacks for unset keys.
	st := settings.NewStore(cfg.Storage.SettingsPath, logger)
	if cfg.AlphaVantage.APIKey != "" {
		st.SetFallback(settings.KeyStockAPIKey, cfg.AlphaVantage.APIKey)
	}
	if cfg.N8n.BaseURL != "" {
		st.SetFallback(settings.KeyN8nBaseURL, cfg.N8n.BaseURL)
	}
	if cfg.Storage.SettingsPath != "" {
		go func() {
			if err := st.Watch(ctx); err != nil {
				logger.Warn("settings watcher stopped", "error", err)
			}
		}()
	}

	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening run store: %w", err)
	}
	defer runs.Close()
	archive := store.NewParquetStore(cfg.Storage.DataDir)

	// Quote providers: Alpaca when configured, then Alpha Vantage, then demo.
	av := quote.NewAlphaVantage(cfg.AlphaVantage.BaseURL, st.Credential, cfg.AlphaVantage.RateLimitPerMin)
	var providers []quote.Provider
	if cfg.Alpaca.APIKey != "" {
		providers = append(providers, quote.NewAlpaca(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, cfg.Alpaca.DataURL))
	}
	providers = append(providers, av, quote.NewDemo(uint64(time.Now().UnixNano())))
	quotes := quote.NewFallback(logger, providers...)
	logger.Info("quote providers", "chain", quotes.Name())

	mkt := market.NewService(quotes, quote.Universe, util.NewUSSession(), heatmapTTL, logger)

	board := live.NewBoard()
	clk := clock.Real()

	agents := engine.NewSequencer(domain.DefaultAgents(), engine.SequencerConfig{
		Stagger:      cfg.Agents.Stagger,
		TickInterval: cfg.Agents.TickInterval,
		Step:         cfg.Agents.Step,
		Cutoff:       cfg.Agents.Cutoff,
	}, clk, board, logger)

	notifier := webhook.NewHTTPNotifier(cfg.Workflows.CallTimeout, "stockmind-server/"+version)
	workflows := engine.NewWorkflowEngine(domain.DefaultWorkflows(), engine.WorkflowConfig{
		TickInterval:   cfg.Workflows.TickInterval,
		Step:           cfg.Workflows.Step,
		Ceiling:        cfg.Workflows.Ceiling,
		CompletedReset: cfg.Workflows.CompletedReset,
		ErrorReset:     cfg.Workflows.ErrorReset,
		CallTimeout:    cfg.Workflows.CallTimeout,
	}, clk, notifier, st, board, logger,
		engine.WithRunRecorder(runs),
		engine.WithMarketData(func(ctx context.Context, symbol string) (any, error) {
			return av.Quote(ctx, symbol)
		}),
		engine.WithRequestContext(webhook.Context{UserAgent: "stockmind-server/" + version}),
	)

	board.Seed(append(agents.Snapshot(), workflows.Snapshot()...))

	handler := httpapi.NewServer(httpapi.Deps{
		Agents:    agents,
		Workflows: workflows,
		Settings:  st,
		Board:     board,
		Quotes:    quotes,
		Market:    mkt,
		Predictor: market.NewPredictor(uint64(time.Now().UnixNano())),
		Runs:      runs,
		Archive:   archive,
		Log:       logger,
	}).Handler()

	srv := api.NewServer(cfg.Server, handler, live.NewServer(board, logger), logger)

	logger.Info("starting stockmind-server",
		"http", cfg.Server.Port, "grpc", cfg.Server.GRPCPort, "dataDir", cfg.Storage.DataDir)
	serveErr := srv.ListenAndServe(ctx)

	// Resolve in-flight runs before archiving them.
	workflows.Close()

	exportCtx, exportCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer exportCancel()
	n, err := store.ExportDay(exportCtx, runs, archive, time.Now().UTC())
	if err != nil {
		logger.Error("archiving today's runs", "error", err)
	} else {
		logger.Info("archived today's runs", "count", n)
	}

	return serveErr
}
