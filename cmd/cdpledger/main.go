package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cdpledger/api"
	"cdpledger/config"
	"cdpledger/core"
	"cdpledger/core/events"
	"cdpledger/core/genesis"
	"cdpledger/indexer"
	"cdpledger/native/params"
	"cdpledger/observability/logging"
	"cdpledger/observability/metrics"
	telemetry "cdpledger/observability/otel"
	"cdpledger/storage"
)

const (
	serviceName     = "cdpledger"
	shutdownTimeout = 10 * time.Second
	indexerInterval = time.Second
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "export" {
		if err := runExport(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "export: %v\n", err)
			os.Exit(1)
		}
		return
	}

	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to the genesis accounts YAML (overrides GenesisAccountsFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	runID := uuid.NewString()
	logger := logging.SetupWithFile(serviceName, cfg.Environment, logging.FileOptions{Path: cfg.LogFile}).
		With("run", runID)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialise telemetry: %v", err))
	}
	if cfg.Telemetry.Endpoint != "" {
		logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.Endpoint,
			logging.MaskField("headers", cfg.Telemetry.Headers))
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	consensus, err := params.LoadFile(cfg.ParamsFile)
	if err != nil {
		panic(fmt.Sprintf("failed to load params: %v", err))
	}
	if string(consensus.System.Network) != cfg.Network {
		panic(fmt.Sprintf("params network %s does not match node network %s", consensus.System.Network, cfg.Network))
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chaindata"))
	if err != nil {
		panic(fmt.Sprintf("failed to open database: %v", err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := api.NewHub()
	emitters := events.Fanout{hub}
	var index *indexer.Indexer
	if dsn := strings.TrimSpace(cfg.IndexerDSN); dsn != "" {
		sqlDB, err := indexer.Open(dsn)
		if err != nil {
			panic(fmt.Sprintf("failed to open indexer: %v", err))
		}
		index = indexer.New(sqlDB, logger)
		emitters = append(emitters, index)
		logger.Info("event indexer enabled", logging.MaskField("dsn", dsn))
	}

	ledger, err := core.NewLedger(db, core.Options{
		Logger:           logger,
		PersistClosedCDP: cfg.PersistClosedCDP,
		Metrics:          metrics.Ledger(),
		Emitter:          emitters,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to open ledger: %v", err))
	}
	if ledger.Chain().CurrentHeader() == nil {
		path := *genesisFlag
		if path == "" {
			path = cfg.GenesisAccountsFile
		}
		if err := initGenesis(ledger, consensus, cfg, path); err != nil {
			logger.Error("genesis failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
	logger.Info("ledger ready", "height", ledger.Height(), "stateRoot", ledger.StateRoot().Hex(),
		"network", cfg.Network)

	apiCfg := api.Config{
		Ledger:        ledger,
		Logger:        logger,
		Stream:        hub,
		SubmitEnabled: cfg.API.SubmitBlocks,
		Limits:        rateLimits(cfg.API),
	}
	if index != nil {
		apiCfg.Events = index
		go index.Run(ctx, indexerInterval)
	}
	srv, err := api.New(apiCfg)
	if err != nil {
		panic(fmt.Sprintf("failed to build api: %v", err))
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	servers := []*http.Server{
		{Addr: cfg.API.Address, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second},
		{Addr: cfg.MetricsAddress, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second},
	}
	errCh := make(chan error, len(servers))
	for _, s := range servers {
		go func(s *http.Server) {
			logger.Info("listening", "addr", s.Addr)
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s: %w", s.Addr, err)
			}
		}(s)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server failed", slog.Any("error", err))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, s := range servers {
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", "addr", s.Addr, slog.Any("error", err))
		}
	}
	stop()
	if index != nil {
		if err := index.Flush(shutdownCtx); err != nil {
			logger.Warn("indexer flush", slog.Any("error", err))
		}
	}
}

func initGenesis(ledger *core.Ledger, consensus *params.Genesis, cfg *config.Config, path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("empty chain and no genesis accounts file configured")
	}
	spec, err := genesis.LoadGenesisSpec(path)
	if err != nil {
		return err
	}
	g, err := spec.Build(consensus)
	if err != nil {
		return err
	}
	g.Pauses.CDP = g.Pauses.CDP || cfg.Pauses.CDP
	g.Pauses.Liquidation = g.Pauses.Liquidation || cfg.Pauses.Liquidation
	g.Pauses.Transfer = g.Pauses.Transfer || cfg.Pauses.Transfer
	_, err = ledger.InitGenesis(g)
	return err
}

func rateLimits(cfg config.API) map[string]api.RateLimit {
	limits := make(map[string]api.RateLimit)
	if cfg.QueryPerMinute > 0 {
		limits["query"] = api.RateLimit{RequestsPerMinute: cfg.QueryPerMinute, Burst: cfg.QueryBurst}
	}
	if cfg.SubmitPerMinute > 0 {
		limits["submit"] = api.RateLimit{RequestsPerMinute: cfg.SubmitPerMinute, Burst: cfg.SubmitBurst}
	}
	return limits
}
