package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"triscan/internal/arbitrage"
	"triscan/internal/cache"
	"triscan/internal/config"
	"triscan/internal/database"
	"triscan/internal/exchange"
	"triscan/internal/metrics"
	"triscan/internal/model"
	"triscan/internal/report"
	"triscan/internal/symbols"
)

var (
	configPath = flag.String("config", ".", "directory containing config.yaml")
	once       = flag.Bool("once", false, "run a single scan and exit, ignoring scan.interval_ms")
	listPairs  = flag.Bool("list-pairs", false, "print every trading pair and exit")
	listBases  = flag.Bool("list-bases", false, "print the distinct base assets and exit")
	dumpInfo   = flag.String("dump-exchange-info", "", "write the raw exchange metadata to this file and exit")
)

func main() {
	flag.Parse()

	// Credentials usually come from .env; a missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}
	if *once {
		cfg.Scan.IntervalMS = 0
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &cfg, logger); err != nil {
		logger.Error("triscan failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	client, err := exchange.NewClient(cfg.Exchange.Name, logger, cfg.Exchange)
	if err != nil {
		return err
	}

	switch {
	case *dumpInfo != "":
		return dumpExchangeInfo(ctx, client, *dumpInfo)
	case *listPairs || *listBases:
		return listMetadata(ctx, client)
	}

	oracle, err := exchange.NewPriceOracle(cfg.Exchange.Name, logger, cfg.Exchange, client)
	if err != nil {
		return err
	}
	if closer, ok := oracle.(io.Closer); ok {
		defer closer.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	opts := []arbitrage.Option{arbitrage.WithObserver(metrics.New(reg, cfg.Scan.MinProfitMultiple))}
	metrics.Serve(ctx, cfg.Metrics.Addr, reg, logger)

	if cfg.Database.Enabled {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		repo := &database.PostgresRepository{Pool: pool}
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		opts = append(opts, arbitrage.WithRepository(repo))
	}

	var publisher *cache.Publisher
	if cfg.Redis.Enabled {
		publisher, err = cache.NewPublisher(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, arbitrage.WithPublisher(publisher))
	}

	engine := arbitrage.NewArbitrageEngine(logger, cfg, client, oracle, opts...)
	return engine.Run(ctx, func(r *model.ScanReport) {
		if err := report.WriteResults(os.Stdout, r.Results); err != nil {
			logger.Error("Failed to print results", "error", err)
		}
		if publisher == nil {
			return
		}
		top, err := publisher.Top(ctx, 3)
		if err != nil {
			logger.Warn("Failed to read top cycles", "error", err)
			return
		}
		for i, z := range top {
			logger.Info("Top cycle", "rank", i+1, "cycle", z.Member, "profitMultiple", z.Score)
		}
	})
}

func dumpExchangeInfo(ctx context.Context, client *exchange.BinanceClient, path string) error {
	raw, err := client.ExchangeInfoRaw(ctx)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return &model.ParseError{Op: "exchangeInfo", Err: err}
	}
	if err := os.WriteFile(path, pretty.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func listMetadata(ctx context.Context, client *exchange.BinanceClient) error {
	pairs, err := client.FetchPairs(ctx)
	if err != nil {
		return err
	}
	g, err := symbols.Build(pairs)
	if err != nil {
		return err
	}
	if *listPairs {
		if err := report.WriteLines(os.Stdout, g.Symbols()); err != nil {
			return err
		}
	}
	if *listBases {
		return report.WriteLines(os.Stdout, g.BaseAssets())
	}
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
