package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"triscan/internal/config"
	"triscan/internal/database"
	"triscan/internal/exchange"
	"triscan/internal/model"
	"triscan/internal/symbols"
)

// Publisher pushes the latest scan results somewhere other processes can read them.
type Publisher interface {
	Publish(ctx context.Context, report *model.ScanReport) error
}

// Observer records scan outcomes, e.g. as metrics. report may be nil when the scan never started.
type Observer interface {
	Observe(report *model.ScanReport, elapsed time.Duration, err error)
}

// ArbitrageEngine runs scans end to end: metadata, graph, cycles, prices, sinks.
type ArbitrageEngine struct {
	logger    *slog.Logger
	cfg       *config.Config
	source    exchange.MetadataSource
	oracle    exchange.PriceOracle
	scanner   *Scanner
	repo      database.Repository
	publisher Publisher
	observer  Observer
}

// Option configures optional sinks on the engine.
type Option func(*ArbitrageEngine)

// WithRepository stores every completed scan.
func WithRepository(repo database.Repository) Option {
	return func(e *ArbitrageEngine) { e.repo = repo }
}

// WithPublisher publishes every completed scan.
func WithPublisher(p Publisher) Option {
	return func(e *ArbitrageEngine) { e.publisher = p }
}

// WithObserver reports every scan attempt, successful or not.
func WithObserver(o Observer) Option {
	return func(e *ArbitrageEngine) { e.observer = o }
}

// NewArbitrageEngine creates a new instance of the ArbitrageEngine.
func NewArbitrageEngine(logger *slog.Logger, cfg *config.Config, source exchange.MetadataSource, oracle exchange.PriceOracle, opts ...Option) *ArbitrageEngine {
	e := &ArbitrageEngine{
		logger:  logger,
		cfg:     cfg,
		source:  source,
		oracle:  oracle,
		scanner: NewScanner(logger, cfg.Scan.Workers),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOnce performs a single scan. Nothing is stored or published unless the scan completed.
func (e *ArbitrageEngine) RunOnce(ctx context.Context) (*model.ScanReport, error) {
	scanCtx := ctx
	if t := e.cfg.Scan.Timeout(); t > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	start := time.Now()

	report, err := e.scan(scanCtx)
	if report != nil {
		report.Exchange = e.cfg.Exchange.Name
	}
	if e.observer != nil {
		e.observer.Observe(report, time.Since(start), err)
	}
	if err != nil {
		return report, err
	}

	e.logOpportunities(report)
	e.record(ctx, report)
	return report, nil
}

// Run repeats RunOnce every scan interval until ctx is done. A zero interval runs a single scan
// and returns its error. handle, if set, receives every completed report.
func (e *ArbitrageEngine) Run(ctx context.Context, handle func(*model.ScanReport)) error {
	interval := e.cfg.Scan.Interval()
	for {
		report, err := e.RunOnce(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			e.logger.Info("ArbitrageEngine: context cancelled, shutting down")
			return nil
		case err != nil && interval == 0:
			return err
		case err != nil:
			e.logger.Error("ArbitrageEngine: scan failed", "error", err)
		case handle != nil:
			handle(report)
		}

		if interval == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			e.logger.Info("ArbitrageEngine: context cancelled, shutting down")
			return nil
		case <-time.After(interval):
		}
	}
}

func (e *ArbitrageEngine) scan(ctx context.Context) (*model.ScanReport, error) {
	pairs, err := e.source.FetchPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch pairs: %w", err)
	}
	g, err := symbols.Build(pairs)
	if err != nil {
		return nil, fmt.Errorf("build symbol graph: %w", err)
	}
	report, err := e.scanner.Scan(ctx, g, e.oracle)
	if err != nil {
		return report, fmt.Errorf("scan: %w", err)
	}
	return report, nil
}

func (e *ArbitrageEngine) logOpportunities(report *model.ScanReport) {
	for _, opp := range report.Opportunities(e.cfg.Scan.MinProfitMultiple) {
		e.logger.Info("Profitable arbitrage opportunity found",
			"exchange", report.Exchange,
			"fiat", opp.Cycle.Fiat,
			"intermediate", opp.Cycle.Intermediate,
			"token", opp.Cycle.Token,
			"profitMultiple", opp.ProfitMultiple,
		)
	}
}

func (e *ArbitrageEngine) record(ctx context.Context, report *model.ScanReport) {
	if e.repo != nil {
		if err := e.repo.LogScan(ctx, *report); err != nil {
			e.logger.Error("Failed to log scan", "scanID", report.ID, "error", err)
		}
	}
	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, report); err != nil {
			e.logger.Error("Failed to publish scan", "scanID", report.ID, "error", err)
		}
	}
}
