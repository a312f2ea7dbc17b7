package arbitrage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"triscan/internal/exchange"
	"triscan/internal/model"
	"triscan/internal/symbols"
)

// template is a triangle anchored on a fixed fiat and intermediate asset.
type template struct {
	fiat         string
	intermediate string
}

// templates are tried in this order for every base asset.
var templates = []template{
	{fiat: "USD", intermediate: "BTC"},
	{fiat: "USDT", intermediate: "BTC"},
	{fiat: "USD", intermediate: "USDT"},
}

// EnumerateCycles returns the cycles the graph supports, ordered by base asset then template.
// A template matches base t when both t+fiat and t+intermediate are listed.
func EnumerateCycles(g *symbols.Graph) []model.Cycle {
	var cycles []model.Cycle
	for _, t := range g.BaseAssets() {
		for _, tpl := range templates {
			if g.HasSymbol(t+tpl.fiat) && g.HasSymbol(t+tpl.intermediate) {
				cycles = append(cycles, model.Cycle{Fiat: tpl.fiat, Intermediate: tpl.intermediate, Token: t})
			}
		}
	}
	return cycles
}

// ComputeProfitMultiple prices the cycle starting from one unit of fiat:
// buy the intermediate at ask, buy the token at ask, sell the token at bid.
// Each leg is a separate oracle query.
func ComputeProfitMultiple(ctx context.Context, c model.Cycle, o exchange.PriceOracle) (float64, error) {
	first, err := o.BestAsk(ctx, c.FirstLeg())
	if err != nil {
		return 0, err
	}
	if first <= 0 {
		return 0, &model.QuoteUnavailableError{Symbol: c.FirstLeg(), Side: model.SideAsk}
	}
	second, err := o.BestAsk(ctx, c.SecondLeg())
	if err != nil {
		return 0, err
	}
	if second <= 0 {
		return 0, &model.QuoteUnavailableError{Symbol: c.SecondLeg(), Side: model.SideAsk}
	}
	closing, err := o.BestBid(ctx, c.ClosingLeg())
	if err != nil {
		return 0, err
	}
	if closing <= 0 {
		return 0, &model.QuoteUnavailableError{Symbol: c.ClosingLeg(), Side: model.SideBid}
	}
	return first * second * (1 / closing), nil
}

// Scanner evaluates every cycle of a graph on a bounded pool of workers.
type Scanner struct {
	logger  *slog.Logger
	workers int
}

// NewScanner creates a Scanner. workers below 1 means sequential evaluation.
func NewScanner(logger *slog.Logger, workers int) *Scanner {
	if workers < 1 {
		workers = 1
	}
	return &Scanner{logger: logger, workers: workers}
}

// Scan enumerates and prices every cycle in g.
//
// A leg without a quote marks only its cycle unavailable. Any other oracle failure
// stops the scan and is returned. When ctx is done no further cycles are started;
// the returned report then holds only fully evaluated cycles and Complete is false.
func (s *Scanner) Scan(ctx context.Context, g *symbols.Graph, oracle exchange.PriceOracle) (*model.ScanReport, error) {
	cycles := EnumerateCycles(g)
	report := &model.ScanReport{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		PairCount: g.Len(),
	}
	s.logger.Info("Scanner: starting scan", "scanID", report.ID, "pairs", g.Len(), "cycles", len(cycles), "workers", s.workers)

	results := make([]model.CycleResult, len(cycles))
	done := make([]bool, len(cycles))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workers)
	for i, c := range cycles {
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if egCtx.Err() != nil {
				return nil
			}
			res, err := s.evaluate(egCtx, g, oracle, c)
			if err != nil {
				return err
			}
			results[i] = res
			done[i] = true
			return nil
		})
	}
	err := eg.Wait()

	report.Results = make([]model.CycleResult, 0, len(cycles))
	for i, ok := range done {
		if ok {
			report.Results = append(report.Results, results[i])
		}
	}
	report.FinishedAt = time.Now().UTC()
	report.Complete = len(report.Results) == len(cycles)

	if ctx.Err() != nil && !report.Complete {
		s.logger.Warn("Scanner: scan stopped before completion", "scanID", report.ID, "evaluated", len(report.Results), "cycles", len(cycles), "error", err)
		// Keep an oracle failure that happened alongside the cancellation.
		if err != nil && !errors.Is(err, ctx.Err()) {
			return report, errors.Join(ctx.Err(), err)
		}
		return report, ctx.Err()
	}
	if err != nil {
		report.Complete = false
		s.logger.Error("Scanner: scan aborted", "scanID", report.ID, "error", err)
		return report, err
	}
	s.logger.Info("Scanner: scan finished", "scanID", report.ID, "cycles", len(cycles), "unavailable", report.Unavailable(), "elapsed", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

func (s *Scanner) evaluate(ctx context.Context, g *symbols.Graph, oracle exchange.PriceOracle, c model.Cycle) (model.CycleResult, error) {
	// Templates only check the token legs; an unlisted first leg has no book to quote.
	if !g.HasSymbol(c.FirstLeg()) {
		return unavailable(c, &model.QuoteUnavailableError{Symbol: c.FirstLeg(), Side: model.SideAsk}), nil
	}

	profit, err := ComputeProfitMultiple(ctx, c, oracle)
	var missing *model.QuoteUnavailableError
	switch {
	case errors.As(err, &missing):
		s.logger.Warn("Scanner: cycle unavailable", "cycle", c.String(), "reason", err)
		return unavailable(c, err), nil
	case err != nil:
		return model.CycleResult{}, err
	}

	s.logger.Debug("Scanner: cycle priced", "cycle", c.String(), "profitMultiple", profit)
	return model.CycleResult{Cycle: c, ProfitMultiple: profit, Status: model.CycleOK}, nil
}

func unavailable(c model.Cycle, err error) model.CycleResult {
	return model.CycleResult{Cycle: c, Status: model.CycleUnavailable, Reason: err.Error()}
}
