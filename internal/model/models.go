package model

import (
	"time"
)

// TradingPair is a single market listed by the exchange, e.g. LTCBTC = LTC/BTC.
type TradingPair struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
}

// Validate checks that the symbol is exactly base followed by quote and that neither side is empty.
func (p TradingPair) Validate() error {
	if p.BaseAsset == "" || p.QuoteAsset == "" || p.BaseAsset+p.QuoteAsset != p.Symbol {
		return &MalformedPairError{Symbol: p.Symbol, BaseAsset: p.BaseAsset, QuoteAsset: p.QuoteAsset}
	}
	return nil
}

// Cycle is the path Fiat -> Intermediate -> Token -> Fiat.
type Cycle struct {
	Fiat         string
	Intermediate string
	Token        string
}

// FirstLeg is the symbol used to buy the intermediate asset with fiat.
func (c Cycle) FirstLeg() string { return c.Intermediate + c.Fiat }

// SecondLeg is the symbol used to buy the token with the intermediate asset.
func (c Cycle) SecondLeg() string { return c.Token + c.Intermediate }

// ClosingLeg is the symbol used to sell the token back to fiat.
func (c Cycle) ClosingLeg() string { return c.Token + c.Fiat }

// Key identifies the cycle in storage and caches.
func (c Cycle) Key() string { return c.Fiat + ":" + c.Intermediate + ":" + c.Token }

func (c Cycle) String() string { return c.Token + "|" + c.Intermediate + "|" + c.Fiat }

// PriceQuote holds the top of book for one symbol. It is never cached.
type PriceQuote struct {
	BestAsk float64
	BestBid float64
}

// CycleStatus tells whether a cycle could be priced.
type CycleStatus string

const (
	CycleOK          CycleStatus = "ok"
	CycleUnavailable CycleStatus = "unavailable"
)

// CycleResult is the outcome of evaluating one cycle during a scan.
type CycleResult struct {
	Cycle          Cycle
	ProfitMultiple float64
	Status         CycleStatus
	Reason         string
}

// Available reports whether the cycle was priced.
func (r CycleResult) Available() bool { return r.Status == CycleOK }

// ScanReport is everything a single scan produced.
type ScanReport struct {
	ID         string
	Exchange   string
	StartedAt  time.Time
	FinishedAt time.Time
	PairCount  int
	Results    []CycleResult
	// Complete is false when the scan was stopped before every cycle was evaluated.
	Complete bool
}

// Opportunities returns the priced cycles whose multiple exceeds threshold.
func (r *ScanReport) Opportunities(threshold float64) []CycleResult {
	var out []CycleResult
	for _, res := range r.Results {
		if res.Available() && res.ProfitMultiple > threshold {
			out = append(out, res)
		}
	}
	return out
}

// Unavailable returns the number of cycles that could not be priced.
func (r *ScanReport) Unavailable() int {
	n := 0
	for _, res := range r.Results {
		if !res.Available() {
			n++
		}
	}
	return n
}

// Best returns the priced cycle with the highest multiple.
func (r *ScanReport) Best() (CycleResult, bool) {
	var best CycleResult
	found := false
	for _, res := range r.Results {
		if !res.Available() {
			continue
		}
		if !found || res.ProfitMultiple > best.ProfitMultiple {
			best = res
			found = true
		}
	}
	return best, found
}
