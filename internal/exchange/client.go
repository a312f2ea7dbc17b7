package exchange

import (
	"context"

	"triscan/internal/model"
)

// MetadataSource lists the pairs an exchange offers.
type MetadataSource interface {
	FetchPairs(ctx context.Context) ([]model.TradingPair, error)
}

// PriceOracle answers top-of-book queries. Every call hits the exchange.
type PriceOracle interface {
	BestAsk(ctx context.Context, symbol string) (float64, error)
	BestBid(ctx context.Context, symbol string) (float64, error)
}

// ExchangeClient is a venue that can serve both metadata and prices.
type ExchangeClient interface {
	MetadataSource
	PriceOracle
	GetName() string
}
