package exchange

import (
	"fmt"
	"log/slog"

	"triscan/internal/config"
)

type endpoints struct {
	rest  string
	wsAPI string
}

var venues = map[string]endpoints{
	"binanceus": {rest: "https://api.binance.us", wsAPI: "wss://ws-api.binance.us:443/ws-api/v3"},
	"binance":   {rest: "https://api.binance.com", wsAPI: "wss://ws-api.binance.com:443/ws-api/v3"},
}

// withVenueDefaults fills endpoints left empty in cfg from the venue table.
func withVenueDefaults(name string, cfg config.ExchangeConfig) (config.ExchangeConfig, error) {
	ep, ok := venues[name]
	if !ok {
		return cfg, fmt.Errorf("unknown exchange: %s", name)
	}
	if cfg.RestURL == "" {
		cfg.RestURL = ep.rest
	}
	if cfg.WSAPIURL == "" {
		cfg.WSAPIURL = ep.wsAPI
	}
	return cfg, nil
}

// NewClient creates a new exchange client based on the given name and configuration.
func NewClient(name string, logger *slog.Logger, cfg config.ExchangeConfig) (*BinanceClient, error) {
	cfg, err := withVenueDefaults(name, cfg)
	if err != nil {
		return nil, err
	}
	return NewBinanceClient(name, logger, cfg), nil
}

// NewPriceOracle picks the oracle named by cfg.PriceSource. The REST client is reused for "rest".
func NewPriceOracle(name string, logger *slog.Logger, cfg config.ExchangeConfig, rest *BinanceClient) (PriceOracle, error) {
	switch cfg.PriceSource {
	case "", "rest":
		return rest, nil
	case "ws":
		cfg, err := withVenueDefaults(name, cfg)
		if err != nil {
			return nil, err
		}
		return NewBinanceWSOracle(logger, cfg), nil
	default:
		return nil, fmt.Errorf("unknown price source: %s", cfg.PriceSource)
	}
}
