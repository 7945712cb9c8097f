package market

import (
	"context"
	"fmt"

	"github.com/banbox/banexg"
	"github.com/banbox/banexg/bex"
)

// ExchangeConfig represents live exchange connection configuration
type ExchangeConfig struct {
	Name      string
	APIKey    string
	APISecret string
	TestNet   bool
}

// BanexgOracle resolves reference prices from a live exchange through the
// banexg library. Used when the platform is configured with a real market
// data source instead of the static table.
type BanexgOracle struct {
	exchange banexg.BanExchange
	config   *ExchangeConfig
}

// NewBanexgOracle creates a live price oracle
func NewBanexgOracle(config *ExchangeConfig) (*BanexgOracle, error) {
	options := map[string]interface{}{
		banexg.OptApiKey:     config.APIKey,
		banexg.OptApiSecret:  config.APISecret,
		banexg.OptMarketType: banexg.MarketLinear,
	}
	if config.TestNet {
		options[banexg.OptEnv] = "test"
	}

	name := config.Name
	if name == "" {
		name = "binance"
	}

	exg, err := bex.New(name, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange client: %w", err)
	}

	return &BanexgOracle{
		exchange: exg,
		config:   config,
	}, nil
}

// GetPrice implements Oracle
func (o *BanexgOracle) GetPrice(ctx context.Context, symbol string) (float64, error) {
	ticker, err := o.exchange.FetchTicker(symbol, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch ticker for %s: %w", symbol, err)
	}
	return ticker.Last, nil
}

// Close releases the exchange client
func (o *BanexgOracle) Close() error {
	if o.exchange != nil {
		return o.exchange.Close()
	}
	return nil
}
