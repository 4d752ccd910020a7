package marketdata

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/quanport/internal/domain"
)

// DefaultLookbackDays is the number of daily closes used to build statistics
const DefaultLookbackDays = 60

// Provider loads aligned price histories from the repository.
// It implements statistics.PriceSource.
type Provider struct {
	repo     *Repository
	lookback int
	log      zerolog.Logger
}

// NewProvider creates a provider that serves lookback closes per symbol to the statistics cache
func NewProvider(repo *Repository, lookback int, log zerolog.Logger) *Provider {
	if lookback < 2 {
		lookback = DefaultLookbackDays
	}
	return &Provider{
		repo:     repo,
		lookback: lookback,
		log:      log.With().Str("component", "marketdata_provider").Logger(),
	}
}

// LoadAssets returns the last lookback aligned closes of each symbol, in the requested order
func (p *Provider) LoadAssets(ctx context.Context, symbols []string) ([]domain.Asset, error) {
	return p.LoadAligned(ctx, symbols, p.lookback)
}

// LoadAligned returns up to points aligned closes per symbol. Every symbol must
// be known to the store and have at least two prices.
func (p *Provider) LoadAligned(ctx context.Context, symbols []string, points int) ([]domain.Asset, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols provided")
	}

	assets := make([]domain.Asset, 0, len(symbols))
	for _, symbol := range symbols {
		asset, err := p.load(ctx, symbol, points)
		if err != nil {
			return nil, err
		}
		if asset == nil {
			return nil, &domain.InsufficientDataError{Symbol: symbol, Required: 2, Reason: "unknown symbol"}
		}
		if len(asset.Prices) < 2 {
			return nil, &domain.InsufficientDataError{Symbol: symbol, Points: len(asset.Prices), Required: 2}
		}
		assets = append(assets, *asset)
	}

	aligned := Tail(Align(assets), points)
	p.log.Debug().
		Strs("symbols", symbols).
		Int("points", len(aligned[0].Prices)).
		Msg("Loaded aligned price history")
	return aligned, nil
}

// LoadBenchmark returns the last points closes of symbol, or nil when the store
// has no history for it.
func (p *Provider) LoadBenchmark(ctx context.Context, symbol string, points int) (*domain.Asset, error) {
	if symbol == "" {
		return nil, nil
	}
	asset, err := p.load(ctx, symbol, points)
	if err != nil {
		return nil, err
	}
	if asset == nil || len(asset.Prices) == 0 {
		p.log.Debug().Str("benchmark", symbol).Msg("Benchmark not in history store")
		return nil, nil
	}
	return asset, nil
}

func (p *Provider) load(ctx context.Context, symbol string, points int) (*domain.Asset, error) {
	sec, err := p.repo.GetSecurity(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to load security %s: %w", symbol, err)
	}
	if sec == nil {
		return nil, nil
	}
	prices, err := p.repo.GetDailyCloses(ctx, symbol, points)
	if err != nil {
		return nil, err
	}
	return &domain.Asset{Symbol: sec.Symbol, Name: sec.Name, Prices: prices}, nil
}
