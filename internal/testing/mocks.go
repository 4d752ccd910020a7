package testing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/quanport/internal/domain"
)

// MockPriceSource serves fixed assets and counts loads
type MockPriceSource struct {
	mu     sync.RWMutex
	assets map[string]domain.Asset
	err    error
	delay  time.Duration
	loads  atomic.Int64
}

// NewMockPriceSource creates a price source serving assets by symbol
func NewMockPriceSource(assets ...domain.Asset) *MockPriceSource {
	m := &MockPriceSource{assets: make(map[string]domain.Asset, len(assets))}
	for _, a := range assets {
		m.assets[a.Symbol] = a
	}
	return m
}

// SetError makes every subsequent load fail with err
func (m *MockPriceSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay makes every load block for d (used to provoke concurrent misses)
func (m *MockPriceSource) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// LoadAssets returns the assets for symbols in the requested order
func (m *MockPriceSource) LoadAssets(ctx context.Context, symbols []string) ([]domain.Asset, error) {
	m.loads.Add(1)

	m.mu.RLock()
	delay, err := m.delay, m.err
	m.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Asset, 0, len(symbols))
	for _, s := range symbols {
		a, ok := m.assets[s]
		if !ok {
			return nil, &domain.InsufficientDataError{Symbol: s, Required: 2, Reason: "no price history"}
		}
		out = append(out, a)
	}
	return out, nil
}

// Loads returns how many times LoadAssets was called
func (m *MockPriceSource) Loads() int64 {
	return m.loads.Load()
}
