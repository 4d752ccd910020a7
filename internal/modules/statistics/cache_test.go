package statistics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quanport/internal/domain"
	testhelpers "github.com/aristath/quanport/internal/testing"
)

func newTestCache(t *testing.T, cfg CacheConfig, symbols ...string) (*Cache, *testhelpers.MockPriceSource, *testhelpers.ManualClock) {
	t.Helper()
	source := testhelpers.NewMockPriceSource(testhelpers.RandomWalkUniverse(symbols, 30, 3)...)
	clock := testhelpers.NewManualClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	cfg.Clock = clock
	return NewCache(source, NewBuilder(252, zerolog.Nop()), cfg, zerolog.Nop()), source, clock
}

func TestCanonicalSymbols(t *testing.T) {
	canonical, key := CanonicalSymbols([]string{"MSFT", "AAPL", "MSFT", "GOOG"})
	assert.Equal(t, []string{"AAPL", "GOOG", "MSFT"}, canonical)
	assert.Equal(t, "AAPL,GOOG,MSFT", key)
}

func TestCache_HitAcrossSymbolOrders(t *testing.T) {
	cache, source, _ := newTestCache(t, CacheConfig{}, "A", "B", "C")
	ctx := context.Background()

	first, err := cache.Get(ctx, []string{"A", "B", "C"})
	require.NoError(t, err)
	second, err := cache.Get(ctx, []string{"C", "A", "B"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), cache.Builds())
	assert.Equal(t, int64(1), source.Loads())
	assert.Equal(t, 1, cache.Len())

	// Same numbers, permuted to the caller's order
	assert.Equal(t, []string{"C", "A", "B"}, second.Symbols)
	assert.Equal(t, first.ExpectedReturns[2], second.ExpectedReturns[0])
	assert.Equal(t, first.Covariance[0][2], second.Covariance[1][0])
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	cache, _, clock := newTestCache(t, CacheConfig{TTL: 5 * time.Minute}, "A", "B")
	ctx := context.Background()

	_, err := cache.Get(ctx, []string{"A", "B"})
	require.NoError(t, err)

	clock.Advance(4*time.Minute + 59*time.Second)
	_, err = cache.Get(ctx, []string{"B", "A"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), cache.Builds())

	clock.Advance(time.Second)
	refreshed, err := cache.Get(ctx, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), cache.Builds())
	assert.Equal(t, clock.Now(), refreshed.CreatedAt)
	assert.Equal(t, 1, cache.Len())
}

func TestCache_DistinctSetsBuildSeparately(t *testing.T) {
	cache, _, _ := newTestCache(t, CacheConfig{}, "A", "B", "C")
	ctx := context.Background()

	_, err := cache.Get(ctx, []string{"A", "B"})
	require.NoError(t, err)
	_, err = cache.Get(ctx, []string{"A", "C"})
	require.NoError(t, err)

	assert.Equal(t, int64(2), cache.Builds())
	assert.Equal(t, 2, cache.Len())
}

func TestCache_ConcurrentMissesBuildOnce(t *testing.T) {
	cache, source, _ := newTestCache(t, CacheConfig{}, "A", "B", "C")
	source.SetDelay(50 * time.Millisecond)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			symbols := []string{"A", "B", "C"}
			if i%2 == 1 {
				symbols = []string{"C", "B", "A"}
			}
			_, err := cache.Get(context.Background(), symbols)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), cache.Builds())
	assert.Equal(t, int64(1), source.Loads())
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache, _, _ := newTestCache(t, CacheConfig{MaxEntries: 2}, "A", "B", "C")
	ctx := context.Background()

	for _, set := range [][]string{{"A", "B"}, {"A", "C"}} {
		_, err := cache.Get(ctx, set)
		require.NoError(t, err)
	}
	// Touch A,B so A,C becomes the eviction candidate
	_, err := cache.Get(ctx, []string{"A", "B"})
	require.NoError(t, err)

	_, err = cache.Get(ctx, []string{"B", "C"})
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, int64(3), cache.Builds())

	_, err = cache.Get(ctx, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), cache.Builds())

	_, err = cache.Get(ctx, []string{"A", "C"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), cache.Builds())
}

func TestCache_PurgeAndInvalidate(t *testing.T) {
	cache, _, clock := newTestCache(t, CacheConfig{TTL: time.Minute}, "A", "B", "C")
	ctx := context.Background()

	_, err := cache.Get(ctx, []string{"A", "B"})
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	_, err = cache.Get(ctx, []string{"A", "C"})
	require.NoError(t, err)

	clock.Advance(45 * time.Second)
	job := NewPurgeJob(cache, zerolog.Nop())
	assert.Equal(t, "stats_cache_purge", job.Name())
	require.NoError(t, job.Run())
	assert.Equal(t, 1, cache.Len())

	cache.Invalidate([]string{"C", "A"})
	assert.Equal(t, 0, cache.Len())
}

func TestCache_InvalidateSymbols(t *testing.T) {
	cache, _, _ := newTestCache(t, CacheConfig{}, "A", "B", "C", "D")
	ctx := context.Background()

	for _, set := range [][]string{{"A", "B"}, {"B", "C"}, {"C", "D"}} {
		_, err := cache.Get(ctx, set)
		require.NoError(t, err)
	}
	require.Equal(t, 3, cache.Len())

	assert.Equal(t, 2, cache.InvalidateSymbols([]string{"B"}))
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 0, cache.InvalidateSymbols([]string{"Z"}))

	// The surviving set is still served from the cache
	builds := cache.Builds()
	_, err := cache.Get(ctx, []string{"D", "C"})
	require.NoError(t, err)
	assert.Equal(t, builds, cache.Builds())
}

func TestCache_SourceErrorIsNotCached(t *testing.T) {
	cache, source, _ := newTestCache(t, CacheConfig{}, "A", "B")
	source.SetError(errors.New("disk on fire"))

	_, err := cache.Get(context.Background(), []string{"A", "B"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
	assert.Equal(t, 0, cache.Len())

	source.SetError(nil)
	_, err = cache.Get(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), cache.Builds())
}

func TestCache_EmptySymbols(t *testing.T) {
	cache, _, _ := newTestCache(t, CacheConfig{}, "A")
	_, err := cache.Get(context.Background(), nil)
	assert.Error(t, err)
}

// gatedSource blocks every load until release is closed
type gatedSource struct {
	*testhelpers.MockPriceSource
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedSource(symbols ...string) *gatedSource {
	return &gatedSource{
		MockPriceSource: testhelpers.NewMockPriceSource(testhelpers.RandomWalkUniverse(symbols, 30, 3)...),
		started:         make(chan struct{}),
		release:         make(chan struct{}),
	}
}

func (g *gatedSource) LoadAssets(ctx context.Context, symbols []string) ([]domain.Asset, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.MockPriceSource.LoadAssets(ctx, symbols)
}

func TestCache_CancelledCallerDoesNotFailSharedBuild(t *testing.T) {
	source := newGatedSource("A", "B")
	cache := NewCache(source, NewBuilder(252, zerolog.Nop()), CacheConfig{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Get(ctx, []string{"A", "B"})
		firstErr <- err
	}()
	<-source.started

	secondErr := make(chan error, 1)
	go func() {
		_, err := cache.Get(context.Background(), []string{"B", "A"})
		secondErr <- err
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(source.release)
	require.NoError(t, <-secondErr)

	assert.Equal(t, int64(1), cache.Builds())
	assert.Equal(t, 1, cache.Len())
}

func TestCache_InvalidationDuringBuildIsNotOverwritten(t *testing.T) {
	source := newGatedSource("A", "B")
	cache := NewCache(source, NewBuilder(252, zerolog.Nop()), CacheConfig{}, zerolog.Nop())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := cache.Get(ctx, []string{"A", "B"})
		done <- err
	}()
	<-source.started

	// New prices for A land while the old ones are being built
	cache.InvalidateSymbols([]string{"A"})
	close(source.release)

	require.NoError(t, <-done)
	assert.Equal(t, 0, cache.Len())

	_, err := cache.Get(ctx, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), cache.Builds())
	assert.Equal(t, 1, cache.Len())
}
