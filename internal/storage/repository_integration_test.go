//go:build integration

package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-move-alerts/internal/config"
)

// Run with: PRICEMOVE_TEST_DATABASE_DSN=postgres://... go test -tags integration ./internal/storage/
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("PRICEMOVE_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("PRICEMOVE_TEST_DATABASE_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, config.DatabaseConfig{DSN: dsn, MaxOpenConns: 4})
	require.NoError(t, err)

	store := NewStore(pool)
	t.Cleanup(store.Close)

	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.EnsureSchema(ctx), "schema creation is idempotent")
	return store
}

func testSymbol() string {
	return "TEST-" + uuid.NewString()
}

func TestIntegrationSampleRoundTrip(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()
	symbol := testSymbol()
	start := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.UpsertPriceSample(ctx, PriceSample{
			Symbol:     symbol,
			ObservedAt: start.Add(time.Duration(i) * time.Second),
			Price:      decimal.RequireFromString("100.25").Add(decimal.NewFromInt(int64(i))),
			Size:       decimal.NewFromInt(3),
			BestBid:    decimal.RequireFromString("100.2"),
			BestAsk:    decimal.RequireFromString("100.3"),
			WindowLen:  i + 1,
			Frames:     uint64(i + 1),
		}))
	}

	// same key updates in place
	require.NoError(t, store.UpsertPriceSample(ctx, PriceSample{
		Symbol:     symbol,
		ObservedAt: start,
		Price:      decimal.RequireFromString("99.5"),
		Size:       decimal.NewFromInt(1),
		BestBid:    decimal.RequireFromString("99.4"),
		BestAsk:    decimal.RequireFromString("99.6"),
		WindowLen:  7,
		Frames:     9,
	}))

	between, err := store.ListSamplesBetween(ctx, symbol, start, start.Add(2*time.Second))
	require.NoError(t, err)
	require.Len(t, between, 2, "upper bound is exclusive")
	assert.True(t, between[0].ObservedAt.Equal(start))
	assert.True(t, between[0].Price.Equal(decimal.RequireFromString("99.5")))
	assert.Equal(t, 7, between[0].WindowLen)
	assert.Equal(t, uint64(9), between[0].Frames)
	assert.True(t, between[1].Price.Equal(decimal.RequireFromString("101.25")))
	assert.False(t, between[1].CreatedAt.IsZero())

	recent, err := store.ListRecentSamples(ctx, symbol, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].ObservedAt.Equal(start.Add(2*time.Second)), "newest first")
}

func TestIntegrationAlertRoundTrip(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()
	symbol := testSymbol()
	firedAt := time.Now().UTC().Truncate(time.Millisecond)
	failure := "webhook: status 500"

	first, err := store.InsertAlert(ctx, AlertRecord{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		FiredAt:   firedAt,
		Price:     decimal.RequireFromString("106.5"),
		PctChange: decimal.RequireFromString("0.06"),
		Delta:     decimal.RequireFromString("0.05"),
		Direction: "up",
		Delivered: true,
	})
	require.NoError(t, err)
	assert.False(t, first.CreatedAt.IsZero())
	assert.Equal(t, []string{}, first.Channels)

	_, err = store.InsertAlert(ctx, AlertRecord{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		FiredAt:   firedAt.Add(time.Minute),
		Price:     decimal.RequireFromString("94"),
		PctChange: decimal.RequireFromString("-0.0612"),
		Delta:     decimal.RequireFromString("0.05"),
		Direction: "down",
		Channels:  []string{"webhook", "telegram"},
		Error:     &failure,
	})
	require.NoError(t, err)

	_, err = store.InsertAlert(ctx, AlertRecord{ID: first.ID, Symbol: symbol, FiredAt: firedAt})
	assert.Error(t, err, "ids are unique")

	recent, err := store.ListRecentAlerts(ctx, symbol, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "down", recent[0].Direction)
	assert.Equal(t, []string{"webhook", "telegram"}, recent[0].Channels)
	require.NotNil(t, recent[0].Error)
	assert.Equal(t, failure, *recent[0].Error)
	assert.False(t, recent[0].Delivered)
	assert.True(t, recent[0].PctChange.Equal(decimal.RequireFromString("-0.0612")))
	assert.Nil(t, recent[1].Error)
	assert.Equal(t, first.ID, recent[1].ID)

	between, err := store.ListAlertsBetween(ctx, symbol, firedAt, firedAt.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, between, 1)
	assert.True(t, between[0].FiredAt.Equal(firedAt))
	assert.True(t, between[0].Price.Equal(decimal.RequireFromString("106.5")))
}

func TestIntegrationAdvisoryLockIsExclusive(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()
	key := LockKey(testSymbol())

	unlock, acquired, err := store.TryAdvisoryLock(ctx, key)
	require.NoError(t, err)
	require.True(t, acquired)

	_, again, err := store.TryAdvisoryLock(ctx, key)
	require.NoError(t, err)
	assert.False(t, again, "a second session cannot take a held lock")

	unlock()

	unlock2, acquired, err := store.TryAdvisoryLock(ctx, key)
	require.NoError(t, err)
	assert.True(t, acquired)
	unlock2()
}
