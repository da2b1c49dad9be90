package usecase

import (
	"context"
	"testing"
	"time"

	"ParityBot/internal/domain/models"
	drepo "ParityBot/internal/domain/repository"
	applogger "ParityBot/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryLoaderCachesFetchedRanges(t *testing.T) {
	primary, secondary := roundTripSeries(), trendSeries(150)
	src := newFakeSource(map[drepo.Timeframe][]models.Candle{drepo.TF1m: primary, drepo.TF3m: secondary})
	store := &memStore{fakeSource: newFakeSource(map[drepo.Timeframe][]models.Candle{}), stored: map[drepo.Timeframe]int{}}
	loader := NewHistoryLoader(src, store, applogger.Nop())

	pw := Window{Timeframe: drepo.TF1m, From: start, To: start.Add(50 * time.Minute)}
	sw := Window{Timeframe: drepo.TF3m, From: start.Add(-180 * time.Minute), To: start}

	p, s, err := loader.Load(context.Background(), "BTCUSDT", pw, sw)
	require.NoError(t, err)
	assert.Len(t, p, 50)
	assert.Len(t, s, 60)
	assert.Equal(t, 50, store.stored[drepo.TF1m])
	assert.Equal(t, 1, src.count(drepo.TF1m))

	// Second load is served from the store.
	p, _, err = loader.Load(context.Background(), "BTCUSDT", pw, sw)
	require.NoError(t, err)
	assert.Len(t, p, 50)
	assert.Equal(t, 1, src.count(drepo.TF1m))
	assert.Equal(t, 1, src.count(drepo.TF3m))
}

func TestHistoryLoaderWithoutStore(t *testing.T) {
	src := newFakeSource(map[drepo.Timeframe][]models.Candle{drepo.TF1m: roundTripSeries()})
	loader := NewHistoryLoader(src, nil, applogger.Nop())
	p, s, err := loader.Load(context.Background(), "BTCUSDT",
		Window{Timeframe: drepo.TF1m, From: start, To: start.Add(10 * time.Minute)},
		Window{Timeframe: drepo.TF3m, From: start, To: start.Add(10 * time.Minute)},
	)
	require.NoError(t, err)
	assert.Len(t, p, 10)
	assert.Empty(t, s)
}
