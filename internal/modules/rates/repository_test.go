package rates

import (
	"context"
	"testing"
	"time"

	testingpkg "github.com/aristath/atelier/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	db, cleanup := testingpkg.NewTestDB(t, "rates")
	t.Cleanup(cleanup)
	return NewRepository(db.Conn(), zerolog.New(nil).Level(zerolog.Disabled))
}

func snapshot(goldDate, exchangeDate string, usd int64, searchedAt time.Time) *Snapshot {
	return &Snapshot{
		GoldBaseDate:     goldDate,
		Gold24K:          decimal.NewFromInt(100000),
		Gold18K:          decimal.NewFromInt(75000),
		Gold14K:          decimal.NewFromInt(58500),
		Gold10K:          decimal.NewFromInt(41700),
		ExchangeBaseDate: exchangeDate,
		USD:              decimal.NewFromInt(usd),
		JPY:              decimal.RequireFromString("912.5"),
		KRW:              decimal.NewFromInt(1),
		SearchedAt:       searchedAt,
	}
}

func TestRepository_LatestEmpty(t *testing.T) {
	repo := newTestRepository(t)

	snap, err := repo.Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestRepository_InsertAndLatest(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Unix(1704420000, 0)

	_, err := repo.Insert(ctx, snapshot("20240104", "20240104", 1300, base))
	require.NoError(t, err)
	id, err := repo.Insert(ctx, snapshot("20240105", "20240105", 1320, base.Add(24*time.Hour)))
	require.NoError(t, err)

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, id, latest.ID)
	assert.Equal(t, "20240105", latest.ExchangeBaseDate)
	assert.True(t, latest.USD.Equal(decimal.NewFromInt(1320)))
	assert.True(t, latest.JPY.Equal(decimal.RequireFromString("912.5")))
	assert.True(t, latest.HasGold())
	assert.True(t, latest.HasExchange())
}

func TestRepository_LatestForDate(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Unix(1704420000, 0)

	_, err := repo.Insert(ctx, snapshot("20240103", "20240104", 1300, base))
	require.NoError(t, err)
	_, err = repo.Insert(ctx, snapshot("20240105", "20240108", 1320, base.Add(72*time.Hour)))
	require.NoError(t, err)

	snap, err := repo.LatestForExchangeDate(ctx, "20240106")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "20240104", snap.ExchangeBaseDate)

	snap, err = repo.LatestForGoldDate(ctx, "20240106")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "20240105", snap.GoldBaseDate)

	snap, err = repo.LatestForExchangeDate(ctx, "20240101")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestRepository_MissingHalfIsNotServed(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	s := snapshot("", "20240105", 1320, time.Unix(1704420000, 0))
	s.Gold24K = decimal.Zero
	_, err := repo.Insert(ctx, s)
	require.NoError(t, err)

	snap, err := repo.LatestForGoldDate(ctx, "20240131")
	require.NoError(t, err)
	assert.Nil(t, snap)

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.False(t, latest.HasGold())
	assert.True(t, latest.HasExchange())
}

func TestRepository_History(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Unix(1704420000, 0)

	for i := 0; i < 3; i++ {
		_, err := repo.Insert(ctx, snapshot("20240105", "20240105", int64(1300+i), base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	history, err := repo.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].USD.Equal(decimal.NewFromInt(1302)))
	assert.True(t, history[1].USD.Equal(decimal.NewFromInt(1301)))
}
