package repository

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"symphony/internal/domain"
	"symphony/internal/util"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const samplePrices = `date,symbol,price
2024-01-02,spy,470.10
2024-01-03,SPY,468.5
2024-01-04,SPY,467.25
2024-01-05,SPY,469
2024-01-03,QQQ,401.00
2024-01-04,QQQ,399.75
`

func TestInMemoryPriceRepository_GetHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		repo := NewInMemoryPriceRepository(0)
		require.NoError(t, LoadCsvPrices(strings.NewReader(samplePrices), repo))

		history, err := repo.GetHistory(ctx, "spy", util.NewDate(2024, 1, 4), 2)
		require.NoError(t, err)
		require.Equal(t, "", cmp.Diff([]domain.AssetPrice{
			{Symbol: "SPY", Price: decimal.RequireFromString("470.10"), Date: util.NewDate(2024, 1, 2)},
			{Symbol: "SPY", Price: decimal.RequireFromString("468.5"), Date: util.NewDate(2024, 1, 3)},
			{Symbol: "SPY", Price: decimal.RequireFromString("467.25"), Date: util.NewDate(2024, 1, 4)},
		}, history))
	})

	t.Run("as of a non trading day uses the last close before it", func(t *testing.T) {
		repo := NewInMemoryPriceRepository(0)
		require.NoError(t, LoadCsvPrices(strings.NewReader(samplePrices), repo))

		history, err := repo.GetHistory(ctx, "SPY", util.NewDate(2024, 1, 7), 1)
		require.NoError(t, err)
		require.Equal(t, util.NewDate(2024, 1, 5), history[len(history)-1].Date)
	})

	t.Run("history depth keeps the most recent closes", func(t *testing.T) {
		repo := NewInMemoryPriceRepository(2)
		require.NoError(t, LoadCsvPrices(strings.NewReader(samplePrices), repo))

		history, err := repo.GetHistory(ctx, "SPY", util.NewDate(2024, 1, 5), 1)
		require.NoError(t, err)
		require.Equal(t, "", cmp.Diff([]time.Time{
			util.NewDate(2024, 1, 4),
			util.NewDate(2024, 1, 5),
		}, []time.Time{history[0].Date, history[1].Date}))

		// a longer request wins over the depth
		history, err = repo.GetHistory(ctx, "SPY", util.NewDate(2024, 1, 5), 3)
		require.NoError(t, err)
		require.Len(t, history, 3)
	})

	t.Run("not enough history", func(t *testing.T) {
		repo := NewInMemoryPriceRepository(0)
		require.NoError(t, LoadCsvPrices(strings.NewReader(samplePrices), repo))

		_, err := repo.GetHistory(ctx, "QQQ", util.NewDate(2024, 1, 5), 3)
		insufficientErr := domain.InsufficientHistoryError{}
		require.True(t, errors.As(err, &insufficientErr))
		require.Equal(t, "QQQ", insufficientErr.Symbol)
		require.Equal(t, 3, insufficientErr.Required)
		require.Equal(t, 2, insufficientErr.Available)
	})

	t.Run("unknown symbol", func(t *testing.T) {
		repo := NewInMemoryPriceRepository(0)
		_, err := repo.GetHistory(ctx, "NOPE", util.NewDate(2024, 1, 5), 1)
		require.ErrorAs(t, err, &domain.InsufficientHistoryError{})
	})

	t.Run("add replaces an existing close", func(t *testing.T) {
		repo := NewInMemoryPriceRepository(0)
		repo.Add(domain.AssetPrice{Symbol: "SPY", Price: decimal.NewFromInt(1), Date: util.NewDate(2024, 1, 2)})
		repo.Add(domain.AssetPrice{Symbol: "spy", Price: decimal.NewFromInt(2), Date: time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC)})

		history, err := repo.GetHistory(ctx, "SPY", util.NewDate(2024, 1, 2), 1)
		require.NoError(t, err)
		require.Len(t, history, 1)
		require.True(t, history[0].Price.Equal(decimal.NewFromInt(2)))
	})
}

func TestInMemoryPriceRepository_AddSeries(t *testing.T) {
	repo := NewInMemoryPriceRepository(0)
	// 2024-01-08 is a monday
	repo.AddSeries("TQQQ", util.NewDate(2024, 1, 8), []float64{1, 2, 3})

	history, err := repo.GetHistory(context.Background(), "TQQQ", util.NewDate(2024, 1, 8), 3)
	require.NoError(t, err)
	require.Equal(t, "", cmp.Diff([]time.Time{
		util.NewDate(2024, 1, 4),
		util.NewDate(2024, 1, 5),
		util.NewDate(2024, 1, 8),
	}, []time.Time{history[0].Date, history[1].Date, history[2].Date}))
	require.True(t, history[2].Price.Equal(decimal.NewFromInt(3)))
}

func TestInMemoryPriceRepository_ListTradingDays(t *testing.T) {
	repo := NewInMemoryPriceRepository(0)
	require.NoError(t, LoadCsvPrices(strings.NewReader(samplePrices), repo))

	days, err := repo.ListTradingDays(context.Background(), util.NewDate(2024, 1, 3), util.NewDate(2024, 1, 4))
	require.NoError(t, err)
	require.Equal(t, "", cmp.Diff([]time.Time{
		util.NewDate(2024, 1, 3),
		util.NewDate(2024, 1, 4),
	}, days))

	require.Equal(t, []string{"QQQ", "SPY"}, repo.Symbols())
}

func TestLoadCsvPrices(t *testing.T) {
	t.Run("bad price", func(t *testing.T) {
		err := LoadCsvPrices(strings.NewReader("date,symbol,price\n2024-01-02,SPY,abc\n"), NewInMemoryPriceRepository(0))
		require.Error(t, err)
		require.Contains(t, err.Error(), "row 1")
	})

	t.Run("bad date", func(t *testing.T) {
		err := LoadCsvPrices(strings.NewReader("date,symbol,price\n01/02/2024,SPY,1\n"), NewInMemoryPriceRepository(0))
		require.Error(t, err)
	})

	t.Run("round trip", func(t *testing.T) {
		repo := NewInMemoryPriceRepository(0)
		require.NoError(t, LoadCsvPrices(strings.NewReader(samplePrices), repo))
		history, err := repo.GetHistory(context.Background(), "SPY", util.NewDate(2024, 1, 5), 4)
		require.NoError(t, err)

		buf := &bytes.Buffer{}
		require.NoError(t, WriteCsvPrices(buf, history))

		reloaded := NewInMemoryPriceRepository(0)
		require.NoError(t, LoadCsvPrices(buf, reloaded))
		again, err := reloaded.GetHistory(context.Background(), "SPY", util.NewDate(2024, 1, 5), 4)
		require.NoError(t, err)
		require.Equal(t, "", cmp.Diff(history, again))
	})
}

func TestHistoryLimit(t *testing.T) {
	require.Equal(t, 250, historyLimit(11, 250))
	require.Equal(t, 300, historyLimit(300, 250))
	require.Equal(t, 5, historyLimit(5, 0))
}
