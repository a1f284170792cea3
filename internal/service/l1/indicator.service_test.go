package l1_service

import (
	"context"
	"errors"
	"symphony/internal/domain"
	"symphony/internal/repository"
	"symphony/internal/util"
	"testing"

	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

var rsiCloses = []float64{
	44.34, 44.09, 44.15, 43.61, 44.33,
	44.83, 45.10, 45.42, 45.84, 46.08,
	45.89, 46.03, 45.61, 46.28, 46.28,
}

func toDecimals(values []float64) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		out = append(out, decimal.NewFromFloat(v))
	}
	return out
}

func requireClose(t *testing.T, expected float64, actual decimal.Decimal, tolerance float64) {
	t.Helper()
	diff := actual.InexactFloat64() - expected
	if diff < 0 {
		diff = -diff
	}
	require.LessOrEqual(t, diff, tolerance, "expected %f, got %s", expected, actual.String())
}

func TestComputeIndicator_Rsi(t *testing.T) {
	t.Run("wilder smoothing golden value", func(t *testing.T) {
		value, err := ComputeIndicator(domain.IndicatorRsi, toDecimals(rsiCloses), 10)
		require.NoError(t, err)
		requireClose(t, 70.635370774, value, 1e-6)
	})

	t.Run("matches talib", func(t *testing.T) {
		value, err := ComputeIndicator(domain.IndicatorRsi, toDecimals(rsiCloses), 10)
		require.NoError(t, err)
		expected := talib.Rsi(rsiCloses, 10)
		requireClose(t, expected[len(expected)-1], value, 1e-6)

		value, err = ComputeIndicator(domain.IndicatorRsi, toDecimals(rsiCloses), 5)
		require.NoError(t, err)
		expected = talib.Rsi(rsiCloses, 5)
		requireClose(t, expected[len(expected)-1], value, 1e-6)
	})

	t.Run("exactly window+1 closes is the plain gain ratio", func(t *testing.T) {
		// 8 gains of 1, one of 0.5, one loss of 1.5
		closes := []float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 108.5, 107}
		value, err := ComputeIndicator(domain.IndicatorRsi, toDecimals(closes), 10)
		require.NoError(t, err)
		requireClose(t, 85, value, 1e-9)
	})

	t.Run("no losses is 100", func(t *testing.T) {
		value, err := ComputeIndicator(domain.IndicatorRsi, toDecimals([]float64{1, 2, 3, 4}), 3)
		require.NoError(t, err)
		require.True(t, value.Equal(decimal.NewFromInt(100)))
	})

	t.Run("not enough closes", func(t *testing.T) {
		_, err := ComputeIndicator(domain.IndicatorRsi, toDecimals(rsiCloses[:10]), 10)
		insufficientErr := domain.InsufficientHistoryError{}
		require.True(t, errors.As(err, &insufficientErr))
		require.Equal(t, 11, insufficientErr.Required)
		require.Equal(t, 10, insufficientErr.Available)
	})
}

func TestComputeIndicator_Averages(t *testing.T) {
	closes := toDecimals(rsiCloses)

	t.Run("moving average price matches talib", func(t *testing.T) {
		value, err := ComputeIndicator(domain.IndicatorMovingAveragePrice, closes, 5)
		require.NoError(t, err)
		expected := talib.Sma(rsiCloses, 5)
		requireClose(t, expected[len(expected)-1], value, 1e-9)
	})

	t.Run("current price", func(t *testing.T) {
		value, err := ComputeIndicator(domain.IndicatorCurrentPrice, closes, 0)
		require.NoError(t, err)
		require.True(t, value.Equal(decimal.RequireFromString("46.28")))
	})

	t.Run("cumulative return", func(t *testing.T) {
		value, err := ComputeIndicator(domain.IndicatorCumulativeReturn, toDecimals([]float64{100, 50, 80, 110}), 3)
		require.NoError(t, err)
		require.True(t, value.Equal(decimal.NewFromInt(10)), value.String())
	})

	t.Run("moving average return", func(t *testing.T) {
		// +10%, -10%
		value, err := ComputeIndicator(domain.IndicatorMovingAverageReturn, toDecimals([]float64{3, 100, 110, 99}), 2)
		require.NoError(t, err)
		require.True(t, value.IsZero(), value.String())
	})

	t.Run("stdev return matches gonum", func(t *testing.T) {
		returns := []float64{}
		for i := len(rsiCloses) - 10; i < len(rsiCloses); i++ {
			returns = append(returns, (rsiCloses[i]-rsiCloses[i-1])/rsiCloses[i-1]*100)
		}
		value, err := ComputeIndicator(domain.IndicatorStdevReturn, closes, 10)
		require.NoError(t, err)
		requireClose(t, stat.StdDev(returns, nil), value, 1e-9)
	})
}

func TestComputeIndicator_DomainErrors(t *testing.T) {
	closes := toDecimals(rsiCloses)
	for _, kind := range []domain.IndicatorKind{
		domain.IndicatorRsi,
		domain.IndicatorMovingAveragePrice,
		domain.IndicatorMovingAverageReturn,
		domain.IndicatorCumulativeReturn,
		domain.IndicatorStdevReturn,
	} {
		t.Run(string(kind)+" window 0", func(t *testing.T) {
			_, err := ComputeIndicator(kind, closes, 0)
			require.ErrorAs(t, err, &domain.IndicatorDomainError{})
		})
	}

	t.Run("stdev window 1", func(t *testing.T) {
		_, err := ComputeIndicator(domain.IndicatorStdevReturn, closes, 1)
		require.ErrorAs(t, err, &domain.IndicatorDomainError{})
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := ComputeIndicator(domain.IndicatorKind("macd"), closes, 3)
		require.ErrorAs(t, err, &domain.IndicatorDomainError{})
	})

	t.Run("zero close as divisor", func(t *testing.T) {
		_, err := ComputeIndicator(domain.IndicatorCumulativeReturn, toDecimals([]float64{0, 1, 2}), 2)
		require.ErrorAs(t, err, &domain.IndicatorDomainError{})
	})
}

func TestIndicatorService_Compute(t *testing.T) {
	ctx := context.Background()
	asOf := util.NewDate(2024, 3, 1)
	provider := repository.NewInMemoryPriceRepository(0)
	provider.AddSeries("QQQE", asOf, rsiCloses)

	t.Run("happy path", func(t *testing.T) {
		svc := NewIndicatorService(NewPriceCache(provider, 0))
		value, err := svc.Compute(ctx, domain.IndicatorCall{Kind: domain.IndicatorRsi, Symbol: " qqqe", Window: 10}, asOf)
		require.NoError(t, err)
		requireClose(t, 70.635370774, value, 1e-6)
	})

	t.Run("insufficient history names the symbol", func(t *testing.T) {
		svc := NewIndicatorService(NewPriceCache(provider, 0))
		_, err := svc.Compute(ctx, domain.IndicatorCall{Kind: domain.IndicatorMovingAveragePrice, Symbol: "QQQE", Window: 200}, asOf)
		insufficientErr := domain.InsufficientHistoryError{}
		require.True(t, errors.As(err, &insufficientErr))
		require.Equal(t, "QQQE", insufficientErr.Symbol)
		require.Equal(t, 200, insufficientErr.Required)
		require.Equal(t, 15, insufficientErr.Available)
	})

	t.Run("missing symbol", func(t *testing.T) {
		svc := NewIndicatorService(NewPriceCache(provider, 0))
		_, err := svc.Compute(ctx, domain.IndicatorCall{Kind: domain.IndicatorRsi, Window: 10}, asOf)
		require.ErrorAs(t, err, &domain.InvalidExpressionError{})
	})

	t.Run("window 0", func(t *testing.T) {
		svc := NewIndicatorService(NewPriceCache(provider, 0))
		_, err := svc.Compute(ctx, domain.IndicatorCall{Kind: domain.IndicatorRsi, Symbol: "QQQE"}, asOf)
		require.ErrorAs(t, err, &domain.IndicatorDomainError{})
	})
}
