package repository

import (
	"context"
	"fmt"
	"symphony/internal/domain"
	"symphony/internal/logger"
	"symphony/internal/util"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// AlpacaRepository reads split and dividend adjusted daily bars from the
// alpaca market data api.
type AlpacaRepository interface {
	PriceHistoryRepository
	GetLatestPrices(ctx context.Context, symbols []string) (map[string]domain.AssetPrice, error)
}

func NewAlpacaRepository(apiKey, apiSecret string, endpoint string, historyDepth int) AlpacaRepository {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:     apiKey,
		APISecret:  apiSecret,
		BaseURL:    endpoint,
		RetryLimit: 3,
	})

	mdClient := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})

	return &alpacaRepositoryHandler{
		Client:       client,
		MdClient:     mdClient,
		HistoryDepth: historyDepth,
	}
}

type alpacaRepositoryHandler struct {
	Client       *alpaca.Client
	MdClient     *marketdata.Client
	HistoryDepth int
}

// calendarDaysFor over-fetches so that limit trading days fit in the range
// even around holidays.
func calendarDaysFor(limit int) int {
	return limit*7/5 + 14
}

func (h alpacaRepositoryHandler) GetHistory(ctx context.Context, symbol string, asOf time.Time, minPeriods int) ([]domain.AssetPrice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)

	symbol = domain.NormalizeTicker(symbol)
	limit := historyLimit(minPeriods, h.HistoryDepth)
	end := util.DateOnly(asOf).AddDate(0, 0, 1)
	start := end.AddDate(0, 0, -calendarDaysFor(limit))

	bars, err := h.MdClient.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: marketdata.All,
		Start:      start,
		End:        end,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get alpaca bars for %s: %w", symbol, err)
	}

	out := make([]domain.AssetPrice, 0, len(bars))
	for _, bar := range bars {
		date := util.DateOnly(bar.Timestamp.UTC())
		if !util.DateLte(date, asOf) {
			continue
		}
		out = append(out, domain.AssetPrice{
			Symbol: symbol,
			Price:  decimal.NewFromFloat(bar.Close),
			Date:   date,
		})
	}
	log.Debugf("alpaca returned %d bars for %s between %s and %s", len(out), symbol, start.Format(time.DateOnly), end.Format(time.DateOnly))

	if len(out) < minPeriods {
		return nil, insufficient(symbol, asOf, minPeriods, len(out))
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}

	return out, nil
}

func (h alpacaRepositoryHandler) ListTradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	days, err := h.Client.GetCalendar(alpaca.GetCalendarRequest{
		Start: start,
		End:   end,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get alpaca calendar: %w", err)
	}

	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		date, err := util.ParseDate(d.Date)
		if err != nil {
			return nil, err
		}
		out = append(out, date)
	}

	return out, nil
}

func (h alpacaRepositoryHandler) GetLatestPrices(ctx context.Context, symbols []string) (map[string]domain.AssetPrice, error) {
	if len(symbols) == 0 {
		return map[string]domain.AssetPrice{}, nil
	}
	results, err := h.MdClient.GetLatestBars(symbols, marketdata.GetLatestBarRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to get latest alpaca bars: %w", err)
	}
	out := map[string]domain.AssetPrice{}
	for symbol, result := range results {
		out[symbol] = domain.AssetPrice{
			Symbol: symbol,
			Price:  decimal.NewFromFloat(result.Close),
			Date:   util.DateOnly(result.Timestamp.UTC()),
		}
		if out[symbol].Price.IsZero() {
			return nil, fmt.Errorf("failed to get price for %s: got 0 price", symbol)
		}
	}

	return out, nil
}
