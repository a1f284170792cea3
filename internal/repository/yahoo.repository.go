package repository

import (
	"context"
	"fmt"
	"symphony/internal/domain"
	"symphony/internal/util"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
)

// YahooRepository reads adjusted daily closes from yahoo finance. It is the
// source for price ingest and can serve evaluations directly.
type YahooRepository interface {
	PriceHistoryProvider
	ListPrices(ctx context.Context, symbol string, start, end time.Time) ([]domain.AssetPrice, error)
}

func NewYahooRepository(historyDepth int) YahooRepository {
	return yahooRepositoryHandler{
		HistoryDepth: historyDepth,
	}
}

type yahooRepositoryHandler struct {
	HistoryDepth int
}

func (h yahooRepositoryHandler) ListPrices(ctx context.Context, symbol string, start, end time.Time) ([]domain.AssetPrice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = domain.NormalizeTicker(symbol)
	params := &chart.Params{
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Symbol:   symbol,
		Interval: datetime.OneDay,
	}
	iter := chart.Get(params)

	out := []domain.AssetPrice{}
	for iter.Next() {
		out = append(out, domain.AssetPrice{
			Symbol: symbol,
			Date:   util.DateOnly(time.Unix(int64(iter.Bar().Timestamp), 0).UTC()),
			Price:  iter.Bar().AdjClose,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to get prices for %s: %w", symbol, err)
	}

	return out, nil
}

func (h yahooRepositoryHandler) GetHistory(ctx context.Context, symbol string, asOf time.Time, minPeriods int) ([]domain.AssetPrice, error) {
	limit := historyLimit(minPeriods, h.HistoryDepth)
	end := util.DateOnly(asOf).AddDate(0, 0, 1)
	start := end.AddDate(0, 0, -calendarDaysFor(limit))

	prices, err := h.ListPrices(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}

	out := make([]domain.AssetPrice, 0, len(prices))
	for _, p := range prices {
		if util.DateLte(p.Date, asOf) {
			out = append(out, p)
		}
	}
	if len(out) < minPeriods {
		return nil, insufficient(domain.NormalizeTicker(symbol), asOf, minPeriods, len(out))
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}

	return out, nil
}
