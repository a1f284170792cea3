package repository

import (
	"context"
	"sort"
	"sync"
	"symphony/internal/domain"
	"symphony/internal/util"
	"time"

	"github.com/shopspring/decimal"
)

// PriceHistoryProvider returns daily closes for symbol, ascending by date,
// every entry on or before asOf. Implementations return at least minPeriods
// observations or a domain.InsufficientHistoryError.
type PriceHistoryProvider interface {
	GetHistory(ctx context.Context, symbol string, asOf time.Time, minPeriods int) ([]domain.AssetPrice, error)
}

// TradingCalendar lists the days prices exist for, used to pick evaluation
// dates for a date range.
type TradingCalendar interface {
	ListTradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error)
}

type PriceHistoryRepository interface {
	PriceHistoryProvider
	TradingCalendar
}

// historyLimit is how many of the most recent closes a provider hands back.
// Smoothed indicators use everything they are given, so the depth is fixed
// per provider instead of following each request.
func historyLimit(minPeriods, depth int) int {
	if minPeriods > depth {
		return minPeriods
	}
	return depth
}

func insufficient(symbol string, asOf time.Time, required, available int) error {
	return domain.InsufficientHistoryError{
		Symbol:    symbol,
		AsOf:      asOf,
		Required:  required,
		Available: available,
	}
}

// InMemoryPriceRepository serves prices from memory. It backs the csv price
// source and tests.
type InMemoryPriceRepository struct {
	mu           sync.RWMutex
	series       map[string][]domain.AssetPrice
	historyDepth int
}

func NewInMemoryPriceRepository(historyDepth int) *InMemoryPriceRepository {
	return &InMemoryPriceRepository{
		series:       map[string][]domain.AssetPrice{},
		historyDepth: historyDepth,
	}
}

// Add stores prices, replacing any existing close for the same symbol and
// day.
func (h *InMemoryPriceRepository) Add(prices ...domain.AssetPrice) {
	h.mu.Lock()
	defer h.mu.Unlock()

	touched := map[string]bool{}
	for _, p := range prices {
		symbol := domain.NormalizeTicker(p.Symbol)
		p.Symbol = symbol
		p.Date = util.DateOnly(p.Date)
		touched[symbol] = true

		replaced := false
		for i, existing := range h.series[symbol] {
			if existing.Date.Equal(p.Date) {
				h.series[symbol][i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			h.series[symbol] = append(h.series[symbol], p)
		}
	}

	for symbol := range touched {
		s := h.series[symbol]
		sort.Slice(s, func(i, j int) bool {
			return s[i].Date.Before(s[j].Date)
		})
	}
}

// AddSeries stores closes for symbol on consecutive weekdays ending at end.
func (h *InMemoryPriceRepository) AddSeries(symbol string, end time.Time, closes []float64) {
	days := make([]time.Time, 0, len(closes))
	d := util.DateOnly(end)
	for len(days) < len(closes) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			days = append(days, d)
		}
		d = d.AddDate(0, 0, -1)
	}

	prices := make([]domain.AssetPrice, 0, len(closes))
	for i, c := range closes {
		prices = append(prices, domain.AssetPrice{
			Symbol: symbol,
			Price:  decimal.NewFromFloat(c),
			Date:   days[len(days)-1-i],
		})
	}
	h.Add(prices...)
}

func (h *InMemoryPriceRepository) GetHistory(ctx context.Context, symbol string, asOf time.Time, minPeriods int) ([]domain.AssetPrice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	symbol = domain.NormalizeTicker(symbol)
	s := h.series[symbol]
	end := sort.Search(len(s), func(i int) bool {
		return !util.DateLte(s[i].Date, asOf)
	})
	if end < minPeriods {
		return nil, insufficient(symbol, asOf, minPeriods, end)
	}

	start := 0
	if h.historyDepth > 0 {
		if limit := historyLimit(minPeriods, h.historyDepth); end > limit {
			start = end - limit
		}
	}

	out := make([]domain.AssetPrice, end-start)
	copy(out, s[start:end])
	return out, nil
}

func (h *InMemoryPriceRepository) ListTradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := map[time.Time]bool{}
	for _, s := range h.series {
		for _, p := range s {
			if util.DateLte(start, p.Date) && util.DateLte(p.Date, end) {
				set[p.Date] = true
			}
		}
	}

	out := make([]time.Time, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Before(out[j])
	})
	return out, nil
}

func (h *InMemoryPriceRepository) Symbols() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.series))
	for symbol := range h.series {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}
