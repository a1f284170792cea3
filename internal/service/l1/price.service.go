package l1_service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"symphony/internal/domain"
	"symphony/internal/logger"
	"symphony/internal/repository"
	"symphony/internal/util"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

/**

one PriceCache lives for exactly one evaluation. it asks the provider for
each symbol once, keeps the series, and answers every later request for
that symbol from memory unless the request needs a longer window than
what was fetched.

every caller sees the same tail of the series (max(required, depth) bars)
so smoothed indicators don't depend on which request hit the provider
first.

*/

type PriceService interface {
	NewPriceCache() *PriceCache
}

type priceServiceHandler struct {
	Provider     repository.PriceHistoryProvider
	HistoryDepth int
}

func NewPriceService(provider repository.PriceHistoryProvider, historyDepth int) PriceService {
	if historyDepth <= 0 {
		historyDepth = util.DefaultHistoryDepth
	}
	return priceServiceHandler{
		Provider:     provider,
		HistoryDepth: historyDepth,
	}
}

func (h priceServiceHandler) NewPriceCache() *PriceCache {
	return NewPriceCache(h.Provider, h.HistoryDepth)
}

type cachedSeries struct {
	series    []domain.AssetPrice
	requested int
}

type PriceCache struct {
	provider     repository.PriceHistoryProvider
	historyDepth int

	mu      sync.RWMutex
	entries map[string]*cachedSeries
	group   singleflight.Group
	fetches int
}

func NewPriceCache(provider repository.PriceHistoryProvider, historyDepth int) *PriceCache {
	if historyDepth <= 0 {
		historyDepth = util.DefaultHistoryDepth
	}
	return &PriceCache{
		provider:     provider,
		historyDepth: historyDepth,
		entries:      map[string]*cachedSeries{},
	}
}

func cacheKey(symbol string, asOf time.Time) string {
	return symbol + "|" + asOf.Format(time.DateOnly)
}

func (pc *PriceCache) window(required int) int {
	if required > pc.historyDepth {
		return required
	}
	return pc.historyDepth
}

func (pc *PriceCache) lookup(key string, required int) ([]domain.AssetPrice, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	entry, ok := pc.entries[key]
	if !ok || len(entry.series) < required {
		return nil, false
	}
	// a short series fetched for an equal or larger request is all the
	// history there is; don't refetch
	if len(entry.series) < pc.window(required) && entry.requested < pc.window(required) {
		return nil, false
	}
	return tail(entry.series, pc.window(required)), true
}

func (pc *PriceCache) store(key string, series []domain.AssetPrice, requested int) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.fetches++
	if existing, ok := pc.entries[key]; ok && len(existing.series) > len(series) {
		return
	}
	pc.entries[key] = &cachedSeries{
		series:    series,
		requested: requested,
	}
}

// Fetches is the number of series loaded from the provider so far.
func (pc *PriceCache) Fetches() int {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.fetches
}

// GetHistory returns at least required closes for symbol ending on or
// before asOf, ascending by date. The slice is shared; callers must not
// modify it.
func (pc *PriceCache) GetHistory(ctx context.Context, symbol string, asOf time.Time, required int) ([]domain.AssetPrice, error) {
	if required < 1 {
		required = 1
	}
	symbol = domain.NormalizeTicker(symbol)
	key := cacheKey(symbol, asOf)

	if series, ok := pc.lookup(key, required); ok {
		return series, nil
	}

	want := pc.window(required)
	v, err, _ := pc.group.Do(fmt.Sprintf("%s|%d", key, required), func() (interface{}, error) {
		if series, ok := pc.lookup(key, required); ok {
			return series, nil
		}
		series, err := pc.provider.GetHistory(ctx, symbol, asOf, want)
		if err != nil {
			// providers may report the shortfall against want; what matters
			// to the caller is whether required can be met
			insufficientErr := domain.InsufficientHistoryError{}
			if errors.As(err, &insufficientErr) {
				if insufficientErr.Available < required {
					return nil, domain.InsufficientHistoryError{
						Symbol:    symbol,
						AsOf:      asOf,
						Required:  required,
						Available: insufficientErr.Available,
					}
				}
				series, err = pc.provider.GetHistory(ctx, symbol, asOf, required)
			}
			if err != nil {
				return nil, err
			}
		}
		series, err = validateHistory(symbol, asOf, series)
		if err != nil {
			return nil, err
		}
		pc.store(key, series, want)
		return series, nil
	})
	if err != nil {
		return nil, err
	}

	series := v.([]domain.AssetPrice)
	if len(series) < required {
		return nil, domain.InsufficientHistoryError{
			Symbol:    symbol,
			AsOf:      asOf,
			Required:  required,
			Available: len(series),
		}
	}
	return tail(series, pc.window(required)), nil
}

// Preload fetches symbols concurrently so the evaluation itself mostly reads
// from memory. It is best effort: a failed fetch is logged and left for the
// evaluation to retry, so symbols that end up unused never fail it. Only a
// cancelled ctx is returned.
func (pc *PriceCache) Preload(ctx context.Context, symbols []string, asOf time.Time, required int, numWorkers int) error {
	profile, _ := domain.GetProfile(ctx)
	_, endSpan := profile.StartNewSpan("preloading price history")
	defer endSpan()

	log := logger.FromContext(ctx)

	g := errgroup.Group{}
	if numWorkers > 0 {
		g.SetLimit(numWorkers)
	}
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if _, err := pc.GetHistory(ctx, symbol, asOf, required); err != nil {
				log.Debugf("skipping preload of %s: %s", symbol, err.Error())
			}
			return nil
		})
	}
	g.Wait()
	return ctx.Err()
}

// validateHistory enforces the provider contract: ascending dates, one close
// per day, nothing after asOf.
func validateHistory(symbol string, asOf time.Time, series []domain.AssetPrice) ([]domain.AssetPrice, error) {
	out := make([]domain.AssetPrice, 0, len(series))
	for _, p := range series {
		if !util.DateLte(p.Date, asOf) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	for i := 1; i < len(out); i++ {
		if out[i].Date.Format(time.DateOnly) == out[i-1].Date.Format(time.DateOnly) {
			return nil, fmt.Errorf("price history for %s has two closes on %s", symbol, out[i].Date.Format(time.DateOnly))
		}
	}
	return out, nil
}

func tail(series []domain.AssetPrice, n int) []domain.AssetPrice {
	if len(series) <= n {
		return series
	}
	return series[len(series)-n:]
}
