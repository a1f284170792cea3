package internal

import (
	"context"
	"database/sql"
	"fmt"
	"symphony/internal/db/models/postgres/public/model"
	"symphony/internal/domain"
	"symphony/internal/logger"
	"symphony/internal/repository"
	"symphony/internal/util"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var DefaultIngestStart = util.NewDate(2018, 1, 1)

type IngestPricesInput struct {
	Symbols []string
	// Start is only used for symbols with nothing stored yet. Otherwise
	// ingest resumes the day after the latest stored close.
	Start      time.Time
	End        time.Time
	NumWorkers int
}

// IngestPrices pulls daily adjusted closes from yahoo and upserts them into
// adjusted_price, one transaction per symbol. A failing symbol does not stop
// the others.
func IngestPrices(
	ctx context.Context,
	db *sql.DB,
	source repository.YahooRepository,
	adjPricesRepository repository.AdjustedPriceRepository,
	in IngestPricesInput,
) error {
	if len(in.Symbols) == 0 {
		return fmt.Errorf("no symbols to ingest")
	}
	log := logger.FromContext(ctx)

	numWorkers := in.NumWorkers
	if numWorkers <= 0 {
		numWorkers = util.DefaultNumWorkers
	}

	var mu sync.Mutex
	errors := []error{}

	g := errgroup.Group{}
	g.SetLimit(numWorkers)
	for _, symbol := range in.Symbols {
		symbol := domain.NormalizeTicker(symbol)
		g.Go(func() error {
			n, err := ingestSymbol(ctx, db, source, adjPricesRepository, symbol, in.Start, in.End)
			if err != nil {
				err = fmt.Errorf("failed to ingest historical prices for %s: %w", symbol, err)
				log.Error(err)
				mu.Lock()
				errors = append(errors, err)
				mu.Unlock()
				return nil
			}
			log.Infof("added %d prices for %s", n, symbol)
			return nil
		})
	}
	g.Wait()

	if len(errors) > 0 {
		return fmt.Errorf("failed to update %d/%d prices. first err: %w", len(errors), len(in.Symbols), errors[0])
	}
	return nil
}

func ingestSymbol(
	ctx context.Context,
	db *sql.DB,
	source repository.YahooRepository,
	adjPricesRepository repository.AdjustedPriceRepository,
	symbol string,
	start, end time.Time,
) (int, error) {
	latest, err := adjPricesRepository.LatestDate(ctx, symbol)
	if err != nil {
		return 0, err
	}
	start = ingestStart(latest, start)
	if start.After(end) {
		return 0, nil
	}

	prices, err := source.ListPrices(ctx, symbol, start, end)
	if err != nil {
		return 0, err
	}
	models := newAdjustedPriceModels(prices, time.Now().UTC())
	if len(models) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := adjPricesRepository.Add(tx, models); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(models), nil
}

func ingestStart(latest *time.Time, start time.Time) time.Time {
	if start.IsZero() {
		start = DefaultIngestStart
	}
	if latest == nil {
		return util.DateOnly(start)
	}
	resume := util.DateOnly(*latest).AddDate(0, 0, 1)
	if resume.After(start) {
		return resume
	}
	return util.DateOnly(start)
}

// newAdjustedPriceModels keeps the last close per day, which matters when
// yahoo returns an intraday bar for today next to the daily one.
func newAdjustedPriceModels(prices []domain.AssetPrice, now time.Time) []model.AdjustedPrice {
	byDate := map[time.Time]int{}
	out := []model.AdjustedPrice{}
	for _, p := range prices {
		if !p.Price.IsPositive() {
			continue
		}
		date := util.DateOnly(p.Date)
		m := model.AdjustedPrice{
			AdjustedPriceID: uuid.New(),
			Symbol:          domain.NormalizeTicker(p.Symbol),
			Date:            date,
			Price:           p.Price,
			CreatedAt:       now,
		}
		if i, ok := byDate[date]; ok {
			out[i] = m
			continue
		}
		byDate[date] = len(out)
		out = append(out, m)
	}
	return out
}
