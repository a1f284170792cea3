package repository

import (
	"context"
	"database/sql"
	"fmt"
	"symphony/internal/db/models/postgres/public/model"
	. "symphony/internal/db/models/postgres/public/table"
	"symphony/internal/domain"
	"time"

	. "github.com/go-jet/jet/v2/postgres"
)

type AdjustedPriceRepository interface {
	PriceHistoryRepository
	Add(*sql.Tx, []model.AdjustedPrice) error
	LatestDate(ctx context.Context, symbol string) (*time.Time, error)
}

func NewAdjustedPriceRepository(db *sql.DB, historyDepth int) AdjustedPriceRepository {
	return adjustedPriceRepositoryHandler{
		Db:           db,
		HistoryDepth: historyDepth,
	}
}

type adjustedPriceRepositoryHandler struct {
	Db           *sql.DB
	HistoryDepth int
}

func (h adjustedPriceRepositoryHandler) Add(tx *sql.Tx, adjPrices []model.AdjustedPrice) error {
	if len(adjPrices) == 0 {
		return nil
	}
	query := AdjustedPrice.
		INSERT(AdjustedPrice.MutableColumns).
		MODELS(adjPrices).
		ON_CONFLICT(
			AdjustedPrice.Symbol, AdjustedPrice.Date,
		).DO_UPDATE(
		SET(
			AdjustedPrice.Price.SET(AdjustedPrice.EXCLUDED.Price),
		),
	)

	_, err := query.Exec(tx)
	if err != nil {
		return fmt.Errorf("failed to add adjusted prices to db: %w", err)
	}

	return nil
}

// GetHistory reads the most recent closes on or before asOf. The query runs
// newest first so LIMIT keeps the right end of the series.
func (h adjustedPriceRepositoryHandler) GetHistory(ctx context.Context, symbol string, asOf time.Time, minPeriods int) ([]domain.AssetPrice, error) {
	symbol = domain.NormalizeTicker(symbol)
	limit := historyLimit(minPeriods, h.HistoryDepth)

	query := AdjustedPrice.
		SELECT(AdjustedPrice.AllColumns).
		WHERE(
			AND(
				AdjustedPrice.Symbol.EQ(String(symbol)),
				AdjustedPrice.Date.LT_EQ(DateT(asOf)),
			),
		).
		ORDER_BY(AdjustedPrice.Date.DESC()).
		LIMIT(int64(limit))

	result := []model.AdjustedPrice{}
	err := query.QueryContext(ctx, h.Db, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history for %s as of %s: %w", symbol, asOf.Format(time.DateOnly), err)
	}

	if len(result) < minPeriods {
		return nil, insufficient(symbol, asOf, minPeriods, len(result))
	}

	out := make([]domain.AssetPrice, len(result))
	for i, p := range result {
		out[len(result)-1-i] = domain.AssetPrice{
			Symbol: p.Symbol,
			Date:   p.Date,
			Price:  p.Price,
		}
	}

	return out, nil
}

func (h adjustedPriceRepositoryHandler) ListTradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	query := AdjustedPrice.
		SELECT(AdjustedPrice.Date).
		WHERE(
			AdjustedPrice.Date.BETWEEN(DateT(start), DateT(end)),
		).
		GROUP_BY(AdjustedPrice.Date).
		ORDER_BY(AdjustedPrice.Date.ASC())

	q, args := query.Sql()

	rows, err := h.Db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trading days: %w", err)
	}
	defer rows.Close()

	out := []time.Time{}
	for rows.Next() {
		var d time.Time
		err := rows.Scan(&d)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list trading days: %w", err)
	}

	return out, nil
}

// LatestDate is the newest stored close for symbol, or nil if there is none.
func (h adjustedPriceRepositoryHandler) LatestDate(ctx context.Context, symbol string) (*time.Time, error) {
	query := AdjustedPrice.
		SELECT(AdjustedPrice.AllColumns).
		WHERE(AdjustedPrice.Symbol.EQ(String(domain.NormalizeTicker(symbol)))).
		ORDER_BY(AdjustedPrice.Date.DESC()).
		LIMIT(1)

	result := []model.AdjustedPrice{}
	err := query.QueryContext(ctx, h.Db, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest price date for %s: %w", symbol, err)
	}
	if len(result) == 0 {
		return nil, nil
	}
	return &result[0].Date, nil
}
