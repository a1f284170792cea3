package repository

import (
	"fmt"
	"io"
	"os"
	"symphony/internal/domain"
	"symphony/internal/util"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

type csvPriceRow struct {
	Date   string `csv:"date"`
	Symbol string `csv:"symbol"`
	// kept as text so closes load without float rounding
	Price string `csv:"price"`
}

// NewCsvPriceRepository loads a date,symbol,price file into memory.
func NewCsvPriceRepository(path string, historyDepth int) (*InMemoryPriceRepository, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price file %s: %w", path, err)
	}
	defer f.Close()

	repo := NewInMemoryPriceRepository(historyDepth)
	if err := LoadCsvPrices(f, repo); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return repo, nil
}

func LoadCsvPrices(r io.Reader, repo *InMemoryPriceRepository) error {
	rows := []csvPriceRow{}
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return fmt.Errorf("failed to parse price csv: %w", err)
	}

	prices := make([]domain.AssetPrice, 0, len(rows))
	for i, row := range rows {
		date, err := util.ParseDate(row.Date)
		if err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		if domain.NormalizeTicker(row.Symbol) == "" {
			return fmt.Errorf("row %d: missing symbol", i+1)
		}
		price, err := decimal.NewFromString(row.Price)
		if err != nil {
			return fmt.Errorf("row %d: invalid price %q: %w", i+1, row.Price, err)
		}
		prices = append(prices, domain.AssetPrice{
			Symbol: row.Symbol,
			Price:  price,
			Date:   date,
		})
	}

	repo.Add(prices...)
	return nil
}

// WriteCsvPrices is the inverse of LoadCsvPrices.
func WriteCsvPrices(w io.Writer, prices []domain.AssetPrice) error {
	rows := make([]csvPriceRow, 0, len(prices))
	for _, p := range prices {
		rows = append(rows, csvPriceRow{
			Date:   p.Date.Format("2006-01-02"),
			Symbol: p.Symbol,
			Price:  p.Price.String(),
		})
	}
	return gocsv.Marshal(rows, w)
}
