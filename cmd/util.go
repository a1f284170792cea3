package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"symphony/api"
	"symphony/internal/repository"
	l1_service "symphony/internal/service/l1"
	l2_service "symphony/internal/service/l2"
	l3_service "symphony/internal/service/l3"
	"symphony/internal/util"
	"time"

	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

type Dependencies struct {
	Config          *util.Config
	Db              *sql.DB
	PriceRepository repository.PriceHistoryRepository
	StrategyService l3_service.StrategyService
	ApiHandler      *api.ApiHandler
}

func CloseDependencies(deps *Dependencies) {
	if deps.Db == nil {
		return
	}
	if err := deps.Db.Close(); err != nil {
		zap.S().Errorf("failed to close db: %v", err)
	}
}

func InitializeDependencies() (*Dependencies, error) {
	config, err := util.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewDependencies(config)
}

// NewDependencies wires the price source named in the config into the
// evaluation services.
func NewDependencies(config *util.Config) (*Dependencies, error) {
	deps := &Dependencies{Config: config}

	depth := config.Prices.HistoryDepth
	switch config.Prices.Source {
	case util.PriceSourcePostgres:
		db, err := OpenDb(config)
		if err != nil {
			return nil, err
		}
		deps.Db = db
		deps.PriceRepository = repository.NewAdjustedPriceRepository(db, depth)
	case util.PriceSourceAlpaca:
		deps.PriceRepository = repository.NewAlpacaRepository(
			config.Alpaca.ApiKey,
			config.Alpaca.ApiSecret,
			config.Alpaca.Endpoint,
			depth,
		)
	case util.PriceSourceYahoo:
		deps.PriceRepository = yahooWithCalendar{
			YahooRepository: repository.NewYahooRepository(depth),
			calendar:        repository.NewAlpacaRepository(config.Alpaca.ApiKey, config.Alpaca.ApiSecret, config.Alpaca.Endpoint, depth),
		}
	case util.PriceSourceCsv:
		csvRepository, err := repository.NewCsvPriceRepository(config.Prices.CsvPath, depth)
		if err != nil {
			return nil, err
		}
		deps.PriceRepository = csvRepository
	default:
		return nil, fmt.Errorf("unknown price source %q", config.Prices.Source)
	}

	evaluator := l2_service.NewSymphonyEvaluator(
		l1_service.NewPriceService(deps.PriceRepository, depth),
		l2_service.EvaluatorOptions{
			Parallelism:    config.Evaluation.Parallelism,
			PreloadWorkers: config.Evaluation.NumWorkers,
		},
	)
	deps.StrategyService = l3_service.NewStrategyService(
		evaluator,
		deps.PriceRepository,
		config.Evaluation.NumWorkers,
	)
	deps.ApiHandler = &api.ApiHandler{
		Db:               deps.Db,
		StrategyService:  deps.StrategyService,
		JwtDecodeToken:   config.Jwt,
		DefaultPrecision: config.Evaluation.Precision,
	}

	return deps, nil
}

func OpenDb(config *util.Config) (*sql.DB, error) {
	dbConn, err := sql.Open("postgres", config.Db.ToConnectionStr())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	return dbConn, nil
}

// yahoo has no calendar endpoint, so trading days come from alpaca
type yahooWithCalendar struct {
	repository.YahooRepository
	calendar repository.TradingCalendar
}

func (y yahooWithCalendar) ListTradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	return y.calendar.ListTradingDays(ctx, start, end)
}
