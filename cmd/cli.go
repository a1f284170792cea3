package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"symphony/internal"
	"symphony/internal/domain"
	"symphony/internal/logger"
	"symphony/internal/repository"
	l3_service "symphony/internal/service/l3"
	"symphony/internal/util"
	"time"

	"github.com/spf13/cobra"
)

// ReadStrategyFile parses a strategy tree from a JSON or YAML file, picked
// by extension.
func ReadStrategyFile(path string) (domain.Expression, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return domain.ParseExpressionYaml(raw)
	}
	return domain.ParseExpressionJson(raw)
}

func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "symphony",
		Short:         "Evaluate symphony strategy trees into target allocations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newEvaluateCommand(),
		newHistoryCommand(),
		newIngestCommand(),
	)
	return root
}

func withDependencies(run func(ctx context.Context, deps *Dependencies, args []string) error) func(*cobra.Command, []string) error {
	return func(c *cobra.Command, args []string) error {
		deps, err := InitializeDependencies()
		if err != nil {
			return err
		}
		defer CloseDependencies(deps)

		ctx := logger.NewContext(c.Context(), logger.New())
		return run(ctx, deps, args)
	}
}

func newEvaluateCommand() *cobra.Command {
	var (
		asOf      string
		precision int
		trace     bool
	)
	c := &cobra.Command{
		Use:   "evaluate <strategy file>",
		Short: "Evaluate a strategy on one date",
		Args:  cobra.ExactArgs(1),
	}
	c.Flags().StringVar(&asOf, "as-of", "", "evaluation date (YYYY-MM-DD), defaults to today")
	c.Flags().IntVar(&precision, "precision", -1, "decimal places per weight, defaults to the config")
	c.Flags().BoolVar(&trace, "trace", false, "print indicator values and decisions")

	c.RunE = withDependencies(func(ctx context.Context, deps *Dependencies, args []string) error {
		tree, err := ReadStrategyFile(args[0])
		if err != nil {
			return err
		}
		date := util.DateOnly(time.Now().UTC())
		if asOf != "" {
			date, err = util.ParseDate(asOf)
			if err != nil {
				return err
			}
		}
		if precision < 0 {
			precision = deps.Config.Evaluation.Precision
		}

		result, err := deps.StrategyService.EvaluateStrategy(ctx, l3_service.EvaluateStrategyInput{
			Tree:      tree,
			AsOf:      date,
			Precision: precision,
			Trace:     trace,
		})
		if err != nil {
			return err
		}

		out := map[string]interface{}{
			"asOf":       date.Format(time.DateOnly),
			"allocation": result.Allocation,
			"stats":      result.Stats,
		}
		if trace {
			out["trace"] = result.Trace
		}
		internal.Pprint(out)
		return nil
	})
	return c
}

func newHistoryCommand() *cobra.Command {
	var (
		start     string
		end       string
		interval  string
		precision int
	)
	c := &cobra.Command{
		Use:   "history <strategy file>",
		Short: "Evaluate a strategy on every sampled trading day in a range",
		Args:  cobra.ExactArgs(1),
	}
	c.Flags().StringVar(&start, "start", "", "first date (YYYY-MM-DD)")
	c.Flags().StringVar(&end, "end", "", "last date (YYYY-MM-DD)")
	c.Flags().StringVar(&interval, "interval", "daily", "daily, weekly or monthly")
	c.Flags().IntVar(&precision, "precision", -1, "decimal places per weight, defaults to the config")
	c.MarkFlagRequired("start")
	c.MarkFlagRequired("end")

	c.RunE = withDependencies(func(ctx context.Context, deps *Dependencies, args []string) error {
		tree, err := ReadStrategyFile(args[0])
		if err != nil {
			return err
		}
		startDate, err := util.ParseDate(start)
		if err != nil {
			return err
		}
		endDate, err := util.ParseDate(end)
		if err != nil {
			return err
		}
		samplingInterval, err := util.NewSamplingInterval(interval)
		if err != nil {
			return err
		}
		if precision < 0 {
			precision = deps.Config.Evaluation.Precision
		}

		dates, err := deps.StrategyService.ListEvaluationDates(ctx, l3_service.ListEvaluationDatesInput{
			Start:    startDate,
			End:      endDate,
			Interval: samplingInterval,
		})
		if err != nil {
			return err
		}
		results, err := deps.StrategyService.EvaluateStrategyOnDates(ctx, l3_service.EvaluateStrategyOnDatesInput{
			Tree:      tree,
			Dates:     dates,
			Precision: precision,
		})
		if err != nil {
			return err
		}

		type dayOut struct {
			Date       string            `json:"date"`
			Allocation domain.Allocation `json:"allocation,omitempty"`
			Error      string            `json:"error,omitempty"`
		}
		out := []dayOut{}
		for _, day := range results {
			d := dayOut{Date: day.Date.Format(time.DateOnly), Allocation: day.Allocation}
			if day.Err != nil {
				d.Error = day.Err.Error()
			}
			out = append(out, d)
		}
		internal.Pprint(out)
		return nil
	})
	return c
}

func newIngestCommand() *cobra.Command {
	var (
		start      string
		numWorkers int
	)
	c := &cobra.Command{
		Use:   "ingest <symbol>...",
		Short: "Load daily adjusted closes from yahoo into postgres",
		Args:  cobra.MinimumNArgs(1),
	}
	c.Flags().StringVar(&start, "start", internal.DefaultIngestStart.Format(time.DateOnly), "first date for symbols with no stored prices")
	c.Flags().IntVar(&numWorkers, "workers", 0, "symbols ingested at once, defaults to the config")

	c.RunE = func(c *cobra.Command, args []string) error {
		config, err := util.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		startDate, err := util.ParseDate(start)
		if err != nil {
			return err
		}
		if numWorkers <= 0 {
			numWorkers = config.Evaluation.NumWorkers
		}

		db, err := OpenDb(config)
		if err != nil {
			return err
		}
		defer closeDb(db)

		ctx := logger.NewContext(c.Context(), logger.New())
		return internal.IngestPrices(
			ctx,
			db,
			repository.NewYahooRepository(config.Prices.HistoryDepth),
			repository.NewAdjustedPriceRepository(db, config.Prices.HistoryDepth),
			internal.IngestPricesInput{
				Symbols:    args,
				Start:      startDate,
				End:        util.DateOnly(time.Now().UTC()),
				NumWorkers: numWorkers,
			},
		)
	}
	return c
}

func closeDb(db *sql.DB) {
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close db: %v\n", err)
	}
}
