package l3_service

import (
	"context"
	"fmt"
	"sort"
	"symphony/internal/domain"
	"symphony/internal/logger"
	"symphony/internal/repository"
	l2_service "symphony/internal/service/l2"
	"symphony/internal/util"
	"sync"
	"time"
)

type EvaluateStrategyInput struct {
	Tree      domain.Expression
	AsOf      time.Time
	Precision int
	Trace     bool
}

type EvaluateStrategyResult struct {
	Allocation domain.Allocation
	Weights    domain.WeightMap
	Trace      *l2_service.Trace
	Stats      l2_service.EvaluationStats
}

type EvaluateStrategyOnDatesInput struct {
	Tree      domain.Expression
	Dates     []time.Time
	Precision int
}

type ListEvaluationDatesInput struct {
	Start    time.Time
	End      time.Time
	Interval util.SamplingInterval
}

type StrategyService interface {
	EvaluateStrategy(ctx context.Context, in EvaluateStrategyInput) (*EvaluateStrategyResult, error)
	EvaluateStrategyOnDates(ctx context.Context, in EvaluateStrategyOnDatesInput) ([]domain.AllocationOnDay, error)
	ListEvaluationDates(ctx context.Context, in ListEvaluationDatesInput) ([]time.Time, error)
}

type strategyServiceHandler struct {
	Evaluator  l2_service.SymphonyEvaluator
	Calendar   repository.TradingCalendar
	NumWorkers int
}

func NewStrategyService(
	evaluator l2_service.SymphonyEvaluator,
	calendar repository.TradingCalendar,
	numWorkers int,
) StrategyService {
	if numWorkers <= 0 {
		numWorkers = util.DefaultNumWorkers
	}
	return strategyServiceHandler{
		Evaluator:  evaluator,
		Calendar:   calendar,
		NumWorkers: numWorkers,
	}
}

func (h strategyServiceHandler) EvaluateStrategy(ctx context.Context, in EvaluateStrategyInput) (*EvaluateStrategyResult, error) {
	profile, _ := domain.GetProfile(ctx)
	log := logger.FromContext(ctx)

	if in.Trace {
		ctx = l2_service.NewCtxWithTrace(ctx)
	}
	result, err := h.Evaluator.Evaluate(ctx, in.Tree, in.AsOf)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate strategy on %s: %w", in.AsOf.Format(time.DateOnly), err)
	}

	_, endSpan := profile.StartNewSpan("computing target allocation")
	allocation, err := ComputeTargetAllocation(ComputeTargetAllocationInput{
		Weights:   result.Weights,
		Precision: in.Precision,
	})
	endSpan()
	if err != nil {
		return nil, fmt.Errorf("failed to compute target allocation: %w", err)
	}

	log.Infof("evaluated strategy on %s: %d holdings, %d indicators, %d price fetches",
		in.AsOf.Format(time.DateOnly),
		len(allocation),
		result.Stats.IndicatorsComputed,
		result.Stats.PriceFetches,
	)

	return &EvaluateStrategyResult{
		Allocation: allocation,
		Weights:    result.Weights,
		Trace:      result.Trace,
		Stats:      result.Stats,
	}, nil
}

type dateWorkInput struct {
	Index int
	Date  time.Time
}

// EvaluateStrategyOnDates evaluates the tree once per date on a pool of
// workers. Every date gets its own evaluation, and a failing date is
// reported on its AllocationOnDay instead of failing the batch.
func (h strategyServiceHandler) EvaluateStrategyOnDates(ctx context.Context, in EvaluateStrategyOnDatesInput) ([]domain.AllocationOnDay, error) {
	if len(in.Dates) == 0 {
		return nil, fmt.Errorf("cannot evaluate strategy with 0 dates")
	}
	profile, _ := domain.GetProfile(ctx)
	_, endSpan := profile.StartNewSpan(fmt.Sprintf("evaluating strategy on %d dates", len(in.Dates)))
	defer endSpan()

	log := logger.FromContext(ctx)
	// spans are not safe to end from several goroutines, so workers time
	// themselves against a detached profile
	workerCtx := domain.NewCtxWithProfile(ctx, nil)
	log.Infof("evaluating strategy on %d dates with %d workers", len(in.Dates), h.NumWorkers)

	inputCh := make(chan dateWorkInput, len(in.Dates))
	for i, date := range in.Dates {
		inputCh <- dateWorkInput{Index: i, Date: util.DateOnly(date)}
	}
	close(inputCh)

	out := make([]domain.AllocationOnDay, len(in.Dates))
	numGoroutines := h.NumWorkers
	if numGoroutines > len(in.Dates) {
		numGoroutines = len(in.Dates)
	}

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for input := range inputCh {
				if err := ctx.Err(); err != nil {
					out[input.Index] = domain.AllocationOnDay{Date: input.Date, Err: err}
					continue
				}
				result, err := h.EvaluateStrategy(workerCtx, EvaluateStrategyInput{
					Tree:      in.Tree,
					AsOf:      input.Date,
					Precision: in.Precision,
				})
				if err != nil {
					out[input.Index] = domain.AllocationOnDay{Date: input.Date, Err: err}
					continue
				}
				out[input.Index] = domain.AllocationOnDay{Date: input.Date, Allocation: result.Allocation}
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})

	numErrors := 0
	for _, day := range out {
		if day.Err != nil {
			numErrors++
		}
	}
	if numErrors > 0 {
		log.Warnf("strategy failed on %d of %d dates", numErrors, len(out))
	}

	return out, nil
}

// ListEvaluationDates samples the trading calendar between start and end.
func (h strategyServiceHandler) ListEvaluationDates(ctx context.Context, in ListEvaluationDatesInput) ([]time.Time, error) {
	if in.End.Before(in.Start) {
		return nil, fmt.Errorf("end %s is before start %s", in.End.Format(time.DateOnly), in.Start.Format(time.DateOnly))
	}
	tradingDays, err := h.Calendar.ListTradingDays(ctx, in.Start, in.End)
	if err != nil {
		return nil, fmt.Errorf("failed to list trading days: %w", err)
	}
	sort.Slice(tradingDays, func(i, j int) bool {
		return tradingDays[i].Before(tradingDays[j])
	})
	dates := util.SampleTradingDays(tradingDays, in.Interval)
	if len(dates) == 0 {
		return nil, fmt.Errorf("no trading days between %s and %s", in.Start.Format(time.DateOnly), in.End.Format(time.DateOnly))
	}
	return dates, nil
}
