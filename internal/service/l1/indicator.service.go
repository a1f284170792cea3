package l1_service

import (
	"context"
	"fmt"
	"symphony/internal/domain"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RequiredPeriods is how many closes kind needs for window, validating the
// window on the way.
func RequiredPeriods(kind domain.IndicatorKind, window int) (int, error) {
	switch kind {
	case domain.IndicatorCurrentPrice:
		return 1, nil
	case domain.IndicatorMovingAveragePrice:
		if window <= 0 {
			return 0, domain.IndicatorDomainError{Kind: kind, Window: window, Reason: "window must be positive"}
		}
		return window, nil
	case domain.IndicatorRsi, domain.IndicatorMovingAverageReturn, domain.IndicatorCumulativeReturn:
		if window <= 0 {
			return 0, domain.IndicatorDomainError{Kind: kind, Window: window, Reason: "window must be positive"}
		}
		return window + 1, nil
	case domain.IndicatorStdevReturn:
		if window < 2 {
			return 0, domain.IndicatorDomainError{Kind: kind, Window: window, Reason: "sample stdev needs a window of at least 2"}
		}
		return window + 1, nil
	}
	return 0, domain.IndicatorDomainError{Kind: kind, Window: window, Reason: "unknown indicator"}
}

// ComputeIndicator evaluates kind over closes, which are ascending and end
// on the evaluation date. Only the last RequiredPeriods closes are read,
// except by rsi, which smooths over every close it is given.
func ComputeIndicator(kind domain.IndicatorKind, closes []decimal.Decimal, window int) (decimal.Decimal, error) {
	required, err := RequiredPeriods(kind, window)
	if err != nil {
		return decimal.Zero, err
	}
	if len(closes) < required {
		return decimal.Zero, domain.InsufficientHistoryError{
			Required:  required,
			Available: len(closes),
		}
	}

	switch kind {
	case domain.IndicatorCurrentPrice:
		return closes[len(closes)-1], nil
	case domain.IndicatorMovingAveragePrice:
		return mean(closes[len(closes)-window:]), nil
	case domain.IndicatorCumulativeReturn:
		start := closes[len(closes)-1-window]
		end := closes[len(closes)-1]
		if !start.IsPositive() {
			return decimal.Zero, nonPositiveClose(kind, window, start)
		}
		return end.Sub(start).Div(start).Mul(hundred), nil
	case domain.IndicatorMovingAverageReturn:
		returns, err := percentReturns(kind, window, closes[len(closes)-1-window:])
		if err != nil {
			return decimal.Zero, err
		}
		return mean(returns), nil
	case domain.IndicatorStdevReturn:
		returns, err := percentReturns(kind, window, closes[len(closes)-1-window:])
		if err != nil {
			return decimal.Zero, err
		}
		data := make([]float64, 0, len(returns))
		for _, r := range returns {
			data = append(data, r.InexactFloat64())
		}
		stdev, err := stats.StandardDeviationSample(data)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to calculate stdev of returns: %w", err)
		}
		return decimal.NewFromFloat(stdev), nil
	case domain.IndicatorRsi:
		return wilderRsi(closes, window), nil
	}

	return decimal.Zero, domain.IndicatorDomainError{Kind: kind, Window: window, Reason: "unknown indicator"}
}

func nonPositiveClose(kind domain.IndicatorKind, window int, c decimal.Decimal) error {
	return domain.IndicatorDomainError{
		Kind:   kind,
		Window: window,
		Reason: fmt.Sprintf("cannot compute a return from close %s", c.String()),
	}
}

func mean(values []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

// percentReturns turns n+1 closes into n single period returns, in percent.
func percentReturns(kind domain.IndicatorKind, window int, closes []decimal.Decimal) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if !prev.IsPositive() {
			return nil, nonPositiveClose(kind, window, prev)
		}
		out = append(out, closes[i].Sub(prev).Div(prev).Mul(hundred))
	}
	return out, nil
}

// wilderRsi seeds the average gain and loss with the simple mean of the
// first window changes, then smooths every later change into them.
func wilderRsi(closes []decimal.Decimal, window int) decimal.Decimal {
	w := decimal.NewFromInt(int64(window))
	wMinusOne := decimal.NewFromInt(int64(window - 1))

	gainAndLoss := func(i int) (decimal.Decimal, decimal.Decimal) {
		change := closes[i].Sub(closes[i-1])
		if change.IsPositive() {
			return change, decimal.Zero
		}
		return decimal.Zero, change.Neg()
	}

	avgGain, avgLoss := decimal.Zero, decimal.Zero
	for i := 1; i <= window; i++ {
		gain, loss := gainAndLoss(i)
		avgGain = avgGain.Add(gain)
		avgLoss = avgLoss.Add(loss)
	}
	avgGain = avgGain.Div(w)
	avgLoss = avgLoss.Div(w)

	for i := window + 1; i < len(closes); i++ {
		gain, loss := gainAndLoss(i)
		avgGain = avgGain.Mul(wMinusOne).Add(gain).Div(w)
		avgLoss = avgLoss.Mul(wMinusOne).Add(loss).Div(w)
	}

	if avgLoss.IsZero() {
		return hundred
	}
	rs := avgGain.Div(avgLoss)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}

type IndicatorService interface {
	Compute(ctx context.Context, call domain.IndicatorCall, asOf time.Time) (decimal.Decimal, error)
}

type indicatorServiceHandler struct {
	PriceCache *PriceCache
}

// NewIndicatorService computes indicators over one evaluation's price cache.
func NewIndicatorService(priceCache *PriceCache) IndicatorService {
	return indicatorServiceHandler{
		PriceCache: priceCache,
	}
}

func (h indicatorServiceHandler) Compute(ctx context.Context, call domain.IndicatorCall, asOf time.Time) (decimal.Decimal, error) {
	symbol := domain.NormalizeTicker(call.Symbol)
	if symbol == "" {
		return decimal.Zero, domain.InvalidExpressionError{Reason: fmt.Sprintf("indicator %s has no symbol", call.Kind)}
	}
	required, err := RequiredPeriods(call.Kind, call.Window)
	if err != nil {
		return decimal.Zero, err
	}

	history, err := h.PriceCache.GetHistory(ctx, symbol, asOf, required)
	if err != nil {
		return decimal.Zero, err
	}

	value, err := ComputeIndicator(call.Kind, domain.Closes(history), call.Window)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to compute %s: %w", call.WithSymbol(symbol).String(), err)
	}
	return value, nil
}
