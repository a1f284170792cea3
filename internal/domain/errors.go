package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InsufficientHistoryError means the price history cannot cover the
// requested window. It aborts the evaluation.
type InsufficientHistoryError struct {
	Symbol    string
	AsOf      time.Time
	Required  int
	Available int
}

func (e InsufficientHistoryError) Error() string {
	return fmt.Sprintf(
		"insufficient price history for %s as of %s: need %d periods, have %d",
		e.Symbol,
		e.AsOf.Format(time.DateOnly),
		e.Required,
		e.Available,
	)
}

// EmptySelectionError is returned when a node resolves to no symbols where at
// least one is required.
type EmptySelectionError struct {
	Node   string
	Reason string
}

func (e EmptySelectionError) Error() string {
	return fmt.Sprintf("empty selection in %s: %s", e.Node, e.Reason)
}

type WeightSumMismatchError struct {
	Sum       decimal.Decimal
	Tolerance decimal.Decimal
}

func (e WeightSumMismatchError) Error() string {
	return fmt.Sprintf("weights should sum to 1 within %s, got %s", e.Tolerance.String(), e.Sum.String())
}

type IndicatorDomainError struct {
	Kind   IndicatorKind
	Window int
	Reason string
}

func (e IndicatorDomainError) Error() string {
	return fmt.Sprintf("invalid indicator %s with window %d: %s", e.Kind, e.Window, e.Reason)
}

// InvalidExpressionError covers trees that are structurally unusable, such
// as nil nodes, empty tickers or negative weights.
type InvalidExpressionError struct {
	Reason string
}

func (e InvalidExpressionError) Error() string {
	return fmt.Sprintf("invalid strategy expression: %s", e.Reason)
}
