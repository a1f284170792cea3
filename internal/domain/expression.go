package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Expression is a node of a strategy tree. The set of implementations is
// closed: only the node types in this package satisfy it, and evaluators
// switch over them by type.
type Expression interface {
	expressionNode()
}

// Asset is a leaf that resolves to its own ticker with weight 1.
type Asset struct {
	Ticker      string
	DisplayName string
}

// Group is organizational only; its children are weighted equally.
type Group struct {
	Label    string
	Children []Expression
}

type WeightEqual struct {
	Children []Expression
}

type WeightedChild struct {
	Weight decimal.Decimal
	Child  Expression
}

// WeightSpecified scales each child by an explicit weight. The weights are
// taken as authoritative and are never renormalized.
type WeightSpecified struct {
	Pairs []WeightedChild
}

// If evaluates exactly one of its branches. Each branch is an implicit
// equal-weight group.
type If struct {
	Predicate Predicate
	Then      []Expression
	Else      []Expression
}

type SelectorKind string

const (
	SelectTop    SelectorKind = "top"
	SelectBottom SelectorKind = "bottom"
)

type Selector struct {
	Kind SelectorKind
	N    int
}

func Top(n int) Selector {
	return Selector{Kind: SelectTop, N: n}
}

func Bottom(n int) Selector {
	return Selector{Kind: SelectBottom, N: n}
}

func (s Selector) String() string {
	return fmt.Sprintf("%s(%d)", s.Kind, s.N)
}

// Filter ranks the symbols its candidates resolve to and keeps the top or
// bottom N. Rank.Symbol is ignored; it is bound to each candidate symbol.
type Filter struct {
	Rank       IndicatorCall
	Selector   Selector
	Candidates []Expression
}

func (*Asset) expressionNode()           {}
func (*Group) expressionNode()           {}
func (*WeightEqual) expressionNode()     {}
func (*WeightSpecified) expressionNode() {}
func (*If) expressionNode()              {}
func (*Filter) expressionNode()          {}

type IndicatorKind string

const (
	IndicatorRsi                 IndicatorKind = "rsi"
	IndicatorMovingAveragePrice  IndicatorKind = "moving-average-price"
	IndicatorMovingAverageReturn IndicatorKind = "moving-average-return"
	IndicatorCumulativeReturn    IndicatorKind = "cumulative-return"
	IndicatorStdevReturn         IndicatorKind = "stdev-return"
	IndicatorCurrentPrice        IndicatorKind = "current-price"
)

var indicatorKinds = map[IndicatorKind]bool{
	IndicatorRsi:                 true,
	IndicatorMovingAveragePrice:  true,
	IndicatorMovingAverageReturn: true,
	IndicatorCumulativeReturn:    true,
	IndicatorStdevReturn:         true,
	IndicatorCurrentPrice:        true,
}

func (k IndicatorKind) IsValid() bool {
	return indicatorKinds[k]
}

// IndicatorCall identifies one indicator value. Window is the lookback in
// trading periods and is unused for current-price.
type IndicatorCall struct {
	Kind   IndicatorKind
	Symbol string
	Window int
}

func (c IndicatorCall) WithSymbol(symbol string) IndicatorCall {
	c.Symbol = symbol
	return c
}

func (c IndicatorCall) String() string {
	if c.Kind == IndicatorCurrentPrice {
		return fmt.Sprintf("%s(%s)", c.Kind, NormalizeTicker(c.Symbol))
	}
	return fmt.Sprintf("%s(%s, %d)", c.Kind, NormalizeTicker(c.Symbol), c.Window)
}

// Operand is either an indicator call or a numeric literal.
type Operand struct {
	Indicator *IndicatorCall
	Literal   *decimal.Decimal
}

func IndicatorOperand(call IndicatorCall) Operand {
	return Operand{Indicator: &call}
}

func LiteralOperand(value decimal.Decimal) Operand {
	return Operand{Literal: &value}
}

func (o Operand) String() string {
	if o.Indicator != nil {
		return o.Indicator.String()
	}
	if o.Literal != nil {
		return o.Literal.String()
	}
	return "<empty>"
}

type Comparator string

const (
	GreaterThan        Comparator = ">"
	LessThan           Comparator = "<"
	GreaterThanOrEqual Comparator = ">="
	LessThanOrEqual    Comparator = "<="
)

func (c Comparator) Compare(lhs, rhs decimal.Decimal) (bool, error) {
	switch c {
	case GreaterThan:
		return lhs.GreaterThan(rhs), nil
	case LessThan:
		return lhs.LessThan(rhs), nil
	case GreaterThanOrEqual:
		return lhs.GreaterThanOrEqual(rhs), nil
	case LessThanOrEqual:
		return lhs.LessThanOrEqual(rhs), nil
	}
	return false, InvalidExpressionError{Reason: fmt.Sprintf("unknown comparator %q", string(c))}
}

type Predicate struct {
	Lhs Operand
	Op  Comparator
	Rhs Operand
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %s", p.Lhs, p.Op, p.Rhs)
}

// NormalizeTicker makes tickers case-insensitive.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// builders, mostly for tests and hand-written trees

func NewAsset(ticker string) *Asset {
	return &Asset{Ticker: ticker}
}

func NewGroup(label string, children ...Expression) *Group {
	return &Group{Label: label, Children: children}
}

func NewWeightEqual(children ...Expression) *WeightEqual {
	return &WeightEqual{Children: children}
}

func NewWeightSpecified(pairs ...WeightedChild) *WeightSpecified {
	return &WeightSpecified{Pairs: pairs}
}

func Weighted(weight string, child Expression) WeightedChild {
	return WeightedChild{Weight: decimal.RequireFromString(weight), Child: child}
}

func NewIf(predicate Predicate, then []Expression, otherwise []Expression) *If {
	return &If{Predicate: predicate, Then: then, Else: otherwise}
}

func NewFilter(rank IndicatorCall, selector Selector, candidates ...Expression) *Filter {
	return &Filter{Rank: rank, Selector: selector, Candidates: candidates}
}
