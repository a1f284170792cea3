package l2_service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"symphony/internal/domain"
	"symphony/internal/logger"
	"symphony/internal/repository"
	l1_service "symphony/internal/service/l1"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type EvaluatorOptions struct {
	// Parallelism bounds how many siblings of one node are evaluated at
	// once. 0 or 1 evaluates everything in order on the calling goroutine.
	Parallelism int
	// HistoryDepth caps the closes fed to smoothed indicators. Only used
	// by Evaluate, which builds its own price service.
	HistoryDepth int
	// PreloadWorkers > 0 fetches every priced symbol up front with that many
	// workers, including symbols in branches that end up untaken. Failed
	// fetches are retried by the evaluation only if it needs the symbol.
	PreloadWorkers int
	// Trace records every evaluation. Single calls can opt in with
	// NewCtxWithTrace instead.
	Trace bool
}

type EvaluationStats struct {
	IndicatorsComputed int `json:"indicatorsComputed"`
	SubtreesEvaluated  int `json:"subtreesEvaluated"`
	PriceFetches       int `json:"priceFetches"`
}

type EvaluationResult struct {
	Weights domain.WeightMap
	Trace   *Trace
	Stats   EvaluationStats
}

type SymphonyEvaluator interface {
	Evaluate(ctx context.Context, tree domain.Expression, asOf time.Time) (*EvaluationResult, error)
}

type symphonyEvaluatorHandler struct {
	PriceService l1_service.PriceService
	Options      EvaluatorOptions
}

func NewSymphonyEvaluator(priceService l1_service.PriceService, options EvaluatorOptions) SymphonyEvaluator {
	return symphonyEvaluatorHandler{
		PriceService: priceService,
		Options:      options,
	}
}

// Evaluate resolves tree to a normalized allocation as of asOf, reading
// prices from provider.
func Evaluate(ctx context.Context, tree domain.Expression, asOf time.Time, provider repository.PriceHistoryProvider, options EvaluatorOptions) (domain.WeightMap, error) {
	evaluator := NewSymphonyEvaluator(
		l1_service.NewPriceService(provider, options.HistoryDepth),
		options,
	)
	result, err := evaluator.Evaluate(ctx, tree, asOf)
	if err != nil {
		return nil, err
	}
	return result.Weights, nil
}

// evaluation is the state of one Evaluate call. Nothing in it outlives the
// call.
type evaluation struct {
	asOf        time.Time
	hashes      map[domain.Expression]string
	priceCache  *l1_service.PriceCache
	indicators  l1_service.IndicatorService
	memo        *evaluationMemo
	trace       *traceRecorder
	parallelism int
	log         *zap.SugaredLogger
}

func (h symphonyEvaluatorHandler) newEvaluation(ctx context.Context, tree domain.Expression, asOf time.Time) (*evaluation, error) {
	hashes, err := domain.HashTree(tree)
	if err != nil {
		return nil, err
	}
	priceCache := h.PriceService.NewPriceCache()
	return &evaluation{
		asOf:        asOf,
		hashes:      hashes,
		priceCache:  priceCache,
		indicators:  l1_service.NewIndicatorService(priceCache),
		memo:        newEvaluationMemo(),
		trace:       newTraceRecorder(h.Options.Trace || traceRequested(ctx)),
		parallelism: h.Options.Parallelism,
		log:         logger.FromContext(ctx),
	}, nil
}

func (h symphonyEvaluatorHandler) Evaluate(ctx context.Context, tree domain.Expression, asOf time.Time) (*EvaluationResult, error) {
	e, err := h.newEvaluation(ctx, tree, asOf)
	if err != nil {
		return nil, err
	}

	if h.Options.PreloadWorkers > 0 {
		err = e.priceCache.Preload(ctx, domain.PricedSymbols(tree), asOf, domain.MaxLookback(tree)+1, h.Options.PreloadWorkers)
		if err != nil {
			return nil, err
		}
	}

	profile, _ := domain.GetProfile(ctx)
	_, endSpan := profile.StartNewSpan("evaluating tree")
	weights, err := e.eval(ctx, tree)
	endSpan()
	if err != nil {
		return nil, err
	}

	weights = weights.Pruned()
	if len(weights) == 0 {
		return nil, domain.EmptySelectionError{Node: "root", Reason: "no positive weights"}
	}
	if !weights.SumsToOne(domain.WeightTolerance) {
		return nil, domain.WeightSumMismatchError{
			Sum:       weights.Sum(),
			Tolerance: domain.WeightTolerance,
		}
	}

	indicatorsComputed, subtreesEvaluated := e.memo.stats()
	return &EvaluationResult{
		Weights: weights,
		Trace:   e.trace.snapshot(),
		Stats: EvaluationStats{
			IndicatorsComputed: indicatorsComputed,
			SubtreesEvaluated:  subtreesEvaluated,
			PriceFetches:       e.priceCache.Fetches(),
		},
	}, nil
}

func (e *evaluation) eval(ctx context.Context, expr domain.Expression) (domain.WeightMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hash, ok := e.hashes[expr]
	if !ok {
		return nil, domain.InvalidExpressionError{Reason: fmt.Sprintf("node %T was not part of the tree", expr)}
	}
	return e.memo.subtree(hash, func() (domain.WeightMap, error) {
		return e.evalNode(ctx, expr)
	})
}

func (e *evaluation) evalNode(ctx context.Context, expr domain.Expression) (domain.WeightMap, error) {
	switch node := expr.(type) {
	case *domain.Asset:
		if domain.NormalizeTicker(node.Ticker) == "" {
			return nil, domain.InvalidExpressionError{Reason: "asset is missing a ticker"}
		}
		return domain.SingleWeight(node.Ticker), nil
	case *domain.Group:
		return e.evalEqual(ctx, groupName(node), node.Children)
	case *domain.WeightEqual:
		return e.evalEqual(ctx, "weight-equal", node.Children)
	case *domain.WeightSpecified:
		return e.evalSpecified(ctx, node)
	case *domain.If:
		return e.evalIf(ctx, node)
	case *domain.Filter:
		return e.evalFilter(ctx, node)
	}
	return nil, domain.InvalidExpressionError{Reason: fmt.Sprintf("unknown node type %T", expr)}
}

func groupName(g *domain.Group) string {
	if g.Label == "" {
		return "group"
	}
	return fmt.Sprintf("group %q", g.Label)
}

// evalAll evaluates children, in parallel when allowed. The returned error
// is always the one of the lowest failing index, so the outcome does not
// depend on scheduling.
func (e *evaluation) evalAll(ctx context.Context, children []domain.Expression) ([]domain.WeightMap, error) {
	results := make([]domain.WeightMap, len(children))
	if e.parallelism <= 1 || len(children) < 2 {
		for i, child := range children {
			r, err := e.eval(ctx, child)
			if err != nil {
				return nil, err
			}
			results[i] = r
		}
		return results, nil
	}

	errs := make([]error, len(children))
	g := errgroup.Group{}
	g.SetLimit(e.parallelism)
	for i, child := range children {
		i, child := i, child
		g.Go(func() error {
			results[i], errs[i] = e.eval(ctx, child)
			return nil
		})
	}
	g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func renormalize(node string, weights domain.WeightMap) (domain.WeightMap, error) {
	if weights.SumsToOne(domain.WeightTolerance) {
		return weights, nil
	}
	normalized, ok := weights.Normalized()
	if !ok {
		return nil, domain.EmptySelectionError{Node: node, Reason: "children have no weight"}
	}
	return normalized, nil
}

func (e *evaluation) evalEqual(ctx context.Context, node string, children []domain.Expression) (domain.WeightMap, error) {
	if len(children) == 0 {
		return nil, domain.EmptySelectionError{Node: node, Reason: "no children"}
	}
	results, err := e.evalAll(ctx, children)
	if err != nil {
		return nil, err
	}

	scale := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(len(children))))
	out := domain.NewWeightMap()
	for i, r := range results {
		if len(r) == 0 {
			return nil, domain.EmptySelectionError{Node: node, Reason: fmt.Sprintf("child %d resolved to nothing", i)}
		}
		out.Merge(r, scale)
	}
	return renormalize(node, out)
}

func (e *evaluation) evalSpecified(ctx context.Context, node *domain.WeightSpecified) (domain.WeightMap, error) {
	if len(node.Pairs) == 0 {
		return nil, domain.EmptySelectionError{Node: "weight-specified", Reason: "no children"}
	}

	declared := decimal.Zero
	children := []domain.Expression{}
	weights := []decimal.Decimal{}
	for _, pair := range node.Pairs {
		if pair.Weight.IsNegative() {
			return nil, domain.InvalidExpressionError{Reason: fmt.Sprintf("weight-specified has negative weight %s", pair.Weight.String())}
		}
		declared = declared.Add(pair.Weight)
		// zero weight children contribute nothing and are not evaluated
		if pair.Weight.IsZero() {
			continue
		}
		children = append(children, pair.Child)
		weights = append(weights, pair.Weight)
	}
	if declared.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(domain.WeightTolerance) {
		return nil, domain.WeightSumMismatchError{
			Sum:       declared,
			Tolerance: domain.WeightTolerance,
		}
	}

	results, err := e.evalAll(ctx, children)
	if err != nil {
		return nil, err
	}

	out := domain.NewWeightMap()
	for i, r := range results {
		if len(r) == 0 {
			return nil, domain.EmptySelectionError{Node: "weight-specified", Reason: fmt.Sprintf("child %d resolved to nothing", i)}
		}
		out.Merge(r, weights[i])
	}
	return out, nil
}

func (e *evaluation) indicator(ctx context.Context, call domain.IndicatorCall) (decimal.Decimal, error) {
	call = call.WithSymbol(domain.NormalizeTicker(call.Symbol))
	name := call.String()
	return e.memo.indicator(name+"@"+e.asOf.Format(time.DateOnly), func() (decimal.Decimal, error) {
		value, err := e.indicators.Compute(ctx, call, e.asOf)
		if err != nil {
			return decimal.Zero, err
		}
		e.trace.indicator(name, value)
		return value, nil
	})
}

func (e *evaluation) operand(ctx context.Context, o domain.Operand) (decimal.Decimal, error) {
	if o.Indicator != nil && o.Literal != nil {
		return decimal.Zero, domain.InvalidExpressionError{Reason: "operand has both a value and an indicator"}
	}
	if o.Literal != nil {
		return *o.Literal, nil
	}
	if o.Indicator != nil {
		return e.indicator(ctx, *o.Indicator)
	}
	return decimal.Zero, domain.InvalidExpressionError{Reason: "operand is empty"}
}

func (e *evaluation) evalIf(ctx context.Context, node *domain.If) (domain.WeightMap, error) {
	lhs, err := e.operand(ctx, node.Predicate.Lhs)
	if err != nil {
		return nil, err
	}
	rhs, err := e.operand(ctx, node.Predicate.Rhs)
	if err != nil {
		return nil, err
	}
	holds, err := node.Predicate.Op.Compare(lhs, rhs)
	if err != nil {
		return nil, err
	}

	branch, outcome := node.Then, "then"
	if !holds {
		branch, outcome = node.Else, "else"
	}
	description := "if " + node.Predicate.String()
	e.log.Debugf("%s: %s %s %s, taking %s", description, lhs.String(), node.Predicate.Op, rhs.String(), outcome)
	e.trace.decision(description, fmt.Sprintf("%s (%s %s %s)", outcome, lhs.String(), node.Predicate.Op, rhs.String()))

	if len(branch) == 0 {
		return nil, domain.EmptySelectionError{Node: description, Reason: fmt.Sprintf("the %s branch is empty", outcome)}
	}
	return e.evalEqual(ctx, description, branch)
}

type rankedSymbol struct {
	symbol string
	score  decimal.Decimal
}

func (e *evaluation) evalFilter(ctx context.Context, node *domain.Filter) (domain.WeightMap, error) {
	description := fmt.Sprintf("filter %s by %s(%d)", node.Selector, node.Rank.Kind, node.Rank.Window)
	if node.Selector.Kind != domain.SelectTop && node.Selector.Kind != domain.SelectBottom {
		return nil, domain.InvalidExpressionError{Reason: fmt.Sprintf("unknown selector %q", string(node.Selector.Kind))}
	}
	if node.Selector.N <= 0 {
		return nil, domain.IndicatorDomainError{
			Kind:   node.Rank.Kind,
			Window: node.Rank.Window,
			Reason: fmt.Sprintf("%s must select at least one symbol", node.Selector),
		}
	}
	if len(node.Candidates) == 0 {
		return nil, domain.EmptySelectionError{Node: description, Reason: "no candidates"}
	}

	results, err := e.evalAll(ctx, node.Candidates)
	if err != nil {
		return nil, err
	}

	// candidate order first, symbols inside one candidate alphabetically
	seen := map[string]bool{}
	symbols := []string{}
	for _, r := range results {
		for _, symbol := range r.Symbols() {
			if seen[symbol] {
				continue
			}
			seen[symbol] = true
			symbols = append(symbols, symbol)
		}
	}
	if len(symbols) == 0 {
		return nil, domain.EmptySelectionError{Node: description, Reason: "candidates resolved to no symbols"}
	}

	scores, err := e.scoreAll(ctx, node.Rank, symbols)
	if err != nil {
		return nil, err
	}

	ranked := make([]rankedSymbol, len(symbols))
	for i, symbol := range symbols {
		ranked[i] = rankedSymbol{symbol: symbol, score: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if node.Selector.Kind == domain.SelectTop {
			return ranked[i].score.GreaterThan(ranked[j].score)
		}
		return ranked[i].score.LessThan(ranked[j].score)
	})

	k := node.Selector.N
	if k > len(ranked) {
		k = len(ranked)
	}
	weight := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(k)))
	out := domain.NewWeightMap()
	survivors := make([]string, 0, k)
	for _, r := range ranked[:k] {
		out.Add(r.symbol, weight)
		survivors = append(survivors, r.symbol)
	}

	e.log.Debugf("%s over %v kept %v", description, symbols, survivors)
	e.trace.decision(
		fmt.Sprintf("%s over [%s]", description, strings.Join(symbols, " ")),
		strings.Join(survivors, " "),
	)
	return out, nil
}

// scoreAll computes the rank indicator for every symbol. Like evalAll, the
// reported error is the one of the first failing symbol.
func (e *evaluation) scoreAll(ctx context.Context, rank domain.IndicatorCall, symbols []string) ([]decimal.Decimal, error) {
	scores := make([]decimal.Decimal, len(symbols))
	if e.parallelism <= 1 || len(symbols) < 2 {
		for i, symbol := range symbols {
			v, err := e.indicator(ctx, rank.WithSymbol(symbol))
			if err != nil {
				return nil, err
			}
			scores[i] = v
		}
		return scores, nil
	}

	errs := make([]error, len(symbols))
	g := errgroup.Group{}
	g.SetLimit(e.parallelism)
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			scores[i], errs[i] = e.indicator(ctx, rank.WithSymbol(symbol))
			return nil
		})
	}
	g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return scores, nil
}
