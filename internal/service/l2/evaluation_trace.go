package l2_service

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Trace explains an allocation: every indicator value that was computed and
// every branch or filter decision that was taken.
type Trace struct {
	Indicators map[string]decimal.Decimal `json:"indicators"`
	Decisions  []Decision                 `json:"decisions"`
}

type Decision struct {
	Node    string `json:"node"`
	Outcome string `json:"outcome"`
}

type traceKey struct{}

// NewCtxWithTrace asks evaluations run with ctx to record a trace, even when
// the evaluator was built without EvaluatorOptions.Trace.
func NewCtxWithTrace(ctx context.Context) context.Context {
	return context.WithValue(ctx, traceKey{}, true)
}

func traceRequested(ctx context.Context) bool {
	requested, _ := ctx.Value(traceKey{}).(bool)
	return requested
}

// traceRecorder is nil when tracing is off; every method is a no-op then.
type traceRecorder struct {
	mu         sync.Mutex
	indicators map[string]decimal.Decimal
	decisions  []Decision
}

func newTraceRecorder(enabled bool) *traceRecorder {
	if !enabled {
		return nil
	}
	return &traceRecorder{
		indicators: map[string]decimal.Decimal{},
	}
}

func (t *traceRecorder) indicator(name string, value decimal.Decimal) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.indicators[name] = value
}

func (t *traceRecorder) decision(node, outcome string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.decisions = append(t.decisions, Decision{Node: node, Outcome: outcome})
}

// snapshot orders decisions so parallel and sequential runs produce the same
// trace.
func (t *traceRecorder) snapshot() *Trace {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	out := &Trace{
		Indicators: make(map[string]decimal.Decimal, len(t.indicators)),
		Decisions:  make([]Decision, len(t.decisions)),
	}
	for k, v := range t.indicators {
		out.Indicators[k] = v
	}
	copy(out.Decisions, t.decisions)
	sort.Slice(out.Decisions, func(i, j int) bool {
		if out.Decisions[i].Node != out.Decisions[j].Node {
			return out.Decisions[i].Node < out.Decisions[j].Node
		}
		return out.Decisions[i].Outcome < out.Decisions[j].Outcome
	})
	return out
}
