package l2_service

import (
	"sync"
	"symphony/internal/domain"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// evaluationMemo holds indicator values and subtree results for a single
// evaluation. Errors are remembered too, so a failing subtree fails the
// same way everywhere it appears.
type evaluationMemo struct {
	mu         sync.Mutex
	indicators map[string]indicatorResult
	subtrees   map[string]subtreeResult
	group      singleflight.Group

	indicatorsComputed int
	subtreesEvaluated  int
}

type indicatorResult struct {
	value decimal.Decimal
	err   error
}

type subtreeResult struct {
	weights domain.WeightMap
	err     error
}

func newEvaluationMemo() *evaluationMemo {
	return &evaluationMemo{
		indicators: map[string]indicatorResult{},
		subtrees:   map[string]subtreeResult{},
	}
}

func (m *evaluationMemo) indicator(key string, compute func() (decimal.Decimal, error)) (decimal.Decimal, error) {
	m.mu.Lock()
	if r, ok := m.indicators[key]; ok {
		m.mu.Unlock()
		return r.value, r.err
	}
	m.mu.Unlock()

	v, _, _ := m.group.Do("indicator:"+key, func() (interface{}, error) {
		m.mu.Lock()
		if r, ok := m.indicators[key]; ok {
			m.mu.Unlock()
			return r, nil
		}
		m.mu.Unlock()

		value, err := compute()
		r := indicatorResult{value: value, err: err}

		m.mu.Lock()
		m.indicators[key] = r
		m.indicatorsComputed++
		m.mu.Unlock()
		return r, nil
	})

	r := v.(indicatorResult)
	return r.value, r.err
}

// subtree returns a copy of the memoized result so callers can scale and
// merge it freely.
func (m *evaluationMemo) subtree(hash string, compute func() (domain.WeightMap, error)) (domain.WeightMap, error) {
	m.mu.Lock()
	if r, ok := m.subtrees[hash]; ok {
		m.mu.Unlock()
		return copyResult(r)
	}
	m.mu.Unlock()

	v, _, _ := m.group.Do("subtree:"+hash, func() (interface{}, error) {
		m.mu.Lock()
		if r, ok := m.subtrees[hash]; ok {
			m.mu.Unlock()
			return r, nil
		}
		m.mu.Unlock()

		weights, err := compute()
		r := subtreeResult{weights: weights, err: err}

		m.mu.Lock()
		m.subtrees[hash] = r
		m.subtreesEvaluated++
		m.mu.Unlock()
		return r, nil
	})

	return copyResult(v.(subtreeResult))
}

func copyResult(r subtreeResult) (domain.WeightMap, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.weights.Copy(), nil
}

func (m *evaluationMemo) stats() (indicatorsComputed int, subtreesEvaluated int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indicatorsComputed, m.subtreesEvaluated
}
