package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// HashTree returns the structural hash of every node reachable from root,
// keyed by node identity. Structurally equal subtrees get the same hash no
// matter how many times they appear, so the hash works as a memo key.
// Labels and display names do not affect weights and are not hashed.
func HashTree(root Expression) (map[Expression]string, error) {
	hashes := map[Expression]string{}
	if _, err := hashNode(root, hashes); err != nil {
		return nil, err
	}
	return hashes, nil
}

func hashNode(expr Expression, hashes map[Expression]string) (string, error) {
	if IsNilExpression(expr) {
		return "", InvalidExpressionError{Reason: "nil node"}
	}
	if h, ok := hashes[expr]; ok {
		return h, nil
	}

	var b strings.Builder
	hashChildren := func(children []Expression) error {
		b.WriteString("[")
		for _, child := range children {
			h, err := hashNode(child, hashes)
			if err != nil {
				return err
			}
			b.WriteString(h)
			b.WriteString(",")
		}
		b.WriteString("]")
		return nil
	}

	switch node := expr.(type) {
	case *Asset:
		fmt.Fprintf(&b, "asset(%s)", NormalizeTicker(node.Ticker))
	case *Group:
		// a group combines exactly like weight-equal
		b.WriteString("weight-equal")
		if err := hashChildren(node.Children); err != nil {
			return "", err
		}
	case *WeightEqual:
		b.WriteString("weight-equal")
		if err := hashChildren(node.Children); err != nil {
			return "", err
		}
	case *WeightSpecified:
		b.WriteString("weight-specified[")
		for _, pair := range node.Pairs {
			h, err := hashNode(pair.Child, hashes)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "%s:%s,", pair.Weight.String(), h)
		}
		b.WriteString("]")
	case *If:
		fmt.Fprintf(&b, "if(%s)", predicateKey(node.Predicate))
		if err := hashChildren(node.Then); err != nil {
			return "", err
		}
		if err := hashChildren(node.Else); err != nil {
			return "", err
		}
	case *Filter:
		fmt.Fprintf(&b, "filter(%s,%d,%s)", node.Rank.Kind, node.Rank.Window, node.Selector)
		if err := hashChildren(node.Candidates); err != nil {
			return "", err
		}
	default:
		return "", InvalidExpressionError{Reason: fmt.Sprintf("unknown node type %T", expr)}
	}

	sum := sha256.Sum256([]byte(b.String()))
	h := hex.EncodeToString(sum[:])
	hashes[expr] = h
	return h, nil
}

func predicateKey(p Predicate) string {
	return fmt.Sprintf("%s%s%s", operandKey(p.Lhs), p.Op, operandKey(p.Rhs))
}

func operandKey(o Operand) string {
	if o.Indicator != nil {
		return o.Indicator.String()
	}
	if o.Literal != nil {
		return "#" + o.Literal.String()
	}
	return "<empty>"
}

// Interner deduplicates structurally equal subtrees so a tree with repeated
// fragments shares one node per distinct fragment.
type Interner struct {
	nodes  map[string]Expression
	hashes map[Expression]string
}

func NewInterner() *Interner {
	return &Interner{
		nodes:  map[string]Expression{},
		hashes: map[Expression]string{},
	}
}

// Intern returns the canonical node for expr. The input tree is not
// modified; interior nodes are rebuilt over interned children.
func (in *Interner) Intern(expr Expression) (Expression, error) {
	if IsNilExpression(expr) {
		return nil, InvalidExpressionError{Reason: "nil node"}
	}

	var rebuilt Expression
	switch node := expr.(type) {
	case *Asset:
		rebuilt = node
	case *Group:
		children, err := in.internAll(node.Children)
		if err != nil {
			return nil, err
		}
		rebuilt = &Group{Label: node.Label, Children: children}
	case *WeightEqual:
		children, err := in.internAll(node.Children)
		if err != nil {
			return nil, err
		}
		rebuilt = &WeightEqual{Children: children}
	case *WeightSpecified:
		pairs := make([]WeightedChild, 0, len(node.Pairs))
		for _, pair := range node.Pairs {
			child, err := in.Intern(pair.Child)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, WeightedChild{Weight: pair.Weight, Child: child})
		}
		rebuilt = &WeightSpecified{Pairs: pairs}
	case *If:
		then, err := in.internAll(node.Then)
		if err != nil {
			return nil, err
		}
		otherwise, err := in.internAll(node.Else)
		if err != nil {
			return nil, err
		}
		rebuilt = &If{Predicate: node.Predicate, Then: then, Else: otherwise}
	case *Filter:
		candidates, err := in.internAll(node.Candidates)
		if err != nil {
			return nil, err
		}
		rebuilt = &Filter{Rank: node.Rank, Selector: node.Selector, Candidates: candidates}
	default:
		return nil, InvalidExpressionError{Reason: fmt.Sprintf("unknown node type %T", expr)}
	}

	h, err := hashNode(rebuilt, in.hashes)
	if err != nil {
		return nil, err
	}
	if existing, ok := in.nodes[h]; ok {
		return existing, nil
	}
	in.nodes[h] = rebuilt
	return rebuilt, nil
}

func (in *Interner) internAll(children []Expression) ([]Expression, error) {
	out := make([]Expression, 0, len(children))
	for _, child := range children {
		interned, err := in.Intern(child)
		if err != nil {
			return nil, err
		}
		out = append(out, interned)
	}
	return out, nil
}

// Len is the number of distinct subtrees seen so far.
func (in *Interner) Len() int {
	return len(in.nodes)
}

// Symbols lists every ticker the tree references, either as an asset or as
// an indicator subject, in ascending order.
func Symbols(root Expression) []string {
	set := map[string]bool{}
	walk(root, func(expr Expression) {
		switch node := expr.(type) {
		case *Asset:
			set[NormalizeTicker(node.Ticker)] = true
		case *If:
			for _, o := range []Operand{node.Predicate.Lhs, node.Predicate.Rhs} {
				if o.Indicator != nil && o.Indicator.Symbol != "" {
					set[NormalizeTicker(o.Indicator.Symbol)] = true
				}
			}
		}
	})
	out := make([]string, 0, len(set))
	for symbol := range set {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// PricedSymbols are the symbols an evaluation may read prices for: indicator
// subjects and every asset under a filter. Assets elsewhere never need a
// price.
func PricedSymbols(root Expression) []string {
	set := map[string]bool{}
	walk(root, func(expr Expression) {
		switch node := expr.(type) {
		case *If:
			for _, o := range []Operand{node.Predicate.Lhs, node.Predicate.Rhs} {
				if o.Indicator != nil && o.Indicator.Symbol != "" {
					set[NormalizeTicker(o.Indicator.Symbol)] = true
				}
			}
		case *Filter:
			for _, candidate := range node.Candidates {
				walk(candidate, func(child Expression) {
					if asset, ok := child.(*Asset); ok {
						set[NormalizeTicker(asset.Ticker)] = true
					}
				})
			}
		}
	})
	out := make([]string, 0, len(set))
	for symbol := range set {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// MaxLookback is the largest indicator window referenced anywhere in the tree.
func MaxLookback(root Expression) int {
	deepest := 0
	visit := func(call *IndicatorCall) {
		if call != nil && call.Kind != IndicatorCurrentPrice && call.Window > deepest {
			deepest = call.Window
		}
	}
	walk(root, func(expr Expression) {
		switch node := expr.(type) {
		case *If:
			visit(node.Predicate.Lhs.Indicator)
			visit(node.Predicate.Rhs.Indicator)
		case *Filter:
			visit(&node.Rank)
		}
	})
	return deepest
}

func walk(expr Expression, fn func(Expression)) {
	if IsNilExpression(expr) {
		return
	}
	fn(expr)
	switch node := expr.(type) {
	case *Group:
		for _, child := range node.Children {
			walk(child, fn)
		}
	case *WeightEqual:
		for _, child := range node.Children {
			walk(child, fn)
		}
	case *WeightSpecified:
		for _, pair := range node.Pairs {
			walk(pair.Child, fn)
		}
	case *If:
		for _, child := range node.Then {
			walk(child, fn)
		}
		for _, child := range node.Else {
			walk(child, fn)
		}
	case *Filter:
		for _, child := range node.Candidates {
			walk(child, fn)
		}
	}
}

// IsNilExpression catches both a nil interface and a typed nil pointer.
func IsNilExpression(expr Expression) bool {
	switch node := expr.(type) {
	case nil:
		return true
	case *Asset:
		return node == nil
	case *Group:
		return node == nil
	case *WeightEqual:
		return node == nil
	case *WeightSpecified:
		return node == nil
	case *If:
		return node == nil
	case *Filter:
		return node == nil
	}
	return false
}
