package domain

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Strategy trees travel as JSON (or YAML of the same shape). This is a
// transport for the node model only; the S-expression DSL is parsed
// elsewhere.

//go:embed expression.schema.json
var expressionSchemaJson string

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func expressionSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("expression.schema.json", strings.NewReader(expressionSchemaJson)); err != nil {
			schemaErr = fmt.Errorf("failed to add expression schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("expression.schema.json")
	})
	return compiledSchema, schemaErr
}

type ExpressionJson struct {
	Type string `json:"type"`

	// asset
	Ticker string `json:"ticker,omitempty"`
	Name   string `json:"name,omitempty"`

	// group
	Label string `json:"label,omitempty"`

	// group, weight-equal
	Children []ExpressionJson `json:"children,omitempty"`

	// weight-specified
	Weights []WeightedChildJson `json:"weights,omitempty"`

	// if
	Predicate *PredicateJson `json:"predicate,omitempty"`
	Then      []ExpressionJson `json:"then,omitempty"`
	Else      []ExpressionJson `json:"else,omitempty"`

	// filter
	Sort       *IndicatorJson   `json:"sort,omitempty"`
	Select     *SelectorJson    `json:"select,omitempty"`
	Candidates []ExpressionJson `json:"candidates,omitempty"`
}

type WeightedChildJson struct {
	Weight decimal.Decimal `json:"weight"`
	Child  ExpressionJson  `json:"child"`
}

type PredicateJson struct {
	Lhs OperandJson `json:"lhs"`
	Op  string      `json:"op"`
	Rhs OperandJson `json:"rhs"`
}

type IndicatorJson struct {
	Fn     string `json:"fn"`
	Symbol string `json:"symbol,omitempty"`
	Window int    `json:"window,omitempty"`
}

type OperandJson struct {
	Fn     string           `json:"fn,omitempty"`
	Symbol string           `json:"symbol,omitempty"`
	Window int              `json:"window,omitempty"`
	Value  *decimal.Decimal `json:"value,omitempty"`
}

type SelectorJson struct {
	Fn string `json:"fn"`
	N  int    `json:"n"`
}

// ParseExpressionJson validates raw against the node schema, decodes it and
// interns repeated subtrees.
func ParseExpressionJson(raw []byte) (Expression, error) {
	schema, err := expressionSchema()
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse strategy json: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, InvalidExpressionError{Reason: err.Error()}
	}

	node := ExpressionJson{}
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("failed to decode strategy json: %w", err)
	}
	expr, err := node.ToExpression()
	if err != nil {
		return nil, err
	}

	return NewInterner().Intern(expr)
}

// ParseExpressionYaml accepts the same shape as ParseExpressionJson.
func ParseExpressionYaml(raw []byte) (Expression, error) {
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse strategy yaml: %w", err)
	}
	asJson, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert strategy yaml to json: %w", err)
	}
	return ParseExpressionJson(asJson)
}

func (n ExpressionJson) ToExpression() (Expression, error) {
	switch n.Type {
	case "asset":
		if strings.TrimSpace(n.Ticker) == "" {
			return nil, InvalidExpressionError{Reason: "asset is missing a ticker"}
		}
		return &Asset{Ticker: n.Ticker, DisplayName: n.Name}, nil
	case "group":
		children, err := toExpressions(n.Children)
		if err != nil {
			return nil, err
		}
		return &Group{Label: n.Label, Children: children}, nil
	case "weight-equal":
		children, err := toExpressions(n.Children)
		if err != nil {
			return nil, err
		}
		return &WeightEqual{Children: children}, nil
	case "weight-specified":
		pairs := make([]WeightedChild, 0, len(n.Weights))
		for _, w := range n.Weights {
			child, err := w.Child.ToExpression()
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, WeightedChild{Weight: w.Weight, Child: child})
		}
		return &WeightSpecified{Pairs: pairs}, nil
	case "if":
		if n.Predicate == nil {
			return nil, InvalidExpressionError{Reason: "if is missing a predicate"}
		}
		predicate, err := n.Predicate.toPredicate()
		if err != nil {
			return nil, err
		}
		then, err := toExpressions(n.Then)
		if err != nil {
			return nil, err
		}
		otherwise, err := toExpressions(n.Else)
		if err != nil {
			return nil, err
		}
		return &If{Predicate: *predicate, Then: then, Else: otherwise}, nil
	case "filter":
		if n.Sort == nil || n.Select == nil {
			return nil, InvalidExpressionError{Reason: "filter needs sort and select"}
		}
		if !IndicatorKind(n.Sort.Fn).IsValid() {
			return nil, IndicatorDomainError{Kind: IndicatorKind(n.Sort.Fn), Window: n.Sort.Window, Reason: "unknown indicator"}
		}
		candidates, err := toExpressions(n.Candidates)
		if err != nil {
			return nil, err
		}
		return &Filter{
			Rank: IndicatorCall{
				Kind:   IndicatorKind(n.Sort.Fn),
				Symbol: n.Sort.Symbol,
				Window: n.Sort.Window,
			},
			Selector: Selector{
				Kind: SelectorKind(n.Select.Fn),
				N:    n.Select.N,
			},
			Candidates: candidates,
		}, nil
	}
	return nil, InvalidExpressionError{Reason: fmt.Sprintf("unknown node type %q", n.Type)}
}

func toExpressions(nodes []ExpressionJson) ([]Expression, error) {
	out := make([]Expression, 0, len(nodes))
	for _, n := range nodes {
		expr, err := n.ToExpression()
		if err != nil {
			return nil, err
		}
		out = append(out, expr)
	}
	return out, nil
}

func (p PredicateJson) toPredicate() (*Predicate, error) {
	lhs, err := p.Lhs.toOperand()
	if err != nil {
		return nil, err
	}
	rhs, err := p.Rhs.toOperand()
	if err != nil {
		return nil, err
	}
	return &Predicate{Lhs: lhs, Op: Comparator(p.Op), Rhs: rhs}, nil
}

func (o OperandJson) toOperand() (Operand, error) {
	if o.Value != nil && o.Fn != "" {
		return Operand{}, InvalidExpressionError{Reason: "operand has both a value and an indicator"}
	}
	if o.Value != nil {
		return LiteralOperand(*o.Value), nil
	}
	if o.Fn == "" {
		return Operand{}, InvalidExpressionError{Reason: "operand needs a value or an indicator"}
	}
	if !IndicatorKind(o.Fn).IsValid() {
		return Operand{}, IndicatorDomainError{Kind: IndicatorKind(o.Fn), Window: o.Window, Reason: "unknown indicator"}
	}
	return IndicatorOperand(IndicatorCall{
		Kind:   IndicatorKind(o.Fn),
		Symbol: o.Symbol,
		Window: o.Window,
	}), nil
}

// ExpressionToJson is the inverse of ExpressionJson.ToExpression.
func ExpressionToJson(expr Expression) (ExpressionJson, error) {
	if IsNilExpression(expr) {
		return ExpressionJson{}, InvalidExpressionError{Reason: "nil node"}
	}
	switch node := expr.(type) {
	case *Asset:
		return ExpressionJson{Type: "asset", Ticker: node.Ticker, Name: node.DisplayName}, nil
	case *Group:
		children, err := toJsonList(node.Children)
		if err != nil {
			return ExpressionJson{}, err
		}
		return ExpressionJson{Type: "group", Label: node.Label, Children: children}, nil
	case *WeightEqual:
		children, err := toJsonList(node.Children)
		if err != nil {
			return ExpressionJson{}, err
		}
		return ExpressionJson{Type: "weight-equal", Children: children}, nil
	case *WeightSpecified:
		weights := make([]WeightedChildJson, 0, len(node.Pairs))
		for _, pair := range node.Pairs {
			child, err := ExpressionToJson(pair.Child)
			if err != nil {
				return ExpressionJson{}, err
			}
			weights = append(weights, WeightedChildJson{Weight: pair.Weight, Child: child})
		}
		return ExpressionJson{Type: "weight-specified", Weights: weights}, nil
	case *If:
		then, err := toJsonList(node.Then)
		if err != nil {
			return ExpressionJson{}, err
		}
		otherwise, err := toJsonList(node.Else)
		if err != nil {
			return ExpressionJson{}, err
		}
		return ExpressionJson{
			Type: "if",
			Predicate: &PredicateJson{
				Lhs: operandToJson(node.Predicate.Lhs),
				Op:  string(node.Predicate.Op),
				Rhs: operandToJson(node.Predicate.Rhs),
			},
			Then: then,
			Else: otherwise,
		}, nil
	case *Filter:
		candidates, err := toJsonList(node.Candidates)
		if err != nil {
			return ExpressionJson{}, err
		}
		return ExpressionJson{
			Type: "filter",
			Sort: &IndicatorJson{
				Fn:     string(node.Rank.Kind),
				Symbol: node.Rank.Symbol,
				Window: node.Rank.Window,
			},
			Select:     &SelectorJson{Fn: string(node.Selector.Kind), N: node.Selector.N},
			Candidates: candidates,
		}, nil
	}
	return ExpressionJson{}, InvalidExpressionError{Reason: fmt.Sprintf("unknown node type %T", expr)}
}

func toJsonList(children []Expression) ([]ExpressionJson, error) {
	out := make([]ExpressionJson, 0, len(children))
	for _, child := range children {
		j, err := ExpressionToJson(child)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

func operandToJson(o Operand) OperandJson {
	if o.Literal != nil {
		v := *o.Literal
		return OperandJson{Value: &v}
	}
	if o.Indicator != nil {
		return OperandJson{Fn: string(o.Indicator.Kind), Symbol: o.Indicator.Symbol, Window: o.Indicator.Window}
	}
	return OperandJson{}
}
