// Package filter builds OData $filter expressions for the CDSE catalogue.
//
// Filters are immutable expression trees composed from predicates and the
// boolean combinators And, Or and Not. A tree is rendered to the wire format
// understood by the catalogue with Serialize.
package filter

import (
	"time"

	"github.com/glorpus-work/cdse/pkg/errors"
)

// Op identifies a predicate operator.
type Op string

// Supported predicate operators. Comparison operators render infix
// ("field eq value"); the string-match operators render in function form
// ("contains(field,'value')").
const (
	OpEq Op = "eq"
	OpNe Op = "ne"
	OpGt Op = "gt"
	OpGe Op = "ge"
	OpLt Op = "lt"
	OpLe Op = "le"

	OpContains   Op = "contains"
	OpStartsWith Op = "startswith"
	OpEndsWith   Op = "endswith"
)

// IsStringMatch reports whether the operator renders in function form and
// only accepts string values.
func (o Op) IsStringMatch() bool {
	switch o {
	case OpContains, OpStartsWith, OpEndsWith:
		return true
	}
	return false
}

func (o Op) isValid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe, OpContains, OpStartsWith, OpEndsWith:
		return true
	}
	return false
}

// Node is a node of a filter expression tree. Nodes are immutable after
// construction and safe for concurrent use.
type Node interface {
	isNode()
}

// Predicate is a single attribute comparison leaf.
type Predicate struct {
	Field string
	Op    Op
	Value interface{}
}

func (Predicate) isNode() {}

// NotNode negates its child. Double negation is preserved structurally.
type NotNode struct {
	Child Node
}

func (NotNode) isNode() {}

// AndNode is the conjunction of its children, in order.
type AndNode struct {
	Children []Node
}

func (AndNode) isNode() {}

// OrNode is the disjunction of its children, in order.
type OrNode struct {
	Children []Node
}

func (OrNode) isNode() {}

// NewPredicate builds a predicate leaf. It fails with ErrInvalidValueKind if
// the value's kind cannot be serialized for the operator: string-match
// operators require a string value, and only string, integer, float, boolean
// and time.Time values are accepted at all.
func NewPredicate(field string, op Op, value interface{}) (Node, error) {
	if !op.isValid() {
		return nil, errors.Wrapf(errors.ErrInvalidValueKind, "unknown operator %q", op)
	}
	if !isScalar(value) {
		return nil, errors.Wrapf(errors.ErrInvalidValueKind, "field %s: value type %T", field, value)
	}
	if op.IsStringMatch() {
		if _, ok := value.(string); !ok {
			return nil, errors.Wrapf(errors.ErrInvalidValueKind, "%s requires a string value, got %T", op, value)
		}
	}
	return Predicate{Field: field, Op: op, Value: value}, nil
}

// Eq builds a "field eq value" predicate.
func Eq(field string, value interface{}) (Node, error) { return NewPredicate(field, OpEq, value) }

// Ne builds a "field ne value" predicate.
func Ne(field string, value interface{}) (Node, error) { return NewPredicate(field, OpNe, value) }

// Gt builds a "field gt value" predicate.
func Gt(field string, value interface{}) (Node, error) { return NewPredicate(field, OpGt, value) }

// Ge builds a "field ge value" predicate.
func Ge(field string, value interface{}) (Node, error) { return NewPredicate(field, OpGe, value) }

// Lt builds a "field lt value" predicate.
func Lt(field string, value interface{}) (Node, error) { return NewPredicate(field, OpLt, value) }

// Le builds a "field le value" predicate.
func Le(field string, value interface{}) (Node, error) { return NewPredicate(field, OpLe, value) }

// Contains builds a "contains(field,'value')" predicate.
func Contains(field, value string) (Node, error) {
	return NewPredicate(field, OpContains, value)
}

// StartsWith builds a "startswith(field,'value')" predicate.
func StartsWith(field, value string) (Node, error) {
	return NewPredicate(field, OpStartsWith, value)
}

// EndsWith builds an "endswith(field,'value')" predicate.
func EndsWith(field, value string) (Node, error) {
	return NewPredicate(field, OpEndsWith, value)
}

// And joins the given filters with "and". A single child degenerates to the
// child itself. It fails with ErrEmptyCombinator when no children are given.
func And(nodes ...Node) (Node, error) {
	return combine(nodes, func(children []Node) Node { return AndNode{Children: children} })
}

// Or joins the given filters with "or". A single child degenerates to the
// child itself. It fails with ErrEmptyCombinator when no children are given.
func Or(nodes ...Node) (Node, error) {
	return combine(nodes, func(children []Node) Node { return OrNode{Children: children} })
}

// Not negates the given filter. It wraps unconditionally; "not not x" stays
// a double negation in the tree.
func Not(node Node) Node {
	return NotNode{Child: node}
}

func combine(nodes []Node, build func([]Node) Node) (Node, error) {
	if len(nodes) == 0 {
		return nil, errors.ErrEmptyCombinator
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	children := make([]Node, len(nodes))
	copy(children, nodes)
	return build(children), nil
}

func isScalar(value interface{}) bool {
	switch value.(type) {
	case string, int, int32, int64, float32, float64, bool, time.Time:
		return true
	}
	return false
}
