package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/glorpus-work/cdse/pkg/errors"
)

// Operator precedence, tightest to loosest: not > and > or. A child
// combinator is parenthesized in the output iff its operator binds looser
// than its parent's; same-operator nesting is flattened since and/or are
// associative.
const (
	precOr = iota + 1
	precAnd
	precNot
	precLeaf
)

// Serialize renders a filter tree to the catalogue's $filter wire format.
// Rendering is deterministic: the same tree always yields the same string.
// It fails with ErrUnsupportedScalarKind if a value has no wire rendering.
func Serialize(node Node) (string, error) {
	if node == nil {
		return "", errors.Wrap(errors.ErrEmptyCombinator, "cannot serialize nil filter")
	}
	return render(node)
}

// SerializeAll renders several independent filters and joins them with "and"
// in the order given. The ordering is part of the contract: callers may key
// caches or logs on the resulting string.
func SerializeAll(nodes ...Node) (string, error) {
	if len(nodes) == 0 {
		return "", errors.ErrEmptyCombinator
	}
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		s, err := renderChild(n, precAnd)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " and "), nil
}

func render(node Node) (string, error) {
	switch n := node.(type) {
	case Predicate:
		return renderPredicate(n)
	case Attribute:
		return renderAttribute(n)
	case NotNode:
		return renderNot(n)
	case AndNode:
		return renderCombinator(n.Children, " and ", precAnd)
	case OrNode:
		return renderCombinator(n.Children, " or ", precOr)
	default:
		return "", errors.Wrapf(errors.ErrUnsupportedScalarKind, "unknown filter node %T", node)
	}
}

func renderCombinator(children []Node, sep string, prec int) (string, error) {
	parts := make([]string, 0, len(children))
	for _, child := range children {
		s, err := renderChild(child, prec)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, sep), nil
}

// renderChild renders a child expression, parenthesizing it when its operator
// binds looser than the parent's. Same-operator children render bare, which
// flattens "and(and(a,b),c)" to "a and b and c".
func renderChild(child Node, parentPrec int) (string, error) {
	s, err := render(child)
	if err != nil {
		return "", err
	}
	if precedence(child) < parentPrec {
		return "(" + s + ")", nil
	}
	return s, nil
}

func renderNot(n NotNode) (string, error) {
	s, err := render(n.Child)
	if err != nil {
		return "", err
	}
	// The catalogue grammar requires parentheses after "not" for everything
	// except function-form predicates: "not contains(f,'v')" is accepted,
	// "not f eq v" is not.
	if bareUnderNot(n.Child) {
		return "not " + s, nil
	}
	return "not (" + s + ")", nil
}

func bareUnderNot(node Node) bool {
	switch n := node.(type) {
	case Predicate:
		return n.Op.IsStringMatch()
	case Attribute:
		return n.Op.IsStringMatch()
	}
	return false
}

func precedence(node Node) int {
	switch node.(type) {
	case AndNode:
		return precAnd
	case OrNode:
		return precOr
	case NotNode:
		return precNot
	default:
		return precLeaf
	}
}

func renderPredicate(p Predicate) (string, error) {
	value, err := formatValue(p.Value)
	if err != nil {
		return "", errors.Wrapf(err, "field %s", p.Field)
	}
	if p.Op.IsStringMatch() {
		return fmt.Sprintf("%s(%s,%s)", p.Op, p.Field, value), nil
	}
	return fmt.Sprintf("%s %s %s", p.Field, p.Op, value), nil
}

// formatValue renders a scalar to its wire form: strings single-quoted with
// embedded quotes doubled, timestamps as RFC 3339 UTC with a Z suffix,
// booleans lowercase, numbers in canonical decimal form.
func formatValue(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'", nil
	case time.Time:
		return v.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"), nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", errors.Wrapf(errors.ErrUnsupportedScalarKind, "value type %T", value)
	}
}
