package filter

import (
	"testing"
	"time"

	"github.com/glorpus-work/cdse/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPredicate(t *testing.T) {
	tests := []struct {
		name      string
		field     string
		op        Op
		value     interface{}
		expectErr error
	}{
		{
			name:  "eq with string",
			field: "productType",
			op:    OpEq,
			value: "S2MSI1C",
		},
		{
			name:  "gt with int",
			field: "cloudCover",
			op:    OpGt,
			value: 10,
		},
		{
			name:  "le with float",
			field: "cloudCover",
			op:    OpLe,
			value: 37.5,
		},
		{
			name:  "eq with time",
			field: "ContentDate/Start",
			op:    OpEq,
			value: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "eq with bool",
			field: "Online",
			op:    OpEq,
			value: true,
		},
		{
			name:      "contains with int",
			field:     "Name",
			op:        OpContains,
			value:     42,
			expectErr: errors.ErrInvalidValueKind,
		},
		{
			name:      "startswith with bool",
			field:     "Name",
			op:        OpStartsWith,
			value:     false,
			expectErr: errors.ErrInvalidValueKind,
		},
		{
			name:      "unsupported value type",
			field:     "Name",
			op:        OpEq,
			value:     []string{"a"},
			expectErr: errors.ErrInvalidValueKind,
		},
		{
			name:      "unknown operator",
			field:     "Name",
			op:        Op("like"),
			value:     "x",
			expectErr: errors.ErrInvalidValueKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := NewPredicate(tt.field, tt.op, tt.value)
			if tt.expectErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, node)
		})
	}
}

func TestCombinators_Empty(t *testing.T) {
	_, err := And()
	assert.ErrorIs(t, err, errors.ErrEmptyCombinator)

	_, err = Or()
	assert.ErrorIs(t, err, errors.ErrEmptyCombinator)
}

func TestCombinators_SingleChildDegenerates(t *testing.T) {
	leaf, err := Eq("productType", "S2MSI1C")
	require.NoError(t, err)

	andNode, err := And(leaf)
	require.NoError(t, err)
	assert.Equal(t, leaf, andNode)

	orNode, err := Or(leaf)
	require.NoError(t, err)
	assert.Equal(t, leaf, orNode)
}

func TestNot_PreservesDoubleNegation(t *testing.T) {
	leaf, err := Eq("Online", true)
	require.NoError(t, err)

	twice := Not(Not(leaf))
	outer, ok := twice.(NotNode)
	require.True(t, ok)
	inner, ok := outer.Child.(NotNode)
	require.True(t, ok)
	assert.Equal(t, leaf, inner.Child)
}

func TestCombinators_CopyChildren(t *testing.T) {
	a, err := Eq("a", 1)
	require.NoError(t, err)
	b, err := Eq("b", 2)
	require.NoError(t, err)

	nodes := []Node{a, b}
	combined, err := And(nodes...)
	require.NoError(t, err)

	// Mutating the caller's slice must not affect the tree.
	nodes[0] = b
	andNode, ok := combined.(AndNode)
	require.True(t, ok)
	assert.Equal(t, a, andNode.Children[0])
}

func TestNewAttribute(t *testing.T) {
	tests := []struct {
		name      string
		attr      string
		op        Op
		value     interface{}
		expectErr error
	}{
		{name: "string attribute", attr: "productType", op: OpEq, value: "S2MSI1C"},
		{name: "integer attribute", attr: "orbitNumber", op: OpGt, value: 1000},
		{name: "double attribute", attr: "cloudCover", op: OpLt, value: 40.0},
		{name: "datetime attribute", attr: "beginningDateTime", op: OpGe, value: time.Now()},
		{name: "bool has no attribute kind", attr: "online", op: OpEq, value: true, expectErr: errors.ErrInvalidValueKind},
		{name: "contains with float", attr: "tileId", op: OpContains, value: 1.5, expectErr: errors.ErrInvalidValueKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := NewAttribute(tt.attr, tt.op, tt.value)
			if tt.expectErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, node)
		})
	}
}
