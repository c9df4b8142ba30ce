package filter

import (
	"testing"
	"time"

	"github.com/glorpus-work/cdse/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEq(t *testing.T, field string, value interface{}) Node {
	t.Helper()
	node, err := Eq(field, value)
	require.NoError(t, err)
	return node
}

func mustPredicate(t *testing.T, field string, op Op, value interface{}) Node {
	t.Helper()
	node, err := NewPredicate(field, op, value)
	require.NoError(t, err)
	return node
}

func TestSerialize_Leaves(t *testing.T) {
	tests := []struct {
		name     string
		node     func(t *testing.T) Node
		expected string
	}{
		{
			name:     "string equality",
			node:     func(t *testing.T) Node { return mustEq(t, "productType", "S2MSI1C") },
			expected: "productType eq 'S2MSI1C'",
		},
		{
			name:     "embedded quote is doubled",
			node:     func(t *testing.T) Node { return mustEq(t, "Name", "o'brien") },
			expected: "Name eq 'o''brien'",
		},
		{
			name:     "integer comparison",
			node:     func(t *testing.T) Node { return mustPredicate(t, "cloudCover", OpGt, 10) },
			expected: "cloudCover gt 10",
		},
		{
			name:     "float renders canonical decimal",
			node:     func(t *testing.T) Node { return mustPredicate(t, "cloudCover", OpLe, 37.5) },
			expected: "cloudCover le 37.5",
		},
		{
			name:     "bool renders lowercase",
			node:     func(t *testing.T) Node { return mustEq(t, "Online", true) },
			expected: "Online eq true",
		},
		{
			name: "time renders UTC with Z suffix",
			node: func(t *testing.T) Node {
				loc := time.FixedZone("CET", 3600)
				return mustPredicate(t, "ContentDate/Start", OpGe, time.Date(2024, 3, 1, 13, 30, 0, 0, loc))
			},
			expected: "ContentDate/Start ge 2024-03-01T12:30:00Z",
		},
		{
			name:     "ne renders infix",
			node:     func(t *testing.T) Node { return mustPredicate(t, "productType", OpNe, "S2MSI2A") },
			expected: "productType ne 'S2MSI2A'",
		},
		{
			name:     "contains renders function form",
			node:     func(t *testing.T) Node { return mustPredicate(t, "Name", OpContains, "MSIL1C") },
			expected: "contains(Name,'MSIL1C')",
		},
		{
			name:     "startswith renders function form",
			node:     func(t *testing.T) Node { return mustPredicate(t, "Name", OpStartsWith, "S2A") },
			expected: "startswith(Name,'S2A')",
		},
		{
			name:     "endswith renders function form",
			node:     func(t *testing.T) Node { return mustPredicate(t, "Name", OpEndsWith, ".SAFE") },
			expected: "endswith(Name,'.SAFE')",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Serialize(tt.node(t))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSerialize_Precedence(t *testing.T) {
	gt := mustPredicate(t, "cloudCover", OpGt, 10)
	lt := mustPredicate(t, "cloudCover", OpLt, 50)
	tileA := mustEq(t, "tileId", "32TPN")
	tileB := mustEq(t, "tileId", "33TUH")

	t.Run("and of two predicates has no parentheses", func(t *testing.T) {
		node, err := And(gt, lt)
		require.NoError(t, err)
		got, err := Serialize(node)
		require.NoError(t, err)
		assert.Equal(t, "cloudCover gt 10 and cloudCover lt 50", got)
	})

	t.Run("or nested under and is parenthesized", func(t *testing.T) {
		or, err := Or(tileA, tileB)
		require.NoError(t, err)
		node, err := And(gt, or)
		require.NoError(t, err)
		got, err := Serialize(node)
		require.NoError(t, err)
		assert.Equal(t, "cloudCover gt 10 and (tileId eq '32TPN' or tileId eq '33TUH')", got)
	})

	t.Run("and nested under and is flattened", func(t *testing.T) {
		inner, err := And(gt, lt)
		require.NoError(t, err)
		node, err := And(inner, tileA)
		require.NoError(t, err)
		got, err := Serialize(node)
		require.NoError(t, err)
		assert.Equal(t, "cloudCover gt 10 and cloudCover lt 50 and tileId eq '32TPN'", got)
	})

	t.Run("and nested under or is not parenthesized", func(t *testing.T) {
		inner, err := And(gt, lt)
		require.NoError(t, err)
		node, err := Or(inner, tileA)
		require.NoError(t, err)
		got, err := Serialize(node)
		require.NoError(t, err)
		assert.Equal(t, "cloudCover gt 10 and cloudCover lt 50 or tileId eq '32TPN'", got)
	})

	t.Run("or nested under or is flattened", func(t *testing.T) {
		inner, err := Or(tileA, tileB)
		require.NoError(t, err)
		node, err := Or(inner, gt)
		require.NoError(t, err)
		got, err := Serialize(node)
		require.NoError(t, err)
		assert.Equal(t, "tileId eq '32TPN' or tileId eq '33TUH' or cloudCover gt 10", got)
	})
}

func TestSerialize_Not(t *testing.T) {
	t.Run("comparison child is parenthesized", func(t *testing.T) {
		got, err := Serialize(Not(mustEq(t, "productType", "S2MSI1C")))
		require.NoError(t, err)
		assert.Equal(t, "not (productType eq 'S2MSI1C')", got)
	})

	t.Run("function-form child is bare", func(t *testing.T) {
		got, err := Serialize(Not(mustPredicate(t, "Name", OpContains, "L1C")))
		require.NoError(t, err)
		assert.Equal(t, "not contains(Name,'L1C')", got)
	})

	t.Run("combinator child is parenthesized", func(t *testing.T) {
		or, err := Or(mustEq(t, "tileId", "32TPN"), mustEq(t, "tileId", "33TUH"))
		require.NoError(t, err)
		got, err := Serialize(Not(or))
		require.NoError(t, err)
		assert.Equal(t, "not (tileId eq '32TPN' or tileId eq '33TUH')", got)
	})
}

func TestSerialize_Deterministic(t *testing.T) {
	or, err := Or(mustEq(t, "tileId", "32TPN"), mustEq(t, "tileId", "33TUH"))
	require.NoError(t, err)
	node, err := And(mustPredicate(t, "cloudCover", OpLt, 20.0), Not(or))
	require.NoError(t, err)

	first, err := Serialize(node)
	require.NoError(t, err)
	second, err := Serialize(node)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSerializeAll(t *testing.T) {
	t.Run("joins in caller order", func(t *testing.T) {
		got, err := SerializeAll(
			mustEq(t, "Collection/Name", "SENTINEL-2"),
			mustPredicate(t, "cloudCover", OpLt, 20),
		)
		require.NoError(t, err)
		assert.Equal(t, "Collection/Name eq 'SENTINEL-2' and cloudCover lt 20", got)
	})

	t.Run("or argument is parenthesized", func(t *testing.T) {
		or, err := Or(mustEq(t, "tileId", "32TPN"), mustEq(t, "tileId", "33TUH"))
		require.NoError(t, err)
		got, err := SerializeAll(mustEq(t, "Collection/Name", "SENTINEL-2"), or)
		require.NoError(t, err)
		assert.Equal(t, "Collection/Name eq 'SENTINEL-2' and (tileId eq '32TPN' or tileId eq '33TUH')", got)
	})

	t.Run("empty input fails", func(t *testing.T) {
		_, err := SerializeAll()
		assert.ErrorIs(t, err, errors.ErrEmptyCombinator)
	})
}

func TestSerialize_Attribute(t *testing.T) {
	tests := []struct {
		name     string
		attr     string
		op       Op
		value    interface{}
		expected string
	}{
		{
			name: "string attribute equality", attr: "productType", op: OpEq, value: "S2MSI1C",
			expected: "Attributes/OData.CSC.StringAttribute/any(att:att/Name eq 'productType' and att/OData.CSC.StringAttribute/Value eq 'S2MSI1C')",
		},
		{
			name: "double attribute comparison", attr: "cloudCover", op: OpLt, value: 40.0,
			expected: "Attributes/OData.CSC.DoubleAttribute/any(att:att/Name eq 'cloudCover' and att/OData.CSC.DoubleAttribute/Value lt 40)",
		},
		{
			name: "integer attribute comparison", attr: "relativeOrbitNumber", op: OpEq, value: 8,
			expected: "Attributes/OData.CSC.IntegerAttribute/any(att:att/Name eq 'relativeOrbitNumber' and att/OData.CSC.IntegerAttribute/Value eq 8)",
		},
		{
			name: "string match attribute", attr: "productType", op: OpStartsWith, value: "S2MSI",
			expected: "Attributes/OData.CSC.StringAttribute/any(att:att/Name eq 'productType' and startswith(att/OData.CSC.StringAttribute/Value,'S2MSI'))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := NewAttribute(tt.attr, tt.op, tt.value)
			require.NoError(t, err)
			got, err := Serialize(node)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSerialize_UnsupportedScalar(t *testing.T) {
	// A hand-built predicate bypassing the constructor must still fail
	// cleanly at serialization time.
	node := Predicate{Field: "Name", Op: OpEq, Value: map[string]int{"a": 1}}
	_, err := Serialize(node)
	assert.ErrorIs(t, err, errors.ErrUnsupportedScalarKind)
}

func TestSerialize_NilFilter(t *testing.T) {
	_, err := Serialize(nil)
	require.Error(t, err)
}
