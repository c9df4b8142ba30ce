package filter

import (
	"fmt"
	"time"

	"github.com/glorpus-work/cdse/pkg/errors"
)

// Attribute is a predicate over a product's extended attribute collection.
// The catalogue stores attributes in typed sub-collections, so the rendering
// wraps the comparison in an any() lambda over the matching attribute kind:
//
//	Attributes/OData.CSC.StringAttribute/any(att:att/Name eq 'productType'
//	    and att/OData.CSC.StringAttribute/Value eq 'S2MSI1C')
type Attribute struct {
	Name  string
	Op    Op
	Value interface{}
}

func (Attribute) isNode() {}

// NewAttribute builds an extended-attribute predicate. The attribute kind is
// derived from the value: string, integer, float and time values map to the
// catalogue's typed attribute collections; booleans have no attribute kind
// and fail with ErrInvalidValueKind.
func NewAttribute(name string, op Op, value interface{}) (Node, error) {
	if !op.isValid() {
		return nil, errors.Wrapf(errors.ErrInvalidValueKind, "unknown operator %q", op)
	}
	if _, err := attributeKind(value); err != nil {
		return nil, errors.Wrapf(err, "attribute %s", name)
	}
	if op.IsStringMatch() {
		if _, ok := value.(string); !ok {
			return nil, errors.Wrapf(errors.ErrInvalidValueKind, "%s requires a string value, got %T", op, value)
		}
	}
	return Attribute{Name: name, Op: op, Value: value}, nil
}

func attributeKind(value interface{}) (string, error) {
	switch value.(type) {
	case string:
		return "StringAttribute", nil
	case int, int32, int64:
		return "IntegerAttribute", nil
	case float32, float64:
		return "DoubleAttribute", nil
	case time.Time:
		return "DateTimeOffsetAttribute", nil
	default:
		return "", errors.Wrapf(errors.ErrInvalidValueKind, "no attribute kind for value type %T", value)
	}
}

func renderAttribute(a Attribute) (string, error) {
	kind, err := attributeKind(a.Value)
	if err != nil {
		return "", err
	}
	value, err := formatValue(a.Value)
	if err != nil {
		return "", errors.Wrapf(err, "attribute %s", a.Name)
	}

	valueField := fmt.Sprintf("att/OData.CSC.%s/Value", kind)
	var comparison string
	if a.Op.IsStringMatch() {
		comparison = fmt.Sprintf("%s(%s,%s)", a.Op, valueField, value)
	} else {
		comparison = fmt.Sprintf("%s %s %s", valueField, a.Op, value)
	}
	return fmt.Sprintf("Attributes/OData.CSC.%s/any(att:att/Name eq '%s' and %s)", kind, a.Name, comparison), nil
}
