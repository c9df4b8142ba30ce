package odata

import (
	"fmt"

	"github.com/glorpus-work/cdse/pkg/errors"
	goversion "github.com/hashicorp/go-version"
)

// processorVersionAttribute is the extended attribute carrying the
// processing-baseline version of a product.
const processorVersionAttribute = "processorVersion"

// ProcessorVersion returns the product's processing-baseline version, parsed
// from the "processorVersion" extended attribute. The search must have been
// expanded with "Attributes".
func ProcessorVersion(p Product) (*goversion.Version, error) {
	attr, ok := p.Attribute(processorVersionAttribute)
	if !ok {
		return nil, errors.Wrapf(errors.ErrProductNotFound,
			"product %s has no %s attribute", p.Name, processorVersionAttribute)
	}
	raw, ok := attr.Value.(string)
	if !ok {
		raw = fmt.Sprintf("%v", attr.Value)
	}
	v, err := goversion.NewVersion(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "product %s: invalid processor version %q", p.Name, raw)
	}
	return v, nil
}

// SelectLatestBaseline picks the product with the newest processing-baseline
// version. Reprocessing campaigns publish the same scene under several
// baselines; callers usually want only the newest one.
func SelectLatestBaseline(products []Product) (Product, error) {
	if len(products) == 0 {
		return Product{}, errors.Wrap(errors.ErrProductNotFound, "no products to select from")
	}

	best := -1
	var bestVersion *goversion.Version
	for i, p := range products {
		v, err := ProcessorVersion(p)
		if err != nil {
			return Product{}, err
		}
		if bestVersion == nil || v.GreaterThan(bestVersion) {
			best = i
			bestVersion = v
		}
	}
	return products[best], nil
}
