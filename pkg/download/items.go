package download

import (
	"github.com/glorpus-work/cdse/pkg/odata"
)

// ItemFromProduct converts a catalogue product descriptor into a download
// item, using the client's $value locator for the product.
func ItemFromProduct(client *odata.Client, p odata.Product) Item {
	checksums := make([]Checksum, 0, len(p.Checksums))
	for _, c := range p.Checksums {
		checksums = append(checksums, Checksum{Algorithm: c.Algorithm, Value: c.Value})
	}
	return Item{
		ID:        p.ID,
		Name:      p.Name,
		URL:       client.ProductDownloadURL(p.ID),
		Checksums: checksums,
	}
}

// ItemsFromProducts converts a batch of product descriptors.
func ItemsFromProducts(client *odata.Client, products []odata.Product) []Item {
	items := make([]Item, 0, len(products))
	for _, p := range products {
		items = append(items, ItemFromProduct(client, p))
	}
	return items
}
