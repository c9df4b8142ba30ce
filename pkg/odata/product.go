// Package odata queries the CDSE catalogue OData endpoints: product search,
// deleted-product search and pagination.
package odata

import "time"

// Checksum is one checksum entry from a product descriptor.
type Checksum struct {
	Value        string `json:"Value"`
	Algorithm    string `json:"Algorithm"`
	ChecksumDate string `json:"ChecksumDate,omitempty"`
}

// ProductAttribute is one extended attribute of a product, present when the
// search was expanded with "Attributes".
type ProductAttribute struct {
	Name      string      `json:"Name"`
	Value     interface{} `json:"Value"`
	ValueType string      `json:"ValueType"`
}

// Product is a catalogue product descriptor.
type Product struct {
	ID               string             `json:"Id"`
	Name             string             `json:"Name"`
	ContentType      string             `json:"ContentType,omitempty"`
	ContentLength    int64              `json:"ContentLength"`
	Online           bool               `json:"Online"`
	PublicationDate  time.Time          `json:"PublicationDate"`
	ModificationDate time.Time          `json:"ModificationDate"`
	S3Path           string             `json:"S3Path,omitempty"`
	Checksums        []Checksum         `json:"Checksum,omitempty"`
	Attributes       []ProductAttribute `json:"Attributes,omitempty"`
}

// Attribute returns the named extended attribute and whether it is present.
func (p Product) Attribute(name string) (ProductAttribute, bool) {
	for _, a := range p.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return ProductAttribute{}, false
}

// DeletedProduct is a descriptor from the DeletedProducts endpoint.
type DeletedProduct struct {
	ID              string    `json:"Id"`
	Name            string    `json:"Name"`
	ContentLength   int64     `json:"ContentLength"`
	DeletionDate    time.Time `json:"DeletionDate"`
	DeletionCause   string    `json:"DeletionCause"`
	OriginDate      time.Time `json:"OriginDate"`
	PublicationDate time.Time `json:"PublicationDate"`
}

// DeletionCauses is the fixed vocabulary of deletion causes used by the
// DeletedProducts endpoint.
var DeletionCauses = []string{
	"Duplicated product",
	"Missing checksum",
	"Corrupted product",
	"Obsolete product or Other",
}
