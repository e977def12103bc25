// Package metadata renders a backpack's self-describing document from its
// identifier, item count and dominant category.
package metadata

import (
	"encoding/json"

	"backpack/internal/ledger/models"
	id "backpack/pkg/domain"
)

// Trait names, in the order they appear in every document.
const (
	TraitItems            = "Items"
	TraitTopCategory      = "Top Category"
	TraitTopCategoryScore = "Top Category Score"
)

// Document is the rendered metadata. Field and attribute order are fixed, so
// encoding/json produces the same bytes for the same ledger state.
type Document struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes"`
}

// Attribute is one trait. Value is a string or an unsigned integer.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

// NewDocument assembles the document for a backpack.
func NewDocument(backpackID id.BackpackID, description, image string, count int, top models.Category) Document {
	return Document{
		Name:        "Backpack #" + backpackID.String(),
		Description: description,
		Image:       image,
		Attributes: []Attribute{
			{TraitType: TraitItems, Value: uint64(count)},
			{TraitType: TraitTopCategory, Value: top.Label},
			{TraitType: TraitTopCategoryScore, Value: top.Score},
		},
	}
}

// Canonical returns the compact JSON encoding of the document.
func (d Document) Canonical() ([]byte, error) {
	return json.Marshal(d)
}
