package querytree

import (
	"slices"

	"github.com/roach88/querybuilder/internal/catalog"
)

// TypeLookup resolves type descriptors by id. *catalog.Catalogue
// implements it.
type TypeLookup interface {
	Type(id string) (*catalog.Type, bool)
}

// Schema is the property a field was created from, or the synthetic schema
// of a query root or merge group.
type Schema struct {
	ID                  string
	Label               string
	Attribute           string
	SimpleAttributeName string
	AttributeNamespace  string
	CanBe               []string
	Reverse             bool
}

// IsLink reports whether the schema links to other entities.
func (s Schema) IsLink() bool {
	return len(s.CanBe) > 0
}

func (s Schema) clone() Schema {
	s.CanBe = slices.Clone(s.CanBe)
	return s
}

// RootSchema returns the schema of a query rooted at t.
func RootSchema(t *catalog.Type) Schema {
	return Schema{ID: t.ID, Label: t.Label, CanBe: []string{t.ID}}
}

// RootSchemaFor returns the root schema for typeID, falling back to a
// schema derived from the id when the catalogue does not know the type.
func RootSchemaFor(types TypeLookup, typeID string) Schema {
	if types != nil {
		if t, ok := types.Type(typeID); ok {
			return RootSchema(t)
		}
	}
	return Schema{ID: typeID, Label: catalog.SimpleAttributeName(typeID), CanBe: []string{typeID}}
}

// SchemaFromProperty copies a catalogue property.
func SchemaFromProperty(p catalog.Property) Schema {
	simple := p.SimpleAttributeName
	if simple == "" {
		simple = catalog.SimpleAttributeName(p.Attribute)
	}
	label := p.Label
	if label == "" {
		label = simple
	}
	return Schema{
		Label:               label,
		Attribute:           p.Attribute,
		SimpleAttributeName: simple,
		AttributeNamespace:  p.AttributeNamespace,
		CanBe:               slices.Clone(p.CanBe),
		Reverse:             p.Reverse,
	}
}

func identitySchema() Schema {
	return Schema{Label: "id", Attribute: "@id", SimpleAttributeName: "id"}
}

func mergeSchema() Schema {
	return Schema{Label: "merge"}
}
