package querytree

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querybuilder/internal/catalog"
	"github.com/roach88/querybuilder/internal/queryspec"
)

const (
	person       = "http://schema.org/Person"
	organization = "http://schema.org/Organization"
	sdo          = "http://schema.org/"
)

func testTypes() *catalog.Catalogue {
	c := catalog.New()
	c.Put(
		catalog.Type{ID: person, Label: "Person", Properties: []catalog.Property{
			{Attribute: "@id", Label: "id"},
			{Attribute: sdo + "name", Label: "Name"},
			{Attribute: sdo + "email", Label: "Email", AttributeNamespace: "schema"},
			{Attribute: sdo + "telephone", Label: "Telephone"},
			{Attribute: sdo + "worksAt", Label: "Works at", CanBe: []string{organization}},
			{Attribute: sdo + "knows", Label: "Knows", CanBe: []string{person}},
			{Attribute: sdo + "knows", Label: "Known by", CanBe: []string{person}, Reverse: true},
		}},
		catalog.Type{ID: organization, Label: "Organization", Properties: []catalog.Property{
			{Attribute: "@id", Label: "id"},
			{Attribute: sdo + "name", Label: "Legal name"},
			{Attribute: sdo + "address", Label: "Address"},
			{Attribute: sdo + "member", Label: "Member", CanBe: []string{person}},
		}},
	)
	return c
}

// property returns the schema of a catalogue property.
func property(t *testing.T, types TypeLookup, typeID, attribute string, reverse bool) Schema {
	t.Helper()
	typ, ok := types.Type(typeID)
	require.True(t, ok, "type %s", typeID)
	for _, p := range typ.Properties {
		if p.Attribute == attribute && p.Reverse == reverse {
			return SchemaFromProperty(p)
		}
	}
	t.Fatalf("no property %s on %s", attribute, typeID)
	return Schema{}
}

// roundTrip decodes doc, builds its tree and serializes the tree back into
// a document with the same envelope.
func roundTrip(t *testing.T, doc string) (*queryspec.Query, *Field, *queryspec.Query) {
	t.Helper()
	q, err := queryspec.Decode([]byte(doc))
	require.NoError(t, err)

	types := testTypes()
	root := Build(types, q.Context, RootSchemaFor(types, q.Meta.Type), q)
	return q, root, assemble(t, q, root)
}

func assemble(t *testing.T, q *queryspec.Query, root *Field) *queryspec.Query {
	t.Helper()
	s, err := Serialize(root)
	require.NoError(t, err)
	return &queryspec.Query{
		Context:    q.Context,
		Meta:       q.Meta,
		Structure:  s.Structure,
		Merge:      s.Merge,
		HasMerge:   len(s.Merge) > 0,
		Properties: root.Options,
	}
}

func assertEquivalent(t *testing.T, want, got *queryspec.Query) {
	t.Helper()
	w, err := json.Marshal(want)
	require.NoError(t, err)
	g, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(w), string(g))
}
