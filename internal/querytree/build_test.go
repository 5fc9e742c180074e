package querytree

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querybuilder/internal/queryspec"
)

func TestBuild_SingleAttribute(t *testing.T) {
	q, root, out := roundTrip(t, `{
		"@context": {"@vocab": "https://core.kg.ebrains.eu/vocab/query/", "query": "https://schema.hbp.eu/myQuery/"},
		"meta": {"type": "http://schema.org/Person"},
		"structure": [{"propertyName": "query:name", "path": "http://schema.org/name"}]
	}`)

	require.Len(t, root.Structure, 1)
	child := root.Structure[0]
	assert.Same(t, root, child.Parent)
	assert.False(t, child.IsUnknown)
	assert.False(t, child.IsInvalid)
	assert.Equal(t, "name", child.Schema.SimpleAttributeName)
	assert.Empty(t, child.Alias)
	assert.False(t, root.IsInvalidLeaf)

	assertEquivalent(t, q, out)
}

func TestBuild_FlattenedChain(t *testing.T) {
	q, root, out := roundTrip(t, `{
		"meta": {"type": "http://schema.org/Person"},
		"structure": {"propertyName": "query:name", "path": ["worksAt", "name"]}
	}`)

	require.Len(t, root.Structure, 1)
	works := root.Structure[0]
	assert.True(t, works.IsFlattened)
	assert.False(t, works.IsUnknown)
	assert.Equal(t, sdo+"worksAt", works.Schema.Attribute)

	require.Len(t, works.Structure, 1)
	name := works.Structure[0]
	assert.False(t, name.IsFlattened)
	assert.False(t, name.IsUnknown)
	assert.Equal(t, "Legal name", name.Schema.Label)

	require.Len(t, out.Structure, 1)
	entry := out.Structure[0]
	assert.Equal(t, "query:name", entry.PropertyName)
	assert.Equal(t, []queryspec.Segment{{ID: "worksAt"}, {ID: "name"}}, entry.Path.Segments)
	assert.Empty(t, entry.Structure)

	assertEquivalent(t, q, out)
}

func TestBuild_UnknownProperty(t *testing.T) {
	q, root, out := roundTrip(t, `{
		"meta": {"type": "http://schema.org/Person"},
		"structure": {"propertyName": "query:prop", "path": "http://unknown.example/prop"}
	}`)

	require.Len(t, root.Structure, 1)
	f := root.Structure[0]
	assert.True(t, f.IsUnknown)
	assert.False(t, f.IsInvalid)
	assert.Same(t, root, f.Parent)
	assert.Equal(t, "http://unknown.example/prop", f.Schema.Attribute)
	assert.Equal(t, "prop", f.Schema.SimpleAttributeName)

	assertEquivalent(t, q, out)
}

func TestBuild_ReverseWithTypeFilter(t *testing.T) {
	q, root, out := roundTrip(t, `{
		"meta": {"type": "http://schema.org/Person"},
		"structure": {
			"propertyName": "query:knownBy",
			"path": {"@id": "http://schema.org/knows", "reverse": true, "typeFilter": {"@id": "http://schema.org/Person"}},
			"structure": {"propertyName": "query:id", "path": "@id"}
		}
	}`)

	f := root.Structure[0]
	assert.Equal(t, "Known by", f.Schema.Label)
	assert.True(t, f.IsReverse)
	assert.Equal(t, []string{person}, f.TypeFilter)
	assert.Equal(t, []string{person}, f.Lookups())
	assert.Equal(t, "knownBy", f.Alias)

	require.Len(t, f.Structure, 1)
	assert.Equal(t, "@id", f.Structure[0].Schema.Attribute)
	assert.False(t, f.Structure[0].IsUnknown)

	assertEquivalent(t, q, out)
}

func TestBuild_ReverseFlagMustMatch(t *testing.T) {
	_, root, _ := roundTrip(t, `{
		"meta": {"type": "http://schema.org/Person"},
		"structure": {"propertyName": "query:knows", "path": "http://schema.org/knows", "structure": {"path": "@id"}}
	}`)

	f := root.Structure[0]
	assert.Equal(t, "Knows", f.Schema.Label)
	assert.False(t, f.IsReverse)
}

func TestBuild_PathForms(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		context   string
		attribute string
		simple    string
		unknown   bool
	}{
		{"full uri", `"http://schema.org/email"`, `{}`, sdo + "email", "email", false},
		{"prefix from context", `"sdo:email"`, `{"sdo": "http://schema.org/"}`, sdo + "email", "email", false},
		{"prefix term definition", `"sdo:email"`, `{"sdo": {"@id": "http://schema.org/"}}`, sdo + "email", "email", false},
		{"attribute namespace", `"schema:email"`, `{}`, sdo + "email", "email", false},
		{"unresolved prefix", `"foo:bar"`, `{}`, "foo:bar", "bar", true},
		{"short name", `"telephone"`, `{}`, sdo + "telephone", "telephone", false},
		{"identity", `"@id"`, `{}`, "@id", "id", false},
		{"model path", `"/minds/core/dataset/v1.0.0"`, `{}`, "minds/core/dataset/v1.0.0", "v1.0.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, root, out := roundTrip(t, `{"@context": `+tt.context+`, "meta": {"type": "http://schema.org/Person"},
				"structure": {"propertyName": "query:x", "path": `+tt.path+`}}`)

			f := root.Structure[0]
			assert.Equal(t, tt.attribute, f.Schema.Attribute)
			assert.Equal(t, tt.simple, f.Schema.SimpleAttributeName)
			assert.Equal(t, tt.unknown, f.IsUnknown)
			assert.Equal(t, "x", f.Alias)

			assertEquivalent(t, q, out)
		})
	}
}

func TestBuild_IdentityOutsideCatalogue(t *testing.T) {
	q, err := queryspec.Decode([]byte(`{"meta": {"type": "http://x/Thing"}, "structure": {"propertyName": "query:id", "path": "@id"}}`))
	require.NoError(t, err)

	types := testTypes()
	root := Build(types, nil, RootSchemaFor(types, q.Meta.Type), q)
	assert.Equal(t, []string{"http://x/Thing"}, root.Schema.CanBe)
	assert.Equal(t, "Thing", root.Schema.Label)

	f := root.Structure[0]
	assert.False(t, f.IsUnknown)
	assert.Equal(t, "id", f.Schema.Label)
	assert.Empty(t, f.Alias)
}

func TestBuild_ChildrenNeedLinkProperty(t *testing.T) {
	_, root, _ := roundTrip(t, `{
		"meta": {"type": "http://schema.org/Person"},
		"structure": {"propertyName": "query:name", "path": "http://schema.org/name", "structure": {"path": "http://schema.org/address"}}
	}`)

	f := root.Structure[0]
	assert.True(t, f.IsUnknown)
	assert.Empty(t, f.Schema.CanBe)
	require.Len(t, f.Structure, 1)
	assert.True(t, f.Structure[0].IsUnknown)
}

func TestBuild_CandidateOrder(t *testing.T) {
	q, err := queryspec.Decode([]byte(`{"meta": {"type": "T"}, "structure": {"path": "http://schema.org/name"}}`))
	require.NoError(t, err)
	types := testTypes()

	orgFirst := Build(types, nil, Schema{ID: "T", CanBe: []string{organization, person}}, q)
	assert.Equal(t, "Legal name", orgFirst.Structure[0].Schema.Label)

	personFirst := Build(types, nil, Schema{ID: "T", CanBe: []string{person, organization}}, q)
	assert.Equal(t, "Name", personFirst.Structure[0].Schema.Label)
}

func TestBuild_AliasAndNamespace(t *testing.T) {
	q, root, out := roundTrip(t, `{
		"meta": {"type": "http://schema.org/Person"},
		"structure": [
			{"propertyName": "query:fullName", "path": "http://schema.org/name"},
			{"propertyName": "custom:name", "path": "http://schema.org/email"},
			{"propertyName": "query:email", "path": "http://schema.org/email"}
		]
	}`)

	require.Len(t, root.Structure, 3)
	assert.Equal(t, "fullName", root.Structure[0].Alias)
	assert.Empty(t, root.Structure[0].Namespace)
	assert.Equal(t, "name", root.Structure[1].Alias)
	assert.Equal(t, "custom", root.Structure[1].Namespace)
	assert.Empty(t, root.Structure[2].Alias)

	assertEquivalent(t, q, out)
}

func TestBuild_IRIPropertyName(t *testing.T) {
	_, root, out := roundTrip(t, `{
		"meta": {"type": "http://schema.org/Person"},
		"structure": {"propertyName": "https://schema.hbp.eu/myQuery/telephone", "path": "http://schema.org/telephone"}
	}`)

	f := root.Structure[0]
	assert.Empty(t, f.Alias)
	assert.Empty(t, f.Namespace)
	assert.Equal(t, "query:telephone", out.Structure[0].PropertyName)
}

func TestBuild_OptionsOnChain(t *testing.T) {
	q, root, out := roundTrip(t, `{
		"meta": {"type": "http://schema.org/Person"},
		"size": 20,
		"structure": {
			"propertyName": "query:employer",
			"path": ["http://schema.org/worksAt", "http://schema.org/name"],
			"sort": true,
			"required": true,
			"filter": {"op": "CONTAINS", "parameter": "org"}
		}
	}`)

	assert.Equal(t, []string{"size"}, root.Options.Names())

	works := root.Structure[0]
	assert.Equal(t, "employer", works.Alias)
	assert.Equal(t, []string{"filter", "required"}, works.Options.Names())
	require.Len(t, works.Structure, 1)
	assert.Equal(t, []string{"sort"}, works.Structure[0].Options.Names())

	assert.Equal(t, []string{"org"}, root.ParameterNames())
	assertEquivalent(t, q, out)
}

func TestBuild_FieldMerge(t *testing.T) {
	q, root, out := roundTrip(t, `{
		"meta": {"type": "http://schema.org/Person"},
		"structure": {"propertyName": "query:contact", "merge": [
			{"path": "http://schema.org/email"},
			{"path": ["http://schema.org/worksAt", "http://schema.org/name"]}
		]}
	}`)

	group := root.Structure[0]
	assert.True(t, group.IsRootMerge)
	assert.False(t, group.IsInvalid)
	assert.False(t, group.IsInvalidLeaf)
	assert.Equal(t, "contact", group.Alias)
	assert.Equal(t, []string{person}, group.Lookups())

	require.Len(t, group.Merge, 2)
	for _, b := range group.Merge {
		assert.True(t, b.IsMerge)
		assert.False(t, b.IsUnknown)
		assert.Same(t, group, b.Parent)
	}
	assert.True(t, group.Merge[1].IsFlattened)
	require.Len(t, group.Merge[1].Structure, 1)

	assertEquivalent(t, q, out)
}

func TestBuild_RootMerge(t *testing.T) {
	q, root, out := roundTrip(t, `{
		"meta": {"type": "http://schema.org/Person"},
		"merge": [{"path": "http://schema.org/email"}, {"propertyName": "query:phone", "path": "http://schema.org/telephone"}]
	}`)

	assert.True(t, root.IsRootMerge)
	assert.True(t, root.IsInvalid)
	assert.True(t, root.IsInvalidLeaf, "merge branches are not structure")
	assert.False(t, root.IsEmpty())
	require.Len(t, root.Merge, 2)
	assert.True(t, root.Merge[0].IsMerge)
	assert.Equal(t, "phone", root.Merge[1].Alias)

	assertEquivalent(t, q, out)
}

func TestBuild_InvalidShapesAreKept(t *testing.T) {
	_, root, out := roundTrip(t, `{
		"meta": {"type": "http://schema.org/Person"},
		"structure": [
			{"propertyName": "query:both", "path": "http://schema.org/name", "merge": {"path": "http://schema.org/email"}},
			{"propertyName": "query:neither", "required": true},
			"oops",
			{"propertyName": "query:bad", "path": 42}
		]
	}`)

	require.Len(t, root.Structure, 4)

	both := root.Structure[0]
	assert.True(t, both.IsInvalid)
	assert.False(t, both.IsUnknown)
	require.Len(t, both.Merge, 1)
	assert.True(t, both.Merge[0].IsMerge)

	neither := root.Structure[1]
	assert.True(t, neither.IsInvalid)
	assert.False(t, neither.IsUnknown)
	assert.Equal(t, "neither", neither.Alias)

	malformed := root.Structure[2]
	assert.True(t, malformed.IsInvalid)
	assert.True(t, malformed.IsUnknown)

	bad := root.Structure[3]
	assert.True(t, bad.IsInvalid)
	assert.True(t, bad.IsUnknown)

	require.Len(t, out.Structure, 4)
	assert.Equal(t, "oops", out.Structure[2].Value())
	assert.Equal(t, map[string]any{"propertyName": "query:bad", "path": json.Number("42")}, out.Structure[3].Value())
	assert.Equal(t, map[string]any{"propertyName": "query:neither", "required": true}, out.Structure[1].Value())
	assert.Equal(t, map[string]any{
		"propertyName": "query:both",
		"path":         sdo + "name",
		"merge":        map[string]any{"path": sdo + "email"},
	}, out.Structure[0].Value())
}

func TestBuild_UndecodablePathIsKept(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"empty string", `""`},
		{"empty list", `[]`},
		{"object without id", `{"reverse": true}`},
		{"null", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, root, out := roundTrip(t, `{
				"meta": {"type": "http://schema.org/Person"},
				"structure": [
					{"propertyName": "query:name", "path": "http://schema.org/name"},
					{"propertyName": "query:bad", "path": `+tt.path+`}
				]
			}`)

			bad := root.Structure[1]
			assert.True(t, bad.IsInvalid)
			assert.True(t, bad.IsUnknown)
			assert.True(t, bad.HasRawPath)
			assertEquivalent(t, q, out)
		})
	}

	t.Run("merge branch", func(t *testing.T) {
		q, _, out := roundTrip(t, `{
			"meta": {"type": "http://schema.org/Person"},
			"structure": {"propertyName": "query:contact", "merge": [
				{"path": "http://schema.org/email"},
				{"path": 7}
			]}
		}`)
		assertEquivalent(t, q, out)
	})
}

func TestBuild_InvalidLeafOnLoad(t *testing.T) {
	_, root, _ := roundTrip(t, `{
		"meta": {"type": "http://schema.org/Person"},
		"structure": {"propertyName": "query:employer", "path": "http://schema.org/worksAt"}
	}`)
	assert.True(t, root.Structure[0].IsInvalidLeaf)
	assert.False(t, root.IsInvalidLeaf)

	_, empty, _ := roundTrip(t, `{"meta": {"type": "http://schema.org/Person"}}`)
	assert.True(t, empty.IsInvalidLeaf)
	assert.True(t, empty.IsEmpty())
}

func TestBuild_DoesNotAliasInput(t *testing.T) {
	q, root, _ := roundTrip(t, `{
		"meta": {"type": "http://schema.org/Person"},
		"structure": {"propertyName": "query:name", "path": "http://schema.org/name", "filter": {"op": "EQUALS", "value": "x"}}
	}`)

	v, _ := root.Structure[0].Options.Get("filter")
	v.(map[string]any)["value"] = "changed"

	orig, _ := q.Structure[0].Options.Get("filter")
	assert.Equal(t, "x", orig.(map[string]any)["value"])
}

func TestBuild_NilQuery(t *testing.T) {
	root := Build(testTypes(), nil, RootSchemaFor(testTypes(), person), nil)
	assert.True(t, root.IsRoot())
	assert.True(t, root.IsEmpty())
	assert.Equal(t, "Person", root.Schema.Label)
}
