package querytree

import (
	"regexp"
	"strings"

	"github.com/roach88/querybuilder/internal/catalog"
	"github.com/roach88/querybuilder/internal/queryspec"
)

var (
	uriPattern        = regexp.MustCompile(`^https?://.+/(.+)$`)
	namespacedPattern = regexp.MustCompile(`^([^:/]+):(.+)$`)
	modelPattern      = regexp.MustCompile(`^/?((.+)/(.+)/(.+)/(.+))$`)
)

// reference is a path segment resolved against the query context. attribute
// is empty when the segment could not be expanded to an absolute IRI.
type reference struct {
	id        string
	attribute string
	namespace string
	simple    string
	short     bool
}

func resolveReference(context map[string]any, id string) reference {
	if m := uriPattern.FindStringSubmatch(id); m != nil {
		return reference{id: id, attribute: id, simple: m[1]}
	}
	if id == "@id" {
		return reference{id: id, attribute: id, simple: "id"}
	}
	if m := namespacedPattern.FindStringSubmatch(id); m != nil {
		ref := reference{id: id, namespace: m[1], simple: m[2]}
		if base, ok := contextIRI(context, m[1]); ok {
			ref.attribute = base + m[2]
		}
		return ref
	}
	if m := modelPattern.FindStringSubmatch(id); m != nil {
		return reference{id: id, attribute: m[1], simple: m[5]}
	}
	return reference{id: id, simple: id, short: true}
}

// contextIRI expands a prefix defined in a JSON-LD context, either as a
// plain IRI or as a term definition with "@id".
func contextIRI(context map[string]any, prefix string) (string, bool) {
	switch v := context[prefix].(type) {
	case string:
		return v, v != ""
	case map[string]any:
		id, ok := v["@id"].(string)
		return id, ok && id != ""
	}
	return "", false
}

func (r reference) matches(p catalog.Property) bool {
	switch {
	case r.attribute != "" && p.Attribute == r.attribute:
		return true
	case r.namespace != "" && p.AttributeNamespace == r.namespace && p.SimpleAttributeName == r.simple:
		return true
	case r.short && p.SimpleAttributeName == r.simple:
		return true
	}
	return false
}

// unknownSchema is the placeholder schema for a segment no candidate type
// declares.
func (r reference) unknownSchema(reverse bool) Schema {
	attribute := r.attribute
	if attribute == "" {
		attribute = r.id
	}
	return Schema{
		Label:               r.simple,
		Attribute:           attribute,
		SimpleAttributeName: r.simple,
		AttributeNamespace:  r.namespace,
		Reverse:             reverse,
	}
}

// lookupProperty finds the schema for seg among the properties of the
// candidate types, in candidate order. A property must have the same
// direction as the segment, and must be a link when the entry has
// children. ok is false when no property matches.
func lookupProperty(types TypeLookup, context map[string]any, candidates []string, seg queryspec.Segment, needsLink bool) (Schema, bool) {
	ref := resolveReference(context, seg.ID)
	if types != nil {
		for _, typeID := range candidates {
			t, ok := types.Type(typeID)
			if !ok {
				continue
			}
			for _, p := range t.Properties {
				if p.Reverse != seg.Reverse || (needsLink && !p.IsLink()) {
					continue
				}
				if ref.matches(p) {
					return SchemaFromProperty(p), true
				}
			}
		}
	}
	if ref.attribute == "@id" && !seg.Reverse && !needsLink {
		return identitySchema(), true
	}
	return ref.unknownSchema(seg.Reverse), false
}

// splitPropertyName splits "ns:name" into its parts. A full IRI yields its
// last segment and no namespace.
func splitPropertyName(name string) (string, string) {
	if m := uriPattern.FindStringSubmatch(name); m != nil {
		return "", m[1]
	}
	if i := strings.Index(name, ":"); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}
