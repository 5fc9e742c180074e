// Package catalog holds the type catalogue the query builder resolves
// paths against: entity types and the properties each type exposes.
package catalog

import (
	"slices"
	"sort"
	"strings"
)

// Type describes one entity type.
type Type struct {
	ID          string     `json:"id" yaml:"id"`
	Label       string     `json:"label" yaml:"label"`
	Color       string     `json:"color,omitempty" yaml:"color,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Properties  []Property `json:"properties" yaml:"properties"`
}

// Property describes one property of a type. A property with a non-empty
// CanBe is a link to entities of those types; otherwise it is a scalar
// attribute.
type Property struct {
	Attribute           string   `json:"attribute" yaml:"attribute"`
	Label               string   `json:"label" yaml:"label"`
	SimpleAttributeName string   `json:"simpleAttributeName,omitempty" yaml:"simpleAttributeName,omitempty"`
	AttributeNamespace  string   `json:"attributeNamespace,omitempty" yaml:"attributeNamespace,omitempty"`
	CanBe               []string `json:"canBe,omitempty" yaml:"canBe,omitempty"`
	Reverse             bool     `json:"reverse,omitempty" yaml:"reverse,omitempty"`
}

// IsLink reports whether the property links to other entities.
func (p Property) IsLink() bool {
	return len(p.CanBe) > 0
}

// SimpleAttributeName returns the local name of an attribute: the segment
// after the last "/", or for an attribute without "/" the attribute with a
// leading "@" removed.
func SimpleAttributeName(attribute string) string {
	if i := strings.LastIndex(attribute, "/"); i >= 0 {
		return attribute[i+1:]
	}
	return strings.TrimPrefix(attribute, "@")
}

// normalize fills derived property fields.
func (t *Type) normalize() {
	for i := range t.Properties {
		p := &t.Properties[i]
		if p.SimpleAttributeName == "" {
			p.SimpleAttributeName = SimpleAttributeName(p.Attribute)
		}
		if p.Label == "" {
			p.Label = p.SimpleAttributeName
		}
	}
	if t.Label == "" {
		t.Label = SimpleAttributeName(t.ID)
	}
}

// clone returns a copy of t that shares no slices with it.
func (t *Type) clone() *Type {
	c := *t
	c.Properties = make([]Property, len(t.Properties))
	for i, p := range t.Properties {
		p.CanBe = slices.Clone(p.CanBe)
		c.Properties[i] = p
	}
	return &c
}

type propertyKey struct {
	attribute string
	reverse   bool
}

// MergeWith folds other's properties into t. Properties are identified by
// attribute and direction; for a property present in both, the target
// types are unioned and sorted. Properties only in other are appended in
// other's order.
func (t *Type) MergeWith(other *Type) {
	if other == nil {
		return
	}
	if t.Label == "" {
		t.Label = other.Label
	}
	if t.Color == "" {
		t.Color = other.Color
	}
	if t.Description == "" {
		t.Description = other.Description
	}

	index := make(map[propertyKey]int, len(t.Properties))
	for i, p := range t.Properties {
		index[propertyKey{p.Attribute, p.Reverse}] = i
	}
	for _, p := range other.Properties {
		key := propertyKey{p.Attribute, p.Reverse}
		i, ok := index[key]
		if !ok {
			p.CanBe = slices.Clone(p.CanBe)
			index[key] = len(t.Properties)
			t.Properties = append(t.Properties, p)
			continue
		}
		existing := &t.Properties[i]
		existing.CanBe = unionSorted(existing.CanBe, p.CanBe)
		if existing.Label == "" {
			existing.Label = p.Label
		}
	}
}

func unionSorted(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := append(slices.Clone(a), b...)
	sort.Strings(out)
	return slices.Compact(out)
}
