package catalog

import (
	"sort"
	"strings"
)

// Group is the set of properties offered for one type, split by kind.
// A group with an empty TypeID holds the properties common to every
// requested type.
type Group struct {
	TypeID     string
	Label      string
	Color      string
	Attributes []Property
	Links      []Property
}

// Groups returns the properties available on the given types, one group
// per known type in the order given. When more than one type is known a
// leading group holds the properties every type shares, and those are
// left out of the per-type groups. filter matches labels
// case-insensitively; groups left empty by the filter are dropped.
func (c *Catalogue) Groups(typeIDs []string, filter string) []Group {
	var types []*Type
	seen := make(map[string]bool)
	for _, id := range typeIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if t, ok := c.Type(id); ok {
			types = append(types, t)
		}
	}
	if len(types) == 0 {
		return nil
	}

	filter = strings.ToLower(strings.TrimSpace(filter))
	match := func(p Property) bool {
		return filter == "" || strings.Contains(strings.ToLower(p.Label), filter)
	}

	common := commonKeys(types)
	var groups []Group
	if len(types) > 1 && len(common) > 0 {
		var props []Property
		for _, p := range types[0].Properties {
			if common[propertyKey{p.Attribute, p.Reverse}] && match(p) {
				props = append(props, p)
			}
		}
		if g := newGroup("", "Common", "", props); !g.empty() {
			groups = append(groups, g)
		}
	}

	for _, t := range types {
		var props []Property
		for _, p := range t.Properties {
			if len(types) > 1 && common[propertyKey{p.Attribute, p.Reverse}] {
				continue
			}
			if match(p) {
				props = append(props, p)
			}
		}
		if g := newGroup(t.ID, t.Label, t.Color, props); !g.empty() {
			groups = append(groups, g)
		}
	}
	return groups
}

func (g Group) empty() bool {
	return len(g.Attributes) == 0 && len(g.Links) == 0
}

func newGroup(id, label, color string, props []Property) Group {
	g := Group{TypeID: id, Label: label, Color: color}
	for _, p := range props {
		if p.IsLink() {
			g.Links = append(g.Links, p)
		} else {
			g.Attributes = append(g.Attributes, p)
		}
	}
	sortByLabel(g.Attributes)
	sortByLabel(g.Links)
	return g
}

func sortByLabel(props []Property) {
	sort.SliceStable(props, func(i, j int) bool {
		return strings.ToLower(props[i].Label) < strings.ToLower(props[j].Label)
	})
}

// commonKeys returns the properties present on every type.
func commonKeys(types []*Type) map[propertyKey]bool {
	counts := make(map[propertyKey]int)
	for _, t := range types {
		local := make(map[propertyKey]bool)
		for _, p := range t.Properties {
			key := propertyKey{p.Attribute, p.Reverse}
			if !local[key] {
				local[key] = true
				counts[key]++
			}
		}
	}
	out := make(map[propertyKey]bool)
	for key, n := range counts {
		if n == len(types) {
			out[key] = true
		}
	}
	return out
}
