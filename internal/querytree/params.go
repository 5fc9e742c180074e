package querytree

import "sort"

// reservedParameters are request parameters the executor sets itself.
var reservedParameters = map[string]bool{
	"scope":      true,
	"size":       true,
	"start":      true,
	"instanceId": true,
}

// ParameterNames returns the names of the query parameters referenced by
// filter options anywhere below f, sorted and without duplicates.
func (f *Field) ParameterNames() []string {
	seen := make(map[string]bool)
	f.Walk(func(n *Field) bool {
		v, ok := n.Options.Get("filter")
		if !ok {
			return true
		}
		filter, ok := v.(map[string]any)
		if !ok {
			return true
		}
		if name, ok := filter["parameter"].(string); ok && name != "" && !reservedParameters[name] {
			seen[name] = true
		}
		return true
	})

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
