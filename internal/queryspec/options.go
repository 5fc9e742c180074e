package queryspec

import (
	"encoding/json"
	"sort"
)

// Option is one named option value on a field or query root.
type Option struct {
	Name  string
	Value any
}

// Options is an ordered set of options. Names are unique.
type Options []Option

// Get returns the value for name.
func (o Options) Get(name string) (any, bool) {
	for _, opt := range o {
		if opt.Name == name {
			return opt.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of an existing option in place or appends a new one.
func (o *Options) Set(name string, value any) {
	for i := range *o {
		if (*o)[i].Name == name {
			(*o)[i].Value = value
			return
		}
	}
	*o = append(*o, Option{Name: name, Value: value})
}

// Delete removes name and reports whether it was present.
func (o *Options) Delete(name string) bool {
	for i := range *o {
		if (*o)[i].Name == name {
			*o = append((*o)[:i], (*o)[i+1:]...)
			return true
		}
	}
	return false
}

// Names returns option names in order.
func (o Options) Names() []string {
	names := make([]string, len(o))
	for i, opt := range o {
		names[i] = opt.Name
	}
	return names
}

// Clone deep-copies the options so the copy shares no JSON containers.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	out := make(Options, len(o))
	for i, opt := range o {
		out[i] = Option{Name: opt.Name, Value: CloneValue(opt.Value)}
	}
	return out
}

// CloneValue deep-copies a generic JSON value.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = CloneValue(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = CloneValue(elem)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// CloneMap deep-copies a JSON object.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return CloneValue(m).(map[string]any)
}

// optionsFromMap collects every key of m not rejected by skip, in sorted
// key order, with deep-copied values.
func optionsFromMap(m map[string]any, skip func(string) bool) Options {
	keys := make([]string, 0, len(m))
	for k := range m {
		if skip != nil && skip(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out Options
	for _, k := range keys {
		out = append(out, Option{Name: k, Value: CloneValue(m[k])})
	}
	return out
}

// putOptions writes every option into m.
func putOptions(m map[string]any, o Options) {
	for _, opt := range o {
		m[opt.Name] = CloneValue(opt.Value)
	}
}

// MarshalJSON encodes options as a JSON object.
func (o Options) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(o))
	putOptions(m, o)
	return json.Marshal(m)
}
