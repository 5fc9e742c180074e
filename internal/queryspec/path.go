package queryspec

import "encoding/json"

// Segment is one hop of a field path.
//
// On the wire a segment is either a literal string (a full URI, a
// namespaced "ns:name", a short name or "@id") or a qualified object
// {"@id": ..., "reverse": true, "typeFilter": ...}. A segment is written
// back as a literal unless it is reverse or carries a type filter.
type Segment struct {
	ID         string
	Reverse    bool
	TypeFilter []string
}

// IsQualified reports whether the segment needs the object form.
func (s Segment) IsQualified() bool {
	return s.Reverse || len(s.TypeFilter) > 0
}

func (s Segment) value() any {
	if !s.IsQualified() {
		return s.ID
	}
	obj := map[string]any{"@id": s.ID}
	if s.Reverse {
		obj["reverse"] = true
	}
	switch len(s.TypeFilter) {
	case 0:
	case 1:
		obj["typeFilter"] = map[string]any{"@id": s.TypeFilter[0]}
	default:
		filters := make([]any, len(s.TypeFilter))
		for i, id := range s.TypeFilter {
			filters[i] = map[string]any{"@id": id}
		}
		obj["typeFilter"] = filters
	}
	return obj
}

// MarshalJSON encodes the segment in its wire form.
func (s Segment) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.value())
}

// Path is a single segment or, for flattened chains, an ordered chain of
// segments. It always holds at least one segment.
type Path struct {
	Segments []Segment
}

// NewPath returns a path over the given segments.
func NewPath(segments ...Segment) *Path {
	return &Path{Segments: segments}
}

// IsChain reports whether the path has more than one segment.
func (p *Path) IsChain() bool {
	return len(p.Segments) > 1
}

// First returns the leading segment.
func (p *Path) First() Segment {
	return p.Segments[0]
}

// Rest returns the path without its first segment, or nil when nothing
// remains.
func (p *Path) Rest() *Path {
	if len(p.Segments) < 2 {
		return nil
	}
	return &Path{Segments: append([]Segment(nil), p.Segments[1:]...)}
}

func (p *Path) value() any {
	if len(p.Segments) == 1 {
		return p.Segments[0].value()
	}
	out := make([]any, len(p.Segments))
	for i, seg := range p.Segments {
		out[i] = seg.value()
	}
	return out
}

// MarshalJSON encodes the path; a one-segment path is the bare segment.
func (p *Path) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.value())
}

// decodePath reads a path value. ok is false for shapes that are neither a
// segment nor a non-empty list of segments.
func decodePath(v any) (*Path, bool) {
	switch val := v.(type) {
	case []any:
		if len(val) == 0 {
			return nil, false
		}
		segments := make([]Segment, 0, len(val))
		for _, elem := range val {
			seg, ok := decodeSegment(elem)
			if !ok {
				return nil, false
			}
			segments = append(segments, seg)
		}
		return &Path{Segments: segments}, true
	default:
		seg, ok := decodeSegment(v)
		if !ok {
			return nil, false
		}
		return &Path{Segments: []Segment{seg}}, true
	}
}

func decodeSegment(v any) (Segment, bool) {
	switch val := v.(type) {
	case string:
		if val == "" {
			return Segment{}, false
		}
		return Segment{ID: val}, true
	case map[string]any:
		id, _ := val["@id"].(string)
		if id == "" {
			return Segment{}, false
		}
		reverse, _ := val["reverse"].(bool)
		return Segment{ID: id, Reverse: reverse, TypeFilter: decodeTypeFilter(val["typeFilter"])}, true
	}
	return Segment{}, false
}

// decodeTypeFilter accepts {"@id": t}, a list of those, or plain strings.
func decodeTypeFilter(v any) []string {
	var out []string
	add := func(elem any) {
		switch e := elem.(type) {
		case string:
			if e != "" {
				out = append(out, e)
			}
		case map[string]any:
			if id, ok := e["@id"].(string); ok && id != "" {
				out = append(out, id)
			}
		}
	}
	if list, ok := v.([]any); ok {
		for _, elem := range list {
			add(elem)
		}
		return out
	}
	if v != nil {
		add(v)
	}
	return out
}
