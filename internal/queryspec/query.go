// Package queryspec is the declarative query document format: decoding the
// JSON-LD shaped wire form into typed values once, at the boundary, and
// encoding it back.
package queryspec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotObject is returned when a query document is valid JSON but not an
// object.
var ErrNotObject = errors.New("query document is not a JSON object")

// Query is a decoded query document.
type Query struct {
	ID         string
	Context    map[string]any
	Meta       Meta
	Structure  []*Field
	Merge      []*Field
	HasMerge   bool
	Space      string
	Author     any
	Properties Options
}

// Meta is the "meta" block of a query document.
type Meta struct {
	Type          string
	Name          string
	Description   string
	ResponseVocab string
	Extra         Options
}

// Field is one entry of "structure" or "merge".
//
// HasPath is true when the entry had a "path" key, even if its value could
// not be decoded (Path is then nil and RawPath holds the value). Entries
// that are not JSON objects are kept as Malformed with their raw value so
// they are never dropped.
type Field struct {
	PropertyName string
	Path         *Path
	HasPath      bool
	RawPath      any
	Structure    []*Field
	Merge        []*Field
	HasMerge     bool
	Options      Options
	Malformed    bool
	Raw          any
}

// Decode parses a query document. Only invalid JSON and non-object
// documents are errors; shape problems inside the document are carried in
// the decoded values.
func Decode(data []byte) (*Query, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode query: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode query: %w", ErrNotObject)
	}
	return FromMap(m), nil
}

// FromMap decodes an already parsed document. m is not retained.
func FromMap(m map[string]any) *Query {
	q := &Query{
		ID:         stringOrID(m["@id"]),
		Meta:       decodeMeta(m["meta"]),
		Structure:  decodeEntries(m["structure"]),
		Space:      stringOrID(m[KeySpace]),
		Properties: optionsFromMap(m, IsRootReserved),
	}
	if ctx, ok := m["@context"].(map[string]any); ok {
		q.Context = CloneMap(ctx)
	}
	if v, ok := m["merge"]; ok {
		q.HasMerge = true
		q.Merge = decodeEntries(v)
	}
	if v, ok := m[KeyUser]; ok {
		q.Author = CloneValue(v)
	}
	return q
}

func decodeMeta(v any) Meta {
	m, ok := v.(map[string]any)
	if !ok {
		return Meta{}
	}
	return Meta{
		Type:          stringOrID(m["type"]),
		Name:          stringOrID(m["name"]),
		Description:   stringOrID(m["description"]),
		ResponseVocab: stringOrID(m["responseVocab"]),
		Extra: optionsFromMap(m, func(k string) bool {
			switch k {
			case "type", "name", "description", "responseVocab":
				return true
			}
			return false
		}),
	}
}

// decodeEntries normalizes a bare object into a one-element list.
func decodeEntries(v any) []*Field {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]*Field, 0, len(val))
		for _, elem := range val {
			out = append(out, decodeField(elem))
		}
		return out
	default:
		return []*Field{decodeField(v)}
	}
}

func decodeField(v any) *Field {
	m, ok := v.(map[string]any)
	if !ok {
		return &Field{Malformed: true, Raw: CloneValue(v)}
	}
	f := &Field{
		PropertyName: stringOrID(m["propertyName"]),
		Structure:    decodeEntries(m["structure"]),
		Options:      optionsFromMap(m, IsFieldReserved),
	}
	if pv, ok := m["path"]; ok {
		f.HasPath = true
		if p, ok := decodePath(pv); ok {
			f.Path = p
		} else {
			f.RawPath = CloneValue(pv)
		}
	}
	if mv, ok := m["merge"]; ok {
		f.HasMerge = true
		f.Merge = decodeEntries(mv)
	}
	return f
}

// stringOrID reads a string or the "@id" of a node reference.
func stringOrID(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		id, _ := val["@id"].(string)
		return id
	}
	return ""
}

// ToMap returns the document as generic JSON values. Sequences of one
// entry collapse to the bare entry and empty sequences are omitted.
func (q *Query) ToMap() map[string]any {
	m := make(map[string]any)
	putOptions(m, q.Properties)
	if q.ID != "" {
		m["@id"] = q.ID
	}
	if q.Context != nil {
		m["@context"] = CloneMap(q.Context)
	}
	m["meta"] = q.Meta.toMap()
	if v := entriesValue(q.Structure); v != nil {
		m["structure"] = v
	}
	if v := entriesValue(q.Merge); v != nil {
		m["merge"] = v
	}
	if q.Space != "" {
		m[KeySpace] = q.Space
	}
	if q.Author != nil {
		m[KeyUser] = CloneValue(q.Author)
	}
	return m
}

// Clone returns a deep copy of q.
func (q *Query) Clone() *Query {
	return FromMap(q.ToMap())
}

// MarshalJSON encodes the document.
func (q *Query) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.ToMap())
}

func (m Meta) toMap() map[string]any {
	out := make(map[string]any)
	putOptions(out, m.Extra)
	if m.Type != "" {
		out["type"] = m.Type
	}
	if m.Name != "" {
		out["name"] = m.Name
	}
	if m.Description != "" {
		out["description"] = m.Description
	}
	if m.ResponseVocab != "" {
		out["responseVocab"] = m.ResponseVocab
	}
	return out
}

// Value returns the entry as a generic JSON value.
func (f *Field) Value() any {
	if f.Malformed {
		return CloneValue(f.Raw)
	}
	m := make(map[string]any)
	putOptions(m, f.Options)
	if f.PropertyName != "" {
		m["propertyName"] = f.PropertyName
	}
	switch {
	case f.Path != nil:
		m["path"] = f.Path.value()
	case f.HasPath:
		m["path"] = CloneValue(f.RawPath)
	}
	if v := entriesValue(f.Structure); v != nil {
		m["structure"] = v
	}
	if v := entriesValue(f.Merge); v != nil {
		m["merge"] = v
	}
	return m
}

// MarshalJSON encodes the entry.
func (f *Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Value())
}

func entriesValue(fields []*Field) any {
	switch len(fields) {
	case 0:
		return nil
	case 1:
		return fields[0].Value()
	}
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = f.Value()
	}
	return out
}
