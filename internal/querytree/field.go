// Package querytree is the in-memory query tree: Field nodes, the edit
// operations that keep their flags consistent, and the conversions between
// a tree and a query document.
package querytree

import (
	"strings"

	"github.com/roach88/querybuilder/internal/queryspec"
)

// Field is one node of a query tree: the root, a selected property, a
// merge group or one branch of a merge group.
//
// Children in Structure and Merge are owned by the field; Parent is the
// owning field or nil for the root. Use the edit methods to change the
// shape of a tree so the flags stay in step with it.
type Field struct {
	Schema    Schema
	Parent    *Field
	Structure []*Field
	Merge     []*Field

	Alias     string
	Namespace string
	Options   queryspec.Options

	// TypeFilter restricts the linked types, as written on the path
	// segment.
	TypeFilter []string
	// RelativePath is the path segment as it was written in the source
	// document; new fields leave it empty.
	RelativePath string
	// Raw holds the source value of an entry that was not an object.
	Raw any
	// RawPath holds a path value that could not be decoded. HasRawPath
	// tells a null path apart from a field without one.
	RawPath    any
	HasRawPath bool

	IsReverse     bool
	IsFlattened   bool
	IsInvalidLeaf bool
	IsUnknown     bool
	IsInvalid     bool
	// IsMerge marks a branch of a merge group.
	IsMerge bool
	// IsRootMerge marks the owner of a merge group.
	IsRootMerge bool
}

// NewRoot returns the root field of an empty query.
func NewRoot(schema Schema) *Field {
	f := newField(schema, nil)
	f.updateInvalidLeaf()
	return f
}

func newField(schema Schema, parent *Field) *Field {
	schema = schema.clone()
	return &Field{
		Schema:    schema,
		Parent:    parent,
		IsReverse: schema.Reverse,
	}
}

// updateInvalidLeaf recomputes IsInvalidLeaf from the field's own shape.
// A merge group below the root needs at least two branches; any other
// link field needs a structure child. Merge branches do not count.
func (f *Field) updateInvalidLeaf() {
	if f.IsRootMerge && f.Parent != nil {
		f.IsInvalidLeaf = len(f.Merge) < 2
		return
	}
	f.IsInvalidLeaf = f.Schema.IsLink() && len(f.Structure) == 0
}

// candidateTypes returns the types whose properties may appear below f.
// A merge group offers the candidates of the field it belongs to.
func (f *Field) candidateTypes() []string {
	if f.IsRootMerge && f.Parent != nil {
		return f.Parent.candidateTypes()
	}
	return f.Schema.CanBe
}

// branchCandidates returns the types merge branches of f resolve against.
func (f *Field) branchCandidates() []string {
	if f.Parent == nil {
		return f.Schema.CanBe
	}
	return f.Parent.candidateTypes()
}

// Root returns the root of the tree f belongs to.
func (f *Field) Root() *Field {
	for f.Parent != nil {
		f = f.Parent
	}
	return f
}

// IsRoot reports whether f has no parent.
func (f *Field) IsRoot() bool {
	return f.Parent == nil
}

// IsDescendantOf reports whether f is ancestor or lies below it.
func (f *Field) IsDescendantOf(ancestor *Field) bool {
	for n := f; n != nil; n = n.Parent {
		if n == ancestor {
			return true
		}
	}
	return false
}

// Walk visits f and its descendants depth first, structure before merge
// branches. Returning false from fn skips the children of that field.
func (f *Field) Walk(fn func(*Field) bool) {
	if !fn(f) {
		return
	}
	for _, c := range f.Structure {
		c.Walk(fn)
	}
	for _, c := range f.Merge {
		c.Walk(fn)
	}
}

// Lookups returns the types whose properties can be added below f. A
// flattened field that already has its child accepts none.
func (f *Field) Lookups() []string {
	if f.IsFlattened && len(f.Structure) > 0 {
		return nil
	}
	if len(f.TypeFilter) > 0 {
		return f.TypeFilter
	}
	return f.candidateTypes()
}

// Name returns the local name the field is emitted under: its alias, or
// the name derived from its schema.
func (f *Field) Name() string {
	if alias := strings.TrimSpace(f.Alias); alias != "" {
		return alias
	}
	if f.Schema.SimpleAttributeName != "" {
		return f.Schema.SimpleAttributeName
	}
	return f.Schema.Label
}

// chainEnd returns the last field of the flattened chain starting at f.
func (f *Field) chainEnd() *Field {
	last := f
	for last.IsFlattened && len(last.Structure) == 1 {
		last = last.Structure[0]
	}
	return last
}

// defaultName is the name the serializer derives for f when f has no
// alias.
func (f *Field) defaultName() string {
	end := f.chainEnd()
	if end != f {
		return end.Name()
	}
	if f.Schema.SimpleAttributeName != "" {
		return f.Schema.SimpleAttributeName
	}
	return f.Schema.Label
}

// IsEmpty reports whether the field has neither children nor merge
// branches.
func (f *Field) IsEmpty() bool {
	return len(f.Structure) == 0 && len(f.Merge) == 0
}
