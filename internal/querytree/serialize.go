package querytree

import (
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/querybuilder/internal/queryspec"
)

// ErrNilRoot is returned when serializing without a tree.
var ErrNilRoot = errors.New("querytree: nil root field")

// Serialized is the structure and merge part of a query document.
type Serialized struct {
	Structure []*queryspec.Field
	Merge     []*queryspec.Field
}

// placeholderName names a field that has neither alias nor schema name.
var placeholderName = func() string {
	return uuid.NewString()
}

// Serialize converts the tree below root into document entries. The
// result depends only on the tree: same tree, same entries.
func Serialize(root *Field) (*Serialized, error) {
	if root == nil {
		return nil, ErrNilRoot
	}
	out := &Serialized{}
	for _, c := range root.Structure {
		out.Structure = append(out.Structure, serializeField(c))
	}
	for _, c := range root.Merge {
		out.Merge = append(out.Merge, serializeBranch(c))
	}
	return out, nil
}

// segmentOf returns the path segment a field is written as: the segment
// it was read from, else its namespaced short name, else its attribute.
func segmentOf(f *Field) queryspec.Segment {
	id := f.RelativePath
	if id == "" {
		if f.Schema.AttributeNamespace != "" && f.Schema.SimpleAttributeName != "" {
			id = f.Schema.AttributeNamespace + ":" + f.Schema.SimpleAttributeName
		} else {
			id = f.Schema.Attribute
		}
	}
	return queryspec.Segment{ID: id, Reverse: f.IsReverse, TypeFilter: slices.Clone(f.TypeFilter)}
}

func propertyName(namespace, name string) string {
	if namespace == "" {
		namespace = queryspec.DefaultNamespace
	}
	if name == "" {
		name = placeholderName()
	}
	return namespace + ":" + name
}

func serializeField(f *Field) *queryspec.Field {
	if f.Raw != nil {
		return &queryspec.Field{Malformed: true, Raw: queryspec.CloneValue(f.Raw)}
	}
	out := &queryspec.Field{Options: f.Options.Clone()}

	if f.IsRootMerge {
		out.PropertyName = propertyName(f.Namespace, f.Name())
		out.HasMerge = true
		for _, b := range f.Merge {
			out.Merge = append(out.Merge, serializeBranch(b))
		}
		for _, c := range f.Structure {
			out.Structure = append(out.Structure, serializeField(c))
		}
		return out
	}

	var segments []queryspec.Segment
	if seg := segmentOf(f); seg.ID != "" {
		segments = append(segments, seg)
	}
	last := f
	for last.IsFlattened && len(last.Structure) == 1 && !last.Structure[0].ownsMerge() {
		last = last.Structure[0]
		if seg := segmentOf(last); seg.ID != "" {
			segments = append(segments, seg)
		}
		propagateSort(out, last)
	}

	name := f.Name()
	if last != f && strings.TrimSpace(f.Alias) == "" {
		name = last.Name()
	}
	out.PropertyName = propertyName(f.Namespace, name)
	setPath(out, f, segments)
	for _, c := range last.Structure {
		out.Structure = append(out.Structure, serializeField(c))
	}
	for _, b := range f.Merge {
		out.HasMerge = true
		out.Merge = append(out.Merge, serializeBranch(b))
	}
	return out
}

// serializeBranch writes one merge branch. A branch follows single-child
// links into one chained path; its name is written only when one was set.
func serializeBranch(f *Field) *queryspec.Field {
	if f.Raw != nil || f.IsRootMerge {
		return serializeField(f)
	}
	out := &queryspec.Field{Options: f.Options.Clone()}

	var segments []queryspec.Segment
	if seg := segmentOf(f); seg.ID != "" {
		segments = append(segments, seg)
	}
	last := f
	for len(last.Structure) == 1 && !last.Structure[0].ownsMerge() {
		seg := segmentOf(last.Structure[0])
		if seg.ID == "" {
			break
		}
		last = last.Structure[0]
		segments = append(segments, seg)
		propagateSort(out, last)
	}

	if f.Alias != "" || f.Namespace != "" {
		out.PropertyName = propertyName(f.Namespace, f.Name())
	}
	setPath(out, f, segments)
	for _, c := range last.Structure {
		out.Structure = append(out.Structure, serializeField(c))
	}
	return out
}

// setPath writes the chained segments, or the undecodable path f was read
// with.
func setPath(out *queryspec.Field, f *Field, segments []queryspec.Segment) {
	switch {
	case len(segments) > 0:
		out.Path = queryspec.NewPath(segments...)
		out.HasPath = true
	case f.HasRawPath:
		out.RawPath = queryspec.CloneValue(f.RawPath)
		out.HasPath = true
	}
}

// propagateSort lifts a sort flag from a chain link to the entry.
func propagateSort(out *queryspec.Field, link *Field) {
	if v, ok := link.Options.Get("sort"); ok {
		if _, set := out.Options.Get("sort"); !set {
			out.Options.Set("sort", queryspec.CloneValue(v))
		}
	}
}
