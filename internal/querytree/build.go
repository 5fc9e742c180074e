package querytree

import (
	"slices"

	"github.com/roach88/querybuilder/internal/queryspec"
)

// Build converts a query document into a field tree rooted at root.
//
// Path segments resolve against the catalogue and the JSON-LD context.
// Problems in the document never fail the build: a segment no candidate
// type declares yields a field marked IsUnknown, and an entry with both or
// neither of path and merge yields a field marked IsInvalid. Nothing in
// the returned tree aliases q.
func Build(types TypeLookup, context map[string]any, root Schema, q *queryspec.Query) *Field {
	if context == nil && q != nil {
		context = q.Context
	}
	if context == nil {
		context = queryspec.DefaultContext()
	}
	b := &builder{types: types, context: context}

	f := NewRoot(root)
	if q == nil {
		return f
	}
	f.Options = q.Properties.Clone()
	if q.HasMerge {
		f.IsRootMerge = true
		f.IsInvalid = true
		for _, e := range q.Merge {
			f.Merge = append(f.Merge, b.node(f, e, f.branchCandidates(), true))
		}
	}
	for _, e := range q.Structure {
		f.Structure = append(f.Structure, b.node(f, e, f.candidateTypes(), false))
	}
	f.updateInvalidLeaf()
	return f
}

type builder struct {
	types   TypeLookup
	context map[string]any
}

// node builds the field for entry e below parent. Path segments resolve
// against candidates; branch marks e as a merge branch.
func (b *builder) node(parent *Field, e *queryspec.Field, candidates []string, branch bool) *Field {
	if e.Malformed {
		f := newField(Schema{}, parent)
		f.Raw = queryspec.CloneValue(e.Raw)
		f.IsUnknown = true
		f.IsInvalid = true
		f.IsMerge = branch
		return f
	}

	var f *Field
	switch {
	case e.Path != nil:
		f = b.resolve(parent, e, candidates)
	case e.HasMerge && !e.HasPath:
		f = newField(mergeSchema(), parent)
		f.IsRootMerge = true
	default:
		f = newField(Schema{}, parent)
		f.IsUnknown = e.HasPath
		if e.HasPath {
			f.RawPath = queryspec.CloneValue(e.RawPath)
			f.HasRawPath = true
		}
	}
	f.IsMerge = branch
	f.IsInvalid = e.HasPath == e.HasMerge || (e.HasPath && e.Path == nil)
	f.Options = e.Options.Clone()

	if e.Path != nil && e.Path.IsChain() {
		f.IsFlattened = true
		next := &queryspec.Field{Path: e.Path.Rest(), HasPath: true, Structure: e.Structure}
		if v, ok := f.Options.Get("sort"); ok {
			f.Options.Delete("sort")
			next.Options.Set("sort", v)
		}
		f.Structure = append(f.Structure, b.node(f, next, f.candidateTypes(), false))
	} else {
		for _, c := range e.Structure {
			f.Structure = append(f.Structure, b.node(f, c, f.candidateTypes(), false))
		}
	}
	for _, m := range e.Merge {
		f.Merge = append(f.Merge, b.node(f, m, f.branchCandidates(), true))
	}

	b.name(f, e.PropertyName, branch)
	f.updateInvalidLeaf()
	return f
}

// resolve creates the field for the first segment of e's path.
func (b *builder) resolve(parent *Field, e *queryspec.Field, candidates []string) *Field {
	seg := e.Path.First()
	needsLink := e.Path.IsChain() || len(e.Structure) > 0
	schema, known := lookupProperty(b.types, b.context, candidates, seg, needsLink)

	f := newField(schema, parent)
	f.RelativePath = seg.ID
	f.TypeFilter = slices.Clone(seg.TypeFilter)
	f.IsUnknown = !known
	return f
}

// name records the namespace and alias carried by propertyName. The alias
// is kept only when it differs from the name the serializer derives, so
// documents round-trip. Merge branches keep any name they were given.
func (b *builder) name(f *Field, propertyName string, branch bool) {
	if propertyName == "" {
		return
	}
	ns, name := splitPropertyName(propertyName)
	if ns != "" && ns != queryspec.DefaultNamespace {
		f.Namespace = ns
	}
	if branch || name != f.defaultName() {
		f.Alias = name
	}
}
