package querytree

import (
	"slices"

	"github.com/roach88/querybuilder/internal/queryspec"
)

// canAddChild reports whether a new child may be attached below f. A
// flattened field keeps exactly one child.
func (f *Field) canAddChild() bool {
	return !f.IsFlattened || len(f.Structure) == 0
}

// AddChild appends a field created from schema. It returns false and
// leaves the tree unchanged when f is flattened and already has its child.
func (f *Field) AddChild(schema Schema) (*Field, bool) {
	if !f.canAddChild() {
		return nil, false
	}
	child := newField(schema, f)
	child.updateInvalidLeaf()
	f.Structure = append(f.Structure, child)
	f.updateInvalidLeaf()
	return child, true
}

// AddMerge appends an empty merge group below f. A flattened field
// refuses it: a chained path cannot carry a merge.
func (f *Field) AddMerge() (*Field, bool) {
	if !f.canAddChild() || f.IsFlattened {
		return nil, false
	}
	group := newField(mergeSchema(), f)
	group.IsRootMerge = true
	group.updateInvalidLeaf()
	f.Structure = append(f.Structure, group)
	f.updateInvalidLeaf()
	return group, true
}

// AddMergeBranch appends a branch created from schema to the merge group
// f. It returns false when f is not a merge group or is a hop of a
// flattened chain.
func (f *Field) AddMergeBranch(schema Schema) (*Field, bool) {
	if !f.IsRootMerge || (f.Parent != nil && f.Parent.IsFlattened) {
		return nil, false
	}
	branch := newField(schema, f)
	branch.IsMerge = true
	branch.updateInvalidLeaf()
	f.Merge = append(f.Merge, branch)
	f.updateInvalidLeaf()
	return branch, true
}

// Remove detaches child from f. Merge branches are removed from the merge
// group, other fields from the structure. It returns false when child is
// not owned by f.
func (f *Field) Remove(child *Field) bool {
	if child == nil || child.Parent != f {
		return false
	}
	list := &f.Structure
	if child.IsMerge {
		list = &f.Merge
	}
	i := slices.Index(*list, child)
	if i < 0 {
		return false
	}
	*list = slices.Delete(*list, i, i+1)
	child.Parent = nil
	if len(f.Structure) == 0 {
		f.IsFlattened = false
	}
	f.updateInvalidLeaf()
	return true
}

// siblings returns the list f is kept in by its parent.
func (f *Field) siblings() *[]*Field {
	if f.Parent == nil {
		return nil
	}
	if f.IsMerge {
		return &f.Parent.Merge
	}
	return &f.Parent.Structure
}

// MoveUp swaps f with its previous sibling. It returns false at the
// boundary.
func (f *Field) MoveUp() bool {
	list := f.siblings()
	if list == nil {
		return false
	}
	i := slices.Index(*list, f)
	if i < 1 {
		return false
	}
	(*list)[i-1], (*list)[i] = (*list)[i], (*list)[i-1]
	return true
}

// MoveDown swaps f with its next sibling. It returns false at the
// boundary.
func (f *Field) MoveDown() bool {
	list := f.siblings()
	if list == nil {
		return false
	}
	i := slices.Index(*list, f)
	if i < 0 || i >= len(*list)-1 {
		return false
	}
	(*list)[i], (*list)[i+1] = (*list)[i+1], (*list)[i]
	return true
}

// SetFlattened sets whether f and its single child are written as one
// chained path. Flattening requires exactly one child and no merge at any
// hop of the chain; it returns false when that does not hold.
func (f *Field) SetFlattened(flattened bool) bool {
	if flattened && (len(f.Structure) != 1 || f.ownsMerge() || f.Structure[0].chainHasMerge()) {
		return false
	}
	f.IsFlattened = flattened
	return true
}

// ownsMerge reports whether f is a merge group or carries merge branches.
func (f *Field) ownsMerge() bool {
	return f.IsRootMerge || len(f.Merge) > 0
}

// chainHasMerge reports whether f, or a field f is flattened onto, owns a
// merge.
func (f *Field) chainHasMerge() bool {
	for {
		if f.ownsMerge() {
			return true
		}
		if !f.IsFlattened || len(f.Structure) != 1 {
			return false
		}
		f = f.Structure[0]
	}
}

// SetOption sets an option value. A nil value removes the option.
func (f *Field) SetOption(name string, value any) {
	if value == nil {
		f.Options.Delete(name)
		return
	}
	f.Options.Set(name, queryspec.CloneValue(value))
}

// Clear detaches every child and merge branch of f.
func (f *Field) Clear() {
	for _, c := range f.Structure {
		c.Parent = nil
	}
	for _, c := range f.Merge {
		c.Parent = nil
	}
	f.Structure = nil
	f.Merge = nil
	f.IsFlattened = false
	f.updateInvalidLeaf()
}
