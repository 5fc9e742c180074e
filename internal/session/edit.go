package session

import (
	"slices"
	"strings"

	"github.com/roach88/querybuilder/internal/queryspec"
	"github.com/roach88/querybuilder/internal/querytree"
)

// AddField adds a field created from schema below parent, or below the
// root when parent is nil. Below a merge group the field becomes a merge
// branch; a root with a root-level merge takes structure children here and
// branches through AddMergeBranch. With selectNew the new field becomes
// the current field. It returns nil when parent is flattened and already
// has its child.
func (s *Store) AddField(schema querytree.Schema, parent *querytree.Field, selectNew bool) *querytree.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSaving || s.root == nil {
		return nil
	}
	if parent == nil {
		parent = s.root
	}
	if !s.owns(parent) {
		return nil
	}
	s.ensureContext()

	var (
		f  *querytree.Field
		ok bool
	)
	if parent.IsRootMerge && !parent.IsRoot() {
		f, ok = parent.AddMergeBranch(schema)
	} else {
		f, ok = parent.AddChild(schema)
	}
	if !ok {
		return nil
	}
	if selectNew {
		s.selectField(f)
	}
	return f
}

// AddMergeField adds an empty merge group below parent, or below the root
// when parent is nil.
func (s *Store) AddMergeField(parent *querytree.Field, selectNew bool) *querytree.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSaving || s.root == nil {
		return nil
	}
	if parent == nil {
		parent = s.root
	}
	if !s.owns(parent) {
		return nil
	}
	s.ensureContext()
	f, ok := parent.AddMerge()
	if !ok {
		return nil
	}
	if selectNew {
		s.selectField(f)
	}
	return f
}

// AddMergeBranch adds a merge branch created from schema to the merge
// group parent, or to the root when parent is nil. The root takes branches
// only when the loaded document had a root-level merge.
func (s *Store) AddMergeBranch(schema querytree.Schema, parent *querytree.Field, selectNew bool) *querytree.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSaving || s.root == nil {
		return nil
	}
	if parent == nil {
		parent = s.root
	}
	if !s.owns(parent) {
		return nil
	}
	s.ensureContext()
	f, ok := parent.AddMergeBranch(schema)
	if !ok {
		return nil
	}
	if selectNew {
		s.selectField(f)
	}
	return f
}

// ensureContext restores the context keys the serializer's output relies
// on.
func (s *Store) ensureContext() {
	if s.context == nil {
		s.context = make(map[string]any)
	}
	def := queryspec.DefaultContext()
	for _, key := range []string{"@vocab", "propertyName", "path"} {
		if _, ok := s.context[key]; !ok {
			s.context[key] = def[key]
		}
	}
	if _, ok := s.context["query"]; !ok {
		vocab := s.responseVocab
		if vocab == "" {
			vocab = s.defaultResponseVocab
		}
		s.context["query"] = vocab
	}
}

// RemoveField detaches f from its parent. Removing the root ends the
// session: the tree, the query identity and the saved query list are
// dropped. When the selection was f or lay below it, the parent is
// selected.
func (s *Store) RemoveField(f *querytree.Field) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSaving || !s.owns(f) {
		return false
	}
	if f == s.root {
		s.clearRootSchema()
		s.specs = nil
		return true
	}
	parent := f.Parent
	selected := s.current != nil && s.current.IsDescendantOf(f)
	if !parent.Remove(f) {
		return false
	}
	if selected {
		s.selectField(parent)
	}
	return true
}

// MoveUpField swaps f with its previous sibling.
func (s *Store) MoveUpField(f *querytree.Field) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSaving || !s.owns(f) {
		return false
	}
	return f.MoveUp()
}

// MoveDownField swaps f with its next sibling.
func (s *Store) MoveDownField(f *querytree.Field) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSaving || !s.owns(f) {
		return false
	}
	return f.MoveDown()
}

// SelectField makes f the current field, clears the children filter and
// asks the catalogue for the types f can hold.
func (s *Store) SelectField(f *querytree.Field) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.owns(f) {
		return false
	}
	s.selectField(f)
	return true
}

func (s *Store) selectField(f *querytree.Field) {
	s.current = f
	s.childrenFilter = ""
	if lookups := f.Lookups(); len(lookups) > 0 {
		s.catalogue.RequestTypes(lookups)
	}
}

// ResetField clears the selection.
func (s *Store) ResetField() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetField()
}

func (s *Store) resetField() {
	s.current = nil
	s.childrenFilter = ""
}

// SetFlattened sets whether f and its single child form one chained path.
func (s *Store) SetFlattened(f *querytree.Field, flattened bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSaving || !s.owns(f) {
		return false
	}
	return f.SetFlattened(flattened)
}

// SetFieldAlias sets the name f is emitted under. An empty alias falls
// back to the property name.
func (s *Store) SetFieldAlias(f *querytree.Field, alias string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSaving || !s.owns(f) || f.IsRoot() {
		return false
	}
	f.Alias = alias
	return true
}

// SetFieldNamespace sets the prefix of f's property name.
func (s *Store) SetFieldNamespace(f *querytree.Field, namespace string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSaving || !s.owns(f) || f.IsRoot() {
		return false
	}
	f.Namespace = strings.TrimSpace(namespace)
	return true
}

// SetFieldOption sets an option of f. A nil value removes it. Options on
// the root are the query's root properties.
func (s *Store) SetFieldOption(f *querytree.Field, name string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSaving || !s.owns(f) || name == "" {
		return false
	}
	f.SetOption(name, value)
	return true
}

// SetResponseVocab sets the vocabulary result keys are emitted in. An
// empty vocab restores the default.
func (s *Store) SetResponseVocab(vocab string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSaving {
		return
	}
	s.responseVocab = vocab
	if s.context == nil {
		s.context = queryspec.DefaultContext()
	}
	if vocab != "" {
		s.context["query"] = vocab
	} else {
		s.context["query"] = s.defaultResponseVocab
	}
}

// SetLabel sets the query label.
func (s *Store) SetLabel(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isSaving {
		s.label = label
	}
}

// SetDescription sets the query description.
func (s *Store) SetDescription(description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isSaving {
		s.description = description
	}
}

// SetSpace sets the space the query is saved in. It returns false for a
// space the provider does not know.
func (s *Store) SetSpace(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSaving {
		return false
	}
	sp := s.spaces.Space(name)
	if sp == nil {
		return false
	}
	s.space = copySpace(sp)
	return true
}

// SetStage sets the stage queries run against.
func (s *Store) SetStage(stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage = stage
}

// SetResultSize sets the page size of query runs.
func (s *Store) SetResultSize(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resultSize = size
}

// SetResultStart sets the offset of query runs.
func (s *Store) SetResultStart(start int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resultStart = start
}

// SetResultInstanceID restricts query runs to one instance.
func (s *Store) SetResultInstanceID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instanceID = id
}

// SetResultRestrictToSpaces limits the spaces query runs search. Nil
// searches all.
func (s *Store) SetResultRestrictToSpaces(spaces []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restrictToSpaces = slices.Clone(spaces)
}

// SetResultQueryParameter sets the value a filter parameter is run with.
func (s *Store) SetResultQueryParameter(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[name] = value
}

// SetQueriesFilter sets the filter applied by GroupedQueries.
func (s *Store) SetQueriesFilter(filter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queriesFilter = filter
}

// SetChildrenFilter sets the filter applied by CurrentFieldGroups.
func (s *Store) SetChildrenFilter(filter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.childrenFilter = filter
}

// saveLabel returns label with a "-Copy" suffix, unless it is empty or
// already has one.
func saveLabel(label string) string {
	if label == "" || strings.HasSuffix(label, "-Copy") {
		return label
	}
	return label + "-Copy"
}

// SetSaveAsMode switches save-as mode. Entering it snapshots the query
// identity, assigns a new id and a "-Copy" label, and keeps the space only
// if queries may be created in it. Leaving it restores the snapshot.
// Entering it again only re-derives the label.
func (s *Store) SetSaveAsMode(on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSaving {
		return false
	}
	switch {
	case on && s.saveAsMode:
		s.label = saveLabel(s.label)
	case on:
		s.saveAsMode = true
		s.from = identity{
			queryID:     s.queryID,
			label:       s.label,
			description: s.description,
			space:       copySpace(s.space),
		}
		s.queryID = s.ids.Generate()
		s.label = saveLabel(s.label)
		if s.space == nil || !s.space.Permissions.CanCreate {
			s.space = s.privateSpace()
		}
	case s.saveAsMode:
		s.saveAsMode = false
		s.queryID = s.from.queryID
		s.label = s.from.label
		s.description = s.from.description
		s.space = s.from.space
		s.from = identity{space: s.privateSpace()}
	}
	return true
}

// CancelChanges discards unsaved edits: a saved query is reloaded, an
// unsaved one is emptied.
func (s *Store) CancelChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source != nil {
		if !s.selectQuery(s.source) {
			return false
		}
		s.from = identity{
			queryID:     s.queryID,
			label:       s.label,
			description: s.description,
			space:       copySpace(s.space),
		}
		return true
	}
	if s.isSaving || s.root == nil {
		return false
	}
	s.root.Clear()
	s.selectField(s.root)
	s.from = identity{space: s.privateSpace()}
	return true
}
