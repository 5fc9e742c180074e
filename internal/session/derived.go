package session

import (
	"errors"
	"slices"
	"strings"

	"github.com/roach88/querybuilder/internal/canonical"
	"github.com/roach88/querybuilder/internal/catalog"
	"github.com/roach88/querybuilder/internal/queryspec"
	"github.com/roach88/querybuilder/internal/querytree"
)

// ErrNoRootSchema is returned when a query document is requested before a
// root schema is selected.
var ErrNoRootSchema = errors.New("session: no root schema selected")

// JSONQuery returns the document for the current tree.
func (s *Store) JSONQuery() (*queryspec.Query, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jsonQuery()
}

func (s *Store) jsonQuery() (*queryspec.Query, error) {
	if s.root == nil {
		return nil, ErrNoRootSchema
	}
	out, err := querytree.Serialize(s.root)
	if err != nil {
		return nil, err
	}
	meta := s.meta
	meta.Extra = s.meta.Extra.Clone()
	meta.Type = s.root.Schema.ID
	meta.Name = strings.TrimSpace(s.label)
	meta.Description = strings.TrimSpace(s.description)
	meta.ResponseVocab = s.responseVocab
	return &queryspec.Query{
		Context:    queryspec.CloneMap(s.context),
		Meta:       meta,
		Structure:  out.Structure,
		Merge:      out.Merge,
		HasMerge:   s.root.IsRootMerge,
		Properties: s.root.Options.Clone(),
	}, nil
}

// JSONSourceQuery returns the document of the saved query the session was
// loaded from, or nil.
func (s *Store) JSONSourceQuery() *queryspec.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return nil
	}
	return s.source.document()
}

// HasQueryChanged reports whether the current document differs from the
// saved one. An unsaved query has always changed.
func (s *Store) HasQueryChanged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasQueryChanged()
}

func (s *Store) hasQueryChanged() bool {
	q, err := s.jsonQuery()
	if err != nil {
		return s.source != nil
	}
	if s.source == nil {
		return true
	}
	return !canonical.Equal(q.ToMap(), s.source.document().ToMap())
}

// HasChanged reports whether the session holds work that is not saved: a
// non-empty query that is new, about to be saved as a copy, or edited; or
// an emptied saved query.
func (s *Store) HasChanged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isQueryEmpty() {
		return s.source != nil
	}
	return s.source == nil ||
		(s.saveAsMode && s.queryID != s.source.ID) ||
		s.hasQueryChanged()
}

// IsQueryEmpty reports whether the root has no fields.
func (s *Store) IsQueryEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isQueryEmpty()
}

func (s *Store) isQueryEmpty() bool {
	return s.root == nil || s.root.IsEmpty()
}

// IsQuerySaved reports whether the session was loaded from a saved query.
func (s *Store) IsQuerySaved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source != nil
}

// CanSaveQuery reports whether the user may write to the query's space.
func (s *Store) CanSaveQuery() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.space != nil && s.space.Permissions.CanWrite
}

// CanDeleteQuery reports whether the user may delete from the query's
// space.
func (s *Store) CanDeleteQuery() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.space != nil && s.space.Permissions.CanDelete
}

// JSONQueryDiff returns the line diff from the saved document to the
// current one.
func (s *Store) JSONQueryDiff() ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.jsonQuery()
	if err != nil {
		return nil, err
	}
	var before any
	if s.source != nil {
		before = s.source.document().ToMap()
	}
	return DiffJSON(before, q.ToMap())
}

// Parameter is a filter parameter of the query and the value it is run
// with.
type Parameter struct {
	Name  string
	Value string
}

// QueryParameters returns the filter parameters of the current tree.
func (s *Store) QueryParameters() []Parameter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryParameters()
}

func (s *Store) queryParameters() []Parameter {
	if s.root == nil {
		return nil
	}
	names := s.root.ParameterNames()
	out := make([]Parameter, len(names))
	for i, name := range names {
		out[i] = Parameter{Name: name, Value: s.params[name]}
	}
	return out
}

// CurrentFieldLookups returns the types whose properties can be added
// below the current field.
func (s *Store) CurrentFieldLookups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return slices.Clone(s.current.Lookups())
}

// CurrentFieldGroups returns the properties that can be added below the
// current field, grouped by type and filtered by the children filter. It
// returns nil when the catalogue cannot group properties.
func (s *Store) CurrentFieldGroups() []catalog.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	grouper, ok := s.catalogue.(PropertyGrouper)
	if !ok || s.current == nil {
		return nil
	}
	return grouper.Groups(s.current.Lookups(), s.childrenFilter)
}

// GroupedQueries returns the saved queries grouped by space, filtered by
// the queries filter.
func (s *Store) GroupedQueries() []QueryGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return groupQueries(s.specs, s.spaces, s.queriesFilter)
}
