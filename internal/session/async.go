package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/roach88/querybuilder/internal/auth"
	"github.com/roach88/querybuilder/internal/queryspec"
)

// statusCode returns the HTTP status carried by err, or 0.
func statusCode(err error) int {
	var status interface{ StatusCode() int }
	if errors.As(err, &status) {
		return status.StatusCode()
	}
	return 0
}

// ExecuteQuery runs the current query with the session's result options.
// It does nothing when the query is empty or a run is outstanding. A run
// whose session was reset in the meantime is discarded.
func (s *Store) ExecuteQuery(ctx context.Context) {
	s.mu.Lock()
	if s.isQueryEmpty() || s.isRunning {
		s.mu.Unlock()
		return
	}
	q, err := s.jsonQuery()
	if err != nil {
		s.mu.Unlock()
		return
	}
	params := make(map[string]string)
	for _, p := range s.queryParameters() {
		params[p.Name] = p.Value
	}
	req := ExecuteRequest{
		Query:            q,
		Stage:            s.stage,
		From:             s.resultStart,
		Size:             s.resultSize,
		InstanceID:       strings.TrimSpace(s.instanceID),
		RestrictToSpaces: slices.Clone(s.restrictToSpaces),
		Params:           params,
	}
	epoch := s.epoch
	s.isRunning = true
	s.runError = ""
	s.result = nil
	s.mu.Unlock()

	res, err := s.transport.PerformQuery(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		s.logger.Debug("discarding stale query result")
		return
	}
	s.isRunning = false
	if err != nil {
		s.runError = fmt.Sprintf("Error while executing query (%s)", err)
		s.logger.Error("execute query failed", "error", err)
		return
	}
	if res != nil {
		s.result = res.Data
	}
}

// SaveQuery stores the current query. In save-as mode, or when the query
// was never saved, a new saved query is created under the session's query
// id; otherwise the saved query is overwritten. It does nothing when the
// query is empty, a save is outstanding or the saved query is being
// deleted.
func (s *Store) SaveQuery(ctx context.Context) {
	s.mu.Lock()
	if s.isQueryEmpty() || s.isSaving || (s.source != nil && s.source.IsDeleting) {
		s.mu.Unlock()
		return
	}
	q, err := s.jsonQuery()
	if err != nil {
		s.mu.Unlock()
		return
	}
	s.isSaving = true
	s.saveError = ""
	if s.source != nil {
		s.source.DeleteError = ""
	}
	creating := s.saveAsMode || s.source == nil
	queryID := s.queryID
	if !creating {
		queryID = s.source.ID
	}
	if queryID == "" {
		queryID = s.ids.Generate()
		s.queryID = queryID
	}
	if s.space == nil {
		s.space = s.privateSpace()
	}
	spaceName := auth.DefaultSpaceName
	if s.space != nil {
		spaceName = s.space.Name
	}
	s.mu.Unlock()

	err = s.transport.SaveQuery(ctx, queryID, q, spaceName)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.isSaving = false
	if err != nil {
		s.saveError = fmt.Sprintf("Error while saving query %q (%s)", queryID, err)
		s.logger.Error("save query failed", "query_id", queryID, "error", err)
		return
	}
	s.logger.Info("query saved", "query_id", queryID, "space", spaceName)

	saved := q.Clone()
	saved.ID = queryID
	saved.Space = spaceName
	if creating || s.source == nil {
		src := savedQueryFrom(saved)
		if u := s.spaces.User(); u != nil {
			src.User = Author{ID: u.ID, Name: u.DisplayName, Picture: u.Picture}
		}
		s.source = src
		s.specs = append(s.specs, src)
	} else {
		s.source.Label = saved.Meta.Name
		s.source.Description = saved.Meta.Description
		s.source.Space = spaceName
		if s.source.Query != nil {
			saved.Author = s.source.Query.Author
		}
		s.source.Query = saved
	}
	s.queryID = queryID
	s.saveAsMode = false
	s.inconsistent = false
	s.from = identity{space: s.privateSpace()}
}

// CancelSaveQuery clears the save error once no save is outstanding.
func (s *Store) CancelSaveQuery() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isSaving {
		s.saveError = ""
	}
}

// DeleteQuery deletes the saved query id. It does nothing while that
// query is already being deleted, or while it is the session's source and
// a save is outstanding.
func (s *Store) DeleteQuery(ctx context.Context, id string) {
	s.deleteQuery(ctx, id, false)
}

// DeleteCurrentQuery deletes the saved query the session was loaded from
// and, once it is gone, starts a new query on the same root type.
func (s *Store) DeleteCurrentQuery(ctx context.Context) {
	s.mu.Lock()
	if s.source == nil {
		s.mu.Unlock()
		return
	}
	id := s.source.ID
	s.mu.Unlock()
	s.deleteQuery(ctx, id, true)
}

func (s *Store) deleteQuery(ctx context.Context, id string, startNew bool) {
	s.mu.Lock()
	q := s.findQuery(id)
	if q == nil && s.source != nil && s.source.ID == id {
		q = s.source
	}
	if q == nil || q.IsDeleting || (q == s.source && s.isSaving) {
		s.mu.Unlock()
		return
	}
	q.IsDeleting = true
	q.DeleteError = ""
	s.mu.Unlock()

	err := s.transport.DeleteQuery(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	q.IsDeleting = false
	if err != nil {
		q.DeleteError = fmt.Sprintf("Error while deleting query %q (%s)", id, err)
		s.logger.Error("delete query failed", "query_id", id, "error", err)
		return
	}
	s.logger.Info("query deleted", "query_id", id)
	wasSource := q == s.source
	if wasSource {
		s.source = nil
	}
	s.specs = slices.DeleteFunc(s.specs, func(sq *SavedQuery) bool { return sq.ID == id })
	if startNew && wasSource && !s.isSaving {
		s.resetRootSchema()
		s.setAsNewQuery(s.ids.Generate())
	}
}

// CancelDeleteQuery clears the delete error of id once its deletion is
// over.
func (s *Store) CancelDeleteQuery(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q := s.findQuery(id); q != nil && !q.IsDeleting {
		q.DeleteError = ""
	}
}

// normalize turns a fetched document into a SavedQuery.
func (s *Store) normalize(doc map[string]any) (*SavedQuery, error) {
	if s.normalizer != nil {
		in := queryspec.CloneMap(doc)
		ctx := queryspec.DefaultContext()
		in["@context"] = ctx
		out, err := s.normalizer.Normalize(in, ctx)
		if err != nil {
			return nil, err
		}
		doc = out
	}
	q := queryspec.FromMap(doc)
	if q.ID == "" {
		return nil, errors.New("document has no @id")
	}
	return savedQueryFrom(q), nil
}

// FetchQueries loads the saved queries of the root type. A document that
// cannot be normalized is skipped and reported in the fetch error; the
// others are kept. A response for a root type that is no longer selected
// is discarded.
func (s *Store) FetchQueries(ctx context.Context) {
	s.mu.Lock()
	if s.isFetchingQueries || s.root == nil || s.root.Schema.ID == "" {
		s.mu.Unlock()
		return
	}
	typeID := s.root.Schema.ID
	s.isFetchingQueries = true
	s.specs = nil
	s.fetchQueriesError = ""
	s.mu.Unlock()

	docs, err := s.transport.ListQueries(ctx, typeID)

	var (
		specs    []*SavedQuery
		problems []string
	)
	if err == nil {
		for _, doc := range docs {
			q, nerr := s.normalize(doc)
			if nerr != nil {
				problems = append(problems, fmt.Sprintf("Error while trying to expand/compact JSON-LD (%s)", nerr))
				continue
			}
			specs = append(specs, q)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.isFetchingQueries = false
	if s.root == nil || s.root.Schema.ID != typeID {
		s.logger.Debug("discarding stale query list", "type", typeID)
		return
	}
	if err != nil {
		s.fetchQueriesError = fmt.Sprintf("Error while fetching saved queries for %q (%s)", typeID, err)
		s.logger.Error("fetch queries failed", "type", typeID, "error", err)
		return
	}
	s.specs = specs
	s.fetchQueriesError = strings.Join(problems, "\n")
	if s.source != nil {
		s.source = s.findQuery(s.source.ID)
	}
}

// FetchQueryByID loads one saved query and adds it to the list. A 404 is
// not an error; a 401 or 403 is reported as missing permission.
func (s *Store) FetchQueryByID(ctx context.Context, id string) (SavedQuery, bool) {
	q := s.fetchQueryByID(ctx, id)
	if q == nil {
		return SavedQuery{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return q.clone(), true
}

func (s *Store) fetchQueryByID(ctx context.Context, id string) *SavedQuery {
	s.mu.Lock()
	s.isFetchingQuery = true
	s.mu.Unlock()

	doc, err := s.transport.GetQuery(ctx, id)

	var (
		q    *SavedQuery
		nerr error
	)
	if err == nil {
		q, nerr = s.normalize(doc)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.isFetchingQuery = false
	switch {
	case err != nil:
		switch statusCode(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			s.fetchQueriesError = fmt.Sprintf("You do not have permission to access the query with id %q", id)
		case http.StatusNotFound:
		default:
			s.fetchQueriesError = fmt.Sprintf("Error while fetching query with id %q (%s)", id, err)
			s.logger.Error("fetch query failed", "query_id", id, "error", err)
		}
		return nil
	case nerr != nil:
		s.fetchQueriesError = fmt.Sprintf("Error while trying to expand/compact JSON-LD (%s)", nerr)
		return nil
	}
	if i := slices.IndexFunc(s.specs, func(sq *SavedQuery) bool { return sq.ID == q.ID }); i >= 0 {
		s.specs[i] = q
	} else {
		s.specs = append(s.specs, q)
	}
	return q
}

// SelectQueryByID opens the saved query id, fetching it when it is not in
// the list. A query whose root type the catalogue does not know is left
// unopened and SelectQueryByID returns false. An id that matches no saved
// query becomes the id of a new query on the current root type.
func (s *Store) SelectQueryByID(ctx context.Context, id string) bool {
	s.mu.Lock()
	q := s.findQuery(id)
	s.mu.Unlock()
	if q == nil {
		q = s.fetchQueryByID(ctx, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSaving {
		return false
	}
	if q == nil {
		if s.root != nil {
			s.setAsNewQuery(id)
		} else {
			s.clearRootSchema()
		}
		return false
	}
	typeID := q.Query.Meta.Type
	if _, ok := s.catalogue.Type(typeID); !ok {
		s.logger.Warn("saved query has an unknown root type", "query_id", id, "type", typeID)
		return false
	}
	s.selectRootSchema(typeID)
	return s.selectQuery(q)
}
