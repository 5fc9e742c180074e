// Package session is the query builder session: the query being edited,
// its identity and save state, the saved queries of the selected type,
// and the calls that run, save and delete queries through a Transport.
//
// A Store is safe for concurrent use. Calls that talk to the Transport
// block until it answers; while one is outstanding, a duplicate call is a
// no-op rather than queued. Tree edits happen under the store's lock, so
// the invalid-leaf flags and the selection are never observed half
// updated. Fields returned by the store belong to its tree and must only
// be changed through Store methods.
package session

import (
	"log/slog"
	"sync"

	"github.com/roach88/querybuilder/internal/auth"
	"github.com/roach88/querybuilder/internal/queryspec"
	"github.com/roach88/querybuilder/internal/querytree"
)

// Defaults of a new session.
const (
	DefaultStage      = "RELEASED"
	DefaultResultSize = 20
)

// identity is the part of the session save-as mode snapshots.
type identity struct {
	queryID     string
	label       string
	description string
	space       *auth.Space
}

// Store holds one query-editing session.
type Store struct {
	catalogue  TypeCatalogue
	transport  Transport
	normalizer Normalizer
	spaces     SpaceProvider
	ids        IDGenerator
	logger     *slog.Logger

	mu sync.Mutex
	// epoch changes whenever the tree is replaced; async continuations
	// compare it before touching session state.
	epoch uint64

	queryID              string
	label                string
	description          string
	space                *auth.Space
	context              map[string]any
	meta                 queryspec.Meta
	defaultResponseVocab string
	responseVocab        string

	root    *querytree.Field
	current *querytree.Field

	source           *SavedQuery
	inconsistent     bool
	saveAsMode       bool
	from             identity
	isSaving         bool
	saveError        string
	isRunning        bool
	runError         string
	result           any
	stage            string
	resultStart      int
	resultSize       int
	instanceID       string
	restrictToSpaces []string
	params           map[string]string

	specs             []*SavedQuery
	isFetchingQueries bool
	isFetchingQuery   bool
	fetchQueriesError string

	queriesFilter  string
	childrenFilter string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithNormalizer sets the normalizer fetched documents pass through.
// Without one, documents are used as fetched.
func WithNormalizer(n Normalizer) Option {
	return func(s *Store) {
		s.normalizer = n
	}
}

// WithSpaces sets the provider of spaces and the current user.
func WithSpaces(p SpaceProvider) Option {
	return func(s *Store) {
		s.spaces = p
	}
}

// WithIDGenerator sets the generator for new query ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// New creates a Store with no root schema selected.
func New(catalogue TypeCatalogue, transport Transport, opts ...Option) *Store {
	s := &Store{
		catalogue: catalogue,
		transport: transport,
		spaces:    auth.NewStatic(nil),
		ids:       UUIDv7Generator{},
		logger:    slog.Default(),
		stage:     DefaultStage,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clearRootSchema()
	return s
}

// State is a snapshot of the scalar session state.
type State struct {
	QueryID                      string
	Label                        string
	Description                  string
	Space                        *auth.Space
	RootType                     string
	ResponseVocab                string
	DefaultResponseVocab         string
	SaveAsMode                   bool
	IsSaving                     bool
	SaveError                    string
	IsRunning                    bool
	RunError                     string
	Result                       any
	Stage                        string
	ResultStart                  int
	ResultSize                   int
	InstanceID                   string
	RestrictToSpaces             []string
	IsFetchingQueries            bool
	IsFetchingQuery              bool
	FetchQueriesError            string
	SavedQueryHasInconsistencies bool
	QueriesFilter                string
	ChildrenFilter               string
}

// State returns a snapshot of the session.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		QueryID:                      s.queryID,
		Label:                        s.label,
		Description:                  s.description,
		Space:                        copySpace(s.space),
		ResponseVocab:                s.responseVocab,
		DefaultResponseVocab:         s.defaultResponseVocab,
		SaveAsMode:                   s.saveAsMode,
		IsSaving:                     s.isSaving,
		SaveError:                    s.saveError,
		IsRunning:                    s.isRunning,
		RunError:                     s.runError,
		Result:                       queryspec.CloneValue(s.result),
		Stage:                        s.stage,
		ResultStart:                  s.resultStart,
		ResultSize:                   s.resultSize,
		InstanceID:                   s.instanceID,
		RestrictToSpaces:             append([]string(nil), s.restrictToSpaces...),
		IsFetchingQueries:            s.isFetchingQueries,
		IsFetchingQuery:              s.isFetchingQuery,
		FetchQueriesError:            s.fetchQueriesError,
		SavedQueryHasInconsistencies: s.inconsistent,
		QueriesFilter:                s.queriesFilter,
		ChildrenFilter:               s.childrenFilter,
	}
	if s.root != nil {
		st.RootType = s.root.Schema.ID
	}
	return st
}

// Root returns the root field, or nil when no root schema is selected.
func (s *Store) Root() *querytree.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// CurrentField returns the selected field, or nil.
func (s *Store) CurrentField() *querytree.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Source returns a copy of the saved query the session was loaded from.
func (s *Store) Source() (SavedQuery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return SavedQuery{}, false
	}
	return s.source.clone(), true
}

// Queries returns copies of the saved queries of the selected type.
func (s *Store) Queries() []SavedQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SavedQuery, len(s.specs))
	for i, q := range s.specs {
		out[i] = q.clone()
	}
	return out
}

func copySpace(sp *auth.Space) *auth.Space {
	if sp == nil {
		return nil
	}
	c := *sp
	return &c
}

func (s *Store) privateSpace() *auth.Space {
	return copySpace(s.spaces.PrivateSpace())
}

func (s *Store) findQuery(id string) *SavedQuery {
	for _, q := range s.specs {
		if q.ID == id {
			return q
		}
	}
	return nil
}

// owns reports whether f belongs to the current tree.
func (s *Store) owns(f *querytree.Field) bool {
	return f != nil && s.root != nil && f.Root() == s.root
}

// SelectRootSchema starts a new query on typeID. It resets every
// per-query value and selects the new root. It returns false while a save
// is outstanding.
func (s *Store) SelectRootSchema(typeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSaving {
		return false
	}
	s.selectRootSchema(typeID)
	return true
}

func (s *Store) selectRootSchema(typeID string) {
	s.clearRootSchema()
	s.root = querytree.NewRoot(querytree.RootSchemaFor(s.catalogue, typeID))
	s.selectField(s.root)
}

// ResetRootSchema empties the query and keeps its root type.
func (s *Store) ResetRootSchema() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSaving {
		return false
	}
	s.resetRootSchema()
	return true
}

func (s *Store) resetRootSchema() {
	root := s.root
	s.clearRootSchema()
	if root != nil {
		s.root = querytree.NewRoot(root.Schema)
		s.selectField(s.root)
	}
}

// ClearRootSchema drops the query and its root type.
func (s *Store) ClearRootSchema() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSaving {
		return false
	}
	s.clearRootSchema()
	return true
}

func (s *Store) clearRootSchema() {
	s.epoch++
	s.queryID = ""
	s.label = ""
	s.description = ""
	s.context = queryspec.DefaultContext()
	s.meta = queryspec.Meta{}
	s.defaultResponseVocab = queryspec.ResponseVocab
	s.responseVocab = s.defaultResponseVocab
	s.source = nil
	s.inconsistent = false
	s.saveError = ""
	s.isRunning = false
	s.runError = ""
	s.saveAsMode = false
	s.queriesFilter = ""
	s.result = nil
	s.root = nil
	s.from = identity{space: s.privateSpace()}
	s.space = s.privateSpace()
	s.resetResultOptions()
	s.resetField()
}

func (s *Store) resetResultOptions() {
	s.resultStart = 0
	s.resultSize = DefaultResultSize
	s.instanceID = ""
	s.params = make(map[string]string)
	s.restrictToSpaces = nil
}

// SetAsNewQuery gives the current tree the id of a new, unsaved query.
func (s *Store) SetAsNewQuery(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSaving {
		return false
	}
	s.setAsNewQuery(id)
	return true
}

func (s *Store) setAsNewQuery(id string) {
	s.queryID = id
	s.label = ""
	s.description = ""
	s.source = nil
	s.inconsistent = false
	s.saveError = ""
	s.isRunning = false
	s.runError = ""
	s.saveAsMode = false
	s.queriesFilter = ""
	s.childrenFilter = ""
	s.from = identity{space: s.privateSpace()}
	s.space = s.privateSpace()
}

// SelectQuery loads a saved query into the session. The root schema must
// already be selected and q must not be being deleted.
func (s *Store) SelectQuery(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.findQuery(id)
	if q == nil {
		return false
	}
	return s.selectQuery(q)
}

func (s *Store) selectQuery(q *SavedQuery) bool {
	if s.isSaving || s.root == nil || s.root.Schema.ID == "" || q.IsDeleting {
		return false
	}
	s.queryID = q.ID
	s.space = copySpace(s.spaces.Space(q.Space))
	s.source = q
	s.updateQuery(q.document())
	s.saveError = ""
	s.isRunning = false
	s.runError = ""
	s.saveAsMode = false
	s.result = nil
	s.resetResultOptions()
	s.from = identity{space: copySpace(s.spaces.Space(q.Space))}
	s.inconsistent = s.hasQueryChanged()
	return true
}

// updateQuery rebuilds the tree from doc on the current root schema.
func (s *Store) updateQuery(doc *queryspec.Query) {
	s.context = queryspec.CloneMap(doc.Context)
	if s.context == nil {
		s.context = queryspec.DefaultContext()
	}
	if _, ok := s.context["query"]; !ok {
		s.context["query"] = queryspec.ResponseVocab
	}
	contextVocab, _ := s.context["query"].(string)

	s.meta = doc.Meta
	s.meta.Extra = doc.Meta.Extra.Clone()
	s.label = doc.Meta.Name
	s.description = doc.Meta.Description
	s.responseVocab = doc.Meta.ResponseVocab
	s.defaultResponseVocab = doc.Meta.ResponseVocab
	if s.defaultResponseVocab == "" {
		s.defaultResponseVocab = contextVocab
	}

	s.epoch++
	s.root = querytree.Build(s.catalogue, s.context, s.root.Schema, doc)
	s.selectField(s.root)
}

// LoadQuery replaces the session with an unsaved query built from doc.
// The root type is taken from the document's meta.type.
func (s *Store) LoadQuery(doc *queryspec.Query) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSaving || doc == nil || doc.Meta.Type == "" {
		return false
	}
	s.selectRootSchema(doc.Meta.Type)
	s.updateQuery(doc)
	id := doc.ID
	if id == "" {
		id = s.ids.Generate()
	}
	s.queryID = id
	return true
}
