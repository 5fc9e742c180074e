// Package server serves saved queries, spaces, the user profile and type
// descriptors over HTTP on the routes the transport client calls, so a
// local session can run against a sqlite repository.
package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/querybuilder/internal/auth"
	"github.com/roach88/querybuilder/internal/catalog"
	"github.com/roach88/querybuilder/internal/queryspec"
	"github.com/roach88/querybuilder/internal/session"
	"github.com/roach88/querybuilder/internal/transport"
)

// Error codes of JSON error responses.
const (
	CodeInvalidJSON    = "INVALID_JSON"
	CodeInvalidQuery   = "INVALID_QUERY"
	CodeMissingParam   = "MISSING_PARAMETER"
	CodeNotFound       = "NOT_FOUND"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeNotImplemented = "NOT_IMPLEMENTED"
	CodeInternal       = "INTERNAL"
)

// TypeSource resolves type descriptors.
type TypeSource interface {
	Type(id string) (*catalog.Type, bool)
}

// Spaces lists the user and spaces reported to clients.
type Spaces interface {
	User() *auth.User
	Spaces() []auth.Space
}

// Server handles the query service routes.
type Server struct {
	repo   session.QueryRepository
	types  TypeSource
	spaces Spaces
	logger *slog.Logger

	mu        sync.Mutex
	validator *queryspec.Validator
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New creates a Server.
func New(repo session.QueryRepository, types TypeSource, spaces Spaces, opts ...Option) (*Server, error) {
	v, err := queryspec.NewValidator()
	if err != nil {
		return nil, err
	}
	s := &Server{
		repo:      repo,
		types:     types,
		spaces:    spaces,
		logger:    slog.Default(),
		validator: v,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get(transport.PathUser, s.getUser)
	r.Get(transport.PathSpaces, s.getSpaces)
	r.Post(transport.PathTypes, s.postTypes)

	r.Route(transport.PathQueries, func(r chi.Router) {
		r.Get("/", s.listQueries)
		r.Post("/", s.performQuery)
		r.Get("/{id}", s.getQuery)
		r.Put("/{id}", s.saveQuery)
		r.Delete("/{id}", s.deleteQuery)
	})
	return r
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := srv.Shutdown(context.Background()); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	u := s.spaces.User()
	if u == nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "no user is signed in")
		return
	}
	writeJSON(w, http.StatusOK, transport.Envelope[map[string]any]{Data: u.Profile()})
}

func (s *Server) getSpaces(w http.ResponseWriter, r *http.Request) {
	spaces := s.spaces.Spaces()
	if spaces == nil {
		spaces = []auth.Space{}
	}
	writeJSON(w, http.StatusOK, transport.Envelope[[]auth.Space]{Data: spaces})
}

func (s *Server) postTypes(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if err := decodeJSON(r, &ids); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidJSON, err.Error())
		return
	}
	types := []catalog.Type{}
	for _, id := range ids {
		if t, ok := s.types.Type(id); ok {
			types = append(types, *t)
		}
	}
	writeJSON(w, http.StatusOK, transport.Envelope[[]catalog.Type]{Data: types})
}

func (s *Server) listQueries(w http.ResponseWriter, r *http.Request) {
	typeID := r.URL.Query().Get("type")
	if typeID == "" {
		writeError(w, http.StatusBadRequest, CodeMissingParam, "type is required")
		return
	}
	docs, err := s.repo.ListQueries(r.Context(), typeID)
	if err != nil {
		s.fail(w, err)
		return
	}
	if docs == nil {
		docs = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, transport.Envelope[[]map[string]any]{Data: docs})
}

func (s *Server) performQuery(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotImplemented, CodeNotImplemented, "query execution is not available")
}

func (s *Server) getQuery(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r)
	if !ok {
		return
	}
	doc, err := s.repo.GetQuery(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) saveQuery(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidJSON, err.Error())
		return
	}

	s.mu.Lock()
	errs := s.validator.Validate(id, data)
	s.mu.Unlock()
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  errs[0].Error(),
			"code":   CodeInvalidQuery,
			"errors": errs,
		})
		return
	}

	q, err := queryspec.Decode(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidJSON, err.Error())
		return
	}
	space := r.URL.Query().Get("space")
	if space == "" {
		space = auth.DefaultSpaceName
	}
	if err := s.repo.SaveQuery(r.Context(), id, q, space); err != nil {
		s.fail(w, err)
		return
	}
	doc, err := s.repo.GetQuery(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info("query saved", "query_id", id, "space", space)
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) deleteQuery(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r)
	if !ok {
		return
	}
	if err := s.repo.DeleteQuery(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info("query deleted", "query_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// fail writes the response for a repository error.
func (s *Server) fail(w http.ResponseWriter, err error) {
	if transport.IsNotFound(err) {
		writeError(w, http.StatusNotFound, CodeNotFound, "query not found")
		return
	}
	s.logger.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
}

// queryID returns the unescaped {id} path parameter.
func queryID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || id == "" {
		writeError(w, http.StatusBadRequest, CodeMissingParam, "invalid query id")
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON encode error", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
