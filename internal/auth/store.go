package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// Client fetches the profile and spaces of the signed-in user.
type Client interface {
	GetUserProfile(ctx context.Context) (map[string]any, error)
	GetSpaces(ctx context.Context) ([]Space, error)
}

// IsForbidden reports whether err carries a 401 or 403 status.
func IsForbidden(err error) bool {
	var status interface{ StatusCode() int }
	if !errors.As(err, &status) {
		return false
	}
	code := status.StatusCode()
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// State is a snapshot of a Store.
type State struct {
	IsUserAuthorized               bool
	IsUserAuthorizationInitialized bool
	IsRetrievingUserProfile        bool
	UserProfileError               string
	IsSpacesInitialized            bool
	IsSpacesFetched                bool
	IsRetrievingSpaces             bool
	SpacesError                    string
}

// Store tracks the user profile and spaces fetched through a Client. It is
// safe for concurrent use.
type Store struct {
	client Client
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	user   *User
	spaces spaceList
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore creates a Store backed by client.
func NewStore(client Client, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RetrieveUserProfile fetches the profile unless it is known or being
// fetched. A 401 or 403 leaves the user unauthorized without an error
// message, so callers can show an unauthorized state instead of retrying.
func (s *Store) RetrieveUserProfile(ctx context.Context) {
	s.mu.Lock()
	if s.state.IsRetrievingUserProfile || s.user != nil {
		s.mu.Unlock()
		return
	}
	s.state.UserProfileError = ""
	s.state.IsRetrievingUserProfile = true
	s.state.IsUserAuthorizationInitialized = true
	s.mu.Unlock()

	doc, err := s.client.GetUserProfile(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsRetrievingUserProfile = false
	if err != nil {
		s.state.IsUserAuthorized = false
		s.state.IsUserAuthorizationInitialized = false
		if IsForbidden(err) {
			s.logger.Info("user is not authorized")
			return
		}
		s.state.UserProfileError = fmt.Sprintf("Error while retrieving user profile (%s)", err)
		s.logger.Error("retrieve user profile failed", "error", err)
		return
	}
	s.state.IsUserAuthorized = true
	s.user = UserFromProfile(doc)
}

// RetrieveSpaces fetches the spaces of an authorized user once. A 401 or
// 403 leaves an empty, fetched list without an error message.
func (s *Store) RetrieveSpaces(ctx context.Context) {
	s.mu.Lock()
	if !s.state.IsUserAuthorized || s.state.IsSpacesFetched || s.state.IsRetrievingSpaces {
		s.mu.Unlock()
		return
	}
	s.state.SpacesError = ""
	s.state.IsRetrievingSpaces = true
	s.state.IsSpacesInitialized = true
	s.mu.Unlock()

	spaces, err := s.client.GetSpaces(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsRetrievingSpaces = false
	if err != nil {
		s.state.IsSpacesInitialized = false
		if IsForbidden(err) {
			s.spaces = nil
			s.state.IsSpacesFetched = true
			return
		}
		s.state.SpacesError = fmt.Sprintf("Error while retrieving spaces (%s)", err)
		s.logger.Error("retrieve spaces failed", "error", err)
		return
	}
	s.spaces = spaces
	s.state.IsSpacesFetched = true
}

// State returns a snapshot of the retrieval flags.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns a copy of the profile, or nil before it is fetched.
func (s *Store) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// PrivateSpace returns the user's private space, or nil.
func (s *Store) PrivateSpace() *Space {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spaces.private()
}

// Space returns the space called name, or nil.
func (s *Store) Space(name string) *Space {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spaces.byName(name)
}

// Spaces returns every known space.
func (s *Store) Spaces() []Space {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Space(nil), s.spaces...)
}

// SharedSpaces returns the spaces that are not private.
func (s *Store) SharedSpaces() []Space {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spaces.shared()
}

// AllowedSharedSpacesToCreateQueries returns the shared spaces the user
// may create queries in.
func (s *Store) AllowedSharedSpacesToCreateQueries() []Space {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spaces.sharedCreatable()
}

// Static is a fixed user and space list, for local use without a profile
// service.
type Static struct {
	user   *User
	spaces spaceList
}

// NewStatic returns a Static provider. With no spaces it offers
// DefaultPrivateSpace.
func NewStatic(user *User, spaces ...Space) *Static {
	if len(spaces) == 0 {
		spaces = []Space{DefaultPrivateSpace()}
	}
	return &Static{user: user, spaces: spaces}
}

// User returns a copy of the configured user, or nil.
func (s *Static) User() *User {
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// PrivateSpace returns the private space, or nil.
func (s *Static) PrivateSpace() *Space { return s.spaces.private() }

// Space returns the space called name, or nil.
func (s *Static) Space(name string) *Space { return s.spaces.byName(name) }

// Spaces returns every configured space.
func (s *Static) Spaces() []Space { return append([]Space(nil), s.spaces...) }
