package session

import (
	"context"

	"github.com/roach88/querybuilder/internal/auth"
	"github.com/roach88/querybuilder/internal/catalog"
	"github.com/roach88/querybuilder/internal/queryspec"
	"github.com/roach88/querybuilder/internal/querytree"
)

// TypeCatalogue resolves type ids and prefetches the ones not yet known.
// RequestTypes must not block.
type TypeCatalogue interface {
	querytree.TypeLookup
	RequestTypes(ids []string)
}

// PropertyGrouper is implemented by catalogues that can list the
// properties of a set of types grouped for a property picker.
type PropertyGrouper interface {
	Groups(typeIDs []string, filter string) []catalog.Group
}

// ExecuteRequest is one run of a query against the backend.
type ExecuteRequest struct {
	Query *queryspec.Query
	Stage string
	From  int
	Size  int
	// InstanceID restricts the run to one instance; empty means all.
	InstanceID string
	// RestrictToSpaces limits the spaces searched; nil means all.
	RestrictToSpaces []string
	Params           map[string]string
}

// QueryResult is the response of a query run.
type QueryResult struct {
	Data any `json:"data"`
}

// QueryRepository stores saved query documents.
type QueryRepository interface {
	SaveQuery(ctx context.Context, id string, q *queryspec.Query, space string) error
	DeleteQuery(ctx context.Context, id string) error
	// ListQueries returns the raw saved documents whose root type is
	// typeID.
	ListQueries(ctx context.Context, typeID string) ([]map[string]any, error)
	GetQuery(ctx context.Context, id string) (map[string]any, error)
}

// QueryExecutor runs queries.
type QueryExecutor interface {
	PerformQuery(ctx context.Context, req ExecuteRequest) (*QueryResult, error)
}

// Transport is everything the store sends to the backend. Errors that
// carry an HTTP status expose it through a StatusCode() int method.
type Transport interface {
	QueryRepository
	QueryExecutor
}

// Normalizer brings a fetched document into the shape the builder
// expects, by expanding it and compacting it again with context.
type Normalizer interface {
	Normalize(doc, context map[string]any) (map[string]any, error)
}

// SpaceProvider supplies the spaces and user the store saves with.
type SpaceProvider interface {
	PrivateSpace() *auth.Space
	Space(name string) *auth.Space
	User() *auth.User
}

// IDGenerator produces query ids.
type IDGenerator interface {
	Generate() string
}
