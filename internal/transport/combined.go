package transport

import (
	"context"
	"net/http"

	"github.com/roach88/querybuilder/internal/queryspec"
	"github.com/roach88/querybuilder/internal/session"
)

// Combined routes the session calls to a repository and an executor,
// e.g. a local sqlite repository and a remote service. With no Executor,
// PerformQuery answers 501.
type Combined struct {
	Repository session.QueryRepository
	Executor   session.QueryExecutor
}

var _ session.Transport = Combined{}

// PerformQuery delegates to the executor.
func (c Combined) PerformQuery(ctx context.Context, req session.ExecuteRequest) (*session.QueryResult, error) {
	if c.Executor == nil {
		return nil, &StatusError{
			Code:   http.StatusNotImplemented,
			Method: http.MethodPost,
			URL:    PathQueries,
			Body:   "query execution is not available",
		}
	}
	return c.Executor.PerformQuery(ctx, req)
}

// SaveQuery delegates to the repository.
func (c Combined) SaveQuery(ctx context.Context, id string, q *queryspec.Query, space string) error {
	return c.Repository.SaveQuery(ctx, id, q, space)
}

// DeleteQuery delegates to the repository.
func (c Combined) DeleteQuery(ctx context.Context, id string) error {
	return c.Repository.DeleteQuery(ctx, id)
}

// ListQueries delegates to the repository.
func (c Combined) ListQueries(ctx context.Context, typeID string) ([]map[string]any, error) {
	return c.Repository.ListQueries(ctx, typeID)
}

// GetQuery delegates to the repository.
func (c Combined) GetQuery(ctx context.Context, id string) (map[string]any, error) {
	return c.Repository.GetQuery(ctx, id)
}
