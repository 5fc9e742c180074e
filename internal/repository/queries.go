package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/querybuilder/internal/canonical"
	"github.com/roach88/querybuilder/internal/queryspec"
	"github.com/roach88/querybuilder/internal/transport"
)

// ErrNoType is returned when saving a document without meta.type.
var ErrNoType = errors.New("query has no meta.type")

// Entry is one stored query.
type Entry struct {
	ID       string
	Type     string
	Space    string
	Label    string
	Hash     string
	Revision int64
	Seq      int64

	// Document is the stored document with its id, space and revision.
	Document map[string]any
}

// Save stores q under id in space. An unchanged document keeps its
// revision; a changed one is replaced and its revision incremented.
func (r *Repository) Save(ctx context.Context, id string, q *queryspec.Query, space string) (Entry, error) {
	if id == "" {
		return Entry{}, errors.New("save query: empty id")
	}
	if q == nil {
		return Entry{}, errors.New("save query: nil query")
	}
	if q.Meta.Type == "" {
		return Entry{}, fmt.Errorf("save query %q: %w", id, ErrNoType)
	}

	doc := q.ToMap()
	doc["@id"] = id
	if space != "" {
		doc[queryspec.KeySpace] = space
	}
	if _, ok := doc[queryspec.KeyUser]; !ok && r.user != nil {
		doc[queryspec.KeyUser] = map[string]any{
			"@id":                                 r.user.ID,
			"http://schema.org/name":              r.user.DisplayName,
			"https://schema.hbp.eu/users/picture": r.user.Picture,
		}
	}

	data, err := canonical.Marshal(doc)
	if err != nil {
		return Entry{}, fmt.Errorf("save query %q: %w", id, err)
	}
	hash, err := canonical.Hash(canonical.DomainQuery, doc)
	if err != nil {
		return Entry{}, fmt.Errorf("save query %q: %w", id, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO saved_queries
		(id, type, space, label, document, content_hash, revision, seq)
		VALUES (?, ?, ?, ?, ?, ?, 1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM saved_queries))
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			space = excluded.space,
			label = excluded.label,
			document = excluded.document,
			content_hash = excluded.content_hash,
			revision = saved_queries.revision + 1
		WHERE saved_queries.content_hash != excluded.content_hash
	`,
		id,
		q.Meta.Type,
		space,
		q.Meta.Name,
		string(data),
		hash,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("save query %q: %w", id, err)
	}
	r.logger.Debug("query stored", "query_id", id, "hash", hash)

	return r.Get(ctx, id)
}

// Get returns the stored query id, or a 404 StatusError.
func (r *Repository) Get(ctx context.Context, id string) (Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, type, space, label, document, content_hash, revision, seq
		FROM saved_queries
		WHERE id = ?
	`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, transport.NotFound(http.MethodGet, transport.QueryPath(id))
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get query %q: %w", id, err)
	}
	return e, nil
}

// ListByType returns the stored queries whose root type is typeID, or
// every stored query when typeID is empty.
func (r *Repository) ListByType(ctx context.Context, typeID string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, space, label, document, content_hash, revision, seq
		FROM saved_queries
		WHERE ? = '' OR type = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, typeID, typeID)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list queries: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queries: %w", err)
	}
	return entries, nil
}

// Delete removes the stored query id, or returns a 404 StatusError.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM saved_queries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete query %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete query %q: %w", id, err)
	}
	if n == 0 {
		return transport.NotFound(http.MethodDelete, transport.QueryPath(id))
	}
	return nil
}

// SaveQuery implements session.QueryRepository.
func (r *Repository) SaveQuery(ctx context.Context, id string, q *queryspec.Query, space string) error {
	_, err := r.Save(ctx, id, q, space)
	return err
}

// DeleteQuery implements session.QueryRepository.
func (r *Repository) DeleteQuery(ctx context.Context, id string) error {
	return r.Delete(ctx, id)
}

// ListQueries implements session.QueryRepository.
func (r *Repository) ListQueries(ctx context.Context, typeID string) ([]map[string]any, error) {
	entries, err := r.ListByType(ctx, typeID)
	if err != nil {
		return nil, err
	}
	docs := make([]map[string]any, len(entries))
	for i, e := range entries {
		docs[i] = e.Document
	}
	return docs, nil
}

// GetQuery implements session.QueryRepository.
func (r *Repository) GetQuery(ctx context.Context, id string) (map[string]any, error) {
	e, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.Document, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var document string
	if err := s.Scan(&e.ID, &e.Type, &e.Space, &e.Label, &document, &e.Hash, &e.Revision, &e.Seq); err != nil {
		return Entry{}, err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(document)))
	dec.UseNumber()
	if err := dec.Decode(&e.Document); err != nil {
		return Entry{}, fmt.Errorf("decode document %q: %w", e.ID, err)
	}
	e.Document[queryspec.KeyRevision] = e.Revision
	return e, nil
}
