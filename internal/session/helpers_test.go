package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/querybuilder/internal/auth"
	"github.com/roach88/querybuilder/internal/catalog"
	"github.com/roach88/querybuilder/internal/queryspec"
	"github.com/roach88/querybuilder/internal/querytree"
)

const (
	person       = "http://schema.org/Person"
	organization = "http://schema.org/Organization"
	sdo          = "http://schema.org/"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingCatalogue records the ids the store asks to prefetch.
type recordingCatalogue struct {
	*catalog.Catalogue

	mu        sync.Mutex
	requested [][]string
}

func (c *recordingCatalogue) RequestTypes(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requested = append(c.requested, append([]string(nil), ids...))
}

func (c *recordingCatalogue) last() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requested) == 0 {
		return nil
	}
	return c.requested[len(c.requested)-1]
}

func (c *recordingCatalogue) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requested)
}

func testCatalogue() *recordingCatalogue {
	c := catalog.New()
	c.Put(
		catalog.Type{ID: person, Label: "Person", Properties: []catalog.Property{
			{Attribute: "@id", Label: "id"},
			{Attribute: sdo + "name", Label: "Name"},
			{Attribute: sdo + "email", Label: "Email"},
			{Attribute: sdo + "worksAt", Label: "Works at", CanBe: []string{organization}},
		}},
		catalog.Type{ID: organization, Label: "Organization", Properties: []catalog.Property{
			{Attribute: "@id", Label: "id"},
			{Attribute: sdo + "name", Label: "Legal name"},
			{Attribute: sdo + "address", Label: "Address"},
		}},
	)
	return &recordingCatalogue{Catalogue: c}
}

func schemaOf(t *testing.T, types querytree.TypeLookup, typeID, attribute string) querytree.Schema {
	t.Helper()
	typ, ok := types.Type(typeID)
	require.True(t, ok, "type %s", typeID)
	for _, p := range typ.Properties {
		if p.Attribute == attribute {
			return querytree.SchemaFromProperty(p)
		}
	}
	t.Fatalf("no property %s on %s", attribute, typeID)
	return querytree.Schema{}
}

// statusError is a transport error carrying an HTTP status.
type statusError struct {
	code int
}

func (e *statusError) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e *statusError) StatusCode() int { return e.code }

// gate holds one named transport call until released.
type gate struct {
	op      string
	started chan struct{}
	release chan struct{}
}

func newGate(op string) *gate {
	return &gate{op: op, started: make(chan struct{}, 8), release: make(chan struct{})}
}

// fakeTransport keeps saved documents in memory.
type fakeTransport struct {
	mu      sync.Mutex
	docs    map[string]map[string]any
	lists   map[string][]map[string]any
	calls   map[string]int
	errs    map[string]error
	results []ExecuteRequest
	data    any
	gate    *gate
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		docs:  make(map[string]map[string]any),
		lists: make(map[string][]map[string]any),
		calls: make(map[string]int),
		errs:  make(map[string]error),
	}
}

// enter counts a call and waits at the gate if it targets op.
func (f *fakeTransport) enter(op string) error {
	f.mu.Lock()
	f.calls[op]++
	g := f.gate
	err := f.errs[op]
	f.mu.Unlock()
	if g != nil && g.op == op {
		g.started <- struct{}{}
		<-g.release
	}
	return err
}

func (f *fakeTransport) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeTransport) fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[op] = err
}

func (f *fakeTransport) hold(op string) *gate {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = newGate(op)
	return f.gate
}

func (f *fakeTransport) PerformQuery(ctx context.Context, req ExecuteRequest) (*QueryResult, error) {
	if err := f.enter("perform"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, req)
	return &QueryResult{Data: f.data}, nil
}

func (f *fakeTransport) SaveQuery(ctx context.Context, id string, q *queryspec.Query, space string) error {
	if err := f.enter("save"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := q.ToMap()
	doc["@id"] = id
	doc[queryspec.KeySpace] = space
	f.docs[id] = doc
	return nil
}

func (f *fakeTransport) DeleteQuery(ctx context.Context, id string) error {
	if err := f.enter("delete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	return nil
}

func (f *fakeTransport) ListQueries(ctx context.Context, typeID string) ([]map[string]any, error) {
	if err := f.enter("list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists[typeID], nil
}

func (f *fakeTransport) GetQuery(ctx context.Context, id string) (map[string]any, error) {
	if err := f.enter("get"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, &statusError{code: 404}
	}
	return queryspec.CloneMap(doc), nil
}

var errBoom = errors.New("boom")

func testSpaces() *auth.Static {
	all := auth.Permissions{CanCreate: true, CanRead: true, CanWrite: true, CanDelete: true}
	return auth.NewStatic(
		&auth.User{ID: "user-1", DisplayName: "Ada Lovelace", Picture: "ada.png"},
		auth.Space{Name: "myspace", IsPrivate: true, Permissions: all},
		auth.Space{Name: "lab", Permissions: all},
		auth.Space{Name: "team", Permissions: auth.Permissions{CanRead: true, CanWrite: true}},
	)
}

type fixture struct {
	store     *Store
	transport *fakeTransport
	catalogue *recordingCatalogue
}

func newFixture(t *testing.T, ids ...string) *fixture {
	t.Helper()
	f := &fixture{transport: newFakeTransport(), catalogue: testCatalogue()}
	opts := []Option{WithLogger(discardLogger()), WithSpaces(testSpaces())}
	if len(ids) > 0 {
		opts = append(opts, WithIDGenerator(NewFixedGenerator(ids...)))
	}
	f.store = New(f.catalogue, f.transport, opts...)
	return f
}

// personQuery selects Person and adds its name.
func (f *fixture) personQuery(t *testing.T) *querytree.Field {
	t.Helper()
	require.True(t, f.store.SelectRootSchema(person))
	name := f.store.AddField(schemaOf(t, f.catalogue, person, sdo+"name"), nil, false)
	require.NotNil(t, name)
	return name
}

// savedDoc returns a stored query document of typeID.
func savedDoc(id, typeID, label, space string) map[string]any {
	doc := map[string]any{
		"@id":      id,
		"@context": queryspec.DefaultContext(),
		"meta":     map[string]any{"type": typeID},
		"structure": map[string]any{
			"propertyName": "query:name",
			"path":         sdo + "name",
		},
		queryspec.KeySpace: space,
	}
	if label != "" {
		doc["meta"].(map[string]any)["name"] = label
	}
	return doc
}
