package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	person       = "http://schema.org/Person"
	organization = "http://schema.org/Organization"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadFixture(t *testing.T) *Catalogue {
	t.Helper()
	types, err := LoadFile("testdata/types.yaml")
	require.NoError(t, err)
	c := New(WithLogger(quietLogger()))
	c.Put(types...)
	return c
}

func TestLoadFile(t *testing.T) {
	types, err := LoadFile("testdata/types.yaml")
	require.NoError(t, err)
	require.Len(t, types, 2)

	p := types[0]
	assert.Equal(t, person, p.ID)
	require.Len(t, p.Properties, 4)
	assert.True(t, p.Properties[2].IsLink())
	assert.True(t, p.Properties[3].Reverse)
	assert.False(t, p.Properties[1].IsLink())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown key", "types:\n  - id: a\n    colour: red\n", "failed to parse"},
		{"missing id", "types:\n  - label: A\n", "id is required"},
		{"duplicate id", "types:\n  - id: a\n  - id: a\n", "duplicate id"},
		{"missing attribute", "types:\n  - id: a\n    properties:\n      - label: x\n", "attribute is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_JSONAndEmpty(t *testing.T) {
	types, err := Load(strings.NewReader(`{"types": [{"id": "http://x/T", "properties": [{"attribute": "http://x/p"}]}]}`))
	require.NoError(t, err)
	require.Len(t, types, 1)

	types, err = Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, types)
}

func TestSimpleAttributeName(t *testing.T) {
	assert.Equal(t, "name", SimpleAttributeName("http://schema.org/name"))
	assert.Equal(t, "id", SimpleAttributeName("@id"))
	assert.Equal(t, "plain", SimpleAttributeName("plain"))
}

func TestPut_Normalizes(t *testing.T) {
	c := New()
	c.Put(Type{ID: "http://x/Thing", Properties: []Property{{Attribute: "http://x/size"}}})

	got, ok := c.Type("http://x/Thing")
	require.True(t, ok)
	assert.Equal(t, "Thing", got.Label)
	assert.Equal(t, "size", got.Properties[0].SimpleAttributeName)
	assert.Equal(t, "size", got.Properties[0].Label)
}

func TestPut_DoesNotAliasInput(t *testing.T) {
	in := Type{ID: "T", Properties: []Property{{Attribute: "a", CanBe: []string{"X"}}}}
	c := New()
	c.Put(in)
	in.Properties[0].CanBe[0] = "changed"

	got, _ := c.Type("T")
	assert.Equal(t, []string{"X"}, got.Properties[0].CanBe)
}

func TestMergeWith(t *testing.T) {
	a := &Type{ID: "T", Properties: []Property{
		{Attribute: "p", CanBe: []string{"B"}},
		{Attribute: "q"},
	}}
	b := &Type{ID: "T", Label: "Thing", Properties: []Property{
		{Attribute: "p", CanBe: []string{"A", "B"}},
		{Attribute: "p", Reverse: true},
		{Attribute: "r"},
	}}
	a.MergeWith(b)

	assert.Equal(t, "Thing", a.Label)
	require.Len(t, a.Properties, 4)
	assert.Equal(t, []string{"A", "B"}, a.Properties[0].CanBe)
	assert.Equal(t, "q", a.Properties[1].Attribute)
	assert.True(t, a.Properties[2].Reverse)
	assert.Equal(t, "r", a.Properties[3].Attribute)
}

func TestCatalogue_Merge(t *testing.T) {
	c := New()
	c.Put(Type{ID: "T", Properties: []Property{{Attribute: "p"}}})
	before, _ := c.Type("T")

	c.Merge(Type{ID: "T", Properties: []Property{{Attribute: "q"}}}, Type{ID: "U"})

	after, _ := c.Type("T")
	assert.Len(t, after.Properties, 2)
	assert.Len(t, before.Properties, 1, "previously returned descriptors are not mutated")
	_, ok := c.Type("U")
	assert.True(t, ok)
}

func TestTypesAndMissing(t *testing.T) {
	c := loadFixture(t)

	types := c.Types()
	require.Len(t, types, 2)
	assert.Equal(t, "Organization", types[0].Label)
	assert.Equal(t, "Person", types[1].Label)

	assert.Equal(t, []string{"http://x/A", "http://x/B"},
		c.Missing([]string{"http://x/B", person, "", "http://x/A", "http://x/B"}))
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls [][]string
	err   error
	block bool
}

func (f *fakeFetcher) FetchTypes(ctx context.Context, ids []string) ([]Type, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ids)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]Type, len(ids))
	for i, id := range ids {
		out[i] = Type{ID: id}
	}
	return out, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestPrefetch_OnlyMissing(t *testing.T) {
	fetcher := &fakeFetcher{}
	c := loadFixture(t)
	c.fetcher = fetcher

	require.NoError(t, c.Prefetch(context.Background(), []string{person, "http://x/New"}))
	require.Equal(t, 1, fetcher.callCount())
	assert.Equal(t, []string{"http://x/New"}, fetcher.calls[0])

	_, ok := c.Type("http://x/New")
	assert.True(t, ok)

	require.NoError(t, c.Prefetch(context.Background(), []string{"http://x/New"}))
	assert.Equal(t, 1, fetcher.callCount(), "nothing left to fetch")
}

func TestPrefetch_Error(t *testing.T) {
	boom := errors.New("boom")
	c := New(WithFetcher(&fakeFetcher{err: boom}), WithLogger(quietLogger()))

	err := c.Prefetch(context.Background(), []string{"T"})
	require.ErrorIs(t, err, boom)
	_, ok := c.Type("T")
	assert.False(t, ok)
}

func TestRequestTypes_Background(t *testing.T) {
	fetcher := &fakeFetcher{}
	c := New(WithFetcher(fetcher), WithLogger(quietLogger()))
	defer c.Close()

	c.RequestTypes([]string{"A", "B"})
	c.RequestTypes(nil)
	c.Wait()

	_, okA := c.Type("A")
	_, okB := c.Type("B")
	assert.True(t, okA)
	assert.True(t, okB)
}

func TestClose_CancelsBackgroundFetch(t *testing.T) {
	fetcher := &fakeFetcher{block: true}
	c := New(WithFetcher(fetcher), WithLogger(quietLogger()))

	c.RequestTypes([]string{"A"})
	c.Close()

	_, ok := c.Type("A")
	assert.False(t, ok)
}

func TestRequestTypes_NoFetcher(t *testing.T) {
	c := New()
	c.RequestTypes([]string{"A"})
	c.Wait()
	assert.Empty(t, c.Types())
}
