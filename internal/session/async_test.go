package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querybuilder/internal/queryspec"
)

func TestExecuteQuery(t *testing.T) {
	f := newFixture(t)
	name := f.personQuery(t)
	require.True(t, f.store.SetFieldOption(name, "filter", map[string]any{"op": "EQUALS", "parameter": "who"}))
	f.store.SetResultQueryParameter("who", "Ada")
	f.store.SetResultQueryParameter("unused", "x")
	f.store.SetResultInstanceID("  abc ")
	f.store.SetResultSize(5)
	f.store.SetResultStart(10)
	f.store.SetStage("IN_PROGRESS")
	f.store.SetResultRestrictToSpaces([]string{"lab"})
	f.transport.data = []any{map[string]any{"name": "Ada"}}

	f.store.ExecuteQuery(t.Context())

	require.Len(t, f.transport.results, 1)
	req := f.transport.results[0]
	assert.Equal(t, "IN_PROGRESS", req.Stage)
	assert.Equal(t, 10, req.From)
	assert.Equal(t, 5, req.Size)
	assert.Equal(t, "abc", req.InstanceID)
	assert.Equal(t, []string{"lab"}, req.RestrictToSpaces)
	assert.Equal(t, map[string]string{"who": "Ada"}, req.Params)
	assert.Equal(t, person, req.Query.Meta.Type)

	st := f.store.State()
	assert.False(t, st.IsRunning)
	assert.Empty(t, st.RunError)
	assert.Equal(t, []any{map[string]any{"name": "Ada"}}, st.Result)
}

func TestExecuteQuery_EmptyQuery(t *testing.T) {
	f := newFixture(t)
	f.store.ExecuteQuery(t.Context())
	require.True(t, f.store.SelectRootSchema(person))
	f.store.ExecuteQuery(t.Context())
	assert.Zero(t, f.transport.count("perform"))
}

func TestExecuteQuery_Error(t *testing.T) {
	f := newFixture(t)
	f.personQuery(t)
	f.transport.fail("perform", errBoom)

	f.store.ExecuteQuery(t.Context())
	st := f.store.State()
	assert.Equal(t, "Error while executing query (boom)", st.RunError)
	assert.False(t, st.IsRunning)
	assert.Nil(t, st.Result)
}

func TestExecuteQuery_StaleResultDiscarded(t *testing.T) {
	f := newFixture(t)
	f.personQuery(t)
	f.transport.data = "stale"
	g := f.transport.hold("perform")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.store.ExecuteQuery(t.Context())
	}()
	<-g.started
	assert.True(t, f.store.State().IsRunning)
	f.store.ExecuteQuery(t.Context())

	require.True(t, f.store.SelectRootSchema(organization))
	close(g.release)
	wg.Wait()

	st := f.store.State()
	assert.Nil(t, st.Result)
	assert.False(t, st.IsRunning)
	assert.Equal(t, organization, st.RootType)
	assert.Equal(t, 1, f.transport.count("perform"))
}

func TestSaveQuery_New(t *testing.T) {
	f := newFixture(t, "q-1")
	f.personQuery(t)
	f.store.SetLabel("People")
	require.True(t, f.store.HasChanged())

	f.store.SaveQuery(t.Context())

	st := f.store.State()
	assert.False(t, st.IsSaving)
	assert.Empty(t, st.SaveError)
	assert.Equal(t, "q-1", st.QueryID)
	require.Contains(t, f.transport.docs, "q-1")
	assert.Equal(t, "myspace", f.transport.docs["q-1"][queryspec.KeySpace])

	src, ok := f.store.Source()
	require.True(t, ok)
	assert.Equal(t, "q-1", src.ID)
	assert.Equal(t, "People", src.Label)
	assert.Equal(t, Author{ID: "user-1", Name: "Ada Lovelace", Picture: "ada.png"}, src.User)
	assert.Len(t, f.store.Queries(), 1)

	assert.True(t, f.store.IsQuerySaved())
	assert.False(t, f.store.HasQueryChanged())
	assert.False(t, f.store.HasChanged())
}

func TestSaveQuery_Update(t *testing.T) {
	f := newFixture(t, "q-1")
	f.personQuery(t)
	f.store.SaveQuery(t.Context())

	f.store.AddField(schemaOf(t, f.catalogue, person, sdo+"email"), nil, false)
	f.store.SetLabel("Renamed")
	assert.True(t, f.store.HasChanged())

	f.store.SaveQuery(t.Context())
	assert.Equal(t, 2, f.transport.count("save"))
	assert.Len(t, f.store.Queries(), 1)
	src, _ := f.store.Source()
	assert.Equal(t, "Renamed", src.Label)
	assert.False(t, f.store.HasChanged())
}

func TestSaveQuery_SaveAs(t *testing.T) {
	f := newFixture(t, "q-1", "q-2")
	f.personQuery(t)
	f.store.SetLabel("Report")
	f.store.SaveQuery(t.Context())

	require.True(t, f.store.SetSaveAsMode(true))
	assert.True(t, f.store.HasChanged(), "copy has a new id")
	f.store.SaveQuery(t.Context())

	st := f.store.State()
	assert.False(t, st.SaveAsMode)
	assert.Equal(t, "q-2", st.QueryID)
	assert.Equal(t, "Report-Copy", st.Label)
	assert.Len(t, f.store.Queries(), 2)
	assert.Contains(t, f.transport.docs, "q-2")
}

func TestSaveQuery_Error(t *testing.T) {
	f := newFixture(t, "q-1")
	f.personQuery(t)
	f.transport.fail("save", errBoom)

	f.store.SaveQuery(t.Context())
	st := f.store.State()
	assert.Equal(t, `Error while saving query "q-1" (boom)`, st.SaveError)
	assert.False(t, st.IsSaving)
	assert.False(t, f.store.IsQuerySaved())

	f.store.CancelSaveQuery()
	assert.Empty(t, f.store.State().SaveError)
}

func TestSaveQuery_EmptyQuery(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.store.SelectRootSchema(person))
	f.store.SaveQuery(t.Context())
	assert.Zero(t, f.transport.count("save"))
}

func TestSaveQuery_EditsRejectedWhileSaving(t *testing.T) {
	f := newFixture(t, "q-1")
	f.personQuery(t)
	f.store.SetLabel("Before")
	g := f.transport.hold("save")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.store.SaveQuery(t.Context())
	}()
	<-g.started

	assert.True(t, f.store.State().IsSaving)
	assert.Nil(t, f.store.AddField(schemaOf(t, f.catalogue, person, sdo+"email"), nil, false))
	assert.False(t, f.store.RemoveField(f.store.Root()))
	assert.False(t, f.store.SelectRootSchema(organization))
	assert.False(t, f.store.SetSaveAsMode(true))
	f.store.SetLabel("During")
	f.store.SaveQuery(t.Context())
	f.store.CancelSaveQuery()

	close(g.release)
	wg.Wait()

	assert.Equal(t, 1, f.transport.count("save"))
	assert.Equal(t, "Before", f.store.State().Label)
	assert.Len(t, f.store.Root().Structure, 1)
}

func TestDeleteQuery_ConcurrentCallsIssueOneRequest(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.store.SelectRootSchema(person))
	f.transport.lists[person] = []map[string]any{savedDoc("q-1", person, "One", "myspace")}
	f.store.FetchQueries(t.Context())
	require.Len(t, f.store.Queries(), 1)
	g := f.transport.hold("delete")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.store.DeleteQuery(t.Context(), "q-1")
	}()
	<-g.started
	assert.True(t, f.store.Queries()[0].IsDeleting)

	f.store.DeleteQuery(t.Context(), "q-1")
	assert.Equal(t, 1, f.transport.count("delete"))

	close(g.release)
	wg.Wait()
	assert.Equal(t, 1, f.transport.count("delete"))
	assert.Empty(t, f.store.Queries())
}

func TestDeleteQuery_Error(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.store.SelectRootSchema(person))
	f.transport.lists[person] = []map[string]any{savedDoc("q-1", person, "One", "myspace")}
	f.store.FetchQueries(t.Context())
	f.transport.fail("delete", errBoom)

	f.store.DeleteQuery(t.Context(), "q-1")
	qs := f.store.Queries()
	require.Len(t, qs, 1)
	assert.False(t, qs[0].IsDeleting)
	assert.Equal(t, `Error while deleting query "q-1" (boom)`, qs[0].DeleteError)

	f.store.CancelDeleteQuery("q-1")
	assert.Empty(t, f.store.Queries()[0].DeleteError)

	f.store.DeleteQuery(t.Context(), "unknown")
	assert.Equal(t, 1, f.transport.count("delete"))
}

func TestDeleteCurrentQuery(t *testing.T) {
	f := newFixture(t, "q-1", "fresh")
	f.personQuery(t)
	f.store.SetLabel("Doomed")
	f.store.SaveQuery(t.Context())
	require.True(t, f.store.IsQuerySaved())

	f.store.DeleteCurrentQuery(t.Context())

	st := f.store.State()
	assert.Equal(t, "fresh", st.QueryID)
	assert.Equal(t, person, st.RootType)
	assert.Empty(t, st.Label)
	assert.True(t, f.store.IsQueryEmpty())
	assert.False(t, f.store.IsQuerySaved())
	assert.Empty(t, f.store.Queries())
	assert.NotContains(t, f.transport.docs, "q-1")
}

func TestFetchQueries(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.store.SelectRootSchema(person))
	broken := map[string]any{"meta": map[string]any{"type": person}}
	f.transport.lists[person] = []map[string]any{
		savedDoc("q-1", person, "One", "myspace"),
		broken,
		savedDoc("q-2", person, "Two", "lab"),
	}

	f.store.FetchQueries(t.Context())

	st := f.store.State()
	assert.False(t, st.IsFetchingQueries)
	assert.Equal(t, "Error while trying to expand/compact JSON-LD (document has no @id)", st.FetchQueriesError)
	qs := f.store.Queries()
	require.Len(t, qs, 2)
	assert.Equal(t, "q-1", qs[0].ID)
	assert.Equal(t, "One", qs[0].Label)
	assert.Equal(t, "lab", qs[1].Space)
}

func TestFetchQueries_Error(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.store.SelectRootSchema(person))
	f.transport.fail("list", errBoom)

	f.store.FetchQueries(t.Context())
	assert.Equal(t, `Error while fetching saved queries for "http://schema.org/Person" (boom)`, f.store.State().FetchQueriesError)

	f.store = New(f.catalogue, f.transport, WithLogger(discardLogger()))
	f.store.FetchQueries(t.Context())
	assert.Equal(t, 1, f.transport.count("list"), "no root schema")
}

func TestFetchQueries_StaleListDiscarded(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.store.SelectRootSchema(person))
	f.transport.lists[person] = []map[string]any{savedDoc("q-1", person, "One", "myspace")}
	g := f.transport.hold("list")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.store.FetchQueries(t.Context())
	}()
	<-g.started
	f.store.FetchQueries(t.Context())
	require.True(t, f.store.SelectRootSchema(organization))
	close(g.release)
	wg.Wait()

	assert.Empty(t, f.store.Queries())
	assert.False(t, f.store.State().IsFetchingQueries)
	assert.Equal(t, 1, f.transport.count("list"))
}

func TestFetchQueries_KeepsSourceCurrent(t *testing.T) {
	f := newFixture(t, "q-1")
	f.personQuery(t)
	f.store.SetLabel("Mine")
	f.store.SaveQuery(t.Context())
	f.transport.lists[person] = []map[string]any{f.transport.docs["q-1"]}

	f.store.FetchQueries(t.Context())
	src, ok := f.store.Source()
	require.True(t, ok)
	assert.Equal(t, "Mine", src.Label)

	f.transport.lists[person] = nil
	f.store.FetchQueries(t.Context())
	assert.False(t, f.store.IsQuerySaved())
}

func TestFetchQueryByID_Statuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"forbidden", &statusError{code: 403}, `You do not have permission to access the query with id "q-9"`},
		{"unauthorized", &statusError{code: 401}, `You do not have permission to access the query with id "q-9"`},
		{"not found", &statusError{code: 404}, ""},
		{"other", errBoom, `Error while fetching query with id "q-9" (boom)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.transport.fail("get", tt.err)

			_, ok := f.store.FetchQueryByID(t.Context(), "q-9")
			assert.False(t, ok)
			st := f.store.State()
			assert.Equal(t, tt.want, st.FetchQueriesError)
			assert.False(t, st.IsFetchingQuery)
		})
	}
}

func TestFetchQueryByID(t *testing.T) {
	f := newFixture(t)
	f.transport.docs["q-1"] = savedDoc("q-1", person, "One", "myspace")

	q, ok := f.store.FetchQueryByID(t.Context(), "q-1")
	require.True(t, ok)
	assert.Equal(t, "One", q.Label)
	_, ok = f.store.FetchQueryByID(t.Context(), "q-1")
	require.True(t, ok)
	assert.Len(t, f.store.Queries(), 1, "refetch replaces")
}

func TestSelectQueryByID(t *testing.T) {
	f := newFixture(t)
	f.transport.docs["q-1"] = savedDoc("q-1", person, "One", "lab")

	require.True(t, f.store.SelectQueryByID(t.Context(), "q-1"))
	st := f.store.State()
	assert.Equal(t, "q-1", st.QueryID)
	assert.Equal(t, "One", st.Label)
	assert.Equal(t, person, st.RootType)
	assert.Equal(t, "lab", st.Space.Name)
	assert.False(t, st.SavedQueryHasInconsistencies)
	assert.True(t, f.store.IsQuerySaved())
	assert.False(t, f.store.HasChanged())
	require.Len(t, f.store.Root().Structure, 1)

	require.True(t, f.store.SelectQueryByID(t.Context(), "q-1"))
	assert.Equal(t, 1, f.transport.count("get"), "second select uses the list")
}

func TestSelectQueryByID_Inconsistent(t *testing.T) {
	f := newFixture(t)
	doc := savedDoc("q-1", person, "One", "myspace")
	doc["structure"] = map[string]any{"path": sdo + "name"}
	f.transport.docs["q-1"] = doc

	require.True(t, f.store.SelectQueryByID(t.Context(), "q-1"))
	assert.True(t, f.store.State().SavedQueryHasInconsistencies)
	assert.True(t, f.store.HasChanged())

	diff, err := f.store.JSONQueryDiff()
	require.NoError(t, err)
	assert.True(t, HasDifferences(diff))
	assert.Contains(t, FormatDiff(diff), `+    "propertyName": "query:name"`)
}

func TestSelectQueryByID_UnknownType(t *testing.T) {
	f := newFixture(t)
	f.transport.docs["q-1"] = savedDoc("q-1", "http://example.org/Unknown", "One", "myspace")

	assert.False(t, f.store.SelectQueryByID(t.Context(), "q-1"))
	assert.Nil(t, f.store.Root())
	assert.Len(t, f.store.Queries(), 1)
}

func TestSelectQueryByID_NotFound(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.store.SelectQueryByID(t.Context(), "missing"))
	assert.Nil(t, f.store.Root())
	assert.Empty(t, f.store.State().QueryID)

	f.personQuery(t)
	assert.False(t, f.store.SelectQueryByID(t.Context(), "missing"))
	assert.Equal(t, "missing", f.store.State().QueryID)
	assert.False(t, f.store.IsQueryEmpty())
}

func TestCancelChanges_Saved(t *testing.T) {
	f := newFixture(t)
	f.transport.docs["q-1"] = savedDoc("q-1", person, "One", "myspace")
	require.True(t, f.store.SelectQueryByID(t.Context(), "q-1"))

	f.store.SetLabel("Edited")
	f.store.AddField(schemaOf(t, f.catalogue, person, sdo+"email"), nil, true)
	require.True(t, f.store.HasChanged())

	require.True(t, f.store.CancelChanges())
	assert.Equal(t, "One", f.store.State().Label)
	assert.Len(t, f.store.Root().Structure, 1)
	assert.False(t, f.store.HasChanged())
}
