package session

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/querybuilder/internal/auth"
	"github.com/roach88/querybuilder/internal/queryspec"
)

// Author is the user who saved a query.
type Author struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// SavedQuery is a query stored in the backend.
type SavedQuery struct {
	ID          string
	Label       string
	Description string
	Space       string
	User        Author
	// Query holds the context, meta, structure and root properties of the
	// saved document.
	Query *queryspec.Query

	IsDeleting  bool
	DeleteError string
}

func (q *SavedQuery) clone() SavedQuery {
	out := *q
	if q.Query != nil {
		out.Query = q.Query.Clone()
	}
	return out
}

// document returns the saved document without its identity and ownership
// keys, in the shape JSONQuery produces for the same query.
func (q *SavedQuery) document() *queryspec.Query {
	if q.Query == nil {
		return &queryspec.Query{}
	}
	src := q.Query.Clone()
	return &queryspec.Query{
		Context:    src.Context,
		Meta:       src.Meta,
		Structure:  src.Structure,
		Merge:      src.Merge,
		HasMerge:   src.HasMerge,
		Properties: src.Properties,
	}
}

// authorFrom reads the user node of a saved document. A node without an
// id yields an empty Author.
func authorFrom(v any) Author {
	m, ok := v.(map[string]any)
	if !ok {
		return Author{}
	}
	id, _ := m["@id"].(string)
	if id == "" {
		return Author{}
	}
	name, _ := m["http://schema.org/name"].(string)
	picture, _ := m["https://schema.hbp.eu/users/picture"].(string)
	return Author{ID: id, Name: name, Picture: picture}
}

// savedQueryFrom builds a SavedQuery from a normalized document.
func savedQueryFrom(q *queryspec.Query) *SavedQuery {
	if q.Context == nil {
		q.Context = queryspec.DefaultContext()
	}
	return &SavedQuery{
		ID:          q.ID,
		Label:       q.Meta.Name,
		Description: q.Meta.Description,
		Space:       q.Space,
		User:        authorFrom(q.Author),
		Query:       q,
	}
}

// QueryGroup lists the saved queries of one space.
type QueryGroup struct {
	Name        string
	Label       string
	ShowUser    bool
	IsPrivate   bool
	Permissions auth.Permissions
	Queries     []SavedQuery
}

// groupQueries groups specs by space. Queries in spaces the provider does
// not know are left out. The private space comes first, the others follow
// by name; queries sort by label, labelled before unlabelled, then by id.
func groupQueries(specs []*SavedQuery, spaces SpaceProvider, filter string) []QueryGroup {
	filter = strings.ToLower(filter)
	byName := make(map[string]*QueryGroup)
	var order []string
	for _, spec := range specs {
		if spec.Space == "" || !matchesFilter(spec, filter) {
			continue
		}
		space := spaces.Space(spec.Space)
		if space == nil {
			continue
		}
		g, ok := byName[spec.Space]
		if !ok {
			label := "Shared queries in space " + space.Name
			if space.IsPrivate {
				label = "My private queries"
			}
			g = &QueryGroup{
				Name:        space.Name,
				Label:       label,
				ShowUser:    true,
				IsPrivate:   space.IsPrivate,
				Permissions: space.Permissions,
			}
			byName[spec.Space] = g
			order = append(order, spec.Space)
		}
		g.Queries = append(g.Queries, spec.clone())
	}

	col := collate.New(language.Und)
	groups := make([]QueryGroup, 0, len(order))
	for _, name := range order {
		g := byName[name]
		sortQueries(col, g.Queries)
		groups = append(groups, *g)
	}
	sortGroups(col, groups)
	return groups
}

func matchesFilter(q *SavedQuery, filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(q.Label), filter) ||
		strings.Contains(strings.ToLower(q.Description), filter) ||
		strings.Contains(strings.ToLower(q.ID), filter)
}

func compareQueries(col *collate.Collator, a, b *SavedQuery) int {
	switch {
	case a.Label != "" && b.Label != "":
		return col.CompareString(a.Label, b.Label)
	case a.Label != "":
		return -1
	case b.Label != "":
		return 1
	}
	return col.CompareString(a.ID, b.ID)
}

func sortQueries(col *collate.Collator, qs []SavedQuery) {
	slices.SortStableFunc(qs, func(a, b SavedQuery) int {
		return compareQueries(col, &a, &b)
	})
}

func sortGroups(col *collate.Collator, gs []QueryGroup) {
	slices.SortStableFunc(gs, func(a, b QueryGroup) int {
		switch {
		case a.IsPrivate && !b.IsPrivate:
			return -1
		case b.IsPrivate && !a.IsPrivate:
			return 1
		}
		return col.CompareString(a.Name, b.Name)
	})
}
