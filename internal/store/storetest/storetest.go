// Package storetest checks a notes.Store implementation against the
// contract the note service relies on.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/notes/internal/domain"
	"github.com/pbaille/notes/internal/notes"
)

// Factory returns an empty store for a single subtest
type Factory func(t *testing.T) notes.Store

var base = time.Date(2024, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

// Run runs the contract suite, building a fresh store per subtest
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAndFindByID", func(t *testing.T) { testInsertAndFindByID(t, newStore(t)) })
	t.Run("FindByIDMissing", func(t *testing.T) { testFindByIDMissing(t, newStore(t)) })
	t.Run("FindAllOrder", func(t *testing.T) { testFindAllOrder(t, newStore(t)) })
	t.Run("FindAllEmpty", func(t *testing.T) { testFindAllEmpty(t, newStore(t)) })
	t.Run("FindAndUpdate", func(t *testing.T) { testFindAndUpdate(t, newStore(t)) })
	t.Run("FindAndUpdateMissing", func(t *testing.T) { testFindAndUpdateMissing(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("FindTitleOrTag", func(t *testing.T) { testFindTitleOrTag(t, newStore(t)) })
	t.Run("FindEmptyPredicate", func(t *testing.T) { testFindEmptyPredicate(t, newStore(t)) })
	t.Run("FindAndUpdateEarlierStamp", func(t *testing.T) { testFindAndUpdateEarlierStamp(t, newStore(t)) })
	t.Run("SameInstantOrder", func(t *testing.T) { testSameInstantOrder(t, newStore(t)) })
	t.Run("ContentNumbers", func(t *testing.T) { testContentNumbers(t, newStore(t)) })
}

// Note builds a note whose timestamps are offset from a fixed base time
func Note(id, title string, updated time.Duration, tags ...string) domain.Note {
	return domain.Note{
		ID:    id,
		Title: title,
		Content: map[string]any{
			"type": "doc",
			"content": []any{
				map[string]any{"type": "paragraph", "attrs": map[string]any{"level": 1.0}},
			},
		},
		Tags:      append([]string{}, tags...),
		CreatedAt: base,
		UpdatedAt: base.Add(updated),
	}
}

// AssertNote compares two notes field by field. Content is compared through
// its JSON encoding since stores may hand back their own map types.
func AssertNote(t *testing.T, want, got domain.Note) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.WithDefaults().Tags, got.Tags)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at: want %s, got %s", want.CreatedAt, got.CreatedAt)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updated_at: want %s, got %s", want.UpdatedAt, got.UpdatedAt)

	wantContent, err := json.Marshal(want.WithDefaults().Content)
	require.NoError(t, err)
	gotContent, err := json.Marshal(got.Content)
	require.NoError(t, err)
	assert.JSONEq(t, string(wantContent), string(gotContent))
}

func ids(notes []domain.Note) []string {
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.ID)
	}
	return out
}

func testInsertAndFindByID(t *testing.T, s notes.Store) {
	ctx := context.Background()
	n := Note("n1", "Shopping", 0, "home")

	require.NoError(t, s.Insert(ctx, n))

	got, err := s.FindByID(ctx, "n1")
	require.NoError(t, err)
	AssertNote(t, n, *got)
}

func testFindByIDMissing(t *testing.T, s notes.Store) {
	_, err := s.FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, errors.NotFound), "want NotFound, got %v", err)
}

func testFindAllOrder(t *testing.T, s notes.Store) {
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, Note("a", "A", time.Second)))
	require.NoError(t, s.Insert(ctx, Note("c", "C", 3*time.Second)))
	require.NoError(t, s.Insert(ctx, Note("b", "B", 2*time.Second)))

	all, err := s.FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids(all))
}

func testFindAllEmpty(t *testing.T, s notes.Store) {
	all, err := s.FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testFindAndUpdate(t *testing.T, s notes.Store) {
	ctx := context.Background()
	n := Note("n1", "Shopping", 0, "a", "b")
	require.NoError(t, s.Insert(ctx, n))

	p := domain.Patch{
		Title:     "Shopping List",
		Content:   map[string]any{"type": "doc"},
		UpdatedAt: base.Add(time.Minute),
	}
	got, err := s.FindAndUpdate(ctx, "n1", p)
	require.NoError(t, err)

	want := p.Apply(n)
	AssertNote(t, want, *got)
	assert.Equal(t, []string{}, got.Tags)

	stored, err := s.FindByID(ctx, "n1")
	require.NoError(t, err)
	AssertNote(t, want, *stored)
}

func testFindAndUpdateMissing(t *testing.T, s notes.Store) {
	_, err := s.FindAndUpdate(context.Background(), "missing", domain.Patch{Title: "x", UpdatedAt: base})
	assert.True(t, errors.Is(err, errors.NotFound), "want NotFound, got %v", err)
}

func testDelete(t *testing.T, s notes.Store) {
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, Note("n1", "Shopping", 0)))

	removed, err := s.Delete(ctx, "n1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	removed, err = s.Delete(ctx, "n1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, removed)

	_, err = s.FindByID(ctx, "n1")
	assert.True(t, errors.Is(err, errors.NotFound), "want NotFound, got %v", err)
}

func testFindTitleOrTag(t *testing.T, s notes.Store) {
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, Note("recipe", "Recipe Box", time.Second, "cooking")))
	require.NoError(t, s.Insert(ctx, Note("taxes", "Taxes 2024", 2*time.Second, "finance")))
	require.NoError(t, s.Insert(ctx, Note("dinner", "Dinner party", 3*time.Second, "Cookbook", "friends")))
	require.NoError(t, s.Insert(ctx, Note("regex", "a.b (draft)", 4*time.Second)))

	cases := []struct {
		q    string
		want []string
	}{
		{"RECIPE", []string{"recipe"}},
		{"cook", []string{"dinner", "recipe"}},
		{"box", []string{"recipe"}},
		{"FINANCE", []string{"taxes"}},
		{"nothing", []string{}},
		{"a.b", []string{"regex"}},
		{"(draft", []string{"regex"}},
		{"%", []string{}},
	}
	for _, tc := range cases {
		got, err := s.Find(ctx, domain.TitleOrTag(tc.q))
		require.NoError(t, err, "q=%q", tc.q)
		assert.Equal(t, tc.want, ids(got), "q=%q", tc.q)
	}
}

func testFindEmptyPredicate(t *testing.T, s notes.Store) {
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, Note("n1", "Shopping", 0)))

	got, err := s.Find(ctx, domain.Predicate{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testFindAndUpdateEarlierStamp(t *testing.T, s notes.Store) {
	ctx := context.Background()
	n := Note("n1", "Shopping", time.Minute)
	require.NoError(t, s.Insert(ctx, n))

	// a clock that stepped back must not move the note back in time
	got, err := s.FindAndUpdate(ctx, "n1", domain.Patch{Title: "Shopping List", UpdatedAt: base.Add(-time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "Shopping List", got.Title)
	assert.True(t, got.UpdatedAt.Equal(n.UpdatedAt), "updated_at: want %s, got %s", n.UpdatedAt, got.UpdatedAt)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))

	stored, err := s.FindByID(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, stored.UpdatedAt.Equal(n.UpdatedAt), "updated_at: want %s, got %s", n.UpdatedAt, stored.UpdatedAt)
}

func testSameInstantOrder(t *testing.T, s notes.Store) {
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Insert(ctx, Note(id, "Note "+id, 0, "same")))
	}

	all, err := s.FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids(all), "latest write first")

	_, err = s.FindAndUpdate(ctx, "a", domain.Patch{Title: "Note a", Tags: []string{"same"}, UpdatedAt: base})
	require.NoError(t, err)

	all, err = s.FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, ids(all))

	found, err := s.Find(ctx, domain.TitleOrTag("same"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, ids(found))
}

func testContentNumbers(t *testing.T, s notes.Store) {
	ctx := context.Background()
	content, err := domain.DecodeContent([]byte(`{"type":"doc","attrs":{"id":9007199254740993,"ratio":0.25}}`))
	require.NoError(t, err)
	n := Note("n1", "Numbers", 0)
	n.Content = content
	require.NoError(t, s.Insert(ctx, n))

	got, err := s.FindByID(ctx, "n1")
	require.NoError(t, err)
	encoded, err := json.Marshal(got.Content)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"id":9007199254740993`)
	assert.Contains(t, string(encoded), `"ratio":0.25`)
}
