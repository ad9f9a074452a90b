package notes_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/pbaille/notes/internal/domain"
	"github.com/pbaille/notes/internal/notes"
	"github.com/pbaille/notes/internal/store"
)

// tick is a clock that moves forward one second per reading
type tick struct {
	t time.Time
}

func (c *tick) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newService() *notes.Service {
	clock := &tick{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	return notes.NewService(store.NewMemory(), notes.WithClock(clock.now))
}

func emptyDoc() map[string]any {
	return map[string]any{"type": "doc", "content": []any{map[string]any{"type": "paragraph"}}}
}

func titles(ns []domain.Note) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Title)
	}
	return out
}

func TestCreate(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	n, err := svc.Create(ctx, domain.NoteInput{Title: "Shopping", Content: emptyDoc(), Tags: []string{"home"}})
	require.NoError(t, err)

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, n.CreatedAt, n.UpdatedAt)
	assert.Equal(t, time.UTC, n.CreatedAt.Location())
	assert.Equal(t, []string{"home"}, n.Tags)

	stored, err := svc.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, *n, *stored)
}

func TestCreateDefaults(t *testing.T) {
	svc := newService()

	n, err := svc.Create(context.Background(), domain.NoteInput{Title: "Untitled"})
	require.NoError(t, err)

	assert.Equal(t, []string{}, n.Tags)
	assert.Equal(t, map[string]any{}, n.Content)
}

func TestCreateUsesIDGenerator(t *testing.T) {
	ids := []string{"first", "second"}
	svc := notes.NewService(store.NewMemory(), notes.WithIDGenerator(func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}))
	ctx := context.Background()

	a, err := svc.Create(ctx, domain.NoteInput{Title: "a"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, domain.NoteInput{Title: "b"})
	require.NoError(t, err)

	assert.Equal(t, "first", a.ID)
	assert.Equal(t, "second", b.ID)
}

func TestCreateTruncatesToMilliseconds(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 123_456_789, time.FixedZone("CET", 3600))
	svc := notes.NewService(store.NewMemory(), notes.WithClock(func() time.Time { return at }))

	n, err := svc.Create(context.Background(), domain.NoteInput{Title: "a"})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 1, 11, 0, 0, 123_000_000, time.UTC), n.CreatedAt)
}

func TestUpdate(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	n, err := svc.Create(ctx, domain.NoteInput{Title: "Shopping", Content: emptyDoc(), Tags: []string{"a", "b"}})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, n.ID, domain.NoteInput{Title: "Shopping List", Content: map[string]any{"type": "doc"}})
	require.NoError(t, err)

	assert.Equal(t, n.ID, updated.ID)
	assert.Equal(t, n.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(n.UpdatedAt))
	assert.Equal(t, "Shopping List", updated.Title)
	assert.Equal(t, map[string]any{"type": "doc"}, updated.Content)
	assert.Equal(t, []string{}, updated.Tags, "omitted tags are cleared")
}

func TestUpdateMissing(t *testing.T) {
	svc := newService()

	_, err := svc.Update(context.Background(), "missing", domain.NoteInput{Title: "x"})
	assert.True(t, errors.Is(err, errors.NotFound), "want NotFound, got %v", err)
}

func TestDeleteTwice(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	n, err := svc.Create(ctx, domain.NoteInput{Title: "Shopping"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, n.ID))

	err = svc.Delete(ctx, n.ID)
	assert.True(t, errors.Is(err, errors.NotFound), "want NotFound, got %v", err)

	_, err = svc.Get(ctx, n.ID)
	assert.True(t, errors.Is(err, errors.NotFound), "want NotFound, got %v", err)
}

func TestSearch(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.NoteInput{Title: "Recipe Box", Tags: []string{"cooking"}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.NoteInput{Title: "Taxes", Tags: []string{"finance"}})
	require.NoError(t, err)

	for _, q := range []string{"RECIPE", "cook", "box"} {
		found, err := svc.Search(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, []string{"Recipe Box"}, titles(found), "q=%q", q)
	}

	found, err := svc.Search(ctx, "gardening")
	require.NoError(t, err)
	assert.NotNil(t, found)
	assert.Empty(t, found)

	found, err = svc.Search(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Taxes", "Recipe Box"}, titles(found))
}

func TestListOrder(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	var created []*domain.Note
	for _, title := range []string{"A", "B", "C"} {
		n, err := svc.Create(ctx, domain.NoteInput{Title: title})
		require.NoError(t, err)
		created = append(created, n)
	}
	for _, n := range created {
		_, err := svc.Update(ctx, n.ID, domain.NoteInput{Title: n.Title})
		require.NoError(t, err)
	}

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, titles(all))

	// Touching A moves it to the front.
	_, err = svc.Update(ctx, created[0].ID, domain.NoteInput{Title: "A"})
	require.NoError(t, err)

	all, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "B"}, titles(all))
}

func TestListOrderWithinOneMillisecond(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := notes.NewService(store.NewMemory(), notes.WithClock(func() time.Time { return at }))
	ctx := context.Background()

	var created []*domain.Note
	for _, title := range []string{"A", "B", "C"} {
		n, err := svc.Create(ctx, domain.NoteInput{Title: title})
		require.NoError(t, err)
		created = append(created, n)
	}
	for _, n := range created {
		_, err := svc.Update(ctx, n.ID, domain.NoteInput{Title: n.Title})
		require.NoError(t, err)
	}

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, titles(all))
}

func TestUpdateWithClockStepBack(t *testing.T) {
	readings := []time.Time{
		time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 11, 59, 59, 0, time.UTC),
	}
	clock := func() time.Time {
		at := readings[0]
		readings = readings[1:]
		return at
	}
	svc := notes.NewService(store.NewMemory(), notes.WithClock(clock))
	ctx := context.Background()

	n, err := svc.Create(ctx, domain.NoteInput{Title: "Shopping"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, n.ID, domain.NoteInput{Title: "Shopping List"})
	require.NoError(t, err)
	assert.Equal(t, "Shopping List", updated.Title)
	assert.Equal(t, n.CreatedAt, updated.CreatedAt)
	assert.Equal(t, n.UpdatedAt, updated.UpdatedAt)
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))
}

func TestTags(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	for _, tags := range [][]string{{"home", "urgent"}, {"work"}, {"home"}, nil} {
		_, err := svc.Create(ctx, domain.NoteInput{Title: "n", Tags: tags})
		require.NoError(t, err)
	}

	tags, err := svc.Tags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Tag{
		{Name: "home", Count: 2},
		{Name: "urgent", Count: 1},
		{Name: "work", Count: 1},
	}, tags)
}

func TestShoppingScenario(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.NoteInput{Title: "Shopping", Content: map[string]any{}, Tags: []string{"home"}})
	require.NoError(t, err)
	x, t0 := created.ID, created.CreatedAt
	assert.Equal(t, t0, created.UpdatedAt)

	updated, err := svc.Update(ctx, x, domain.NoteInput{
		Title:   "Shopping List",
		Content: map[string]any{},
		Tags:    []string{"home", "urgent"},
	})
	require.NoError(t, err)
	assert.Equal(t, x, updated.ID)
	assert.Equal(t, t0, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(t0))
	assert.Equal(t, []string{"home", "urgent"}, updated.Tags)

	require.NoError(t, svc.Delete(ctx, x))
	err = svc.Delete(ctx, x)
	assert.True(t, errors.Is(err, errors.NotFound), "want NotFound, got %v", err)
}

// brokenStore fails every call
type brokenStore struct{}

var errUnavailable = errors.New("store unavailable")

func (brokenStore) Insert(context.Context, domain.Note) error { return errUnavailable }

func (brokenStore) FindAll(context.Context) ([]domain.Note, error) { return nil, errUnavailable }

func (brokenStore) FindByID(context.Context, string) (*domain.Note, error) {
	return nil, errUnavailable
}

func (brokenStore) FindAndUpdate(context.Context, string, domain.Patch) (*domain.Note, error) {
	return nil, errUnavailable
}

func (brokenStore) Delete(context.Context, string) (int64, error) { return 0, errUnavailable }

func (brokenStore) Find(context.Context, domain.Predicate) ([]domain.Note, error) {
	return nil, errUnavailable
}

func TestStoreErrorsPropagate(t *testing.T) {
	svc := notes.NewService(brokenStore{})
	ctx := context.Background()

	_, err := svc.List(ctx)
	assert.ErrorIs(t, err, errUnavailable)
	_, err = svc.Create(ctx, domain.NoteInput{Title: "x"})
	assert.ErrorIs(t, err, errUnavailable)
	_, err = svc.Update(ctx, "x", domain.NoteInput{Title: "x"})
	assert.ErrorIs(t, err, errUnavailable)
	err = svc.Delete(ctx, "x")
	assert.ErrorIs(t, err, errUnavailable)
	assert.False(t, errors.Is(err, errors.NotFound))
	_, err = svc.Search(ctx, "x")
	assert.ErrorIs(t, err, errUnavailable)
	_, err = svc.Tags(ctx)
	assert.ErrorIs(t, err, errUnavailable)
}

func inputGen() *rapid.Generator[domain.NoteInput] {
	return rapid.Custom(func(t *rapid.T) domain.NoteInput {
		return domain.NoteInput{
			Title:   rapid.StringMatching(`[A-Za-z0-9 ]{0,30}`).Draw(t, "title"),
			Content: map[string]any{"type": "doc", "n": rapid.IntRange(0, 100).Draw(t, "n")},
			Tags:    rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,10}`), 0, 5).Draw(t, "tags"),
		}
	})
}

func TestPropertyCreateAssignsIdentityOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		svc := newService()
		ctx := context.Background()
		seen := map[string]bool{}

		for _, in := range rapid.SliceOfN(inputGen(), 1, 10).Draw(t, "inputs") {
			n, err := svc.Create(ctx, in)
			require.NoError(t, err)
			assert.NotEmpty(t, n.ID)
			assert.False(t, seen[n.ID], "id %s reused", n.ID)
			assert.Equal(t, n.CreatedAt, n.UpdatedAt)
			assert.Equal(t, in.Title, n.Title)
			seen[n.ID] = true
		}
	})
}

func TestPropertyUpdatePreservesIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		svc := newService()
		ctx := context.Background()

		n, err := svc.Create(ctx, inputGen().Draw(t, "create"))
		require.NoError(t, err)

		p := inputGen().Draw(t, "update")
		got, err := svc.Update(ctx, n.ID, p)
		require.NoError(t, err)

		assert.Equal(t, n.ID, got.ID)
		assert.Equal(t, n.CreatedAt, got.CreatedAt)
		assert.False(t, got.UpdatedAt.Before(n.UpdatedAt))
		assert.Equal(t, p.Title, got.Title)
		assert.Equal(t, append([]string{}, p.Tags...), got.Tags)
	})
}

func TestPropertySearchFindsTitleSubstring(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		svc := newService()
		ctx := context.Background()

		title := rapid.StringMatching(`[a-z]{3,20}`).Draw(t, "title")
		start := rapid.IntRange(0, len(title)-1).Draw(t, "start")
		end := rapid.IntRange(start+1, len(title)).Draw(t, "end")
		q := strings.ToUpper(title[start:end])

		n, err := svc.Create(ctx, domain.NoteInput{Title: title})
		require.NoError(t, err)

		found, err := svc.Search(ctx, q)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, n.ID, found[0].ID)
	})
}
