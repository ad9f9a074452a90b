package notes

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/pbaille/notes/internal/domain"
)

// Service implements the note lifecycle on top of a Store
type Service struct {
	store  Store
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithClock sets the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator sets the function used to mint note ids
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithLogger sets the service logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a new Service backed by store
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// timestamp reads the clock once. Stored times are UTC with millisecond
// precision, the finest every backend keeps.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// List returns all notes, most recently updated first
func (s *Service) List(ctx context.Context) ([]domain.Note, error) {
	return s.store.FindAll(ctx)
}

// Get returns a single note
func (s *Service) Get(ctx context.Context, id string) (*domain.Note, error) {
	return s.store.FindByID(ctx, id)
}

// Create stores a new note with a fresh id
func (s *Service) Create(ctx context.Context, in domain.NoteInput) (*domain.Note, error) {
	now := s.timestamp()
	n := domain.Note{
		ID:        s.newID(),
		Title:     in.Title,
		Content:   in.Content,
		Tags:      append([]string{}, in.Tags...),
		CreatedAt: now,
		UpdatedAt: now,
	}.WithDefaults()

	if err := s.store.Insert(ctx, n); err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "note created", "id", n.ID)
	return &n, nil
}

// Update replaces title, content and tags of an existing note. Fields left
// empty in the input are cleared. A clock reading earlier than the stored
// UpdatedAt leaves it unchanged.
func (s *Service) Update(ctx context.Context, id string, in domain.NoteInput) (*domain.Note, error) {
	p := domain.Patch{
		Title:     in.Title,
		Content:   in.Content,
		Tags:      append([]string{}, in.Tags...),
		UpdatedAt: s.timestamp(),
	}
	if p.Content == nil {
		p.Content = map[string]any{}
	}

	n, err := s.store.FindAndUpdate(ctx, id, p)
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "note updated", "id", id)
	return n, nil
}

// Delete removes a note
func (s *Service) Delete(ctx context.Context, id string) error {
	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if removed == 0 {
		return errors.NotFoundf("note %q", id)
	}

	s.logger.DebugContext(ctx, "note deleted", "id", id)
	return nil
}

// Search returns notes whose title or one of whose tags contains q,
// ignoring case
func (s *Service) Search(ctx context.Context, q string) ([]domain.Note, error) {
	return s.store.Find(ctx, domain.TitleOrTag(q))
}

// Tags returns every tag in use with its note count, sorted by name
func (s *Service) Tags(ctx context.Context) ([]domain.Tag, error) {
	all, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, n := range all {
		for _, t := range n.Tags {
			counts[t]++
		}
	}

	tags := make([]domain.Tag, 0, len(counts))
	for name, count := range counts {
		tags = append(tags, domain.Tag{Name: name, Count: count})
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })

	return tags, nil
}
