package notes

import (
	"context"

	"github.com/pbaille/notes/internal/domain"
)

// Store is the document store the service runs on. Implementations live in
// internal/store.
//
// Lookups by id return an error satisfying errors.Is(err, errors.NotFound)
// (github.com/juju/errors) when no note has that id. Listing methods return
// notes ordered by UpdatedAt, most recent first; notes sharing an UpdatedAt
// are ordered by their last write, latest first.
type Store interface {
	// Insert persists a new note under its own ID.
	Insert(ctx context.Context, n domain.Note) error

	// FindAll returns every note.
	FindAll(ctx context.Context) ([]domain.Note, error)

	// FindByID returns the note with the given id.
	FindByID(ctx context.Context, id string) (*domain.Note, error)

	// FindAndUpdate atomically applies p to the note with the given id and
	// returns the updated note. UpdatedAt keeps the later of the stored value
	// and p.UpdatedAt.
	FindAndUpdate(ctx context.Context, id string, p domain.Patch) (*domain.Note, error)

	// Delete removes the note with the given id and reports how many notes
	// were removed (0 or 1).
	Delete(ctx context.Context, id string) (int64, error)

	// Find returns the notes matching p.
	Find(ctx context.Context, p domain.Predicate) ([]domain.Note, error)
}
