package domain

import "time"

// Note is a titled rich-text document with free-form tags
type Note struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Content   map[string]any `json:"content"`
	Tags      []string       `json:"tags"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// WithDefaults returns n with empty content and tags instead of nil, so that
// the wire shape always carries an object and an array.
func (n Note) WithDefaults() Note {
	if n.Content == nil {
		n.Content = map[string]any{}
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	return n
}

// NoteInput holds the caller-owned fields of a note
type NoteInput struct {
	Title   string
	Content map[string]any
	Tags    []string
}

// Patch replaces every caller-owned field of a stored note
type Patch struct {
	Title     string
	Content   map[string]any
	Tags      []string
	UpdatedAt time.Time
}

// Apply returns n with the patch applied. ID and CreatedAt are untouched,
// and UpdatedAt only moves forward: a patch stamped before the stored
// UpdatedAt keeps the stored value.
func (p Patch) Apply(n Note) Note {
	n.Title = p.Title
	n.Content = p.Content
	n.Tags = p.Tags
	if p.UpdatedAt.After(n.UpdatedAt) {
		n.UpdatedAt = p.UpdatedAt
	}
	return n.WithDefaults()
}

// Tag is a tag name with the number of notes carrying it
type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
