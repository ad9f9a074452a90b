package domain

import "strings"

// Field names a searchable note field
type Field string

const (
	FieldTitle Field = "title"
	FieldTags  Field = "tags"
)

// Contains matches a note when Text is a case-insensitive substring of Field.
// For FieldTags a single matching tag is enough.
type Contains struct {
	Field Field
	Text  string
}

// Predicate matches a note when any of its terms match
type Predicate struct {
	Any []Contains
}

// TitleOrTag builds the search predicate: q within the title or within any tag.
func TitleOrTag(q string) Predicate {
	return Predicate{Any: []Contains{
		{Field: FieldTitle, Text: q},
		{Field: FieldTags, Text: q},
	}}
}

// Match reports whether n satisfies p
func (p Predicate) Match(n Note) bool {
	for _, c := range p.Any {
		if c.Match(n) {
			return true
		}
	}
	return false
}

// Match reports whether n satisfies c
func (c Contains) Match(n Note) bool {
	switch c.Field {
	case FieldTitle:
		return ContainsFold(n.Title, c.Text)
	case FieldTags:
		for _, t := range n.Tags {
			if ContainsFold(t, c.Text) {
				return true
			}
		}
	}
	return false
}

// ContainsFold reports whether substr is within s, ignoring case
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
