package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/mattn/go-sqlite3"

	"github.com/pbaille/notes/internal/domain"
)

//go:embed schema.sql
var schema string

// sqliteDriver is go-sqlite3 with contains_fold(s, substr) registered on
// every connection. SQLite's own LIKE and lower() only fold ASCII.
const sqliteDriver = "sqlite3_notes"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("contains_fold", domain.ContainsFold, true)
		},
	})
}

const noteColumns = "id, title, content, tags, created_at, updated_at"

// nextSeq numbers every write so notes sharing an updated_at list latest write first
const nextSeq = "(SELECT COALESCE(MAX(seq), 0) + 1 FROM notes)"

const byRecencySQL = " ORDER BY updated_at DESC, seq DESC"

// SQLiteStore keeps notes in a single SQLite table. Content and tags are
// stored as JSON text, timestamps as Unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and if needed creates) the database at dbPath
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open(sqliteDriver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite has a single writer; one connection avoids SQLITE_BUSY between pool members
	db.SetMaxOpenConns(1)

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Insert adds a new note row
func (s *SQLiteStore) Insert(ctx context.Context, n domain.Note) error {
	content, tags, err := encodeBody(n.Content, n.Tags)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO notes ("+noteColumns+", seq) VALUES (?, ?, ?, ?, ?, ?, "+nextSeq+")",
		n.ID, n.Title, content, tags, n.CreatedAt.UnixMilli(), n.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// FindAll returns every note, most recently updated first
func (s *SQLiteStore) FindAll(ctx context.Context) ([]domain.Note, error) {
	return s.query(ctx, "SELECT "+noteColumns+" FROM notes"+byRecencySQL)
}

// FindByID returns the note with the given id
func (s *SQLiteStore) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM notes WHERE id = ?", id)

	n, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	return &n, nil
}

// FindAndUpdate rewrites the note in one UPDATE ... RETURNING statement.
// updated_at never moves backwards.
func (s *SQLiteStore) FindAndUpdate(ctx context.Context, id string, p domain.Patch) (*domain.Note, error) {
	content, tags, err := encodeBody(p.Content, p.Tags)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		"UPDATE notes SET title = ?, content = ?, tags = ?, updated_at = MAX(updated_at, ?), seq = "+nextSeq+
			" WHERE id = ? RETURNING "+noteColumns,
		p.Title, content, tags, p.UpdatedAt.UnixMilli(), id,
	)

	n, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}
	return &n, nil
}

// Delete removes the note row with the given id
func (s *SQLiteStore) Delete(ctx context.Context, id string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("delete note: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete note: %w", err)
	}
	return removed, nil
}

// Find returns the notes matching p, most recently updated first
func (s *SQLiteStore) Find(ctx context.Context, p domain.Predicate) ([]domain.Note, error) {
	where, args, err := predicateSQL(p)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, "SELECT "+noteColumns+" FROM notes WHERE "+where+byRecencySQL, args...)
}

// predicateSQL renders p as a WHERE clause. Tags are matched through
// json_each over the JSON array column.
func predicateSQL(p domain.Predicate) (string, []any, error) {
	if len(p.Any) == 0 {
		return "0", nil, nil
	}

	clauses := make([]string, 0, len(p.Any))
	args := make([]any, 0, len(p.Any))
	for _, c := range p.Any {
		switch c.Field {
		case domain.FieldTitle:
			clauses = append(clauses, "contains_fold(title, ?)")
		case domain.FieldTags:
			clauses = append(clauses, "EXISTS (SELECT 1 FROM json_each(notes.tags) WHERE contains_fold(json_each.value, ?))")
		default:
			return "", nil, errors.NotSupportedf("search on field %q", c.Field)
		}
		args = append(args, c.Text)
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args, nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]domain.Note, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	notes := []domain.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}

	return notes, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (domain.Note, error) {
	var (
		n                domain.Note
		content, tags    string
		created, updated int64
	)
	if err := row.Scan(&n.ID, &n.Title, &content, &tags, &created, &updated); err != nil {
		return domain.Note{}, err
	}

	body, err := domain.DecodeContent([]byte(content))
	if err != nil {
		return domain.Note{}, fmt.Errorf("decode content of %s: %w", n.ID, err)
	}
	n.Content = body
	if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
		return domain.Note{}, fmt.Errorf("decode tags of %s: %w", n.ID, err)
	}
	n.CreatedAt = time.UnixMilli(created).UTC()
	n.UpdatedAt = time.UnixMilli(updated).UTC()

	return n.WithDefaults(), nil
}

func encodeBody(content map[string]any, tags []string) (string, string, error) {
	if content == nil {
		content = map[string]any{}
	}
	if tags == nil {
		tags = []string{}
	}

	c, err := json.Marshal(content)
	if err != nil {
		return "", "", fmt.Errorf("encode content: %w", err)
	}
	t, err := json.Marshal(tags)
	if err != nil {
		return "", "", fmt.Errorf("encode tags: %w", err)
	}
	return string(c), string(t), nil
}
