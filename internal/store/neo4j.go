package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/pbaille/notes/internal/domain"
)

// Neo4jOptions locates the graph holding the :Note nodes
type Neo4jOptions struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jStore keeps one :Note node per note. Content is a JSON string
// property since node properties cannot hold maps. A single :NoteSequence
// node numbers writes, ordering notes that share an updated_at.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4j connects to Neo4j and makes sure note ids are unique
func NewNeo4j(ctx context.Context, opts Neo4jOptions) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.Username, opts.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(context.Background())
		return nil, fmt.Errorf("connect neo4j: %w", err)
	}

	s := &Neo4jStore{driver: driver, database: opts.Database}

	for _, constraint := range []string{
		"CREATE CONSTRAINT note_id IF NOT EXISTS FOR (n:Note) REQUIRE n.id IS UNIQUE",
		"CREATE CONSTRAINT note_sequence IF NOT EXISTS FOR (c:NoteSequence) REQUIRE c.name IS UNIQUE",
	} {
		_, err = s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			result, err := tx.Run(ctx, constraint, nil)
			if err != nil {
				return nil, err
			}
			return result.Consume(ctx)
		})
		if err != nil {
			driver.Close(context.Background())
			return nil, fmt.Errorf("create constraint: %w", err)
		}
	}

	return s, nil
}

// Close closes the driver
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

// Insert creates a new :Note node
func (s *Neo4jStore) Insert(ctx context.Context, n domain.Note) error {
	n = n.WithDefaults()
	content, err := json.Marshal(n.Content)
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}

	params := map[string]any{
		"id":         n.ID,
		"title":      n.Title,
		"content":    string(content),
		"tags":       n.Tags,
		"created_at": n.CreatedAt,
		"updated_at": n.UpdatedAt,
	}

	_, err = s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MERGE (c:NoteSequence {name: 'notes'})
			SET c.value = coalesce(c.value, 0) + 1
			CREATE (n:Note {
				id: $id,
				title: $title,
				content: $content,
				tags: $tags,
				created_at: $created_at,
				updated_at: $updated_at,
				seq: c.value
			})
		`, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// FindAll returns every note, most recently updated first
func (s *Neo4jStore) FindAll(ctx context.Context) ([]domain.Note, error) {
	return s.find(ctx, "MATCH (n:Note) RETURN n"+byRecencyCypher, nil)
}

// FindByID returns the note with the given id
func (s *Neo4jStore) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	notes, err := s.find(ctx, "MATCH (n:Note {id: $id}) RETURN n", map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, notFound(id)
	}
	return &notes[0], nil
}

// FindAndUpdate sets the patched properties and returns the updated node.
// updated_at never moves backwards.
func (s *Neo4jStore) FindAndUpdate(ctx context.Context, id string, p domain.Patch) (*domain.Note, error) {
	content := p.Content
	if content == nil {
		content = map[string]any{}
	}
	encoded, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}

	params := map[string]any{
		"id":         id,
		"title":      p.Title,
		"content":    string(encoded),
		"tags":       tags,
		"updated_at": p.UpdatedAt,
	}

	records, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (n:Note {id: $id})
			MERGE (c:NoteSequence {name: 'notes'})
			SET c.value = coalesce(c.value, 0) + 1
			SET n.title = $title,
				n.content = $content,
				n.tags = $tags,
				n.seq = c.value,
				n.updated_at = CASE WHEN n.updated_at > $updated_at THEN n.updated_at ELSE $updated_at END
			RETURN n
		`, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}

	notes, err := notesFromRecords(records.([]*neo4j.Record))
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, notFound(id)
	}
	return &notes[0], nil
}

// Delete removes the :Note node with the given id
func (s *Neo4jStore) Delete(ctx context.Context, id string) (int64, error) {
	deleted, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, "MATCH (n:Note {id: $id}) DETACH DELETE n", map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		summary, err := result.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return int64(summary.Counters().NodesDeleted()), nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete note: %w", err)
	}
	return deleted.(int64), nil
}

// Find returns the notes matching p, most recently updated first
func (s *Neo4jStore) Find(ctx context.Context, p domain.Predicate) ([]domain.Note, error) {
	if len(p.Any) == 0 {
		return []domain.Note{}, nil
	}

	clauses := make([]string, 0, len(p.Any))
	params := make(map[string]any, len(p.Any))
	for i, c := range p.Any {
		param := fmt.Sprintf("q%d", i)
		switch c.Field {
		case domain.FieldTitle:
			clauses = append(clauses, "toLower(n.title) CONTAINS toLower($"+param+")")
		case domain.FieldTags:
			clauses = append(clauses, "any(t IN n.tags WHERE toLower(t) CONTAINS toLower($"+param+"))")
		default:
			return nil, errors.NotSupportedf("search on field %q", c.Field)
		}
		params[param] = c.Text
	}

	query := "MATCH (n:Note) WHERE " + strings.Join(clauses, " OR ") + " RETURN n" + byRecencyCypher
	return s.find(ctx, query, params)
}

const byRecencyCypher = " ORDER BY n.updated_at DESC, n.seq DESC"

func (s *Neo4jStore) find(ctx context.Context, query string, params map[string]any) ([]domain.Note, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}

	return notesFromRecords(records.([]*neo4j.Record))
}

func (s *Neo4jStore) write(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	return session.ExecuteWrite(ctx, work)
}

func notesFromRecords(records []*neo4j.Record) ([]domain.Note, error) {
	notes := make([]domain.Note, 0, len(records))
	for _, record := range records {
		node, _, err := neo4j.GetRecordValue[neo4j.Node](record, "n")
		if err != nil {
			return nil, fmt.Errorf("read note node: %w", err)
		}
		n, err := noteFromProps(node.Props)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, nil
}

func noteFromProps(props map[string]any) (domain.Note, error) {
	var n domain.Note
	n.ID, _ = props["id"].(string)
	n.Title, _ = props["title"].(string)

	if raw, ok := props["content"].(string); ok {
		content, err := domain.DecodeContent([]byte(raw))
		if err != nil {
			return domain.Note{}, fmt.Errorf("decode content of %s: %w", n.ID, err)
		}
		n.Content = content
	}

	if tags, ok := props["tags"].([]any); ok {
		n.Tags = make([]string, 0, len(tags))
		for _, t := range tags {
			if tag, ok := t.(string); ok {
				n.Tags = append(n.Tags, tag)
			}
		}
	}

	created, ok := props["created_at"].(time.Time)
	if !ok {
		return domain.Note{}, errors.NotValidf("created_at of note %s", n.ID)
	}
	updated, ok := props["updated_at"].(time.Time)
	if !ok {
		return domain.Note{}, errors.NotValidf("updated_at of note %s", n.ID)
	}
	n.CreatedAt = created.UTC()
	n.UpdatedAt = updated.UTC()

	return n.WithDefaults(), nil
}
