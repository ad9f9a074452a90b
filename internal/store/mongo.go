package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/juju/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/pbaille/notes/internal/domain"
)

// MongoOptions locates the notes collection
type MongoOptions struct {
	URI        string
	Database   string
	Collection string
}

// MongoStore keeps one document per note, keyed by the note id. A counter
// document in the "counters" collection numbers writes, ordering notes that
// share an updated_at.
type MongoStore struct {
	client   *mongo.Client
	notes    *mongo.Collection
	counters *mongo.Collection
}

type noteDoc struct {
	ID        string         `bson:"_id"`
	Title     string         `bson:"title"`
	Content   map[string]any `bson:"content"`
	Tags      []string       `bson:"tags"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
	Seq       int64          `bson:"seq"`
}

func (d noteDoc) note() domain.Note {
	return domain.Note{
		ID:        d.ID,
		Title:     d.Title,
		Content:   d.Content,
		Tags:      d.Tags,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}.WithDefaults()
}

var byRecency = bson.D{{Key: "updated_at", Value: -1}, {Key: "seq", Value: -1}}

// NewMongo connects to MongoDB and makes sure the recency index exists
func NewMongo(ctx context.Context, opts MongoOptions) (*MongoStore, error) {
	if opts.Collection == "" {
		opts.Collection = "notes"
	}

	// Nested content documents decode as maps rather than ordered bson.D.
	clientOpts := options.Client().
		ApplyURI(opts.URI).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	notes := client.Database(opts.Database).Collection(opts.Collection)
	_, err = notes.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: byRecency})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &MongoStore{
		client:   client,
		notes:    notes,
		counters: client.Database(opts.Database).Collection("counters"),
	}, nil
}

// Close disconnects the client
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

// Insert adds a new note document
func (s *MongoStore) Insert(ctx context.Context, n domain.Note) error {
	seq, err := s.nextSeq(ctx)
	if err != nil {
		return err
	}

	n = n.WithDefaults()
	doc := noteDoc{
		ID:        n.ID,
		Title:     n.Title,
		Content:   n.Content,
		Tags:      n.Tags,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
		Seq:       seq,
	}
	if _, err := s.notes.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// FindAll returns every note, most recently updated first
func (s *MongoStore) FindAll(ctx context.Context) ([]domain.Note, error) {
	return s.find(ctx, bson.M{})
}

// FindByID returns the note with the given id
func (s *MongoStore) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	var doc noteDoc
	err := s.notes.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}

	n := doc.note()
	return &n, nil
}

// FindAndUpdate sets the patched fields and returns the document after the
// update. $max keeps updated_at from moving backwards.
func (s *MongoStore) FindAndUpdate(ctx context.Context, id string, p domain.Patch) (*domain.Note, error) {
	seq, err := s.nextSeq(ctx)
	if err != nil {
		return nil, err
	}

	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	content := p.Content
	if content == nil {
		content = map[string]any{}
	}

	update := bson.M{
		"$set": bson.M{
			"title":   p.Title,
			"content": content,
			"tags":    tags,
			"seq":     seq,
		},
		"$max": bson.M{"updated_at": p.UpdatedAt},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc noteDoc
	err = s.notes.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}

	n := doc.note()
	return &n, nil
}

// Delete removes the note document with the given id
func (s *MongoStore) Delete(ctx context.Context, id string) (int64, error) {
	res, err := s.notes.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, fmt.Errorf("delete note: %w", err)
	}
	return res.DeletedCount, nil
}

// Find returns the notes matching p, most recently updated first
func (s *MongoStore) Find(ctx context.Context, p domain.Predicate) ([]domain.Note, error) {
	if len(p.Any) == 0 {
		return []domain.Note{}, nil
	}

	or := make(bson.A, 0, len(p.Any))
	for _, c := range p.Any {
		switch c.Field {
		case domain.FieldTitle, domain.FieldTags:
			// A regex on an array field matches when any element matches.
			or = append(or, bson.M{string(c.Field): primitive.Regex{
				Pattern: regexp.QuoteMeta(c.Text),
				Options: "i",
			}})
		default:
			return nil, errors.NotSupportedf("search on field %q", c.Field)
		}
	}
	return s.find(ctx, bson.M{"$or": or})
}

func (s *MongoStore) find(ctx context.Context, filter bson.M) ([]domain.Note, error) {
	cur, err := s.notes.Find(ctx, filter, options.Find().SetSort(byRecency))
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}

	var docs []noteDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}

	notes := make([]domain.Note, 0, len(docs))
	for _, d := range docs {
		notes = append(notes, d.note())
	}
	return notes, nil
}

// nextSeq increments the notes collection's write counter
func (s *MongoStore) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": s.notes.Name()},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next write sequence: %w", err)
	}
	return counter.Value, nil
}
