package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/juju/errors"

	"github.com/pbaille/notes/internal/config"
	"github.com/pbaille/notes/internal/notes"
)

// Backend is a note store holding a connection that must be closed
type Backend interface {
	notes.Store
	io.Closer
}

// Open connects to the store selected by cfg
func Open(ctx context.Context, cfg config.StoreConfig) (Backend, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		dir := filepath.Dir(cfg.SQLite.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		return NewSQLite(cfg.SQLite.Path)
	case config.DriverMongo:
		return NewMongo(ctx, MongoOptions{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		})
	case config.DriverNeo4j:
		return NewNeo4j(ctx, Neo4jOptions{
			URI:      cfg.Neo4j.URI,
			Username: cfg.Neo4j.Username,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
		})
	case config.DriverMemory:
		return NewMemory(), nil
	default:
		return nil, errors.NotValidf("store driver %q", cfg.Driver)
	}
}

func notFound(id string) error {
	return errors.NotFoundf("note %q", id)
}
