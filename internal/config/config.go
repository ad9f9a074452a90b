// Package config loads server and store settings.
//
// Settings are layered: built-in defaults, then an optional YAML file, then
// environment variables. Command line flags are applied last by cmd/notes.
//
//	addr: ":8001"
//	shutdown_timeout: 10s
//	log:
//	  level: info
//	  format: text
//	store:
//	  driver: mongo
//	  mongo:
//	    uri: mongodb://localhost:27017
//	    database: notes
package config

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

// Store drivers
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
	DriverNeo4j  = "neo4j"
	DriverMemory = "memory"
)

// Config is the full application configuration
type Config struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Log             LogConfig     `yaml:"log"`
	Store           StoreConfig   `yaml:"store"`
}

// StoreConfig selects and locates the note store
type StoreConfig struct {
	Driver string       `yaml:"driver"`
	SQLite SQLiteConfig `yaml:"sqlite"`
	Mongo  MongoConfig  `yaml:"mongo"`
	Neo4j  Neo4jConfig  `yaml:"neo4j"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	// Default database location
	home, _ := os.UserHomeDir()

	return Config{
		Addr:            ":8001",
		ShutdownTimeout: 10 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
			SQLite: SQLiteConfig{Path: filepath.Join(home, ".notes", "notes.db")},
			Mongo:  MongoConfig{Database: "notes", Collection: "notes"},
			Neo4j:  Neo4jConfig{Username: "neo4j"},
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the process environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, errors.Annotate(err, "open config")
		}
		defer f.Close()

		if err := cfg.Decode(f); err != nil {
			return Config{}, errors.Annotatef(err, "read config %s", path)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode overlays YAML settings from r onto c. Unknown keys are rejected.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// ApplyEnv overlays environment settings onto c. MONGO_URL and DB_NAME are
// the variable names older deployments of the notes backend used.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set("NOTES_ADDR", &c.Addr)
	set("NOTES_LOG_LEVEL", &c.Log.Level)
	set("NOTES_LOG_FORMAT", &c.Log.Format)
	set("NOTES_STORE", &c.Store.Driver)
	set("NOTES_DB", &c.Store.SQLite.Path)
	set("MONGO_URL", &c.Store.Mongo.URI)
	set("DB_NAME", &c.Store.Mongo.Database)
	set("NEO4J_URI", &c.Store.Neo4j.URI)
	set("NEO4J_USERNAME", &c.Store.Neo4j.Username)
	set("NEO4J_PASSWORD", &c.Store.Neo4j.Password)
	set("NEO4J_DATABASE", &c.Store.Neo4j.Database)

	if v, ok := lookup("NOTES_SHUTDOWN_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.NotValidf("NOTES_SHUTDOWN_TIMEOUT %q", v)
		}
		c.ShutdownTimeout = d
	}
	return nil
}

// Validate checks that the selected store has what it needs to connect
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.NotValidf("empty listen address")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.NotValidf("shutdown timeout %s", c.ShutdownTimeout)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.NotValidf("log format %q", c.Log.Format)
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLite.Path == "" {
			return errors.NotValidf("empty sqlite path")
		}
	case DriverMongo:
		if c.Store.Mongo.URI == "" || c.Store.Mongo.Database == "" {
			return errors.NotValidf("mongo store without uri and database")
		}
	case DriverNeo4j:
		if c.Store.Neo4j.URI == "" {
			return errors.NotValidf("neo4j store without uri")
		}
	case DriverMemory:
	default:
		return errors.NotValidf("store driver %q", c.Store.Driver)
	}
	return nil
}
