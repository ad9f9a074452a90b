package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "notes.db", filepath.Base(cfg.Store.SQLite.Path))
}

func TestDecode(t *testing.T) {
	cfg := Default()
	err := cfg.Decode(strings.NewReader(`
addr: ":9000"
shutdown_timeout: 3s
log:
  level: debug
  format: json
store:
  driver: mongo
  mongo:
    uri: mongodb://db:27017
`))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, DriverMongo, cfg.Store.Driver)
	assert.Equal(t, "mongodb://db:27017", cfg.Store.Mongo.URI)
	assert.Equal(t, "notes", cfg.Store.Mongo.Database, "defaults survive a partial file")
	assert.NoError(t, cfg.Validate())
}

func TestDecodeUnknownKey(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Decode(strings.NewReader("stor:\n  driver: mongo\n")))
}

func TestDecodeEmpty(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Decode(strings.NewReader("")))
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"NOTES_STORE":            "mongo",
		"MONGO_URL":              "mongodb://mongo:27017",
		"DB_NAME":                "test_database",
		"NOTES_ADDR":             "",
		"NOTES_SHUTDOWN_TIMEOUT": "1m",
	}))
	require.NoError(t, err)

	assert.Equal(t, DriverMongo, cfg.Store.Driver)
	assert.Equal(t, "mongodb://mongo:27017", cfg.Store.Mongo.URI)
	assert.Equal(t, "test_database", cfg.Store.Mongo.Database)
	assert.Equal(t, ":8001", cfg.Addr, "empty values are ignored")
	assert.Equal(t, time.Minute, cfg.ShutdownTimeout)
}

func TestApplyEnvBadTimeout(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{"NOTES_SHUTDOWN_TIMEOUT": "soon"}))
	assert.True(t, errors.Is(err, errors.NotValid), "want NotValid, got %v", err)
	assert.Equal(t, Default().ShutdownTimeout, cfg.ShutdownTimeout)
}

func TestLoadBadTimeoutEnv(t *testing.T) {
	t.Setenv("NOTES_SHUTDOWN_TIMEOUT", "10")
	_, err := Load("")
	assert.True(t, errors.Is(err, errors.NotValid), "want NotValid, got %v", err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: memory\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown driver": func(c *Config) { c.Store.Driver = "postgres" },
		"mongo no uri":   func(c *Config) { c.Store.Driver = DriverMongo },
		"neo4j no uri":   func(c *Config) { c.Store.Driver = DriverNeo4j },
		"sqlite no path": func(c *Config) { c.Store.SQLite.Path = "" },
		"bad level":      func(c *Config) { c.Log.Level = "loud" },
		"bad format":     func(c *Config) { c.Log.Format = "xml" },
		"no addr":        func(c *Config) { c.Addr = "" },
		"no timeout":     func(c *Config) { c.ShutdownTimeout = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			err := cfg.Validate()
			assert.True(t, errors.Is(err, errors.NotValid), "want NotValid, got %v", err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "id", "n1")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"id":"n1"`)
}
