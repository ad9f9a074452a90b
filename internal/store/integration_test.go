//go:build integration

package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/notes/internal/notes"
	"github.com/pbaille/notes/internal/store/storetest"
)

var (
	mongoURI string
	neo4jURI string
)

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		fmt.Printf("Could not connect to docker: %s\n", err)
		os.Exit(1)
	}
	pool.MaxWait = 120 * time.Second

	mongoRes, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mongo",
		Tag:        "7",
	}, autoRemove)
	if err != nil {
		fmt.Printf("Could not start mongo: %s\n", err)
		os.Exit(1)
	}

	neo4jRes, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "neo4j",
		Tag:        "5",
		Env:        []string{"NEO4J_AUTH=neo4j/password"},
	}, autoRemove)
	if err != nil {
		fmt.Printf("Could not start neo4j: %s\n", err)
		pool.Purge(mongoRes)
		os.Exit(1)
	}

	mongoURI = "mongodb://localhost:" + mongoRes.GetPort("27017/tcp")
	neo4jURI = "bolt://localhost:" + neo4jRes.GetPort("7687/tcp")

	if err := pool.Retry(func() error {
		s, err := NewMongo(context.Background(), MongoOptions{URI: mongoURI, Database: "notes_test"})
		if err != nil {
			return err
		}
		return s.Close()
	}); err != nil {
		fmt.Printf("Could not connect to mongo: %s\n", err)
		os.Exit(1)
	}

	if err := pool.Retry(func() error {
		s, err := NewNeo4j(context.Background(), Neo4jOptions{URI: neo4jURI, Username: "neo4j", Password: "password"})
		if err != nil {
			return err
		}
		return s.Close()
	}); err != nil {
		fmt.Printf("Could not connect to neo4j: %s\n", err)
		os.Exit(1)
	}

	code := m.Run()

	for _, res := range []*dockertest.Resource{mongoRes, neo4jRes} {
		if err := pool.Purge(res); err != nil {
			fmt.Printf("Could not purge resource: %s\n", err)
			os.Exit(1)
		}
	}
	os.Exit(code)
}

func autoRemove(config *docker.HostConfig) {
	config.AutoRemove = true
}

func TestMongoStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) notes.Store {
		// A collection per subtest keeps them independent.
		s, err := NewMongo(context.Background(), MongoOptions{
			URI:        mongoURI,
			Database:   "notes_test",
			Collection: "notes_" + uuid.NewString(),
		})
		require.NoError(t, err)
		t.Cleanup(func() {
			s.notes.Drop(context.Background())
			s.Close()
		})
		return s
	})
}

func TestNeo4jStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) notes.Store {
		ctx := context.Background()
		s, err := NewNeo4j(ctx, Neo4jOptions{URI: neo4jURI, Username: "neo4j", Password: "password"})
		require.NoError(t, err)

		_, err = neo4j.ExecuteQuery(ctx, s.driver, "MATCH (n:Note) DETACH DELETE n", nil, neo4j.EagerResultTransformer)
		require.NoError(t, err)

		t.Cleanup(func() { s.Close() })
		return s
	})
}
