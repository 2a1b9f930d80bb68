// Package postgrestest starts disposable Postgres containers for
// repository tests.
package postgrestest

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"go.uber.org/zap"

	"github.com/Wuchinator/watchtime/pkg/postgres"
)

// New returns a migrated database in a fresh container that is purged when
// t finishes. It skips t under -short or when Docker is unavailable.
func New(t testing.TB) *postgres.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_PASSWORD=postgres",
			"POSTGRES_USER=postgres",
			"POSTGRES_DB=watchtime",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("could not start postgres: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	// Docker hard-kills the container if cleanup never runs.
	if err := resource.Expire(120); err != nil {
		t.Fatalf("could not expire resource: %v", err)
	}

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s/watchtime?sslmode=disable&timezone=UTC",
		resource.GetHostPort("5432/tcp"))

	pool.MaxWait = 120 * time.Second
	err = pool.Retry(func() error {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return err
		}
		err = db.Ping()
		_ = db.Close()
		return err
	})
	if err != nil {
		t.Fatalf("postgres never became ready: %v", err)
	}

	logger := zap.NewNop()
	if err := postgres.Migrate(dsn, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	db, err := postgres.New(postgres.Config{
		DSN:             dsn,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
