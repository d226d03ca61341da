// Package testutil provides shared test helpers for integration tests.
package testutil

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/haventools/premises-manage/core/internal/principal"
	"github.com/haventools/premises-manage/core/internal/session/pg"
	"github.com/haventools/premises-manage/core/internal/token"
)

var entropy = ulid.Monotonic(rand.Reader, 0)

// NewID generates a unique ULID for test isolation.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// SetupPostgres starts a PostgreSQL testcontainer and returns a migrated
// session store. The container is stopped when the test completes.
func SetupPostgres(t *testing.T) *pg.Store {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("premises_core_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	store, err := pg.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create session store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

// NewTokenGenerator creates a Generator with test-friendly configuration.
func NewTokenGenerator() *token.Generator {
	return token.NewGenerator(token.Config{
		Secret:    []byte("test-secret-key-for-jwt-signing"),
		AccessTTL: 15 * time.Minute,
		Issuer:    "premises-manage-test",
	})
}

// Actor returns an actor principal with fresh ids.
func Actor(premisesID string) principal.Principal {
	return principal.NewActor(NewID(), premisesID, NewID(), NewID(), principal.AccountTypeUser)
}

// ActorContext returns a context carrying an actor principal and trace id.
func ActorContext(p principal.Principal) context.Context {
	ctx := principal.WithPrincipal(context.Background(), p)
	return principal.WithTraceID(ctx, NewID())
}
