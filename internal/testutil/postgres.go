// Package testutil holds helpers shared by repository tests.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lecturelink/backend/pkg/database"
)

// EnvTestDatabaseURL names the variable that enables Postgres-backed tests.
const EnvTestDatabaseURL = "TEST_DATABASE_URL"

// SetupTestDB connects to TEST_DATABASE_URL, applies migrations and empties every table.
// The test is skipped when the variable is unset.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(EnvTestDatabaseURL)
	if dsn == "" {
		t.Skipf("%s not set; skipping Postgres test", EnvTestDatabaseURL)
	}
	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("connect test database: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := database.Migrate(ctx, pool, nil); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	_, err = pool.Exec(ctx, `TRUNCATE lecture_comments, lecture_questions, polls, lectures, instructors RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("clean test database: %v", err)
	}
	return pool
}
