package database

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestDB opens a private in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := New(fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, NewMigrator(db, nil).Migrate(context.Background()))
	return db
}
