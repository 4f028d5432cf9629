package sqliteutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDBAndMigrate(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrations := []Migration{
		{Version: 1, Name: "items", UpSQL: "CREATE TABLE items (id TEXT PRIMARY KEY)"},
		{Version: 2, Name: "items_name", UpSQL: "ALTER TABLE items ADD COLUMN name TEXT"},
	}

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db, migrations))
	require.NoError(t, Migrate(ctx, db, migrations), "migrations are idempotent")

	var version int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, 2, version)

	_, err = db.ExecContext(ctx, "INSERT INTO items (id, name) VALUES ('a', 'b')")
	assert.NoError(t, err)
}

func TestOpenDB_InvalidPath(t *testing.T) {
	_, err := OpenDB("/:invalid:path/\x00/db")
	assert.Error(t, err)
}
