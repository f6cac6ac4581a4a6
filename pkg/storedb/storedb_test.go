package storedb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_things", SQL: `CREATE TABLE things (id INTEGER PRIMARY KEY, name TEXT);`},
		{Version: 2, Name: "add_kind", SQL: `ALTER TABLE things ADD COLUMN kind TEXT;`},
	}
}

func TestOpenAppliesMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.db")

	db, err := Open(OpenOptions{Path: path, Module: "test", Migrations: testMigrations()})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`INSERT INTO things (name, kind) VALUES ('a', 'b')`)
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM schema_migrations WHERE module = 'test'`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestOpenIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.db")
	opts := OpenOptions{Path: path, Module: "test", Migrations: testMigrations()}

	db, err := Open(opts)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(opts)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM schema_migrations WHERE module = 'test'`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestOpenModulesAreIndependent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.db")

	db, err := Open(OpenOptions{Path: path, Module: "a", Migrations: []Migration{
		{Version: 1, Name: "create_a", SQL: `CREATE TABLE a_rows (id INTEGER PRIMARY KEY);`},
	}})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(OpenOptions{Path: path, Module: "b", Migrations: []Migration{
		{Version: 1, Name: "create_b", SQL: `CREATE TABLE b_rows (id INTEGER PRIMARY KEY);`},
	}})
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestOpenBadMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.db")

	_, err := Open(OpenOptions{Path: path, Module: "bad", Migrations: []Migration{
		{Version: 1, Name: "broken", SQL: `CREATE TABL nope;`},
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMigrate)
}
