package db

import (
	"errors"
	"io/fs"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactDSN(t *testing.T) {
	got := redactDSN("postgres://app:hunter2@db:5432/classified?sslmode=disable")
	assert.NotContains(t, got, "hunter2")
	assert.Contains(t, got, "app:")
	assert.Contains(t, got, "@db:5432/classified")

	assert.Equal(t, "(invalid DATABASE_URL)", redactDSN("postgres://%zz"))
}

func TestExtractDBName(t *testing.T) {
	u, err := url.Parse("postgres://localhost/classified?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, "classified", extractDBName(u))
	assert.Equal(t, "", extractDBName(nil))
}

func TestIsDatabaseDoesNotExist(t *testing.T) {
	assert.True(t, isDatabaseDoesNotExist(errors.New(`pq: database "classified" does not exist`)))
	assert.False(t, isDatabaseDoesNotExist(errors.New("connection refused")))
	assert.False(t, isDatabaseDoesNotExist(nil))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrations, migrationDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		b, err := fs.ReadFile(migrations, migrationDir+"/"+e.Name())
		require.NoError(t, err)
		assert.Contains(t, string(b), "-- +goose Up", e.Name())
		assert.Contains(t, string(b), "-- +goose Down", e.Name())
	}
}
