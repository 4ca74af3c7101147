package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pgx5://u:p@db:5432/chat", DriverURL("postgres://u:p@db:5432/chat"))
	assert.Equal(t, "pgx5://u:p@db:5432/chat", DriverURL("postgresql://u:p@db:5432/chat"))
	assert.Equal(t, "pgx5://db/chat", DriverURL("pgx5://db/chat"))
}

func TestEmbeddedFiles(t *testing.T) {
	t.Parallel()

	up, err := fs.ReadFile(files, "sql/0001_init.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS outbox_messages")

	_, err = fs.ReadFile(files, "sql/0001_init.down.sql")
	require.NoError(t, err)
}
