package migrate

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_SortsByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_emails.sql":  {Data: []byte("CREATE TABLE b (id int);")},
		"migrations/0001_exports.sql": {Data: []byte("CREATE TABLE a (id int);")},
		"migrations/README.md":        {Data: []byte("ignored")},
	}

	got, err := load(fsys)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0001_exports", got[0].version)
	assert.Equal(t, "0002_emails", got[1].version)
	assert.Contains(t, got[1].sql, "CREATE TABLE b")
}

func TestLoad_RejectsEmptyMigration(t *testing.T) {
	fsys := fstest.MapFS{"migrations/0001_blank.sql": {Data: []byte("  \n")}}

	_, err := load(fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001_blank.sql is empty")
}

func TestEmbeddedMigrationsLoad(t *testing.T) {
	got, err := load(migrationsFS)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "0001_exports", got[0].version)
}
