package db

import (
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "with .sql suffix", input: "001_init.sql", expected: "001_init"},
		{name: "uppercase suffix", input: "002_add_index.SQL", expected: "002_add_index"},
		{name: "already bare", input: "003_backfill", expected: "003_backfill"},
		{name: "empty string", input: "", expected: ""},
		{name: "just the suffix", input: ".sql", expected: ".sql"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeVersion(tt.input))
		})
	}
}

func TestFindMigrationsSortsAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"002_add_index.sql": {Data: []byte("-- idx")},
		"001_init.sql":      {Data: []byte("-- init")},
		"README.md":         {Data: []byte("ignored")},
		"010_backfill.sql":  {Data: []byte("-- fill")},
	}

	migrations, err := findMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	assert.Equal(t, "001_init", migrations[0].Version)
	assert.Equal(t, "002_add_index", migrations[1].Version)
	assert.Equal(t, "010_backfill", migrations[2].Version)
	assert.Equal(t, "001_init.sql", migrations[0].Name)
}

func TestSchemaFSShipsCoreTables(t *testing.T) {
	migrations, err := findMigrations(SchemaFS())
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	var ddl strings.Builder
	for _, m := range migrations {
		content, err := fs.ReadFile(SchemaFS(), m.Name)
		require.NoError(t, err)
		ddl.Write(content)
	}

	for _, table := range []string{"raw_messages", "work_items", "suggestions", "reports", "tickets"} {
		assert.Contains(t, ddl.String(), "CREATE TABLE IF NOT EXISTS "+table, "missing DDL for %s", table)
	}
}
