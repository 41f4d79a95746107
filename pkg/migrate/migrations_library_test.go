package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsCarryLoanConstraints(t *testing.T) {
	source, err := Source("")
	require.NoError(t, err)

	matches, err := fs.Glob(source, "*_create_library_tables.sql")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	raw, err := fs.ReadFile(source, matches[0])
	require.NoError(t, err)
	body := string(raw)
	for _, stmt := range []string{
		"CREATE TABLE IF NOT EXISTS loans",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_open_item ON loans (item_id) WHERE returned_at IS NULL",
		"CHECK (due_at >= issued_at)",
		"DROP TABLE IF EXISTS loans",
	} {
		assert.Contains(t, body, stmt)
	}
	require.NoError(t, Validate(source))
}

func TestValidateRejects(t *testing.T) {
	full := "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	cases := map[string]fstest.MapFS{
		"bad name": {
			"001_bad.sql": {Data: []byte(full)},
		},
		"duplicate version": {
			"20240101000000_a.sql": {Data: []byte(full)},
			"20240101000000_b.sql": {Data: []byte(full)},
		},
		"missing down": {
			"20240101000000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		},
	}
	for name, source := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Validate(source))
		})
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	path, err := createSQLMigration(dir, "Add Loan Notes!", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20240301093000_add_loan_notes.sql"), path)
	require.NoError(t, ValidateDir(dir))

	_, err = createSQLMigration(dir, "add loan notes", now)
	assert.Error(t, err, "same second and slug must not overwrite")

	_, err = createSQLMigration(dir, "!!!", now)
	assert.Error(t, err)
}

func TestSourceRejectsMissingDir(t *testing.T) {
	_, err := Source(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "x.sql")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = Source(file)
	assert.Error(t, err)
}

func TestNewMigratorRequiresDB(t *testing.T) {
	_, err := NewMigrator(nil, fstest.MapFS{})
	assert.Error(t, err)
}
