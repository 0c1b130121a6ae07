package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLatestVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000001_create_ledger.up.sql",
		"000001_create_ledger.down.sql",
		"000002_add_purchase_index.up.sql",
		"000010_add_sales_view.up.sql",
		"README.md",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("-- noop"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "000099_dir.up.sql"), 0o700))

	latest, err := getLatestVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 10, latest)
}

func TestGetLatestVersion_EmptyFolder(t *testing.T) {
	_, err := getLatestVersion(t.TempDir())
	assert.Error(t, err)
}

func TestResolveMigrationFolder(t *testing.T) {
	abs := t.TempDir()
	ms := NewMigrationService(nil, &MigrationConfig{MigrationFolderPath: abs})
	assert.Equal(t, abs, ms.resolveMigrationFolder())

	wd, err := os.Getwd()
	require.NoError(t, err)
	ms = NewMigrationService(nil, &MigrationConfig{MigrationFolderPath: "does/not/exist"})
	assert.Equal(t, filepath.Join(wd, "does/not/exist"), ms.resolveMigrationFolder())
}
