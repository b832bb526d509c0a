package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeVault(t *testing.T, dir string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, "vault.enc")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestExportCopiesBytes(t *testing.T) {
	dir := t.TempDir()
	blob := []byte("gAAAAABopaque-token")
	vaultPath := writeVault(t, dir, blob)
	dest := filepath.Join(t.TempDir(), "nested", "backup.enc")

	require.NoError(t, Export(vaultPath, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestExportWithoutVault(t *testing.T) {
	dir := t.TempDir()
	err := Export(filepath.Join(dir, "vault.enc"), filepath.Join(dir, "out.enc"))
	assert.ErrorIs(t, err, ErrVaultNotFound)
	assert.NoFileExists(t, filepath.Join(dir, "out.enc"))
}

func TestExportOverwritesDestination(t *testing.T) {
	dir := t.TempDir()
	vaultPath := writeVault(t, dir, []byte("new"))
	dest := filepath.Join(dir, "out.enc")
	require.NoError(t, os.WriteFile(dest, []byte("old and longer"), 0600))

	require.NoError(t, Export(vaultPath, dest))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestImportMissingSource(t *testing.T) {
	dir := t.TempDir()
	vaultPath := writeVault(t, dir, []byte("current"))

	err := Import(filepath.Join(dir, "nope.enc"), vaultPath)
	assert.ErrorIs(t, err, ErrSourceNotFound)

	got, err := os.ReadFile(vaultPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("current"), got, "vault untouched")
}

func TestImportRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	err := Import(t.TempDir(), filepath.Join(dir, "vault.enc"))
	assert.ErrorIs(t, err, ErrNotRegularFile)
}

func TestImportSameFile(t *testing.T) {
	dir := t.TempDir()
	vaultPath := writeVault(t, dir, []byte("x"))
	assert.ErrorIs(t, Import(vaultPath, vaultPath), ErrSameFile)
	assert.ErrorIs(t, Export(vaultPath, vaultPath), ErrSameFile)
}

func TestExportImportRestoresCorruptedVault(t *testing.T) {
	dir := t.TempDir()
	blob := []byte("sealed-notes")
	vaultPath := writeVault(t, dir, blob)
	backupPath := filepath.Join(t.TempDir(), "backup.enc")

	require.NoError(t, Export(vaultPath, backupPath))
	require.NoError(t, os.WriteFile(vaultPath, []byte("corrupted"), 0600))
	require.NoError(t, Import(backupPath, vaultPath))

	got, err := os.ReadFile(vaultPath)
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestImportCreatesVault(t *testing.T) {
	src := writeVault(t, t.TempDir(), []byte("foreign"))
	vaultPath := filepath.Join(t.TempDir(), "data", "vault.enc")

	require.NoError(t, Import(src, vaultPath))
	got, err := os.ReadFile(vaultPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("foreign"), got)
}

func TestSnapshotNaming(t *testing.T) {
	vaultPath := writeVault(t, t.TempDir(), []byte("v1"))
	dir := filepath.Join(t.TempDir(), "backups")
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("CET", 3600))

	p1, err := snapshotAt(vaultPath, dir, at)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "vault-20260304T040607Z.enc"), p1)

	p2, err := snapshotAt(vaultPath, dir, at)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "vault-20260304T040607Z-1.enc"), p2)

	got, err := os.ReadFile(p2)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
}

func TestSnapshotWithoutVault(t *testing.T) {
	_, err := Snapshot(filepath.Join(t.TempDir(), "vault.enc"), t.TempDir())
	assert.ErrorIs(t, err, ErrVaultNotFound)
}

func TestListAndPrune(t *testing.T) {
	vaultPath := writeVault(t, t.TempDir(), []byte("v"))
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0600))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var want []string
	for i := 0; i < 4; i++ {
		p, err := snapshotAt(vaultPath, dir, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		want = append(want, p)
	}

	got, err := List(dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	removed, err := Prune(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	got, err = List(dir)
	require.NoError(t, err)
	assert.Equal(t, want[2:], got)
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))

	removed, err = Prune(dir, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestListMissingDir(t *testing.T) {
	got, err := List(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, got)
}
