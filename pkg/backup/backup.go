// Package backup moves the encrypted vault file in and out of the data
// directory.
//
// Transfers are byte-for-byte: nothing here decrypts, parses or validates
// the blob. A vault imported from another PIN simply fails to open later.
//
// Security:
//   - Destination files are written with mode 0600, directories with 0700
//   - Writes go through a temp file and rename, so a failed import never
//     leaves a half-written vault
package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/forest6511/pinvault/internal/fsutil"
)

// Snapshot file naming.
const (
	SnapshotPrefix     = "vault-"
	SnapshotSuffix     = ".enc"
	snapshotTimeFormat = "20060102T150405Z"
)

// Export copies the vault at vaultPath to dest, replacing dest.
func Export(vaultPath, dest string) error {
	if err := checkSource(vaultPath, ErrVaultNotFound); err != nil {
		return err
	}
	if err := checkDistinct(vaultPath, dest); err != nil {
		return err
	}
	if err := fsutil.CopyFile(vaultPath, dest, fsutil.FileMode); err != nil {
		return fmt.Errorf("backup: export failed: %w", err)
	}
	return nil
}

// Import copies src over the vault at vaultPath. Any existing vault is
// overwritten without inspection.
func Import(src, vaultPath string) error {
	if err := checkSource(src, ErrSourceNotFound); err != nil {
		return err
	}
	if err := checkDistinct(src, vaultPath); err != nil {
		return err
	}
	if err := fsutil.CopyFile(src, vaultPath, fsutil.FileMode); err != nil {
		return fmt.Errorf("backup: import failed: %w", err)
	}
	return nil
}

// Snapshot exports the vault into dir under a timestamped name and returns
// the path written.
func Snapshot(vaultPath, dir string) (string, error) {
	return snapshotAt(vaultPath, dir, time.Now())
}

func snapshotAt(vaultPath, dir string, now time.Time) (string, error) {
	base := SnapshotPrefix + now.UTC().Format(snapshotTimeFormat)
	dest := filepath.Join(dir, base+SnapshotSuffix)
	for i := 1; fsutil.Exists(dest); i++ {
		dest = filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, i, SnapshotSuffix))
	}
	if err := Export(vaultPath, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// List returns the snapshot files in dir, oldest first. A missing dir has
// no snapshots.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("backup: failed to list snapshots: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && strings.HasPrefix(name, SnapshotPrefix) && strings.HasSuffix(name, SnapshotSuffix) {
			names = append(names, name)
		}
	}
	// The timestamp format sorts lexically once the suffix is dropped, so
	// that a collision name "-1" sorts after its base.
	sort.Slice(names, func(i, j int) bool {
		return strings.TrimSuffix(names[i], SnapshotSuffix) < strings.TrimSuffix(names[j], SnapshotSuffix)
	})

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// Prune deletes all but the newest keep snapshots in dir and returns how
// many were removed. keep <= 0 disables pruning.
func Prune(dir string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	paths, err := List(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for len(paths)-removed > keep {
		if err := os.Remove(paths[removed]); err != nil {
			return removed, fmt.Errorf("backup: failed to prune snapshot: %w", err)
		}
		removed++
	}
	return removed, nil
}

func checkSource(path string, notFound error) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", notFound, path)
		}
		return fmt.Errorf("backup: cannot access %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}
	return nil
}

func checkDistinct(src, dst string) error {
	si, err := os.Stat(src)
	if err != nil {
		return nil
	}
	di, err := os.Stat(dst)
	if err != nil {
		return nil
	}
	if os.SameFile(si, di) {
		return ErrSameFile
	}
	return nil
}
