// Package fsutil holds the file primitives shared by the vault components:
// whole-file atomic replacement and an advisory inter-process lock.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Permission bits for everything pinvault writes.
const (
	FileMode = 0600 // Owner read/write only
	DirMode  = 0700 // Owner read/write/execute only
)

// WriteFileAtomic replaces path with data: it writes a temp file in the
// same directory, fsyncs it, renames it over path and fsyncs the directory.
// A crash leaves either the old or the new content, never a mix.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}

	_ = syncDir(dir)
	return nil
}

// CopyFile copies src byte-for-byte over dst using WriteFileAtomic.
func CopyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	return WriteFileAtomic(dst, data, perm)
}

// Exists reports whether path exists. Any stat error other than
// not-exist counts as existing.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
