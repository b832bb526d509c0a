package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileLock is an exclusive advisory lock on a file, held until Unlock.
type FileLock struct {
	f *os.File
}

// Lock blocks until it holds an exclusive lock on path, creating the
// file if needed.
func Lock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, FileMode)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", filepath.Base(path), err)
	}
	return &FileLock{f: f}, nil
}

// Unlock releases the lock and closes the file.
func (l *FileLock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
