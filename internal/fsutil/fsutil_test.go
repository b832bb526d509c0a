package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "vault.enc")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), FileMode))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), FileMode))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(FileMode), info.Mode().Perm())
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.enc")
	dst := filepath.Join(dir, "out", "dst.enc")
	payload := []byte{0x00, 0x80, 0xff, 'g', 'A'}
	require.NoError(t, os.WriteFile(src, payload, FileMode))

	require.NoError(t, CopyFile(src, dst, FileMode))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	err = CopyFile(filepath.Join(dir, "missing"), dst, FileMode)
	assert.True(t, os.IsNotExist(err))
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, Exists(dir))
	assert.False(t, Exists(filepath.Join(dir, "nope")))
}

func TestLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.lock")

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := Lock(path)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, l.Unlock())
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestUnlockNil(t *testing.T) {
	var l *FileLock
	assert.NoError(t, l.Unlock())
}
