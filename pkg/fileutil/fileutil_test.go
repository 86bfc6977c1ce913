package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func partials(t *testing.T, dir string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "*"+partialSuffix))
	require.NoError(t, err)
	return files
}

func TestIsNonEmpty(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	full := filepath.Join(dir, "full")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))

	assert.False(t, IsNonEmpty(filepath.Join(dir, "absent")))
	assert.False(t, IsNonEmpty(empty))
	assert.True(t, IsNonEmpty(full))
}

func TestWriteAtomic(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	path := filepath.Join(dir, "burstdb-0123.ds1c")

	err := WriteAtomic(path, func(f *os.File) error {
		_, err := f.WriteString("catalog")
		return err
	})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "catalog", string(got))
	assert.Empty(t, partials(t, dir))
}

func TestWriteAtomic_KeepsOldContentOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "burst_db.parquet")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	boom := errors.New("connection reset")
	err := WriteAtomic(path, func(f *os.File) error {
		_, _ = f.WriteString("half")
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
	assert.Empty(t, partials(t, dir))
}

func TestRemovePartial(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sources")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	stale := []string{
		filepath.Join(dir, "burstdb-0123.ds1c.42"+partialSuffix),
		filepath.Join(sub, "bucket_burst_db.parquet.7"+partialSuffix),
	}
	kept := filepath.Join(dir, "burstdb-0123.ds1c")
	for _, p := range append(stale, kept) {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	n, err := RemovePartial(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, p := range stale {
		assert.NoFileExists(t, p)
	}
	assert.FileExists(t, kept)
}

func TestRemovePartial_MissingDir(t *testing.T) {
	_, err := RemovePartial(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestLockSerializesHolders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "burstdb.lock")

	first, err := AcquireLock(path)
	require.NoError(t, err)

	var acquired atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		second, err := AcquireLock(path)
		if !assert.NoError(t, err) {
			return
		}
		acquired.Store(true)
		assert.NoError(t, second.Release())
	}()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, acquired.Load(), "second holder acquired the lock while the first held it")

	require.NoError(t, first.Release())
	<-done
	assert.True(t, acquired.Load())

	assert.NoError(t, first.Release(), "second Release")
}
