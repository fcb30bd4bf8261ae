//go:build linux || darwin

package shm

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSize = 4096

func TestMapRegionShared(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region", "state.shm")
	ctx := context.Background()

	first, err := MapRegion(ctx, MapOptions{Path: path, Size: testSize, Create: true, DirMode: 0o775, FileMode: 0o664})
	require.NoError(t, err)
	defer func() { _ = UnmapRegion(ctx, first) }()

	second, err := MapRegion(ctx, MapOptions{Path: path, Size: testSize})
	require.NoError(t, err)
	defer func() { _ = UnmapRegion(ctx, second) }()

	require.Len(t, first.Addr, testSize)
	assert.NotEqual(t, first.Pointer(), second.Pointer())

	StoreUint64(first.Pointer(), 41)
	assert.Equal(t, uint64(42), AddUint64(second.Pointer(), 1))
	assert.Equal(t, uint64(42), LoadUint64(first.Pointer()))

	word := unsafe.Add(first.Pointer(), 8)
	assert.True(t, CompareAndSwapUint32(word, 0, 1))
	assert.False(t, CompareAndSwapUint32(unsafe.Add(second.Pointer(), 8), 0, 1))
	assert.Equal(t, uint32(1), LoadUint32(unsafe.Add(second.Pointer(), 8)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(testSize), info.Size())
}

func TestUnmapRegionTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.shm")
	ctx := context.Background()
	r, err := MapRegion(ctx, MapOptions{Path: path, Size: testSize, Create: true, DirMode: 0o775, FileMode: 0o600})
	require.NoError(t, err)

	assert.NoError(t, UnmapRegion(ctx, r))
	assert.NoError(t, UnmapRegion(ctx, r))
	assert.Nil(t, r.Pointer())
	assert.NoError(t, UnmapRegion(ctx, nil))
}

func TestMapRegionErrors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	_, err := MapRegion(ctx, MapOptions{Path: filepath.Join(dir, "missing.shm"), Size: testSize})
	assert.ErrorIs(t, err, ErrOpen)

	short := filepath.Join(dir, "short.shm")
	require.NoError(t, os.WriteFile(short, []byte("abc"), 0o600))
	_, err = MapRegion(ctx, MapOptions{Path: short, Size: testSize})
	assert.ErrorIs(t, err, ErrTooSmall)

	_, err = MapRegion(ctx, MapOptions{Path: short, Size: 0})
	assert.ErrorIs(t, err, ErrMap)
}

func TestEnsureDir(t *testing.T) {
	base := t.TempDir()

	dir := filepath.Join(base, "a", "b")
	require.NoError(t, EnsureDir(dir, 0o775))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o775), info.Mode().Perm())

	// existing and writable
	assert.NoError(t, EnsureDir(dir, 0o700))

	file := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	assert.ErrorIs(t, EnsureDir(file, 0o775), ErrDirectory)

	if os.Geteuid() != 0 {
		locked := filepath.Join(base, "locked")
		require.NoError(t, os.Mkdir(locked, 0o500))
		assert.ErrorIs(t, EnsureDir(locked, 0o775), ErrDirectory)
		assert.ErrorIs(t, EnsureDir(filepath.Join(locked, "child"), 0o775), ErrDirectory)
	}
}

func TestMonotonicNanos(t *testing.T) {
	a := MonotonicNanos()
	b := MonotonicNanos()
	assert.NotZero(t, a)
	assert.GreaterOrEqual(t, b, a)
}
