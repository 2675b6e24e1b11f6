package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih-ucgun/forgeguard/internal/core"
)

// faultyFS fails reads or writes for selected paths and otherwise hits disk.
type faultyFS struct {
	core.RealFS
	failRead  map[string]bool
	failWrite map[string]bool
}

func (f *faultyFS) ReadFile(name string) ([]byte, error) {
	if f.failRead[name] {
		return nil, os.ErrPermission
	}
	return f.RealFS.ReadFile(name)
}

func (f *faultyFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	if f.failWrite[name] {
		return errors.New("disk full")
	}
	return f.RealFS.WriteFile(name, data, perm)
}

func writeFiles(t *testing.T, dir string, files map[string]string) []string {
	t.Helper()
	var paths []string
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0640))
		paths = append(paths, p)
	}
	return paths
}

func TestSnapshotStore_CaptureRestore(t *testing.T) {
	dir := t.TempDir()
	paths := writeFiles(t, dir, map[string]string{
		"A.txt": "foo",
		"B.txt": "bar\r\nbaz",
	})

	store := NewSnapshotStore(&core.RealFS{})
	snap, err := store.Capture(context.Background(), paths)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())

	for _, p := range paths {
		require.NoError(t, os.WriteFile(p, []byte("mutated"), 0600))
	}

	require.NoError(t, store.Restore(snap))

	a, _ := os.ReadFile(filepath.Join(dir, "A.txt"))
	b, _ := os.ReadFile(filepath.Join(dir, "B.txt"))
	assert.Equal(t, "foo", string(a))
	assert.Equal(t, "bar\r\nbaz", string(b))

	info, err := os.Stat(filepath.Join(dir, "A.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())
}

func TestSnapshotStore_RecordIsImmutable(t *testing.T) {
	dir := t.TempDir()
	paths := writeFiles(t, dir, map[string]string{"A.txt": "foo"})

	snap, err := NewSnapshotStore(nil).Capture(context.Background(), paths)
	require.NoError(t, err)

	rec, ok := snap.Record(paths[0])
	require.True(t, ok)
	content := rec.Content()
	content[0] = 'X'

	again, _ := snap.Record(paths[0])
	assert.Equal(t, "foo", string(again.Content()))
}

func TestSnapshotStore_CaptureFailureIsAtomic(t *testing.T) {
	dir := t.TempDir()
	paths := writeFiles(t, dir, map[string]string{"A.txt": "foo", "C.txt": "secret"})
	unreadable := filepath.Join(dir, "C.txt")

	store := NewSnapshotStore(&faultyFS{failRead: map[string]bool{unreadable: true}})
	snap, err := store.Capture(context.Background(), paths)

	assert.Nil(t, snap)
	var readErr *core.SnapshotReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, unreadable, readErr.Path)
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestSnapshotStore_CaptureMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone.txt")

	_, err := NewSnapshotStore(nil).Capture(context.Background(), []string{missing})

	var readErr *core.SnapshotReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, missing, readErr.Path)
}

func TestSnapshotStore_CaptureHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	paths := writeFiles(t, dir, map[string]string{"A.txt": "foo"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSnapshotStore(nil).Capture(ctx, paths)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSnapshotStore_RestoreIsBestEffort(t *testing.T) {
	dir := t.TempDir()
	paths := writeFiles(t, dir, map[string]string{
		"A.txt": "foo",
		"B.txt": "bar",
		"C.txt": "baz",
	})
	a := filepath.Join(dir, "A.txt")
	b := filepath.Join(dir, "B.txt")
	c := filepath.Join(dir, "C.txt")

	fsys := &faultyFS{failWrite: map[string]bool{a: true, c: true}}
	store := NewSnapshotStore(fsys)

	snap, err := store.Capture(context.Background(), paths)
	require.NoError(t, err)

	for _, p := range paths {
		require.NoError(t, os.WriteFile(p, []byte("mutated"), 0640))
	}

	err = store.Restore(snap)

	var writeErr *core.SnapshotWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.ElementsMatch(t, []string{a, c}, writeErr.Paths)
	assert.Contains(t, err.Error(), "disk full")

	restored, _ := os.ReadFile(b)
	assert.Equal(t, "bar", string(restored), "healthy files are restored despite other failures")
}

func TestSnapshotStore_RestoreToleratesFailedWriteOfUnchangedFile(t *testing.T) {
	dir := t.TempDir()
	paths := writeFiles(t, dir, map[string]string{"A.txt": "foo", "B.txt": "bar"})
	a := filepath.Join(dir, "A.txt")
	b := filepath.Join(dir, "B.txt")

	store := NewSnapshotStore(&faultyFS{failWrite: map[string]bool{a: true, b: true}})
	snap, err := store.Capture(context.Background(), paths)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(b, []byte("mutated"), 0640))

	err = store.Restore(snap)
	var writeErr *core.SnapshotWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, []string{b}, writeErr.Paths, "A still holds its captured bytes")
}

func TestSnapshotStore_RestoreRecreatesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "contracts", "token")
	require.NoError(t, os.MkdirAll(sub, 0755))
	paths := writeFiles(t, sub, map[string]string{"Token.sol": "contract T {}"})

	store := NewSnapshotStore(nil)
	snap, err := store.Capture(context.Background(), paths)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Join(dir, "contracts")))
	require.NoError(t, store.Restore(snap))

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "contract T {}", string(data))
}

func TestSnapshotStore_CaptureRejectsNonRegularFile(t *testing.T) {
	dir := t.TempDir()
	paths := writeFiles(t, dir, map[string]string{"A.txt": "foo"})
	fifo := filepath.Join(dir, "pipe.txt")
	require.NoError(t, syscall.Mkfifo(fifo, 0640))

	snap, err := NewSnapshotStore(nil).Capture(context.Background(), append(paths, fifo))

	assert.Nil(t, snap)
	var readErr *core.SnapshotReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, fifo, readErr.Path)
	assert.ErrorContains(t, err, "not a regular file")
}

func TestSnapshot_ReleasePreventsSecondRestore(t *testing.T) {
	dir := t.TempDir()
	paths := writeFiles(t, dir, map[string]string{"A.txt": "foo"})

	store := NewSnapshotStore(nil)
	snap, err := store.Capture(context.Background(), paths)
	require.NoError(t, err)

	require.NoError(t, store.Restore(snap))
	snap.Release()

	assert.Equal(t, 0, snap.Len())
	assert.Error(t, store.Restore(snap))
}

func TestSnapshotStore_DuplicatePathsCapturedOnce(t *testing.T) {
	dir := t.TempDir()
	paths := writeFiles(t, dir, map[string]string{"A.txt": "foo"})

	snap, err := NewSnapshotStore(nil).Capture(context.Background(), append(paths, paths[0]))
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
}
