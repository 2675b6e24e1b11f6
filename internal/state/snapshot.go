package state

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/melih-ucgun/forgeguard/internal/core"
)

// FileRecord is the content of one file as it was before the transaction
// touched it. It does not change after capture.
type FileRecord struct {
	Path    string
	Mode    os.FileMode
	content []byte
}

// Content returns a copy of the captured bytes.
func (r FileRecord) Content() []byte {
	return append([]byte(nil), r.content...)
}

// Snapshot maps path to record for one transaction. It is restored once and
// then released.
type Snapshot struct {
	records  map[string]FileRecord
	released bool
}

// Len returns the number of captured files.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Paths returns the captured paths in lexical order.
func (s *Snapshot) Paths() []string {
	if s == nil {
		return nil
	}
	paths := make([]string, 0, len(s.records))
	for p := range s.records {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Record looks up the captured record for path.
func (s *Snapshot) Record(path string) (FileRecord, bool) {
	if s == nil {
		return FileRecord{}, false
	}
	r, ok := s.records[path]
	return r, ok
}

// Release drops the captured content. A released snapshot restores nothing.
func (s *Snapshot) Release() {
	if s == nil {
		return
	}
	s.records = nil
	s.released = true
}

// SnapshotStore captures and restores file contents through FS.
type SnapshotStore struct {
	FS core.FileSystem
}

func NewSnapshotStore(fs core.FileSystem) *SnapshotStore {
	if fs == nil {
		fs = &core.RealFS{}
	}
	return &SnapshotStore{FS: fs}
}

// Capture reads every path. Either every file is captured or the first
// failure is returned as *core.SnapshotReadError and no snapshot exists.
func (st *SnapshotStore) Capture(ctx context.Context, paths []string) (*Snapshot, error) {
	snap := &Snapshot{records: make(map[string]FileRecord, len(paths))}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, seen := snap.records[path]; seen {
			continue
		}

		info, err := st.FS.Stat(path)
		if err != nil {
			return nil, &core.SnapshotReadError{Path: path, Err: err}
		}
		if info.IsDir() {
			return nil, &core.SnapshotReadError{Path: path, Err: fmt.Errorf("is a directory")}
		}
		// Reading a fifo or device could block forever.
		if !info.Mode().IsRegular() {
			return nil, &core.SnapshotReadError{Path: path, Err: fmt.Errorf("not a regular file")}
		}

		data, err := st.FS.ReadFile(path)
		if err != nil {
			return nil, &core.SnapshotReadError{Path: path, Err: err}
		}

		snap.records[path] = FileRecord{
			Path:    path,
			Mode:    info.Mode().Perm(),
			content: data,
		}
	}

	return snap, nil
}

// Restore writes every record back, recreating parent directories removed
// since capture. It keeps going past failures and returns a single
// *core.SnapshotWriteError naming each file it could not put back. A file
// whose write fails but whose bytes still match the record is not a failure.
//
// There is no context parameter: restore has to run after the caller's
// context is already cancelled.
func (st *SnapshotStore) Restore(snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	if snap.released {
		return fmt.Errorf("snapshot already released")
	}

	var failed *core.SnapshotWriteError
	for _, path := range snap.Paths() {
		if err := st.restoreOne(snap.records[path]); err != nil {
			if failed == nil {
				failed = &core.SnapshotWriteError{Errs: make(map[string]error)}
			}
			failed.Paths = append(failed.Paths, path)
			failed.Errs[path] = err
		}
	}

	if failed != nil {
		return failed
	}
	return nil
}

func (st *SnapshotStore) restoreOne(rec FileRecord) error {
	err := st.FS.MkdirAll(filepath.Dir(rec.Path), 0755)
	if err == nil {
		err = st.FS.WriteFile(rec.Path, rec.content, rec.Mode)
	}
	if err == nil {
		return nil
	}
	if current, rerr := st.FS.ReadFile(rec.Path); rerr == nil && bytes.Equal(current, rec.content) {
		return nil
	}
	return err
}
