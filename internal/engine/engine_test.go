package engine

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih-ucgun/forgeguard/internal/core"
	"github.com/melih-ucgun/forgeguard/internal/discovery"
	"github.com/melih-ucgun/forgeguard/internal/metrics"
	"github.com/melih-ucgun/forgeguard/internal/preprocess"
	"github.com/melih-ucgun/forgeguard/internal/state"
)

// countingFS counts writes per path and can fail reads, or the nth write to a
// path.
type countingFS struct {
	core.RealFS

	mu          sync.Mutex
	writes      map[string]int
	failRead    map[string]bool
	failOnWrite map[string]int
}

func newCountingFS() *countingFS {
	return &countingFS{
		writes:      map[string]int{},
		failRead:    map[string]bool{},
		failOnWrite: map[string]int{},
	}
}

func (f *countingFS) ReadFile(name string) ([]byte, error) {
	if f.failRead[name] {
		return nil, fs.ErrPermission
	}
	return f.RealFS.ReadFile(name)
}

func (f *countingFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	f.mu.Lock()
	f.writes[name]++
	n := f.writes[name]
	f.mu.Unlock()

	if f.failOnWrite[name] == n {
		return errors.New("read-only filesystem")
	}
	return f.RealFS.WriteFile(name, data, perm)
}

func (f *countingFS) totalWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.writes {
		total += n
	}
	return total
}

type recorder struct {
	txs []state.Transaction
}

func (r *recorder) AddTransaction(tx state.Transaction) error {
	r.txs = append(r.txs, tx)
	return nil
}

func setup(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return root
}

func read(t *testing.T, root, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, name))
	require.NoError(t, err)
	return string(data)
}

var upper = preprocess.Func(func(_ string, content []byte) ([]byte, error) {
	return bytes.ToUpper(content), nil
})

func task(name string, fn func(ctx context.Context) (core.Result, error)) Task {
	return TaskFunc{TaskName: name, Fn: fn}
}

func TestRunTransacted_DownstreamFailureRestores(t *testing.T) {
	root := setup(t, map[string]string{"A.txt": "foo", "B.txt": "bar"})
	rec := &recorder{}
	r := NewRunner(nil, nil, rec)

	var seen []string
	_, err := r.RunTransacted(context.Background(), root, discovery.HasSuffix(".txt"), upper,
		task("coverage", func(context.Context) (core.Result, error) {
			seen = append(seen, read(t, root, "A.txt"), read(t, root, "B.txt"))
			return core.Result{}, errors.New("boom")
		}))

	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())

	var derr *core.DownstreamTaskError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "coverage", derr.Task)

	assert.Equal(t, []string{"FOO", "BAR"}, seen, "task sees the mutated files")
	assert.Equal(t, "foo", read(t, root, "A.txt"))
	assert.Equal(t, "bar", read(t, root, "B.txt"))

	require.Len(t, rec.txs, 1)
	assert.Equal(t, state.StatusFailed, rec.txs[0].Status)
	assert.Equal(t, 2, rec.txs[0].Files)
	assert.Equal(t, 2, rec.txs[0].Rewritten)
}

func TestRunTransacted_Success(t *testing.T) {
	root := setup(t, map[string]string{"a.sol": "contract A {}", "nested/b.sol": "contract B {}", "readme.md": "x"})
	rec := &recorder{}
	r := NewRunner(nil, nil, rec)

	res, err := r.RunTransacted(context.Background(), root, discovery.HasSuffix(".sol"), upper,
		task("coverage", func(context.Context) (core.Result, error) {
			assert.Equal(t, "CONTRACT B {}", read(t, root, "nested/b.sol"))
			assert.Equal(t, "x", read(t, root, "readme.md"))
			return core.SuccessChange("report written"), nil
		}))

	require.NoError(t, err)
	assert.Equal(t, "report written", res.Message)
	assert.Equal(t, "contract A {}", read(t, root, "a.sol"))
	assert.Equal(t, "contract B {}", read(t, root, "nested/b.sol"))

	require.Len(t, rec.txs, 1)
	assert.Equal(t, state.StatusSuccess, rec.txs[0].Status)
	assert.NotEmpty(t, rec.txs[0].ID)
}

func TestRunTransacted_CaptureFailureMutatesNothing(t *testing.T) {
	root := setup(t, map[string]string{"A.txt": "foo", "C.txt": "secret"})
	fsys := newCountingFS()
	fsys.failRead[filepath.Join(root, "C.txt")] = true

	r := NewRunner(fsys, nil, nil)
	called := false
	_, err := r.RunTransacted(context.Background(), root, nil, upper,
		task("coverage", func(context.Context) (core.Result, error) {
			called = true
			return core.Result{}, nil
		}))

	var rerr *core.SnapshotReadError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, filepath.Join(root, "C.txt"), rerr.Path)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.False(t, called)
	assert.Zero(t, fsys.totalWrites())
	assert.Equal(t, "foo", read(t, root, "A.txt"))
}

func TestRunTransacted_EmptySetRunsTaskOnce(t *testing.T) {
	root := setup(t, map[string]string{"notes.md": "x"})
	fsys := newCountingFS()
	r := NewRunner(fsys, nil, nil)

	calls := 0
	res, err := r.RunTransacted(context.Background(), root, discovery.HasSuffix(".sol"), upper,
		task("coverage", func(context.Context) (core.Result, error) {
			calls++
			return core.SuccessNoChange("nothing to cover"), nil
		}))

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "nothing to cover", res.Message)
	assert.Zero(t, fsys.totalWrites())
}

func TestRunTransacted_PipelineFailureSkipsTaskAndRestores(t *testing.T) {
	root := setup(t, map[string]string{"A.txt": "foo", "B.txt": "bar"})
	failing := preprocess.Func(func(path string, content []byte) ([]byte, error) {
		if strings.HasSuffix(path, "B.txt") {
			return nil, errors.New("unbalanced braces")
		}
		return bytes.ToUpper(content), nil
	})

	rec := &recorder{}
	r := NewRunner(nil, nil, rec)
	called := false
	_, err := r.RunTransacted(context.Background(), root, nil, failing,
		task("coverage", func(context.Context) (core.Result, error) {
			called = true
			return core.Result{}, nil
		}))

	var perr *core.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, filepath.Join(root, "B.txt"), perr.Path)
	assert.False(t, called)
	assert.Equal(t, "foo", read(t, root, "A.txt"))
	assert.Equal(t, "bar", read(t, root, "B.txt"))

	require.Len(t, rec.txs, 1)
	assert.Equal(t, 1, rec.txs[0].Rewritten)
	assert.Equal(t, state.StatusFailed, rec.txs[0].Status)
}

func TestRunTransacted_UnchangedFilesNotWritten(t *testing.T) {
	root := setup(t, map[string]string{"A.txt": "FOO", "B.txt": "bar"})
	fsys := newCountingFS()
	r := NewRunner(fsys, nil, nil)

	_, err := r.RunTransacted(context.Background(), root, nil, upper,
		task("coverage", func(context.Context) (core.Result, error) { return core.Result{}, nil }))
	require.NoError(t, err)

	// A: restore only. B: mutate + restore.
	assert.Equal(t, 1, fsys.writes[filepath.Join(root, "A.txt")])
	assert.Equal(t, 2, fsys.writes[filepath.Join(root, "B.txt")])
}

func TestRunTransacted_RestoreFailureIsComposite(t *testing.T) {
	root := setup(t, map[string]string{"A.txt": "foo", "B.txt": "bar"})
	a := filepath.Join(root, "A.txt")
	fsys := newCountingFS()
	fsys.failOnWrite[a] = 2 // the restore write

	rec := &recorder{}
	r := NewRunner(fsys, nil, rec)
	_, err := r.RunTransacted(context.Background(), root, nil, upper,
		task("coverage", func(context.Context) (core.Result, error) {
			return core.Result{}, errors.New("boom")
		}))

	var terr *core.TransactionError
	require.ErrorAs(t, err, &terr)
	assert.EqualError(t, terr.Outcome, "boom")
	assert.Equal(t, []string{a}, core.UnrestoredPaths(err))

	var derr *core.DownstreamTaskError
	assert.ErrorAs(t, err, &derr, "downstream outcome stays reachable")

	assert.Equal(t, "FOO", read(t, root, "A.txt"), "left mutated")
	assert.Equal(t, "bar", read(t, root, "B.txt"))

	require.Len(t, rec.txs, 1)
	assert.Equal(t, state.StatusRestoreFailed, rec.txs[0].Status)
	assert.Equal(t, []string{a}, rec.txs[0].Unrestored)
}

func TestRunTransacted_RestoreFailureWithoutOutcome(t *testing.T) {
	root := setup(t, map[string]string{"A.txt": "foo"})
	a := filepath.Join(root, "A.txt")
	fsys := newCountingFS()
	fsys.failOnWrite[a] = 2

	r := NewRunner(fsys, nil, nil)
	res, err := r.RunTransacted(context.Background(), root, nil, upper,
		task("coverage", func(context.Context) (core.Result, error) { return core.SuccessChange("ok"), nil }))

	var terr *core.TransactionError
	require.ErrorAs(t, err, &terr)
	assert.NoError(t, terr.Outcome)
	assert.True(t, res.Failed)
}

func TestRunTransacted_FailedRestoreOfUntouchedFileIsNotReported(t *testing.T) {
	root := setup(t, map[string]string{"A.txt": "foo"})
	a := filepath.Join(root, "A.txt")
	fsys := newCountingFS()
	fsys.failOnWrite[a] = 1 // identity never writes, so this is the restore

	rec := &recorder{}
	r := NewRunner(fsys, nil, rec)
	_, err := r.RunTransacted(context.Background(), root, nil, preprocess.Identity,
		task("coverage", func(context.Context) (core.Result, error) { return core.SuccessChange("ok"), nil }))

	require.NoError(t, err)
	assert.Empty(t, core.UnrestoredPaths(err))
	assert.Equal(t, "foo", read(t, root, "A.txt"))
	require.Len(t, rec.txs, 1)
	assert.Equal(t, state.StatusSuccess, rec.txs[0].Status)
}

func TestRunTransacted_RestoresDeletedDirectory(t *testing.T) {
	root := setup(t, map[string]string{"sub/deep/A.txt": "foo", "B.txt": "bar"})

	r := NewRunner(nil, nil, nil)
	_, err := r.RunTransacted(context.Background(), root, nil, upper,
		task("clean", func(context.Context) (core.Result, error) {
			return core.SuccessChange("cleaned"), os.RemoveAll(filepath.Join(root, "sub"))
		}))

	require.NoError(t, err)
	assert.Equal(t, "foo", read(t, root, "sub/deep/A.txt"))
	assert.Equal(t, "bar", read(t, root, "B.txt"))
}

func TestRunTransacted_PanicStillRestores(t *testing.T) {
	root := setup(t, map[string]string{"A.txt": "foo"})
	rec := &recorder{}
	r := NewRunner(nil, nil, rec)

	assert.PanicsWithValue(t, "toolchain crashed", func() {
		_, _ = r.RunTransacted(context.Background(), root, nil, upper,
			task("coverage", func(context.Context) (core.Result, error) {
				panic("toolchain crashed")
			}))
	})

	assert.Equal(t, "foo", read(t, root, "A.txt"))
	require.Len(t, rec.txs, 1)
	assert.Equal(t, state.StatusFailed, rec.txs[0].Status)

	// The runner is usable afterwards.
	_, err := r.RunTransacted(context.Background(), root, nil, nil,
		task("coverage", func(context.Context) (core.Result, error) { return core.Result{}, nil }))
	assert.NoError(t, err)
}

func TestRunTransacted_DiscoveryError(t *testing.T) {
	r := NewRunner(nil, nil, nil)
	called := false
	_, err := r.RunTransacted(context.Background(), filepath.Join(t.TempDir(), "missing"), nil, upper,
		task("coverage", func(context.Context) (core.Result, error) {
			called = true
			return core.Result{}, nil
		}))

	var derr *core.DiscoveryError
	require.ErrorAs(t, err, &derr)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.False(t, called)
}

func TestRunTransacted_CancelledBeforeMutation(t *testing.T) {
	root := setup(t, map[string]string{"A.txt": "foo"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(nil, nil, nil)
	_, err := r.RunTransacted(ctx, root, nil, upper,
		task("coverage", func(context.Context) (core.Result, error) { return core.Result{}, nil }))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "foo", read(t, root, "A.txt"))
}

func TestRunTransacted_KeepsExistingDownstreamError(t *testing.T) {
	root := setup(t, map[string]string{"A.txt": "foo"})
	inner := core.NewDownstreamTaskError("hardhat", errors.New("exit status 1"))

	r := NewRunner(nil, nil, nil)
	_, err := r.RunTransacted(context.Background(), root, nil, nil,
		task("coverage", func(context.Context) (core.Result, error) { return core.Result{}, inner }))

	assert.Same(t, inner, err)
}

func TestRunTransacted_Serialized(t *testing.T) {
	root := setup(t, map[string]string{"A.txt": "foo"})
	r := NewRunner(nil, nil, nil)

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.RunTransacted(context.Background(), root, nil, upper,
				task("coverage", func(context.Context) (core.Result, error) {
					mu.Lock()
					active++
					if active > maxSeen {
						maxSeen = active
					}
					mu.Unlock()

					time.Sleep(5 * time.Millisecond)

					mu.Lock()
					active--
					mu.Unlock()
					return core.Result{}, nil
				}))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, "foo", read(t, root, "A.txt"))
}

func TestRunTransacted_Metrics(t *testing.T) {
	root := setup(t, map[string]string{"A.txt": "foo", "B.txt": "BAR"})
	r := NewRunner(nil, nil, nil)
	r.Metrics = metrics.New()

	_, err := r.RunTransacted(context.Background(), root, nil, upper,
		task("coverage", func(context.Context) (core.Result, error) { return core.Result{}, nil }))
	require.NoError(t, err)
	_, err = r.RunTransacted(context.Background(), root, nil, upper,
		task("coverage", func(context.Context) (core.Result, error) { return core.Result{}, errors.New("boom") }))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.TransactionsTotal.WithLabelValues("coverage", state.StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.TransactionsTotal.WithLabelValues("coverage", state.StatusFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Metrics.FilesRewrittenTotal))
}
