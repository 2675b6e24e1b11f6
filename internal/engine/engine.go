// Package engine runs a build step inside a file transaction: the matched
// files are captured, rewritten by a preprocess pipeline, handed to the step,
// and written back to their original content no matter how the step ends.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/melih-ucgun/forgeguard/internal/core"
	"github.com/melih-ucgun/forgeguard/internal/discovery"
	"github.com/melih-ucgun/forgeguard/internal/metrics"
	"github.com/melih-ucgun/forgeguard/internal/preprocess"
	"github.com/melih-ucgun/forgeguard/internal/state"
)

// Task is the downstream build step run while files are mutated.
type Task interface {
	Name() string
	Run(ctx context.Context) (core.Result, error)
}

// TaskFunc adapts a function to Task.
type TaskFunc struct {
	TaskName string
	Fn       func(ctx context.Context) (core.Result, error)
}

func (t TaskFunc) Name() string { return t.TaskName }

func (t TaskFunc) Run(ctx context.Context) (core.Result, error) { return t.Fn(ctx) }

// StateUpdater keeps the engine independent of where the log is stored.
type StateUpdater interface {
	AddTransaction(tx state.Transaction) error
}

// Runner executes transactions. Transactions issued through one Runner never
// overlap.
type Runner struct {
	FS       core.FileSystem
	Store    *state.SnapshotStore
	Log      core.Logger
	State    StateUpdater     // optional
	Metrics  *metrics.Metrics // optional
	ShowDiff bool

	mu sync.Mutex
}

// NewRunner builds a Runner over fsys. A nil fsys means the real filesystem,
// a nil log discards output.
func NewRunner(fsys core.FileSystem, log core.Logger, updater StateUpdater) *Runner {
	if fsys == nil {
		fsys = &core.RealFS{}
	}
	if log == nil {
		log = core.NopLogger{}
	}
	return &Runner{
		FS:    fsys,
		Store: state.NewSnapshotStore(fsys),
		Log:   log,
		State: updater,
	}
}

// RunTransacted discovers files under rootDir, rewrites them with pipeline,
// runs task and restores every file afterwards.
//
// Capture failures abort before anything is written. A pipeline failure skips
// the task but still restores. When restore itself fails the result is a
// *core.TransactionError naming the files left mutated.
func (r *Runner) RunTransacted(ctx context.Context, rootDir string, match discovery.Predicate, pipeline preprocess.Pipeline, task Task) (res core.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pipeline == nil {
		pipeline = preprocess.Identity
	}

	tx := state.Transaction{
		ID:        uuid.New().String(),
		Task:      task.Name(),
		Root:      rootDir,
		Timestamp: time.Now(),
		Status:    state.StatusSuccess,
	}
	log := r.Log.With("tx", tx.ID, "task", tx.Task)

	files, err := discovery.Discover(r.FS, rootDir, match)
	if err != nil {
		return core.Failure(err, "discovery failed"), err
	}
	tx.Files = len(files)

	if len(files) == 0 {
		log.Debug("No files matched, running task without a snapshot", "root", rootDir)
		res, err = r.runTask(ctx, task)
		r.record(log, tx, err, nil)
		return res, err
	}

	log.Debug(fmt.Sprintf("Capturing %d file(s)", len(files)), "root", rootDir)
	snap, err := r.Store.Capture(ctx, files)
	if err != nil {
		return core.Failure(err, "snapshot capture failed"), err
	}

	// Restore runs on every exit path from here on, panics included.
	defer func() {
		restoreErr := r.Store.Restore(snap)

		var werr *core.SnapshotWriteError
		if restoreErr != nil && !errors.As(restoreErr, &werr) {
			werr = &core.SnapshotWriteError{
				Paths: snap.Paths(),
				Errs:  map[string]error{},
			}
			for _, p := range werr.Paths {
				werr.Errs[p] = restoreErr
			}
		}
		snap.Release()

		if p := recover(); p != nil {
			perr := fmt.Errorf("panic during transaction: %v", p)
			r.record(log, tx, perr, werr)
			if werr != nil {
				log.Error("Restore failed after panic", "files", werr.Paths)
			}
			panic(p)
		}

		r.record(log, tx, err, werr)
		if werr == nil {
			log.Debug(fmt.Sprintf("Restored %d file(s)", len(files)))
			return
		}

		log.Error("Restore failed, files left mutated", "files", werr.Paths)
		err = &core.TransactionError{ID: tx.ID, Outcome: err, Restore: werr}
		res.Failed = true
		res.Error = err
	}()

	rewritten, err := r.mutate(ctx, log, snap, pipeline)
	tx.Rewritten = rewritten
	if err != nil {
		log.Warn("Preprocess failed, skipping task", "error", err)
		return core.Failure(err, "preprocess failed"), err
	}
	log.Debug(fmt.Sprintf("Rewrote %d of %d file(s)", rewritten, len(files)))

	return r.runTask(ctx, task)
}

// mutate writes the pipeline output over each captured file. Files the
// pipeline leaves unchanged are not written.
func (r *Runner) mutate(ctx context.Context, log core.Logger, snap *state.Snapshot, pipeline preprocess.Pipeline) (int, error) {
	rewritten := 0
	for _, path := range snap.Paths() {
		if err := ctx.Err(); err != nil {
			return rewritten, err
		}

		rec, _ := snap.Record(path)
		original := rec.Content()

		out, err := pipeline.Apply(path, rec.Content())
		if err != nil {
			return rewritten, &core.PipelineError{Path: path, Err: err}
		}
		if bytes.Equal(out, original) {
			continue
		}

		if r.ShowDiff {
			if d := core.GenerateDiff(path, string(original), string(out)); d != "" {
				log.Debug("Preprocessed " + path + "\n" + d)
			}
		}

		if err := r.FS.WriteFile(path, out, rec.Mode); err != nil {
			return rewritten, &core.PipelineError{Path: path, Err: err}
		}
		rewritten++
	}
	return rewritten, nil
}

func (r *Runner) runTask(ctx context.Context, task Task) (core.Result, error) {
	start := time.Now()
	res, err := task.Run(ctx)
	r.Log.Debug(fmt.Sprintf("Task %s finished", task.Name()), "duration", time.Since(start).Round(time.Millisecond))

	if err == nil {
		return res, nil
	}

	var derr *core.DownstreamTaskError
	if !errors.As(err, &derr) {
		err = core.NewDownstreamTaskError(task.Name(), err)
	}
	res.Failed = true
	res.Error = err
	return res, err
}

// record appends the outcome to the transaction log and metrics. Log
// failures are reported and otherwise ignored.
func (r *Runner) record(log core.Logger, tx state.Transaction, outcome error, werr *core.SnapshotWriteError) {
	tx.Duration = time.Since(tx.Timestamp)
	if outcome != nil {
		tx.Status = state.StatusFailed
		tx.Error = outcome.Error()
	}
	if werr != nil {
		tx.Status = state.StatusRestoreFailed
		tx.Unrestored = append([]string(nil), werr.Paths...)
		if tx.Error == "" {
			tx.Error = werr.Error()
		}
	}

	r.Metrics.RecordTransaction(tx.Task, tx.Status, tx.Rewritten, len(tx.Unrestored), tx.Duration)

	if r.State == nil {
		return
	}
	if err := r.State.AddTransaction(tx); err != nil {
		log.Warn("Could not save transaction log", "error", err)
	}
}
