// Package keeper runs reconciliation passes over save files.
//
// A pass walks Decoding -> Extracting -> Reconciling -> Correcting (only when
// something drifted) -> Persisting and returns to Idle. Any failure aborts the
// pass with the baseline untouched on disk and in memory. Nothing is retried:
// the next change notification for the file is the retry.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"anchorkeeper/internal/anchor"
	"anchorkeeper/internal/logging"
	"anchorkeeper/internal/sfs"
	"anchorkeeper/internal/watcher"

	"github.com/google/uuid"
)

// State is the position of the keeper in its pass state machine.
type State int

const (
	StateIdle State = iota
	StateDecoding
	StateExtracting
	StateReconciling
	StateCorrecting
	StatePersisting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDecoding:
		return "decoding"
	case StateExtracting:
		return "extracting"
	case StateReconciling:
		return "reconciling"
	case StateCorrecting:
		return "correcting"
	case StatePersisting:
		return "persisting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// BaselineStore persists the baseline between runs.
type BaselineStore interface {
	Load(ctx context.Context) anchor.Set
	Save(ctx context.Context, set anchor.Set) error
}

// Snapshotter keeps a copy of a save file before it is rewritten.
type Snapshotter interface {
	Snapshot(path string) (string, error)
}

// Options configures a Keeper.
type Options struct {
	Extractor anchor.Extractor

	// Optional; when nil no snapshot is taken before a rewrite. A failing
	// snapshot is logged and the rewrite goes ahead.
	Backup Snapshotter
}

// PassError reports the state a failed pass aborted in.
type PassError struct {
	Path  string
	State State
	Err   error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", filepath.Base(e.Path), e.State, e.Err)
}

func (e *PassError) Unwrap() error { return e.Err }

// PassReport summarizes one completed pass.
type PassReport struct {
	ID          string
	Path        string
	Skipped     bool // file vanished before it could be read
	Anchors     int  // anchors found in the file
	Added       []string
	Moved       []string
	Drifted     []string
	Missing     []string
	Corrected   int    // vessels rewritten in the file
	Rewritten   bool   // save file was re-encoded
	BackupPath  string // snapshot taken before the rewrite, if any
	BaselineLen int
}

// Stats counts keeper activity.
type Stats struct {
	Passes      int
	Failures    int
	Skipped     int
	Corrections int
	Rewrites    int
}

// Keeper owns the in-memory baseline and runs passes one at a time.
type Keeper struct {
	store   BaselineStore
	opts    Options
	passMu  sync.Mutex // serializes passes
	mu      sync.RWMutex
	current anchor.Set
	state   State
	stats   Stats
}

// New creates a Keeper and loads the baseline once.
func New(ctx context.Context, store BaselineStore, opts Options) *Keeper {
	if opts.Extractor.PartName == "" || opts.Extractor.VesselType == "" {
		opts.Extractor = anchor.NewExtractor()
	}
	baseline := store.Load(ctx)
	logging.Keeper("Keeper ready with %d baseline anchors", baseline.Len())
	return &Keeper{store: store, opts: opts, current: baseline}
}

// Baseline returns a copy of the in-memory baseline.
func (k *Keeper) Baseline() anchor.Set {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.current.Clone()
}

// State returns the current pass state.
func (k *Keeper) State() State {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.state
}

// Stats returns the activity counters.
func (k *Keeper) Stats() Stats {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.stats
}

func (k *Keeper) enter(log *logging.Logger, s State) {
	k.mu.Lock()
	k.state = s
	k.mu.Unlock()
	log.Debug("-> %s", s)
}

// Process runs one full pass over the save file at path.
func (k *Keeper) Process(ctx context.Context, path string) (PassReport, error) {
	k.passMu.Lock()
	defer k.passMu.Unlock()

	report := PassReport{ID: uuid.NewString(), Path: path}
	log := logging.Get(logging.CategoryKeeper).With("pass", report.ID, "file", filepath.Base(path))
	timer := logging.StartTimer(logging.CategoryKeeper, "pass "+filepath.Base(path))
	defer timer.Stop()
	defer k.enter(log, StateIdle)

	err := k.run(ctx, log, path, &report)

	k.mu.Lock()
	k.stats.Passes++
	switch {
	case err != nil:
		k.stats.Failures++
	case report.Skipped:
		k.stats.Skipped++
	default:
		k.stats.Corrections += report.Corrected
		if report.Rewritten {
			k.stats.Rewrites++
		}
	}
	k.mu.Unlock()

	if err != nil {
		log.Error("Pass aborted, baseline untouched: %v", err)
		return report, err
	}
	return report, nil
}

func (k *Keeper) run(ctx context.Context, log *logging.Logger, path string, report *PassReport) error {
	fail := func(s State, err error) error {
		return &PassError{Path: path, State: s, Err: err}
	}

	k.enter(log, StateDecoding)
	doc, err := sfs.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug("File vanished before processing, skipping")
			report.Skipped = true
			return nil
		}
		return fail(StateDecoding, err)
	}

	k.enter(log, StateExtracting)
	current, err := k.opts.Extractor.Extract(doc)
	if err != nil {
		return fail(StateExtracting, err)
	}
	report.Anchors = len(current)

	k.enter(log, StateReconciling)
	res := anchor.Reconcile(current, k.Baseline())
	report.Added, report.Moved, report.Drifted, report.Missing = res.Added, res.Moved, res.Drifted, res.Missing
	for _, pid := range res.Added {
		log.Info("Added anchor %s", pid)
	}
	for _, pid := range res.Moved {
		log.Info("Anchor %s moved, accepting new position", pid)
	}
	for _, pid := range res.Drifted {
		log.Info("Anchor %s drifted vertically, restoring", pid)
	}

	if res.Corrections.Len() > 0 {
		k.enter(log, StateCorrecting)
		if k.opts.Backup != nil {
			// A missing snapshot never blocks the rollback itself.
			if snap, err := k.opts.Backup.Snapshot(path); err != nil {
				log.Warn("Snapshot failed, restoring without backup: %v", err)
			} else {
				report.BackupPath = snap
			}
		}
		n, err := anchor.Correct(doc, res.Corrections)
		if err != nil {
			return fail(StateCorrecting, err)
		}
		report.Corrected = n
		if n > 0 {
			if err := sfs.WriteFile(path, doc); err != nil {
				return fail(StateCorrecting, err)
			}
			report.Rewritten = true
			log.Info("Restored %d anchor(s) in %s", n, path)
		}
	}

	k.enter(log, StatePersisting)
	if err := k.store.Save(ctx, res.Baseline); err != nil {
		return fail(StatePersisting, err)
	}
	k.mu.Lock()
	k.current = res.Baseline
	k.mu.Unlock()
	report.BaselineLen = res.Baseline.Len()

	log.Debug("Pass complete: %d anchors, %d added, %d moved, %d corrected",
		report.Anchors, len(report.Added), len(report.Moved), report.Corrected)
	return nil
}

// Run consumes the queue until ctx is done or the queue is closed, processing
// one path at a time. Pass failures are logged and do not stop the loop.
func (k *Keeper) Run(ctx context.Context, q *watcher.Queue) error {
	logging.Keeper("Keeper loop started")
	for {
		path, err := q.Pop(ctx)
		if err != nil {
			if errors.Is(err, watcher.ErrQueueClosed) || errors.Is(err, context.Canceled) {
				logging.Keeper("Keeper loop stopped")
				return nil
			}
			return err
		}
		// Errors are already logged by Process; the next write is the retry.
		_, _ = k.Process(ctx, path)
	}
}
