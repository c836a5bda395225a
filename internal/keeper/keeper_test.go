package keeper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"anchorkeeper/internal/anchor"
	"anchorkeeper/internal/backup"
	"anchorkeeper/internal/sfs"
	"anchorkeeper/internal/store"
	"anchorkeeper/internal/watcher"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const anchorSave = `GAME
{
	version = 1.12.5
	FLIGHTSTATE
	{
		VESSEL
		{
			pid = 7f3c
			name = Stamp-O-Tron Ground Anchor
			type = DeployedGroundPart
			lat = LAT
			lon = 20
			alt = ALT
			hgt = 2
		}
	}
}
`

func writeSave(t *testing.T, path, lat, alt string) {
	t.Helper()
	src := strings.NewReplacer("LAT", lat, "ALT", alt).Replace(anchorSave)
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
}

func readAnchor(t *testing.T, path string) anchor.Anchor {
	t.Helper()
	doc, err := sfs.ReadFile(path)
	require.NoError(t, err)
	anchors, err := anchor.NewExtractor().Extract(doc)
	require.NoError(t, err)
	require.Len(t, anchors, 1)
	return anchors[0]
}

// memStore is an in-memory BaselineStore.
type memStore struct {
	mu      sync.Mutex
	set     anchor.Set
	saves   int
	failing error
}

func (m *memStore) Load(context.Context) anchor.Set {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.set == nil {
		return anchor.NewSet()
	}
	return m.set.Clone()
}

func (m *memStore) Save(_ context.Context, set anchor.Set) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return m.failing
	}
	m.set = set.Clone()
	m.saves++
	return nil
}

func TestProcess_AdmitsThenRestoresDrift(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "persistent.sfs")
	st := &memStore{}
	k := New(ctx, st, Options{})

	writeSave(t, path, "10", "5")
	report, err := k.Process(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"7f3c"}, report.Added)
	assert.False(t, report.Rewritten)
	assert.Equal(t, 1, k.Baseline().Len())

	before, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(before), "alt = 5\n")

	writeSave(t, path, "10", "5.5")
	report, err = k.Process(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"7f3c"}, report.Drifted)
	assert.Equal(t, 1, report.Corrected)
	assert.True(t, report.Rewritten)
	assert.Equal(t, 5.0, readAnchor(t, path).Alt)

	// The rewrite itself triggers another notification; that pass is a no-op.
	info, err := os.Stat(path)
	require.NoError(t, err)
	report, err = k.Process(ctx, path)
	require.NoError(t, err)
	assert.Empty(t, report.Drifted)
	assert.False(t, report.Rewritten)
	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), after.ModTime())

	stats := k.Stats()
	assert.Equal(t, 3, stats.Passes)
	assert.Equal(t, 1, stats.Rewrites)
	assert.Equal(t, 1, stats.Corrections)
	assert.Equal(t, StateIdle, k.State())
}

func TestProcess_HorizontalMoveAccepted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persistent.sfs")
	st := &memStore{set: anchor.NewSet(anchor.Anchor{PID: "7f3c", Lat: 10, Lon: 20, Alt: 5, Hgt: 2})}
	k := New(ctx, st, Options{})

	writeSave(t, path, "10.01", "5")
	report, err := k.Process(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"7f3c"}, report.Moved)
	assert.False(t, report.Rewritten)

	got, _ := st.Load(ctx).Get("7f3c")
	assert.Equal(t, 10.01, got.Lat)
}

func TestProcess_MalformedLeavesBaselineUntouched(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persistent.sfs")
	seed := anchor.Anchor{PID: "7f3c", Lat: 10, Lon: 20, Alt: 5, Hgt: 2}
	st := &memStore{set: anchor.NewSet(seed)}
	k := New(ctx, st, Options{})

	writeSave(t, path, "10", "sky-high")
	_, err := k.Process(ctx, path)
	require.Error(t, err)

	var perr *PassError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StateExtracting, perr.State)
	assert.ErrorIs(t, err, anchor.ErrMalformedVessel)

	assert.Equal(t, 0, st.saves)
	got, _ := k.Baseline().Get("7f3c")
	assert.Equal(t, seed, got)
	assert.Equal(t, 1, k.Stats().Failures)
	assert.Equal(t, StateIdle, k.State())
}

func TestProcess_DecodeFailure(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persistent.sfs")
	require.NoError(t, os.WriteFile(path, []byte("GAME\n{\n"), 0644))

	st := &memStore{}
	k := New(ctx, st, Options{})
	_, err := k.Process(ctx, path)

	var perr *PassError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StateDecoding, perr.State)
	assert.ErrorIs(t, err, sfs.ErrUnbalanced)
	assert.Equal(t, 0, st.saves)
}

func TestProcess_PersistFailureKeepsMemoryBaseline(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persistent.sfs")
	st := &memStore{failing: errors.New("disk full")}
	k := New(ctx, st, Options{})

	writeSave(t, path, "10", "5")
	_, err := k.Process(ctx, path)

	var perr *PassError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StatePersisting, perr.State)
	assert.Equal(t, 0, k.Baseline().Len())
}

func TestProcess_VanishedFileSkipped(t *testing.T) {
	ctx := context.Background()
	k := New(ctx, &memStore{}, Options{})

	report, err := k.Process(ctx, filepath.Join(t.TempDir(), "deleted.sfs"))
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, 1, k.Stats().Skipped)
}

func TestProcess_FileWithoutAnchors(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persistent.sfs")
	require.NoError(t, os.WriteFile(path, []byte("GAME\n{\n\tFLIGHTSTATE\n\t{\n\t}\n}\n"), 0644))

	seed := anchor.Anchor{PID: "elsewhere", Alt: 1}
	st := &memStore{set: anchor.NewSet(seed)}
	k := New(ctx, st, Options{})

	report, err := k.Process(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Anchors)
	assert.Equal(t, []string{"elsewhere"}, report.Missing)
	assert.True(t, k.Baseline().Has(seed))
}

func TestProcess_SnapshotsBeforeRewrite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "persistent.sfs")
	snaps := backup.New(filepath.Join(dir, "backups"), 3)

	st := &memStore{set: anchor.NewSet(anchor.Anchor{PID: "7f3c", Lat: 10, Lon: 20, Alt: 5, Hgt: 2})}
	k := New(ctx, st, Options{Backup: snaps})

	writeSave(t, path, "10", "9")
	drifted, err := os.ReadFile(path)
	require.NoError(t, err)

	report, err := k.Process(ctx, path)
	require.NoError(t, err)
	require.NotEmpty(t, report.BackupPath)

	restored := filepath.Join(dir, "restored.sfs")
	require.NoError(t, backup.Restore(report.BackupPath, restored))
	got, err := os.ReadFile(restored)
	require.NoError(t, err)
	assert.Equal(t, drifted, got, "snapshot holds the file as it was before correction")
}

type brokenSnapshotter struct{ calls int }

func (b *brokenSnapshotter) Snapshot(string) (string, error) {
	b.calls++
	return "", errors.New("backup dir not writable")
}

func TestProcess_SnapshotFailureStillRestores(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persistent.sfs")
	snaps := &brokenSnapshotter{}

	st := &memStore{set: anchor.NewSet(anchor.Anchor{PID: "7f3c", Lat: 10, Lon: 20, Alt: 5, Hgt: 2})}
	k := New(ctx, st, Options{Backup: snaps})

	writeSave(t, path, "10", "9")
	report, err := k.Process(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, snaps.calls)
	assert.Empty(t, report.BackupPath)
	assert.True(t, report.Rewritten)
	assert.Equal(t, 5.0, readAnchor(t, path).Alt)
}

func TestProcess_WithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "persistent.sfs")

	st, err := store.Open(filepath.Join(dir, "anchors.db"))
	require.NoError(t, err)
	defer st.Close()

	k := New(ctx, st, Options{})
	writeSave(t, path, "10", "5")
	_, err = k.Process(ctx, path)
	require.NoError(t, err)

	// A restarted keeper sees the persisted baseline and corrects drift.
	k2 := New(ctx, st, Options{})
	writeSave(t, path, "10", "6")
	report, err := k2.Process(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Corrected)
	assert.Equal(t, 5.0, readAnchor(t, path).Alt)
}

func TestRun_ConsumesQueueUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persistent.sfs")
	writeSave(t, path, "10", "5")

	st := &memStore{}
	ctx, cancel := context.WithCancel(context.Background())
	k := New(ctx, st, Options{})
	q := watcher.NewQueue()

	done := make(chan error, 1)
	go func() { done <- k.Run(ctx, q) }()

	q.Put(path)
	q.Put(path) // duplicates are tolerated

	require.Eventually(t, func() bool { return k.Stats().Passes == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, k.Baseline().Len())
	assert.Equal(t, 0, k.Stats().Failures)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ReturnsWhenQueueClosed(t *testing.T) {
	k := New(context.Background(), &memStore{}, Options{})
	q := watcher.NewQueue()
	q.Close()
	assert.NoError(t, k.Run(context.Background(), q))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "reconciling", StateReconciling.String())
	assert.Equal(t, "state(42)", State(42).String())
}
