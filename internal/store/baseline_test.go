package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anchorkeeper/internal/anchor"
)

func openTemp(t *testing.T) *BaselineStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "anchors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoad_EmptyWithoutSchema(t *testing.T) {
	s := openTemp(t)
	got := s.Load(context.Background())
	assert.NotNil(t, got)
	assert.Equal(t, 0, got.Len())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	want := anchor.NewSet(
		anchor.Anchor{PID: "7f3c", Lat: -0.0972077, Lon: -74.5576874, Alt: 68.412, Hgt: 0.35},
		anchor.Anchor{PID: "c4d5", Lat: 20.671, Lon: -146.4203, Alt: 412.8, Hgt: 0.35},
	)
	require.NoError(t, s.Save(ctx, want))

	got := s.Load(ctx)
	require.Equal(t, want.Len(), got.Len())
	for key, w := range want {
		g, ok := got.Get(key)
		require.True(t, ok, "missing %s", key)
		assert.False(t, anchor.Changed(w.Lat, g.Lat))
		assert.False(t, anchor.Changed(w.Lon, g.Lon))
		assert.False(t, anchor.Changed(w.Alt, g.Alt))
		assert.False(t, anchor.Changed(w.Hgt, g.Hgt))
	}
}

func TestSave_UpsertsByPID(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	require.NoError(t, s.Save(ctx, anchor.NewSet(
		anchor.Anchor{PID: "a", Alt: 1},
		anchor.Anchor{PID: "b", Alt: 1},
	)))
	require.NoError(t, s.Save(ctx, anchor.NewSet(anchor.Anchor{PID: "a", Alt: 2})))

	got := s.Load(ctx)
	assert.Equal(t, 2, got.Len(), "save never removes rows")
	a, _ := got.Get("a")
	assert.Equal(t, 2.0, a.Alt)
}

func TestLoad_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "anchors.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, anchor.NewSet(anchor.Anchor{PID: "x", Lat: 1, Lon: 2, Alt: 3, Hgt: 4})))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, ok := s.Load(ctx).Get("x")
	require.True(t, ok)
	assert.Equal(t, anchor.Anchor{PID: "x", Lat: 1, Lon: 2, Alt: 3, Hgt: 4}, got)
}

func TestLoad_SkipsNullRows(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	require.NoError(t, s.Save(ctx, anchor.NewSet(anchor.Anchor{PID: "ok"})))

	_, err := s.db.Exec("INSERT INTO ground_anchors (pid, lat) VALUES ('broken', 1.0)")
	require.NoError(t, err)

	got := s.Load(ctx)
	assert.Equal(t, 1, got.Len())
	assert.True(t, got.Has(anchor.Anchor{PID: "ok"}))
}

func TestLoad_SkipsNullPIDRow(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	good := anchor.NewSet(
		anchor.Anchor{PID: "a", Lat: 1, Lon: 2, Alt: 3, Hgt: 4},
		anchor.Anchor{PID: "b", Lat: 5, Lon: 6, Alt: 7, Hgt: 8},
	)
	require.NoError(t, s.Save(ctx, good))

	_, err := s.db.Exec("INSERT INTO ground_anchors (pid, lat, lon, alt, hgt) VALUES (NULL, 1, 1, 1, 1)")
	require.NoError(t, err)

	got := s.Load(ctx)
	assert.Equal(t, 2, got.Len(), "one bad row must not drop the rest of the baseline")
	b, ok := got.Get("b")
	require.True(t, ok)
	assert.Equal(t, 7.0, b.Alt)
}

func TestLoad_ForeignSchemaIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE ground_anchors (uid TEXT PRIMARY KEY)")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 0, s.Load(context.Background()).Len())
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	removed, err := s.Forget(ctx, "nothing")
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, s.Save(ctx, anchor.NewSet(anchor.Anchor{PID: "a"}, anchor.Anchor{PID: "b"})))
	removed, err = s.Forget(ctx, "a")
	require.NoError(t, err)
	assert.True(t, removed)

	got := s.Load(ctx)
	assert.Equal(t, 1, got.Len())
	assert.False(t, got.Has(anchor.Anchor{PID: "a"}))
}
