package rl

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Values: map[string]map[string]float64{
			"exact_0123456789abcdef": {
				"calculate_sum":      0.29701,
				"calculate_multiply": -0.0401,
				"calculate_average":  1.0 / 3.0,
			},
			"sem_fedcba9876543210": {
				"format_as_report": math.Pi / 10,
			},
		},
		Vectors: map[string][]float64{
			"sem_fedcba9876543210": {0.1, 0.2, 0.3},
		},
	}
}

func assertSnapshotsEqual(t *testing.T, want, got Snapshot) {
	t.Helper()
	require.Len(t, got.Values, len(want.Values))
	for state, row := range want.Values {
		require.Len(t, got.Values[state], len(row), state)
		for tool, v := range row {
			assert.InDelta(t, v, got.Values[state][tool], 1e-9, "%s/%s", state, tool)
		}
	}
	assert.Equal(t, want.Vectors, got.Vectors)
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "math_team.json")
	store := NewFileStore(path)

	empty, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, empty.Values)

	want := sampleSnapshot()
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	assertSnapshotsEqual(t, want, got)

	_, err = os.Stat(path + ".vectors.json")
	assert.NoError(t, err)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "temp files are renamed away")
	}
}

func TestFileStore_SaveWithoutVectorsRemovesSidecar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.json")
	store := NewFileStore(path)
	require.NoError(t, store.Save(sampleSnapshot()))

	require.NoError(t, store.Save(Snapshot{}))
	_, err := os.Stat(path + ".vectors.json")
	assert.ErrorIs(t, err, os.ErrNotExist)

	got, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, got.Values)
	assert.Empty(t, got.Vectors)
}

func TestFileStore_SaveKeepsPreviousOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "q.json")
	store := NewFileStore(path)
	require.NoError(t, store.Save(sampleSnapshot()))

	bad := Snapshot{Values: map[string]map[string]float64{"s": {"t": math.NaN()}}}
	err := store.Save(bad)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)

	got, err := store.Load()
	require.NoError(t, err)
	assertSnapshotsEqual(t, sampleSnapshot(), got)
}

func TestSQLiteStore_RoundTripPerManager(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qtables.db")

	mathStore, err := OpenSQLiteStore(path, "math_team")
	require.NoError(t, err)
	defer mathStore.Close()
	report, err := OpenSQLiteStore(path, "report_team")
	require.NoError(t, err)
	defer report.Close()

	want := sampleSnapshot()
	require.NoError(t, mathStore.Save(want))
	require.NoError(t, report.Save(Snapshot{Values: map[string]map[string]float64{
		"exact_aaaaaaaaaaaaaaaa": {"format_as_bullet_list": 0.5},
	}}))

	got, err := mathStore.Load()
	require.NoError(t, err)
	assertSnapshotsEqual(t, want, got)

	// Saving again replaces rather than accumulates.
	want.Values = map[string]map[string]float64{"exact_0123456789abcdef": {"calculate_sum": 0.5}}
	want.Vectors = map[string][]float64{}
	require.NoError(t, mathStore.Save(want))
	got, err = mathStore.Load()
	require.NoError(t, err)
	assertSnapshotsEqual(t, want, got)

	other, err := report.Load()
	require.NoError(t, err)
	assert.Len(t, other.Values, 1)

	managers, err := mathStore.Managers()
	require.NoError(t, err)
	assert.Equal(t, []string{"math_team", "report_team"}, managers)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qtables.sqlite")
	store, err := OpenStore(path, "math_team")
	require.NoError(t, err)
	_, ok := store.(*SQLiteStore)
	require.True(t, ok)
	require.NoError(t, store.Save(sampleSnapshot()))
	require.NoError(t, store.Close())

	reopened, err := OpenStore(path, "math_team")
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Load()
	require.NoError(t, err)
	assertSnapshotsEqual(t, sampleSnapshot(), got)
}

func TestOpenStore(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "q.json"), "x")
	require.NoError(t, err)
	_, ok := store.(*FileStore)
	assert.True(t, ok)

	_, err = OpenSQLiteStore(filepath.Join(t.TempDir(), "q.db"), "")
	assert.Error(t, err)
}

func TestPersistenceError(t *testing.T) {
	err := &PersistenceError{Op: "save", Path: "/tmp/q.json", Err: os.ErrPermission}
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Contains(t, err.Error(), "q-table save /tmp/q.json")
}
