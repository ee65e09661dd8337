package sqlite

import (
	"encoding/json"
	"errors"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/static-calibration/internal/monitoring"
	"github.com/banshee-data/static-calibration/internal/timeutil"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "calibration.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRun() *Run {
	return &Run{
		ObjectsFile:    "objects.json",
		RoadMarksFile:  "roads.json",
		ImageFile:      "image.json",
		Translation:    [3]float64{0.1, -10, 5},
		Rotation:       [3]float64{90, 0.5, 0},
		IntrinsicsJSON: json.RawMessage(`{"fx":1200}`),
		InitialError:   12.5,
		FinalError:     0.75,
		InitialCost:    80,
		FinalCost:      0.3,
		Iterations:     42,
		SolverStatus:   "FunctionConvergence",
		UsedFallback:   true,
		CandidateCount: 2,
		ExtensionJSON:  json.RawMessage(`{"A":"i1"}`),
		WeightsJSON:    json.RawMessage(`[1,0.98]`),
	}
}

func TestOpen_MigratesToLatest(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// A second MigrateUp is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.db")
	db, err := Open(path)
	require.NoError(t, err)
	run := sampleRun()
	require.NoError(t, NewRunStore(db.DB).Insert(run))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	got, err := NewRunStore(db.DB).Get(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.FinalError, got.FinalError)
}

func TestRunStore_InsertGet(t *testing.T) {
	db := openTestDB(t)
	store := NewRunStore(db.DB)

	run := sampleRun()
	require.NoError(t, store.Insert(run))
	assert.NotEmpty(t, run.RunID)
	assert.NotZero(t, run.CreatedAt)

	got, err := store.Get(run.RunID)
	require.NoError(t, err)
	if diff := cmp.Diff(run, got); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}
}

func TestRunStore_OptionalColumns(t *testing.T) {
	db := openTestDB(t)
	store := NewRunStore(db.DB)

	run := &Run{Translation: [3]float64{1, 2, 3}}
	require.NoError(t, store.Insert(run))

	got, err := store.Get(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("{}"), got.IntrinsicsJSON)
	assert.Nil(t, got.ExtensionJSON)
	assert.Nil(t, got.WeightsJSON)
	assert.Nil(t, got.ConfigJSON)
	assert.False(t, got.UsedFallback)
}

func TestRunStore_GetMissing(t *testing.T) {
	db := openTestDB(t)
	_, err := NewRunStore(db.DB).Get("nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRunStore_ListNewestFirst(t *testing.T) {
	db := openTestDB(t)
	store := NewRunStore(db.DB)

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	store.SetClock(clock)

	var ids []string
	for i := 0; i < 3; i++ {
		run := sampleRun()
		require.NoError(t, store.Insert(run))
		assert.Equal(t, clock.Now().UnixNano(), run.CreatedAt)
		ids = append(ids, run.RunID)
		clock.Advance(time.Minute)
	}

	runs, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{runs[0].RunID, runs[1].RunID, runs[2].RunID})

	runs, err = store.List(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestCandidateStore_RoundTripAndCascade(t *testing.T) {
	db := openTestDB(t)
	runs := NewRunStore(db.DB)
	candidates := NewCandidateStore(db.DB)

	run := sampleRun()
	require.NoError(t, runs.Insert(run))

	in := []Candidate{
		{Mapping: map[string]string{"A": "i1", "B": "i2"}, Error: 1.5},
		{Mapping: map[string]string{"A": "i2", "B": "i1"}, Error: 9},
	}
	require.NoError(t, candidates.InsertAll(run.RunID, in))

	got, err := candidates.ListByRun(run.RunID)
	require.NoError(t, err)
	want := []Candidate{
		{RunID: run.RunID, Rank: 0, Mapping: map[string]string{"A": "i1", "B": "i2"}, Error: 1.5},
		{RunID: run.RunID, Rank: 1, Mapping: map[string]string{"A": "i2", "B": "i1"}, Error: 9},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("candidates mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, runs.Delete(run.RunID))
	got, err = candidates.ListByRun(run.RunID)
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.True(t, errors.Is(runs.Delete(run.RunID), ErrNotFound))
}

func TestCandidateStore_UnknownRunRejected(t *testing.T) {
	db := openTestDB(t)
	err := NewCandidateStore(db.DB).InsertAll("missing", []Candidate{{Mapping: map[string]string{}}})
	assert.Error(t, err)
}

func TestIsBusy(t *testing.T) {
	assert.True(t, isBusy(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, isBusy(errors.New("no such table")))

	var logged int
	monitoring.SetLogger(func(string, ...interface{}) { logged++ })
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })

	calls := 0
	err := retryOnBusy(func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, logged)
}
