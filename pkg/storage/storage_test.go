package storage

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"ptvstitch/internal/models"
)

func openTestStore(t *testing.T) *RunStore {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRunStore(db.DB)
}

func TestSaveAndLoadRun(t *testing.T) {
	store := openTestStore(t)

	run, err := NewRun("trajs.txt",
		map[string]float64{"ts": 4, "dm": 0.5},
		map[string]int{"connections": 1})
	require.NoError(t, err)

	conns := []models.Connection{{
		Candidate:    models.Candidate{Source: 2, Target: 5, Gap: 3, Score: 0.125},
		Resolved:     5,
		Interpolated: 2,
	}}
	samples := []models.Sample{
		{TrajectoryID: 5, Position: r3.Vec{X: 1, Y: 2, Z: 3}, Velocity: r3.Vec{X: 0.5}, Time: 0},
		{TrajectoryID: 5, Position: r3.Vec{X: 2, Y: 2, Z: 3}, Time: 1, Interpolated: true},
		{TrajectoryID: models.OrphanID, Acceleration: r3.Vec{Z: -9.75}, Time: 0.5},
	}

	require.NoError(t, store.SaveRun(run, conns, samples))
	require.NotEmpty(t, run.RunID)
	require.NotZero(t, run.CreatedAt)

	got, err := store.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "trajs.txt", got.InputFile)
	assert.JSONEq(t, `{"ts":4,"dm":0.5}`, string(got.ParamsJSON))
	assert.JSONEq(t, `{"connections":1}`, string(got.StatsJSON))

	gotConns, err := store.ListConnections(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, conns, gotConns)

	gotSamples, err := store.LoadSamples(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, samples, gotSamples)
}

func TestListRunsNewestFirst(t *testing.T) {
	store := openTestStore(t)

	older := &Run{RunID: "older", CreatedAt: 100}
	newer := &Run{RunID: "newer", CreatedAt: 200}
	require.NoError(t, store.SaveRun(older, nil, nil))
	require.NoError(t, store.SaveRun(newer, nil, nil))

	runs, err := store.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "newer", runs[0].RunID)
	assert.Equal(t, "older", runs[1].RunID)
	assert.Nil(t, runs[0].ParamsJSON)
}

func TestUnknownRun(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetRun("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = store.LoadSamples("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	assert.ErrorIs(t, store.DeleteRun("missing"), ErrRunNotFound)
}

func TestDeleteRunCascades(t *testing.T) {
	store := openTestStore(t)

	run := &Run{RunID: "r1"}
	samples := []models.Sample{{TrajectoryID: 1, Time: 0}}
	conns := []models.Connection{{Candidate: models.Candidate{Source: 0, Target: 1, Gap: 1}, Resolved: 1}}
	require.NoError(t, store.SaveRun(run, conns, samples))

	require.NoError(t, store.DeleteRun("r1"))

	gotConns, err := store.ListConnections("r1")
	require.NoError(t, err)
	assert.Empty(t, gotConns)

	var n int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM stitch_samples`).Scan(&n))
	assert.Zero(t, n)
}

func TestDuplicateRunIDRollsBack(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SaveRun(&Run{RunID: "dup"}, nil, []models.Sample{{TrajectoryID: 1}}))
	err := store.SaveRun(&Run{RunID: "dup"}, nil, []models.Sample{{TrajectoryID: 2}, {TrajectoryID: 3}})
	require.Error(t, err)

	samples, err := store.LoadSamples("dup")
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestNewRunRejectsUnencodable(t *testing.T) {
	_, err := NewRun("x", map[string]any{"f": func() {}}, nil)
	assert.Error(t, err)

	r, err := NewRun("x", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("null"), r.ParamsJSON)
}
