package stitching

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"ptvstitch/internal/models"
	"ptvstitch/pkg/trajectory"
)

func process(t *testing.T, p Params, store *trajectory.Store) *Result {
	t.Helper()
	s, err := NewStitcher(p)
	require.NoError(t, err)
	res, err := s.Process(context.Background(), store)
	require.NoError(t, err)
	return res
}

// TestProcessSingleConnection follows a source ending at t=5 and a target
// starting at t=8 on the same straight line.
func TestProcessSingleConnection(t *testing.T) {
	store := newStore(t, linear(1, 3, 3, -2, 1), linear(2, 8, 3, 3, 1))
	res := process(t, quietParams(5, 1.0), store)

	require.Len(t, res.Connections, 1)
	conn := res.Connections[0]
	assert.Equal(t, 1, conn.Source)
	assert.Equal(t, 2, conn.Target)
	assert.Equal(t, 2, conn.Resolved)
	assert.Equal(t, 3.0, conn.Gap)
	assert.Equal(t, 0.0, conn.Score)
	assert.Equal(t, 2, conn.Interpolated)

	assert.Equal(t, []int{2}, res.Store.IDs())
	tr := res.Store.Trajectory(2)
	require.Len(t, tr, 8)
	for i, smp := range tr {
		assert.Equal(t, float64(3+i), smp.Time)
		assert.InDelta(t, float64(i-2), smp.Position.X, 1e-9)
		assert.InDelta(t, 1.0, smp.Velocity.X, 1e-8, "recomputed velocity at %d", i)
		assert.InDelta(t, 0.0, smp.Acceleration.X, 1e-8)
		assert.Equal(t, 2, smp.TrajectoryID)
	}
	assert.True(t, tr[3].Interpolated)
	assert.True(t, tr[4].Interpolated)
	assert.False(t, tr[5].Interpolated)

	assert.Equal(t, Stats{
		TrajectoriesBefore: 2,
		TrajectoriesAfter:  1,
		MeanLengthBefore:   3,
		MeanLengthAfter:    8,
		Candidates:         1,
		Connections:        1,
		Interpolated:       2,
	}, res.Stats)
}

func TestProcessZeroDistanceLeavesStoreUnchanged(t *testing.T) {
	store := newStore(t, linear(1, 3, 3, -2, 1), linear(2, 8, 3, 3.5, 1))
	res := process(t, quietParams(5, 0), store)

	assert.Empty(t, res.Connections)
	if diff := cmp.Diff(store.Samples(), res.Store.Samples()); diff != "" {
		t.Errorf("store changed (-before +after):\n%s", diff)
	}
}

func TestProcessSharedTargetKeepsBestSource(t *testing.T) {
	store := newStore(t,
		linear(1, 0, 3, 0, 1),   // projects to x=4 at t=4
		linear(2, 0, 3, 0.3, 1), // projects to x=4.3 at t=4
		linear(3, 4, 3, 4.1, 1),
	)
	res := process(t, quietParams(5, 1), store)

	require.Len(t, res.Connections, 1)
	assert.Equal(t, 1, res.Connections[0].Source)
	assert.Equal(t, []int{2, 3}, res.Store.IDs())
	assert.Len(t, res.Store.Trajectory(2), 3, "losing source stays unconnected")
}

// TestProcessChainResolution applies j->k before i->j, so the second
// connection must follow j to k.
func TestProcessChainResolution(t *testing.T) {
	store := newStore(t,
		linear(1, 0, 3, 0, 1),    // t 0..2, ends x=2
		linear(2, 5, 3, 5.25, 1), // t 5..7, residual 0.25 from 1
		linear(3, 9, 3, 9.25, 1), // t 9..11, residual 0 from 2
	)
	p := quietParams(4, 1)
	res := process(t, p, store)

	require.Len(t, res.Connections, 2)
	assert.Equal(t, models.Connection{
		Candidate:    models.Candidate{Source: 2, Target: 3, Gap: 2, Score: 0},
		Resolved:     3,
		Interpolated: 1,
	}, res.Connections[0])
	assert.Equal(t, 1, res.Connections[1].Source)
	assert.Equal(t, 2, res.Connections[1].Target)
	assert.Equal(t, 3, res.Connections[1].Resolved)
	assert.Equal(t, 2, res.Connections[1].Interpolated)

	assert.Equal(t, []int{3}, res.Store.IDs())
	assert.Equal(t, 3-len(res.Connections), res.Store.Len())
	assert.Len(t, res.Store.Trajectory(3), 3+2+3+1+3)

	tr := res.Store.Trajectory(3)
	for i := 1; i < len(tr); i++ {
		assert.Less(t, tr[i-1].Time, tr[i].Time)
	}
}

func TestProcessOrphansPassThrough(t *testing.T) {
	orphans := []models.Sample{
		{TrajectoryID: models.OrphanID, Position: r3.Vec{X: 3, Y: 1}, Velocity: r3.Vec{Z: 2}, Time: 4},
		{TrajectoryID: models.OrphanID, Position: r3.Vec{X: 9}, Time: 1},
	}
	store := newStore(t, linear(1, 3, 3, -2, 1), orphans, linear(2, 8, 3, 3, 1))
	res := process(t, quietParams(5, 1), store)

	assert.Equal(t, orphans, res.Store.Orphans())
	assert.Equal(t, 8, res.Store.SampleCount())

	// the orphan id is not counted as a trajectory
	assert.Equal(t, 2, res.Stats.TrajectoriesBefore)
	assert.Equal(t, 1, res.Stats.TrajectoriesAfter)
	assert.Equal(t, 3.0, res.Stats.MeanLengthBefore)
	assert.Equal(t, 8.0, res.Stats.MeanLengthAfter)
}

func TestProcessIdempotent(t *testing.T) {
	store := newStore(t,
		linear(1, 0, 4, 0, 1),
		linear(2, 6, 4, 6, 1),
		linear(3, 0, 4, 50, -1),
		linear(4, 30, 4, 0, 2),
	)
	p := quietParams(5, 0.5)
	first := process(t, p, store)
	require.Len(t, first.Connections, 1)

	second := process(t, p, first.Store)
	assert.Empty(t, second.Connections)
	assert.Equal(t, first.Store.IDs(), second.Store.IDs())
}

func TestProcessShortMergeFallsBackToDifferences(t *testing.T) {
	store := newStore(t, linear(1, 0, 2, 0, 1), linear(2, 2.5, 2, 2.5, 1))
	res := process(t, quietParams(5, 1), store)

	require.Len(t, res.Connections, 1)
	assert.Equal(t, 0, res.Connections[0].Interpolated)
	assert.Equal(t, 1, res.Stats.DifferencedTrajectories)
	assert.Len(t, res.Store.Trajectory(2), 4)
}

func TestProcessKeepsKinematicsOfUntouchedTrajectories(t *testing.T) {
	lone := linear(7, 100, 3, 0, 1)
	lone[1].Velocity = r3.Vec{X: 42}
	store := newStore(t, linear(1, 3, 3, -2, 1), linear(2, 8, 3, 3, 1), lone)
	res := process(t, quietParams(5, 1), store)

	assert.Equal(t, lone, res.Store.Trajectory(7))
}

func TestApplyConnectionsFailures(t *testing.T) {
	store := newStore(t, linear(1, 0, 3, 0, 1), linear(2, 5, 3, 5, 1), linear(3, 10, 3, 10, 1))

	cases := []struct {
		name string
		sel  []models.Candidate
		want error
	}{
		{"missing target", []models.Candidate{{Source: 1, Target: 9, Gap: 3}}, ErrChainResolution},
		{"source reused", []models.Candidate{{Source: 1, Target: 2, Gap: 3}, {Source: 1, Target: 3, Gap: 8}}, ErrSourceMerged},
		{"zero gap", []models.Candidate{{Source: 1, Target: 2, Gap: 0}}, ErrNonPositiveGap},
		{"overlap", []models.Candidate{{Source: 2, Target: 1, Gap: 1}}, ErrNonPositiveGap},
		{"cycle", []models.Candidate{{Source: 1, Target: 2, Gap: 3}, {Source: 2, Target: 1, Gap: 1}}, ErrChainResolution},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ApplyConnections(store, tc.sel)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)

			var cerr *ConnectionError
			require.True(t, errors.As(err, &cerr))
			assert.NotZero(t, cerr.Source)
		})
	}
}

func TestNewStitcherValidation(t *testing.T) {
	_, err := NewStitcher(quietParams(0, 1))
	assert.Error(t, err)
	_, err = NewStitcher(quietParams(5, -1))
	assert.Error(t, err)

	p := quietParams(5, 1)
	p.Selector = "fastest"
	_, err = NewStitcher(p)
	assert.Error(t, err)

	p = quietParams(5, 1)
	p.NumWorkers = 0
	s, err := NewStitcher(p)
	require.NoError(t, err)
	assert.Positive(t, s.Params().NumWorkers)
	assert.NotNil(t, s.Params().Smoother)
}
