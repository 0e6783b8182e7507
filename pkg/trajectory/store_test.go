package trajectory

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"ptvstitch/internal/models"
)

func sample(id int, x, t float64) models.Sample {
	return models.Sample{TrajectoryID: id, Position: r3.Vec{X: x}, Time: t}
}

// TestNewStoreGroupsAndSorts verifies grouping by id and ordering by time
func TestNewStoreGroupsAndSorts(t *testing.T) {
	s, err := NewStore([]models.Sample{
		sample(7, 3, 3),
		sample(2, 0, 10),
		sample(7, 1, 1),
		sample(models.OrphanID, 9, 4),
		sample(7, 2, 2),
		sample(models.OrphanID, 8, 1),
	})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 7}, s.IDs())
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 4, s.SampleCount())
	assert.InDelta(t, 2.0, s.MeanLength(), 1e-12)

	tr := s.Trajectory(7)
	require.Len(t, tr, 3)
	for i, want := range []float64{1, 2, 3} {
		assert.Equal(t, want, tr[i].Time)
	}

	orphans := s.Orphans()
	require.Len(t, orphans, 2)
	assert.Equal(t, 4.0, orphans[0].Time, "orphans keep input order")
	assert.False(t, s.Has(models.OrphanID))
}

func TestNewStoreRejectsNonFiniteKinematics(t *testing.T) {
	cases := map[string]func(*models.Sample){
		"position":     func(s *models.Sample) { s.Position.Y = math.Inf(1) },
		"velocity":     func(s *models.Sample) { s.Velocity.X = math.NaN() },
		"acceleration": func(s *models.Sample) { s.Acceleration.Z = math.Inf(-1) },
		"orphan":       func(s *models.Sample) { s.TrajectoryID = models.OrphanID; s.Velocity.X = math.NaN() },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			bad := sample(2, 1, 3)
			mutate(&bad)
			_, err := NewStore([]models.Sample{sample(1, 0, 0), bad})
			assert.Error(t, err)
		})
	}
}

func TestNewStoreRejectsDuplicateTimes(t *testing.T) {
	_, err := NewStore([]models.Sample{sample(1, 0, 1), sample(1, 1, 1)})
	assert.Error(t, err)
}

func TestSamplesFlattenOrder(t *testing.T) {
	s, err := NewStore([]models.Sample{
		sample(models.OrphanID, 0, 0),
		sample(5, 0, 2),
		sample(3, 0, 1),
		sample(5, 0, 1),
	})
	require.NoError(t, err)

	flat := s.Samples()
	require.Len(t, flat, 4)
	assert.Equal(t, 3, flat[0].TrajectoryID)
	assert.Equal(t, 5, flat[1].TrajectoryID)
	assert.Equal(t, 1.0, flat[1].Time)
	assert.Equal(t, 2.0, flat[2].Time)
	assert.True(t, flat[3].IsOrphan())
}

func TestCloneIsIndependent(t *testing.T) {
	s, err := NewStore([]models.Sample{sample(1, 0, 1), sample(1, 1, 2)})
	require.NoError(t, err)

	c := s.Clone()
	c.Trajectory(1)[0].Position.X = 42

	assert.Equal(t, 0.0, s.Trajectory(1)[0].Position.X)
}
