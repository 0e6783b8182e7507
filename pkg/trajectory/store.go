// Package trajectory holds the in-memory trajectory set that the stitching
// pipeline reads and rebuilds. Samples are grouped by trajectory id and kept
// sorted by time; orphan samples are held aside untouched.
package trajectory

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"ptvstitch/internal/models"
)

// Store is an immutable-by-convention collection of trajectories.
// Slices returned by its accessors are shared with the store and must not
// be modified by callers.
type Store struct {
	tracks  map[int][]models.Sample
	ids     []int
	orphans []models.Sample
}

// NewStore groups samples by trajectory id and sorts each trajectory by time.
// Orphan samples keep their input order. Two samples of one trajectory at the
// same time, or a non-finite time, is an error.
func NewStore(samples []models.Sample) (*Store, error) {
	s := &Store{
		tracks: make(map[int][]models.Sample),
	}

	for _, smp := range samples {
		if math.IsNaN(smp.Time) || math.IsInf(smp.Time, 0) {
			return nil, fmt.Errorf("trajectory %d: non-finite sample time", smp.TrajectoryID)
		}
		if !finite(smp.Position) || !finite(smp.Velocity) || !finite(smp.Acceleration) {
			return nil, fmt.Errorf("trajectory %d: non-finite kinematics at time %g", smp.TrajectoryID, smp.Time)
		}
		if smp.IsOrphan() {
			s.orphans = append(s.orphans, smp)
			continue
		}
		s.tracks[smp.TrajectoryID] = append(s.tracks[smp.TrajectoryID], smp)
	}

	s.ids = make([]int, 0, len(s.tracks))
	for id, tr := range s.tracks {
		sort.SliceStable(tr, func(i, j int) bool { return tr[i].Time < tr[j].Time })
		for k := 1; k < len(tr); k++ {
			if tr[k].Time == tr[k-1].Time {
				return nil, fmt.Errorf("trajectory %d: duplicate sample at time %g", id, tr[k].Time)
			}
		}
		s.ids = append(s.ids, id)
	}
	sort.Ints(s.ids)

	return s, nil
}

// IDs returns the trajectory ids in ascending order, excluding the orphan id.
func (s *Store) IDs() []int {
	out := make([]int, len(s.ids))
	copy(out, s.ids)
	return out
}

// Trajectory returns the time-ordered samples of trajectory id, or nil.
func (s *Store) Trajectory(id int) []models.Sample {
	return s.tracks[id]
}

// Has reports whether a non-empty trajectory with the given id exists.
func (s *Store) Has(id int) bool {
	return len(s.tracks[id]) > 0
}

// Orphans returns the samples carrying the reserved orphan id.
func (s *Store) Orphans() []models.Sample {
	return s.orphans
}

// Len returns the number of trajectories, excluding orphans.
func (s *Store) Len() int {
	return len(s.ids)
}

// SampleCount returns the number of non-orphan samples.
func (s *Store) SampleCount() int {
	n := 0
	for _, tr := range s.tracks {
		n += len(tr)
	}
	return n
}

// MeanLength returns the average number of samples per trajectory.
func (s *Store) MeanLength() float64 {
	if len(s.ids) == 0 {
		return 0
	}
	return float64(s.SampleCount()) / float64(len(s.ids))
}

// Samples flattens the store: trajectories ascending by id, each in time
// order, followed by the orphan samples.
func (s *Store) Samples() []models.Sample {
	out := make([]models.Sample, 0, s.SampleCount()+len(s.orphans))
	for _, id := range s.ids {
		out = append(out, s.tracks[id]...)
	}
	return append(out, s.orphans...)
}

// Clone returns a deep copy of the store.
func (s *Store) Clone() *Store {
	c := &Store{
		tracks:  make(map[int][]models.Sample, len(s.tracks)),
		ids:     s.IDs(),
		orphans: append([]models.Sample(nil), s.orphans...),
	}
	for id, tr := range s.tracks {
		c.tracks[id] = append([]models.Sample(nil), tr...)
	}
	return c
}

func finite(v r3.Vec) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
