package stitching

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"ptvstitch/internal/models"
	"ptvstitch/pkg/smoothing"
	"ptvstitch/pkg/trajectory"
)

// Endpoints is the part of a trajectory the distance evaluator looks at: its
// first and last sample, with kinematics filled in when the stored velocity
// was never set.
type Endpoints struct {
	First models.Sample
	Last  models.Sample
}

// EndpointsOf summarises a time-ordered trajectory. If every stored velocity
// is exactly zero, velocity and acceleration are derived from position with
// finite differences before the endpoints are taken. The input is not modified.
func EndpointsOf(tr []models.Sample) Endpoints {
	if len(tr) == 0 {
		return Endpoints{}
	}
	first, last := tr[0], tr[len(tr)-1]

	if !velocityUnset(tr) {
		return Endpoints{First: first, Last: last}
	}

	positions := make([]r3.Vec, len(tr))
	for i, smp := range tr {
		positions[i] = smp.Position
	}
	k := smoothing.Differentiate(positions)
	n := len(tr) - 1
	first.Velocity, first.Acceleration = k.Velocity[0], k.Acceleration[0]
	last.Velocity, last.Acceleration = k.Velocity[n], k.Acceleration[n]
	return Endpoints{First: first, Last: last}
}

func velocityUnset(tr []models.Sample) bool {
	for _, smp := range tr {
		if smp.Velocity != (r3.Vec{}) {
			return false
		}
	}
	return true
}

// Evaluator scores how well the start of one trajectory continues the end
// of another (Xu, 2008).
type Evaluator struct {
	maxGap      float64
	maxDistance float64
	accelWeight float64
}

// NewEvaluator returns an evaluator accepting gaps in (0, maxGap] and scores
// up to maxDistance. accelWeight scales the acceleration correction applied
// to the projected velocity; zero leaves acceleration unused.
func NewEvaluator(maxGap, maxDistance, accelWeight float64) *Evaluator {
	return &Evaluator{
		maxGap:      maxGap,
		maxDistance: maxDistance,
		accelWeight: accelWeight,
	}
}

// Evaluate projects the end state of src forward to the start time of dst
// assuming constant velocity and returns the gap and the combined
// position/velocity residual. ok is false when the gap is outside (0, Ts] or
// the score exceeds dm.
func (e *Evaluator) Evaluate(src, dst Endpoints) (gap, score float64, ok bool) {
	gap = dst.First.Time - src.Last.Time
	if !(gap > 0 && gap <= e.maxGap) {
		return 0, 0, false
	}

	end := src.Last
	projPos := r3.Add(end.Position, r3.Scale(gap, end.Velocity))
	projVel := r3.Add(end.Velocity, r3.Scale(e.accelWeight*gap, end.Acceleration))

	dx := r3.Norm(r3.Sub(projPos, dst.First.Position))
	dv := r3.Norm(r3.Sub(projVel, dst.First.Velocity))
	score = math.Hypot(dx, dv)

	// NaN kinematics give a NaN score, which must not pass the gate
	if !(score <= e.maxDistance) {
		return 0, 0, false
	}
	return gap, score, true
}

// EvaluatePair is Evaluate on two raw trajectories.
func (e *Evaluator) EvaluatePair(src, dst []models.Sample) (gap, score float64, ok bool) {
	if len(src) == 0 || len(dst) == 0 {
		return 0, 0, false
	}
	return e.Evaluate(EndpointsOf(src), EndpointsOf(dst))
}

// endpointCache computes each trajectory's endpoints at most once, on first
// use, and is safe for concurrent readers.
type endpointCache struct {
	lookup map[int]func() Endpoints
}

func newEndpointCache(store *trajectory.Store, ids []int) *endpointCache {
	c := &endpointCache{lookup: make(map[int]func() Endpoints, len(ids))}
	for _, id := range ids {
		tr := store.Trajectory(id)
		c.lookup[id] = sync.OnceValue(func() Endpoints { return EndpointsOf(tr) })
	}
	return c
}

func (c *endpointCache) get(id int) Endpoints {
	return c.lookup[id]()
}
