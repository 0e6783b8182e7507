package stitching

import (
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"ptvstitch/internal/models"
	"ptvstitch/pkg/trajectory"
)

// linear returns n samples of a particle moving along x at speed v, starting
// at x0 at time t0, with the velocity stored on every sample.
func linear(id int, t0 float64, n int, x0, v float64) []models.Sample {
	out := make([]models.Sample, n)
	for i := range out {
		dt := float64(i)
		out[i] = models.Sample{
			TrajectoryID: id,
			Position:     r3.Vec{X: x0 + v*dt},
			Velocity:     r3.Vec{X: v},
			Time:         t0 + dt,
		}
	}
	return out
}

func newStore(t *testing.T, parts ...[]models.Sample) *trajectory.Store {
	t.Helper()
	var all []models.Sample
	for _, p := range parts {
		all = append(all, p...)
	}
	s, err := trajectory.NewStore(all)
	require.NoError(t, err)
	return s
}

func quietParams(ts, dm float64) Params {
	p := DefaultParams(ts, dm)
	p.Logger = log.New(io.Discard, "", 0)
	return p
}
