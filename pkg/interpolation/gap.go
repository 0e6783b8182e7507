package interpolation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"ptvstitch/internal/models"
)

// gapDegree is the degree of the per-axis fit through the four anchor points.
const gapDegree = 3

// MissingSteps returns how many integer time steps lie strictly between the
// end of a trajectory and the start of one that begins gap later.
func MissingSteps(gap float64) int {
	n := int(math.Floor(gap)) - 1
	if n < 0 {
		return 0
	}
	return n
}

// FillGap synthesizes samples for the time steps skipped between src and dst.
//
// Each axis is fitted independently with a cubic through the last two
// positions of src and the first two of dst, placed at relative times
// -1, 0, gap and gap+1. The fit is evaluated at 1 .. floor(gap)-1. The new
// samples carry targetID, zero velocity and acceleration, and are marked as
// interpolated. Both trajectories need at least two samples.
func FillGap(src, dst []models.Sample, gap float64, targetID int) ([]models.Sample, error) {
	if len(src) < 2 || len(dst) < 2 {
		return nil, fmt.Errorf("gap fill needs two samples on each side, got %d and %d", len(src), len(dst))
	}
	if !(gap > 0) {
		return nil, fmt.Errorf("gap fill needs a positive gap, got %g", gap)
	}

	steps := MissingSteps(gap)
	if steps == 0 {
		return nil, nil
	}

	anchors := []r3.Vec{
		src[len(src)-2].Position,
		src[len(src)-1].Position,
		dst[0].Position,
		dst[1].Position,
	}
	times := []float64{-1, 0, gap, gap + 1}
	tEnd := src[len(src)-1].Time

	out := make([]models.Sample, steps)
	for m := range out {
		out[m] = models.Sample{
			TrajectoryID: targetID,
			Time:         tEnd + float64(m+1),
			Interpolated: true,
		}
	}

	for axis := 0; axis < 3; axis++ {
		ys := make([]float64, len(anchors))
		for i, p := range anchors {
			ys[i] = models.Axis(p, axis)
		}
		coefs, err := FitPolynomial(times, ys, gapDegree)
		if err != nil {
			return nil, fmt.Errorf("axis %d: %w", axis, err)
		}
		for m := range out {
			models.SetAxis(&out[m].Position, axis, EvalPolynomial(coefs, float64(m+1)))
		}
	}

	return out, nil
}
