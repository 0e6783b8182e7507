package smoothing

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"ptvstitch/internal/models"
	"ptvstitch/pkg/trajectory"
)

// SetStats summarises a SmoothSet run.
type SetStats struct {
	// Smoothed is the number of samples whose kinematics were fitted
	Smoothed int

	// TooShort is the number of samples in trajectories shorter than the window
	TooShort int

	// Orphans is the number of unassigned samples passed through
	Orphans int

	// ResidualRMS is the root mean square displacement between raw and
	// smoothed positions over the smoothed samples
	ResidualRMS float64
}

// SmoothSet smooths every trajectory of store with p using numWorkers
// goroutines. Trajectories shorter than the window keep their positions and
// get zero velocity and acceleration, as do orphan samples.
func SmoothSet(store *trajectory.Store, p *PolySmoother, numWorkers int) (*trajectory.Store, SetStats, error) {
	if numWorkers < 1 {
		numWorkers = runtime.NumCPU()
	}

	ids := store.IDs()
	results := make([][]models.Sample, len(ids))
	errs := make([]error, len(ids))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx], errs[idx] = smoothTrajectory(store.Trajectory(ids[idx]), p)
			}
		}()
	}
	for idx := range ids {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	var (
		stats     SetStats
		residuals []float64
	)
	out := make([]models.Sample, 0, store.SampleCount()+len(store.Orphans()))
	for idx, tr := range results {
		if errs[idx] != nil {
			return nil, stats, fmt.Errorf("trajectory %d: %w", ids[idx], errs[idx])
		}
		if len(tr) < p.window {
			stats.TooShort += len(tr)
		} else {
			stats.Smoothed += len(tr)
			for i, smp := range store.Trajectory(ids[idx]) {
				residuals = append(residuals, r3.Norm2(r3.Sub(smp.Position, tr[i].Position)))
			}
		}
		out = append(out, tr...)
	}
	if len(residuals) > 0 {
		stats.ResidualRMS = math.Sqrt(stat.Mean(residuals, nil))
	}
	for _, smp := range store.Orphans() {
		smp.Velocity, smp.Acceleration = r3.Vec{}, r3.Vec{}
		out = append(out, smp)
		stats.Orphans++
	}

	smoothed, err := trajectory.NewStore(out)
	if err != nil {
		return nil, stats, err
	}
	return smoothed, stats, nil
}

func smoothTrajectory(tr []models.Sample, p *PolySmoother) ([]models.Sample, error) {
	out := make([]models.Sample, len(tr))
	copy(out, tr)

	if len(tr) < p.window {
		for i := range out {
			out[i].Velocity, out[i].Acceleration = r3.Vec{}, r3.Vec{}
		}
		return out, nil
	}

	positions := make([]r3.Vec, len(tr))
	for i, smp := range tr {
		positions[i] = smp.Position
	}
	k, err := p.Smooth(positions)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Position = k.Position[i]
		out[i].Velocity = k.Velocity[i]
		out[i].Acceleration = k.Acceleration[i]
	}
	return out, nil
}
