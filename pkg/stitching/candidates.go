package stitching

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"ptvstitch/internal/models"
	"ptvstitch/pkg/trajectory"
)

// minStitchLength is the fewest samples a trajectory needs to take part in a
// connection: the gap fit uses two samples from each side.
const minStitchLength = 2

// GenerateCandidates evaluates every ordered pair of distinct trajectories
// and returns the pairs that pass the evaluator's gates. Orphan samples and
// trajectories with fewer than two samples never take part.
//
// The work is O(N²) in the number of trajectories and is spread over
// numWorkers goroutines by source trajectory. Results are ordered by source
// id, then target id, independent of numWorkers.
func GenerateCandidates(ctx context.Context, store *trajectory.Store, eval *Evaluator, numWorkers int) ([]models.Candidate, error) {
	if numWorkers < 1 {
		numWorkers = runtime.NumCPU()
	}

	ids := eligibleIDs(store)
	cache := newEndpointCache(store, ids)

	// rows[i] holds the candidates whose source is ids[i]
	rows := make([][]models.Candidate, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(numWorkers)
	for i, src := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			srcEnd := cache.get(src)
			for _, dst := range ids {
				if dst == src {
					continue
				}
				gap, score, ok := eval.Evaluate(srcEnd, cache.get(dst))
				if !ok {
					continue
				}
				rows[i] = append(rows[i], models.Candidate{
					Source: src,
					Target: dst,
					Gap:    gap,
					Score:  score,
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []models.Candidate
	for _, row := range rows {
		out = append(out, row...)
	}
	return out, nil
}

func eligibleIDs(store *trajectory.Store) []int {
	all := store.IDs()
	ids := all[:0]
	for _, id := range all {
		if len(store.Trajectory(id)) >= minStitchLength {
			ids = append(ids, id)
		}
	}
	return ids
}
