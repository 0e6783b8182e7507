// Package stitching reconnects trajectory fragments broken by the tracker,
// after Xu (2008), "Tracking Lagrangian trajectories in position–velocity
// space", Meas. Sci. Technol. 19 075105.
//
// The pipeline runs in four stages, each usable on its own:
//  1. GenerateCandidates scores every ordered pair of trajectories
//  2. Select resolves conflicts so each trajectory end is used once
//  3. ApplyConnections merges the selected pairs and fills their gaps
//  4. the merged trajectories get their kinematics recomputed from position
package stitching

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"ptvstitch/internal/models"
	"ptvstitch/pkg/interpolation"
	"ptvstitch/pkg/smoothing"
	"ptvstitch/pkg/trajectory"
)

// Stats summarises a stitching pass. Trajectory counts exclude orphans.
type Stats struct {
	TrajectoriesBefore int
	TrajectoriesAfter  int
	MeanLengthBefore   float64
	MeanLengthAfter    float64

	// Candidates is the number of valid pairs before conflict resolution
	Candidates int

	// Connections is the number of pairs joined
	Connections int

	// Interpolated is the number of samples synthesized for gaps
	Interpolated int

	// MeanScore is the average score of the joined pairs
	MeanScore float64

	// DifferencedTrajectories counts stitched trajectories too short for the
	// smoother, whose kinematics came from finite differences instead
	DifferencedTrajectories int
}

// Result is the output of a stitching pass.
type Result struct {
	Store       *trajectory.Store
	Connections []models.Connection
	Stats       Stats
}

// Stitcher runs the full stitching pipeline.
type Stitcher struct {
	params Params
	eval   *Evaluator
}

// NewStitcher validates params and returns a stitcher.
func NewStitcher(params Params) (*Stitcher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Stitcher{
		params: params,
		eval:   NewEvaluator(params.MaxTimeSeparation, params.MaxDistance, params.AccelerationWeight),
	}, nil
}

// Params returns the validated parameters.
func (s *Stitcher) Params() Params {
	return s.params
}

// Process stitches the trajectories of store. The input store is not
// modified; the stitched set is returned in the result.
func (s *Stitcher) Process(ctx context.Context, store *trajectory.Store) (*Result, error) {
	logger := s.params.Logger
	stats := Stats{
		TrajectoriesBefore: store.Len(),
		MeanLengthBefore:   store.MeanLength(),
	}
	logger.Printf("starting at %d trajectories", stats.TrajectoriesBefore)
	logger.Printf("with %.1f samples per trajectory on average", stats.MeanLengthBefore)

	logger.Println("searching for candidates to connect")
	cands, err := GenerateCandidates(ctx, store, s.eval, s.params.NumWorkers)
	if err != nil {
		return nil, fmt.Errorf("failed to generate candidates: %w", err)
	}
	stats.Candidates = len(cands)

	selected := Select(s.params.Selector, cands)
	logger.Printf("found %d connections to be made", len(selected))

	logger.Println("connecting")
	stitched, conns, err := ApplyConnections(store, selected)
	if err != nil {
		return nil, err
	}

	final, differenced, err := RecomputeKinematics(stitched, conns, s.params.Smoother)
	if err != nil {
		return nil, err
	}
	logger.Println("finished connecting trajectories")

	stats.Connections = len(conns)
	stats.DifferencedTrajectories = differenced
	scores := make([]float64, len(conns))
	for i, c := range conns {
		stats.Interpolated += c.Interpolated
		scores[i] = c.Score
	}
	if len(scores) > 0 {
		stats.MeanScore = stat.Mean(scores, nil)
	}
	stats.TrajectoriesAfter = final.Len()
	stats.MeanLengthAfter = final.MeanLength()

	logger.Printf("interpolated %d new samples", stats.Interpolated)
	logger.Printf("finished with %d trajectories", stats.TrajectoriesAfter)
	logger.Printf("at %.1f samples per trajectory on average", stats.MeanLengthAfter)

	return &Result{Store: final, Connections: conns, Stats: stats}, nil
}

// mergeState tracks trajectories while connections are applied. Samples keep
// their original ids until the final relabel; ids resolves any id to the
// trajectory that currently owns its samples.
type mergeState struct {
	ids    *trajectory.IDMap
	tracks map[int][]models.Sample
}

// ApplyConnections joins the selected candidates in order. For each one the
// target id is resolved through earlier merges, the gap is filled by
// interpolation, and the source's samples move to the resolved target. The
// returned store holds the relabelled trajectories; kinematics are left as
// they were. Any inconsistency aborts with a *ConnectionError.
func ApplyConnections(store *trajectory.Store, selected []models.Candidate) (*trajectory.Store, []models.Connection, error) {
	st := &mergeState{
		ids:    trajectory.NewIDMap(),
		tracks: make(map[int][]models.Sample, store.Len()),
	}
	for _, id := range store.IDs() {
		st.tracks[id] = store.Trajectory(id)
	}

	conns := make([]models.Connection, 0, len(selected))
	for _, c := range selected {
		conn, err := st.connect(c)
		if err != nil {
			return nil, nil, err
		}
		conns = append(conns, conn)
	}

	samples := make([]models.Sample, 0, store.SampleCount()+len(store.Orphans()))
	for id, tr := range st.tracks {
		for _, smp := range tr {
			smp.TrajectoryID = id
			samples = append(samples, smp)
		}
	}
	samples = append(samples, store.Orphans()...)

	out, err := trajectory.NewStore(samples)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to assemble stitched trajectories: %w", err)
	}
	return out, conns, nil
}

func (st *mergeState) connect(c models.Candidate) (models.Connection, error) {
	fail := func(resolved int, err error) (models.Connection, error) {
		return models.Connection{}, &ConnectionError{Source: c.Source, Target: c.Target, Resolved: resolved, Err: err}
	}

	if c.Source == models.OrphanID || c.Target == models.OrphanID {
		return fail(c.Target, ErrChainResolution)
	}
	if st.ids.Merged(c.Source) {
		return fail(st.ids.Find(c.Source), ErrSourceMerged)
	}
	if !(c.Gap > 0) {
		return fail(c.Target, ErrNonPositiveGap)
	}

	root := st.ids.Find(c.Target)
	src, dst := st.tracks[c.Source], st.tracks[root]
	if len(dst) == 0 || root == c.Source {
		return fail(root, ErrChainResolution)
	}
	if len(src) < minStitchLength || len(dst) < minStitchLength {
		return fail(root, ErrDegenerateTrajectory)
	}
	if src[len(src)-1].Time >= dst[0].Time {
		return fail(root, ErrNonPositiveGap)
	}

	filled, err := interpolation.FillGap(src, dst, c.Gap, root)
	if err != nil {
		return fail(root, err)
	}

	merged := make([]models.Sample, 0, len(src)+len(filled)+len(dst))
	merged = append(merged, src...)
	merged = append(merged, filled...)
	merged = append(merged, dst...)

	st.tracks[root] = merged
	delete(st.tracks, c.Source)
	st.ids.Union(c.Source, root)

	return models.Connection{Candidate: c, Resolved: root, Interpolated: len(filled)}, nil
}

// RecomputeKinematics replaces velocity and acceleration of every trajectory
// that received a connection, using position only. Trajectories shorter than
// the smoother's window fall back to finite differences; the number of those
// is returned. Other trajectories and orphans are copied unchanged.
func RecomputeKinematics(store *trajectory.Store, conns []models.Connection, sm smoothing.Smoother) (*trajectory.Store, int, error) {
	targets := make(map[int]bool, len(conns))
	for _, c := range conns {
		targets[c.Resolved] = true
	}

	// A resolved target may have been merged into a later one as a source;
	// recompute the trajectory that survived.
	ids := trajectory.NewIDMap()
	for _, c := range conns {
		ids.Union(c.Source, c.Resolved)
	}
	live := make([]int, 0, len(targets))
	for id := range targets {
		live = append(live, ids.Find(id))
	}
	sort.Ints(live)
	live = slices.Compact(live)

	samples := store.Samples()
	byID := make(map[int][]int)
	for i, smp := range samples {
		byID[smp.TrajectoryID] = append(byID[smp.TrajectoryID], i)
	}

	differenced := 0
	for _, id := range live {
		idx := byID[id]
		if len(idx) == 0 {
			return nil, 0, &ConnectionError{Source: id, Target: id, Resolved: id, Err: ErrChainResolution}
		}
		positions := make([]r3.Vec, len(idx))
		for k, i := range idx {
			positions[k] = samples[i].Position
		}

		kin, err := sm.Smooth(positions)
		if errors.Is(err, smoothing.ErrTooShort) {
			kin = smoothing.Differentiate(positions)
			differenced++
		} else if err != nil {
			return nil, 0, fmt.Errorf("failed to smooth trajectory %d: %w", id, err)
		}

		for k, i := range idx {
			samples[i].Velocity = kin.Velocity[k]
			samples[i].Acceleration = kin.Acceleration[k]
		}
	}

	out, err := trajectory.NewStore(samples)
	if err != nil {
		return nil, 0, err
	}
	return out, differenced, nil
}
