package stitching

import (
	"cmp"
	"fmt"
	"slices"

	"ptvstitch/internal/models"
)

// SelectorKind names a conflict-resolution strategy.
type SelectorKind string

const (
	// SelectorGreedy accepts candidates in ascending score order
	SelectorGreedy SelectorKind = "greedy"

	// SelectorOptimal solves the source/target assignment exactly
	SelectorOptimal SelectorKind = "optimal"
)

// ParseSelector validates a selector name. The empty string means greedy.
func ParseSelector(name string) (SelectorKind, error) {
	switch SelectorKind(name) {
	case "", SelectorGreedy:
		return SelectorGreedy, nil
	case SelectorOptimal:
		return SelectorOptimal, nil
	default:
		return "", fmt.Errorf("unknown selector %q (want %q or %q)", name, SelectorGreedy, SelectorOptimal)
	}
}

// Select dispatches to the strategy named by kind.
func Select(kind SelectorKind, cands []models.Candidate) []models.Candidate {
	if kind == SelectorOptimal {
		return SelectOptimal(cands)
	}
	return SelectGreedy(cands)
}

// SelectGreedy resolves conflicts so every trajectory is a source at most
// once and a target at most once. Candidates are visited by ascending score,
// equal scores in input order, and accepted when neither end is taken yet.
// The result is in acceptance order.
func SelectGreedy(cands []models.Candidate) []models.Candidate {
	sorted := byScore(cands)

	usedSrc := make(map[int]bool)
	usedDst := make(map[int]bool)
	var out []models.Candidate
	for _, c := range sorted {
		if usedSrc[c.Source] || usedDst[c.Target] {
			continue
		}
		usedSrc[c.Source] = true
		usedDst[c.Target] = true
		out = append(out, c)
	}
	return out
}

// SelectOptimal picks the matching with the most connections and, among
// those, the lowest total score. The result is ordered like SelectGreedy's.
func SelectOptimal(cands []models.Candidate) []models.Candidate {
	if len(cands) == 0 {
		return nil
	}

	srcIdx := make(map[int]int)
	dstIdx := make(map[int]int)
	var srcs, dsts []int
	maxScore := 0.0
	for _, c := range cands {
		if _, ok := srcIdx[c.Source]; !ok {
			srcIdx[c.Source] = len(srcs)
			srcs = append(srcs, c.Source)
		}
		if _, ok := dstIdx[c.Target]; !ok {
			dstIdx[c.Target] = len(dsts)
			dsts = append(dsts, c.Target)
		}
		maxScore = max(maxScore, c.Score)
	}

	// A forbidden cell must cost more than any feasible total so the
	// solver never trades a connection for a lower score sum.
	forbidden := float64(max(len(srcs), len(dsts))+1)*(maxScore+1) + 1

	cost := make([][]float64, len(srcs))
	best := make([][]int, len(srcs))
	for i := range cost {
		cost[i] = make([]float64, len(dsts))
		best[i] = make([]int, len(dsts))
		for j := range cost[i] {
			cost[i][j] = forbidden
			best[i][j] = -1
		}
	}
	for k, c := range cands {
		i, j := srcIdx[c.Source], dstIdx[c.Target]
		if best[i][j] < 0 || c.Score < cost[i][j] {
			cost[i][j] = c.Score
			best[i][j] = k
		}
	}

	var picked []models.Candidate
	for i, j := range hungarianAssign(cost, forbidden) {
		if j >= 0 {
			picked = append(picked, cands[best[i][j]])
		}
	}
	return byScore(picked)
}

func byScore(cands []models.Candidate) []models.Candidate {
	sorted := slices.Clone(cands)
	slices.SortStableFunc(sorted, func(a, b models.Candidate) int {
		return cmp.Compare(a.Score, b.Score)
	})
	return sorted
}
