package detector

import (
	"sort"

	"github.com/MeKo-Tech/photocheck/internal/utils"
)

// NonMaxSuppression performs greedy hard NMS and returns the kept candidates
// sorted by descending score.
func NonMaxSuppression(cands []Candidate, iouThreshold float64) []Candidate {
	if len(cands) <= 1 {
		return cands
	}

	indices := sortByScore(cands)
	suppressed := make([]bool, len(cands))
	kept := make([]Candidate, 0, len(cands))

	for i, a := range indices {
		if suppressed[a] {
			continue
		}
		kept = append(kept, cands[a])

		// Suppress overlapping candidates with lower score.
		for _, b := range indices[i+1:] {
			if suppressed[b] {
				continue
			}
			if IoU(cands[a].Box, cands[b].Box) > iouThreshold {
				suppressed[b] = true
			}
		}
	}
	return kept
}

// sortByScore returns candidate indices ordered by descending score. Ties
// keep their input order.
func sortByScore(cands []Candidate) []int {
	indices := make([]int, len(cands))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		return cands[indices[i]].Score > cands[indices[j]].Score
	})
	return indices
}

// IoU computes the intersection over union of two boxes.
func IoU(a, b utils.Box) float64 {
	x1 := max(a.MinX, b.MinX)
	y1 := max(a.MinY, b.MinY)
	x2 := min(a.MaxX, b.MaxX)
	y2 := min(a.MaxY, b.MaxY)
	if x1 >= x2 || y1 >= y2 {
		return 0
	}
	inter := (x2 - x1) * (y2 - y1)
	union := a.Width()*a.Height() + b.Width()*b.Height() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
