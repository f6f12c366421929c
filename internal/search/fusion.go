package search

import "sort"

// DefaultRRFConstant is the smoothing constant K in the reciprocal rank
// formula 1/(K+rank+1). Larger values flatten the difference between
// adjacent ranks.
const DefaultRRFConstant = 60

type fusedHit struct {
	pos       int
	score     float64
	firstSeen int
}

// fuseRRF merges ranked lists of chunk positions with reciprocal rank
// fusion. Each list contributes 1/(K+rank+1) for every item it ranks;
// items absent from a list contribute nothing for that list. The result
// is sorted by fused score descending with first-seen order breaking
// ties, deduplicated, and is a pure function of the input lists.
func fuseRRF(lists [][]int, k int) []fusedHit {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	byPos := make(map[int]*fusedHit)
	order := 0
	for _, list := range lists {
		for rank, pos := range list {
			hit, ok := byPos[pos]
			if !ok {
				hit = &fusedHit{pos: pos, firstSeen: order}
				byPos[pos] = hit
				order++
			}
			hit.score += 1.0 / float64(k+rank+1)
		}
	}

	fused := make([]fusedHit, 0, len(byPos))
	for _, hit := range byPos {
		fused = append(fused, *hit)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].firstSeen < fused[j].firstSeen
	})
	return fused
}
