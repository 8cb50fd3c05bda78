package reconcile

import "sort"

// orderCandidates sorts candidates into reading order. Default policy
// treats the page as single-column: top edge first, left edge breaking
// ties within a tolerance band of one text-line height. When layout
// analysis asserts explicit columns, column index sorts first.
func orderCandidates(cands []*candidate, lineHeight float64) {
	if lineHeight <= 0 {
		lineHeight = 12
	}

	multiColumn := false
	for _, c := range cands {
		if c.column >= 0 {
			multiColumn = true
			break
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if multiColumn && columnOf(a) != columnOf(b) {
			return columnOf(a) < columnOf(b)
		}
		// Same band means same visual line; order left to right.
		if diff := a.box.Y0 - b.box.Y0; diff > lineHeight || diff < -lineHeight {
			return a.box.Y0 < b.box.Y0
		}
		return a.box.X0 < b.box.X0
	})
}

// columnOf treats unassigned candidates as column 0 so they interleave
// with the leftmost column rather than jumping the queue.
func columnOf(c *candidate) int {
	if c.column < 0 {
		return 0
	}
	return c.column
}
