package chain

import (
	"strings"

	"github.com/zadorian/submarine/internal/model"
)

// detectBinaryStars scans a finished run's nodes for same-type entities
// that were discovered under distinct dedup keys but whose values are
// close enough (Levenshtein distance <= binaryStarThreshold) to
// plausibly be the same real-world thing — a person spelled two ways,
// a company name with and without its suffix. Each pair is reported
// exactly once via bus.BinaryStar; no merge is attempted.
//
// Grounded on disambiguation.py's DisambiguationService._detect_collisions/
// _evaluate_pair, which treats a fuzzy name match with no shared hard
// identifier as a "Park" case: surfaced for review, never auto-fused.
func (e *Executor) detectBinaryStars(nodes []model.ChainEntityNode) {
	if e.bus == nil || len(nodes) < 2 {
		return
	}

	byType := map[string][]model.ChainEntityNode{}
	for _, n := range nodes {
		byType[n.Type] = append(byType[n.Type], n)
	}

	for typ, group := range byType {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				keyA, keyB := entityKey(a.Type, a.Value), entityKey(b.Type, b.Value)
				if keyA == keyB {
					continue
				}
				dist := levenshtein(strings.ToLower(a.Value), strings.ToLower(b.Value))
				if dist > 0 && dist <= binaryStarThreshold {
					e.bus.BinaryStar(typ, a.Value, b.Value, dist)
				}
			}
		}
	}
}

// binaryStarThreshold is the maximum edit distance two same-type entity
// values may have while still being flagged as a possible collision.
const binaryStarThreshold = 2

// levenshtein returns the edit distance between a and b (single-char
// insert/delete/substitute), computed with a two-row dynamic program.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			curr[j] = min
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
