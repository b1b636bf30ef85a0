// Package matcher implements the greedy one-to-one document assignment
// described in spec.md §4.6: sort candidate pairs descending by score and
// walk the sorted list, skipping any pair whose endpoint was already
// claimed. It is intentionally suboptimal (not a maximum-weight bipartite
// matching) but deterministic, per spec.md §9.
package matcher

import (
	"sort"

	"github.com/bits-and-blooms/bitset"
	"github.com/bitextor/docalign/internal/scorer"
)

// Match sorts pairs descending by (score, RefID, TargetID) — all three
// keys descending, the last two chosen purely for deterministic ordering
// independent of the order Score calls arrived in — and greedily emits
// pairs whose endpoints have not yet been claimed, stopping after
// min(nTranslated, nTarget) pairs or when the sorted list is exhausted.
//
// translated_seen/target_seen are bitset.BitSet values rather than []bool:
// compact bitmaps, sized once and never resized here. Unlike
// internal/docfreq.PrunedSet, they carry no lock; Match uses them from a
// single goroutine.
func Match(pairs []scorer.Pair, nTranslated, nTarget int) []scorer.Pair {
	sorted := make([]scorer.Pair, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.RefID != b.RefID {
			return a.RefID > b.RefID
		}
		return a.TargetID > b.TargetID
	})

	translatedSeen := bitset.New(uint(nTranslated + 1))
	targetSeen := bitset.New(uint(nTarget + 1))

	limit := nTranslated
	if nTarget < limit {
		limit = nTarget
	}

	matched := make([]scorer.Pair, 0, limit)
	for _, p := range sorted {
		if len(matched) >= limit {
			break
		}
		if translatedSeen.Test(uint(p.RefID)) || targetSeen.Test(uint(p.TargetID)) {
			continue
		}
		translatedSeen.Set(uint(p.RefID))
		targetSeen.Set(uint(p.TargetID))
		matched = append(matched, p)
	}
	return matched
}
