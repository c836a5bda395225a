package anchor

import "sort"

// Result is the outcome of one reconciliation pass.
type Result struct {
	// Baseline is the updated baseline. The input baseline is not modified.
	Baseline Set

	// Corrections holds the pre-drift baseline state of every anchor whose
	// altitude or height drifted. Each identity appears at most once.
	Corrections Set

	// Identities per pairing outcome, sorted.
	Added   []string // in current only; admitted to the baseline
	Moved   []string // lat/lon changed; baseline replaced by current
	Drifted []string // alt/hgt changed; queued for correction
	Missing []string // in baseline only; left untouched
}

// Changed reports whether the pass produced anything worth persisting.
func (r Result) Changed() bool {
	return len(r.Added) > 0 || len(r.Moved) > 0 || len(r.Corrections) > 0
}

// Reconcile pairs current anchors with the baseline by identity.
//
// New anchors are admitted as-is. Horizontal movement (lat/lon) is accepted and
// replaces the baseline entry. Vertical drift (alt/hgt) is never accepted: the
// baseline entry as it was before this pass is queued for correction, even when
// the same anchor also moved horizontally in this pass. Anchors missing from
// current are left exactly as stored.
func Reconcile(current []Anchor, baseline Set) Result {
	res := Result{
		Baseline:    baseline.Clone(),
		Corrections: make(Set),
	}

	cur := make(map[string]Anchor, len(current))
	for _, a := range current {
		cur[Key(a)] = a
	}

	for key, now := range cur {
		before, known := baseline.Get(key)
		if !known {
			res.Baseline.Put(now)
			res.Added = append(res.Added, key)
			continue
		}

		if Changed(now.Lat, before.Lat) || Changed(now.Lon, before.Lon) {
			res.Baseline.Put(now)
			res.Moved = append(res.Moved, key)
		}

		if Changed(now.Alt, before.Alt) || Changed(now.Hgt, before.Hgt) {
			res.Corrections.Put(before)
			res.Drifted = append(res.Drifted, key)
		}
	}

	for key := range baseline {
		if _, ok := cur[key]; !ok {
			res.Missing = append(res.Missing, key)
		}
	}

	sort.Strings(res.Added)
	sort.Strings(res.Moved)
	sort.Strings(res.Drifted)
	sort.Strings(res.Missing)
	return res
}
