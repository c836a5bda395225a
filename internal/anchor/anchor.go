// Package anchor holds the ground-anchor domain: identity, extraction from a
// decoded save, reconciliation against the baseline and in-place correction.
//
// Identity is the PID alone. Two anchors with the same PID and different
// coordinates are revisions of one physical object, never distinct anchors.
// Key is the only identity function; nothing in this package compares Anchor
// values with == to decide identity.
package anchor

import (
	"sort"
	"strconv"
)

// Anchor is one deployed ground anchor as seen in a save file or the baseline.
type Anchor struct {
	PID string
	Lat float64 // degrees
	Lon float64 // degrees
	Alt float64 // meters
	Hgt float64 // meters
}

// Key returns the identity of a.
func Key(a Anchor) string { return a.PID }

// SameIdentity reports whether a and b are the same physical anchor.
func SameIdentity(a, b Anchor) bool { return Key(a) == Key(b) }

// precision is the number of decimals compared by Changed.
const precision = 3

// Round rounds v to the comparison precision. The exact binary value of v is
// rounded, not v scaled by 1000, so text like 1.0005 (stored just below the
// tie) rounds down; exact ties go to even.
func Round(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', precision, 64), 64)
	return r
}

// Changed reports whether a and b differ after rounding to three decimals.
// Differences below that are engine jitter and are ignored.
func Changed(a, b float64) bool {
	return Round(a) != Round(b)
}

// Set holds at most one anchor per identity.
type Set map[string]Anchor

// NewSet builds a set; later anchors replace earlier ones with the same identity.
func NewSet(anchors ...Anchor) Set {
	s := make(Set, len(anchors))
	for _, a := range anchors {
		s.Put(a)
	}
	return s
}

// Put inserts a, replacing any anchor with the same identity.
func (s Set) Put(a Anchor) { s[Key(a)] = a }

// Get returns the anchor with the given identity.
func (s Set) Get(key string) (Anchor, bool) {
	a, ok := s[key]
	return a, ok
}

// Has reports whether an anchor with a's identity is present.
func (s Set) Has(a Anchor) bool {
	_, ok := s[Key(a)]
	return ok
}

// Len returns the number of anchors.
func (s Set) Len() int { return len(s) }

// Clone returns an independent copy.
func (s Set) Clone() Set {
	c := make(Set, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Sorted returns the anchors ordered by identity.
func (s Set) Sorted() []Anchor {
	out := make([]Anchor, 0, len(s))
	for _, a := range s {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return Key(out[i]) < Key(out[j]) })
	return out
}
