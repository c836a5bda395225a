package anchor

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"anchorkeeper/internal/sfs"
)

// Defaults for the stock anchor part.
const (
	DefaultPartName   = "Stamp-O-Tron Ground Anchor"
	DefaultVesselType = "DeployedGroundPart"
)

// ErrMalformedVessel is wrapped by every extraction failure on a matching vessel.
var ErrMalformedVessel = errors.New("malformed anchor vessel")

// ExtractError identifies the vessel and field that could not be read.
type ExtractError struct {
	Index int    // position among the flight state's vessels
	PID   string // empty when the pid itself is missing
	Field string
	Err   error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("vessel #%d (pid %q) field %q: %v", e.Index, e.PID, e.Field, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// Extractor selects anchor vessels from a decoded save.
type Extractor struct {
	PartName   string
	VesselType string
}

// NewExtractor returns an extractor for the stock anchor part.
func NewExtractor() Extractor {
	return Extractor{PartName: DefaultPartName, VesselType: DefaultVesselType}
}

// Matches reports whether v is a deployed anchor.
func (x Extractor) Matches(v sfs.Vessel) bool {
	return v.Name() == x.PartName && v.Type() == x.VesselType
}

// Extract returns the anchors of doc in declaration order.
// Any unreadable field on a matching vessel fails the whole extraction.
func (x Extractor) Extract(doc *sfs.Document) ([]Anchor, error) {
	vessels, err := doc.Vessels()
	if err != nil {
		return nil, err
	}

	var anchors []Anchor
	for i, v := range vessels {
		if !x.Matches(v) {
			continue
		}
		a, err := readAnchor(i, v)
		if err != nil {
			return nil, err
		}
		anchors = append(anchors, a)
	}
	return anchors, nil
}

func readAnchor(index int, v sfs.Vessel) (Anchor, error) {
	pid := strings.TrimSpace(v.PID())
	if pid == "" {
		return Anchor{}, &ExtractError{Index: index, Field: sfs.KeyPID, Err: fmt.Errorf("%w: missing pid", ErrMalformedVessel)}
	}

	a := Anchor{PID: pid}
	fields := []struct {
		key string
		dst *float64
	}{
		{sfs.KeyLat, &a.Lat},
		{sfs.KeyLon, &a.Lon},
		{sfs.KeyAlt, &a.Alt},
		{sfs.KeyHgt, &a.Hgt},
	}
	for _, f := range fields {
		raw, ok := v.Value(f.key)
		if !ok {
			return Anchor{}, &ExtractError{Index: index, PID: pid, Field: f.key, Err: fmt.Errorf("%w: missing", ErrMalformedVessel)}
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return Anchor{}, &ExtractError{Index: index, PID: pid, Field: f.key, Err: fmt.Errorf("%w: %v", ErrMalformedVessel, err)}
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return Anchor{}, &ExtractError{Index: index, PID: pid, Field: f.key, Err: fmt.Errorf("%w: non-finite value %q", ErrMalformedVessel, raw)}
		}
		*f.dst = n
	}
	return a, nil
}
