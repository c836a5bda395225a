package anchor

import (
	"strconv"

	"anchorkeeper/internal/sfs"
)

// FormatValue renders v the way it is written back into a save file:
// the shortest decimal text that parses back to exactly v.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Correct overwrites lat, lon, alt and hgt of every vessel whose pid has a
// correction. Corrections without a matching vessel are skipped. It returns
// the number of vessels rewritten; the caller re-encodes only when it is > 0.
func Correct(doc *sfs.Document, corrections Set) (int, error) {
	if len(corrections) == 0 {
		return 0, nil
	}
	vessels, err := doc.Vessels()
	if err != nil {
		return 0, err
	}

	applied := 0
	done := make(map[string]bool, len(corrections))
	for _, v := range vessels {
		key := v.PID()
		a, ok := corrections.Get(key)
		if !ok || done[key] {
			continue
		}
		v.SetValue(sfs.KeyLat, FormatValue(a.Lat))
		v.SetValue(sfs.KeyLon, FormatValue(a.Lon))
		v.SetValue(sfs.KeyAlt, FormatValue(a.Alt))
		v.SetValue(sfs.KeyHgt, FormatValue(a.Hgt))
		done[key] = true
		applied++
	}
	return applied, nil
}
