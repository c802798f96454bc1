package threshold

import "strconv"

// trimFloat formats v with the minimal number of decimal digits needed
// to round-trip, matching how a human-authored rules file would write
// "0" rather than "0.000000".
func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
