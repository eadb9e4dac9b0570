package gmail

import (
	"strconv"
)

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// FormatSize renders a byte count with binary (1024) steps, at most two
// decimals and no trailing zeros: "0 B", "1023 B", "1.5 KB", "2 GB".
// Sizes beyond the GB range stay in GB.
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}

	value := float64(bytes)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}

	return strconv.FormatFloat(roundTo2(value), 'f', -1, 64) + " " + sizeUnits[unit]
}

func roundTo2(v float64) float64 {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	r, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return v
	}
	return r
}
