package util

import "strconv"

// ParseIntDefault parses s as an int, falling back to def when s is empty
// or malformed.
func ParseIntDefault(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// ClampInt bounds v to [min, max].
func ClampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
