package format

import "fmt"

// Frames renders a frame count with its duration, e.g. "120 (2.000s)".
func Frames(n int, rate float64) string {
	if rate <= 0 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%d (%.3fs)", n, float64(n)/rate)
}

// Seed renders a root seed as fixed-width hex.
func Seed(s uint64) string {
	return fmt.Sprintf("%#016x", s)
}

// Float renders a component with up to six significant digits.
func Float(v float64) string {
	return fmt.Sprintf("%.6g", v)
}

// BoolMark returns "✓" for true and "✗" for false.
func BoolMark(v bool) string {
	if v {
		return "✓"
	}
	return "✗"
}
