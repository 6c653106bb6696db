package util

import "math"

// CostEpsilon is the tolerance used when comparing USD amounts
const CostEpsilon = 1e-9

// AbsFloat64 returns the absolute value of x.
func AbsFloat64(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// FloatEqual reports whether a and b differ by at most eps.
func FloatEqual(a, b, eps float64) bool {
	return AbsFloat64(a-b) <= eps
}

// CeilDiv returns ceil(a/b) for positive b; 0 when a <= 0.
func CeilDiv(a, b int) int {
	if a <= 0 || b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// MaxInt returns the larger of a and b.
func MaxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// RoundCents rounds a USD amount to whole cents.
func RoundCents(x float64) float64 {
	return math.Round(x*100) / 100
}
