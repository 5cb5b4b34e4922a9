package math

import "golang.org/x/exp/constraints"

// Clamp returns f limited to [low, high]. low must not exceed high.
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// ClampMax limits f to high. A zero high means there is no upper limit,
// which is how device capabilities report "unbounded".
func ClampMax[T constraints.Integer | constraints.Float](f, high T) T {
	if high != 0 && f > high {
		return high
	}
	return f
}
