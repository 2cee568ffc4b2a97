package utils

// ScaleRound computes val * num / denom with round-to-nearest.
// The loss interval interpolation only ever scales sequence gaps by timestamp
// ratios (and vice versa), so the product fits comfortably in 64 bits.
func ScaleRound(val, num, denom uint64) uint64 {
	if denom == 0 {
		panic("utils: ScaleRound division by zero")
	}
	return (val*num + denom/2) / denom
}
