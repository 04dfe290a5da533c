package domain

// RoundedMean returns sum/count rounded half-up to one decimal place, or 0
// for an empty set. Integer arithmetic keeps x.x5 means from rounding down.
func RoundedMean(sum, count int) float64 {
	if count <= 0 {
		return 0
	}
	tenths := (20*sum + count) / (2 * count)
	return float64(tenths) / 10
}
