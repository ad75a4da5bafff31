package state

import "time"

// AddCost adds two path costs, saturating at INF instead of wrapping.
func AddCost(a, b uint64) uint64 {
	if CostOverflows(a, b) {
		return INF
	}
	return a + b
}

// CostOverflows reports whether a + b does not fit in a cost.
func CostOverflows(a, b uint64) bool {
	return a > INF-b
}

// DurationToCost converts a measured round trip into a cost in milliseconds.
// Partial milliseconds are rounded up so a reachable hop never costs 0.
func DurationToCost(rtt time.Duration) uint64 {
	if rtt <= 0 {
		return 0
	}
	ms := uint64(rtt / time.Millisecond)
	if rtt%time.Millisecond != 0 {
		ms++
	}
	return ms
}
