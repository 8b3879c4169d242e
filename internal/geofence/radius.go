package geofence

import "time"

type radiusStep struct {
	maxMinutes float64
	radiusKm   float64
}

// Progressive search radius: the longer an order waits for a driver, the
// wider the ring of drivers allowed to see it. Evaluated in ascending
// order of the minute threshold; the first threshold exceeding the elapsed
// minutes wins, and past the last threshold the radius stays capped.
var radiusSteps = []radiusStep{
	{maxMinutes: 2, radiusKm: 1},
	{maxMinutes: 4, radiusKm: 2},
	{maxMinutes: 6, radiusKm: 3},
	{maxMinutes: 8, radiusKm: 4},
	{maxMinutes: 10, radiusKm: 5},
}

// MaxRadiusKm is the widest ring ever searched.
const MaxRadiusKm = 5.0

func CurrentRadiusKm(orderCreatedAt, now time.Time) float64 {
	elapsed := now.Sub(orderCreatedAt).Minutes()
	if elapsed < 0 {
		elapsed = 0
	}
	for _, step := range radiusSteps {
		if elapsed < step.maxMinutes {
			return step.radiusKm
		}
	}
	return MaxRadiusKm
}
