package geofence

import (
	"sort"

	"mandoob-dispatch-services/internal/geo"
	"mandoob-dispatch-services/internal/utils"
)

type StoreStop struct {
	StoreID         int64   `json:"storeId"`
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	DistanceFromKm  float64 `json:"distanceFromStartKm"`
	LegDistanceKm   float64 `json:"legDistanceKm"`
	VisitOrderIndex int     `json:"visitOrder"`
}

type Route struct {
	Stops           []StoreStop `json:"stops"`
	TailLegKm       float64     `json:"tailLegKm"`
	TotalEstimateKm float64     `json:"totalEstimateKm"`
}

type StorePoint struct {
	StoreID int64
	Point   geo.Point
}

// sortRoute orders stores by their distance from the start point, sorted
// once up front. This is a deliberate heuristic, not a shortest-path
// computation: the ordering is never re-evaluated hop by hop, so the
// resulting route is not guaranteed optimal.
func sortRoute(stores []StorePoint, start, end geo.Point) Route {
	stops := make([]StoreStop, 0, len(stores))
	for _, s := range stores {
		stops = append(stops, StoreStop{
			StoreID:        s.StoreID,
			Lat:            s.Point.Lat,
			Lng:            s.Point.Lng,
			DistanceFromKm: utils.Round3(start.DistanceTo(s.Point)),
		})
	}

	sort.SliceStable(stops, func(i, j int) bool {
		return stops[i].DistanceFromKm < stops[j].DistanceFromKm
	})

	var total float64
	prev := start
	for i := range stops {
		leg := prev.DistanceTo(geo.Point{Lat: stops[i].Lat, Lng: stops[i].Lng})
		stops[i].LegDistanceKm = utils.Round3(leg)
		stops[i].VisitOrderIndex = i
		total += leg
		prev = geo.Point{Lat: stops[i].Lat, Lng: stops[i].Lng}
	}

	tail := prev.DistanceTo(end)
	total += tail

	return Route{
		Stops:           stops,
		TailLegKm:       utils.Round3(tail),
		TotalEstimateKm: utils.Round3(total),
	}
}

// PlanRoute estimates a multi-stop trip over arbitrary points using the
// same once-sorted ordering as store routes.
func PlanRoute(stops []StorePoint, start, end geo.Point) Route {
	return sortRoute(stops, start, end)
}

type StoresDistanceResult struct {
	Valid         bool    `json:"valid"`
	MaxDistanceKm float64 `json:"maxDistanceKm"`
	StoreAID      int64   `json:"storeAId,omitempty"`
	StoreBID      int64   `json:"storeBId,omitempty"`
}

// validateSpread checks every distinct store pair against the cap and
// reports the worst-offending pair. Zero or one store is trivially valid,
// and stores without coordinates contribute distance 0.
func validateSpread(stores []StorePoint, maxSpreadKm float64) StoresDistanceResult {
	result := StoresDistanceResult{Valid: true}
	for i := 0; i < len(stores); i++ {
		for j := i + 1; j < len(stores); j++ {
			d := stores[i].Point.DistanceTo(stores[j].Point)
			if d > result.MaxDistanceKm {
				result.MaxDistanceKm = d
				result.StoreAID = stores[i].StoreID
				result.StoreBID = stores[j].StoreID
			}
		}
	}
	result.MaxDistanceKm = utils.Round3(result.MaxDistanceKm)
	if result.MaxDistanceKm > maxSpreadKm {
		result.Valid = false
	}
	return result
}
