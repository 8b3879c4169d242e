package geofence

import (
	"math"
	"testing"
	"time"

	"mandoob-dispatch-services/internal/geo"
)

func TestCurrentRadiusKm(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		elapsed time.Duration
		want    float64
	}{
		{"fresh order", 0, 1},
		{"just under first step", 119 * time.Second, 1},
		{"three minutes", 3 * time.Minute, 2},
		{"five minutes", 5 * time.Minute, 3},
		{"seven minutes", 7 * time.Minute, 4},
		{"nine minutes", 9 * time.Minute, 5},
		{"ten minutes exactly", 10 * time.Minute, 5},
		{"an hour", time.Hour, 5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CurrentRadiusKm(created, created.Add(tc.elapsed))
			if got != tc.want {
				t.Fatalf("elapsed %v: expected radius %.0f, got %.0f", tc.elapsed, tc.want, got)
			}
		})
	}
}

func TestCurrentRadiusMonotonic(t *testing.T) {
	created := time.Now()
	prev := 0.0
	for minutes := 0; minutes <= 30; minutes++ {
		r := CurrentRadiusKm(created, created.Add(time.Duration(minutes)*time.Minute))
		if r < prev {
			t.Fatalf("radius decreased at minute %d: %.0f < %.0f", minutes, r, prev)
		}
		if r > MaxRadiusKm {
			t.Fatalf("radius exceeded cap at minute %d: %.0f", minutes, r)
		}
		prev = r
	}
}

func TestIsRecentlyActive(t *testing.T) {
	now := time.Now()
	window := 5 * time.Minute
	recent := now.Add(-time.Minute)
	stale := now.Add(-6 * time.Minute)

	cases := []struct {
		name   string
		driver Driver
		want   bool
	}{
		{"active online recent", Driver{IsActive: true, IsOnline: true, LastActivityAt: &recent}, true},
		{"offline", Driver{IsActive: true, IsOnline: false, LastActivityAt: &recent}, false},
		{"deactivated", Driver{IsActive: false, IsOnline: true, LastActivityAt: &recent}, false},
		{"stale activity", Driver{IsActive: true, IsOnline: true, LastActivityAt: &stale}, false},
		{"never seen", Driver{IsActive: true, IsOnline: true}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRecentlyActive(tc.driver, now, window); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestInRadiusMissingCoordinates(t *testing.T) {
	center := geo.Point{Lat: 33.51, Lng: 36.29}
	if InRadius(Driver{}, center, 100) {
		t.Fatal("driver without coordinates must never be in radius")
	}

	lat, lng := 33.515, 36.295
	if !InRadius(Driver{Lat: &lat, Lng: &lng}, center, 2) {
		t.Fatal("driver ~0.7km away should be inside a 2km ring")
	}
}

func TestValidateSpread(t *testing.T) {
	a := StorePoint{StoreID: 1, Point: geo.Point{Lat: 33.51, Lng: 36.29}}
	b := StorePoint{StoreID: 2, Point: geo.Point{Lat: 33.55, Lng: 36.35}}
	near := StorePoint{StoreID: 3, Point: geo.Point{Lat: 33.512, Lng: 36.292}}

	result := validateSpread([]StorePoint{a, b}, 3)
	if result.Valid {
		t.Fatal("stores ~7.1km apart must fail a 3km cap")
	}
	if math.Abs(result.MaxDistanceKm-7.12) > 0.05 {
		t.Fatalf("expected worst pair ~7.12km, got %.3f", result.MaxDistanceKm)
	}
	if result.StoreAID != 1 || result.StoreBID != 2 {
		t.Fatalf("expected offending pair (1,2), got (%d,%d)", result.StoreAID, result.StoreBID)
	}

	if r := validateSpread([]StorePoint{a, near}, 3); !r.Valid {
		t.Fatalf("stores ~0.3km apart should pass: %+v", r)
	}
	if r := validateSpread([]StorePoint{a}, 3); !r.Valid {
		t.Fatal("a single store is trivially valid")
	}
	if r := validateSpread(nil, 3); !r.Valid {
		t.Fatal("no stores is trivially valid")
	}
}

func TestSortRoute(t *testing.T) {
	start := geo.Point{Lat: 33.50, Lng: 36.28}
	end := geo.Point{Lat: 33.53, Lng: 36.33}
	far := StorePoint{StoreID: 10, Point: geo.Point{Lat: 33.56, Lng: 36.36}}
	mid := StorePoint{StoreID: 20, Point: geo.Point{Lat: 33.53, Lng: 36.31}}
	nearest := StorePoint{StoreID: 30, Point: geo.Point{Lat: 33.505, Lng: 36.285}}

	route := sortRoute([]StorePoint{far, mid, nearest}, start, end)

	if len(route.Stops) != 3 {
		t.Fatalf("expected 3 stops, got %d", len(route.Stops))
	}
	wantOrder := []int64{30, 20, 10}
	for i, want := range wantOrder {
		if route.Stops[i].StoreID != want {
			t.Fatalf("stop %d: expected store %d, got %d", i, want, route.Stops[i].StoreID)
		}
		if route.Stops[i].VisitOrderIndex != i {
			t.Fatalf("stop %d: visit order index %d", i, route.Stops[i].VisitOrderIndex)
		}
	}

	// Sorted once by distance from the start, so this is a heuristic route,
	// not a shortest-path guarantee. The total must still cover every leg
	// plus the tail to the delivery point.
	var legs float64
	for _, s := range route.Stops {
		legs += s.LegDistanceKm
	}
	if route.TotalEstimateKm+0.01 < legs {
		t.Fatalf("total %.3f smaller than sum of legs %.3f", route.TotalEstimateKm, legs)
	}
	if route.TailLegKm <= 0 {
		t.Fatal("expected a positive tail leg to the delivery point")
	}
}

func TestSortRouteEmpty(t *testing.T) {
	start := geo.Point{Lat: 33.50, Lng: 36.28}
	end := geo.Point{Lat: 33.53, Lng: 36.33}
	route := sortRoute(nil, start, end)
	if len(route.Stops) != 0 {
		t.Fatal("expected no stops")
	}
	if math.Abs(route.TotalEstimateKm-route.TailLegKm) > 1e-9 {
		t.Fatal("with no stops the total is just the start-to-delivery leg")
	}
}
