package geo

import (
	"math"
	"testing"
)

func TestDistanceKm(t *testing.T) {
	cases := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		wantKm                 float64
		tolerance              float64
	}{
		{
			name: "same point",
			lat1: 33.51, lng1: 36.29, lat2: 33.51, lng2: 36.29,
			wantKm: 0, tolerance: 0.001,
		},
		{
			name: "damascus store pair",
			lat1: 33.51, lng1: 36.29, lat2: 33.55, lng2: 36.35,
			wantKm: 7.12, tolerance: 0.05,
		},
		{
			name: "damascus to aleppo",
			lat1: 33.5138, lng1: 36.2765, lat2: 36.2021, lng2: 37.1343,
			wantKm: 310, tolerance: 15,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DistanceKm(tc.lat1, tc.lng1, tc.lat2, tc.lng2)
			if math.Abs(got-tc.wantKm) > tc.tolerance {
				t.Fatalf("expected ~%.2f km, got %.4f km", tc.wantKm, got)
			}
		})
	}
}

func TestDistanceSymmetry(t *testing.T) {
	pairs := [][4]float64{
		{33.51, 36.29, 33.55, 36.35},
		{0, 0, 10, 10},
		{-45.2, 170.1, 51.5, -0.12},
	}
	for _, p := range pairs {
		ab := DistanceKm(p[0], p[1], p[2], p[3])
		ba := DistanceKm(p[2], p[3], p[0], p[1])
		if math.Abs(ab-ba) > 1e-9 {
			t.Fatalf("distance not symmetric: %v vs %v", ab, ba)
		}
	}
}

func TestWithinRadiusKm(t *testing.T) {
	// ~7.12km apart
	if WithinRadiusKm(33.51, 36.29, 33.55, 36.35, 5) {
		t.Fatal("points ~7.1km apart should not be within 5km")
	}
	if !WithinRadiusKm(33.51, 36.29, 33.55, 36.35, 7.5) {
		t.Fatal("points ~7.1km apart should be within 7.5km")
	}
}

func TestCentroid(t *testing.T) {
	if _, ok := Centroid(nil); ok {
		t.Fatal("empty input should report no centroid")
	}

	c, ok := Centroid([]Point{{Lat: 10, Lng: 20}, {Lat: 20, Lng: 40}})
	if !ok {
		t.Fatal("expected centroid")
	}
	if math.Abs(c.Lat-15) > 1e-9 || math.Abs(c.Lng-30) > 1e-9 {
		t.Fatalf("unexpected centroid: %+v", c)
	}
}

func TestValidCoordinate(t *testing.T) {
	cases := []struct {
		lat, lng float64
		want     bool
	}{
		{33.51, 36.29, true},
		{91, 0, false},
		{0, 181, false},
		{math.NaN(), 0, false},
		{0, math.Inf(1), false},
		{-90, -180, true},
	}
	for _, tc := range cases {
		if got := ValidCoordinate(tc.lat, tc.lng); got != tc.want {
			t.Fatalf("ValidCoordinate(%v, %v) = %v, want %v", tc.lat, tc.lng, got, tc.want)
		}
	}
}
