package profit

import (
	"math"
	"testing"
)

func TestNormalizeVehicleTag(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"bike", TagBike},
		{"Bicycle", TagBike},
		{"  CYCLE  ", TagBike},
		{"دراجة", TagBike},
		{"motorbike", TagMotorbike},
		{"Motorcycle", TagMotorbike},
		{"scooter", TagMotorbike},
		{"دراجة نارية", TagMotorbike},
		{"", TagBike},
		{"hoverboard", TagBike},
	}

	for _, tc := range cases {
		if got := NormalizeVehicleTag(tc.input); got != tc.want {
			t.Fatalf("NormalizeVehicleTag(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestDeliveryProfit(t *testing.T) {
	cases := []struct {
		name       string
		fee        float64
		percentage float64
		want       float64
	}{
		{"ten percent", 2000, 10, 200},
		{"fifteen percent", 1500, 15, 225},
		{"zero fee", 0, 10, 0},
		{"zero percentage", 2000, 0, 0},
		{"fractional", 999, 12.5, 124.875},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeliveryProfit(tc.fee, tc.percentage)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
