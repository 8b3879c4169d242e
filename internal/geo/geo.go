package geo

import "math"

const earthRadiusKm = 6371.0

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

type Point struct {
	Lat float64
	Lng float64
}

// DistanceKm returns the great-circle distance between two coordinates.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	lat1Rad := toRad(lat1)
	lat2Rad := toRad(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Sin(dLng/2)*math.Sin(dLng/2)*math.Cos(lat1Rad)*math.Cos(lat2Rad)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func (p Point) DistanceTo(other Point) float64 {
	return DistanceKm(p.Lat, p.Lng, other.Lat, other.Lng)
}

func WithinRadiusKm(lat1, lng1, lat2, lng2, radiusKm float64) bool {
	return DistanceKm(lat1, lng1, lat2, lng2) <= radiusKm
}

// Centroid averages the given points. Returns false for an empty input.
func Centroid(points []Point) (Point, bool) {
	if len(points) == 0 {
		return Point{}, false
	}
	var sumLat, sumLng float64
	for _, p := range points {
		sumLat += p.Lat
		sumLng += p.Lng
	}
	n := float64(len(points))
	return Point{Lat: sumLat / n, Lng: sumLng / n}, true
}

func IsFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}

func ValidCoordinate(lat, lng float64) bool {
	return IsFinite(lat) && IsFinite(lng) && lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
