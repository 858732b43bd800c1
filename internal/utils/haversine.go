package utils

import "math"

const earthRadiusKm = 6371.0

// HaversineKm is the great-circle distance in kilometres between two WGS84 points.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := radians(lat1), radians(lat2)
	h := hav(phi2-phi1) + math.Cos(phi1)*math.Cos(phi2)*hav(radians(lon2-lon1))
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(math.Min(1, h)))
}

// ValidCoordinate reports whether lat/lon fall inside the WGS84 ranges.
func ValidCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180 && !math.IsNaN(lat) && !math.IsNaN(lon)
}

func hav(theta float64) float64 {
	s := math.Sin(theta / 2)
	return s * s
}

func radians(d float64) float64 {
	return d * math.Pi / 180
}
