package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two coordinates in kilometres.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// FormatDistance renders rounded metres below one kilometre and two-decimal
// kilometres otherwise. A distance that rounds up to 1000 m is shown as 1.00 km.
func FormatDistance(km float64) string {
	if km < 1 {
		if m := int(math.Round(km * 1000)); m < 1000 {
			return fmt.Sprintf("%d m", m)
		}
		return "1.00 km"
	}
	return fmt.Sprintf("%.2f km", km)
}

// ParseCoordinate parses a form value as a float, falling back to 0.0 on empty
// or malformed input.
func ParseCoordinate(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0.0
	}
	return v
}

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
