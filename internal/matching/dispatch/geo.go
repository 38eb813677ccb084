package dispatch

import (
	"math"
	"strconv"
	"strings"

	"lead_distribution_backend/internal/matching/domain"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// Distance returns the lead-provider distance, or nil when either side lacks
// coordinates.
func Distance(lead domain.Lead, p domain.Provider) *float64 {
	if !lead.HasCoordinates() || !p.HasCoordinates() {
		return nil
	}
	d := HaversineKm(*lead.Latitude, *lead.Longitude, *p.Latitude, *p.Longitude)
	return &d
}

// DepartmentFromPostalCode derives the French department code from a postal
// code: two digits in metropolitan France, 2A/2B for Corsica and three
// digits overseas. Returns "" when the code is not five digits.
func DepartmentFromPostalCode(postalCode string) string {
	code := strings.ReplaceAll(strings.TrimSpace(postalCode), " ", "")
	if len(code) != 5 {
		return ""
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return ""
	}

	switch {
	case strings.HasPrefix(code, "97"), strings.HasPrefix(code, "98"):
		return code[:3]
	case strings.HasPrefix(code, "20"):
		if n < 20200 {
			return "2A"
		}
		return "2B"
	default:
		return code[:2]
	}
}

// LeadDepartment returns the lead's department, deriving it from the postal
// code when it was not captured at intake.
func LeadDepartment(lead domain.Lead) string {
	if d := strings.TrimSpace(lead.Department); d != "" {
		return strings.ToUpper(d)
	}
	return DepartmentFromPostalCode(lead.PostalCode)
}
