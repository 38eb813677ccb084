package dispatch

import (
	"math"
	"testing"

	"lead_distribution_backend/internal/matching/domain"
)

func TestHaversineKm(t *testing.T) {
	// Paris to Lyon is about 392 km as the crow flies.
	d := HaversineKm(48.8566, 2.3522, 45.7640, 4.8357)
	if math.Abs(d-392) > 5 {
		t.Fatalf("Paris-Lyon distance = %.1f km", d)
	}
	if HaversineKm(45, 5, 45, 5) != 0 {
		t.Fatal("distance to self must be zero")
	}
}

func TestDepartmentFromPostalCode(t *testing.T) {
	cases := map[string]string{
		"75011":   "75",
		"01000":   "01",
		"20000":   "2A",
		"20200":   "2B",
		"97400":   "974",
		" 69 003": "69",
		"7501":    "",
		"ABCDE":   "",
	}
	for in, want := range cases {
		if got := DepartmentFromPostalCode(in); got != want {
			t.Errorf("DepartmentFromPostalCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLeadDepartmentPrefersCapturedValue(t *testing.T) {
	lead := domain.Lead{Department: "2b", PostalCode: "75011"}
	if got := LeadDepartment(lead); got != "2B" {
		t.Fatalf("LeadDepartment = %q", got)
	}
	lead.Department = ""
	if got := LeadDepartment(lead); got != "75" {
		t.Fatalf("derived LeadDepartment = %q", got)
	}
}

func TestDistanceUnknownWithoutCoordinates(t *testing.T) {
	lead := parisLead()
	p := plumber(1)
	p.Latitude = nil
	if Distance(lead, p) != nil {
		t.Fatal("distance must be unknown when a coordinate is missing")
	}
}
