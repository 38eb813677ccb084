package dispatch

import (
	"testing"

	"lead_distribution_backend/internal/matching/domain"
)

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{in: "Électricien", want: "electricien"},
		{in: "Peintre-en-Bâtiment", want: "peintre en batiment"},
		{in: "  MAÇON  ", want: "macon"},
		{in: "alarme_securite", want: "alarme securite"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCatalogMatches(t *testing.T) {
	catalog := DefaultCatalog()
	cases := []struct {
		name     string
		mode     domain.SpecialtyMatchMode
		lead     string
		provider domain.Provider
		want     bool
	}{
		{name: "exact folded", mode: domain.MatchExact, lead: "Électricien", provider: domain.Provider{Specialty: "electricien"}, want: true},
		{name: "exact different", mode: domain.MatchExact, lead: "plombier", provider: domain.Provider{Specialty: "chauffagiste"}, want: false},
		{name: "fuzzy substring", mode: domain.MatchFuzzy, lead: "peintre", provider: domain.Provider{Specialty: "peintre en batiment"}, want: true},
		{name: "fuzzy typo", mode: domain.MatchFuzzy, lead: "plombiers", provider: domain.Provider{Specialty: "plomvier"}, want: true},
		{name: "fuzzy category label", mode: domain.MatchFuzzy, lead: "plomberie et chauffage", provider: domain.Provider{Specialty: "sanitaire", Category: "Plomberie et chauffage"}, want: true},
		{name: "fuzzy far", mode: domain.MatchFuzzy, lead: "couvreur", provider: domain.Provider{Specialty: "electricien"}, want: false},
		{name: "category sibling", mode: domain.MatchCategory, lead: "plombier", provider: domain.Provider{Specialty: "chauffagiste"}, want: true},
		{name: "category via provider category", mode: domain.MatchCategory, lead: "serrurier", provider: domain.Provider{Specialty: "poseur", Category: "menuiserie-fermetures"}, want: true},
		{name: "category other", mode: domain.MatchCategory, lead: "plombier", provider: domain.Provider{Specialty: "electricien"}, want: false},
		{name: "category unlisted falls back to equality", mode: domain.MatchCategory, lead: "ramoneur", provider: domain.Provider{Specialty: "Ramoneur"}, want: true},
		{name: "empty lead specialty", mode: domain.MatchFuzzy, lead: "", provider: domain.Provider{Specialty: "plombier"}, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := catalog.Matches(tc.mode, tc.lead, tc.provider); got != tc.want {
				t.Fatalf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLoadCatalogRejectsDuplicates(t *testing.T) {
	data := []byte(`
categories:
  - key: a
    specialties: [x]
  - key: b
    specialties: [x]
`)
	if _, err := LoadCatalog(data); err == nil {
		t.Fatal("expected duplicate specialty error")
	}
}

func TestCatalogLabel(t *testing.T) {
	catalog := DefaultCatalog()
	cat, ok := catalog.CategoryOf("Plombier")
	if !ok {
		t.Fatal("plombier has no category")
	}
	if catalog.Label(cat) != "Plomberie et chauffage" {
		t.Fatalf("label = %q", catalog.Label(cat))
	}
}
