package dispatch

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"lead_distribution_backend/internal/matching/domain"

	"github.com/agext/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var defaultCategories []byte

// maxFuzzyDistance is the edit distance tolerated by the fuzzy match mode.
const maxFuzzyDistance = 2

type categoryFile struct {
	Categories []struct {
		Key         string   `yaml:"key"`
		Label       string   `yaml:"label"`
		Specialties []string `yaml:"specialties"`
	} `yaml:"categories"`
}

// Catalog resolves specialties to categories.
type Catalog struct {
	categoryOf map[string]string
	labels     map[string]string
}

// LoadCatalog parses a YAML category table.
func LoadCatalog(data []byte) (*Catalog, error) {
	var file categoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse specialty categories: %w", err)
	}

	c := &Catalog{categoryOf: map[string]string{}, labels: map[string]string{}}
	for _, cat := range file.Categories {
		key := Normalize(cat.Key)
		if key == "" {
			return nil, fmt.Errorf("parse specialty categories: category without key")
		}
		c.labels[key] = cat.Label
		c.categoryOf[key] = key
		if label := Normalize(cat.Label); label != "" {
			c.categoryOf[label] = key
		}
		for _, s := range cat.Specialties {
			n := Normalize(s)
			if prev, ok := c.categoryOf[n]; ok && prev != key {
				return nil, fmt.Errorf("parse specialty categories: %q listed under %q and %q", s, prev, key)
			}
			c.categoryOf[n] = key
		}
	}
	return c, nil
}

// DefaultCatalog returns the embedded category table.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(defaultCategories)
	if err != nil {
		panic(err)
	}
	return c
}

// Normalize folds accents and case, and turns separators into single spaces:
// "Peintre-en-Bâtiment" becomes "peintre en batiment".
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = strings.Map(func(r rune) rune {
		if r == '-' || r == '_' || r == '/' {
			return ' '
		}
		return r
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}

// CategoryOf returns the category key of a specialty.
func (c *Catalog) CategoryOf(specialty string) (string, bool) {
	key, ok := c.categoryOf[Normalize(specialty)]
	return key, ok
}

// Label returns the display label of a category key.
func (c *Catalog) Label(category string) string {
	return c.labels[Normalize(category)]
}

// Matches applies the configured specialty comparison.
func (c *Catalog) Matches(mode domain.SpecialtyMatchMode, leadSpecialty string, p domain.Provider) bool {
	want := Normalize(leadSpecialty)
	have := Normalize(p.Specialty)
	if want == "" {
		return false
	}

	switch mode {
	case domain.MatchExact:
		return want == have
	case domain.MatchFuzzy:
		if fuzzyEqual(want, have) {
			return true
		}
		return fuzzyEqual(want, Normalize(p.Category))
	default:
		return c.sameCategory(want, have, p.Category)
	}
}

func (c *Catalog) sameCategory(want, have, providerCategory string) bool {
	leadCat, ok := c.categoryOf[want]
	if !ok {
		// Unlisted specialties can only match themselves.
		return want == have
	}
	if cat := Normalize(providerCategory); cat != "" {
		if resolved, ok := c.categoryOf[cat]; ok {
			return resolved == leadCat
		}
	}
	provCat, ok := c.categoryOf[have]
	return ok && provCat == leadCat
}

func fuzzyEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return levenshtein.Distance(a, b, nil) <= maxFuzzyDistance
}
