package fields

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Brands is the allow-list of manufacturers recognised on fleet policies.
// Short names that collide with ordinary words (MAN, RAM) are left out.
var Brands = []string{
	"AGRALE", "AUDI", "BMW", "BYD", "CAOA CHERY", "CHERY", "CHEVROLET", "CITROEN",
	"DAF", "FIAT", "FORD", "GM", "GWM", "HONDA", "HYUNDAI", "IVECO", "JAC", "JEEP",
	"KIA", "LAND ROVER", "MERCEDES-BENZ", "MERCEDES BENZ", "MITSUBISHI", "NISSAN",
	"PEUGEOT", "PORSCHE", "RENAULT", "SCANIA", "SUBARU", "SUZUKI", "TOYOTA",
	"TROLLER", "VOLKSWAGEN", "VOLVO", "VW",
}

var (
	// CNPJPattern matches a company tax id with or without punctuation.
	CNPJPattern = regexp.MustCompile(`\b\d{2}\.?\d{3}\.?\d{3}/?\d{4}-?\d{2}\b`)

	// PlatePatterns are the two Brazilian plate formats: the legacy ABC-1234
	// and the Mercosul ABC1D23. Plates are printed upper case.
	PlatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b[A-Z]{3}-?\d{4}\b`),
		regexp.MustCompile(`\b[A-Z]{3}\d[A-Z]\d{2}\b`),
	}

	// ChassisPattern matches a 17 character VIN (no I, O or Q).
	ChassisPattern = regexp.MustCompile(`\b[A-HJ-NPR-Z0-9]{17}\b`)

	// BrandPattern matches any allow-listed manufacturer as a whole word,
	// longest names first so "CAOA CHERY" wins over "CHERY".
	BrandPattern = regexp.MustCompile(`\b(?:` + brandAlternation(Brands) + `)\b`)

	// BrandLinePattern matches a manufacturer opening a line in any case, as
	// OCR often prints it ("Volkswagen Gol").
	BrandLinePattern = regexp.MustCompile(`(?i)^[ \t]*(` + brandAlternation(Brands) + `)\b`)
)

func brandAlternation(brands []string) string {
	sorted := append([]string(nil), brands...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	quoted := make([]string, len(sorted))
	for i, b := range sorted {
		quoted[i] = regexp.QuoteMeta(b)
	}
	return strings.Join(quoted, "|")
}

// FindPlate returns the leftmost plate in text across both formats.
func FindPlate(text string) ([]int, bool) {
	var best []int
	for _, re := range PlatePatterns {
		loc := re.FindStringIndex(text)
		if loc != nil && (best == nil || loc[0] < best[0]) {
			best = loc
		}
	}
	return best, best != nil
}

// Shape names accepted by ShapeCandidate.
const (
	ShapeCNPJ    = "cnpj"
	ShapePlate   = "plate"
	ShapeChassis = "chassis"
	ShapeBrand   = "brand"
)

// ShapeCandidate returns a candidate that matches a value by its shape alone,
// used as the last resort after the labelled patterns.
func ShapeCandidate(name string) (Candidate, error) {
	switch name {
	case ShapeCNPJ:
		return fromRegexp(CNPJPattern), nil
	case ShapeChassis:
		return fromRegexp(ChassisPattern), nil
	case ShapeBrand:
		return fromRegexp(BrandPattern), nil
	case ShapePlate:
		return func(text string) (string, bool) {
			loc, ok := FindPlate(text)
			if !ok {
				return "", false
			}
			return text[loc[0]:loc[1]], true
		}, nil
	default:
		return nil, fmt.Errorf("unknown shape %q", name)
	}
}
