package core

import "strings"

// districtOverride maps alternate or sub-district spellings to the merged
// district name used by the upstream dataset.
type districtOverride struct {
	patterns  []string
	canonical string
}

// districtOverrides is evaluated top to bottom and the first rule with any
// pattern contained in the cleaned name wins. Order matters: a name may
// match more than one rule.
var districtOverrides = []districtOverride{
	{patterns: []string{"KABIRDHAM"}, canonical: "KAWARDHA"},
	{patterns: []string{"GAURELA", "PENDRA", "MARWAHI"}, canonical: "GAURELA PENDRA MARWAHI"},
	{patterns: []string{"MANENDRAGARH", "CHIRMIRI", "BHARATPUR"}, canonical: "MANENDRAGARH CHIRMIRI BHARATPUR"},
	{patterns: []string{"KHAIRAGARH", "CHHUIKHADAN", "GANDAI"}, canonical: "KHAIRAGARH CHHUIKHADAN GANDAI"},
	{patterns: []string{"MOHLA", "MANPUR", "AMBAGARH"}, canonical: "MOHLA MANPUR AMBAGARH CHOWKI"},
}

// NormalizeDistrict returns the canonical uppercase form of a district name.
// It is total and idempotent, and must be applied identically to request
// filters and to upstream rows.
func NormalizeDistrict(name string) string {
	base := cleanDistrict(name)
	for _, rule := range districtOverrides {
		for _, p := range rule.patterns {
			if strings.Contains(base, p) {
				return rule.canonical
			}
		}
	}
	return base
}

// cleanDistrict uppercases, turns hyphens into spaces and collapses runs of
// whitespace.
func cleanDistrict(name string) string {
	upper := strings.ToUpper(name)
	upper = strings.ReplaceAll(upper, "-", " ")
	return strings.Join(strings.Fields(upper), " ")
}

// FilterByDistrict keeps the records whose normalized district_name equals
// the normalized want.
func FilterByDistrict(records []Record, want string) []Record {
	want = NormalizeDistrict(want)
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if NormalizeDistrict(r.DistrictName()) == want {
			out = append(out, r)
		}
	}
	return out
}
