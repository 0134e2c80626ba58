package claim

import "strings"

// ClassifyLocation resolves one place name to a region code: the exact city
// table first, then a city recognised through its aliases, then the ordered
// containment tiers, then the default code.
func (e *Engine) ClassifyLocation(place string) string {
	regions := e.rules.Regions
	p := normalizePlace(place)
	if p == "" {
		return regions.DefaultCode
	}

	candidates := []string{p, e.stripAdminSuffix(p)}
	for _, c := range regions.Cities {
		city := normalizePlace(c.City)
		for _, candidate := range candidates {
			if candidate == city {
				return c.Code
			}
		}
	}
	for _, c := range regions.Cities {
		for _, alias := range e.aliases[normalizePlace(c.City)] {
			if alias != "" && strings.Contains(p, alias) {
				return c.Code
			}
		}
	}

	for _, tier := range regions.Tiers {
		for _, kw := range tier.Keywords {
			if k := normalizePlace(kw); k != "" && strings.Contains(p, k) {
				return tier.Code
			}
		}
	}
	return regions.DefaultCode
}

// RegionCode is the claim level reimbursement type code: the code of the
// first trip whose destination is not the default, else the default.
func (e *Engine) RegionCode(trips []Trip) string {
	def := e.rules.Regions.DefaultCode
	for _, t := range trips {
		if code := e.ClassifyLocation(t.ArrivalPlace); code != def {
			return code
		}
	}
	return def
}

// RegionLabel returns the display name of a region code, or the code itself
func (e *Engine) RegionLabel(code string) string {
	if label, ok := e.regionLabels[code]; ok {
		return label
	}
	return code
}

// BucketFor returns the expense bucket of a category. Unknown categories land
// in the default bucket.
func (e *Engine) BucketFor(c Category) string {
	if name, ok := e.buckets[c]; ok {
		return name
	}
	return e.rules.Expense.DefaultBucket
}

// BucketNames lists every bucket in display order, the default bucket last
// when the rules do not name it
func (e *Engine) BucketNames() []string {
	names := make([]string, 0, len(e.rules.Expense.Buckets)+1)
	seen := make(map[string]bool)
	for _, b := range e.rules.Expense.Buckets {
		if !seen[b.Name] {
			names = append(names, b.Name)
			seen[b.Name] = true
		}
	}
	if !seen[e.rules.Expense.DefaultBucket] {
		names = append(names, e.rules.Expense.DefaultBucket)
	}
	return names
}

// Bucket groups invoices by expense bucket, keeping their order
func (e *Engine) Bucket(invoices []Invoice) map[string][]Invoice {
	out := make(map[string][]Invoice)
	for _, inv := range invoices {
		name := e.BucketFor(inv.Category)
		out[name] = append(out[name], inv)
	}
	return out
}
