// Package claim turns extracted receipt fields into canonical invoices,
// reconciles them against declared trips and generates reimbursement claims.
//
// Every Engine method is a pure function of its arguments and the rules the
// Engine was built with. An Engine holds no mutable state and can be shared
// between goroutines.
package claim

import "strings"

// Engine normalizes, reconciles, classifies and generates claims
type Engine struct {
	rules *Rules

	hints        map[string]Category
	buckets      map[Category]string
	regionLabels map[string]string
	aliases      map[string][]string
}

// NewEngine builds an Engine over rules. A nil rules uses DefaultRules.
func NewEngine(rules *Rules) *Engine {
	if rules == nil {
		rules = DefaultRules()
	}

	e := &Engine{
		rules:        rules,
		hints:        make(map[string]Category),
		buckets:      make(map[Category]string),
		regionLabels: make(map[string]string),
		aliases:      make(map[string][]string),
	}

	for _, h := range rules.HintLabels {
		for _, label := range h.Labels {
			e.hints[normalizeLabel(label)] = h.Category
		}
	}
	for _, b := range rules.Expense.Buckets {
		for _, c := range b.Categories {
			if _, seen := e.buckets[c]; !seen {
				e.buckets[c] = b.Name
			}
		}
	}
	for _, l := range rules.Regions.Labels {
		e.regionLabels[l.Code] = l.Name
	}
	for _, a := range rules.Place.Aliases {
		city := normalizePlace(a.City)
		for _, name := range a.Names {
			e.aliases[city] = append(e.aliases[city], normalizePlace(name))
		}
	}

	return e
}

// Rules returns the tables the engine was built with
func (e *Engine) Rules() *Rules {
	return e.rules
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
