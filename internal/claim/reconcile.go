package claim

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// normalizePlace lower-cases s and drops all whitespace
func normalizePlace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

// PlaceMatch reports whether an extracted station or airport name refers to
// city. Cities of up to Place.ShortNameLength characters only match by
// containment or alias; longer names also match when enough of their
// characters occur in the station name.
func (e *Engine) PlaceMatch(station, city string) bool {
	s, c := normalizePlace(station), normalizePlace(city)
	if s == "" || c == "" {
		return false
	}
	if strings.Contains(s, c) {
		return true
	}

	p := e.rules.Place
	for _, suffix := range p.StationSuffixes {
		if s == c+normalizePlace(suffix) {
			return true
		}
	}

	stripped := e.stripAdminSuffix(c)
	for _, key := range []string{c, stripped} {
		for _, alias := range e.aliases[key] {
			if alias != "" && strings.Contains(s, alias) {
				return true
			}
		}
	}

	if utf8.RuneCountInString(c) <= p.ShortNameLength {
		return false
	}

	if stripped != c && utf8.RuneCountInString(stripped) >= 2 && strings.Contains(s, stripped) {
		return true
	}

	present := 0
	for _, r := range c {
		if strings.ContainsRune(s, r) {
			present++
		}
	}
	return float64(present)/float64(utf8.RuneCountInString(c)) >= p.OverlapRatio
}

func (e *Engine) stripAdminSuffix(c string) string {
	for _, suffix := range e.rules.Place.AdminSuffixes {
		if trimmed := strings.TrimSuffix(c, normalizePlace(suffix)); trimmed != c {
			return trimmed
		}
	}
	return c
}

type leg struct {
	name     string
	from, to string
}

// Validate reconciles invoices against the declared trips. A trip without a
// departure or arrival place is an issue and is skipped; a missing ticket
// leg or a lodging shortfall is a warning.
func (e *Engine) Validate(trips []Trip, invoices []Invoice) Validation {
	result := Validation{
		Issues:   []string{},
		Warnings: []string{},
	}

	var tickets []*TransportDetail
	var stays []*LodgingDetail
	for _, inv := range invoices {
		switch {
		case inv.Category == CategoryTransport && inv.Transport != nil:
			tickets = append(tickets, inv.Transport)
		case inv.Category == CategoryLodging && inv.Lodging != nil:
			stays = append(stays, inv.Lodging)
		}
	}

	for i, trip := range trips {
		n := i + 1
		from, to := strings.TrimSpace(trip.DeparturePlace), strings.TrimSpace(trip.ArrivalPlace)
		if from == "" || to == "" {
			result.Issues = append(result.Issues, fmt.Sprintf("trip #%d is missing its departure or arrival place", n))
			continue
		}

		legs := []leg{{name: "outbound", from: from, to: to}}
		if trip.RoundTrip {
			legs = append(legs, leg{name: "return", from: to, to: from})
		}
		for _, l := range legs {
			if !e.legCovered(l, tickets) {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("trip #%d: no %s ticket from %s to %s", n, l.name, l.from, l.to))
			}
		}

		expected := max(0, tripDays(trip)-1)
		if expected == 0 {
			continue
		}
		covered := coveredNights(trip, stays)
		if covered < expected {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("trip #%d: lodging covers %d of %d nights in %s, %d missing",
					n, covered, expected, to, expected-covered))
		}
	}

	result.IsValid = len(result.Issues) == 0
	return result
}

func (e *Engine) legCovered(l leg, tickets []*TransportDetail) bool {
	for _, t := range tickets {
		if e.PlaceMatch(t.Departure, l.from) && e.PlaceMatch(t.Destination, l.to) {
			return true
		}
	}
	return false
}

func tripDays(t Trip) int {
	if t.Days > 0 {
		return t.Days
	}
	if days, ok := DaysBetween(ParseDate(t.DepartureDate), ParseDate(t.ArrivalDate)); ok && days >= 0 {
		return days + 1
	}
	return 1
}

// coveredNights sums the nights of stays overlapping the trip. Without trip
// dates every stay counts; a stay without both dates cannot be placed and
// never counts.
func coveredNights(trip Trip, stays []*LodgingDetail) int {
	departure, arrival := ParseDate(trip.DepartureDate), ParseDate(trip.ArrivalDate)
	total := 0
	for _, s := range stays {
		if departure == "" || arrival == "" {
			total += max(1, s.Nights)
			continue
		}
		if s.CheckInDate == "" || s.CheckOutDate == "" {
			continue
		}
		// YYYY-MM-DD compares chronologically as a string
		if s.CheckOutDate < departure || s.CheckInDate > arrival {
			continue
		}
		total += max(1, s.Nights)
	}
	return total
}
