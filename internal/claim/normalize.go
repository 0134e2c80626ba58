package claim

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

var (
	// anything that is not a digit or a date separator splits numeric groups
	dateNoise    = regexp.MustCompile(`[^0-9\-/.年月日]+`)
	numericGroup = regexp.MustCompile(`\d+`)
	amountNoise  = regexp.MustCompile(`[^0-9.]`)
)

// fieldSet is a raw extraction map keyed by trimmed, lower-cased label
type fieldSet map[string]string

func newFieldSet(raw map[string]string) fieldSet {
	fs := make(fieldSet, len(raw))
	for k, v := range raw {
		key := normalizeLabel(k)
		if _, exists := fs[key]; exists && strings.TrimSpace(v) == "" {
			continue
		}
		fs[key] = strings.TrimSpace(v)
	}
	return fs
}

// first returns the value of the first label that is present and non-empty
func (fs fieldSet) first(labels []string) (string, bool) {
	for _, label := range labels {
		if v := fs[normalizeLabel(label)]; v != "" {
			return v, true
		}
	}
	return "", false
}

func (fs fieldSet) value(labels []string) string {
	v, _ := fs.first(labels)
	return v
}

func (fs fieldSet) anyPresent(labels []string) bool {
	_, ok := fs.first(labels)
	return ok
}

func (fs fieldSet) containsKeyword(keywords []string) bool {
	for _, v := range fs {
		for _, kw := range keywords {
			if kw != "" && strings.Contains(strings.ToLower(v), strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

// ParseDate normalizes a loosely formatted date to YYYY-MM-DD. It accepts
// 年/月/日 markers, slash, dash and dot separators and compact YYYYMMDD.
// Two-digit years become 20xx. Anything that does not resolve to a real
// calendar date yields "".
func ParseDate(raw string) string {
	cleaned := dateNoise.ReplaceAllString(raw, " ")
	groups := numericGroup.FindAllString(cleaned, -1)
	if len(groups) == 1 && len(groups[0]) == 8 {
		g := groups[0]
		groups = []string{g[:4], g[4:6], g[6:]}
	}
	if len(groups) < 3 {
		return ""
	}

	year, month, day := groups[0], groups[1], groups[2]
	if len(year) == 2 {
		year = "20" + year
	}
	if len(year) != 4 || len(month) > 2 || len(day) > 2 {
		return ""
	}
	candidate := year + "-" + zeroPad(month) + "-" + zeroPad(day)
	if _, err := time.Parse(dateLayout, candidate); err != nil {
		return ""
	}
	return candidate
}

func zeroPad(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// ExtractDate returns the first candidate field that parses as a date
func ExtractDate(raw map[string]string, candidates []string) string {
	return newFieldSet(raw).date(candidates)
}

func (fs fieldSet) date(candidates []string) string {
	for _, label := range candidates {
		v := fs[normalizeLabel(label)]
		if v == "" {
			continue
		}
		if d := ParseDate(v); d != "" {
			return d
		}
	}
	return ""
}

// ParseAmount strips currency symbols, grouping commas and other noise and
// parses what is left, rounded to cents. ok is false when nothing parses.
func ParseAmount(raw string) (amount decimal.Decimal, ok bool) {
	cleaned := amountNoise.ReplaceAllString(raw, "")
	if cleaned == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d.Round(2), true
}

// ExtractAmount scans the amount candidate fields in order and returns the
// first that parses, or zero
func (e *Engine) ExtractAmount(raw map[string]string) decimal.Decimal {
	return e.amount(newFieldSet(raw))
}

func (e *Engine) amount(fs fieldSet) decimal.Decimal {
	for _, label := range e.rules.AmountFields {
		v := fs[normalizeLabel(label)]
		if v == "" {
			continue
		}
		if d, ok := ParseAmount(v); ok {
			return d
		}
	}
	return decimal.Zero
}

// ExtractNights prefers an explicit nights field, then the distance between
// check-in and check-out, then 1
func (e *Engine) ExtractNights(raw map[string]string) int {
	fs := newFieldSet(raw)
	checkIn := fs.date(e.rules.synonymsFor("lodging", "check_in_date"))
	checkOut := fs.date(e.rules.synonymsFor("lodging", "check_out_date"))
	return e.nights(fs, checkIn, checkOut)
}

func (e *Engine) nights(fs fieldSet, checkIn, checkOut string) int {
	if v, ok := fs.first(e.rules.NightsFields); ok {
		for _, suffix := range e.rules.NightsSuffixes {
			v = strings.ReplaceAll(v, suffix, "")
		}
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 1 {
			return n
		}
	}
	if days, ok := DaysBetween(checkIn, checkOut); ok {
		return max(1, days)
	}
	return 1
}

// DaysBetween returns to - from in whole days for two YYYY-MM-DD dates
func DaysBetween(from, to string) (int, bool) {
	if from == "" || to == "" {
		return 0, false
	}
	f, err := time.Parse(dateLayout, from)
	if err != nil {
		return 0, false
	}
	t, err := time.Parse(dateLayout, to)
	if err != nil {
		return 0, false
	}
	return int(t.Sub(f).Hours() / 24), true
}

// ClassifyCategory decides the invoice category. A recognised hint wins,
// then a category the extractor embedded in the fields, then the first
// matching rule of the cascade (transport, lodging, taxi, meal, toll).
func (e *Engine) ClassifyCategory(raw map[string]string, hint string) Category {
	return e.classify(newFieldSet(raw), hint)
}

func (e *Engine) classify(fs fieldSet, hint string) Category {
	if c, ok := e.CategoryFromHint(hint); ok {
		return c
	}
	if embedded, ok := fs.first(e.rules.EmbeddedHintFields); ok {
		// extractors write 其他票据 when unsure; let the rules decide instead
		if c, ok := e.CategoryFromHint(embedded); ok && c != CategoryOther {
			return c
		}
	}
	for _, rule := range e.rules.CategoryRules {
		if rule.matches(fs) {
			return rule.Category
		}
	}
	return CategoryOther
}

// CategoryFromHint resolves a hint label such as 火车票 or "lodging"
func (e *Engine) CategoryFromHint(hint string) (Category, bool) {
	if strings.TrimSpace(hint) == "" {
		return "", false
	}
	c, ok := e.hints[normalizeLabel(hint)]
	return c, ok
}

func (r CategoryRule) matches(fs fieldSet) bool {
	if len(r.FieldGroups) > 0 {
		all := true
		for _, group := range r.FieldGroups {
			if !fs.anyPresent(group) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	if fs.anyPresent(r.MarkerFields) {
		return true
	}
	return fs.containsKeyword(r.Keywords)
}

// Normalize maps a raw extraction onto a canonical Invoice. It never fails:
// fields that cannot be resolved stay empty or zero and are listed in
// MissingFields with NeedsManualInput set.
func (e *Engine) Normalize(raw map[string]string, hint string) Invoice {
	fs := newFieldSet(raw)
	category := e.classify(fs, hint)

	inv := Invoice{
		Category:     category,
		InvoiceID:    fs.value(e.rules.synonymsFor("common", "invoice_id")),
		IssuanceDate: fs.date(e.rules.IssuanceDateFields),
		Amount:       e.amount(fs),
		RawFields:    copyFields(raw),
	}

	field := func(section, name string) string {
		return fs.value(e.rules.synonymsFor(section, name))
	}
	dateField := func(section, name string) string {
		return fs.date(e.rules.synonymsFor(section, name))
	}

	switch category {
	case CategoryTransport:
		inv.Transport = &TransportDetail{
			Departure:    field("transport", "departure"),
			Destination:  field("transport", "destination"),
			Passenger:    field("transport", "passenger"),
			TicketNumber: field("transport", "ticket_number"),
			TravelDate:   dateField("transport", "travel_date"),
			Mode:         e.transportMode(fs, hint),
		}
	case CategoryLodging:
		checkIn := dateField("lodging", "check_in_date")
		checkOut := dateField("lodging", "check_out_date")
		inv.Lodging = &LodgingDetail{
			HotelName:    field("lodging", "hotel_name"),
			CheckInDate:  checkIn,
			CheckOutDate: checkOut,
			Nights:       e.nights(fs, checkIn, checkOut),
			GuestName:    field("lodging", "guest_name"),
			Address:      field("lodging", "address"),
			RoomNumber:   field("lodging", "room_number"),
		}
	case CategoryTaxi:
		inv.Taxi = &TaxiDetail{
			StartLocation: field("taxi", "start_location"),
			EndLocation:   field("taxi", "end_location"),
			PlateNumber:   field("taxi", "plate_number"),
		}
	}

	inv.MissingFields = e.MissingFields(inv)
	inv.NeedsManualInput = len(inv.MissingFields) > 0

	return inv
}

// MissingFields lists the required fields of the invoice's category that
// are empty. A category whose detail block is absent reports all of its
// detail fields.
func (e *Engine) MissingFields(inv Invoice) []string {
	resolved := map[string]string{
		"invoice_id":    strings.TrimSpace(inv.InvoiceID),
		"issuance_date": inv.IssuanceDate,
	}
	if inv.Amount.IsPositive() {
		resolved["amount"] = inv.Amount.String()
	}
	if t := inv.Transport; t != nil {
		resolved["departure"] = strings.TrimSpace(t.Departure)
		resolved["destination"] = strings.TrimSpace(t.Destination)
	}
	if l := inv.Lodging; l != nil {
		resolved["hotel_name"] = strings.TrimSpace(l.HotelName)
		resolved["check_in_date"] = l.CheckInDate
		resolved["check_out_date"] = l.CheckOutDate
	}
	if t := inv.Taxi; t != nil {
		resolved["start_location"] = strings.TrimSpace(t.StartLocation)
		resolved["end_location"] = strings.TrimSpace(t.EndLocation)
		resolved["plate_number"] = strings.TrimSpace(t.PlateNumber)
	}

	var missing []string
	required := append([]string{}, e.rules.RequiredFields["common"]...)
	required = append(required, e.rules.RequiredFields[string(inv.Category)]...)
	for _, name := range required {
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

var modeOrder = []TransportMode{ModeFlight, ModeCoach, ModeTrain}

func (e *Engine) transportMode(fs fieldSet, hint string) TransportMode {
	h := normalizeLabel(hint)
	if h != "" {
		for _, mode := range modeOrder {
			for _, label := range e.rules.ModeHints[string(mode)] {
				if normalizeLabel(label) == h {
					return mode
				}
			}
		}
	}
	for _, mode := range modeOrder {
		markers := e.rules.ModeMarkers[string(mode)]
		if len(markers) == 0 {
			continue
		}
		if fs.anyPresent(markers) || fs.containsKeyword(markers) {
			return mode
		}
	}
	return ModeTrain
}

func copyFields(raw map[string]string) map[string]string {
	if raw == nil {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}
