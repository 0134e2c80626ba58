package handoff

import (
	"sort"
	"strconv"
	"strings"

	"github.com/zombor/travel-reimburse/internal/claim"
)

// Hand-off document keys, in ERP form order
const (
	keyType          = "报销类型"
	keyReason        = "报销事由"
	keyDepartureDate = "出发日期"
	keyArrivalDate   = "到达日期"
	keyFrom          = "出发地点"
	keyTripDays      = "出差天数"
	keyTo            = "到达地点"
	keyVehicle       = "交通工具"
	keyNotes         = "说明（含同行人员等）"
	keyFare          = "飞机车船费"
	keyAllowance     = "出差补贴"
	keySpecial       = "特殊事项"
	keyTaxRatePct    = "税率（%）"
	keyOtherFees     = "其他费用（民航发展基金、行李费等）"
	keyCheckIn       = "入住日期"
	keyCheckOut      = "离店日期"
	keyHotel         = "入住酒店"
	keyLodgingFee    = "住宿费"
	keyNights        = "住宿天数"
	keyTaxRate       = "税率"
)

var (
	vehicles = map[claim.TransportMode]string{
		claim.ModeTrain:  "火车",
		claim.ModeFlight: "飞机",
		claim.ModeCoach:  "汽车",
	}
	taxRateFields = []string{"税率/征收率", "税率", "征收率", "tax_rate"}
	// characters that cannot appear in a file name segment
	nameReplacer = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
)

// Converter turns canonical invoices into per-invoice hand-off documents
type Converter struct {
	engine *claim.Engine
}

// NewConverter creates a Converter resolving regions and places with engine
func NewConverter(engine *claim.Engine) *Converter {
	return &Converter{engine: engine}
}

// Convert builds one document per transport and lodging invoice; other
// categories are not part of the form and are skipped. Trip days come from
// the declared trip a ticket belongs to, else from the itinerary the
// invoices themselves imply.
func (c *Converter) Convert(invoices []claim.Invoice, trips []claim.Trip) []Document {
	inferred := InferTripDays(invoices)

	docs := make([]Document, 0, len(invoices))
	for _, inv := range invoices {
		switch {
		case inv.Category == claim.CategoryTransport && inv.Transport != nil:
			days := c.declaredTripDays(inv.Transport, trips)
			if days == 0 {
				days = inferred
			}
			docs = append(docs, c.transportDocument(inv, days))
		case inv.Category == claim.CategoryLodging && inv.Lodging != nil:
			docs = append(docs, c.lodgingDocument(inv))
		}
	}
	return docs
}

func (c *Converter) transportDocument(inv claim.Invoice, tripDays int) Document {
	t := inv.Transport
	from, to := stationCity(t.Departure), stationCity(t.Destination)

	code := c.engine.ClassifyLocation(to)
	if def := c.engine.Rules().Regions.DefaultCode; code == def && from != "" {
		if alt := c.engine.ClassifyLocation(from); alt != def {
			code = alt
		}
	}

	date := compactDate(inv.DisplayDate())
	vehicle, ok := vehicles[t.Mode]
	if !ok {
		vehicle = vehicles[claim.ModeTrain]
	}
	days := ""
	if tripDays > 0 {
		days = strconv.Itoa(tripDays)
	}

	return Document{
		Kind: KindTransport,
		Name: string(KindTransport) + "/" + fileSegment(from+"2"+to) + "_" + invoiceKey(inv) + ".json",
		Fields: []Field{
			{keyType, code},
			{keyReason, "出差" + from + "至" + to},
			{keyDepartureDate, date},
			{keyArrivalDate, date},
			{keyFrom, from},
			{keyTripDays, days},
			{keyTo, to},
			{keyVehicle, vehicle},
			{keyNotes, ""},
			{keyFare, inv.Amount.StringFixed(2)},
			{keyAllowance, "0"},
			{keySpecial, "无"},
			{keyTaxRatePct, "0"},
			{keyOtherFees, "0"},
		},
	}
}

func (c *Converter) lodgingDocument(inv claim.Invoice) Document {
	l := inv.Lodging

	code := c.engine.ClassifyLocation(l.HotelName)
	if def := c.engine.Rules().Regions.DefaultCode; code == def && l.Address != "" {
		code = c.engine.ClassifyLocation(l.Address)
	}
	rate := taxRate(inv.RawFields)
	hotel := l.HotelName
	if hotel == "" {
		hotel = "hotel"
	}

	return Document{
		Kind: KindLodging,
		Name: string(KindLodging) + "/" + fileSegment(hotel) + "_" + invoiceKey(inv) + ".json",
		Fields: []Field{
			{keyType, code},
			{keyReason, "出差入住" + l.HotelName},
			{keyCheckIn, compactDate(l.CheckInDate)},
			{keyCheckOut, compactDate(l.CheckOutDate)},
			{keyHotel, l.HotelName},
			{keyNotes, ""},
			{keyLodgingFee, inv.Amount.StringFixed(2)},
			{keySpecial, "无"},
			{keyTaxRatePct, rate},
			{keyNights, strconv.Itoa(max(1, l.Nights))},
			{keyTaxRate, rate},
		},
	}
}

// declaredTripDays returns the length of the declared trip whose outbound or
// return leg the ticket covers, or 0
func (c *Converter) declaredTripDays(t *claim.TransportDetail, trips []claim.Trip) int {
	for _, trip := range trips {
		outbound := c.engine.PlaceMatch(t.Departure, trip.DeparturePlace) && c.engine.PlaceMatch(t.Destination, trip.ArrivalPlace)
		inbound := c.engine.PlaceMatch(t.Departure, trip.ArrivalPlace) && c.engine.PlaceMatch(t.Destination, trip.DeparturePlace)
		if outbound || inbound {
			return max(1, trip.Days)
		}
	}
	return 0
}

// InferTripDays derives the trip length when no trip was declared: from the
// first pair of tickets on opposite routes, else from the first stay with
// both dates. It returns 0 when neither exists.
func InferTripDays(invoices []claim.Invoice) int {
	routes := make(map[string]string)
	for _, inv := range invoices {
		if inv.Category != claim.CategoryTransport || inv.Transport == nil {
			continue
		}
		from, to := stationCity(inv.Transport.Departure), stationCity(inv.Transport.Destination)
		date := inv.DisplayDate()
		if from == "" || to == "" || date == "" {
			continue
		}

		if back, ok := routes[to+"-"+from]; ok {
			dates := []string{back, date}
			sort.Strings(dates)
			if days, ok := claim.DaysBetween(dates[0], dates[1]); ok {
				return days + 1
			}
		}
		if _, ok := routes[from+"-"+to]; !ok {
			routes[from+"-"+to] = date
		}
	}

	for _, inv := range invoices {
		if inv.Category != claim.CategoryLodging || inv.Lodging == nil {
			continue
		}
		if days, ok := claim.DaysBetween(inv.Lodging.CheckInDate, inv.Lodging.CheckOutDate); ok && days >= 0 {
			return days + 1
		}
	}
	return 0
}

// stationCity drops the 站 markers the form does not want: 北京南站 becomes 北京南
func stationCity(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "站", ""))
}

// compactDate turns YYYY-MM-DD into YYYYMMDD
func compactDate(d string) string {
	return strings.ReplaceAll(d, "-", "")
}

func invoiceKey(inv claim.Invoice) string {
	switch {
	case inv.InvoiceID != "":
		return fileSegment(inv.InvoiceID)
	case inv.ID != "":
		return fileSegment(inv.ID)
	default:
		return "unknown"
	}
}

func fileSegment(s string) string {
	s = strings.TrimSpace(nameReplacer.Replace(s))
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

func taxRate(raw map[string]string) string {
	for _, k := range taxRateFields {
		if v := strings.TrimSpace(raw[k]); v != "" {
			return strings.TrimSpace(strings.TrimSuffix(v, "%"))
		}
	}
	return ""
}
