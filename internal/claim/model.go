package claim

import (
	"github.com/shopspring/decimal"
)

// Category identifies the kind of expense an invoice documents
type Category string

const (
	CategoryTransport Category = "transport"
	CategoryLodging   Category = "lodging"
	CategoryTaxi      Category = "taxi"
	CategoryMeal      Category = "meal"
	CategoryToll      Category = "toll"
	CategoryOther     Category = "other"
)

// Categories lists every known category in classification priority order
var Categories = []Category{
	CategoryTransport,
	CategoryLodging,
	CategoryTaxi,
	CategoryMeal,
	CategoryToll,
	CategoryOther,
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// TransportMode is the vehicle a transport invoice was issued for
type TransportMode string

const (
	ModeTrain  TransportMode = "train"
	ModeFlight TransportMode = "flight"
	ModeCoach  TransportMode = "coach"
)

// Trip is one declared business trip itinerary
type Trip struct {
	ID                 string `json:"id,omitempty"`
	DepartureDate      string `json:"departure_date"` // YYYY-MM-DD or empty
	ArrivalDate        string `json:"arrival_date"`   // YYYY-MM-DD or empty
	Days               int    `json:"days"`
	DeparturePlace     string `json:"departure_place"`
	ArrivalPlace       string `json:"arrival_place"`
	TransportationMode string `json:"transportation_mode"`
	Purpose            string `json:"purpose"`
	RoundTrip          bool   `json:"round_trip"`
}

// NewTrip returns t with its dates normalized and Days derived from them.
// Days is arrival - departure + 1, never less than 1.
func NewTrip(t Trip) Trip {
	t.DepartureDate = ParseDate(t.DepartureDate)
	t.ArrivalDate = ParseDate(t.ArrivalDate)
	t.Days = 1
	if days, ok := DaysBetween(t.DepartureDate, t.ArrivalDate); ok && days+1 > 1 {
		t.Days = days + 1
	}
	return t
}

// TransportDetail holds the fields specific to train, flight and coach tickets
type TransportDetail struct {
	Departure    string        `json:"departure"`
	Destination  string        `json:"destination"`
	Passenger    string        `json:"passenger"`
	TravelDate   string        `json:"travel_date"` // ride date, may differ from issuance
	TicketNumber string        `json:"ticket_number"`
	Mode         TransportMode `json:"mode"`
}

// LodgingDetail holds the fields specific to hotel invoices
type LodgingDetail struct {
	HotelName    string `json:"hotel_name"`
	CheckInDate  string `json:"check_in_date"`
	CheckOutDate string `json:"check_out_date"`
	Nights       int    `json:"nights"`
	GuestName    string `json:"guest_name"`
	Address      string `json:"address"`
	RoomNumber   string `json:"room_number"`
}

// TaxiDetail holds the fields specific to taxi receipts
type TaxiDetail struct {
	StartLocation string `json:"start_location"`
	EndLocation   string `json:"end_location"`
	PlateNumber   string `json:"plate_number"`
}

// Invoice is the canonical record for one travel receipt
type Invoice struct {
	ID               string            `json:"id,omitempty"`
	Category         Category          `json:"category"`
	InvoiceID        string            `json:"invoice_id"`
	IssuanceDate     string            `json:"issuance_date"`
	Amount           decimal.Decimal   `json:"amount"`
	NeedsManualInput bool              `json:"needs_manual_input"`
	MissingFields    []string          `json:"missing_fields,omitempty"`
	RawFields        map[string]string `json:"raw_fields,omitempty"`

	Transport *TransportDetail `json:"transport,omitempty"`
	Lodging   *LodgingDetail   `json:"lodging,omitempty"`
	Taxi      *TaxiDetail      `json:"taxi,omitempty"`
}

// DisplayDate is the date shown for the invoice: the ride date for tickets,
// the issuance date otherwise.
func (i Invoice) DisplayDate() string {
	if i.Transport != nil && i.Transport.TravelDate != "" {
		return i.Transport.TravelDate
	}
	return i.IssuanceDate
}

// Validation is the outcome of reconciling invoices against trips
type Validation struct {
	IsValid  bool     `json:"is_valid"`
	Issues   []string `json:"issues"`
	Warnings []string `json:"warnings"`
}

// Status tags a generated claim
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Claimant is the data entered on the confirmation form
type Claimant struct {
	Name                 string `json:"name"`
	Department           string `json:"department"`
	ExpenseReason        string `json:"expense_reason"`
	Payee                string `json:"payee"`
	BankName             string `json:"bank_name"`
	CardNumber           string `json:"card_number"`
	Sharing              bool   `json:"sharing"`
	SharingReason        string `json:"sharing_reason"`
	LodgingOverage       string `json:"lodging_overage"`
	CityTransportOverage string `json:"city_transport_overage"`
	OverageExplanation   string `json:"overage_explanation"`
}

// ClaimantFields is the claimant block of a generated claim with defaults applied
type ClaimantFields struct {
	Name                 string          `json:"name"`
	Department           string          `json:"department"`
	ExpenseReason        string          `json:"expense_reason"`
	Payee                string          `json:"payee"`
	BankName             string          `json:"bank_name"`
	CardNumber           string          `json:"card_number"`
	Sharing              bool            `json:"sharing"`
	SharingReason        string          `json:"sharing_reason"`
	LodgingOverage       decimal.Decimal `json:"lodging_overage"`
	CityTransportOverage decimal.Decimal `json:"city_transport_overage"`
	OverageExplanation   string          `json:"overage_explanation"`
}

// ExpenseBucket groups the invoices of one expense category
type ExpenseBucket struct {
	Invoices []Invoice      `json:"invoices"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// SummaryRow is one line of the expense summary table
type SummaryRow struct {
	Category     string          `json:"category"`
	InvoiceCount int             `json:"invoice_count"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// Claim is a generated reimbursement claim
type Claim struct {
	Status                Status                   `json:"status"`
	Message               string                   `json:"message"`
	ReimbursementTypeCode string                   `json:"reimbursement_type_code"`
	ReimbursementType     string                   `json:"reimbursement_type"`
	TotalAmount           decimal.Decimal          `json:"total_amount"`
	AttachmentCount       int                      `json:"attachment_count"`
	ExpenseCategories     map[string]ExpenseBucket `json:"expense_categories"`
	Summary               []SummaryRow             `json:"summary"`
	Validation            Validation               `json:"validation_result"`
	Claimant              ClaimantFields           `json:"claimant"`
	Trips                 []Trip                   `json:"trips"`
	Confirmed             bool                     `json:"confirmed"`
}
