package reimbursement

import (
	"time"

	"github.com/zombor/travel-reimburse/internal/claim"
	"github.com/zombor/travel-reimburse/internal/handoff"
)

// TripRecord is a declared trip as stored in the workspace
type TripRecord struct {
	claim.Trip
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InvoiceRecord is a canonical invoice plus the upload it came from.
// Manually entered invoices have no file.
type InvoiceRecord struct {
	claim.Invoice
	Hint        string    `json:"hint,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	FileType    string    `json:"file_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ClaimRecord is a generated claim with the snapshot it was built from
type ClaimRecord struct {
	ID string `json:"id"`
	claim.Claim
	TripIDs    []string        `json:"trip_ids"`
	InvoiceIDs []string        `json:"invoice_ids"`
	Export     *handoff.Export `json:"export,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ClaimRequest is the confirmation form submitted to generate a claim. Empty
// ID lists select every stored trip or invoice.
type ClaimRequest struct {
	Claimant   claim.Claimant `json:"claimant"`
	Confirmed  bool           `json:"confirmed"`
	TripIDs    []string       `json:"trip_ids,omitempty"`
	InvoiceIDs []string       `json:"invoice_ids,omitempty"`
	Export     bool           `json:"export,omitempty"`
}
