package claim

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Generate builds a claim from a snapshot of trips and invoices. It is a pure
// function: identical inputs give an identical claim. Validation always runs;
// confirmed only records that the caller accepted the warnings.
func (e *Engine) Generate(trips []Trip, invoices []Invoice, claimant Claimant, confirmed bool) Claim {
	code := e.RegionCode(trips)

	names := e.BucketNames()
	buckets := make(map[string]ExpenseBucket, len(names))
	for _, name := range names {
		buckets[name] = ExpenseBucket{Invoices: []Invoice{}, Subtotal: decimal.Zero}
	}
	for _, inv := range invoices {
		inv.Amount = inv.Amount.Round(2)
		if inv.Amount.IsNegative() {
			inv.Amount = decimal.Zero
		}
		name := e.BucketFor(inv.Category)
		b := buckets[name]
		b.Invoices = append(b.Invoices, inv)
		b.Subtotal = b.Subtotal.Add(inv.Amount)
		buckets[name] = b
	}

	total := decimal.Zero
	summary := make([]SummaryRow, 0, len(names)+1)
	for _, name := range names {
		b := buckets[name]
		total = total.Add(b.Subtotal)
		if len(b.Invoices) == 0 {
			continue
		}
		summary = append(summary, SummaryRow{Category: name, InvoiceCount: len(b.Invoices), Subtotal: b.Subtotal})
	}
	summary = append(summary, SummaryRow{Category: e.rules.Expense.TotalLabel, InvoiceCount: len(invoices), Subtotal: total})

	validation := e.Validate(trips, invoices)
	status, message := claimStatus(trips, invoices, validation)

	return Claim{
		Status:                status,
		Message:               message,
		ReimbursementTypeCode: code,
		ReimbursementType:     e.RegionLabel(code),
		TotalAmount:           total,
		AttachmentCount:       len(invoices),
		ExpenseCategories:     buckets,
		Summary:               summary,
		Validation:            validation,
		Claimant:              e.mergeClaimant(claimant),
		Trips:                 append([]Trip{}, trips...),
		Confirmed:             confirmed,
	}
}

func claimStatus(trips []Trip, invoices []Invoice, v Validation) (Status, string) {
	var missing []string
	if len(trips) == 0 {
		missing = append(missing, "no trips declared")
	}
	if len(invoices) == 0 {
		missing = append(missing, "no invoices uploaded")
	}
	if len(missing) > 0 {
		return StatusError, strings.Join(missing, "; ")
	}

	findings := append(append([]string{}, v.Issues...), v.Warnings...)
	if len(findings) > 0 {
		return StatusWarning, fmt.Sprintf("claim generated with %d finding(s): %s", len(findings), strings.Join(findings, "; "))
	}
	return StatusSuccess, "claim generated"
}

func (e *Engine) mergeClaimant(c Claimant) ClaimantFields {
	d := e.rules.ClaimantDefaults
	or := func(v, fallback string) string {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
		return fallback
	}

	name := strings.TrimSpace(c.Name)
	return ClaimantFields{
		Name:                 name,
		Department:           strings.TrimSpace(c.Department),
		ExpenseReason:        or(c.ExpenseReason, d.ExpenseReason),
		Payee:                or(c.Payee, name),
		BankName:             or(c.BankName, d.BankName),
		CardNumber:           strings.TrimSpace(c.CardNumber),
		Sharing:              c.Sharing,
		SharingReason:        or(c.SharingReason, d.SharingReason),
		LodgingOverage:       overage(or(c.LodgingOverage, d.LodgingOverage)),
		CityTransportOverage: overage(or(c.CityTransportOverage, d.CityTransportOverage)),
		OverageExplanation:   or(c.OverageExplanation, d.OverageExplanation),
	}
}

func overage(s string) decimal.Decimal {
	d, ok := ParseAmount(s)
	if !ok {
		return decimal.Zero
	}
	return d
}
