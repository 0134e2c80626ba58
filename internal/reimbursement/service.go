package reimbursement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/travel-reimburse/internal/claim"
	"github.com/zombor/travel-reimburse/internal/filestore"
	"github.com/zombor/travel-reimburse/internal/handoff"
	"github.com/zombor/travel-reimburse/internal/scanning"
)

// ErrInvalidInput is returned when a request cannot be acted on as given
var ErrInvalidInput = errors.New("invalid input")

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service owns the trip and invoice workspace and generates claims from it
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     filestore.Storage
	engine      *claim.Engine
	writer      *handoff.Writer
	metrics     *Metrics
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with uuid IDs, the wall clock and fresh metrics
func NewService(db DB, scanner scanning.Scanner, storage filestore.Storage, engine *claim.Engine, writer *handoff.Writer) *Service {
	return NewServiceWithDeps(db, scanner, storage, engine, writer, NewMetrics(), &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage filestore.Storage, engine *claim.Engine, writer *handoff.Writer, metrics *Metrics, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		engine:      engine,
		writer:      writer,
		metrics:     metrics,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Metrics returns the service's counters
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename keeps letters, digits, spaces, hyphens and underscores of
// the base name and caps it at 50 characters
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if runes := []rune(base); len(runes) > 50 {
		base = string(runes[:50])
	}
	if base == "" {
		base = "invoice"
	}
	return base + ext
}

// CreateTrip stores a declared trip with normalized dates and derived days
func (s *Service) CreateTrip(t claim.Trip) (*TripRecord, error) {
	now := s.timeSource.Now()
	t.ID = s.idGenerator.Generate()
	record := &TripRecord{Trip: claim.NewTrip(t), CreatedAt: now, UpdatedAt: now}
	if err := s.db.SaveTrip(record); err != nil {
		return nil, fmt.Errorf("saving trip: %w", err)
	}
	return record, nil
}

// UpdateTrip replaces a stored trip
func (s *Service) UpdateTrip(id string, t claim.Trip) (*TripRecord, error) {
	existing, err := s.db.GetTrip(id)
	if err != nil {
		return nil, fmt.Errorf("getting trip: %w", err)
	}
	t.ID = id
	record := &TripRecord{Trip: claim.NewTrip(t), CreatedAt: existing.CreatedAt, UpdatedAt: s.timeSource.Now()}
	if err := s.db.SaveTrip(record); err != nil {
		return nil, fmt.Errorf("saving trip: %w", err)
	}
	return record, nil
}

// GetTrip retrieves a trip by ID
func (s *Service) GetTrip(id string) (*TripRecord, error) {
	trip, err := s.db.GetTrip(id)
	if err != nil {
		return nil, fmt.Errorf("getting trip: %w", err)
	}
	return trip, nil
}

// ListTrips returns all trips in the order they were declared
func (s *Service) ListTrips() ([]*TripRecord, error) {
	trips, err := s.db.ListTrips()
	if err != nil {
		return nil, fmt.Errorf("listing trips: %w", err)
	}
	sort.SliceStable(trips, func(i, j int) bool {
		return trips[i].CreatedAt.Before(trips[j].CreatedAt)
	})
	return trips, nil
}

// DeleteTrip removes a trip
func (s *Service) DeleteTrip(id string) error {
	if err := s.db.DeleteTrip(id); err != nil {
		return fmt.Errorf("deleting trip: %w", err)
	}
	return nil
}

// ProcessInvoice stores an uploaded file, extracts its fields and saves the
// normalized invoice. The file is removed again when extraction fails.
func (s *Service) ProcessInvoice(ctx context.Context, filename string, data []byte, contentType, hint string) (*InvoiceRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty upload: %w", ErrInvalidInput)
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("uploads/%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	extraction, err := s.scanner.Scan(ctx, data, contentType, hint)
	if err != nil {
		slog.Error("Failed to scan invoice",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"hint", hint,
			"error", err,
		)
		s.metrics.ScanFailures.Inc()
		if delErr := s.storage.Delete(savedPath); delErr != nil {
			slog.Warn("Failed to delete file", "filename", savedPath, "error", delErr)
		}
		return nil, fmt.Errorf("scanning invoice: %w", err)
	}

	inv := s.engine.Normalize(extraction.Fields, hint)
	inv.ID = id
	record := &InvoiceRecord{
		Invoice:     inv,
		Hint:        hint,
		Filename:    savedPath,
		ContentType: contentType,
		FileType:    extraction.FileType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveInvoice(record); err != nil {
		if delErr := s.storage.Delete(savedPath); delErr != nil {
			slog.Warn("Failed to delete file", "filename", savedPath, "error", delErr)
		}
		return nil, fmt.Errorf("saving invoice to database: %w", err)
	}

	s.metrics.recordInvoice(inv, "upload")
	if inv.NeedsManualInput {
		slog.Info("Invoice needs manual input", "id", id, "category", inv.Category, "missing", inv.MissingFields)
	}
	return record, nil
}

// CreateManualInvoice normalizes fields typed in by the user
func (s *Service) CreateManualInvoice(fields map[string]string, hint string) (*InvoiceRecord, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("no invoice fields: %w", ErrInvalidInput)
	}

	now := s.timeSource.Now()
	inv := s.engine.Normalize(fields, hint)
	inv.ID = s.idGenerator.Generate()
	record := &InvoiceRecord{Invoice: inv, Hint: hint, CreatedAt: now, UpdatedAt: now}
	if err := s.db.SaveInvoice(record); err != nil {
		return nil, fmt.Errorf("saving invoice to database: %w", err)
	}
	s.metrics.recordInvoice(inv, "manual")
	return record, nil
}

// CorrectInvoice replaces the canonical record of an invoice. Dates and the
// amount are normalized and the missing required fields recomputed; the
// upload and the raw fields are kept when the replacement carries none.
func (s *Service) CorrectInvoice(id string, inv claim.Invoice) (*InvoiceRecord, error) {
	existing, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	if !inv.Category.Valid() {
		return nil, fmt.Errorf("unknown category %q: %w", inv.Category, ErrInvalidInput)
	}
	if inv.Amount.IsNegative() {
		return nil, fmt.Errorf("negative amount %s: %w", inv.Amount, ErrInvalidInput)
	}
	if err := checkDetailBlocks(inv); err != nil {
		return nil, err
	}

	inv.ID = id
	inv.Amount = inv.Amount.Round(2)
	normalizeInvoiceDates(&inv)
	if inv.RawFields == nil {
		inv.RawFields = existing.RawFields
	}
	inv.MissingFields = s.engine.MissingFields(inv)
	inv.NeedsManualInput = len(inv.MissingFields) > 0

	existing.Invoice = inv
	existing.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveInvoice(existing); err != nil {
		return nil, fmt.Errorf("saving invoice to database: %w", err)
	}
	return existing, nil
}

// checkDetailBlocks rejects a detail block that belongs to another category
func checkDetailBlocks(inv claim.Invoice) error {
	blocks := []struct {
		name     string
		present  bool
		category claim.Category
	}{
		{"transport", inv.Transport != nil, claim.CategoryTransport},
		{"lodging", inv.Lodging != nil, claim.CategoryLodging},
		{"taxi", inv.Taxi != nil, claim.CategoryTaxi},
	}
	for _, b := range blocks {
		if b.present && inv.Category != b.category {
			return fmt.Errorf("%s details on a %s invoice: %w", b.name, inv.Category, ErrInvalidInput)
		}
	}
	return nil
}

func normalizeInvoiceDates(inv *claim.Invoice) {
	inv.IssuanceDate = claim.ParseDate(inv.IssuanceDate)
	if inv.Transport != nil {
		inv.Transport.TravelDate = claim.ParseDate(inv.Transport.TravelDate)
	}
	if inv.Lodging != nil {
		inv.Lodging.CheckInDate = claim.ParseDate(inv.Lodging.CheckInDate)
		inv.Lodging.CheckOutDate = claim.ParseDate(inv.Lodging.CheckOutDate)
		inv.Lodging.Nights = max(1, inv.Lodging.Nights)
	}
}

// GetInvoice retrieves an invoice by ID
func (s *Service) GetInvoice(id string) (*InvoiceRecord, error) {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	return inv, nil
}

// ListInvoices returns all invoices in upload order
func (s *Service) ListInvoices() ([]*InvoiceRecord, error) {
	invoices, err := s.db.ListInvoices()
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	sort.SliceStable(invoices, func(i, j int) bool {
		return invoices[i].CreatedAt.Before(invoices[j].CreatedAt)
	})
	return invoices, nil
}

// DeleteInvoice removes an invoice and its file
func (s *Service) DeleteInvoice(id string) error {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return fmt.Errorf("getting invoice for deletion: %w", err)
	}

	if inv.Filename != "" {
		if err := s.storage.Delete(inv.Filename); err != nil {
			slog.Warn("Failed to delete file", "filename", inv.Filename, "error", err)
		}
	}

	if err := s.db.DeleteInvoice(id); err != nil {
		return fmt.Errorf("deleting invoice from database: %w", err)
	}
	return nil
}

// GetInvoiceFile retrieves the uploaded file of an invoice
func (s *Service) GetInvoiceFile(id string) ([]byte, string, error) {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting invoice: %w", err)
	}
	if inv.Filename == "" {
		return nil, "", fmt.Errorf("invoice %s has no file: %w", id, ErrNotFound)
	}

	data, err := s.storage.Get(inv.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting invoice file: %w", err)
	}
	return data, inv.ContentType, nil
}

// snapshot loads the selected trips and invoices, or all of them when no IDs
// are given
func (s *Service) snapshot(tripIDs, invoiceIDs []string) ([]*TripRecord, []*InvoiceRecord, error) {
	var trips []*TripRecord
	var err error
	if len(tripIDs) == 0 {
		if trips, err = s.ListTrips(); err != nil {
			return nil, nil, err
		}
	} else {
		for _, id := range tripIDs {
			t, err := s.db.GetTrip(id)
			if err != nil {
				return nil, nil, fmt.Errorf("getting trip %s: %w", id, err)
			}
			trips = append(trips, t)
		}
	}

	var invoices []*InvoiceRecord
	if len(invoiceIDs) == 0 {
		if invoices, err = s.ListInvoices(); err != nil {
			return nil, nil, err
		}
	} else {
		for _, id := range invoiceIDs {
			inv, err := s.db.GetInvoice(id)
			if err != nil {
				return nil, nil, fmt.Errorf("getting invoice %s: %w", id, err)
			}
			invoices = append(invoices, inv)
		}
	}
	return trips, invoices, nil
}

func tripValues(records []*TripRecord) ([]claim.Trip, []string) {
	trips := make([]claim.Trip, 0, len(records))
	ids := make([]string, 0, len(records))
	for _, r := range records {
		trips = append(trips, r.Trip)
		ids = append(ids, r.ID)
	}
	return trips, ids
}

func invoiceValues(records []*InvoiceRecord) ([]claim.Invoice, []string) {
	invoices := make([]claim.Invoice, 0, len(records))
	ids := make([]string, 0, len(records))
	for _, r := range records {
		invoices = append(invoices, r.Invoice)
		ids = append(ids, r.ID)
	}
	return invoices, ids
}

// Validate reconciles the selected invoices against the selected trips
func (s *Service) Validate(tripIDs, invoiceIDs []string) (claim.Validation, error) {
	tripRecords, invoiceRecords, err := s.snapshot(tripIDs, invoiceIDs)
	if err != nil {
		return claim.Validation{}, fmt.Errorf("loading workspace: %w", err)
	}
	trips, _ := tripValues(tripRecords)
	invoices, _ := invoiceValues(invoiceRecords)
	return s.engine.Validate(trips, invoices), nil
}

// GenerateClaim builds and stores a claim from the current workspace. A claim
// with error status is still stored so the user can see what was missing.
func (s *Service) GenerateClaim(req ClaimRequest) (*ClaimRecord, error) {
	tripRecords, invoiceRecords, err := s.snapshot(req.TripIDs, req.InvoiceIDs)
	if err != nil {
		return nil, fmt.Errorf("loading workspace: %w", err)
	}
	trips, tripIDs := tripValues(tripRecords)
	invoices, invoiceIDs := invoiceValues(invoiceRecords)

	now := s.timeSource.Now()
	record := &ClaimRecord{
		ID:         s.idGenerator.Generate(),
		Claim:      s.engine.Generate(trips, invoices, req.Claimant, req.Confirmed),
		TripIDs:    tripIDs,
		InvoiceIDs: invoiceIDs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if req.Export && record.Status != claim.StatusError {
		export, err := s.writer.Export(invoices, trips, now)
		if err != nil {
			return nil, fmt.Errorf("exporting claim: %w", err)
		}
		record.Export = export
	}

	if err := s.db.SaveClaim(record); err != nil {
		return nil, fmt.Errorf("saving claim: %w", err)
	}

	s.metrics.ClaimsGenerated.WithLabelValues(string(record.Status)).Inc()
	slog.Info("Claim generated",
		"id", record.ID,
		"status", record.Status,
		"type", record.ReimbursementTypeCode,
		"total", record.TotalAmount.StringFixed(2),
		"invoices", record.AttachmentCount,
	)
	return record, nil
}

// GetClaim retrieves a claim by ID
func (s *Service) GetClaim(id string) (*ClaimRecord, error) {
	c, err := s.db.GetClaim(id)
	if err != nil {
		return nil, fmt.Errorf("getting claim: %w", err)
	}
	return c, nil
}

// ListClaims returns all claims, newest first
func (s *Service) ListClaims() ([]*ClaimRecord, error) {
	claims, err := s.db.ListClaims()
	if err != nil {
		return nil, fmt.Errorf("listing claims: %w", err)
	}
	sort.SliceStable(claims, func(i, j int) bool {
		return claims[i].CreatedAt.After(claims[j].CreatedAt)
	})
	return claims, nil
}

// claimInvoices returns the invoices a claim was generated from in bucket order
func (s *Service) claimInvoices(c *ClaimRecord) []claim.Invoice {
	var invoices []claim.Invoice
	seen := make(map[string]bool)
	for _, name := range s.engine.BucketNames() {
		invoices = append(invoices, c.ExpenseCategories[name].Invoices...)
		seen[name] = true
	}
	// buckets from rules that have since changed
	var rest []string
	for name := range c.ExpenseCategories {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		invoices = append(invoices, c.ExpenseCategories[name].Invoices...)
	}
	return invoices
}

// ExportClaim writes the hand-off files of a stored claim
func (s *Service) ExportClaim(id string) (*ClaimRecord, error) {
	c, err := s.db.GetClaim(id)
	if err != nil {
		return nil, fmt.Errorf("getting claim: %w", err)
	}
	if c.Status == claim.StatusError {
		return nil, fmt.Errorf("claim %s has status %s: %w", id, c.Status, ErrInvalidInput)
	}

	now := s.timeSource.Now()
	export, err := s.writer.Export(s.claimInvoices(c), c.Trips, now)
	if err != nil {
		return nil, fmt.Errorf("exporting claim: %w", err)
	}

	c.Export = export
	c.UpdatedAt = now
	if err := s.db.SaveClaim(c); err != nil {
		return nil, fmt.Errorf("saving claim: %w", err)
	}
	return c, nil
}

// WriteClaimSummary writes the summary workbook of a stored claim to w
func (s *Service) WriteClaimSummary(id string, w io.Writer) error {
	c, err := s.db.GetClaim(id)
	if err != nil {
		return fmt.Errorf("getting claim: %w", err)
	}
	if err := handoff.WriteSummary(w, c.Claim); err != nil {
		return fmt.Errorf("writing claim summary: %w", err)
	}
	return nil
}
