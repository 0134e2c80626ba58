package handoff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/zombor/travel-reimburse/internal/claim"
	"github.com/zombor/travel-reimburse/internal/filestore"
)

// BatchName is the file a generation's invoices are saved under
func BatchName(at time.Time) string {
	return "invoices_" + at.Format("20060102150405") + ".json"
}

// Writer saves hand-off files through a Storage
type Writer struct {
	store     filestore.Storage
	converter *Converter
}

// NewWriter creates a Writer
func NewWriter(store filestore.Storage, converter *Converter) *Writer {
	return &Writer{store: store, converter: converter}
}

// Export is what one export wrote
type Export struct {
	Batch     string   `json:"batch"`
	Documents []string `json:"documents"`
}

// WriteBatch saves invoices as one JSON array named after at
func (w *Writer) WriteBatch(invoices []claim.Invoice, at time.Time) (string, error) {
	if invoices == nil {
		invoices = []claim.Invoice{}
	}
	data, err := json.MarshalIndent(invoices, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encoding invoice batch: %w", err)
	}
	name, err := w.store.Save(BatchName(at), data)
	if err != nil {
		return "", fmt.Errorf("saving invoice batch: %w", err)
	}
	return name, nil
}

// WriteDocuments saves each document under its name
func (w *Writer) WriteDocuments(docs []Document) ([]string, error) {
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		data, err := d.Encode()
		if err != nil {
			return names, fmt.Errorf("encoding %s: %w", d.Name, err)
		}
		name, err := w.store.Save(d.Name, data)
		if err != nil {
			return names, fmt.Errorf("saving %s: %w", d.Name, err)
		}
		names = append(names, name)
	}
	return names, nil
}

// Export writes the batch file and the per-invoice documents of one claim
func (w *Writer) Export(invoices []claim.Invoice, trips []claim.Trip, at time.Time) (*Export, error) {
	batch, err := w.WriteBatch(invoices, at)
	if err != nil {
		return nil, err
	}
	docs := w.converter.Convert(invoices, trips)
	names, err := w.WriteDocuments(docs)
	if err != nil {
		return nil, err
	}
	slog.Info("exported hand-off files", "batch", batch, "documents", len(names), "skipped", len(invoices)-len(docs))
	return &Export{Batch: batch, Documents: names}, nil
}

// ReadBatch decodes a batch file holding either an array of invoices or a
// single invoice object
func ReadBatch(data []byte) ([]claim.Invoice, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty batch")
	}

	if trimmed[0] == '[' {
		var invoices []claim.Invoice
		if err := json.Unmarshal(trimmed, &invoices); err != nil {
			return nil, fmt.Errorf("decoding invoice array: %w", err)
		}
		return invoices, nil
	}

	var inv claim.Invoice
	if err := json.Unmarshal(trimmed, &inv); err != nil {
		return nil, fmt.Errorf("decoding invoice: %w", err)
	}
	return []claim.Invoice{inv}, nil
}
