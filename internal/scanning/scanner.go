package scanning

import (
	"context"
	"strings"
)

// Extraction is the raw output of one extraction call: label to value text in
// the document's own language, plus the hint the caller supplied
type Extraction struct {
	Fields       map[string]string `json:"fields"`
	CategoryHint string            `json:"category_hint,omitempty"`
	FileType     string            `json:"file_type"`
}

// Scanner defines the interface for invoice extraction
type Scanner interface {
	// Scan reads an invoice image/PDF and returns its labelled fields. hint
	// names the invoice kind when the uploader knows it (火车票, 机票, ...).
	Scan(ctx context.Context, data []byte, contentType, hint string) (*Extraction, error)
	// Close closes the scanner and releases resources
	Close() error
}

// FileType reduces a MIME type to the short tag stored with an extraction
func FileType(contentType string) string {
	mimeType := normalizeMIME(contentType)
	switch {
	case mimeType == "application/pdf":
		return "pdf"
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	default:
		return "unknown"
	}
}
