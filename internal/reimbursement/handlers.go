package reimbursement

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/travel-reimburse/internal/claim"
)

const maxUploadSize = int64(50 << 20) // 50MB

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body with CORS headers set
func writeError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// writeServiceError maps a service error to its status code
func writeServiceError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidInput):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("Error "+action, "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// decodeBody decodes a JSON request body into v. An empty body is allowed
// when optional is set.
func decodeBody(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	return err
}

// contentTypeFor guesses the MIME type of an upload from its extension
func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

func (s *Server) handleListTrips(w http.ResponseWriter, r *http.Request) {
	trips, err := s.service.ListTrips()
	if err != nil {
		writeServiceError(w, "listing trips", err)
		return
	}
	writeJSON(w, http.StatusOK, trips)
}

func (s *Server) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	var trip claim.Trip
	if err := decodeBody(r, &trip, false); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	record, err := s.service.CreateTrip(trip)
	if err != nil {
		writeServiceError(w, "creating trip", err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := s.service.GetTrip(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "getting trip", err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (s *Server) handleUpdateTrip(w http.ResponseWriter, r *http.Request) {
	var trip claim.Trip
	if err := decodeBody(r, &trip, false); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	record, err := s.service.UpdateTrip(r.PathValue("id"), trip)
	if err != nil {
		writeServiceError(w, "updating trip", err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleDeleteTrip(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteTrip(r.PathValue("id")); err != nil {
		writeServiceError(w, "deleting trip", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.service.ListInvoices()
	if err != nil {
		writeServiceError(w, "listing invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

// handleUploadInvoice accepts a multipart upload with a "file" part and an
// optional "category" hint such as 火车票 or 酒店发票
func (s *Server) handleUploadInvoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "File is too large. Maximum size is 50MB.", http.StatusBadRequest)
			return
		}
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFor(header.Filename)
	}
	hint := strings.TrimSpace(r.FormValue("category"))

	record, err := s.service.ProcessInvoice(r.Context(), header.Filename, data, contentType, hint)
	if err != nil {
		slog.Error("Error processing invoice", "filename", header.Filename, "error", err)
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleManualInvoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fields   map[string]string `json:"fields"`
		Category string            `json:"category"`
	}
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	record, err := s.service.CreateManualInvoice(req.Fields, req.Category)
	if err != nil {
		writeServiceError(w, "creating invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.service.GetInvoice(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "getting invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleCorrectInvoice(w http.ResponseWriter, r *http.Request) {
	var inv claim.Invoice
	if err := decodeBody(r, &inv, false); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	record, err := s.service.CorrectInvoice(r.PathValue("id"), inv)
	if err != nil {
		writeServiceError(w, "correcting invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteInvoice(r.PathValue("id")); err != nil {
		writeServiceError(w, "deleting invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetInvoiceFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetInvoiceFile(r.PathValue("id"))
	if err != nil {
		writeError(w, "File not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TripIDs    []string `json:"trip_ids"`
		InvoiceIDs []string `json:"invoice_ids"`
	}
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	result, err := s.service.Validate(req.TripIDs, req.InvoiceIDs)
	if err != nil {
		writeServiceError(w, "validating workspace", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGenerateClaim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	record, err := s.service.GenerateClaim(req)
	if err != nil {
		writeServiceError(w, "generating claim", err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleListClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := s.service.ListClaims()
	if err != nil {
		writeServiceError(w, "listing claims", err)
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	c, err := s.service.GetClaim(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "getting claim", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleExportClaim(w http.ResponseWriter, r *http.Request) {
	c, err := s.service.ExportClaim(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "exporting claim", err)
		return
	}
	writeJSON(w, http.StatusOK, c.Export)
}

func (s *Server) handleClaimSummary(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var buf bytes.Buffer
	if err := s.service.WriteClaimSummary(id, &buf); err != nil {
		writeServiceError(w, "writing claim summary", err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="claim_%s.xlsx"`, id))
	w.Write(buf.Bytes())
}
