package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/invoice-intake/internal/einvoice"
)

// maxFormSize bounds a multipart upload. The parser applies its own, smaller
// per-document limit.
const maxFormSize = int64(20 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// importStatus maps an import failure to an HTTP status
func importStatus(err error) int {
	switch {
	case errors.Is(err, einvoice.ErrMalformedInput), errors.Is(err, einvoice.ErrDocumentTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, einvoice.ErrMissingRequiredSection), errors.Is(err, einvoice.ErrUnsupportedNesting):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrDuplicateInvoice):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// importMessage is the user-facing text for an import failure
func importMessage(err error) string {
	switch {
	case errors.Is(err, einvoice.ErrMalformedInput):
		return "The file is not a valid XML document."
	case errors.Is(err, einvoice.ErrDocumentTooLarge):
		return "The invoice document is too large."
	case errors.Is(err, einvoice.ErrMissingRequiredSection):
		return "The document does not look like an invoice: no supplier was found. Please enter it manually."
	case errors.Is(err, einvoice.ErrUnsupportedNesting):
		return "The invoice is wrapped in more than one envelope."
	case errors.Is(err, ErrDuplicateInvoice):
		return "This invoice has already been imported."
	default:
		return "Error importing invoice. Please try again."
	}
}

// parseForm reads the multipart form, answering the request on failure
func parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = fmt.Sprintf("Upload is too large. Maximum size is %dMB.", maxFormSize>>20)
		}
		writeError(w, http.StatusBadRequest, errorMsg)
		return false
	}
	return true
}

// readUpload reads one uploaded file into memory
func readUpload(header *multipart.FileHeader) (Upload, error) {
	f, err := header.Open()
	if err != nil {
		return Upload{}, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return Upload{}, fmt.Errorf("reading upload: %w", err)
	}

	return Upload{
		Filename:    header.Filename,
		Data:        data,
		ContentType: uploadContentType(header),
	}, nil
}

// uploadContentType determines the content type of an uploaded document
func uploadContentType(header *multipart.FileHeader) string {
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".xml":
		return "application/xml"
	default:
		return "application/octet-stream"
	}
}

// singleUpload reads the "file" field of a parsed form
func singleUpload(w http.ResponseWriter, r *http.Request) (Upload, bool) {
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose an invoice to upload.")
		return Upload{}, false
	}
	upload, err := readUpload(files[0])
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", files[0].Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return Upload{}, false
	}
	return upload, true
}

// handlePreviewInvoice parses an invoice and returns the prefilled records
func (s *Server) handlePreviewInvoice(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	upload, ok := singleUpload(w, r)
	if !ok {
		return
	}

	prefill, err := s.service.PreviewInvoice(upload.Data)
	if err != nil {
		slog.Error("Error previewing invoice", "filename", upload.Filename, "error", err)
		writeError(w, importStatus(err), importMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, prefill)
}

// handleImportInvoice imports one invoice
func (s *Server) handleImportInvoice(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	upload, ok := singleUpload(w, r)
	if !ok {
		return
	}

	imported, err := s.service.ImportInvoice(upload.Filename, upload.Data, upload.ContentType)
	if err != nil {
		slog.Error("Error importing invoice", "filename", upload.Filename, "error", err)
		writeError(w, importStatus(err), importMessage(err))
		return
	}
	writeJSON(w, http.StatusCreated, imported)
}

// handleImportBatch imports every file of the "files" field
func (s *Server) handleImportBatch(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No files were selected. Please choose invoices to upload.")
		return
	}

	uploads := make([]Upload, 0, len(headers))
	for _, header := range headers {
		upload, err := readUpload(header)
		if err != nil {
			slog.Error("Error reading file data", "error", err, "filename", header.Filename)
			writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
			return
		}
		uploads = append(uploads, upload)
	}

	results, err := s.service.ImportBatch(r.Context(), uploads)
	if err != nil {
		slog.Error("Error importing batch", "files", len(uploads), "error", err)
		writeError(w, http.StatusInternalServerError, "Error importing invoices. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleListExpenses returns a list of all expenses
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.service.ListExpenses()
	if err != nil {
		slog.Error("Error listing expenses", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

// handleGetExpense returns a single expense
func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	expense, err := s.service.GetExpense(r.PathValue("id"))
	if err != nil {
		writeError(w, notFoundStatus(err), "Expense not found")
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

// handleGetExpenseFile returns the original document of an expense
func (s *Server) handleGetExpenseFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetExpenseFile(r.PathValue("id"))
	if err != nil {
		writeError(w, notFoundStatus(err), "File not found")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteExpense deletes an expense
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteExpense(r.PathValue("id")); err != nil {
		slog.Error("Error deleting expense", "error", err)
		writeError(w, notFoundStatus(err), "Error deleting expense")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListContacts returns a list of all contacts
func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.service.ListContacts()
	if err != nil {
		slog.Error("Error listing contacts", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

// handleGetContact returns a single contact
func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	contact, err := s.service.GetContact(r.PathValue("id"))
	if err != nil {
		writeError(w, notFoundStatus(err), "Contact not found")
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

func notFoundStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
