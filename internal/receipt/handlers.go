package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/zombor/receipt-analyzer/internal/scanning"
)

const maxUploadSize = int64(50 << 20) // 50MB

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes {"error": message} with the given status
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// ingestStatus maps an ingestion failure to an HTTP status
func ingestStatus(err error) int {
	if errors.Is(err, scanning.ErrUnsupportedFormat) {
		return http.StatusUnsupportedMediaType
	}
	return http.StatusUnprocessableEntity
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseQuery reads q, from, to, sort and order; "to" covers the whole day
func parseQuery(r *http.Request) (Query, error) {
	values := r.URL.Query()
	q := Query{
		Keyword:   values.Get("q"),
		SortField: values.Get("sort"),
		SortOrder: values.Get("order"),
	}
	if from := values.Get("from"); from != "" {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return Query{}, err
		}
		q.From = t
	}
	if to := values.Get("to"); to != "" {
		t, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return Query{}, err
		}
		q.To = t.Add(24*time.Hour - time.Second)
	}
	return q, nil
}

// handleIndex serves the dashboard
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleListReceipts returns receipts selected by the query string
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		jsonError(w, "Dates must use YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	records, err := s.service.Find(q)
	if errors.Is(err, ErrInvalidSort) {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

// handleUploadReceipt handles receipt upload
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 50MB."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	ingested, err := s.service.ProcessUpload(header.Filename, data)
	if err != nil {
		slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
		jsonError(w, err.Error(), ingestStatus(err))
		return
	}

	writeJSON(w, http.StatusCreated, ingested)
}

// handleParseText stores a receipt parsed from pasted text
func (s *Server) handleParseText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ingested, err := s.service.ParseText(req.Text)
	if err != nil {
		slog.Error("Error parsing receipt text", "error", err)
		jsonError(w, err.Error(), ingestStatus(err))
		return
	}

	writeJSON(w, http.StatusCreated, ingested)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		corsError(w, "Invalid receipt ID", http.StatusBadRequest)
		return
	}
	record, err := s.service.GetReceipt(id)
	if err != nil {
		corsError(w, "Receipt not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleGetReceiptText returns the archived OCR text of a receipt
func (s *Server) handleGetReceiptText(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		corsError(w, "Invalid receipt ID", http.StatusBadRequest)
		return
	}
	doc, err := s.service.Document(id)
	if err != nil {
		corsError(w, "Text not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// handleGetReceiptFile returns the uploaded file of a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		corsError(w, "Invalid receipt ID", http.StatusBadRequest)
		return
	}
	data, contentType, err := s.service.GetReceiptFile(id)
	if err != nil {
		corsError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteReceipt deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		corsError(w, "Invalid receipt ID", http.StatusBadRequest)
		return
	}
	err := s.service.DeleteReceipt(id)
	if errors.Is(err, ErrNotFound) {
		corsError(w, "Receipt not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Error deleting receipt", "id", id, "error", err)
		corsError(w, "Error deleting receipt", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleSpendByCategory returns total spend per category
func (s *Server) handleSpendByCategory(w http.ResponseWriter, r *http.Request) {
	totals, err := s.service.SpendByCategory()
	if err != nil {
		slog.Error("Error summing by category", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, totals)
}

// handleSpendByMonth returns total spend per month
func (s *Server) handleSpendByMonth(w http.ResponseWriter, r *http.Request) {
	totals, err := s.service.SpendByMonth()
	if err != nil {
		slog.Error("Error summing by month", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, totals)
}

// handleExportCSV downloads the selected receipts as CSV
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		corsError(w, "Dates must use YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	records, err := s.service.Find(q)
	if errors.Is(err, ErrInvalidSort) {
		corsError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("Error exporting receipts", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="receipts.csv"`)
	if err := WriteCSV(w, records); err != nil {
		slog.Error("Error writing csv", "error", err)
	}
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}
