package receipt

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-analyzer/internal/scanning"
)

// TextExtractor turns a receipt file into raw text
type TextExtractor interface {
	ExtractText(path string) (string, error)
}

// FieldParser turns raw receipt text into a validated Receipt
type FieldParser interface {
	ExtractFields(rawText string) (*Receipt, error)
}

// IDGenerator generates unique prefixes for stored uploads
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Ingested is the result of ingesting one document
type Ingested struct {
	Receipt *Record `json:"receipt"`
	Text    string  `json:"text"`
}

// Query selects receipts for listing and export.
// Keyword wins over the date range, which wins over sorting.
type Query struct {
	Keyword   string
	From      time.Time
	To        time.Time
	SortField string
	SortOrder string
}

// Service handles receipt ingestion and queries
type Service struct {
	db          DB
	archive     Archive
	storage     Storage
	extractor   TextExtractor
	parser      FieldParser
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, archive Archive, storage Storage, extractor TextExtractor, parser FieldParser) *Service {
	return NewServiceWithDeps(db, archive, storage, extractor, parser, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, archive Archive, storage Storage, extractor TextExtractor, parser FieldParser, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		archive:     archive,
		storage:     storage,
		extractor:   extractor,
		parser:      parser,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// contentTypeFor maps a file extension to the MIME type served back to clients
func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// IngestFile extracts, parses and stores the receipt at path
func (s *Service) IngestFile(path string) (*Ingested, error) {
	text, err := s.extractor.ExtractText(path)
	if err != nil {
		return nil, fmt.Errorf("extracting text: %w", err)
	}
	return s.ingestText(text, "", contentTypeFor(path))
}

// ParseText parses pasted receipt text and stores the result
func (s *Service) ParseText(text string) (*Ingested, error) {
	return s.ingestText(text, "", "text/plain; charset=utf-8")
}

// ProcessUpload stores an uploaded file, then extracts, parses and saves it.
// The stored file is removed again if any step fails.
func (s *Service) ProcessUpload(filename string, data []byte) (*Ingested, error) {
	name, data, err := scanning.NormalizeUpload(filename, data)
	if err != nil {
		return nil, fmt.Errorf("converting upload: %w", err)
	}

	storedName := fmt.Sprintf("%s_%s", s.idGenerator.Generate(), sanitizeFilename(name))
	savedName, err := s.storage.Save(storedName, data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	text, err := s.extractor.ExtractText(s.storage.Path(savedName))
	if err != nil {
		slog.Error("Failed to extract receipt text",
			"filename", filename,
			"file_size", len(data),
			"error", err,
		)
		s.discard(savedName)
		return nil, fmt.Errorf("extracting text: %w", err)
	}

	ingested, err := s.ingestText(text, savedName, contentTypeFor(savedName))
	if err != nil {
		s.discard(savedName)
		return nil, err
	}
	return ingested, nil
}

func (s *Service) discard(savedName string) {
	if err := s.storage.Delete(savedName); err != nil {
		slog.Warn("Failed to delete file", "filename", savedName, "error", err)
	}
}

func (s *Service) ingestText(text, savedName, contentType string) (*Ingested, error) {
	receipt, err := s.parser.ExtractFields(text)
	if err != nil {
		return nil, fmt.Errorf("parsing receipt: %w", err)
	}

	id, err := s.db.InsertReceipt(receipt)
	if err != nil {
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	doc := &Document{
		ReceiptID:   id,
		Text:        text,
		Filename:    savedName,
		ContentType: contentType,
		CreatedAt:   s.timeSource.Now(),
	}
	if err := s.archive.SaveDocument(doc); err != nil {
		slog.Warn("Failed to archive receipt text", "receipt_id", id, "error", err)
	}

	slog.Info("Receipt ingested", "id", id, "vendor", receipt.Vendor, "amount", receipt.Amount)
	return &Ingested{
		Receipt: &Record{ID: id, Receipt: *receipt},
		Text:    text,
	}, nil
}

// GetReceipt retrieves a receipt by id
func (s *Service) GetReceipt(id int64) (*Record, error) {
	record, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return record, nil
}

// ListReceipts returns all receipts
func (s *Service) ListReceipts() ([]*Record, error) {
	records, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return records, nil
}

// Find runs the query that q describes
func (s *Service) Find(q Query) ([]*Record, error) {
	var (
		records []*Record
		err     error
	)
	switch {
	case q.Keyword != "":
		records, err = s.db.SearchReceipts(q.Keyword)
	case !q.From.IsZero() || !q.To.IsZero():
		to := q.To
		if to.IsZero() {
			to = s.timeSource.Now()
		}
		records, err = s.db.FilterByDateRange(q.From, to)
	case q.SortField != "":
		order := q.SortOrder
		if order == "" {
			order = "asc"
		}
		records, err = s.db.SortReceipts(q.SortField, order)
	default:
		records, err = s.db.ListReceipts()
	}
	if err != nil {
		return nil, fmt.Errorf("finding receipts: %w", err)
	}
	return records, nil
}

// SpendByCategory returns total spend per category
func (s *Service) SpendByCategory() ([]CategoryTotal, error) {
	totals, err := s.db.AggregateByCategory()
	if err != nil {
		return nil, fmt.Errorf("summing by category: %w", err)
	}
	return totals, nil
}

// SpendByMonth returns total spend per month
func (s *Service) SpendByMonth() ([]MonthTotal, error) {
	totals, err := s.db.AggregateByMonth()
	if err != nil {
		return nil, fmt.Errorf("summing by month: %w", err)
	}
	return totals, nil
}

// Document returns the archived raw text of a receipt
func (s *Service) Document(id int64) (*Document, error) {
	doc, err := s.archive.GetDocument(id)
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return doc, nil
}

// GetReceiptFile retrieves the uploaded file of a receipt
func (s *Service) GetReceiptFile(id int64) ([]byte, string, error) {
	doc, err := s.archive.GetDocument(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting document: %w", err)
	}
	if doc.Filename == "" {
		return nil, "", fmt.Errorf("receipt %d has no stored file", id)
	}

	data, err := s.storage.Get(doc.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}
	return data, doc.ContentType, nil
}

// DeleteReceipt removes a receipt together with its archived text and file
func (s *Service) DeleteReceipt(id int64) error {
	if _, err := s.db.GetReceipt(id); err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	doc, err := s.archive.GetDocument(id)
	switch {
	case err != nil:
		slog.Warn("No archived document for receipt", "id", id, "error", err)
	case doc.Filename != "":
		s.discard(doc.Filename)
	}
	if err == nil {
		if err := s.archive.DeleteDocument(id); err != nil {
			slog.Warn("Failed to delete archived document", "id", id, "error", err)
		}
	}

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}
