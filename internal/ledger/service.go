package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/invoice-intake/internal/einvoice"
)

// DefaultBatchWorkers is how many documents a batch import parses at once
const DefaultBatchWorkers = 4

// ErrDuplicateInvoice is returned when an invoice was already imported
var ErrDuplicateInvoice = errors.New("invoice already imported")

// InvoiceParser turns an e-invoice document into its normalized form
type InvoiceParser interface {
	Parse(data []byte) (einvoice.Document, error)
}

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Import is the outcome of importing one invoice
type Import struct {
	Expense  *Expense          `json:"expense"`
	Contact  *Contact          `json:"contact,omitempty"`
	Document einvoice.Document `json:"document"`
}

// Upload is one document of a batch import
type Upload struct {
	Filename    string
	Data        []byte
	ContentType string
}

// BatchResult reports what happened to one document of a batch
type BatchResult struct {
	Filename string  `json:"filename"`
	Import   *Import `json:"import,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Service handles invoice imports and the records they produce
type Service struct {
	db           DB
	parser       InvoiceParser
	storage      Storage
	idGenerator  IDGenerator
	timeSource   TimeSource
	metrics      *Metrics
	batchWorkers int
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, parser InvoiceParser, storage Storage) *Service {
	return NewServiceWithDeps(db, parser, storage, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, parser InvoiceParser, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:           db,
		parser:       parser,
		storage:      storage,
		idGenerator:  idGen,
		timeSource:   timeSrc,
		batchWorkers: DefaultBatchWorkers,
	}
}

// WithMetrics makes the service record parse and import metrics
func (s *Service) WithMetrics(m *Metrics) *Service {
	s.metrics = m
	return s
}

// WithBatchWorkers sets how many documents a batch import parses concurrently
func (s *Service) WithBatchWorkers(n int) *Service {
	if n > 0 {
		s.batchWorkers = n
	}
	return s
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename keeps invoice file names short and free of path or shell
// characters; the extension is kept.
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	if unsafeFilenameChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "invoice"
	}
	if ext == "" {
		ext = ".xml"
	}
	return base + ext
}

// parse runs the invoice parser and records the outcome
func (s *Service) parse(data []byte) (einvoice.Document, error) {
	start := time.Now()
	doc, err := s.parser.Parse(data)
	if s.metrics != nil {
		s.metrics.ObserveParse(start, err)
	}
	return doc, err
}

// PreviewInvoice parses an invoice and returns the records it would create,
// without saving anything.
func (s *Service) PreviewInvoice(data []byte) (*Prefill, error) {
	doc, err := s.parse(data)
	if err != nil {
		return nil, fmt.Errorf("previewing invoice: %w", err)
	}
	return &Prefill{
		Document: doc,
		Contact:  PrefillContact(doc),
		Expense:  PrefillExpense(doc, s.timeSource.Now()),
	}, nil
}

// ImportInvoice parses an invoice, files its supplier as a contact and saves
// it as an expense together with the original document.
func (s *Service) ImportInvoice(filename string, data []byte, contentType string) (*Import, error) {
	doc, err := s.parse(data)
	if err != nil {
		slog.Error("Failed to parse invoice",
			"filename", filename,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("importing invoice: %w", err)
	}
	return s.save(Upload{Filename: filename, Data: data, ContentType: contentType}, doc)
}

// ImportBatch parses all uploads concurrently and then saves them one by one
// in their original order. A failing document does not stop the others.
func (s *Service) ImportBatch(ctx context.Context, uploads []Upload) ([]BatchResult, error) {
	docs := make([]einvoice.Document, len(uploads))
	parseErrs := make([]error, len(uploads))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchWorkers)
	for i := range uploads {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			docs[i], parseErrs[i] = s.parse(uploads[i].Data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("parsing batch: %w", err)
	}

	results := make([]BatchResult, 0, len(uploads))
	for i, upload := range uploads {
		result := BatchResult{Filename: upload.Filename}
		if parseErrs[i] != nil {
			result.Error = parseErrs[i].Error()
			results = append(results, result)
			continue
		}
		imported, err := s.save(upload, docs[i])
		if err != nil {
			slog.Warn("Failed to import batch document", "filename", upload.Filename, "error", err)
			result.Error = err.Error()
		}
		result.Import = imported
		results = append(results, result)
	}
	return results, nil
}

// save files a parsed invoice: duplicate check, contact, document, expense
func (s *Service) save(upload Upload, doc einvoice.Document) (*Import, error) {
	now := s.timeSource.Now()
	expense := PrefillExpense(doc, now)

	if expense.InvoiceKey != "" {
		existing, err := s.db.FindExpenseByInvoiceKey(expense.InvoiceKey)
		switch {
		case err == nil:
			return nil, fmt.Errorf("invoice %s from %s is expense %s: %w",
				doc.Header.Number, doc.Supplier.TaxID, existing.ID, ErrDuplicateInvoice)
		case !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("checking for duplicate invoice: %w", err)
		}
	}

	contact, err := s.upsertContact(doc, now)
	if err != nil {
		return nil, err
	}

	id := s.idGenerator.Generate()
	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(upload.Filename)), upload.Data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	expense.ID = id
	expense.Filename = savedPath
	expense.ContentType = upload.ContentType
	expense.CreatedAt = now
	expense.UpdatedAt = now
	if contact != nil {
		expense.ContactID = contact.ID
	}

	// SaveExpense rejects the key again inside its transaction
	if err := s.db.SaveExpense(expense); err != nil {
		// Clean up file if database save fails
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving expense to database: %w", err)
	}
	if s.metrics != nil {
		s.metrics.IncrementExpensesCreated()
	}

	return &Import{Expense: expense, Contact: contact, Document: doc}, nil
}

// upsertContact finds the supplier's contact and refreshes it with the
// invoice's details, or creates it.
func (s *Service) upsertContact(doc einvoice.Document, now time.Time) (*Contact, error) {
	prefill := PrefillContact(doc)
	if prefill == nil {
		return nil, nil
	}

	contact, err := s.saveContact(prefill, now)
	if errors.Is(err, ErrContactExists) {
		// A concurrent import filed the same supplier first; merge into it
		update := *prefill
		update.ID = ""
		contact, err = s.saveContact(&update, now)
	}
	return contact, err
}

func (s *Service) saveContact(prefill *Contact, now time.Time) (*Contact, error) {
	contact, err := s.db.FindContact(prefill.TaxID, prefill.Name)
	switch {
	case errors.Is(err, ErrNotFound):
		contact = prefill
		contact.ID = s.idGenerator.Generate()
		contact.CreatedAt = now
	case err != nil:
		return nil, fmt.Errorf("finding contact: %w", err)
	default:
		mergeContact(contact, prefill)
	}
	contact.UpdatedAt = now

	if err := s.db.SaveContact(contact); err != nil {
		return nil, fmt.Errorf("saving contact: %w", err)
	}
	return contact, nil
}

// mergeContact overwrites contact fields with the non-empty values of update
func mergeContact(contact, update *Contact) {
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&contact.Name, update.Name},
		{&contact.Address, update.Address},
		{&contact.Phone, update.Phone},
		{&contact.Email, update.Email},
	} {
		if f.src != "" {
			*f.dst = f.src
		}
	}
}

// GetExpense retrieves an expense by ID
func (s *Service) GetExpense(id string) (*Expense, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	return expense, nil
}

// ListExpenses returns all expenses
func (s *Service) ListExpenses() ([]*Expense, error) {
	expenses, err := s.db.ListExpenses()
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	return expenses, nil
}

// DeleteExpense removes an expense and its original document
func (s *Service) DeleteExpense(id string) error {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return fmt.Errorf("getting expense for deletion: %w", err)
	}

	if err := s.storage.Delete(expense.Filename); err != nil {
		// Log error but continue with database deletion
		slog.Warn("Failed to delete file", "filename", expense.Filename, "error", err)
	}

	if err := s.db.DeleteExpense(id); err != nil {
		return fmt.Errorf("deleting expense from database: %w", err)
	}
	return nil
}

// GetExpenseFile retrieves the original document of an expense
func (s *Service) GetExpenseFile(id string) ([]byte, string, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting expense: %w", err)
	}

	data, err := s.storage.Get(expense.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting expense file: %w", err)
	}

	return data, expense.ContentType, nil
}

// GetContact retrieves a contact by ID
func (s *Service) GetContact(id string) (*Contact, error) {
	contact, err := s.db.GetContact(id)
	if err != nil {
		return nil, fmt.Errorf("getting contact: %w", err)
	}
	return contact, nil
}

// ListContacts returns all contacts
func (s *Service) ListContacts() ([]*Contact, error) {
	contacts, err := s.db.ListContacts()
	if err != nil {
		return nil, fmt.Errorf("listing contacts: %w", err)
	}
	return contacts, nil
}
