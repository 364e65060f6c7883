package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contact is a supplier we have received invoices from
type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TaxID     string    `json:"tax_id,omitempty"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expense is an imported supplier invoice
type Expense struct {
	ID            string          `json:"id"`
	ContactID     string          `json:"contact_id,omitempty"`
	Kind          string          `json:"kind"`
	Number        string          `json:"number"`
	Title         string          `json:"title"`
	Date          time.Time       `json:"date"`
	Currency      string          `json:"currency,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	CustomerName  string          `json:"customer_name,omitempty"`
	CustomerTaxID string          `json:"customer_tax_id,omitempty"`
	Lines         []ExpenseLine   `json:"lines"`
	InvoiceKey    string          `json:"invoice_key,omitempty"`
	Filename      string          `json:"filename,omitempty"`
	ContentType   string          `json:"content_type,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ExpenseLine is one line of an imported invoice
type ExpenseLine struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// invoiceKey identifies an invoice across imports: the same supplier never
// issues two documents with the same number.
func invoiceKey(taxID, number string) string {
	if taxID == "" || number == "" {
		return ""
	}
	return taxID + "|" + number
}
