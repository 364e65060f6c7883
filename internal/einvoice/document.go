package einvoice

import "github.com/shopspring/decimal"

// Document is the normalized result of parsing one e-invoice. It holds no
// references into the source tree.
type Document struct {
	Kind      string     `json:"kind"` // root element of the invoice, e.g. "Invoice" or "CreditNote"
	Supplier  Supplier   `json:"supplier"`
	Customer  Customer   `json:"customer"`
	Header    Header     `json:"header"`
	LineItems []LineItem `json:"line_items"`
}

// Supplier is the issuing party of the invoice
type Supplier struct {
	Name    string `json:"name"`
	TaxID   string `json:"tax_id"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Customer is the receiving party. Both fields are empty when the document
// has no customer section.
type Customer struct {
	Name  string `json:"name,omitempty"`
	TaxID string `json:"tax_id,omitempty"`
}

// Header carries the document-level identifiers and totals
type Header struct {
	Number      string          `json:"number"`
	IssueDate   string          `json:"issue_date"` // YYYY-MM-DD
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency,omitempty"`
}

// LineItem is one invoiced line
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// builder accumulates extractor output. It starts with every field at its
// documented default so no extractor can leave a field undefined.
type builder struct {
	doc Document
}

func newBuilder(kind, today string) *builder {
	return &builder{
		doc: Document{
			Kind: kind,
			Header: Header{
				IssueDate:   today,
				TotalAmount: decimal.Zero,
			},
			LineItems: []LineItem{},
		},
	}
}

func (b *builder) supplier(s Supplier)    { b.doc.Supplier = s }
func (b *builder) customer(c Customer)    { b.doc.Customer = c }
func (b *builder) header(h Header)        { b.doc.Header = h }
func (b *builder) lines(items []LineItem) { b.doc.LineItems = items }

// build returns the finished document by value
func (b *builder) build() Document {
	doc := b.doc
	doc.LineItems = append(make([]LineItem, 0, len(b.doc.LineItems)), b.doc.LineItems...)
	return doc
}
