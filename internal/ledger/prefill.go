package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-intake/internal/einvoice"
)

const unknownSupplier = "Unknown Supplier"

// Prefill is what an invoice would turn into if it were imported
type Prefill struct {
	Document einvoice.Document `json:"document"`
	Contact  *Contact          `json:"contact,omitempty"`
	Expense  *Expense          `json:"expense"`
}

// PrefillContact builds the supplier contact for a parsed invoice. It returns
// nil when the supplier has neither a name nor a tax ID.
func PrefillContact(doc einvoice.Document) *Contact {
	s := doc.Supplier
	if s.Name == "" && s.TaxID == "" {
		return nil
	}
	return &Contact{
		Name:    s.Name,
		TaxID:   s.TaxID,
		Address: s.Address,
		Phone:   s.Phone,
		Email:   s.Email,
	}
}

// PrefillExpense builds the expense record for a parsed invoice. now is
// used when the issue date cannot be read back.
func PrefillExpense(doc einvoice.Document, now time.Time) *Expense {
	title := doc.Supplier.Name
	if title == "" {
		title = unknownSupplier
	}

	date, err := time.Parse("2006-01-02", doc.Header.IssueDate)
	if err != nil {
		date = now
	}

	lines := make([]ExpenseLine, 0, len(doc.LineItems))
	sum := decimal.Zero
	for _, item := range doc.LineItems {
		lines = append(lines, ExpenseLine{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       item.LineTotal,
		})
		sum = sum.Add(item.LineTotal)
	}

	// Documents without a payable amount still carry their lines
	amount := doc.Header.TotalAmount
	if amount.IsZero() && len(lines) > 0 {
		amount = sum
	}

	return &Expense{
		Kind:          doc.Kind,
		Number:        doc.Header.Number,
		Title:         title,
		Date:          date,
		Currency:      doc.Header.Currency,
		Amount:        amount,
		CustomerName:  doc.Customer.Name,
		CustomerTaxID: doc.Customer.TaxID,
		Lines:         lines,
		InvoiceKey:    invoiceKey(doc.Supplier.TaxID, doc.Header.Number),
	}
}
