package einvoice

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	dateLayout             = "2006-01-02"
	defaultItemDescription = "Item"
)

// lineTags are the repeating line elements of the UBL document kinds we
// accept, in the order they are looked for.
var lineTags = []string{"InvoiceLine", "CreditNoteLine", "DebitNoteLine"}

// quantityTags name the quantity element of each line kind
var quantityTags = []string{"InvoicedQuantity", "CreditedQuantity", "DebitedQuantity"}

// extractSupplier reads the issuing party. It is the only extractor that
// can fail: a document without a supplier section is not an invoice.
func extractSupplier(root Node) (Supplier, bool) {
	section, ok := FindFirst(root, "AccountingSupplierParty")
	if !ok {
		return Supplier{}, false
	}

	s := Supplier{
		Name: partyName(section),
		TaxID: firstOf(
			func() (string, bool) { return findText(section, "PartyTaxScheme", "CompanyID") },
			func() (string, bool) { return findText(section, "PartyLegalEntity", "CompanyID") },
		),
	}

	party, ok := FindFirst(section, "Party")
	if !ok {
		return s, true
	}
	s.Phone, _ = findText(party, "Contact", "Telephone")
	s.Email, _ = findText(party, "Contact", "ElectronicMail")
	s.Address = partyAddress(party)
	return s, true
}

// extractCustomer reads the receiving party; a missing section yields the
// zero Customer.
func extractCustomer(root Node) Customer {
	section, ok := FindFirst(root, "AccountingCustomerParty")
	if !ok {
		return Customer{}
	}
	return Customer{
		Name: partyName(section),
		TaxID: firstOf(
			func() (string, bool) { return findText(section, "PartyTaxScheme", "CompanyID") },
			func() (string, bool) { return findText(section, "PartyLegalEntity", "CompanyID") },
			func() (string, bool) { return findText(section, "PartyIdentification", "ID") },
		),
	}
}

// partyName resolves a party name: tax scheme registration name, then legal
// entity registration name, then the plain party name.
func partyName(section Node) string {
	return firstOf(
		func() (string, bool) { return findText(section, "PartyTaxScheme", "RegistrationName") },
		func() (string, bool) { return findText(section, "PartyLegalEntity", "RegistrationName") },
		func() (string, bool) { return findText(section, "PartyName", "Name") },
	)
}

func partyAddress(party Node) string {
	for _, block := range []string{"PhysicalLocation", "PostalAddress"} {
		loc, ok := FindFirst(party, block)
		if !ok {
			continue
		}
		if addr := joinAddress(loc); addr != "" {
			return addr
		}
	}
	return ""
}

func joinAddress(loc Node) string {
	var parts []string
	for _, path := range [][]string{
		{"AddressLine", "Line"},
		{"CityName"},
		{"CountrySubentity"},
	} {
		if v, ok := findText(loc, path...); ok {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

// extractHeader reads number, issue date, total and currency. Every field
// falls back to its default; nothing here is an error.
func extractHeader(root Node, today time.Time) Header {
	h := Header{
		TotalAmount: decimal.Zero,
	}
	h.Number, _ = childText(root, "ID")
	h.IssueDate = normalizeDate(root, today)

	var payable Node
	for _, block := range []string{"LegalMonetaryTotal", "RequestedMonetaryTotal"} {
		if total, ok := FindFirst(root, block); ok {
			payable, _ = FindFirst(total, "PayableAmount")
			break
		}
	}
	if payable != nil {
		if amount, ok := parseDecimal(payable.Text()); ok && !amount.IsNegative() {
			h.TotalAmount = amount
		}
		h.Currency, _ = payable.Attr("currencyID")
		h.Currency = strings.TrimSpace(h.Currency)
	}
	if h.Currency == "" {
		h.Currency, _ = childText(root, "DocumentCurrencyCode")
	}
	return h
}

// normalizeDate returns the root-level issue date as YYYY-MM-DD, or today
// when it is missing or unreadable.
func normalizeDate(root Node, today time.Time) string {
	raw, ok := childText(root, "IssueDate")
	if !ok {
		return today.Format(dateLayout)
	}
	for _, layout := range []string{dateLayout, "2006/01/02", "02/01/2006", "02-01-2006", time.RFC3339} {
		if d, err := time.Parse(layout, raw); err == nil {
			return d.Format(dateLayout)
		}
	}
	return today.Format(dateLayout)
}

// extractLines reads every invoice line in document order
func extractLines(root Node) []LineItem {
	var nodes []Node
	for _, tag := range lineTags {
		if nodes = FindAll(root, tag); len(nodes) > 0 {
			break
		}
	}

	items := make([]LineItem, 0, len(nodes))
	for _, line := range nodes {
		items = append(items, extractLine(line))
	}
	return items
}

func extractLine(line Node) LineItem {
	item := LineItem{
		Description: defaultItemDescription,
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   decimal.Zero,
	}
	if desc, ok := findText(line, "Item", "Description"); ok {
		item.Description = desc
	}
	for _, tag := range quantityTags {
		if q, ok := FindFirst(line, tag); ok {
			if v, ok := parseDecimal(q.Text()); ok {
				item.Quantity = v
			}
			break
		}
	}
	if price, ok := findText(line, "Price", "PriceAmount"); ok {
		if v, ok := parseDecimal(price); ok {
			item.UnitPrice = v
		}
	}

	if total, ok := findText(line, "LineExtensionAmount"); ok {
		if v, ok := parseDecimal(total); ok {
			item.LineTotal = v
			return item
		}
	}
	item.LineTotal = item.Quantity.Mul(item.UnitPrice)
	return item
}

// parseDecimal parses trimmed text as a decimal; anything unparseable is
// reported as absent.
func parseDecimal(text string) (decimal.Decimal, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}
