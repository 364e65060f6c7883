package ledger

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveExpense", func() {
		var (
			expense *Expense
			err     error
		)

		BeforeEach(func() {
			expense = &Expense{
				ID:         "test-id",
				Kind:       "Invoice",
				Number:     "SETP990000001",
				Title:      "ACME SAS",
				Date:       time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
				Currency:   "COP",
				Amount:     decimal.RequireFromString("3570.00"),
				InvoiceKey: "900123456|SETP990000001",
				Lines: []ExpenseLine{
					{Description: "Resma papel carta", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(1000), Total: decimal.NewFromInt(2000)},
				},
				Filename:    "test-id_invoice.xml",
				ContentType: "application/xml",
				CreatedAt:   time.Now(),
				UpdatedAt:   time.Now(),
			}
		})

		JustBeforeEach(func() {
			err = db.SaveExpense(expense)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should save the expense to the database", func() {
				saved, getErr := db.GetExpense("test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.ID).To(Equal("test-id"))
				Expect(saved.Amount.Equal(decimal.NewFromInt(3570))).To(BeTrue())
				Expect(saved.Lines).To(HaveLen(1))
			})

			It("should index the invoice key", func() {
				found, findErr := db.FindExpenseByInvoiceKey("900123456|SETP990000001")
				Expect(findErr).NotTo(HaveOccurred())
				Expect(found.ID).To(Equal("test-id"))
			})
		})

		When("the expense has no invoice key", func() {
			BeforeEach(func() {
				expense.InvoiceKey = ""
			})

			It("should still save the expense", func() {
				Expect(err).NotTo(HaveOccurred())
				_, getErr := db.GetExpense("test-id")
				Expect(getErr).NotTo(HaveOccurred())
			})
		})
	})

	Describe("SaveExpense with a taken invoice key", func() {
		BeforeEach(func() {
			Expect(db.SaveExpense(&Expense{ID: "first", InvoiceKey: "900123456|SETP1"})).To(Succeed())
		})

		It("should reject a second expense for the same invoice", func() {
			err := db.SaveExpense(&Expense{ID: "second", InvoiceKey: "900123456|SETP1"})
			Expect(errors.Is(err, ErrDuplicateInvoice)).To(BeTrue())

			_, getErr := db.GetExpense("second")
			Expect(errors.Is(getErr, ErrNotFound)).To(BeTrue())
			found, findErr := db.FindExpenseByInvoiceKey("900123456|SETP1")
			Expect(findErr).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal("first"))
		})

		It("should allow updating the expense that owns the key", func() {
			Expect(db.SaveExpense(&Expense{ID: "first", Title: "Updated", InvoiceKey: "900123456|SETP1"})).To(Succeed())
		})
	})

	Describe("SaveContact with a taken tax id", func() {
		BeforeEach(func() {
			Expect(db.SaveContact(&Contact{ID: "c1", Name: "ACME SAS", TaxID: "900123456"})).To(Succeed())
		})

		It("should reject a second contact for the same tax id", func() {
			err := db.SaveContact(&Contact{ID: "c2", Name: "ACME", TaxID: "900123456"})
			Expect(errors.Is(err, ErrContactExists)).To(BeTrue())

			contacts, listErr := db.ListContacts()
			Expect(listErr).NotTo(HaveOccurred())
			Expect(contacts).To(HaveLen(1))
		})

		It("should allow updating the contact that owns the tax id", func() {
			Expect(db.SaveContact(&Contact{ID: "c1", Name: "ACME S.A.S.", TaxID: "900123456"})).To(Succeed())
		})
	})

	Describe("GetExpense", func() {
		var (
			expenseID string
			expense   *Expense
			err       error
		)

		JustBeforeEach(func() {
			expense, err = db.GetExpense(expenseID)
		})

		When("expense exists", func() {
			BeforeEach(func() {
				expenseID = "existing-id"
				Expect(db.SaveExpense(&Expense{ID: expenseID, Title: "Existing"})).To(Succeed())
			})

			It("should return the expense", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(expense.Title).To(Equal("Existing"))
			})
		})

		When("expense does not exist", func() {
			BeforeEach(func() {
				expenseID = "non-existent"
			})

			It("should return a not found error", func() {
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
				Expect(expense).To(BeNil())
			})
		})
	})

	Describe("FindExpenseByInvoiceKey", func() {
		It("should return a not found error for an unknown key", func() {
			_, err := db.FindExpenseByInvoiceKey("1|missing")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})
	})

	Describe("ListExpenses", func() {
		When("expenses exist", func() {
			BeforeEach(func() {
				Expect(db.SaveExpense(&Expense{ID: "id1"})).To(Succeed())
				Expect(db.SaveExpense(&Expense{ID: "id2"})).To(Succeed())
			})

			It("should return all expenses", func() {
				expenses, err := db.ListExpenses()
				Expect(err).NotTo(HaveOccurred())
				Expect(expenses).To(HaveLen(2))
			})
		})

		When("no expenses exist", func() {
			It("should return an empty list", func() {
				expenses, err := db.ListExpenses()
				Expect(err).NotTo(HaveOccurred())
				Expect(expenses).NotTo(BeNil())
				Expect(expenses).To(BeEmpty())
			})
		})
	})

	Describe("DeleteExpense", func() {
		var (
			expenseID string
			err       error
		)

		BeforeEach(func() {
			expenseID = "to-delete"
			Expect(db.SaveExpense(&Expense{ID: expenseID, InvoiceKey: "900123456|SETP1"})).To(Succeed())
		})

		JustBeforeEach(func() {
			err = db.DeleteExpense(expenseID)
		})

		It("should remove the expense", func() {
			Expect(err).NotTo(HaveOccurred())
			_, getErr := db.GetExpense(expenseID)
			Expect(errors.Is(getErr, ErrNotFound)).To(BeTrue())
		})

		It("should free the invoice key for a new import", func() {
			_, findErr := db.FindExpenseByInvoiceKey("900123456|SETP1")
			Expect(errors.Is(findErr, ErrNotFound)).To(BeTrue())
		})

		When("expense does not exist", func() {
			BeforeEach(func() {
				expenseID = "missing"
			})

			It("should return a not found error", func() {
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})
	})

	Describe("FindContact", func() {
		var (
			taxID   string
			name    string
			contact *Contact
			err     error
		)

		BeforeEach(func() {
			Expect(db.SaveContact(&Contact{ID: "c1", Name: "ACME SAS", TaxID: "900123456"})).To(Succeed())
			Expect(db.SaveContact(&Contact{ID: "c2", Name: "Papelería Central"})).To(Succeed())
		})

		JustBeforeEach(func() {
			contact, err = db.FindContact(taxID, name)
		})

		When("searching by tax id", func() {
			BeforeEach(func() {
				taxID = "900123456"
				name = "Another Name"
			})

			It("should find the contact regardless of name", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(contact.ID).To(Equal("c1"))
			})
		})

		When("searching by name without a tax id", func() {
			BeforeEach(func() {
				taxID = ""
				name = "papelería central"
			})

			It("should match the name ignoring case", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(contact.ID).To(Equal("c2"))
			})
		})

		When("a name only matches a contact with a tax id", func() {
			BeforeEach(func() {
				taxID = ""
				name = "ACME SAS"
			})

			It("should return a not found error", func() {
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})

		When("the tax id is unknown", func() {
			BeforeEach(func() {
				taxID = "800000000"
				name = "ACME SAS"
			})

			It("should return a not found error", func() {
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})
	})

	Describe("contacts", func() {
		BeforeEach(func() {
			Expect(db.SaveContact(&Contact{ID: "c1", Name: "ACME SAS", TaxID: "900123456"})).To(Succeed())
		})

		It("should get a saved contact", func() {
			contact, err := db.GetContact("c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(contact.Name).To(Equal("ACME SAS"))
		})

		It("should list saved contacts", func() {
			contacts, err := db.ListContacts()
			Expect(err).NotTo(HaveOccurred())
			Expect(contacts).To(HaveLen(1))
		})

		It("should return a not found error for an unknown contact", func() {
			_, err := db.GetContact("missing")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})
	})

	Describe("persistence", func() {
		It("should keep records across reopening", func() {
			Expect(db.SaveExpense(&Expense{ID: "kept"})).To(Succeed())
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())

			_, err = db.GetExpense("kept")
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
