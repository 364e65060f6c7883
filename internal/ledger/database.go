package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const (
	expenseBucketName    = "expenses"
	contactBucketName    = "contacts"
	invoiceKeyBucketName = "invoice_keys"
	contactTaxBucketName = "contact_tax_ids"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// ErrContactExists is returned when another contact already holds a tax ID
var ErrContactExists = errors.New("contact with tax id already exists")

// DB defines the interface for database operations
type DB interface {
	// SaveExpense saves an expense and indexes its invoice key. It returns
	// ErrDuplicateInvoice when the key belongs to another expense.
	SaveExpense(expense *Expense) error

	// GetExpense retrieves an expense by ID
	GetExpense(id string) (*Expense, error)

	// FindExpenseByInvoiceKey retrieves the expense imported for an invoice key
	FindExpenseByInvoiceKey(key string) (*Expense, error)

	// ListExpenses returns all expenses
	ListExpenses() ([]*Expense, error)

	// DeleteExpense removes an expense and its invoice key
	DeleteExpense(id string) error

	// SaveContact saves a contact and indexes its tax ID. It returns
	// ErrContactExists when the tax ID belongs to another contact.
	SaveContact(contact *Contact) error

	// GetContact retrieves a contact by ID
	GetContact(id string) (*Contact, error)

	// FindContact retrieves a contact by tax ID, or by name when taxID is empty
	FindContact(taxID, name string) (*Contact, error)

	// ListContacts returns all contacts
	ListContacts() ([]*Contact, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{expenseBucketName, contactBucketName, invoiceKeyBucketName, contactTaxBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveExpense saves an expense to the database
func (b *BoltDB) SaveExpense(expense *Expense) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(expense)
		if err != nil {
			return fmt.Errorf("marshaling expense: %w", err)
		}
		keys := tx.Bucket([]byte(invoiceKeyBucketName))
		if expense.InvoiceKey != "" {
			if owner := keys.Get([]byte(expense.InvoiceKey)); owner != nil && string(owner) != expense.ID {
				return fmt.Errorf("invoice %s is expense %s: %w", expense.InvoiceKey, owner, ErrDuplicateInvoice)
			}
		}
		if err := tx.Bucket([]byte(expenseBucketName)).Put([]byte(expense.ID), data); err != nil {
			return err
		}
		if expense.InvoiceKey == "" {
			return nil
		}
		return keys.Put([]byte(expense.InvoiceKey), []byte(expense.ID))
	})
}

// GetExpense retrieves an expense by ID
func (b *BoltDB) GetExpense(id string) (*Expense, error) {
	var expense *Expense
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		expense, err = getExpense(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

// FindExpenseByInvoiceKey retrieves the expense indexed under key
func (b *BoltDB) FindExpenseByInvoiceKey(key string) (*Expense, error) {
	var expense *Expense
	err := b.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(invoiceKeyBucketName)).Get([]byte(key))
		if id == nil {
			return fmt.Errorf("invoice %s: %w", key, ErrNotFound)
		}
		var err error
		expense, err = getExpense(tx, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

func getExpense(tx *bbolt.Tx, id string) (*Expense, error) {
	data := tx.Bucket([]byte(expenseBucketName)).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	var expense Expense
	if err := json.Unmarshal(data, &expense); err != nil {
		return nil, fmt.Errorf("unmarshaling expense: %w", err)
	}
	return &expense, nil
}

// ListExpenses returns all expenses
func (b *BoltDB) ListExpenses() ([]*Expense, error) {
	expenses := make([]*Expense, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(expenseBucketName)).ForEach(func(k, v []byte) error {
			var expense Expense
			if err := json.Unmarshal(v, &expense); err != nil {
				return fmt.Errorf("unmarshaling expense: %w", err)
			}
			expenses = append(expenses, &expense)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return expenses, nil
}

// DeleteExpense removes an expense from the database
func (b *BoltDB) DeleteExpense(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		expense, err := getExpense(tx, id)
		if err != nil {
			return err
		}
		if expense.InvoiceKey != "" {
			if err := tx.Bucket([]byte(invoiceKeyBucketName)).Delete([]byte(expense.InvoiceKey)); err != nil {
				return err
			}
		}
		return tx.Bucket([]byte(expenseBucketName)).Delete([]byte(id))
	})
}

// SaveContact saves a contact to the database
func (b *BoltDB) SaveContact(contact *Contact) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(contact)
		if err != nil {
			return fmt.Errorf("marshaling contact: %w", err)
		}
		taxIDs := tx.Bucket([]byte(contactTaxBucketName))
		if contact.TaxID != "" {
			if owner := taxIDs.Get([]byte(contact.TaxID)); owner != nil && string(owner) != contact.ID {
				return fmt.Errorf("tax id %s is contact %s: %w", contact.TaxID, owner, ErrContactExists)
			}
		}
		if err := tx.Bucket([]byte(contactBucketName)).Put([]byte(contact.ID), data); err != nil {
			return err
		}
		if contact.TaxID == "" {
			return nil
		}
		return taxIDs.Put([]byte(contact.TaxID), []byte(contact.ID))
	})
}

// GetContact retrieves a contact by ID
func (b *BoltDB) GetContact(id string) (*Contact, error) {
	var contact *Contact
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		contact, err = getContact(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return contact, nil
}

// FindContact looks a contact up through the tax ID index. Contacts without
// a tax ID are matched on their exact name, ignoring case.
func (b *BoltDB) FindContact(taxID, name string) (*Contact, error) {
	var contact *Contact
	err := b.db.View(func(tx *bbolt.Tx) error {
		if taxID != "" {
			id := tx.Bucket([]byte(contactTaxBucketName)).Get([]byte(taxID))
			if id == nil {
				return fmt.Errorf("contact with tax id %s: %w", taxID, ErrNotFound)
			}
			var err error
			contact, err = getContact(tx, string(id))
			return err
		}

		err := tx.Bucket([]byte(contactBucketName)).ForEach(func(k, v []byte) error {
			if contact != nil {
				return nil
			}
			var c Contact
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("unmarshaling contact: %w", err)
			}
			if c.TaxID == "" && strings.EqualFold(c.Name, name) {
				contact = &c
			}
			return nil
		})
		if err != nil {
			return err
		}
		if contact == nil {
			return fmt.Errorf("contact named %q: %w", name, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return contact, nil
}

func getContact(tx *bbolt.Tx, id string) (*Contact, error) {
	data := tx.Bucket([]byte(contactBucketName)).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("contact %s: %w", id, ErrNotFound)
	}
	var contact Contact
	if err := json.Unmarshal(data, &contact); err != nil {
		return nil, fmt.Errorf("unmarshaling contact: %w", err)
	}
	return &contact, nil
}

// ListContacts returns all contacts
func (b *BoltDB) ListContacts() ([]*Contact, error) {
	contacts := make([]*Contact, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(contactBucketName)).ForEach(func(k, v []byte) error {
			var contact Contact
			if err := json.Unmarshal(v, &contact); err != nil {
				return fmt.Errorf("unmarshaling contact: %w", err)
			}
			contacts = append(contacts, &contact)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return contacts, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
