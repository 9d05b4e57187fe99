package partner

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/storesync/backend/internal/domain/shared"
)

// Partner errors
var (
	ErrContactInvalidName = errors.New("partner: contact name is required")
	ErrContactNotFound    = errors.New("partner: contact not found")
)

// ContactType distinguishes a primary record from its child contacts
type ContactType string

const (
	// ContactTypePrimary is a standalone customer record
	ContactTypePrimary ContactType = "primary"
	// ContactTypeDelivery is a child delivery address contact
	ContactTypeDelivery ContactType = "delivery"
	// ContactTypeInvoice is a child billing contact
	ContactTypeInvoice ContactType = "invoice"
)

// IsValid returns true if the contact type is valid
func (t ContactType) IsValid() bool {
	switch t {
	case ContactTypePrimary, ContactTypeDelivery, ContactTypeInvoice:
		return true
	default:
		return false
	}
}

// Contact is a customer or one of its child address contacts. Children hang
// off a primary record via ParentID; imports that detect an identity
// mismatch spin off a new child rather than overwrite the matched record.
type Contact struct {
	shared.BaseEntity
	ParentID *uuid.UUID  `gorm:"type:uuid;index"`
	Type     ContactType `gorm:"type:varchar(20);not null;default:'primary'"`
	Name     string      `gorm:"type:varchar(200);not null"`
	Company  string      `gorm:"type:varchar(200)"`
	Email    string      `gorm:"type:varchar(200);index"`
	Phone    string      `gorm:"type:varchar(50);index"`
	Street   string      `gorm:"type:varchar(255)"`
	Street2  string      `gorm:"type:varchar(255)"`
	City     string      `gorm:"type:varchar(100)"`
	Province string      `gorm:"type:varchar(100)"`
	Zip      string      `gorm:"type:varchar(20)"`
	Country  string      `gorm:"type:varchar(2)"`
	Note     string      `gorm:"type:text"`
	Active   bool        `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (Contact) TableName() string {
	return "contacts"
}

// NewContact creates a primary contact
func NewContact(name string) (*Contact, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrContactInvalidName
	}
	return &Contact{
		BaseEntity: shared.NewBaseEntity(),
		Type:       ContactTypePrimary,
		Name:       strings.TrimSpace(name),
		Active:     true,
	}, nil
}

// NewChildContact creates a child contact under a primary record
func NewChildContact(parentID uuid.UUID, contactType ContactType, name string) (*Contact, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrContactInvalidName
	}
	if !contactType.IsValid() || contactType == ContactTypePrimary {
		contactType = ContactTypeDelivery
	}
	return &Contact{
		BaseEntity: shared.NewBaseEntity(),
		ParentID:   &parentID,
		Type:       contactType,
		Name:       strings.TrimSpace(name),
		Active:     true,
	}, nil
}

// IsChild reports whether this contact hangs off a primary record
func (c *Contact) IsChild() bool {
	return c.ParentID != nil
}

// AddressFingerprint returns the normalized comparison key for address
// dedup: street, city, zip, phone and company folded through NormalizeKey
func (c *Contact) AddressFingerprint() string {
	return AddressKey(c.Street, c.City, c.Zip, c.Phone, c.Company)
}

// ---------------------------------------------------------------------------
// Normalization
// ---------------------------------------------------------------------------

var keyFolder = cases.Fold()

// NormalizeKey reduces a free-text value to a comparison key: NFKC
// normalization, case folding, and everything but letters and digits
// stripped. "Süd-Straße 12" and "sud-strasse 12" land on different keys,
// but spacing, punctuation and case variants of the same text collide.
func NormalizeKey(s string) string {
	folded := keyFolder.String(norm.NFKC.String(s))
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone strips everything but digits and a leading plus
func NormalizePhone(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AddressKey builds the dedup key a proposed address is compared under
// before a new child contact is created
func AddressKey(street, city, zip, phone, company string) string {
	return strings.Join([]string{
		NormalizeKey(street),
		NormalizeKey(city),
		NormalizeKey(zip),
		NormalizePhone(phone),
		NormalizeKey(company),
	}, "|")
}

// TitleCaseName normalizes a person name for display
func TitleCaseName(s string) string {
	return cases.Title(language.Und).String(strings.ToLower(strings.TrimSpace(s)))
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// ContactRepository is the persistence interface for contacts
type ContactRepository interface {
	// FindByID loads one contact
	FindByID(ctx context.Context, id uuid.UUID) (*Contact, error)

	// FindByEmail finds an active primary contact by exact email
	FindByEmail(ctx context.Context, email string) (*Contact, error)

	// FindByPhone finds an active primary contact by normalized phone
	FindByPhone(ctx context.Context, phone string) (*Contact, error)

	// FindChildren loads the child contacts of a primary record
	FindChildren(ctx context.Context, parentID uuid.UUID) ([]Contact, error)

	// Save persists a new contact
	Save(ctx context.Context, contact *Contact) error

	// UpdateFields applies a changed-columns patch in a single write
	UpdateFields(ctx context.Context, id uuid.UUID, columns map[string]any) error
}
