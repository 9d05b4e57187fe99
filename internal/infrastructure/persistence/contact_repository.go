package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storesync/backend/internal/domain/partner"
)

// GormContactRepository implements partner.ContactRepository using GORM
type GormContactRepository struct {
	db *gorm.DB
}

// NewGormContactRepository creates a new GormContactRepository
func NewGormContactRepository(db *gorm.DB) *GormContactRepository {
	return &GormContactRepository{db: db}
}

// Interface compliance check
var _ partner.ContactRepository = (*GormContactRepository)(nil)

// FindByID loads one contact
func (r *GormContactRepository) FindByID(ctx context.Context, id uuid.UUID) (*partner.Contact, error) {
	var contact partner.Contact
	if err := r.db.WithContext(ctx).First(&contact, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, partner.ErrContactNotFound
		}
		return nil, err
	}
	return &contact, nil
}

// FindByEmail finds an active primary contact by exact email
func (r *GormContactRepository) FindByEmail(ctx context.Context, email string) (*partner.Contact, error) {
	var contact partner.Contact
	err := r.db.WithContext(ctx).
		Where("email = ? AND parent_id IS NULL AND active", email).
		Order("created_at ASC").
		First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, partner.ErrContactNotFound
		}
		return nil, err
	}
	return &contact, nil
}

// FindByPhone finds an active primary contact by normalized phone
func (r *GormContactRepository) FindByPhone(ctx context.Context, phone string) (*partner.Contact, error) {
	var contact partner.Contact
	err := r.db.WithContext(ctx).
		Where("phone = ? AND parent_id IS NULL AND active", partner.NormalizePhone(phone)).
		Order("created_at ASC").
		First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, partner.ErrContactNotFound
		}
		return nil, err
	}
	return &contact, nil
}

// FindChildren loads the child contacts of a primary record
func (r *GormContactRepository) FindChildren(ctx context.Context, parentID uuid.UUID) ([]partner.Contact, error) {
	var contacts []partner.Contact
	err := r.db.WithContext(ctx).
		Where("parent_id = ? AND active", parentID).
		Order("created_at ASC").
		Find(&contacts).Error
	return contacts, err
}

// Save persists a new contact
func (r *GormContactRepository) Save(ctx context.Context, contact *partner.Contact) error {
	return r.db.WithContext(ctx).Create(contact).Error
}

// UpdateFields applies a changed-columns patch in a single write
func (r *GormContactRepository) UpdateFields(ctx context.Context, id uuid.UUID, columns map[string]any) error {
	if len(columns) == 0 {
		return nil
	}
	columns["updated_at"] = time.Now()
	res := r.db.WithContext(ctx).Model(&partner.Contact{}).
		Where("id = ?", id).
		Updates(columns)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return partner.ErrContactNotFound
	}
	return nil
}
