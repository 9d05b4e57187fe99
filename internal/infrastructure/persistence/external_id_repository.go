package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/infrastructure/persistence/models"
)

// GormExternalIDRepository implements integration.ExternalIDRepository using GORM
type GormExternalIDRepository struct {
	db *gorm.DB
}

// NewGormExternalIDRepository creates a new GormExternalIDRepository
func NewGormExternalIDRepository(db *gorm.DB) *GormExternalIDRepository {
	return &GormExternalIDRepository{db: db}
}

// Interface compliance check
var _ integration.ExternalIDRepository = (*GormExternalIDRepository)(nil)

// ---------------------------------------------------------------------------
// ExternalIDReader implementation
// ---------------------------------------------------------------------------

// FindByLocal returns the active mapping for a local entity slot
func (r *GormExternalIDRepository) FindByLocal(ctx context.Context, key integration.ExternalIDKey) (*integration.ExternalIDMapping, error) {
	var model models.ExternalIDMappingModel
	err := r.db.WithContext(ctx).
		Where("entity_kind = ? AND local_id = ? AND system_code = ? AND resource_kind = ? AND active",
			key.EntityKind, key.LocalID, key.SystemCode, key.ResourceKind).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByExternalID returns the active mapping holding an external id
func (r *GormExternalIDRepository) FindByExternalID(ctx context.Context, system integration.SystemCode, resource integration.ResourceKind, externalID string) (*integration.ExternalIDMapping, error) {
	var model models.ExternalIDMappingModel
	err := r.db.WithContext(ctx).
		Where("system_code = ? AND resource_kind = ? AND external_id = ? AND active",
			system, resource, externalID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// MapByExternalIDs resolves a page of external ids in one query
func (r *GormExternalIDRepository) MapByExternalIDs(ctx context.Context, system integration.SystemCode, resource integration.ResourceKind, externalIDs []string) (map[string]*integration.ExternalIDMapping, error) {
	result := make(map[string]*integration.ExternalIDMapping, len(externalIDs))
	if len(externalIDs) == 0 {
		return result, nil
	}

	var mappingModels []models.ExternalIDMappingModel
	err := r.db.WithContext(ctx).
		Where("system_code = ? AND resource_kind = ? AND external_id IN ? AND active",
			system, resource, externalIDs).
		Find(&mappingModels).Error
	if err != nil {
		return nil, err
	}

	for i := range mappingModels {
		result[mappingModels[i].ExternalID] = mappingModels[i].ToDomain()
	}
	return result, nil
}

// ---------------------------------------------------------------------------
// ExternalIDWriter implementation
// ---------------------------------------------------------------------------

// Upsert applies the conflict rules atomically: insert when the local entity
// has no mapping, repoint when it has one for a different external id, leave
// alone when unchanged, and skip when the external id is actively claimed by
// a different local entity. A claimed id is never silently stolen.
func (r *GormExternalIDRepository) Upsert(ctx context.Context, entityKind integration.EntityKind, localID uuid.UUID, system integration.SystemCode, resource integration.ResourceKind, externalID string) (integration.UpsertAction, error) {
	var action integration.UpsertAction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := r.lockActive(tx,
			"entity_kind = ? AND local_id = ? AND system_code = ? AND resource_kind = ? AND active",
			entityKind, localID, system, resource)
		if err != nil {
			return err
		}
		claimant, err := r.lockActive(tx,
			"system_code = ? AND resource_kind = ? AND external_id = ? AND active",
			system, resource, externalID)
		if err != nil {
			return err
		}

		var curDomain, claimDomain *integration.ExternalIDMapping
		if current != nil {
			curDomain = current.ToDomain()
		}
		if claimant != nil {
			claimDomain = claimant.ToDomain()
		}

		action = integration.PlanUpsert(curDomain, claimDomain, localID, externalID)
		switch action {
		case integration.UpsertInsert:
			mapping, err := integration.NewExternalIDMapping(entityKind, localID, system, resource, externalID)
			if err != nil {
				return err
			}
			return tx.Create(models.ExternalIDMappingModelFromDomain(mapping)).Error
		case integration.UpsertUpdate:
			return tx.Model(&models.ExternalIDMappingModel{}).
				Where("id = ?", current.ID).
				Updates(map[string]any{
					"external_id": externalID,
					"updated_at":  time.Now(),
				}).Error
		default:
			return nil
		}
	})
	if err != nil {
		return "", err
	}
	return action, nil
}

// Deactivate marks the active mapping for a local entity slot inactive
func (r *GormExternalIDRepository) Deactivate(ctx context.Context, key integration.ExternalIDKey) error {
	res := r.db.WithContext(ctx).Model(&models.ExternalIDMappingModel{}).
		Where("entity_kind = ? AND local_id = ? AND system_code = ? AND resource_kind = ? AND active",
			key.EntityKind, key.LocalID, key.SystemCode, key.ResourceKind).
		Updates(map[string]any{"active": false, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return integration.ErrMappingNotFound
	}
	return nil
}

// lockActive loads one row under FOR UPDATE, returning nil when absent
func (r *GormExternalIDRepository) lockActive(tx *gorm.DB, cond string, args ...any) (*models.ExternalIDMappingModel, error) {
	var model models.ExternalIDMappingModel
	err := tx.Raw("SELECT * FROM external_id_mappings WHERE "+cond+" LIMIT 1 FOR UPDATE", args...).
		Scan(&model).Error
	if err != nil {
		return nil, err
	}
	if model.ID == uuid.Nil {
		return nil, nil
	}
	return &model, nil
}
