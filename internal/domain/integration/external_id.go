package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Enums
// ---------------------------------------------------------------------------

// SystemCode identifies an external system whose ids we map
type SystemCode string

const (
	// SystemCodeShopify is the primary storefront platform
	SystemCodeShopify SystemCode = "SHOPIFY"
	// SystemCodeLegacyPOS is the retired point-of-sale system whose profile
	// ids still ride along on imported customers
	SystemCodeLegacyPOS SystemCode = "LEGACY_POS"
)

// IsValid returns true if the system code is valid
func (c SystemCode) IsValid() bool {
	switch c {
	case SystemCodeShopify, SystemCodeLegacyPOS:
		return true
	default:
		return false
	}
}

// String returns the string representation of SystemCode
func (c SystemCode) String() string {
	return string(c)
}

// EntityKind identifies the local entity side of a mapping
type EntityKind string

const (
	EntityKindProduct  EntityKind = "product"
	EntityKindVariant  EntityKind = "variant"
	EntityKindOrder    EntityKind = "order"
	EntityKindLine     EntityKind = "order_line"
	EntityKindCustomer EntityKind = "customer"
	EntityKindAddress  EntityKind = "address"
	EntityKindImage    EntityKind = "image"
)

// IsValid returns true if the entity kind is valid
func (k EntityKind) IsValid() bool {
	switch k {
	case EntityKindProduct, EntityKindVariant, EntityKindOrder, EntityKindLine,
		EntityKindCustomer, EntityKindAddress, EntityKindImage:
		return true
	default:
		return false
	}
}

// ResourceKind identifies the remote resource side of a mapping. It doubles
// as the watermark key for "changed since" queries.
type ResourceKind string

const (
	ResourceKindProduct  ResourceKind = "product"
	ResourceKindVariant  ResourceKind = "variant"
	ResourceKindMedia    ResourceKind = "media"
	ResourceKindOrder    ResourceKind = "order"
	ResourceKindLine     ResourceKind = "line_item"
	ResourceKindCustomer ResourceKind = "customer"
	ResourceKindAddress  ResourceKind = "address"
)

// IsValid returns true if the resource kind is valid
func (k ResourceKind) IsValid() bool {
	switch k {
	case ResourceKindProduct, ResourceKindVariant, ResourceKindMedia, ResourceKindOrder,
		ResourceKindLine, ResourceKindCustomer, ResourceKindAddress:
		return true
	default:
		return false
	}
}

// String returns the string representation of ResourceKind
func (k ResourceKind) String() string {
	return string(k)
}

// ---------------------------------------------------------------------------
// ExternalIDMapping Entity
// ---------------------------------------------------------------------------

// ExternalIDMapping translates between a local entity and the opaque id the
// same record carries on an external system. Local entities never store a
// remote id as a plain column; this table is the only place the two worlds
// touch. A mapping is never deleted on its own; it is deactivated when the
// remote resource is intentionally detached.
type ExternalIDMapping struct {
	ID           uuid.UUID
	EntityKind   EntityKind
	LocalID      uuid.UUID
	SystemCode   SystemCode
	ResourceKind ResourceKind
	ExternalID   string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewExternalIDMapping creates an active mapping
func NewExternalIDMapping(entityKind EntityKind, localID uuid.UUID, system SystemCode, resource ResourceKind, externalID string) (*ExternalIDMapping, error) {
	if !entityKind.IsValid() {
		return nil, ErrMappingInvalidResource
	}
	if localID == uuid.Nil {
		return nil, ErrMappingInvalidLocalID
	}
	if !system.IsValid() {
		return nil, ErrMappingInvalidSystemCode
	}
	if !resource.IsValid() {
		return nil, ErrMappingInvalidResource
	}
	if externalID == "" {
		return nil, ErrMappingInvalidExternalID
	}

	now := time.Now()
	return &ExternalIDMapping{
		ID:           uuid.New(),
		EntityKind:   entityKind,
		LocalID:      localID,
		SystemCode:   system,
		ResourceKind: resource,
		ExternalID:   externalID,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Deactivate marks the mapping inactive, freeing the external id for reuse
func (m *ExternalIDMapping) Deactivate() {
	m.Active = false
	m.UpdatedAt = time.Now()
}

// ---------------------------------------------------------------------------
// Upsert planning
// ---------------------------------------------------------------------------

// UpsertAction is the decision an external-id upsert resolves to
type UpsertAction string

const (
	// UpsertInsert means no mapping exists for this local entity yet
	UpsertInsert UpsertAction = "INSERT"
	// UpsertUpdate means the local entity's mapping points at a different
	// external id and must be repointed in place
	UpsertUpdate UpsertAction = "UPDATE"
	// UpsertUnchanged means the mapping already holds this external id
	UpsertUnchanged UpsertAction = "UNCHANGED"
	// UpsertSkipConflict means the external id is actively claimed by a
	// different local entity; the claim is logged and skipped, never stolen
	UpsertSkipConflict UpsertAction = "SKIP_CONFLICT"
)

// PlanUpsert resolves the three conflict cases of an external-id upsert.
// current is the active mapping for the local entity (nil if none);
// claimant is the active mapping already holding the external id (nil if
// unclaimed). When the external id is claimed by a different local entity
// the upsert is skipped: the existing mapping is never silently stolen.
func PlanUpsert(current, claimant *ExternalIDMapping, localID uuid.UUID, externalID string) UpsertAction {
	if claimant != nil && claimant.LocalID != localID {
		return UpsertSkipConflict
	}
	if current == nil {
		return UpsertInsert
	}
	if current.ExternalID == externalID {
		return UpsertUnchanged
	}
	return UpsertUpdate
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// ExternalIDKey addresses one mapping slot on the local side
type ExternalIDKey struct {
	EntityKind   EntityKind
	LocalID      uuid.UUID
	SystemCode   SystemCode
	ResourceKind ResourceKind
}

// ExternalIDReader defines reverse and forward lookups
type ExternalIDReader interface {
	// FindByLocal returns the active mapping for a local entity slot
	FindByLocal(ctx context.Context, key ExternalIDKey) (*ExternalIDMapping, error)

	// FindByExternalID returns the active mapping holding an external id
	FindByExternalID(ctx context.Context, system SystemCode, resource ResourceKind, externalID string) (*ExternalIDMapping, error)

	// MapByExternalIDs resolves a page of external ids in one query,
	// returning externalID → mapping for the ids that are actively mapped
	MapByExternalIDs(ctx context.Context, system SystemCode, resource ResourceKind, externalIDs []string) (map[string]*ExternalIDMapping, error)
}

// ExternalIDWriter defines mutations
type ExternalIDWriter interface {
	// Upsert applies the PlanUpsert rules atomically and reports which
	// action was taken
	Upsert(ctx context.Context, entityKind EntityKind, localID uuid.UUID, system SystemCode, resource ResourceKind, externalID string) (UpsertAction, error)

	// Deactivate soft-detaches the active mapping for a local entity slot
	Deactivate(ctx context.Context, key ExternalIDKey) error
}

// ExternalIDRepository is the full persistence interface for mappings
type ExternalIDRepository interface {
	ExternalIDReader
	ExternalIDWriter
}
