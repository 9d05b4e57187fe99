package sync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/domain/partner"
	"github.com/storesync/backend/internal/domain/shared"
)

// CustomerReconcilerConfig wires a customer reconciler for one job
type CustomerReconcilerConfig struct {
	Platform    integration.StorefrontPlatform
	Contacts    partner.ContactRepository
	ExternalIDs integration.ExternalIDRepository
	PageSize    int
	Since       *time.Time
	IDs         []string
	Logger      *zap.Logger
}

// CustomerReconciler reconciles remote customers and their addresses into
// the local contact tree. Resolution strength matters: a record matched
// only through the retired point-of-sale profile id gets an identity check
// before any overwrite, and a mismatch spawns a child contact so neither
// source loses data.
type CustomerReconciler struct {
	platform integration.StorefrontPlatform
	contacts partner.ContactRepository
	extIDs   integration.ExternalIDRepository
	pageSize int
	since    *time.Time
	ids      []string
	logger   *zap.Logger
}

var _ PageImporter[integration.RemoteCustomer] = (*CustomerReconciler)(nil)

// NewCustomerReconciler creates a customer reconciler
func NewCustomerReconciler(cfg CustomerReconcilerConfig) *CustomerReconciler {
	return &CustomerReconciler{
		platform: cfg.Platform,
		contacts: cfg.Contacts,
		extIDs:   cfg.ExternalIDs,
		pageSize: cfg.PageSize,
		since:    cfg.Since,
		ids:      cfg.IDs,
		logger:   cfg.Logger,
	}
}

// FetchPage pulls one page of remote customers
func (r *CustomerReconciler) FetchPage(ctx context.Context, cursor string) (*Page[integration.RemoteCustomer], error) {
	page, err := r.platform.PullCustomers(ctx, integration.PageQuery{
		Cursor:       cursor,
		PageSize:     r.pageSize,
		UpdatedSince: r.since,
		IDs:          r.ids,
	})
	if err != nil {
		return nil, err
	}
	return &Page[integration.RemoteCustomer]{
		Nodes:     page.Nodes,
		EndCursor: page.EndCursor,
		HasNext:   page.HasNext,
	}, nil
}

// ImportOne reconciles one remote customer. Resolution order: platform id
// mapping, then the legacy profile id mapping, then email, then phone.
func (r *CustomerReconciler) ImportOne(ctx context.Context, node integration.RemoteCustomer) (Outcome, error) {
	name := partner.TitleCaseName(node.DisplayName())
	if name == "" && node.Email == "" && node.Phone == "" {
		return Skipped("customer carries no identity"), nil
	}

	local, weakMatch, err := r.resolve(ctx, node)
	if err != nil {
		return Outcome{}, err
	}

	if local == nil {
		return r.createFromRemote(ctx, node, name)
	}

	if weakMatch && identityMismatch(local, node, name) {
		return r.spawnChild(ctx, local, node, name)
	}

	changed, err := r.applyRemote(ctx, local, node, name)
	if err != nil {
		return Outcome{}, err
	}
	if err := r.ensureMappings(ctx, local.ID, node); err != nil {
		return Outcome{}, err
	}
	addrChanged, err := r.applyAddresses(ctx, local, node)
	if err != nil {
		return Outcome{}, err
	}
	if changed || addrChanged {
		return Imported(), nil
	}
	return Skipped("no fields differed"), nil
}

// resolve finds the local contact. The second return reports a weak match:
// one made through the legacy profile id rather than the platform id.
func (r *CustomerReconciler) resolve(ctx context.Context, node integration.RemoteCustomer) (*partner.Contact, bool, error) {
	mapping, err := r.extIDs.FindByExternalID(ctx, integration.SystemCodeShopify, integration.ResourceKindCustomer, node.ID)
	if err != nil && !errors.Is(err, integration.ErrMappingNotFound) {
		return nil, false, err
	}
	if mapping != nil {
		contact, err := r.contacts.FindByID(ctx, mapping.LocalID)
		if err != nil && !errors.Is(err, partner.ErrContactNotFound) {
			return nil, false, err
		}
		if contact != nil {
			return contact, false, nil
		}
	}

	if node.LegacyProfileID != "" {
		mapping, err := r.extIDs.FindByExternalID(ctx, integration.SystemCodeLegacyPOS, integration.ResourceKindCustomer, node.LegacyProfileID)
		if err != nil && !errors.Is(err, integration.ErrMappingNotFound) {
			return nil, false, err
		}
		if mapping != nil {
			contact, err := r.contacts.FindByID(ctx, mapping.LocalID)
			if err != nil && !errors.Is(err, partner.ErrContactNotFound) {
				return nil, false, err
			}
			if contact != nil {
				return contact, true, nil
			}
		}
	}

	if node.Email != "" {
		contact, err := r.contacts.FindByEmail(ctx, node.Email)
		if err != nil && !errors.Is(err, partner.ErrContactNotFound) {
			return nil, false, err
		}
		if contact != nil {
			return contact, false, nil
		}
	}

	if phone := partner.NormalizePhone(node.Phone); phone != "" {
		contact, err := r.contacts.FindByPhone(ctx, phone)
		if err != nil && !errors.Is(err, partner.ErrContactNotFound) {
			return nil, false, err
		}
		if contact != nil {
			return contact, false, nil
		}
	}

	return nil, false, nil
}

// identityMismatch guards the weak match path: only when name, email and
// phone are all present on both sides and all differ is the match treated
// as a different person
func identityMismatch(local *partner.Contact, node integration.RemoteCustomer, name string) bool {
	if name == "" || node.Email == "" || node.Phone == "" {
		return false
	}
	if local.Name == "" || local.Email == "" || local.Phone == "" {
		return false
	}
	return partner.NormalizeKey(local.Name) != partner.NormalizeKey(name) &&
		partner.NormalizeKey(local.Email) != partner.NormalizeKey(node.Email) &&
		partner.NormalizePhone(local.Phone) != partner.NormalizePhone(node.Phone)
}

func (r *CustomerReconciler) createFromRemote(ctx context.Context, node integration.RemoteCustomer, name string) (Outcome, error) {
	if name == "" {
		name = node.Email
	}
	contact, err := partner.NewContact(name)
	if err != nil {
		return Failed(integration.ErrorKindLocalValidation, err.Error(), node), nil
	}
	contact.Email = node.Email
	contact.Phone = partner.NormalizePhone(node.Phone)
	contact.Note = node.Note
	fillAddress(contact, node.DefaultAddress)

	if err := r.contacts.Save(ctx, contact); err != nil {
		return Outcome{}, err
	}
	if err := r.ensureMappings(ctx, contact.ID, node); err != nil {
		return Outcome{}, err
	}
	if _, err := r.applyAddresses(ctx, contact, node); err != nil {
		return Outcome{}, err
	}
	return Imported(), nil
}

// spawnChild preserves both identities when a legacy-id match turns out to
// be a different person: the remote identity becomes a child contact and
// the platform id maps to the child, leaving the matched record untouched
func (r *CustomerReconciler) spawnChild(ctx context.Context, parent *partner.Contact, node integration.RemoteCustomer, name string) (Outcome, error) {
	child, err := partner.NewChildContact(parent.ID, partner.ContactTypeDelivery, name)
	if err != nil {
		return Failed(integration.ErrorKindLocalValidation, err.Error(), node), nil
	}
	child.Email = node.Email
	child.Phone = partner.NormalizePhone(node.Phone)
	child.Note = node.Note
	fillAddress(child, node.DefaultAddress)

	if err := r.contacts.Save(ctx, child); err != nil {
		return Outcome{}, err
	}
	r.logger.Warn("legacy profile match with conflicting identity, spawned child contact",
		zap.String("parent_id", parent.ID.String()),
		zap.String("child_id", child.ID.String()),
		zap.String("external_id", node.ID))

	if _, err := r.extIDs.Upsert(ctx, integration.EntityKindCustomer, child.ID,
		integration.SystemCodeShopify, integration.ResourceKindCustomer, node.ID); err != nil {
		return Outcome{}, err
	}
	return Imported(), nil
}

func (r *CustomerReconciler) applyRemote(ctx context.Context, local *partner.Contact, node integration.RemoteCustomer, name string) (bool, error) {
	patch := shared.NewPatch().
		SetString("email", local.Email, node.Email).
		SetString("phone", local.Phone, partner.NormalizePhone(node.Phone)).
		SetString("note", local.Note, node.Note)
	if name != "" {
		patch.SetString("name", local.Name, name)
	}
	if addr := node.DefaultAddress; addr != nil {
		patch.SetString("company", local.Company, addr.Company).
			SetString("street", local.Street, addr.Address1).
			SetString("street2", local.Street2, addr.Address2).
			SetString("city", local.City, addr.City).
			SetString("province", local.Province, addr.Province).
			SetString("zip", local.Zip, addr.Zip).
			SetString("country", local.Country, addr.CountryCode)
	}

	if !patch.Changed() {
		return false, nil
	}
	if err := r.contacts.UpdateFields(ctx, local.ID, patch.Columns()); err != nil {
		return false, err
	}
	return true, nil
}

// applyAddresses upserts the customer's secondary addresses as delivery
// child contacts, deduplicating on the normalized address fingerprint
func (r *CustomerReconciler) applyAddresses(ctx context.Context, primary *partner.Contact, node integration.RemoteCustomer) (bool, error) {
	if len(node.Addresses) == 0 {
		return false, nil
	}

	children, err := r.contacts.FindChildren(ctx, primary.ID)
	if err != nil {
		return false, err
	}
	seen := make(map[string]*partner.Contact, len(children)+1)
	for i := range children {
		seen[children[i].AddressFingerprint()] = &children[i]
	}
	primaryKey := primary.AddressFingerprint()
	if node.DefaultAddress != nil {
		// The default address lives on the primary record itself.
		primaryKey = addressNodeKey(node.DefaultAddress)
	}

	changed := false
	for i := range node.Addresses {
		addr := &node.Addresses[i]
		key := addressNodeKey(addr)
		if key == primaryKey {
			continue
		}
		if existing, ok := seen[key]; ok {
			if err := r.ensureAddressMapping(ctx, existing.ID, addr.ID); err != nil {
				return changed, err
			}
			continue
		}

		name := partner.TitleCaseName(addr.FirstName + " " + addr.LastName)
		if name == "" {
			name = primary.Name
		}
		child, err := partner.NewChildContact(primary.ID, partner.ContactTypeDelivery, name)
		if err != nil {
			continue
		}
		child.Company = addr.Company
		child.Phone = partner.NormalizePhone(addr.Phone)
		fillAddress(child, addr)

		if err := r.contacts.Save(ctx, child); err != nil {
			return changed, err
		}
		if err := r.ensureAddressMapping(ctx, child.ID, addr.ID); err != nil {
			return changed, err
		}
		seen[key] = child
		changed = true
	}
	return changed, nil
}

func (r *CustomerReconciler) ensureMappings(ctx context.Context, localID uuid.UUID, node integration.RemoteCustomer) error {
	action, err := r.extIDs.Upsert(ctx, integration.EntityKindCustomer, localID,
		integration.SystemCodeShopify, integration.ResourceKindCustomer, node.ID)
	if err != nil {
		return err
	}
	if action == integration.UpsertSkipConflict {
		r.logger.Warn("customer external id claimed by another record",
			zap.String("local_id", localID.String()),
			zap.String("external_id", node.ID))
	}
	if node.LegacyProfileID == "" {
		return nil
	}
	action, err = r.extIDs.Upsert(ctx, integration.EntityKindCustomer, localID,
		integration.SystemCodeLegacyPOS, integration.ResourceKindCustomer, node.LegacyProfileID)
	if err != nil {
		return err
	}
	if action == integration.UpsertSkipConflict {
		r.logger.Warn("legacy profile id claimed by another record",
			zap.String("local_id", localID.String()),
			zap.String("legacy_profile_id", node.LegacyProfileID))
	}
	return nil
}

func (r *CustomerReconciler) ensureAddressMapping(ctx context.Context, localID uuid.UUID, externalID string) error {
	if externalID == "" {
		return nil
	}
	_, err := r.extIDs.Upsert(ctx, integration.EntityKindAddress, localID,
		integration.SystemCodeShopify, integration.ResourceKindAddress, externalID)
	return err
}

func fillAddress(contact *partner.Contact, addr *integration.RemoteAddress) {
	if addr == nil {
		return
	}
	if contact.Company == "" {
		contact.Company = addr.Company
	}
	contact.Street = addr.Address1
	contact.Street2 = addr.Address2
	contact.City = addr.City
	contact.Province = addr.Province
	contact.Zip = addr.Zip
	contact.Country = addr.CountryCode
	if contact.Phone == "" {
		contact.Phone = partner.NormalizePhone(addr.Phone)
	}
}

func addressNodeKey(addr *integration.RemoteAddress) string {
	return partner.AddressKey(addr.Address1, addr.City, addr.Zip, addr.Phone, addr.Company)
}
