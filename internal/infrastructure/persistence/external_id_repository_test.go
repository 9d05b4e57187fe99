package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/storesync/backend/internal/domain/integration"
)

// newMockExternalIDRepository creates a GormExternalIDRepository with a mocked SQL connection
func newMockExternalIDRepository(t *testing.T) (*GormExternalIDRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormExternalIDRepository(gormDB), mock, mockDB
}

var extIDColumns = []string{
	"id", "entity_kind", "local_id", "system_code", "resource_kind",
	"external_id", "active", "created_at", "updated_at",
}

func TestGormExternalIDRepository_FindByLocal(t *testing.T) {
	t.Run("finds active mapping", func(t *testing.T) {
		repo, mock, mockDB := newMockExternalIDRepository(t)
		defer mockDB.Close()

		localID := uuid.New()
		mappingID := uuid.New()
		now := time.Now()

		mock.ExpectQuery(`SELECT \* FROM "external_id_mappings" WHERE entity_kind = \$1 AND local_id = \$2 AND system_code = \$3 AND resource_kind = \$4 AND active`).
			WithArgs(string(integration.EntityKindProduct), localID, string(integration.SystemCodeShopify), string(integration.ResourceKindProduct), 1).
			WillReturnRows(sqlmock.NewRows(extIDColumns).AddRow(
				mappingID, string(integration.EntityKindProduct), localID,
				string(integration.SystemCodeShopify), string(integration.ResourceKindProduct),
				"gid://shopify/Product/42", true, now, now,
			))

		mapping, err := repo.FindByLocal(context.Background(), integration.ExternalIDKey{
			EntityKind:   integration.EntityKindProduct,
			LocalID:      localID,
			SystemCode:   integration.SystemCodeShopify,
			ResourceKind: integration.ResourceKindProduct,
		})
		require.NoError(t, err)
		assert.Equal(t, "gid://shopify/Product/42", mapping.ExternalID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrMappingNotFound when absent", func(t *testing.T) {
		repo, mock, mockDB := newMockExternalIDRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "external_id_mappings"`).
			WillReturnError(gorm.ErrRecordNotFound)

		_, err := repo.FindByLocal(context.Background(), integration.ExternalIDKey{
			EntityKind:   integration.EntityKindProduct,
			LocalID:      uuid.New(),
			SystemCode:   integration.SystemCodeShopify,
			ResourceKind: integration.ResourceKindProduct,
		})
		assert.ErrorIs(t, err, integration.ErrMappingNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormExternalIDRepository_MapByExternalIDs(t *testing.T) {
	repo, mock, mockDB := newMockExternalIDRepository(t)
	defer mockDB.Close()

	localID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM "external_id_mappings" WHERE system_code = \$1 AND resource_kind = \$2 AND external_id IN \(\$3,\$4\) AND active`).
		WithArgs(string(integration.SystemCodeShopify), string(integration.ResourceKindProduct),
			"gid://shopify/Product/1", "gid://shopify/Product/2").
		WillReturnRows(sqlmock.NewRows(extIDColumns).AddRow(
			uuid.New(), string(integration.EntityKindProduct), localID,
			string(integration.SystemCodeShopify), string(integration.ResourceKindProduct),
			"gid://shopify/Product/1", true, now, now,
		))

	result, err := repo.MapByExternalIDs(context.Background(),
		integration.SystemCodeShopify, integration.ResourceKindProduct,
		[]string{"gid://shopify/Product/1", "gid://shopify/Product/2"})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, localID, result["gid://shopify/Product/1"].LocalID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormExternalIDRepository_Upsert(t *testing.T) {
	localID := uuid.New()
	otherLocalID := uuid.New()
	now := time.Now()

	lockPattern := `SELECT \* FROM external_id_mappings WHERE .* LIMIT 1 FOR UPDATE`

	t.Run("inserts when the slot is empty", func(t *testing.T) {
		repo, mock, mockDB := newMockExternalIDRepository(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(lockPattern).
			WillReturnRows(sqlmock.NewRows(extIDColumns))
		mock.ExpectQuery(lockPattern).
			WillReturnRows(sqlmock.NewRows(extIDColumns))
		mock.ExpectExec(`INSERT INTO "external_id_mappings"`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		action, err := repo.Upsert(context.Background(),
			integration.EntityKindProduct, localID,
			integration.SystemCodeShopify, integration.ResourceKindProduct,
			"gid://shopify/Product/42")
		require.NoError(t, err)
		assert.Equal(t, integration.UpsertInsert, action)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("leaves an unchanged mapping alone", func(t *testing.T) {
		repo, mock, mockDB := newMockExternalIDRepository(t)
		defer mockDB.Close()

		existing := sqlmock.NewRows(extIDColumns).AddRow(
			uuid.New(), string(integration.EntityKindProduct), localID,
			string(integration.SystemCodeShopify), string(integration.ResourceKindProduct),
			"gid://shopify/Product/42", true, now, now,
		)
		claimant := sqlmock.NewRows(extIDColumns).AddRow(
			uuid.New(), string(integration.EntityKindProduct), localID,
			string(integration.SystemCodeShopify), string(integration.ResourceKindProduct),
			"gid://shopify/Product/42", true, now, now,
		)

		mock.ExpectBegin()
		mock.ExpectQuery(lockPattern).WillReturnRows(existing)
		mock.ExpectQuery(lockPattern).WillReturnRows(claimant)
		mock.ExpectCommit()

		action, err := repo.Upsert(context.Background(),
			integration.EntityKindProduct, localID,
			integration.SystemCodeShopify, integration.ResourceKindProduct,
			"gid://shopify/Product/42")
		require.NoError(t, err)
		assert.Equal(t, integration.UpsertUnchanged, action)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("repoints a stale mapping in place", func(t *testing.T) {
		repo, mock, mockDB := newMockExternalIDRepository(t)
		defer mockDB.Close()

		existing := sqlmock.NewRows(extIDColumns).AddRow(
			uuid.New(), string(integration.EntityKindProduct), localID,
			string(integration.SystemCodeShopify), string(integration.ResourceKindProduct),
			"gid://shopify/Product/41", true, now, now,
		)

		mock.ExpectBegin()
		mock.ExpectQuery(lockPattern).WillReturnRows(existing)
		mock.ExpectQuery(lockPattern).WillReturnRows(sqlmock.NewRows(extIDColumns))
		mock.ExpectExec(`UPDATE "external_id_mappings" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		action, err := repo.Upsert(context.Background(),
			integration.EntityKindProduct, localID,
			integration.SystemCodeShopify, integration.ResourceKindProduct,
			"gid://shopify/Product/42")
		require.NoError(t, err)
		assert.Equal(t, integration.UpsertUpdate, action)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("never steals an id claimed by another entity", func(t *testing.T) {
		repo, mock, mockDB := newMockExternalIDRepository(t)
		defer mockDB.Close()

		claimant := sqlmock.NewRows(extIDColumns).AddRow(
			uuid.New(), string(integration.EntityKindProduct), otherLocalID,
			string(integration.SystemCodeShopify), string(integration.ResourceKindProduct),
			"gid://shopify/Product/42", true, now, now,
		)

		mock.ExpectBegin()
		mock.ExpectQuery(lockPattern).WillReturnRows(sqlmock.NewRows(extIDColumns))
		mock.ExpectQuery(lockPattern).WillReturnRows(claimant)
		mock.ExpectCommit()

		action, err := repo.Upsert(context.Background(),
			integration.EntityKindProduct, localID,
			integration.SystemCodeShopify, integration.ResourceKindProduct,
			"gid://shopify/Product/42")
		require.NoError(t, err)
		assert.Equal(t, integration.UpsertSkipConflict, action)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormExternalIDRepository_Deactivate(t *testing.T) {
	t.Run("deactivates the active mapping", func(t *testing.T) {
		repo, mock, mockDB := newMockExternalIDRepository(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE "external_id_mappings" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Deactivate(context.Background(), integration.ExternalIDKey{
			EntityKind:   integration.EntityKindProduct,
			LocalID:      uuid.New(),
			SystemCode:   integration.SystemCodeShopify,
			ResourceKind: integration.ResourceKindProduct,
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports missing mapping", func(t *testing.T) {
		repo, mock, mockDB := newMockExternalIDRepository(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE "external_id_mappings" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Deactivate(context.Background(), integration.ExternalIDKey{
			EntityKind:   integration.EntityKindProduct,
			LocalID:      uuid.New(),
			SystemCode:   integration.SystemCodeShopify,
			ResourceKind: integration.ResourceKindProduct,
		})
		assert.ErrorIs(t, err, integration.ErrMappingNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
