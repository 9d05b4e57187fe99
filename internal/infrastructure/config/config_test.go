package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Save original env vars and restore after tests
	originalEnv := map[string]string{
		"STORESYNC_APP_NAME":                os.Getenv("STORESYNC_APP_NAME"),
		"STORESYNC_APP_ENV":                 os.Getenv("STORESYNC_APP_ENV"),
		"STORESYNC_APP_PORT":                os.Getenv("STORESYNC_APP_PORT"),
		"STORESYNC_DATABASE_HOST":           os.Getenv("STORESYNC_DATABASE_HOST"),
		"STORESYNC_DATABASE_PORT":           os.Getenv("STORESYNC_DATABASE_PORT"),
		"STORESYNC_DATABASE_USER":           os.Getenv("STORESYNC_DATABASE_USER"),
		"STORESYNC_DATABASE_PASSWORD":       os.Getenv("STORESYNC_DATABASE_PASSWORD"),
		"STORESYNC_DATABASE_DBNAME":         os.Getenv("STORESYNC_DATABASE_DBNAME"),
		"STORESYNC_DATABASE_SSLMODE":        os.Getenv("STORESYNC_DATABASE_SSLMODE"),
		"STORESYNC_DATABASE_MAX_OPEN_CONNS": os.Getenv("STORESYNC_DATABASE_MAX_OPEN_CONNS"),
		"STORESYNC_DATABASE_MAX_IDLE_CONNS": os.Getenv("STORESYNC_DATABASE_MAX_IDLE_CONNS"),
		"STORESYNC_SHOPIFY_SHOP_DOMAIN":     os.Getenv("STORESYNC_SHOPIFY_SHOP_DOMAIN"),
		"STORESYNC_SHOPIFY_ACCESS_TOKEN":    os.Getenv("STORESYNC_SHOPIFY_ACCESS_TOKEN"),
		"STORESYNC_SHOPIFY_WEBHOOK_SECRET":  os.Getenv("STORESYNC_SHOPIFY_WEBHOOK_SECRET"),
		"STORESYNC_SYNC_PAGE_SIZE":          os.Getenv("STORESYNC_SYNC_PAGE_SIZE"),
		"STORESYNC_SYNC_COMMIT_SIZE":        os.Getenv("STORESYNC_SYNC_COMMIT_SIZE"),
		"STORESYNC_JWT_SECRET":              os.Getenv("STORESYNC_JWT_SECRET"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "storesync-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "storesync", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, "2025-07", cfg.Shopify.APIVersion)
		assert.Equal(t, 100, cfg.Sync.CommitSize)
		assert.Equal(t, 50, cfg.Sync.PageSize)
		assert.Equal(t, 3, cfg.Sync.MaxRetries)
		assert.Equal(t, 5*time.Minute, cfg.Sync.LookbackSkew)
		assert.Equal(t, 10*time.Minute, cfg.Sync.IdleThreshold)
	})

	t.Run("loads values from environment variables with STORESYNC prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("STORESYNC_APP_NAME", "test-app")
		os.Setenv("STORESYNC_APP_ENV", "testing")
		os.Setenv("STORESYNC_APP_PORT", "9000")
		os.Setenv("STORESYNC_DATABASE_HOST", "testdb.local")
		os.Setenv("STORESYNC_DATABASE_PORT", "5433")
		os.Setenv("STORESYNC_SHOPIFY_SHOP_DOMAIN", "test-shop.myshopify.com")
		os.Setenv("STORESYNC_SHOPIFY_ACCESS_TOKEN", "shpat_test")
		os.Setenv("STORESYNC_SYNC_PAGE_SIZE", "100")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "testing", cfg.App.Env)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "test-shop.myshopify.com", cfg.Shopify.ShopDomain)
		assert.Equal(t, "shpat_test", cfg.Shopify.AccessToken)
		assert.Equal(t, 100, cfg.Sync.PageSize)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv()
		os.Setenv("STORESYNC_DATABASE_MAX_OPEN_CONNS", "10")
		os.Setenv("STORESYNC_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("validates page size upper bound", func(t *testing.T) {
		clearEnv()
		os.Setenv("STORESYNC_SYNC_PAGE_SIZE", "500")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "page_size")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	originalEnv := map[string]string{
		"STORESYNC_APP_ENV":                os.Getenv("STORESYNC_APP_ENV"),
		"STORESYNC_JWT_SECRET":             os.Getenv("STORESYNC_JWT_SECRET"),
		"STORESYNC_DATABASE_PASSWORD":      os.Getenv("STORESYNC_DATABASE_PASSWORD"),
		"STORESYNC_DATABASE_SSLMODE":       os.Getenv("STORESYNC_DATABASE_SSLMODE"),
		"STORESYNC_SHOPIFY_SHOP_DOMAIN":    os.Getenv("STORESYNC_SHOPIFY_SHOP_DOMAIN"),
		"STORESYNC_SHOPIFY_ACCESS_TOKEN":   os.Getenv("STORESYNC_SHOPIFY_ACCESS_TOKEN"),
		"STORESYNC_SHOPIFY_WEBHOOK_SECRET": os.Getenv("STORESYNC_SHOPIFY_WEBHOOK_SECRET"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	setValidProductionBase := func() {
		os.Setenv("STORESYNC_APP_ENV", "production")
		os.Setenv("STORESYNC_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		os.Setenv("STORESYNC_DATABASE_PASSWORD", "secure-password")
		os.Setenv("STORESYNC_DATABASE_SSLMODE", "require")
		os.Setenv("STORESYNC_SHOPIFY_SHOP_DOMAIN", "prod-shop.myshopify.com")
		os.Setenv("STORESYNC_SHOPIFY_ACCESS_TOKEN", "shpat_prod")
		os.Setenv("STORESYNC_SHOPIFY_WEBHOOK_SECRET", "whsec_prod")
	}

	t.Run("requires jwt.secret in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Unsetenv("STORESYNC_JWT_SECRET")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret is required in production")
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Unsetenv("STORESYNC_DATABASE_PASSWORD")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("STORESYNC_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("requires shopify credentials in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Unsetenv("STORESYNC_SHOPIFY_ACCESS_TOKEN")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "shopify.access_token is required in production")
	})

	t.Run("requires webhook secret in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Unsetenv("STORESYNC_SHOPIFY_WEBHOOK_SECRET")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "shopify.webhook_secret is required in production")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost")
		assert.Contains(t, dsn, "5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "pass%40word%23123")
	})
}

func TestShopifyConfig_Endpoint(t *testing.T) {
	cfg := ShopifyConfig{ShopDomain: "my-store.myshopify.com", APIVersion: "2025-07"}
	assert.Equal(t, "https://my-store.myshopify.com/admin/api/2025-07/graphql.json", cfg.Endpoint())
}
