// Package shopify implements the storefront platform port against the
// Shopify Admin GraphQL API.
package shopify

import (
	"errors"
	"fmt"
	"time"

	"github.com/storesync/backend/internal/infrastructure/config"
)

// Errors for Shopify configuration
var (
	ErrConfigMissingShopDomain  = errors.New("shopify: shop domain is required")
	ErrConfigMissingAccessToken = errors.New("shopify: access token is required")
	ErrConfigMissingAPIVersion  = errors.New("shopify: api version is required")
)

// Config holds connection and throttling settings for one shop. One Config
// backs one Client; there is no per-request credential switching.
type Config struct {
	// ShopDomain is the myshopify.com domain of the shop
	ShopDomain string
	// AccessToken is the Admin API access token
	AccessToken string
	// APIVersion is the Admin API version, e.g. "2025-07"
	APIVersion string
	// Endpoint overrides the GraphQL URL derived from ShopDomain and
	// APIVersion; used by tests
	Endpoint string
	// IsSandbox marks a development shop. Irreversible side effects such as
	// publishing are refused on non-sandbox shops.
	IsSandbox bool
	// Timeout is the per-request HTTP timeout
	Timeout time.Duration

	// MaxRetries bounds retry attempts for throttled and 5xx responses
	MaxRetries int
	// RetryBase is the base of the exponential retry backoff
	RetryBase time.Duration
	// ThrottleFloor is the minimum pacing pause once the cost budget runs low
	ThrottleFloor time.Duration
	// ThrottleCeiling caps any single pause, pacing or backoff
	ThrottleCeiling time.Duration
	// RequestBudgetMin is the available-cost threshold below which the
	// client paces itself after a successful response
	RequestBudgetMin float64
}

// NewConfig builds a Config from the application configuration.
func NewConfig(shop config.ShopifyConfig, sync config.SyncConfig) *Config {
	return &Config{
		ShopDomain:       shop.ShopDomain,
		AccessToken:      shop.AccessToken,
		APIVersion:       shop.APIVersion,
		IsSandbox:        shop.IsSandbox,
		Timeout:          shop.Timeout,
		MaxRetries:       sync.MaxRetries,
		RetryBase:        sync.ThrottleFloor,
		ThrottleFloor:    sync.ThrottleFloor,
		ThrottleCeiling:  sync.ThrottleCeiling,
		RequestBudgetMin: sync.RequestBudgetMin,
	}
}

// Validate checks required fields and fills defaults.
func (c *Config) Validate() error {
	if c.ShopDomain == "" && c.Endpoint == "" {
		return ErrConfigMissingShopDomain
	}
	if c.AccessToken == "" {
		return ErrConfigMissingAccessToken
	}
	if c.APIVersion == "" && c.Endpoint == "" {
		return ErrConfigMissingAPIVersion
	}
	if c.Endpoint == "" {
		c.Endpoint = fmt.Sprintf("https://%s/admin/api/%s/graphql.json", c.ShopDomain, c.APIVersion)
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.ThrottleFloor <= 0 {
		c.ThrottleFloor = time.Second
	}
	if c.ThrottleCeiling < c.ThrottleFloor {
		c.ThrottleCeiling = 60 * time.Second
	}
	if c.RequestBudgetMin <= 0 {
		c.RequestBudgetMin = 100
	}
	return nil
}
