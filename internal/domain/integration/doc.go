// Package integration holds the domain model shared by every part of the
// storefront sync engine: the external-identity map that translates between
// local entity ids and opaque platform ids, the sync error taxonomy, the
// immutable remote snapshots decoded from platform responses, and the
// StorefrontPlatform port implemented by the infrastructure layer.
package integration
