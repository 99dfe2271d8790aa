// Package store persists registry entries and their ownership history.
//
// Stores are pure I/O: they enforce uniqueness (pet code, origin refs,
// idempotency keys) and return pkg/platform/sentinel errors; all business
// rules live in the service.
package store
