// Package store persists protocol events and round outcomes with GORM.
//
// Persistence is optional: Open returns a nil *gorm.DB when no database is
// configured, and the rest of the protocol runs in memory.
package store
