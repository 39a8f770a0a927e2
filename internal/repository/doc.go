// Package repository defines the data access interfaces for SISMED.
//
// This package provides the repository abstraction layer for persisting
// and retrieving clinical records. The actual implementation is in the
// sqlite subpackage.
//
// # Repository Interface
//
// Repository groups PatientStore, CatalogStore, PrescriptionStore and
// Archiver. Create operations return the identifier assigned by the store.
// Update and delete operations return the number of affected rows and are a
// silent no-op when the identifier does not exist. The only read that
// reports absence as an error is GetPrescriptionWithMedicines.
//
// # SQLite Implementation
//
// The sqlite implementation keeps a single connection to one local file,
// guarded by one exclusive lock held for the full duration of every
// operation. It handles:
//
// - Schema creation on open (idempotent)
// - One-time seeding of the medicine catalog and standard posologies
// - Upper-case normalization of clinical text before every write
// - Foreign key constraints and cascade deletes
// - Raw file snapshots and replacement for backup and restore
//
// # Testing
//
// The sqlite repository is tested with in-memory databases and temporary
// files.
package repository
