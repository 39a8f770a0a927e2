// Package service implements business logic for the SISMED application.
//
// This package provides service layers that coordinate between the command
// facade and the repository layer, implementing validation, event
// publishing and file handling.
//
// # Services
//
// RecordsService manages patients, the medicine catalog, posologies and
// prescriptions. Input is validated before it reaches the store; the store
// itself applies upper-case normalization.
//
// DocumentService writes rendered prescription PDFs to a user-chosen path.
//
// BackupService copies the whole store to a local file or an S3 bucket and
// restores it back, optionally sealing the copy with a passphrase.
//
// CatalogService imports and exports the medicine and posology catalog as
// YAML or JSON.
//
// # Event System
//
// Successful writes are published via EventBus for real-time updates to
// connected clients via Server-Sent Events (SSE).
package service
