// Package domain defines the core types for the SISMED clinical records manager.
//
// This package contains the entities persisted by the store and the read
// models built from them: patients, the medicine catalog, standard posology
// texts and prescriptions with their medicine line items.
//
// # Core Types
//
// Patient is a person identified by a unique national id.
//
// Medicine is a catalog entry, unique on (name, dosage, form). Controlled
// medicines carry Controlled = 1.
//
// Posology is a standard dosing text offered when prescribing.
//
// Prescription links a patient to a date and optional notes. Its line items
// are PrescriptionMedicine rows; PrescriptionMedicineDetail is a line item
// enriched with the referenced medicine's attributes.
//
// # Normalization
//
// Clinical identifiers and free text (names, national ids, dosages, forms,
// instructions, notes) are stored upper-cased. Every writable entity has a
// Normalize method and all of them go through normalizeText, so create and
// update paths cannot drift apart.
//
// # Errors
//
// Error carries a Kind (StorageUnavailable, Constraint, NotFound, IOFailure,
// Cancelled, Invalid, Internal). Lower layers return *Error values; only the
// command facade collapses them to plain strings.
package domain
