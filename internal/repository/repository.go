package repository

import (
	"context"
	"io"

	"sismed/internal/domain"
)

// PatientStore defines data access for patients
type PatientStore interface {
	ListPatients(ctx context.Context) ([]domain.Patient, error)
	CreatePatient(ctx context.Context, p *domain.Patient) (int64, error)
	UpdatePatient(ctx context.Context, id int64, p *domain.Patient) (int64, error)
	DeletePatient(ctx context.Context, id int64) (int64, error)
}

// CatalogStore defines data access for medicines and posologies
type CatalogStore interface {
	ListMedicines(ctx context.Context) ([]domain.Medicine, error)
	CreateMedicine(ctx context.Context, m *domain.Medicine) (int64, error)
	UpdateMedicine(ctx context.Context, id int64, m *domain.Medicine) (int64, error)
	DeleteMedicine(ctx context.Context, id int64) (int64, error)

	ListPosologies(ctx context.Context) ([]domain.Posology, error)
	CreatePosology(ctx context.Context, p *domain.Posology) (int64, error)
	UpdatePosology(ctx context.Context, id int64, p *domain.Posology) (int64, error)
	DeletePosology(ctx context.Context, id int64) (int64, error)

	// Seed loads the embedded reference catalog once
	Seed(ctx context.Context) (domain.SeedResult, error)
	// ImportCatalog inserts every absent entry of c
	ImportCatalog(ctx context.Context, c *domain.Catalog) (domain.SeedResult, error)
	// ExportCatalog returns the current medicines and posologies
	ExportCatalog(ctx context.Context) (*domain.Catalog, error)
}

// PrescriptionStore defines data access for prescriptions and line items.
// Prescriptions and line items are create/read only.
type PrescriptionStore interface {
	ListPrescriptionsByPatient(ctx context.Context, patientID int64) ([]domain.Prescription, error)
	CreatePrescription(ctx context.Context, p *domain.Prescription) (int64, error)
	AddMedicineToPrescription(ctx context.Context, pm *domain.PrescriptionMedicine) (int64, error)
	GetPrescriptionMedicines(ctx context.Context, prescriptionID int64) ([]domain.PrescriptionMedicineDetail, error)
	GetPrescriptionWithMedicines(ctx context.Context, prescriptionID int64) (*domain.PrescriptionWithMedicines, error)
}

// Archiver copies the whole store out and back in
type Archiver interface {
	// Snapshot writes a raw copy of the store file to w
	Snapshot(ctx context.Context, w io.Writer) (int64, error)
	// Replace swaps the store file for the content of r and reopens it
	Replace(ctx context.Context, r io.Reader) error
}

// Repository defines the interface for clinical records data access
type Repository interface {
	PatientStore
	CatalogStore
	PrescriptionStore
	Archiver

	// Counts returns the number of rows per table
	Counts(ctx context.Context) (domain.Counts, error)

	// Close releases resources
	Close() error
}
