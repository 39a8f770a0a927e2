package domain

// Catalog is the reference data set: medicines and standard posologies.
// It is the shape of the embedded seed and of catalog import/export.
type Catalog struct {
	Medicines  []Medicine `json:"medicines"`
	Posologies []Posology `json:"posologies"`
}

// Normalize normalizes every entry in place
func (c *Catalog) Normalize() {
	for i := range c.Medicines {
		c.Medicines[i].Normalize()
	}
	for i := range c.Posologies {
		c.Posologies[i].Normalize()
	}
}

// SeedResult reports what a seed or catalog import inserted
type SeedResult struct {
	Skipped            bool `json:"skipped"`
	MedicinesInserted  int  `json:"medicines_inserted"`
	PosologiesInserted int  `json:"posologies_inserted"`
}

// Counts holds the number of rows per table
type Counts struct {
	Patients              int64 `json:"patients"`
	Medicines             int64 `json:"medicines"`
	Posologies            int64 `json:"posologies"`
	Prescriptions         int64 `json:"prescriptions"`
	PrescriptionMedicines int64 `json:"prescription_medicines"`
}
