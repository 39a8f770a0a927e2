package domain

import "errors"

// Prescription is a dated prescription issued to a patient
type Prescription struct {
	ID        *int64  `json:"id"`
	PatientID int64   `json:"patient_id"`
	Date      string  `json:"date"`
	Notes     *string `json:"notes,omitempty"`
}

// Normalize upper-cases the notes when present
func (p *Prescription) Normalize() {
	p.Notes = normalizeOptional(p.Notes)
}

// Validate checks required fields
func (p *Prescription) Validate() error {
	if p.PatientID <= 0 {
		return errors.New("prescription patient_id is required")
	}
	if p.Date == "" {
		return errors.New("prescription date is required")
	}
	return nil
}

// PrescriptionMedicine is one medicine line of a prescription
type PrescriptionMedicine struct {
	ID             *int64 `json:"id"`
	PrescriptionID int64  `json:"prescription_id"`
	MedicineID     int64  `json:"medicine_id"`
	Instructions   string `json:"instructions"`
}

// Normalize upper-cases the dosing instructions
func (pm *PrescriptionMedicine) Normalize() {
	pm.Instructions = normalizeText(pm.Instructions)
}

// Validate checks required fields
func (pm *PrescriptionMedicine) Validate() error {
	if pm.PrescriptionID <= 0 {
		return errors.New("line item prescription_id is required")
	}
	if pm.MedicineID <= 0 {
		return errors.New("line item medicine_id is required")
	}
	return nil
}

// PrescriptionMedicineDetail is a line item enriched with the attributes of
// the medicine it references
type PrescriptionMedicineDetail struct {
	ID             *int64 `json:"id"`
	PrescriptionID int64  `json:"prescription_id"`
	MedicineID     int64  `json:"medicine_id"`
	Instructions   string `json:"instructions"`
	Name           string `json:"name"`
	Dosage         string `json:"dosage"`
	Form           string `json:"form"`
	Controlled     int    `json:"controlled"`
}

// PrescriptionWithMedicines is a prescription header with its line items
type PrescriptionWithMedicines struct {
	Prescription Prescription                 `json:"prescription"`
	Medicines    []PrescriptionMedicineDetail `json:"medicines"`
}

// HasControlled reports whether any line item is a controlled medicine.
// Controlled items need the special prescription form when printed.
func (p *PrescriptionWithMedicines) HasControlled() bool {
	for _, m := range p.Medicines {
		if m.Controlled != 0 {
			return true
		}
	}
	return false
}
