package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"sismed/internal/domain"
)

// ListPrescriptionsByPatient returns a patient's prescriptions, newest first
func (r *Repository) ListPrescriptionsByPatient(ctx context.Context, patientID int64) ([]domain.Prescription, error) {
	const op = "list prescriptions"
	unlock, err := r.acquire(op)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, patient_id, date, notes
		FROM prescriptions
		WHERE patient_id = ?
		ORDER BY date DESC, id DESC
	`, patientID)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	prescriptions := []domain.Prescription{}
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		prescriptions = append(prescriptions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}

	return prescriptions, nil
}

// CreatePrescription inserts a prescription header for an existing patient
func (r *Repository) CreatePrescription(ctx context.Context, p *domain.Prescription) (int64, error) {
	const op = "create prescription"
	unlock, err := r.acquire(op)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n := *p
	n.Normalize()

	return r.execInsert(ctx, op, `
		INSERT INTO prescriptions (patient_id, date, notes)
		VALUES (?, ?, ?)
	`, n.PatientID, n.Date, stringPtrToNull(n.Notes))
}

// AddMedicineToPrescription appends a line item. Both the prescription and
// the medicine must exist.
func (r *Repository) AddMedicineToPrescription(ctx context.Context, pm *domain.PrescriptionMedicine) (int64, error) {
	const op = "add medicine to prescription"
	unlock, err := r.acquire(op)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n := *pm
	n.Normalize()

	return r.execInsert(ctx, op, `
		INSERT INTO prescription_medicines (prescription_id, medicine_id, instructions)
		VALUES (?, ?, ?)
	`, n.PrescriptionID, n.MedicineID, n.Instructions)
}

// GetPrescriptionMedicines returns the line items of a prescription joined
// with their medicine, in insertion order. An unknown prescription yields an
// empty list.
func (r *Repository) GetPrescriptionMedicines(ctx context.Context, prescriptionID int64) ([]domain.PrescriptionMedicineDetail, error) {
	const op = "get prescription medicines"
	unlock, err := r.acquire(op)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return prescriptionMedicines(ctx, r.db, op, prescriptionID)
}

// GetPrescriptionWithMedicines returns a prescription header with its line
// items. It is the only read that fails with NotFound.
func (r *Repository) GetPrescriptionWithMedicines(ctx context.Context, prescriptionID int64) (*domain.PrescriptionWithMedicines, error) {
	const op = "get prescription"
	unlock, err := r.acquire(op)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// header rows are fully consumed before the line query runs: the pool
	// holds a single connection
	row := r.db.QueryRowContext(ctx, `
		SELECT id, patient_id, date, notes
		FROM prescriptions
		WHERE id = ?
	`, prescriptionID)
	header, err := scanPrescription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Errorf(domain.KindNotFound, op, "prescription %d", prescriptionID)
	}
	if err != nil {
		return nil, classify(op, err)
	}

	medicines, err := prescriptionMedicines(ctx, r.db, op, prescriptionID)
	if err != nil {
		return nil, err
	}

	return &domain.PrescriptionWithMedicines{
		Prescription: header,
		Medicines:    medicines,
	}, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrescription(s rowScanner) (domain.Prescription, error) {
	var (
		id    int64
		p     domain.Prescription
		notes sql.NullString
	)
	if err := s.Scan(&id, &p.PatientID, &p.Date, &notes); err != nil {
		return domain.Prescription{}, err
	}
	p.ID = &id
	p.Notes = nullToStringPtr(notes)
	return p, nil
}

func prescriptionMedicines(ctx context.Context, q querier, op string, prescriptionID int64) ([]domain.PrescriptionMedicineDetail, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT pm.id, pm.prescription_id, pm.medicine_id, pm.instructions,
		       m.name, m.dosage, m.form, m.controlled
		FROM prescription_medicines pm
		JOIN medicines m ON m.id = pm.medicine_id
		WHERE pm.prescription_id = ?
		ORDER BY pm.id
	`, prescriptionID)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	items := []domain.PrescriptionMedicineDetail{}
	for rows.Next() {
		var (
			id                         int64
			d                          domain.PrescriptionMedicineDetail
			instructions, dosage, form sql.NullString
		)
		if err := rows.Scan(&id, &d.PrescriptionID, &d.MedicineID, &instructions,
			&d.Name, &dosage, &form, &d.Controlled); err != nil {
			return nil, classify(op, err)
		}
		d.ID = &id
		d.Instructions = nullToString(instructions)
		d.Dosage = nullToString(dosage)
		d.Form = nullToString(form)
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}

	return items, nil
}
