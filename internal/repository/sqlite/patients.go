package sqlite

import (
	"context"

	"sismed/internal/domain"
)

// ListPatients returns all patients ordered by name
func (r *Repository) ListPatients(ctx context.Context) ([]domain.Patient, error) {
	const op = "list patients"
	unlock, err := r.acquire(op)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, national_id, birth_date
		FROM patients
		ORDER BY name, id
	`)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	patients := []domain.Patient{}
	for rows.Next() {
		var (
			id int64
			p  domain.Patient
		)
		if err := rows.Scan(&id, &p.Name, &p.NationalID, &p.BirthDate); err != nil {
			return nil, classify(op, err)
		}
		p.ID = &id
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}

	return patients, nil
}

// CreatePatient inserts a patient and returns its new id. Name and national
// id are stored upper-cased; the national id must be unique.
func (r *Repository) CreatePatient(ctx context.Context, p *domain.Patient) (int64, error) {
	const op = "create patient"
	unlock, err := r.acquire(op)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n := *p
	n.Normalize()

	return r.execInsert(ctx, op, `
		INSERT INTO patients (name, national_id, birth_date)
		VALUES (?, ?, ?)
	`, n.Name, n.NationalID, n.BirthDate)
}

// UpdatePatient overwrites every field of patient id
func (r *Repository) UpdatePatient(ctx context.Context, id int64, p *domain.Patient) (int64, error) {
	const op = "update patient"
	unlock, err := r.acquire(op)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n := *p
	n.Normalize()

	return r.execAffected(ctx, op, `
		UPDATE patients SET name = ?, national_id = ?, birth_date = ?
		WHERE id = ?
	`, n.Name, n.NationalID, n.BirthDate, id)
}

// DeletePatient removes a patient together with its prescriptions
func (r *Repository) DeletePatient(ctx context.Context, id int64) (int64, error) {
	const op = "delete patient"
	unlock, err := r.acquire(op)
	if err != nil {
		return 0, err
	}
	defer unlock()

	return r.execAffected(ctx, op, "DELETE FROM patients WHERE id = ?", id)
}
