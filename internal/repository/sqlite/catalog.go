package sqlite

import (
	"context"
	"database/sql"
	"slices"

	"sismed/internal/domain"
)

// ============================================================================
// Medicines
// ============================================================================

// ListMedicines returns the whole medicine catalog ordered by name
func (r *Repository) ListMedicines(ctx context.Context) ([]domain.Medicine, error) {
	const op = "list medicines"
	unlock, err := r.acquire(op)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return listMedicines(ctx, r.db, op)
}

func listMedicines(ctx context.Context, q querier, op string) ([]domain.Medicine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, dosage, form, controlled
		FROM medicines
		ORDER BY name, dosage, id
	`)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	medicines := []domain.Medicine{}
	for rows.Next() {
		var (
			id           int64
			m            domain.Medicine
			dosage, form sql.NullString
		)
		if err := rows.Scan(&id, &m.Name, &dosage, &form, &m.Controlled); err != nil {
			return nil, classify(op, err)
		}
		m.ID = &id
		m.Dosage = nullToString(dosage)
		m.Form = nullToString(form)
		medicines = append(medicines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}

	return medicines, nil
}

// CreateMedicine inserts a catalog entry and returns its new id
func (r *Repository) CreateMedicine(ctx context.Context, m *domain.Medicine) (int64, error) {
	const op = "create medicine"
	unlock, err := r.acquire(op)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n := *m
	n.Normalize()

	return r.execInsert(ctx, op, `
		INSERT INTO medicines (name, dosage, form, controlled)
		VALUES (?, ?, ?, ?)
	`, n.Name, n.Dosage, n.Form, n.Controlled)
}

// UpdateMedicine overwrites every field of medicine id
func (r *Repository) UpdateMedicine(ctx context.Context, id int64, m *domain.Medicine) (int64, error) {
	const op = "update medicine"
	unlock, err := r.acquire(op)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n := *m
	n.Normalize()

	return r.execAffected(ctx, op, `
		UPDATE medicines SET name = ?, dosage = ?, form = ?, controlled = ?
		WHERE id = ?
	`, n.Name, n.Dosage, n.Form, n.Controlled, id)
}

// DeleteMedicine removes a catalog entry. It fails with a constraint error
// while any prescription line still references it.
func (r *Repository) DeleteMedicine(ctx context.Context, id int64) (int64, error) {
	const op = "delete medicine"
	unlock, err := r.acquire(op)
	if err != nil {
		return 0, err
	}
	defer unlock()

	return r.execAffected(ctx, op, "DELETE FROM medicines WHERE id = ?", id)
}

// ============================================================================
// Posologies
// ============================================================================

// ListPosologies returns all standard posologies ordered by text
func (r *Repository) ListPosologies(ctx context.Context) ([]domain.Posology, error) {
	const op = "list posologies"
	unlock, err := r.acquire(op)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return listPosologies(ctx, r.db, op)
}

func listPosologies(ctx context.Context, q querier, op string) ([]domain.Posology, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, text FROM posologies ORDER BY text")
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	posologies := []domain.Posology{}
	for rows.Next() {
		var (
			id int64
			p  domain.Posology
		)
		if err := rows.Scan(&id, &p.Text); err != nil {
			return nil, classify(op, err)
		}
		p.ID = &id
		posologies = append(posologies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}

	return posologies, nil
}

// CreatePosology inserts a posology; the text must be unique
func (r *Repository) CreatePosology(ctx context.Context, p *domain.Posology) (int64, error) {
	const op = "create posology"
	unlock, err := r.acquire(op)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n := *p
	n.Normalize()

	return r.execInsert(ctx, op, "INSERT INTO posologies (text) VALUES (?)", n.Text)
}

// UpdatePosology replaces the text of posology id
func (r *Repository) UpdatePosology(ctx context.Context, id int64, p *domain.Posology) (int64, error) {
	const op = "update posology"
	unlock, err := r.acquire(op)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n := *p
	n.Normalize()

	return r.execAffected(ctx, op, "UPDATE posologies SET text = ? WHERE id = ?", n.Text, id)
}

// DeletePosology removes a posology
func (r *Repository) DeletePosology(ctx context.Context, id int64) (int64, error) {
	const op = "delete posology"
	unlock, err := r.acquire(op)
	if err != nil {
		return 0, err
	}
	defer unlock()

	return r.execAffected(ctx, op, "DELETE FROM posologies WHERE id = ?", id)
}

// ============================================================================
// Catalog Import
// ============================================================================

// ImportCatalog inserts every medicine and posology of c that is not already
// present, in one transaction. Existing entries are left untouched.
func (r *Repository) ImportCatalog(ctx context.Context, c *domain.Catalog) (domain.SeedResult, error) {
	const op = "import catalog"
	unlock, err := r.acquire(op)
	if err != nil {
		return domain.SeedResult{}, err
	}
	defer unlock()

	return r.insertCatalogLocked(ctx, op, c)
}

func (r *Repository) insertCatalogLocked(ctx context.Context, op string, c *domain.Catalog) (domain.SeedResult, error) {
	var result domain.SeedResult

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return result, classify(op, err)
	}
	defer tx.Rollback()

	// normalize a copy; the caller's catalog is left as given
	norm := domain.Catalog{
		Medicines:  slices.Clone(c.Medicines),
		Posologies: slices.Clone(c.Posologies),
	}
	norm.Normalize()

	for _, m := range norm.Medicines {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO medicines (name, dosage, form, controlled)
			VALUES (?, ?, ?, ?)
		`, m.Name, m.Dosage, m.Form, m.Controlled)
		if err != nil {
			return domain.SeedResult{}, classify(op, err)
		}
		inserted, err := affectedRows(op, res)
		if err != nil {
			return domain.SeedResult{}, err
		}
		result.MedicinesInserted += int(inserted)
	}

	for _, p := range norm.Posologies {
		res, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO posologies (text) VALUES (?)", p.Text)
		if err != nil {
			return domain.SeedResult{}, classify(op, err)
		}
		inserted, err := affectedRows(op, res)
		if err != nil {
			return domain.SeedResult{}, err
		}
		result.PosologiesInserted += int(inserted)
	}

	if err := tx.Commit(); err != nil {
		return domain.SeedResult{}, classify(op, err)
	}
	return result, nil
}

// ExportCatalog returns the current medicines and posologies
func (r *Repository) ExportCatalog(ctx context.Context) (*domain.Catalog, error) {
	const op = "export catalog"
	unlock, err := r.acquire(op)
	if err != nil {
		return nil, err
	}
	defer unlock()

	medicines, err := listMedicines(ctx, r.db, op)
	if err != nil {
		return nil, err
	}
	posologies, err := listPosologies(ctx, r.db, op)
	if err != nil {
		return nil, err
	}
	return &domain.Catalog{Medicines: medicines, Posologies: posologies}, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
