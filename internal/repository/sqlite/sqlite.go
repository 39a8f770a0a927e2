package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"sismed/internal/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// MemoryPath opens a private in-memory store. Snapshot and Replace are not
// available on it.
const MemoryPath = ":memory:"

// Repository implements repository.Repository using SQLite.
//
// Every public method takes mu for its full duration, so operations never
// interleave. Unexported *Locked methods expect mu to be held already.
type Repository struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// New opens (creating if absent) the store at dbPath and ensures the schema.
// The parent directory is created when missing. Seeding is a separate step.
func New(dbPath string) (*Repository, error) {
	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, domain.E(domain.KindStorageUnavailable, "open store", err)
		}
	}

	repo := &Repository{path: dbPath}
	if err := repo.openLocked(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Open opens the store at dbPath and seeds the reference catalog
func Open(ctx context.Context, dbPath string) (*Repository, error) {
	repo, err := New(dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := repo.Seed(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

func (r *Repository) openLocked() error {
	db, err := openDB(r.path)
	if err != nil {
		return domain.E(domain.KindStorageUnavailable, "open store", fmt.Errorf("%s: %w", r.path, err))
	}
	r.db = db
	return nil
}

// openDB opens the file at path, checks that it answers and ensures the
// schema
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// One connection keeps :memory: coherent and serializes the driver
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// sql.Open is lazy; ping so an unopenable file fails here
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS patients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		national_id TEXT NOT NULL UNIQUE,
		birth_date TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS medicines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		dosage TEXT,
		form TEXT,
		controlled INTEGER NOT NULL DEFAULT 0,
		UNIQUE (name, dosage, form)
	);

	CREATE TABLE IF NOT EXISTS posologies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS prescriptions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id INTEGER NOT NULL,
		date TEXT NOT NULL,
		notes TEXT,
		FOREIGN KEY (patient_id) REFERENCES patients(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS prescription_medicines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		prescription_id INTEGER NOT NULL,
		medicine_id INTEGER NOT NULL,
		instructions TEXT,
		FOREIGN KEY (prescription_id) REFERENCES prescriptions(id) ON DELETE CASCADE,
		FOREIGN KEY (medicine_id) REFERENCES medicines(id)
	);

	CREATE INDEX IF NOT EXISTS idx_prescriptions_patient ON prescriptions(patient_id);
	CREATE INDEX IF NOT EXISTS idx_prescription_medicines_prescription ON prescription_medicines(prescription_id);
	`

	_, err := db.Exec(schema)
	return err
}

// Path returns the store location
func (r *Repository) Path() string {
	return r.path
}

// Counts returns the number of rows per table
func (r *Repository) Counts(ctx context.Context) (domain.Counts, error) {
	unlock, err := r.acquire("count rows")
	if err != nil {
		return domain.Counts{}, err
	}
	defer unlock()

	var c domain.Counts
	targets := []struct {
		table string
		dst   *int64
	}{
		{"patients", &c.Patients},
		{"medicines", &c.Medicines},
		{"posologies", &c.Posologies},
		{"prescriptions", &c.Prescriptions},
		{"prescription_medicines", &c.PrescriptionMedicines},
	}
	for _, t := range targets {
		if err := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", t.table)).Scan(t.dst); err != nil {
			return domain.Counts{}, classify("count "+t.table, err)
		}
	}
	return c, nil
}

// acquire takes the store lock. It fails when the store is closed, which
// also happens after a restore whose reopen failed.
func (r *Repository) acquire(op string) (func(), error) {
	r.mu.Lock()
	if r.db == nil {
		r.mu.Unlock()
		return nil, domain.Errorf(domain.KindStorageUnavailable, op, "store is closed")
	}
	return r.mu.Unlock, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *Repository) closeLocked() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}
