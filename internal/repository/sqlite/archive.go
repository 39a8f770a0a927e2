package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"sismed/internal/domain"

	"github.com/natefinch/atomic"
)

var errMemoryStore = errors.New("in-memory store has no file")

// Snapshot copies the raw store file into w. The lock is held for the whole
// copy so no write can land half way through.
func (r *Repository) Snapshot(ctx context.Context, w io.Writer) (int64, error) {
	const op = "snapshot store"
	unlock, err := r.acquire(op)
	if err != nil {
		return 0, err
	}
	defer unlock()

	if r.path == MemoryPath {
		return 0, domain.E(domain.KindIOFailure, op, errMemoryStore)
	}
	if err := ctx.Err(); err != nil {
		return 0, domain.E(domain.KindInternal, op, err)
	}

	f, err := os.Open(r.path)
	if err != nil {
		return 0, domain.E(domain.KindIOFailure, op, err)
	}
	defer f.Close()

	n, err := io.Copy(w, f)
	if err != nil {
		return n, domain.E(domain.KindIOFailure, op, err)
	}
	return n, nil
}

// Replace swaps the store file for the content of src and reopens it. src
// is staged in a temp file beside the store and must open, migrate and pass
// an integrity check before the live file is touched. A rejected src leaves
// the store as it was. The reopened store is seeded like a fresh one.
func (r *Repository) Replace(ctx context.Context, src io.Reader) error {
	const op = "replace store"
	unlock, err := r.acquire(op)
	if err != nil {
		return err
	}
	defer unlock()

	if r.path == MemoryPath {
		return domain.E(domain.KindIOFailure, op, errMemoryStore)
	}

	staged, err := r.stage(ctx, src)
	if err != nil {
		return domain.E(domain.KindIOFailure, op, err)
	}
	defer os.Remove(staged)

	if err := r.closeLocked(); err != nil {
		if rerr := r.openLocked(); rerr != nil {
			return domain.E(domain.KindIOFailure, op, errors.Join(err, rerr))
		}
		return domain.E(domain.KindIOFailure, op, fmt.Errorf("close store: %w", err))
	}

	swapErr := atomic.ReplaceFile(staged, r.path)
	if swapErr == nil {
		// a stale hot journal would be rolled back into the new file
		if err := os.Remove(r.path + "-journal"); err != nil && !os.IsNotExist(err) {
			swapErr = err
		}
	}

	// a failed swap leaves the original file, so reopen either way
	if err := r.openLocked(); err != nil {
		if swapErr != nil {
			return domain.E(domain.KindIOFailure, op, errors.Join(swapErr, err))
		}
		return domain.E(domain.KindIOFailure, op, err)
	}
	if swapErr != nil {
		return domain.E(domain.KindIOFailure, op, swapErr)
	}

	if _, err := r.seedLocked(ctx); err != nil {
		return err
	}
	return nil
}

// stage copies src to a temp file next to the store and verifies it. It
// returns the temp file path; the caller removes it.
func (r *Repository) stage(ctx context.Context, src io.Reader) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(r.path), "."+filepath.Base(r.path)+".restore-*")
	if err != nil {
		return "", err
	}
	name := f.Name()

	_, err = io.Copy(f, src)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = checkStoreFile(ctx, name)
	}
	if err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// checkStoreFile opens path as a store and runs a quick integrity check
func checkStoreFile(ctx context.Context, path string) error {
	db, err := openDB(path)
	if err != nil {
		return fmt.Errorf("invalid store file: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("invalid store file: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("invalid store file: integrity check: %s", result)
	}
	return nil
}
