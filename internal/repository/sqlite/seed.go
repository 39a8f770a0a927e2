package sqlite

import (
	"bytes"
	"context"
	_ "embed"

	"sismed/internal/codec"
	"sismed/internal/domain"
)

//go:embed seed.yaml
var seedCatalog []byte

// SeedCatalog returns the embedded reference catalog
func SeedCatalog() (*domain.Catalog, error) {
	c, err := codec.NewYAMLCodec().Parse(bytes.NewReader(seedCatalog))
	if err != nil {
		return nil, domain.E(domain.KindInternal, "load seed catalog", err)
	}
	return c, nil
}

// Seed loads the reference catalog when the medicine table is empty.
// A store that already has medicines is left alone, so removed entries
// are not brought back.
func (r *Repository) Seed(ctx context.Context) (domain.SeedResult, error) {
	const op = "seed catalog"
	unlock, err := r.acquire(op)
	if err != nil {
		return domain.SeedResult{}, err
	}
	defer unlock()

	return r.seedLocked(ctx)
}

func (r *Repository) seedLocked(ctx context.Context) (domain.SeedResult, error) {
	const op = "seed catalog"

	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM medicines").Scan(&count); err != nil {
		return domain.SeedResult{}, classify(op, err)
	}
	if count > 0 {
		return domain.SeedResult{Skipped: true}, nil
	}

	c, err := SeedCatalog()
	if err != nil {
		return domain.SeedResult{}, err
	}
	return r.insertCatalogLocked(ctx, op, c)
}
