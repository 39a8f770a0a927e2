package service

import (
	"context"
	"io"

	"sismed/internal/codec"
	"sismed/internal/domain"
	"sismed/internal/repository"

	"github.com/rs/zerolog"
)

// CatalogService imports and exports the medicine and posology catalog
type CatalogService struct {
	repo     repository.CatalogStore
	eventBus *EventBus
	log      zerolog.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repo repository.CatalogStore, eventBus *EventBus, log zerolog.Logger) *CatalogService {
	return &CatalogService{
		repo:     repo,
		eventBus: eventBus,
		log:      log.With().Str("component", "catalog").Logger(),
	}
}

// Export writes the current catalog to w in format (yaml or json)
func (s *CatalogService) Export(ctx context.Context, format string, w io.Writer) error {
	const op = "export catalog"
	c, err := codec.ForFormat(format)
	if err != nil {
		return domain.E(domain.KindInvalid, op, err)
	}

	catalog, err := s.repo.ExportCatalog(ctx)
	if err != nil {
		return err
	}
	if err := c.Export(catalog, w); err != nil {
		return domain.E(domain.KindIOFailure, op, err)
	}
	return nil
}

// Import reads a catalog in format from r and inserts every entry that is
// not already present
func (s *CatalogService) Import(ctx context.Context, format string, r io.Reader) (domain.SeedResult, error) {
	const op = "import catalog"
	c, err := codec.ForFormat(format)
	if err != nil {
		return domain.SeedResult{}, domain.E(domain.KindInvalid, op, err)
	}

	catalog, err := c.Parse(r)
	if err != nil {
		return domain.SeedResult{}, domain.E(domain.KindInvalid, op, err)
	}
	for i := range catalog.Medicines {
		if err := validate(op, &catalog.Medicines[i]); err != nil {
			return domain.SeedResult{}, err
		}
	}
	for i := range catalog.Posologies {
		if err := validate(op, &catalog.Posologies[i]); err != nil {
			return domain.SeedResult{}, err
		}
	}

	result, err := s.repo.ImportCatalog(ctx, catalog)
	if err != nil {
		return domain.SeedResult{}, err
	}

	s.eventBus.Publish(Event{Type: EventCatalogImported, Payload: result})
	s.log.Info().
		Int("medicines", result.MedicinesInserted).
		Int("posologies", result.PosologiesInserted).
		Msg("catalog imported")
	return result, nil
}
