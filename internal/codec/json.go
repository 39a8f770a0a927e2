package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"sismed/internal/domain"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse imports a catalog from JSON
func (c *JSONCodec) Parse(r io.Reader) (*domain.Catalog, error) {
	var catalog domain.Catalog
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&catalog); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	// ids are assigned by the store
	for i := range catalog.Medicines {
		catalog.Medicines[i].ID = nil
	}
	for i := range catalog.Posologies {
		catalog.Posologies[i].ID = nil
	}

	return &catalog, nil
}

// Export exports a catalog to JSON
func (c *JSONCodec) Export(catalog *domain.Catalog, w io.Writer) error {
	out := *catalog
	if out.Medicines == nil {
		out.Medicines = []domain.Medicine{}
	}
	if out.Posologies == nil {
		out.Posologies = []domain.Posology{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
