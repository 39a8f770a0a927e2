package codec

import (
	"fmt"
	"io"
	"strings"

	"sismed/internal/domain"
)

// Importer interface for importing a catalog from various formats
type Importer interface {
	Parse(r io.Reader) (*domain.Catalog, error)
	Format() string
}

// Exporter interface for exporting a catalog to various formats
type Exporter interface {
	Export(catalog *domain.Catalog, w io.Writer) error
	Format() string
}

// Codec both imports and exports
type Codec interface {
	Importer
	Exporter
}

// ForFormat returns the codec registered for a format name ("yaml", "yml", "json")
func ForFormat(format string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "yaml", "yml":
		return NewYAMLCodec(), nil
	case "json":
		return NewJSONCodec(), nil
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
}
