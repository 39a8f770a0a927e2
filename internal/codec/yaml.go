package codec

import (
	"fmt"
	"io"

	"sismed/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles catalog YAML import/export. It is also the format of
// the embedded seed catalog.
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// yamlCatalog represents the YAML structure for catalog data
type yamlCatalog struct {
	Medicines  []yamlMedicine `yaml:"medicines"`
	Posologies []string       `yaml:"posologies"`
}

type yamlMedicine struct {
	Name       string `yaml:"name"`
	Dosage     string `yaml:"dosage,omitempty"`
	Form       string `yaml:"form,omitempty"`
	Controlled bool   `yaml:"controlled,omitempty"`
}

// Parse imports a catalog from YAML
func (c *YAMLCodec) Parse(r io.Reader) (*domain.Catalog, error) {
	var yc yamlCatalog
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&yc); err != nil {
		if err == io.EOF {
			return &domain.Catalog{}, nil
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	catalog := &domain.Catalog{
		Medicines:  make([]domain.Medicine, 0, len(yc.Medicines)),
		Posologies: make([]domain.Posology, 0, len(yc.Posologies)),
	}

	for _, ym := range yc.Medicines {
		m := domain.Medicine{
			Name:   ym.Name,
			Dosage: ym.Dosage,
			Form:   ym.Form,
		}
		if ym.Controlled {
			m.Controlled = 1
		}
		catalog.Medicines = append(catalog.Medicines, m)
	}

	for _, text := range yc.Posologies {
		catalog.Posologies = append(catalog.Posologies, domain.Posology{Text: text})
	}

	return catalog, nil
}

// Export exports a catalog to YAML
func (c *YAMLCodec) Export(catalog *domain.Catalog, w io.Writer) error {
	yc := yamlCatalog{
		Medicines:  make([]yamlMedicine, 0, len(catalog.Medicines)),
		Posologies: make([]string, 0, len(catalog.Posologies)),
	}

	for _, m := range catalog.Medicines {
		yc.Medicines = append(yc.Medicines, yamlMedicine{
			Name:       m.Name,
			Dosage:     m.Dosage,
			Form:       m.Form,
			Controlled: m.IsControlled(),
		})
	}

	for _, p := range catalog.Posologies {
		yc.Posologies = append(yc.Posologies, p.Text)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	if err := encoder.Encode(&yc); err != nil {
		_ = encoder.Close()
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return encoder.Close()
}
