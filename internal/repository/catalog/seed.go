package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/shopdex/internal/domain/product"
)

type seedFile struct {
	Products []seedProduct `yaml:"products"`
}

type seedProduct struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Price       float64           `yaml:"price"`
	Category    string            `yaml:"category"`
	Brand       string            `yaml:"brand"`
	Rating      float64           `yaml:"rating"`
	Attributes  map[string]string `yaml:"attributes"`
}

// LoadSeedFile reads a YAML catalog seed and validates every product.
func LoadSeedFile(path string) ([]product.Product, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var sf seedFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	if len(sf.Products) == 0 {
		return nil, fmt.Errorf("seed file %s contains no products", path)
	}

	out := make([]product.Product, 0, len(sf.Products))
	for i, sp := range sf.Products {
		p, err := product.New(
			sp.ID, sp.Name, sp.Description,
			sp.Price, sp.Category, sp.Brand,
			sp.Rating, sp.Attributes,
		)
		if err != nil {
			return nil, fmt.Errorf("seed product %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}
