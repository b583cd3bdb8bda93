package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bubblefield/backend/internal/models"
)

// seedFile is the on-disk catalog format:
//
//	categories:
//	  - key: frontendFrameworks
//	    name: Frontend   # optional, derived from key
//	    items:
//	      - name: React
//	        url: https://react.dev
type seedFile struct {
	Categories []seedCategory `yaml:"categories"`
}

type seedCategory struct {
	Key   string     `yaml:"key"`
	Name  string     `yaml:"name"`
	Items []seedItem `yaml:"items"`
}

type seedItem struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// LoadSeedFile reads and validates a YAML catalog.
func LoadSeedFile(path string) ([]models.Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a YAML catalog and returns it normalized and validated.
func ParseSeed(data []byte) ([]models.Category, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	categories := make([]models.Category, 0, len(f.Categories))
	for _, sc := range f.Categories {
		cat := models.Category{Slug: sc.Key, Name: sc.Name}
		for _, si := range sc.Items {
			cat.Items = append(cat.Items, models.CategoryItem{Name: si.Name, URL: si.URL})
		}
		categories = append(categories, cat)
	}

	categories = Normalize(categories)
	if err := Validate(categories); err != nil {
		return nil, err
	}
	return categories, nil
}
