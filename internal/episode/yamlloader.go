package episode

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogFile is the top-level structure of an Arcsong episode catalog YAML file.
//
// Example:
//
//	catalog:
//	  name: "Launch set"
//	episodes:
//	  - id: "rainy-reunion"
//	    title: "Rainy Reunion"
//	    genre: romance
//	    turn_budget: 12
//	    scene_mode: peaks
//	    situation: "A station café at closing time, rain against the glass."
//	    dramatic_question: "Will they admit why they really came back?"
type CatalogFile struct {
	Catalog  CatalogMeta `yaml:"catalog"`
	Episodes []Config    `yaml:"episodes"`
}

// CatalogMeta holds top-level metadata for a catalog file.
type CatalogMeta struct {
	// Name is the catalog's display name.
	Name string `yaml:"name"`

	// Description is a free-text summary of the catalog.
	Description string `yaml:"description"`
}

// LoadCatalogFile reads and parses an episode catalog YAML file from disk.
func LoadCatalogFile(path string) (*CatalogFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("episode: open catalog file %q: %w", path, err)
	}
	defer f.Close()

	cf, err := LoadCatalogFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("episode: parse catalog file %q: %w", path, err)
	}
	return cf, nil
}

// LoadCatalogFromReader parses catalog YAML from an [io.Reader].
// The reader is consumed entirely; the caller is responsible for closing it.
func LoadCatalogFromReader(r io.Reader) (*CatalogFile, error) {
	var cf CatalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&cf); err != nil {
		return nil, fmt.Errorf("episode: decode catalog yaml: %w", err)
	}

	for i := range cf.Episodes {
		if cf.Episodes[i].ID == "" {
			return nil, fmt.Errorf("episode: catalog entry %d (%q) has no id", i, cf.Episodes[i].Title)
		}
	}
	return &cf, nil
}

// BuildCatalog constructs a [MemCatalog] from a parsed catalog file.
func BuildCatalog(cf *CatalogFile) (*MemCatalog, error) {
	if cf == nil {
		return nil, fmt.Errorf("episode: catalog file must not be nil")
	}
	return NewMemCatalog(cf.Episodes...), nil
}
