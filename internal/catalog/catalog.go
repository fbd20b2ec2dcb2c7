// Package catalog serves the read-only list of models offered in the marketplace.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"

	"github.com/nulzo/modelmart/internal/price"
	"github.com/nulzo/modelmart/pkg/api"
	"github.com/spf13/viper"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var ErrModelNotFound = errors.New("model not found")

// Catalog is immutable once built and safe for concurrent use.
type Catalog struct {
	models []api.Model
	index  map[string]int
}

// New builds a catalog from models, preserving their order. Ids must be
// non-empty and unique and prices, when set, must be decimal strings.
func New(models []api.Model) (*Catalog, error) {
	c := &Catalog{
		models: make([]api.Model, 0, len(models)),
		index:  make(map[string]int, len(models)),
	}

	for i, m := range models {
		if m.ID == "" {
			return nil, fmt.Errorf("catalog entry %d: empty id", i)
		}
		if _, dup := c.index[m.ID]; dup {
			return nil, fmt.Errorf("catalog entry %d: duplicate id %q", i, m.ID)
		}
		if m.Price != "" && !price.Valid(m.Price) {
			return nil, fmt.Errorf("catalog entry %q: invalid price %q", m.ID, m.Price)
		}
		c.index[m.ID] = len(c.models)
		c.models = append(c.models, cloneModel(m))
	}

	return c, nil
}

// Default returns the catalog bundled with the binary.
func Default() (*Catalog, error) {
	return parse(bytes.NewReader(defaultCatalog), "")
}

// Load reads a YAML catalog from path, or the bundled catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	return parse(nil, path)
}

func parse(r *bytes.Reader, path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	var err error
	if path != "" {
		v.SetConfigFile(path)
		err = v.ReadInConfig()
	} else {
		err = v.ReadConfig(r)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading catalog: %w", err)
	}

	var models []api.Model
	if err := v.UnmarshalKey("models", &models); err != nil {
		return nil, fmt.Errorf("unable to decode catalog: %w", err)
	}

	return New(models)
}

// List returns every model in catalog order. The slice is a copy.
func (c *Catalog) List() []api.Model {
	out := make([]api.Model, len(c.models))
	for i, m := range c.models {
		out[i] = cloneModel(m)
	}
	return out
}

// Get returns the model with the exact id, or ErrModelNotFound.
func (c *Catalog) Get(id string) (api.Model, error) {
	i, ok := c.index[id]
	if !ok {
		return api.Model{}, ErrModelNotFound
	}
	return cloneModel(c.models[i]), nil
}

// Len is the number of models in the catalog.
func (c *Catalog) Len() int {
	return len(c.models)
}

func cloneModel(m api.Model) api.Model {
	if m.Compatibility != nil {
		m.Compatibility = append([]string(nil), m.Compatibility...)
	}
	return m
}
