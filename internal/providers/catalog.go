package providers

import (
	"slices"
	"strings"
)

// Catalog is the static model inventory of one provider. Adapters embed it.
type Catalog struct {
	name         string
	models       []string
	aliases      map[string]string
	defaultModel string
}

// NewCatalog falls back to the first model when def is not in models.
func NewCatalog(name string, models []string, aliases map[string]string, def string) Catalog {
	c := Catalog{
		name:    name,
		models:  slices.Clone(models),
		aliases: make(map[string]string, len(aliases)),
	}
	for k, v := range aliases {
		c.aliases[strings.ToLower(k)] = v
	}
	def = c.resolve(def)
	if !slices.Contains(c.models, def) && len(c.models) > 0 {
		def = c.models[0]
	}
	c.defaultModel = def
	return c
}

func (c Catalog) Name() string { return c.name }

func (c Catalog) SupportedModels() []string { return slices.Clone(c.models) }

func (c Catalog) DefaultModel() string { return c.defaultModel }

// ResolveModel maps an alias to its model id. Empty input yields the default.
func (c Catalog) ResolveModel(model string) string {
	if strings.TrimSpace(model) == "" {
		return c.defaultModel
	}
	return c.resolve(model)
}

func (c Catalog) Aliases() map[string]string {
	out := make(map[string]string, len(c.aliases))
	for k, v := range c.aliases {
		out[k] = v
	}
	return out
}

func (c Catalog) resolve(model string) string {
	if target, ok := c.aliases[strings.ToLower(strings.TrimSpace(model))]; ok {
		return target
	}
	return strings.TrimSpace(model)
}
