package market

import (
	"context"
	"fmt"

	"pmintel/internal/config"
)

// Catalog returns a fixed set of named markets.
type Catalog struct {
	entries []config.CatalogEntry
}

func NewCatalog(entries []config.CatalogEntry) *Catalog {
	return &Catalog{entries: entries}
}

func (c *Catalog) Name() string { return config.SourceStatic }

// Fetch never fails. Each call returns a fresh slice.
func (c *Catalog) Fetch(_ context.Context) ([]Record, error) {
	result := make([]Record, 0, len(c.entries))
	for i, e := range c.entries {
		result = append(result, Record{
			ID:        fmt.Sprintf("static-%d", i+1),
			Name:      e.Name,
			Reference: e.Probability,
			URL:       e.URL,
			Source:    config.SourceStatic,
		})
	}
	return result, nil
}
