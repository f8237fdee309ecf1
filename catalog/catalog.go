package catalog

import (
	"sort"

	"github.com/quackamole-dev/quackamole-relay/config"
	"github.com/quackamole-dev/quackamole-relay/types"
)

// Catalog is the read-only plugin lookup table. It is populated once at
// startup from the built-in table plus any [[plugin]] config blocks and never
// mutated afterwards, so no locking is required.
type Catalog struct {
	plugins map[string]*types.Plugin
}

var builtin = []*types.Plugin{
	{Id: "random_number", Name: "Random number", Url: "https://andreas-schoch.github.io/p2p-test-plugin/", Version: "0.0.1"},
	{Id: "paint", Name: "Paint", Url: "https://andreas-schoch.github.io/quackamole-plugin-paint/", Version: "0.0.1"},
	{Id: "gomoku", Name: "Gomoku", Url: "https://quackamole-dev.github.io/quackamole-plugin-gomoku/", Version: "0.0.1"},
	{Id: "2d_shooter", Name: "2d Shooter (WIP)", Url: "https://andreas-schoch.github.io/quackamole-plugin-2d-topdown-shooter/", Version: "0.0.1"},
	{Id: "breakout_game", Name: "Breakout game", Url: "https://andreas-schoch.github.io/breakout-game/", Version: "0.0.1"},
	{Id: "snowboarding_game", Name: "Snowboarding Game", Url: "https://snowboarding.game", Version: "0.0.1"},
}

// NewCatalog builds the catalog. Config entries win over built-in entries with
// the same id.
func NewCatalog(entries []config.PluginEntry) *Catalog {
	plugins := make(map[string]*types.Plugin, len(builtin)+len(entries))
	for _, p := range builtin {
		cp := *p
		plugins[p.Id] = &cp
	}
	for _, e := range entries {
		if e.Id == "" {
			continue
		}
		plugins[e.Id] = &types.Plugin{
			Id:          e.Id,
			Name:        e.Name,
			Version:     e.Version,
			Description: e.Description,
			Url:         e.Url,
		}
	}
	return &Catalog{plugins: plugins}
}

func (c *Catalog) GetById(id string) (*types.Plugin, bool) {
	p, ok := c.plugins[id]
	return p, ok
}

// GetAll returns the catalog sorted by id for stable listings.
func (c *Catalog) GetAll() []*types.Plugin {
	all := make([]*types.Plugin, 0, len(c.plugins))
	for _, p := range c.plugins {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Id < all[j].Id })
	return all
}
