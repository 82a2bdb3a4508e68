// Package catalog holds the static farm and NFT type tables the economy
// consumes as read-only configuration.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

type FarmType struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Price         int64  `yaml:"price"`
	IncomePerHour int64  `yaml:"income_per_hour"`
}

type NftType struct {
	ID    string  `yaml:"id"`
	Name  string  `yaml:"name"`
	Price int64   `yaml:"price"`
	Boost float64 `yaml:"boost"`
}

// Catalog keeps the declaration order of each table; shop listings and
// auction seeding depend on it.
type Catalog struct {
	Farms []FarmType `yaml:"farms"`
	Nfts  []NftType  `yaml:"nfts"`

	farmIndex map[string]int
	nftIndex  map[string]int
}

// Load reads a catalog file. An empty path selects the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(defaultYAML)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

// New builds a catalog from in-memory tables, applying the same validation as Parse.
func New(farms []FarmType, nfts []NftType) (*Catalog, error) {
	c := &Catalog{Farms: farms, Nfts: nfts}
	if err := c.index(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) index() error {
	if len(c.Farms) == 0 {
		return fmt.Errorf("catalog: no farm types")
	}
	c.farmIndex = make(map[string]int, len(c.Farms))
	for i, f := range c.Farms {
		switch {
		case f.ID == "":
			return fmt.Errorf("catalog: farm #%d has no id", i)
		case f.Price <= 0:
			return fmt.Errorf("catalog: farm %q: price must be positive", f.ID)
		case f.IncomePerHour < 0:
			return fmt.Errorf("catalog: farm %q: negative income", f.ID)
		}
		if _, dup := c.farmIndex[f.ID]; dup {
			return fmt.Errorf("catalog: duplicate farm id %q", f.ID)
		}
		c.farmIndex[f.ID] = i
	}

	c.nftIndex = make(map[string]int, len(c.Nfts))
	for i, n := range c.Nfts {
		switch {
		case n.ID == "":
			return fmt.Errorf("catalog: nft #%d has no id", i)
		case n.Price <= 0:
			return fmt.Errorf("catalog: nft %q: price must be positive", n.ID)
		case n.Boost < 1:
			return fmt.Errorf("catalog: nft %q: boost must be at least 1", n.ID)
		}
		if _, dup := c.nftIndex[n.ID]; dup {
			return fmt.Errorf("catalog: duplicate nft id %q", n.ID)
		}
		c.nftIndex[n.ID] = i
	}
	return nil
}

func (c *Catalog) Farm(id string) (FarmType, bool) {
	i, ok := c.farmIndex[id]
	if !ok {
		return FarmType{}, false
	}
	return c.Farms[i], true
}

func (c *Catalog) Nft(id string) (NftType, bool) {
	i, ok := c.nftIndex[id]
	if !ok {
		return NftType{}, false
	}
	return c.Nfts[i], true
}

// AuctionFarms returns the top n farm types, the ones offered at auction.
func (c *Catalog) AuctionFarms(n int) []FarmType {
	if n >= len(c.Farms) {
		return c.Farms
	}
	return c.Farms[len(c.Farms)-n:]
}
