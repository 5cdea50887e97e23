package domain

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CatalogToken is a token users may subscribe to on a given chain.
type CatalogToken struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// Chain lists the supported tokens of one blockchain.
type Chain struct {
	ID     string         `yaml:"id"`
	Tokens []CatalogToken `yaml:"tokens"`
}

// Catalog is the fixed, ordered set of chains and tokens offered by the bot.
type Catalog struct {
	Chains []Chain `yaml:"chains"`
}

// DefaultCatalog is used when no catalog file is configured.
func DefaultCatalog() Catalog {
	return Catalog{Chains: []Chain{
		{ID: "ton", Tokens: []CatalogToken{
			{Name: "FPIBANK", Address: "EQAyrrAjgSuyHrgGO1HimNbGV9tVLndZ3uocLaOyTw_FgegD"},
		}},
	}}
}

// LoadCatalog reads a YAML catalog from path. An empty path yields the
// default catalog.
//
//	chains:
//	  - id: ton
//	    tokens:
//	      - name: FPIBANK
//	        address: EQAyrr...
func LoadCatalog(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Validate checks that chain ids and token addresses are present and unique.
func (c Catalog) Validate() error {
	if len(c.Chains) == 0 {
		return errors.New("catalog: at least one chain is required")
	}
	chains := make(map[string]struct{}, len(c.Chains))
	addrs := make(map[string]struct{})
	for _, ch := range c.Chains {
		if strings.TrimSpace(ch.ID) == "" {
			return errors.New("catalog: chain id must not be empty")
		}
		if _, dup := chains[ch.ID]; dup {
			return fmt.Errorf("catalog: duplicate chain %q", ch.ID)
		}
		chains[ch.ID] = struct{}{}
		if len(ch.Tokens) == 0 {
			return fmt.Errorf("catalog: chain %q has no tokens", ch.ID)
		}
		for _, tk := range ch.Tokens {
			if strings.TrimSpace(tk.Name) == "" || strings.TrimSpace(tk.Address) == "" {
				return fmt.Errorf("catalog: chain %q has a token without name or address", ch.ID)
			}
			if _, dup := addrs[tk.Address]; dup {
				return fmt.Errorf("catalog: duplicate token address %q", tk.Address)
			}
			addrs[tk.Address] = struct{}{}
		}
	}
	return nil
}

// Chain returns the chain with the given id.
func (c Catalog) Chain(id string) (Chain, bool) {
	for _, ch := range c.Chains {
		if ch.ID == id {
			return ch, true
		}
	}
	return Chain{}, false
}

// Supports reports whether (chain, address) is offered by the catalog.
func (c Catalog) Supports(chainID, address string) bool {
	ch, ok := c.Chain(chainID)
	if !ok {
		return false
	}
	for _, tk := range ch.Tokens {
		if tk.Address == address {
			return true
		}
	}
	return false
}
