// Package chains provides chain metadata loaded from YAML.
package chains

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/ports"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultChains []byte

// ErrUnknownChain is returned for chain ids missing from the registry.
var ErrUnknownChain = errors.New("unknown chain")

var _ ports.ChainRegistry = (*Registry)(nil)

// File is the on-disk layout.
type File struct {
	Chains []*domain.Chain `yaml:"chains"`
}

// Registry is an immutable set of chains keyed by id.
type Registry struct {
	chains map[uint64]*domain.Chain
}

// NewRegistry validates chains and indexes them.
func NewRegistry(chains ...*domain.Chain) (*Registry, error) {
	r := &Registry{chains: make(map[uint64]*domain.Chain, len(chains))}
	for _, c := range chains {
		if c == nil || c.ID == 0 {
			return nil, errors.New("chain id is required")
		}
		if _, dup := r.chains[c.ID]; dup {
			return nil, fmt.Errorf("duplicate chain %d", c.ID)
		}
		if c.NativeToken.ChainID == 0 {
			c.NativeToken.ChainID = c.ID
		}
		r.chains[c.ID] = c
	}
	return r, nil
}

// Parse reads a registry from YAML.
func Parse(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse chains: %w", err)
	}
	return NewRegistry(f.Chains...)
}

// Load reads a registry from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chains file: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in registry.
func Default() *Registry {
	r, err := Parse(defaultChains)
	if err != nil {
		panic(err)
	}
	return r
}

// ChainByID returns a copy of the chain with the given id.
func (r *Registry) ChainByID(_ context.Context, id uint64) (*domain.Chain, error) {
	c, ok := r.chains[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChain, id)
	}
	copied := *c
	return &copied, nil
}

// Chains returns every chain ordered by id.
func (r *Registry) Chains(_ context.Context) ([]*domain.Chain, error) {
	out := make([]*domain.Chain, 0, len(r.chains))
	for _, c := range r.chains {
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
