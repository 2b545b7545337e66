package registry_test

import (
	"strings"
	"testing"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/ports"
	"github.com/aretw0/routeflow/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type prefixProvider struct {
	name   string
	prefix string
}

func (p prefixProvider) Name() string { return p.name }

func (p prefixProvider) IsProviderStep(step *domain.Step) bool {
	return strings.HasPrefix(step.Action.FromAddress, p.prefix)
}

func (p prefixProvider) NewStepExecutor(ports.StepExecutorOptions) (ports.StepExecutor, error) {
	return nil, nil
}

func TestRegistry_Lookup(t *testing.T) {
	r := registry.NewRegistry(
		prefixProvider{name: "EVM", prefix: "0x"},
		prefixProvider{name: "UTXO", prefix: "bc1"},
	)

	p, err := r.Lookup(&domain.Step{Action: domain.Action{FromAddress: "bc1qxyz"}})
	require.NoError(t, err)
	assert.Equal(t, "UTXO", p.Name())

	_, err = r.Lookup(&domain.Step{ID: "s1", Action: domain.Action{FromAddress: "So1ana"}})
	assert.Equal(t, domain.CodeProviderUnavailable, domain.CodeOf(err))
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := registry.NewRegistry(prefixProvider{name: "EVM", prefix: "0x"})
	r.Register(prefixProvider{name: "EVM", prefix: "0xab"})

	require.Len(t, r.Providers(), 1)
	_, err := r.Lookup(&domain.Step{Action: domain.Action{FromAddress: "0x12"}})
	assert.Error(t, err)
}
