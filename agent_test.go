package ecoguardian

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry(testLogger())
	bank := newTestBank(t, 100)

	collector := NewCollectorAgent("eco-collector", &stubSource{}, bank, testLogger())
	require.NoError(t, registry.Register(collector))

	got, err := registry.Get(KindCollector)
	require.NoError(t, err)
	assert.Equal(t, "eco-collector", got.ID())

	_, err = registry.Get(KindPredictor)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryRejectsDuplicateKind(t *testing.T) {
	registry := NewRegistry(testLogger())
	bank := newTestBank(t, 100)

	require.NoError(t, registry.Register(NewCollectorAgent("first", &stubSource{}, bank, testLogger())))
	err := registry.Register(NewCollectorAgent("second", &stubSource{}, bank, testLogger()))
	assert.Error(t, err)
}

func TestRegistryListSortsByKind(t *testing.T) {
	registry := NewRegistry(testLogger())
	bank := newTestBank(t, 100)

	require.NoError(t, registry.Register(NewPredictorAgent("eco-predictor", &stubPredictor{}, bank, testLogger())))
	require.NoError(t, registry.Register(NewDeployerAgent("eco-deployer", bank, testLogger())))
	require.NoError(t, registry.Register(NewCollectorAgent("eco-collector", &stubSource{}, bank, testLogger())))

	infos := registry.List()
	require.Len(t, infos, 3)
	assert.Equal(t, KindCollector, infos[0].Kind)
	assert.Equal(t, KindDeployer, infos[1].Kind)
	assert.Equal(t, KindPredictor, infos[2].Kind)
}
