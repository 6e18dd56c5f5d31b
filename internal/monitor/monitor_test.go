package monitor

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrency(t *testing.T) {
	def := DefaultConcurrency()
	assert.GreaterOrEqual(t, def, 1)
	assert.LessOrEqual(t, def, runtime.NumCPU())

	assert.Equal(t, def, Concurrency(0))
	assert.Equal(t, 1, Concurrency(1))
	assert.Equal(t, runtime.NumCPU(), Concurrency(runtime.NumCPU()+100))
}

func TestInfoIsCached(t *testing.T) {
	m := NewSystemMonitor()
	a, err := m.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, runtime.NumCPU(), a.LogicalCores)
	assert.Positive(t, a.PhysicalCores)

	b, err := m.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestStats(t *testing.T) {
	m := NewSystemMonitor()
	m.sample = 0
	s, err := m.Stats(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, s.RAMPercent, 0.0)
	assert.LessOrEqual(t, s.RAMPercent, 100.0)
}
