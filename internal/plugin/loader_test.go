package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/enginecore/internal/registry"
)

type stubExecutor struct{ nodeType string }

func (s *stubExecutor) NodeType() string { return s.nodeType }
func (s *stubExecutor) Execute(ctx context.Context, req registry.ExecRequest) (map[string]interface{}, error) {
	return req.Input, nil
}

func TestLoad_RegistersEveryFactorysExecutors(t *testing.T) {
	reg := registry.New()
	factoryA := func() []registry.Executor { return []registry.Executor{&stubExecutor{nodeType: "echo"}} }
	factoryB := func() []registry.Executor { return []registry.Executor{&stubExecutor{nodeType: "if"}} }

	loader := New(reg, factoryA, factoryB)
	require.NoError(t, loader.Load())

	assert.ElementsMatch(t, []string{"echo", "if"}, reg.Types())
}

func TestReload_OverridesExistingRegistration(t *testing.T) {
	reg := registry.New()
	original := &stubExecutor{nodeType: "echo"}
	require.NoError(t, reg.Register(original))

	replacement := &stubExecutor{nodeType: "echo"}
	loader := New(reg, func() []registry.Executor { return []registry.Executor{replacement} })
	require.NoError(t, loader.Reload())

	got, err := reg.Get("echo")
	require.NoError(t, err)
	assert.Same(t, replacement, got)
}

func TestLoad_NoFactories_IsNoop(t *testing.T) {
	reg := registry.New()
	loader := New(reg)
	require.NoError(t, loader.Load())
	assert.Empty(t, reg.Types())
}
