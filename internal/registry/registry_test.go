package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct{ nodeType string }

func (s *stubExecutor) NodeType() string { return s.nodeType }
func (s *stubExecutor) Execute(ctx context.Context, req ExecRequest) (map[string]interface{}, error) {
	return req.Input, nil
}

// I10: Register(x) followed by Get(x.NodeType()) returns x; a second
// Register with the same type fails with DuplicateNodeTypeError.
func TestRegisterThenGet_ReturnsSameExecutor(t *testing.T) {
	r := New()
	exec := &stubExecutor{nodeType: "echo"}

	require.NoError(t, r.Register(exec))

	got, err := r.Get("echo")
	require.NoError(t, err)
	assert.Same(t, exec, got)
}

func TestRegister_Duplicate_Fails(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&stubExecutor{nodeType: "echo"}))

	err := r.Register(&stubExecutor{nodeType: "echo"})
	require.Error(t, err)
	var dup *DuplicateNodeTypeError
	assert.ErrorAs(t, err, &dup)
}

func TestGet_Unknown_Fails(t *testing.T) {
	r := New()
	_, err := r.Get("missing")
	require.Error(t, err)
	var unk *UnknownNodeTypeError
	assert.ErrorAs(t, err, &unk)
}

func TestUnregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&stubExecutor{nodeType: "echo"}))

	assert.True(t, r.Unregister("echo"))
	assert.False(t, r.Has("echo"))
	assert.False(t, r.Unregister("echo"))
}

func TestTypes(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&stubExecutor{nodeType: "echo"}))
	require.NoError(t, r.Register(&stubExecutor{nodeType: "if"}))

	assert.ElementsMatch(t, []string{"echo", "if"}, r.Types())
}
