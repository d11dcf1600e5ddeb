package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/enginecore/internal/registry"
)

func TestIfNode_EqualsCondition_SelectsTrueBranch(t *testing.T) {
	n := NewIfNode()
	req := registry.ExecRequest{
		Input: map[string]interface{}{"status": "ok"},
		Settings: map[string]interface{}{
			"conditions": []interface{}{
				map[string]interface{}{"field": "status", "operator": "equals", "value": "ok"},
			},
		},
	}
	out, err := n.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "true", out["branch"])
}

func TestIfNode_NoMatch_SelectsFalseBranch(t *testing.T) {
	n := NewIfNode()
	req := registry.ExecRequest{
		Input: map[string]interface{}{"status": "bad"},
		Settings: map[string]interface{}{
			"conditions": []interface{}{
				map[string]interface{}{"field": "status", "operator": "equals", "value": "ok"},
			},
		},
	}
	out, err := n.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "false", out["branch"])
}

func TestIfNode_Validate_RequiresConditions(t *testing.T) {
	n := NewIfNode()
	err := n.Validate(map[string]interface{}{})
	require.Error(t, err)

	err = n.Validate(map[string]interface{}{
		"conditions": []interface{}{map[string]interface{}{"field": "a", "operator": "equals", "value": 1}},
	})
	require.NoError(t, err)
}

func TestEchoNode_PassesInputThroughAndAppliesSet(t *testing.T) {
	n := NewEchoNode()
	req := registry.ExecRequest{
		Input:    map[string]interface{}{"a": 1},
		Settings: map[string]interface{}{"set": map[string]interface{}{"b": 2}},
	}
	out, err := n.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, out["a"])
	assert.Equal(t, 2, out["b"])
}

func TestMergeNode_NonPrimaryBranch_SetsStopExecution(t *testing.T) {
	n := NewMergeNode()
	req := registry.ExecRequest{
		Input:    map[string]interface{}{"branch": "false"},
		Settings: map[string]interface{}{"primaryBranch": "true"},
	}
	out, err := n.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, true, out["_stopExecution"])
}

func TestMergeNode_PrimaryBranch_DoesNotStop(t *testing.T) {
	n := NewMergeNode()
	req := registry.ExecRequest{
		Input:    map[string]interface{}{"branch": "true"},
		Settings: map[string]interface{}{"primaryBranch": "true"},
	}
	out, err := n.Execute(context.Background(), req)
	require.NoError(t, err)
	_, stopped := out["_stopExecution"]
	assert.False(t, stopped)
}

func TestLoopSourceNode_ExpandsArrayIntoResults(t *testing.T) {
	n := NewLoopSourceNode()
	req := registry.ExecRequest{
		Input: map[string]interface{}{
			"items": []interface{}{"x", "y"},
		},
	}
	out, err := n.Execute(context.Background(), req)
	require.NoError(t, err)
	results, ok := out["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 2)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "x", first["item"])
	assert.Equal(t, 0, first["index"])
}

func TestLoopSourceNode_FieldPath_NonArray_Errors(t *testing.T) {
	n := NewLoopSourceNode()
	req := registry.ExecRequest{
		Input:    map[string]interface{}{"data": map[string]interface{}{"list": "not-an-array"}},
		Settings: map[string]interface{}{"items": "data.list"},
	}
	_, err := n.Execute(context.Background(), req)
	require.Error(t, err)
}
