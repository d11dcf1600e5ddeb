package nodes

import (
	"context"

	"github.com/flowforge/enginecore/internal/registry"
)

// EchoNode passes its input through unchanged, merged with any static
// fields configured in settings["set"]. Used as the minimal no-op
// building block in tests and example workflows.
type EchoNode struct{}

func NewEchoNode() *EchoNode { return &EchoNode{} }

func (n *EchoNode) NodeType() string { return "echo" }

func (n *EchoNode) Execute(ctx context.Context, req registry.ExecRequest) (map[string]interface{}, error) {
	output := make(map[string]interface{}, len(req.Input))
	for k, v := range req.Input {
		output[k] = v
	}
	if set, ok := req.Settings["set"].(map[string]interface{}); ok {
		for k, v := range set {
			output[k] = v
		}
	}
	return output, nil
}
