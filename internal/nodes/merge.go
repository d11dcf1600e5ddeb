package nodes

import (
	"context"

	"github.com/flowforge/enginecore/internal/registry"
)

// MergeNode joins multiple inbound branches into one. The branch whose
// settings mark it "primary" carries its input through; any other
// branch sets the reserved output["_stopExecution"] key so the engine
// does not continue past it a second time.
type MergeNode struct{}

func NewMergeNode() *MergeNode { return &MergeNode{} }

func (n *MergeNode) NodeType() string { return "merge" }

func (n *MergeNode) Execute(ctx context.Context, req registry.ExecRequest) (map[string]interface{}, error) {
	output := make(map[string]interface{}, len(req.Input)+1)
	for k, v := range req.Input {
		output[k] = v
	}

	primary, _ := req.Settings["primaryBranch"].(string)
	branch, _ := req.Input["branch"].(string)
	if primary != "" && branch != primary {
		output["_stopExecution"] = true
	}
	return output, nil
}
