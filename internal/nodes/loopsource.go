package nodes

import (
	"context"
	"fmt"

	"github.com/flowforge/enginecore/internal/registry"
)

// LoopSourceNode turns an array into the reserved output["results"]
// shape a loop edge consumes: a list of {item, index} entries, one
// per element, in source order.
type LoopSourceNode struct{}

func NewLoopSourceNode() *LoopSourceNode { return &LoopSourceNode{} }

func (n *LoopSourceNode) NodeType() string { return "loop_source" }

func (n *LoopSourceNode) Execute(ctx context.Context, req registry.ExecRequest) (map[string]interface{}, error) {
	itemsPath := stringSetting(req.Settings, "items", "")

	var items []interface{}
	if itemsPath == "" {
		if arr, ok := req.Input["items"].([]interface{}); ok {
			items = arr
		} else {
			items = []interface{}{req.Input}
		}
	} else {
		value := fieldValue(req.Input, itemsPath)
		arr, ok := value.([]interface{})
		if !ok {
			return nil, fmt.Errorf("loop_source: field %q is not an array", itemsPath)
		}
		items = arr
	}

	results := make([]interface{}, len(items))
	for i, item := range items {
		results[i] = map[string]interface{}{"item": item, "index": i}
	}

	output := make(map[string]interface{}, len(req.Input)+1)
	for k, v := range req.Input {
		output[k] = v
	}
	output["results"] = results
	return output, nil
}
