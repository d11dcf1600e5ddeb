// Package nodes provides the built-in executors exercised by tests
// and the reference host: conditional branching, merging, echoing,
// and loop-source iteration.
package nodes

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowforge/enginecore/internal/registry"
)

// IfNode evaluates a list of conditions against its input and selects
// the "true" or "false" branch via the reserved output["branch"] key.
type IfNode struct{}

func NewIfNode() *IfNode { return &IfNode{} }

func (n *IfNode) NodeType() string { return "if" }

func (n *IfNode) Validate(settings map[string]interface{}) error {
	conditions, ok := settings["conditions"].([]interface{})
	if !ok || len(conditions) == 0 {
		return fmt.Errorf("if: at least one condition is required")
	}
	return nil
}

func (n *IfNode) Execute(ctx context.Context, req registry.ExecRequest) (map[string]interface{}, error) {
	conditions, _ := req.Settings["conditions"].([]interface{})
	combineMode := stringSetting(req.Settings, "combineConditions", "and")

	matched := evaluateConditions(conditions, req.Input, combineMode)

	output := make(map[string]interface{}, len(req.Input)+1)
	for k, v := range req.Input {
		output[k] = v
	}
	if matched {
		output["branch"] = "true"
	} else {
		output["branch"] = "false"
	}
	return output, nil
}

func stringSetting(settings map[string]interface{}, key, def string) string {
	if v, ok := settings[key].(string); ok {
		return v
	}
	return def
}

func evaluateConditions(conditions []interface{}, data map[string]interface{}, combineMode string) bool {
	if len(conditions) == 0 {
		return true
	}
	results := make([]bool, len(conditions))
	for i, cond := range conditions {
		condMap, ok := cond.(map[string]interface{})
		if !ok {
			results[i] = false
			continue
		}
		field := fmt.Sprintf("%v", condMap["field"])
		operator := fmt.Sprintf("%v", condMap["operator"])
		value := condMap["value"]
		results[i] = evaluateCondition(fieldValue(data, field), operator, value)
	}

	if combineMode == "or" {
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	}
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}

func fieldValue(data map[string]interface{}, field string) interface{} {
	if field == "" {
		return data
	}
	parts := strings.Split(field, ".")
	var current interface{} = data
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

func evaluateCondition(fieldVal interface{}, operator string, compareValue interface{}) bool {
	switch operator {
	case "equals", "equal", "==":
		return compareEqual(fieldVal, compareValue)
	case "notEquals", "notEqual", "!=":
		return !compareEqual(fieldVal, compareValue)
	case "contains":
		return strings.Contains(fmt.Sprintf("%v", fieldVal), fmt.Sprintf("%v", compareValue))
	case "greaterThan", ">":
		return toNumber(fieldVal) > toNumber(compareValue)
	case "lessThan", "<":
		return toNumber(fieldVal) < toNumber(compareValue)
	case "isEmpty":
		return isEmpty(fieldVal)
	case "isNotEmpty":
		return !isEmpty(fieldVal)
	case "isNull":
		return fieldVal == nil
	case "isNotNull":
		return fieldVal != nil
	default:
		return false
	}
}

func compareEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return val == ""
	case []interface{}:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	}
	return false
}

func toNumber(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		n, _ := strconv.ParseFloat(val, 64)
		return n
	default:
		return 0
	}
}
