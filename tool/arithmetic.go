package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// ArithmeticTool performs a basic arithmetic operation on two numeric
// operands. Division by zero and unsupported operation names are reported
// errors, never panics.
type ArithmeticTool struct{}

// NewArithmeticTool constructs the arithmetic tool.
func NewArithmeticTool() *ArithmeticTool { return &ArithmeticTool{} }

// Name implements the Tool interface.
func (t *ArithmeticTool) Name() string { return "arithmetic" }

// Description implements the Tool interface.
func (t *ArithmeticTool) Description() string {
	return "Perform a basic arithmetic operation on two numbers. Supported operations: add, sub, mul, div"
}

// Parameters implements the Tool interface.
func (t *ArithmeticTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"first_num": map[string]any{
				"type":        "number",
				"description": "First operand",
			},
			"second_num": map[string]any{
				"type":        "number",
				"description": "Second operand",
			},
			"operation": map[string]any{
				"type":        "string",
				"description": "Operation to perform",
				"enum":        []string{"add", "sub", "mul", "div"},
			},
		},
		"required": []string{"first_num", "second_num", "operation"},
	}
}

// Invoke implements the Tool interface. The result echoes the operands and
// operation alongside the computed value so the model can restate them.
func (t *ArithmeticTool) Invoke(_ context.Context, args map[string]any) (string, error) {
	first, ok := toFloat(args["first_num"])
	if !ok {
		return "", NewToolError(t.Name(), "first_num must be a number", "VALIDATION_ERROR")
	}
	second, ok := toFloat(args["second_num"])
	if !ok {
		return "", NewToolError(t.Name(), "second_num must be a number", "VALIDATION_ERROR")
	}
	op, _ := args["operation"].(string)

	var result float64
	switch op {
	case "add":
		result = first + second
	case "sub":
		result = first - second
	case "mul":
		result = first * second
	case "div":
		if second == 0 {
			return "", NewToolError(t.Name(), "division by zero is not allowed", "EXECUTION_ERROR")
		}
		result = first / second
	default:
		return "", NewToolError(t.Name(), fmt.Sprintf("unsupported operation %q", op), "EXECUTION_ERROR")
	}

	payload, err := json.Marshal(map[string]any{
		"first_num":  first,
		"second_num": second,
		"operation":  op,
		"result":     result,
	})
	if err != nil {
		return "", NewToolError(t.Name(), err.Error(), "EXECUTION_ERROR")
	}
	return string(payload), nil
}

// toFloat accepts the numeric shapes JSON decoding and direct Go callers
// produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
