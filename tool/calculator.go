package tool

import (
	"context"
	"fmt"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Calculator evaluates arithmetic expressions in a sandboxed Starlark
// interpreter with no predeclared names and a bounded step budget.
type Calculator struct {
	MaxSteps uint64
}

// NewCalculator creates a Calculator.
func NewCalculator() *Calculator {
	return &Calculator{MaxSteps: 10_000}
}

// Name returns the name of the tool.
func (c *Calculator) Name() string { return "calculator" }

// Description returns the description of the tool.
func (c *Calculator) Description() string {
	return "Calculate mathematical expressions. Use this for any math calculations. Input is an expression such as (2 + 3) * 4."
}

// Evaluate returns the value of expr.
func (c *Calculator) Evaluate(ctx context.Context, expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", fmt.Errorf("empty expression")
	}

	thread := &starlark.Thread{Name: "calculator"}
	if c.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(c.MaxSteps)
	}
	stop := context.AfterFunc(ctx, func() { thread.Cancel(ctx.Err().Error()) })
	defer stop()

	v, err := starlark.EvalOptions(&syntax.FileOptions{}, thread, "expr", expr, nil)
	if err != nil {
		return "", err
	}
	switch v.(type) {
	case starlark.Int, starlark.Float:
		return v.String(), nil
	}
	return "", fmt.Errorf("expression evaluated to %s, not a number", v.Type())
}

// Call evaluates input. Evaluation errors are reported in the returned
// text so a model can read them.
func (c *Calculator) Call(ctx context.Context, input string) (string, error) {
	result, err := c.Evaluate(ctx, input)
	if err != nil {
		return fmt.Sprintf("Error calculating %s: %v", input, err), nil
	}
	return fmt.Sprintf("The result of %s is %s", input, result), nil
}
