package condition

import (
	"fmt"
	"strings"

	"github.com/skilletai/skillet/internal/expression"
)

// EvaluateWithTrace evaluates like Evaluate and also returns a textual record
// of how each sub-expression resolved, for use in debug output.
func EvaluateWithTrace(expr Expr, scope expression.Scope) (bool, string) {
	tr := &tracer{}
	result := expression.Truthy(tr.eval(expr, scope))
	tr.addf("result: %t", result)
	return result, strings.Join(tr.lines, "\n")
}

type tracer struct {
	lines []string
}

func (t *tracer) addf(format string, args ...interface{}) {
	t.lines = append(t.lines, fmt.Sprintf(format, args...))
}

func (t *tracer) eval(expr Expr, scope expression.Scope) expression.Value {
	switch e := expr.(type) {
	case *VariableRef:
		val := expression.ResolvePath(scope, e.Path)
		t.addf("%s = %s", strings.Join(e.Path, "."), describe(val))
		return val

	case *BinaryExpr:
		switch e.Op {
		case "&&":
			left := t.eval(e.Left, scope)
			if !expression.Truthy(left) {
				t.addf("%s => false (left side false, right side not evaluated)", e)
				return expression.BoolValue{Val: false}
			}
			right := t.eval(e.Right, scope)
			res := expression.Truthy(right)
			t.addf("%s => %t", e, res)
			return expression.BoolValue{Val: res}
		case "||":
			left := t.eval(e.Left, scope)
			if expression.Truthy(left) {
				t.addf("%s => true (left side true, right side not evaluated)", e)
				return expression.BoolValue{Val: true}
			}
			right := t.eval(e.Right, scope)
			res := expression.Truthy(right)
			t.addf("%s => %t", e, res)
			return expression.BoolValue{Val: res}
		default:
			t.eval(e.Left, scope)
			t.eval(e.Right, scope)
			val := evalBinary(e, scope)
			t.addf("%s => %t", e, expression.Truthy(val))
			return val
		}

	default:
		return evalValue(expr, scope)
	}
}

func describe(v expression.Value) string {
	switch v.Type() {
	case expression.NullType:
		return "null"
	case expression.StringType:
		return fmt.Sprintf("%q", v.Render())
	default:
		return v.Render()
	}
}
