package condition

import (
	"github.com/skilletai/skillet/internal/expression"
)

// Evaluate resolves a parsed condition against the variable scope. Unknown
// variables resolve to null and type-mismatched comparisons are false, so
// evaluation never fails.
func Evaluate(expr Expr, scope expression.Scope) bool {
	return expression.Truthy(evalValue(expr, scope))
}

func evalValue(expr Expr, scope expression.Scope) expression.Value {
	switch e := expr.(type) {
	case *NullLit:
		return expression.Null
	case *BoolLit:
		return expression.BoolValue{Val: e.Val}
	case *NumberLit:
		return expression.NumberValue{Val: e.Val}
	case *StringLit:
		return expression.StringValue{Val: e.Val}
	case *VariableRef:
		return expression.ResolvePath(scope, e.Path)
	case *BinaryExpr:
		return evalBinary(e, scope)
	default:
		return expression.Null
	}
}

func evalBinary(e *BinaryExpr, scope expression.Scope) expression.Value {
	switch e.Op {
	case "&&":
		if !expression.Truthy(evalValue(e.Left, scope)) {
			return expression.BoolValue{Val: false}
		}
		return expression.BoolValue{Val: expression.Truthy(evalValue(e.Right, scope))}
	case "||":
		if expression.Truthy(evalValue(e.Left, scope)) {
			return expression.BoolValue{Val: true}
		}
		return expression.BoolValue{Val: expression.Truthy(evalValue(e.Right, scope))}
	}

	left := evalValue(e.Left, scope)
	right := evalValue(e.Right, scope)

	switch e.Op {
	case "==":
		return expression.BoolValue{Val: left.Equals(right)}
	case "!=":
		return expression.BoolValue{Val: !left.Equals(right)}
	case ">", ">=", "<", "<=":
		cmp, ok := expression.Compare(left, right)
		if !ok {
			// ordering across mismatched types is false, not an error
			return expression.BoolValue{Val: false}
		}
		switch e.Op {
		case ">":
			return expression.BoolValue{Val: cmp > 0}
		case ">=":
			return expression.BoolValue{Val: cmp >= 0}
		case "<":
			return expression.BoolValue{Val: cmp < 0}
		default:
			return expression.BoolValue{Val: cmp <= 0}
		}
	}
	return expression.Null
}
