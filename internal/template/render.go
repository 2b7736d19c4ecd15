package template

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/skilletai/skillet/internal/expression"
)

// Render substitutes a template against the variable scope. Unknown
// identifiers render as empty text; the only possible error is a malformed
// template (*RenderError).
func Render(tpl string, scope expression.Scope) (string, error) {
	nodes, perr := parse(tpl)
	if perr != nil {
		return "", perr
	}

	var sb strings.Builder
	env := &renderEnv{scope: scope}
	renderNodes(&sb, nodes, env)
	return sb.String(), nil
}

// RenderInputs renders every string leaf of a possibly nested input
// structure, preserving the shape of maps and lists. Non-string leaves pass
// through untouched.
func RenderInputs(inputs map[string]interface{}, scope expression.Scope) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(inputs))
	for key, val := range inputs {
		rendered, err := renderValue(val, scope)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", key, err)
		}
		out[key] = rendered
	}
	return out, nil
}

// ExtractVariables returns the sorted set of free root identifiers referenced
// by a template, including loop targets and '#' index variables. A malformed
// template yields an empty set.
func ExtractVariables(tpl string) []string {
	nodes, perr := parse(tpl)
	if perr != nil {
		return nil
	}

	set := map[string]struct{}{}
	collectVariables(nodes, set)

	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Validate returns the parse error of a malformed template, or nil.
func Validate(tpl string) error {
	if _, perr := parse(tpl); perr != nil {
		return perr
	}
	return nil
}

// IsValid reports whether a template parses.
func IsValid(tpl string) bool {
	return Validate(tpl) == nil
}

func renderValue(v interface{}, scope expression.Scope) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return Render(val, scope)
	case map[string]interface{}:
		return RenderInputs(val, scope)
	case map[interface{}]interface{}:
		converted := make(map[string]interface{}, len(val))
		for k, item := range val {
			converted[fmt.Sprintf("%v", k)] = item
		}
		return RenderInputs(converted, scope)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			rendered, err := renderValue(item, scope)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return v, nil
	}
}

func collectVariables(nodes []Node, set map[string]struct{}) {
	addRoot := func(name string) {
		if name != "" && name != "_" {
			set[name] = struct{}{}
		}
	}

	for _, node := range nodes {
		switch n := node.(type) {
		case *ExprNode:
			collectExprVariables(n.Expr, addRoot)
		case *ForNode:
			addRoot(n.ArrayPath[0])
			collectVariables(n.Body, set)
		}
	}
}

func collectExprVariables(expr exprAST, addRoot func(string)) {
	switch e := expr.(type) {
	case *binaryExpr:
		collectExprVariables(e.Left, addRoot)
		collectExprVariables(e.Right, addRoot)
	case *varAccess:
		addRoot(e.Segments[0].Field)
		for _, seg := range e.Segments[1:] {
			if seg.Kind == segIndexVar {
				addRoot(seg.IndexVar)
			}
		}
	}
}

// renderEnv carries the base scope plus the stack of enclosing loop
// elements, innermost last.
type renderEnv struct {
	scope  expression.Scope
	frames []expression.Value
}

func renderNodes(sb *strings.Builder, nodes []Node, env *renderEnv) {
	for _, node := range nodes {
		switch n := node.(type) {
		case *TextNode:
			sb.WriteString(n.Text)

		case *ExprNode:
			sb.WriteString(evalExpr(n.Expr, env).Render())

		case *ForNode:
			target := env.resolvePath(n.ArrayPath)
			list, ok := target.(expression.ListValue)
			if !ok {
				// non-sequence targets produce empty text
				continue
			}
			for _, element := range list.Items {
				env.frames = append(env.frames, element)
				renderNodes(sb, n.Body, env)
				env.frames = env.frames[:len(env.frames)-1]
			}
		}
	}
}

func evalExpr(expr exprAST, env *renderEnv) expression.Value {
	switch e := expr.(type) {
	case *numberLit:
		return expression.NumberValue{Val: e.Val}
	case *stringLit:
		return expression.StringValue{Val: e.Val}
	case *currentElem:
		return env.currentElement()
	case *varAccess:
		return env.resolveAccess(e)
	case *binaryExpr:
		left := evalExpr(e.Left, env)
		right := evalExpr(e.Right, env)
		return applyBinary(e.Op, left, right)
	default:
		return expression.Null
	}
}

// applyBinary implements template arithmetic: '+' concatenates when either
// operand is a string, everything else is IEEE-754 double math. Division by
// zero follows IEEE (the resulting Inf/NaN renders as empty text).
func applyBinary(op byte, left, right expression.Value) expression.Value {
	if op == '+' {
		_, ls := left.(expression.StringValue)
		_, rs := right.(expression.StringValue)
		if ls || rs {
			return expression.StringValue{Val: left.Render() + right.Render()}
		}
	}

	l := toNumber(left)
	r := toNumber(right)
	switch op {
	case '+':
		return expression.NumberValue{Val: l + r}
	case '-':
		return expression.NumberValue{Val: l - r}
	case '*':
		return expression.NumberValue{Val: l * r}
	case '/':
		return expression.NumberValue{Val: l / r}
	default:
		return expression.Null
	}
}

func toNumber(v expression.Value) float64 {
	switch val := v.(type) {
	case expression.NumberValue:
		return val.Val
	case expression.BoolValue:
		if val.Val {
			return 1
		}
		return 0
	case expression.StringValue:
		f, err := strconv.ParseFloat(strings.TrimSpace(val.Val), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case expression.NullValue, nil:
		return 0
	default:
		return math.NaN()
	}
}

func (env *renderEnv) currentElement() expression.Value {
	if len(env.frames) == 0 {
		return expression.Null
	}
	return env.frames[len(env.frames)-1]
}

// resolveRoot looks up a root identifier: map entries of enclosing loop
// elements shadow the base scope, innermost loop first.
func (env *renderEnv) resolveRoot(name string) expression.Value {
	if name == "_" {
		return env.currentElement()
	}
	for i := len(env.frames) - 1; i >= 0; i-- {
		if m, ok := env.frames[i].(expression.MapValue); ok {
			if v, ok := m.Entries[name]; ok {
				return v
			}
		}
	}
	return expression.ResolvePath(env.scope, []string{name})
}

func (env *renderEnv) resolvePath(path []string) expression.Value {
	current := env.resolveRoot(path[0])
	for _, seg := range path[1:] {
		current = fieldOf(current, seg)
	}
	return current
}

func (env *renderEnv) resolveAccess(access *varAccess) expression.Value {
	current := env.resolveRoot(access.Segments[0].Field)

	for _, seg := range access.Segments[1:] {
		switch seg.Kind {
		case segField:
			current = fieldOf(current, seg.Field)

		case segIndex:
			current = indexOf(current, seg.Index)

		case segIndexVar:
			idx, ok := integerVar(env.resolveRoot(seg.IndexVar))
			if !ok {
				return expression.Null
			}
			current = indexOf(current, idx)
		}
	}
	return current
}

func fieldOf(v expression.Value, name string) expression.Value {
	m, ok := v.(expression.MapValue)
	if !ok {
		return expression.Null
	}
	entry, ok := m.Entries[name]
	if !ok {
		return expression.Null
	}
	return entry
}

func indexOf(v expression.Value, idx int) expression.Value {
	list, ok := v.(expression.ListValue)
	if !ok || idx < 0 || idx >= len(list.Items) {
		return expression.Null
	}
	return list.Items[idx]
}

func integerVar(v expression.Value) (int, bool) {
	num, ok := v.(expression.NumberValue)
	if !ok || num.Val != math.Trunc(num.Val) || math.IsInf(num.Val, 0) || math.IsNaN(num.Val) {
		return 0, false
	}
	return int(num.Val), true
}
