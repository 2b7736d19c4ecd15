package condition

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a node of the parsed condition tree. The variants form a small
// closed sum; evaluation dispatches by type switch.
type Expr interface {
	exprNode()
	String() string
}

// BinaryExpr is a comparison or a logical combination of two expressions.
type BinaryExpr struct {
	Op    string // "==", "!=", ">", ">=", "<", "<=", "&&", "||"
	Left  Expr
	Right Expr
}

// VariableRef references a variable by its dotted path.
type VariableRef struct {
	Path []string
}

// NullLit is the literal null.
type NullLit struct{}

// BoolLit is the literal true or false.
type BoolLit struct {
	Val bool
}

// NumberLit is a numeric literal.
type NumberLit struct {
	Val float64
}

// StringLit is a quoted string literal.
type StringLit struct {
	Val string
}

func (*BinaryExpr) exprNode()  {}
func (*VariableRef) exprNode() {}
func (*NullLit) exprNode()     {}
func (*BoolLit) exprNode()     {}
func (*NumberLit) exprNode()   {}
func (*StringLit) exprNode()   {}

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("%s %s %s", e.Left, e.Op, e.Right)
}

func (e *VariableRef) String() string {
	return "{{" + strings.Join(e.Path, ".") + "}}"
}

func (*NullLit) String() string { return "null" }

func (e *BoolLit) String() string { return strconv.FormatBool(e.Val) }

func (e *NumberLit) String() string {
	return strconv.FormatFloat(e.Val, 'g', -1, 64)
}

func (e *StringLit) String() string { return strconv.Quote(e.Val) }
