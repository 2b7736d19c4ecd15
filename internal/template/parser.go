package template

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Node is one parsed element of a template body.
type Node interface {
	templateNode()
}

// TextNode is literal text copied through unchanged.
type TextNode struct {
	Text string
}

// ExprNode is a `{{ … }}` substitution.
type ExprNode struct {
	Raw  string
	Expr exprAST
}

// ForNode is a `{{#for xs}} … {{/for}}` block.
type ForNode struct {
	ArrayPath []string
	Body      []Node
}

func (*TextNode) templateNode() {}
func (*ExprNode) templateNode() {}
func (*ForNode) templateNode()  {}

// parse builds the node tree for a template, validating loop nesting.
func parse(input string) ([]Node, *RenderError) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}

	root := []Node{}
	// stack of open for-blocks; index 0 is the root list
	stack := []*[]Node{&root}
	var openFors []*ForNode

	for _, tok := range tokens {
		current := stack[len(stack)-1]
		switch tok.Type {
		case TokenText:
			*current = append(*current, &TextNode{Text: tok.Value})

		case TokenExpression:
			expr, perr := parseExpression(tok.Value)
			if perr != nil {
				return nil, &RenderError{
					Template: input,
					Position: tok.Pos,
					Reason:   fmt.Sprintf("invalid expression %q: %s", tok.Value, perr.reason),
				}
			}
			*current = append(*current, &ExprNode{Raw: tok.Value, Expr: expr})

		case TokenForStart:
			path, perr := parseForPath(tok.Value)
			if perr != nil {
				return nil, &RenderError{
					Template: input,
					Position: tok.Pos,
					Reason:   perr.reason,
				}
			}
			forNode := &ForNode{ArrayPath: path}
			*current = append(*current, forNode)
			openFors = append(openFors, forNode)
			stack = append(stack, &forNode.Body)

		case TokenForEnd:
			if len(stack) == 1 {
				return nil, &RenderError{
					Template: input,
					Position: tok.Pos,
					Reason:   "'{{/for}}' without matching '{{#for}}'",
				}
			}
			stack = stack[:len(stack)-1]
			openFors = openFors[:len(openFors)-1]
		}
	}

	if len(stack) > 1 {
		return nil, &RenderError{
			Template: input,
			Position: len(input),
			Reason:   fmt.Sprintf("unclosed '{{#for %s}}'", strings.Join(openFors[len(openFors)-1].ArrayPath, ".")),
		}
	}

	return root, nil
}

func parseForPath(raw string) ([]string, *exprError) {
	segments := strings.Split(raw, ".")
	for _, seg := range segments {
		if !isIdent(seg) {
			return nil, &exprError{reason: fmt.Sprintf("invalid loop target %q", raw)}
		}
	}
	return segments, nil
}

// --- expression AST ---

// exprAST is a node of the arithmetic expression inside `{{ }}`.
//
// Grammar:
//
//	expr       := term ( ("+" | "-") term )*
//	term       := factor ( ("*" | "/") factor )*
//	factor     := number | string | "_" | var_access
//	var_access := ident ( "." ident | "[" idx "]" )*
//	idx        := integer | "#" ident
type exprAST interface {
	exprNode()
}

type binaryExpr struct {
	Op    byte // '+', '-', '*', '/'
	Left  exprAST
	Right exprAST
}

type numberLit struct {
	Val float64
}

type stringLit struct {
	Val string
}

// currentElem is the `_` reference to the innermost loop element.
type currentElem struct{}

type segmentKind int

const (
	segField segmentKind = iota
	segIndex
	segIndexVar
)

type segment struct {
	Kind     segmentKind
	Field    string
	Index    int
	IndexVar string
}

type varAccess struct {
	Segments []segment
}

func (*binaryExpr) exprNode()  {}
func (*numberLit) exprNode()   {}
func (*stringLit) exprNode()   {}
func (*currentElem) exprNode() {}
func (*varAccess) exprNode()   {}

type exprError struct {
	reason string
}

type exprParser struct {
	input string
	pos   int
}

func parseExpression(input string) (exprAST, *exprError) {
	p := &exprParser{input: input}
	expr, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return nil, &exprError{reason: fmt.Sprintf("unexpected %q", p.input[p.pos:])}
	}
	return expr, nil
}

func (p *exprParser) parseAdditive() (exprAST, *exprError) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			return left, nil
		}
		op := p.input[p.pos]
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *exprParser) parseTerm() (exprAST, *exprError) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			return left, nil
		}
		op := p.input[p.pos]
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *exprParser) parseFactor() (exprAST, *exprError) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return nil, &exprError{reason: "expected operand"}
	}

	c := p.input[p.pos]

	switch {
	case c == '"' || c == '\'':
		return p.parseString(c)

	case c == '-' || c >= '0' && c <= '9':
		return p.parseNumber()

	case c == '_' && !p.identContinues(p.pos + 1):
		p.pos++
		return &currentElem{}, nil

	case isIdentStart(rune(c)):
		return p.parseVarAccess()

	default:
		return nil, &exprError{reason: fmt.Sprintf("unexpected character %q", string(c))}
	}
}

func (p *exprParser) parseString(quote byte) (exprAST, *exprError) {
	var sb strings.Builder
	i := p.pos + 1
	for i < len(p.input) {
		c := p.input[i]
		if c == '\\' && i+1 < len(p.input) {
			sb.WriteByte(p.input[i+1])
			i += 2
			continue
		}
		if c == quote {
			p.pos = i + 1
			return &stringLit{Val: sb.String()}, nil
		}
		sb.WriteByte(c)
		i++
	}
	return nil, &exprError{reason: "unterminated string"}
}

func (p *exprParser) parseNumber() (exprAST, *exprError) {
	start := p.pos
	if p.input[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
		p.pos++
	}
	if p.pos < len(p.input) && p.input[p.pos] == '.' {
		p.pos++
		for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
			p.pos++
		}
	}
	raw := p.input[start:p.pos]
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &exprError{reason: fmt.Sprintf("invalid number %q", raw)}
	}
	return &numberLit{Val: val}, nil
}

func (p *exprParser) parseVarAccess() (exprAST, *exprError) {
	name := p.scanIdent()
	access := &varAccess{Segments: []segment{{Kind: segField, Field: name}}}

	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case '.':
			p.pos++
			if p.pos >= len(p.input) || !isIdentStart(rune(p.input[p.pos])) {
				return nil, &exprError{reason: "expected identifier after '.'"}
			}
			access.Segments = append(access.Segments, segment{Kind: segField, Field: p.scanIdent()})

		case '[':
			p.pos++
			seg, err := p.parseIndex()
			if err != nil {
				return nil, err
			}
			access.Segments = append(access.Segments, seg)

		default:
			return access, nil
		}
	}
	return access, nil
}

func (p *exprParser) parseIndex() (segment, *exprError) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return segment{}, &exprError{reason: "unterminated index"}
	}

	var seg segment
	if p.input[p.pos] == '#' {
		p.pos++
		if p.pos >= len(p.input) || !isIdentStart(rune(p.input[p.pos])) {
			return segment{}, &exprError{reason: "expected identifier after '#'"}
		}
		seg = segment{Kind: segIndexVar, IndexVar: p.scanIdent()}
	} else {
		start := p.pos
		for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
			p.pos++
		}
		if p.pos == start {
			return segment{}, &exprError{reason: "expected integer or '#' variable index"}
		}
		idx, err := strconv.Atoi(p.input[start:p.pos])
		if err != nil {
			return segment{}, &exprError{reason: "invalid index"}
		}
		seg = segment{Kind: segIndex, Index: idx}
	}

	p.skipSpace()
	if p.pos >= len(p.input) || p.input[p.pos] != ']' {
		return segment{}, &exprError{reason: "expected ']'"}
	}
	p.pos++
	return seg, nil
}

func (p *exprParser) scanIdent() string {
	start := p.pos
	for p.pos < len(p.input) && isIdentPart(rune(p.input[p.pos])) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *exprParser) identContinues(pos int) bool {
	return pos < len(p.input) && isIdentPart(rune(p.input[pos]))
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	if s == "_" {
		return true
	}
	for i, r := range s {
		if i == 0 && !isIdentStart(r) {
			return false
		}
		if i > 0 && !isIdentPart(r) {
			return false
		}
	}
	return true
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
