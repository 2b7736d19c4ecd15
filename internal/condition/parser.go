package condition

import (
	"fmt"
	"strconv"
)

// ParseError reports where parsing stopped and what was expected there.
type ParseError struct {
	Position int
	Expected string
	Found    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("condition parse error at position %d: expected %s, found %s",
		e.Position, e.Expected, e.Found)
}

// Parse turns a condition expression into its tree form.
//
// Grammar, precedence high to low:
//
//	comparison := operand ( ("==" | "!=" | ">=" | "<=" | ">" | "<") operand )?
//	and_expr   := comparison ( "&&" comparison )*
//	or_expr    := and_expr ( "||" and_expr )*
func Parse(input string) (Expr, error) {
	tokens, lexErr := tokenize(input)
	if lexErr != nil {
		return nil, lexErr
	}

	p := &parser{tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, &ParseError{
			Position: tok.Pos,
			Expected: "end of expression",
			Found:    tok.describe(),
		}
	}
	return expr, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *parser) next() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == TokenOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "||", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == TokenAnd {
		p.next()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "&&", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	var op string
	switch p.peek().Type {
	case TokenEq:
		op = "=="
	case TokenNotEq:
		op = "!="
	case TokenGreaterEq:
		op = ">="
	case TokenLessEq:
		op = "<="
	case TokenGreater:
		op = ">"
	case TokenLess:
		op = "<"
	default:
		return left, nil
	}
	p.next()

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return &BinaryExpr{Op: op, Left: left, Right: right}, nil
}

func (p *parser) parseOperand() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case TokenVarOpen:
		p.next()
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.Type != TokenVarClose {
			return nil, &ParseError{
				Position: closing.Pos,
				Expected: "'}}'",
				Found:    closing.describe(),
			}
		}
		return &VariableRef{Path: path}, nil

	case TokenIdent:
		switch tok.Value {
		case "null":
			p.next()
			return &NullLit{}, nil
		case "true":
			p.next()
			return &BoolLit{Val: true}, nil
		case "false":
			p.next()
			return &BoolLit{Val: false}, nil
		}
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		return &VariableRef{Path: path}, nil

	case TokenNumber:
		p.next()
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, &ParseError{Position: tok.Pos, Expected: "number", Found: tok.describe()}
		}
		return &NumberLit{Val: val}, nil

	case TokenString:
		p.next()
		return &StringLit{Val: tok.Value}, nil

	default:
		return nil, &ParseError{
			Position: tok.Pos,
			Expected: "variable, literal, or '{{'",
			Found:    tok.describe(),
		}
	}
}

func (p *parser) parsePath() ([]string, error) {
	first := p.next()
	if first.Type != TokenIdent {
		return nil, &ParseError{
			Position: first.Pos,
			Expected: "identifier",
			Found:    first.describe(),
		}
	}
	path := []string{first.Value}
	for p.peek().Type == TokenDot {
		p.next()
		seg := p.next()
		if seg.Type != TokenIdent {
			return nil, &ParseError{
				Position: seg.Pos,
				Expected: "identifier after '.'",
				Found:    seg.describe(),
			}
		}
		path = append(path, seg.Value)
	}
	return path, nil
}
