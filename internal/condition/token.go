// Package condition implements the boolean expression sub-language used by
// step `when` clauses: comparisons over variables and literals combined with
// short-circuit && and ||. Parsing can fail; evaluation cannot.
package condition

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType identifies a lexical token in a condition expression.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenNumber
	TokenString
	TokenVarOpen  // {{
	TokenVarClose // }}
	TokenDot
	TokenAnd
	TokenOr
	TokenEq
	TokenNotEq
	TokenGreater
	TokenGreaterEq
	TokenLess
	TokenLessEq
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of expression"
	case TokenIdent:
		return "identifier"
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenVarOpen:
		return "'{{'"
	case TokenVarClose:
		return "'}}'"
	case TokenDot:
		return "'.'"
	case TokenAnd:
		return "'&&'"
	case TokenOr:
		return "'||'"
	case TokenEq:
		return "'=='"
	case TokenNotEq:
		return "'!='"
	case TokenGreater:
		return "'>'"
	case TokenGreaterEq:
		return "'>='"
	case TokenLess:
		return "'<'"
	case TokenLessEq:
		return "'<='"
	default:
		return "unknown"
	}
}

// Token is a single lexical unit with its byte position in the source.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

func (t Token) describe() string {
	switch t.Type {
	case TokenEOF:
		return "end of expression"
	case TokenIdent, TokenNumber:
		return fmt.Sprintf("'%s'", t.Value)
	case TokenString:
		return fmt.Sprintf("%q", t.Value)
	default:
		return t.Type.String()
	}
}

func tokenize(input string) ([]Token, *ParseError) {
	var tokens []Token
	i := 0
	for i < len(input) {
		c := input[i]

		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			i++
			continue
		}

		switch {
		case strings.HasPrefix(input[i:], "{{"):
			tokens = append(tokens, Token{Type: TokenVarOpen, Value: "{{", Pos: i})
			i += 2
		case strings.HasPrefix(input[i:], "}}"):
			tokens = append(tokens, Token{Type: TokenVarClose, Value: "}}", Pos: i})
			i += 2
		case strings.HasPrefix(input[i:], "&&"):
			tokens = append(tokens, Token{Type: TokenAnd, Value: "&&", Pos: i})
			i += 2
		case strings.HasPrefix(input[i:], "||"):
			tokens = append(tokens, Token{Type: TokenOr, Value: "||", Pos: i})
			i += 2
		case strings.HasPrefix(input[i:], "=="):
			tokens = append(tokens, Token{Type: TokenEq, Value: "==", Pos: i})
			i += 2
		case strings.HasPrefix(input[i:], "!="):
			tokens = append(tokens, Token{Type: TokenNotEq, Value: "!=", Pos: i})
			i += 2
		case strings.HasPrefix(input[i:], ">="):
			tokens = append(tokens, Token{Type: TokenGreaterEq, Value: ">=", Pos: i})
			i += 2
		case strings.HasPrefix(input[i:], "<="):
			tokens = append(tokens, Token{Type: TokenLessEq, Value: "<=", Pos: i})
			i += 2
		case c == '>':
			tokens = append(tokens, Token{Type: TokenGreater, Value: ">", Pos: i})
			i++
		case c == '<':
			tokens = append(tokens, Token{Type: TokenLess, Value: "<", Pos: i})
			i++
		case c == '.':
			tokens = append(tokens, Token{Type: TokenDot, Value: ".", Pos: i})
			i++
		case c == '&':
			return nil, &ParseError{Position: i, Expected: "'&&'", Found: "'&'"}
		case c == '|':
			return nil, &ParseError{Position: i, Expected: "'||'", Found: "'|'"}
		case c == '=':
			return nil, &ParseError{Position: i, Expected: "'=='", Found: "'='"}
		case c == '!':
			return nil, &ParseError{Position: i, Expected: "'!='", Found: "'!'"}
		case c == '"' || c == '\'':
			tok, next, err := scanString(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = next
		case c == '-' || isDigit(c):
			tok, next, err := scanNumber(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = next
		case isIdentStart(rune(c)):
			start := i
			for i < len(input) && isIdentPart(rune(input[i])) {
				i++
			}
			tokens = append(tokens, Token{Type: TokenIdent, Value: input[start:i], Pos: start})
		default:
			return nil, &ParseError{
				Position: i,
				Expected: "operand or operator",
				Found:    fmt.Sprintf("'%c'", c),
			}
		}
	}

	tokens = append(tokens, Token{Type: TokenEOF, Pos: len(input)})
	return tokens, nil
}

func scanString(input string, start int) (Token, int, *ParseError) {
	quote := input[start]
	var sb strings.Builder
	i := start + 1
	for i < len(input) {
		c := input[i]
		if c == '\\' && i+1 < len(input) {
			next := input[i+1]
			switch next {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '\\', '"', '\'':
				sb.WriteByte(next)
			default:
				sb.WriteByte('\\')
				sb.WriteByte(next)
			}
			i += 2
			continue
		}
		if c == quote {
			return Token{Type: TokenString, Value: sb.String(), Pos: start}, i + 1, nil
		}
		sb.WriteByte(c)
		i++
	}
	return Token{}, 0, &ParseError{
		Position: start,
		Expected: fmt.Sprintf("closing %c", quote),
		Found:    "end of expression",
	}
}

func scanNumber(input string, start int) (Token, int, *ParseError) {
	i := start
	if input[i] == '-' {
		i++
		if i >= len(input) || !isDigit(input[i]) {
			return Token{}, 0, &ParseError{Position: start, Expected: "digit after '-'", Found: "'-'"}
		}
	}
	for i < len(input) && isDigit(input[i]) {
		i++
	}
	if i < len(input) && input[i] == '.' && i+1 < len(input) && isDigit(input[i+1]) {
		i++
		for i < len(input) && isDigit(input[i]) {
			i++
		}
	}
	return Token{Type: TokenNumber, Value: input[start:i], Pos: start}, i, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
