// Package template implements the string template sub-language: `{{ … }}`
// expression interpolation with arithmetic and indexing, plus
// `{{#for xs}} … {{/for}}` loop blocks. Unknown identifiers render as empty
// text; only malformed templates fail.
package template

import (
	"fmt"
	"strings"
)

// TokenType identifies a template token.
type TokenType int

const (
	TokenText TokenType = iota
	TokenExpression
	TokenForStart
	TokenForEnd
)

// Token is one lexical unit of a template. For TokenForStart the Value holds
// the raw array path; for TokenExpression the inner expression source.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

// RenderError reports a malformed template. Rendering itself cannot fail;
// every RenderError originates from parsing.
type RenderError struct {
	Template string
	Position int
	Reason   string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("template error at position %d: %s", e.Position, e.Reason)
}

const (
	openMarker  = "{{"
	closeMarker = "}}"
	forPrefix   = "#for"
	forEnd      = "/for"
)

func tokenize(input string) ([]Token, *RenderError) {
	var tokens []Token
	pos := 0

	for pos < len(input) {
		open := strings.Index(input[pos:], openMarker)
		if open < 0 {
			tokens = append(tokens, Token{Type: TokenText, Value: input[pos:], Pos: pos})
			break
		}
		open += pos

		if open > pos {
			tokens = append(tokens, Token{Type: TokenText, Value: input[pos:open], Pos: pos})
		}

		closing := strings.Index(input[open+len(openMarker):], closeMarker)
		if closing < 0 {
			return nil, &RenderError{
				Template: input,
				Position: open,
				Reason:   "unclosed '{{'",
			}
		}
		closing += open + len(openMarker)

		inner := strings.TrimSpace(input[open+len(openMarker) : closing])
		switch {
		case strings.HasPrefix(inner, forPrefix):
			path := strings.TrimSpace(strings.TrimPrefix(inner, forPrefix))
			if path == "" {
				return nil, &RenderError{
					Template: input,
					Position: open,
					Reason:   "'{{#for}}' requires an array path",
				}
			}
			tokens = append(tokens, Token{Type: TokenForStart, Value: path, Pos: open})
		case inner == forEnd:
			tokens = append(tokens, Token{Type: TokenForEnd, Pos: open})
		case inner == "":
			return nil, &RenderError{
				Template: input,
				Position: open,
				Reason:   "empty expression",
			}
		default:
			tokens = append(tokens, Token{Type: TokenExpression, Value: inner, Pos: open})
		}

		pos = closing + len(closeMarker)
	}

	return tokens, nil
}
