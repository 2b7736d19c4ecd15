package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skilletai/skillet/internal/expression"
)

func render(t *testing.T, tpl string, scope expression.Scope) string {
	t.Helper()
	out, err := Render(tpl, scope)
	require.NoError(t, err, "template %q", tpl)
	return out
}

func TestPlainSubstitution(t *testing.T) {
	scope := expression.Scope{
		"name": "ada",
		"n":    5,
		"half": 0.5,
		"ok":   true,
		"user": map[string]interface{}{"city": "london"},
	}

	assert.Equal(t, "hello ada", render(t, "hello {{name}}", scope))
	assert.Equal(t, "n=5", render(t, "n={{n}}", scope))
	assert.Equal(t, "0.5", render(t, "{{half}}", scope))
	assert.Equal(t, "true", render(t, "{{ok}}", scope))
	assert.Equal(t, "london", render(t, "{{user.city}}", scope))

	// unknown identifiers are not errors, they render empty
	assert.Equal(t, "[]", render(t, "[{{missing}}]", scope))
	assert.Equal(t, "", render(t, "{{user.missing}}", scope))
}

func TestArithmetic(t *testing.T) {
	scope := expression.Scope{"a": 2, "b": 3, "s": "x"}

	assert.Equal(t, "5", render(t, "{{a + b}}", scope))
	assert.Equal(t, "sum is 5", render(t, "sum is {{a + b}}", scope))
	assert.Equal(t, "-1", render(t, "{{a - b}}", scope))
	assert.Equal(t, "6", render(t, "{{a * b}}", scope))
	assert.Equal(t, "1.5", render(t, "{{b / a}}", scope))

	// precedence: * and / bind tighter than + and -
	assert.Equal(t, "8", render(t, "{{a + b * a}}", scope))

	// + with a string operand concatenates
	assert.Equal(t, "x2", render(t, `{{s + a}}`, scope))
	assert.Equal(t, "2x", render(t, `{{a + s}}`, scope))
	assert.Equal(t, "ab", render(t, `{{"a" + "b"}}`, scope))

	// division by zero follows IEEE-754 and renders empty
	assert.Equal(t, "", render(t, "{{a / 0}}", scope))
	assert.Equal(t, "", render(t, "{{0 / 0}}", scope))
}

func TestForLoops(t *testing.T) {
	scope := expression.Scope{
		"items": []interface{}{
			map[string]interface{}{"v": 1},
			map[string]interface{}{"v": 2},
		},
		"names": []interface{}{"a", "b", "c"},
		"not_a_list": "scalar",
	}

	// map elements merge their entries into the loop body scope
	assert.Equal(t, "1;2;", render(t, "{{#for items}}{{v}};{{/for}}", scope))

	// _ is the current element
	assert.Equal(t, "a,b,c,", render(t, "{{#for names}}{{_}},{{/for}}", scope))

	// non-sequence targets produce empty text
	assert.Equal(t, "", render(t, "{{#for not_a_list}}x{{/for}}", scope))
	assert.Equal(t, "", render(t, "{{#for missing}}x{{/for}}", scope))
}

func TestNestedForLoops(t *testing.T) {
	scope := expression.Scope{
		"rows": []interface{}{
			map[string]interface{}{"name": "r1", "cells": []interface{}{1, 2}},
			map[string]interface{}{"name": "r2", "cells": []interface{}{3}},
		},
	}

	out := render(t, "{{#for rows}}{{name}}:{{#for cells}}{{_}} {{/for}}|{{/for}}", scope)
	assert.Equal(t, "r1:1 2 |r2:3 |", out)
}

func TestIndexing(t *testing.T) {
	scope := expression.Scope{
		"arr": []interface{}{"zero", "one", "two"},
		"i":   2,
		"bad": "nope",
		"objs": []interface{}{
			map[string]interface{}{"id": "a"},
		},
	}

	assert.Equal(t, "one", render(t, "{{arr[1]}}", scope))
	assert.Equal(t, "two", render(t, "{{arr[#i]}}", scope))
	assert.Equal(t, "a", render(t, "{{objs[0].id}}", scope))

	// out of range and non-integer index variables yield null
	assert.Equal(t, "", render(t, "{{arr[9]}}", scope))
	assert.Equal(t, "", render(t, "{{arr[#bad]}}", scope))
	assert.Equal(t, "", render(t, "{{arr[#missing]}}", scope))
}

func TestRenderIdempotence(t *testing.T) {
	// templates without free variables render to themselves on a second pass
	templates := []string{
		"plain text with no markers",
		"sum is {{2 + 3}}",
		`{{"literal"}}`,
	}
	for _, tpl := range templates {
		first := render(t, tpl, expression.Scope{})
		second := render(t, first, expression.Scope{})
		assert.Equal(t, first, second, "template %q", tpl)
	}
}

func TestMapAndListRendering(t *testing.T) {
	scope := expression.Scope{
		"obj":  map[string]interface{}{"b": 2, "a": "x"},
		"list": []interface{}{1, "s"},
	}

	assert.Equal(t, `{"a": "x", "b": 2}`, render(t, "{{obj}}", scope))
	assert.Equal(t, `[1, "s"]`, render(t, "{{list}}", scope))
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		tpl    string
		reason string
	}{
		{"{{#for items}}no close", "unclosed '{{#for items}}'"},
		{"text {{/for}}", "'{{/for}}' without matching '{{#for}}'"},
		{"{{unclosed", "unclosed '{{'"},
		{"{{}}", "empty expression"},
		{"{{a +}}", `invalid expression "a +": expected operand`},
		{"{{arr[x]}}", `invalid expression "arr[x]": expected integer or '#' variable index`},
		{"{{#for 1bad}}x{{/for}}", `invalid loop target "1bad"`},
	}

	for _, tc := range cases {
		_, err := Render(tc.tpl, expression.Scope{})
		require.Error(t, err, "template %q", tc.tpl)
		var rerr *RenderError
		require.ErrorAs(t, err, &rerr)
		assert.Contains(t, rerr.Error(), tc.reason, "template %q", tc.tpl)
		assert.False(t, IsValid(tc.tpl))
	}
}

func TestRenderInputs(t *testing.T) {
	scope := expression.Scope{"name": "ada", "n": 2}

	inputs := map[string]interface{}{
		"x":     "{{name}}",
		"count": 7,
		"nested": map[string]interface{}{
			"msg":  "hi {{name}}",
			"keep": true,
		},
		"list": []interface{}{"{{n * 2}}", 1},
	}

	out, err := RenderInputs(inputs, scope)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"x":     "ada",
		"count": 7,
		"nested": map[string]interface{}{
			"msg":  "hi ada",
			"keep": true,
		},
		"list": []interface{}{"4", 1},
	}, out)

	// the original structure is not mutated
	assert.Equal(t, "{{name}}", inputs["x"])

	_, err = RenderInputs(map[string]interface{}{"bad": "{{a +}}"}, scope)
	require.Error(t, err)
}

func TestExtractVariables(t *testing.T) {
	vars := ExtractVariables("hello {{name}}, {{user.city}} {{#for items}}{{v}} {{arr[#i]}}{{/for}}")
	assert.Equal(t, []string{"arr", "i", "items", "name", "user", "v"}, vars)

	assert.Empty(t, ExtractVariables("no markers"))
	assert.Empty(t, ExtractVariables("{{#for xs}}{{_}}{{/for}}")[1:])
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("hello {{name}}"))
	assert.NoError(t, Validate("no markers"))

	err := Validate("{{#for xs}}no end")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unclosed '{{#for xs}}'")
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("hello {{name}}"))
	assert.True(t, IsValid("{{#for xs}}{{_}}{{/for}}"))
	assert.False(t, IsValid("{{#for xs}}"))
	assert.False(t, IsValid("{{"))
}
