package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePath(t *testing.T) {
	scope := Scope{
		"name": "ada",
		"user": map[string]interface{}{
			"address": map[string]interface{}{
				"city": "london",
			},
			"age": 36,
		},
		"yamlish": map[interface{}]interface{}{
			"key": "value",
		},
	}

	assert.Equal(t, StringValue{Val: "ada"}, ResolveDotted(scope, "name"))
	assert.Equal(t, StringValue{Val: "london"}, ResolveDotted(scope, "user.address.city"))
	assert.Equal(t, NumberValue{Val: 36}, ResolveDotted(scope, "user.age"))
	assert.Equal(t, StringValue{Val: "value"}, ResolveDotted(scope, "yamlish.key"))

	// missing variables resolve to null, never an error
	assert.Equal(t, Null, ResolveDotted(scope, "missing"))
	assert.Equal(t, Null, ResolveDotted(scope, "user.missing"))
	assert.Equal(t, Null, ResolveDotted(scope, "user.address.missing"))

	// non-map intermediate yields null
	assert.Equal(t, Null, ResolveDotted(scope, "name.anything"))
	assert.Equal(t, Null, ResolveDotted(scope, "user.age.deeper"))
}
