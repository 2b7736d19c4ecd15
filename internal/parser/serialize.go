package parser

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/skilletai/skillet/internal/ast"
)

// frontmatterDoc fixes the key order of serialized frontmatter. Version is a
// node so it always comes out double quoted; a bare 1.0 would reparse as a
// float and lose its trailing zero.
type frontmatterDoc struct {
	ID          string                    `yaml:"id"`
	Version     yaml.Node                 `yaml:"version"`
	Description string                    `yaml:"description,omitempty"`
	Intents     []string                  `yaml:"intents,omitempty"`
	Inputs      map[string]*ast.FieldSpec `yaml:"input,omitempty"`
	Output      *ast.OutputContract       `yaml:"output,omitempty"`
}

// Serialize renders a skill as its canonical .skill.md document: frontmatter
// first, then one `## ` section per step in order, each holding a yaml code
// block. Map keys are emitted sorted, so serializing the same skill twice
// yields identical bytes, and parsing the output reproduces the skill.
func Serialize(skill *ast.Skill) ([]byte, error) {
	if skill == nil {
		return nil, fmt.Errorf("cannot serialize nil skill")
	}

	fm := frontmatterDoc{
		ID: skill.ID,
		Version: yaml.Node{
			Kind:  yaml.ScalarNode,
			Style: yaml.DoubleQuotedStyle,
			Tag:   "!!str",
			Value: skill.Version,
		},
		Description: skill.Description,
		Intents:     skill.Intents,
		Inputs:      skill.Inputs,
		Output:      skill.Output,
	}

	var buf bytes.Buffer
	buf.WriteString(frontmatterFence + "\n")

	fmBytes, err := marshalYAML(&fm)
	if err != nil {
		return nil, fmt.Errorf("encoding frontmatter: %w", err)
	}
	buf.Write(fmBytes)
	buf.WriteString(frontmatterFence + "\n")

	for _, step := range skill.Steps {
		if step == nil {
			continue
		}

		stepBytes, err := marshalYAML(step)
		if err != nil {
			return nil, fmt.Errorf("encoding step %q: %w", step.Name, err)
		}

		buf.WriteString("\n## ")
		buf.WriteString(step.Name)
		buf.WriteString("\n\n```yaml\n")
		buf.Write(stepBytes)
		buf.WriteString("```\n")
	}

	return buf.Bytes(), nil
}

// marshalYAML encodes with two space indent instead of the yaml default
func marshalYAML(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
