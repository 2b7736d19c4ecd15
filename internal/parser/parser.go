package parser

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skilletai/skillet/internal/ast"
)

// DefaultMaxSize is the largest document ParseBytes accepts unless
// overridden with WithMaxSize.
const DefaultMaxSize = 1 << 20

const (
	frontmatterFence = "---"
	skillExtension   = ".skill.md"
)

// Parser interface defines the contract for skill document parsing
type Parser interface {
	ParseFile(filename string) (*ast.Skill, error)
	ParseBytes(data []byte, sourceName string) (*ast.Skill, error)
	ParseString(doc string) (*ast.Skill, error)
	SetStrict(strict bool)
}

// DocParser parses .skill.md documents: a YAML frontmatter block carrying
// the skill metadata, followed by a Markdown body whose `## ` sections each
// hold one step configuration in a yaml fenced code block. Prose between
// sections is ignored.
type DocParser struct {
	maxSize int
	strict  bool
}

// Option configures the document parser
type Option func(*DocParser)

// WithStrict makes unknown keys in the frontmatter and step blocks an error
func WithStrict(strict bool) Option {
	return func(p *DocParser) {
		p.strict = strict
	}
}

// WithMaxSize overrides the default document size limit
func WithMaxSize(n int) Option {
	return func(p *DocParser) {
		p.maxSize = n
	}
}

// NewDocParser creates a new document parser with the given options
func NewDocParser(opts ...Option) *DocParser {
	parser := &DocParser{
		maxSize: DefaultMaxSize,
	}

	for _, opt := range opts {
		opt(parser)
	}

	return parser
}

// SetStrict enables or disables strict parsing mode
func (p *DocParser) SetStrict(strict bool) {
	p.strict = strict
}

// IsSkillFile reports whether the filename carries the .skill.md extension
func IsSkillFile(filename string) bool {
	return strings.HasSuffix(filename, skillExtension)
}

// GetSupportedExtensions returns the list of supported file extensions
func GetSupportedExtensions() []string {
	return []string{skillExtension}
}

// ParseFile parses a skill document from disk
func (p *DocParser) ParseFile(filename string) (*ast.Skill, error) {
	if !IsSkillFile(filename) {
		return nil, fmt.Errorf("unsupported file %s: expected a %s document", filename, skillExtension)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	skill, err := p.ParseBytes(data, filename)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}

	return skill, nil
}

// ParseString parses a skill document held in memory
func (p *DocParser) ParseString(doc string) (*ast.Skill, error) {
	return p.ParseBytes([]byte(doc), "")
}

// ParseReader parses a skill document from a reader
func (p *DocParser) ParseReader(r io.Reader, sourceName string) (*ast.Skill, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	return p.ParseBytes(data, sourceName)
}

// ParseBytes parses skill document data. sourceName labels positions in
// errors and may be empty.
func (p *DocParser) ParseBytes(data []byte, sourceName string) (*ast.Skill, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, &ParseError{
			Message:    "empty skill document",
			Position:   ast.Position{Line: 1, Column: 1, File: sourceName},
			Suggestion: "Start the document with a --- frontmatter block declaring id and version",
		}
	}

	if p.maxSize > 0 && len(data) > p.maxSize {
		return nil, &ParseError{
			Message:    fmt.Sprintf("document too large: %d bytes (limit %d)", len(data), p.maxSize),
			Position:   ast.Position{Line: 1, Column: 1, File: sourceName},
			Suggestion: "Split the skill into smaller documents or raise the parser size limit",
		}
	}

	doc, err := splitDocument(data, sourceName)
	if err != nil {
		return nil, err
	}

	skill, err := p.parseFrontmatter(doc, sourceName)
	if err != nil {
		return nil, err
	}

	var multiErr MultiError

	sections, sectionErrs := scanSections(doc, sourceName)
	for _, perr := range sectionErrs {
		multiErr.Add(perr)
	}

	firstDefined := make(map[string]int)
	for _, sec := range sections {
		if first, ok := firstDefined[sec.name]; ok {
			pos := ast.Position{Line: sec.line, Column: 1, File: sourceName}
			multiErr.Add(&ParseError{
				Message:    fmt.Sprintf("duplicate step name %q (first defined at line %d)", sec.name, first),
				Position:   pos,
				Context:    ast.ExtractContext(doc.source, pos, 2),
				Source:     doc.source,
				Suggestion: "Each step heading must be unique within a skill",
			})
			continue
		}
		firstDefined[sec.name] = sec.line

		step, stepErrs := p.parseStep(sec, doc.source, sourceName)
		for _, perr := range stepErrs {
			multiErr.Add(perr)
		}
		if step != nil {
			skill.Steps = append(skill.Steps, step)
		}
	}

	skill.SourceFile = sourceName
	skill.Position.File = sourceName

	// Structural validation only makes sense once the document itself
	// parsed cleanly.
	if !multiErr.HasErrors() {
		if result := ast.NewValidator().ValidateSkill(skill); result.HasErrors() {
			for _, ve := range result.Errors {
				pos := positionForValidation(ve, doc, skill, sourceName)
				multiErr.Add(&ParseError{
					Message:    ve.Error(),
					Position:   pos,
					Context:    ast.ExtractContext(doc.source, pos, 2),
					Source:     doc.source,
					Suggestion: suggestValidationFix(ve.Message),
				})
			}
		}
	}

	if err := multiErr.ToError(); err != nil {
		return nil, err
	}

	return skill, nil
}

// document is a skill source split into its frontmatter and body halves,
// with enough line bookkeeping to report positions in document coordinates.
type document struct {
	source          []byte
	frontmatter     []byte
	frontmatterLine int // document line of the first frontmatter line
	body            []string
	bodyLine        int // document line of body[0]
}

// splitDocument separates the frontmatter block from the Markdown body
func splitDocument(data []byte, sourceName string) (*document, error) {
	lines := strings.Split(string(data), "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}

	if strings.TrimSpace(lines[0]) != frontmatterFence {
		return nil, &ParseError{
			Message:    "missing frontmatter: document must start with ---",
			Position:   ast.Position{Line: 1, Column: 1, File: sourceName},
			Context:    ast.ExtractContext(data, ast.Position{Line: 1, Column: 1}, 2),
			Source:     data,
			Suggestion: "Begin the document with a --- fenced YAML block declaring id and version",
		}
	}

	closing := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontmatterFence {
			closing = i
			break
		}
	}
	if closing == -1 {
		return nil, &ParseError{
			Message:    "unterminated frontmatter: closing --- not found",
			Position:   ast.Position{Line: len(lines), Column: 1, File: sourceName},
			Source:     data,
			Suggestion: "Close the frontmatter block with --- on its own line",
		}
	}

	return &document{
		source:          data,
		frontmatter:     []byte(strings.Join(lines[1:closing], "\n")),
		frontmatterLine: 2,
		body:            lines[closing+1:],
		bodyLine:        closing + 2,
	}, nil
}

// parseFrontmatter decodes the skill metadata block
func (p *DocParser) parseFrontmatter(doc *document, sourceName string) (*ast.Skill, error) {
	var skill ast.Skill

	dec := yaml.NewDecoder(strings.NewReader(string(doc.frontmatter)))
	dec.KnownFields(p.strict)
	if err := dec.Decode(&skill); err != nil && err != io.EOF {
		return nil, wrapYAMLError(err, doc.source, sourceName, doc.frontmatterLine-1)
	}

	// Pull position information from the root node
	var node yaml.Node
	if err := yaml.Unmarshal(doc.frontmatter, &node); err == nil && node.Line > 0 {
		skill.Position = ast.Position{
			Line:   node.Line + doc.frontmatterLine - 1,
			Column: node.Column,
			File:   sourceName,
		}
	}

	return &skill, nil
}

// section is one `## ` heading plus the yaml block that configures it
type section struct {
	name     string
	line     int // document line of the heading
	yamlText string
	yamlLine int // document line of the first yaml content line
	hasYAML  bool
}

// scanSections walks the Markdown body collecting step sections. Code fence
// state is tracked so headings inside fenced examples are ignored; only the
// first yaml block after a heading counts as its configuration.
func scanSections(doc *document, sourceName string) ([]*section, []*ParseError) {
	var (
		sections []*section
		errs     []*ParseError
		current  *section

		inFence   bool
		capturing bool
		fenceLine int
		captured  []string
	)

	finish := func() {
		if current == nil {
			return
		}
		if !current.hasYAML {
			pos := ast.Position{Line: current.line, Column: 1, File: sourceName}
			errs = append(errs, &ParseError{
				Message:    fmt.Sprintf("step %q has no configuration block", current.name),
				Position:   pos,
				Context:    ast.ExtractContext(doc.source, pos, 2),
				Source:     doc.source,
				Suggestion: "Follow the heading with a yaml fenced code block declaring at least type",
			})
			current = nil
			return
		}
		sections = append(sections, current)
		current = nil
	}

	for i, line := range doc.body {
		abs := doc.bodyLine + i
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			if inFence {
				if capturing {
					current.yamlText = strings.Join(captured, "\n")
					current.hasYAML = true
					captured = nil
					capturing = false
				}
				inFence = false
				continue
			}

			inFence = true
			fenceLine = abs
			lang := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "```")))
			if (lang == "yaml" || lang == "yml") && current != nil && !current.hasYAML {
				capturing = true
				current.yamlLine = abs + 1
			}
			continue
		}

		if inFence {
			if capturing {
				captured = append(captured, line)
			}
			continue
		}

		name, isHeading := headingName(line)
		if !isHeading {
			continue
		}

		finish()

		if name == "" {
			pos := ast.Position{Line: abs, Column: 1, File: sourceName}
			errs = append(errs, &ParseError{
				Message:    "step heading has no name",
				Position:   pos,
				Context:    ast.ExtractContext(doc.source, pos, 2),
				Source:     doc.source,
				Suggestion: "Name the step after the ## marker, for example `## fetch-data`",
			})
			continue
		}

		current = &section{name: name, line: abs}
	}

	if inFence {
		pos := ast.Position{Line: fenceLine, Column: 1, File: sourceName}
		errs = append(errs, &ParseError{
			Message:    "unterminated code fence",
			Position:   pos,
			Context:    ast.ExtractContext(doc.source, pos, 2),
			Source:     doc.source,
			Suggestion: "Close the code block with ``` on its own line",
		})
		if capturing {
			// The config never closed, so the section has nothing usable.
			current = nil
		}
	}

	finish()

	return sections, errs
}

// headingName reports whether the line is a `## ` step heading and, if so,
// the step name it declares. Deeper heading levels are prose.
func headingName(line string) (string, bool) {
	if line == "##" {
		return "", true
	}
	if !strings.HasPrefix(line, "## ") {
		return "", false
	}
	rest := line[len("## "):]
	if strings.HasPrefix(rest, "#") {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// parseStep decodes a section's yaml block into a step
func (p *DocParser) parseStep(sec *section, source []byte, sourceName string) (*ast.Step, []*ParseError) {
	headingPos := ast.Position{Line: sec.line, Column: 1, File: sourceName}

	if strings.TrimSpace(sec.yamlText) == "" {
		return nil, []*ParseError{{
			Message:    fmt.Sprintf("step %q has an empty configuration block", sec.name),
			Position:   headingPos,
			Context:    ast.ExtractContext(source, headingPos, 2),
			Source:     source,
			Suggestion: "Declare at least the step type, for example `type: tool`",
		}}
	}

	var step ast.Step
	if err := yaml.Unmarshal([]byte(sec.yamlText), &step); err != nil {
		return nil, []*ParseError{wrapYAMLError(err, source, sourceName, sec.yamlLine-1)}
	}

	step.Name = sec.name
	step.Position = headingPos

	if p.strict {
		if errs := checkStepKeys(sec, &step, source, sourceName); len(errs) > 0 {
			return nil, errs
		}
	}

	return &step, nil
}

// stepConfigKeys lists the keys each step type accepts, used by strict mode.
// The shared keys type, var and when are always allowed.
var stepConfigKeys = map[ast.StepType][]string{
	ast.StepTool:     {"tool", "inputs", "output_schema"},
	ast.StepTemplate: {"template"},
	ast.StepPrompt:   {"prompt", "options"},
	ast.StepAwait:    {"message", "inputs"},
}

// checkStepKeys flags keys in the block that the step's type does not use
func checkStepKeys(sec *section, step *ast.Step, source []byte, sourceName string) []*ParseError {
	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(sec.yamlText), &raw); err != nil {
		// The step decode already surfaced the real problem.
		return nil
	}

	allowed := map[string]bool{"type": true, "var": true, "when": true}
	for _, key := range stepConfigKeys[step.Type] {
		allowed[key] = true
	}

	var unknown []string
	for key := range raw {
		if !allowed[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)

	var errs []*ParseError
	for _, key := range unknown {
		pos := findKeyPosition(sec.yamlText, sec.yamlLine, key, sourceName)
		errs = append(errs, &ParseError{
			Message:    fmt.Sprintf("step %q: key %q is not used by %s steps", sec.name, key, step.Type),
			Position:   pos,
			Context:    ast.ExtractContext(source, pos, 2),
			Source:     source,
			Suggestion: fmt.Sprintf("Remove the key or change the step type; %s steps accept: %s", step.Type, strings.Join(append([]string{"type", "var", "when"}, stepConfigKeys[step.Type]...), ", ")),
		})
	}

	return errs
}

// findKeyPosition locates `key:` within a yaml fragment, in document coordinates
func findKeyPosition(yamlText string, firstLine int, key, sourceName string) ast.Position {
	for i, line := range strings.Split(yamlText, "\n") {
		if idx := strings.Index(line, key+":"); idx >= 0 {
			return ast.Position{Line: firstLine + i, Column: idx + 1, File: sourceName}
		}
	}
	return ast.Position{Line: firstLine, Column: 1, File: sourceName}
}

// positionForValidation maps a structural validation error back to a
// document position: step paths land on the step's heading, everything else
// is looked up in the frontmatter.
func positionForValidation(ve *ast.ValidationError, doc *document, skill *ast.Skill, sourceName string) ast.Position {
	if name, ok := stepNameFromPath(ve.Path); ok {
		if step, found := skill.GetStep(name); found {
			return step.Position
		}
	}

	var index int
	if _, err := fmt.Sscanf(ve.Path, "steps[%d]", &index); err == nil {
		if index >= 0 && index < len(skill.Steps) {
			return skill.Steps[index].Position
		}
	}

	candidates := strings.Split(ve.Path, ".")
	if ve.Field != "" {
		candidates = append(candidates, ve.Field)
	}

	lines := strings.Split(string(doc.frontmatter), "\n")
	for i, line := range lines {
		for _, part := range candidates {
			if part == "" {
				continue
			}
			if idx := strings.Index(line, part+":"); idx >= 0 {
				return ast.Position{
					Line:   doc.frontmatterLine + i,
					Column: idx + 1,
					File:   sourceName,
				}
			}
		}
	}

	return ast.Position{Line: doc.frontmatterLine, Column: 1, File: sourceName}
}

// stepNameFromPath extracts the quoted name from a `step "name"` path prefix
func stepNameFromPath(path string) (string, bool) {
	if !strings.HasPrefix(path, `step "`) {
		return "", false
	}
	rest := path[len(`step "`):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// suggestValidationFix maps structural validation messages to a hint
func suggestValidationFix(message string) string {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "id is required"):
		return "Add an id field to the frontmatter, for example `id: my-skill`"
	case strings.Contains(lower, "version is required"):
		return "Add a version field to the frontmatter, for example `version: \"1.0.0\"`"
	case strings.Contains(lower, "invalid version"):
		return "Use dotted numeric segments like \"1.2.0\""
	case strings.Contains(lower, "at least one step"):
		return "Add a `## step-name` heading followed by a yaml code block to the body"
	case strings.Contains(lower, "step type is required"):
		return "Every step block needs a `type` key"
	case strings.Contains(lower, "unknown step type"):
		return "Set type to one of tool, template, prompt or await"
	case strings.Contains(lower, "require a tool name"):
		return "Add `tool: <name>` naming a registered tool"
	case strings.Contains(lower, "template body"):
		return "Add a `template` key with the text to render"
	case strings.Contains(lower, "prompt body"):
		return "Add a `prompt` key with the instruction for the model"
	case strings.Contains(lower, "requested input"):
		return "Declare the fields to collect under `inputs`"
	default:
		return ""
	}
}
