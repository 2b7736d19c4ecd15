package ast

import (
	"strings"
)

// Skill helper methods

// GetStep retrieves a step by name
func (s *Skill) GetStep(name string) (*Step, bool) {
	for _, step := range s.Steps {
		if step.Name == name {
			return step, true
		}
	}
	return nil, false
}

// GetInput retrieves an input field spec by name
func (s *Skill) GetInput(name string) (*FieldSpec, bool) {
	if s.Inputs == nil {
		return nil, false
	}
	spec, exists := s.Inputs[name]
	return spec, exists
}

// ListStepNames returns the step names in document order
func (s *Skill) ListStepNames() []string {
	if s.Steps == nil {
		return nil
	}

	names := make([]string, len(s.Steps))
	for i, step := range s.Steps {
		names[i] = step.Name
	}
	return names
}

// HasIntent reports whether the skill declares the given intent.
// Intents match case-insensitively.
func (s *Skill) HasIntent(intent string) bool {
	for _, candidate := range s.Intents {
		if strings.EqualFold(candidate, intent) {
			return true
		}
	}
	return false
}

// Key returns the (id, version) identity of the skill as "id@version"
func (s *Skill) Key() string {
	return s.ID + "@" + s.Version
}

// Step helper methods

// IsToolStep returns true if this step invokes a registered tool
func (st *Step) IsToolStep() bool {
	return st.Type == StepTool
}

// IsTemplateStep returns true if this step renders a template body
func (st *Step) IsTemplateStep() bool {
	return st.Type == StepTemplate
}

// IsPromptStep returns true if this step calls an LLM adapter
func (st *Step) IsPromptStep() bool {
	return st.Type == StepPrompt
}

// IsAwaitStep returns true if this step suspends for user input
func (st *Step) IsAwaitStep() bool {
	return st.Type == StepAwait
}

// FieldSpec helper methods

// HasDefault returns true if the field declares a default value
func (fs *FieldSpec) HasDefault() bool {
	return fs.Default != nil
}

// GetTypeString returns the type as a string, defaulting to "string" if not specified
func (fs *FieldSpec) GetTypeString() string {
	if fs.Type == "" {
		return "string"
	}
	return fs.Type
}

// OutputContract helper methods

// IsText reports whether the contract asks for text-rendered fields
func (oc *OutputContract) IsText() bool {
	return oc != nil && oc.Format == OutputFormatText
}

// Utility functions

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
